package handlers

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/request-desk/internal/api/dto"
	"github.com/spec-kit/request-desk/internal/domain"
	"github.com/spec-kit/request-desk/internal/service"
	apperrors "github.com/spec-kit/request-desk/pkg/util/errorutil"
)

// DirectoryHandler exposes the org directory: department and staff listings
// for assignment pickers plus the admin management endpoints.
type DirectoryHandler struct {
	directory *service.DirectoryService
	validate  *validator.Validate
}

// NewDirectoryHandler constructs the handler.
func NewDirectoryHandler(directory *service.DirectoryService, validate *validator.Validate) *DirectoryHandler {
	return &DirectoryHandler{directory: directory, validate: validate}
}

// ListDepartments GET /departments.
func (h *DirectoryHandler) ListDepartments(c *fiber.Ctx) error {
	viewer, err := viewerFromContext(c)
	if err != nil {
		return err
	}
	depts, err := h.directory.ListDepartments(c.Context(), viewer)
	if err != nil {
		return err
	}
	items := make([]dto.DepartmentResponse, 0, len(depts))
	for i := range depts {
		items = append(items, departmentResponse(&depts[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// CreateDepartment POST /departments.
func (h *DirectoryHandler) CreateDepartment(c *fiber.Ctx) error {
	viewer, err := viewerFromContext(c)
	if err != nil {
		return err
	}
	var req dto.CreateDepartmentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := h.validate.Struct(req); err != nil {
		return apperrors.NewValidationError(err.Error(), nil)
	}
	dept, err := h.directory.CreateDepartment(c.Context(), viewer, service.DepartmentInput{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": departmentResponse(dept)})
}

// UpdateDepartment PATCH /departments/:id.
func (h *DirectoryHandler) UpdateDepartment(c *fiber.Ctx) error {
	viewer, err := viewerFromContext(c)
	if err != nil {
		return err
	}
	var req dto.UpdateDepartmentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := h.validate.Struct(req); err != nil {
		return apperrors.NewValidationError(err.Error(), nil)
	}
	dept, err := h.directory.UpdateDepartment(c.Context(), viewer, c.Params("id"), service.DepartmentUpdateInput{
		Name:        req.Name,
		Description: req.Description,
		IsActive:    req.IsActive,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": departmentResponse(dept)})
}

// ListStaff GET /staff.
func (h *DirectoryHandler) ListStaff(c *fiber.Ctx) error {
	viewer, err := viewerFromContext(c)
	if err != nil {
		return err
	}
	input := service.StaffListInput{
		Limit:  parseInt(c.Query("limit"), 50),
		Offset: parseInt(c.Query("offset"), 0),
	}
	if v := c.Query("department_id"); v != "" {
		input.DepartmentID = &v
	}
	if v := c.Query("role"); v != "" {
		role := domain.StaffRole(v)
		input.Role = &role
	}
	members, err := h.directory.ListStaff(c.Context(), viewer, input)
	if err != nil {
		return err
	}
	items := make([]dto.StaffDirectoryResponse, 0, len(members))
	for i := range members {
		items = append(items, staffDirectoryResponse(&members[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// CreateStaff POST /staff.
func (h *DirectoryHandler) CreateStaff(c *fiber.Ctx) error {
	viewer, err := viewerFromContext(c)
	if err != nil {
		return err
	}
	var req dto.CreateStaffRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := h.validate.Struct(req); err != nil {
		return apperrors.NewValidationError(err.Error(), nil)
	}
	member, err := h.directory.CreateStaff(c.Context(), viewer, service.StaffInput{
		Name:         req.Name,
		Email:        req.Email,
		Password:     req.Password,
		Role:         domain.StaffRole(req.Role),
		DepartmentID: req.DepartmentID,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": staffDirectoryResponse(member)})
}

func departmentResponse(dept *domain.Department) dto.DepartmentResponse {
	return dto.DepartmentResponse{
		ID:          dept.ID,
		Name:        dept.Name,
		Description: dept.Description,
		IsActive:    dept.IsActive,
		CreatedAt:   dept.CreatedAt,
	}
}

func staffDirectoryResponse(staff *domain.StaffMember) dto.StaffDirectoryResponse {
	return dto.StaffDirectoryResponse{
		ID:           staff.ID,
		Name:         staff.Name,
		Email:        staff.Email,
		Role:         staff.Role,
		DepartmentID: staff.DepartmentID,
		Active:       staff.Active,
	}
}
