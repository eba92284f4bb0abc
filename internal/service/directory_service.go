package service

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/request-desk/internal/auth"
	"github.com/spec-kit/request-desk/internal/domain"
	"github.com/spec-kit/request-desk/internal/repository"
	apperrors "github.com/spec-kit/request-desk/pkg/util/errorutil"
)

// DirectoryService serves the org structure behind request routing: the
// departments requests are routed to and the staff members who can take
// assignments. Listings feed assignment pickers and are staff-only;
// mutations are admin-only.
type DirectoryService struct {
	staff       repository.StaffRepository
	departments repository.DepartmentRepository
	bcryptCost  int
}

// DirectoryDependencies bundles collaborators.
type DirectoryDependencies struct {
	StaffRepo      repository.StaffRepository
	DepartmentRepo repository.DepartmentRepository
	BcryptCost     int
}

// NewDirectoryService creates the service.
func NewDirectoryService(deps DirectoryDependencies) *DirectoryService {
	return &DirectoryService{
		staff:       deps.StaffRepo,
		departments: deps.DepartmentRepo,
		bcryptCost:  deps.BcryptCost,
	}
}

// StaffListInput filters the staff listing.
type StaffListInput struct {
	DepartmentID *string
	Role         *domain.StaffRole
	Limit        int
	Offset       int
}

// DepartmentInput describes department creation payload.
type DepartmentInput struct {
	Name        string
	Description string
}

// DepartmentUpdateInput carries partial department changes; nil fields are
// left untouched.
type DepartmentUpdateInput struct {
	Name        *string
	Description *string
	IsActive    *bool
}

// StaffInput describes staff onboarding payload.
type StaffInput struct {
	Name         string
	Email        string
	Password     string
	Role         domain.StaffRole
	DepartmentID *string
}

// ListDepartments returns active departments for routing pickers.
func (s *DirectoryService) ListDepartments(ctx context.Context, viewer domain.Viewer) ([]domain.Department, error) {
	if !viewer.Staff() {
		return nil, apperrors.NewAuthorizationError("directory access requires a staff role")
	}
	depts, err := s.departments.ListActive(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return depts, nil
}

// ListStaff returns active staff members, optionally narrowed to one
// department or role.
func (s *DirectoryService) ListStaff(ctx context.Context, viewer domain.Viewer, input StaffListInput) ([]domain.StaffMember, error) {
	if !viewer.Staff() {
		return nil, apperrors.NewAuthorizationError("directory access requires a staff role")
	}
	active := true
	members, err := s.staff.List(ctx, repository.StaffFilter{
		Role:         input.Role,
		DepartmentID: input.DepartmentID,
		Active:       &active,
		Limit:        input.Limit,
		Offset:       input.Offset,
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return members, nil
}

// CreateDepartment opens a new active department.
func (s *DirectoryService) CreateDepartment(ctx context.Context, viewer domain.Viewer, input DepartmentInput) (*domain.Department, error) {
	if viewer.Role != domain.ViewerRoleAdmin {
		return nil, apperrors.NewAuthorizationError("department management requires admin role")
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.NewValidationError("department name required", nil)
	}
	dept := &domain.Department{
		Name:        name,
		Description: strings.TrimSpace(input.Description),
		IsActive:    true,
	}
	if err := s.departments.Create(ctx, dept); err != nil {
		return nil, apperrors.MapError(err)
	}
	return dept, nil
}

// UpdateDepartment applies partial changes. Deactivating a department hides
// it from routing pickers; existing requests keep their reference.
func (s *DirectoryService) UpdateDepartment(ctx context.Context, viewer domain.Viewer, id string, input DepartmentUpdateInput) (*domain.Department, error) {
	if viewer.Role != domain.ViewerRoleAdmin {
		return nil, apperrors.NewAuthorizationError("department management requires admin role")
	}
	dept, err := s.departments.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("department", map[string]any{"department_id": id})
		}
		return nil, apperrors.MapError(err)
	}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, apperrors.NewValidationError("department name required", nil)
		}
		dept.Name = name
	}
	if input.Description != nil {
		dept.Description = strings.TrimSpace(*input.Description)
	}
	if input.IsActive != nil {
		dept.IsActive = *input.IsActive
	}
	if err := s.departments.Update(ctx, dept); err != nil {
		return nil, apperrors.MapError(err)
	}
	return dept, nil
}

// CreateStaff onboards a staff member. Non-admin roles must belong to an
// active department so they can participate in assignment.
func (s *DirectoryService) CreateStaff(ctx context.Context, viewer domain.Viewer, input StaffInput) (*domain.StaffMember, error) {
	if viewer.Role != domain.ViewerRoleAdmin {
		return nil, apperrors.NewAuthorizationError("staff management requires admin role")
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.NewValidationError("staff name required", nil)
	}
	if !validStaffRole(input.Role) {
		return nil, apperrors.NewValidationError("unknown staff role", map[string]any{"role": input.Role})
	}
	if input.Role != domain.StaffRoleAdmin && input.DepartmentID == nil {
		return nil, apperrors.NewValidationError("department required for non-admin staff", nil)
	}
	if input.DepartmentID != nil {
		dept, err := s.departments.GetByID(ctx, *input.DepartmentID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, apperrors.NewValidationError("unknown department", map[string]any{"department_id": *input.DepartmentID})
			}
			return nil, apperrors.MapError(err)
		}
		if !dept.IsActive {
			return nil, apperrors.NewValidationError("department inactive", map[string]any{"department_id": dept.ID})
		}
	}
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if _, err := s.staff.GetByEmail(ctx, email); err == nil {
		return nil, apperrors.NewValidationError("email already registered", map[string]any{"email": email})
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.MapError(err)
	}
	if len(input.Password) < 8 {
		return nil, apperrors.NewValidationError("password must be at least 8 characters", nil)
	}
	hash, err := auth.HashPassword(input.Password, s.bcryptCost)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	member := &domain.StaffMember{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         input.Role,
		DepartmentID: input.DepartmentID,
		Active:       true,
	}
	if err := s.staff.Create(ctx, member); err != nil {
		return nil, apperrors.MapError(err)
	}
	return member, nil
}

func validStaffRole(role domain.StaffRole) bool {
	switch role {
	case domain.StaffRoleEmployee, domain.StaffRoleDeptLead, domain.StaffRoleAdmin:
		return true
	}
	return false
}
