package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spec-kit/request-desk/internal/auth"
	"github.com/spec-kit/request-desk/internal/domain"
	apperrors "github.com/spec-kit/request-desk/pkg/util/errorutil"
)

type directoryFixture struct {
	service     *DirectoryService
	staff       *memStaffRepo
	departments *memDepartmentRepo
}

func newDirectoryFixture(t *testing.T) *directoryFixture {
	t.Helper()
	staff := newMemStaffRepo()
	departments := newMemDepartmentRepo()
	svc := NewDirectoryService(DirectoryDependencies{
		StaffRepo:      staff,
		DepartmentRepo: departments,
		BcryptCost:     4,
	})
	return &directoryFixture{service: svc, staff: staff, departments: departments}
}

func (f *directoryFixture) seedDepartment(t *testing.T, name string, active bool) *domain.Department {
	t.Helper()
	dept := &domain.Department{Name: name, IsActive: active}
	require.NoError(t, f.departments.Create(context.Background(), dept))
	return dept
}

func (f *directoryFixture) seedStaff(t *testing.T, email string, role domain.StaffRole, departmentID *string, active bool) *domain.StaffMember {
	t.Helper()
	member := &domain.StaffMember{
		Name:         "Staffer",
		Email:        email,
		PasswordHash: "irrelevant",
		Role:         role,
		DepartmentID: departmentID,
		Active:       active,
	}
	require.NoError(t, f.staff.Create(context.Background(), member))
	return member
}

func TestDirectoryListingsRequireStaff(t *testing.T) {
	f := newDirectoryFixture(t)
	ctx := context.Background()

	_, err := f.service.ListDepartments(ctx, requesterViewer("user-1"))
	require.Equal(t, "AUTHORIZATION_ERROR", apperrors.CodeOf(err))

	_, err = f.service.ListStaff(ctx, requesterViewer("user-1"), StaffListInput{})
	require.Equal(t, "AUTHORIZATION_ERROR", apperrors.CodeOf(err))
}

func TestListDepartmentsReturnsOnlyActive(t *testing.T) {
	f := newDirectoryFixture(t)
	f.seedDepartment(t, "IT Support", true)
	f.seedDepartment(t, "Legacy Ops", false)

	depts, err := f.service.ListDepartments(context.Background(), employeeViewer("staff-1"))
	require.NoError(t, err)
	require.Len(t, depts, 1)
	require.Equal(t, "IT Support", depts[0].Name)
}

func TestListStaffFiltersByDepartmentAndActivity(t *testing.T) {
	f := newDirectoryFixture(t)
	itDept := f.seedDepartment(t, "IT Support", true)
	design := f.seedDepartment(t, "Design", true)
	inIT := f.seedStaff(t, "it@example.com", domain.StaffRoleEmployee, &itDept.ID, true)
	f.seedStaff(t, "design@example.com", domain.StaffRoleEmployee, &design.ID, true)
	f.seedStaff(t, "gone@example.com", domain.StaffRoleEmployee, &itDept.ID, false)

	members, err := f.service.ListStaff(context.Background(), adminViewer("admin-1"), StaffListInput{
		DepartmentID: &itDept.ID,
	})
	require.NoError(t, err)
	require.Len(t, members, 1)
	require.Equal(t, inIT.ID, members[0].ID)
}

func TestCreateDepartmentRequiresAdmin(t *testing.T) {
	f := newDirectoryFixture(t)
	ctx := context.Background()

	_, err := f.service.CreateDepartment(ctx, employeeViewer("staff-1"), DepartmentInput{Name: "IT Support"})
	require.Equal(t, "AUTHORIZATION_ERROR", apperrors.CodeOf(err))

	_, err = f.service.CreateDepartment(ctx, adminViewer("admin-1"), DepartmentInput{Name: "   "})
	require.Equal(t, "VALIDATION_ERROR", apperrors.CodeOf(err))

	dept, err := f.service.CreateDepartment(ctx, adminViewer("admin-1"), DepartmentInput{Name: " IT Support "})
	require.NoError(t, err)
	require.Equal(t, "IT Support", dept.Name)
	require.True(t, dept.IsActive)
	require.NotEmpty(t, dept.ID)
}

func TestUpdateDepartment(t *testing.T) {
	f := newDirectoryFixture(t)
	ctx := context.Background()
	dept := f.seedDepartment(t, "IT Support", true)

	_, err := f.service.UpdateDepartment(ctx, adminViewer("admin-1"), "missing", DepartmentUpdateInput{})
	require.Equal(t, "NOT_FOUND", apperrors.CodeOf(err))

	inactive := false
	renamed := "IT Operations"
	updated, err := f.service.UpdateDepartment(ctx, adminViewer("admin-1"), dept.ID, DepartmentUpdateInput{
		Name:     &renamed,
		IsActive: &inactive,
	})
	require.NoError(t, err)
	require.Equal(t, "IT Operations", updated.Name)
	require.False(t, updated.IsActive)

	depts, err := f.service.ListDepartments(ctx, adminViewer("admin-1"))
	require.NoError(t, err)
	require.Empty(t, depts)
}

func TestCreateStaffValidation(t *testing.T) {
	f := newDirectoryFixture(t)
	ctx := context.Background()
	admin := adminViewer("admin-1")
	itDept := f.seedDepartment(t, "IT Support", true)
	closed := f.seedDepartment(t, "Legacy Ops", false)
	f.seedStaff(t, "taken@example.com", domain.StaffRoleEmployee, &itDept.ID, true)

	_, err := f.service.CreateStaff(ctx, employeeViewer("staff-1"), StaffInput{})
	require.Equal(t, "AUTHORIZATION_ERROR", apperrors.CodeOf(err))

	base := StaffInput{
		Name:         "New Staffer",
		Email:        "new@example.com",
		Password:     "long-enough",
		Role:         domain.StaffRoleEmployee,
		DepartmentID: &itDept.ID,
	}

	bad := base
	bad.Role = domain.StaffRole("INTERN")
	_, err = f.service.CreateStaff(ctx, admin, bad)
	require.Equal(t, "VALIDATION_ERROR", apperrors.CodeOf(err))

	bad = base
	bad.DepartmentID = nil
	_, err = f.service.CreateStaff(ctx, admin, bad)
	require.Equal(t, "VALIDATION_ERROR", apperrors.CodeOf(err))

	bad = base
	bad.DepartmentID = &closed.ID
	_, err = f.service.CreateStaff(ctx, admin, bad)
	require.Equal(t, "VALIDATION_ERROR", apperrors.CodeOf(err))

	bad = base
	bad.Email = "TAKEN@example.com"
	_, err = f.service.CreateStaff(ctx, admin, bad)
	require.Equal(t, "VALIDATION_ERROR", apperrors.CodeOf(err))

	bad = base
	bad.Password = "short"
	_, err = f.service.CreateStaff(ctx, admin, bad)
	require.Equal(t, "VALIDATION_ERROR", apperrors.CodeOf(err))
}

func TestCreateStaffHashesPasswordAndNormalizesEmail(t *testing.T) {
	f := newDirectoryFixture(t)
	itDept := f.seedDepartment(t, "IT Support", true)

	member, err := f.service.CreateStaff(context.Background(), adminViewer("admin-1"), StaffInput{
		Name:         " New Staffer ",
		Email:        " New@Example.com ",
		Password:     "long-enough",
		Role:         domain.StaffRoleEmployee,
		DepartmentID: &itDept.ID,
	})
	require.NoError(t, err)
	require.Equal(t, "New Staffer", member.Name)
	require.Equal(t, "new@example.com", member.Email)
	require.True(t, member.Active)
	require.NotEqual(t, "long-enough", member.PasswordHash)
	require.NoError(t, auth.ComparePassword(member.PasswordHash, "long-enough"))
}

func TestCreateStaffAdminWithoutDepartment(t *testing.T) {
	f := newDirectoryFixture(t)

	member, err := f.service.CreateStaff(context.Background(), adminViewer("admin-1"), StaffInput{
		Name:     "Second Admin",
		Email:    "admin2@example.com",
		Password: "long-enough",
		Role:     domain.StaffRoleAdmin,
	})
	require.NoError(t, err)
	require.Nil(t, member.DepartmentID)
}
