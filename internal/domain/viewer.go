package domain

// ViewerRole is the single capability vocabulary used by the visibility
// layer. Staff roles map onto it directly; end-users are always REQUESTER.
type ViewerRole string

const (
	ViewerRoleAdmin     ViewerRole = "ADMIN"
	ViewerRoleDeptLead  ViewerRole = "DEPT_LEAD"
	ViewerRoleEmployee  ViewerRole = "EMPLOYEE"
	ViewerRoleRequester ViewerRole = "REQUESTER"
)

// Viewer identifies the caller of a visibility-scoped operation.
type Viewer struct {
	ID           string
	Role         ViewerRole
	DepartmentID *string
}

// Staff reports whether the viewer may see internal notes.
func (v Viewer) Staff() bool {
	return v.Role == ViewerRoleAdmin || v.Role == ViewerRoleDeptLead || v.Role == ViewerRoleEmployee
}

// ViewerForStaff builds a Viewer from an authenticated staff member.
func ViewerForStaff(staff *StaffMember) Viewer {
	viewer := Viewer{ID: staff.ID, DepartmentID: staff.DepartmentID}
	switch staff.Role {
	case StaffRoleAdmin:
		viewer.Role = ViewerRoleAdmin
	case StaffRoleDeptLead:
		viewer.Role = ViewerRoleDeptLead
	default:
		viewer.Role = ViewerRoleEmployee
	}
	return viewer
}

// ViewerForUser builds a Viewer for an end-user requester.
func ViewerForUser(user *User) Viewer {
	return Viewer{ID: user.ID, Role: ViewerRoleRequester}
}
