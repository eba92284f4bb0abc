package service

import (
	"github.com/spec-kit/request-desk/internal/domain"
	"github.com/spec-kit/request-desk/internal/repository"
)

// The capability matrix. Every role-conditional decision in the system goes
// through these functions; handlers and services never re-derive it.
//
//	admin      all requests, any valid edge incl. cancel, assign anywhere, all notes
//	dept_lead  own department's + self-assigned, valid edges, assign within dept, all notes
//	employee   self-assigned only, valid edges, no assign, all notes
//	requester  self-created only, no transitions, no assign, external notes only

// CanView reports whether the viewer may see the request at all. Callers
// translate a false result into NOT_FOUND, never AUTHORIZATION_ERROR, so
// out-of-scope ids are indistinguishable from unknown ones.
func CanView(viewer domain.Viewer, req *domain.Request) bool {
	switch viewer.Role {
	case domain.ViewerRoleAdmin:
		return true
	case domain.ViewerRoleDeptLead:
		if req.AssigneeID != nil && *req.AssigneeID == viewer.ID {
			return true
		}
		return viewer.DepartmentID != nil && req.DepartmentID != nil && *viewer.DepartmentID == *req.DepartmentID
	case domain.ViewerRoleEmployee:
		return req.AssigneeID != nil && *req.AssigneeID == viewer.ID
	case domain.ViewerRoleRequester:
		return req.RequesterID == viewer.ID
	}
	return false
}

// CanTransition reports whether the viewer may move a visible request to
// target. Edge validity is checked separately by the transition table.
func CanTransition(viewer domain.Viewer, target domain.RequestStatus) bool {
	if viewer.Role == domain.ViewerRoleRequester {
		return false
	}
	if target == domain.RequestStatusCancelled {
		return viewer.Role == domain.ViewerRoleAdmin
	}
	return true
}

// CanAssign reports whether the viewer may assign a request to the given
// assignee within the given department.
func CanAssign(viewer domain.Viewer, assignee *domain.StaffMember, departmentID string) bool {
	switch viewer.Role {
	case domain.ViewerRoleAdmin:
		return true
	case domain.ViewerRoleDeptLead:
		if viewer.DepartmentID == nil || *viewer.DepartmentID != departmentID {
			return false
		}
		return assignee.DepartmentID != nil && *assignee.DepartmentID == departmentID
	}
	return false
}

// ScopeFor translates the viewer's visibility into a listing restriction.
func ScopeFor(viewer domain.Viewer) repository.RequestScope {
	switch viewer.Role {
	case domain.ViewerRoleAdmin:
		return repository.RequestScope{}
	case domain.ViewerRoleDeptLead:
		return repository.RequestScope{
			AssigneeID:   &viewer.ID,
			DepartmentID: viewer.DepartmentID,
		}
	case domain.ViewerRoleEmployee:
		return repository.RequestScope{AssigneeID: &viewer.ID}
	default:
		return repository.RequestScope{RequesterID: &viewer.ID}
	}
}

// ProjectActivities filters a request's activity stream for the viewer.
// Status changes, assignments and escalations always pass through; internal
// notes are dropped for requesters.
func ProjectActivities(viewer domain.Viewer, activities []domain.Activity) []domain.Activity {
	visible := make([]domain.Activity, 0, len(activities))
	for _, activity := range activities {
		if activity.Type == domain.ActivityNote && activity.IsInternal && !viewer.Staff() {
			continue
		}
		visible = append(visible, activity)
	}
	return visible
}
