package statemachine

import (
	"safecircle/internal/escalation/models"
	id "safecircle/pkg/domain"
	dErrors "safecircle/pkg/domain-errors"
)

// Permission names what an actor is trying to do to an event.
type Permission int

const (
	// PermManage covers escalate, status and severity changes and assigning responders.
	PermManage Permission = iota
	PermAcknowledge
	PermHandoff
	PermLogAction
)

func (p Permission) String() string {
	switch p {
	case PermManage:
		return "manage"
	case PermAcknowledge:
		return "acknowledge"
	case PermHandoff:
		return "handoff"
	case PermLogAction:
		return "log_action"
	default:
		return "unknown"
	}
}

// Authorize is the only permission check consulted by state machine
// operations. Assignment scoped permissions resolve assignmentID first and
// fail with not found when it is absent.
func Authorize(e *models.EscalationEvent, actor id.UserID, perm Permission, assignmentID id.AssignmentID) error {
	if actor.IsNil() {
		return dErrors.New(dErrors.CodeUnauthorized, "actor is required")
	}
	switch perm {
	case PermManage:
		if IsManager(e, actor) {
			return nil
		}
		return denied(perm)
	case PermAcknowledge, PermHandoff, PermLogAction:
		a, _ := e.Assignment(assignmentID)
		if a == nil {
			return dErrors.New(dErrors.CodeNotFound, "assignment not found")
		}
		if a.UserID == actor {
			return nil
		}
		if perm != PermAcknowledge && IsManager(e, actor) {
			return nil
		}
		return denied(perm)
	default:
		return denied(perm)
	}
}

// IsManager reports whether actor created or owns the event, or holds an
// active organizer assignment on it.
func IsManager(e *models.EscalationEvent, actor id.UserID) bool {
	if actor.IsNil() {
		return false
	}
	if actor == e.CreatedBy || actor == e.CurrentOwner {
		return true
	}
	a, ok := e.ActiveAssignee(actor)
	return ok && a.Role == models.RoleOrganizer
}

// CanEscalate answers the permission query with the same rules the
// EscalateToNextLevel mutation enforces.
func CanEscalate(e *models.EscalationEvent, actor id.UserID) bool {
	if e.IsResolved() {
		return false
	}
	if _, ok := models.NextLevel(e.CurrentLevel); !ok {
		return false
	}
	return Authorize(e, actor, PermManage, id.AssignmentID{}) == nil
}

// CanManage reports whether actor may change status, severity or responders.
func CanManage(e *models.EscalationEvent, actor id.UserID) bool {
	return !e.IsResolved() && Authorize(e, actor, PermManage, id.AssignmentID{}) == nil
}

func denied(perm Permission) error {
	return dErrors.Newf(dErrors.CodeForbidden, "actor is not permitted to %s this escalation", perm)
}
