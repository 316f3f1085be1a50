package models

import (
	"time"

	id "safecircle/pkg/domain"
)

// ResponderAssignment is owned by its EscalationEvent and only changes
// through state machine operations.
type ResponderAssignment struct {
	AssignmentID   id.AssignmentID  `json:"assignment_id"`
	UserID         id.UserID        `json:"user_id"`
	Role           Role             `json:"role"`
	Level          Level            `json:"level"`
	AssignedBy     id.UserID        `json:"assigned_by"`
	AssignedAt     time.Time        `json:"assigned_at"`
	AcknowledgedAt *time.Time       `json:"acknowledged_at,omitempty"`
	Status         AssignmentStatus `json:"status"`
	HandoffReason  string           `json:"handoff_reason,omitempty"`
}

// EscalationEntry records one level transition. Entries are never mutated.
type EscalationEntry struct {
	FromLevel   Level            `json:"from_level"`
	ToLevel     Level            `json:"to_level"`
	Reason      string           `json:"reason"`
	Action      EscalationAction `json:"action"`
	EscalatedBy string           `json:"escalated_by"`
	EscalatedAt time.Time        `json:"escalated_at"`
	AssignedTo  *id.UserID       `json:"assigned_to,omitempty"`
}

// ResponderNote is an append-only action log line written by a responder.
type ResponderNote struct {
	AssignmentID id.AssignmentID `json:"assignment_id"`
	AuthorID     id.UserID       `json:"author_id"`
	Action       string          `json:"action"`
	LoggedAt     time.Time       `json:"logged_at"`
}

// EscalationEvent is the aggregate root. Version is the optimistic
// concurrency token; stores bump it on every successful save.
type EscalationEvent struct {
	ID             id.EscalationID       `json:"id"`
	Title          string                `json:"title"`
	Context        Context               `json:"context"`
	Severity       Severity              `json:"severity"`
	CurrentLevel   Level                 `json:"current_level"`
	Status         Status                `json:"status"`
	CreatedBy      id.UserID             `json:"created_by"`
	CurrentOwner   id.UserID             `json:"current_owner"`
	Responders     []ResponderAssignment `json:"responders"`
	EscalationPath []EscalationEntry     `json:"escalation_path"`
	Notes          []ResponderNote       `json:"notes"`
	EscalatedAt    *time.Time            `json:"escalated_at,omitempty"`
	ResolvedAt     *time.Time            `json:"resolved_at,omitempty"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
	Version        int64                 `json:"version"`
}

func (e *EscalationEvent) IsResolved() bool {
	return e.Status == StatusResolved
}

// Assignment returns the assignment with the given id and its index, or -1.
func (e *EscalationEvent) Assignment(assignmentID id.AssignmentID) (*ResponderAssignment, int) {
	for i := range e.Responders {
		if e.Responders[i].AssignmentID == assignmentID {
			return &e.Responders[i], i
		}
	}
	return nil, -1
}

// ActiveAssignee reports whether userID holds a non-handed-off assignment.
func (e *EscalationEvent) ActiveAssignee(userID id.UserID) (*ResponderAssignment, bool) {
	for i := range e.Responders {
		a := &e.Responders[i]
		if a.UserID == userID && a.Status != AssignmentHandedOff {
			return a, true
		}
	}
	return nil, false
}

// AcknowledgedAtLevel reports whether any responder assigned at level has
// acknowledged.
func (e *EscalationEvent) AcknowledgedAtLevel(level Level) bool {
	for _, a := range e.Responders {
		if a.Level == level && a.Status == AssignmentAcknowledged {
			return true
		}
	}
	return false
}

// ResponderUserIDs returns the distinct users with an assignment, in
// assignment order.
func (e *EscalationEvent) ResponderUserIDs() []id.UserID {
	seen := make(map[id.UserID]struct{}, len(e.Responders))
	out := make([]id.UserID, 0, len(e.Responders))
	for _, a := range e.Responders {
		if _, ok := seen[a.UserID]; ok {
			continue
		}
		seen[a.UserID] = struct{}{}
		out = append(out, a.UserID)
	}
	return out
}

// Involves reports whether userID created, owns or is assigned to the event.
func (e *EscalationEvent) Involves(userID id.UserID) bool {
	if e.CreatedBy == userID || e.CurrentOwner == userID {
		return true
	}
	for _, a := range e.Responders {
		if a.UserID == userID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so snapshots handed to readers never alias the
// state being mutated.
func (e *EscalationEvent) Clone() *EscalationEvent {
	if e == nil {
		return nil
	}
	c := *e
	c.Responders = make([]ResponderAssignment, len(e.Responders))
	for i, a := range e.Responders {
		a.AcknowledgedAt = cloneTime(a.AcknowledgedAt)
		c.Responders[i] = a
	}
	c.EscalationPath = make([]EscalationEntry, len(e.EscalationPath))
	for i, entry := range e.EscalationPath {
		if entry.AssignedTo != nil {
			u := *entry.AssignedTo
			entry.AssignedTo = &u
		}
		c.EscalationPath[i] = entry
	}
	c.Notes = append([]ResponderNote(nil), e.Notes...)
	c.EscalatedAt = cloneTime(e.EscalatedAt)
	c.ResolvedAt = cloneTime(e.ResolvedAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
