// Package domain holds identifier types shared across modules.
//
// IDs are distinct named UUID types so an EscalationID can never be passed
// where a UserID is expected. Parse* functions are the trust boundary: they
// reject empty, malformed and nil UUIDs with CodeInvalidInput.
package domain

import (
	"github.com/google/uuid"

	dErrors "safecircle/pkg/domain-errors"
)

type (
	UserID         uuid.UUID
	EscalationID   uuid.UUID
	AssignmentID   uuid.UUID
	NotificationID uuid.UUID
)

func parseUUID(kind, s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s cannot be empty", kind)
	}
	if len(s) > 64 {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "invalid %s", kind)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "invalid %s", kind)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "%s cannot be nil", kind)
	}
	return u, nil
}

func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID("user_id", s)
	return UserID(u), err
}

func ParseEscalationID(s string) (EscalationID, error) {
	u, err := parseUUID("escalation_id", s)
	return EscalationID(u), err
}

func ParseAssignmentID(s string) (AssignmentID, error) {
	u, err := parseUUID("assignment_id", s)
	return AssignmentID(u), err
}

func ParseNotificationID(s string) (NotificationID, error) {
	u, err := parseUUID("notification_id", s)
	return NotificationID(u), err
}

func NewEscalationID() EscalationID     { return EscalationID(uuid.New()) }
func NewAssignmentID() AssignmentID     { return AssignmentID(uuid.New()) }
func NewNotificationID() NotificationID { return NotificationID(uuid.New()) }

func (id UserID) String() string         { return uuid.UUID(id).String() }
func (id EscalationID) String() string   { return uuid.UUID(id).String() }
func (id AssignmentID) String() string   { return uuid.UUID(id).String() }
func (id NotificationID) String() string { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool         { return uuid.UUID(id) == uuid.Nil }
func (id EscalationID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id AssignmentID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id NotificationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// Text encoding keeps IDs as canonical UUID strings in JSON and YAML.

func (id UserID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id *UserID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id EscalationID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id *EscalationID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id AssignmentID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id *AssignmentID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id NotificationID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id *NotificationID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}
