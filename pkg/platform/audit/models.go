package audit

import (
	"context"
	"time"

	id "safecircle/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose so stores
// can apply different retention and routing.
type EventCategory string

const (
	// CategoryCompliance covers escalation lifecycle changes that form the
	// accountability record of who did what to an incident.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers rejected or suspicious actions.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers delivery outcomes and background activity.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category     EventCategory
	Timestamp    time.Time
	UserID       id.UserID // user the event is about (actor or recipient)
	EscalationID string
	Subject      string
	Action       string
	Decision     string
	Reason       string
	RequestID    string
	ClientIP     string
	UserAgent    string
	// ActorID is "system" for timer-driven actions.
	ActorID string
}

type AuditEvent string

const (
	EventEscalationCreated     AuditEvent = "escalation_created"
	EventEscalationEscalated   AuditEvent = "escalation_escalated"
	EventEscalationResolved    AuditEvent = "escalation_resolved"
	EventStatusChanged         AuditEvent = "escalation_status_changed"
	EventSeverityChanged       AuditEvent = "escalation_severity_changed"
	EventResponderAssigned     AuditEvent = "responder_assigned"
	EventAssignmentAcknowledge AuditEvent = "assignment_acknowledged"
	EventEscalationHandedOff   AuditEvent = "escalation_handed_off"
	EventResponderActionLogged AuditEvent = "responder_action_logged"

	EventPermissionDenied   AuditEvent = "permission_denied"
	EventTransitionRejected AuditEvent = "transition_rejected"

	EventDeliveryFailed       AuditEvent = "notification_delivery_failed"
	EventNotificationDropped  AuditEvent = "notification_dropped"
	EventNotificationDeferred AuditEvent = "notification_deferred"
	EventDigestFlushed        AuditEvent = "digest_flushed"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventEscalationCreated:     CategoryCompliance,
	EventEscalationEscalated:   CategoryCompliance,
	EventEscalationResolved:    CategoryCompliance,
	EventStatusChanged:         CategoryCompliance,
	EventSeverityChanged:       CategoryCompliance,
	EventResponderAssigned:     CategoryCompliance,
	EventAssignmentAcknowledge: CategoryCompliance,
	EventEscalationHandedOff:   CategoryCompliance,
	EventResponderActionLogged: CategoryCompliance,

	EventPermissionDenied:   CategorySecurity,
	EventTransitionRejected: CategorySecurity,

	EventDeliveryFailed:       CategoryOperations,
	EventNotificationDropped:  CategoryOperations,
	EventNotificationDeferred: CategoryOperations,
	EventDigestFlushed:        CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByUser(ctx context.Context, userID id.UserID) ([]Event, error)
	ListByEscalation(ctx context.Context, escalationID string) ([]Event, error)
}
