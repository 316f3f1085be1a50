package models

import (
	"time"

	id "safecircle/pkg/domain"
)

type DomainEventType string

const (
	EventEscalationCreated      DomainEventType = "EscalationCreated"
	EventResponderAssigned      DomainEventType = "ResponderAssigned"
	EventEscalationEscalated    DomainEventType = "EscalationEscalated"
	EventEscalationResolved     DomainEventType = "EscalationResolved"
	EventAssignmentAcknowledged DomainEventType = "AssignmentAcknowledged"
)

// DomainEvent is emitted by the state machine after a successful mutation.
// Snapshot is the committed state after the mutation that produced it.
type DomainEvent struct {
	Type         DomainEventType      `json:"type"`
	EscalationID id.EscalationID      `json:"escalation_id"`
	Version      int64                `json:"version"`
	Sequence     int                  `json:"sequence"`
	OccurredAt   time.Time            `json:"occurred_at"`
	Actor        string               `json:"actor"`
	Entry        *EscalationEntry     `json:"entry,omitempty"`
	Assignment   *ResponderAssignment `json:"assignment,omitempty"`
	Snapshot     *EscalationEvent     `json:"snapshot"`
}
