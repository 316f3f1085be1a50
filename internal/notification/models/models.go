package models

import (
	"maps"
	"time"

	escmodels "safecircle/internal/escalation/models"
	id "safecircle/pkg/domain"
)

// Payload is built per recipient for one domain event and handed to
// transports. DedupKey is stable across retries and redeliveries.
type Payload struct {
	NotificationID id.NotificationID  `json:"notification_id"`
	UserID         id.UserID          `json:"user_id"`
	EscalationID   id.EscalationID    `json:"escalation_id"`
	Type           Type               `json:"type"`
	Priority       Priority           `json:"priority"`
	Title          string             `json:"title"`
	Body           string             `json:"body"`
	Context        escmodels.Context  `json:"context"`
	Severity       escmodels.Severity `json:"severity"`
	Level          escmodels.Level    `json:"level"`
	Version        int64              `json:"version"`
	DedupKey       string             `json:"dedup_key"`
	CreatedAt      time.Time          `json:"created_at"`
	// Items is set on DIGEST payloads only, in enqueue order.
	Items []DigestItem `json:"items,omitempty"`
}

// DigestItem is a deferred payload waiting for the recipient's digest.
type DigestItem struct {
	Channel    Channel     `json:"channel"`
	Payload    Payload     `json:"payload"`
	Reason     DeferReason `json:"reason"`
	DeferredAt time.Time   `json:"deferred_at"`
}

type ChannelDelivery struct {
	Status            DeliveryStatus `json:"status"`
	Attempts          int            `json:"attempts"`
	LastError         string         `json:"last_error,omitempty"`
	ProviderMessageID string         `json:"provider_message_id,omitempty"`
	SentAt            *time.Time     `json:"sent_at,omitempty"`
	// Deferred is set while the channel waits for a digest or redelivery.
	Deferred  DeferReason `json:"deferred,omitempty"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Record is the persisted outcome of one payload across its channels.
type Record struct {
	ID           id.NotificationID           `json:"id"`
	UserID       id.UserID                   `json:"user_id"`
	EscalationID id.EscalationID             `json:"escalation_id"`
	Type         Type                        `json:"type"`
	Priority     Priority                    `json:"priority"`
	Title        string                      `json:"title"`
	Body         string                      `json:"body"`
	DedupKey     string                      `json:"dedup_key"`
	Deliveries   map[Channel]ChannelDelivery `json:"deliveries"`
	Read         bool                        `json:"read"`
	ReadAt       *time.Time                  `json:"read_at,omitempty"`
	ActionTaken  string                      `json:"action_taken,omitempty"`
	ActionAt     *time.Time                  `json:"action_at,omitempty"`
	CreatedAt    time.Time                   `json:"created_at"`
	UpdatedAt    time.Time                   `json:"updated_at"`
}

// NewRecord starts a record with every channel PENDING.
func NewRecord(p Payload, channels []Channel, now time.Time) *Record {
	r := &Record{
		ID:           p.NotificationID,
		UserID:       p.UserID,
		EscalationID: p.EscalationID,
		Type:         p.Type,
		Priority:     p.Priority,
		Title:        p.Title,
		Body:         p.Body,
		DedupKey:     p.DedupKey,
		Deliveries:   make(map[Channel]ChannelDelivery, len(channels)),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	for _, ch := range channels {
		r.Deliveries[ch] = ChannelDelivery{Status: DeliveryPending, UpdatedAt: now}
	}
	return r
}

// HasFailure reports whether any channel ended FAILED or BOUNCED.
func (r *Record) HasFailure() bool {
	for _, d := range r.Deliveries {
		if d.Status.IsFailure() {
			return true
		}
	}
	return false
}

func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.Deliveries = maps.Clone(r.Deliveries)
	return &c
}
