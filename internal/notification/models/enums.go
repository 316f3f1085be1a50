// Package models holds notification payloads, delivery records and user
// notification preferences.
package models

import (
	"strings"

	escmodels "safecircle/internal/escalation/models"
	dErrors "safecircle/pkg/domain-errors"
)

type Channel string

const (
	ChannelWeb   Channel = "WEB"
	ChannelEmail Channel = "EMAIL"
	ChannelSMS   Channel = "SMS"
	ChannelPush  Channel = "PUSH"
)

// AllChannels is the fan-out order for a recipient.
var AllChannels = []Channel{ChannelWeb, ChannelPush, ChannelEmail, ChannelSMS}

func ParseChannel(s string) (Channel, error) {
	c := Channel(strings.ToUpper(strings.TrimSpace(s)))
	switch c {
	case ChannelWeb, ChannelEmail, ChannelSMS, ChannelPush:
		return c, nil
	}
	return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown channel %q", s)
}

// Priority ordering LOW < NORMAL < HIGH < CRITICAL is contractual.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

var priorityNames = [...]string{"LOW", "NORMAL", "HIGH", "CRITICAL"}

func (p Priority) String() string {
	if p < PriorityLow || p > PriorityCritical {
		return "UNKNOWN"
	}
	return priorityNames[p]
}

func ParsePriority(s string) (Priority, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for i, n := range priorityNames {
		if n == name {
			return Priority(i), nil
		}
	}
	return 0, dErrors.Newf(dErrors.CodeInvalidInput, "unknown priority %q", s)
}

func (p Priority) MarshalText() ([]byte, error) {
	if p < PriorityLow || p > PriorityCritical {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "invalid priority %d", int(p))
	}
	return []byte(p.String()), nil
}

func (p *Priority) UnmarshalText(b []byte) error {
	parsed, err := ParsePriority(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// PriorityForSeverity maps CRITICAL to CRITICAL, HIGH to HIGH, MEDIUM to
// NORMAL and anything else to LOW.
func PriorityForSeverity(sev escmodels.Severity) Priority {
	switch sev {
	case escmodels.SeverityCritical:
		return PriorityCritical
	case escmodels.SeverityHigh:
		return PriorityHigh
	case escmodels.SeverityMedium:
		return PriorityNormal
	default:
		return PriorityLow
	}
}

type Type string

const (
	TypeEscalationCreated   Type = "ESCALATION_CREATED"
	TypeResponderAssigned   Type = "RESPONDER_ASSIGNED"
	TypeEscalationEscalated Type = "ESCALATION_ESCALATED"
	TypeEscalationResolved  Type = "ESCALATION_RESOLVED"
	TypeDigest              Type = "DIGEST"
)

// TypeForEvent returns the notification type produced by a domain event.
// Events that notify nobody report false.
func TypeForEvent(t escmodels.DomainEventType) (Type, bool) {
	switch t {
	case escmodels.EventEscalationCreated:
		return TypeEscalationCreated, true
	case escmodels.EventResponderAssigned:
		return TypeResponderAssigned, true
	case escmodels.EventEscalationEscalated:
		return TypeEscalationEscalated, true
	case escmodels.EventEscalationResolved:
		return TypeEscalationResolved, true
	default:
		return "", false
	}
}

type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "PENDING"
	DeliverySent    DeliveryStatus = "SENT"
	DeliveryFailed  DeliveryStatus = "FAILED"
	DeliveryBounced DeliveryStatus = "BOUNCED"
)

func ParseDeliveryStatus(s string) (DeliveryStatus, error) {
	st := DeliveryStatus(strings.ToUpper(strings.TrimSpace(s)))
	switch st {
	case DeliveryPending, DeliverySent, DeliveryFailed, DeliveryBounced:
		return st, nil
	}
	return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown delivery status %q", s)
}

// IsFailure reports statuses surfaced to operators.
func (s DeliveryStatus) IsFailure() bool {
	return s == DeliveryFailed || s == DeliveryBounced
}

type DigestFrequency string

const (
	DigestHourly DigestFrequency = "HOURLY"
	DigestDaily  DigestFrequency = "DAILY"
	DigestWeekly DigestFrequency = "WEEKLY"
)

var AllDigestFrequencies = []DigestFrequency{DigestHourly, DigestDaily, DigestWeekly}

func ParseDigestFrequency(s string) (DigestFrequency, error) {
	f := DigestFrequency(strings.ToUpper(strings.TrimSpace(s)))
	switch f {
	case DigestHourly, DigestDaily, DigestWeekly:
		return f, nil
	}
	return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown digest frequency %q", s)
}

// DeferReason explains why a payload was not delivered immediately.
type DeferReason string

const (
	DeferQuietHours DeferReason = "quiet_hours"
	DeferRateLimit  DeferReason = "rate_limited"
)
