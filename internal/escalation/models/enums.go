package models

import (
	"fmt"
	"strings"

	dErrors "safecircle/pkg/domain-errors"
)

type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

var AllSeverities = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

func ParseSeverity(s string) (Severity, error) {
	sev := Severity(strings.ToUpper(strings.TrimSpace(s)))
	if !sev.IsValid() {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown severity %q", s)
	}
	return sev, nil
}

func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Level is a rung of the escalation hierarchy. The ordinal values are part of
// the external contract and must not be reordered.
type Level int

const (
	LevelIndividual Level = iota
	LevelFamily
	LevelCommunity
	LevelProfessional
)

var AllLevels = []Level{LevelIndividual, LevelFamily, LevelCommunity, LevelProfessional}

var levelNames = [...]string{"INDIVIDUAL", "FAMILY", "COMMUNITY", "PROFESSIONAL"}

func (l Level) String() string {
	if !l.IsValid() {
		return fmt.Sprintf("Level(%d)", int(l))
	}
	return levelNames[l]
}

func (l Level) IsValid() bool {
	return l >= LevelIndividual && l <= LevelProfessional
}

func ParseLevel(s string) (Level, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for i, n := range levelNames {
		if n == name {
			return Level(i), nil
		}
	}
	return 0, dErrors.Newf(dErrors.CodeInvalidInput, "unknown escalation level %q", s)
}

func (l Level) MarshalText() ([]byte, error) {
	if !l.IsValid() {
		return nil, fmt.Errorf("invalid escalation level %d", int(l))
	}
	return []byte(levelNames[l]), nil
}

func (l *Level) UnmarshalText(b []byte) error {
	parsed, err := ParseLevel(string(b))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// NextLevel returns the level above l, or false at the top of the hierarchy.
func NextLevel(l Level) (Level, bool) {
	if !l.IsValid() || l == LevelProfessional {
		return 0, false
	}
	return l + 1, true
}

type Status string

const (
	StatusOpen       Status = "OPEN"
	StatusInProgress Status = "IN_PROGRESS"
	StatusResolved   Status = "RESOLVED"
)

func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	switch st {
	case StatusOpen, StatusInProgress, StatusResolved:
		return st, nil
	}
	return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown status %q", s)
}

type Context string

const (
	ContextHealth    Context = "health"
	ContextSafety    Context = "safety"
	ContextProperty  Context = "property"
	ContextEmotional Context = "emotional"
	ContextFinancial Context = "financial"
	ContextLegal     Context = "legal"
	ContextOther     Context = "other"
)

var AllContexts = []Context{
	ContextHealth, ContextSafety, ContextProperty, ContextEmotional,
	ContextFinancial, ContextLegal, ContextOther,
}

func ParseContext(s string) (Context, error) {
	c := Context(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllContexts {
		if c == known {
			return c, nil
		}
	}
	return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown escalation context %q", s)
}

type Role string

const (
	RoleOrganizer Role = "ORGANIZER"
	RoleResponder Role = "RESPONDER"
)

func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	switch r {
	case RoleOrganizer, RoleResponder:
		return r, nil
	}
	return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown responder role %q", s)
}

type AssignmentStatus string

const (
	AssignmentPending      AssignmentStatus = "PENDING"
	AssignmentAcknowledged AssignmentStatus = "ACKNOWLEDGED"
	AssignmentHandedOff    AssignmentStatus = "HANDED_OFF"
)

type EscalationAction string

const (
	ActionAutoEscalate   EscalationAction = "AUTO_ESCALATE"
	ActionManualEscalate EscalationAction = "MANUAL_ESCALATE"
)

// SystemActor is recorded as escalatedBy for timer and severity driven transitions.
const SystemActor = "system"
