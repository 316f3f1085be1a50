package statemachine

import (
	"time"

	"safecircle/internal/escalation/models"
)

const (
	ReasonCritical = "Critical severity — immediate professional response required"
	ReasonHigh     = "High severity — family escalation required"
	ReasonSLA      = "Acknowledgment SLA elapsed"
)

// AutoEscalationTarget is the floor level a severity demands, if any.
func AutoEscalationTarget(sev models.Severity) (models.Level, string, bool) {
	switch sev {
	case models.SeverityCritical:
		return models.LevelProfessional, ReasonCritical, true
	case models.SeverityHigh:
		return models.LevelFamily, ReasonHigh, true
	default:
		return 0, "", false
	}
}

// EvaluateAutoEscalation raises e to the level its severity demands. It never
// lowers a level and is a no-op when e is already at or past the target, so
// repeated runs are idempotent. The jump is recorded as a single entry.
func EvaluateAutoEscalation(e *models.EscalationEvent, now time.Time) (*models.EscalationEntry, bool) {
	if e.IsResolved() {
		return nil, false
	}
	target, reason, ok := AutoEscalationTarget(e.Severity)
	if !ok || target <= e.CurrentLevel {
		return nil, false
	}
	entry := transition(e, target, reason, models.ActionAutoEscalate, models.SystemActor, nil, now)
	return &entry, true
}

func transition(e *models.EscalationEvent, to models.Level, reason string, action models.EscalationAction, by string, assignTo *models.ResponderAssignment, now time.Time) models.EscalationEntry {
	entry := models.EscalationEntry{
		FromLevel:   e.CurrentLevel,
		ToLevel:     to,
		Reason:      reason,
		Action:      action,
		EscalatedBy: by,
		EscalatedAt: now,
	}
	if assignTo != nil {
		u := assignTo.UserID
		entry.AssignedTo = &u
	}
	e.EscalationPath = append(e.EscalationPath, entry)
	e.CurrentLevel = to
	at := now
	e.EscalatedAt = &at
	e.UpdatedAt = now
	return entry
}
