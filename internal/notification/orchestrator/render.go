package orchestrator

import (
	"fmt"
	"strings"

	escmodels "safecircle/internal/escalation/models"
	"safecircle/internal/notification/models"
)

func render(ev escmodels.DomainEvent, nt models.Type) (title, body string) {
	snap := ev.Snapshot
	switch nt {
	case models.TypeEscalationCreated:
		return "New escalation: " + snap.Title,
			fmt.Sprintf("%s %s escalation opened at %s level.", snap.Severity, snap.Context, snap.CurrentLevel)
	case models.TypeResponderAssigned:
		role, level := "", snap.CurrentLevel
		if ev.Assignment != nil {
			role, level = string(ev.Assignment.Role), ev.Assignment.Level
		}
		return "You were assigned to: " + snap.Title,
			fmt.Sprintf("Assigned as %s at %s level. Severity %s.", strings.ToLower(role), level, snap.Severity)
	case models.TypeEscalationEscalated:
		if ev.Entry == nil {
			return "Escalated: " + snap.Title, fmt.Sprintf("Now at %s level.", snap.CurrentLevel)
		}
		return fmt.Sprintf("Escalated to %s: %s", ev.Entry.ToLevel, snap.Title),
			fmt.Sprintf("Moved from %s to %s. Reason: %s", ev.Entry.FromLevel, ev.Entry.ToLevel, ev.Entry.Reason)
	case models.TypeEscalationResolved:
		return "Resolved: " + snap.Title, "The escalation was marked resolved."
	}
	return snap.Title, ""
}
