package service

import (
	"context"
	"time"

	"safecircle/internal/escalation/models"
	id "safecircle/pkg/domain"
	"safecircle/pkg/platform/clock"
)

const slaEscalationTimeout = 30 * time.Second

type slaTimer struct {
	timer clock.Timer
	gen   uint64
	level models.Level
}

// armAcknowledgmentTimer replaces the pending timer for e. Resolved events,
// events at the top of the hierarchy and severities without an SLA are left
// without a timer.
func (s *Service) armAcknowledgmentTimer(e *models.EscalationEvent) {
	s.timersMu.Lock()
	defer s.timersMu.Unlock()

	if t, ok := s.timers[e.ID]; ok {
		t.timer.Stop()
		delete(s.timers, e.ID)
	}
	if s.closed || e.IsResolved() || e.AcknowledgedAtLevel(e.CurrentLevel) {
		return
	}
	if _, ok := models.NextLevel(e.CurrentLevel); !ok {
		return
	}
	d, ok := s.ackSLA[e.Severity]
	if !ok {
		return
	}

	s.timerGen++
	gen := s.timerGen
	escalationID, level := e.ID, e.CurrentLevel
	s.timers[e.ID] = slaTimer{
		timer: s.clock.AfterFunc(d, func() { s.acknowledgmentElapsed(escalationID, level, gen) }),
		gen:   gen,
		level: level,
	}
}

func (s *Service) acknowledgmentElapsed(escalationID id.EscalationID, level models.Level, gen uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), slaEscalationTimeout)
	defer cancel()
	ctx, finish := s.start(ctx, opSLA, escalationID)

	_, events, err := s.mutate(ctx, opSLA, escalationID, models.SystemActor, func(e *models.EscalationEvent, now time.Time) ([]models.DomainEvent, bool, error) {
		events := s.machine.EscalateOnMissedAcknowledgment(e, level, now)
		return events, len(events) > 0, nil
	})
	finish(err)
	if err != nil {
		s.logger.WarnContext(ctx, "acknowledgment SLA escalation failed",
			"escalation_id", escalationID.String(),
			"level", level.String(),
			"error", err,
		)
	} else if len(events) > 0 {
		s.logger.InfoContext(ctx, "escalated after missed acknowledgment",
			"escalation_id", escalationID.String(),
			"from_level", level.String(),
		)
	}
	s.forgetTimer(escalationID, gen)
}

// forgetTimer drops the bookkeeping for a fired timer unless it was already
// replaced by a newer one.
func (s *Service) forgetTimer(escalationID id.EscalationID, gen uint64) {
	s.timersMu.Lock()
	defer s.timersMu.Unlock()
	if t, ok := s.timers[escalationID]; ok && t.gen == gen {
		delete(s.timers, escalationID)
	}
}

// PendingAcknowledgment reports the level whose acknowledgment timer is
// still running for escalationID.
func (s *Service) PendingAcknowledgment(escalationID id.EscalationID) (models.Level, bool) {
	s.timersMu.Lock()
	defer s.timersMu.Unlock()
	t, ok := s.timers[escalationID]
	return t.level, ok
}
