package service

import (
	"context"
	"time"

	"safecircle/internal/escalation/models"
	"safecircle/internal/escalation/statemachine"
	id "safecircle/pkg/domain"
	dErrors "safecircle/pkg/domain-errors"
)

// CreateEscalation opens a new event and applies severity based
// auto-escalation before it is first persisted.
func (s *Service) CreateEscalation(ctx context.Context, in statemachine.CreateInput) (_ *models.EscalationEvent, err error) {
	ctx, finish := s.start(ctx, opCreate, id.EscalationID{})
	defer func() { finish(err) }()

	e, events, err := s.machine.Create(in, s.clock.Now())
	if err != nil {
		s.metrics.IncrementRejected(opCreate.name, string(dErrors.CodeOf(err)))
		return nil, err
	}

	unlock, err := s.locks.Lock(ctx, e.ID.String())
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "timed out waiting for escalation")
	}
	defer unlock()

	if err := s.store.Save(ctx, e); err != nil {
		return nil, storeError(err, "failed to save escalation")
	}
	s.commit(ctx, opCreate, e, events, in.CreatedBy.String(), true)

	s.logger.InfoContext(ctx, "escalation created",
		"escalation_id", e.ID.String(),
		"context", string(e.Context),
		"severity", string(e.Severity),
		"level", e.CurrentLevel.String(),
	)
	return e, nil
}

// EscalateToNextLevel moves the event one level up. Two racing callers are
// serialized so exactly one transition is appended per successful call.
func (s *Service) EscalateToNextLevel(ctx context.Context, escalationID id.EscalationID, reason string, actor id.UserID, assignTo *id.UserID) (_ *models.EscalationEvent, err error) {
	ctx, finish := s.start(ctx, opEscalate, escalationID)
	defer func() { finish(err) }()

	e, _, err := s.mutate(ctx, opEscalate, escalationID, actor.String(), func(e *models.EscalationEvent, now time.Time) ([]models.DomainEvent, bool, error) {
		events, err := s.machine.EscalateToNextLevel(e, reason, actor, assignTo, now)
		return events, err == nil, err
	})
	return e, err
}

func (s *Service) AssignResponder(ctx context.Context, escalationID id.EscalationID, userID id.UserID, role models.Role, actor id.UserID) (_ *models.ResponderAssignment, err error) {
	ctx, finish := s.start(ctx, opAssign, escalationID)
	defer func() { finish(err) }()

	var assignment *models.ResponderAssignment
	_, _, err = s.mutate(ctx, opAssign, escalationID, actor.String(), func(e *models.EscalationEvent, now time.Time) ([]models.DomainEvent, bool, error) {
		a, events, err := s.machine.AssignResponder(e, userID, role, actor, now)
		assignment = a
		return events, err == nil, err
	})
	if err != nil {
		return nil, err
	}
	return assignment, nil
}

// AcknowledgeAssignment is idempotent: acknowledging an acknowledged
// assignment returns the current state without saving.
func (s *Service) AcknowledgeAssignment(ctx context.Context, escalationID id.EscalationID, assignmentID id.AssignmentID, actor id.UserID) (_ *models.EscalationEvent, err error) {
	ctx, finish := s.start(ctx, opAcknowledge, escalationID)
	defer func() { finish(err) }()

	e, _, err := s.mutate(ctx, opAcknowledge, escalationID, actor.String(), func(e *models.EscalationEvent, now time.Time) ([]models.DomainEvent, bool, error) {
		events, err := s.machine.AcknowledgeAssignment(e, assignmentID, actor, now)
		return events, len(events) > 0, err
	})
	return e, err
}

func (s *Service) HandoffEscalation(ctx context.Context, escalationID id.EscalationID, assignmentID id.AssignmentID, nextUserID id.UserID, reason string, actor id.UserID) (_ *models.ResponderAssignment, err error) {
	ctx, finish := s.start(ctx, opHandoff, escalationID)
	defer func() { finish(err) }()

	var assignment *models.ResponderAssignment
	_, _, err = s.mutate(ctx, opHandoff, escalationID, actor.String(), func(e *models.EscalationEvent, now time.Time) ([]models.DomainEvent, bool, error) {
		a, events, err := s.machine.HandoffEscalation(e, assignmentID, nextUserID, reason, actor, now)
		assignment = a
		return events, err == nil, err
	})
	if err != nil {
		return nil, err
	}
	return assignment, nil
}

func (s *Service) UpdateStatus(ctx context.Context, escalationID id.EscalationID, status models.Status, actor id.UserID) (_ *models.EscalationEvent, err error) {
	ctx, finish := s.start(ctx, opStatus, escalationID)
	defer func() { finish(err) }()

	e, _, err := s.mutate(ctx, opStatus, escalationID, actor.String(), func(e *models.EscalationEvent, now time.Time) ([]models.DomainEvent, bool, error) {
		events, err := s.machine.UpdateStatus(e, status, actor, now)
		return events, err == nil, err
	})
	return e, err
}

// UpdateSeverity changes severity; raising it may climb the hierarchy but
// lowering it never moves the level back.
func (s *Service) UpdateSeverity(ctx context.Context, escalationID id.EscalationID, severity models.Severity, actor id.UserID) (_ *models.EscalationEvent, err error) {
	ctx, finish := s.start(ctx, opSeverity, escalationID)
	defer func() { finish(err) }()

	e, _, err := s.mutate(ctx, opSeverity, escalationID, actor.String(), func(e *models.EscalationEvent, now time.Time) ([]models.DomainEvent, bool, error) {
		events, err := s.machine.UpdateSeverity(e, severity, actor, now)
		return events, err == nil, err
	})
	return e, err
}

func (s *Service) LogResponderAction(ctx context.Context, escalationID id.EscalationID, assignmentID id.AssignmentID, action string, actor id.UserID) (_ *models.ResponderNote, err error) {
	ctx, finish := s.start(ctx, opLogAction, escalationID)
	defer func() { finish(err) }()

	var note *models.ResponderNote
	_, _, err = s.mutate(ctx, opLogAction, escalationID, actor.String(), func(e *models.EscalationEvent, now time.Time) ([]models.DomainEvent, bool, error) {
		n, err := s.machine.LogResponderAction(e, assignmentID, action, actor, now)
		note = n
		return nil, err == nil, err
	})
	if err != nil {
		return nil, err
	}
	return note, nil
}
