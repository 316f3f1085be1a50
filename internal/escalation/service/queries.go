package service

import (
	"context"

	"safecircle/internal/escalation/models"
	"safecircle/internal/escalation/statemachine"
	id "safecircle/pkg/domain"
	dErrors "safecircle/pkg/domain-errors"
)

// Reads run against the last committed snapshot without taking the
// per-event lock.

// GetEscalation returns the event if actor created, owns or is assigned to it.
func (s *Service) GetEscalation(ctx context.Context, escalationID id.EscalationID, actor id.UserID) (*models.EscalationEvent, error) {
	e, err := s.store.GetByID(ctx, escalationID)
	if err != nil {
		return nil, storeError(err, "failed to load escalation")
	}
	if !e.Involves(actor) {
		return nil, dErrors.New(dErrors.CodeForbidden, "actor is not involved in this escalation")
	}
	return e, nil
}

// ListUserEscalations returns the events userID created, owns or is
// assigned to, oldest first.
func (s *Service) ListUserEscalations(ctx context.Context, userID id.UserID) ([]*models.EscalationEvent, error) {
	events, err := s.store.ListInvolvingUser(ctx, userID)
	if err != nil {
		return nil, storeError(err, "failed to list escalations")
	}
	return events, nil
}

// CanEscalate answers with the same rules EscalateToNextLevel enforces.
func (s *Service) CanEscalate(ctx context.Context, escalationID id.EscalationID, actor id.UserID) (bool, error) {
	e, err := s.store.GetByID(ctx, escalationID)
	if err != nil {
		return false, storeError(err, "failed to load escalation")
	}
	return statemachine.CanEscalate(e, actor), nil
}

// ExportPath serializes the escalation path of an event actor may read.
func (s *Service) ExportPath(ctx context.Context, escalationID id.EscalationID, actor id.UserID) ([]byte, error) {
	e, err := s.GetEscalation(ctx, escalationID, actor)
	if err != nil {
		return nil, err
	}
	return models.ExportPath(e.EscalationPath)
}

// SubscribeEscalation streams committed snapshots of one event to fn. No
// callback runs after the returned function returns.
func (s *Service) SubscribeEscalation(ctx context.Context, escalationID id.EscalationID, actor id.UserID, fn func(*models.EscalationEvent)) (func(), error) {
	if _, err := s.GetEscalation(ctx, escalationID, actor); err != nil {
		return nil, err
	}
	return s.store.SubscribeEscalation(escalationID, fn), nil
}

// SubscribeUserEscalations streams snapshots of every event userID is
// watching.
func (s *Service) SubscribeUserEscalations(userID id.UserID, fn func(*models.EscalationEvent)) func() {
	return s.store.SubscribeUserEscalations(userID, fn)
}
