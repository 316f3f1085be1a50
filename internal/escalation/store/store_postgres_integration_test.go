//go:build integration

package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"safecircle/internal/escalation/models"
	"safecircle/internal/escalation/store"
	id "safecircle/pkg/domain"
	"safecircle/pkg/platform/sentinel"
	"safecircle/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "escalations"))
}

func (s *PostgresStoreSuite) newEvent(creator id.UserID) *models.EscalationEvent {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &models.EscalationEvent{
		ID:             id.NewEscalationID(),
		Title:          "Smoke in the hallway",
		Context:        models.ContextSafety,
		Severity:       models.SeverityHigh,
		CurrentLevel:   models.LevelFamily,
		Status:         models.StatusOpen,
		CreatedBy:      creator,
		CurrentOwner:   creator,
		Responders:     []models.ResponderAssignment{},
		EscalationPath: []models.EscalationEntry{},
		Notes:          []models.ResponderNote{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func (s *PostgresStoreSuite) TestSaveAndGetRoundTrip() {
	ctx := context.Background()
	e := s.newEvent(id.UserID(uuid.New()))
	s.Require().NoError(s.store.Save(ctx, e))
	s.Equal(int64(1), e.Version)

	got, err := s.store.GetByID(ctx, e.ID)
	s.Require().NoError(err)
	s.Equal(e, got)
}

func (s *PostgresStoreSuite) TestStaleVersionConflicts() {
	ctx := context.Background()
	e := s.newEvent(id.UserID(uuid.New()))
	s.Require().NoError(s.store.Save(ctx, e))

	stale := e.Clone()
	s.Require().NoError(s.store.Save(ctx, e))
	err := s.store.Save(ctx, stale)
	s.True(errors.Is(err, sentinel.ErrConflict))

	missing := s.newEvent(id.UserID(uuid.New()))
	missing.Version = 4
	s.True(errors.Is(s.store.Save(ctx, missing), sentinel.ErrNotFound))
}

func (s *PostgresStoreSuite) TestListInvolvingUser() {
	ctx := context.Background()
	responder := id.UserID(uuid.New())
	e := s.newEvent(id.UserID(uuid.New()))
	e.Responders = append(e.Responders, models.ResponderAssignment{
		AssignmentID: id.NewAssignmentID(),
		UserID:       responder,
		Role:         models.RoleResponder,
		Status:       models.AssignmentPending,
	})
	s.Require().NoError(s.store.Save(ctx, e))
	s.Require().NoError(s.store.Save(ctx, s.newEvent(id.UserID(uuid.New()))))

	got, err := s.store.ListInvolvingUser(ctx, responder)
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal(e.ID, got[0].ID)

	e.CurrentOwner = responder
	s.Require().NoError(s.store.Save(ctx, e))
	created, err := s.store.ListInvolvingUser(ctx, e.CreatedBy)
	s.Require().NoError(err)
	s.Require().Len(created, 1)
	s.Equal(e.ID, created[0].ID)
}
