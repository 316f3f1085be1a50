package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"safecircle/internal/escalation/metrics"
	"safecircle/internal/escalation/models"
	"safecircle/internal/escalation/ports/mocks"
	"safecircle/internal/escalation/statemachine"
	"safecircle/internal/escalation/store"
	id "safecircle/pkg/domain"
	dErrors "safecircle/pkg/domain-errors"
	"safecircle/pkg/platform/audit"
	"safecircle/pkg/platform/clock"
	"safecircle/pkg/platform/sentinel"
)

type recordingDispatcher struct {
	mu     sync.Mutex
	events []models.DomainEvent
}

func (d *recordingDispatcher) Dispatch(_ context.Context, events []models.DomainEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, events...)
}

func (d *recordingDispatcher) types() []models.DomainEventType {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]models.DomainEventType, 0, len(d.events))
	for _, ev := range d.events {
		out = append(out, ev.Type)
	}
	return out
}

// =============================================================================
// Escalation Service Facade Test Suite
// =============================================================================
// Runs the facade against the in-memory store and a fake clock so locking,
// persistence, SLA timers and event fan-out are exercised end to end.

type ServiceSuite struct {
	suite.Suite
	ctx        context.Context
	clock      *clock.Fake
	store      *store.InMemoryStore
	dispatcher *recordingDispatcher
	service    *Service
	creator    id.UserID
	stranger   id.UserID
	responder  id.UserID
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.clock = clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	s.store = store.NewInMemoryStore()
	s.dispatcher = &recordingDispatcher{}
	s.creator = id.UserID(uuid.New())
	s.stranger = id.UserID(uuid.New())
	s.responder = id.UserID(uuid.New())

	svc, err := New(s.store,
		WithClock(s.clock),
		WithDispatcher(s.dispatcher),
		WithMetrics(metrics.New(nil)),
		WithAcknowledgmentSLA(map[models.Severity]time.Duration{
			models.SeverityMedium: time.Hour,
			models.SeverityHigh:   15 * time.Minute,
		}),
	)
	s.Require().NoError(err)
	s.service = svc
}

func (s *ServiceSuite) TearDownTest() {
	s.service.Close()
}

func (s *ServiceSuite) create(sev models.Severity) *models.EscalationEvent {
	e, err := s.service.CreateEscalation(s.ctx, statemachine.CreateInput{
		Title:     "Neighbour has not answered the door for two days",
		Context:   models.ContextSafety,
		Severity:  sev,
		CreatedBy: s.creator,
	})
	s.Require().NoError(err)
	return e
}

func (s *ServiceSuite) TestNew() {
	s.Run("store is required", func() {
		svc, err := New(nil)
		s.Require().Error(err)
		s.Nil(svc)
	})
}

// =============================================================================
// Create
// =============================================================================

func (s *ServiceSuite) TestCreateEscalation() {
	s.Run("critical health event is persisted at professional", func() {
		e, err := s.service.CreateEscalation(s.ctx, statemachine.CreateInput{
			Title:     "Dad collapsed",
			Context:   models.ContextHealth,
			Severity:  models.SeverityCritical,
			CreatedBy: s.creator,
		})
		s.Require().NoError(err)
		s.Equal(models.LevelProfessional, e.CurrentLevel)
		s.Require().Len(e.EscalationPath, 1)
		s.Equal(models.ActionAutoEscalate, e.EscalationPath[0].Action)
		s.Equal(int64(1), e.Version)

		stored, err := s.store.GetByID(s.ctx, e.ID)
		s.Require().NoError(err)
		s.Equal(models.LevelProfessional, stored.CurrentLevel)
	})

	s.Run("low severity stays at the starting level", func() {
		e := s.create(models.SeverityLow)
		s.Equal(models.LevelIndividual, e.CurrentLevel)
		s.Empty(e.EscalationPath)
	})

	s.Run("dispatched events are stamped with the committed version", func() {
		s.dispatcher = &recordingDispatcher{}
		s.service.dispatcher = s.dispatcher
		e := s.create(models.SeverityHigh)

		s.Equal([]models.DomainEventType{models.EventEscalationCreated, models.EventEscalationEscalated}, s.dispatcher.types())
		for i, ev := range s.dispatcher.events {
			s.Equal(e.Version, ev.Version)
			s.Equal(i, ev.Sequence)
			s.Require().NotNil(ev.Snapshot)
			s.Equal(models.LevelFamily, ev.Snapshot.CurrentLevel)
		}
	})

	s.Run("invalid input is rejected without saving", func() {
		_, err := s.service.CreateEscalation(s.ctx, statemachine.CreateInput{
			Context:   models.ContextHealth,
			Severity:  models.SeverityLow,
			CreatedBy: s.creator,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

// =============================================================================
// Escalation + concurrency
// =============================================================================

func (s *ServiceSuite) TestEscalateToNextLevel() {
	s.Run("creator and stranger race: only the creator wins", func() {
		e := s.create(models.SeverityLow)

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i, actor := range []id.UserID{s.creator, s.stranger} {
			wg.Go(func() {
				_, errs[i] = s.service.EscalateToNextLevel(s.ctx, e.ID, "not answering", actor, nil)
			})
		}
		wg.Wait()

		s.NoError(errs[0])
		s.True(dErrors.HasCode(errs[1], dErrors.CodeForbidden))

		stored, err := s.store.GetByID(s.ctx, e.ID)
		s.Require().NoError(err)
		s.Len(stored.EscalationPath, 1)
		s.Equal(models.LevelFamily, stored.CurrentLevel)
	})

	s.Run("concurrent escalations climb one level each and stop at the top", func() {
		e := s.create(models.SeverityLow)

		var wg sync.WaitGroup
		var mu sync.Mutex
		succeeded, atMax := 0, 0
		for range 10 {
			wg.Go(func() {
				_, err := s.service.EscalateToNextLevel(s.ctx, e.ID, "", s.creator, nil)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					succeeded++
				case dErrors.HasCode(err, dErrors.CodeAlreadyAtMaxLevel):
					atMax++
				}
			})
		}
		wg.Wait()

		s.Equal(3, succeeded)
		s.Equal(7, atMax)
		stored, err := s.store.GetByID(s.ctx, e.ID)
		s.Require().NoError(err)
		s.Require().Len(stored.EscalationPath, 3)
		for i, entry := range stored.EscalationPath {
			s.Equal(models.Level(i), entry.FromLevel)
			s.Equal(models.Level(i+1), entry.ToLevel)
		}
	})

	s.Run("assignTo hands ownership to the new responder", func() {
		e := s.create(models.SeverityLow)
		got, err := s.service.EscalateToNextLevel(s.ctx, e.ID, "needs family", s.creator, &s.responder)
		s.Require().NoError(err)
		s.Equal(s.responder, got.CurrentOwner)

		_, err = s.service.EscalateToNextLevel(s.ctx, e.ID, "owner escalates", s.responder, nil)
		s.NoError(err)
	})

	s.Run("unknown escalation is not found", func() {
		_, err := s.service.EscalateToNextLevel(s.ctx, id.NewEscalationID(), "", s.creator, nil)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

// =============================================================================
// Responders
// =============================================================================

func (s *ServiceSuite) TestAssignAndAcknowledge() {
	s.Run("only the assignee may acknowledge", func() {
		e := s.create(models.SeverityLow)
		a, err := s.service.AssignResponder(s.ctx, e.ID, s.responder, models.RoleResponder, s.creator)
		s.Require().NoError(err)

		_, err = s.service.AcknowledgeAssignment(s.ctx, e.ID, a.AssignmentID, s.stranger)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

		got, err := s.service.AcknowledgeAssignment(s.ctx, e.ID, a.AssignmentID, s.responder)
		s.Require().NoError(err)
		ack, _ := got.Assignment(a.AssignmentID)
		s.Equal(models.AssignmentAcknowledged, ack.Status)
		s.Require().NotNil(ack.AcknowledgedAt)
		s.Equal(models.StatusInProgress, got.Status)
	})

	s.Run("second acknowledgment does not save", func() {
		e := s.create(models.SeverityLow)
		a, err := s.service.AssignResponder(s.ctx, e.ID, s.responder, models.RoleResponder, s.creator)
		s.Require().NoError(err)
		first, err := s.service.AcknowledgeAssignment(s.ctx, e.ID, a.AssignmentID, s.responder)
		s.Require().NoError(err)

		second, err := s.service.AcknowledgeAssignment(s.ctx, e.ID, a.AssignmentID, s.responder)
		s.Require().NoError(err)
		s.Equal(first.Version, second.Version)
	})

	s.Run("missing assignment is not found", func() {
		e := s.create(models.SeverityLow)
		_, err := s.service.AcknowledgeAssignment(s.ctx, e.ID, id.NewAssignmentID(), s.responder)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("handoff moves the work to the next responder", func() {
		e := s.create(models.SeverityLow)
		a, err := s.service.AssignResponder(s.ctx, e.ID, s.responder, models.RoleResponder, s.creator)
		s.Require().NoError(err)

		next, err := s.service.HandoffEscalation(s.ctx, e.ID, a.AssignmentID, s.stranger, "going offline", s.responder)
		s.Require().NoError(err)
		s.Equal(s.stranger, next.UserID)
		s.Equal(models.AssignmentPending, next.Status)

		stored, err := s.store.GetByID(s.ctx, e.ID)
		s.Require().NoError(err)
		old, _ := stored.Assignment(a.AssignmentID)
		s.Equal(models.AssignmentHandedOff, old.Status)
		s.Equal(models.LevelIndividual, stored.CurrentLevel)
	})
}

// =============================================================================
// Status, severity and notes
// =============================================================================

func (s *ServiceSuite) TestResolution() {
	s.Run("resolved events reject mutations but accept notes", func() {
		e := s.create(models.SeverityLow)
		a, err := s.service.AssignResponder(s.ctx, e.ID, s.responder, models.RoleResponder, s.creator)
		s.Require().NoError(err)

		resolved, err := s.service.UpdateStatus(s.ctx, e.ID, models.StatusResolved, s.creator)
		s.Require().NoError(err)
		s.Require().NotNil(resolved.ResolvedAt)

		_, err = s.service.EscalateToNextLevel(s.ctx, e.ID, "", s.creator, nil)
		s.True(dErrors.IsInvalidTransition(err))
		_, err = s.service.UpdateStatus(s.ctx, e.ID, models.StatusInProgress, s.creator)
		s.True(dErrors.IsInvalidTransition(err))

		note, err := s.service.LogResponderAction(s.ctx, e.ID, a.AssignmentID, "Called the GP", s.responder)
		s.Require().NoError(err)
		s.Equal("Called the GP", note.Action)

		stored, err := s.store.GetByID(s.ctx, e.ID)
		s.Require().NoError(err)
		s.Len(stored.Notes, 1)
	})

	s.Run("raising severity climbs but lowering never descends", func() {
		e := s.create(models.SeverityLow)
		got, err := s.service.UpdateSeverity(s.ctx, e.ID, models.SeverityCritical, s.creator)
		s.Require().NoError(err)
		s.Equal(models.LevelProfessional, got.CurrentLevel)

		got, err = s.service.UpdateSeverity(s.ctx, e.ID, models.SeverityLow, s.creator)
		s.Require().NoError(err)
		s.Equal(models.LevelProfessional, got.CurrentLevel)
		s.Len(got.EscalationPath, 1)
	})
}

// =============================================================================
// Acknowledgment SLA
// =============================================================================

func (s *ServiceSuite) TestAcknowledgmentSLA() {
	s.Run("unacknowledged event climbs when the SLA elapses", func() {
		e := s.create(models.SeverityMedium)
		level, ok := s.service.PendingAcknowledgment(e.ID)
		s.Require().True(ok)
		s.Equal(models.LevelIndividual, level)

		s.clock.Advance(59 * time.Minute)
		stored, err := s.store.GetByID(s.ctx, e.ID)
		s.Require().NoError(err)
		s.Equal(models.LevelIndividual, stored.CurrentLevel)

		s.clock.Advance(time.Minute)
		stored, err = s.store.GetByID(s.ctx, e.ID)
		s.Require().NoError(err)
		s.Equal(models.LevelFamily, stored.CurrentLevel)
		s.Require().Len(stored.EscalationPath, 1)
		entry := stored.EscalationPath[0]
		s.Equal(models.ActionAutoEscalate, entry.Action)
		s.Equal(models.SystemActor, entry.EscalatedBy)
		s.Equal(statemachine.ReasonSLA, entry.Reason)

		level, ok = s.service.PendingAcknowledgment(e.ID)
		s.Require().True(ok)
		s.Equal(models.LevelFamily, level)
	})

	s.Run("acknowledgment at the current level stops the timer", func() {
		e := s.create(models.SeverityMedium)
		a, err := s.service.AssignResponder(s.ctx, e.ID, s.responder, models.RoleResponder, s.creator)
		s.Require().NoError(err)
		_, err = s.service.AcknowledgeAssignment(s.ctx, e.ID, a.AssignmentID, s.responder)
		s.Require().NoError(err)

		_, ok := s.service.PendingAcknowledgment(e.ID)
		s.False(ok)
		s.clock.Advance(3 * time.Hour)

		stored, err := s.store.GetByID(s.ctx, e.ID)
		s.Require().NoError(err)
		s.Equal(models.LevelIndividual, stored.CurrentLevel)
	})

	s.Run("resolution cancels the timer", func() {
		e := s.create(models.SeverityMedium)
		_, err := s.service.UpdateStatus(s.ctx, e.ID, models.StatusResolved, s.creator)
		s.Require().NoError(err)

		_, ok := s.service.PendingAcknowledgment(e.ID)
		s.False(ok)
		s.clock.Advance(2 * time.Hour)

		stored, err := s.store.GetByID(s.ctx, e.ID)
		s.Require().NoError(err)
		s.Empty(stored.EscalationPath)
	})

	s.Run("severities without an SLA never arm a timer", func() {
		e := s.create(models.SeverityLow)
		_, ok := s.service.PendingAcknowledgment(e.ID)
		s.False(ok)
	})

	s.Run("close cancels pending timers", func() {
		e := s.create(models.SeverityMedium)
		s.service.Close()
		s.clock.Advance(2 * time.Hour)

		stored, err := s.store.GetByID(s.ctx, e.ID)
		s.Require().NoError(err)
		s.Equal(models.LevelIndividual, stored.CurrentLevel)
	})
}

// =============================================================================
// Queries and subscriptions
// =============================================================================

func (s *ServiceSuite) TestQueries() {
	s.Run("strangers cannot read an escalation", func() {
		e := s.create(models.SeverityLow)
		_, err := s.service.GetEscalation(s.ctx, e.ID, s.stranger)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

		got, err := s.service.GetEscalation(s.ctx, e.ID, s.creator)
		s.Require().NoError(err)
		s.Equal(e.ID, got.ID)
	})

	s.Run("can escalate follows enforcement", func() {
		e := s.create(models.SeverityLow)
		ok, err := s.service.CanEscalate(s.ctx, e.ID, s.creator)
		s.Require().NoError(err)
		s.True(ok)
		ok, err = s.service.CanEscalate(s.ctx, e.ID, s.stranger)
		s.Require().NoError(err)
		s.False(ok)
	})

	s.Run("exported path imports back unchanged", func() {
		e := s.create(models.SeverityHigh)
		_, err := s.service.EscalateToNextLevel(s.ctx, e.ID, "community help", s.creator, &s.responder)
		s.Require().NoError(err)

		data, err := s.service.ExportPath(s.ctx, e.ID, s.creator)
		s.Require().NoError(err)
		path, err := models.ImportPath(data)
		s.Require().NoError(err)

		stored, err := s.store.GetByID(s.ctx, e.ID)
		s.Require().NoError(err)
		s.Equal(stored.EscalationPath, path)
	})

	s.Run("user escalations include assignments", func() {
		e := s.create(models.SeverityLow)
		_, err := s.service.AssignResponder(s.ctx, e.ID, s.stranger, models.RoleResponder, s.creator)
		s.Require().NoError(err)

		list, err := s.service.ListUserEscalations(s.ctx, s.stranger)
		s.Require().NoError(err)
		s.Require().Len(list, 1)
		s.Equal(e.ID, list[0].ID)
	})

	s.Run("creator keeps the escalation after ownership moves", func() {
		e := s.create(models.SeverityLow)
		moved, err := s.service.EscalateToNextLevel(s.ctx, e.ID, "need the family", s.creator, &s.responder)
		s.Require().NoError(err)
		s.Require().Equal(s.responder, moved.CurrentOwner)

		list, err := s.service.ListUserEscalations(s.ctx, s.creator)
		s.Require().NoError(err)
		s.True(slices.ContainsFunc(list, func(got *models.EscalationEvent) bool { return got.ID == e.ID }))

		owned, err := s.service.ListUserEscalations(s.ctx, s.responder)
		s.Require().NoError(err)
		s.True(slices.ContainsFunc(owned, func(got *models.EscalationEvent) bool { return got.ID == e.ID }))
	})
}

func (s *ServiceSuite) TestSubscribeEscalation() {
	s.Run("strangers cannot subscribe", func() {
		e := s.create(models.SeverityLow)
		_, err := s.service.SubscribeEscalation(s.ctx, e.ID, s.stranger, nil)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("watchers receive committed snapshots", func() {
		e := s.create(models.SeverityLow)
		got := make(chan *models.EscalationEvent, 4)
		unsubscribe, err := s.service.SubscribeEscalation(s.ctx, e.ID, s.creator, func(snapshot *models.EscalationEvent) {
			got <- snapshot
		})
		s.Require().NoError(err)
		defer unsubscribe()

		_, err = s.service.EscalateToNextLevel(s.ctx, e.ID, "", s.creator, nil)
		s.Require().NoError(err)

		select {
		case snapshot := <-got:
			s.Equal(models.LevelFamily, snapshot.CurrentLevel)
		case <-time.After(2 * time.Second):
			s.Fail("no snapshot delivered")
		}
	})
}

// =============================================================================
// Collaborators (gomock)
// =============================================================================

func TestService_ConflictRetry(t *testing.T) {
	creator := id.UserID(uuid.New())
	base := &models.EscalationEvent{
		ID:           id.NewEscalationID(),
		Title:        "Flooded kitchen",
		Context:      models.ContextProperty,
		Severity:     models.SeverityLow,
		Status:       models.StatusOpen,
		CreatedBy:    creator,
		CurrentOwner: creator,
		Version:      4,
	}

	t.Run("stale save is reapplied to a fresh copy", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		st := mocks.NewMockStore(ctrl)
		reg := prometheus.NewRegistry()
		m := metrics.New(reg)

		st.EXPECT().GetByID(gomock.Any(), base.ID).DoAndReturn(
			func(context.Context, id.EscalationID) (*models.EscalationEvent, error) {
				return base.Clone(), nil
			}).Times(2)
		gomock.InOrder(
			st.EXPECT().Save(gomock.Any(), gomock.Any()).Return(fmt.Errorf("save escalation: %w", sentinel.ErrConflict)),
			st.EXPECT().Save(gomock.Any(), gomock.Any()).DoAndReturn(
				func(_ context.Context, e *models.EscalationEvent) error {
					e.Version++
					return nil
				}),
		)

		svc, err := New(st, WithMetrics(m))
		if err != nil {
			t.Fatal(err)
		}
		got, err := svc.EscalateToNextLevel(context.Background(), base.ID, "", creator, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got.Version != 5 || len(got.EscalationPath) != 1 {
			t.Fatalf("unexpected result: version=%d path=%d", got.Version, len(got.EscalationPath))
		}
		if v := testutil.ToFloat64(m.ConflictRetries); v != 1 {
			t.Fatalf("expected one conflict retry, got %v", v)
		}
	})

	t.Run("exhausted retries surface a conflict", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		st := mocks.NewMockStore(ctrl)
		st.EXPECT().GetByID(gomock.Any(), base.ID).DoAndReturn(
			func(context.Context, id.EscalationID) (*models.EscalationEvent, error) {
				return base.Clone(), nil
			}).Times(2)
		st.EXPECT().Save(gomock.Any(), gomock.Any()).Return(sentinel.ErrConflict).Times(2)

		svc, err := New(st, WithConflictRetries(1))
		if err != nil {
			t.Fatal(err)
		}
		_, err = svc.EscalateToNextLevel(context.Background(), base.ID, "", creator, nil)
		if !dErrors.HasCode(err, dErrors.CodeConflict) {
			t.Fatalf("expected conflict, got %v", err)
		}
	})

	t.Run("store outage is internal", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		st := mocks.NewMockStore(ctrl)
		st.EXPECT().GetByID(gomock.Any(), base.ID).Return(nil, errors.New("connection reset"))

		svc, err := New(st)
		if err != nil {
			t.Fatal(err)
		}
		_, err = svc.EscalateToNextLevel(context.Background(), base.ID, "", creator, nil)
		if !dErrors.HasCode(err, dErrors.CodeInternal) {
			t.Fatalf("expected internal error, got %v", err)
		}
	})
}

func TestService_Collaborators(t *testing.T) {
	creator := id.UserID(uuid.New())
	stranger := id.UserID(uuid.New())
	input := statemachine.CreateInput{
		Title:     "Lost contact with sister",
		Context:   models.ContextEmotional,
		Severity:  models.SeverityLow,
		CreatedBy: creator,
	}

	t.Run("committed events are published and audited", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		publisher := mocks.NewMockEventPublisher(ctrl)
		auditor := mocks.NewMockAuditPublisher(ctrl)
		dispatcher := mocks.NewMockDispatcher(ctrl)

		gomock.InOrder(
			dispatcher.EXPECT().Dispatch(gomock.Any(), gomock.Len(1)),
			publisher.EXPECT().Publish(gomock.Any(), gomock.Len(1)).Return(nil),
			auditor.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(
				func(_ context.Context, ev audit.Event) error {
					if ev.Action != string(audit.EventEscalationCreated) || ev.UserID != creator {
						t.Errorf("unexpected audit event %+v", ev)
					}
					return nil
				}),
		)

		svc, err := New(store.NewInMemoryStore(),
			WithDispatcher(dispatcher),
			WithEventPublisher(publisher),
			WithAuditPublisher(auditor),
		)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := svc.CreateEscalation(context.Background(), input); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("publish failure does not fail the mutation", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		publisher := mocks.NewMockEventPublisher(ctrl)
		publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(errors.New("broker down"))

		svc, err := New(store.NewInMemoryStore(), WithEventPublisher(publisher))
		if err != nil {
			t.Fatal(err)
		}
		if _, err := svc.CreateEscalation(context.Background(), input); err != nil {
			t.Fatalf("expected success, got %v", err)
		}
	})

	t.Run("denied mutation is audited as a security event", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		auditor := mocks.NewMockAuditPublisher(ctrl)
		auditor.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil) // created

		svc, err := New(store.NewInMemoryStore(), WithAuditPublisher(auditor))
		if err != nil {
			t.Fatal(err)
		}
		e, err := svc.CreateEscalation(context.Background(), input)
		if err != nil {
			t.Fatal(err)
		}

		auditor.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, ev audit.Event) error {
				if ev.Action != string(audit.EventPermissionDenied) || ev.UserID != stranger {
					t.Errorf("unexpected audit event %+v", ev)
				}
				return nil
			})
		_, err = svc.EscalateToNextLevel(context.Background(), e.ID, "", stranger, nil)
		if !dErrors.HasCode(err, dErrors.CodeForbidden) {
			t.Fatalf("expected forbidden, got %v", err)
		}
	})
}
