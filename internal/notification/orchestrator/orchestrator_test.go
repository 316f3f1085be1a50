package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	escmodels "safecircle/internal/escalation/models"
	"safecircle/internal/notification/digest"
	"safecircle/internal/notification/dispatch"
	"safecircle/internal/notification/models"
	"safecircle/internal/notification/orchestrator/mocks"
	"safecircle/internal/notification/preferences"
	"safecircle/internal/notification/store"
	"safecircle/internal/notification/transport"
	id "safecircle/pkg/domain"
	dErrors "safecircle/pkg/domain-errors"
	"safecircle/pkg/platform/audit"
	auditpublisher "safecircle/pkg/platform/audit/publisher"
	auditmemory "safecircle/pkg/platform/audit/store/memory"
	"safecircle/pkg/platform/clock"
)

type OrchestratorSuite struct {
	suite.Suite
	ctx       context.Context
	clock     *clock.Fake
	records   *store.InMemoryStore
	prefs     *preferences.InMemoryStore
	digests   *digest.InMemoryQueue
	recorder  *transport.Recorder
	audits    *auditmemory.InMemoryStore
	o         *Orchestrator
	creator   id.UserID
	owner     id.UserID
	responder id.UserID
}

func TestOrchestratorSuite(t *testing.T) {
	suite.Run(t, new(OrchestratorSuite))
}

func noSleep(context.Context, time.Duration) error { return nil }

func (s *OrchestratorSuite) SetupTest() {
	s.ctx = context.Background()
	// 2025-06-01 is a Sunday.
	s.clock = clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	s.records = store.NewInMemoryStore()
	s.prefs = preferences.NewInMemoryStore()
	s.digests = digest.NewInMemoryQueue()
	s.recorder = transport.NewRecorder()
	s.audits = auditmemory.NewInMemoryStore()
	s.creator = id.UserID(uuid.New())
	s.owner = id.UserID(uuid.New())
	s.responder = id.UserID(uuid.New())

	o, err := New(s.records, dispatch.New(s.recorder, dispatch.WithSleep(noSleep)),
		WithPreferences(s.prefs),
		WithDigestQueue(s.digests),
		WithClock(s.clock),
		WithAuditPublisher(auditpublisher.NewPublisher(s.audits)),
		WithShards(4),
	)
	s.Require().NoError(err)
	s.o = o
}

func (s *OrchestratorSuite) TearDownTest() {
	s.Require().NoError(s.o.Close(s.ctx))
}

func (s *OrchestratorSuite) snapshot(sev escmodels.Severity) *escmodels.EscalationEvent {
	now := s.clock.Now()
	return &escmodels.EscalationEvent{
		ID:           id.NewEscalationID(),
		Title:        "Grandma missed her medication",
		Context:      escmodels.ContextHealth,
		Severity:     sev,
		CurrentLevel: escmodels.LevelFamily,
		Status:       escmodels.StatusOpen,
		CreatedBy:    s.creator,
		CurrentOwner: s.creator,
		CreatedAt:    now,
		UpdatedAt:    now,
		Version:      1,
	}
}

func (s *OrchestratorSuite) event(t escmodels.DomainEventType, snap *escmodels.EscalationEvent) escmodels.DomainEvent {
	return escmodels.DomainEvent{
		Type:         t,
		EscalationID: snap.ID,
		Version:      snap.Version,
		OccurredAt:   s.clock.Now(),
		Actor:        snap.CreatedBy.String(),
		Snapshot:     snap,
	}
}

func (s *OrchestratorSuite) dispatch(events ...escmodels.DomainEvent) {
	s.o.Dispatch(s.ctx, events)
	s.Require().NoError(s.o.Drain(s.ctx))
}

func (s *OrchestratorSuite) onlyRecord(userID id.UserID) *models.Record {
	records, err := s.o.ListNotifications(s.ctx, userID, 0)
	s.Require().NoError(err)
	s.Require().Len(records, 1)
	return records[0]
}

func (s *OrchestratorSuite) sentTo(userID id.UserID, ch models.Channel) []models.Payload {
	var out []models.Payload
	for _, sent := range s.recorder.Sent() {
		if sent.Channel == ch && sent.Payload.UserID == userID {
			out = append(out, sent.Payload)
		}
	}
	return out
}

func (s *OrchestratorSuite) quietPush(digestEnabled bool) {
	s.Require().NoError(s.prefs.Put(s.ctx, &models.Preferences{
		UserID: s.creator,
		Channels: map[models.Channel]models.ChannelPreference{
			models.ChannelPush: {QuietHours: &models.QuietHours{Start: "22:00", End: "06:00"}},
		},
		Digest: models.DigestPreference{Enabled: digestEnabled, Frequency: models.DigestDaily},
	}))
	s.clock.Set(time.Date(2025, 6, 1, 23, 30, 0, 0, time.UTC))
}

// =============================================================================
// Recipients and payloads
// =============================================================================

func (s *OrchestratorSuite) TestCreatedNotifiesCreatorOnEveryChannel() {
	snap := s.snapshot(escmodels.SeverityHigh)
	s.dispatch(s.event(escmodels.EventEscalationCreated, snap))

	r := s.onlyRecord(s.creator)
	s.Equal(models.TypeEscalationCreated, r.Type)
	s.Equal(models.PriorityHigh, r.Priority)
	s.Equal(snap.ID, r.EscalationID)
	s.Len(r.Deliveries, len(models.AllChannels))
	for ch, d := range r.Deliveries {
		s.Equal(models.DeliverySent, d.Status, ch)
		s.Equal(1, d.Attempts, ch)
		s.NotNil(d.SentAt, ch)
	}
	s.Len(s.recorder.Sent(), len(models.AllChannels))
	s.Contains(s.recorder.Sent()[0].Payload.Title, snap.Title)
}

func (s *OrchestratorSuite) TestRecipients() {
	snap := s.snapshot(escmodels.SeverityMedium)
	snap.CurrentOwner = s.owner

	s.Run("escalated notifies creator and owner", func() {
		ev := s.event(escmodels.EventEscalationEscalated, snap)
		ev.Entry = &escmodels.EscalationEntry{
			FromLevel: escmodels.LevelFamily, ToLevel: escmodels.LevelCommunity, Reason: "no answer",
		}
		s.ElementsMatch([]id.UserID{s.creator, s.owner}, Recipients(ev))
	})

	s.Run("assignment notifies the assignee", func() {
		ev := s.event(escmodels.EventResponderAssigned, snap)
		ev.Assignment = &escmodels.ResponderAssignment{UserID: s.responder, Role: escmodels.RoleResponder}
		s.Equal([]id.UserID{s.responder}, Recipients(ev))
	})

	s.Run("resolution notifies the creator", func() {
		s.Equal([]id.UserID{s.creator}, Recipients(s.event(escmodels.EventEscalationResolved, snap)))
	})

	s.Run("acknowledgment notifies nobody", func() {
		s.dispatch(s.event(escmodels.EventAssignmentAcknowledged, snap))
		s.Empty(s.recorder.Sent())
	})
}

func (s *OrchestratorSuite) TestPriorityFromSeverity() {
	cases := map[escmodels.Severity]models.Priority{
		escmodels.SeverityCritical: models.PriorityCritical,
		escmodels.SeverityHigh:     models.PriorityHigh,
		escmodels.SeverityMedium:   models.PriorityNormal,
		escmodels.SeverityLow:      models.PriorityLow,
	}
	for sev, want := range cases {
		s.dispatch(s.event(escmodels.EventEscalationCreated, s.snapshot(sev)))
		s.Equal(want, s.sentTo(s.creator, models.ChannelWeb)[len(s.sentTo(s.creator, models.ChannelWeb))-1].Priority, sev)
	}
}

func (s *OrchestratorSuite) TestOrderPreservedPerEscalation() {
	snap := s.snapshot(escmodels.SeverityMedium)
	created := s.event(escmodels.EventEscalationCreated, snap)

	escalated := snap.Clone()
	escalated.Version = 2
	escalated.CurrentLevel = escmodels.LevelCommunity
	escEvent := s.event(escmodels.EventEscalationEscalated, escalated)
	escEvent.Entry = &escmodels.EscalationEntry{FromLevel: escmodels.LevelFamily, ToLevel: escmodels.LevelCommunity}

	resolved := escalated.Clone()
	resolved.Version = 3
	resolved.Status = escmodels.StatusResolved

	s.o.Dispatch(s.ctx, []escmodels.DomainEvent{created, escEvent})
	s.o.Dispatch(s.ctx, []escmodels.DomainEvent{s.event(escmodels.EventEscalationResolved, resolved)})
	s.Require().NoError(s.o.Drain(s.ctx))

	var types []models.Type
	for _, p := range s.sentTo(s.creator, models.ChannelWeb) {
		types = append(types, p.Type)
	}
	s.Equal([]models.Type{
		models.TypeEscalationCreated,
		models.TypeEscalationEscalated,
		models.TypeEscalationResolved,
	}, types)
}

func (s *OrchestratorSuite) TestRedispatchedEventIsNotSentTwice() {
	ev := s.event(escmodels.EventEscalationCreated, s.snapshot(escmodels.SeverityLow))
	s.dispatch(ev)
	s.dispatch(ev)

	s.onlyRecord(s.creator)
	s.Equal(1, s.recorder.Calls(models.ChannelSMS))
}

// =============================================================================
// Preferences
// =============================================================================

func (s *OrchestratorSuite) TestExplicitOptOutDrops() {
	s.Require().NoError(s.prefs.Put(s.ctx, &models.Preferences{
		UserID: s.creator,
		Types:  map[models.Type]bool{models.TypeEscalationCreated: false},
	}))
	s.dispatch(s.event(escmodels.EventEscalationCreated, s.snapshot(escmodels.SeverityCritical)))

	records, err := s.o.ListNotifications(s.ctx, s.creator, 0)
	s.Require().NoError(err)
	s.Empty(records)
	s.Empty(s.recorder.Sent())

	events, _ := s.audits.ListByUser(s.ctx, s.creator)
	s.Require().Len(events, 1)
	s.Equal(string(audit.EventNotificationDropped), events[0].Action)
	s.Equal(preferences.ReasonTypeDisabled, events[0].Reason)
}

func (s *OrchestratorSuite) TestDisabledChannelIsSkipped() {
	s.Require().NoError(s.prefs.Put(s.ctx, &models.Preferences{
		UserID: s.creator,
		Channels: map[models.Channel]models.ChannelPreference{
			models.ChannelSMS: {Enabled: models.Bool(false)},
		},
	}))
	s.dispatch(s.event(escmodels.EventEscalationCreated, s.snapshot(escmodels.SeverityHigh)))

	r := s.onlyRecord(s.creator)
	s.NotContains(r.Deliveries, models.ChannelSMS)
	s.Len(r.Deliveries, 3)
	s.Zero(s.recorder.Calls(models.ChannelSMS))
}

func (s *OrchestratorSuite) TestQuietHours() {
	s.Run("critical at 23:30 is delivered immediately", func() {
		s.quietPush(true)
		s.dispatch(s.event(escmodels.EventEscalationCreated, s.snapshot(escmodels.SeverityCritical)))
		s.Len(s.sentTo(s.creator, models.ChannelPush), 1)
		s.Zero(s.digests.Len(s.creator))
	})

	s.Run("normal at 23:30 is deferred to digest", func() {
		s.quietPush(true)
		before := len(s.sentTo(s.creator, models.ChannelPush))
		snap := s.snapshot(escmodels.SeverityMedium)
		s.dispatch(s.event(escmodels.EventEscalationCreated, snap))

		s.Len(s.sentTo(s.creator, models.ChannelPush), before)
		s.Equal(1, s.digests.Len(s.creator))
		s.Len(s.sentTo(s.creator, models.ChannelWeb), 2)

		records, err := s.o.ListNotifications(s.ctx, s.creator, 0)
		s.Require().NoError(err)
		idx := slices.IndexFunc(records, func(r *models.Record) bool { return r.EscalationID == snap.ID })
		s.Require().GreaterOrEqual(idx, 0)
		push := records[idx].Deliveries[models.ChannelPush]
		s.Equal(models.DeliveryPending, push.Status)
		s.Equal(models.DeferQuietHours, push.Deferred)
	})
}

func (s *OrchestratorSuite) TestQuietHoursWithoutDigestRedelivers() {
	s.quietPush(false)
	s.dispatch(s.event(escmodels.EventEscalationCreated, s.snapshot(escmodels.SeverityMedium)))
	s.Empty(s.sentTo(s.creator, models.ChannelPush))
	s.Equal(1, s.o.PendingRedeliveries())

	s.clock.Advance(6*time.Hour + 30*time.Minute)

	s.Len(s.sentTo(s.creator, models.ChannelPush), 1)
	s.Zero(s.o.PendingRedeliveries())
	push := s.onlyRecord(s.creator).Deliveries[models.ChannelPush]
	s.Equal(models.DeliverySent, push.Status)
	s.Empty(push.Deferred)
}

func (s *OrchestratorSuite) TestRedeliveryHonorsLaterOptOut() {
	s.quietPush(false)
	s.dispatch(s.event(escmodels.EventEscalationCreated, s.snapshot(escmodels.SeverityMedium)))

	s.Require().NoError(s.prefs.Put(s.ctx, &models.Preferences{
		UserID: s.creator,
		Channels: map[models.Channel]models.ChannelPreference{
			models.ChannelPush: {Enabled: models.Bool(false)},
		},
	}))
	s.clock.Advance(7 * time.Hour)

	s.Empty(s.sentTo(s.creator, models.ChannelPush))
	s.NotContains(s.onlyRecord(s.creator).Deliveries, models.ChannelPush)
}

// =============================================================================
// Rate limiting
// =============================================================================

func (s *OrchestratorSuite) TestRateLimit() {
	s.Run("the sixth SMS within an hour is deferred then redelivered", func() {
		for range 6 {
			s.dispatch(s.event(escmodels.EventEscalationCreated, s.snapshot(escmodels.SeverityMedium)))
		}
		s.Len(s.sentTo(s.creator, models.ChannelSMS), 5)
		s.Len(s.sentTo(s.creator, models.ChannelWeb), 6)
		s.Equal(1, s.o.PendingRedeliveries())

		s.clock.Advance(time.Hour)
		s.Len(s.sentTo(s.creator, models.ChannelSMS), 6)
	})

	s.Run("critical bypasses the limit", func() {
		other := id.UserID(uuid.New())
		for range 7 {
			snap := s.snapshot(escmodels.SeverityCritical)
			snap.CreatedBy = other
			s.dispatch(s.event(escmodels.EventEscalationCreated, snap))
		}
		s.Len(s.sentTo(other, models.ChannelSMS), 7)
	})
}

// =============================================================================
// Delivery failures
// =============================================================================

func (s *OrchestratorSuite) TestDeliveryFailures() {
	s.Run("transient failures are retried", func() {
		s.recorder.FailNext(models.ChannelSMS,
			transport.Transient(errors.New("gateway timeout")),
			transport.Transient(errors.New("gateway timeout")),
		)
		s.dispatch(s.event(escmodels.EventEscalationCreated, s.snapshot(escmodels.SeverityHigh)))
		sms := s.onlyRecord(s.creator).Deliveries[models.ChannelSMS]
		s.Equal(models.DeliverySent, sms.Status)
		s.Equal(3, sms.Attempts)
	})

	s.Run("permanent failure is recorded and surfaced", func() {
		user := id.UserID(uuid.New())
		s.recorder.FailNext(models.ChannelEmail, transport.Permanentf("invalid address"))
		snap := s.snapshot(escmodels.SeverityHigh)
		snap.CreatedBy = user
		s.dispatch(s.event(escmodels.EventEscalationCreated, snap))

		r := s.onlyRecord(user)
		email := r.Deliveries[models.ChannelEmail]
		s.Equal(models.DeliveryFailed, email.Status)
		s.Equal(1, email.Attempts)
		s.Contains(email.LastError, "invalid address")
		s.Equal(models.DeliverySent, r.Deliveries[models.ChannelWeb].Status)

		failed, err := s.o.ListFailedDeliveries(s.ctx, 0)
		s.Require().NoError(err)
		s.Require().Len(failed, 1)
		s.Equal(r.ID, failed[0].ID)

		events, _ := s.audits.ListByUser(s.ctx, user)
		var actions []string
		for _, e := range events {
			actions = append(actions, e.Action)
		}
		s.Contains(actions, string(audit.EventDeliveryFailed))
	})
}

// =============================================================================
// Digests
// =============================================================================

func (s *OrchestratorSuite) TestFlushDigests() {
	s.quietPush(true)
	first := s.snapshot(escmodels.SeverityMedium)
	first.Title = "first"
	second := s.snapshot(escmodels.SeverityHigh)
	second.Title = "second"
	s.dispatch(s.event(escmodels.EventEscalationCreated, first))
	s.dispatch(s.event(escmodels.EventEscalationCreated, second))
	s.Equal(2, s.digests.Len(s.creator))

	s.Run("held back while still in quiet hours", func() {
		s.Require().NoError(s.o.FlushDigests(s.ctx, models.DigestDaily))
		s.Empty(s.sentTo(s.creator, models.ChannelPush))
		s.Equal(2, s.digests.Len(s.creator))
	})

	s.clock.Set(time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC))

	s.Run("other frequencies leave the queue alone", func() {
		s.Require().NoError(s.o.FlushDigests(s.ctx, models.DigestHourly))
		s.Equal(2, s.digests.Len(s.creator))
	})

	s.Run("one combined payload in enqueue order", func() {
		s.Require().NoError(s.o.FlushDigests(s.ctx, models.DigestDaily))
		s.Zero(s.digests.Len(s.creator))

		sent := s.sentTo(s.creator, models.ChannelPush)
		s.Require().Len(sent, 1)
		d := sent[0]
		s.Equal(models.TypeDigest, d.Type)
		s.Equal(models.PriorityHigh, d.Priority)
		s.Require().Len(d.Items, 2)
		s.Contains(d.Items[0].Payload.Title, "first")
		s.Contains(d.Items[1].Payload.Title, "second")

		records, err := s.o.ListNotifications(s.ctx, s.creator, 0)
		s.Require().NoError(err)
		s.Len(records, 3)
		for _, r := range records {
			s.Equal(models.DeliverySent, r.Deliveries[models.ChannelPush].Status, r.Type)
			s.Empty(r.Deliveries[models.ChannelPush].Deferred, r.Type)
		}
	})
}

func (s *OrchestratorSuite) TestDisabledDigestReroutesItems() {
	s.quietPush(true)
	s.dispatch(s.event(escmodels.EventEscalationCreated, s.snapshot(escmodels.SeverityMedium)))
	s.Equal(1, s.digests.Len(s.creator))

	s.Require().NoError(s.prefs.Put(s.ctx, &models.Preferences{UserID: s.creator}))
	s.clock.Set(time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC))
	s.Require().NoError(s.o.FlushDigests(s.ctx, models.DigestWeekly))

	s.Zero(s.digests.Len(s.creator))
	sent := s.sentTo(s.creator, models.ChannelPush)
	s.Require().Len(sent, 1)
	s.Equal(models.TypeEscalationCreated, sent[0].Type)
}

// =============================================================================
// Inbox
// =============================================================================

func (s *OrchestratorSuite) TestInbox() {
	s.dispatch(s.event(escmodels.EventEscalationCreated, s.snapshot(escmodels.SeverityLow)))
	r := s.onlyRecord(s.creator)

	s.Run("mark read", func() {
		got, err := s.o.MarkRead(s.ctx, r.ID, s.creator)
		s.Require().NoError(err)
		s.True(got.Read)
		s.Equal(s.clock.Now(), *got.ReadAt)
	})

	s.Run("other users cannot see the record", func() {
		_, err := s.o.MarkRead(s.ctx, r.ID, s.owner)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
		_, err = s.o.MarkRead(s.ctx, id.NewNotificationID(), s.creator)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("record action", func() {
		_, err := s.o.RecordAction(s.ctx, r.ID, s.creator, "  ")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))

		got, err := s.o.RecordAction(s.ctx, r.ID, s.creator, "called her")
		s.Require().NoError(err)
		s.Equal("called her", got.ActionTaken)
		s.NotNil(got.ActionAt)
	})

	s.Run("provider callback marks a bounce", func() {
		got, err := s.o.HandleDeliveryCallback(s.ctx, r.ID, models.ChannelEmail, models.DeliveryBounced, "mailbox full")
		s.Require().NoError(err)
		s.Equal(models.DeliveryBounced, got.Deliveries[models.ChannelEmail].Status)
		s.Equal("mailbox full", got.Deliveries[models.ChannelEmail].LastError)

		failed, _ := s.o.ListFailedDeliveries(s.ctx, 10)
		s.Len(failed, 1)
	})

	s.Run("callback validation", func() {
		_, err := s.o.HandleDeliveryCallback(s.ctx, r.ID, models.ChannelEmail, models.DeliveryPending, "")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		_, err = s.o.HandleDeliveryCallback(s.ctx, id.NewNotificationID(), models.ChannelEmail, models.DeliverySent, "")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

// =============================================================================
// Lifecycle
// =============================================================================

func (s *OrchestratorSuite) TestClose() {
	s.quietPush(false)
	s.dispatch(s.event(escmodels.EventEscalationCreated, s.snapshot(escmodels.SeverityMedium)))
	s.Equal(1, s.o.PendingRedeliveries())

	s.Require().NoError(s.o.Close(s.ctx))
	s.Zero(s.o.PendingRedeliveries())
	s.Zero(s.clock.Pending())

	s.o.Dispatch(s.ctx, []escmodels.DomainEvent{s.event(escmodels.EventEscalationCreated, s.snapshot(escmodels.SeverityHigh))})
	s.Require().NoError(s.o.Drain(s.ctx))
	s.Len(s.sentTo(s.creator, models.ChannelWeb), 1)
}

func TestNew(t *testing.T) {
	_, err := New(nil, dispatch.New(transport.NewRecorder()))
	if err == nil {
		t.Fatal("expected error for missing record store")
	}
	_, err = New(store.NewInMemoryStore(), nil)
	if err == nil {
		t.Fatal("expected error for missing dispatcher")
	}
}

// =============================================================================
// Collaborator failures
// =============================================================================

func TestOrchestrator_Collaborators(t *testing.T) {
	start := time.Date(2025, 6, 1, 23, 30, 0, 0, time.UTC)
	creator := id.UserID(uuid.New())
	snap := &escmodels.EscalationEvent{
		ID:           id.NewEscalationID(),
		Title:        "Basement flooding",
		Context:      escmodels.ContextProperty,
		Severity:     escmodels.SeverityMedium,
		CurrentLevel: escmodels.LevelIndividual,
		Status:       escmodels.StatusOpen,
		CreatedBy:    creator,
		CurrentOwner: creator,
		Version:      1,
	}
	created := escmodels.DomainEvent{
		Type:         escmodels.EventEscalationCreated,
		EscalationID: snap.ID,
		Version:      1,
		Snapshot:     snap,
	}

	t.Run("store outages do not block delivery", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		records := mocks.NewMockRecordStore(ctrl)
		prefs := mocks.NewMockPreferenceStore(ctrl)
		rec := transport.NewRecorder()

		prefs.EXPECT().GetPreferences(gomock.Any(), creator).Return(nil, errors.New("profile service down"))
		records.EXPECT().Create(gomock.Any(), gomock.Any()).Return(errors.New("db down"))
		records.EXPECT().Update(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, errors.New("db down")).Times(len(models.AllChannels))

		o, err := New(records, dispatch.New(rec, dispatch.WithSleep(noSleep)),
			WithPreferences(prefs),
			WithClock(clock.NewFake(start)),
		)
		if err != nil {
			t.Fatal(err)
		}
		defer o.Close(context.Background())

		o.Dispatch(context.Background(), []escmodels.DomainEvent{created})
		if err := o.Drain(context.Background()); err != nil {
			t.Fatal(err)
		}
		if got := len(rec.Sent()); got != len(models.AllChannels) {
			t.Fatalf("sent %d payloads, want %d", got, len(models.AllChannels))
		}
	})

	t.Run("digest outage falls back to redelivery", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		prefs := mocks.NewMockPreferenceStore(ctrl)
		queue := mocks.NewMockDigestQueue(ctrl)
		auditor := mocks.NewMockAuditPublisher(ctrl)
		fake := clock.NewFake(start)
		rec := transport.NewRecorder()

		prefs.EXPECT().GetPreferences(gomock.Any(), creator).Return(&models.Preferences{
			UserID: creator,
			Channels: map[models.Channel]models.ChannelPreference{
				models.ChannelSMS: {QuietHours: &models.QuietHours{Start: "22:00", End: "07:00"}},
			},
			Digest: models.DigestPreference{Enabled: true},
		}, nil).AnyTimes()
		queue.EXPECT().Enqueue(gomock.Any(), creator, gomock.Any()).Return(errors.New("redis down"))

		var actions []string
		auditor.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, e audit.Event) error {
			actions = append(actions, e.Action)
			return nil
		}).AnyTimes()

		o, err := New(store.NewInMemoryStore(), dispatch.New(rec, dispatch.WithSleep(noSleep)),
			WithPreferences(prefs),
			WithDigestQueue(queue),
			WithAuditPublisher(auditor),
			WithClock(fake),
		)
		if err != nil {
			t.Fatal(err)
		}
		defer o.Close(context.Background())

		o.Dispatch(context.Background(), []escmodels.DomainEvent{created})
		if err := o.Drain(context.Background()); err != nil {
			t.Fatal(err)
		}
		if o.PendingRedeliveries() != 1 {
			t.Fatalf("pending redeliveries = %d, want 1", o.PendingRedeliveries())
		}
		if len(actions) != 1 || actions[0] != string(audit.EventNotificationDeferred) {
			t.Fatalf("audit actions = %v", actions)
		}

		fake.Advance(8 * time.Hour)
		if rec.Calls(models.ChannelSMS) != 1 {
			t.Fatalf("sms calls = %d, want 1", rec.Calls(models.ChannelSMS))
		}
	})

	t.Run("digest flush keeps readable items and reschedules held ones", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		prefs := mocks.NewMockPreferenceStore(ctrl)
		queue := mocks.NewMockDigestQueue(ctrl)
		fake := clock.NewFake(start)
		rec := transport.NewRecorder()

		prefs.EXPECT().GetPreferences(gomock.Any(), creator).Return(&models.Preferences{
			UserID: creator,
			Channels: map[models.Channel]models.ChannelPreference{
				models.ChannelSMS: {QuietHours: &models.QuietHours{Start: "22:00", End: "07:00"}},
			},
			Digest: models.DigestPreference{Enabled: true, Frequency: models.DigestDaily},
		}, nil).AnyTimes()

		item := func(ch models.Channel, title string) models.DigestItem {
			return models.DigestItem{
				Channel: ch,
				Payload: models.Payload{
					NotificationID: id.NewNotificationID(),
					UserID:         creator,
					Type:           models.TypeEscalationCreated,
					Priority:       models.PriorityNormal,
					Title:          title,
					DedupKey:       uuid.NewString(),
				},
				Reason: models.DeferRateLimit,
			}
		}
		held := item(models.ChannelSMS, "held")
		queue.EXPECT().Users(gomock.Any()).Return([]id.UserID{creator}, nil)
		queue.EXPECT().Drain(gomock.Any(), creator).Return(
			[]models.DigestItem{held, item(models.ChannelPush, "readable")},
			fmt.Errorf("1 entries parked: %w", digest.ErrUndecodable),
		)
		queue.EXPECT().Requeue(gomock.Any(), creator, []models.DigestItem{held}).Return(errors.New("redis down"))

		o, err := New(store.NewInMemoryStore(), dispatch.New(rec, dispatch.WithSleep(noSleep)),
			WithPreferences(prefs),
			WithDigestQueue(queue),
			WithClock(fake),
		)
		if err != nil {
			t.Fatal(err)
		}
		defer o.Close(context.Background())

		if err := o.FlushDigests(context.Background(), models.DigestDaily); err != nil {
			t.Fatal(err)
		}
		if rec.Calls(models.ChannelPush) != 1 {
			t.Fatalf("push calls = %d, want 1", rec.Calls(models.ChannelPush))
		}
		if o.PendingRedeliveries() != 1 {
			t.Fatalf("pending redeliveries = %d, want 1", o.PendingRedeliveries())
		}

		fake.Advance(8 * time.Hour)
		if rec.Calls(models.ChannelSMS) != 1 {
			t.Fatalf("sms calls = %d, want 1", rec.Calls(models.ChannelSMS))
		}
	})
}
