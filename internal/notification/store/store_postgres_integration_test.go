//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"safecircle/internal/notification/models"
	"safecircle/internal/notification/preferences"
	"safecircle/internal/notification/store"
	id "safecircle/pkg/domain"
	"safecircle/pkg/platform/sentinel"
	"safecircle/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
	prefs    *preferences.PostgresStore
	ctx      context.Context
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
	s.prefs = preferences.NewPostgresStore(s.postgres.DB)
	s.ctx = context.Background()
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(s.ctx, "notification_records", "notification_preferences"))
}

func (s *PostgresStoreSuite) newRecord(user id.UserID, at time.Time) *models.Record {
	p := models.Payload{
		NotificationID: id.NewNotificationID(),
		UserID:         user,
		EscalationID:   id.NewEscalationID(),
		Type:           models.TypeResponderAssigned,
		Priority:       models.PriorityCritical,
		Title:          "You were assigned",
		DedupKey:       uuid.NewString(),
	}
	return models.NewRecord(p, []models.Channel{models.ChannelPush, models.ChannelEmail}, at)
}

func (s *PostgresStoreSuite) TestRecords() {
	user := id.UserID(uuid.New())
	now := time.Now().UTC().Truncate(time.Microsecond)

	s.Run("create and read back", func() {
		r := s.newRecord(user, now)
		s.Require().NoError(s.store.Create(s.ctx, r))

		got, err := s.store.GetByDedupKey(s.ctx, r.DedupKey)
		s.Require().NoError(err)
		s.Equal(r.ID, got.ID)
		s.Equal(models.PriorityCritical, got.Priority)
		s.Equal(models.DeliveryPending, got.Deliveries[models.ChannelEmail].Status)

		dup := s.newRecord(user, now)
		dup.DedupKey = r.DedupKey
		s.ErrorIs(s.store.Create(s.ctx, dup), sentinel.ErrConflict)
	})

	s.Run("update marks failures", func() {
		r := s.newRecord(user, now.Add(time.Second))
		s.Require().NoError(s.store.Create(s.ctx, r))
		_, err := s.store.Update(s.ctx, r.ID, func(rec *models.Record) error {
			rec.Deliveries[models.ChannelEmail] = models.ChannelDelivery{
				Status: models.DeliveryFailed, Attempts: 1, LastError: "invalid address",
			}
			rec.UpdatedAt = now.Add(2 * time.Second)
			return nil
		})
		s.Require().NoError(err)

		failed, err := s.store.ListFailed(s.ctx, 0)
		s.Require().NoError(err)
		s.Require().Len(failed, 1)
		s.Equal(r.ID, failed[0].ID)
		s.Equal("invalid address", failed[0].Deliveries[models.ChannelEmail].LastError)
	})

	s.Run("list by user newest first", func() {
		got, err := s.store.ListByUser(s.ctx, user, 0)
		s.Require().NoError(err)
		s.Require().Len(got, 2)
		s.True(got[0].CreatedAt.After(got[1].CreatedAt))
	})

	s.Run("missing record", func() {
		_, err := s.store.Update(s.ctx, id.NewNotificationID(), func(*models.Record) error { return nil })
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *PostgresStoreSuite) TestPreferences() {
	user := id.UserID(uuid.New())

	_, err := s.prefs.GetPreferences(s.ctx, user)
	s.ErrorIs(err, sentinel.ErrNotFound)

	prefs := &models.Preferences{
		UserID:   user,
		Timezone: "Europe/Berlin",
		Channels: map[models.Channel]models.ChannelPreference{
			models.ChannelSMS: {
				Enabled:    models.Bool(false),
				QuietHours: &models.QuietHours{Start: "22:00", End: "06:00", Days: 0b0111110},
				RateLimit:  &models.RateLimit{Max: 2, Window: time.Hour},
			},
		},
		Digest:    models.DigestPreference{Enabled: true, Frequency: models.DigestDaily},
		UpdatedAt: time.Now().UTC(),
	}
	s.Require().NoError(s.prefs.Put(s.ctx, prefs))

	got, err := s.prefs.GetPreferences(s.ctx, user)
	s.Require().NoError(err)
	s.False(got.ChannelEnabled(models.ChannelSMS))
	s.True(got.ChannelEnabled(models.ChannelEmail))
	rl, ok := got.RateLimitFor(models.ChannelSMS)
	s.True(ok)
	s.Equal(time.Hour, rl.Window)
	s.Equal(models.DigestDaily, got.Digest.Frequency)
}
