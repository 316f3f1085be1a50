package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"safecircle/internal/notification/models"
	"safecircle/internal/notification/preferences"
	id "safecircle/pkg/domain"
	"safecircle/pkg/platform/audit"
)

// defaultDigestFrequency applies when a user enables digests without
// choosing a frequency.
const defaultDigestFrequency = models.DigestDaily

// FlushDigests delivers pending digests for every user whose frequency is
// freq. Users who turned digests off get their items through the normal
// per-item path instead.
func (o *Orchestrator) FlushDigests(ctx context.Context, freq models.DigestFrequency) error {
	ctx, span := o.tracer.Start(ctx, "notification.flush_digests",
		trace.WithAttributes(attribute.String("digest.frequency", string(freq))),
	)
	defer span.End()

	users, err := o.digests.Users(ctx)
	if err != nil {
		return fmt.Errorf("list digest users: %w", err)
	}
	var g errgroup.Group
	g.SetLimit(maxRecipientFanout)
	for _, userID := range users {
		g.Go(func() error {
			o.flushUser(ctx, userID, freq)
			return nil
		})
	}
	return g.Wait()
}

func (o *Orchestrator) flushUser(ctx context.Context, userID id.UserID, freq models.DigestFrequency) {
	prefs := o.prefs.Load(ctx, userID)
	userFreq := prefs.Digest.Frequency
	if userFreq == "" {
		userFreq = defaultDigestFrequency
	}
	if prefs.Digest.Enabled && userFreq != freq {
		return
	}

	items, err := o.digests.Drain(ctx, userID)
	if err != nil {
		o.logger.WarnContext(ctx, "failed to drain digest",
			"user_id", userID.String(),
			"drained", len(items),
			"error", err,
		)
	}
	if len(items) == 0 {
		return
	}

	if !prefs.Digest.Enabled {
		for _, item := range items {
			o.redeliver(ctx, item.Payload, item.Channel)
		}
		return
	}

	now := o.clock.Now()
	byChannel := make(map[models.Channel][]models.DigestItem)
	var held []models.DigestItem
	for _, item := range items {
		if quiet, _ := preferences.InQuietHours(prefs, item.Channel, now); quiet {
			held = append(held, item)
			continue
		}
		byChannel[item.Channel] = append(byChannel[item.Channel], item)
	}
	if len(held) > 0 {
		if err := o.digests.Requeue(ctx, userID, held); err != nil {
			o.logger.WarnContext(ctx, "failed to requeue held digest items, scheduling redelivery",
				"user_id", userID.String(),
				"count", len(held),
				"error", err,
			)
			for _, item := range held {
				_, until := preferences.InQuietHours(prefs, item.Channel, now)
				o.scheduleRedelivery(item.Payload, deferral{channel: item.Channel, reason: models.DeferQuietHours, until: until})
			}
		}
	}

	for _, ch := range models.AllChannels {
		chItems := byChannel[ch]
		if len(chItems) == 0 {
			continue
		}
		if !prefs.ChannelEnabled(ch) {
			for _, item := range chItems {
				o.forgetChannel(ctx, item.Payload, ch, preferences.ReasonChannelDisabled)
			}
			continue
		}
		o.sendDigest(ctx, userID, ch, freq, chItems)
	}
}

// sendDigest delivers one combined payload and applies its outcome to the
// record of every item it carries.
func (o *Orchestrator) sendDigest(ctx context.Context, userID id.UserID, ch models.Channel, freq models.DigestFrequency, items []models.DigestItem) {
	p := o.buildDigest(userID, ch, freq, items)
	if err := o.records.Create(ctx, models.NewRecord(p, []models.Channel{ch}, p.CreatedAt)); err != nil {
		o.logger.ErrorContext(ctx, "failed to record digest, delivering anyway",
			"user_id", userID.String(),
			"channel", string(ch),
			"error", err,
		)
	}

	out := o.dispatcher.Deliver(ctx, ch, p)
	o.metrics.IncrementDispatched(string(ch), string(out.Status))
	o.applyOutcome(ctx, p.NotificationID, ch, out.Status, out.Attempts, out.ProviderMessageID, out.Err)
	for _, item := range items {
		o.applyOutcome(ctx, item.Payload.NotificationID, ch, out.Status, 0, out.ProviderMessageID, out.Err)
	}
	if out.Status.IsFailure() {
		o.emitAudit(ctx, audit.EventDeliveryFailed, p, string(ch), errString(out.Err))
		return
	}
	o.metrics.IncrementDigestFlush(string(freq))
	o.emitAudit(ctx, audit.EventDigestFlushed, p, string(ch), fmt.Sprintf("%d items", len(items)))
}

func (o *Orchestrator) buildDigest(userID id.UserID, ch models.Channel, freq models.DigestFrequency, items []models.DigestItem) models.Payload {
	priority := models.PriorityLow
	keys := make([]string, 0, len(items))
	lines := make([]string, 0, len(items))
	for _, item := range items {
		priority = max(priority, item.Payload.Priority)
		keys = append(keys, item.Payload.DedupKey)
		lines = append(lines, "- "+item.Payload.Title)
	}
	key := fmt.Sprintf("digest|%s|%s|%s|%s", userID, ch, freq, strings.Join(keys, ","))
	return models.Payload{
		NotificationID: id.NewNotificationID(),
		UserID:         userID,
		Type:           models.TypeDigest,
		Priority:       priority,
		Title:          fmt.Sprintf("%d notifications while you were away", len(items)),
		Body:           strings.Join(lines, "\n"),
		DedupKey:       uuid.NewSHA1(dedupNamespace, []byte(key)).String(),
		CreatedAt:      o.clock.Now(),
		Items:          items,
	}
}
