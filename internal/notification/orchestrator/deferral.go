package orchestrator

import (
	"context"
	"time"

	"safecircle/internal/notification/models"
	"safecircle/internal/notification/preferences"
	"safecircle/pkg/platform/audit"
	"safecircle/pkg/platform/clock"
)

// minRedeliveryDelay keeps a redelivery from spinning when the window has
// already ended by the time it is scheduled.
const minRedeliveryDelay = time.Second

// deferChannel queues p for the user's digest, or schedules a redelivery
// when digests are off or the queue is unavailable. It never drops.
func (o *Orchestrator) deferChannel(ctx context.Context, prefs *models.Preferences, p models.Payload, d deferral) {
	o.metrics.IncrementDeferred(string(d.reason))
	o.emitAudit(ctx, audit.EventNotificationDeferred, p, string(d.channel), string(d.reason))

	if prefs.Digest.Enabled {
		item := models.DigestItem{
			Channel:    d.channel,
			Payload:    p,
			Reason:     d.reason,
			DeferredAt: o.clock.Now(),
		}
		err := o.digests.Enqueue(ctx, p.UserID, item)
		if err == nil {
			o.logger.DebugContext(ctx, "notification deferred to digest",
				"user_id", p.UserID.String(),
				"channel", string(d.channel),
				"reason", string(d.reason),
			)
			return
		}
		o.logger.WarnContext(ctx, "digest queue unavailable, scheduling redelivery",
			"user_id", p.UserID.String(),
			"channel", string(d.channel),
			"error", err,
		)
	}
	o.scheduleRedelivery(p, d)
}

func redeliveryKey(p models.Payload, ch models.Channel) string {
	return p.DedupKey + "|" + string(ch)
}

// scheduleRedelivery retries p on the channel when the quiet window ends or
// the rate-limit window resets.
func (o *Orchestrator) scheduleRedelivery(p models.Payload, d deferral) {
	delay := max(d.until.Sub(o.clock.Now()), minRedeliveryDelay)
	key := redeliveryKey(p, d.channel)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	if prev, ok := o.timers[key]; ok {
		prev.Stop()
	}
	var t clock.Timer
	t = o.clock.AfterFunc(delay, func() {
		o.mu.Lock()
		if cur, ok := o.timers[key]; !ok || cur != t {
			o.mu.Unlock()
			return
		}
		delete(o.timers, key)
		o.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), backgroundTimeout)
		defer cancel()
		o.redeliver(ctx, p, d.channel)
	})
	o.timers[key] = t
	o.logger.Debug("notification redelivery scheduled",
		"user_id", p.UserID.String(),
		"channel", string(d.channel),
		"reason", string(d.reason),
		"delay", delay,
	)
}

// redeliver re-runs the per-channel checks for a deferred payload. CRITICAL
// payloads are never deferred, so the limiter is not bypassed here.
func (o *Orchestrator) redeliver(ctx context.Context, p models.Payload, ch models.Channel) {
	prefs := o.prefs.Load(ctx, p.UserID)
	now := o.clock.Now()

	d := preferences.Resolve(prefs, p.Type, p.Context, p.Level, ch, now)
	if !d.Allowed {
		o.forgetChannel(ctx, p, ch, d.Reason)
		return
	}
	if d.InQuietHours {
		o.deferChannel(ctx, prefs, p, deferral{channel: ch, reason: models.DeferQuietHours, until: d.QuietUntil})
		return
	}
	res, err := o.limiter.Check(ctx, p.UserID, ch, prefs, false)
	if err == nil && !res.Allowed {
		o.deferChannel(ctx, prefs, p, deferral{channel: ch, reason: models.DeferRateLimit, until: res.ResetAt})
		return
	}
	o.deliver(ctx, p, ch)
}

// forgetChannel removes a deferred channel the user opted out of meanwhile.
func (o *Orchestrator) forgetChannel(ctx context.Context, p models.Payload, ch models.Channel, reason string) {
	o.metrics.IncrementDropped(reason)
	o.emitAudit(ctx, audit.EventNotificationDropped, p, string(ch), reason)
	_, err := o.records.Update(ctx, p.NotificationID, func(r *models.Record) error {
		delete(r.Deliveries, ch)
		r.UpdatedAt = o.clock.Now()
		return nil
	})
	if err != nil {
		o.logger.WarnContext(ctx, "failed to update notification after opt-out",
			"notification_id", p.NotificationID.String(),
			"channel", string(ch),
			"error", err,
		)
	}
}
