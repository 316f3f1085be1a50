package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	escmodels "safecircle/internal/escalation/models"
	"safecircle/internal/notification/models"
	"safecircle/internal/notification/preferences"
	id "safecircle/pkg/domain"
	"safecircle/pkg/platform/audit"
	"safecircle/pkg/platform/sentinel"
)

// dedupNamespace scopes payload dedup keys derived with uuid.NewSHA1.
var dedupNamespace = uuid.MustParse("5b0d4a64-3c9e-4f43-9e83-0c6a3f1b8f21")

// maxRecipientFanout bounds concurrent recipients per domain event.
const maxRecipientFanout = 8

func (o *Orchestrator) processEvent(ctx context.Context, ev escmodels.DomainEvent) {
	nt, ok := models.TypeForEvent(ev.Type)
	if !ok || ev.Snapshot == nil {
		return
	}
	ctx, span := o.tracer.Start(ctx, "notification.handle_event",
		trace.WithAttributes(
			attribute.String("escalation.id", ev.EscalationID.String()),
			attribute.String("event.type", string(ev.Type)),
			attribute.Int64("escalation.version", ev.Version),
		),
	)
	defer span.End()

	priority := models.PriorityForSeverity(ev.Snapshot.Severity)
	recipients := Recipients(ev)
	span.SetAttributes(attribute.Int("notification.recipients", len(recipients)))

	// One recipient's failure never blocks the others, so the group
	// functions always return nil.
	var g errgroup.Group
	g.SetLimit(maxRecipientFanout)
	for _, userID := range recipients {
		g.Go(func() error {
			o.notifyRecipient(ctx, ev, nt, priority, userID)
			return nil
		})
	}
	_ = g.Wait()
}

// Recipients returns who is told about ev: the creator for creation and
// resolution, each newly assigned responder, and the creator plus current
// owner for a level change.
func Recipients(ev escmodels.DomainEvent) []id.UserID {
	snap := ev.Snapshot
	if snap == nil {
		return nil
	}
	switch ev.Type {
	case escmodels.EventEscalationCreated, escmodels.EventEscalationResolved:
		return []id.UserID{snap.CreatedBy}
	case escmodels.EventResponderAssigned:
		if ev.Assignment == nil {
			return nil
		}
		return []id.UserID{ev.Assignment.UserID}
	case escmodels.EventEscalationEscalated:
		out := []id.UserID{snap.CreatedBy}
		if !snap.CurrentOwner.IsNil() && snap.CurrentOwner != snap.CreatedBy {
			out = append(out, snap.CurrentOwner)
		}
		return out
	}
	return nil
}

// buildPayload derives a dedup key stable across redelivery of the same
// domain event to the same user.
func (o *Orchestrator) buildPayload(ev escmodels.DomainEvent, nt models.Type, priority models.Priority, userID id.UserID) models.Payload {
	snap := ev.Snapshot
	title, body := render(ev, nt)
	key := fmt.Sprintf("%s|%d|%d|%s|%s", ev.EscalationID, ev.Version, ev.Sequence, nt, userID)
	return models.Payload{
		NotificationID: id.NewNotificationID(),
		UserID:         userID,
		EscalationID:   ev.EscalationID,
		Type:           nt,
		Priority:       priority,
		Title:          title,
		Body:           body,
		Context:        snap.Context,
		Severity:       snap.Severity,
		Level:          snap.CurrentLevel,
		Version:        ev.Version,
		DedupKey:       uuid.NewSHA1(dedupNamespace, []byte(key)).String(),
		CreatedAt:      o.clock.Now(),
	}
}

type deferral struct {
	channel models.Channel
	reason  models.DeferReason
	until   time.Time
}

func (o *Orchestrator) notifyRecipient(ctx context.Context, ev escmodels.DomainEvent, nt models.Type, priority models.Priority, userID id.UserID) {
	prefs := o.prefs.Load(ctx, userID)
	p := o.buildPayload(ev, nt, priority, userID)
	now := o.clock.Now()

	var (
		immediate []models.Channel
		deferred  []deferral
		dropped   string
	)
	for _, ch := range models.AllChannels {
		d := preferences.Resolve(prefs, nt, p.Context, p.Level, ch, now)
		if !d.Allowed {
			if dropped == "" || d.Reason != preferences.ReasonChannelDisabled {
				dropped = d.Reason
			}
			continue
		}
		if d.InQuietHours && priority != models.PriorityCritical {
			deferred = append(deferred, deferral{channel: ch, reason: models.DeferQuietHours, until: d.QuietUntil})
			continue
		}
		res, err := o.limiter.Check(ctx, userID, ch, prefs, priority == models.PriorityCritical)
		if err != nil {
			o.logger.WarnContext(ctx, "rate limiter unavailable, delivering",
				"user_id", userID.String(),
				"channel", string(ch),
				"error", err,
			)
		} else if !res.Allowed {
			deferred = append(deferred, deferral{channel: ch, reason: models.DeferRateLimit, until: res.ResetAt})
			continue
		}
		immediate = append(immediate, ch)
	}

	if len(immediate) == 0 && len(deferred) == 0 {
		o.drop(ctx, p, dropped)
		return
	}

	channels := slices.Clone(immediate)
	for _, d := range deferred {
		channels = append(channels, d.channel)
	}
	record := models.NewRecord(p, channels, now)
	for _, d := range deferred {
		cd := record.Deliveries[d.channel]
		cd.Deferred = d.reason
		record.Deliveries[d.channel] = cd
	}
	if err := o.records.Create(ctx, record); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			o.logger.DebugContext(ctx, "notification already recorded",
				"user_id", userID.String(),
				"escalation_id", p.EscalationID.String(),
				"type", string(nt),
			)
			return
		}
		o.logger.ErrorContext(ctx, "failed to record notification, delivering anyway",
			"user_id", userID.String(),
			"escalation_id", p.EscalationID.String(),
			"error", err,
		)
	}

	for _, d := range deferred {
		o.deferChannel(ctx, prefs, p, d)
	}
	o.deliverChannels(ctx, p, immediate)
}

func (o *Orchestrator) drop(ctx context.Context, p models.Payload, reason string) {
	o.metrics.IncrementDropped(reason)
	o.logger.DebugContext(ctx, "notification dropped by preferences",
		"user_id", p.UserID.String(),
		"escalation_id", p.EscalationID.String(),
		"type", string(p.Type),
		"reason", reason,
	)
	o.emitAudit(ctx, audit.EventNotificationDropped, p, "", reason)
}

// deliverChannels sends p on each channel concurrently; ordering between
// channels is not guaranteed.
func (o *Orchestrator) deliverChannels(ctx context.Context, p models.Payload, channels []models.Channel) {
	var g errgroup.Group
	for _, ch := range channels {
		g.Go(func() error {
			o.deliver(ctx, p, ch)
			return nil
		})
	}
	_ = g.Wait()
}

// deliver dispatches one channel and writes its outcome to the record.
func (o *Orchestrator) deliver(ctx context.Context, p models.Payload, ch models.Channel) {
	out := o.dispatcher.Deliver(ctx, ch, p)
	o.metrics.IncrementDispatched(string(ch), string(out.Status))
	o.applyOutcome(ctx, p.NotificationID, ch, out.Status, out.Attempts, out.ProviderMessageID, out.Err)
	if out.Status.IsFailure() {
		o.emitAudit(ctx, audit.EventDeliveryFailed, p, string(ch), errString(out.Err))
	}
}

func (o *Orchestrator) applyOutcome(ctx context.Context, nid id.NotificationID, ch models.Channel, status models.DeliveryStatus, attempts int, providerID string, cause error) {
	now := o.clock.Now()
	_, err := o.records.Update(ctx, nid, func(r *models.Record) error {
		cd := r.Deliveries[ch]
		cd.Status = status
		cd.Attempts += attempts
		cd.Deferred = ""
		cd.LastError = errString(cause)
		if providerID != "" {
			cd.ProviderMessageID = providerID
		}
		if status == models.DeliverySent {
			cd.SentAt = &now
		}
		cd.UpdatedAt = now
		if r.Deliveries == nil {
			r.Deliveries = make(map[models.Channel]models.ChannelDelivery)
		}
		r.Deliveries[ch] = cd
		r.UpdatedAt = now
		return nil
	})
	if err != nil {
		o.logger.ErrorContext(ctx, "failed to record delivery outcome",
			"notification_id", nid.String(),
			"channel", string(ch),
			"status", string(status),
			"error", err,
		)
	}
}

func (o *Orchestrator) emitAudit(ctx context.Context, action audit.AuditEvent, p models.Payload, ch, reason string) {
	if o.auditor == nil {
		return
	}
	subject := string(p.Type)
	if ch != "" {
		subject += "/" + ch
	}
	event := audit.Event{
		Category:     action.Category(),
		Timestamp:    o.clock.Now(),
		UserID:       p.UserID,
		EscalationID: p.EscalationID.String(),
		Subject:      subject,
		Action:       string(action),
		Decision:     p.Priority.String(),
		Reason:       reason,
		ActorID:      escmodels.SystemActor,
	}
	if err := o.auditor.Emit(ctx, event); err != nil {
		o.logger.WarnContext(ctx, "failed to emit audit event",
			"action", string(action),
			"user_id", p.UserID.String(),
			"error", err,
		)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
