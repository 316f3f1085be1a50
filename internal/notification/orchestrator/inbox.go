package orchestrator

import (
	"context"
	"errors"
	"strings"

	"safecircle/internal/notification/models"
	id "safecircle/pkg/domain"
	dErrors "safecircle/pkg/domain-errors"
	"safecircle/pkg/platform/audit"
	"safecircle/pkg/platform/sentinel"
)

const maxActionLength = 500

// ListNotifications returns the user's records, newest first.
func (o *Orchestrator) ListNotifications(ctx context.Context, userID id.UserID, limit int) ([]*models.Record, error) {
	records, err := o.records.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, storeError(err, "list notifications")
	}
	return records, nil
}

func (o *Orchestrator) MarkRead(ctx context.Context, notificationID id.NotificationID, userID id.UserID) (*models.Record, error) {
	return o.updateOwned(ctx, notificationID, userID, func(r *models.Record) {
		if r.Read {
			return
		}
		now := o.clock.Now()
		r.Read = true
		r.ReadAt = &now
		r.UpdatedAt = now
	})
}

// RecordAction stores what the recipient did in response, which also
// marks the notification read.
func (o *Orchestrator) RecordAction(ctx context.Context, notificationID id.NotificationID, userID id.UserID, action string) (*models.Record, error) {
	action = strings.TrimSpace(action)
	if action == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "action is required")
	}
	if len(action) > maxActionLength {
		return nil, dErrors.New(dErrors.CodeValidation, "action is too long")
	}
	return o.updateOwned(ctx, notificationID, userID, func(r *models.Record) {
		now := o.clock.Now()
		r.ActionTaken = action
		r.ActionAt = &now
		if !r.Read {
			r.Read = true
			r.ReadAt = &now
		}
		r.UpdatedAt = now
	})
}

var errNotOwner = errors.New("notification belongs to another user")

func (o *Orchestrator) updateOwned(ctx context.Context, notificationID id.NotificationID, userID id.UserID, fn func(*models.Record)) (*models.Record, error) {
	r, err := o.records.Update(ctx, notificationID, func(r *models.Record) error {
		if r.UserID != userID {
			return errNotOwner
		}
		fn(r)
		return nil
	})
	if errors.Is(err, errNotOwner) {
		return nil, dErrors.New(dErrors.CodeNotFound, "notification not found")
	}
	if err != nil {
		return nil, storeError(err, "update notification")
	}
	return r, nil
}

// ListFailedDeliveries surfaces permanent failures for operators.
func (o *Orchestrator) ListFailedDeliveries(ctx context.Context, limit int) ([]*models.Record, error) {
	records, err := o.records.ListFailed(ctx, limit)
	if err != nil {
		return nil, storeError(err, "list failed notifications")
	}
	return records, nil
}

// HandleDeliveryCallback applies a provider's asynchronous verdict for one
// channel of a record.
func (o *Orchestrator) HandleDeliveryCallback(ctx context.Context, notificationID id.NotificationID, ch models.Channel, status models.DeliveryStatus, detail string) (*models.Record, error) {
	if status == models.DeliveryPending {
		return nil, dErrors.New(dErrors.CodeValidation, "callback status must be SENT, FAILED or BOUNCED")
	}
	var unknownChannel bool
	r, err := o.records.Update(ctx, notificationID, func(r *models.Record) error {
		cd, ok := r.Deliveries[ch]
		if !ok {
			unknownChannel = true
			return sentinel.ErrNotFound
		}
		now := o.clock.Now()
		cd.Status = status
		cd.UpdatedAt = now
		if status == models.DeliverySent {
			cd.LastError = ""
			if cd.SentAt == nil {
				cd.SentAt = &now
			}
		} else {
			cd.LastError = detail
		}
		r.Deliveries[ch] = cd
		r.UpdatedAt = now
		return nil
	})
	if unknownChannel {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "notification has no %s delivery", ch)
	}
	if err != nil {
		return nil, storeError(err, "apply delivery callback")
	}

	o.metrics.IncrementDispatched(string(ch), string(status))
	if status.IsFailure() {
		p := models.Payload{
			NotificationID: r.ID,
			UserID:         r.UserID,
			EscalationID:   r.EscalationID,
			Type:           r.Type,
			Priority:       r.Priority,
		}
		o.logger.ErrorContext(ctx, "provider reported delivery failure",
			"notification_id", r.ID.String(),
			"channel", string(ch),
			"status", string(status),
			"detail", detail,
		)
		o.emitAudit(ctx, audit.EventDeliveryFailed, p, string(ch), detail)
	}
	return r, nil
}

func storeError(err error, op string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, "notification not found")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return dErrors.Wrap(err, dErrors.CodeTimeout, op+" timed out")
	case errors.Is(err, sentinel.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, op+" unavailable")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, op+" failed")
	}
}
