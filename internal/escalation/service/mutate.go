package service

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"safecircle/internal/escalation/models"
	id "safecircle/pkg/domain"
	dErrors "safecircle/pkg/domain-errors"
	"safecircle/pkg/platform/audit"
	"safecircle/pkg/platform/sentinel"
	"safecircle/pkg/requestcontext"
)

// operation names a facade call for tracing, metrics and the audit record
// it leaves behind when the domain events alone do not describe it.
type operation struct {
	name  string
	audit audit.AuditEvent
}

var (
	opCreate      = operation{name: "create"}
	opEscalate    = operation{name: "escalate"}
	opSLA         = operation{name: "acknowledgment_sla"}
	opAssign      = operation{name: "assign_responder"}
	opAcknowledge = operation{name: "acknowledge"}
	opHandoff     = operation{name: "handoff", audit: audit.EventEscalationHandedOff}
	opStatus      = operation{name: "update_status", audit: audit.EventStatusChanged}
	opSeverity    = operation{name: "update_severity", audit: audit.EventSeverityChanged}
	opLogAction   = operation{name: "log_action", audit: audit.EventResponderActionLogged}
)

// mutation applies one state machine operation to e. changed is false when
// the operation was a no-op and nothing needs to be saved.
type mutation func(e *models.EscalationEvent, now time.Time) (events []models.DomainEvent, changed bool, err error)

// mutate runs fn against the latest committed state under the per-event
// lock. A stale save is retried against a fresh load so callers on other
// instances cannot be silently overwritten.
func (s *Service) mutate(ctx context.Context, op operation, escalationID id.EscalationID, actor string, fn mutation) (*models.EscalationEvent, []models.DomainEvent, error) {
	unlock, err := s.locks.Lock(ctx, escalationID.String())
	if err != nil {
		return nil, nil, dErrors.Wrap(err, dErrors.CodeTimeout, "timed out waiting for escalation")
	}
	defer unlock()

	for attempt := 0; ; attempt++ {
		e, err := s.store.GetByID(ctx, escalationID)
		if err != nil {
			return nil, nil, storeError(err, "failed to load escalation")
		}
		before := trackedState{level: e.CurrentLevel, severity: e.Severity, status: e.Status}

		events, changed, err := fn(e, s.clock.Now())
		if err != nil {
			s.reject(ctx, op, e, actor, err)
			return nil, nil, err
		}
		if !changed {
			return e, nil, nil
		}

		if err := s.store.Save(ctx, e); err != nil {
			if errors.Is(err, sentinel.ErrConflict) && attempt < s.conflictRetries {
				s.metrics.IncrementConflictRetry()
				s.logger.DebugContext(ctx, "escalation save conflict, retrying",
					"escalation_id", escalationID.String(),
					"attempt", attempt+1,
				)
				continue
			}
			return nil, nil, storeError(err, "failed to save escalation")
		}
		rearm := before.differs(e) || hasEvent(events, models.EventAssignmentAcknowledged)
		events = s.commit(ctx, op, e, events, actor, rearm)
		return e, events, nil
	}
}

type trackedState struct {
	level    models.Level
	severity models.Severity
	status   models.Status
}

// differs reports whether the acknowledgment timer has to be re-armed.
func (t trackedState) differs(e *models.EscalationEvent) bool {
	return t.level != e.CurrentLevel || t.severity != e.Severity || t.status != e.Status
}

func hasEvent(events []models.DomainEvent, t models.DomainEventType) bool {
	for _, ev := range events {
		if ev.Type == t {
			return true
		}
	}
	return false
}

// commit runs after a successful save and while the per-event lock is still
// held, so downstream consumers observe events in commit order.
func (s *Service) commit(ctx context.Context, op operation, e *models.EscalationEvent, events []models.DomainEvent, actor string, rearm bool) []models.DomainEvent {
	snapshot := e.Clone()
	for i := range events {
		events[i].Version = e.Version
		events[i].Sequence = i
		events[i].Snapshot = snapshot
	}

	detached := context.WithoutCancel(ctx)
	if len(events) > 0 {
		if s.dispatcher != nil {
			s.dispatcher.Dispatch(detached, events)
		}
		if s.events != nil {
			if err := s.events.Publish(detached, events); err != nil {
				s.logger.WarnContext(ctx, "failed to publish escalation events",
					"escalation_id", e.ID.String(),
					"error", err,
				)
			}
		}
	}

	if rearm {
		s.armAcknowledgmentTimer(e)
	}
	s.record(ctx, op, e, events, actor)
	return events
}

// record writes metrics and audit entries for a committed mutation.
func (s *Service) record(ctx context.Context, op operation, e *models.EscalationEvent, events []models.DomainEvent, actor string) {
	for _, ev := range events {
		switch ev.Type {
		case models.EventEscalationCreated:
			s.metrics.IncrementCreated(string(e.Context), string(e.Severity))
			s.emitAudit(ctx, audit.EventEscalationCreated, e, actor, "")
		case models.EventEscalationEscalated:
			s.metrics.IncrementEscalated(string(ev.Entry.Action), ev.Entry.ToLevel.String())
			s.emitAudit(ctx, audit.EventEscalationEscalated, e, ev.Entry.EscalatedBy, ev.Entry.Reason)
		case models.EventEscalationResolved:
			s.metrics.IncrementResolved()
			s.emitAudit(ctx, audit.EventEscalationResolved, e, actor, "")
		case models.EventResponderAssigned:
			if op.audit != audit.EventEscalationHandedOff {
				s.emitAudit(ctx, audit.EventResponderAssigned, e, actor, ev.Assignment.UserID.String())
			}
		case models.EventAssignmentAcknowledged:
			s.emitAudit(ctx, audit.EventAssignmentAcknowledge, e, actor, "")
		}
	}
	if op.audit != "" {
		s.emitAudit(ctx, op.audit, e, actor, "")
	}
}

// reject records a mutation the state machine refused.
func (s *Service) reject(ctx context.Context, op operation, e *models.EscalationEvent, actor string, err error) {
	code := dErrors.CodeOf(err)
	s.metrics.IncrementRejected(op.name, string(code))
	switch {
	case dErrors.HasCode(err, dErrors.CodeForbidden):
		s.emitAudit(ctx, audit.EventPermissionDenied, e, actor, op.name)
	case dErrors.IsInvalidTransition(err):
		s.emitAudit(ctx, audit.EventTransitionRejected, e, actor, err.Error())
	}
}

func (s *Service) emitAudit(ctx context.Context, action audit.AuditEvent, e *models.EscalationEvent, actor, reason string) {
	if s.auditor == nil {
		return
	}
	event := audit.Event{
		Action:       string(action),
		EscalationID: e.ID.String(),
		Subject:      e.Title,
		Decision:     string(e.Status),
		Reason:       reason,
		RequestID:    requestcontext.RequestID(ctx),
		ActorID:      actor,
	}
	if userID, err := id.ParseUserID(actor); err == nil {
		event.UserID = userID
	}
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event",
			"action", string(action),
			"escalation_id", e.ID.String(),
			"error", err,
		)
	}
}

// start opens a span and returns a finish func that records the outcome.
func (s *Service) start(ctx context.Context, op operation, escalationID id.EscalationID) (context.Context, func(error)) {
	attrs := []attribute.KeyValue{attribute.String("escalation.operation", op.name)}
	if !escalationID.IsNil() {
		attrs = append(attrs, attribute.String("escalation.id", escalationID.String()))
	}
	ctx, span := s.tracer.Start(ctx, "escalation."+op.name, trace.WithAttributes(attrs...))
	started := s.clock.Now()
	return ctx, func(err error) {
		s.metrics.ObserveOperation(op.name, s.clock.Now().Sub(started))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
		}
		span.End()
	}
}

// storeError translates infrastructure sentinels into domain errors.
func storeError(err error, msg string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, "escalation not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, "escalation was modified concurrently")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return dErrors.Wrap(err, dErrors.CodeTimeout, msg)
	case errors.Is(err, sentinel.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, msg)
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}
