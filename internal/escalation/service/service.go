// Package service is the escalation facade. Every mutation runs under a lock
// keyed by escalation id, is persisted with an optimistic version check and
// only then fans its domain events out to notification, streaming and audit.
package service

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"safecircle/internal/escalation/metrics"
	"safecircle/internal/escalation/models"
	"safecircle/internal/escalation/ports"
	"safecircle/internal/escalation/statemachine"
	id "safecircle/pkg/domain"
	"safecircle/pkg/platform/clock"
	"safecircle/pkg/platform/keylock"
)

const defaultConflictRetries = 3

type Service struct {
	store      ports.Store
	machine    *statemachine.Machine
	clock      clock.Clock
	dispatcher ports.Dispatcher
	events     ports.EventPublisher
	auditor    ports.AuditPublisher
	metrics    *metrics.Metrics
	logger     *slog.Logger
	tracer     trace.Tracer

	ackSLA          map[models.Severity]time.Duration
	conflictRetries int

	locks *keylock.Locker

	timersMu sync.Mutex
	timers   map[id.EscalationID]slaTimer
	timerGen uint64
	closed   bool
}

type Option func(*Service)

func WithMachine(m *statemachine.Machine) Option {
	return func(s *Service) {
		if m != nil {
			s.machine = m
		}
	}
}

func WithClock(c clock.Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithDispatcher hands committed domain events to the notification orchestrator.
func WithDispatcher(d ports.Dispatcher) Option {
	return func(s *Service) {
		s.dispatcher = d
	}
}

// WithEventPublisher streams committed domain events to external consumers.
func WithEventPublisher(p ports.EventPublisher) Option {
	return func(s *Service) {
		s.events = p
	}
}

func WithAuditPublisher(p ports.AuditPublisher) Option {
	return func(s *Service) {
		s.auditor = p
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithAcknowledgmentSLA sets how long responders at the current level have
// to acknowledge before the event climbs a level. Severities without an
// entry, or with a non-positive duration, never time out.
func WithAcknowledgmentSLA(sla map[models.Severity]time.Duration) Option {
	return func(s *Service) {
		s.ackSLA = make(map[models.Severity]time.Duration, len(sla))
		for sev, d := range sla {
			if d > 0 {
				s.ackSLA[sev] = d
			}
		}
	}
}

// WithConflictRetries bounds how many times a mutation is reapplied to a
// fresh copy after a stale version was rejected by the store.
func WithConflictRetries(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.conflictRetries = n
		}
	}
}

func New(store ports.Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("escalation store is required")
	}
	s := &Service{
		store:           store,
		machine:         statemachine.New(),
		clock:           clock.New(),
		logger:          slog.New(slog.DiscardHandler),
		tracer:          otel.Tracer("safecircle/escalation"),
		ackSLA:          map[models.Severity]time.Duration{},
		conflictRetries: defaultConflictRetries,
		locks:           keylock.New(),
		timers:          make(map[id.EscalationID]slaTimer),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close cancels every pending acknowledgment timer. Later mutations still
// work but no longer schedule timers.
func (s *Service) Close() {
	s.timersMu.Lock()
	defer s.timersMu.Unlock()
	s.closed = true
	for escalationID, t := range s.timers {
		t.timer.Stop()
		delete(s.timers, escalationID)
	}
}
