// Package orchestrator turns committed escalation domain events into
// per-recipient notifications: it resolves preferences, applies quiet hours
// and rate limits, defers to digests, dispatches and records outcomes.
package orchestrator

import (
	"context"
	"errors"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	escmodels "safecircle/internal/escalation/models"
	"safecircle/internal/notification/digest"
	"safecircle/internal/notification/dispatch"
	"safecircle/internal/notification/metrics"
	"safecircle/internal/notification/preferences"
	"safecircle/internal/notification/ratelimit"
	"safecircle/pkg/platform/clock"
	"safecircle/pkg/platform/pubsub"
)

// job is one domain event bound to the context it was dispatched with.
type job struct {
	ctx   context.Context
	event escmodels.DomainEvent
}

// Orchestrator implements the escalation Dispatcher port. Events are sharded
// by escalation id so events of one escalation are handled in order while
// different escalations proceed in parallel.
type Orchestrator struct {
	records    RecordStore
	dispatcher *dispatch.Dispatcher
	prefStore  PreferenceStore
	prefs      *preferences.Resolver
	limiter    *ratelimit.Limiter
	digests    DigestQueue
	clock      clock.Clock
	auditor    AuditPublisher
	metrics    *metrics.Metrics
	logger     *slog.Logger
	tracer     trace.Tracer

	shards   int
	queue    *pubsub.Hub[int, job]
	unsubs   []func()
	inflight sync.WaitGroup

	mu     sync.Mutex
	closed bool
	timers map[string]clock.Timer
}

type Option func(*Orchestrator)

func WithPreferences(store PreferenceStore) Option {
	return func(o *Orchestrator) { o.prefStore = store }
}

// WithLimiter replaces the in-memory limiter with default channel limits.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(o *Orchestrator) { o.limiter = l }
}

func WithDigestQueue(q DigestQueue) Option {
	return func(o *Orchestrator) { o.digests = q }
}

func WithClock(c clock.Clock) Option {
	return func(o *Orchestrator) {
		if c != nil {
			o.clock = c
		}
	}
}

func WithAuditPublisher(a AuditPublisher) Option {
	return func(o *Orchestrator) { o.auditor = a }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithShards sets how many escalations are handled concurrently.
func WithShards(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.shards = n
		}
	}
}

func New(records RecordStore, dispatcher *dispatch.Dispatcher, opts ...Option) (*Orchestrator, error) {
	if records == nil {
		return nil, errors.New("notification record store is required")
	}
	if dispatcher == nil {
		return nil, errors.New("notification dispatcher is required")
	}
	o := &Orchestrator{
		records:    records,
		dispatcher: dispatcher,
		clock:      clock.New(),
		logger:     slog.New(slog.DiscardHandler),
		tracer:     otel.Tracer("safecircle/notification"),
		shards:     8,
		queue:      pubsub.NewHub[int, job](),
		timers:     make(map[string]clock.Timer),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.prefs = preferences.NewResolver(o.prefStore, o.logger)
	if o.limiter == nil {
		o.limiter = ratelimit.NewLimiter(ratelimit.NewInMemoryStore(o.clock), nil)
	}
	if o.digests == nil {
		o.digests = digest.NewInMemoryQueue()
	}
	for shard := range o.shards {
		o.unsubs = append(o.unsubs, o.queue.Subscribe(shard, o.handle))
	}
	return o, nil
}

// Dispatch queues events and returns without waiting for delivery.
func (o *Orchestrator) Dispatch(ctx context.Context, events []escmodels.DomainEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		o.logger.WarnContext(ctx, "notification orchestrator closed, dropping events", "count", len(events))
		return
	}
	detached := context.WithoutCancel(ctx)
	for _, ev := range events {
		o.inflight.Add(1)
		o.metrics.AddQueueDepth(1)
		o.queue.Publish(o.shardFor(ev), job{ctx: detached, event: ev})
	}
}

func (o *Orchestrator) shardFor(ev escmodels.DomainEvent) int {
	h := fnv.New32a()
	_, _ = h.Write(ev.EscalationID[:])
	return int(h.Sum32() % uint32(o.shards))
}

func (o *Orchestrator) handle(j job) {
	defer o.inflight.Done()
	defer o.metrics.AddQueueDepth(-1)
	o.processEvent(j.ctx, j.event)
}

// Drain blocks until every dispatched event has been handled or ctx ends.
func (o *Orchestrator) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting events, waits for queued ones and cancels pending
// redeliveries. Deferred digest items stay queued.
func (o *Orchestrator) Close(ctx context.Context) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	o.mu.Unlock()

	err := o.Drain(ctx)

	o.mu.Lock()
	for key, t := range o.timers {
		t.Stop()
		delete(o.timers, key)
	}
	o.mu.Unlock()
	for _, unsub := range o.unsubs {
		unsub()
	}
	return err
}

// PendingRedeliveries returns the number of scheduled redeliveries.
func (o *Orchestrator) PendingRedeliveries() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.timers)
}

// backgroundTimeout bounds timer-driven work that has no caller context.
const backgroundTimeout = time.Minute
