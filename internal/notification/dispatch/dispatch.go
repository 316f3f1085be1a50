// Package dispatch delivers one payload on one channel with bounded retries.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	"golang.org/x/time/rate"

	"safecircle/internal/notification/metrics"
	"safecircle/internal/notification/models"
	"safecircle/internal/notification/transport"
	"safecircle/pkg/platform/circuit"
)

var ErrBreakerOpen = errors.New("channel breaker open")

// Policy bounds retries. MaxAttempts counts the first try.
type Policy struct {
	MaxAttempts int
	BackoffBase time.Duration
	BackoffMax  time.Duration
	SendTimeout time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BackoffBase: 500 * time.Millisecond,
		BackoffMax:  10 * time.Second,
		SendTimeout: 10 * time.Second,
	}
}

// Outcome is the final state of one channel delivery.
type Outcome struct {
	Status            models.DeliveryStatus
	Attempts          int
	ProviderMessageID string
	Err               error
}

type Dispatcher struct {
	transport transport.Transport
	policy    Policy
	breakers  map[models.Channel]*circuit.Breaker
	limiters  map[models.Channel]*rate.Limiter
	metrics   *metrics.Metrics
	logger    *slog.Logger
	sleep     func(ctx context.Context, d time.Duration) error
	jitter    func() float64
}

type Option func(*Dispatcher)

func WithPolicy(p Policy) Option {
	return func(d *Dispatcher) {
		if p.MaxAttempts > 0 {
			d.policy.MaxAttempts = p.MaxAttempts
		}
		if p.BackoffBase > 0 {
			d.policy.BackoffBase = p.BackoffBase
		}
		if p.BackoffMax > 0 {
			d.policy.BackoffMax = p.BackoffMax
		}
		if p.SendTimeout > 0 {
			d.policy.SendTimeout = p.SendTimeout
		}
	}
}

// WithBreaker guards ch with b. Only transient failures trip it.
func WithBreaker(ch models.Channel, b *circuit.Breaker) Option {
	return func(d *Dispatcher) { d.breakers[ch] = b }
}

// WithChannelQPS throttles calls to the provider behind ch.
func WithChannelQPS(ch models.Channel, qps float64) Option {
	return func(d *Dispatcher) {
		if qps > 0 {
			d.limiters[ch] = rate.NewLimiter(rate.Limit(qps), max(1, int(qps)))
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithSleep replaces the backoff wait.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(d *Dispatcher) {
		if sleep != nil {
			d.sleep = sleep
		}
	}
}

// WithJitter replaces the backoff multiplier source.
func WithJitter(j func() float64) Option {
	return func(d *Dispatcher) {
		if j != nil {
			d.jitter = j
		}
	}
}

func New(t transport.Transport, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		transport: t,
		policy:    DefaultPolicy(),
		breakers:  make(map[models.Channel]*circuit.Breaker),
		limiters:  make(map[models.Channel]*rate.Limiter),
		logger:    slog.New(slog.DiscardHandler),
		sleep:     sleepContext,
		jitter:    func() float64 { return 0.7 + 0.6*rand.Float64() },
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Deliver sends p on ch. Transient failures are retried with exponential
// backoff up to the policy's attempt cap; permanent failures stop at once.
// The outcome is FAILED unless the provider accepted the payload.
func (d *Dispatcher) Deliver(ctx context.Context, ch models.Channel, p models.Payload) Outcome {
	start := time.Now()
	defer func() { d.metrics.ObserveDelivery(string(ch), time.Since(start)) }()

	breaker := d.breakers[ch]
	limiter := d.limiters[ch]
	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= d.policy.MaxAttempts; attempt++ {
		if breaker != nil && !breaker.Allow() {
			lastErr = transport.Transient(ErrBreakerOpen)
			d.metrics.IncrementAttempt(string(ch), "breaker_open")
		} else {
			if limiter != nil {
				if err := limiter.Wait(ctx); err != nil {
					return d.failed(ch, p, attempts, transport.Transient(err))
				}
			}
			attempts++
			res, err := d.send(ctx, ch, p)
			if err == nil {
				d.recordSuccess(ch, breaker)
				status := res.Status
				if status == "" {
					status = models.DeliverySent
				}
				return Outcome{Status: status, Attempts: attempts, ProviderMessageID: res.ProviderMessageID}
			}
			lastErr = err
			if transport.IsPermanent(err) {
				d.metrics.IncrementAttempt(string(ch), "permanent")
				return d.failed(ch, p, attempts, err)
			}
			d.metrics.IncrementAttempt(string(ch), "transient")
			d.recordFailure(ch, breaker)
			d.logger.DebugContext(ctx, "delivery attempt failed",
				"channel", string(ch),
				"notification_id", p.NotificationID.String(),
				"attempt", attempt,
				"max", d.policy.MaxAttempts,
				"error", err,
			)
		}

		if attempt == d.policy.MaxAttempts {
			break
		}
		if err := d.sleep(ctx, d.Backoff(attempt)); err != nil {
			return d.failed(ch, p, attempts, transport.Transient(err))
		}
	}
	return d.failed(ch, p, attempts, lastErr)
}

func (d *Dispatcher) send(ctx context.Context, ch models.Channel, p models.Payload) (transport.DeliveryResult, error) {
	callCtx := ctx
	if d.policy.SendTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, d.policy.SendTimeout)
		defer cancel()
	}
	res, err := d.transport.Send(callCtx, ch, p)
	if err == nil {
		d.metrics.IncrementAttempt(string(ch), "success")
		return res, nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		if !transport.IsPermanent(err) {
			err = transport.Transient(err)
		}
	}
	return res, err
}

func (d *Dispatcher) failed(ch models.Channel, p models.Payload, attempts int, err error) Outcome {
	d.logger.Error("notification delivery failed",
		"channel", string(ch),
		"notification_id", p.NotificationID.String(),
		"user_id", p.UserID.String(),
		"escalation_id", p.EscalationID.String(),
		"attempts", attempts,
		"permanent", transport.IsPermanent(err),
		"error", err,
	)
	return Outcome{Status: models.DeliveryFailed, Attempts: attempts, Err: err}
}

func (d *Dispatcher) recordSuccess(ch models.Channel, b *circuit.Breaker) {
	if b == nil {
		return
	}
	if _, change := b.RecordSuccess(); change.Closed {
		d.metrics.SetBreakerOpen(string(ch), false)
		d.logger.Info("channel breaker closed", "channel", string(ch))
	}
}

func (d *Dispatcher) recordFailure(ch models.Channel, b *circuit.Breaker) {
	if b == nil {
		return
	}
	if _, change := b.RecordFailure(); change.Opened {
		d.metrics.SetBreakerOpen(string(ch), true)
		d.logger.Warn("channel breaker opened", "channel", string(ch))
	}
}

// Backoff returns the wait after the given failed attempt:
// base*2^(attempt-1) capped at BackoffMax, times a jitter factor.
func (d *Dispatcher) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := d.policy.BackoffBase
	for i := 1; i < attempt && delay < d.policy.BackoffMax; i++ {
		delay *= 2
	}
	delay = min(delay, d.policy.BackoffMax)
	return time.Duration(float64(delay) * d.jitter())
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
