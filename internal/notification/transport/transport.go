// Package transport is the boundary to delivery providers. Providers must
// treat Payload.DedupKey as idempotency: a repeated key is not re-sent.
package transport

import (
	"context"
	"errors"
	"fmt"

	"safecircle/internal/notification/models"
)

// DeliveryResult is a provider's acceptance of a payload. Status is SENT for
// synchronous providers and PENDING when a callback will follow.
type DeliveryResult struct {
	ProviderMessageID string
	Status            models.DeliveryStatus
	Duplicate         bool
}

type Transport interface {
	Send(ctx context.Context, ch models.Channel, p models.Payload) (DeliveryResult, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, ch models.Channel, p models.Payload) (DeliveryResult, error)

func (f TransportFunc) Send(ctx context.Context, ch models.Channel, p models.Payload) (DeliveryResult, error) {
	return f(ctx, ch, p)
}

var ErrNoTransport = errors.New("no transport for channel")

// TransientError is retryable: timeouts, throttling, provider outages.
type TransientError struct{ Err error }

func (e *TransientError) Error() string { return "transient: " + e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError must not be retried: invalid address, rejected content.
type PermanentError struct{ Err error }

func (e *PermanentError) Error() string { return "permanent: " + e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

func Permanentf(format string, args ...any) error {
	return &PermanentError{Err: fmt.Errorf(format, args...)}
}

// IsPermanent reports whether err was classified permanent. Unclassified
// errors and context expiry are retryable.
func IsPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}

// Mux routes each channel to its provider.
type Mux struct {
	routes map[models.Channel]Transport
}

func NewMux() *Mux {
	return &Mux{routes: make(map[models.Channel]Transport)}
}

// Handle registers t for ch, replacing any earlier registration.
func (m *Mux) Handle(ch models.Channel, t Transport) *Mux {
	m.routes[ch] = t
	return m
}

func (m *Mux) Send(ctx context.Context, ch models.Channel, p models.Payload) (DeliveryResult, error) {
	t, ok := m.routes[ch]
	if !ok {
		return DeliveryResult{}, Permanent(fmt.Errorf("%s: %w", ch, ErrNoTransport))
	}
	return t.Send(ctx, ch, p)
}
