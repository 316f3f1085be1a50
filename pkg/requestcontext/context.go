// Package requestcontext carries request-scoped values from the HTTP
// middleware into services without those services importing net/http.
// Every accessor returns a zero value when the key is absent, which is the
// normal case for SLA timers, digest flushes and other background work.
package requestcontext

import (
	"context"
	"time"

	id "safecircle/pkg/domain"
)

type key int

const (
	actorKey key = iota
	requestIDKey
	requestTimeKey
	clientIPKey
	userAgentKey
	deviceKey
)

func value[T any](ctx context.Context, k key) T {
	v, _ := ctx.Value(k).(T)
	return v
}

// UserID is the authenticated actor, or the nil UUID.
func UserID(ctx context.Context) id.UserID { return value[id.UserID](ctx, actorKey) }

func WithUserID(ctx context.Context, userID id.UserID) context.Context {
	return context.WithValue(ctx, actorKey, userID)
}

func RequestID(ctx context.Context) string { return value[string](ctx, requestIDKey) }

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// Now is the time pinned for the request, or the wall clock outside one.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey).(time.Time); ok {
		return t
	}
	return time.Now()
}

func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey, t)
}

func ClientIP(ctx context.Context) string  { return value[string](ctx, clientIPKey) }
func UserAgent(ctx context.Context) string { return value[string](ctx, userAgentKey) }

func WithClientMetadata(ctx context.Context, clientIP, userAgent string) context.Context {
	ctx = context.WithValue(ctx, clientIPKey, clientIP)
	return context.WithValue(ctx, userAgentKey, userAgent)
}

// Device is a short client label such as "Firefox 128.0 on Linux x86_64".
func Device(ctx context.Context) string { return value[string](ctx, deviceKey) }

func WithDevice(ctx context.Context, label string) context.Context {
	return context.WithValue(ctx, deviceKey, label)
}
