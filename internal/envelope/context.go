// Package envelope implements the ordered middleware chain every request
// passes through: error boundary, conditional activation, body cache,
// compression, security, rate limiter, and correlation/logging. The chain
// is built once at startup; its ordering is part of the HTTP contract.
package envelope

import "context"

type ctxKey int

const (
	ctxKeyCorrelationID ctxKey = iota
	ctxKeyClientID
	ctxKeyBody
)

// CorrelationID returns the request's correlation id, or "" if the
// correlation/logging stage has not run yet.
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyCorrelationID).(string)
	return id
}

func withCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyCorrelationID, id)
}

// ClientID returns the client identifier the rate limiter keyed this
// request's window on (API key if present, else source IP).
func ClientID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyClientID).(string)
	return id
}

func withClientID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyClientID, id)
}

// CachedBody returns the request body the body-cache stage buffered, so
// later stages (security, correlation/logging) can inspect it without
// consuming the stream handlers read from.
func CachedBody(ctx context.Context) ([]byte, bool) {
	b, ok := ctx.Value(ctxKeyBody).([]byte)
	return b, ok
}

func withCachedBody(ctx context.Context, body []byte) context.Context {
	return context.WithValue(ctx, ctxKeyBody, body)
}
