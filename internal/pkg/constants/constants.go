// Package constants holds the header names and context keys shared by the
// HTTP layer and the outbound vendor clients.
package constants

// contextKey keeps these keys from colliding with other packages' string keys.
type contextKey string

const (
	HeaderXRequestId      = "X-Request-Id"
	HeaderXIdempotencyKey = "X-Idempotency-Key"

	// ContextKeyRequestID is the context key for the request ID.
	ContextKeyRequestID contextKey = "x-request-id"
	// ContextKeyIdempotencyKey is the context key for the idempotency key.
	ContextKeyIdempotencyKey contextKey = "x-idempotency-key"
)
