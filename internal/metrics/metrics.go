// Package metrics provides interfaces and implementations for collecting
// pgmd broker metrics. This mirrors the teacher's metrics package shape
// (a Collector interface for recording, a Server interface for exposing
// them) with the POP3-specific event set replaced by the broker's own:
// session lifecycle, registry saturation, and mailbox operations.
package metrics

import "context"

// Collector defines the interface for recording pgmd broker metrics.
type Collector interface {
	// Session lifecycle metrics.
	SessionOpened()
	SessionClosed()

	// RegistrationAttempt records a new-user registration outcome.
	RegistrationAttempt(success bool)

	// AuthAttempt records a login attempt against an existing user.
	AuthAttempt(success bool)

	// RegistrySaturated records an admission-control rejection: the
	// active-session cap was reached and a new connection was closed
	// immediately (spec §7 "registry saturation").
	RegistrySaturated()

	// MessageCodeProcessed records dispatch of a message code in the
	// Active state, keyed by its String() name.
	MessageCodeProcessed(code string)

	// MessageDelivered records a successful send, with the delivered
	// body size.
	MessageDelivered(sizeBytes int64)

	// MessageFetched records a successful fetch (read or unread).
	MessageFetched(sizeBytes int64)

	// MessageDeleted records a successful deletion.
	MessageDeleted()
}

// Server defines the interface for a metrics HTTP server.
type Server interface {
	// Start begins serving metrics. It blocks until the context is
	// canceled or an error occurs.
	Start(ctx context.Context) error

	// Shutdown gracefully stops the metrics server.
	Shutdown(ctx context.Context) error
}
