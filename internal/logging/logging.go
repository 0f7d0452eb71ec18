// Package logging provides the structured logger shared across pgmd,
// built on log/slog the way the teacher wires its own internal/logging
// package: NewLogger(level) builds a logger from a level string
// (cmd/pop3d/main.go, internal/pop3/roundtrip_test.go), and NewContext/
// FromContext attach and recover a connection-scoped logger on a
// context.Context (internal/pop3/handler.go, roundtrip_test.go) so deep
// call chains can log with request-scoped fields without threading a
// *slog.Logger through every signature. That package's own source was
// never itself part of the retrieved sources; this is a reconstruction
// of the contract its call sites assume, matching their signatures
// exactly rather than widening them.
package logging

import (
	"context"
	"log/slog"
	"os"
)

type ctxKey struct{}

// NewLogger builds a slog.Logger writing to stderr at the given level.
// Level strings follow slog's own names (debug, info, warn, error);
// anything else falls back to info.
func NewLogger(level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewContext attaches logger to ctx, returning a new context.
func NewContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext returns the logger attached to ctx, or slog.Default() if
// none was attached.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok && logger != nil {
		return logger
	}
	return slog.Default()
}
