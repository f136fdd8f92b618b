package observability

import (
	"log/slog"
	"os"
)

// NewLogger builds the process logger: JSON to stdout, trace ids stamped from
// the request context.
func NewLogger(env string) *slog.Logger {
	level := slog.LevelInfo

	switch env {
	case "dev":
		level = slog.LevelDebug
	case "test":
		level = slog.LevelWarn
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})

	return slog.New(NewTraceHandler(handler)).With("service", "accountcore")
}
