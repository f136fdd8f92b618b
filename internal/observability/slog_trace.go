package observability

import (
	"context"
	"log/slog"
	"strings"

	"github.com/geocoder89/accountcore/internal/actorctx"
	"go.opentelemetry.io/otel/trace"
)

// redactedKeys never reach the log sink with their value. Credential and
// second-factor material passes through the same handlers that log.
var redactedKeys = map[string]bool{
	"password":      true,
	"new_password":  true,
	"secret":        true,
	"totp_secret":   true,
	"code":          true,
	"recovery_code": true,
	"token":         true,
	"authorization": true,
}

const redacted = "[redacted]"

// TraceHandler adds correlation ids from the context to every record and
// masks credential attributes.
type TraceHandler struct {
	next slog.Handler
}

func NewTraceHandler(next slog.Handler) *TraceHandler {
	return &TraceHandler{next: next}
}

func (h *TraceHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *TraceHandler) Handle(ctx context.Context, r slog.Record) error {
	out := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(redact(a))
		return true
	})

	if ctx != nil {
		out.AddAttrs(correlation(ctx)...)
	}

	return h.next.Handle(ctx, out)
}

func correlation(ctx context.Context) []slog.Attr {
	var attrs []slog.Attr

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		attrs = append(attrs,
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	if id, ok := actorctx.RequestIDFrom(ctx); ok {
		attrs = append(attrs, slog.String("request_id", id))
	}
	if id, ok := actorctx.UserIDFrom(ctx); ok {
		attrs = append(attrs, slog.String("actor_id", id))
	}

	return attrs
}

func redact(a slog.Attr) slog.Attr {
	if redactedKeys[strings.ToLower(a.Key)] {
		return slog.String(a.Key, redacted)
	}
	if a.Value.Kind() == slog.KindGroup {
		group := a.Value.Group()
		masked := make([]any, 0, len(group))
		for _, ga := range group {
			masked = append(masked, redact(ga))
		}
		return slog.Group(a.Key, masked...)
	}
	return a
}

func (h *TraceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	masked := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		masked[i] = redact(a)
	}
	return &TraceHandler{next: h.next.WithAttrs(masked)}
}

func (h *TraceHandler) WithGroup(name string) slog.Handler {
	return &TraceHandler{next: h.next.WithGroup(name)}
}
