package notifications

import (
	"context"
	"errors"
	"log/slog"
)

// Dispatcher sends notices in the background. Delivery is best effort: a
// failure is logged and never reaches the request that triggered it.
type Dispatcher struct {
	inner Notifier
	log   *slog.Logger
}

func NewDispatcher(inner Notifier, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{inner: inner, log: log}
}

func (d *Dispatcher) Notify(ctx context.Context, n Notice) {
	if d == nil || d.inner == nil {
		return
	}

	// keep request-scoped values for logging but outlive the request
	ctx = context.WithoutCancel(ctx)

	go func() {
		err := d.inner.SendSecurityNotice(ctx, n)
		switch {
		case err == nil:
		case errors.Is(err, ErrCircuitOpen):
			d.log.WarnContext(ctx, "security notice dropped, provider circuit open", "kind", n.Kind, "user_id", n.UserID)
		default:
			attrs := []any{"kind", n.Kind, "user_id", n.UserID, "err", err}
			if b, ok := d.inner.(interface{ State() string }); ok {
				attrs = append(attrs, "breaker", b.State())
			}
			d.log.WarnContext(ctx, "security notice not delivered", attrs...)
		}
	}()
}
