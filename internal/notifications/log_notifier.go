package notifications

import (
	"context"
	"log/slog"
)

// LogNotifier writes notices to the structured log instead of a mail provider.
type LogNotifier struct {
	log *slog.Logger
}

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &LogNotifier{log: log}
}

func (n *LogNotifier) SendSecurityNotice(ctx context.Context, in Notice) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	attrs := []any{"kind", in.Kind, "user_id", in.UserID, "email", in.Email}
	if in.ResetCode != "" {
		attrs = append(attrs, "reset_code", in.ResetCode)
	}

	n.log.InfoContext(ctx, "security notice", attrs...)
	return nil
}
