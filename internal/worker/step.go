package worker

import (
	"context"
	"time"
)

// RunOnce audits every balance a single time.
func (w *Worker) RunOnce(ctx context.Context) error {
	runCtx := ctx
	if w.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, w.cfg.RunTimeout)
		defer cancel()
	}

	start := time.Now()

	audits, err := w.rec.VerifyAll(runCtx, w.cfg.AutoFix)
	if err != nil {
		return err
	}

	drifted := 0
	for _, a := range audits {
		if a.Drift != 0 {
			drifted++
			w.log.WarnContext(ctx, "balance drift", "user_id", a.UserID, "stored", a.Stored, "computed", a.Computed, "fixed", a.Fixed)
		}
	}

	w.log.InfoContext(ctx, "reconciliation pass complete",
		"audited", len(audits),
		"drifted", drifted,
		"auto_fix", w.cfg.AutoFix,
		"duration", time.Since(start),
	)

	return nil
}
