// Package worker runs balance reconciliation on a schedule, outside the API
// process.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/geocoder89/accountcore/internal/domain/ledger"
)

type Reconciler interface {
	VerifyAll(ctx context.Context, autoFix bool) ([]ledger.Audit, error)
}

type Config struct {
	Interval time.Duration
	AutoFix  bool
	// RunTimeout bounds one full pass. Zero means no bound beyond shutdown.
	RunTimeout time.Duration
}

type Worker struct {
	cfg     Config
	rec     Reconciler
	log     *slog.Logger
	backoff func(attempt int) time.Duration

	readyMu sync.RWMutex
	ready   bool
}

func New(cfg Config, rec Reconciler, log *slog.Logger) *Worker {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	return &Worker{
		cfg:     cfg,
		rec:     rec,
		log:     log,
		backoff: ExponentialBackoff,
	}
}

// Run performs a pass immediately, then one per interval. A failed pass is
// retried with exponential backoff instead of waiting a full interval.
func (w *Worker) Run(ctx context.Context) error {
	w.setReady(true)
	defer w.setReady(false)

	timer := time.NewTimer(0)
	defer timer.Stop()

	failures := 0

	for {
		select {
		case <-ctx.Done():
			w.log.Info("worker received shutdown signal")
			return nil

		case <-timer.C:
			if err := w.RunOnce(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				delay := w.backoff(failures)
				failures++
				w.log.ErrorContext(ctx, "reconciliation run failed", "err", err, "attempt", failures, "retry_in", delay)
				timer.Reset(delay)
				continue
			}

			failures = 0
			timer.Reset(w.cfg.Interval)
		}
	}
}

func (w *Worker) setReady(v bool) {
	w.readyMu.Lock()
	w.ready = v
	w.readyMu.Unlock()
}

func (w *Worker) Ready() bool {
	w.readyMu.RLock()
	defer w.readyMu.RUnlock()
	return w.ready
}
