package ledger

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/geocoder89/accountcore/internal/domain/ledger"
	"github.com/geocoder89/accountcore/internal/observability"
)

const reconcilePageSize = 500

// Reconciler compares stored balances against ledger sums. With autoFix it
// appends a reconciliation row so the sum matches the stored balance again;
// the balance column itself is left as stored.
type Reconciler struct {
	store   Store
	log     *slog.Logger
	prom    *observability.Prom
	metrics *observability.ReconcileMetrics
}

func NewReconciler(store Store, log *slog.Logger, prom *observability.Prom, metrics *observability.ReconcileMetrics) *Reconciler {
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{store: store, log: log, prom: prom, metrics: metrics}
}

func (r *Reconciler) VerifyBalance(ctx context.Context, userID string, autoFix bool) (ledger.Audit, error) {
	a, err := r.store.Audit(ctx, userID, func(a ledger.Audit) *ledger.Draft {
		if !autoFix || a.Drift == 0 {
			return nil
		}
		return &ledger.Draft{
			Delta:    a.Drift,
			Reason:   ledger.ReasonReconciliation,
			Metadata: map[string]string{"computed": strconv.FormatInt(a.Computed, 10), "stored": strconv.FormatInt(a.Stored, 10)},
		}
	})
	if err != nil {
		if !errors.Is(err, ledger.ErrUserNotFound) {
			r.prom.ReconcileAudit("error")
		}
		return ledger.Audit{}, err
	}

	switch {
	case a.Fixed:
		r.prom.ReconcileAudit("fixed")
		r.prom.LedgerMutation("reconcile", "ok")
		r.log.WarnContext(ctx, "balance drift repaired", "user_id", userID, "drift", a.Drift)
	case a.Drift != 0:
		r.prom.ReconcileAudit("drift")
		r.log.WarnContext(ctx, "balance drift detected", "user_id", userID, "stored", a.Stored, "computed", a.Computed)
	default:
		r.prom.ReconcileAudit("clean")
	}

	return a, nil
}

// VerifyAll audits every user, paging through ids in ascending order.
func (r *Reconciler) VerifyAll(ctx context.Context, autoFix bool) ([]ledger.Audit, error) {
	start := time.Now()

	var (
		out    []ledger.Audit
		after  string
		drifts int
		fixed  int
	)

	for {
		ids, err := r.store.UserIDs(ctx, after, reconcilePageSize)
		if err != nil {
			r.metrics.IncFailedRun()
			return out, err
		}

		for _, id := range ids {
			a, err := r.VerifyBalance(ctx, id, autoFix)
			if errors.Is(err, ledger.ErrUserNotFound) {
				// deleted after its id was paged in
				r.log.DebugContext(ctx, "reconcile skipped missing user", "user_id", id)
				continue
			}
			if err != nil {
				r.metrics.IncFailedRun()
				return out, err
			}
			if a.Drift != 0 {
				drifts++
			}
			if a.Fixed {
				fixed++
			}
			out = append(out, a)
		}

		if len(ids) < reconcilePageSize {
			break
		}
		after = ids[len(ids)-1]
	}

	r.metrics.ObserveRun(len(out), drifts, fixed, time.Since(start), time.Now())
	r.prom.ReconcileDrifted(drifts)

	r.log.InfoContext(ctx, "reconciliation finished", "audited", len(out), "drifted", drifts, "fixed", fixed)

	return out, nil
}
