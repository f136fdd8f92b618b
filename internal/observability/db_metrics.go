package observability

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// sqlstateLabels covers the codes the account and ledger tables can raise.
// Anything else is labelled by its raw SQLSTATE.
var sqlstateLabels = map[string]string{
	"23505": "unique_violation",
	"23503": "foreign_key_violation",
	"23514": "check_violation",
	"40001": "serialization_failure",
	"40P01": "deadlock",
	"55P03": "lock_not_available",
	"57014": "query_canceled",
}

// ObserveDB times fn under the logical op name. pgx.ErrNoRows is how lookups
// report an unknown user or session, so it gets its own status and is not
// counted as a failure.
func (p *Prom) ObserveDB(op string, fn func() error) error {
	start := time.Now()
	err := fn()
	elapsed := time.Since(start).Seconds()

	status := "ok"
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			status = "no_rows"
		} else {
			status = "error"
			p.DbErrorsTotal.WithLabelValues(op, dbErrorKind(err)).Inc()
		}
	}

	p.DbQueryDuration.WithLabelValues(op, status).Observe(elapsed)
	return err
}

func dbErrorKind(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if label, ok := sqlstateLabels[pgErr.Code]; ok {
			return label
		}
		return "pg_" + pgErr.Code
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case pgconn.SafeToRetry(err):
		return "connection"
	}
	return "unknown"
}
