package postgres

import (
	"context"
	"errors"

	"github.com/geocoder89/accountcore/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type base struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func (b base) observe(op string, fn func() error) error {
	if b.prom != nil {
		return b.prom.ObserveDB(op, fn)
	}
	return fn()
}

// inTx runs fn in a transaction that is committed only when fn succeeds.
func (b base) inTx(ctx context.Context, fn func(tx pgx.Tx) error) (err error) {
	tx, err := b.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err = fn(tx); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == constraint
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

// Store groups the Postgres repositories behind one pool.
type Store struct {
	b base
}

func NewStore(pool *pgxpool.Pool, prom *observability.Prom) *Store {
	return &Store{b: base{pool: pool, prom: prom}}
}

func (s *Store) Users() *UsersRepo { return &UsersRepo{base: s.b} }

func (s *Store) Sessions() *SessionsRepo { return &SessionsRepo{base: s.b} }

func (s *Store) Ledger() *LedgerRepo { return &LedgerRepo{base: s.b} }

func (s *Store) RecoveryCodes() *RecoveryCodesRepo { return &RecoveryCodesRepo{base: s.b} }

func (s *Store) Ping(ctx context.Context) error { return s.b.pool.Ping(ctx) }
