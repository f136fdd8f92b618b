package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/geocoder89/accountcore/internal/domain/ledger"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type LedgerRepo struct {
	base
}

// Mutate locks the user row, lets fn decide the delta from the locked
// balance, then writes the balance and the ledger row before committing.
func (r *LedgerRepo) Mutate(ctx context.Context, userID string, fn func(current int64) (ledger.Draft, error)) (entry ledger.Entry, err error) {
	if _, err := uuid.Parse(userID); err != nil {
		return ledger.Entry{}, ledger.ErrUserNotFound
	}

	err = r.inTx(ctx, func(tx pgx.Tx) error {
		current, err := r.lockBalance(ctx, tx, "ledger.mutate.lock", userID)
		if err != nil {
			return err
		}

		d, err := fn(current)
		if err != nil {
			return err
		}

		next := current + d.Delta
		now := time.Now().UTC()

		err = r.observe("ledger.mutate.update_balance", func() error {
			_, e := tx.Exec(ctx, `
				UPDATE users
				SET primary_currency_balance = $2, primary_currency_updated_at = $3
				WHERE id = $1
			`, userID, next, now)
			return e
		})
		if err != nil {
			return err
		}

		entry, err = insertEntry(ctx, tx, r.base, userID, d, next, now)
		return err
	})
	if err != nil {
		return ledger.Entry{}, err
	}

	return entry, nil
}

func (r *LedgerRepo) Balance(ctx context.Context, userID string) (ledger.Balance, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return ledger.Balance{}, ledger.ErrUserNotFound
	}

	b := ledger.Balance{UserID: userID}
	err := r.observe("ledger.balance", func() error {
		return r.pool.QueryRow(ctx, `
			SELECT primary_currency_balance, primary_currency_updated_at
			FROM users WHERE id = $1
		`, userID).Scan(&b.Balance, &b.UpdatedAt)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ledger.Balance{}, ledger.ErrUserNotFound
		}
		return ledger.Balance{}, err
	}
	return b, nil
}

func (r *LedgerRepo) List(ctx context.Context, userID string, f ledger.ListFilter) ([]ledger.Entry, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return nil, ledger.ErrUserNotFound
	}

	var exists bool
	err := r.observe("ledger.list.owner_check", func() error {
		return r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists)
	})
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ledger.ErrUserNotFound
	}

	where := []string{"user_id = $1"}
	args := []any{userID}

	if f.Before != nil {
		args = append(args, *f.Before)
		where = append(where, fmt.Sprintf("created_at < $%d", len(args)))
	}
	if f.After != nil {
		args = append(args, *f.After)
		where = append(where, fmt.Sprintf("created_at > $%d", len(args)))
	}
	args = append(args, f.Limit)

	query := fmt.Sprintf(`
		SELECT id, user_id, delta, balance_after, COALESCE(reason, ''), metadata, actor_user_id, created_at
		FROM user_currency_ledger
		WHERE %s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d
	`, strings.Join(where, " AND "), len(args))

	var out []ledger.Entry
	err = r.observe("ledger.list", func() error {
		rows, err := r.pool.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			e, err := scanEntry(rows)
			if err != nil {
				return err
			}
			out = append(out, e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Audit sums the ledger under the same row lock writers take, so the
// comparison cannot interleave with a mutation.
func (r *LedgerRepo) Audit(ctx context.Context, userID string, fix func(a ledger.Audit) *ledger.Draft) (audit ledger.Audit, err error) {
	if _, err := uuid.Parse(userID); err != nil {
		return ledger.Audit{}, ledger.ErrUserNotFound
	}

	err = r.inTx(ctx, func(tx pgx.Tx) error {
		stored, err := r.lockBalance(ctx, tx, "ledger.audit.lock", userID)
		if err != nil {
			return err
		}

		var computed int64
		err = r.observe("ledger.audit.sum", func() error {
			return tx.QueryRow(ctx, `
				SELECT COALESCE(SUM(delta), 0)::BIGINT FROM user_currency_ledger WHERE user_id = $1
			`, userID).Scan(&computed)
		})
		if err != nil {
			return err
		}

		audit = ledger.Audit{UserID: userID, Stored: stored, Computed: computed, Drift: stored - computed}
		if fix == nil {
			return nil
		}

		d := fix(audit)
		if d == nil {
			return nil
		}

		e, err := insertEntry(ctx, tx, r.base, userID, *d, stored, time.Now().UTC())
		if err != nil {
			return err
		}
		audit.Fixed = true
		audit.Entry = &e
		return nil
	})
	if err != nil {
		return ledger.Audit{}, err
	}
	return audit, nil
}

func (r *LedgerRepo) UserIDs(ctx context.Context, afterID string, limit int) ([]string, error) {
	query := `SELECT id::text FROM users ORDER BY id LIMIT $1`
	args := []any{limit}
	if afterID != "" {
		query = `SELECT id::text FROM users WHERE id > $2 ORDER BY id LIMIT $1`
		args = append(args, afterID)
	}

	var ids []string
	err := r.observe("ledger.user_ids", func() error {
		rows, err := r.pool.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return rows.Err()
	})
	return ids, err
}

func (r *LedgerRepo) lockBalance(ctx context.Context, tx pgx.Tx, op, userID string) (int64, error) {
	var balance int64
	err := r.observe(op, func() error {
		return tx.QueryRow(ctx, `
			SELECT primary_currency_balance FROM users WHERE id = $1 FOR UPDATE
		`, userID).Scan(&balance)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ledger.ErrUserNotFound
		}
		return 0, err
	}
	return balance, nil
}

func insertEntry(ctx context.Context, tx pgx.Tx, b base, userID string, d ledger.Draft, balanceAfter int64, at time.Time) (ledger.Entry, error) {
	var meta []byte
	if len(d.Metadata) > 0 {
		var err error
		if meta, err = json.Marshal(d.Metadata); err != nil {
			return ledger.Entry{}, fmt.Errorf("encode ledger metadata: %w", err)
		}
	}

	var reason *string
	if d.Reason != "" {
		reason = &d.Reason
	}

	e := ledger.Entry{
		UserID:       userID,
		Delta:        d.Delta,
		BalanceAfter: balanceAfter,
		Reason:       d.Reason,
		Metadata:     d.Metadata,
		ActorUserID:  d.ActorUserID,
		CreatedAt:    at,
	}

	err := b.observe("ledger.insert_entry", func() error {
		return tx.QueryRow(ctx, `
			INSERT INTO user_currency_ledger (user_id, delta, balance_after, reason, metadata, actor_user_id, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
			RETURNING id
		`, userID, d.Delta, balanceAfter, reason, meta, d.ActorUserID, at).Scan(&e.ID)
	})
	if err != nil {
		return ledger.Entry{}, err
	}
	return e, nil
}

func scanEntry(row pgx.Row) (ledger.Entry, error) {
	var (
		e    ledger.Entry
		meta []byte
	)
	if err := row.Scan(&e.ID, &e.UserID, &e.Delta, &e.BalanceAfter, &e.Reason, &meta, &e.ActorUserID, &e.CreatedAt); err != nil {
		return ledger.Entry{}, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &e.Metadata); err != nil {
			return ledger.Entry{}, fmt.Errorf("decode ledger metadata: %w", err)
		}
	}
	return e, nil
}
