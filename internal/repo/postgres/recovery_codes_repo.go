package postgres

import (
	"context"
	"time"

	"github.com/geocoder89/accountcore/internal/domain/twofactor"
	"github.com/geocoder89/accountcore/internal/domain/user"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type RecoveryCodesRepo struct {
	base
}

// Replace deletes the user's previous codes and inserts the new batch in one
// transaction.
func (r *RecoveryCodesRepo) Replace(ctx context.Context, userID string, hashes []string, at time.Time) error {
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		err := r.observe("recovery_codes.replace.delete", func() error {
			_, e := tx.Exec(ctx, `DELETE FROM recovery_codes WHERE user_id = $1`, userID)
			return e
		})
		if err != nil {
			return err
		}

		batch := &pgx.Batch{}
		for _, h := range hashes {
			batch.Queue(`
				INSERT INTO recovery_codes (id, user_id, code_hash, created_at)
				VALUES ($1,$2,$3,$4)
			`, uuid.NewString(), userID, h, at)
		}

		return r.observe("recovery_codes.replace.insert", func() error {
			return tx.SendBatch(ctx, batch).Close()
		})
	})
	if isForeignKeyViolation(err) {
		return user.ErrNotFound
	}
	return err
}

// Consume marks one matching unused code. The used_at IS NULL guard makes
// concurrent attempts with the same code succeed at most once.
func (r *RecoveryCodesRepo) Consume(ctx context.Context, userID, hash string, at time.Time) (bool, error) {
	var affected int64
	err := r.observe("recovery_codes.consume", func() error {
		tag, e := r.pool.Exec(ctx, `
			UPDATE recovery_codes SET used_at = $3
			WHERE id = (
				SELECT id FROM recovery_codes
				WHERE user_id = $1 AND code_hash = $2 AND used_at IS NULL
				LIMIT 1
				FOR UPDATE SKIP LOCKED
			)
			AND used_at IS NULL
		`, userID, hash, at)
		affected = tag.RowsAffected()
		return e
	})
	return affected == 1, err
}

func (r *RecoveryCodesRepo) Summary(ctx context.Context, userID string) (twofactor.Summary, error) {
	var sum twofactor.Summary
	err := r.observe("recovery_codes.summary", func() error {
		return r.pool.QueryRow(ctx, `
			SELECT COUNT(*), COUNT(*) FILTER (WHERE used_at IS NULL), MAX(created_at)
			FROM recovery_codes
			WHERE user_id = $1
		`, userID).Scan(&sum.Total, &sum.Remaining, &sum.LastGenerated)
	})
	return sum, err
}

func (r *RecoveryCodesRepo) DeleteAll(ctx context.Context, userID string) error {
	return r.observe("recovery_codes.delete_all", func() error {
		_, e := r.pool.Exec(ctx, `DELETE FROM recovery_codes WHERE user_id = $1`, userID)
		return e
	})
}
