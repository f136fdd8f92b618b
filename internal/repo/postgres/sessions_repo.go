package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/geocoder89/accountcore/internal/domain/session"
	"github.com/geocoder89/accountcore/internal/domain/user"
	"github.com/jackc/pgx/v5"
)

type SessionsRepo struct {
	base
}

func (r *SessionsRepo) Create(ctx context.Context, s session.Session) error {
	err := r.observe("sessions.create", func() error {
		_, e := r.pool.Exec(ctx, `
			INSERT INTO user_sessions (id, user_id, role, created_at, valid_until)
			VALUES ($1,$2,$3,$4,$5)
		`, s.ID, s.UserID, s.Role, s.CreatedAt, s.ValidUntil)
		return e
	})
	if isForeignKeyViolation(err) {
		return user.ErrNotFound
	}
	return err
}

// Get returns the row regardless of expiry; the caller decides.
func (r *SessionsRepo) Get(ctx context.Context, id string) (session.Session, error) {
	var s session.Session
	err := r.observe("sessions.get", func() error {
		return r.pool.QueryRow(ctx, `
			SELECT id, user_id, role, created_at, valid_until
			FROM user_sessions
			WHERE id = $1
		`, id).Scan(&s.ID, &s.UserID, &s.Role, &s.CreatedAt, &s.ValidUntil)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return session.Session{}, session.ErrNotFound
		}
		return session.Session{}, err
	}
	return s, nil
}

// Extend only moves valid_until forward and only on a live row; the WHERE
// clause makes a stale request a no-op when it races a newer extension or an
// invalidation.
func (r *SessionsRepo) Extend(ctx context.Context, id string, now, until time.Time, role user.Role) (bool, error) {
	var affected int64
	err := r.observe("sessions.extend", func() error {
		tag, e := r.pool.Exec(ctx, `
			UPDATE user_sessions
			SET valid_until = $2, role = $3
			WHERE id = $1 AND valid_until < $2 AND valid_until > $4
		`, id, until, role, now)
		affected = tag.RowsAffected()
		return e
	})
	return affected > 0, err
}

func (r *SessionsRepo) Invalidate(ctx context.Context, id string, at time.Time) error {
	return r.observe("sessions.invalidate", func() error {
		_, e := r.pool.Exec(ctx, `
			UPDATE user_sessions SET valid_until = $2
			WHERE id = $1 AND valid_until > $2
		`, id, at)
		return e
	})
}

func (r *SessionsRepo) InvalidateAll(ctx context.Context, userID string, at time.Time) (int64, error) {
	var affected int64
	err := r.observe("sessions.invalidate_all", func() error {
		tag, e := r.pool.Exec(ctx, `
			UPDATE user_sessions SET valid_until = $2
			WHERE user_id = $1 AND valid_until > $2
		`, userID, at)
		affected = tag.RowsAffected()
		return e
	})
	return affected, err
}
