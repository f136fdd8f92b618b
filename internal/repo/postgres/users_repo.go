package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/geocoder89/accountcore/internal/domain/ledger"
	"github.com/geocoder89/accountcore/internal/domain/user"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type UsersRepo struct {
	base
}

const userColumns = `id, email, username, password_hash, password_salt, auth_provider, role,
	two_factor_secret, primary_currency_balance, primary_currency_updated_at, created_at`

func scanUser(row pgx.Row) (user.User, error) {
	var u user.User
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.Username,
		&u.PasswordHash,
		&u.PasswordSalt,
		&u.AuthProvider,
		&u.Role,
		&u.TwoFactorSecret,
		&u.Balance,
		&u.BalanceUpdatedAt,
		&u.CreatedAt,
	)
	return u, err
}

// Create inserts the account and its opening ledger row in one transaction.
func (r *UsersRepo) Create(ctx context.Context, nu user.NewUser) (u user.User, err error) {
	now := time.Now().UTC()
	u = user.User{
		ID:               uuid.NewString(),
		Email:            nu.Email,
		Username:         nu.Username,
		PasswordHash:     nu.PasswordHash,
		PasswordSalt:     nu.PasswordSalt,
		AuthProvider:     user.ProviderPassword,
		Role:             nu.Role,
		Balance:          nu.InitialBalance,
		BalanceUpdatedAt: now,
		CreatedAt:        now,
	}

	err = r.inTx(ctx, func(tx pgx.Tx) error {
		err := r.observe("users.create.insert", func() error {
			_, e := tx.Exec(ctx, `
				INSERT INTO users (id, email, username, password_hash, password_salt, auth_provider, role,
					primary_currency_balance, primary_currency_updated_at, created_at)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
			`, u.ID, u.Email, u.Username, u.PasswordHash, u.PasswordSalt, u.AuthProvider, u.Role,
				u.Balance, u.BalanceUpdatedAt, u.CreatedAt)
			return e
		})
		if err != nil {
			if isUniqueViolation(err, "users_email_uniq") {
				return user.ErrEmailAlreadyUsed
			}
			return err
		}

		_, err = insertEntry(ctx, tx, r.base, u.ID, ledger.Draft{
			Delta:  nu.InitialBalance,
			Reason: ledger.ReasonInitialBalance,
		}, u.Balance, now)
		return err
	})
	if err != nil {
		return user.User{}, err
	}

	return u, nil
}

func (r *UsersRepo) GetByID(ctx context.Context, id string) (user.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return user.User{}, user.ErrNotFound
	}
	return r.getOne(ctx, "users.get_by_id", `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *UsersRepo) GetByEmail(ctx context.Context, email string) (user.User, error) {
	return r.getOne(ctx, "users.get_by_email", `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email)
}

func (r *UsersRepo) getOne(ctx context.Context, op, query string, arg any) (user.User, error) {
	var u user.User
	err := r.observe(op, func() error {
		var e error
		u, e = scanUser(r.pool.QueryRow(ctx, query, arg))
		return e
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, err
	}
	return u, nil
}

func (r *UsersRepo) List(ctx context.Context) ([]user.User, error) {
	var out []user.User
	err := r.observe("users.list", func() error {
		rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at ASC`)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			u, err := scanUser(rows)
			if err != nil {
				return err
			}
			out = append(out, u)
		}
		return rows.Err()
	})
	return out, err
}

func (r *UsersRepo) UpdateRole(ctx context.Context, id string, role user.Role) error {
	return r.execOne(ctx, "users.update_role", `UPDATE users SET role = $2 WHERE id = $1`, id, role)
}

func (r *UsersRepo) UpdatePassword(ctx context.Context, id string, hash, salt []byte) error {
	return r.execOne(ctx, "users.update_password",
		`UPDATE users SET password_hash = $2, password_salt = $3, auth_provider = 'password' WHERE id = $1`,
		id, hash, salt)
}

func (r *UsersRepo) SetTwoFactorSecret(ctx context.Context, id string, secret *string) error {
	return r.execOne(ctx, "users.set_two_factor_secret", `UPDATE users SET two_factor_secret = $2 WHERE id = $1`, id, secret)
}

// Delete removes the user; sessions, ledger rows and codes go with it by cascade.
func (r *UsersRepo) Delete(ctx context.Context, id string) error {
	return r.execOne(ctx, "users.delete", `DELETE FROM users WHERE id = $1`, id)
}

// execOne runs an update keyed by user id as the first parameter.
func (r *UsersRepo) execOne(ctx context.Context, op, query, id string, args ...any) error {
	if _, err := uuid.Parse(id); err != nil {
		return user.ErrNotFound
	}

	var affected int64
	err := r.observe(op, func() error {
		tag, e := r.pool.Exec(ctx, query, append([]any{id}, args...)...)
		affected = tag.RowsAffected()
		return e
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if affected == 0 {
		return user.ErrNotFound
	}
	return nil
}

func (r *UsersRepo) CreateResetCode(ctx context.Context, rc user.ResetCode) error {
	err := r.observe("users.create_reset_code", func() error {
		_, e := r.pool.Exec(ctx, `
			INSERT INTO password_reset_codes (code, user_id, created_at, valid_until)
			VALUES ($1,$2,$3,$4)
		`, rc.Code, rc.UserID, rc.CreatedAt, rc.ValidUntil)
		return e
	})
	if isForeignKeyViolation(err) {
		return user.ErrNotFound
	}
	return err
}

// ResetPassword consumes an unused, unexpired reset code and stores the new
// password in the same transaction.
func (r *UsersRepo) ResetPassword(ctx context.Context, code string, hash, salt []byte) (userID string, err error) {
	err = r.inTx(ctx, func(tx pgx.Tx) error {
		err := r.observe("users.reset_password.consume", func() error {
			return tx.QueryRow(ctx, `
				UPDATE password_reset_codes
				SET used_at = now()
				WHERE code = $1 AND used_at IS NULL AND valid_until > now()
				RETURNING user_id
			`, code).Scan(&userID)
		})
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return user.ErrResetCodeNotFound
			}
			return err
		}

		return r.observe("users.reset_password.update", func() error {
			_, e := tx.Exec(ctx, `
				UPDATE users SET password_hash = $2, password_salt = $3, auth_provider = 'password'
				WHERE id = $1
			`, userID, hash, salt)
			return e
		})
	})
	if err != nil {
		return "", err
	}
	return userID, nil
}
