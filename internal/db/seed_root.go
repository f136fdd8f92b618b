package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/geocoder89/accountcore/internal/domain/user"
	"github.com/geocoder89/accountcore/internal/security"
)

type RootSeed struct {
	Email          string
	Username       string
	Password       string
	InitialBalance int64
}

type seedUsers interface {
	GetByEmail(ctx context.Context, email string) (user.User, error)
	Create(ctx context.Context, nu user.NewUser) (user.User, error)
	UpdateRole(ctx context.Context, id string, role user.Role) error
}

// EnsureRootUser creates the root account on first start. An existing account
// with the same email is promoted to root instead.
func EnsureRootUser(ctx context.Context, users seedUsers, seed RootSeed, log *slog.Logger) error {
	if seed.Email == "" || seed.Password == "" {
		return nil
	}

	existing, err := users.GetByEmail(ctx, seed.Email)
	if err == nil {
		if existing.Role == user.RoleRoot {
			return nil
		}
		log.WarnContext(ctx, "promoting existing account to root", "user_id", existing.ID)
		return users.UpdateRole(ctx, existing.ID, user.RoleRoot)
	}

	if !errors.Is(err, user.ErrNotFound) {
		return fmt.Errorf("lookup root user: %w", err)
	}

	hash, salt, err := security.NewPasswordHash(seed.Password)
	if err != nil {
		return err
	}

	username := seed.Username
	if username == "" {
		username = "root"
	}

	u, err := users.Create(ctx, user.NewUser{
		Email:          seed.Email,
		Username:       username,
		PasswordHash:   hash,
		PasswordSalt:   salt,
		Role:           user.RoleRoot,
		InitialBalance: seed.InitialBalance,
	})
	if err != nil {
		return fmt.Errorf("create root user: %w", err)
	}

	log.InfoContext(ctx, "root user created", "user_id", u.ID)

	return nil
}
