package memory

import (
	"context"
	"sort"

	"github.com/geocoder89/accountcore/internal/domain/ledger"
	"github.com/geocoder89/accountcore/internal/domain/user"
	"github.com/google/uuid"
)

type UsersRepo struct {
	s *Store
}

func (r *UsersRepo) Create(ctx context.Context, nu user.NewUser) (user.User, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	key := emailKey(nu.Email)
	if _, ok := s.byEmail[key]; ok {
		return user.User{}, user.ErrEmailAlreadyUsed
	}

	now := s.now()
	u := user.User{
		ID:               uuid.NewString(),
		Email:            nu.Email,
		Username:         nu.Username,
		PasswordHash:     append([]byte(nil), nu.PasswordHash...),
		PasswordSalt:     append([]byte(nil), nu.PasswordSalt...),
		AuthProvider:     user.ProviderPassword,
		Role:             nu.Role,
		Balance:          nu.InitialBalance,
		BalanceUpdatedAt: now,
		CreatedAt:        now,
	}

	s.users[u.ID] = u
	s.byEmail[key] = u.ID
	s.appendLocked(u.ID, ledger.Draft{Delta: nu.InitialBalance, Reason: ledger.ReasonInitialBalance}, nu.InitialBalance, now)

	return u, nil
}

func (r *UsersRepo) GetByID(ctx context.Context, id string) (user.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	u, ok := r.s.users[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return u, nil
}

func (r *UsersRepo) GetByEmail(ctx context.Context, email string) (user.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	id, ok := r.s.byEmail[emailKey(email)]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return r.s.users[id], nil
}

func (r *UsersRepo) List(ctx context.Context) ([]user.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]user.User, 0, len(r.s.users))
	for _, u := range r.s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *UsersRepo) UpdateRole(ctx context.Context, id string, role user.Role) error {
	return r.update(id, func(u *user.User) { u.Role = role })
}

func (r *UsersRepo) UpdatePassword(ctx context.Context, id string, hash, salt []byte) error {
	return r.update(id, func(u *user.User) {
		u.PasswordHash = append([]byte(nil), hash...)
		u.PasswordSalt = append([]byte(nil), salt...)
		u.AuthProvider = user.ProviderPassword
	})
}

func (r *UsersRepo) SetTwoFactorSecret(ctx context.Context, id string, secret *string) error {
	return r.update(id, func(u *user.User) {
		if secret == nil {
			u.TwoFactorSecret = nil
			return
		}
		v := *secret
		u.TwoFactorSecret = &v
	})
}

// Delete removes the user and everything the user owns.
func (r *UsersRepo) Delete(ctx context.Context, id string) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return user.ErrNotFound
	}

	delete(s.users, id)
	delete(s.byEmail, emailKey(u.Email))
	delete(s.entries, id)
	delete(s.codes, id)
	for k, sess := range s.sessions {
		if sess.UserID == id {
			delete(s.sessions, k)
		}
	}
	for k, rc := range s.resets {
		if rc.UserID == id {
			delete(s.resets, k)
		}
	}
	return nil
}

func (r *UsersRepo) CreateResetCode(ctx context.Context, rc user.ResetCode) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[rc.UserID]; !ok {
		return user.ErrNotFound
	}
	s.resets[rc.Code] = rc
	return nil
}

// ResetPassword consumes an unused, unexpired reset code and stores the new
// password in one step. It returns the owning user's id.
func (r *UsersRepo) ResetPassword(ctx context.Context, code string, hash, salt []byte) (string, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	rc, ok := s.resets[code]
	if !ok || rc.UsedAt != nil || !now.Before(rc.ValidUntil) {
		return "", user.ErrResetCodeNotFound
	}

	u, ok := s.users[rc.UserID]
	if !ok {
		return "", user.ErrResetCodeNotFound
	}

	rc.UsedAt = &now
	s.resets[code] = rc

	u.PasswordHash = append([]byte(nil), hash...)
	u.PasswordSalt = append([]byte(nil), salt...)
	u.AuthProvider = user.ProviderPassword
	s.users[u.ID] = u

	return u.ID, nil
}

func (r *UsersRepo) update(id string, fn func(u *user.User)) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return user.ErrNotFound
	}
	fn(&u)
	s.users[id] = u
	return nil
}
