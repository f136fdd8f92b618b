package memory

import (
	"context"
	"sort"
	"time"

	"github.com/geocoder89/accountcore/internal/domain/ledger"
)

type LedgerRepo struct {
	s *Store
}

func (r *LedgerRepo) Mutate(ctx context.Context, userID string, fn func(current int64) (ledger.Draft, error)) (ledger.Entry, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return ledger.Entry{}, ledger.ErrUserNotFound
	}

	d, err := fn(u.Balance)
	if err != nil {
		return ledger.Entry{}, err
	}

	now := s.now()
	u.Balance += d.Delta
	u.BalanceUpdatedAt = now
	s.users[userID] = u

	return s.appendLocked(userID, d, u.Balance, now), nil
}

func (r *LedgerRepo) Balance(ctx context.Context, userID string) (ledger.Balance, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	u, ok := r.s.users[userID]
	if !ok {
		return ledger.Balance{}, ledger.ErrUserNotFound
	}
	return ledger.Balance{UserID: u.ID, Balance: u.Balance, UpdatedAt: u.BalanceUpdatedAt}, nil
}

func (r *LedgerRepo) List(ctx context.Context, userID string, f ledger.ListFilter) ([]ledger.Entry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	if _, ok := r.s.users[userID]; !ok {
		return nil, ledger.ErrUserNotFound
	}

	src := r.s.entries[userID]
	out := make([]ledger.Entry, 0, len(src))
	for i := len(src) - 1; i >= 0; i-- {
		e := src[i]
		if f.Before != nil && !e.CreatedAt.Before(*f.Before) {
			continue
		}
		if f.After != nil && !e.CreatedAt.After(*f.After) {
			continue
		}
		e.Metadata = cloneMeta(e.Metadata)
		out = append(out, e)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *LedgerRepo) Audit(ctx context.Context, userID string, fix func(a ledger.Audit) *ledger.Draft) (ledger.Audit, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return ledger.Audit{}, ledger.ErrUserNotFound
	}

	var sum int64
	for _, e := range s.entries[userID] {
		sum += e.Delta
	}

	a := ledger.Audit{UserID: userID, Stored: u.Balance, Computed: sum, Drift: u.Balance - sum}
	if fix == nil {
		return a, nil
	}

	d := fix(a)
	if d == nil {
		return a, nil
	}

	e := s.appendLocked(userID, *d, u.Balance, s.now())
	a.Fixed = true
	a.Entry = &e
	return a, nil
}

func (r *LedgerRepo) UserIDs(ctx context.Context, afterID string, limit int) ([]string, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	ids := make([]string, 0, len(r.s.users))
	for id := range r.s.users {
		if id > afterID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

// OverwriteBalance writes the balance column without a ledger row. It exists
// for repair tooling and drift tests; normal code paths go through Mutate.
func (r *LedgerRepo) OverwriteBalance(userID string, balance int64) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return ledger.ErrUserNotFound
	}
	u.Balance = balance
	s.users[userID] = u
	return nil
}

func (s *Store) appendLocked(userID string, d ledger.Draft, balanceAfter int64, at time.Time) ledger.Entry {
	s.nextEntryID++
	e := ledger.Entry{
		ID:           s.nextEntryID,
		UserID:       userID,
		Delta:        d.Delta,
		BalanceAfter: balanceAfter,
		Reason:       d.Reason,
		Metadata:     cloneMeta(d.Metadata),
		ActorUserID:  d.ActorUserID,
		CreatedAt:    at,
	}
	s.entries[userID] = append(s.entries[userID], e)

	out := e
	out.Metadata = cloneMeta(e.Metadata)
	return out
}
