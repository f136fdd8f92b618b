package memory

import (
	"context"
	"time"

	"github.com/geocoder89/accountcore/internal/domain/twofactor"
	"github.com/geocoder89/accountcore/internal/domain/user"
	"github.com/google/uuid"
)

type RecoveryCodesRepo struct {
	s *Store
}

// Replace drops the user's previous codes and stores the new hashes.
func (r *RecoveryCodesRepo) Replace(ctx context.Context, userID string, hashes []string, at time.Time) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; !ok {
		return user.ErrNotFound
	}

	batch := make([]twofactor.RecoveryCode, 0, len(hashes))
	for _, h := range hashes {
		batch = append(batch, twofactor.RecoveryCode{
			ID:        uuid.NewString(),
			UserID:    userID,
			CodeHash:  h,
			CreatedAt: at,
		})
	}
	s.codes[userID] = batch
	return nil
}

// Consume marks the matching unused code as used. It reports false when no
// unused code matches.
func (r *RecoveryCodesRepo) Consume(ctx context.Context, userID, hash string, at time.Time) (bool, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	codes := s.codes[userID]
	for i := range codes {
		if codes[i].CodeHash != hash || codes[i].UsedAt != nil {
			continue
		}
		t := at
		codes[i].UsedAt = &t
		return true, nil
	}
	return false, nil
}

func (r *RecoveryCodesRepo) Summary(ctx context.Context, userID string) (twofactor.Summary, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var sum twofactor.Summary
	for _, c := range r.s.codes[userID] {
		sum.Total++
		if c.UsedAt == nil {
			sum.Remaining++
		}
		if sum.LastGenerated == nil || c.CreatedAt.After(*sum.LastGenerated) {
			t := c.CreatedAt
			sum.LastGenerated = &t
		}
	}
	return sum, nil
}

func (r *RecoveryCodesRepo) DeleteAll(ctx context.Context, userID string) error {
	r.s.mu.Lock()
	delete(r.s.codes, userID)
	r.s.mu.Unlock()
	return nil
}
