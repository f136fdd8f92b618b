package memory

import (
	"context"
	"time"

	"github.com/geocoder89/accountcore/internal/domain/session"
	"github.com/geocoder89/accountcore/internal/domain/user"
)

type SessionsRepo struct {
	s *Store
}

func (r *SessionsRepo) Create(ctx context.Context, sess session.Session) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[sess.UserID]; !ok {
		return user.ErrNotFound
	}
	s.sessions[sess.ID] = sess
	return nil
}

// Get returns the row whether or not it has expired.
func (r *SessionsRepo) Get(ctx context.Context, id string) (session.Session, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	sess, ok := r.s.sessions[id]
	if !ok {
		return session.Session{}, session.ErrNotFound
	}
	return sess, nil
}

// Extend moves valid_until forward and refreshes the role snapshot. It reports
// false when the session already ended at now or until is not later than the
// stored value.
func (r *SessionsRepo) Extend(ctx context.Context, id string, now, until time.Time, role user.Role) (bool, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return false, session.ErrNotFound
	}
	if !sess.ValidUntil.After(now) || !until.After(sess.ValidUntil) {
		return false, nil
	}
	sess.ValidUntil = until
	sess.Role = role
	s.sessions[id] = sess
	return true, nil
}

func (r *SessionsRepo) Invalidate(ctx context.Context, id string, at time.Time) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil
	}
	if sess.ValidUntil.After(at) {
		sess.ValidUntil = at
		s.sessions[id] = sess
	}
	return nil
}

func (r *SessionsRepo) InvalidateAll(ctx context.Context, userID string, at time.Time) (int64, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, sess := range s.sessions {
		if sess.UserID != userID || !sess.ValidUntil.After(at) {
			continue
		}
		sess.ValidUntil = at
		s.sessions[id] = sess
		n++
	}
	return n, nil
}
