// Package sessions issues and resolves opaque bearer tokens. Expired sessions
// are never deleted eagerly; they simply stop resolving.
package sessions

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/geocoder89/accountcore/internal/cache"
	"github.com/geocoder89/accountcore/internal/domain/session"
	"github.com/geocoder89/accountcore/internal/domain/user"
	"github.com/geocoder89/accountcore/internal/observability"
)

const tokenBytes = 32

type Repo interface {
	Create(ctx context.Context, s session.Session) error
	Get(ctx context.Context, id string) (session.Session, error)
	// Extend moves valid_until to until only while the stored row is still
	// live at now and until is later than its current value.
	Extend(ctx context.Context, id string, now, until time.Time, role user.Role) (bool, error)
	Invalidate(ctx context.Context, id string, at time.Time) error
	InvalidateAll(ctx context.Context, userID string, at time.Time) (int64, error)
}

type Config struct {
	TTL         time.Duration
	RememberTTL time.Duration
	ExtendAfter time.Duration
	CacheTTL    time.Duration
}

func DefaultConfig() Config {
	return Config{
		TTL:         24 * time.Hour,
		RememberTTL: 7 * 24 * time.Hour,
		ExtendAfter: time.Hour,
		CacheTTL:    30 * time.Second,
	}
}

type Service struct {
	repo  Repo
	cfg   Config
	cache *cache.Cache[session.Session]
	now   func() time.Time
	log   *slog.Logger
	prom  *observability.Prom
}

func NewService(repo Repo, cfg Config, log *slog.Logger, prom *observability.Prom) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		repo:  repo,
		cfg:   cfg,
		cache: cache.New[session.Session](cfg.CacheTTL),
		now:   func() time.Time { return time.Now().UTC() },
		log:   log,
		prom:  prom,
	}
}

// WithClock returns a copy of s reading time from now. The copy shares the
// lookup cache.
func (s *Service) WithClock(now func() time.Time) *Service {
	cp := *s
	cp.now = now
	return &cp
}

// Create opens a session for u with the role it holds right now.
func (s *Service) Create(ctx context.Context, u user.User, remember bool) (session.Session, error) {
	token, err := newToken()
	if err != nil {
		return session.Session{}, fmt.Errorf("generate session token: %w", err)
	}

	ttl := s.cfg.TTL
	if remember {
		ttl = s.cfg.RememberTTL
	}

	now := s.now()
	sess := session.Session{
		ID:         token,
		UserID:     u.ID,
		Role:       u.Role,
		CreatedAt:  now,
		ValidUntil: now.Add(ttl),
	}

	if err := s.repo.Create(ctx, sess); err != nil {
		return session.Session{}, fmt.Errorf("store session: %w", err)
	}

	s.prom.SessionEvent("created")
	s.log.InfoContext(ctx, "session created", "user_id", u.ID, "remember", remember)

	return sess, nil
}

// Lookup resolves a token. Unknown and expired tokens both return
// session.ErrNotFound.
func (s *Service) Lookup(ctx context.Context, token string) (session.Session, error) {
	if token == "" {
		return session.Session{}, session.ErrNotFound
	}

	now := s.now()

	if sess, ok := s.cache.Get(token); ok {
		if !sess.Expired(now) {
			return sess, nil
		}
		s.cache.Delete(token)
		return session.Session{}, session.ErrNotFound
	}

	sess, err := s.repo.Get(ctx, token)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return session.Session{}, session.ErrNotFound
		}
		return session.Session{}, err
	}

	if sess.Expired(now) {
		return session.Session{}, session.ErrNotFound
	}

	s.cache.SetUntil(token, sess, sess.ValidUntil)

	return sess, nil
}

// Extend moves ValidUntil forward to until and refreshes the role snapshot.
// An until that is not later than the current value leaves sess unchanged.
// An expired or invalidated session is never brought back: the stored row
// is checked, not the caller's copy, so a logout racing this call wins.
func (s *Service) Extend(ctx context.Context, sess session.Session, until time.Time, role user.Role) (session.Session, error) {
	now := s.now()
	if sess.Expired(now) {
		return session.Session{}, session.ErrNotFound
	}
	if !until.After(sess.ValidUntil) {
		return sess, nil
	}

	moved, err := s.repo.Extend(ctx, sess.ID, now, until, role)
	if err != nil {
		return sess, fmt.Errorf("extend session: %w", err)
	}

	s.cache.Delete(sess.ID)
	if !moved {
		return sess, nil
	}

	sess.ValidUntil = until
	sess.Role = role
	s.prom.SessionEvent("extended")

	return sess, nil
}

// Touch extends an active session to now+TTL once at least ExtendAfter has
// passed since its window was last set.
func (s *Service) Touch(ctx context.Context, sess session.Session, role user.Role) (session.Session, error) {
	until := s.now().Add(s.cfg.TTL)
	if until.Sub(sess.ValidUntil) < s.cfg.ExtendAfter {
		return sess, nil
	}
	return s.Extend(ctx, sess, until, role)
}

func (s *Service) Invalidate(ctx context.Context, token string) error {
	if err := s.repo.Invalidate(ctx, token, s.now()); err != nil {
		return fmt.Errorf("invalidate session: %w", err)
	}

	s.cache.Delete(token)
	s.prom.SessionEvent("invalidated")

	return nil
}

// InvalidateAll ends every session the user holds.
func (s *Service) InvalidateAll(ctx context.Context, userID string) error {
	n, err := s.repo.InvalidateAll(ctx, userID, s.now())
	if err != nil {
		return fmt.Errorf("invalidate sessions: %w", err)
	}

	// the cache is keyed by token, so drop everything
	s.cache.Clear()
	s.prom.SessionEvent("invalidated_all")
	s.log.InfoContext(ctx, "sessions invalidated", "user_id", userID, "count", n)

	return nil
}

func newToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
