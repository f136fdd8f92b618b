// Package memory holds in-process stores used by tests and by the
// STORE_DRIVER=memory dev mode. One Store backs every repository view so that
// deleting a user cascades to everything the user owns.
package memory

import (
	"strings"
	"sync"
	"time"

	"github.com/geocoder89/accountcore/internal/domain/ledger"
	"github.com/geocoder89/accountcore/internal/domain/session"
	"github.com/geocoder89/accountcore/internal/domain/twofactor"
	"github.com/geocoder89/accountcore/internal/domain/user"
)

// Store serializes every write behind a single mutex, which also gives the
// ledger its per-user read-modify-write atomicity.
type Store struct {
	mu sync.RWMutex

	users    map[string]user.User
	byEmail  map[string]string
	sessions map[string]session.Session
	entries  map[string][]ledger.Entry
	codes    map[string][]twofactor.RecoveryCode
	resets   map[string]user.ResetCode

	nextEntryID int64
	now         func() time.Time
}

func NewStore() *Store {
	return &Store{
		users:    make(map[string]user.User),
		byEmail:  make(map[string]string),
		sessions: make(map[string]session.Session),
		entries:  make(map[string][]ledger.Entry),
		codes:    make(map[string][]twofactor.RecoveryCode),
		resets:   make(map[string]user.ResetCode),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the store's time source. Tests only.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

func (s *Store) Users() *UsersRepo { return &UsersRepo{s: s} }

func (s *Store) Sessions() *SessionsRepo { return &SessionsRepo{s: s} }

func (s *Store) Ledger() *LedgerRepo { return &LedgerRepo{s: s} }

func (s *Store) RecoveryCodes() *RecoveryCodesRepo { return &RecoveryCodesRepo{s: s} }

func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func cloneMeta(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
