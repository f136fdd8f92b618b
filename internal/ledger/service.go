// Package ledger owns every write to a user's balance. The stored balance is
// only ever changed together with an appended ledger row, so for every user
// the balance equals the sum of that user's deltas.
package ledger

import (
	"context"
	"errors"
	"log/slog"
	"math"

	"github.com/geocoder89/accountcore/internal/currency"
	"github.com/geocoder89/accountcore/internal/domain/ledger"
	"github.com/geocoder89/accountcore/internal/observability"
)

// Store persists balances and ledger rows. Mutate and Audit must run their
// callback while holding the user's balance exclusively, and must append the
// returned draft in the same unit of work as the balance write.
type Store interface {
	Mutate(ctx context.Context, userID string, fn func(current int64) (ledger.Draft, error)) (ledger.Entry, error)
	Balance(ctx context.Context, userID string) (ledger.Balance, error)
	List(ctx context.Context, userID string, f ledger.ListFilter) ([]ledger.Entry, error)
	Audit(ctx context.Context, userID string, fix func(a ledger.Audit) *ledger.Draft) (ledger.Audit, error)
	UserIDs(ctx context.Context, afterID string, limit int) ([]string, error)
}

type Policy struct {
	AllowNegative bool
}

type Service struct {
	store    Store
	policy   Policy
	currency currency.Config
	log      *slog.Logger
	prom     *observability.Prom
}

func NewService(store Store, policy Policy, cur currency.Config, log *slog.Logger, prom *observability.Prom) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: store, policy: policy, currency: cur, log: log, prom: prom}
}

func (s *Service) Currency() currency.Config { return s.currency }

func (s *Service) Policy() Policy { return s.policy }

// Adjust adds delta to the user's balance.
func (s *Service) Adjust(ctx context.Context, userID string, delta int64, memo ledger.Memo) (ledger.Entry, error) {
	entry, err := s.store.Mutate(ctx, userID, func(current int64) (ledger.Draft, error) {
		next, err := addChecked(current, delta)
		if err != nil {
			return ledger.Draft{}, err
		}
		if err := s.checkPolicy(next); err != nil {
			return ledger.Draft{}, err
		}
		return draft(delta, memo), nil
	})

	s.record(ctx, "adjust", userID, delta, err)

	return entry, err
}

// Set moves the balance to target, recording the difference as the delta.
// A row is written even when the balance does not change.
func (s *Service) Set(ctx context.Context, userID string, target int64, memo ledger.Memo) (ledger.Entry, error) {
	if err := s.checkPolicy(target); err != nil {
		s.record(ctx, "set", userID, 0, err)
		return ledger.Entry{}, err
	}

	var delta int64
	entry, err := s.store.Mutate(ctx, userID, func(current int64) (ledger.Draft, error) {
		d, err := subChecked(target, current)
		if err != nil {
			return ledger.Draft{}, err
		}
		delta = d
		return draft(d, memo), nil
	})

	s.record(ctx, "set", userID, delta, err)

	return entry, err
}

func (s *Service) Balance(ctx context.Context, userID string) (ledger.Balance, error) {
	return s.store.Balance(ctx, userID)
}

// List returns entries newest first. A zero limit means DefaultListLimit;
// the HTTP layer rejects an explicit zero before it gets here.
func (s *Service) List(ctx context.Context, userID string, f ledger.ListFilter) ([]ledger.Entry, error) {
	if f.Limit == 0 {
		f.Limit = ledger.DefaultListLimit
	}
	if f.Limit < 1 || f.Limit > ledger.MaxListLimit {
		return nil, ledger.ErrInvalidLimit
	}

	return s.store.List(ctx, userID, f)
}

func (s *Service) checkPolicy(next int64) error {
	if next < 0 && !s.policy.AllowNegative {
		return ledger.ErrNegativeBalance
	}
	return nil
}

func (s *Service) record(ctx context.Context, op, userID string, delta int64, err error) {
	switch {
	case err == nil:
		s.prom.LedgerMutation(op, "ok")
		s.log.InfoContext(ctx, "ledger write", "op", op, "user_id", userID, "delta", delta)
	case isRejection(err):
		s.prom.LedgerMutation(op, "rejected")
		s.log.InfoContext(ctx, "ledger write rejected", "op", op, "user_id", userID, "err", err)
	default:
		s.prom.LedgerMutation(op, "error")
		s.log.ErrorContext(ctx, "ledger write failed", "op", op, "user_id", userID, "err", err)
	}
}

func isRejection(err error) bool {
	return errors.Is(err, ledger.ErrNegativeBalance) ||
		errors.Is(err, ledger.ErrUserNotFound) ||
		errors.Is(err, ledger.ErrOverflow)
}

func draft(delta int64, memo ledger.Memo) ledger.Draft {
	return ledger.Draft{
		Delta:       delta,
		Reason:      memo.Reason,
		Metadata:    memo.Metadata,
		ActorUserID: memo.ActorUserID,
	}
}

func addChecked(a, b int64) (int64, error) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, ledger.ErrOverflow
	}
	return a + b, nil
}

func subChecked(a, b int64) (int64, error) {
	if (b < 0 && a > math.MaxInt64+b) || (b > 0 && a < math.MinInt64+b) {
		return 0, ledger.ErrOverflow
	}
	return a - b, nil
}
