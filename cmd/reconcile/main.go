// Command reconcile audits stored balances against the ledger once and exits.
// It exits 3 when drift remains unfixed.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/geocoder89/accountcore/internal/config"
	"github.com/geocoder89/accountcore/internal/db"
	domain "github.com/geocoder89/accountcore/internal/domain/ledger"
	"github.com/geocoder89/accountcore/internal/ledger"
	"github.com/geocoder89/accountcore/internal/observability"
	"github.com/geocoder89/accountcore/internal/repo/postgres"
	"github.com/spf13/pflag"
)

const exitDrift = 3

type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

func main() {
	if err := run(os.Args[1:]); err != nil {
		var coded *exitError
		if errors.As(err, &coded) {
			fmt.Fprintln(os.Stderr, coded.msg)
			os.Exit(coded.code)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var (
		autoFix bool
		userID  string
		asJSON  bool
		timeout time.Duration
	)

	flagSet := pflag.NewFlagSet("reconcile", pflag.ContinueOnError)
	flagSet.BoolVar(&autoFix, "auto-fix", false, "append a reconciliation entry for drifted users; stored balances are left as they are")
	flagSet.StringVar(&userID, "user", "", "audit a single user id instead of everyone")
	flagSet.BoolVar(&asJSON, "json", false, "print audits as JSON")
	flagSet.DurationVar(&timeout, "timeout", 10*time.Minute, "give up after this long")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return fmt.Errorf("unexpected argument: %s", rest[0])
	}

	if err := config.LoadDotEnv(); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.StoreDriver != config.StoreDriverPostgres {
		return fmt.Errorf("reconcile needs the postgres store, got %q", cfg.StoreDriver)
	}

	log := observability.NewLogger(cfg.Env).With("component", "reconcile-cli")

	ctx, cancel := config.WithTimeout(context.Background(), timeout)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.DBURL, cfg.DBMaxConns)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer pool.Close()

	rec := ledger.NewReconciler(postgres.NewStore(pool, nil).Ledger(), log, nil, nil)

	var audits []domain.Audit
	if userID != "" {
		a, err := rec.VerifyBalance(ctx, userID, autoFix)
		if err != nil {
			return err
		}
		audits = []domain.Audit{a}
	} else {
		audits, err = rec.VerifyAll(ctx, autoFix)
		if err != nil {
			return err
		}
	}

	if err := writeReport(os.Stdout, audits, cfg.Currency, asJSON); err != nil {
		return err
	}

	if n := unfixedDrift(audits); n > 0 {
		return &exitError{code: exitDrift, msg: fmt.Sprintf("%d balance(s) drifted; rerun with --auto-fix to repair", n)}
	}
	return nil
}
