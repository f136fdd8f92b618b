package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/geocoder89/accountcore/internal/config"
	"github.com/geocoder89/accountcore/internal/db"
	"github.com/geocoder89/accountcore/internal/ledger"
	"github.com/geocoder89/accountcore/internal/observability"
	"github.com/geocoder89/accountcore/internal/repo/postgres"
	"github.com/geocoder89/accountcore/internal/worker"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := observability.NewLogger(cfg.Env).With("component", "reconcile-worker")

	if cfg.StoreDriver != config.StoreDriverPostgres {
		log.Error("the reconcile worker needs the postgres store", "store", cfg.StoreDriver)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)

	defer stop()

	pool, err := db.NewPool(ctx, cfg.DBURL, cfg.DBMaxConns)
	if err != nil {
		log.Error("db connect failed", "err", err)
		os.Exit(1)
	}

	defer pool.Close()

	store := postgres.NewStore(pool, nil)
	stats := observability.NewReconcileMetrics()
	rec := ledger.NewReconciler(store.Ledger(), log, nil, stats)

	w := worker.New(worker.Config{
		Interval:   cfg.ReconcileInterval,
		AutoFix:    cfg.ReconcileAutoFix,
		RunTimeout: 10 * time.Minute,
	}, rec, log)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.WorkerHealthPort),
		Handler:           w.HealthHandler(store, stats),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("worker has started", "interval", cfg.ReconcileInterval, "auto_fix", cfg.ReconcileAutoFix)
		return w.Run(gctx)
	})

	g.Go(func() error {
		log.Info("health server listening", "port", cfg.WorkerHealthPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := config.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("worker stopped with error", "err", err)
		os.Exit(1)
	}

	log.Info("worker shutdown complete")
}
