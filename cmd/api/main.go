package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/geocoder89/accountcore/internal/config"
	"github.com/geocoder89/accountcore/internal/db"
	httpx "github.com/geocoder89/accountcore/internal/http"
	"github.com/geocoder89/accountcore/internal/observability"
	"github.com/geocoder89/accountcore/internal/ratelimit"
	"github.com/geocoder89/accountcore/internal/redisclient"
	"github.com/geocoder89/accountcore/internal/repo/memory"
	"github.com/geocoder89/accountcore/internal/repo/postgres"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}

	// Load the config set up
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	// start up the observability logger
	log := observability.NewLogger(cfg.Env)
	slog.SetDefault(log)

	ctx := context.Background()

	shutdownTracer, err := observability.InitTracer(ctx, observability.TracerConfig{
		ServiceName: "accountcore-api",
		Endpoint:    cfg.OTELEndpoint,
		Env:         cfg.Env,
		SampleRatio: cfg.OTELSampleRatio,
	})
	if err != nil {
		log.Error("tracer init failed", "err", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom := observability.NewProm(reg)

	var backends httpx.Backends

	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		log.Warn("using in-memory store; data is lost on restart")
		backends = httpx.MemoryBackends(memory.NewStore())

	default:
		pool, err := db.NewPool(ctx, cfg.DBURL, cfg.DBMaxConns)
		if err != nil {
			log.Error("db connect failed", "err", err)
			os.Exit(1)
		}
		defer pool.Close()

		if err := db.Migrate(ctx, pool); err != nil {
			log.Error("migrations failed", "err", err)
			os.Exit(1)
		}

		backends = httpx.PostgresBackends(postgres.NewStore(pool, prom))
	}

	seedCtx, cancelSeed := config.WithTimeout(ctx, 10*time.Second)
	err = db.EnsureRootUser(seedCtx, backends.Users, db.RootSeed{
		Email:          cfg.RootEmail,
		Username:       cfg.RootUsername,
		Password:       cfg.RootPassword,
		InitialBalance: cfg.InitialBalance,
	}, log)
	cancelSeed()
	if err != nil {
		log.Error("root user seed failed", "err", err)
		os.Exit(1)
	}

	if cfg.RedisAddr != "" {
		rdb := redisclient.New(redisclient.Config{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			Namespace: "accountcore",
		})
		defer rdb.Close()

		pingCtx, cancelPing := config.WithTimeout(ctx, 2*time.Second)
		if err := rdb.Ping(pingCtx); err != nil {
			// the limiter fails open, so a cold redis only weakens throttling
			log.Warn("redis unreachable at startup", "addr", cfg.RedisAddr, "err", err)
		}
		cancelPing()

		backends.AuthLimiter = ratelimit.NewRedis(rdb, "ratelimit", cfg.RateLimit, cfg.RateLimitWindow)
	}

	// set up routers with the log
	router := httpx.NewRouter(log, cfg, backends, httpx.Metrics{Prom: prom, Gatherer: reg})

	// server set up
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("Server starting", "port", cfg.Port, "env", cfg.Env, "store", cfg.StoreDriver)
		err := srv.ListenAndServe()

		if err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info("server shutting down")

	shutdownCh := make(chan struct{})

	go func() {
		defer close(shutdownCh)

		ctx, cancel := config.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Error("graceful shutdown failed", "err", err)
		}

		if err := shutdownTracer(ctx); err != nil {
			log.Error("tracer shutdown failed", "err", err)
		}
	}()

	select {
	case <-shutdownCh:
		log.Info("shutdown complete")

	case <-time.After(12 * time.Second):
		log.Error("shutdown timed out")
	}
}
