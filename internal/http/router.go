package http

import (
	"log/slog"

	"github.com/geocoder89/accountcore/internal/auth"
	"github.com/geocoder89/accountcore/internal/config"
	"github.com/geocoder89/accountcore/internal/domain/user"
	"github.com/geocoder89/accountcore/internal/http/handlers"
	"github.com/geocoder89/accountcore/internal/http/middlewares"
	"github.com/geocoder89/accountcore/internal/ledger"
	"github.com/geocoder89/accountcore/internal/notifications"
	"github.com/geocoder89/accountcore/internal/observability"
	"github.com/geocoder89/accountcore/internal/ratelimit"
	"github.com/geocoder89/accountcore/internal/repo/memory"
	"github.com/geocoder89/accountcore/internal/repo/postgres"
	"github.com/geocoder89/accountcore/internal/sessions"
	"github.com/geocoder89/accountcore/internal/twofactor"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const serviceName = "accountcore-api"

type UserBackend interface {
	handlers.UserStore
	twofactor.SecretStore
}

// Backends are the storage dependencies the router builds its services on.
type Backends struct {
	Users         UserBackend
	Sessions      sessions.Repo
	Ledger        ledger.Store
	RecoveryCodes twofactor.CodeStore
	Pinger        handlers.Pinger

	// AuthLimiter guards credential endpoints. Nil falls back to a
	// per-process fixed window.
	AuthLimiter ratelimit.Limiter
}

func MemoryBackends(s *memory.Store) Backends {
	return Backends{
		Users:         s.Users(),
		Sessions:      s.Sessions(),
		Ledger:        s.Ledger(),
		RecoveryCodes: s.RecoveryCodes(),
	}
}

func PostgresBackends(s *postgres.Store) Backends {
	return Backends{
		Users:         s.Users(),
		Sessions:      s.Sessions(),
		Ledger:        s.Ledger(),
		RecoveryCodes: s.RecoveryCodes(),
		Pinger:        s,
	}
}

// Metrics is optional. A nil Prom skips request metrics and a nil Gatherer
// leaves /metrics unrouted.
type Metrics struct {
	Prom     *observability.Prom
	Gatherer prometheus.Gatherer
}

func NewRouter(log *slog.Logger, cfg config.Config, b Backends, m Metrics) *gin.Engine {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	// middleware

	r.Use(gin.Recovery())
	r.Use(middlewares.RequestID())
	r.Use(otelgin.Middleware(serviceName))
	if m.Prom != nil {
		r.Use(m.Prom.GinHandleMiddleware())
	}
	r.Use(middlewares.RequestLogger(log))
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddleware(cfg.CORSOrigins))
	r.Use(middlewares.MaxBodyBytes(cfg.MaxBodyBytes))
	if cfg.GlobalRPS > 0 {
		global := ratelimit.NewTokenBucket(cfg.GlobalRPS, cfg.GlobalBurst, 0)
		r.Use(middlewares.RateLimit(global, "global", middlewares.KeyByIP, log))
	}

	// services

	sessionSvc := sessions.NewService(b.Sessions, sessions.Config{
		TTL:         cfg.SessionTTL,
		RememberTTL: cfg.SessionRememberTTL,
		ExtendAfter: cfg.SessionExtendAfter,
		CacheTTL:    cfg.SessionCacheTTL,
	}, log, m.Prom)
	verifier := twofactor.NewVerifier(b.RecoveryCodes, b.Users, cfg.TOTPIssuer, log, m.Prom)
	ledgerSvc := ledger.NewService(b.Ledger, ledger.Policy{AllowNegative: cfg.AllowNegative}, cfg.Currency, log, m.Prom)
	reconciler := ledger.NewReconciler(b.Ledger, log, m.Prom, nil)
	notifier := notifications.NewDispatcher(
		notifications.NewProtectedNotifier(notifications.NewLogNotifier(log), notifications.ProtectedNotifierConfig{}),
		log,
	)

	deps := handlers.Deps{
		Users:               b.Users,
		Sessions:            sessionSvc,
		TwoFactor:           verifier,
		Tokens:              auth.NewManager(cfg.JWTSecret, cfg.ChallengeTTL),
		Ledger:              ledgerSvc,
		Reconciler:          reconciler,
		Notifier:            notifier,
		Currency:            cfg.Currency,
		InitialBalance:      cfg.InitialBalance,
		AdminDeletionSecret: cfg.AdminDeletionSecret,
		Log:                 log,
	}

	authLimiter := b.AuthLimiter
	if authLimiter == nil {
		authLimiter = ratelimit.NewMemory(cfg.RateLimit, cfg.RateLimitWindow)
	}
	limit := func(scope string) gin.HandlerFunc {
		return middlewares.RateLimit(authLimiter, scope, middlewares.KeyByIP, log)
	}

	requireSession := middlewares.NewAuthMiddleware(sessionSvc, b.Users, log).RequireSession()
	requireAdmin := middlewares.RequireRole(user.RoleAdmin)

	// health
	h := handlers.NewHealthHandler(b.Pinger)
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)
	if m.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(m.Gatherer, promhttp.HandlerOpts{})))
	}

	authHandler := handlers.NewAuthHandler(deps)
	accountHandler := handlers.NewAccountHandler(deps)
	twoFactorHandler := handlers.NewTwoFactorHandler(deps)
	currencyHandler := handlers.NewCurrencyHandler(deps)
	adminHandler := handlers.NewAdminHandler(deps)

	authGroup := r.Group("/auth", middlewares.RequireJSON())
	{
		authGroup.POST("/signup", limit("signup"), authHandler.SignUp)
		authGroup.POST("/login", limit("login"), authHandler.Login)
		authGroup.POST("/login/2fa", limit("login_2fa"), authHandler.LoginTwoFactor)
		authGroup.POST("/password/reset", limit("password_reset"), authHandler.RequestPasswordReset)
		authGroup.POST("/password/reset/confirm", limit("password_reset"), authHandler.ConfirmPasswordReset)

		authGroup.POST("/logout", requireSession, authHandler.Logout)
		authGroup.POST("/logout-all", requireSession, authHandler.LogoutAll)
	}

	api := r.Group("/api", requireSession, middlewares.RequireJSON())
	{
		api.GET("/me", accountHandler.Me)
		api.POST("/account/password", limit("password_change"), accountHandler.ChangePassword)
		api.DELETE("/account", accountHandler.DeleteAccount)

		api.POST("/2fa/setup", twoFactorHandler.Setup)
		api.POST("/2fa/enable", limit("two_factor"), twoFactorHandler.Enable)
		api.POST("/2fa/disable", limit("two_factor"), twoFactorHandler.Disable)
		api.GET("/2fa/recovery-codes", twoFactorHandler.RecoveryCodesSummary)
		api.POST("/2fa/recovery-codes", limit("two_factor"), twoFactorHandler.RegenerateRecoveryCodes)

		api.GET("/currency/balance", currencyHandler.Balance)
		api.GET("/currency/ledger", currencyHandler.Ledger)
		api.POST("/currency/adjust", requireAdmin, currencyHandler.Adjust)
		api.POST("/currency/set", requireAdmin, currencyHandler.Set)

		admin := api.Group("/admin", requireAdmin)
		admin.GET("/users", adminHandler.ListUsers)
		admin.GET("/reconcile", adminHandler.ReconcileAll)
		admin.POST("/reconcile", adminHandler.ReconcileAll)
		admin.GET("/users/:id/reconcile", adminHandler.ReconcileUser)
		admin.POST("/users/:id/reconcile", adminHandler.ReconcileUser)
		admin.PUT("/users/:id/role", adminHandler.UpdateRole)

		if adminHandler.DeletionEnabled() {
			admin.DELETE("/users/:id", adminHandler.DeleteUser)
		} else {
			log.Warn("admin account deletion disabled; set ADMIN_DELETION_SECRET to enable it")
		}
	}

	return r
}
