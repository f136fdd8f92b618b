package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/geocoder89/accountcore/internal/currency"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type Config struct {
	Env  string
	Port int

	StoreDriver string
	DBURL       string
	DBMaxConns  int32

	// Signs short-lived two-factor challenge and enrollment tokens.
	JWTSecret    string
	ChallengeTTL time.Duration
	TOTPIssuer   string

	SessionTTL         time.Duration
	SessionRememberTTL time.Duration
	SessionExtendAfter time.Duration
	SessionCacheTTL    time.Duration

	Currency       currency.Config
	InitialBalance int64 // minor units
	AllowNegative  bool

	// Empty disables admin-initiated account deletion.
	AdminDeletionSecret string

	RootEmail    string
	RootUsername string
	RootPassword string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	RateLimit       int
	RateLimitWindow time.Duration
	// Per-IP token bucket over every route. Zero RPS disables it.
	GlobalRPS   float64
	GlobalBurst int

	RequestTimeout time.Duration
	MaxBodyBytes   int64
	CORSOrigins    []string

	OTELEndpoint    string
	OTELSampleRatio float64

	ReconcileInterval time.Duration
	ReconcileAutoFix  bool
	WorkerHealthPort  int
}

// LoadDotEnv reads .env from the working directory when one exists.
func LoadDotEnv() error {
	err := godotenv.Load()
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// Load reads the process environment. Every value is parsed up front so a bad
// setting fails at startup rather than on first use.
func Load() (Config, error) {
	p := &parser{}

	cur := currency.Config{
		DecimalPlaces: int32(p.int("CURRENCY_DECIMAL_PLACES", 2)),
		Name:          getEnv("CURRENCY_NAME", "coin"),
		NamePlural:    getEnv("CURRENCY_NAME_PLURAL", ""),
		Symbol:        getEnv("CURRENCY_SYMBOL", ""),
	}
	if cur.NamePlural == "" {
		cur.NamePlural = cur.Name + "s"
	}

	cfg := Config{
		Env:  getEnv("APP_ENV", "dev"),
		Port: p.int("PORT", 8080),

		StoreDriver: getEnv("STORE_DRIVER", StoreDriverPostgres),
		DBURL:       getEnv("DATABASE_URL", buildDBURL()),
		DBMaxConns:  int32(p.int("DB_MAX_CONNS", 5)),

		JWTSecret:    getEnv("JWT_SECRET", ""),
		ChallengeTTL: p.duration("TWO_FACTOR_CHALLENGE_TTL", 5*time.Minute),
		TOTPIssuer:   getEnv("TOTP_ISSUER", "accountcore"),

		SessionTTL:         p.duration("SESSION_TTL", 24*time.Hour),
		SessionRememberTTL: p.duration("SESSION_REMEMBER_TTL", 7*24*time.Hour),
		SessionExtendAfter: p.duration("SESSION_EXTEND_AFTER", time.Hour),
		SessionCacheTTL:    p.duration("SESSION_CACHE_TTL", 30*time.Second),

		Currency:      cur,
		AllowNegative: p.bool("CURRENCY_ALLOW_NEGATIVE", false),

		AdminDeletionSecret: getEnv("ADMIN_DELETION_SECRET", ""),

		RootEmail:    getEnv("ROOT_EMAIL", ""),
		RootUsername: getEnv("ROOT_USERNAME", "root"),
		RootPassword: getEnv("ROOT_PASSWORD", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       p.int("REDIS_DB", 0),

		RateLimit:       p.int("AUTH_RATE_LIMIT", 10),
		RateLimitWindow: p.duration("AUTH_RATE_WINDOW", time.Minute),
		GlobalRPS:       p.float("GLOBAL_RATE_RPS", 10),
		GlobalBurst:     p.int("GLOBAL_RATE_BURST", 40),

		RequestTimeout: p.duration("REQUEST_TIMEOUT", 5*time.Second),
		MaxBodyBytes:   int64(p.int("MAX_BODY_BYTES", 1<<20)),
		CORSOrigins:    splitList(getEnv("CORS_ALLOWED_ORIGINS", "")),

		OTELEndpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTELSampleRatio: p.float("OTEL_SAMPLE_RATIO", 1),

		ReconcileInterval: p.duration("RECONCILE_INTERVAL", time.Hour),
		ReconcileAutoFix:  p.bool("RECONCILE_AUTO_FIX", false),
		WorkerHealthPort:  p.int("WORKER_HEALTH_PORT", 8081),
	}

	major, err := decimal.NewFromString(getEnv("CURRENCY_INITIAL_BALANCE", "0"))
	if err != nil {
		p.fail("CURRENCY_INITIAL_BALANCE", err)
	} else if cfg.InitialBalance, err = cur.MajorToMinor(major); err != nil {
		p.fail("CURRENCY_INITIAL_BALANCE", err)
	}

	if p.err != nil {
		return Config{}, p.err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error

	switch c.StoreDriver {
	case StoreDriverPostgres, StoreDriverMemory:
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be %q or %q", StoreDriverPostgres, StoreDriverMemory))
	}

	if c.JWTSecret == "" {
		if c.IsProd() {
			errs = append(errs, errors.New("JWT_SECRET is required in prod"))
		} else {
			c.JWTSecret = "dev-only-secret"
		}
	}

	if c.Currency.DecimalPlaces < 0 || c.Currency.DecimalPlaces > 8 {
		errs = append(errs, errors.New("CURRENCY_DECIMAL_PLACES must be between 0 and 8"))
	}
	if c.InitialBalance < 0 && !c.AllowNegative {
		errs = append(errs, errors.New("CURRENCY_INITIAL_BALANCE is negative but negative balances are disallowed"))
	}
	if c.SessionTTL <= 0 || c.SessionRememberTTL < c.SessionTTL {
		errs = append(errs, errors.New("SESSION_REMEMBER_TTL must be at least SESSION_TTL and both positive"))
	}
	if c.RateLimit <= 0 || c.RateLimitWindow <= 0 {
		errs = append(errs, errors.New("AUTH_RATE_LIMIT and AUTH_RATE_WINDOW must be positive"))
	}

	return errors.Join(errs...)
}

func (c Config) IsProd() bool { return c.Env == "prod" }

// AdminDeletionEnabled reports whether admin-initiated deletion may be served.
func (c Config) AdminDeletionEnabled() bool { return c.AdminDeletionSecret != "" }

func buildDBURL() string {
	host := getEnv("DB_HOST", "127.0.0.1")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "accountcore")
	pass := getEnv("DB_PASSWORD", "accountcore")
	name := getEnv("DB_NAME", "accountcore")
	ssl := getEnv("DB_SSLMODE", "disable")

	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=" + ssl
}

// WithTimeout bounds a store call. The parent keeps request-scoped values such
// as the trace span and request id.
func WithTimeout(parent context.Context, duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, duration)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parser keeps the first parse failure so Load can report it once.
type parser struct {
	err error
}

func (p *parser) fail(key string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("config %s: %w", key, err)
	}
}

func (p *parser) int(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, err)
		return fallback
	}
	return n
}

func (p *parser) float(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.fail(key, err)
		return fallback
	}
	return f
}

func (p *parser) bool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key, err)
		return fallback
	}
	return b
}

func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, err)
		return fallback
	}
	return d
}
