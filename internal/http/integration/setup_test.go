package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/geocoder89/accountcore/internal/config"
	"github.com/geocoder89/accountcore/internal/currency"
	"github.com/geocoder89/accountcore/internal/db"
	apphttp "github.com/geocoder89/accountcore/internal/http"
	"github.com/geocoder89/accountcore/internal/observability"
	"github.com/geocoder89/accountcore/internal/repo/memory"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	rootEmail    = "root@example.com"
	rootPassword = "root-password-1"
)

type apiErrorResponse struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"requestId"`
	} `json:"error"`
}

type sessionResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      struct {
		ID      string          `json:"id"`
		Email   string          `json:"email"`
		Role    string          `json:"role"`
		Balance currency.Amount `json:"balance"`
	} `json:"user"`
}

func testConfig() config.Config {
	return config.Config{
		Env:                "test",
		StoreDriver:        config.StoreDriverMemory,
		JWTSecret:          "test-secret-key",
		ChallengeTTL:       5 * time.Minute,
		TOTPIssuer:         "accountcore-test",
		SessionTTL:         24 * time.Hour,
		SessionRememberTTL: 7 * 24 * time.Hour,
		SessionExtendAfter: time.Hour,
		SessionCacheTTL:    30 * time.Second,
		Currency:           currency.DefaultConfig(),
		InitialBalance:     1000,
		RateLimit:          100,
		RateLimitWindow:    time.Minute,
		MaxBodyBytes:       1 << 20,
	}
}

// setupRouter wires the full stack over the in-memory store and seeds root.
func setupRouter(t *testing.T, mutate ...func(*config.Config)) (*gin.Engine, *prometheus.Registry) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := testConfig()
	for _, m := range mutate {
		m(&cfg)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
	backends := apphttp.MemoryBackends(memory.NewStore())

	err := db.EnsureRootUser(context.Background(), backends.Users, db.RootSeed{
		Email:          rootEmail,
		Username:       "root",
		Password:       rootPassword,
		InitialBalance: cfg.InitialBalance,
	}, logger)
	if err != nil {
		t.Fatalf("seed root: %v", err)
	}

	reg := prometheus.NewRegistry()
	router := apphttp.NewRouter(logger, cfg, backends, apphttp.Metrics{
		Prom:     observability.NewProm(reg),
		Gatherer: reg,
	})

	return router, reg
}

func doRequest(router http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func mustReadJSON[T any](t *testing.T, w *httptest.ResponseRecorder, out *T) {
	t.Helper()
	err := json.Unmarshal(w.Body.Bytes(), out)
	if err != nil {
		t.Fatalf("failed to unmarshal json: %v, body=%s", err, w.Body.String())
	}
}

func mustStatus(t *testing.T, w *httptest.ResponseRecorder, want int, step string) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("%s got status %d, want %d, body=%s", step, w.Code, want, w.Body.String())
	}
}

func signUp(t *testing.T, router http.Handler, email string) sessionResponse {
	t.Helper()
	body := `{"email":"` + email + `","username":"user-` + email[:3] + `","password":"password123"}`
	w := doRequest(router, http.MethodPost, "/auth/signup", body, "")
	mustStatus(t, w, http.StatusCreated, "signup")

	var s sessionResponse
	mustReadJSON(t, w, &s)
	return s
}

func login(t *testing.T, router http.Handler, email, password string) sessionResponse {
	t.Helper()
	w := doRequest(router, http.MethodPost, "/auth/login", `{"email":"`+email+`","password":"`+password+`"}`, "")
	mustStatus(t, w, http.StatusOK, "login")

	var s sessionResponse
	mustReadJSON(t, w, &s)
	if s.Token == "" {
		t.Fatalf("login returned no token, body=%s", w.Body.String())
	}
	return s
}

func httptestRequest(method, path, body string) *http.Request {
	return httptest.NewRequest(method, path, bytes.NewBufferString(body))
}

func serve(router http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}
