package middlewares_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/geocoder89/accountcore/internal/domain/session"
	"github.com/geocoder89/accountcore/internal/domain/user"
	"github.com/geocoder89/accountcore/internal/http/middlewares"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type errorBody struct {
	Error struct {
		Code      string `json:"code"`
		RequestID string `json:"requestId"`
	} `json:"error"`
}

func readError(t *testing.T, w *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var e errorBody
	if err := json.Unmarshal(w.Body.Bytes(), &e); err != nil {
		t.Fatalf("failed to unmarshal json: %v, body=%s", err, w.Body.String())
	}
	return e
}

func ok(c *gin.Context) { c.Status(http.StatusOK) }

// Fakes

type fakeResolver struct {
	sessions map[string]session.Session
	err      error
	touchErr error
	touched  int
}

func (f *fakeResolver) Lookup(ctx context.Context, token string) (session.Session, error) {
	if f.err != nil {
		return session.Session{}, f.err
	}
	s, found := f.sessions[token]
	if !found {
		return session.Session{}, session.ErrNotFound
	}
	return s, nil
}

func (f *fakeResolver) Touch(ctx context.Context, s session.Session, role user.Role) (session.Session, error) {
	f.touched++
	if f.touchErr != nil {
		return session.Session{}, f.touchErr
	}
	return s, nil
}

type fakeUsers map[string]user.User

func (f fakeUsers) GetByID(ctx context.Context, id string) (user.User, error) {
	u, found := f[id]
	if !found {
		return user.User{}, user.ErrNotFound
	}
	return u, nil
}

type stubLimiter struct {
	allow bool
	retry time.Duration
	err   error
	keys  []string
}

func (s *stubLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	s.keys = append(s.keys, key)
	return s.allow, s.retry, s.err
}

func TestRequireSession(t *testing.T) {
	resolver := &fakeResolver{sessions: map[string]session.Session{
		"live":   {ID: "live", UserID: "u1", Role: user.RoleUser, ValidUntil: time.Now().Add(time.Hour)},
		"orphan": {ID: "orphan", UserID: "gone", Role: user.RoleUser, ValidUntil: time.Now().Add(time.Hour)},
	}}
	users := fakeUsers{"u1": {ID: "u1", Email: "u1@example.com", Role: user.RoleUser}}

	r := gin.New()
	r.Use(middlewares.RequestID())
	r.GET("/me", middlewares.NewAuthMiddleware(resolver, users, nil).RequireSession(), func(c *gin.Context) {
		u, found := middlewares.UserFromContext(c)
		if !found {
			t.Errorf("user missing from context")
		}
		c.String(http.StatusOK, u.ID)
	})

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"unknown token", "Bearer nope", http.StatusUnauthorized},
		{"orphaned session", "Bearer orphan", http.StatusUnauthorized},
		{"live session", "bearer live", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tt.want, w.Body.String())
			}
			if w.Code == http.StatusUnauthorized {
				if e := readError(t, w); e.Error.Code != "unauthorized" || e.Error.RequestID == "" {
					t.Fatalf("unexpected error body %+v", e)
				}
			}
		})
	}

	if resolver.touched != 1 {
		t.Fatalf("expected one touch for the live session, got %d", resolver.touched)
	}
}

func TestRequireSession_StoreFailureIs500(t *testing.T) {
	resolver := &fakeResolver{err: errors.New("db down")}

	r := gin.New()
	r.GET("/me", middlewares.NewAuthMiddleware(resolver, fakeUsers{}, nil).RequireSession(), ok)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer any")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("got status %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

func TestRequireSession_EndedDuringTouchIs401(t *testing.T) {
	resolver := &fakeResolver{
		sessions: map[string]session.Session{"live": {ID: "live", UserID: "u1", Role: user.RoleUser}},
		touchErr: session.ErrNotFound,
	}
	users := fakeUsers{"u1": {ID: "u1", Role: user.RoleUser}}

	r := gin.New()
	r.GET("/me", middlewares.NewAuthMiddleware(resolver, users, nil).RequireSession(), ok)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer live")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("got status %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestRequireRole(t *testing.T) {
	withRole := func(role user.Role) gin.HandlerFunc {
		return func(c *gin.Context) {
			if role != "" {
				middlewares.SetIdentity(c, session.Session{ID: "s", UserID: "u", Role: role}, user.User{ID: "u", Role: role})
			}
			c.Next()
		}
	}

	tests := []struct {
		role user.Role
		want int
	}{
		{"", http.StatusUnauthorized},
		{user.RoleUser, http.StatusForbidden},
		{user.RoleAdmin, http.StatusOK},
		{user.RoleRoot, http.StatusOK},
	}

	for _, tt := range tests {
		r := gin.New()
		r.GET("/admin", withRole(tt.role), middlewares.RequireRole(user.RoleAdmin), ok)

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin", nil))

		if w.Code != tt.want {
			t.Fatalf("role %q: got status %d, want %d", tt.role, w.Code, tt.want)
		}
	}
}

func TestRateLimit(t *testing.T) {
	limiter := &stubLimiter{allow: false, retry: 1500 * time.Millisecond}

	r := gin.New()
	r.POST("/login", middlewares.RateLimit(limiter, "login", middlewares.KeyByIP, nil), ok)

	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.RemoteAddr = "203.0.113.7:5555"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("got status %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if got := w.Header().Get("Retry-After"); got != "2" {
		t.Fatalf("Retry-After = %q, want rounded up to 2", got)
	}
	if len(limiter.keys) != 1 || limiter.keys[0] != "login:203.0.113.7" {
		t.Fatalf("unexpected limiter keys %v", limiter.keys)
	}

	// a broken backend lets traffic through
	limiter.err = errors.New("redis down")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("fail-open: got status %d, want %d", w.Code, http.StatusOK)
	}
}

func TestRequireJSON(t *testing.T) {
	r := gin.New()
	r.Use(middlewares.RequireJSON())
	r.POST("/x", ok)

	tests := []struct {
		name        string
		body        string
		contentType string
		want        int
	}{
		{"json", `{}`, "application/json; charset=utf-8", http.StatusOK},
		{"text", `{}`, "text/plain", http.StatusUnsupportedMediaType},
		{"missing", `{}`, "", http.StatusUnsupportedMediaType},
		{"no body", "", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req *http.Request
			if tt.body == "" {
				req = httptest.NewRequest(http.MethodPost, "/x", nil)
			} else {
				req = httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(tt.body))
			}
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Fatalf("got status %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestMaxBodyBytes(t *testing.T) {
	r := gin.New()
	r.Use(middlewares.MaxBodyBytes(8))
	r.POST("/x", func(c *gin.Context) {
		var body map[string]any
		if err := c.ShouldBindJSON(&body); err != nil {
			c.Status(http.StatusBadRequest)
			return
		}
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/x", bytes.NewBufferString(`{"a":"0123456789"}`)))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("declared oversize: got status %d, want %d", w.Code, http.StatusRequestEntityTooLarge)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/x", bytes.NewBufferString(`{}`)))
	if w.Code != http.StatusOK {
		t.Fatalf("small body: got status %d, want %d", w.Code, http.StatusOK)
	}
}

func TestCORSMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(middlewares.CORSMiddleware([]string{"https://app.example.com/"}))
	r.GET("/x", ok)

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("preflight: got status %d, want %d", w.Code, http.StatusNoContent)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "https://app.example.com" {
		t.Fatalf("allowed origin not echoed: %v", w.Header())
	}
	if w.Header().Get("Access-Control-Allow-Credentials") != "" {
		t.Fatalf("credentials mode must stay off")
	}

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("unknown origin must not be allowed")
	}
}
