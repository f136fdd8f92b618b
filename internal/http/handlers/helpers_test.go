package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/geocoder89/accountcore/internal/domain/session"
	tfa "github.com/geocoder89/accountcore/internal/domain/twofactor"
	"github.com/geocoder89/accountcore/internal/domain/user"
	"github.com/geocoder89/accountcore/internal/http/middlewares"
	"github.com/geocoder89/accountcore/internal/notifications"
	"github.com/geocoder89/accountcore/internal/security"
	"github.com/geocoder89/accountcore/internal/twofactor"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Make sure Gin does not spam the console during the test
func init() {
	gin.SetMode(gin.TestMode)
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// asUser stands in for the session middleware.
func asUser(u user.User) gin.HandlerFunc {
	return func(c *gin.Context) {
		middlewares.SetIdentity(c, session.Session{
			ID:         "token-" + u.ID,
			UserID:     u.ID,
			Role:       u.Role,
			ValidUntil: time.Now().Add(time.Hour),
		}, u)
		c.Next()
	}
}

func doJSON(r http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("failed to unmarshal json: %v, body=%s", err, w.Body.String())
	}
	return out
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[errorEnvelope](t, w).Error.Code
}

func testUser(t *testing.T, role user.Role, password string) user.User {
	t.Helper()
	hash, salt, err := security.NewPasswordHash(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return user.User{
		ID:           uuid.NewString(),
		Email:        string(role) + "@example.com",
		Username:     string(role),
		PasswordHash: hash,
		PasswordSalt: salt,
		AuthProvider: user.ProviderPassword,
		Role:         role,
		CreatedAt:    time.Now().UTC(),
	}
}

// Fake implementations of the handler dependencies

type fakeTwoFactor struct {
	verifyFn   func(ctx context.Context, u user.User, code string) (tfa.Result, error)
	enableFn   func(ctx context.Context, u user.User, secret, code string) ([]string, error)
	generateFn func(ctx context.Context, userID string, n int) ([]string, error)
	disabled   []string
}

func (f *fakeTwoFactor) Verify(ctx context.Context, u user.User, code string) (tfa.Result, error) {
	if f.verifyFn != nil {
		return f.verifyFn(ctx, u, code)
	}
	if !u.TwoFactorEnabled() {
		return tfa.NotRequired, nil
	}
	return tfa.InvalidCode, nil
}

func (f *fakeTwoFactor) NewEnrollment(u user.User) (twofactor.Enrollment, error) {
	if u.TwoFactorEnabled() {
		return twofactor.Enrollment{}, tfa.ErrAlreadyEnabled
	}
	return twofactor.Enrollment{Secret: "JBSWY3DPEHPK3PXP", OTPAuthURL: "otpauth://totp/test"}, nil
}

func (f *fakeTwoFactor) Enable(ctx context.Context, u user.User, secret, code string) ([]string, error) {
	if f.enableFn != nil {
		return f.enableFn(ctx, u, secret, code)
	}
	return []string{"aaaaa-bbbbb"}, nil
}

func (f *fakeTwoFactor) Disable(ctx context.Context, u user.User) error {
	f.disabled = append(f.disabled, u.ID)
	return nil
}

func (f *fakeTwoFactor) GenerateRecoveryCodes(ctx context.Context, userID string, n int) ([]string, error) {
	if f.generateFn != nil {
		return f.generateFn(ctx, userID, n)
	}
	return make([]string, n), nil
}

func (f *fakeTwoFactor) RecoveryCodesSummary(ctx context.Context, userID string) (tfa.Summary, error) {
	return tfa.Summary{Total: 10, Remaining: 9}, nil
}

type fakeSessions struct {
	mu          sync.Mutex
	created     []string
	invalidated []string
	revokedAll  []string
}

func (f *fakeSessions) Create(ctx context.Context, u user.User, remember bool) (session.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, u.ID)

	ttl := 24 * time.Hour
	if remember {
		ttl = 7 * 24 * time.Hour
	}
	return session.Session{ID: uuid.NewString(), UserID: u.ID, Role: u.Role, ValidUntil: time.Now().Add(ttl)}, nil
}

func (f *fakeSessions) Invalidate(ctx context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, token)
	return nil
}

func (f *fakeSessions) InvalidateAll(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revokedAll = append(f.revokedAll, userID)
	return nil
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []notifications.Notice
}

func (n *recordingNotifier) Notify(ctx context.Context, notice notifications.Notice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
}

func (n *recordingNotifier) kinds() []notifications.Kind {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]notifications.Kind, 0, len(n.notices))
	for _, x := range n.notices {
		out = append(out, x.Kind)
	}
	return out
}
