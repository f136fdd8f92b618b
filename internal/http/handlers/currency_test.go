package handlers_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/geocoder89/accountcore/internal/currency"
	"github.com/geocoder89/accountcore/internal/domain/ledger"
	"github.com/geocoder89/accountcore/internal/domain/user"
	"github.com/geocoder89/accountcore/internal/http/handlers"
	"github.com/geocoder89/accountcore/internal/repo/memory"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type fakeLedger struct {
	adjustFn  func(ctx context.Context, userID string, delta int64, memo ledger.Memo) (ledger.Entry, error)
	setFn     func(ctx context.Context, userID string, target int64, memo ledger.Memo) (ledger.Entry, error)
	balanceFn func(ctx context.Context, userID string) (ledger.Balance, error)
	listFn    func(ctx context.Context, userID string, f ledger.ListFilter) ([]ledger.Entry, error)
}

func (f *fakeLedger) Currency() currency.Config { return currency.DefaultConfig() }

func (f *fakeLedger) Adjust(ctx context.Context, userID string, delta int64, memo ledger.Memo) (ledger.Entry, error) {
	if f.adjustFn != nil {
		return f.adjustFn(ctx, userID, delta, memo)
	}
	return ledger.Entry{UserID: userID, Delta: delta}, nil
}

func (f *fakeLedger) Set(ctx context.Context, userID string, target int64, memo ledger.Memo) (ledger.Entry, error) {
	if f.setFn != nil {
		return f.setFn(ctx, userID, target, memo)
	}
	return ledger.Entry{UserID: userID, BalanceAfter: target}, nil
}

func (f *fakeLedger) Balance(ctx context.Context, userID string) (ledger.Balance, error) {
	if f.balanceFn != nil {
		return f.balanceFn(ctx, userID)
	}
	return ledger.Balance{UserID: userID}, nil
}

func (f *fakeLedger) List(ctx context.Context, userID string, filter ledger.ListFilter) ([]ledger.Entry, error) {
	if f.listFn != nil {
		return f.listFn(ctx, userID, filter)
	}
	return nil, nil
}

func setupCurrencyRouter(t *testing.T, caller user.User, l *fakeLedger, users handlers.UserStore) *gin.Engine {
	t.Helper()

	if users == nil {
		users = memory.NewStore().Users()
	}
	h := handlers.NewCurrencyHandler(handlers.Deps{Users: users, Ledger: l})

	r := gin.New()
	r.Use(asUser(caller))
	r.GET("/api/currency/balance", h.Balance)
	r.GET("/api/currency/ledger", h.Ledger)
	r.POST("/api/currency/adjust", h.Adjust)
	r.POST("/api/currency/set", h.Set)
	return r
}

func TestBalance_SelfWithETag(t *testing.T) {
	caller := testUser(t, user.RoleUser, "pw")
	l := &fakeLedger{
		balanceFn: func(ctx context.Context, userID string) (ledger.Balance, error) {
			if userID != caller.ID {
				t.Fatalf("expected balance for caller, got %s", userID)
			}
			return ledger.Balance{UserID: userID, Balance: 1250, UpdatedAt: time.Unix(1700000000, 0).UTC()}, nil
		},
	}
	r := setupCurrencyRouter(t, caller, l, nil)

	w := doJSON(r, http.MethodGet, "/api/currency/balance", "")
	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
	}

	resp := decode[handlers.BalanceResponse](t, w)
	if resp.Balance.Minor != 1250 || resp.Balance.Major != "12.50" || resp.Balance.Formatted != "12.50 coins" {
		t.Fatalf("unexpected amount %+v", resp.Balance)
	}

	etag := w.Header().Get("ETag")
	if etag == "" {
		t.Fatalf("expected an ETag header")
	}

	w = doJSON(r, http.MethodGet, "/api/currency/balance", "", "If-None-Match", etag)
	if w.Code != http.StatusNotModified {
		t.Fatalf("got status %d, want %d", w.Code, http.StatusNotModified)
	}
}

func TestBalance_OtherUserNeedsAdmin(t *testing.T) {
	other := uuid.NewString()

	w := doJSON(setupCurrencyRouter(t, testUser(t, user.RoleUser, "pw"), &fakeLedger{}, nil),
		http.MethodGet, "/api/currency/balance?user_id="+other, "")
	if w.Code != http.StatusForbidden {
		t.Fatalf("got status %d, want %d", w.Code, http.StatusForbidden)
	}

	w = doJSON(setupCurrencyRouter(t, testUser(t, user.RoleAdmin, "pw"), &fakeLedger{}, nil),
		http.MethodGet, "/api/currency/balance?user_id="+other, "")
	if w.Code != http.StatusOK {
		t.Fatalf("admin: got status %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
	}
}

func TestLedger_PassesBoundsAndMapsLimitError(t *testing.T) {
	caller := testUser(t, user.RoleUser, "pw")

	var got ledger.ListFilter
	l := &fakeLedger{
		listFn: func(ctx context.Context, userID string, f ledger.ListFilter) ([]ledger.Entry, error) {
			got = f
			if f.Limit > ledger.MaxListLimit {
				return nil, ledger.ErrInvalidLimit
			}
			return []ledger.Entry{{ID: 2, UserID: userID, Delta: -50, BalanceAfter: 950}}, nil
		},
	}
	r := setupCurrencyRouter(t, caller, l, nil)

	w := doJSON(r, http.MethodGet, "/api/currency/ledger?limit=10&before=1700000100&after=1700000000", "")
	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
	}
	if got.Limit != 10 || got.Before == nil || got.After == nil {
		t.Fatalf("filter not passed through: %+v", got)
	}
	if got.Before.Unix() != 1700000100 || got.After.Unix() != 1700000000 {
		t.Fatalf("unexpected bounds %v %v", got.Before, got.After)
	}

	resp := decode[struct {
		Entries []handlers.EntryView `json:"entries"`
	}](t, w)
	if len(resp.Entries) != 1 || resp.Entries[0].Delta.Formatted != "-0.50 coins" {
		t.Fatalf("unexpected entries %+v", resp.Entries)
	}

	w = doJSON(r, http.MethodGet, "/api/currency/ledger?limit=501", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestLedger_ZeroLimitIsRejectedAndAbsentUsesDefault(t *testing.T) {
	caller := testUser(t, user.RoleUser, "pw")

	calls := 0
	var got ledger.ListFilter
	l := &fakeLedger{
		listFn: func(ctx context.Context, userID string, f ledger.ListFilter) ([]ledger.Entry, error) {
			calls++
			got = f
			return nil, nil
		},
	}
	r := setupCurrencyRouter(t, caller, l, nil)

	w := doJSON(r, http.MethodGet, "/api/currency/ledger?limit=0", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("limit=0: got status %d, want %d", w.Code, http.StatusBadRequest)
	}
	if calls != 0 {
		t.Fatalf("limit=0 must not reach the ledger")
	}

	w = doJSON(r, http.MethodGet, "/api/currency/ledger", "")
	if w.Code != http.StatusOK {
		t.Fatalf("no limit: got status %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
	}
	if got.Limit != ledger.DefaultListLimit {
		t.Fatalf("expected default limit %d, got %d", ledger.DefaultListLimit, got.Limit)
	}
}

func TestAdjust_ConvertsMajorUnitsAndRecordsActor(t *testing.T) {
	admin := testUser(t, user.RoleAdmin, "pw")
	target := uuid.NewString()

	l := &fakeLedger{
		adjustFn: func(ctx context.Context, userID string, delta int64, memo ledger.Memo) (ledger.Entry, error) {
			if userID != target {
				t.Fatalf("wrong target %s", userID)
			}
			if delta != 1250 {
				t.Fatalf("expected 1250 minor units, got %d", delta)
			}
			if memo.ActorUserID == nil || *memo.ActorUserID != admin.ID {
				t.Fatalf("actor not recorded: %+v", memo)
			}
			if memo.Reason != "bonus" || memo.Metadata["campaign"] != "spring" {
				t.Fatalf("memo not passed through: %+v", memo)
			}
			return ledger.Entry{ID: 7, UserID: userID, Delta: delta, BalanceAfter: 2250}, nil
		},
	}
	r := setupCurrencyRouter(t, admin, l, nil)

	w := doJSON(r, http.MethodPost, "/api/currency/adjust",
		`{"userId":"`+target+`","amount":"12.50","reason":"bonus","metadata":{"campaign":"spring"}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
	}

	resp := decode[handlers.MutationResponse](t, w)
	if resp.Balance.Minor != 2250 || resp.Entry.Delta.Major != "12.50" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestAdjust_DefaultReason(t *testing.T) {
	var reason string
	l := &fakeLedger{
		adjustFn: func(ctx context.Context, userID string, delta int64, memo ledger.Memo) (ledger.Entry, error) {
			reason = memo.Reason
			return ledger.Entry{}, nil
		},
	}
	r := setupCurrencyRouter(t, testUser(t, user.RoleAdmin, "pw"), l, nil)

	w := doJSON(r, http.MethodPost, "/api/currency/adjust", `{"userId":"`+uuid.NewString()+`","amount":1}`)
	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
	}
	if reason != "admin_adjust" {
		t.Fatalf("expected default reason, got %q", reason)
	}
}

func TestMutation_MalformedTargetIs422(t *testing.T) {
	r := setupCurrencyRouter(t, testUser(t, user.RoleAdmin, "pw"), &fakeLedger{}, nil)

	bodies := []string{
		`{"amount":"1"}`,
		`{"userId":"` + uuid.NewString() + `","email":"a@example.com","amount":"1"}`,
		`{"userId":"not-a-uuid","amount":"1"}`,
		`{"email":"no-at-sign","amount":"1"}`,
	}

	for _, body := range bodies {
		w := doJSON(r, http.MethodPost, "/api/currency/set", body)
		if w.Code != http.StatusUnprocessableEntity {
			t.Fatalf("body %s: got status %d, want %d", body, w.Code, http.StatusUnprocessableEntity)
		}
		if code := errorCode(t, w); code != "invalid_target" {
			t.Fatalf("body %s: unexpected code %q", body, code)
		}
	}
}

func TestMutation_ErrorMapping(t *testing.T) {
	admin := testUser(t, user.RoleAdmin, "pw")

	tests := []struct {
		name string
		err  error
		want int
		code string
	}{
		{"negative", ledger.ErrNegativeBalance, http.StatusBadRequest, "negative_balance"},
		{"overflow", ledger.ErrOverflow, http.StatusBadRequest, "amount_out_of_range"},
		{"unknown user", ledger.ErrUserNotFound, http.StatusNotFound, "not_found"},
		{"storage", context.DeadlineExceeded, http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := &fakeLedger{
				setFn: func(context.Context, string, int64, ledger.Memo) (ledger.Entry, error) {
					return ledger.Entry{}, tt.err
				},
			}
			r := setupCurrencyRouter(t, admin, l, nil)

			w := doJSON(r, http.MethodPost, "/api/currency/set", `{"userId":"`+uuid.NewString()+`","amount":"-5"}`)
			if w.Code != tt.want {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tt.want, w.Body.String())
			}
			if code := errorCode(t, w); code != tt.code {
				t.Fatalf("unexpected code %q", code)
			}
		})
	}
}

func TestMutation_ByEmail(t *testing.T) {
	store := memory.NewStore()
	target, err := store.Users().Create(context.Background(), user.NewUser{
		Email: "target@example.com", Username: "target", Role: user.RoleUser,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	var gotID string
	l := &fakeLedger{
		adjustFn: func(ctx context.Context, userID string, delta int64, memo ledger.Memo) (ledger.Entry, error) {
			gotID = userID
			return ledger.Entry{UserID: userID}, nil
		},
	}
	r := setupCurrencyRouter(t, testUser(t, user.RoleAdmin, "pw"), l, store.Users())

	w := doJSON(r, http.MethodPost, "/api/currency/adjust", `{"email":"TARGET@example.com","amount":"-1"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
	}
	if gotID != target.ID {
		t.Fatalf("expected %s, got %s", target.ID, gotID)
	}

	w = doJSON(r, http.MethodPost, "/api/currency/adjust", `{"email":"ghost@example.com","amount":"-1"}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown email: got status %d, want %d", w.Code, http.StatusNotFound)
	}
}
