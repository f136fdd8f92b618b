package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/geocoder89/accountcore/internal/http/handlers"
	"github.com/gin-gonic/gin"
)

type bindDetails struct {
	JSON   string                `json:"json"`
	Field  string                `json:"field"`
	Fields []handlers.FieldError `json:"fields"`
}

// bindOnly serves a route that binds into T and answers 204 on success.
func bindOnly[T any](method, body string) (int, string, bindDetails) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Handle(method, "/bind", func(ctx *gin.Context) {
		var req T
		if handlers.BindJSON(ctx, &req) {
			ctx.Status(http.StatusNoContent)
		}
	})

	req := httptest.NewRequest(method, "/bind", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var resp struct {
		Error struct {
			Code    string      `json:"code"`
			Details bindDetails `json:"details"`
		} `json:"error"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return w.Code, resp.Error.Code, resp.Error.Details
}

func TestBindJSON_ValidationErrorsUseWireNames(t *testing.T) {
	status, code, details := bindOnly[handlers.SignUpRequest](http.MethodPost, `{"email":"not-an-email","password":"short"}`)
	if status != http.StatusBadRequest || code != "invalid_request" {
		t.Fatalf("got %d %q, want 400 invalid_request", status, code)
	}

	want := map[string]string{"email": "email", "username": "required", "password": "min"}
	if len(details.Fields) != len(want) {
		t.Fatalf("expected %d field errors, got %+v", len(want), details.Fields)
	}
	for _, fe := range details.Fields {
		if want[fe.Field] != fe.Rule {
			t.Fatalf("field %q: rule %q, want %q", fe.Field, fe.Rule, want[fe.Field])
		}
		if fe.Message == "" {
			t.Fatalf("field %q has no message", fe.Field)
		}
	}
}

func TestBindJSON_TypeMismatch(t *testing.T) {
	status, _, details := bindOnly[handlers.LoginRequest](http.MethodPost, `{"email":"a@example.com","password":"pw","rememberMe":"yes"}`)
	if status != http.StatusBadRequest {
		t.Fatalf("got status %d, want 400", status)
	}
	if details.JSON != "invalid_json_type" || details.Field != "rememberMe" {
		t.Fatalf("unexpected details %+v", details)
	}
	if len(details.Fields) != 1 || details.Fields[0].Rule != "type" {
		t.Fatalf("expected one type rule, got %+v", details.Fields)
	}
}

func TestBindJSON_MalformedAndEmptyBodies(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"syntax", `{"email":}`, "invalid_json_syntax"},
		{"empty", ``, "empty_body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _, details := bindOnly[handlers.LoginRequest](http.MethodPost, tt.body)
			if status != http.StatusBadRequest || details.JSON != tt.want {
				t.Fatalf("got %d %+v, want 400 %s", status, details, tt.want)
			}
		})
	}
}

func TestBindJSON_DeleteConfirmationMustMatch(t *testing.T) {
	status, _, details := bindOnly[handlers.DeleteAccountRequest](http.MethodDelete, `{"password":"pw","confirmation":"delete"}`)
	if status != http.StatusBadRequest {
		t.Fatalf("got status %d, want 400", status)
	}
	if len(details.Fields) != 1 {
		t.Fatalf("expected one field error, got %+v", details.Fields)
	}
	fe := details.Fields[0]
	if fe.Field != "confirmation" || fe.Rule != "eq" || fe.Message != "must equal DELETE" {
		t.Fatalf("unexpected field error %+v", fe)
	}

	if status, _, _ := bindOnly[handlers.DeleteAccountRequest](http.MethodDelete, `{"password":"pw","confirmation":"DELETE"}`); status != http.StatusNoContent {
		t.Fatalf("valid body: got status %d", status)
	}
}

func TestBindQuery_RejectsNonNumericLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.GET("/api/currency/ledger", func(ctx *gin.Context) {
		var q handlers.LedgerQuery
		if handlers.BindQuery(ctx, &q) {
			ctx.Status(http.StatusOK)
		}
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/currency/ledger?limit=abc", nil))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want %d, body=%s", w.Code, http.StatusBadRequest, w.Body.String())
	}
}
