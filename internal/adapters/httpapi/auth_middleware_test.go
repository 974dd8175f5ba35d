package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/lakay-digital/recharge-relay/internal/platform/auth/adminauth"
)

func newTestAuthHandler(t *testing.T) (http.Handler, func(now time.Time) string) {
	t.Helper()

	clk := fixedClock{t: time.Unix(1700000000, 0)}
	v := adminauth.NewVerifier(adminSecret, adminIssuer, clk)

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sub, ok := SubjectFromContext(r.Context())
		if !ok {
			writeError(w, r, http.StatusInternalServerError, "MISSING_SUBJECT", "subject missing from context", nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"subject": sub})
	})
	h := middleware.RequestID(NewAuthMiddleware(v)(inner))

	mint := func(now time.Time) string {
		tok, err := adminauth.Issue(adminSecret, adminIssuer, "ops-123", now, 5*time.Minute)
		if err != nil {
			t.Fatalf("Issue: %v", err)
		}
		return tok
	}
	return h, mint
}

func TestAuthMiddleware_MissingHeader_401(t *testing.T) {
	t.Parallel()

	h, _ := newTestAuthHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/admin/recharges", nil)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status: got %d want %d", rec.Code, http.StatusUnauthorized)
	}
	var er ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &er); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if er.Error.Code != "UNAUTHORIZED" {
		t.Fatalf("code: got %q", er.Error.Code)
	}
	if !er.Error.RequestId.IsSpecified() || er.Error.RequestId.IsNull() {
		t.Fatalf("expected requestId to be set")
	}
	if rid, err := er.Error.RequestId.Get(); err != nil || rid == "" {
		t.Fatalf("expected requestId to be a non-empty string")
	}
	if er.Error.Details.IsSpecified() {
		t.Fatalf("expected details to be omitted")
	}
}

func TestAuthMiddleware_ExpiredToken_401(t *testing.T) {
	t.Parallel()

	h, mint := newTestAuthHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/admin/recharges", nil)
	req.Header.Set("Authorization", "Bearer "+mint(time.Unix(1700000000, 0).Add(-time.Hour)))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status: got %d want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestAuthMiddleware_ValidToken_AllowsRequestAndSetsSubject(t *testing.T) {
	t.Parallel()

	h, mint := newTestAuthHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/admin/recharges", nil)
	req.Header.Set("Authorization", "Bearer "+mint(time.Unix(1700000000, 0)))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d want %d body=%s", rec.Code, http.StatusOK, rec.Body.String())
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["subject"] != "ops-123" {
		t.Fatalf("subject: got %q", body["subject"])
	}
}
