package itest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	boltlockstore "github.com/lakay-digital/recharge-relay/internal/adapters/bolt/lockstore"
	"github.com/lakay-digital/recharge-relay/internal/adapters/httpapi"
	memclock "github.com/lakay-digital/recharge-relay/internal/adapters/memory/clock"
	memlockstore "github.com/lakay-digital/recharge-relay/internal/adapters/memory/lockstore"
	pglockstore "github.com/lakay-digital/recharge-relay/internal/adapters/postgres/lockstore"
	postgres_testutil "github.com/lakay-digital/recharge-relay/internal/adapters/postgres/testutil"
	"github.com/lakay-digital/recharge-relay/internal/adapters/reloadly"
	sqlitelockstore "github.com/lakay-digital/recharge-relay/internal/adapters/sqlite/lockstore"
	"github.com/lakay-digital/recharge-relay/internal/app/operators"
	"github.com/lakay-digital/recharge-relay/internal/app/recharge"
	"github.com/lakay-digital/recharge-relay/internal/app/tokencache"
	"github.com/lakay-digital/recharge-relay/internal/domain"
	"github.com/lakay-digital/recharge-relay/internal/platform/auth/adminauth"
	lockstoreport "github.com/lakay-digital/recharge-relay/internal/ports/out/lockstore"
)

type backend string

const (
	backendMemory   backend = "memory"
	backendSQLite   backend = "sqlite"
	backendBolt     backend = "bolt"
	backendPostgres backend = "postgres"
)

func backendsFromEnv(t *testing.T) []backend {
	t.Helper()
	switch strings.ToLower(strings.TrimSpace(os.Getenv("ITEST_BACKEND"))) {
	case "", "memory":
		return []backend{backendMemory}
	case "sqlite":
		return []backend{backendSQLite}
	case "bolt":
		return []backend{backendBolt}
	case "postgres":
		return []backend{backendPostgres}
	case "all":
		return []backend{backendMemory, backendSQLite, backendBolt, backendPostgres}
	default:
		t.Fatalf("unknown ITEST_BACKEND value (expected memory|sqlite|bolt|postgres|all)")
		return nil
	}
}

const (
	webhookSecret = "itest-webhook-secret"
	adminSecret   = "itest-admin-secret-0123456789abcdef"
	adminIssuer   = "itest-issuer"
)

// fakeProvider serves the subset of the top-up API the relay calls. It enforces
// customIdentifier uniqueness the way the real provider does.
type fakeProvider struct {
	mu          sync.Mutex
	tokenCalls  int
	topups      map[string]int
	topupCalls  int
	failTopups  int
	topupDelay  time.Duration
	lastAmounts []string
}

func newFakeProvider(t *testing.T) (*fakeProvider, *httptest.Server) {
	t.Helper()
	p := &fakeProvider{topups: map[string]int{}}

	r := chi.NewRouter()
	r.Post("/oauth/token", func(w http.ResponseWriter, _ *http.Request) {
		p.mu.Lock()
		p.tokenCalls++
		p.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"access_token": "tok-1", "expires_in": 3600, "token_type": "Bearer"})
	})
	r.Get("/operators/auto-detect/phone/{phone}/countries/{cc}", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"operatorId": 173, "name": "Digicel Haiti", "country": map[string]string{"isoName": chi.URLParam(r, "cc")}})
	})
	r.Post("/topups", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			CustomIdentifier string          `json:"customIdentifier"`
			Amount           json.RawMessage `json:"amount"`
		}
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		if p.topupDelay > 0 {
			time.Sleep(p.topupDelay)
		}

		p.mu.Lock()
		defer p.mu.Unlock()
		p.topupCalls++
		if p.failTopups > 0 {
			p.failTopups--
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"message": "try later", "errorCode": "SERVICE_UNAVAILABLE"})
			return
		}
		if _, dup := p.topups[body.CustomIdentifier]; dup {
			writeJSON(w, http.StatusConflict, map[string]any{"message": "duplicate", "errorCode": "DUPLICATED_CUSTOM_IDENTIFIER"})
			return
		}
		tx := len(p.topups) + 9000
		p.topups[body.CustomIdentifier] = tx
		p.lastAmounts = append(p.lastAmounts, string(body.Amount))
		writeJSON(w, http.StatusOK, map[string]any{"transactionId": tx, "status": "SUCCESSFUL"})
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return p, srv
}

func (p *fakeProvider) calls() (token, topup int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tokenCalls, p.topupCalls
}

func (p *fakeProvider) charged() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.topups)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type testServer struct {
	baseURL  string
	client   *http.Client
	provider *fakeProvider
	store    lockstoreport.Store
	token    string
}

func openStore(t *testing.T, b backend) lockstoreport.Store {
	t.Helper()
	switch b {
	case backendMemory:
		return memlockstore.NewStore()
	case backendSQLite:
		s, err := sqlitelockstore.Open(filepath.Join(t.TempDir(), "itest.db"))
		if err != nil {
			t.Fatalf("sqlite Open: %v", err)
		}
		t.Cleanup(func() { _ = s.Close() })
		return s
	case backendBolt:
		s, err := boltlockstore.Open(filepath.Join(t.TempDir(), "itest.bolt"))
		if err != nil {
			t.Fatalf("bolt Open: %v", err)
		}
		t.Cleanup(func() { _ = s.Close() })
		return s
	case backendPostgres:
		return pglockstore.NewStore(postgres_testutil.OpenMigratedPool(t))
	}
	t.Fatalf("unknown backend: %s", b)
	return nil
}

func newTestServer(t *testing.T, b backend, mode recharge.Mode) *testServer {
	t.Helper()

	now := time.Now().UTC()
	clk := memclock.NewManualClock(now)
	store := openStore(t, b)
	prov, provSrv := newFakeProvider(t)

	tokens := tokencache.New(reloadly.NewAuth(provSrv.URL+"/oauth/token", "id", "secret", provSrv.URL, provSrv.Client()), clk, tokencache.DefaultRefreshMargin)
	client := reloadly.NewClient(tokens, reloadly.ClientOptions{BaseURL: provSrv.URL, HTTPClient: provSrv.Client()})
	ex := recharge.NewExecutor(client, store, recharge.RetryPolicy{MaxAttempts: 3, Backoff: recharge.BackoffImmediate, AttemptTimeout: 5 * time.Second}, recharge.ExecutorOptions{Tokens: tokens})

	svc := recharge.NewService(recharge.Config{Mode: mode, WebhookSecret: webhookSecret}, recharge.Deps{
		Store:    store,
		Resolver: operators.NewResolver(client, domain.Haiti(), operators.DefaultRules(), nil),
		Charger:  ex,
		Clock:    clk,
	})
	verifier := adminauth.NewVerifier(adminSecret, adminIssuer, clk)
	handler := httpapi.NewRouter(svc, httpapi.RouterOptions{AdminAuth: httpapi.NewAuthMiddleware(verifier)})

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	tok, err := adminauth.Issue(adminSecret, adminIssuer, "itest-operator", now, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return &testServer{baseURL: srv.URL, client: srv.Client(), provider: prov, store: store, token: tok}
}

func (s *testServer) url(path string) string {
	if strings.HasPrefix(path, "/") {
		return s.baseURL + path
	}
	return s.baseURL + "/" + path
}

func (s *testServer) do(t *testing.T, req *http.Request) (int, []byte) {
	t.Helper()
	resp, err := s.client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, b
}

func (s *testServer) postWebhook(t *testing.T, body, sig string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, s.url("/webhooks/orders-paid"), strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(httpapi.HeaderSignature, sig)
	status, raw := s.do(t, req)
	return status, decode(t, raw)
}

func (s *testServer) admin(t *testing.T, method, path string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, s.url(path), nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	status, raw := s.do(t, req)
	return status, decode(t, raw)
}

func decode(t *testing.T, raw []byte) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("decode json: %v body=%s", err, raw)
	}
	return m
}
