package recharge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	memclock "github.com/lakay-digital/recharge-relay/internal/adapters/memory/clock"
	memlockstore "github.com/lakay-digital/recharge-relay/internal/adapters/memory/lockstore"
	"github.com/lakay-digital/recharge-relay/internal/app/operators"
	"github.com/lakay-digital/recharge-relay/internal/app/orders"
	"github.com/lakay-digital/recharge-relay/internal/app/signature"
	"github.com/lakay-digital/recharge-relay/internal/domain"
	"github.com/lakay-digital/recharge-relay/internal/ports/out/lockstore"
	"github.com/lakay-digital/recharge-relay/internal/ports/out/provider"
)

const testSecret = "whsec_test"

const scenarioABody = `{"id":1001,"financial_status":"paid","line_items":[{"title":"Recharge","price":10,"properties":[{"name":"Numéro à recharger","value":"50912345678"}]}]}`

// fakeProvider is a scripted provider.Client that counts top-up calls.
type fakeProvider struct {
	mu          sync.Mutex
	topups      []provider.TopupRequest
	topupErr    error
	denoms      map[int64][]decimal.Decimal
	detectCalls int
	delay       time.Duration
}

func (f *fakeProvider) DetectOperator(context.Context, string, string) (provider.Operator, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detectCalls++
	return provider.Operator{ID: 173, Name: "Digicel Haiti"}, nil
}

func (f *fakeProvider) ListOperators(context.Context, string) ([]provider.Operator, error) {
	return nil, errors.New("not used")
}

func (f *fakeProvider) OperatorDenominations(_ context.Context, id int64) ([]decimal.Decimal, error) {
	return f.denoms[id], nil
}

func (f *fakeProvider) Topup(ctx context.Context, req provider.TopupRequest) (provider.TopupResult, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return provider.TopupResult{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topups = append(f.topups, req)
	if f.topupErr != nil {
		return provider.TopupResult{}, f.topupErr
	}
	return provider.TopupResult{TransactionID: fmt.Sprintf("tx-%d", len(f.topups))}, nil
}

func (f *fakeProvider) topupCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.topups)
}

// spyStore counts mutating calls on top of the in-memory store.
type spyStore struct {
	*memlockstore.Store
	tryLocks    atomic.Int32
	transitions atomic.Int32
}

func (s *spyStore) TryLock(ctx context.Context, rec lockstore.Record) (bool, error) {
	s.tryLocks.Add(1)
	return s.Store.TryLock(ctx, rec)
}

func (s *spyStore) Transition(ctx context.Context, key lockstore.Key, from, to lockstore.Status, out lockstore.Outcome) (bool, error) {
	s.transitions.Add(1)
	return s.Store.Transition(ctx, key, from, to, out)
}

type fakeFulfiller struct {
	mu     sync.Mutex
	orders []string
	err    error
}

func (f *fakeFulfiller) MarkFulfilled(_ context.Context, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders = append(f.orders, orderID)
	return f.err
}

type harness struct {
	svc       *Service
	store     *spyStore
	provider  *fakeProvider
	fulfiller *fakeFulfiller
	clock     *memclock.ManualClock
}

func newHarness(t *testing.T, cfg Config, bundles ...orders.BundleRule) *harness {
	t.Helper()

	clk := memclock.NewManualClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	store := &spyStore{Store: memlockstore.NewStoreWithClock(clk.Now)}
	prov := &fakeProvider{denoms: map[int64][]decimal.Decimal{}}
	ful := &fakeFulfiller{}

	if cfg.WebhookSecret == "" {
		cfg.WebhookSecret = testSecret
	}
	if cfg.Country.Code == "" {
		cfg.Country = domain.Haiti()
	}
	ex := NewExecutor(prov, store, RetryPolicy{MaxAttempts: 3, Backoff: BackoffImmediate}, ExecutorOptions{})
	ex.SetSleepForTest(func(context.Context, time.Duration) error { return nil })

	svc := NewService(cfg, Deps{
		Interpreter: orders.New(orders.Config{Country: cfg.Country, Bundles: bundles}),
		Store:       store,
		Resolver:    operators.NewResolver(prov, cfg.Country, operators.DefaultRules(), nil),
		Charger:     ex,
		Fulfiller:   ful,
		Clock:       clk,
	})
	return &harness{svc: svc, store: store, provider: prov, fulfiller: ful, clock: clk}
}

func (h *harness) deliver(t *testing.T, body string) Result {
	t.Helper()
	res, err := h.svc.HandleWebhook(context.Background(), []byte(body), signature.Sign([]byte(body), testSecret))
	if err != nil {
		t.Fatalf("HandleWebhook: %v", err)
	}
	return res
}

func TestHandleWebhook_ScenarioA(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{Mode: ModeAutoExecute})
	res := h.deliver(t, scenarioABody)
	if res.Status != OutcomeProcessed {
		t.Fatalf("status=%s reason=%s", res.Status, res.Reason)
	}
	if h.provider.topupCount() != 1 {
		t.Fatalf("topups=%d, want 1", h.provider.topupCount())
	}
	call := h.provider.topups[0]
	if !call.Amount.Equal(decimal.NewFromInt(10)) || call.Number != "12345678" || call.CountryCode != "HT" {
		t.Fatalf("unexpected topup: %+v", call)
	}

	wantKey, err := DeriveKey(KeyPolicyOrder, domain.RechargeRequest{OrderID: "1001"})
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	if res.Key != wantKey || call.CustomIdentifier != string(wantKey) {
		t.Fatalf("key=%s customIdentifier=%s, want %s", res.Key, call.CustomIdentifier, wantKey)
	}
	rec, err := h.store.Get(context.Background(), wantKey)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Status != lockstore.StatusSuccess || rec.TransactionID != res.TransactionID {
		t.Fatalf("record=%+v", rec)
	}
	if len(h.fulfiller.orders) != 1 || h.fulfiller.orders[0] != "1001" {
		t.Fatalf("fulfilled=%v", h.fulfiller.orders)
	}
}

func TestHandleWebhook_ScenarioB_RedeliveryIsAcknowledged(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{Mode: ModeAutoExecute})
	if res := h.deliver(t, scenarioABody); res.Status != OutcomeProcessed {
		t.Fatalf("first status=%s", res.Status)
	}
	res := h.deliver(t, scenarioABody)
	if res.Status != OutcomeDuplicate {
		t.Fatalf("second status=%s, want duplicate", res.Status)
	}
	if h.provider.topupCount() != 1 {
		t.Fatalf("topups=%d, want 1", h.provider.topupCount())
	}
}

func TestHandleWebhook_ScenarioC_NotPaid(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{Mode: ModeAutoExecute})
	res := h.deliver(t, `{"id":1002,"financial_status":"pending","line_items":[{"title":"Recharge","price":10,"properties":[{"name":"Phone","value":"50912345678"}]}]}`)
	if res.Status != OutcomeIgnored || res.Reason != orders.ReasonNotPaid {
		t.Fatalf("status=%s reason=%s", res.Status, res.Reason)
	}
	if h.store.tryLocks.Load() != 0 || h.provider.topupCount() != 0 {
		t.Fatalf("tryLocks=%d topups=%d, want 0/0", h.store.tryLocks.Load(), h.provider.topupCount())
	}
	recs, _ := h.store.List(context.Background(), lockstore.ListFilter{})
	if len(recs) != 0 {
		t.Fatalf("records=%d, want 0", len(recs))
	}
}

func TestHandleWebhook_ScenarioD_BundleDenominationRejected(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{Mode: ModeAutoExecute}, orders.BundleRule{Name: "bundle", Keywords: []string{"bundle"}, OperatorID: 900})
	h.provider.denoms[900] = []decimal.Decimal{decimal.NewFromInt(25), decimal.NewFromInt(50), decimal.NewFromInt(100)}

	res := h.deliver(t, `{"id":1003,"financial_status":"paid","line_items":[{"title":"Data Bundle","price":30,"properties":[{"name":"Phone","value":"37123456"}]}]}`)
	if res.Status != OutcomeFailed {
		t.Fatalf("status=%s, want failed", res.Status)
	}
	if h.provider.topupCount() != 0 {
		t.Fatalf("topups=%d, want 0", h.provider.topupCount())
	}
	rec, err := h.store.Get(context.Background(), res.Key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Status != lockstore.StatusFailed || rec.LastError == "" {
		t.Fatalf("record=%+v", rec)
	}
	if !strings.HasPrefix(rec.LastError, operators.ErrDenominationNotAllowed.Error()) {
		t.Fatalf("last error=%q", rec.LastError)
	}
}

func TestHandleWebhook_BundleAllowedDenomination(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{Mode: ModeAutoExecute}, orders.BundleRule{Name: "bundle", Keywords: []string{"bundle"}, OperatorID: 900})
	h.provider.denoms[900] = []decimal.Decimal{decimal.NewFromInt(25), decimal.NewFromInt(50)}

	res := h.deliver(t, `{"id":1004,"financial_status":"paid","line_items":[{"title":"Data Bundle","price":"50.00","properties":[{"name":"Phone","value":"37123456"}]}]}`)
	if res.Status != OutcomeProcessed {
		t.Fatalf("status=%s reason=%s", res.Status, res.Reason)
	}
	if got := h.provider.topups[0].OperatorID; got != 900 {
		t.Fatalf("operator=%d, want 900", got)
	}
	if h.provider.detectCalls != 0 {
		t.Fatalf("bundle path must not auto-detect")
	}
}

func TestHandleWebhook_AtMostOnceUnderConcurrency(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{Mode: ModeAutoExecute})
	h.provider.delay = 5 * time.Millisecond

	const n = 25
	var wg sync.WaitGroup
	results := make([]Result, n)
	errs := make([]error, n)
	sig := signature.Sign([]byte(scenarioABody), testSecret)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = h.svc.HandleWebhook(context.Background(), []byte(scenarioABody), sig)
		}(i)
	}
	wg.Wait()

	processed, duplicates := 0, 0
	for i := range results {
		if errs[i] != nil {
			t.Fatalf("delivery %d: %v", i, errs[i])
		}
		switch results[i].Status {
		case OutcomeProcessed:
			processed++
		case OutcomeDuplicate:
			duplicates++
		default:
			t.Fatalf("delivery %d: unexpected status %s", i, results[i].Status)
		}
	}
	if processed != 1 || duplicates != n-1 {
		t.Fatalf("processed=%d duplicates=%d", processed, duplicates)
	}
	if h.provider.topupCount() != 1 {
		t.Fatalf("topups=%d, want exactly 1", h.provider.topupCount())
	}
	rec, err := h.store.Get(context.Background(), results[0].Key)
	if err != nil || rec.Status != lockstore.StatusSuccess {
		t.Fatalf("record=%+v err=%v", rec, err)
	}
}

func TestHandleWebhook_SignatureRejectedBeforeAnyWork(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{Mode: ModeAutoExecute})
	for _, sig := range []string{"", "bm90LWEtc2ln", signature.Sign([]byte(scenarioABody), "other-secret")} {
		_, err := h.svc.HandleWebhook(context.Background(), []byte(scenarioABody), sig)
		if !errors.Is(err, ErrInvalidSignature) {
			t.Fatalf("sig=%q err=%v, want ErrInvalidSignature", sig, err)
		}
	}
	// Signed body with one byte changed.
	tampered := []byte(scenarioABody)
	sig := signature.Sign(tampered, testSecret)
	tampered[len(tampered)-2] = ' '
	if _, err := h.svc.HandleWebhook(context.Background(), tampered, sig); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("tampered err=%v", err)
	}
	if h.store.tryLocks.Load() != 0 || h.store.transitions.Load() != 0 || h.provider.topupCount() != 0 {
		t.Fatalf("signature failure must not touch the store or provider")
	}
}

func TestHandleWebhook_MalformedPayload(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{Mode: ModeAutoExecute})
	body := `{"id":`
	_, err := h.svc.HandleWebhook(context.Background(), []byte(body), signature.Sign([]byte(body), testSecret))
	if !errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("err=%v, want ErrMalformedPayload", err)
	}
}

func TestHandleWebhook_ValidationGatesTryLock(t *testing.T) {
	t.Parallel()

	bodies := []string{
		`{"id":1,"financial_status":"paid","line_items":[{"title":"Recharge","properties":[{"name":"Phone","value":"37123456"},{"name":"Amount","value":"0"}]}]}`,
		`{"id":2,"financial_status":"paid","line_items":[{"title":"Recharge","properties":[{"name":"Phone","value":"37123456"},{"name":"Amount","value":"-10"}]}]}`,
		`{"id":3,"financial_status":"paid","line_items":[{"title":"Recharge","price":10,"properties":[{"name":"Phone","value":"123"}]}]}`,
		`{"id":4,"financial_status":"paid","line_items":[{"title":"Recharge","price":10,"properties":[{"name":"Phone","value":"+1 415 555 0100"}]}]}`,
	}
	h := newHarness(t, Config{Mode: ModeAutoExecute})
	for _, body := range bodies {
		if res := h.deliver(t, body); res.Status != OutcomeInvalid {
			t.Fatalf("body %s: status=%s", body, res.Status)
		}
	}
	if h.store.tryLocks.Load() != 0 || h.provider.topupCount() != 0 {
		t.Fatalf("tryLocks=%d topups=%d, want 0/0", h.store.tryLocks.Load(), h.provider.topupCount())
	}
}

func TestHandleWebhook_ReplayAfterSuccessAndFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{Mode: ModeAutoExecute})
	h.provider.topupErr = &provider.Error{Op: "topup", StatusCode: 503}

	res := h.deliver(t, scenarioABody)
	if res.Status != OutcomeFailed {
		t.Fatalf("status=%s, want failed", res.Status)
	}
	if h.provider.topupCount() != 3 {
		t.Fatalf("topups=%d, want 3 (retry bound)", h.provider.topupCount())
	}

	h.provider.topupErr = nil
	if res := h.deliver(t, scenarioABody); res.Status != OutcomeDuplicate {
		t.Fatalf("replay status=%s, want duplicate", res.Status)
	}
	if h.provider.topupCount() != 3 {
		t.Fatalf("replay of a failed key must not charge again")
	}
}

func TestHandleWebhook_KeyPolicyOrderPhoneAmount(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{Mode: ModeAutoExecute, KeyPolicy: KeyPolicyOrderPhoneAmount})
	h.deliver(t, scenarioABody)
	corrected := `{"id":1001,"financial_status":"paid","line_items":[{"title":"Recharge","price":15,"properties":[{"name":"Numéro à recharger","value":"50912345678"}]}]}`
	if res := h.deliver(t, corrected); res.Status != OutcomeProcessed {
		t.Fatalf("corrected amount status=%s, want processed", res.Status)
	}
	if h.provider.topupCount() != 2 {
		t.Fatalf("topups=%d, want 2", h.provider.topupCount())
	}

	ho := newHarness(t, Config{Mode: ModeAutoExecute, KeyPolicy: KeyPolicyOrder})
	ho.deliver(t, scenarioABody)
	if res := ho.deliver(t, corrected); res.Status != OutcomeDuplicate {
		t.Fatalf("order policy: corrected amount status=%s, want duplicate", res.Status)
	}
}

func TestHandleWebhook_RateLimit(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{Mode: ModeAutoExecute, MaxPerPhonePerDay: 2})
	body := func(id int) string {
		return fmt.Sprintf(`{"id":%d,"financial_status":"paid","line_items":[{"title":"Recharge","price":5,"properties":[{"name":"Phone","value":"37123456"}]}]}`, id)
	}
	for id := 1; id <= 2; id++ {
		if res := h.deliver(t, body(id)); res.Status != OutcomeProcessed {
			t.Fatalf("order %d status=%s", id, res.Status)
		}
		h.clock.Advance(time.Hour)
	}
	res := h.deliver(t, body(3))
	if res.Status != OutcomeIgnored || res.Reason != ReasonRateLimited {
		t.Fatalf("status=%s reason=%s, want ignored/rate_limited", res.Status, res.Reason)
	}

	// The window rolls forward.
	h.clock.Advance(24 * time.Hour)
	if res := h.deliver(t, body(4)); res.Status != OutcomeProcessed {
		t.Fatalf("after window status=%s", res.Status)
	}
}

func TestHandleWebhook_CallerCancellationDoesNotAbortClaimedCharge(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name       string
		topupErr   error
		wantStatus Outcome
		wantRecord lockstore.Status
		wantTopups int
	}{
		{name: "provider_succeeds", wantStatus: OutcomeProcessed, wantRecord: lockstore.StatusSuccess, wantTopups: 1},
		{name: "provider_keeps_failing", topupErr: &provider.Error{Op: "topup", StatusCode: 503}, wantStatus: OutcomeFailed, wantRecord: lockstore.StatusFailed, wantTopups: 3},
	}
	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t, Config{Mode: ModeAutoExecute})
			h.provider.delay = 150 * time.Millisecond
			h.provider.topupErr = tc.topupErr

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			time.AfterFunc(30*time.Millisecond, cancel)

			res, err := h.svc.HandleWebhook(ctx, []byte(scenarioABody), signature.Sign([]byte(scenarioABody), testSecret))
			if err != nil {
				t.Fatalf("HandleWebhook: %v", err)
			}
			if ctx.Err() == nil {
				t.Fatalf("caller context was never cancelled")
			}
			if res.Status != tc.wantStatus {
				t.Fatalf("status=%s reason=%s, want %s", res.Status, res.Reason, tc.wantStatus)
			}
			if got := h.provider.topupCount(); got != tc.wantTopups {
				t.Fatalf("topups=%d, want %d", got, tc.wantTopups)
			}
			rec, err := h.store.Get(context.Background(), res.Key)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if rec.Status != tc.wantRecord || strings.Contains(rec.LastError, context.Canceled.Error()) {
				t.Fatalf("record=%+v", rec)
			}
		})
	}
}

func TestManualConfirmation_CallerCancellationDoesNotAbortConfirmedCharge(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{Mode: ModeManualConfirmation})
	res := h.deliver(t, scenarioABody)
	h.provider.delay = 150 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	time.AfterFunc(30*time.Millisecond, cancel)

	confirmed, err := h.svc.Confirm(ctx, res.Key)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if confirmed.Status != OutcomeProcessed || h.provider.topupCount() != 1 {
		t.Fatalf("status=%s reason=%s topups=%d", confirmed.Status, confirmed.Reason, h.provider.topupCount())
	}
	rec, err := h.store.Get(context.Background(), res.Key)
	if err != nil || rec.Status != lockstore.StatusSuccess {
		t.Fatalf("record=%+v err=%v", rec, err)
	}
}

func TestManualConfirmation_UnsellableBundleSkipsQueue(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{Mode: ModeManualConfirmation}, orders.BundleRule{Name: "bundle", Keywords: []string{"bundle"}, OperatorID: 900})
	h.provider.denoms[900] = []decimal.Decimal{decimal.NewFromInt(25), decimal.NewFromInt(50)}

	res := h.deliver(t, `{"id":1005,"financial_status":"paid","line_items":[{"title":"Data Bundle","price":30,"properties":[{"name":"Phone","value":"37123456"}]}]}`)
	if res.Status != OutcomeFailed || !strings.HasPrefix(res.Reason, operators.ErrDenominationNotAllowed.Error()) {
		t.Fatalf("status=%s reason=%s, want failed denomination", res.Status, res.Reason)
	}
	rec, err := h.store.Get(context.Background(), res.Key)
	if err != nil || rec.Status != lockstore.StatusFailed {
		t.Fatalf("record=%+v err=%v", rec, err)
	}
	pending, _ := h.svc.List(context.Background(), lockstore.ListFilter{Status: lockstore.StatusPending})
	if len(pending) != 0 {
		t.Fatalf("pending=%d, want 0", len(pending))
	}

	// A sellable bundle is still held.
	ok := h.deliver(t, `{"id":1006,"financial_status":"paid","line_items":[{"title":"Data Bundle","price":50,"properties":[{"name":"Phone","value":"37123456"}]}]}`)
	if ok.Status != OutcomePendingConfirmation {
		t.Fatalf("status=%s, want pending_confirmation", ok.Status)
	}
	if h.provider.topupCount() != 0 {
		t.Fatalf("manual mode must not charge before confirmation")
	}
}

func TestManualConfirmation_RateLimitRecheckedOnConfirm(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{Mode: ModeManualConfirmation, MaxPerPhonePerDay: 1})
	body := func(id int) string {
		return fmt.Sprintf(`{"id":%d,"financial_status":"paid","line_items":[{"title":"Recharge","price":5,"properties":[{"name":"Phone","value":"37123456"}]}]}`, id)
	}
	first := h.deliver(t, body(1))
	second := h.deliver(t, body(2))
	if first.Status != OutcomePendingConfirmation || second.Status != OutcomePendingConfirmation {
		t.Fatalf("statuses=%s/%s", first.Status, second.Status)
	}

	ctx := context.Background()
	if res, err := h.svc.Confirm(ctx, first.Key); err != nil || res.Status != OutcomeProcessed {
		t.Fatalf("first confirm res=%+v err=%v", res, err)
	}
	_, err := h.svc.Confirm(ctx, second.Key)
	var appErr *Error
	if !errors.As(err, &appErr) || appErr.Status != 409 || appErr.Code != "RATE_LIMITED" {
		t.Fatalf("second confirm err=%v, want 409 RATE_LIMITED", err)
	}
	if h.provider.topupCount() != 1 {
		t.Fatalf("topups=%d, want 1", h.provider.topupCount())
	}
	rec, err := h.store.Get(ctx, second.Key)
	if err != nil || rec.Status != lockstore.StatusPending {
		t.Fatalf("rate-limited record=%+v err=%v, want still pending", rec, err)
	}
}

func TestManualConfirmation(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{Mode: ModeManualConfirmation})
	res := h.deliver(t, scenarioABody)
	if res.Status != OutcomePendingConfirmation {
		t.Fatalf("status=%s, want pending_confirmation", res.Status)
	}
	if h.provider.topupCount() != 0 {
		t.Fatalf("manual mode must not charge before confirmation")
	}
	if res := h.deliver(t, scenarioABody); res.Status != OutcomeDuplicate {
		t.Fatalf("redelivery status=%s", res.Status)
	}

	ctx := context.Background()
	confirmed, err := h.svc.Confirm(ctx, res.Key)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if confirmed.Status != OutcomeProcessed || h.provider.topupCount() != 1 {
		t.Fatalf("confirm status=%s topups=%d", confirmed.Status, h.provider.topupCount())
	}
	if !h.provider.topups[0].Amount.Equal(decimal.NewFromInt(10)) || h.provider.topups[0].Number != "12345678" {
		t.Fatalf("unexpected topup %+v", h.provider.topups[0])
	}

	_, err = h.svc.Confirm(ctx, res.Key)
	var appErr *Error
	if !errors.As(err, &appErr) || appErr.Status != 409 || appErr.Details["status"] != "success" {
		t.Fatalf("second confirm err=%v", err)
	}
	if h.provider.topupCount() != 1 {
		t.Fatalf("second confirm must not charge")
	}
}

func TestManualConfirmation_ConcurrentConfirmChargesOnce(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{Mode: ModeManualConfirmation})
	res := h.deliver(t, scenarioABody)

	const n = 10
	var (
		wg        sync.WaitGroup
		conflicts atomic.Int32
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.svc.Confirm(context.Background(), res.Key)
			var appErr *Error
			if errors.As(err, &appErr) && appErr.Status == 409 {
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()
	if h.provider.topupCount() != 1 || conflicts.Load() != n-1 {
		t.Fatalf("topups=%d conflicts=%d", h.provider.topupCount(), conflicts.Load())
	}
}

func TestManualConfirmation_Reject(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{Mode: ModeManualConfirmation})
	res := h.deliver(t, scenarioABody)
	ctx := context.Background()

	rec, err := h.svc.Reject(ctx, res.Key, "customer cancelled")
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if rec.Status != lockstore.StatusFailed || rec.LastError != "rejected by operator: customer cancelled" {
		t.Fatalf("record=%+v", rec)
	}
	var appErr *Error
	if _, err := h.svc.Confirm(ctx, res.Key); !errors.As(err, &appErr) || appErr.Status != 409 {
		t.Fatalf("confirm after reject err=%v", err)
	}
	if _, err := h.svc.Reject(ctx, "missing", ""); !errors.As(err, &appErr) || appErr.Status != 404 {
		t.Fatalf("reject missing err=%v", err)
	}
	if h.provider.topupCount() != 0 {
		t.Fatalf("rejected recharge must not charge")
	}
}

func TestService_List(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{Mode: ModeManualConfirmation})
	h.deliver(t, scenarioABody)
	recs, err := h.svc.List(context.Background(), lockstore.ListFilter{Status: lockstore.StatusPending})
	if err != nil || len(recs) != 1 {
		t.Fatalf("recs=%d err=%v", len(recs), err)
	}
	var appErr *Error
	if _, err := h.svc.List(context.Background(), lockstore.ListFilter{Status: "bogus"}); !errors.As(err, &appErr) || appErr.Status != 422 {
		t.Fatalf("err=%v, want 422", err)
	}
}

func TestHandleWebhook_StoreUnavailableBeforeClaim(t *testing.T) {
	t.Parallel()

	h := newHarness(t, Config{Mode: ModeAutoExecute})
	h.svc.store = failingStore{Store: h.store}
	_, err := h.svc.HandleWebhook(context.Background(), []byte(scenarioABody), signature.Sign([]byte(scenarioABody), testSecret))
	if err == nil || errors.Is(err, ErrInvalidSignature) || errors.Is(err, ErrMalformedPayload) {
		t.Fatalf("err=%v, want store error", err)
	}
	if h.provider.topupCount() != 0 {
		t.Fatalf("no charge without a claimed key")
	}
}

type failingStore struct {
	lockstore.Store
}

func (failingStore) TryLock(context.Context, lockstore.Record) (bool, error) {
	return false, errors.New("connection refused")
}

func TestParseModeAndPolicy(t *testing.T) {
	t.Parallel()

	if m, err := ParseMode(""); err != nil || m != ModeManualConfirmation {
		t.Fatalf("default mode=%s err=%v", m, err)
	}
	if _, err := ParseMode("semi-auto"); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
	if p, err := ParseKeyPolicy(""); err != nil || p != KeyPolicyOrder {
		t.Fatalf("default policy=%s err=%v", p, err)
	}
	if _, err := ParseKeyPolicy("random"); err == nil {
		t.Fatalf("expected error for unknown policy")
	}
}
