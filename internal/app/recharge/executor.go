package recharge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/lakay-digital/recharge-relay/internal/domain"
	"github.com/lakay-digital/recharge-relay/internal/ports/out/lockstore"
	"github.com/lakay-digital/recharge-relay/internal/ports/out/provider"
)

type Backoff string

const (
	BackoffImmediate Backoff = "immediate"
	// BackoffLinear waits attempt*BaseDelay after each failed attempt.
	BackoffLinear Backoff = "linear"
)

type RetryPolicy struct {
	MaxAttempts    int
	Backoff        Backoff
	BaseDelay      time.Duration
	AttemptTimeout time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		Backoff:        BackoffLinear,
		BaseDelay:      2 * time.Second,
		AttemptTimeout: 15 * time.Second,
	}
}

func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("retry policy: max attempts must be at least 1, got %d", p.MaxAttempts)
	}
	switch p.Backoff {
	case BackoffImmediate, BackoffLinear:
	default:
		return fmt.Errorf("retry policy: unknown backoff %q", p.Backoff)
	}
	if p.BaseDelay < 0 || p.AttemptTimeout < 0 {
		return errors.New("retry policy: durations must not be negative")
	}
	return nil
}

// Delay is the wait after failed attempt n (1-based).
func (p RetryPolicy) Delay(n int) time.Duration {
	if p.Backoff == BackoffLinear {
		return time.Duration(n) * p.BaseDelay
	}
	return 0
}

// TopupOrder is one charge bound to a claimed idempotency key.
type TopupOrder struct {
	Key         lockstore.Key
	OrderID     string
	OperatorID  int64
	Amount      decimal.Decimal
	Phone       domain.Phone
	CountryCode string
}

// TokenInvalidator drops a cached credential after the provider rejected it.
type TokenInvalidator interface {
	Invalidate()
}

// Executor issues the top-up with bounded retries and records the terminal outcome.
// The key must already be claimed (locked) by the caller.
type Executor struct {
	topups         provider.Topups
	store          lockstore.Store
	tokens         TokenInvalidator
	policy         RetryPolicy
	useLocalAmount bool
	log            *zap.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

type ExecutorOptions struct {
	Tokens         TokenInvalidator
	UseLocalAmount bool
	Logger         *zap.Logger
}

func NewExecutor(topups provider.Topups, store lockstore.Store, policy RetryPolicy, opts ExecutorOptions) *Executor {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Executor{
		topups:         topups,
		store:          store,
		tokens:         opts.Tokens,
		policy:         policy,
		useLocalAmount: opts.UseLocalAmount,
		log:            opts.Logger,
		sleep:          sleepCtx,
	}
}

// SetSleepForTest replaces the backoff wait. It should not be used in production code.
func (e *Executor) SetSleepForTest(fn func(ctx context.Context, d time.Duration) error) {
	if fn != nil {
		e.sleep = fn
	}
}

// Execute charges o and moves its record to success or failed. On failure it returns a
// *ChargeError; the record is already marked failed.
func (e *Executor) Execute(ctx context.Context, o TopupOrder) (string, error) {
	log := e.log.With(zap.String("order_id", o.OrderID), zap.String("idempotency_key", string(o.Key)))
	req := provider.TopupRequest{
		OperatorID:       o.OperatorID,
		Amount:           o.Amount,
		UseLocalAmount:   e.useLocalAmount,
		CountryCode:      o.CountryCode,
		Number:           string(o.Phone),
		CustomIdentifier: string(o.Key),
	}

	var (
		lastErr  error
		attempts int
	)
	for attempt := 1; attempt <= e.policy.MaxAttempts; attempt++ {
		attempts = attempt
		res, err := e.attempt(ctx, req)
		if err == nil {
			e.finalizeSuccess(ctx, log, o.Key, res.TransactionID)
			log.Info("recharge succeeded", zap.Int("attempt", attempt), zap.String("transaction_id", res.TransactionID))
			return res.TransactionID, nil
		}
		lastErr = err
		log.Warn("recharge attempt failed", zap.Int("attempt", attempt), zap.Error(err))

		if errors.Is(err, provider.ErrUnauthorized) && e.tokens != nil {
			e.tokens.Invalidate()
		}
		if !provider.IsRetryable(err) || attempt == e.policy.MaxAttempts {
			break
		}
		if err := e.sleep(ctx, e.policy.Delay(attempt)); err != nil {
			lastErr = fmt.Errorf("%w (retry abandoned: %v)", lastErr, err)
			break
		}
	}

	reason := failureReason(lastErr)
	if err := lockstore.MarkFailed(context.WithoutCancel(ctx), e.store, o.Key, reason); err != nil {
		log.Error("failed to record recharge failure", zap.Error(err))
	}
	log.Error("recharge failed", zap.Int("attempt", attempts), zap.String("reason", reason))
	return "", &ChargeError{Attempts: attempts, Err: lastErr}
}

func (e *Executor) attempt(ctx context.Context, req provider.TopupRequest) (provider.TopupResult, error) {
	if e.policy.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.policy.AttemptTimeout)
		defer cancel()
	}
	return e.topups.Topup(ctx, req)
}

// finalizeSuccess records the transaction. The charge already happened, so a store
// error only leaves the record locked, which still blocks replays.
func (e *Executor) finalizeSuccess(ctx context.Context, log *zap.Logger, key lockstore.Key, txID string) {
	if err := lockstore.MarkSuccess(context.WithoutCancel(ctx), e.store, key, txID); err != nil {
		log.Error("failed to record recharge success; record left locked", zap.String("transaction_id", txID), zap.Error(err))
	}
}

// ReconcilePrefix marks a failed record whose charge may have gone through at the
// provider: a reused customIdentifier, or a final attempt that timed out without an answer.
// These must be checked against the provider before anyone re-issues them.
const ReconcilePrefix = "needs_reconcile: "

// NeedsReconcile reports whether rec failed with an unknown provider outcome.
func NeedsReconcile(rec lockstore.Record) bool {
	return rec.Status == lockstore.StatusFailed && strings.HasPrefix(rec.LastError, ReconcilePrefix)
}

func failureReason(err error) string {
	if err == nil {
		return "unknown error"
	}
	msg := err.Error()
	switch {
	case errors.Is(err, provider.ErrDuplicate):
		msg = ReconcilePrefix + "provider reports customIdentifier already used: " + msg
	case errors.Is(err, context.DeadlineExceeded):
		msg = ReconcilePrefix + "last attempt timed out: " + msg
	}
	const maxReasonLen = 1000
	if len(msg) > maxReasonLen {
		msg = strings.ToValidUTF8(msg[:maxReasonLen], "")
	}
	return msg
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
