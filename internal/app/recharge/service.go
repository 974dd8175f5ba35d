// Package recharge runs the idempotent webhook-to-top-up pipeline.
package recharge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/lakay-digital/recharge-relay/internal/app/operators"
	"github.com/lakay-digital/recharge-relay/internal/app/orders"
	"github.com/lakay-digital/recharge-relay/internal/app/signature"
	"github.com/lakay-digital/recharge-relay/internal/domain"
	platformclock "github.com/lakay-digital/recharge-relay/internal/platform/clock"
	"github.com/lakay-digital/recharge-relay/internal/ports/out/clock"
	"github.com/lakay-digital/recharge-relay/internal/ports/out/fulfillment"
	"github.com/lakay-digital/recharge-relay/internal/ports/out/lockstore"
)

// Mode selects what a valid webhook does after claiming its key.
type Mode string

const (
	ModeAutoExecute Mode = "auto-execute"
	// ModeManualConfirmation holds claimed requests as pending until an operator confirms them.
	ModeManualConfirmation Mode = "manual-confirmation"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case "":
		return ModeManualConfirmation, nil
	case ModeAutoExecute, ModeManualConfirmation:
		return m, nil
	}
	return "", fmt.Errorf("unknown recharge mode %q", s)
}

// Outcome is the acknowledgement status reported to the platform.
type Outcome string

const (
	OutcomeProcessed           Outcome = "processed"
	OutcomeIgnored             Outcome = "ignored"
	OutcomeInvalid             Outcome = "invalid"
	OutcomeDuplicate           Outcome = "duplicate"
	OutcomePendingConfirmation Outcome = "pending_confirmation"
	OutcomeFailed              Outcome = "failed"
)

const ReasonRateLimited = "rate_limited"

type Result struct {
	Status        Outcome
	Reason        string
	Key           lockstore.Key
	OrderID       string
	TransactionID string
}

type OperatorResolver interface {
	Resolve(ctx context.Context, req domain.RechargeRequest) (operators.Resolution, error)
}

type Charger interface {
	Execute(ctx context.Context, o TopupOrder) (string, error)
}

type Config struct {
	Mode          Mode
	KeyPolicy     KeyPolicy
	WebhookSecret string
	Country       domain.Country
	// MaxPerPhonePerDay caps successful recharges per phone over a rolling 24h. Zero disables it.
	MaxPerPhonePerDay int
}

type Deps struct {
	Interpreter *orders.Interpreter
	Store       lockstore.Store
	Resolver    OperatorResolver
	Charger     Charger
	Fulfiller   fulfillment.Fulfiller
	Clock       clock.Clock
	Logger      *zap.Logger
}

type Service struct {
	cfg         Config
	interpreter *orders.Interpreter
	store       lockstore.Store
	resolver    OperatorResolver
	charger     Charger
	fulfiller   fulfillment.Fulfiller
	clock       clock.Clock
	log         *zap.Logger
}

func NewService(cfg Config, deps Deps) *Service {
	if cfg.Mode == "" {
		cfg.Mode = ModeManualConfirmation
	}
	if cfg.KeyPolicy == "" {
		cfg.KeyPolicy = KeyPolicyOrder
	}
	if cfg.Country.Code == "" {
		cfg.Country = domain.Haiti()
	}
	if deps.Interpreter == nil {
		deps.Interpreter = orders.New(orders.Config{Country: cfg.Country})
	}
	if deps.Fulfiller == nil {
		deps.Fulfiller = fulfillment.Noop{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = platformclock.NewSystemClock()
	}
	return &Service{
		cfg:         cfg,
		interpreter: deps.Interpreter,
		store:       deps.Store,
		resolver:    deps.Resolver,
		charger:     deps.Charger,
		fulfiller:   deps.Fulfiller,
		clock:       deps.Clock,
		log:         deps.Logger,
	}
}

func (s *Service) Mode() Mode { return s.cfg.Mode }

// HandleWebhook verifies, interprets and, when eligible, claims and executes one delivery.
//
// Returned errors are ErrInvalidSignature, ErrMalformedPayload, or a store failure that
// occurred before the key was claimed; every other outcome is a Result to acknowledge.
func (s *Service) HandleWebhook(ctx context.Context, rawBody []byte, providedSignature string) (Result, error) {
	if !signature.Verify(rawBody, providedSignature, s.cfg.WebhookSecret) {
		return Result{}, ErrInvalidSignature
	}

	order, err := orders.Decode(rawBody)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	log := s.log.With(zap.String("order_id", string(order.ID)))

	req, err := s.interpreter.Extract(order)
	if err != nil {
		var ie *orders.IgnoredError
		if errors.As(err, &ie) {
			log.Info("order ignored", zap.String("reason", ie.Reason))
			return Result{Status: OutcomeIgnored, Reason: ie.Reason, OrderID: string(order.ID)}, nil
		}
		var ve *orders.ValidationError
		if errors.As(err, &ve) {
			log.Warn("order rejected", zap.String("field", ve.Field), zap.Error(err))
			return Result{Status: OutcomeInvalid, Reason: ve.Error(), OrderID: string(order.ID)}, nil
		}
		return Result{}, err
	}

	key, err := DeriveKey(s.cfg.KeyPolicy, req)
	if err != nil {
		return Result{Status: OutcomeInvalid, Reason: err.Error(), OrderID: req.OrderID}, nil
	}
	log = log.With(zap.String("idempotency_key", string(key)), zap.String("phone_source", s.interpreter.PhoneSource(order)))
	res := Result{Key: key, OrderID: req.OrderID}

	n, limited, err := s.rateLimited(ctx, req.Phone)
	if err != nil {
		return Result{}, err
	}
	if limited {
		log.Warn("recharge rate limited", zap.Int("successes_24h", n))
		res.Status, res.Reason = OutcomeIgnored, ReasonRateLimited
		return res, nil
	}

	status := lockstore.StatusLocked
	if s.cfg.Mode == ModeManualConfirmation {
		status = lockstore.StatusPending
	}
	claimed, err := s.store.TryLock(ctx, recordFor(key, req, status, s.clock.Now()))
	if err != nil {
		return Result{}, fmt.Errorf("claim idempotency key: %w", err)
	}
	if !claimed {
		log.Info("duplicate delivery acknowledged")
		res.Status = OutcomeDuplicate
		return res, nil
	}

	// From here the key is claimed and must reach a terminal status even if the
	// platform hangs up; only the per-attempt timeout bounds provider calls.
	ctx = context.WithoutCancel(ctx)
	if s.cfg.Mode == ModeManualConfirmation {
		if req.IsBundle() {
			if reason, rejected := s.rejectUnsellableBundle(ctx, log, key, req); rejected {
				res.Status, res.Reason = OutcomeFailed, reason
				return res, nil
			}
		}
		log.Info("recharge held for confirmation")
		res.Status = OutcomePendingConfirmation
		return res, nil
	}
	return s.run(ctx, log, key, req), nil
}

// rateLimited counts the phone's successful recharges over the last 24h. The count and
// the later claim are not atomic, so concurrent orders for one phone can overshoot the cap.
func (s *Service) rateLimited(ctx context.Context, phone domain.Phone) (int, bool, error) {
	if s.cfg.MaxPerPhonePerDay <= 0 {
		return 0, false, nil
	}
	since := s.clock.Now().Add(-24 * time.Hour)
	n, err := s.store.CountSuccessesSince(ctx, string(phone), since)
	if err != nil {
		return 0, false, fmt.Errorf("rate limit lookup: %w", err)
	}
	return n, n >= s.cfg.MaxPerPhonePerDay, nil
}

// rejectUnsellableBundle fails a pending bundle whose amount the operator does not sell,
// so it never reaches the confirmation queue. Lookup errors leave it pending.
func (s *Service) rejectUnsellableBundle(ctx context.Context, log *zap.Logger, key lockstore.Key, req domain.RechargeRequest) (string, bool) {
	_, err := s.resolver.Resolve(ctx, req)
	if err == nil {
		return "", false
	}
	if !errors.Is(err, operators.ErrDenominationNotAllowed) {
		log.Warn("bundle denomination check failed; holding for confirmation", zap.Error(err))
		return "", false
	}
	ok, terr := s.store.Transition(ctx, key, lockstore.StatusPending, lockstore.StatusFailed, lockstore.Outcome{LastError: err.Error()})
	if terr != nil {
		log.Error("failed to record bundle rejection", zap.Error(terr))
		return "", false
	}
	if !ok {
		return "", false
	}
	log.Warn("bundle rejected before confirmation", zap.Error(err))
	return err.Error(), true
}

// Confirm moves a pending record to locked and executes it. Only one caller can win the
// pending -> locked transition; the rest get a 409.
func (s *Service) Confirm(ctx context.Context, key lockstore.Key) (Result, error) {
	rec, err := s.store.Get(ctx, key)
	if err != nil {
		return Result{}, s.mapLookupErr(err)
	}
	req, err := requestFromRecord(rec)
	if err != nil {
		return Result{}, err
	}
	if rec.Status == lockstore.StatusPending {
		n, limited, err := s.rateLimited(ctx, req.Phone)
		if err != nil {
			return Result{}, err
		}
		if limited {
			return Result{}, &Error{
				Status:  409,
				Code:    "RATE_LIMITED",
				Message: "phone reached its daily recharge limit",
				Details: map[string]any{"successes24h": n, "limit": s.cfg.MaxPerPhonePerDay},
			}
		}
	}
	ok, err := s.store.Transition(ctx, key, lockstore.StatusPending, lockstore.StatusLocked, lockstore.Outcome{})
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return Result{}, notPending(s.currentStatus(ctx, key, rec.Status))
	}
	log := s.log.With(zap.String("order_id", rec.OrderID), zap.String("idempotency_key", string(key)))
	log.Info("recharge confirmed")
	return s.run(context.WithoutCancel(ctx), log, key, req), nil
}

// Reject moves a pending record to failed without charging.
func (s *Service) Reject(ctx context.Context, key lockstore.Key, reason string) (lockstore.Record, error) {
	rec, err := s.store.Get(ctx, key)
	if err != nil {
		return lockstore.Record{}, s.mapLookupErr(err)
	}
	msg := "rejected by operator"
	if reason != "" {
		msg += ": " + reason
	}
	ok, err := s.store.Transition(ctx, key, lockstore.StatusPending, lockstore.StatusFailed, lockstore.Outcome{LastError: msg})
	if err != nil {
		return lockstore.Record{}, err
	}
	if !ok {
		return lockstore.Record{}, notPending(s.currentStatus(ctx, key, rec.Status))
	}
	s.log.Info("recharge rejected", zap.String("order_id", rec.OrderID), zap.String("idempotency_key", string(key)))
	return s.store.Get(ctx, key)
}

func (s *Service) Get(ctx context.Context, key lockstore.Key) (lockstore.Record, error) {
	rec, err := s.store.Get(ctx, key)
	if err != nil {
		return lockstore.Record{}, s.mapLookupErr(err)
	}
	return rec, nil
}

func (s *Service) List(ctx context.Context, f lockstore.ListFilter) ([]lockstore.Record, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, &Error{Status: 422, Code: "VALIDATION_ERROR", Message: "invalid status filter", Details: map[string]any{"status": string(f.Status)}}
	}
	return s.store.List(ctx, f)
}

// run resolves and charges a locked key, driving it to a terminal status. ctx must not
// carry the caller's cancellation.
func (s *Service) run(ctx context.Context, log *zap.Logger, key lockstore.Key, req domain.RechargeRequest) Result {
	res := Result{Key: key, OrderID: req.OrderID}

	resolution, err := s.resolver.Resolve(ctx, req)
	if err != nil {
		if markErr := lockstore.MarkFailed(ctx, s.store, key, err.Error()); markErr != nil {
			log.Error("failed to record resolution failure", zap.Error(markErr))
		}
		log.Warn("operator resolution failed", zap.Error(err))
		res.Status, res.Reason = OutcomeFailed, err.Error()
		return res
	}

	txID, err := s.charger.Execute(ctx, TopupOrder{
		Key:         key,
		OrderID:     req.OrderID,
		OperatorID:  resolution.OperatorID,
		Amount:      req.Amount,
		Phone:       req.Phone,
		CountryCode: s.cfg.Country.Code,
	})
	if err != nil {
		res.Status, res.Reason = OutcomeFailed, err.Error()
		return res
	}
	res.Status, res.TransactionID = OutcomeProcessed, txID

	if req.OrderID != "" {
		if err := s.fulfiller.MarkFulfilled(ctx, req.OrderID); err != nil {
			log.Warn("mark fulfilled failed", zap.Error(err))
		}
	}
	return res
}

func (s *Service) mapLookupErr(err error) error {
	if errors.Is(err, lockstore.ErrNotFound) {
		return &Error{Status: 404, Code: "RECHARGE_NOT_FOUND", Message: "recharge not found"}
	}
	return err
}

func (s *Service) currentStatus(ctx context.Context, key lockstore.Key, fallback lockstore.Status) lockstore.Status {
	if rec, err := s.store.Get(ctx, key); err == nil {
		return rec.Status
	}
	return fallback
}

func notPending(status lockstore.Status) error {
	return &Error{
		Status:  409,
		Code:    "RECHARGE_NOT_PENDING",
		Message: "recharge is not pending confirmation",
		Details: map[string]any{"status": string(status)},
	}
}

func recordFor(key lockstore.Key, req domain.RechargeRequest, status lockstore.Status, now time.Time) lockstore.Record {
	return lockstore.Record{
		Key:              key,
		OrderID:          req.OrderID,
		CheckoutID:       req.CheckoutID,
		Phone:            string(req.Phone),
		Amount:           req.Amount.String(),
		BundleOperatorID: req.BundleOperatorID,
		ProductTitle:     req.ProductTitle,
		Status:           status,
		CreatedAt:        now,
	}
}

func requestFromRecord(rec lockstore.Record) (domain.RechargeRequest, error) {
	amount, err := decimal.NewFromString(rec.Amount)
	if err != nil {
		return domain.RechargeRequest{}, fmt.Errorf("stored amount %q: %w", rec.Amount, err)
	}
	return domain.RechargeRequest{
		OrderID:          rec.OrderID,
		CheckoutID:       rec.CheckoutID,
		Phone:            domain.Phone(rec.Phone),
		Amount:           amount,
		ProductTitle:     rec.ProductTitle,
		BundleOperatorID: rec.BundleOperatorID,
	}, nil
}
