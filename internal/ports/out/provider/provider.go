package provider

//go:generate mockgen -source=provider.go -destination=../../../mocks/providermock/mock_provider.go -package=providermock

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// Token is a short-lived bearer credential issued by the provider's OAuth endpoint.
type Token struct {
	AccessToken string
	ExpiresIn   time.Duration
}

// CredentialSource fetches a fresh bearer token (client_credentials grant).
type CredentialSource interface {
	FetchToken(ctx context.Context) (Token, error)
}

// Operator is a mobile carrier as known to the provider.
type Operator struct {
	ID          int64
	Name        string
	CountryCode string
	// FixedAmounts lists the allowed denominations for fixed-denomination operators.
	FixedAmounts []decimal.Decimal
}

// OperatorDirectory looks up operators.
type OperatorDirectory interface {
	// DetectOperator auto-detects the operator serving phone, given in international digits without "+".
	DetectOperator(ctx context.Context, phone, countryCode string) (Operator, error)
	ListOperators(ctx context.Context, countryCode string) ([]Operator, error)
	// OperatorDenominations returns the provider-allowed amounts for a fixed-denomination operator.
	OperatorDenominations(ctx context.Context, operatorID int64) ([]decimal.Decimal, error)
}

// TopupRequest is one top-up call.
type TopupRequest struct {
	OperatorID     int64
	Amount         decimal.Decimal
	UseLocalAmount bool
	CountryCode    string
	Number         string
	// CustomIdentifier is the provider-side idempotency key; it equals the local key.
	CustomIdentifier string
}

// TopupResult is the provider's confirmation of a charge.
type TopupResult struct {
	TransactionID string
	Status        string
}

// Topups executes charges.
type Topups interface {
	Topup(ctx context.Context, req TopupRequest) (TopupResult, error)
}

// Client is the full provider surface.
type Client interface {
	OperatorDirectory
	Topups
}

// CodeDuplicateIdentifier is the provider error code for a reused customIdentifier.
const CodeDuplicateIdentifier = "DUPLICATED_CUSTOM_IDENTIFIER"

var (
	// ErrUnauthorized is matched by errors.Is for 401 responses; the token should be refreshed.
	ErrUnauthorized = errors.New("provider rejected credentials")

	// ErrDuplicate is matched by errors.Is when the provider reports the customIdentifier was already used.
	ErrDuplicate = errors.New("provider reports duplicate transaction")
)

// Error is a non-2xx provider response.
type Error struct {
	Op         string
	StatusCode int
	Code       string
	Message    string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.Code != "" {
		return fmt.Sprintf("%s: provider status=%d code=%s: %s", e.Op, e.StatusCode, e.Code, msg)
	}
	return fmt.Sprintf("%s: provider status=%d: %s", e.Op, e.StatusCode, msg)
}

func (e *Error) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	case ErrDuplicate:
		return e.Code == CodeDuplicateIdentifier || e.StatusCode == http.StatusConflict
	}
	return false
}

// Retryable reports whether the same request may succeed if sent again.
func (e *Error) Retryable() bool {
	if errors.Is(e, ErrDuplicate) {
		return false
	}
	switch {
	case e.StatusCode == http.StatusUnauthorized,
		e.StatusCode == http.StatusRequestTimeout,
		e.StatusCode == http.StatusTooManyRequests:
		return true
	case e.StatusCode >= 500:
		return true
	}
	return false
}

// IsRetryable classifies any error returned by a provider call. Errors that are not
// *Error (transport failures, timeouts) are retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Retryable()
	}
	return !errors.Is(err, context.Canceled)
}
