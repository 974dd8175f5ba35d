package recharge

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSignature is returned before any parsing when the body signature does not verify.
	ErrInvalidSignature = errors.New("invalid webhook signature")

	// ErrMalformedPayload means the body is not a decodable order.
	ErrMalformedPayload = errors.New("malformed webhook payload")
)

// Error is an application-layer error that can be mapped to an HTTP response.
type Error struct {
	Status  int
	Code    string
	Message string
	Details map[string]any
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	return e.Code
}

// ChargeError is a terminal failure of the top-up call after the retry policy gave up.
type ChargeError struct {
	Attempts int
	Err      error
}

func (e *ChargeError) Error() string {
	return fmt.Sprintf("charge failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *ChargeError) Unwrap() error { return e.Err }
