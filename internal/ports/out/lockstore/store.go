package lockstore

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Key is the stable idempotency key for one real-world recharge attempt.
type Key string

// Status is the lifecycle state of a Record.
//
//	absent -> locked  -> success | failed
//	absent -> pending -> locked | failed
//
// No transition returns a key to absent; records are never deleted.
type Status string

const (
	// StatusPending holds a claimed request until an operator confirms it (manual-confirmation mode).
	StatusPending Status = "pending"
	// StatusLocked means the side effect may be in flight.
	StatusLocked  Status = "locked"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool { return s == StatusSuccess || s == StatusFailed }

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusLocked, StatusSuccess, StatusFailed:
		return true
	}
	return false
}

var (
	// ErrNotFound indicates no record exists for the key.
	ErrNotFound = errors.New("idempotency record not found")

	// ErrInvalidTransition indicates a transition the lifecycle does not allow.
	ErrInvalidTransition = errors.New("invalid idempotency status transition")
)

// Record is the durable idempotency record.
type Record struct {
	Key        Key
	OrderID    string
	CheckoutID string
	Phone      string
	// Amount is the decimal amount as a string, kept verbatim for reconciliation.
	Amount           string
	BundleOperatorID int64
	ProductTitle     string

	Status        Status
	TransactionID string
	LastError     string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Outcome carries the details recorded alongside a transition.
type Outcome struct {
	TransactionID string
	LastError     string
}

// ListFilter narrows List results. Zero values mean "no filter".
type ListFilter struct {
	Status Status
	Limit  int
}

// List limits.
const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

// Store is the dedup/lock store guaranteeing at-most-once execution.
//
// Implementations must make TryLock atomic with respect to concurrent callers using
// the same key: exactly one caller observes true. Transition must be a compare-and-set
// on the current status.
type Store interface {
	// TryLock inserts rec iff no record exists for rec.Key. rec.Status must be
	// StatusLocked or StatusPending. It returns false when a record already exists in any state.
	TryLock(ctx context.Context, rec Record) (bool, error)

	// Transition moves key from `from` to `to` and records out. It returns false,
	// without error, when the record is missing or not currently in `from`.
	Transition(ctx context.Context, key Key, from, to Status, out Outcome) (bool, error)

	Get(ctx context.Context, key Key) (Record, error)

	// CountSuccessesSince counts success records for phone created at or after since.
	CountSuccessesSince(ctx context.Context, phone string, since time.Time) (int, error)

	// List returns records ordered by CreatedAt descending.
	List(ctx context.Context, f ListFilter) ([]Record, error)
}

// CanTransition reports whether from -> to is an allowed lifecycle edge.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusLocked || to == StatusFailed
	case StatusLocked:
		return to == StatusSuccess || to == StatusFailed
	}
	return false
}

// ValidateInsert checks a record is acceptable for TryLock.
func ValidateInsert(rec Record) error {
	if rec.Key == "" {
		return errors.New("empty idempotency key")
	}
	if rec.Status != StatusLocked && rec.Status != StatusPending {
		return fmt.Errorf("%w: insert with status %q", ErrInvalidTransition, rec.Status)
	}
	return nil
}

// ValidateTransition checks from -> to before a backend touches storage.
func ValidateTransition(from, to Status) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// MarkSuccess moves a locked record to success. Missing or non-locked records are left alone.
func MarkSuccess(ctx context.Context, s Store, key Key, transactionID string) error {
	_, err := s.Transition(ctx, key, StatusLocked, StatusSuccess, Outcome{TransactionID: transactionID})
	return err
}

// MarkFailed moves a locked record to failed. Missing or non-locked records are left alone.
func MarkFailed(ctx context.Context, s Store, key Key, reason string) error {
	_, err := s.Transition(ctx, key, StatusLocked, StatusFailed, Outcome{LastError: reason})
	return err
}

// NormalizeLimit applies DefaultListLimit to non-positive limits.
func (f ListFilter) NormalizeLimit() int {
	switch {
	case f.Limit <= 0:
		return DefaultListLimit
	case f.Limit > MaxListLimit:
		return MaxListLimit
	}
	return f.Limit
}
