package orders

import (
	"errors"
	"fmt"
)

// ErrIgnored matches every IgnoredError. Ignored orders are acknowledged, never retried.
var ErrIgnored = errors.New("order ignored")

const (
	ReasonNotPaid        = "not_paid"
	ReasonNoRechargeItem = "no_recharge_item"
)

type IgnoredError struct {
	Reason string
}

func (e *IgnoredError) Error() string { return "order ignored: " + e.Reason }

func (e *IgnoredError) Is(target error) bool { return target == ErrIgnored }

// ValidationError reports order data that cannot produce a valid recharge.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid %s: %s: %v", e.Field, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }
