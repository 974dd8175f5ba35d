package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// RechargeRequest is the recharge derived from one paid order.
// It is ephemeral: built per webhook call and never persisted as-is.
type RechargeRequest struct {
	OrderID    string
	CheckoutID string

	Phone  Phone
	Amount decimal.Decimal

	// ProductTitle and Tags come from the matched line item and are kept for
	// classification and audit only.
	ProductTitle string
	Tags         []string

	// BundleOperatorID is the pinned provider operator for fixed-denomination bundle
	// products. Zero means an open-amount top-up.
	BundleOperatorID int64
}

// IsBundle reports whether the request is for a fixed-denomination bundle product.
func (r RechargeRequest) IsBundle() bool { return r.BundleOperatorID != 0 }

// Validate enforces the invariants every request must meet before any side effect.
func (r RechargeRequest) Validate(c Country) error {
	if !r.Amount.IsPositive() {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, r.Amount.String())
	}
	if _, err := c.Normalize(string(r.Phone)); err != nil {
		return err
	}
	if r.OrderID == "" && r.CheckoutID == "" {
		return fmt.Errorf("missing order id")
	}
	return nil
}
