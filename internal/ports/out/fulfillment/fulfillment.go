package fulfillment

import "context"

// Fulfiller marks an order fulfilled on the e-commerce platform after a successful recharge.
type Fulfiller interface {
	MarkFulfilled(ctx context.Context, orderID string) error
}

// Noop is used when no platform credentials are configured.
type Noop struct{}

func (Noop) MarkFulfilled(context.Context, string) error { return nil }
