// Package payment defines the checkout-side view of an external payment provider.
package payment

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrDeclined is returned by a Gateway that refuses a charge.
var ErrDeclined = errors.New("payment declined")

// Charge is a request to collect Amount for one checkout receipt.
type Charge struct {
	CustomerID int64
	Receipt    string
	Amount     decimal.Decimal
}

// Gateway collects payment for customer orders. Implementations must be safe for concurrent use.
// Void reverses a successful Charge for the same receipt.
type Gateway interface {
	Charge(ctx context.Context, c Charge) error
	Void(ctx context.Context, c Charge) error
}

// Noop accepts every charge. It is used when no provider is configured.
type Noop struct{}

func (Noop) Charge(ctx context.Context, c Charge) error {
	if c.Amount.IsNegative() {
		return ErrDeclined
	}
	return ctx.Err()
}

func (Noop) Void(ctx context.Context, _ Charge) error {
	return ctx.Err()
}
