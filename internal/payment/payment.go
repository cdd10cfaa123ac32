// Package payment defines the contract with the payment authority that pays
// the upstream provider on the gateway's behalf.
package payment

import (
	"context"
	"errors"

	"clawcredit-gateway/internal/models"
)

// ErrUnexpectedResponse indicates the authority answered with something other than a JSON object.
var ErrUnexpectedResponse = errors.New("unexpected payment authority response")

// Authority authorizes and executes one payment per call and returns the raw
// result, which normally carries the merchant response. Implementations must
// not retry.
type Authority interface {
	Pay(ctx context.Context, intent models.PaymentIntent) (map[string]any, error)
}

// Error is a failure reported by the payment authority itself.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return e.Message
}
