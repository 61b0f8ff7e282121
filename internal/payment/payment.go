package payment

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusPending   Status = "pending"
	StatusFailed    Status = "failed"
	StatusRefunded  Status = "refunded"
	StatusUnknown   Status = "unknown"
)

// ErrPaymentNotFound is returned when the provider has no payment with the given reference.
var ErrPaymentNotFound = errors.New("payment not found")

// Payment is what the provider reports for a payment reference.
type Payment struct {
	Reference      string
	Status         Status
	AmountReceived decimal.Decimal
}

// Verifier looks up a payment at the provider.
type Verifier interface {
	Verify(ctx context.Context, reference string) (Payment, error)
}
