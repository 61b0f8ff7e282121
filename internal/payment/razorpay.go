package payment

import (
	"context"
	"fmt"
	"strings"

	razorpay "github.com/razorpay/razorpay-go"
	"github.com/shopspring/decimal"
)

// paymentFetcher is the part of the Razorpay SDK the verifier needs.
type paymentFetcher interface {
	Fetch(paymentID string, queryParams map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

// RazorpayVerifier checks payments through the Razorpay payments API.
type RazorpayVerifier struct {
	payments paymentFetcher
}

func NewRazorpayVerifier(keyID, keySecret string) *RazorpayVerifier {
	client := razorpay.NewClient(keyID, keySecret)
	return &RazorpayVerifier{payments: client.Payment}
}

func (v *RazorpayVerifier) Verify(ctx context.Context, reference string) (Payment, error) {
	if err := ctx.Err(); err != nil {
		return Payment{}, err
	}
	if strings.TrimSpace(reference) == "" {
		return Payment{}, ErrPaymentNotFound
	}

	body, err := v.payments.Fetch(reference, nil, nil)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "does not exist") {
			return Payment{}, fmt.Errorf("%w: %s", ErrPaymentNotFound, reference)
		}
		return Payment{}, fmt.Errorf("razorpay fetch payment: %w", err)
	}

	p := Payment{
		Reference: reference,
		Status:    mapRazorpayStatus(body["status"]),
	}

	// Razorpay reports amounts in the smallest currency unit.
	switch amount := body["amount"].(type) {
	case float64:
		p.AmountReceived = decimal.NewFromFloat(amount).Shift(-2)
	case string:
		d, err := decimal.NewFromString(amount)
		if err != nil {
			return Payment{}, fmt.Errorf("razorpay amount %q: %w", amount, err)
		}
		p.AmountReceived = d.Shift(-2)
	}
	if refunded, ok := body["amount_refunded"].(float64); ok && refunded > 0 {
		p.AmountReceived = p.AmountReceived.Sub(decimal.NewFromFloat(refunded).Shift(-2))
	}

	return p, nil
}

func mapRazorpayStatus(raw any) Status {
	s, _ := raw.(string)
	switch s {
	case "captured":
		return StatusSucceeded
	case "created", "authorized":
		return StatusPending
	case "failed":
		return StatusFailed
	case "refunded":
		return StatusRefunded
	default:
		return StatusUnknown
	}
}
