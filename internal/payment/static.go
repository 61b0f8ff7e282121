package payment

import (
	"context"
	"fmt"
	"sync"
)

// StaticVerifier answers from an in-memory table. Used for local runs and tests.
type StaticVerifier struct {
	mu       sync.RWMutex
	payments map[string]Payment
}

func NewStaticVerifier(payments ...Payment) *StaticVerifier {
	v := &StaticVerifier{payments: make(map[string]Payment, len(payments))}
	for _, p := range payments {
		v.payments[p.Reference] = p
	}
	return v
}

// Put registers or replaces a payment.
func (v *StaticVerifier) Put(p Payment) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.payments[p.Reference] = p
}

func (v *StaticVerifier) Verify(ctx context.Context, reference string) (Payment, error) {
	if err := ctx.Err(); err != nil {
		return Payment{}, err
	}
	v.mu.RLock()
	defer v.mu.RUnlock()

	p, ok := v.payments[reference]
	if !ok {
		return Payment{}, fmt.Errorf("%w: %s", ErrPaymentNotFound, reference)
	}
	return p, nil
}
