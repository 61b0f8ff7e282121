package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Reconciler runs rating reconciliation on a fixed interval.
type Reconciler struct {
	aggregator *RatingAggregator
	interval   time.Duration
	logger     *zap.Logger
}

func NewReconciler(aggregator *RatingAggregator, interval time.Duration, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		aggregator: aggregator,
		interval:   interval,
		logger:     logger.Named("reconciler"),
	}
}

// Run sweeps once immediately and then every interval until ctx is done.
// A non-positive interval disables the loop.
func (r *Reconciler) Run(ctx context.Context) {
	if r.interval <= 0 {
		r.logger.Info("reconciler.disabled")
		return
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reconciler.stopped")
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *Reconciler) sweep(ctx context.Context) {
	if _, err := r.aggregator.Reconcile(ctx); err != nil && ctx.Err() == nil {
		r.logger.Error("reconciler.sweep.failed", zap.Error(err))
	}
}
