package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Leganyst/clinic-booking/internal/cache"
	"github.com/Leganyst/clinic-booking/internal/events"
	"github.com/Leganyst/clinic-booking/internal/model"
	"github.com/Leganyst/clinic-booking/internal/repository"
)

// Rating is the (count, mean) aggregate of a doctor's reviews.
type Rating struct {
	Count int64   `json:"ratingsCount"`
	Mean  float64 `json:"rating"`
}

// aggregateRating rounds the mean to one decimal place, halves away from zero.
func aggregateRating(stats repository.ReviewStats) Rating {
	if stats.ReviewCount == 0 {
		return Rating{}
	}
	mean := decimal.NewFromInt(stats.RatingSum).
		DivRound(decimal.NewFromInt(stats.ReviewCount), 1)
	return Rating{Count: stats.ReviewCount, Mean: mean.InexactFloat64()}
}

// AggregationFailure reports a recomputation that did not complete.
// It is handed back for observation and never fails the review mutation
// that triggered it.
type AggregationFailure struct {
	DoctorID uuid.UUID
	Err      error
}

func (f *AggregationFailure) Error() string {
	return fmt.Sprintf("recompute rating of doctor %s: %v", f.DoctorID, f.Err)
}

func (f *AggregationFailure) Unwrap() error {
	return f.Err
}

// ReconcileReport summarises one reconciliation sweep.
type ReconcileReport struct {
	Checked    int                  `json:"checked"`
	Recomputed []uuid.UUID          `json:"recomputed"`
	Failed     []AggregationFailure `json:"-"`
}

// RatingAggregator keeps the derived rating fields of doctors in line with
// their reviews. Every call recomputes from the full review set.
type RatingAggregator struct {
	store    *repository.Store
	profiles cache.Store[DoctorProfile]
	audit    *auditor
	logger   *zap.Logger
}

func NewRatingAggregator(
	store *repository.Store,
	profiles cache.Store[DoctorProfile],
	publisher events.Publisher,
	logger *zap.Logger,
) *RatingAggregator {
	if profiles == nil {
		profiles = cache.Noop[DoctorProfile]{}
	}
	return &RatingAggregator{
		store:    store,
		profiles: profiles,
		audit:    newAuditor(publisher, logger),
		logger:   logger.Named("rating"),
	}
}

// Recompute aggregates the doctor's reviews and persists the result in a
// single update that also clears the stale flag.
func (a *RatingAggregator) Recompute(ctx context.Context, doctorID uuid.UUID) (Rating, error) {
	stats, err := a.store.Reviews.AggregateByDoctor(ctx, doctorID)
	if err != nil {
		return Rating{}, fmt.Errorf("aggregate reviews: %w", err)
	}
	r := aggregateRating(stats)

	if err := a.store.Doctors.UpdateRating(ctx, doctorID, r.Mean, r.Count); err != nil {
		return Rating{}, notFound("doctor", err)
	}
	a.profiles.Invalidate(ctx, doctorID)

	return r, nil
}

// Refresh recomputes after a review mutation and swallows the error.
// On failure the doctor is flagged stale for the reconciler and the failure
// is returned for the caller to observe.
func (a *RatingAggregator) Refresh(ctx context.Context, doctorID uuid.UUID) *AggregationFailure {
	r, err := a.Recompute(ctx, doctorID)
	if err == nil {
		a.logger.Debug("rating.recompute.ok",
			zap.Stringer("doctorId", doctorID),
			zap.Int64("count", r.Count),
			zap.Float64("mean", r.Mean),
		)
		return nil
	}

	failure := &AggregationFailure{DoctorID: doctorID, Err: err}
	a.logger.Error("rating.recompute.failed",
		zap.Stringer("doctorId", doctorID),
		zap.Error(err),
	)

	if err := a.store.Doctors.MarkRatingStale(ctx, doctorID); err != nil {
		a.logger.Warn("rating.mark_stale.failed", zap.Stringer("doctorId", doctorID), zap.Error(err))
	}
	a.profiles.Invalidate(ctx, doctorID)

	ev := &model.Event{EventType: model.EventTypeRatingRecomputeFailed, DoctorID: ptr(doctorID)}
	data := map[string]any{"error": err.Error()}
	if err := a.audit.record(ctx, a.store.Events, ev, data); err != nil {
		a.logger.Warn("rating.audit.failed", zap.Stringer("doctorId", doctorID), zap.Error(err))
	} else {
		a.audit.publish(ctx, ev, data)
	}

	return failure
}

// Reconcile recomputes every doctor that is flagged stale or whose stored
// aggregate differs from the live one.
func (a *RatingAggregator) Reconcile(ctx context.Context) (ReconcileReport, error) {
	started := time.Now()

	stored, err := a.store.Doctors.ListRatings(ctx)
	if err != nil {
		return ReconcileReport{}, fmt.Errorf("list doctor ratings: %w", err)
	}
	all, err := a.store.Reviews.AggregateAll(ctx)
	if err != nil {
		return ReconcileReport{}, fmt.Errorf("aggregate reviews: %w", err)
	}
	live := make(map[uuid.UUID]Rating, len(all))
	for _, s := range all {
		live[s.DoctorID] = aggregateRating(s)
	}

	report := ReconcileReport{Checked: len(stored), Recomputed: []uuid.UUID{}}
	for _, d := range stored {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		want := live[d.ID]
		if !d.RatingStale && d.RatingsCount == want.Count && sameMean(d.Rating, want.Mean) {
			continue
		}

		r, err := a.Recompute(ctx, d.ID)
		if err != nil {
			a.logger.Error("rating.reconcile.failed", zap.Stringer("doctorId", d.ID), zap.Error(err))
			report.Failed = append(report.Failed, AggregationFailure{DoctorID: d.ID, Err: err})
			continue
		}
		report.Recomputed = append(report.Recomputed, d.ID)

		ev := &model.Event{EventType: model.EventTypeRatingReconciled, DoctorID: ptr(d.ID)}
		data := map[string]any{
			"previousRating": d.Rating,
			"previousCount":  d.RatingsCount,
			"rating":         r.Mean,
			"ratingsCount":   r.Count,
		}
		if err := a.audit.record(ctx, a.store.Events, ev, data); err != nil {
			a.logger.Warn("rating.audit.failed", zap.Stringer("doctorId", d.ID), zap.Error(err))
			continue
		}
		a.audit.publish(ctx, ev, data)
	}

	a.logger.Info("rating.reconcile.done",
		zap.Int("checked", report.Checked),
		zap.Int("recomputed", len(report.Recomputed)),
		zap.Int("failed", len(report.Failed)),
		zap.Duration("took", time.Since(started)),
	)
	return report, nil
}

// sameMean compares stored and computed means at the stored precision.
func sameMean(a, b float64) bool {
	return decimal.NewFromFloat(a).Round(1).Equal(decimal.NewFromFloat(b).Round(1))
}
