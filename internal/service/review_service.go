package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Leganyst/clinic-booking/internal/calendar"
	"github.com/Leganyst/clinic-booking/internal/events"
	"github.com/Leganyst/clinic-booking/internal/model"
	"github.com/Leganyst/clinic-booking/internal/repository"
)

type CreateReviewRequest struct {
	DoctorID uuid.UUID
	Rating   int
	Comment  string
}

// UpdateReviewRequest changes only the fields that are set.
type UpdateReviewRequest struct {
	Rating  *int
	Comment *string
}

// ReviewOutcome is the result of a review mutation. Failure is set when the
// doctor's rating could not be recomputed; the mutation itself still stands.
type ReviewOutcome struct {
	Review  *model.Review
	Failure *AggregationFailure
}

type ReviewService struct {
	store      *repository.Store
	aggregator *RatingAggregator
	audit      *auditor
	logger     *zap.Logger
}

func NewReviewService(
	store *repository.Store,
	aggregator *RatingAggregator,
	publisher events.Publisher,
	logger *zap.Logger,
) *ReviewService {
	logger = logger.Named("reviews")
	return &ReviewService{
		store:      store,
		aggregator: aggregator,
		audit:      newAuditor(publisher, logger),
		logger:     logger,
	}
}

func validRating(r int) error {
	if r < model.MinRating || r > model.MaxRating {
		return invalid("rating", "must be between 1 and 5")
	}
	return nil
}

func (s *ReviewService) patientOf(actor Actor) (uuid.UUID, error) {
	if !actor.Is(model.RolePatient) {
		return uuid.Nil, fmt.Errorf("%w: only patients can do this", ErrForbidden)
	}
	if actor.PatientID == nil {
		return uuid.Nil, fmt.Errorf("patient profile: %w", ErrNotFound)
	}
	return *actor.PatientID, nil
}

// Create stores the patient's only review of a doctor and refreshes the
// doctor's rating.
func (s *ReviewService) Create(ctx context.Context, actor Actor, req CreateReviewRequest) (ReviewOutcome, error) {
	if req.DoctorID == uuid.Nil {
		return ReviewOutcome{}, invalid("doctor", "doctor id is required")
	}
	if err := validRating(req.Rating); err != nil {
		return ReviewOutcome{}, err
	}
	patientID, err := s.patientOf(actor)
	if err != nil {
		return ReviewOutcome{}, err
	}

	doctor, err := s.store.Doctors.GetByID(ctx, req.DoctorID)
	if err != nil {
		return ReviewOutcome{}, notFound("doctor", err)
	}
	if doctor.Status != model.DoctorStatusApproved {
		return ReviewOutcome{}, invalid("doctor", "cannot review unapproved doctors")
	}

	review := &model.Review{
		PatientID: patientID,
		DoctorID:  req.DoctorID,
		Rating:    req.Rating,
		Comment:   req.Comment,
	}
	ev := &model.Event{EventType: model.EventTypeReviewCreated, UserID: ptr(actor.UserID), DoctorID: ptr(req.DoctorID)}
	data := map[string]any{"rating": req.Rating}

	err = s.store.Transaction(ctx, func(tx *repository.Store) error {
		if err := tx.Reviews.Create(ctx, review); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrReviewExists
			}
			return err
		}
		data["reviewId"] = review.ID
		return s.audit.record(ctx, tx.Events, ev, data)
	})
	if err != nil {
		return ReviewOutcome{}, err
	}
	s.audit.publish(ctx, ev, data)

	return ReviewOutcome{Review: review, Failure: s.aggregator.Refresh(ctx, req.DoctorID)}, nil
}

// Get is open to the author, the reviewed doctor and staff.
func (s *ReviewService) Get(ctx context.Context, actor Actor, id uuid.UUID) (*model.Review, error) {
	r, err := s.store.Reviews.GetByID(ctx, id)
	if err != nil {
		return nil, notFound("review", err)
	}
	if !actor.IsStaff() && !actor.isPatient(r.PatientID) && !actor.isDoctor(r.DoctorID) {
		return nil, ErrForbidden
	}
	return r, nil
}

// Update lets the author change the rating or the comment.
func (s *ReviewService) Update(ctx context.Context, actor Actor, id uuid.UUID, req UpdateReviewRequest) (ReviewOutcome, error) {
	patientID, err := s.patientOf(actor)
	if err != nil {
		return ReviewOutcome{}, err
	}

	updates := map[string]any{}
	if req.Rating != nil {
		if err := validRating(*req.Rating); err != nil {
			return ReviewOutcome{}, err
		}
		updates["rating"] = *req.Rating
	}
	if req.Comment != nil {
		updates["comment"] = *req.Comment
	}
	if len(updates) == 0 {
		return ReviewOutcome{}, invalid("", "no valid fields to update")
	}

	review, err := s.store.Reviews.GetByID(ctx, id)
	if err != nil {
		return ReviewOutcome{}, notFound("review", err)
	}
	if review.PatientID != patientID {
		return ReviewOutcome{}, fmt.Errorf("%w: you can only update your own reviews", ErrForbidden)
	}

	ev := &model.Event{EventType: model.EventTypeReviewUpdated, UserID: ptr(actor.UserID), DoctorID: ptr(review.DoctorID)}
	data := map[string]any{"reviewId": review.ID, "previousRating": review.Rating}
	err = s.store.Transaction(ctx, func(tx *repository.Store) error {
		if err := tx.Reviews.Update(ctx, id, updates); err != nil {
			return notFound("review", err)
		}
		return s.audit.record(ctx, tx.Events, ev, data)
	})
	if err != nil {
		return ReviewOutcome{}, err
	}
	s.audit.publish(ctx, ev, data)

	failure := s.aggregator.Refresh(ctx, review.DoctorID)

	updated, err := s.store.Reviews.GetByID(ctx, id)
	if err != nil {
		return ReviewOutcome{}, notFound("review", err)
	}
	return ReviewOutcome{Review: updated, Failure: failure}, nil
}

// Delete is open to the author and staff. The rating refresh uses the doctor
// captured before the row is gone.
func (s *ReviewService) Delete(ctx context.Context, actor Actor, id uuid.UUID) (ReviewOutcome, error) {
	review, err := s.store.Reviews.GetByID(ctx, id)
	if err != nil {
		return ReviewOutcome{}, notFound("review", err)
	}
	if !actor.IsStaff() && !(actor.Is(model.RolePatient) && actor.isPatient(review.PatientID)) {
		return ReviewOutcome{}, ErrForbidden
	}

	doctorID := review.DoctorID
	ev := &model.Event{EventType: model.EventTypeReviewDeleted, UserID: ptr(actor.UserID), DoctorID: ptr(doctorID)}
	data := map[string]any{"reviewId": review.ID, "rating": review.Rating}
	err = s.store.Transaction(ctx, func(tx *repository.Store) error {
		if err := tx.Reviews.Delete(ctx, id); err != nil {
			return notFound("review", err)
		}
		return s.audit.record(ctx, tx.Events, ev, data)
	})
	if err != nil {
		return ReviewOutcome{}, err
	}
	s.audit.publish(ctx, ev, data)

	return ReviewOutcome{Review: review, Failure: s.aggregator.Refresh(ctx, doctorID)}, nil
}

func (s *ReviewService) ListAll(ctx context.Context, actor Actor, page calendar.PageRequest) (calendar.Page[model.Review], error) {
	if !actor.IsStaff() {
		return calendar.Page[model.Review]{}, fmt.Errorf("%w: admin or owner role required", ErrForbidden)
	}
	items, total, err := s.store.Reviews.List(ctx, page.Limit, page.Offset())
	if err != nil {
		return calendar.Page[model.Review]{}, fmt.Errorf("list reviews: %w", err)
	}
	return calendar.NewPage(items, total, page), nil
}

// ListForDoctor returns the doctor's reviews with the stored aggregate.
func (s *ReviewService) ListForDoctor(
	ctx context.Context,
	doctorID uuid.UUID,
	page calendar.PageRequest,
) (calendar.Page[model.Review], Rating, error) {
	doctor, err := s.store.Doctors.GetByID(ctx, doctorID)
	if err != nil {
		return calendar.Page[model.Review]{}, Rating{}, notFound("doctor", err)
	}
	items, total, err := s.store.Reviews.ListByDoctor(ctx, doctorID, page.Limit, page.Offset())
	if err != nil {
		return calendar.Page[model.Review]{}, Rating{}, fmt.Errorf("list doctor reviews: %w", err)
	}
	return calendar.NewPage(items, total, page), Rating{Count: doctor.RatingsCount, Mean: doctor.Rating}, nil
}

func (s *ReviewService) ListMine(ctx context.Context, actor Actor, page calendar.PageRequest) (calendar.Page[model.Review], error) {
	patientID, err := s.patientOf(actor)
	if err != nil {
		return calendar.Page[model.Review]{}, err
	}
	items, total, err := s.store.Reviews.ListByPatient(ctx, patientID, page.Limit, page.Offset())
	if err != nil {
		return calendar.Page[model.Review]{}, fmt.Errorf("list my reviews: %w", err)
	}
	return calendar.NewPage(items, total, page), nil
}

// Reconcile runs a rating reconciliation sweep on demand. Staff only.
func (s *ReviewService) Reconcile(ctx context.Context, actor Actor) (ReconcileReport, error) {
	if !actor.IsStaff() {
		return ReconcileReport{}, ErrForbidden
	}
	return s.aggregator.Reconcile(ctx)
}
