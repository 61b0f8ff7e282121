package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Leganyst/clinic-booking/internal/model"
)

// ReviewStats is the raw aggregate of one doctor's reviews.
type ReviewStats struct {
	DoctorID    uuid.UUID
	ReviewCount int64
	RatingSum   int64
}

type ReviewRepository interface {
	Create(ctx context.Context, review *model.Review) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Review, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]model.Review, int64, error)
	ListByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]model.Review, int64, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]model.Review, int64, error)
	// DoctorIDsByPatient lists the doctors a patient has reviewed.
	DoctorIDsByPatient(ctx context.Context, patientID uuid.UUID) ([]uuid.UUID, error)
	DeleteByPatient(ctx context.Context, patientID uuid.UUID) error
	DeleteByDoctor(ctx context.Context, doctorID uuid.UUID) error
	// AggregateByDoctor counts and sums ratings of one doctor in the store.
	AggregateByDoctor(ctx context.Context, doctorID uuid.UUID) (ReviewStats, error)
	// AggregateAll returns stats for every doctor that has at least one review.
	AggregateAll(ctx context.Context) ([]ReviewStats, error)
}

type GormReviewRepository struct {
	db *gorm.DB
}

func NewGormReviewRepository(db *gorm.DB) *GormReviewRepository {
	return &GormReviewRepository{db: db}
}

func (r *GormReviewRepository) Create(ctx context.Context, review *model.Review) error {
	return r.db.WithContext(ctx).Create(review).Error
}

func (r *GormReviewRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Review, error) {
	var rv model.Review
	if err := r.db.WithContext(ctx).First(&rv, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &rv, nil
}

func (r *GormReviewRepository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	res := r.db.WithContext(ctx).Model(&model.Review{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *GormReviewRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Delete(&model.Review{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *GormReviewRepository) List(ctx context.Context, limit, offset int) ([]model.Review, int64, error) {
	return r.list(r.db.WithContext(ctx).Model(&model.Review{}), limit, offset)
}

func (r *GormReviewRepository) ListByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]model.Review, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.Review{}).Where("doctor_id = ?", doctorID)
	return r.list(q, limit, offset)
}

func (r *GormReviewRepository) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]model.Review, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.Review{}).Where("patient_id = ?", patientID)
	return r.list(q, limit, offset)
}

func (r *GormReviewRepository) DoctorIDsByPatient(ctx context.Context, patientID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&model.Review{}).
		Where("patient_id = ?", patientID).
		Distinct().
		Pluck("doctor_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *GormReviewRepository) DeleteByPatient(ctx context.Context, patientID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("patient_id = ?", patientID).Delete(&model.Review{}).Error
}

func (r *GormReviewRepository) DeleteByDoctor(ctx context.Context, doctorID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("doctor_id = ?", doctorID).Delete(&model.Review{}).Error
}

func (r *GormReviewRepository) list(q *gorm.DB, limit, offset int) ([]model.Review, int64, error) {
	var (
		reviews []model.Review
		total   int64
	)

	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if limit > 0 {
		q = q.Limit(limit).Offset(offset)
	}

	if err := q.Order("created_at DESC").Find(&reviews).Error; err != nil {
		return nil, 0, err
	}

	return reviews, total, nil
}

func (r *GormReviewRepository) AggregateByDoctor(ctx context.Context, doctorID uuid.UUID) (ReviewStats, error) {
	stats := ReviewStats{DoctorID: doctorID}
	err := r.db.WithContext(ctx).
		Model(&model.Review{}).
		Select("COUNT(*) AS review_count, COALESCE(SUM(rating), 0) AS rating_sum").
		Where("doctor_id = ?", doctorID).
		Scan(&stats).Error
	if err != nil {
		return ReviewStats{}, err
	}
	stats.DoctorID = doctorID
	return stats, nil
}

func (r *GormReviewRepository) AggregateAll(ctx context.Context) ([]ReviewStats, error) {
	var out []ReviewStats
	err := r.db.WithContext(ctx).
		Model(&model.Review{}).
		Select("doctor_id, COUNT(*) AS review_count, COALESCE(SUM(rating), 0) AS rating_sum").
		Group("doctor_id").
		Scan(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
