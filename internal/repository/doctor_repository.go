package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Leganyst/clinic-booking/internal/model"
)

// DoctorRating is the stored aggregate of one doctor.
type DoctorRating struct {
	ID           uuid.UUID
	Rating       float64
	RatingsCount int64
	RatingStale  bool
}

type DoctorRepository interface {
	Create(ctx context.Context, doctor *model.Doctor) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Doctor, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*model.Doctor, error)
	// LockByID loads the doctor and holds a row lock until the transaction ends.
	LockByID(ctx context.Context, id uuid.UUID) (*model.Doctor, error)
	// UpdatedAt reads only the row's updated_at.
	UpdatedAt(ctx context.Context, id uuid.UUID) (time.Time, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.DoctorStatus) error
	// UpdateRating writes both aggregate fields in one statement and clears the stale flag.
	UpdateRating(ctx context.Context, id uuid.UUID, rating float64, count int64) error
	MarkRatingStale(ctx context.Context, id uuid.UUID) error
	ListRatings(ctx context.Context) ([]DoctorRating, error)
	DeleteByUserID(ctx context.Context, userID uuid.UUID) error
}

type GormDoctorRepository struct {
	db *gorm.DB
}

func NewGormDoctorRepository(db *gorm.DB) *GormDoctorRepository {
	return &GormDoctorRepository{db: db}
}

func (r *GormDoctorRepository) Create(ctx context.Context, doctor *model.Doctor) error {
	return r.db.WithContext(ctx).Create(doctor).Error
}

func (r *GormDoctorRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Doctor, error) {
	var d model.Doctor
	if err := r.db.WithContext(ctx).Preload("User").First(&d, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *GormDoctorRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*model.Doctor, error) {
	var d model.Doctor
	if err := r.db.WithContext(ctx).First(&d, "user_id = ?", userID).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *GormDoctorRepository) LockByID(ctx context.Context, id uuid.UUID) (*model.Doctor, error) {
	var d model.Doctor
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&d, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *GormDoctorRepository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	return r.updates(ctx, id, updates)
}

func (r *GormDoctorRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.DoctorStatus) error {
	return r.updates(ctx, id, map[string]any{"status": status})
}

func (r *GormDoctorRepository) UpdateRating(ctx context.Context, id uuid.UUID, rating float64, count int64) error {
	return r.updates(ctx, id, map[string]any{
		"rating":        rating,
		"ratings_count": count,
		"rating_stale":  false,
	})
}

func (r *GormDoctorRepository) MarkRatingStale(ctx context.Context, id uuid.UUID) error {
	return r.updates(ctx, id, map[string]any{"rating_stale": true})
}

func (r *GormDoctorRepository) ListRatings(ctx context.Context) ([]DoctorRating, error) {
	var out []DoctorRating
	err := r.db.WithContext(ctx).
		Model(&model.Doctor{}).
		Select("id, rating, ratings_count, rating_stale").
		Order("id").
		Scan(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *GormDoctorRepository) DeleteByUserID(ctx context.Context, userID uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&model.Doctor{}, "user_id = ?", userID).Error
}

func (r *GormDoctorRepository) UpdatedAt(ctx context.Context, id uuid.UUID) (time.Time, error) {
	var d model.Doctor
	if err := r.db.WithContext(ctx).Select("updated_at").First(&d, "id = ?", id).Error; err != nil {
		return time.Time{}, err
	}
	return d.UpdatedAt, nil
}

func (r *GormDoctorRepository) updates(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	res := r.db.WithContext(ctx).Model(&model.Doctor{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
