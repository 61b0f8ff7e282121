package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Leganyst/clinic-booking/internal/model"
)

type EventRepository interface {
	Create(ctx context.Context, event *model.Event) error
	ListByDoctor(ctx context.Context, doctorID uuid.UUID, eventType model.EventType) ([]model.Event, error)
}

type GormEventRepository struct {
	db *gorm.DB
}

func NewGormEventRepository(db *gorm.DB) *GormEventRepository {
	return &GormEventRepository{db: db}
}

func (r *GormEventRepository) Create(ctx context.Context, event *model.Event) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *GormEventRepository) ListByDoctor(ctx context.Context, doctorID uuid.UUID, eventType model.EventType) ([]model.Event, error) {
	var out []model.Event
	err := r.db.WithContext(ctx).
		Where("doctor_id = ? AND event_type = ?", doctorID, eventType).
		Order("created_at DESC").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
