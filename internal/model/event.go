package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Audit event type.
type EventType string

const (
	EventTypeAppointmentBooked        EventType = "appointment_booked"
	EventTypeAppointmentStatusChanged EventType = "appointment_status_changed"
	EventTypeAppointmentDeleted       EventType = "appointment_deleted"
	EventTypeReviewCreated            EventType = "review_created"
	EventTypeReviewUpdated            EventType = "review_updated"
	EventTypeReviewDeleted            EventType = "review_deleted"
	EventTypeRatingRecomputeFailed    EventType = "rating_recompute_failed"
	EventTypeRatingReconciled         EventType = "rating_reconciled"
)

// events: audit trail
type Event struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey"`

	EventType EventType `gorm:"type:varchar(64);not null;index"`

	CreatedAt time.Time `gorm:"not null;index"`

	UserID        *uuid.UUID `gorm:"type:uuid;index"`
	AppointmentID *uuid.UUID `gorm:"type:uuid;index"`
	DoctorID      *uuid.UUID `gorm:"type:uuid;index"`

	Details string `gorm:"type:text"`
}

func (e *Event) BeforeCreate(*gorm.DB) error {
	ensureID(&e.ID)
	return nil
}
