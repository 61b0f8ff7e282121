package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type AppointmentStatus string

const (
	AppointmentStatusBooked    AppointmentStatus = "booked"
	AppointmentStatusCancelled AppointmentStatus = "cancelled"
	AppointmentStatusCompleted AppointmentStatus = "completed"
)

func (s AppointmentStatus) Valid() bool {
	switch s {
	case AppointmentStatusBooked, AppointmentStatusCancelled, AppointmentStatusCompleted:
		return true
	}
	return false
}

// OccupiesSlot reports whether an appointment in this status blocks its doctor's conflict window.
func (s AppointmentStatus) OccupiesSlot() bool {
	return s != AppointmentStatusCancelled
}

// appointments
type Appointment struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey"`

	DoctorID  uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:idx_appointments_doctor_bucket"`
	PatientID uuid.UUID `gorm:"type:uuid;not null;index"`

	BookingDate time.Time         `gorm:"not null;index"`
	Status      AppointmentStatus `gorm:"type:varchar(16);not null;default:'booked';index"`
	Notes       string            `gorm:"type:text"`

	Amount    decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0"`
	Paid      bool            `gorm:"not null;default:false"`
	// a payment reference covers at most one appointment
	PaymentID string          `gorm:"type:varchar(128);uniqueIndex:idx_appointments_payment,where:payment_id <> ''"`

	// BookingDate bucketed by the conflict window. NULL once cancelled, so
	// the unique index only covers appointments that still hold their slot.
	SlotBucket *int64 `gorm:"uniqueIndex:idx_appointments_doctor_bucket"`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`

	Doctor  *Doctor  `gorm:"foreignKey:DoctorID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Patient *Patient `gorm:"foreignKey:PatientID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (a *Appointment) BeforeCreate(*gorm.DB) error {
	ensureID(&a.ID)
	return nil
}
