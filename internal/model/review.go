package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	MinRating = 1
	MaxRating = 5
)

// reviews, one per (patient, doctor)
type Review struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey"`

	PatientID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_reviews_patient_doctor"`
	DoctorID  uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:idx_reviews_patient_doctor"`

	Rating  int    `gorm:"not null;check:rating BETWEEN 1 AND 5"`
	Comment string `gorm:"type:text"`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`

	Patient *Patient `gorm:"foreignKey:PatientID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Doctor  *Doctor  `gorm:"foreignKey:DoctorID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (r *Review) BeforeCreate(*gorm.DB) error {
	ensureID(&r.ID)
	return nil
}
