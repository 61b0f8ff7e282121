package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type DoctorStatus string

const (
	DoctorStatusPending  DoctorStatus = "pending"
	DoctorStatusApproved DoctorStatus = "approved"
	DoctorStatusRejected DoctorStatus = "rejected"
)

func (s DoctorStatus) Valid() bool {
	switch s {
	case DoctorStatusPending, DoctorStatusApproved, DoctorStatusRejected:
		return true
	}
	return false
}

// WorkingTime is a weekly working interval, Start/End are "HH:MM" in the clinic time zone.
type WorkingTime struct {
	DayOfWeek int    `json:"dayOfWeek"`
	Start     string `json:"start"`
	End       string `json:"end"`
}

// doctors
type Doctor struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey"`

	// 1:1 with users.
	UserID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex"`

	Status     DoctorStatus `gorm:"type:varchar(16);not null;default:'pending';index"`
	Department string       `gorm:"type:varchar(255);not null"`
	CVURL      string       `gorm:"column:cv_url;type:text"`

	Locations    datatypes.JSON
	WorkingTimes datatypes.JSON

	// Derived from reviews, written only by the rating aggregator.
	Rating       float64 `gorm:"type:decimal(2,1);not null;default:0"`
	RatingsCount int64   `gorm:"not null;default:0"`
	// Set when the last recomputation failed and the aggregate may be behind.
	RatingStale bool `gorm:"not null;default:false;index"`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`

	User *User `gorm:"foreignKey:UserID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (d *Doctor) BeforeCreate(*gorm.DB) error {
	ensureID(&d.ID)
	return nil
}

func (d *Doctor) WorkingHours() ([]WorkingTime, error) {
	var out []WorkingTime
	if len(d.WorkingTimes) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(d.WorkingTimes, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (d *Doctor) LocationList() ([]string, error) {
	var out []string
	if len(d.Locations) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(d.Locations, &out); err != nil {
		return nil, err
	}
	return out, nil
}
