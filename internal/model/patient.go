package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PatientReport is a note left by a doctor on a patient's record.
type PatientReport struct {
	ID        uuid.UUID `json:"id"`
	DoctorID  uuid.UUID `json:"doctorId"`
	Notes     string    `json:"notes"`
	Files     []string  `json:"files"`
	CreatedAt time.Time `json:"createdAt"`
}

// patients
type Patient struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey"`

	UserID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex"`

	Reports datatypes.JSON

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`

	User *User `gorm:"foreignKey:UserID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (p *Patient) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

func (p *Patient) ReportList() ([]PatientReport, error) {
	var out []PatientReport
	if len(p.Reports) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(p.Reports, &out); err != nil {
		return nil, err
	}
	return out, nil
}
