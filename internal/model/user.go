package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// users
type User struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey"`

	Name  string `gorm:"type:varchar(255);not null"`
	Email string `gorm:"type:varchar(255);not null;uniqueIndex"`

	PasswordHash      string `gorm:"type:varchar(255);not null"`
	PasswordChangedAt *time.Time

	Phone    string `gorm:"type:varchar(32)"`
	Age      *int
	Language string `gorm:"type:varchar(64)"`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`

	// Profiles, at most one of them is set depending on the role.
	Doctor  *Doctor  `gorm:"foreignKey:UserID"`
	Patient *Patient `gorm:"foreignKey:UserID"`
}

func (u *User) BeforeCreate(*gorm.DB) error {
	ensureID(&u.ID)
	return nil
}

func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
