package model

import "gorm.io/gorm"

// AutoMigrate migrates every clinic entity.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&User{},
		&Role{},
		&UserRole{},
		&Doctor{},
		&Patient{},
		&Appointment{},
		&Review{},
		&Event{},
	)
}
