package repository

import (
	"context"

	"gorm.io/gorm"
)

// Store groups the repositories that share one connection or transaction.
type Store struct {
	db *gorm.DB

	Users        UserRepository
	Doctors      DoctorRepository
	Patients     PatientRepository
	Appointments AppointmentRepository
	Reviews      ReviewRepository
	Events       EventRepository
}

func NewStore(db *gorm.DB) *Store {
	return &Store{
		db:           db,
		Users:        NewGormUserRepository(db),
		Doctors:      NewGormDoctorRepository(db),
		Patients:     NewGormPatientRepository(db),
		Appointments: NewGormAppointmentRepository(db),
		Reviews:      NewGormReviewRepository(db),
		Events:       NewGormEventRepository(db),
	}
}

// Transaction runs fn against a Store bound to a single database transaction.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewStore(tx))
	})
}

// Ping checks that the underlying database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
