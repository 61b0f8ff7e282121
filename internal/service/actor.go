package service

import (
	"github.com/google/uuid"

	"github.com/Leganyst/clinic-booking/internal/model"
)

// Actor is the authenticated caller of a use case.
type Actor struct {
	UserID    uuid.UUID
	Role      string
	DoctorID  *uuid.UUID
	PatientID *uuid.UUID
}

func (a Actor) Is(roles ...string) bool {
	for _, r := range roles {
		if a.Role == r {
			return true
		}
	}
	return false
}

// IsStaff reports whether the actor administers the clinic.
func (a Actor) IsStaff() bool {
	return a.Is(model.RoleAdmin, model.RoleOwner)
}

func (a Actor) isDoctor(id uuid.UUID) bool {
	return a.DoctorID != nil && *a.DoctorID == id
}

func (a Actor) isPatient(id uuid.UUID) bool {
	return a.PatientID != nil && *a.PatientID == id
}
