package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrConflict            = errors.New("conflict")
	ErrNotFound            = errors.New("not found")
	ErrPaymentNotCompleted = errors.New("payment not completed")
	ErrInsufficientPayment = errors.New("insufficient payment")
	ErrValidation          = errors.New("validation failed")
	ErrForbidden           = errors.New("access denied")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrTokenStale          = errors.New("password was changed, please log in again")

	ErrReviewExists = fmt.Errorf("%w: you have already reviewed this doctor", ErrConflict)
	ErrPaymentUsed  = fmt.Errorf("%w: payment already covers another appointment", ErrConflict)
)

// ConflictError rejects a booking that collides with an existing appointment.
type ConflictError struct {
	AppointmentID uuid.UUID
	BookingDate   time.Time
}

func (e *ConflictError) Error() string {
	if e.AppointmentID == uuid.Nil {
		return "this appointment slot is already booked"
	}
	return fmt.Sprintf("this appointment slot is already booked (appointment %s at %s)",
		e.AppointmentID, e.BookingDate.UTC().Format(time.RFC3339))
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// ValidationError names the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// notFound maps a missing row to ErrNotFound and passes other errors through.
func notFound(what string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return err
}
