package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Leganyst/clinic-booking/internal/calendar"
	"github.com/Leganyst/clinic-booking/internal/model"
)

const DefaultConflictWindow = 15 * time.Minute

// AppointmentWindowFinder is the store query the guard depends on.
type AppointmentWindowFinder interface {
	FindOccupying(ctx context.Context, doctorID uuid.UUID, from, to time.Time) (*model.Appointment, error)
}

// BookingGuard decides whether a doctor can take a booking at a given time.
//
// Two appointments of one doctor that are not cancelled may not be closer
// than the window, both bounds inclusive. The check is advisory: the store
// enforces the same rule through the unique (doctor_id, slot_bucket) index.
type BookingGuard struct {
	window time.Duration
}

func NewBookingGuard(window time.Duration) *BookingGuard {
	if window <= 0 {
		window = DefaultConflictWindow
	}
	return &BookingGuard{window: window}
}

func (g *BookingGuard) Window() time.Duration {
	return g.window
}

// TryBook returns nil to admit the booking or a *ConflictError naming the
// colliding appointment.
func (g *BookingGuard) TryBook(
	ctx context.Context,
	finder AppointmentWindowFinder,
	doctorID uuid.UUID,
	proposed time.Time,
) error {
	w := calendar.WindowAround(proposed, g.window)

	existing, err := finder.FindOccupying(ctx, doctorID, w.Start, w.End)
	if err != nil {
		return fmt.Errorf("check conflict window: %w", err)
	}
	if existing != nil {
		return &ConflictError{AppointmentID: existing.ID, BookingDate: existing.BookingDate}
	}
	return nil
}

// Bucket is the slot_bucket value stored for a booking at t.
func (g *BookingGuard) Bucket(t time.Time) *int64 {
	b := calendar.SlotBucket(t, g.window)
	return &b
}
