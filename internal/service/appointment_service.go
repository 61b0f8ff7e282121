package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Leganyst/clinic-booking/internal/calendar"
	"github.com/Leganyst/clinic-booking/internal/events"
	"github.com/Leganyst/clinic-booking/internal/model"
	"github.com/Leganyst/clinic-booking/internal/payment"
	"github.com/Leganyst/clinic-booking/internal/repository"
)

type BookRequest struct {
	DoctorID    uuid.UUID
	PatientID   uuid.UUID
	BookingDate time.Time
	Notes       string
	Amount      decimal.Decimal
	PaymentID   string
}

type AppointmentService struct {
	store *repository.Store
	guard *BookingGuard
	// nil disables payment gating
	payments payment.Verifier
	audit    *auditor
	loc      *time.Location
	logger   *zap.Logger
}

func NewAppointmentService(
	store *repository.Store,
	guard *BookingGuard,
	payments payment.Verifier,
	publisher events.Publisher,
	loc *time.Location,
	logger *zap.Logger,
) *AppointmentService {
	if loc == nil {
		loc = time.UTC
	}
	logger = logger.Named("appointments")
	return &AppointmentService{
		store:    store,
		guard:    guard,
		payments: payments,
		audit:    newAuditor(publisher, logger),
		loc:      loc,
		logger:   logger,
	}
}

// Book admits and stores a new appointment.
//
// Order of checks: request validation, doctor and patient existence,
// advisory conflict check, payment, then the conflict check and insert
// inside one transaction holding the doctor row lock.
func (s *AppointmentService) Book(ctx context.Context, actor Actor, req BookRequest) (*model.Appointment, error) {
	switch {
	case actor.Is(model.RolePatient):
		if actor.PatientID == nil {
			return nil, fmt.Errorf("patient profile: %w", ErrNotFound)
		}
		if req.PatientID == uuid.Nil {
			req.PatientID = *actor.PatientID
		}
		if req.PatientID != *actor.PatientID {
			return nil, fmt.Errorf("%w: patients book only for themselves", ErrForbidden)
		}
	case actor.IsStaff():
	default:
		return nil, ErrForbidden
	}

	if err := s.validateBooking(req); err != nil {
		return nil, err
	}
	req.BookingDate = req.BookingDate.UTC()

	if _, err := s.store.Doctors.GetByID(ctx, req.DoctorID); err != nil {
		return nil, notFound("doctor", err)
	}
	if _, err := s.store.Patients.GetByID(ctx, req.PatientID); err != nil {
		return nil, notFound("patient", err)
	}

	// fast rejection before the payment provider is called
	if err := s.guard.TryBook(ctx, s.store.Appointments, req.DoctorID, req.BookingDate); err != nil {
		s.logConflict(req, err)
		return nil, err
	}

	appointment := &model.Appointment{
		DoctorID:    req.DoctorID,
		PatientID:   req.PatientID,
		BookingDate: req.BookingDate,
		Status:      model.AppointmentStatusBooked,
		Notes:       req.Notes,
		Amount:      req.Amount,
		SlotBucket:  s.guard.Bucket(req.BookingDate),
	}
	if s.payments != nil {
		if err := s.paymentUnused(ctx, s.store.Appointments, req.PaymentID); err != nil {
			return nil, err
		}
		if err := s.verifyPayment(ctx, req); err != nil {
			return nil, err
		}
		appointment.Paid = true
		appointment.PaymentID = req.PaymentID
	}

	ev := &model.Event{EventType: model.EventTypeAppointmentBooked, UserID: ptr(actor.UserID), DoctorID: ptr(req.DoctorID)}
	data := map[string]any{
		"patientId":   req.PatientID,
		"bookingDate": req.BookingDate,
		"paid":        appointment.Paid,
	}

	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		if _, err := tx.Doctors.LockByID(ctx, req.DoctorID); err != nil {
			return notFound("doctor", err)
		}
		if err := s.guard.TryBook(ctx, tx.Appointments, req.DoctorID, req.BookingDate); err != nil {
			return err
		}
		if appointment.Paid {
			if err := s.paymentUnused(ctx, tx.Appointments, appointment.PaymentID); err != nil {
				return err
			}
		}
		if err := tx.Appointments.Create(ctx, appointment); err != nil {
			return err
		}
		ev.AppointmentID = ptr(appointment.ID)
		return s.audit.record(ctx, tx.Events, ev, data)
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			err = s.conflictAfterRace(ctx, req)
		}
		if errors.Is(err, ErrConflict) {
			s.logConflict(req, err)
		}
		return nil, err
	}

	s.logger.Info("appointment.book.ok",
		zap.Stringer("appointmentId", appointment.ID),
		zap.Stringer("doctorId", req.DoctorID),
		zap.Stringer("patientId", req.PatientID),
		zap.Time("bookingDate", req.BookingDate),
	)
	s.audit.publish(ctx, ev, data)
	return appointment, nil
}

func (s *AppointmentService) validateBooking(req BookRequest) error {
	if req.DoctorID == uuid.Nil {
		return invalid("doctorId", "is required")
	}
	if req.PatientID == uuid.Nil {
		return invalid("patientId", "is required")
	}
	if req.BookingDate.IsZero() {
		return invalid("bookingDate", "is required")
	}
	if req.Amount.IsNegative() {
		return invalid("amount", "must not be negative")
	}
	if s.payments != nil {
		if req.PaymentID == "" {
			return invalid("paymentId", "is required")
		}
		if !req.Amount.IsPositive() {
			return invalid("amount", "must be positive")
		}
	}
	return nil
}

func (s *AppointmentService) verifyPayment(ctx context.Context, req BookRequest) error {
	p, err := s.payments.Verify(ctx, req.PaymentID)
	if err != nil {
		if errors.Is(err, payment.ErrPaymentNotFound) {
			return fmt.Errorf("%w: %v", ErrPaymentNotCompleted, err)
		}
		return fmt.Errorf("verify payment: %w", err)
	}
	if p.Status != payment.StatusSucceeded {
		s.logger.Info("appointment.book.payment_not_completed",
			zap.String("paymentId", req.PaymentID),
			zap.String("status", string(p.Status)),
		)
		return ErrPaymentNotCompleted
	}
	// overpayment is accepted as is
	if p.AmountReceived.LessThan(req.Amount) {
		s.logger.Info("appointment.book.insufficient_payment",
			zap.String("paymentId", req.PaymentID),
			zap.Stringer("received", p.AmountReceived),
			zap.Stringer("quoted", req.Amount),
		)
		return fmt.Errorf("%w: received %s, quoted %s", ErrInsufficientPayment, p.AmountReceived, req.Amount)
	}
	return nil
}

// conflictAfterRace builds the conflict for an insert that lost to a
// concurrent booking on the slot or payment unique index.
func (s *AppointmentService) conflictAfterRace(ctx context.Context, req BookRequest) error {
	if err := s.guard.TryBook(ctx, s.store.Appointments, req.DoctorID, req.BookingDate); err != nil {
		return err
	}
	if s.payments != nil {
		if err := s.paymentUnused(ctx, s.store.Appointments, req.PaymentID); err != nil {
			return err
		}
	}
	return &ConflictError{}
}

func (s *AppointmentService) paymentUnused(ctx context.Context, repo repository.AppointmentRepository, ref string) error {
	used, err := repo.ExistsForPayment(ctx, ref)
	if err != nil {
		return fmt.Errorf("check payment reference: %w", err)
	}
	if used {
		s.logger.Info("appointment.book.payment_reused", zap.String("paymentId", ref))
		return ErrPaymentUsed
	}
	return nil
}

func (s *AppointmentService) logConflict(req BookRequest, err error) {
	var ce *ConflictError
	if !errors.As(err, &ce) {
		return
	}
	s.logger.Info("appointment.book.conflict",
		zap.Stringer("doctorId", req.DoctorID),
		zap.Time("bookingDate", req.BookingDate),
		zap.Stringer("collidesWith", ce.AppointmentID),
	)
}

// Get returns one appointment visible to the actor.
func (s *AppointmentService) Get(ctx context.Context, actor Actor, id uuid.UUID) (*model.Appointment, error) {
	a, err := s.store.Appointments.GetByID(ctx, id)
	if err != nil {
		return nil, notFound("appointment", err)
	}
	if !canSee(actor, a) {
		return nil, ErrForbidden
	}
	return a, nil
}

func canSee(actor Actor, a *model.Appointment) bool {
	return actor.IsStaff() || actor.isDoctor(a.DoctorID) || actor.isPatient(a.PatientID)
}

// UpdateStatus moves an appointment between booked, completed and cancelled.
// Cancelling frees the slot; leaving cancelled runs the conflict check again.
func (s *AppointmentService) UpdateStatus(
	ctx context.Context,
	actor Actor,
	id uuid.UUID,
	status model.AppointmentStatus,
) (*model.Appointment, error) {
	if !status.Valid() {
		return nil, invalid("status", "must be one of booked, cancelled, completed")
	}

	a, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if actor.isPatient(a.PatientID) && !actor.IsStaff() && status != model.AppointmentStatusCancelled {
		return nil, fmt.Errorf("%w: patients may only cancel", ErrForbidden)
	}
	if a.Status == status {
		return a, nil
	}

	previous := a.Status
	var slot *int64
	if status.OccupiesSlot() {
		slot = a.SlotBucket
	}

	ev := &model.Event{
		EventType:     model.EventTypeAppointmentStatusChanged,
		UserID:        ptr(actor.UserID),
		DoctorID:      ptr(a.DoctorID),
		AppointmentID: ptr(a.ID),
	}
	data := map[string]any{"from": previous, "to": status}

	err = s.store.Transaction(ctx, func(tx *repository.Store) error {
		if status.OccupiesSlot() && !previous.OccupiesSlot() {
			if _, err := tx.Doctors.LockByID(ctx, a.DoctorID); err != nil {
				return notFound("doctor", err)
			}
			if err := s.guard.TryBook(ctx, tx.Appointments, a.DoctorID, a.BookingDate); err != nil {
				return err
			}
			slot = s.guard.Bucket(a.BookingDate)
		}
		if err := tx.Appointments.UpdateStatus(ctx, a.ID, status, slot); err != nil {
			return notFound("appointment", err)
		}
		return s.audit.record(ctx, tx.Events, ev, data)
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			err = s.conflictAfterRace(ctx, a.DoctorID, a.BookingDate)
		}
		return nil, err
	}

	a.Status = status
	a.SlotBucket = slot
	s.logger.Info("appointment.status.changed",
		zap.Stringer("appointmentId", a.ID),
		zap.String("from", string(previous)),
		zap.String("to", string(status)),
	)
	s.audit.publish(ctx, ev, data)
	return a, nil
}

func (s *AppointmentService) UpdateNotes(ctx context.Context, actor Actor, id uuid.UUID, notes string) (*model.Appointment, error) {
	a, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := s.store.Appointments.UpdateNotes(ctx, id, notes); err != nil {
		return nil, notFound("appointment", err)
	}
	a.Notes = notes
	return a, nil
}

// Delete removes the appointment for good and returns the removed row.
func (s *AppointmentService) Delete(ctx context.Context, actor Actor, id uuid.UUID) (*model.Appointment, error) {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return nil, err
	}

	ev := &model.Event{EventType: model.EventTypeAppointmentDeleted, UserID: ptr(actor.UserID), AppointmentID: ptr(id)}
	var removed *model.Appointment
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		var err error
		removed, err = tx.Appointments.Delete(ctx, id)
		if err != nil {
			return notFound("appointment", err)
		}
		ev.DoctorID = ptr(removed.DoctorID)
		return s.audit.record(ctx, tx.Events, ev, nil)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("appointment.deleted", zap.Stringer("appointmentId", id), zap.Stringer("by", actor.UserID))
	s.audit.publish(ctx, ev, nil)
	return removed, nil
}

// maxListPeriod caps the booking date range of a filtered listing.
const maxListPeriod = 366 * 24 * time.Hour

// Period filters listings by booking date, [From, To). The zero Period
// lists everything.
type Period struct {
	From time.Time
	To   time.Time
}

func (p Period) IsZero() bool {
	return p.From.IsZero() && p.To.IsZero()
}

// normalize swaps reversed bounds and trims the range to maxListPeriod.
func (s *AppointmentService) normalize(p Period) (*calendar.TimeRange, error) {
	if p.IsZero() {
		return nil, nil
	}
	if p.From.IsZero() {
		return nil, invalid("from", "is required together with to")
	}
	if p.To.IsZero() {
		return nil, invalid("to", "is required together with from")
	}
	rng, err := calendar.NormalizeTimeRange(p.From, p.To, s.loc, maxListPeriod)
	if err != nil {
		return nil, invalid("to", "must differ from from")
	}
	return &rng, nil
}

// ListForPatient is open to staff, doctors and the patient.
func (s *AppointmentService) ListForPatient(
	ctx context.Context,
	actor Actor,
	patientID uuid.UUID,
	period Period,
	page calendar.PageRequest,
) (calendar.Page[model.Appointment], error) {
	if !actor.IsStaff() && !actor.Is(model.RoleDoctor) && !actor.isPatient(patientID) {
		return calendar.Page[model.Appointment]{}, ErrForbidden
	}
	rng, err := s.normalize(period)
	if err != nil {
		return calendar.Page[model.Appointment]{}, err
	}
	items, total, err := s.store.Appointments.ListByPatient(ctx, patientID, rng, page.Limit, page.Offset())
	if err != nil {
		return calendar.Page[model.Appointment]{}, fmt.Errorf("list patient appointments: %w", err)
	}
	return calendar.NewPage(items, total, page), nil
}

// ListForDoctor is open to staff and the doctor.
func (s *AppointmentService) ListForDoctor(
	ctx context.Context,
	actor Actor,
	doctorID uuid.UUID,
	period Period,
	page calendar.PageRequest,
) (calendar.Page[model.Appointment], error) {
	if !actor.IsStaff() && !actor.isDoctor(doctorID) {
		return calendar.Page[model.Appointment]{}, ErrForbidden
	}
	rng, err := s.normalize(period)
	if err != nil {
		return calendar.Page[model.Appointment]{}, err
	}
	items, total, err := s.store.Appointments.ListByDoctor(ctx, doctorID, rng, page.Limit, page.Offset())
	if err != nil {
		return calendar.Page[model.Appointment]{}, fmt.Errorf("list doctor appointments: %w", err)
	}
	return calendar.NewPage(items, total, page), nil
}

func (s *AppointmentService) ListAll(ctx context.Context, actor Actor, page calendar.PageRequest) (calendar.Page[model.Appointment], error) {
	if !actor.IsStaff() {
		return calendar.Page[model.Appointment]{}, ErrForbidden
	}
	items, total, err := s.store.Appointments.List(ctx, page.Limit, page.Offset())
	if err != nil {
		return calendar.Page[model.Appointment]{}, fmt.Errorf("list appointments: %w", err)
	}
	return calendar.NewPage(items, total, page), nil
}

// Availability lists the window-sized slots of the doctor's working hours on
// day that the guard would admit.
func (s *AppointmentService) Availability(ctx context.Context, doctorID uuid.UUID, day time.Time) ([]calendar.TimeRange, error) {
	d, err := s.store.Doctors.GetByID(ctx, doctorID)
	if err != nil {
		return nil, notFound("doctor", err)
	}
	hours, err := d.WorkingHours()
	if err != nil {
		return nil, fmt.Errorf("decode working times: %w", err)
	}

	day = day.In(s.loc)
	weekday := int(day.Weekday())
	w := s.guard.Window()

	var slots []calendar.TimeRange
	for _, wt := range hours {
		if wt.DayOfWeek != weekday {
			continue
		}
		tr, err := calendar.DayRange(day, wt.Start, wt.End)
		if err != nil {
			return nil, invalid("workingTimes", err.Error())
		}
		part, err := calendar.SplitToTimeSlots(tr, w, 0)
		if err != nil {
			return nil, err
		}
		slots = append(slots, part...)
	}
	free := []calendar.TimeRange{}
	if len(slots) == 0 {
		return free, nil
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].Start.Before(slots[j].Start) })

	busy, err := s.store.Appointments.ListOccupying(ctx, doctorID,
		slots[0].Start.Add(-w), slots[len(slots)-1].Start.Add(w))
	if err != nil {
		return nil, fmt.Errorf("list occupying appointments: %w", err)
	}
	points := make([]calendar.TimeRange, 0, len(busy))
	for _, a := range busy {
		points = append(points, calendar.TimeRange{Start: a.BookingDate, End: a.BookingDate})
	}

	for _, slot := range slots {
		if overlap, _ := calendar.HasOverlap(calendar.WindowAround(slot.Start, w), points, true); overlap {
			continue
		}
		free = append(free, slot)
	}
	return free, nil
}
