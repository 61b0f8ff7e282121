package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Leganyst/clinic-booking/internal/calendar"
	"github.com/Leganyst/clinic-booking/internal/model"
)

type AppointmentRepository interface {
	Create(ctx context.Context, appointment *model.Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
	// FindOccupying returns the earliest non-cancelled appointment of the doctor
	// with booking_date in [from, to], or nil when the range is free.
	FindOccupying(ctx context.Context, doctorID uuid.UUID, from, to time.Time) (*model.Appointment, error)
	// ListOccupying returns every non-cancelled appointment of the doctor in [from, to].
	ListOccupying(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]model.Appointment, error)
	ExistsForPair(ctx context.Context, doctorID, patientID uuid.UUID) (bool, error)
	// ExistsForPayment reports whether any appointment already carries the
	// payment reference.
	ExistsForPayment(ctx context.Context, paymentID string) (bool, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.AppointmentStatus, slotBucket *int64) error
	UpdateNotes(ctx context.Context, id uuid.UUID, notes string) error
	// Delete removes the appointment and returns the removed row.
	Delete(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
	DeleteByPatient(ctx context.Context, patientID uuid.UUID) error
	DeleteByDoctor(ctx context.Context, doctorID uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]model.Appointment, int64, error)
	// ListByDoctor and ListByPatient keep booking_date within period when it is
	// not nil.
	ListByDoctor(ctx context.Context, doctorID uuid.UUID, period *calendar.TimeRange, limit, offset int) ([]model.Appointment, int64, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, period *calendar.TimeRange, limit, offset int) ([]model.Appointment, int64, error)
}

type GormAppointmentRepository struct {
	db *gorm.DB
}

func NewGormAppointmentRepository(db *gorm.DB) *GormAppointmentRepository {
	return &GormAppointmentRepository{db: db}
}

func (r *GormAppointmentRepository) Create(ctx context.Context, appointment *model.Appointment) error {
	return r.db.WithContext(ctx).Create(appointment).Error
}

func (r *GormAppointmentRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	var a model.Appointment
	if err := r.db.WithContext(ctx).First(&a, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *GormAppointmentRepository) occupying(ctx context.Context, doctorID uuid.UUID, from, to time.Time) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&model.Appointment{}).
		Where("doctor_id = ?", doctorID).
		Where("booking_date >= ? AND booking_date <= ?", from.UTC(), to.UTC()).
		Where("status <> ?", model.AppointmentStatusCancelled).
		Order("booking_date ASC")
}

func (r *GormAppointmentRepository) FindOccupying(ctx context.Context, doctorID uuid.UUID, from, to time.Time) (*model.Appointment, error) {
	var found []model.Appointment
	if err := r.occupying(ctx, doctorID, from, to).Limit(1).Find(&found).Error; err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, nil
	}
	return &found[0], nil
}

func (r *GormAppointmentRepository) ListOccupying(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]model.Appointment, error) {
	var out []model.Appointment
	if err := r.occupying(ctx, doctorID, from, to).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *GormAppointmentRepository) ExistsForPair(ctx context.Context, doctorID, patientID uuid.UUID) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&model.Appointment{}).
		Where("doctor_id = ? AND patient_id = ?", doctorID, patientID).
		Count(&n).Error
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *GormAppointmentRepository) ExistsForPayment(ctx context.Context, paymentID string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&model.Appointment{}).
		Where("payment_id = ?", paymentID).
		Count(&n).Error
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *GormAppointmentRepository) UpdateStatus(
	ctx context.Context,
	id uuid.UUID,
	status model.AppointmentStatus,
	slotBucket *int64,
) error {
	update := map[string]any{
		"status":      status,
		"slot_bucket": slotBucket,
	}
	res := r.db.WithContext(ctx).
		Model(&model.Appointment{}).
		Where("id = ?", id).
		Updates(update)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *GormAppointmentRepository) UpdateNotes(ctx context.Context, id uuid.UUID, notes string) error {
	res := r.db.WithContext(ctx).
		Model(&model.Appointment{}).
		Where("id = ?", id).
		Update("notes", notes)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *GormAppointmentRepository) Delete(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	a, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Delete(&model.Appointment{}, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return a, nil
}

func (r *GormAppointmentRepository) List(ctx context.Context, limit, offset int) ([]model.Appointment, int64, error) {
	return r.list(r.db.WithContext(ctx).Model(&model.Appointment{}), limit, offset)
}

func (r *GormAppointmentRepository) DeleteByPatient(ctx context.Context, patientID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("patient_id = ?", patientID).Delete(&model.Appointment{}).Error
}

func (r *GormAppointmentRepository) DeleteByDoctor(ctx context.Context, doctorID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("doctor_id = ?", doctorID).Delete(&model.Appointment{}).Error
}

func (r *GormAppointmentRepository) ListByDoctor(
	ctx context.Context,
	doctorID uuid.UUID,
	period *calendar.TimeRange,
	limit, offset int,
) ([]model.Appointment, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.Appointment{}).Where("doctor_id = ?", doctorID)
	return r.list(within(q, period), limit, offset)
}

func (r *GormAppointmentRepository) ListByPatient(
	ctx context.Context,
	patientID uuid.UUID,
	period *calendar.TimeRange,
	limit, offset int,
) ([]model.Appointment, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.Appointment{}).Where("patient_id = ?", patientID)
	return r.list(within(q, period), limit, offset)
}

// within narrows q to booking_date in [period.Start, period.End).
func within(q *gorm.DB, period *calendar.TimeRange) *gorm.DB {
	if period == nil {
		return q
	}
	return q.Where("booking_date >= ? AND booking_date < ?", period.Start.UTC(), period.End.UTC())
}

func (r *GormAppointmentRepository) list(q *gorm.DB, limit, offset int) ([]model.Appointment, int64, error) {
	var (
		appointments []model.Appointment
		total        int64
	)

	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if limit > 0 {
		q = q.Limit(limit).Offset(offset)
	}

	if err := q.Order("booking_date DESC").Find(&appointments).Error; err != nil {
		return nil, 0, err
	}

	return appointments, total, nil
}
