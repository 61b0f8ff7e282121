package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Leganyst/clinic-booking/internal/cache"
	"github.com/Leganyst/clinic-booking/internal/model"
	"github.com/Leganyst/clinic-booking/internal/repository"
)

// DoctorProfile is the public view of a doctor, kept in the read cache.
type DoctorProfile struct {
	ID           uuid.UUID           `json:"id"`
	UserID       uuid.UUID           `json:"userId"`
	Name         string              `json:"name"`
	Email        string              `json:"email"`
	Phone        string              `json:"phone,omitempty"`
	Status       model.DoctorStatus  `json:"status"`
	Department   string              `json:"department"`
	CVURL        string              `json:"cvUrl,omitempty"`
	Locations    []string            `json:"locations"`
	WorkingTimes []model.WorkingTime `json:"workingTimes"`
	Rating       float64             `json:"rating"`
	RatingsCount int64               `json:"ratingsCount"`
	RatingStale  bool                `json:"ratingStale,omitempty"`
}

func NewDoctorProfile(d *model.Doctor) (DoctorProfile, error) {
	locations, err := d.LocationList()
	if err != nil {
		return DoctorProfile{}, fmt.Errorf("decode locations: %w", err)
	}
	hours, err := d.WorkingHours()
	if err != nil {
		return DoctorProfile{}, fmt.Errorf("decode working times: %w", err)
	}
	if locations == nil {
		locations = []string{}
	}
	if hours == nil {
		hours = []model.WorkingTime{}
	}

	p := DoctorProfile{
		ID:           d.ID,
		UserID:       d.UserID,
		Status:       d.Status,
		Department:   d.Department,
		CVURL:        d.CVURL,
		Locations:    locations,
		WorkingTimes: hours,
		Rating:       d.Rating,
		RatingsCount: d.RatingsCount,
		RatingStale:  d.RatingStale,
	}
	if d.User != nil {
		p.Name = d.User.Name
		p.Email = d.User.Email
		p.Phone = d.User.Phone
	}
	return p, nil
}

type DoctorService struct {
	store    *repository.Store
	profiles cache.Store[DoctorProfile]
	logger   *zap.Logger
}

func NewDoctorService(store *repository.Store, profiles cache.Store[DoctorProfile], logger *zap.Logger) *DoctorService {
	if profiles == nil {
		profiles = cache.Noop[DoctorProfile]{}
	}
	return &DoctorService{store: store, profiles: profiles, logger: logger.Named("doctors")}
}

// Get returns the doctor profile, served from the cache when possible.
//
// A writer commits and then invalidates, so a profile read before that commit
// may be put after the invalidation. Get checks updated_at once the entry is
// in place and drops it when the row has moved on.
func (s *DoctorService) Get(ctx context.Context, id uuid.UUID) (DoctorProfile, error) {
	if p, ok := s.profiles.Get(ctx, id); ok {
		return p, nil
	}

	d, err := s.store.Doctors.GetByID(ctx, id)
	if err != nil {
		return DoctorProfile{}, notFound("doctor", err)
	}
	p, err := NewDoctorProfile(d)
	if err != nil {
		return DoctorProfile{}, err
	}
	s.profiles.Put(ctx, id, p)

	at, err := s.store.Doctors.UpdatedAt(ctx, id)
	if err != nil || !at.Equal(d.UpdatedAt) {
		s.logger.Debug("doctor.profile.cache_dropped", zap.Stringer("doctorId", id), zap.Error(err))
		s.profiles.Invalidate(ctx, id)
	}
	return p, nil
}

// SetStatus approves or rejects a doctor. Admins and owners only.
func (s *DoctorService) SetStatus(ctx context.Context, actor Actor, id uuid.UUID, status model.DoctorStatus) (DoctorProfile, error) {
	if !actor.IsStaff() {
		return DoctorProfile{}, ErrForbidden
	}
	if !status.Valid() {
		return DoctorProfile{}, invalid("status", "must be one of pending, approved, rejected")
	}
	if err := s.store.Doctors.UpdateStatus(ctx, id, status); err != nil {
		return DoctorProfile{}, notFound("doctor", err)
	}
	s.profiles.Invalidate(ctx, id)

	s.logger.Info("doctor.status.changed",
		zap.Stringer("doctorId", id),
		zap.String("status", string(status)),
		zap.Stringer("by", actor.UserID),
	)
	return s.Get(ctx, id)
}
