package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/Leganyst/clinic-booking/internal/auth"
	"github.com/Leganyst/clinic-booking/internal/cache"
	"github.com/Leganyst/clinic-booking/internal/calendar"
	"github.com/Leganyst/clinic-booking/internal/model"
	"github.com/Leganyst/clinic-booking/internal/repository"
)

var validate = validator.New()

const maxAge = 140

type RegisterRequest struct {
	Name            string
	Email           string
	Password        string
	PasswordConfirm string
	Role            string
	Phone           string
	Age             *int
	Language        string

	// doctor profile
	Department   string
	CVURL        string
	Locations    []string
	WorkingTimes []model.WorkingTime
}

// UpdateMeRequest holds the whitelisted profile fields; nil means unchanged.
// Doctor fields are ignored for other roles.
type UpdateMeRequest struct {
	Email    *string
	Name     *string
	Phone    *string
	Age      *int
	Language *string

	Locations    *[]string
	Department   *string
	CVURL        *string
	WorkingTimes *[]model.WorkingTime
}

// Profile is the authenticated user with the profile matching the role.
type Profile struct {
	User    *model.User
	Role    string
	Doctor  *model.Doctor
	Patient *model.Patient
}

type IdentityService struct {
	store    *repository.Store
	tokens   *auth.TokenManager
	profiles cache.Store[DoctorProfile]
	ratings  *RatingAggregator
	now      func() time.Time
	logger   *zap.Logger
}

func NewIdentityService(
	store *repository.Store,
	tokens *auth.TokenManager,
	profiles cache.Store[DoctorProfile],
	ratings *RatingAggregator,
	logger *zap.Logger,
) *IdentityService {
	if profiles == nil {
		profiles = cache.Noop[DoctorProfile]{}
	}
	return &IdentityService{
		store:    store,
		tokens:   tokens,
		profiles: profiles,
		ratings:  ratings,
		now:      time.Now,
		logger:   logger.Named("identity"),
	}
}

func validateEmail(email string) error {
	if err := validate.Var(email, "required,email"); err != nil {
		return invalid("email", "must be a valid email address")
	}
	return nil
}

func validateAge(age *int) error {
	if age != nil && (*age < 0 || *age > maxAge) {
		return invalid("age", fmt.Sprintf("must be between 0 and %d", maxAge))
	}
	return nil
}

func validatePassword(password, confirm string) error {
	if err := auth.CheckPasswordStrength(password); err != nil {
		return invalid("password", err.Error())
	}
	if password != confirm {
		return invalid("passwordConfirm", "passwords do not match")
	}
	return nil
}

func validateWorkingTimes(times []model.WorkingTime) error {
	for _, wt := range times {
		if wt.DayOfWeek < 0 || wt.DayOfWeek > 6 {
			return invalid("workingTimes", "dayOfWeek must be between 0 and 6")
		}
		if _, err := calendar.DayRange(time.Time{}, wt.Start, wt.End); err != nil {
			return invalid("workingTimes", err.Error())
		}
	}
	return nil
}

func marshalJSON(v any) (datatypes.JSON, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

func emailTaken(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: email is already registered", ErrConflict)
	}
	return err
}

// Register creates the user, the role link and the doctor or patient profile
// in one transaction.
func (s *IdentityService) Register(ctx context.Context, req RegisterRequest) (*model.User, error) {
	if req.Role != model.RoleDoctor && req.Role != model.RolePatient {
		return nil, invalid("role", "please specify a valid role")
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, invalid("name", "is required")
	}
	if err := validateEmail(req.Email); err != nil {
		return nil, err
	}
	if err := validatePassword(req.Password, req.PasswordConfirm); err != nil {
		return nil, err
	}
	if err := validateAge(req.Age); err != nil {
		return nil, err
	}
	if req.Role == model.RoleDoctor {
		if strings.TrimSpace(req.Department) == "" {
			return nil, invalid("department", "is required for doctors")
		}
		if err := validateWorkingTimes(req.WorkingTimes); err != nil {
			return nil, err
		}
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user := &model.User{
		Name:         strings.TrimSpace(req.Name),
		Email:        req.Email,
		PasswordHash: hash,
		Phone:        req.Phone,
		Age:          req.Age,
		Language:     req.Language,
	}

	err = s.store.Transaction(ctx, func(tx *repository.Store) error {
		if err := tx.Users.Create(ctx, user); err != nil {
			return emailTaken(err)
		}
		if err := tx.Users.SetRole(ctx, user.ID, req.Role); err != nil {
			return fmt.Errorf("set role: %w", err)
		}

		if req.Role == model.RolePatient {
			return tx.Patients.Create(ctx, &model.Patient{UserID: user.ID})
		}

		locations, err := marshalJSON(nonNil(req.Locations))
		if err != nil {
			return err
		}
		hours, err := marshalJSON(nonNil(req.WorkingTimes))
		if err != nil {
			return err
		}
		return tx.Doctors.Create(ctx, &model.Doctor{
			UserID:       user.ID,
			Status:       model.DoctorStatusPending,
			Department:   req.Department,
			CVURL:        req.CVURL,
			Locations:    locations,
			WorkingTimes: hours,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("user.registered", zap.Stringer("userId", user.ID), zap.String("role", req.Role))
	return user, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// Login checks the credentials and issues a token.
func (s *IdentityService) Login(ctx context.Context, email, password string) (string, error) {
	user, err := s.store.Users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", err
	}
	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return "", ErrInvalidCredentials
		}
		return "", err
	}
	return s.tokens.Issue(user.ID)
}

// Authenticate resolves a bearer token into the acting user.
func (s *IdentityService) Authenticate(ctx context.Context, token string) (Actor, error) {
	userID, issuedAt, err := s.tokens.Parse(token)
	if err != nil {
		return Actor{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	user, err := s.store.Users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Actor{}, fmt.Errorf("%w: user no longer exists", ErrUnauthorized)
		}
		return Actor{}, err
	}
	if auth.IssuedBefore(issuedAt, user.PasswordChangedAt) {
		return Actor{}, ErrTokenStale
	}
	return s.actorFor(ctx, user.ID)
}

func (s *IdentityService) actorFor(ctx context.Context, userID uuid.UUID) (Actor, error) {
	role, err := s.store.Users.GetRole(ctx, userID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return Actor{}, err
	}
	actor := Actor{UserID: userID, Role: role}

	switch role {
	case model.RoleDoctor:
		d, err := s.store.Doctors.GetByUserID(ctx, userID)
		if err == nil {
			actor.DoctorID = ptr(d.ID)
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return Actor{}, err
		}
	case model.RolePatient:
		p, err := s.store.Patients.GetByUserID(ctx, userID)
		if err == nil {
			actor.PatientID = ptr(p.ID)
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return Actor{}, err
		}
	}
	return actor, nil
}

func (s *IdentityService) Me(ctx context.Context, actor Actor) (*Profile, error) {
	user, err := s.store.Users.GetByID(ctx, actor.UserID)
	if err != nil {
		return nil, notFound("user", err)
	}
	p := &Profile{User: user, Role: actor.Role}
	if actor.DoctorID != nil {
		if p.Doctor, err = s.store.Doctors.GetByID(ctx, *actor.DoctorID); err != nil {
			return nil, notFound("doctor", err)
		}
	}
	if actor.PatientID != nil {
		if p.Patient, err = s.store.Patients.GetByID(ctx, *actor.PatientID); err != nil {
			return nil, notFound("patient", err)
		}
	}
	return p, nil
}

// UpdateMe applies the whitelisted fields to the user and, for doctors,
// to the doctor profile.
func (s *IdentityService) UpdateMe(ctx context.Context, actor Actor, req UpdateMeRequest) (*Profile, error) {
	userUpdates := map[string]any{}
	if req.Email != nil {
		if err := validateEmail(*req.Email); err != nil {
			return nil, err
		}
		userUpdates["email"] = *req.Email
	}
	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			return nil, invalid("name", "must not be empty")
		}
		userUpdates["name"] = strings.TrimSpace(*req.Name)
	}
	if req.Phone != nil {
		userUpdates["phone"] = *req.Phone
	}
	if req.Age != nil {
		if err := validateAge(req.Age); err != nil {
			return nil, err
		}
		userUpdates["age"] = *req.Age
	}
	if req.Language != nil {
		userUpdates["language"] = *req.Language
	}

	doctorUpdates := map[string]any{}
	if actor.DoctorID != nil {
		if req.Department != nil {
			if strings.TrimSpace(*req.Department) == "" {
				return nil, invalid("department", "must not be empty")
			}
			doctorUpdates["department"] = *req.Department
		}
		if req.CVURL != nil {
			doctorUpdates["cv_url"] = *req.CVURL
		}
		if req.Locations != nil {
			raw, err := marshalJSON(nonNil(*req.Locations))
			if err != nil {
				return nil, err
			}
			doctorUpdates["locations"] = raw
		}
		if req.WorkingTimes != nil {
			if err := validateWorkingTimes(*req.WorkingTimes); err != nil {
				return nil, err
			}
			raw, err := marshalJSON(nonNil(*req.WorkingTimes))
			if err != nil {
				return nil, err
			}
			doctorUpdates["working_times"] = raw
		}
	}

	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		if err := tx.Users.Update(ctx, actor.UserID, userUpdates); err != nil {
			return notFound("user", emailTaken(err))
		}
		if len(doctorUpdates) > 0 {
			if err := tx.Doctors.Update(ctx, *actor.DoctorID, doctorUpdates); err != nil {
				return notFound("doctor", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if actor.DoctorID != nil {
		s.profiles.Invalidate(ctx, *actor.DoctorID)
	}
	return s.Me(ctx, actor)
}

// UpdatePassword replaces the password. Tokens issued before the change stop working.
func (s *IdentityService) UpdatePassword(ctx context.Context, actor Actor, current, next, confirm string) error {
	user, err := s.store.Users.GetByID(ctx, actor.UserID)
	if err != nil {
		return notFound("user", err)
	}
	if err := auth.ComparePassword(user.PasswordHash, current); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return fmt.Errorf("%w: current password is incorrect", ErrInvalidCredentials)
		}
		return err
	}
	if err := validatePassword(next, confirm); err != nil {
		return err
	}
	hash, err := auth.HashPassword(next)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.store.Users.Update(ctx, actor.UserID, map[string]any{
		"password_hash":       hash,
		"password_changed_at": s.now().UTC(),
	})
}

// DeleteMe removes the account together with its profile, appointments and
// reviews. Ratings of the doctors the patient reviewed are recomputed after
// the commit.
func (s *IdentityService) DeleteMe(ctx context.Context, actor Actor) error {
	var reviewed []uuid.UUID
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		if actor.PatientID != nil {
			ids, err := tx.Reviews.DoctorIDsByPatient(ctx, *actor.PatientID)
			if err != nil {
				return fmt.Errorf("reviewed doctors: %w", err)
			}
			reviewed = ids
			if err := tx.Reviews.DeleteByPatient(ctx, *actor.PatientID); err != nil {
				return err
			}
			if err := tx.Appointments.DeleteByPatient(ctx, *actor.PatientID); err != nil {
				return err
			}
		}
		if actor.DoctorID != nil {
			if err := tx.Reviews.DeleteByDoctor(ctx, *actor.DoctorID); err != nil {
				return err
			}
			if err := tx.Appointments.DeleteByDoctor(ctx, *actor.DoctorID); err != nil {
				return err
			}
		}
		if err := tx.Doctors.DeleteByUserID(ctx, actor.UserID); err != nil {
			return err
		}
		if err := tx.Patients.DeleteByUserID(ctx, actor.UserID); err != nil {
			return err
		}
		return notFound("user", tx.Users.Delete(ctx, actor.UserID))
	})
	if err != nil {
		return err
	}
	if actor.DoctorID != nil {
		s.profiles.Invalidate(ctx, *actor.DoctorID)
	}
	s.logger.Info("user.deleted", zap.Stringer("userId", actor.UserID), zap.Int("reviewedDoctors", len(reviewed)))

	if s.ratings == nil {
		return nil
	}
	// the reconciler repairs whatever fails here
	for _, doctorID := range reviewed {
		s.ratings.Refresh(ctx, doctorID)
	}
	return nil
}

// CreateAdmin registers an admin account. Owners only.
func (s *IdentityService) CreateAdmin(ctx context.Context, actor Actor, name, email, password string) (*model.User, error) {
	if !actor.Is(model.RoleOwner) {
		return nil, ErrForbidden
	}
	if strings.TrimSpace(name) == "" {
		return nil, invalid("name", "is required")
	}
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validatePassword(password, password); err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &model.User{Name: strings.TrimSpace(name), Email: email, PasswordHash: hash}
	err = s.store.Transaction(ctx, func(tx *repository.Store) error {
		if err := tx.Users.Create(ctx, user); err != nil {
			return emailTaken(err)
		}
		return tx.Users.SetRole(ctx, user.ID, model.RoleAdmin)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("admin.created", zap.Stringer("userId", user.ID), zap.Stringer("by", actor.UserID))
	return user, nil
}

// DeleteAdmin removes an admin account. Owners only.
func (s *IdentityService) DeleteAdmin(ctx context.Context, actor Actor, userID uuid.UUID) error {
	if !actor.Is(model.RoleOwner) {
		return ErrForbidden
	}
	role, err := s.store.Users.GetRole(ctx, userID)
	if err != nil {
		return notFound("admin", err)
	}
	if role != model.RoleAdmin {
		return fmt.Errorf("admin: %w", ErrNotFound)
	}
	if err := s.store.Users.Delete(ctx, userID); err != nil {
		return notFound("admin", err)
	}
	s.logger.Info("admin.deleted", zap.Stringer("userId", userID), zap.Stringer("by", actor.UserID))
	return nil
}

// AddPatientReport appends a report to the record of a patient the doctor
// has an appointment with. patientUserID is the patient's user id.
func (s *IdentityService) AddPatientReport(
	ctx context.Context,
	actor Actor,
	patientUserID uuid.UUID,
	notes string,
	files []string,
) (model.PatientReport, error) {
	if !actor.Is(model.RoleDoctor) || actor.DoctorID == nil {
		return model.PatientReport{}, ErrForbidden
	}
	if strings.TrimSpace(notes) == "" && len(files) == 0 {
		return model.PatientReport{}, invalid("notes", "a report needs notes or files")
	}

	patient, err := s.store.Patients.GetByUserID(ctx, patientUserID)
	if err != nil {
		return model.PatientReport{}, notFound("patient", err)
	}
	ok, err := s.store.Appointments.ExistsForPair(ctx, *actor.DoctorID, patient.ID)
	if err != nil {
		return model.PatientReport{}, err
	}
	if !ok {
		return model.PatientReport{}, fmt.Errorf("%w: you can only update your patients reports", ErrForbidden)
	}

	reports, err := patient.ReportList()
	if err != nil {
		return model.PatientReport{}, fmt.Errorf("decode reports: %w", err)
	}
	report := model.PatientReport{
		ID:        uuid.New(),
		DoctorID:  *actor.DoctorID,
		Notes:     notes,
		Files:     nonNil(files),
		CreatedAt: s.now().UTC(),
	}
	raw, err := marshalJSON(append(reports, report))
	if err != nil {
		return model.PatientReport{}, err
	}
	if err := s.store.Patients.UpdateReports(ctx, patient.ID, raw); err != nil {
		return model.PatientReport{}, notFound("patient", err)
	}
	return report, nil
}

// DeletePatientReport removes a report the doctor wrote.
func (s *IdentityService) DeletePatientReport(ctx context.Context, actor Actor, patientUserID, reportID uuid.UUID) error {
	if !actor.Is(model.RoleDoctor) || actor.DoctorID == nil {
		return ErrForbidden
	}
	patient, err := s.store.Patients.GetByUserID(ctx, patientUserID)
	if err != nil {
		return notFound("patient", err)
	}
	reports, err := patient.ReportList()
	if err != nil {
		return fmt.Errorf("decode reports: %w", err)
	}

	kept := make([]model.PatientReport, 0, len(reports))
	found := false
	for _, r := range reports {
		if r.ID != reportID {
			kept = append(kept, r)
			continue
		}
		if r.DoctorID != *actor.DoctorID {
			return fmt.Errorf("%w: you can only delete your own reports", ErrForbidden)
		}
		found = true
	}
	if !found {
		return fmt.Errorf("report: %w", ErrNotFound)
	}

	raw, err := marshalJSON(kept)
	if err != nil {
		return err
	}
	return notFound("patient", s.store.Patients.UpdateReports(ctx, patient.ID, raw))
}
