package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Leganyst/clinic-booking/internal/model"
)

const strongPassword = "Secr3t!pass"

func registerPatient(t *testing.T, env *testEnv, email string) *model.User {
	t.Helper()
	u, err := env.identity.Register(context.Background(), RegisterRequest{
		Name: "Pat", Email: email, Password: strongPassword, PasswordConfirm: strongPassword, Role: model.RolePatient,
	})
	if err != nil {
		t.Fatalf("register patient: %v", err)
	}
	return u
}

func TestIdentity_RegisterLoginAuthenticate(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	u := registerPatient(t, env, "Pat@Clinic.test")
	if u.Email != "pat@clinic.test" {
		t.Fatalf("email must be normalized, got %q", u.Email)
	}

	token, err := env.identity.Login(ctx, "pat@clinic.test", strongPassword)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	actor, err := env.identity.Authenticate(ctx, token)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if actor.UserID != u.ID || actor.Role != model.RolePatient || actor.PatientID == nil {
		t.Fatalf("unexpected actor: %+v", actor)
	}

	if _, err := env.identity.Login(ctx, "pat@clinic.test", "Wr0ng!pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password: expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := env.identity.Login(ctx, "nobody@clinic.test", strongPassword); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown email: expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := env.identity.Authenticate(ctx, "not-a-token"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("garbage token: expected ErrUnauthorized, got %v", err)
	}

	_, err = env.identity.Register(ctx, RegisterRequest{
		Name: "Again", Email: "pat@clinic.test", Password: strongPassword, PasswordConfirm: strongPassword, Role: model.RolePatient,
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate email: expected ErrConflict, got %v", err)
	}
}

func TestIdentity_RegisterValidation(t *testing.T) {
	env := newTestEnv(t, nil)
	age := 200
	base := RegisterRequest{Name: "X", Email: "x@clinic.test", Password: strongPassword, PasswordConfirm: strongPassword, Role: model.RolePatient}

	cases := map[string]func(r *RegisterRequest){
		"role":         func(r *RegisterRequest) { r.Role = model.RoleAdmin },
		"email":        func(r *RegisterRequest) { r.Email = "not-an-email" },
		"weak":         func(r *RegisterRequest) { r.Password, r.PasswordConfirm = "weak", "weak" },
		"mismatch":     func(r *RegisterRequest) { r.PasswordConfirm = "Other1!pass" },
		"age":          func(r *RegisterRequest) { r.Age = &age },
		"department":   func(r *RegisterRequest) { r.Role = model.RoleDoctor },
		"working time": func(r *RegisterRequest) {
			r.Role, r.Department = model.RoleDoctor, "x"
			r.WorkingTimes = []model.WorkingTime{{DayOfWeek: 8, Start: "09:00", End: "10:00"}}
		},
	}
	for name, mutate := range cases {
		req := base
		mutate(&req)
		if _, err := env.identity.Register(context.Background(), req); !errors.Is(err, ErrValidation) {
			t.Fatalf("%s: expected ErrValidation, got %v", name, err)
		}
	}
}

func TestIdentity_DoctorRegistrationAndUpdateMe(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	u, err := env.identity.Register(ctx, RegisterRequest{
		Name: "Dr", Email: "dr@clinic.test", Password: strongPassword, PasswordConfirm: strongPassword,
		Role: model.RoleDoctor, Department: "neurology", Locations: []string{"Cairo"},
		WorkingTimes: []model.WorkingTime{{DayOfWeek: 1, Start: "09:00", End: "12:00"}},
	})
	if err != nil {
		t.Fatalf("register doctor: %v", err)
	}
	token, err := env.identity.Login(ctx, "dr@clinic.test", strongPassword)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	actor, err := env.identity.Authenticate(ctx, token)
	if err != nil || actor.DoctorID == nil {
		t.Fatalf("doctor actor = %+v, %v", actor, err)
	}

	me, err := env.identity.Me(ctx, actor)
	if err != nil || me.Doctor == nil || me.Doctor.Status != model.DoctorStatusPending || me.User.ID != u.ID {
		t.Fatalf("Me = %+v, %v", me, err)
	}

	dept := "cardiology"
	name := "Dr. Who"
	locations := []string{"Alexandria", "Giza"}
	me, err = env.identity.UpdateMe(ctx, actor, UpdateMeRequest{Name: &name, Department: &dept, Locations: &locations})
	if err != nil {
		t.Fatalf("UpdateMe: %v", err)
	}
	got, _ := me.Doctor.LocationList()
	if me.User.Name != name || me.Doctor.Department != dept || len(got) != 2 {
		t.Fatalf("unexpected profile after update: %+v %+v", me.User, me.Doctor)
	}

	profile, err := env.doctors.Get(ctx, *actor.DoctorID)
	if err != nil || profile.Name != name || profile.Department != dept {
		t.Fatalf("doctor profile = %+v, %v", profile, err)
	}

	// doctor fields are ignored for patients
	pu := registerPatient(t, env, "p@clinic.test")
	patientActor, err := env.identity.actorFor(ctx, pu.ID)
	if err != nil {
		t.Fatalf("actorFor: %v", err)
	}
	if _, err := env.identity.UpdateMe(ctx, patientActor, UpdateMeRequest{Department: &dept}); err != nil {
		t.Fatalf("patient UpdateMe: %v", err)
	}

	taken := "p@clinic.test"
	if _, err := env.identity.UpdateMe(ctx, actor, UpdateMeRequest{Email: &taken}); !errors.Is(err, ErrConflict) {
		t.Fatalf("taken email: expected ErrConflict, got %v", err)
	}
}

func TestIdentity_PasswordChangeInvalidatesOldTokens(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	registerPatient(t, env, "pw@clinic.test")

	issued := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	env.identity.tokens = env.identity.tokens.WithClock(func() time.Time { return issued })
	oldToken, err := env.identity.Login(ctx, "pw@clinic.test", strongPassword)
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	// the token is checked at issue time plus a minute
	env.identity.tokens = env.identity.tokens.WithClock(func() time.Time { return issued.Add(time.Minute) })
	actor, err := env.identity.Authenticate(ctx, oldToken)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}

	if err := env.identity.UpdatePassword(ctx, actor, "Wr0ng!pass", "N3w!password", "N3w!password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong current password: expected ErrInvalidCredentials, got %v", err)
	}
	if err := env.identity.UpdatePassword(ctx, actor, strongPassword, "N3w!password", "mismatch"); !errors.Is(err, ErrValidation) {
		t.Fatalf("mismatched confirm: expected ErrValidation, got %v", err)
	}

	env.identity.now = func() time.Time { return issued.Add(30 * time.Second) }
	if err := env.identity.UpdatePassword(ctx, actor, strongPassword, "N3w!password", "N3w!password"); err != nil {
		t.Fatalf("UpdatePassword: %v", err)
	}

	if _, err := env.identity.Authenticate(ctx, oldToken); !errors.Is(err, ErrTokenStale) {
		t.Fatalf("old token: expected ErrTokenStale, got %v", err)
	}

	env.identity.tokens = env.identity.tokens.WithClock(func() time.Time { return issued.Add(time.Minute) })
	newToken, err := env.identity.Login(ctx, "pw@clinic.test", "N3w!password")
	if err != nil {
		t.Fatalf("login with new password: %v", err)
	}
	if _, err := env.identity.Authenticate(ctx, newToken); err != nil {
		t.Fatalf("new token: %v", err)
	}
}

func TestIdentity_AdminsAndDeleteMe(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	owner := Actor{UserID: env.seedUser(t, model.RoleOwner).ID, Role: model.RoleOwner}
	admin := env.admin(t)

	if _, err := env.identity.CreateAdmin(ctx, admin, "A", "a@clinic.test", strongPassword); !errors.Is(err, ErrForbidden) {
		t.Fatalf("admin creating admin: expected ErrForbidden, got %v", err)
	}
	created, err := env.identity.CreateAdmin(ctx, owner, "A", "a@clinic.test", strongPassword)
	if err != nil {
		t.Fatalf("CreateAdmin: %v", err)
	}
	if role, _ := env.store.Users.GetRole(ctx, created.ID); role != model.RoleAdmin {
		t.Fatalf("role = %q, want admin", role)
	}

	patient := registerPatient(t, env, "keep@clinic.test")
	if err := env.identity.DeleteAdmin(ctx, owner, patient.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("deleting a non-admin: expected ErrNotFound, got %v", err)
	}
	if err := env.identity.DeleteAdmin(ctx, owner, created.ID); err != nil {
		t.Fatalf("DeleteAdmin: %v", err)
	}
	if _, err := env.store.Users.GetByID(ctx, created.ID); err == nil {
		t.Fatalf("admin must be gone")
	}

	actor, err := env.identity.actorFor(ctx, patient.ID)
	if err != nil {
		t.Fatalf("actorFor: %v", err)
	}
	if err := env.identity.DeleteMe(ctx, actor); err != nil {
		t.Fatalf("DeleteMe: %v", err)
	}
	if _, err := env.store.Patients.GetByUserID(ctx, patient.ID); err == nil {
		t.Fatalf("patient profile must be removed")
	}
	if _, err := env.identity.Login(ctx, "keep@clinic.test", strongPassword); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("deleted user login: expected ErrInvalidCredentials, got %v", err)
	}
}

func TestIdentity_DeleteMeRecomputesReviewedRatings(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	doctor, doctorActor := env.seedDoctor(t, model.DoctorStatusApproved)
	_, kept := env.seedPatient(t)
	leaving, leavingActor := env.seedPatient(t)

	for _, r := range []struct {
		actor  Actor
		rating int
	}{{kept, 5}, {leavingActor, 1}} {
		if _, err := env.reviews.Create(ctx, r.actor, CreateReviewRequest{DoctorID: doctor.ID, Rating: r.rating}); err != nil {
			t.Fatalf("create review: %v", err)
		}
	}
	at := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	if _, err := env.appointments.Book(ctx, leavingActor, BookRequest{DoctorID: doctor.ID, PatientID: leaving.ID, BookingDate: at}); err != nil {
		t.Fatalf("book: %v", err)
	}
	if got, _ := env.doctorRating(t, doctor.ID); got != (Rating{Count: 2, Mean: 3.0}) {
		t.Fatalf("rating before delete = %+v", got)
	}

	actor, err := env.identity.actorFor(ctx, leavingActor.UserID)
	if err != nil {
		t.Fatalf("actorFor: %v", err)
	}
	if err := env.identity.DeleteMe(ctx, actor); err != nil {
		t.Fatalf("DeleteMe: %v", err)
	}

	got, stale := env.doctorRating(t, doctor.ID)
	if got != (Rating{Count: 1, Mean: 5.0}) || stale {
		t.Fatalf("rating after delete = %+v stale=%v, want {1 5}", got, stale)
	}
	_, total, err := env.store.Reviews.ListByDoctor(ctx, doctor.ID, 0, 0)
	if err != nil || total != 1 {
		t.Fatalf("reviews left = %d, %v", total, err)
	}
	_, total, err = env.store.Appointments.ListByDoctor(ctx, doctor.ID, nil, 0, 0)
	if err != nil || total != 0 {
		t.Fatalf("appointments left = %d, %v", total, err)
	}
	report, err := env.aggregator.Reconcile(ctx)
	if err != nil || len(report.Recomputed) != 0 {
		t.Fatalf("reconcile after delete = %+v, %v", report, err)
	}

	// a deleted doctor takes their reviews along
	actor, err = env.identity.actorFor(ctx, doctorActor.UserID)
	if err != nil {
		t.Fatalf("actorFor doctor: %v", err)
	}
	if err := env.identity.DeleteMe(ctx, actor); err != nil {
		t.Fatalf("DeleteMe doctor: %v", err)
	}
	stats, err := env.store.Reviews.AggregateAll(ctx)
	if err != nil || len(stats) != 0 {
		t.Fatalf("aggregates after doctor delete = %+v, %v", stats, err)
	}
}

func TestIdentity_PatientReports(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	doctor, doctorActor := env.seedDoctor(t, model.DoctorStatusApproved)
	_, otherDoctor := env.seedDoctor(t, model.DoctorStatusApproved)
	patient, patientActor := env.seedPatient(t)

	if _, err := env.identity.AddPatientReport(ctx, doctorActor, patientActor.UserID, "notes", nil); !errors.Is(err, ErrForbidden) {
		t.Fatalf("no appointment yet: expected ErrForbidden, got %v", err)
	}

	at := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	if _, err := env.appointments.Book(ctx, patientActor, BookRequest{DoctorID: doctor.ID, PatientID: patient.ID, BookingDate: at}); err != nil {
		t.Fatalf("book: %v", err)
	}

	report, err := env.identity.AddPatientReport(ctx, doctorActor, patientActor.UserID, "blood test", []string{"cbc.pdf"})
	if err != nil {
		t.Fatalf("AddPatientReport: %v", err)
	}
	if _, err := env.identity.AddPatientReport(ctx, patientActor, patientActor.UserID, "x", nil); !errors.Is(err, ErrForbidden) {
		t.Fatalf("patient adding report: expected ErrForbidden, got %v", err)
	}

	stored, err := env.store.Patients.GetByID(ctx, patient.ID)
	if err != nil {
		t.Fatalf("get patient: %v", err)
	}
	reports, _ := stored.ReportList()
	if len(reports) != 1 || reports[0].ID != report.ID || reports[0].Files[0] != "cbc.pdf" {
		t.Fatalf("unexpected reports: %+v", reports)
	}

	if err := env.identity.DeletePatientReport(ctx, otherDoctor, patientActor.UserID, report.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("foreign doctor delete: expected ErrForbidden, got %v", err)
	}
	if err := env.identity.DeletePatientReport(ctx, doctorActor, patientActor.UserID, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing report: expected ErrNotFound, got %v", err)
	}
	if err := env.identity.DeletePatientReport(ctx, doctorActor, patientActor.UserID, report.ID); err != nil {
		t.Fatalf("DeletePatientReport: %v", err)
	}
}

func TestDoctors_SetStatus(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	doctor, doctorActor := env.seedDoctor(t, model.DoctorStatusPending)

	if _, err := env.doctors.SetStatus(ctx, doctorActor, doctor.ID, model.DoctorStatusApproved); !errors.Is(err, ErrForbidden) {
		t.Fatalf("self approval: expected ErrForbidden, got %v", err)
	}
	if _, err := env.doctors.SetStatus(ctx, env.admin(t), doctor.ID, "retired"); !errors.Is(err, ErrValidation) {
		t.Fatalf("bad status: expected ErrValidation, got %v", err)
	}
	if _, err := env.doctors.SetStatus(ctx, env.admin(t), uuid.New(), model.DoctorStatusApproved); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown doctor: expected ErrNotFound, got %v", err)
	}

	// prime the cache with the pending profile
	if p, err := env.doctors.Get(ctx, doctor.ID); err != nil || p.Status != model.DoctorStatusPending {
		t.Fatalf("Get = %+v, %v", p, err)
	}
	p, err := env.doctors.SetStatus(ctx, env.admin(t), doctor.ID, model.DoctorStatusApproved)
	if err != nil || p.Status != model.DoctorStatusApproved {
		t.Fatalf("SetStatus = %+v, %v", p, err)
	}
}
