package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Leganyst/clinic-booking/internal/auth"
	"github.com/Leganyst/clinic-booking/internal/cache"
	"github.com/Leganyst/clinic-booking/internal/db"
	"github.com/Leganyst/clinic-booking/internal/events"
	"github.com/Leganyst/clinic-booking/internal/model"
	"github.com/Leganyst/clinic-booking/internal/repository"
	"github.com/Leganyst/clinic-booking/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const strongPassword = "Passw0rd!"

// monday is a Monday in the future, the seeded doctors work 09:00-10:00 on Mondays.
var monday = time.Date(2030, time.January, 7, 0, 0, 0, 0, time.UTC)

type testServer struct {
	handler http.Handler
	store   *repository.Store
	tokens  *auth.TokenManager
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

func newTestServer(t *testing.T, pinger Pinger) *testServer {
	t.Helper()
	gormDB, err := db.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := model.AutoMigrate(gormDB); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := gormDB.DB(); err == nil {
			sqlDB.Close()
		}
	})

	logger := zap.NewNop()
	store := repository.NewStore(gormDB)
	tokens := auth.NewTokenManager("test-secret", time.Hour)
	profiles := cache.Noop[service.DoctorProfile]{}
	pub := events.Noop{}
	agg := service.NewRatingAggregator(store, profiles, pub, logger)

	if pinger == nil {
		pinger = store
	}
	h := NewHandler(Services{
		Identity:     service.NewIdentityService(store, tokens, profiles, agg, logger),
		Doctors:      service.NewDoctorService(store, profiles, logger),
		Appointments: service.NewAppointmentService(store, service.NewBookingGuard(15*time.Minute), nil, pub, time.UTC, logger),
		Reviews:      service.NewReviewService(store, agg, pub, logger),
		DB:           pinger,
	}, Options{AllowedOrigins: []string{"http://clinic.test"}, Location: time.UTC}, logger)

	return &testServer{handler: h, store: store, tokens: tokens}
}

type response struct {
	code int
	body struct {
		Status   string          `json:"status"`
		Data     json.RawMessage `json:"data"`
		MetaData json.RawMessage `json:"metaData"`
	}
	header http.Header
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	out := response{code: rec.Code, header: rec.Header()}
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &out.body); err != nil {
			t.Fatalf("%s %s: decode %q: %v", method, path, rec.Body.String(), err)
		}
	}
	return out
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	return v
}

func expect(t *testing.T, r response, code int) {
	t.Helper()
	if r.code != code {
		t.Fatalf("expected status %d, got %d (%s)", code, r.code, r.body.Data)
	}
}

func (s *testServer) registerAndLogin(t *testing.T, body map[string]any) string {
	t.Helper()
	body["password"] = strongPassword
	body["passwordConfirm"] = strongPassword
	expect(t, s.do(t, http.MethodPost, "/api/v1/users/register", "", body), http.StatusCreated)

	r := s.do(t, http.MethodPost, "/api/v1/users/login", "", map[string]any{
		"email":    body["email"],
		"password": strongPassword,
	})
	expect(t, r, http.StatusOK)
	return decode[struct {
		Token string `json:"token"`
	}](t, r.body.Data).Token
}

func (s *testServer) patient(t *testing.T, email string) string {
	t.Helper()
	return s.registerAndLogin(t, map[string]any{"name": "Pat", "email": email, "role": "patient"})
}

func (s *testServer) doctor(t *testing.T, email string) (string, uuid.UUID) {
	t.Helper()
	token := s.registerAndLogin(t, map[string]any{
		"name":         "Doc",
		"email":        email,
		"role":         "doctor",
		"department":   "cardiology",
		"workingTimes": []map[string]any{{"dayOfWeek": 1, "start": "09:00", "end": "10:00"}},
	})
	r := s.do(t, http.MethodGet, "/api/v1/users/me", token, nil)
	expect(t, r, http.StatusOK)
	me := decode[struct {
		DoctorProfile struct {
			ID uuid.UUID `json:"id"`
		} `json:"doctorProfile"`
	}](t, r.body.Data)
	return token, me.DoctorProfile.ID
}

func (s *testServer) staff(t *testing.T, role string) string {
	t.Helper()
	ctx := context.Background()
	u := &model.User{Name: role, Email: uuid.NewString() + "@clinic.test", PasswordHash: "x"}
	if err := s.store.Users.Create(ctx, u); err != nil {
		t.Fatalf("seed %s: %v", role, err)
	}
	if err := s.store.Users.SetRole(ctx, u.ID, role); err != nil {
		t.Fatalf("seed %s role: %v", role, err)
	}
	token, err := s.tokens.Issue(u.ID)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, nil)
	r := s.do(t, http.MethodGet, "/healthz", "", nil)
	expect(t, r, http.StatusOK)
	if r.body.Status != "success" {
		t.Fatalf("expected success envelope, got %q", r.body.Status)
	}

	down := newTestServer(t, failingPinger{})
	r = down.do(t, http.MethodGet, "/healthz", "", nil)
	expect(t, r, http.StatusServiceUnavailable)
	if r.body.Status != "error" {
		t.Fatalf("expected error envelope, got %q", r.body.Status)
	}
}

func TestUsers_RegisterLoginMe(t *testing.T) {
	s := newTestServer(t, nil)
	token := s.patient(t, "Pat@Clinic.Test")

	r := s.do(t, http.MethodGet, "/api/v1/users/me", token, nil)
	expect(t, r, http.StatusOK)
	me := decode[map[string]any](t, r.body.Data)
	if me["email"] != "pat@clinic.test" || me["role"] != "patient" {
		t.Fatalf("unexpected profile: %v", me)
	}
	if _, leaked := me["passwordHash"]; leaked {
		t.Fatalf("password hash must not be exposed")
	}
	if _, ok := me["patientProfile"]; !ok {
		t.Fatalf("expected patient profile, got %v", me)
	}

	r = s.do(t, http.MethodPatch, "/api/v1/users/me", token, map[string]any{"name": "Patricia", "age": 31})
	expect(t, r, http.StatusOK)
	if got := decode[map[string]any](t, r.body.Data)["name"]; got != "Patricia" {
		t.Fatalf("expected updated name, got %v", got)
	}

	// wrong password and duplicate email
	expect(t, s.do(t, http.MethodPost, "/api/v1/users/login", "", map[string]any{
		"email": "pat@clinic.test", "password": "nope",
	}), http.StatusUnauthorized)
	expect(t, s.do(t, http.MethodPost, "/api/v1/users/register", "", map[string]any{
		"name": "Other", "email": "pat@clinic.test", "role": "patient",
		"password": strongPassword, "passwordConfirm": strongPassword,
	}), http.StatusConflict)

	r = s.do(t, http.MethodDelete, "/api/v1/users/me", token, nil)
	expect(t, r, http.StatusNoContent)
	expect(t, s.do(t, http.MethodGet, "/api/v1/users/me", token, nil), http.StatusUnauthorized)
}

func TestUsers_BindingErrorsListFields(t *testing.T) {
	s := newTestServer(t, nil)

	r := s.do(t, http.MethodPost, "/api/v1/users/register", "", map[string]any{"email": "not-an-email", "role": "nurse"})
	expect(t, r, http.StatusBadRequest)
	if r.body.Status != "fail" {
		t.Fatalf("expected fail envelope, got %q", r.body.Status)
	}
	data := decode[struct {
		Fields map[string]string `json:"fields"`
	}](t, r.body.Data)
	for _, f := range []string{"name", "email", "role", "password"} {
		if _, ok := data.Fields[f]; !ok {
			t.Fatalf("expected field %q in %v", f, data.Fields)
		}
	}

	// weak password passes binding but not the service policy
	r = s.do(t, http.MethodPost, "/api/v1/users/register", "", map[string]any{
		"name": "Pat", "email": "p@clinic.test", "role": "patient",
		"password": "password", "passwordConfirm": "password",
	})
	expect(t, r, http.StatusBadRequest)
}

func TestUsers_PasswordChangeRevokesTokens(t *testing.T) {
	s := newTestServer(t, nil)
	token := s.patient(t, "pat@clinic.test")

	// tokens carry second precision
	time.Sleep(1100 * time.Millisecond)
	r := s.do(t, http.MethodPatch, "/api/v1/users/password", token, map[string]any{
		"currentPassword":    strongPassword,
		"newPassword":        "N3w-Passw0rd",
		"newPasswordConfirm": "N3w-Passw0rd",
	})
	expect(t, r, http.StatusOK)
	expect(t, s.do(t, http.MethodGet, "/api/v1/users/me", token, nil), http.StatusUnauthorized)
}

func TestAuth_MissingTokenAndRoles(t *testing.T) {
	s := newTestServer(t, nil)
	token := s.patient(t, "pat@clinic.test")

	expect(t, s.do(t, http.MethodGet, "/api/v1/appointments/admin", "", nil), http.StatusUnauthorized)
	expect(t, s.do(t, http.MethodGet, "/api/v1/appointments/admin", "garbage", nil), http.StatusUnauthorized)
	expect(t, s.do(t, http.MethodGet, "/api/v1/appointments/admin", token, nil), http.StatusForbidden)
	expect(t, s.do(t, http.MethodGet, "/api/v1/reviews", token, nil), http.StatusForbidden)
	expect(t, s.do(t, http.MethodPost, "/api/v1/users/admins", token, map[string]any{
		"name": "A", "email": "a@clinic.test", "password": strongPassword,
	}), http.StatusForbidden)

	admin := s.staff(t, model.RoleAdmin)
	expect(t, s.do(t, http.MethodGet, "/api/v1/appointments/admin", admin, nil), http.StatusOK)
	expect(t, s.do(t, http.MethodGet, "/api/v1/appointments/not-a-uuid", admin, nil), http.StatusBadRequest)
}

func TestUsers_OwnerManagesAdmins(t *testing.T) {
	s := newTestServer(t, nil)
	owner := s.staff(t, model.RoleOwner)

	r := s.do(t, http.MethodPost, "/api/v1/users/admins", owner, map[string]any{
		"name": "Ada", "email": "ada@clinic.test", "password": strongPassword,
	})
	expect(t, r, http.StatusCreated)
	created := decode[struct {
		Admin struct {
			ID   uuid.UUID `json:"id"`
			Role string    `json:"role"`
		} `json:"admin"`
	}](t, r.body.Data)
	if created.Admin.Role != model.RoleAdmin {
		t.Fatalf("expected admin role, got %q", created.Admin.Role)
	}

	expect(t, s.do(t, http.MethodDelete, "/api/v1/users/admins/"+created.Admin.ID.String(), owner, nil), http.StatusNoContent)
	expect(t, s.do(t, http.MethodDelete, "/api/v1/users/admins/"+created.Admin.ID.String(), owner, nil), http.StatusNotFound)
}

func TestAppointments_BookConflictAndAvailability(t *testing.T) {
	s := newTestServer(t, nil)
	_, doctorID := s.doctor(t, "doc@clinic.test")
	p1 := s.patient(t, "p1@clinic.test")
	p2 := s.patient(t, "p2@clinic.test")

	at := monday.Add(9*time.Hour + 15*time.Minute)
	r := s.do(t, http.MethodPost, "/api/v1/appointments", p1, map[string]any{
		"doctorId": doctorID, "bookingDate": at,
	})
	expect(t, r, http.StatusCreated)
	booked := decode[struct {
		ID     uuid.UUID `json:"id"`
		Status string    `json:"status"`
	}](t, r.body.Data)
	if booked.Status != string(model.AppointmentStatusBooked) {
		t.Fatalf("expected booked, got %q", booked.Status)
	}

	r = s.do(t, http.MethodPost, "/api/v1/appointments", p2, map[string]any{
		"doctorId": doctorID, "bookingDate": at.Add(10 * time.Minute),
	})
	expect(t, r, http.StatusConflict)
	conflict := decode[struct {
		Conflict struct {
			AppointmentID uuid.UUID `json:"appointmentId"`
		} `json:"conflict"`
	}](t, r.body.Data)
	if conflict.Conflict.AppointmentID != booked.ID {
		t.Fatalf("expected conflict with %s, got %s", booked.ID, conflict.Conflict.AppointmentID)
	}

	r = s.do(t, http.MethodGet, "/api/v1/doctors/"+doctorID.String()+"/availability?date=2030-01-07", "", nil)
	expect(t, r, http.StatusOK)
	slots := decode[[]slotView](t, r.body.Data)
	if len(slots) != 1 || !slots[0].Start.Equal(monday.Add(9*time.Hour+45*time.Minute)) {
		t.Fatalf("expected only the 09:45 slot, got %v", slots)
	}
	expect(t, s.do(t, http.MethodGet, "/api/v1/doctors/"+doctorID.String()+"/availability?date=07.01.2030", "", nil),
		http.StatusBadRequest)

	// cancelling frees the slot for the second patient
	r = s.do(t, http.MethodPatch, "/api/v1/appointments/"+booked.ID.String(), p1, map[string]any{"status": "cancelled"})
	expect(t, r, http.StatusOK)
	r = s.do(t, http.MethodPost, "/api/v1/appointments", p2, map[string]any{
		"doctorId": doctorID, "bookingDate": at.Add(10 * time.Minute),
	})
	expect(t, r, http.StatusCreated)

	expect(t, s.do(t, http.MethodPatch, "/api/v1/appointments/"+booked.ID.String(), p1, map[string]any{}), http.StatusBadRequest)
}

func TestAppointments_ListingAndDelete(t *testing.T) {
	s := newTestServer(t, nil)
	doc, doctorID := s.doctor(t, "doc@clinic.test")
	p1 := s.patient(t, "p1@clinic.test")
	admin := s.staff(t, model.RoleAdmin)

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		r := s.do(t, http.MethodPost, "/api/v1/appointments", p1, map[string]any{
			"doctorId": doctorID, "bookingDate": monday.Add(time.Duration(9+i) * time.Hour), "notes": "checkup",
		})
		expect(t, r, http.StatusCreated)
		ids = append(ids, decode[struct {
			ID uuid.UUID `json:"id"`
		}](t, r.body.Data).ID)
	}

	r := s.do(t, http.MethodGet, "/api/v1/appointments/doctor/"+doctorID.String()+"?page=1&limit=2", doc, nil)
	expect(t, r, http.StatusOK)
	meta := decode[pageMeta](t, r.body.MetaData)
	if meta.Total != 3 || meta.Count != 2 || !meta.HasNext || meta.HasPrev {
		t.Fatalf("unexpected page meta: %+v", meta)
	}

	// a date in to covers the whole day
	period := "?from=" + monday.Add(10*time.Hour).Format(time.RFC3339) + "&to=" + monday.Format(time.DateOnly)
	r = s.do(t, http.MethodGet, "/api/v1/appointments/doctor/"+doctorID.String()+period, doc, nil)
	expect(t, r, http.StatusOK)
	if meta := decode[pageMeta](t, r.body.MetaData); meta.Total != 2 {
		t.Fatalf("period listing total = %d, want 2", meta.Total)
	}
	expect(t, s.do(t, http.MethodGet, "/api/v1/appointments/doctor/"+doctorID.String()+"?from=yesterday&to=today", doc, nil), http.StatusBadRequest)
	expect(t, s.do(t, http.MethodGet, "/api/v1/appointments/doctor/"+doctorID.String()+"?from="+monday.Format(time.DateOnly), doc, nil), http.StatusBadRequest)

	// another doctor's listing is not visible to this doctor
	expect(t, s.do(t, http.MethodGet, "/api/v1/appointments/doctor/"+uuid.NewString(), doc, nil), http.StatusForbidden)

	expect(t, s.do(t, http.MethodDelete, "/api/v1/appointments/"+ids[0].String(), admin, nil), http.StatusNoContent)
	expect(t, s.do(t, http.MethodDelete, "/api/v1/appointments/"+ids[0].String(), admin, nil), http.StatusNotFound)

	r = s.do(t, http.MethodGet, "/api/v1/appointments/admin", admin, nil)
	expect(t, r, http.StatusOK)
	if got := len(decode[[]appointmentView](t, r.body.Data)); got != 2 {
		t.Fatalf("expected 2 appointments left, got %d", got)
	}
}

func TestReviews_RatingFlow(t *testing.T) {
	s := newTestServer(t, nil)
	_, doctorID := s.doctor(t, "doc@clinic.test")
	p1 := s.patient(t, "p1@clinic.test")
	p2 := s.patient(t, "p2@clinic.test")
	admin := s.staff(t, model.RoleAdmin)

	// pending doctors cannot be reviewed
	expect(t, s.do(t, http.MethodPost, "/api/v1/reviews", p1, map[string]any{"doctor": doctorID, "rating": 5}),
		http.StatusBadRequest)
	expect(t, s.do(t, http.MethodPatch, "/api/v1/doctors/"+doctorID.String()+"/status", admin,
		map[string]any{"status": "approved"}), http.StatusOK)

	r := s.do(t, http.MethodPost, "/api/v1/reviews", p1, map[string]any{"doctor": doctorID, "rating": 5, "comment": "great"})
	expect(t, r, http.StatusCreated)
	first := decode[reviewView](t, r.body.Data)
	expect(t, s.do(t, http.MethodPost, "/api/v1/reviews", p1, map[string]any{"doctor": doctorID, "rating": 4}),
		http.StatusConflict)
	expect(t, s.do(t, http.MethodPost, "/api/v1/reviews", p2, map[string]any{"doctor": doctorID, "rating": 3}),
		http.StatusCreated)

	doctorRating := func() service.Rating {
		t.Helper()
		r := s.do(t, http.MethodGet, "/api/v1/reviews/doctors/"+doctorID.String(), p1, nil)
		expect(t, r, http.StatusOK)
		return decode[service.Rating](t, r.body.MetaData)
	}
	if got := doctorRating(); got.Count != 2 || got.Mean != 4.0 {
		t.Fatalf("expected {2, 4.0}, got %+v", got)
	}

	r = s.do(t, http.MethodGet, "/api/v1/doctors/"+doctorID.String(), "", nil)
	expect(t, r, http.StatusOK)
	if p := decode[service.DoctorProfile](t, r.body.Data); p.RatingsCount != 2 || p.Rating != 4.0 {
		t.Fatalf("doctor profile not refreshed: %+v", p)
	}

	expect(t, s.do(t, http.MethodPatch, "/api/v1/reviews/"+first.ID.String(), p1, map[string]any{"rating": 1}), http.StatusOK)
	if got := doctorRating(); got.Count != 2 || got.Mean != 2.0 {
		t.Fatalf("expected {2, 2.0}, got %+v", got)
	}
	expect(t, s.do(t, http.MethodPatch, "/api/v1/reviews/"+first.ID.String(), p2, map[string]any{"rating": 5}), http.StatusForbidden)
	expect(t, s.do(t, http.MethodPatch, "/api/v1/reviews/"+first.ID.String(), p1, map[string]any{"rating": 9}), http.StatusBadRequest)

	r = s.do(t, http.MethodGet, "/api/v1/reviews/my-reviews", p1, nil)
	expect(t, r, http.StatusOK)
	if got := len(decode[[]reviewView](t, r.body.Data)); got != 1 {
		t.Fatalf("expected one own review, got %d", got)
	}

	expect(t, s.do(t, http.MethodDelete, "/api/v1/reviews/"+first.ID.String(), admin, nil), http.StatusNoContent)
	if got := doctorRating(); got.Count != 1 || got.Mean != 3.0 {
		t.Fatalf("expected {1, 3.0}, got %+v", got)
	}

	r = s.do(t, http.MethodPost, "/api/v1/reviews/reconcile", admin, nil)
	expect(t, r, http.StatusOK)
	report := decode[struct {
		Checked    int         `json:"checked"`
		Recomputed []uuid.UUID `json:"recomputed"`
	}](t, r.body.Data)
	if report.Checked != 1 || len(report.Recomputed) != 0 {
		t.Fatalf("expected a clean sweep, got %+v", report)
	}
}

func TestPatientReports(t *testing.T) {
	s := newTestServer(t, nil)
	doc, doctorID := s.doctor(t, "doc@clinic.test")
	pat := s.patient(t, "pat@clinic.test")

	r := s.do(t, http.MethodGet, "/api/v1/users/me", pat, nil)
	expect(t, r, http.StatusOK)
	patientUserID := decode[struct {
		ID uuid.UUID `json:"id"`
	}](t, r.body.Data).ID
	path := "/api/v1/users/patients/" + patientUserID.String() + "/reports"

	expect(t, s.do(t, http.MethodPost, path, doc, map[string]any{"notes": "bp normal"}), http.StatusForbidden)
	expect(t, s.do(t, http.MethodPost, path, pat, map[string]any{"notes": "bp normal"}), http.StatusForbidden)

	expect(t, s.do(t, http.MethodPost, "/api/v1/appointments", pat, map[string]any{
		"doctorId": doctorID, "bookingDate": monday.Add(9 * time.Hour),
	}), http.StatusCreated)

	r = s.do(t, http.MethodPost, path, doc, map[string]any{"notes": "bp normal", "files": []string{"ecg.pdf"}})
	expect(t, r, http.StatusCreated)
	report := decode[model.PatientReport](t, r.body.Data)

	expect(t, s.do(t, http.MethodDelete, path+"/"+report.ID.String(), doc, nil), http.StatusNoContent)
	expect(t, s.do(t, http.MethodDelete, path+"/"+report.ID.String(), doc, nil), http.StatusNotFound)
}

func TestCORS_AllowsConfiguredOrigin(t *testing.T) {
	s := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/users/login", nil)
	req.Header.Set("Origin", "http://clinic.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://clinic.test" {
		t.Fatalf("expected origin to be allowed, got %q", got)
	}

	req = httptest.NewRequest(http.MethodOptions, "/api/v1/users/login", nil)
	req.Header.Set("Origin", "http://evil.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("expected foreign origin to be rejected, got %q", got)
	}
}
