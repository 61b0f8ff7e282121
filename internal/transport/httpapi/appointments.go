package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Leganyst/clinic-booking/internal/calendar"
	"github.com/Leganyst/clinic-booking/internal/model"
	"github.com/Leganyst/clinic-booking/internal/service"
)

type bookRequest struct {
	DoctorID uuid.UUID `json:"doctorId" binding:"required"`
	// optional for patients, who book for themselves
	PatientID   uuid.UUID       `json:"patientId"`
	BookingDate time.Time       `json:"bookingDate" binding:"required"`
	Notes       string          `json:"notes"`
	Amount      decimal.Decimal `json:"amount"`
	PaymentID   string          `json:"paymentId"`
}

func (h *Handler) book(c *gin.Context) {
	var req bookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, bindError(err))
		return
	}
	a, err := h.appointments.Book(c.Request.Context(), actorFrom(c), service.BookRequest{
		DoctorID:    req.DoctorID,
		PatientID:   req.PatientID,
		BookingDate: req.BookingDate,
		Notes:       req.Notes,
		Amount:      req.Amount,
		PaymentID:   req.PaymentID,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusCreated, newAppointmentView(*a), nil)
}

func (h *Handler) getAppointment(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	a, err := h.appointments.Get(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, newAppointmentView(*a), nil)
}

type updateAppointmentRequest struct {
	Status *model.AppointmentStatus `json:"status"`
	Notes  *string                  `json:"notes"`
}

// updateAppointment applies status first, then notes.
func (h *Handler) updateAppointment(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	var req updateAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, bindError(err))
		return
	}
	if req.Status == nil && req.Notes == nil {
		h.fail(c, &service.ValidationError{Reason: "nothing to update, send status or notes"})
		return
	}

	ctx, actor := c.Request.Context(), actorFrom(c)
	var (
		a   *model.Appointment
		err error
	)
	if req.Status != nil {
		if a, err = h.appointments.UpdateStatus(ctx, actor, id, *req.Status); err != nil {
			h.fail(c, err)
			return
		}
	}
	if req.Notes != nil {
		if a, err = h.appointments.UpdateNotes(ctx, actor, id, *req.Notes); err != nil {
			h.fail(c, err)
			return
		}
	}
	respond(c, http.StatusOK, newAppointmentView(*a), nil)
}

func (h *Handler) deleteAppointment(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	if _, err := h.appointments.Delete(c.Request.Context(), actorFrom(c), id); err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusNoContent, nil, nil)
}

func (h *Handler) listAppointments(c *gin.Context) {
	page, err := h.appointments.ListAll(c.Request.Context(), actorFrom(c), pageRequest(c))
	h.respondAppointments(c, page, err)
}

func (h *Handler) listPatientAppointments(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	period, ok := h.periodQuery(c)
	if !ok {
		return
	}
	page, err := h.appointments.ListForPatient(c.Request.Context(), actorFrom(c), id, period, pageRequest(c))
	h.respondAppointments(c, page, err)
}

func (h *Handler) listDoctorAppointments(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	period, ok := h.periodQuery(c)
	if !ok {
		return
	}
	page, err := h.appointments.ListForDoctor(c.Request.Context(), actorFrom(c), id, period, pageRequest(c))
	h.respondAppointments(c, page, err)
}

// periodQuery reads ?from=&to= as RFC 3339 instants or YYYY-MM-DD dates in
// the clinic time zone. A date in to includes that whole day.
func (h *Handler) periodQuery(c *gin.Context) (service.Period, bool) {
	from, err := parseBound(c.Query("from"), h.loc, false)
	if err != nil {
		h.fail(c, &service.ValidationError{Field: "from", Reason: "must be RFC 3339 or YYYY-MM-DD"})
		return service.Period{}, false
	}
	to, err := parseBound(c.Query("to"), h.loc, true)
	if err != nil {
		h.fail(c, &service.ValidationError{Field: "to", Reason: "must be RFC 3339 or YYYY-MM-DD"})
		return service.Period{}, false
	}
	return service.Period{From: from, To: to}, true
}

func parseBound(raw string, loc *time.Location, endOfDay bool) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	day, err := time.ParseInLocation(time.DateOnly, raw, loc)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		day = day.AddDate(0, 0, 1)
	}
	return day, nil
}

func (h *Handler) respondAppointments(c *gin.Context, page calendar.Page[model.Appointment], err error) {
	if err != nil {
		h.fail(c, err)
		return
	}
	out := calendar.MapPage(page, newAppointmentView)
	respond(c, http.StatusOK, out.Items, metaOf(out))
}
