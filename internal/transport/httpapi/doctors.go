package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Leganyst/clinic-booking/internal/model"
	"github.com/Leganyst/clinic-booking/internal/service"
)

func (h *Handler) getDoctor(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	p, err := h.doctors.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, p, nil)
}

type doctorStatusRequest struct {
	Status model.DoctorStatus `json:"status" binding:"required"`
}

func (h *Handler) setDoctorStatus(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	var req doctorStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, bindError(err))
		return
	}
	p, err := h.doctors.SetStatus(c.Request.Context(), actorFrom(c), id, req.Status)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, p, nil)
}

// availability lists free slots for ?date=YYYY-MM-DD in the clinic time zone.
func (h *Handler) availability(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	day, err := time.ParseInLocation(time.DateOnly, c.Query("date"), h.loc)
	if err != nil {
		h.fail(c, &service.ValidationError{Field: "date", Reason: "must be YYYY-MM-DD"})
		return
	}
	slots, err := h.appointments.Availability(c.Request.Context(), id, day)
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]slotView, 0, len(slots))
	for _, s := range slots {
		out = append(out, slotView{Start: s.Start, End: s.End})
	}
	respond(c, http.StatusOK, out, gin.H{"count": len(out), "date": day.Format(time.DateOnly)})
}
