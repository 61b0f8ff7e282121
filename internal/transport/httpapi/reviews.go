package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Leganyst/clinic-booking/internal/calendar"
	"github.com/Leganyst/clinic-booking/internal/service"
)

type createReviewRequest struct {
	DoctorID uuid.UUID `json:"doctor" binding:"required"`
	Rating   int       `json:"rating" binding:"required,min=1,max=5"`
	Comment  string    `json:"comment"`
}

// outcomeMeta flags a review mutation whose rating refresh failed; the
// aggregate catches up on the next reconciliation.
func outcomeMeta(o service.ReviewOutcome) any {
	if o.Failure == nil {
		return nil
	}
	return gin.H{"ratingStale": true}
}

func (h *Handler) createReview(c *gin.Context) {
	var req createReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, bindError(err))
		return
	}
	out, err := h.reviews.Create(c.Request.Context(), actorFrom(c), service.CreateReviewRequest{
		DoctorID: req.DoctorID,
		Rating:   req.Rating,
		Comment:  req.Comment,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusCreated, newReviewView(*out.Review), outcomeMeta(out))
}

func (h *Handler) getReview(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	r, err := h.reviews.Get(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, newReviewView(*r), nil)
}

type updateReviewRequest struct {
	Rating  *int    `json:"rating" binding:"omitempty,min=1,max=5"`
	Comment *string `json:"comment"`
}

func (h *Handler) updateReview(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	var req updateReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, bindError(err))
		return
	}
	out, err := h.reviews.Update(c.Request.Context(), actorFrom(c), id, service.UpdateReviewRequest{
		Rating:  req.Rating,
		Comment: req.Comment,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, newReviewView(*out.Review), outcomeMeta(out))
}

func (h *Handler) deleteReview(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	if _, err := h.reviews.Delete(c.Request.Context(), actorFrom(c), id); err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusNoContent, nil, nil)
}

func (h *Handler) listReviews(c *gin.Context) {
	page, err := h.reviews.ListAll(c.Request.Context(), actorFrom(c), pageRequest(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	out := calendar.MapPage(page, newReviewView)
	respond(c, http.StatusOK, out.Items, metaOf(out))
}

func (h *Handler) listMyReviews(c *gin.Context) {
	page, err := h.reviews.ListMine(c.Request.Context(), actorFrom(c), pageRequest(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	out := calendar.MapPage(page, newReviewView)
	respond(c, http.StatusOK, out.Items, metaOf(out))
}

type doctorReviewsMeta struct {
	pageMeta
	service.Rating
}

func (h *Handler) listDoctorReviews(c *gin.Context) {
	id, ok := h.uuidParam(c, "doctorId")
	if !ok {
		return
	}
	page, rating, err := h.reviews.ListForDoctor(c.Request.Context(), id, pageRequest(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	out := calendar.MapPage(page, newReviewView)
	respond(c, http.StatusOK, out.Items, doctorReviewsMeta{pageMeta: metaOf(out), Rating: rating})
}

func (h *Handler) reconcileRatings(c *gin.Context) {
	report, err := h.reviews.Reconcile(c.Request.Context(), actorFrom(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	failed := make([]uuid.UUID, 0, len(report.Failed))
	for _, f := range report.Failed {
		failed = append(failed, f.DoctorID)
	}
	recomputed := report.Recomputed
	if recomputed == nil {
		recomputed = []uuid.UUID{}
	}
	respond(c, http.StatusOK, gin.H{
		"checked":    report.Checked,
		"recomputed": recomputed,
		"failed":     failed,
	}, nil)
}
