package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/Leganyst/clinic-booking/internal/calendar"
	"github.com/Leganyst/clinic-booking/internal/service"
)

const (
	statusSuccess = "success"
	statusFail    = "fail"
	statusError   = "error"
)

type envelope struct {
	Status   string `json:"status"`
	Data     any    `json:"data"`
	MetaData any    `json:"metaData,omitempty"`
}

type pageMeta struct {
	Total   int  `json:"total"`
	Count   int  `json:"count"`
	Page    int  `json:"page"`
	Limit   int  `json:"limit"`
	HasNext bool `json:"hasNext"`
	HasPrev bool `json:"hasPrev"`
}

func metaOf[T any](p calendar.Page[T]) pageMeta {
	return pageMeta{
		Total:   p.Total,
		Count:   len(p.Items),
		Page:    p.Page,
		Limit:   p.PageSize,
		HasNext: p.HasNext,
		HasPrev: p.HasPrev,
	}
}

// respond writes the envelope; a nil data writes the status with no body.
func respond(c *gin.Context, code int, data, meta any) {
	if data == nil {
		c.Status(code)
		return
	}
	status := statusSuccess
	switch {
	case code >= 500:
		status = statusError
	case code >= 400:
		status = statusFail
	}
	c.JSON(code, envelope{Status: status, Data: data, MetaData: meta})
}

// fieldErrors carries per-field binding failures.
type fieldErrors map[string]string

func (f fieldErrors) Error() string {
	parts := make([]string, 0, len(f))
	for field, msg := range f {
		parts = append(parts, field+" "+msg)
	}
	return "invalid request: " + strings.Join(parts, ", ")
}

// bindError turns a gin binding error into a validation failure.
func bindError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		out := make(fieldErrors, len(verrs))
		for _, fe := range verrs {
			out[lowerFirst(fe.Field())] = describeTag(fe)
		}
		return out
	}
	return fmt.Errorf("%w: malformed request body: %v", service.ErrValidation, err)
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email"
	case "oneof":
		return "must be one of " + fe.Param()
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	}
	return "is invalid"
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrPaymentNotCompleted),
		errors.Is(err, service.ErrInsufficientPayment),
		errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, service.ErrUnauthorized),
		errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrTokenStale):
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

// fail maps err onto a status code and writes it. Internal errors are logged
// and replaced with a generic message.
func (h *Handler) fail(c *gin.Context, err error) {
	var fields fieldErrors
	if errors.As(err, &fields) {
		c.AbortWithStatusJSON(http.StatusBadRequest, envelope{
			Status: statusFail,
			Data:   gin.H{"message": "invalid request", "fields": fields},
		})
		return
	}

	code := statusFor(err)
	if code == http.StatusInternalServerError {
		h.logger.Error("http.request.failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		c.AbortWithStatusJSON(code, envelope{Status: statusError, Data: gin.H{"message": "internal server error"}})
		return
	}

	data := gin.H{"message": err.Error()}
	var conflict *service.ConflictError
	if errors.As(err, &conflict) {
		data["conflict"] = gin.H{
			"appointmentId": conflict.AppointmentID,
			"bookingDate":   conflict.BookingDate,
		}
	}
	c.AbortWithStatusJSON(code, envelope{Status: statusFail, Data: data})
}
