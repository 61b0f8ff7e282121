package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Leganyst/clinic-booking/internal/model"
	"github.com/Leganyst/clinic-booking/internal/service"
)

type registerRequest struct {
	Name            string              `json:"name" binding:"required"`
	Email           string              `json:"email" binding:"required,email"`
	Password        string              `json:"password" binding:"required"`
	PasswordConfirm string              `json:"passwordConfirm" binding:"required"`
	Role            string              `json:"role" binding:"required,oneof=doctor patient"`
	Phone           string              `json:"phone"`
	Age             *int                `json:"age"`
	Language        string              `json:"language"`
	Department      string              `json:"department"`
	CVURL           string              `json:"cvUrl"`
	Locations       []string            `json:"locations"`
	WorkingTimes    []model.WorkingTime `json:"workingTimes"`
}

func (h *Handler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, bindError(err))
		return
	}
	user, err := h.identity.Register(c.Request.Context(), service.RegisterRequest{
		Name:            req.Name,
		Email:           req.Email,
		Password:        req.Password,
		PasswordConfirm: req.PasswordConfirm,
		Role:            req.Role,
		Phone:           req.Phone,
		Age:             req.Age,
		Language:        req.Language,
		Department:      req.Department,
		CVURL:           req.CVURL,
		Locations:       req.Locations,
		WorkingTimes:    req.WorkingTimes,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusCreated, newUserView(user, req.Role), nil)
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, bindError(err))
		return
	}
	token, err := h.identity.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"token": token}, nil)
}

func (h *Handler) getMe(c *gin.Context) {
	p, err := h.identity.Me(c.Request.Context(), actorFrom(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respondProfile(c, p)
}

func (h *Handler) respondProfile(c *gin.Context, p *service.Profile) {
	view, err := newProfileView(p)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, view, nil)
}

type updateMeRequest struct {
	Email        *string              `json:"email" binding:"omitempty,email"`
	Name         *string              `json:"name"`
	Phone        *string              `json:"phone"`
	Age          *int                 `json:"age"`
	Language     *string              `json:"language"`
	Locations    *[]string            `json:"locations"`
	Department   *string              `json:"department"`
	CVURL        *string              `json:"cvUrl"`
	WorkingTimes *[]model.WorkingTime `json:"workingTimes"`
}

func (h *Handler) updateMe(c *gin.Context) {
	var req updateMeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, bindError(err))
		return
	}
	p, err := h.identity.UpdateMe(c.Request.Context(), actorFrom(c), service.UpdateMeRequest{
		Email:        req.Email,
		Name:         req.Name,
		Phone:        req.Phone,
		Age:          req.Age,
		Language:     req.Language,
		Locations:    req.Locations,
		Department:   req.Department,
		CVURL:        req.CVURL,
		WorkingTimes: req.WorkingTimes,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	h.respondProfile(c, p)
}

func (h *Handler) deleteMe(c *gin.Context) {
	if err := h.identity.DeleteMe(c.Request.Context(), actorFrom(c)); err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusNoContent, nil, nil)
}

type updatePasswordRequest struct {
	CurrentPassword    string `json:"currentPassword" binding:"required"`
	NewPassword        string `json:"newPassword" binding:"required"`
	NewPasswordConfirm string `json:"newPasswordConfirm" binding:"required"`
}

func (h *Handler) updatePassword(c *gin.Context) {
	var req updatePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, bindError(err))
		return
	}
	err := h.identity.UpdatePassword(c.Request.Context(), actorFrom(c),
		req.CurrentPassword, req.NewPassword, req.NewPasswordConfirm)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"message": "Password updated successfully. please login"}, nil)
}

type createAdminRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) createAdmin(c *gin.Context) {
	var req createAdminRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, bindError(err))
		return
	}
	user, err := h.identity.CreateAdmin(c.Request.Context(), actorFrom(c), req.Name, req.Email, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusCreated, gin.H{
		"admin":   newUserView(user, model.RoleAdmin),
		"message": "Please give the credentials to the admin and ask them to change the password",
	}, nil)
}

func (h *Handler) deleteAdmin(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.identity.DeleteAdmin(c.Request.Context(), actorFrom(c), id); err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusNoContent, nil, nil)
}

type patientReportRequest struct {
	Notes string   `json:"notes"`
	Files []string `json:"files"`
}

// addPatientReport takes the patient's user id in the path.
func (h *Handler) addPatientReport(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	var req patientReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, bindError(err))
		return
	}
	report, err := h.identity.AddPatientReport(c.Request.Context(), actorFrom(c), id, req.Notes, req.Files)
	if err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusCreated, report, nil)
}

func (h *Handler) deletePatientReport(c *gin.Context) {
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	reportID, ok := h.uuidParam(c, "reportId")
	if !ok {
		return
	}
	if err := h.identity.DeletePatientReport(c.Request.Context(), actorFrom(c), id, reportID); err != nil {
		h.fail(c, err)
		return
	}
	respond(c, http.StatusNoContent, nil, nil)
}
