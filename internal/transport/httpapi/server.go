package httpapi

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/Leganyst/clinic-booking/internal/calendar"
	"github.com/Leganyst/clinic-booking/internal/model"
	"github.com/Leganyst/clinic-booking/internal/service"
)

// Pinger reports database reachability for /healthz.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Services struct {
	Identity     *service.IdentityService
	Doctors      *service.DoctorService
	Appointments *service.AppointmentService
	Reviews      *service.ReviewService
	DB           Pinger
}

type Options struct {
	AllowedOrigins []string
	// Location is used to read the date of availability queries.
	Location *time.Location
}

type Handler struct {
	identity     *service.IdentityService
	doctors      *service.DoctorService
	appointments *service.AppointmentService
	reviews      *service.ReviewService
	db           Pinger
	loc          *time.Location
	logger       *zap.Logger
}

// NewHandler builds the gin router for /api/v1 wrapped in CORS.
func NewHandler(svc Services, opts Options, logger *zap.Logger) http.Handler {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	h := &Handler{
		identity:     svc.Identity,
		doctors:      svc.Doctors,
		appointments: svc.Appointments,
		reviews:      svc.Reviews,
		db:           svc.DB,
		loc:          loc,
		logger:       logger.Named("http"),
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(h.logger))
	router.GET("/healthz", h.health)
	h.RegisterRoutes(router)

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "Origin", "Accept"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
	})
	return c.Handler(router)
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/v1")
	staff := h.restrictTo(model.RoleAdmin, model.RoleOwner)

	users := api.Group("/users")
	users.POST("/register", h.register)
	users.POST("/login", h.login)

	me := users.Group("", h.protect())
	me.GET("/me", h.getMe)
	me.PATCH("/me", h.updateMe)
	me.DELETE("/me", h.deleteMe)
	me.PATCH("/password", h.updatePassword)
	me.POST("/admins", h.restrictTo(model.RoleOwner), h.createAdmin)
	me.DELETE("/admins/:id", h.restrictTo(model.RoleOwner), h.deleteAdmin)
	me.POST("/patients/:id/reports", h.restrictTo(model.RoleDoctor), h.addPatientReport)
	me.DELETE("/patients/:id/reports/:reportId", h.restrictTo(model.RoleDoctor), h.deletePatientReport)

	doctors := api.Group("/doctors")
	doctors.GET("/:id", h.getDoctor)
	doctors.GET("/:id/availability", h.availability)
	doctors.PATCH("/:id/status", h.protect(), staff, h.setDoctorStatus)

	appointments := api.Group("/appointments", h.protect())
	appointments.POST("", h.book)
	appointments.GET("/admin", staff, h.listAppointments)
	appointments.GET("/patient/:id", h.listPatientAppointments)
	appointments.GET("/doctor/:id", h.listDoctorAppointments)
	appointments.GET("/:id", h.getAppointment)
	appointments.PATCH("/:id", h.updateAppointment)
	appointments.DELETE("/:id", h.deleteAppointment)

	reviews := api.Group("/reviews", h.protect())
	reviews.GET("", staff, h.listReviews)
	reviews.POST("", h.createReview)
	reviews.POST("/reconcile", staff, h.reconcileRatings)
	reviews.GET("/doctors/:doctorId", h.listDoctorReviews)
	reviews.GET("/my-reviews", h.listMyReviews)
	reviews.GET("/:id", h.getReview)
	reviews.PATCH("/:id", h.updateReview)
	reviews.DELETE("/:id", h.deleteReview)
}

func (h *Handler) health(c *gin.Context) {
	if h.db != nil {
		if err := h.db.Ping(c.Request.Context()); err != nil {
			h.logger.Warn("http.health.db_unreachable", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, envelope{Status: statusError, Data: gin.H{"db": "down"}})
			return
		}
	}
	respond(c, http.StatusOK, gin.H{"db": "up"}, nil)
}

// NewServer returns an http.Server for handler listening on host:port.
func NewServer(host, port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              net.JoinHostPort(host, port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func (h *Handler) uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		h.fail(c, &service.ValidationError{Field: name, Reason: "must be a valid id"})
		return uuid.Nil, false
	}
	return id, true
}

func pageRequest(c *gin.Context) calendar.PageRequest {
	page, _ := strconv.Atoi(c.Query("page"))
	limit, _ := strconv.Atoi(c.Query("limit"))
	return calendar.NewPageRequest(page, limit)
}
