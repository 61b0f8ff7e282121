package httpapi

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Leganyst/clinic-booking/internal/service"
)

const actorKey = "actor"

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		logger.Info("http.request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// protect resolves the bearer token into an Actor and stores it on the context.
func (h *Handler) protect() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			h.fail(c, service.ErrUnauthorized)
			return
		}
		actor, err := h.identity.Authenticate(c.Request.Context(), strings.TrimSpace(token))
		if err != nil {
			h.fail(c, err)
			return
		}
		c.Set(actorKey, actor)
		c.Next()
	}
}

// restrictTo lets only the listed roles through. Must run after protect.
func (h *Handler) restrictTo(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !actorFrom(c).Is(roles...) {
			h.fail(c, service.ErrForbidden)
			return
		}
		c.Next()
	}
}

func actorFrom(c *gin.Context) service.Actor {
	v, ok := c.Get(actorKey)
	if !ok {
		return service.Actor{}
	}
	actor, _ := v.(service.Actor)
	return actor
}
