package http

import (
	"net/http"
	"time"

	"livehub/internal/core/services"
	"livehub/internal/infrastructure/monitoring"

	"github.com/gin-gonic/gin"
)

type HealthHandler struct {
	checker  *monitoring.HealthChecker
	registry *services.ConnectionRegistry
	started  time.Time
}

func NewHealthHandler(checker *monitoring.HealthChecker, registry *services.ConnectionRegistry) *HealthHandler {
	return &HealthHandler{checker: checker, registry: registry, started: time.Now()}
}

func (h *HealthHandler) SetupRoutes(router *gin.Engine) {
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)
}

// Health is the liveness probe and never touches dependencies.
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"connections": h.registry.Count(),
		"uptime":      time.Since(h.started).Round(time.Second).String(),
	})
}

func (h *HealthHandler) Ready(c *gin.Context) {
	status := h.checker.CheckAll(c.Request.Context())
	code := http.StatusOK
	if status.Status == monitoring.StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}
