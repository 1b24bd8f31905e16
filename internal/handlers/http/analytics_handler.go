package http

import (
	"net/http"

	"livehub/internal/core/domain"
	"livehub/internal/core/services"
	"livehub/internal/infrastructure/middleware"

	"github.com/gin-gonic/gin"
)

// AnalyticsHandler serves the staff dashboard reports.
type AnalyticsHandler struct {
	analytics *services.AnalyticsService
	auth      services.AuthService
}

func NewAnalyticsHandler(analytics *services.AnalyticsService, auth services.AuthService) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: analytics, auth: auth}
}

func (h *AnalyticsHandler) SetupRoutes(router *gin.Engine) {
	staff := router.Group("/api/analytics",
		middleware.AuthMiddleware(h.auth),
		middleware.RequireRole(domain.RoleModerator),
	)
	{
		staff.GET("/dashboard", h.Dashboard)
		staff.GET("/messages", h.Messages)
		staff.GET("/activity", h.Activity)
		staff.GET("/streams", h.Streams)
		staff.GET("/moderation", h.Moderation)
		staff.GET("/logs", h.Logs)
	}
}

func (h *AnalyticsHandler) Dashboard(c *gin.Context) {
	c.JSON(http.StatusOK, h.analytics.Stats(c.Request.Context()))
}

// Messages returns a histogram for ?period=24h|7days|30days.
func (h *AnalyticsHandler) Messages(c *gin.Context) {
	period, err := domain.ParseStatsPeriod(c.Query("period"))
	if err != nil {
		fail(c, err)
		return
	}
	stats, err := h.analytics.MessageStats(c.Request.Context(), period)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *AnalyticsHandler) Activity(c *gin.Context) {
	c.JSON(http.StatusOK, h.analytics.ActivityStats(c.Request.Context()))
}

func (h *AnalyticsHandler) Streams(c *gin.Context) {
	stats, err := h.analytics.StreamStats(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *AnalyticsHandler) Moderation(c *gin.Context) {
	stats, err := h.analytics.ModerationStats(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *AnalyticsHandler) Logs(c *gin.Context) {
	limit, offset, err := pageParams(c)
	if err != nil {
		fail(c, err)
		return
	}
	actions, err := h.analytics.ActivityLog(c.Request.Context(), limit, offset)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"actions": actions,
		"limit":   limit,
		"offset":  offset,
	})
}
