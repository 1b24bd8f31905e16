package http

import (
	"net/http"

	"livehub/internal/core/domain"
	"livehub/internal/core/services"
	"livehub/internal/infrastructure/middleware"
	apperrors "livehub/pkg/errors"

	"github.com/gin-gonic/gin"
)

type ModerationHandler struct {
	admin *services.AdminService
	auth  services.AuthService
}

func NewModerationHandler(admin *services.AdminService, auth services.AuthService) *ModerationHandler {
	return &ModerationHandler{admin: admin, auth: auth}
}

func (h *ModerationHandler) SetupRoutes(router *gin.Engine) {
	api := router.Group("/api/moderation", middleware.AuthMiddleware(h.auth))
	{
		mod := api.Group("", middleware.RequireRole(domain.RoleModerator))
		mod.GET("/banned", h.ListBanned)
		mod.GET("/muted", h.ListMuted)
		mod.GET("/actions", h.ListActions)
		mod.POST("/mute", h.Mute)
		mod.POST("/unmute", h.Unmute)
		mod.DELETE("/message/:id", h.DeleteMessage)

		admin := api.Group("", middleware.RequireRole(domain.RoleAdmin))
		admin.POST("/ban", h.Ban)
		admin.POST("/unban", h.Unban)
		admin.POST("/clear-mutes", h.ClearExpired)
	}
}

type targetRequest struct {
	Fingerprint string `json:"fingerprint"`
	IP          string `json:"ip"`
}

func (h *ModerationHandler) ListBanned(c *gin.Context) {
	bans, err := h.admin.ActiveBans(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bans": bans, "count": len(bans)})
}

func (h *ModerationHandler) ListMuted(c *gin.Context) {
	mutes, err := h.admin.ActiveMutes(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"mutes": mutes, "count": len(mutes)})
}

func (h *ModerationHandler) ListActions(c *gin.Context) {
	limit, _, err := pageParams(c)
	if err != nil {
		fail(c, err)
		return
	}
	actions, err := h.admin.Actions(c.Request.Context(), limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"actions": actions})
}

func (h *ModerationHandler) Ban(c *gin.Context) {
	var req services.BanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apperrors.InvalidInput("invalid ban request: "+err.Error()))
		return
	}
	req.IssuedBy = middleware.Username(c)

	ban, err := h.admin.Ban(c.Request.Context(), req)
	if err != nil {
		appErr := toAppError(err)
		if ban != nil {
			appErr.WithDetail("ban", ban)
		}
		fail(c, appErr)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"ban": ban})
}

func (h *ModerationHandler) Unban(c *gin.Context) {
	var req targetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apperrors.InvalidInput("invalid unban request: "+err.Error()))
		return
	}
	if err := h.admin.Unban(c.Request.Context(), req.Fingerprint, req.IP, middleware.Username(c)); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *ModerationHandler) Mute(c *gin.Context) {
	var req services.MuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apperrors.InvalidInput("invalid mute request: "+err.Error()))
		return
	}
	req.IssuedBy = middleware.Username(c)

	mute, err := h.admin.Mute(c.Request.Context(), req)
	if err != nil {
		appErr := toAppError(err)
		if mute != nil {
			appErr.WithDetail("mute", mute)
		}
		fail(c, appErr)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"mute": mute})
}

func (h *ModerationHandler) Unmute(c *gin.Context) {
	var req targetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apperrors.InvalidInput("invalid unmute request: "+err.Error()))
		return
	}
	if err := h.admin.Unmute(c.Request.Context(), req.Fingerprint, middleware.Username(c)); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *ModerationHandler) DeleteMessage(c *gin.Context) {
	id := c.Param("id")
	if err := h.admin.DeleteMessage(c.Request.Context(), id, middleware.Username(c)); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "messageId": id})
}

func (h *ModerationHandler) ClearExpired(c *gin.Context) {
	removed, err := h.admin.ClearExpired(c.Request.Context(), middleware.Username(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "removed": removed})
}
