package http

import (
	"crypto/subtle"
	"net/http"

	"livehub/internal/core/domain"
	"livehub/internal/core/services"
	"livehub/internal/infrastructure/ingest"
	"livehub/internal/infrastructure/middleware"
	apperrors "livehub/pkg/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const ingestTokenHeader = "X-Ingest-Token"

type StreamHandler struct {
	bridge      *services.StreamBridge
	admin       *services.AdminService
	auth        services.AuthService
	ingestToken string
	logger      *zap.SugaredLogger
}

// NewStreamHandler leaves the detect endpoint open when ingestToken is empty.
func NewStreamHandler(
	bridge *services.StreamBridge,
	admin *services.AdminService,
	auth services.AuthService,
	ingestToken string,
	logger *zap.SugaredLogger,
) *StreamHandler {
	return &StreamHandler{
		bridge:      bridge,
		admin:       admin,
		auth:        auth,
		ingestToken: ingestToken,
		logger:      logger,
	}
}

func (h *StreamHandler) SetupRoutes(router *gin.Engine) {
	api := router.Group("/api")
	{
		api.POST("/stream/detect", h.requireIngestToken, h.Detect)
		api.GET("/streams", h.ListStreams)
		api.GET("/streams/history",
			middleware.AuthMiddleware(h.auth),
			middleware.RequireRole(domain.RoleModerator),
			h.History,
		)
		api.PUT("/streams/playlist",
			middleware.AuthMiddleware(h.auth),
			middleware.RequireRole(domain.RoleAdmin),
			h.UpdatePlaylist,
		)
	}
}

func (h *StreamHandler) requireIngestToken(c *gin.Context) {
	if h.ingestToken == "" {
		c.Next()
		return
	}
	got := c.GetHeader(ingestTokenHeader)
	if subtle.ConstantTimeCompare([]byte(got), []byte(h.ingestToken)) != 1 {
		err := apperrors.Unauthorized("invalid ingest token")
		c.AbortWithStatusJSON(err.HTTPStatus, err.Body())
		return
	}
	c.Next()
}

func (h *StreamHandler) Detect(c *gin.Context) {
	var req ingest.DetectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apperrors.InvalidInput("invalid detect request: "+err.Error()))
		return
	}

	result, err := ingest.Apply(c.Request.Context(), h.bridge, req)
	if err != nil {
		fail(c, err)
		return
	}
	h.logger.Infow("Stream detect",
		"action", result.Action,
		"stream_key", req.StreamKey,
		"changed", result.Changed,
	)
	c.JSON(http.StatusOK, result)
}

// ListStreams returns the live sessions, the displayed one and the curated
// playlist.
func (h *StreamHandler) ListStreams(c *gin.Context) {
	resp := gin.H{
		"live":     h.bridge.Live(),
		"playlist": h.admin.Playlist(),
	}
	if displayed, ok := h.bridge.Displayed(); ok {
		resp["displayed"] = displayed
	}
	c.JSON(http.StatusOK, resp)
}

func (h *StreamHandler) History(c *gin.Context) {
	sessions, err := h.bridge.History(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (h *StreamHandler) UpdatePlaylist(c *gin.Context) {
	var req struct {
		Streams []domain.PlaylistStream `json:"streams"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apperrors.InvalidInput("invalid playlist: "+err.Error()))
		return
	}
	streams, err := h.admin.UpdatePlaylist(c.Request.Context(), req.Streams, middleware.Username(c), "")
	if err != nil {
		fail(c, apperrors.InvalidInput(err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"streams": streams})
}
