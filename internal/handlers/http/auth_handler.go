package http

import (
	"net/http"

	"livehub/internal/core/domain"
	"livehub/internal/core/services"
	"livehub/internal/infrastructure/middleware"
	apperrors "livehub/pkg/errors"

	"github.com/gin-gonic/gin"
)

// AuthHandler lets token holders inspect and renew their token. Tokens are
// issued out of band by the token command.
type AuthHandler struct {
	authService services.AuthService
}

func NewAuthHandler(authService services.AuthService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
	}
}

func (h *AuthHandler) SetupRoutes(router *gin.Engine) {
	api := router.Group("/api/auth", middleware.AuthMiddleware(h.authService))
	{
		api.GET("/me", h.Me)
		api.POST("/refresh", h.RefreshToken)
	}
}

func (h *AuthHandler) Me(c *gin.Context) {
	role, _ := c.Get(middleware.ContextRole)
	c.JSON(http.StatusOK, gin.H{
		"username": middleware.Username(c),
		"role":     role,
	})
}

func (h *AuthHandler) RefreshToken(c *gin.Context) {
	role, _ := c.Get(middleware.ContextRole)
	r, _ := role.(domain.UserRole)

	token, err := h.authService.GenerateToken(middleware.Username(c), r)
	if err != nil {
		fail(c, apperrors.Internal("failed to generate token"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": token})
}
