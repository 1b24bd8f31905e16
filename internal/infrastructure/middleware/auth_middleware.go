package middleware

import (
	"strings"

	"livehub/internal/core/domain"
	"livehub/internal/core/services"
	apperrors "livehub/pkg/errors"

	"github.com/gin-gonic/gin"
)

const (
	ContextUsername = "username"
	ContextRole     = "role"
)

func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// AuthMiddleware requires a valid bearer token and stores its username and
// role in the gin context.
func AuthMiddleware(authService services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			abortWith(c, apperrors.Unauthorized("authorization header required"))
			return
		}

		claims, err := authService.ValidateToken(token)
		if err != nil {
			abortWith(c, apperrors.Unauthorized(err.Error()))
			return
		}

		c.Set(ContextUsername, claims.Username)
		c.Set(ContextRole, claims.Role)
		c.Next()
	}
}

// RequireRole must run after AuthMiddleware.
func RequireRole(required domain.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, _ := c.Get(ContextRole)
		r, ok := role.(domain.UserRole)
		if !ok {
			abortWith(c, apperrors.Unauthorized("authentication required"))
			return
		}
		if !r.AtLeast(required) {
			abortWith(c, apperrors.Forbidden("insufficient permissions").WithDetail("required_role", required))
			return
		}
		c.Next()
	}
}

// Username returns the authenticated caller, or "" on public routes.
func Username(c *gin.Context) string {
	return c.GetString(ContextUsername)
}

func abortWith(c *gin.Context, err *apperrors.AppError) {
	c.AbortWithStatusJSON(err.HTTPStatus, err.Body())
}
