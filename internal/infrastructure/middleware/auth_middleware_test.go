package middleware

import (
	"net/http"
	"testing"
	"time"

	"livehub/internal/core/domain"
	"livehub/internal/core/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bearer(token string) http.Header {
	return http.Header{"Authorization": []string{"Bearer " + token}}
}

func TestAuthMiddleware(t *testing.T) {
	auth := services.NewAuthService("secret", time.Hour)
	router := newRouter(AuthMiddleware(auth), RequireRole(domain.RoleModerator))

	assert.Equal(t, http.StatusUnauthorized, doGet(router, "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, doGet(router, "", bearer("not-a-jwt")).Code)
	assert.Equal(t, http.StatusUnauthorized,
		doGet(router, "", http.Header{"Authorization": []string{"Basic abc"}}).Code)

	viewer, err := auth.GenerateToken("v", domain.RoleViewer)
	require.NoError(t, err)
	forbidden := doGet(router, "", bearer(viewer))
	assert.Equal(t, http.StatusForbidden, forbidden.Code)
	assert.Contains(t, forbidden.Body.String(), "required_role")

	mod, err := auth.GenerateToken("m", domain.RoleModerator)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, doGet(router, "", bearer(mod)).Code)

	owner, err := auth.GenerateToken("o", domain.RoleOwner)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, doGet(router, "", bearer(owner)).Code)
}

func TestAuthMiddleware_RejectsForeignSecret(t *testing.T) {
	other := services.NewAuthService("other", time.Hour)
	token, err := other.GenerateToken("admin", domain.RoleAdmin)
	require.NoError(t, err)

	router := newRouter(AuthMiddleware(services.NewAuthService("secret", time.Hour)))
	assert.Equal(t, http.StatusUnauthorized, doGet(router, "", bearer(token)).Code)
}
