package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_Error(t *testing.T) {
	assert.Equal(t, "INVALID_INPUT: bad duration", InvalidInput("bad duration").Error())

	cause := stderrors.New("disk full")
	err := Wrap(cause, ErrCodeInternal, "store failed", http.StatusInternalServerError)
	assert.Contains(t, err.Error(), "disk full")
	assert.ErrorIs(t, err, cause)
}

func TestAppError_Body(t *testing.T) {
	err := Forbidden("admin role required").WithDetail("required", "admin")

	body := err.Body()
	assert.Equal(t, ErrCodeForbidden, body["code"])
	assert.Equal(t, "admin role required", body["error"])
	assert.Equal(t, map[string]interface{}{"required": "admin"}, body["details"])

	assert.NotContains(t, NotFound("message").Body(), "details")
}

func TestConstructors(t *testing.T) {
	cases := []struct {
		err    *AppError
		code   ErrorCode
		status int
	}{
		{InvalidInput("x"), ErrCodeInvalidInput, http.StatusBadRequest},
		{NotFound("stream"), ErrCodeNotFound, http.StatusNotFound},
		{Unauthorized("x"), ErrCodeUnauthorized, http.StatusUnauthorized},
		{Forbidden("x"), ErrCodeForbidden, http.StatusForbidden},
		{RateLimited(), ErrCodeRateLimit, http.StatusTooManyRequests},
		{Internal("x"), ErrCodeInternal, http.StatusInternalServerError},
		{ServiceUnavailable("x"), ErrCodeServiceUnavailable, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.code, tc.err.Code)
		assert.Equal(t, tc.status, tc.err.HTTPStatus)
	}
	assert.Equal(t, "stream not found", NotFound("stream").Message)
}

func TestAs(t *testing.T) {
	appErr := NotFound("message")
	wrapped := fmt.Errorf("handler: %w", appErr)

	got, ok := As(wrapped)
	require.True(t, ok)
	assert.Same(t, appErr, got)

	_, ok = As(stderrors.New("plain"))
	assert.False(t, ok)
	_, ok = As(nil)
	assert.False(t, ok)
}
