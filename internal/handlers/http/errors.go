package http

import (
	"errors"
	"net/http"
	"strconv"

	"livehub/internal/core/domain"
	"livehub/internal/infrastructure/ingest"
	apperrors "livehub/pkg/errors"

	"github.com/gin-gonic/gin"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// toAppError maps service errors to API errors.
func toAppError(err error) *apperrors.AppError {
	if appErr, ok := apperrors.As(err); ok {
		return appErr
	}
	switch {
	case errors.Is(err, domain.ErrModerationWriteFailed):
		return apperrors.Wrap(err, apperrors.ErrCodeNotPersisted,
			"moderation change is enforced but not yet persisted", http.StatusServiceUnavailable)
	case errors.Is(err, domain.ErrMissingTarget),
		errors.Is(err, domain.ErrInvalidDuration),
		errors.Is(err, domain.ErrInvalidStreamKey),
		errors.Is(err, domain.ErrInvalidPeriod),
		errors.Is(err, ingest.ErrInvalidRequest):
		return apperrors.InvalidInput(err.Error())
	case errors.Is(err, domain.ErrMessageNotFound):
		return apperrors.NotFound("message")
	case errors.Is(err, domain.ErrStreamNotFound):
		return apperrors.NotFound("stream")
	case errors.Is(err, domain.ErrForbidden):
		return apperrors.Forbidden(err.Error())
	default:
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "internal server error", http.StatusInternalServerError)
	}
}

// fail hands err to the error handler middleware.
func fail(c *gin.Context, err error) {
	_ = c.Error(toAppError(err))
}

// pageParams reads limit and offset, clamping limit to maxPageSize.
func pageParams(c *gin.Context) (limit, offset int, err error) {
	limit = defaultPageSize
	if v := c.Query("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit <= 0 {
			return 0, 0, apperrors.InvalidInput("limit must be a positive integer")
		}
		if limit > maxPageSize {
			limit = maxPageSize
		}
	}
	if v := c.Query("offset"); v != "" {
		offset, err = strconv.Atoi(v)
		if err != nil || offset < 0 {
			return 0, 0, apperrors.InvalidInput("offset must be a non-negative integer")
		}
	}
	return limit, offset, nil
}
