package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	er "github.com/replypilot/replypilot/internal/errors"
)

// ErrorEnvelope is the uniform non-success response body.
type ErrorEnvelope struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// respondError maps the error taxonomy to stable codes. Internal errors
// never leak their cause to the caller.
func respondError(c *gin.Context, err error) {
	var validationErr *er.ValidationError
	if errors.As(err, &validationErr) {
		c.JSON(http.StatusBadRequest, ErrorEnvelope{
			Error:   "VALIDATION_ERROR",
			Message: validationErr.Message,
			Field:   validationErr.Field,
		})
		return
	}

	var externalErr *er.ExternalServiceError
	if errors.As(err, &externalErr) {
		c.JSON(http.StatusBadGateway, ErrorEnvelope{
			Error:   "EXTERNAL_SERVICE_ERROR",
			Message: "upstream service failure: " + externalErr.Subsystem,
		})
		return
	}

	switch {
	case errors.Is(err, er.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorEnvelope{Error: "NOT_FOUND", Message: "resource not found"})
	case errors.Is(err, er.ErrStatusConflict):
		c.JSON(http.StatusConflict, ErrorEnvelope{Error: "STATUS_CONFLICT", Message: "resource changed concurrently, retry"})
	case errors.Is(err, er.ErrQuotaExceeded):
		c.JSON(http.StatusTooManyRequests, ErrorEnvelope{Error: "QUOTA_EXCEEDED", Message: "daily send quota exceeded"})
	case errors.Is(err, er.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, ErrorEnvelope{Error: "RATE_LIMIT_EXCEEDED", Message: "rate limit exceeded"})
	case errors.Is(err, er.ErrAuthenticationFailure), errors.Is(err, er.ErrAuthExpired):
		c.JSON(http.StatusUnauthorized, ErrorEnvelope{Error: "AUTH_ERROR", Message: "authentication failed"})
	case errors.Is(err, er.ErrAuthorizationFailure), errors.Is(err, er.ErrTenantMissing):
		c.JSON(http.StatusForbidden, ErrorEnvelope{Error: "AUTHZ_ERROR", Message: "not allowed"})
	default:
		c.JSON(http.StatusInternalServerError, ErrorEnvelope{Error: "INTERNAL_ERROR", Message: "internal error"})
	}
}
