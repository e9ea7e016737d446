package httpapi

import (
	"errors"
	"net/http"

	"github.com/and161185/prompt-enhancer/internal/errs"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// statusFor maps service errors to HTTP responses. Messages of validation, configuration,
// quota and upstream errors are written for end users and passed through.
func statusFor(err error) (int, errorBody) {
	switch {
	case errors.Is(err, errs.ErrUnauthorized):
		return http.StatusUnauthorized, errorBody{"Unauthorized", "UNAUTHORIZED"}
	case errors.Is(err, errs.ErrValidation):
		return http.StatusBadRequest, errorBody{err.Error(), "VALIDATION_ERROR"}
	case errors.Is(err, errs.ErrConfiguration):
		return http.StatusBadRequest, errorBody{err.Error(), "CONFIGURATION_ERROR"}
	case errors.Is(err, errs.ErrQuotaExceeded):
		return http.StatusTooManyRequests, errorBody{err.Error(), "QUOTA_EXCEEDED"}
	case errors.Is(err, errs.ErrRateLimited):
		return http.StatusTooManyRequests, errorBody{"Too many requests. Please slow down.", "RATE_LIMITED"}
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound, errorBody{"Not found", "NOT_FOUND"}
	case errors.Is(err, errs.ErrAlreadyExists):
		return http.StatusConflict, errorBody{"Already exists", "CONFLICT"}
	case errors.Is(err, errs.ErrDecryption):
		return http.StatusInternalServerError, errorBody{"Failed to decrypt stored API key", "DECRYPTION_FAILED"}
	case errors.Is(err, errs.ErrUpstream):
		var ue *errs.UpstreamError
		if errors.As(err, &ue) {
			return http.StatusInternalServerError, errorBody{ue.Message, "UPSTREAM_ERROR"}
		}
		return http.StatusInternalServerError, errorBody{"AI provider request failed", "UPSTREAM_ERROR"}
	default:
		return http.StatusInternalServerError, errorBody{"Internal server error", "INTERNAL"}
	}
}

func abortWith(c *gin.Context, err error, log *zap.Logger) {
	code, body := statusFor(err)
	if code >= http.StatusInternalServerError {
		log.Error("request failed", zap.String("route", routeOf(c)), zap.Int("status", code), zap.Error(err))
	}
	c.AbortWithStatusJSON(code, body)
}
