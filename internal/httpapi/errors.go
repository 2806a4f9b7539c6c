package httpapi

import (
	"errors"
	"net/http"

	"call-signaling/internal/calls"
	"call-signaling/internal/reporting"
	"call-signaling/pkg/logger"

	"github.com/gin-gonic/gin"
)

// statusFor maps the call error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case calls.IsAuthorization(err):
		return http.StatusForbidden
	case calls.IsPrecondition(err):
		return http.StatusConflict
	case calls.IsReachability(err):
		return http.StatusGone
	case calls.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, calls.ErrInvalidArgument), errors.Is(err, reporting.ErrInvalidRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.FromGin(c).Error("request failed", "err", err)
		_ = c.Error(err)
		c.AbortWithStatusJSON(status, gin.H{"error": "internal error"})
		return
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}
