package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	accountpkg "github.com/kevobebop/kindmind/internal/account"
	billingdomain "github.com/kevobebop/kindmind/internal/billing/domain"
	checkoutdomain "github.com/kevobebop/kindmind/internal/checkout/domain"
	"github.com/kevobebop/kindmind/internal/claims"
	identitydomain "github.com/kevobebop/kindmind/internal/identity/domain"
	"gorm.io/gorm"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrInvalidRequest = errors.New("invalid_request")
)

// ErrorHandlingMiddleware maps domain sentinels onto HTTP statuses after the
// handler chain runs. Handlers push errors with AbortWithError and never
// write status codes for failures themselves.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{Type: "unauthorized", Message: "unauthorized"}
	case errors.Is(err, claims.ErrPermissionDenied):
		return http.StatusForbidden, errorPayload{Type: "forbidden", Message: "forbidden"}
	case errors.Is(err, identitydomain.ErrAlreadyExists):
		return http.StatusConflict, errorPayload{Type: "conflict", Message: "conflict"}
	case errors.Is(err, identitydomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound, errorPayload{Type: "not_found", Message: "not found"}
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, accountpkg.ErrInvalidRequest),
		errors.Is(err, checkoutdomain.ErrInvalidRequest),
		errors.Is(err, identitydomain.ErrInvalidUser),
		errors.Is(err, identitydomain.ErrInvalidRole),
		errors.Is(err, identitydomain.ErrInvalidStatus),
		errors.Is(err, billingdomain.ErrInvalidPayload),
		errors.Is(err, billingdomain.ErrSignatureInvalid):
		return http.StatusBadRequest, errorPayload{Type: "invalid_request", Message: "invalid request"}
	case errors.Is(err, billingdomain.ErrUnavailable):
		return http.StatusServiceUnavailable, errorPayload{Type: "service_unavailable", Message: "service unavailable"}
	case errors.Is(err, checkoutdomain.ErrConfig),
		errors.Is(err, billingdomain.ErrInvalidRequest):
		return http.StatusInternalServerError, errorPayload{Type: "configuration_error", Message: "billing configuration error"}
	default:
		return http.StatusInternalServerError, errorPayload{Type: "internal_error", Message: "internal server error"}
	}
}
