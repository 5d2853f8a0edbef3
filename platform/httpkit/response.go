// Package httpkit holds the gin plumbing shared by every module: JSON
// responses, error mapping, request logging, rate limits and admin auth.
package httpkit

import (
	"errors"
	"net/http"

	"concierge_backend/platform/apperr"

	"github.com/gin-gonic/gin"
)

const msgInternalError = "internal error"

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

func OK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

func Error(c *gin.Context, status int, message string, details any) {
	c.JSON(status, ErrorResponse{Error: message, Details: details})
}

// HandleError writes err and reports whether there was one. An *apperr.Error
// anywhere in the chain decides the status; anything else is a 500 whose
// cause is attached to the gin context for RequestLogger only.
func HandleError(c *gin.Context, err error) bool {
	if err == nil {
		return false
	}

	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		if appErr.Kind == apperr.KindUnavailable || appErr.Kind == apperr.KindInternal {
			_ = c.Error(err)
		}
		Error(c, appErr.HTTPStatus(), appErr.Message, appErr.Details)
		return true
	}

	_ = c.Error(err)
	Error(c, http.StatusInternalServerError, msgInternalError, nil)
	return true
}
