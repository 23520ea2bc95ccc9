// Package httpkit holds the gin helpers shared by HTTP modules: responses,
// caller identity and middleware.
package httpkit

import (
	"context"
	"errors"
	"net/http"

	"dealership_portal/platform/apperr"
	"dealership_portal/platform/validator"

	"github.com/gin-gonic/gin"
)

// ErrorResponse is the body of every error answer.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

func JSON(c *gin.Context, status int, payload any) {
	c.JSON(status, payload)
}

func OK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

// Accepted answers 202 for commands whose effect shows up later on the
// session's stream.
func Accepted(c *gin.Context, payload any) {
	c.JSON(http.StatusAccepted, payload)
}

func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

func Error(c *gin.Context, status int, message string, details any) {
	c.JSON(status, ErrorResponse{Error: message, Details: details})
}

// ValidationError answers 400 with per-field messages.
func ValidationError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   "validation failed",
		Code:    apperr.KindValidation.String(),
		Details: validator.FieldErrors(err),
	})
}

// HandleError writes err and reports whether there was one. Typed errors use
// their kind's status; a timed-out request answers 504 and anything else 500
// without leaking the cause.
func HandleError(c *gin.Context, err error) bool {
	if err == nil {
		return false
	}
	_ = c.Error(err)

	var appErr *apperr.Error
	switch {
	case errors.As(err, &appErr):
		c.JSON(appErr.HTTPStatus(), ErrorResponse{
			Error:   appErr.Message,
			Code:    appErr.Kind.String(),
			Details: appErr.Details,
		})
	case errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, ErrorResponse{Error: "request timed out"})
	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
	return true
}
