package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	ierr "github.com/smallbiznis/fedbill/internal/errors"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrNotFound    = ierr.NewError("route not found").Mark(ierr.ErrNotFound)
	ErrRateLimited = ierr.NewError("too many requests").Err()
)

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

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    ierr.ErrCodeInternal,
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    ierr.ErrCodeValidation,
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if ierr.Is(err, ErrRateLimited) {
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	}

	status := ierr.HTTPStatusFromErr(err)
	payload := errorPayload{
		Type:    ierr.CodeFromErr(err),
		Message: publicMessage(err, status),
	}
	return status, payload
}

// publicMessage returns the hint attached to err, or a generic text for the
// status. Server-side failures never expose their cause.
func publicMessage(err error, status int) string {
	if status >= http.StatusInternalServerError {
		return "internal server error"
	}
	if hint := strings.TrimSpace(ierr.Hint(err)); hint != "" {
		return hint
	}
	return strings.ToLower(http.StatusText(status))
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if ierr.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func classifyErrorForLog(err error) (string, string) {
	if asValidationErrors(err) != nil {
		return ierr.ErrCodeValidation, "invalid_request"
	}
	if ierr.Is(err, ErrRateLimited) {
		return "rate_limited", "too_many_requests"
	}
	status := ierr.HTTPStatusFromErr(err)
	return ierr.CodeFromErr(err), strings.ReplaceAll(strings.ToLower(http.StatusText(status)), " ", "_")
}
