package http

import (
	"errors"
	"fmt"
	"net/http"

	applogger "Pattas/pkg/logger"

	"github.com/labstack/echo/v4"
)

// AppError represents application-level error with HTTP status.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new application error.
func NewAppError(code, message string, status int) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Status:  status,
	}
}

// WithError wraps an underlying error. The wrapped error is logged, never sent.
func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

// NotFoundError creates a 404 error.
func NotFoundError(message string) *AppError {
	return NewAppError("ERR_NOT_FOUND", message, http.StatusNotFound)
}

// BadRequestError creates a 400 error.
func BadRequestError(message string) *AppError {
	return NewAppError("ERR_BAD_REQUEST", message, http.StatusBadRequest)
}

// BadRequestErrorf creates a 400 error with formatting.
func BadRequestErrorf(format string, a ...interface{}) *AppError {
	return BadRequestError(fmt.Sprintf(format, a...))
}

// ConflictError creates a 409 error.
func ConflictError(message string) *AppError {
	return NewAppError("ERR_CONFLICT", message, http.StatusConflict)
}

// TooManyRequestsError creates a 429 error.
func TooManyRequestsError(message string) *AppError {
	return NewAppError("ERR_RATE_LIMITED", message, http.StatusTooManyRequests)
}

// InternalError creates a 500 error.
func InternalError(message string) *AppError {
	return NewAppError("ERR_INTERNAL", message, http.StatusInternalServerError)
}

// ErrorHandler renders every error that reaches echo as {"error": message}.
// Internal details stay in the log.
func ErrorHandler(l *applogger.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var appErr *AppError
		var he *echo.HTTPError
		switch {
		case errors.As(err, &appErr):
			if appErr.Status >= http.StatusInternalServerError && l != nil {
				l.Error("request failed",
					applogger.String("path", c.Path()),
					applogger.String("code", appErr.Code),
					applogger.Error(err),
				)
			}
			_ = ErrorResponse(c, appErr.Status, appErr.Message)
		case errors.As(err, &he):
			msg := http.StatusText(he.Code)
			if s, ok := he.Message.(string); ok && s != "" {
				msg = s
			}
			_ = ErrorResponse(c, he.Code, msg)
		default:
			if l != nil {
				l.Error("unhandled error",
					applogger.String("path", c.Path()),
					applogger.Error(err),
				)
			}
			_ = ErrorResponse(c, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		}
	}
}
