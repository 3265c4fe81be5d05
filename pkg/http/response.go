package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// DataResponse writes {"data": data} with the given status.
func DataResponse(c echo.Context, statusCode int, data interface{}) error {
	return c.JSON(statusCode, DataBody{Data: data})
}

// SuccessResponse writes a 200 data response.
func SuccessResponse(c echo.Context, data interface{}) error {
	return DataResponse(c, http.StatusOK, data)
}

// ErrorResponse writes {"error": message}.
func ErrorResponse(c echo.Context, statusCode int, message string) error {
	return c.JSON(statusCode, ErrorBody{Error: message})
}

// ValidationErrorResponse writes a 400 with per-field details.
func ValidationErrorResponse(c echo.Context, errs []ValidationError) error {
	return c.JSON(http.StatusBadRequest, ErrorBody{
		Error:   "Invalid request parameters",
		Details: errs,
	})
}

// InternalServerErrorResponse writes internal server error.
func InternalServerErrorResponse(c echo.Context) error {
	return ErrorResponse(c, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
}

// AppErrorResponse writes application error response.
func AppErrorResponse(c echo.Context, err error) error {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return ErrorResponse(c, appErr.Status, appErr.Message)
	}
	return InternalServerErrorResponse(c)
}
