package ratelimit

import (
	xhttp "Pattas/pkg/http"

	"github.com/labstack/echo/v4"
)

// Middleware rejects requests over the limit with 429, keyed by client IP.
func Middleware(l *Limiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !l.Allow(c.RealIP()) {
				c.Response().Header().Set(echo.HeaderRetryAfter, "10")
				return xhttp.TooManyRequestsError("Too many analysis requests")
			}
			return next(c)
		}
	}
}
