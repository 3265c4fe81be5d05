package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/labstack/echo/v4"
)

// HealthCheck checks one dependency.
type HealthCheck func(ctx context.Context) error

type HealthEchoHandler struct {
	checks  map[string]HealthCheck
	timeout time.Duration
}

func NewHealthEchoHandler(checks map[string]HealthCheck) *HealthEchoHandler {
	return &HealthEchoHandler{checks: checks, timeout: 2 * time.Second}
}

func (h *HealthEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)
}

// Health returns {"status":"ok"} when every check passes, else 503 with
// the failing checks.
func (h *HealthEchoHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	failed := map[string]string{}
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			failed[name] = err.Error()
		}
	}

	if len(failed) > 0 {
		return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
			"status": "degraded",
			"checks": failed,
		})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
