package api

import (
	"Pattas/internal/domain/models"
	"Pattas/internal/domain/service"
	xhttp "Pattas/pkg/http"
	xlogger "Pattas/pkg/logger"

	"github.com/labstack/echo/v4"
)

type RunsEchoHandler struct {
	logger   *xlogger.Logger
	analysis service.Analysis
}

func NewRunsEchoHandler(logger *xlogger.Logger, analysis service.Analysis) *RunsEchoHandler {
	return &RunsEchoHandler{logger: logger, analysis: analysis}
}

func (h *RunsEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/runs", h.Runs)
}

func (h *RunsEchoHandler) Runs(c echo.Context) error {
	req := &models.RunsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.ValidationErrorResponse(c, verr)
	}

	runs, err := h.analysis.Recent(c.Request().Context(), req.Limit)
	if err != nil {
		return xhttp.InternalError("Failed to load run history").WithError(err)
	}
	if runs == nil {
		runs = []models.Run{}
	}
	return xhttp.SuccessResponse(c, runs)
}
