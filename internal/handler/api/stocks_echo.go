package api

import (
	"errors"
	"net/http"

	"Pattas/internal/domain/models"
	"Pattas/internal/domain/service"
	"Pattas/internal/usecase"
	xhttp "Pattas/pkg/http"
	xlogger "Pattas/pkg/logger"

	"github.com/labstack/echo/v4"
)

// StocksEchoHandler serves the latest screening snapshot.
type StocksEchoHandler struct {
	logger   *xlogger.Logger
	snapshot service.Snapshot
}

func NewStocksEchoHandler(logger *xlogger.Logger, snapshot service.Snapshot) *StocksEchoHandler {
	return &StocksEchoHandler{logger: logger, snapshot: snapshot}
}

func (h *StocksEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/stocks", h.Stocks)
	e.GET("/stocks/table", h.Table)
}

// Stocks returns {data: {sector: rows}, date}. Never cached: the analysis
// script rewrites the database between requests.
func (h *StocksEchoHandler) Stocks(c echo.Context) error {
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")

	snap, err := h.snapshot.Latest(c.Request().Context())
	if err != nil {
		return snapshotError(err)
	}
	return c.JSON(http.StatusOK, snap)
}

func (h *StocksEchoHandler) Table(c echo.Context) error {
	req := &models.StockTableRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.ValidationErrorResponse(c, verr)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")

	table, err := h.snapshot.Table(c.Request().Context(), req.Sort, req.Order)
	if err != nil {
		return snapshotError(err)
	}
	return c.JSON(http.StatusOK, table)
}

func snapshotError(err error) error {
	if errors.Is(err, usecase.ErrNoSnapshot) {
		return xhttp.NotFoundError("No data found")
	}
	return xhttp.InternalError("Database access failed").WithError(err)
}
