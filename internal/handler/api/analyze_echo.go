package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"Pattas/internal/domain/models"
	"Pattas/internal/domain/service"
	"Pattas/internal/service/ratelimit"
	"Pattas/internal/stream"
	"Pattas/internal/usecase"
	xhttp "Pattas/pkg/http"
	xlogger "Pattas/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	msgRunInProgress = "Analysis already running"
	contentTypeText  = "text/plain; charset=utf-8"
)

// AnalyzeEchoHandler triggers the analysis command and streams its output.
type AnalyzeEchoHandler struct {
	logger   *xlogger.Logger
	analysis service.Analysis
	limiter  *ratelimit.Limiter
	upgrader websocket.Upgrader
}

// NewAnalyzeEchoHandler builds the handler. limiter may be nil.
func NewAnalyzeEchoHandler(logger *xlogger.Logger, analysis service.Analysis, limiter *ratelimit.Limiter) *AnalyzeEchoHandler {
	return &AnalyzeEchoHandler{
		logger:   logger,
		analysis: analysis,
		limiter:  limiter,
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 4096},
	}
}

func (h *AnalyzeEchoHandler) RegisterRoutes(e *echo.Echo) {
	var mw []echo.MiddlewareFunc
	if h.limiter != nil {
		mw = append(mw, ratelimit.Middleware(h.limiter))
	}
	e.POST("/analyze", h.Analyze, mw...)
	e.GET("/analyze/ws", h.AnalyzeWS, mw...)
	e.GET("/analyze/status", h.Status)
}

// Analyze runs the command and streams stdout, prefixed stderr and the
// terminal marker as a chunked text/plain body.
func (h *AnalyzeEchoHandler) Analyze(c echo.Context) error {
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, contentTypeText)
	res.Header().Set(echo.HeaderXContentTypeOptions, "nosniff")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")

	// A run can take far longer than any server write timeout.
	if err := http.NewResponseController(res).SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		h.logger.Warn("clear write deadline failed", xlogger.Error(err))
	}

	run, err := h.analysis.Trigger(c.Request().Context(), models.TriggerHTTP, stream.NewHTTPSink(res))
	if err != nil {
		if errors.Is(err, usecase.ErrRunInProgress) {
			return xhttp.ConflictError(msgRunInProgress)
		}
		if res.Committed {
			h.logger.Error("analysis stream aborted", xlogger.Error(err))
			return nil
		}
		return xhttp.InternalError("Failed to start analysis").WithError(err)
	}

	h.logger.Debug("analysis stream closed",
		xlogger.String("run_id", run.ID),
		xlogger.String("result", run.Result()),
	)
	return nil
}

// AnalyzeWS serves the same stream as websocket text frames, then closes
// the socket normally.
func (h *AnalyzeEchoHandler) AnalyzeWS(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already written the error response.
		h.logger.Debug("websocket upgrade failed", xlogger.Error(err))
		return nil
	}
	defer conn.Close()

	// A hijacked connection does not cancel the request context when the
	// peer goes away; the read loop does.
	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	sink := stream.NewWSSink(conn)
	_, err = h.analysis.Trigger(ctx, models.TriggerWS, sink)
	switch {
	case errors.Is(err, usecase.ErrRunInProgress):
		_ = sink.Close(websocket.CloseTryAgainLater, msgRunInProgress)
	case err != nil:
		h.logger.Error("websocket analysis failed", xlogger.Error(err))
		_ = sink.Close(websocket.CloseInternalServerErr, "Failed to start analysis")
	default:
		_ = sink.Close(websocket.CloseNormalClosure, "")
	}
	return nil
}

// Status reports IDLE, ANALYZING or COMPLETE along with the current and
// last run.
func (h *AnalyzeEchoHandler) Status(c echo.Context) error {
	status, err := h.analysis.Status(c.Request().Context())
	if err != nil {
		return xhttp.InternalError("Failed to read analysis status").WithError(err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return c.JSON(http.StatusOK, status)
}
