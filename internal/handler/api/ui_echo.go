package api

import (
	_ "embed"
	"net/http"

	"github.com/labstack/echo/v4"
)

//go:embed index.html
var indexHTML []byte

// UIEchoHandler serves the single-page dashboard.
type UIEchoHandler struct{}

func NewUIEchoHandler() *UIEchoHandler { return &UIEchoHandler{} }

func (h *UIEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/", h.Index)
}

func (h *UIEchoHandler) Index(c echo.Context) error {
	return c.Blob(http.StatusOK, echo.MIMETextHTMLCharsetUTF8, indexHTML)
}
