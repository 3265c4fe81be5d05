package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	applogger "Pattas/pkg/logger"

	"github.com/labstack/echo/v4"
)

// Recover returns recovery middleware. A panic after the response was
// committed (e.g. mid-stream) is logged only.
func Recover(l *applogger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			defer func() {
				if r := recover(); r != nil {
					if r == http.ErrAbortHandler {
						panic(r)
					}
					err, ok := r.(error)
					if !ok {
						err = fmt.Errorf("%v", r)
					}
					l.Error("panic recovered",
						applogger.String("path", c.Path()),
						applogger.Error(err),
						applogger.String("stack", string(debug.Stack())),
					)
					if !c.Response().Committed {
						_ = c.JSON(http.StatusInternalServerError, map[string]string{
							"error": http.StatusText(http.StatusInternalServerError),
						})
					}
				}
			}()
			return next(c)
		}
	}
}
