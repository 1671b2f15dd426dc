package api

import (
	"net/http"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/datallboy/gofetch/internal/app"
)

// RegisterRoutes mounts the status API on e.
func RegisterRoutes(e *echo.Echo, appCtx *app.Context) {

	// Middleware: Request Logger
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c *echo.Context, v middleware.RequestLoggerValues) error {
			appCtx.Logger.Info("%s %s | %d | %s", v.Method, v.URI, v.Status, v.Latency)
			return nil
		},
	}))

	// Progress snapshot of the active download
	e.GET("/status", func(c *echo.Context) error {
		return c.JSON(http.StatusOK, appCtx.Snapshot())
	})
}
