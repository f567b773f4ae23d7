// Package router wires the operational HTTP endpoints onto an Echo
// instance.
package router

import (
	"database/sql"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openticket/boxoffice/internal/handler"
)

// RegisterRoutes registers the health, readiness and metrics
// endpoints.  This process exposes no checkout API; sales traffic goes
// through the service layer directly.
func RegisterRoutes(e *echo.Echo, db *sql.DB) {
	e.Use(echomw.Recover())

	e.GET("/healthz", handler.Health)
	e.GET("/readyz", handler.Ready(db))
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}
