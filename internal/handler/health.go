// Package handler contains the HTTP handlers for the operational
// endpoints.  The product checkout API is served elsewhere; this
// process only exposes health, readiness and metrics.
package handler

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Health is a liveness endpoint for load balancers and monitoring.
// It returns a plain "ok" with HTTP 200 as long as the process runs.
func Health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

// Ready returns a readiness handler that pings the database.  A
// failing ping yields 503 so an orchestrator stops routing work here
// until the store is reachable again.
func Ready(db *sql.DB) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "database unreachable"})
		}
		return c.String(http.StatusOK, "ready")
	}
}
