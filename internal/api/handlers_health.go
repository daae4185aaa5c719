// handlers_health.go - Health check handlers
package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pid-editor/backend/internal/session"
)

// HealthHandlerImpl implements the HealthHandler interface
type HealthHandlerImpl struct {
	version  string
	backend  string
	sessions *session.Manager
	started  time.Time
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(version, backend string, sessions *session.Manager) HealthHandler {
	return &HealthHandlerImpl{
		version:  version,
		backend:  backend,
		sessions: sessions,
		started:  time.Now(),
	}
}

// HandleHealth returns server health status
func (h *HealthHandlerImpl) HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"version":  h.version,
		"storage":  h.backend,
		"sessions": h.sessions.Len(),
		"uptime":   time.Since(h.started).Round(time.Second).String(),
	})
}
