// handlers_palette.go - Palette rules handlers
package api

import (
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/labstack/echo/v4"
	"github.com/pid-editor/backend/internal/diagram"
	"github.com/pid-editor/backend/internal/models"
	"github.com/pid-editor/backend/internal/parser"
	"github.com/pid-editor/backend/internal/session"
	"go.uber.org/zap"
)

// PaletteHandlerImpl implements the PaletteHandler interface
type PaletteHandlerImpl struct {
	mu       sync.RWMutex
	rules    *models.PaletteRules
	geometry diagram.Config
	file     string
	sessions *session.Manager
	logger   *zap.Logger
}

// NewPaletteHandler creates a new palette handler. Updated rules are written to file
// when it is not empty.
func NewPaletteHandler(rules *models.PaletteRules, geometry diagram.Config, file string, sessions *session.Manager, logger *zap.Logger) PaletteHandler {
	if rules == nil {
		rules = models.DefaultPaletteRules()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaletteHandlerImpl{
		rules:    rules,
		geometry: geometry,
		file:     file,
		sessions: sessions,
		logger:   logger,
	}
}

// HandleGetPalette returns the active rules as JSON, or YAML with ?format=yaml.
func (h *PaletteHandlerImpl) HandleGetPalette(c echo.Context) error {
	h.mu.RLock()
	rules := h.rules
	h.mu.RUnlock()

	if c.QueryParam("format") == "yaml" {
		data, err := parser.MarshalPaletteRules(rules)
		if err != nil {
			return NewInternalError("failed to encode palette", err)
		}
		return c.Blob(http.StatusOK, "application/yaml", data)
	}
	return c.JSON(http.StatusOK, rules)
}

// HandleUpdatePalette replaces the rules from a YAML body and relays out every session.
func (h *PaletteHandlerImpl) HandleUpdatePalette(c echo.Context) error {
	rules, err := parser.ParsePaletteRulesFromReader(c.Request().Body)
	if err != nil {
		return NewBadRequestError("invalid palette rules", err)
	}

	if h.file != "" {
		data, err := parser.MarshalPaletteRules(rules)
		if err != nil {
			return NewInternalError("failed to encode palette", err)
		}
		if err := os.MkdirAll(filepath.Dir(h.file), 0755); err != nil {
			return NewInternalError("failed to save palette", err)
		}
		if err := os.WriteFile(h.file, data, 0644); err != nil {
			return NewInternalError("failed to save palette", err)
		}
	}

	h.mu.Lock()
	h.rules = rules
	h.mu.Unlock()

	h.sessions.SetEngine(diagram.NewEngine(h.geometry, rules), rules.Arrangement)
	h.logger.Info("palette updated",
		zap.Int("renderers", len(rules.Renderers)),
		zap.Int("sessions", h.sessions.Len()))

	return c.JSON(http.StatusOK, rules)
}
