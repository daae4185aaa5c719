// handlers_session.go - Editing session handlers
package api

import (
	"bytes"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pid-editor/backend/internal/models"
	"github.com/pid-editor/backend/internal/session"
	"github.com/vmihailenco/msgpack/v5"
)

// SessionHandlerImpl implements the SessionHandler interface
type SessionHandlerImpl struct {
	sessions *session.Manager
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(sessions *session.Manager) SessionHandler {
	return &SessionHandlerImpl{sessions: sessions}
}

// lookupSession resolves the :id path parameter.
func lookupSession(c echo.Context, sessions *session.Manager) (*session.Diagram, error) {
	id := c.Param("id")
	if id == "" {
		return nil, NewValidationError("id")
	}
	d, ok := sessions.Get(id)
	if !ok {
		return nil, NewNotFoundError("session", id)
	}
	return d, nil
}

// HandleCreateSession opens a session and loads every record from the store.
func (h *SessionHandlerImpl) HandleCreateSession(c echo.Context) error {
	d, err := h.sessions.Create(c.Request().Context())
	if err != nil {
		return NewUpstreamError("failed to load records", err)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"session": d.Info(),
		"diagram": d.Snapshot(),
		"stats":   d.Stats(),
	})
}

// HandleListSessions lists open sessions.
func (h *SessionHandlerImpl) HandleListSessions(c echo.Context) error {
	return c.JSON(http.StatusOK, h.sessions.List())
}

// HandleGetSession returns session info.
func (h *SessionHandlerImpl) HandleGetSession(c echo.Context) error {
	d, err := lookupSession(c, h.sessions)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, d.Info())
}

// HandleDeleteSession closes a session.
func (h *SessionHandlerImpl) HandleDeleteSession(c echo.Context) error {
	id := c.Param("id")
	if !h.sessions.Delete(id) {
		return NewNotFoundError("session", id)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleGetDiagram returns nodes, edges, items and arrangement.
func (h *SessionHandlerImpl) HandleGetDiagram(c echo.Context) error {
	d, err := lookupSession(c, h.sessions)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, d.Snapshot())
}

// HandleGetDiagramMsgpack returns the diagram in MessagePack format with JSON field names.
func (h *SessionHandlerImpl) HandleGetDiagramMsgpack(c echo.Context) error {
	d, err := lookupSession(c, h.sessions)
	if err != nil {
		return err
	}

	data, err := encodeMsgpack(d.Snapshot())
	if err != nil {
		return NewInternalError("failed to encode msgpack", err)
	}
	return c.Blob(http.StatusOK, "application/msgpack", data)
}

func encodeMsgpack(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// HandleSetArrangement replaces the unit arrangement.
func (h *SessionHandlerImpl) HandleSetArrangement(c echo.Context) error {
	d, err := lookupSession(c, h.sessions)
	if err != nil {
		return err
	}

	var arr models.UnitArrangement
	if err := c.Bind(&arr); err != nil {
		return NewBadRequestError("arrangement must be an array of arrays of unit names", err)
	}

	d.SetArrangement(arr)
	return c.JSON(http.StatusOK, d.Snapshot())
}

// HandleReposition recomputes positions for the listed items, or all when none are listed.
func (h *SessionHandlerImpl) HandleReposition(c echo.Context) error {
	d, err := lookupSession(c, h.sessions)
	if err != nil {
		return err
	}

	var req struct {
		IDs []string `json:"ids"`
	}
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return NewBadRequestError("invalid reposition request", err)
		}
	}

	stats, err := d.Reposition(c.Request().Context(), req.IDs)
	if err != nil {
		return fromSessionError("failed to store positions", "", err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"diagram": d.Snapshot(),
		"stats":   stats,
	})
}

// HandleReload reads the store again, keeping known positions.
func (h *SessionHandlerImpl) HandleReload(c echo.Context) error {
	d, err := lookupSession(c, h.sessions)
	if err != nil {
		return err
	}
	if err := d.Load(c.Request().Context()); err != nil {
		return NewUpstreamError("failed to load records", err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"diagram": d.Snapshot(),
		"stats":   d.Stats(),
	})
}
