// handlers_items.go - Item mutation handlers
package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pid-editor/backend/internal/models"
	"github.com/pid-editor/backend/internal/session"
)

// ItemHandlerImpl implements the ItemHandler interface
type ItemHandlerImpl struct {
	sessions *session.Manager
}

// NewItemHandler creates a new item handler
func NewItemHandler(sessions *session.Manager) ItemHandler {
	return &ItemHandlerImpl{sessions: sessions}
}

// bindFields decodes the body directly; echo's binder would also copy path params
// into a map destination.
func bindFields(c echo.Context) (map[string]any, error) {
	var fields map[string]any
	if err := json.NewDecoder(c.Request().Body).Decode(&fields); err != nil {
		return nil, NewBadRequestError("body must be a JSON object of item fields", err)
	}
	if len(fields) == 0 {
		return nil, NewBadRequestError("no fields given", nil)
	}
	return fields, nil
}

// HandleAddItem adds an item from a field bag.
func (h *ItemHandlerImpl) HandleAddItem(c echo.Context) error {
	d, err := lookupSession(c, h.sessions)
	if err != nil {
		return err
	}
	fields, err := bindFields(c)
	if err != nil {
		return err
	}
	if name, _ := fields[models.FieldName].(string); strings.TrimSpace(name) == "" {
		return NewValidationError(models.FieldName)
	}

	it, err := d.AddItem(c.Request().Context(), fields)
	if err != nil {
		return fromSessionError("failed to create item", "", err)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"item":    it,
		"diagram": d.Snapshot(),
	})
}

// HandleUpdateItem merges fields into an item. A null value clears the field.
func (h *ItemHandlerImpl) HandleUpdateItem(c echo.Context) error {
	d, err := lookupSession(c, h.sessions)
	if err != nil {
		return err
	}
	itemID := c.Param("itemId")
	fields, err := bindFields(c)
	if err != nil {
		return err
	}

	it, err := d.UpdateItem(c.Request().Context(), itemID, fields)
	if err != nil {
		return fromSessionError("failed to update item", itemID, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"item":    it,
		"diagram": d.Snapshot(),
	})
}

// HandleDeleteItem removes an item.
func (h *ItemHandlerImpl) HandleDeleteItem(c echo.Context) error {
	d, err := lookupSession(c, h.sessions)
	if err != nil {
		return err
	}
	itemID := c.Param("itemId")

	if err := d.DeleteItem(c.Request().Context(), itemID); err != nil {
		return fromSessionError("failed to delete item", itemID, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleMoveItem stores an explicit position.
func (h *ItemHandlerImpl) HandleMoveItem(c echo.Context) error {
	d, err := lookupSession(c, h.sessions)
	if err != nil {
		return err
	}
	itemID := c.Param("itemId")

	var req struct {
		X *float64 `json:"x"`
		Y *float64 `json:"y"`
	}
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid position", err)
	}
	if req.X == nil {
		return NewValidationError("x")
	}
	if req.Y == nil {
		return NewValidationError("y")
	}

	it, err := d.MoveItem(c.Request().Context(), itemID, models.Position{X: *req.X, Y: *req.Y})
	if err != nil {
		return fromSessionError("failed to move item", itemID, err)
	}
	return c.JSON(http.StatusOK, it)
}

// HandleParseItem adds items described in natural language. Replies that are not
// items are returned as a chat message with status 200.
func (h *ItemHandlerImpl) HandleParseItem(c echo.Context) error {
	d, err := lookupSession(c, h.sessions)
	if err != nil {
		return err
	}

	var req struct {
		Text string `json:"text"`
	}
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request", err)
	}
	if strings.TrimSpace(req.Text) == "" {
		return NewValidationError("text")
	}

	res, added, err := d.ParseItem(c.Request().Context(), req.Text)
	if err != nil {
		msg := "failed to create parsed items"
		if res == nil {
			msg = "natural-language parse failed"
		}
		return fromSessionError(msg, "", err)
	}

	if added == nil {
		added = []models.Item{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"result":  res,
		"added":   added,
		"diagram": d.Snapshot(),
	})
}
