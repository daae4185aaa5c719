// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"github.com/labstack/echo/v4"
)

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// CodeHandler computes item codes
type CodeHandler interface {
	HandleGenerateCode(c echo.Context) error
}

// SessionHandler handles editing session operations
type SessionHandler interface {
	HandleCreateSession(c echo.Context) error
	HandleListSessions(c echo.Context) error
	HandleGetSession(c echo.Context) error
	HandleDeleteSession(c echo.Context) error
	HandleGetDiagram(c echo.Context) error
	HandleGetDiagramMsgpack(c echo.Context) error
	HandleSetArrangement(c echo.Context) error
	HandleReposition(c echo.Context) error
	HandleReload(c echo.Context) error
}

// ItemHandler handles item mutations within a session
type ItemHandler interface {
	HandleAddItem(c echo.Context) error
	HandleUpdateItem(c echo.Context) error
	HandleDeleteItem(c echo.Context) error
	HandleMoveItem(c echo.Context) error
	HandleParseItem(c echo.Context) error
}

// PaletteHandler handles palette rules
type PaletteHandler interface {
	HandleGetPalette(c echo.Context) error
	HandleUpdatePalette(c echo.Context) error
}

// CacheHandler handles the type/parse cache
type CacheHandler interface {
	HandleClearCache(c echo.Context) error
}
