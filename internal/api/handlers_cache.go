// handlers_cache.go - Cache maintenance handler
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pid-editor/backend/internal/cache"
)

// CacheHandlerImpl implements the CacheHandler interface
type CacheHandlerImpl struct {
	cache cache.Cache
}

// NewCacheHandler creates a new cache handler
func NewCacheHandler(c cache.Cache) CacheHandler {
	if c == nil {
		c = cache.NewNullCache()
	}
	return &CacheHandlerImpl{cache: c}
}

// HandleClearCache drops cached type names and parse replies.
func (h *CacheHandlerImpl) HandleClearCache(c echo.Context) error {
	if err := h.cache.Clear(c.Request().Context()); err != nil {
		return NewUpstreamError("failed to clear cache", err)
	}
	return c.NoContent(http.StatusNoContent)
}
