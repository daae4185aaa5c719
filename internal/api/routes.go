// routes.go - Route registration helpers
// This file provides a clean way to register all API routes
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pid-editor/backend/internal/cache"
	"github.com/pid-editor/backend/internal/config"
	"github.com/pid-editor/backend/internal/diagram"
	"github.com/pid-editor/backend/internal/models"
	"github.com/pid-editor/backend/internal/session"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Sessions       *session.Manager
	Cache          cache.Cache
	Palette        *models.PaletteRules
	Geometry       diagram.Config
	PaletteFile    string
	StorageBackend string
	MaxWSMessage   int64
	Version        string
	Logger         *zap.Logger
}

// Handlers holds all handler instances
type Handlers struct {
	Health    HealthHandler
	Code      CodeHandler
	Session   SessionHandler
	Item      ItemHandler
	Palette   PaletteHandler
	Cache     CacheHandler
	WebSocket *WebSocketHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	return &Handlers{
		Health:    NewHealthHandler(deps.Version, deps.StorageBackend, deps.Sessions),
		Code:      NewCodeHandler(),
		Session:   NewSessionHandler(deps.Sessions),
		Item:      NewItemHandler(deps.Sessions),
		Palette:   NewPaletteHandler(deps.Palette, deps.Geometry, deps.PaletteFile, deps.Sessions, deps.Logger),
		Cache:     NewCacheHandler(deps.Cache),
		WebSocket: NewWebSocketHandler(deps.Sessions, deps.MaxWSMessage, deps.Logger),
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	apiGroup := e.Group("/api")

	// Health check
	apiGroup.GET("/health", handlers.Health.HandleHealth)

	// Code generation
	apiGroup.POST("/code", handlers.Code.HandleGenerateCode)

	// Editing sessions
	sessionGroup := apiGroup.Group("/sessions")
	sessionGroup.POST("", handlers.Session.HandleCreateSession)
	sessionGroup.GET("", handlers.Session.HandleListSessions)
	sessionGroup.GET("/:id", handlers.Session.HandleGetSession)
	sessionGroup.DELETE("/:id", handlers.Session.HandleDeleteSession)
	sessionGroup.POST("/:id/reload", handlers.Session.HandleReload)
	sessionGroup.GET("/:id/diagram", handlers.Session.HandleGetDiagram)
	sessionGroup.GET("/:id/diagram/msgpack", handlers.Session.HandleGetDiagramMsgpack)
	sessionGroup.PUT("/:id/arrangement", handlers.Session.HandleSetArrangement)
	sessionGroup.POST("/:id/reposition", handlers.Session.HandleReposition)

	// Items
	sessionGroup.POST("/:id/items", handlers.Item.HandleAddItem)
	sessionGroup.PUT("/:id/items/:itemId", handlers.Item.HandleUpdateItem)
	sessionGroup.DELETE("/:id/items/:itemId", handlers.Item.HandleDeleteItem)
	sessionGroup.PUT("/:id/items/:itemId/position", handlers.Item.HandleMoveItem)
	sessionGroup.POST("/:id/parse-item", handlers.Item.HandleParseItem)

	// Palette rules
	apiGroup.GET("/palette", handlers.Palette.HandleGetPalette)
	apiGroup.PUT("/palette", handlers.Palette.HandleUpdatePalette)

	// Cache
	apiGroup.DELETE("/cache", handlers.Cache.HandleClearCache)

	RegisterWebSocketRoutes(e, handlers)
}

// RegisterWebSocketRoutes registers WebSocket routes
func RegisterWebSocketRoutes(e *echo.Echo, handlers *Handlers) {
	e.GET("/api/ws/sessions/:id", handlers.WebSocket.HandleWebSocket)
}

// SetupMiddleware configures common middleware
func SetupMiddleware(e *echo.Echo, cfg *config.AppConfig, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}

	// Use custom error handler
	e.HTTPErrorHandler = NewErrorHandler(logger)

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			// Skip logging if disabled in config
			if !cfg.Advanced.EnableRequestLogging {
				return true
			}
			path := c.Request().URL.Path
			return path == "/api/health" || path == "/metrics"
		},
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				fields = append(fields, zap.Error(v.Error))
			}
			logger.Info("request", fields...)
			return nil
		},
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 1024 * 4,
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			logger.Error("panic recovered",
				zap.String("path", c.Request().URL.Path),
				zap.Error(err),
				zap.ByteString("stack", stack))
			return err
		},
	}))

	if cfg.Server.ReadTimeout > 0 {
		e.Use(middleware.TimeoutWithConfig(middleware.TimeoutConfig{
			Timeout: time.Duration(cfg.Server.ReadTimeout) * time.Second,
			Skipper: func(c echo.Context) bool {
				return strings.HasPrefix(c.Request().URL.Path, "/api/ws/") ||
					strings.HasSuffix(c.Request().URL.Path, "/parse-item")
			},
			ErrorMessage: "Request timeout",
		}))
	}

	// Compression middleware
	if cfg.Processing.EnableCompression {
		e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
			Level: cfg.Processing.CompressionLevel,
			Skipper: func(c echo.Context) bool {
				return strings.HasPrefix(c.Request().URL.Path, "/api/ws/")
			},
		}))
	}

	// Body limit middleware
	if cfg.Server.BodyLimit != "" {
		e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))
	}

	// CORS configuration
	if cfg.Server.EnableCORS {
		origins := strings.Split(cfg.Server.AllowOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		if len(origins) == 0 || (len(origins) == 1 && origins[0] == "") {
			origins = []string{"*"}
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: origins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		}))
	}
}
