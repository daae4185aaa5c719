package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pid-editor/backend/internal/api"
	"github.com/pid-editor/backend/internal/cache"
	"github.com/pid-editor/backend/internal/config"
	"github.com/pid-editor/backend/internal/diagram"
	"github.com/pid-editor/backend/internal/llm"
	"github.com/pid-editor/backend/internal/logging"
	"github.com/pid-editor/backend/internal/models"
	"github.com/pid-editor/backend/internal/parser"
	"github.com/pid-editor/backend/internal/session"
	"github.com/pid-editor/backend/internal/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveConfigPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "", "path to the XML config file (default: next to the executable)")
}

// backend bundles what the server closes on shutdown.
type backend struct {
	items   storage.Store
	types   storage.Store
	closers []func() error
	logger  *zap.Logger
}

// Close runs the closers in reverse order. Failures are logged, not returned,
// so one bad closer does not skip the rest.
func (b *backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			b.logger.Warn("failed to close storage", zap.Error(err))
		}
	}
}

func openStorage(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (*backend, error) {
	b := &backend{logger: logger}
	switch cfg.Storage.Backend {
	case config.BackendMemory:
		b.items = storage.NewMemoryStore()
		b.types = storage.NewMemoryStore()

	case config.BackendDuckDB:
		db, err := storage.OpenDuckDB(cfg.Storage.DuckDBFile, storage.DuckOptions{
			Threads:     cfg.Advanced.DuckDBThreads,
			MemoryLimit: cfg.Advanced.DuckDBMemoryLimit,
			Logger:      logger,
		})
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, db.Close)
		items, err := db.Table(ctx, cfg.Storage.ItemsTable)
		if err != nil {
			b.Close()
			return nil, err
		}
		types, err := db.Table(ctx, cfg.Storage.TypesTable)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.items, b.types = items, types

	case config.BackendAirtable:
		items, err := storage.NewAirtableStore(storage.AirtableConfig{
			APIURL: cfg.Airtable.APIURL,
			APIKey: cfg.Airtable.APIKey,
			BaseID: cfg.Airtable.BaseID,
			Table:  cfg.Airtable.ItemsTable,
			Logger: logger,
		})
		if err != nil {
			return nil, err
		}
		types, err := storage.NewAirtableStore(storage.AirtableConfig{
			APIURL: cfg.Airtable.APIURL,
			APIKey: cfg.Airtable.APIKey,
			BaseID: cfg.Airtable.BaseID,
			Table:  cfg.Airtable.TypesTable,
			Logger: logger,
		})
		if err != nil {
			return nil, err
		}
		b.items, b.types = items, types

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
	return b, nil
}

func openCache(ctx context.Context, cfg *config.AppConfig) (cache.Cache, error) {
	switch cfg.Cache.Backend {
	case config.CacheRedis:
		rc, err := cache.NewRedisCache(ctx, cfg.Cache.RedisAddress, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
		if err != nil {
			return nil, err
		}
		return rc, nil
	case config.CacheNone:
		return cache.NewNullCache(), nil
	default:
		return cache.NewMemoryCache(), nil
	}
}

func openParser(ctx context.Context, cfg *config.AppConfig, c cache.Cache, logger *zap.Logger) llm.ItemParser {
	if !cfg.LLM.Enabled || cfg.LLM.APIKey == "" {
		logger.Info("natural-language parsing disabled")
		return llm.Disabled{}
	}
	gen, err := llm.NewGenAIGenerator(ctx, cfg.LLM.APIKey, cfg.LLM.Model)
	if err != nil {
		logger.Warn("natural-language parsing unavailable", zap.Error(err))
		return llm.Disabled{}
	}
	ttl := time.Duration(cfg.LLM.CacheTTLMinutes) * time.Minute
	return llm.NewParser(gen, c, ttl, logger)
}

func loadPalette(path string, logger *zap.Logger) *models.PaletteRules {
	if path == "" {
		return models.DefaultPaletteRules()
	}
	rules, err := parser.ParsePaletteRules(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Warn("failed to load palette rules, using defaults", zap.String("file", path), zap.Error(err))
		}
		return models.DefaultPaletteRules()
	}
	logger.Info("palette rules loaded", zap.String("file", path), zap.Int("renderers", len(rules.Renderers)))
	return rules
}

func runServe(cmd *cobra.Command, args []string) error {
	configPath := serveConfigPath
	if configPath == "" {
		configPath = defaultConfigPath()
	}

	// Load XML configuration
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := logging.New(cfg.Advanced.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	// Ensure all data directories exist
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	sharedCache, err := openCache(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	defer sharedCache.Close()

	palette := loadPalette(cfg.Storage.PaletteFile, logger)
	geometry := cfg.LayoutGeometry()

	sessionMgr := session.NewManager(session.Deps{
		Store:  store.items,
		Types:  storage.NewTypeResolver(store.types, sharedCache, cfg.CacheTTL(), logger),
		Parser: openParser(ctx, cfg, sharedCache, logger),
		Logger: logger,
	}, diagram.NewEngine(geometry, palette), palette.Arrangement)
	defer sessionMgr.Close()

	// Start background session cleanup
	go sessionMgr.Run(ctx, cfg.CleanupInterval(), cfg.SessionTimeout())

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	api.SetupMiddleware(e, cfg, logger)
	api.RegisterRoutes(e, api.NewHandlers(&api.Dependencies{
		Sessions:       sessionMgr,
		Cache:          sharedCache,
		Palette:        palette,
		Geometry:       geometry,
		PaletteFile:    cfg.Storage.PaletteFile,
		StorageBackend: cfg.Storage.Backend,
		MaxWSMessage:   int64(cfg.Advanced.WebSocketMaxMessageSize) * 1024,
		Version:        Version,
		Logger:         logger,
	}))

	// Configure server with settings from XML config
	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	printBanner(configPath, cfg)

	errCh := make(chan error, 1)
	go func() {
		if err := e.StartServer(s); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func printBanner(configPath string, cfg *config.AppConfig) {
	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           P&ID Editor Server                              ║\n")
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Version:    %-45s║\n", Version)
	fmt.Printf("║  Build Time: %-45s║\n", BuildTime)
	fmt.Printf("║  Storage:    %-45s║\n", cfg.Storage.Backend)
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Config:    %-46s║\n", configPath)
	fmt.Printf("║  Listen:    http://%-39s║\n", cfg.GetServerAddr())
	fmt.Printf("║  Data Dir:  %-46s║\n", cfg.Storage.DataDirectory)
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")
}
