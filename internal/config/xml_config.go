// Package config provides XML-based configuration management for the P&ID editor backend.
package config

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pid-editor/backend/internal/diagram"
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendDuckDB   = "duckdb"
	BackendAirtable = "airtable"
)

// Cache backends.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
	CacheNone   = "none"
)

// AppConfig represents the root XML configuration structure
type AppConfig struct {
	XMLName xml.Name `xml:"PIDEditor"`

	Server     ServerConfig     `xml:"Server"`
	Storage    StorageConfig    `xml:"Storage"`
	Airtable   AirtableConfig   `xml:"Airtable"`
	LLM        LLMConfig        `xml:"LLM"`
	Cache      CacheConfig      `xml:"Cache"`
	Layout     LayoutConfig     `xml:"Layout"`
	Processing ProcessingConfig `xml:"Processing"`
	Advanced   AdvancedConfig   `xml:"Advanced"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port         int    `xml:"Port"`
	BindAddress  string `xml:"BindAddress"`
	EnableCORS   bool   `xml:"EnableCORS"`
	AllowOrigins string `xml:"AllowOrigins"`
	ReadTimeout  int    `xml:"ReadTimeoutSeconds"`
	WriteTimeout int    `xml:"WriteTimeoutSeconds"`
	IdleTimeout  int    `xml:"IdleTimeoutSeconds"`
	BodyLimit    string `xml:"BodyLimit"`
}

// StorageConfig selects the record store
type StorageConfig struct {
	Backend       string `xml:"Backend"`
	DataDirectory string `xml:"DataDirectory"`
	DuckDBFile    string `xml:"DuckDBFile"`
	ItemsTable    string `xml:"ItemsTable"`
	TypesTable    string `xml:"TypesTable"`
	PaletteFile   string `xml:"PaletteFile"`
}

// AirtableConfig contains Airtable connection settings. The API key is read from
// AIRTABLE_API_KEY only.
type AirtableConfig struct {
	APIURL     string `xml:"APIURL"`
	BaseID     string `xml:"BaseID"`
	ItemsTable string `xml:"ItemsTable"`
	TypesTable string `xml:"TypesTable"`
	APIKey     string `xml:"-"`
}

// LLMConfig contains natural-language parsing settings. The API key is read from
// GEMINI_API_KEY only.
type LLMConfig struct {
	Enabled         bool   `xml:"Enabled"`
	Model           string `xml:"Model"`
	TimeoutSeconds  int    `xml:"TimeoutSeconds"`
	CacheTTLMinutes int    `xml:"CacheTTLMinutes"`
	APIKey          string `xml:"-"`
}

// CacheConfig selects the type/parse cache
type CacheConfig struct {
	Backend       string `xml:"Backend"`
	RedisAddress  string `xml:"RedisAddress"`
	RedisDB       int    `xml:"RedisDB"`
	TTLMinutes    int    `xml:"TTLMinutes"`
	RedisPassword string `xml:"-"`
}

// LayoutConfig contains the layout geometry
type LayoutConfig struct {
	UnitWidth    float64 `xml:"UnitWidth"`
	UnitHeight   float64 `xml:"UnitHeight"`
	Gutter       float64 `xml:"Gutter"`
	ItemWidth    float64 `xml:"ItemWidth"`
	ItemGap      float64 `xml:"ItemGap"`
	LanePadding  float64 `xml:"LanePadding"`
	SubUnitLanes int     `xml:"SubUnitLanes"`
}

// ProcessingConfig contains session settings
type ProcessingConfig struct {
	SessionTimeoutMinutes  int  `xml:"SessionTimeoutMinutes"`
	CleanupIntervalMinutes int  `xml:"CleanupIntervalMinutes"`
	EnableCompression      bool `xml:"EnableCompression"`
	CompressionLevel       int  `xml:"CompressionLevel"`
}

// AdvancedConfig contains advanced/tuning options
type AdvancedConfig struct {
	LogLevel                string `xml:"LogLevel"`
	EnableRequestLogging    bool   `xml:"EnableRequestLogging"`
	DuckDBThreads           int    `xml:"DuckDBThreads"`
	DuckDBMemoryLimit       string `xml:"DuckDBMemoryLimit"`
	WebSocketMaxMessageSize int    `xml:"WebSocketMaxMessageSizeKB"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	layout := diagram.DefaultConfig()
	return &AppConfig{
		Server: ServerConfig{
			Port:         8089,
			BindAddress:  "0.0.0.0",
			EnableCORS:   true,
			AllowOrigins: "*",
			ReadTimeout:  30,
			WriteTimeout: 30,
			IdleTimeout:  120,
			BodyLimit:    "2M",
		},
		Storage: StorageConfig{
			Backend:       BackendDuckDB,
			DataDirectory: "./data",
			DuckDBFile:    "./data/pid.duckdb",
			ItemsTable:    "items",
			TypesTable:    "types",
			PaletteFile:   "./data/defaults/palette.yaml",
		},
		Airtable: AirtableConfig{
			APIURL:     "https://api.airtable.com/v0",
			ItemsTable: "Items",
			TypesTable: "Types",
		},
		LLM: LLMConfig{
			Enabled:         true,
			Model:           "gemini-2.5-flash",
			TimeoutSeconds:  30,
			CacheTTLMinutes: 60,
		},
		Cache: CacheConfig{
			Backend:      CacheMemory,
			RedisAddress: "localhost:6379",
			TTLMinutes:   60,
		},
		Layout: LayoutConfig{
			UnitWidth:    layout.UnitWidth,
			UnitHeight:   layout.UnitHeight,
			Gutter:       layout.Gutter,
			ItemWidth:    layout.ItemWidth,
			ItemGap:      layout.ItemGap,
			LanePadding:  layout.LanePadding,
			SubUnitLanes: layout.SubUnitLanes,
		},
		Processing: ProcessingConfig{
			SessionTimeoutMinutes:  30,
			CleanupIntervalMinutes: 5,
			EnableCompression:      true,
			CompressionLevel:       5,
		},
		Advanced: AdvancedConfig{
			LogLevel:                "info",
			EnableRequestLogging:    true,
			DuckDBThreads:           4,
			DuckDBMemoryLimit:       "1GB",
			WebSocketMaxMessageSize: 1024,
		},
	}
}

// LoadConfig loads configuration from XML file
func LoadConfig(configPath string) (*AppConfig, error) {
	config := DefaultConfig()

	// If file doesn't exist, create default
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := xml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	config.applyEnvironmentOverrides()
	config.resolvePaths(filepath.Dir(configPath))

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Save saves the configuration to XML file
func (c *AppConfig) Save(configPath string) error {
	output, err := xml.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(xml.Header + "\n<!-- P&ID Editor Configuration -->\n<!-- This file is auto-generated on first run -->\n\n")
	content := append(header, output...)

	if dir := filepath.Dir(configPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks enumerated settings
func (c *AppConfig) Validate() error {
	switch c.Storage.Backend {
	case BackendMemory, BackendDuckDB:
	case BackendAirtable:
		if c.Airtable.BaseID == "" {
			return fmt.Errorf("airtable backend requires Airtable.BaseID")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}

	switch c.Cache.Backend {
	case CacheMemory, CacheRedis, CacheNone:
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}

	if c.Layout.UnitWidth <= 0 || c.Layout.UnitHeight <= 0 || c.Layout.ItemWidth <= 0 || c.Layout.SubUnitLanes <= 0 {
		return fmt.Errorf("layout dimensions must be positive")
	}
	return nil
}

// applyEnvironmentOverrides allows environment variables to override config values
func (c *AppConfig) applyEnvironmentOverrides() {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		c.Storage.DataDirectory = dataDir
		c.Storage.DuckDBFile = filepath.Join(dataDir, filepath.Base(c.Storage.DuckDBFile))
	}

	if backend := os.Getenv("STORAGE_BACKEND"); backend != "" {
		c.Storage.Backend = strings.ToLower(backend)
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		c.Cache.Backend = CacheRedis
		c.Cache.RedisAddress = addr
	}
	c.Cache.RedisPassword = os.Getenv("REDIS_PASSWORD")

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Advanced.LogLevel = level
	}

	c.Airtable.APIKey = os.Getenv("AIRTABLE_API_KEY")
	c.LLM.APIKey = os.Getenv("GEMINI_API_KEY")
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	for _, p := range []*string{&c.Storage.DataDirectory, &c.Storage.DuckDBFile, &c.Storage.PaletteFile} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(configDir, *p)
		}
	}
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// LayoutGeometry converts the Layout section into engine geometry.
func (c *AppConfig) LayoutGeometry() diagram.Config {
	return diagram.Config{
		UnitWidth:    c.Layout.UnitWidth,
		UnitHeight:   c.Layout.UnitHeight,
		Gutter:       c.Layout.Gutter,
		ItemWidth:    c.Layout.ItemWidth,
		ItemGap:      c.Layout.ItemGap,
		LanePadding:  c.Layout.LanePadding,
		SubUnitLanes: c.Layout.SubUnitLanes,
	}
}

// SessionTimeout returns the idle time after which sessions are removed.
func (c *AppConfig) SessionTimeout() time.Duration {
	return time.Duration(c.Processing.SessionTimeoutMinutes) * time.Minute
}

// CleanupInterval returns how often idle sessions are checked.
func (c *AppConfig) CleanupInterval() time.Duration {
	if c.Processing.CleanupIntervalMinutes <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Processing.CleanupIntervalMinutes) * time.Minute
}

// CacheTTL returns the cache entry lifetime.
func (c *AppConfig) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLMinutes) * time.Minute
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDirectory,
		filepath.Dir(c.Storage.DuckDBFile),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
