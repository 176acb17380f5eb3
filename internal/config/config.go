// Package config loads SmartShop configuration from YAML with environment
// overrides. Durations are stored as strings in YAML ("45s", "10m") and
// parsed on access, with defaults applied for anything unset.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all SmartShop configuration.
type Config struct {
	Name string `yaml:"name"`

	Server  ServerConfig  `yaml:"server"`
	Oracle  OracleConfig  `yaml:"oracle"`
	Store   StoreConfig   `yaml:"store"`
	Cache   CacheConfig   `yaml:"cache"`
	Reco    RecoConfig    `yaml:"reco"`
	Search  SearchConfig  `yaml:"search"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr            string `yaml:"addr"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

// OracleConfig configures the generative-text oracle.
type OracleConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	Timeout string `yaml:"timeout"` // per-call bound; single attempt, no retries
}

// StoreConfig configures the SQLite catalog/purchase store.
type StoreConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// CacheConfig configures the TTL key-value cache.
type CacheConfig struct {
	// Dir holds the Badger database. Empty means in-memory only.
	Dir          string `yaml:"dir"`
	SearchTTL    string `yaml:"search_ttl"`
	InventoryTTL string `yaml:"inventory_ttl"`
}

// RecoConfig bounds the recommendation pipeline.
type RecoConfig struct {
	MaxItems        int `yaml:"max_items"`        // default item count per response
	SignatureWindow int `yaml:"signature_window"` // recent purchases hashed for cache validity
	PromptWindow    int `yaml:"prompt_window"`    // recent purchases sent to the oracle
	SocialTopN      int `yaml:"social_top_n"`     // also-bought signals attached to responses
}

// SearchConfig bounds the smart search pipeline.
type SearchConfig struct {
	DefaultLimit  int `yaml:"default_limit"`
	MaxLimit      int `yaml:"max_limit"`
	CandidatePool int `yaml:"candidate_pool"` // filtered pool, larger than limit
	RerankWindow  int `yaml:"rerank_window"`  // candidates offered to the oracle
}

// LoggingConfig configures the categorized file logger.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Dir        string          `yaml:"dir"`
	Level      string          `yaml:"level"`
	Categories map[string]bool `yaml:"categories"`
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		Name: "smartshop",
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: "10s",
		},
		Oracle: OracleConfig{
			Model:   "gemini-2.5-flash",
			Timeout: "45s",
		},
		Store: StoreConfig{
			DatabasePath: filepath.Join(".smartshop", "smartshop.db"),
		},
		Cache: CacheConfig{
			SearchTTL:    "10m",
			InventoryTTL: "5m",
		},
		Reco: RecoConfig{
			MaxItems:        4,
			SignatureWindow: 15,
			PromptWindow:    20,
			SocialTopN:      4,
		},
		Search: SearchConfig{
			DefaultLimit:  24,
			MaxLimit:      50,
			CandidatePool: 60,
			RerankWindow:  30,
		},
		Logging: LoggingConfig{
			DebugMode: false,
			Dir:       filepath.Join(".smartshop", "logs"),
			Level:     "info",
		},
	}
}

// Load reads configuration from path, falling back to defaults when the file
// does not exist. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays environment variables onto the loaded config.
func (c *Config) applyEnv() {
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.Oracle.APIKey = v
	}
	if v := os.Getenv("SMARTSHOP_ORACLE_MODEL"); v != "" {
		c.Oracle.Model = v
	}
	if v := os.Getenv("SMARTSHOP_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("SMARTSHOP_DB"); v != "" {
		c.Store.DatabasePath = v
	}
	if v := os.Getenv("SMARTSHOP_CACHE_DIR"); v != "" {
		c.Cache.Dir = v
	}
	if v := os.Getenv("SMARTSHOP_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("SMARTSHOP_DEBUG"); v == "1" || v == "true" {
		c.Logging.DebugMode = true
	}
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Store.DatabasePath == "" {
		return fmt.Errorf("config: store.database_path required")
	}
	if c.Reco.MaxItems < 1 {
		return fmt.Errorf("config: reco.max_items must be >= 1")
	}
	if c.Search.MaxLimit < c.Search.DefaultLimit {
		return fmt.Errorf("config: search.max_limit must be >= search.default_limit")
	}
	if c.Search.CandidatePool < c.Search.MaxLimit {
		return fmt.Errorf("config: search.candidate_pool must be >= search.max_limit")
	}
	if _, err := parseDuration(c.Oracle.Timeout, 45*time.Second); err != nil {
		return fmt.Errorf("config: oracle.timeout: %w", err)
	}
	if _, err := parseDuration(c.Cache.SearchTTL, 10*time.Minute); err != nil {
		return fmt.Errorf("config: cache.search_ttl: %w", err)
	}
	return nil
}

// OracleTimeout returns the per-call oracle bound.
func (c *Config) OracleTimeout() time.Duration {
	d, _ := parseDuration(c.Oracle.Timeout, 45*time.Second)
	return d
}

// SearchTTL returns the shared search cache TTL.
func (c *Config) SearchTTL() time.Duration {
	d, _ := parseDuration(c.Cache.SearchTTL, 10*time.Minute)
	return d
}

// InventoryTTL returns the assistant inventory digest TTL.
func (c *Config) InventoryTTL() time.Duration {
	d, _ := parseDuration(c.Cache.InventoryTTL, 5*time.Minute)
	return d
}

// ShutdownTimeout returns the graceful HTTP shutdown bound.
func (c *Config) ShutdownTimeout() time.Duration {
	d, _ := parseDuration(c.Server.ShutdownTimeout, 10*time.Second)
	return d
}

func parseDuration(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	return d, nil
}
