// Package config provides configuration loading and structs for the contentindex server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hyperjump/contentindex/internal/storage"
)

// Config holds all configuration for the application.
type Config struct {
	Debug    bool           `yaml:"debug"`
	LogLevel string         `yaml:"log_level,omitempty"`
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Indexing IndexingConfig `yaml:"indexing"`
	Reindex  ReindexConfig  `yaml:"reindex"`
	Search   SearchConfig   `yaml:"search"`
	Watch    WatchConfig    `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StorageConfig selects the index state backend and where indexes live.
type StorageConfig struct {
	// StateBackend is memory, sqlite, or redis.
	StateBackend string              `yaml:"state_backend"`
	DatabasePath string              `yaml:"database_path"`
	IndexRoot    string              `yaml:"index_root"`
	Redis        storage.RedisConfig `yaml:"redis,omitempty"`
}

// IndexingConfig holds document mapping settings.
type IndexingConfig struct {
	MaxFieldsPerDocument int `yaml:"max_fields_per_document"`
	Workers              int `yaml:"workers"`
}

// ReindexConfig holds full reindex settings.
type ReindexConfig struct {
	// Mode is in_place (queries may see a partially rebuilt tenant) or swap.
	Mode      string `yaml:"mode"`
	BatchSize int    `yaml:"batch_size"`
}

// SearchConfig holds query settings.
type SearchConfig struct {
	DefaultLimit   int `yaml:"default_limit"`
	MaxLimit       int `yaml:"max_limit"`
	CandidateLimit int `yaml:"candidate_limit"`
	CacheSize      int `yaml:"cache_size"`
}

// WatchConfig holds the notification spool settings. An empty inbox disables the watcher.
type WatchConfig struct {
	Inbox    string        `yaml:"inbox,omitempty"`
	Debounce time.Duration `yaml:"debounce,omitempty"`
}

// Load reads and parses the config file at path, expands paths, applies defaults,
// and applies CONTENTINDEX_* environment overrides.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	if err := ApplyEnv(&cfg, os.Getenv); err != nil {
		return nil, err
	}

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.IndexRoot = expandPath(cfg.Storage.IndexRoot, configDir)
	cfg.Watch.Inbox = expandPath(cfg.Watch.Inbox, configDir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is given, with environment overrides applied.
func Default() (*Config, error) {
	var cfg Config
	ApplyDefaults(&cfg)
	if err := ApplyEnv(&cfg, os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// ApplyEnv overrides storage and logging settings from CONTENTINDEX_* variables.
func ApplyEnv(cfg *Config, getenv func(string) string) error {
	if v := getenv("CONTENTINDEX_STATE_BACKEND"); v != "" {
		cfg.Storage.StateBackend = v
	}
	if v := getenv("CONTENTINDEX_DATABASE_PATH"); v != "" {
		cfg.Storage.DatabasePath = v
	}
	if v := getenv("CONTENTINDEX_INDEX_ROOT"); v != "" {
		cfg.Storage.IndexRoot = v
	}
	if v := getenv("CONTENTINDEX_REDIS_ADDRS"); v != "" {
		cfg.Storage.Redis.Addrs = splitList(v)
	}
	if v := getenv("CONTENTINDEX_REDIS_PASSWORD"); v != "" {
		cfg.Storage.Redis.Password = v
	}
	if v := getenv("CONTENTINDEX_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := getenv("CONTENTINDEX_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid CONTENTINDEX_PORT %q: %w", v, err)
		}
		cfg.Server.Port = port
	}
	return nil
}

// Validate checks enumerated settings.
func (c *Config) Validate() error {
	switch c.Storage.StateBackend {
	case storage.BackendMemory, storage.BackendSQLite:
	case storage.BackendRedis:
		if len(c.Storage.Redis.Addrs) == 0 {
			return fmt.Errorf("storage.redis.addrs is required for the redis state backend")
		}
	default:
		return fmt.Errorf("unknown storage.state_backend %q", c.Storage.StateBackend)
	}
	switch c.Reindex.Mode {
	case ReindexInPlace, ReindexSwap:
	default:
		return fmt.Errorf("unknown reindex.mode %q", c.Reindex.Mode)
	}
	if c.Search.MaxLimit < c.Search.DefaultLimit {
		return fmt.Errorf("search.max_limit %d is below search.default_limit %d", c.Search.MaxLimit, c.Search.DefaultLimit)
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory. Empty paths stay empty.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
