package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func noEnv(string) string { return "" }

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  host: "127.0.0.1"
  port: 9000
storage:
  state_backend: memory
  database_path: "test.db"
reindex:
  mode: swap
  batch_size: 50
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Server.Addr() != "127.0.0.1:9000" {
		t.Errorf("addr: got %s", cfg.Server.Addr())
	}
	if cfg.Storage.StateBackend != "memory" {
		t.Errorf("state_backend: got %s", cfg.Storage.StateBackend)
	}
	if cfg.Reindex.Mode != ReindexSwap || cfg.Reindex.BatchSize != 50 {
		t.Errorf("unexpected reindex config: %+v", cfg.Reindex)
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	path := writeConfig(t, `
storage:
  database_path: "./data/state.db"
  index_root: "./data/indexes"
watch:
  inbox: "./spool"
  debounce: 2s
`)
	dir := filepath.Dir(path)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "data", "state.db"); cfg.Storage.DatabasePath != want {
		t.Errorf("database_path = %s, want %s", cfg.Storage.DatabasePath, want)
	}
	if want := filepath.Join(dir, "data", "indexes"); cfg.Storage.IndexRoot != want {
		t.Errorf("index_root = %s, want %s", cfg.Storage.IndexRoot, want)
	}
	if want := filepath.Join(dir, "spool"); cfg.Watch.Inbox != want {
		t.Errorf("inbox = %s, want %s", cfg.Watch.Inbox, want)
	}
	if cfg.Watch.Debounce != 2*time.Second {
		t.Errorf("debounce = %s, want 2s", cfg.Watch.Debounce)
	}
}

func TestLoad_invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown backend", "storage:\n  state_backend: etcd\n"},
		{"redis without addrs", "storage:\n  state_backend: redis\n"},
		{"unknown reindex mode", "reindex:\n  mode: shadow\n"},
		{"limits", "search:\n  default_limit: 50\n  max_limit: 10\n"},
		{"not yaml", "server: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.content)); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestLoad_missingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Server.Host != "localhost" {
		t.Errorf("default host: got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("default port: got %d", cfg.Server.Port)
	}
	if cfg.Storage.StateBackend != "sqlite" {
		t.Errorf("default state backend: got %s", cfg.Storage.StateBackend)
	}
	if cfg.Reindex.Mode != ReindexInPlace {
		t.Errorf("default reindex mode: got %s", cfg.Reindex.Mode)
	}
	if cfg.Search.DefaultLimit != 20 || cfg.Search.MaxLimit != 200 {
		t.Errorf("default limits: got %d/%d", cfg.Search.DefaultLimit, cfg.Search.MaxLimit)
	}
	if cfg.Indexing.MaxFieldsPerDocument != 64 {
		t.Errorf("default max fields: got %d", cfg.Indexing.MaxFieldsPerDocument)
	}
	if cfg.Watch.Debounce != 0 {
		t.Error("debounce should stay unset without an inbox")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"CONTENTINDEX_STATE_BACKEND": "redis",
		"CONTENTINDEX_REDIS_ADDRS":   "a:6379, b:6379,",
		"CONTENTINDEX_INDEX_ROOT":    "/srv/indexes",
		"CONTENTINDEX_LOG_LEVEL":     "warn",
		"CONTENTINDEX_PORT":          "9100",
	}
	cfg := &Config{}
	ApplyDefaults(cfg)
	if err := ApplyEnv(cfg, func(k string) string { return env[k] }); err != nil {
		t.Fatal(err)
	}
	if cfg.Storage.StateBackend != "redis" {
		t.Errorf("state backend: got %s", cfg.Storage.StateBackend)
	}
	if len(cfg.Storage.Redis.Addrs) != 2 || cfg.Storage.Redis.Addrs[1] != "b:6379" {
		t.Errorf("redis addrs: got %v", cfg.Storage.Redis.Addrs)
	}
	if cfg.Storage.IndexRoot != "/srv/indexes" || cfg.LogLevel != "warn" || cfg.Server.Port != 9100 {
		t.Errorf("unexpected overrides: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("validate: %v", err)
	}

	if err := ApplyEnv(cfg, func(k string) string {
		if k == "CONTENTINDEX_PORT" {
			return "eighty"
		}
		return ""
	}); err == nil {
		t.Error("expected an error for a non-numeric port")
	}
	if err := ApplyEnv(&Config{}, noEnv); err != nil {
		t.Errorf("empty environment: %v", err)
	}
}

func TestSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saved.yaml")
	cfg := &Config{
		Server:  ServerConfig{Host: "localhost", Port: 9090},
		Storage: StorageConfig{StateBackend: "memory", DatabasePath: "/tmp/db"},
		Watch:   WatchConfig{Inbox: "/tmp/inbox", Debounce: 500 * time.Millisecond},
	}
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.Port != 9090 {
		t.Errorf("loaded port: got %d", loaded.Server.Port)
	}
	if loaded.Watch.Debounce != 500*time.Millisecond {
		t.Errorf("loaded debounce: got %s", loaded.Watch.Debounce)
	}
}
