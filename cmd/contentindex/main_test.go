package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hyperjump/contentindex/internal/config"
	"github.com/hyperjump/contentindex/internal/factory"
	"github.com/hyperjump/contentindex/internal/indexer"
	"github.com/hyperjump/contentindex/internal/models"
	"github.com/hyperjump/contentindex/internal/search"
	"github.com/hyperjump/contentindex/internal/server"
	"github.com/hyperjump/contentindex/internal/storage"
)

const schemaJSON = `{"id":"places","languages":["en","de"],"fields":[{"name":"title","type":"string","localized":true}]}`

func TestBuildSearchQuery(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected string
	}{
		{"single word", []string{"fox"}, "fox"},
		{"multiple words", []string{"quick", "brown"}, "quick brown"},
		{"single quoted phrase", []string{"quick brown"}, "quick brown"},
		{"empty args", []string{}, ""},
		{"blank args", []string{"  ", "  "}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := buildSearchQuery(tt.args); got != tt.expected {
				t.Errorf("buildSearchQuery(%v) = %q, want %q", tt.args, got, tt.expected)
			}
		})
	}
}

func TestParseLatLon(t *testing.T) {
	p, err := parseLatLon("52.52, 13.405")
	require.NoError(t, err)
	assert.Equal(t, models.GeoPoint{Lat: 52.52, Lon: 13.405}, p)

	for _, bad := range []string{"52.52", "north,13", "52,east", "1,2,3"} {
		_, err := parseLatLon(bad)
		assert.Error(t, err, bad)
	}
}

func TestSearchOptionsQuery(t *testing.T) {
	so := &searchOptions{near: "52.5,13.4", radius: 1000, geoField: "location", language: "de", limit: 5}
	q, err := so.query(nil)
	require.NoError(t, err)
	assert.Equal(t, "", q.Text)
	require.NotNil(t, q.Geo)
	assert.Equal(t, 1000.0, q.Geo.RadiusMeters)
	assert.Equal(t, "de", q.Language)
	assert.Equal(t, 5, q.Limit)

	_, err = (&searchOptions{}).query([]string{" "})
	assert.Error(t, err)
}

func TestLoadConfig_explicitPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  state_backend: memory\n"), 0600))
	cfg, resolved, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, path, resolved)
	assert.Equal(t, "memory", cfg.Storage.StateBackend)

	_, _, err = loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeExport(t *testing.T, dir string, titles ...string) (string, []uuid.UUID) {
	t.Helper()
	var lines strings.Builder
	ids := make([]uuid.UUID, len(titles))
	for i, title := range titles {
		ids[i] = uuid.New()
		fmt.Fprintf(&lines, `{"kind":"created","content":{"id":%q,"schema_id":"places","data":{"title":{"en":%q}}},"schema":%s}`+"\n",
			ids[i], title, schemaJSON)
	}
	path := filepath.Join(dir, "export.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(lines.String()), 0600))
	return path, ids
}

func TestCommands_DirectMode(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
log_level: error
storage:
  state_backend: sqlite
  database_path: ./state.db
  index_root: ./indexes
`), 0600))
	export, ids := writeExport(t, dir, "quick brown fox", "lazy dog")

	out, err := execute(t, "reindex", "--config", cfgPath, "--server", "", "--app", "acme", "--file", export, "--mode", "swap")
	require.NoError(t, err, out)
	assert.Contains(t, out, "2 items indexed")

	out, err = execute(t, "search", "--config", cfgPath, "--server", "", "--app", "acme", "--output", "json", "brown", "fox")
	require.NoError(t, err, out)
	var result models.SearchResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, []uuid.UUID{ids[0]}, result.ContentIDs())

	out, err = execute(t, "status", "--config", cfgPath, "--server", "", "--app", "acme", "--output", "json")
	require.NoError(t, err, out)
	var st indexer.TenantStatus
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Equal(t, int64(2), st.States)
	assert.Positive(t, st.DiskUsageBytes)

	_, err = execute(t, "drop", "--config", cfgPath, "--server", "", "--app", "acme")
	assert.Error(t, err, "drop needs --yes")
	out, err = execute(t, "drop", "--config", cfgPath, "--server", "", "--app", "acme", "--yes")
	require.NoError(t, err, out)

	out, err = execute(t, "status", "--config", cfgPath, "--server", "", "--app", "acme", "--output", "json")
	require.NoError(t, err, out)
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Equal(t, int64(0), st.States)
	assert.Equal(t, uint64(0), st.Documents)
}

func TestCommands_ServerMode(t *testing.T) {
	f, err := factory.New("")
	require.NoError(t, err)
	states := storage.NewMemoryProvider()
	t.Cleanup(func() {
		_ = f.Close()
		_ = states.Close()
	})
	idx := indexer.NewIndexer(states, f)
	srv := server.NewServer(search.NewEngine(f), idx, &config.ServerConfig{}, zap.NewNop())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	export, ids := writeExport(t, t.TempDir(), "red fox", "blue whale")
	out, err := execute(t, "reindex", "--server", ts.URL, "--app", "acme", "--file", export)
	require.NoError(t, err, out)
	assert.Contains(t, out, "2 items indexed")

	out, err = execute(t, "search", "--server", ts.URL, "--app", "acme", "whale")
	require.NoError(t, err, out)
	assert.Contains(t, out, ids[1].String())
	assert.NotContains(t, out, ids[0].String())

	out, err = execute(t, "status", "--server", ts.URL, "--app", "acme")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Content:      2")

	_, err = execute(t, "search", "--server", ts.URL, "--app", "Bad_App", "whale")
	assert.Error(t, err)

	out, err = execute(t, "drop", "--server", ts.URL, "--app", "acme", "--yes")
	require.NoError(t, err, out)
	out, err = execute(t, "search", "--server", ts.URL, "--app", "acme", "--output", "json", "whale")
	require.NoError(t, err, out)
	assert.NotContains(t, out, ids[1].String())
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "contentindex version dev\n", out)
}
