package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
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
	"github.com/hyperjump/contentindex/internal/storage"
)

const schemaJSON = `{"id":"places","languages":["en","de"],"fields":[
	{"name":"title","type":"string","localized":true},
	{"name":"location","type":"geolocation"}]}`

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	f, err := factory.New("")
	require.NoError(t, err)
	states := storage.NewMemoryProvider()
	t.Cleanup(func() {
		_ = f.Close()
		_ = states.Close()
	})
	idx := indexer.NewIndexer(states, f)
	engine := search.NewEngine(f)
	srv := NewServer(engine, idx, &config.ServerConfig{Host: "localhost", Port: 8080}, zap.NewNop())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func notificationBody(kind string, id uuid.UUID, data string) string {
	return fmt.Sprintf(`{"kind":%q,"content":{"id":%q,"schema_id":"places","status":"Published","data":%s},"schema":%s}`,
		kind, id, data, schemaJSON)
}

func do(t *testing.T, method, url, contentType, body string) (*http.Response, map[string]interface{}) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func searchIDs(t *testing.T, ts *httptest.Server, app, query string) []string {
	t.Helper()
	resp, out := do(t, http.MethodPost, ts.URL+"/api/v1/apps/"+app+"/search", "application/json", query)
	require.Equal(t, http.StatusOK, resp.StatusCode, out)
	var ids []string
	for _, h := range out["hits"].([]interface{}) {
		ids = append(ids, h.(map[string]interface{})["content_id"].(string))
	}
	return ids
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	resp, out := do(t, http.MethodGet, ts.URL+"/health", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", out["status"])
}

func TestNotifyThenSearch(t *testing.T) {
	ts := newTestServer(t)
	id := uuid.New()
	resp, out := do(t, http.MethodPost, ts.URL+"/api/v1/apps/acme/notifications", "application/json",
		notificationBody("created", id, `{"title":{"en":"quick brown fox","de":"schneller Fuchs"}}`))
	require.Equal(t, http.StatusOK, resp.StatusCode, out)
	assert.Equal(t, "applied", out["status"])

	assert.Equal(t, []string{id.String()}, searchIDs(t, ts, "acme", `{"query":"fox"}`))
	assert.Empty(t, searchIDs(t, ts, "other", `{"query":"fox"}`))

	resp, _ = do(t, http.MethodPost, ts.URL+"/api/v1/apps/acme/notifications", "application/json",
		notificationBody("deleted", id, `{}`))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, searchIDs(t, ts, "acme", `{"query":"fox"}`))
}

func TestNotify_Errors(t *testing.T) {
	ts := newTestServer(t)
	url := ts.URL + "/api/v1/apps/acme/notifications"
	tests := []struct {
		name   string
		url    string
		body   string
		status int
	}{
		{"malformed json", url, `{"kind":`, http.StatusBadRequest},
		{"unknown kind", url, `{"kind":"archived","content":{"id":"` + uuid.NewString() + `"}}`, http.StatusBadRequest},
		{"missing content", url, `{"kind":"created"}`, http.StatusBadRequest},
		{"app mismatch", url, `{"app":"other","kind":"created","content":{"id":"` + uuid.NewString() + `"}}`, http.StatusBadRequest},
		{"invalid app", ts.URL + "/api/v1/apps/Not_Valid/notifications", notificationBody("created", uuid.New(), `{}`), http.StatusBadRequest},
		{"unmappable content", url, notificationBody("created", uuid.New(),
			`{"location":{"iv":{"latitude":200,"longitude":10}}}`), http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, out := do(t, http.MethodPost, tt.url, "application/json", tt.body)
			assert.Equal(t, tt.status, resp.StatusCode, out)
			assert.NotEmpty(t, out["error"])
		})
	}
}

func TestSearch_InvalidQuery(t *testing.T) {
	ts := newTestServer(t)
	resp, out := do(t, http.MethodPost, ts.URL+"/api/v1/apps/acme/search", "application/json", `{"query":""}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, out["error"], models.ErrInvalidQuery.Error())

	resp, _ = do(t, http.MethodPost, ts.URL+"/api/v1/apps/acme/search", "application/json", `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestReindex(t *testing.T) {
	ts := newTestServer(t)
	stale := uuid.New()
	resp, _ := do(t, http.MethodPost, ts.URL+"/api/v1/apps/acme/notifications", "application/json",
		notificationBody("created", stale, `{"title":{"en":"stale entry"}}`))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	a, b := uuid.New(), uuid.New()
	body := fmt.Sprintf(`{"items":[%s,%s]}`,
		notificationBody("created", a, `{"title":{"en":"alpha entry"}}`),
		notificationBody("updated", b, `{"title":{"en":"beta entry"}}`))
	resp, out := do(t, http.MethodPost, ts.URL+"/api/v1/apps/acme/reindex", "application/json", body)
	require.Equal(t, http.StatusOK, resp.StatusCode, out)
	assert.Equal(t, float64(2), out["indexed"])
	assert.ElementsMatch(t, []string{a.String(), b.String()}, searchIDs(t, ts, "acme", `{"query":"entry"}`))

	var lines bytes.Buffer
	c := uuid.New()
	fmt.Fprintf(&lines, `{"id":%q,"schema_id":"places","data":{"title":{"en":"gamma entry"}}}`+"\n", c)
	resp, out = do(t, http.MethodPost, ts.URL+"/api/v1/apps/acme/reindex", "application/x-ndjson", lines.String())
	require.Equal(t, http.StatusOK, resp.StatusCode, out)
	assert.Equal(t, []string{c.String()}, searchIDs(t, ts, "acme", `{"query":"entry"}`))
}

func TestStatusAndDrop(t *testing.T) {
	ts := newTestServer(t)
	id := uuid.New()
	resp, _ := do(t, http.MethodPost, ts.URL+"/api/v1/apps/acme/notifications", "application/json",
		notificationBody("created", id, `{"title":{"en":"hello","de":"hallo"}}`))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, out := do(t, http.MethodGet, ts.URL+"/api/v1/apps/acme/status", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, out)
	assert.Equal(t, "acme", out["app"])
	assert.Equal(t, float64(1), out["states"])
	assert.Positive(t, out["documents"])

	resp, out = do(t, http.MethodDelete, ts.URL+"/api/v1/apps/acme", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, out)
	assert.Equal(t, "dropped", out["status"])

	resp, out = do(t, http.MethodGet, ts.URL+"/api/v1/apps/acme/status", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(0), out["states"])
	assert.Equal(t, float64(0), out["documents"])
	assert.Empty(t, searchIDs(t, ts, "acme", `{"query":"hello"}`))
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	_ = searchIDs(t, ts, "acme", `{"query":"anything"}`)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, buf.String(), "contentindex_http_requests_total")
	assert.Contains(t, buf.String(), "contentindex_search_duration_seconds")
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("wrap: %w", models.ErrInvalidQuery), http.StatusBadRequest},
		{models.ErrInvalidTenant, http.StatusBadRequest},
		{&models.MappingError{Field: "location", Reason: "bad"}, http.StatusUnprocessableEntity},
		{models.ErrStateInconsistency, http.StatusConflict},
		{&models.EngineError{Op: "commit", Err: fmt.Errorf("disk full")}, http.StatusServiceUnavailable},
		{factory.ErrClosed, http.StatusServiceUnavailable},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
