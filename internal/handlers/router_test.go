package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prudhvinik1/retailpulse/internal/metrics"
	"github.com/prudhvinik1/retailpulse/internal/repositories"
	"github.com/prudhvinik1/retailpulse/internal/retailcrm"
	"github.com/prudhvinik1/retailpulse/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// crmServer serves a single page per listing endpoint.
func crmServer(t *testing.T, down bool) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if down {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"success":false,"errorMsg":"maintenance"}`))
			return
		}
		pagination := map[string]any{"limit": 100, "totalCount": 2, "currentPage": 1, "totalPageCount": 1}
		body := map[string]any{"success": true, "pagination": pagination}
		switch r.URL.Path {
		case "/api/v5/orders":
			body["orders"] = []map[string]any{
				{"id": 1, "number": "1A", "createdAt": "2024-06-01 10:00:00", "status": "new", "totalSumm": 100, "site": "shop"},
				{"id": 2, "number": "2A", "createdAt": "2024-06-03 12:00:00", "status": "complete", "totalSumm": 40, "site": "shop"},
			}
		case "/api/v5/customers":
			body["customers"] = []map[string]any{
				{"id": 7, "createdAt": "2024-05-01 09:00:00", "email": "a@example.com"},
			}
		case "/api/v5/reference/statuses":
			body["statuses"] = map[string]any{
				"new":      map[string]any{"code": "new"},
				"complete": map[string]any{"code": "complete"},
			}
			delete(body, "pagination")
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"success":false,"errorMsg":"not found"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

type testEnv struct {
	router http.Handler
	mirror *repositories.MemoryMirrorRepository
}

func newTestEnv(t *testing.T, opts ...func(*RouterConfig, *envParts)) *testEnv {
	t.Helper()
	parts := &envParts{withMirror: true}
	cfg := &RouterConfig{}
	for _, o := range opts {
		o(cfg, parts)
	}

	client := retailcrm.NewClient(retailcrm.Config{BaseURL: crmServer(t, parts.crmDown).URL, APIKey: "key"}, nil, nil)
	env := &testEnv{}

	var (
		mirror repositories.MirrorRepository
		syncer Syncer
	)
	if parts.withMirror {
		env.mirror = repositories.NewMemoryMirrorRepository()
		mirror = env.mirror
		syncer = services.NewSyncService(client, env.mirror, repositories.NewMemoryWatermarkRepository(), services.SyncConfig{})
	}
	analytics := services.NewAnalyticsService(client, mirror, nil, services.AnalyticsConfig{})
	cfg.Tools = NewToolsHandler(analytics, syncer, services.NewCRMService(client, nil), nil)

	env.router = NewRouter(*cfg)
	return env
}

type envParts struct {
	withMirror bool
	crmDown    bool
}

func withoutMirror(_ *RouterConfig, p *envParts) { p.withMirror = false }
func withCRMDown(_ *RouterConfig, p *envParts)   { p.crmDown = true }

func callTool(t *testing.T, h http.Handler, header http.Header, name string, args any) (ToolCallResponse, map[string]any) {
	t.Helper()
	rawArgs, err := json.Marshal(args)
	require.NoError(t, err)
	body, err := json.Marshal(ToolCallRequest{Name: name, Arguments: rawArgs})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/tools/call", bytes.NewReader(body))
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp ToolCallResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Content, 1)
	assert.Equal(t, "text", resp.Content[0].Type)

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(resp.Content[0].Text), &payload))
	return resp, payload
}

func errorPayload(t *testing.T, payload map[string]any) map[string]any {
	t.Helper()
	detail, ok := payload["error"].(map[string]any)
	require.True(t, ok, "payload has no error: %v", payload)
	return detail
}

func juneAnalytics() map[string]any {
	return map[string]any{"dateFrom": "2024-06-01", "dateTo": "2024-06-30", "groupBy": "day"}
}

func TestRouter_Banner(t *testing.T) {
	env := newTestEnv(t)
	rec := httptest.NewRecorder()

	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), ServiceName)
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))
}

func TestRouter_RequestIDIsPropagated(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	rec := httptest.NewRecorder()

	env.router.ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", rec.Header().Get(requestIDHeader))
}

func TestRouter_Health(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		env := newTestEnv(t, func(c *RouterConfig, _ *envParts) {
			c.Checks = map[string]HealthCheck{"postgres": func(context.Context) error { return nil }}
		})
		rec := httptest.NewRecorder()

		env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"ok","checks":{"postgres":"ok"}}`, rec.Body.String())
	})

	t.Run("degraded", func(t *testing.T) {
		env := newTestEnv(t, func(c *RouterConfig, _ *envParts) {
			c.Checks = map[string]HealthCheck{"redis": func(context.Context) error { return errors.New("dial tcp: refused") }}
		})
		rec := httptest.NewRecorder()

		env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), "refused")
	})
}

func TestRouter_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.IncAnalytics(services.SourceRemote)
	env := newTestEnv(t, func(c *RouterConfig, _ *envParts) { c.Gatherer = reg })
	rec := httptest.NewRecorder()

	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "retailpulse_")
}

func TestTools_List(t *testing.T) {
	env := newTestEnv(t)
	rec := httptest.NewRecorder()

	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tools", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Tools []ToolDefinition `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	var names []string
	for _, tool := range body.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{
		"get_analytics", "sync_data", "get_orders", "get_customers", "get_order_history", "get_reference",
	}, names)
}

func TestTools_AnalyticsFromAPIThenMirror(t *testing.T) {
	// ARRANGE
	env := newTestEnv(t)

	// ACT: before the first sync the mirror is empty
	resp, payload := callTool(t, env.router, nil, "get_analytics", juneAnalytics())

	// ASSERT
	require.False(t, resp.IsError)
	meta := payload["meta"].(map[string]any)
	assert.Equal(t, services.SourceRemote, meta["source"])
	assert.Equal(t, float64(2), meta["totalRecords"])

	// ACT: sync, then ask again
	resp, payload = callTool(t, env.router, nil, "sync_data", map[string]any{"entity": "all"})
	require.False(t, resp.IsError)
	assert.Equal(t, true, payload["success"])
	assert.Equal(t, "all", payload["entity"])
	assert.Equal(t, float64(2), payload["orders_synced"])
	assert.Equal(t, float64(1), payload["customers_synced"])
	assert.Contains(t, payload, "total_duration_ms")
	assert.Equal(t, 2, env.mirror.OrderCount())

	resp, payload = callTool(t, env.router, nil, "get_analytics", juneAnalytics())

	// ASSERT
	require.False(t, resp.IsError)
	meta = payload["meta"].(map[string]any)
	assert.Equal(t, services.SourceMirror, meta["source"])
	assert.Equal(t, float64(2), meta["totalRecords"])
	assert.Equal(t, false, meta["cacheHit"])
}

func TestTools_SyncSingleEntity(t *testing.T) {
	env := newTestEnv(t)

	resp, payload := callTool(t, env.router, nil, "sync_data", map[string]any{"entity": "customers"})

	require.False(t, resp.IsError)
	assert.Equal(t, "customers", payload["entity"])
	assert.Equal(t, float64(1), payload["synced"])
	assert.Contains(t, payload, "duration_ms")
}

func TestTools_Errors(t *testing.T) {
	tests := []struct {
		name     string
		opts     []func(*RouterConfig, *envParts)
		tool     string
		args     any
		wantCode string
	}{
		{"unknown groupBy", nil, "get_analytics", map[string]any{"dateFrom": "2024-06-01", "dateTo": "2024-06-30", "groupBy": "year"}, "unknown_group_by"},
		{"unknown filter field", nil, "get_analytics", map[string]any{"dateFrom": "2024-06-01", "dateTo": "2024-06-30", "groupBy": "day", "filter": map[string]any{"managerId": 1}}, "unknown_filter_field"},
		{"bad date", nil, "get_analytics", map[string]any{"dateFrom": "June", "dateTo": "2024-06-30", "groupBy": "day"}, "invalid_date"},
		{"unknown entity", nil, "sync_data", map[string]any{"entity": "products"}, "unknown_entity"},
		{"sync without mirror", []func(*RouterConfig, *envParts){withoutMirror}, "sync_data", map[string]any{"entity": "orders"}, "mirror_disabled"},
		{"unknown entity without mirror", []func(*RouterConfig, *envParts){withoutMirror}, "sync_data", map[string]any{"entity": "bogus"}, "unknown_entity"},
		{"null custom field", nil, "get_analytics", map[string]any{"dateFrom": "2024-06-01", "dateTo": "2024-06-30", "groupBy": "day", "filter": map[string]any{"customFields": map[string]any{"adress_client": nil}}}, "invalid_filter_value"},
		{"array custom field", nil, "get_analytics", map[string]any{"dateFrom": "2024-06-01", "dateTo": "2024-06-30", "groupBy": "day", "filter": map[string]any{"customFields": map[string]any{"tag": []string{"a", "b"}}}}, "invalid_filter_value"},
		{"unknown dictionary", nil, "get_reference", map[string]any{"dictionary": "warehouses"}, "unknown_dictionary"},
		{"unknown tool", nil, "delete_everything", map[string]any{}, "invalid_argument"},
		{"unknown argument", nil, "get_orders", map[string]any{"pageSize": 5}, "invalid_argument"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.opts...)

			resp, payload := callTool(t, env.router, nil, tt.tool, tt.args)

			assert.True(t, resp.IsError)
			assert.Equal(t, tt.wantCode, errorPayload(t, payload)["code"])
		})
	}
}

func TestTools_RemoteFailureKeepsStatusAndBody(t *testing.T) {
	env := newTestEnv(t, withoutMirror, withCRMDown)

	resp, payload := callTool(t, env.router, nil, "get_analytics", juneAnalytics())

	assert.True(t, resp.IsError)
	detail := errorPayload(t, payload)
	assert.Equal(t, "remote_fetch_failed", detail["code"])
	assert.Equal(t, float64(http.StatusServiceUnavailable), detail["status"])
	assert.Contains(t, detail["details"], "maintenance")
}

func TestTools_SyncFailure(t *testing.T) {
	env := newTestEnv(t, withCRMDown)

	resp, payload := callTool(t, env.router, nil, "sync_data", map[string]any{"entity": "orders"})

	assert.True(t, resp.IsError)
	detail := errorPayload(t, payload)
	assert.Equal(t, "sync_failed", detail["code"])
	assert.Equal(t, float64(http.StatusServiceUnavailable), detail["status"])
}

func TestTools_PassThrough(t *testing.T) {
	env := newTestEnv(t)

	resp, payload := callTool(t, env.router, nil, "get_orders", map[string]any{"limit": 50})
	require.False(t, resp.IsError)
	orders := payload["orders"].([]any)
	require.Len(t, orders, 2)
	assert.Equal(t, "1A", orders[0].(map[string]any)["number"])

	resp, payload = callTool(t, env.router, nil, "get_reference", map[string]any{"dictionary": "statuses"})
	require.False(t, resp.IsError)
	assert.Len(t, payload["items"], 2)
}

func TestTools_MalformedEnvelope(t *testing.T) {
	env := newTestEnv(t)
	rec := httptest.NewRecorder()

	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/tools/call", strings.NewReader(`{"tool": 1}`)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_request")
}

func TestRouter_Auth(t *testing.T) {
	// ARRANGE
	hash, err := bcrypt.GenerateFromPassword([]byte("client-secret-value"), bcrypt.MinCost)
	require.NoError(t, err)
	auth := services.NewAuthService("agent", string(hash), "jwt-secret", time.Hour, nil)
	env := newTestEnv(t, func(c *RouterConfig, _ *envParts) { c.Auth = auth })

	// ACT / ASSERT: no token
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tools", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// bad credentials
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/token",
		strings.NewReader(`{"client_id":"agent","client_secret":"nope"}`)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// token exchange
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/token",
		strings.NewReader(`{"client_id":"agent","client_secret":"client-secret-value"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	var tok services.TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tok))
	require.NotEmpty(t, tok.Token)

	header := http.Header{"Authorization": []string{"Bearer " + tok.Token}}
	resp, _ := callTool(t, env.router, header, "get_reference", map[string]any{"dictionary": "statuses"})
	assert.False(t, resp.IsError)
}
