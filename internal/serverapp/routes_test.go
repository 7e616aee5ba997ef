package serverapp

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sheetgql/internal/config"
	"sheetgql/internal/logging"
	"sheetgql/internal/metadata"
	"sheetgql/internal/metasource"
	"sheetgql/internal/schemarefresh"
	"sheetgql/internal/store"
	"sheetgql/internal/store/memstore"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.LoadArgs(pflag.NewFlagSet("sheetgql", pflag.ContinueOnError), nil)
	require.NoError(t, err)
	cfg.Observability.MetricsEnabled = false
	cfg.Observability.TracingEnabled = false
	cfg.Server.HealthCheckTimeout = time.Second
	return cfg
}

func spreadsheet(t *testing.T, id, columns string) *metadata.Metadata {
	t.Helper()
	md, err := metadata.Parse([]byte(fmt.Sprintf(
		`{"id":%q,"schema":{"columns":[{"name":"_id","datatype":"String"}]},"sheets":[{"title":"Posts","columns":[%s]}]}`,
		id, columns,
	)))
	require.NoError(t, err)
	return md
}

type routerFixture struct {
	mux     http.Handler
	manager *schemarefresh.Manager
	healthy bool
}

func newRouter(t *testing.T, cfg *config.Config) *routerFixture {
	t.Helper()
	manager, err := schemarefresh.NewManager(context.Background(), schemarefresh.Config{
		Source: metasource.NewStatic(
			spreadsheet(t, "blog", `{"name":"title","datatype":"String"},{"name":"views","datatype":"Int"}`),
			spreadsheet(t, "broken", `{"name":"price","datatype":"Currency"}`),
			spreadsheet(t, "empty", `{"name":"title","datatype":"String"}`),
		),
		Logger:      logging.Discard(),
		MinInterval: -1,
	})
	require.NoError(t, err)

	mem := memstore.New()
	mem.Put("blog", []store.Document{
		{"_id": "p1", "_sheet": "Posts", "title": "Hello", "views": 10},
		{"_id": "p2", "_sheet": "Posts", "title": "World", "views": 3},
	})

	f := &routerFixture{manager: manager, healthy: true}
	mux, err := buildRouter(routeDeps{
		cfg:     cfg,
		logger:  logging.Discard(),
		manager: manager,
		stores:  mem,
		health: func(context.Context) error {
			if !f.healthy {
				return fmt.Errorf("store down")
			}
			return nil
		},
	})
	require.NoError(t, err)
	f.mux = wrapHTTPHandler(cfg, logging.Discard(), mux)
	return f
}

func do(h http.Handler, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func query(q string) string {
	return fmt.Sprintf(`{"query":%q}`, q)
}

func TestRouter_GraphQL(t *testing.T) {
	f := newRouter(t, testConfig(t))

	tests := []struct {
		name     string
		target   string
		wantCode int
		wantBody string
	}{
		{
			name:     "known spreadsheet",
			target:   "/graphql/blog",
			wantCode: http.StatusOK,
			wantBody: `{"data":{"findPosts":{"totalCount":1}}}`,
		},
		{
			name:     "unknown spreadsheet",
			target:   "/graphql/missing",
			wantCode: http.StatusNotFound,
			wantBody: `{"error":"spreadsheet not found"}`,
		},
		{
			name:     "schema failed to build",
			target:   "/graphql/broken",
			wantCode: http.StatusServiceUnavailable,
			wantBody: `{"error":"schema unavailable"}`,
		},
		{
			name:     "schema without stored data",
			target:   "/graphql/empty",
			wantCode: http.StatusNotFound,
			wantBody: `{"error":"spreadsheet data not found"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(f.mux, http.MethodPost, tt.target, query(`{ findPosts(filter: {views: {gt: 5}}) { totalCount } }`), nil)
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.JSONEq(t, tt.wantBody, rec.Body.String())
			assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
		})
	}
}

func TestRouter_Schema(t *testing.T) {
	f := newRouter(t, testConfig(t))

	rec := do(f.mux, http.MethodGet, "/schema/blog", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	assert.Contains(t, rec.Body.String(), "findPosts")
	assert.NotEmpty(t, rec.Header().Get("ETag"))

	rec = do(f.mux, http.MethodGet, "/schema/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_Health(t *testing.T) {
	f := newRouter(t, testConfig(t))

	rec := do(f.mux, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy","store":"ok","spreadsheets":3,"available":2}`, rec.Body.String())

	f.healthy = false
	rec = do(f.mux, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"unhealthy","store":"failed"}`, rec.Body.String())
}

func TestRouter_ReloadDisabledByDefault(t *testing.T) {
	f := newRouter(t, testConfig(t))
	rec := do(f.mux, http.MethodPost, "/admin/reload", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_ReloadWithAdminToken(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.Admin.ReloadEnabled = true
	cfg.Server.Admin.AuthToken = "letmein"
	f := newRouter(t, cfg)

	rec := do(f.mux, http.MethodPost, "/admin/reload", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(f.mux, http.MethodGet, "/admin/reload", "", map[string]string{"X-Admin-Token": "letmein"})
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = do(f.mux, http.MethodPost, "/admin/reload?id=blog", "", map[string]string{"X-Admin-Token": "letmein"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","spreadsheets":3,"available":2}`, rec.Body.String())

	rec = do(f.mux, http.MethodPost, "/admin/reload?id=broken", "", map[string]string{"X-Admin-Token": "letmein"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"status":"error","message":"schema reload failed"}`, rec.Body.String())
}

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	claims["exp"] = time.Now().Add(time.Hour).Unix()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return "Bearer " + signed
}

func TestRouter_JWTAccess(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.Auth.Mode = "jwt"
	cfg.Server.Auth.JWTSecret = testSecret
	cfg.Server.Admin.ReloadEnabled = true
	f := newRouter(t, cfg)

	body := query(`{ findPosts { totalCount } }`)
	blogOnly := signToken(t, jwt.MapClaims{"sub": "reader", "spreadsheets": []string{"blog"}})
	salesOnly := signToken(t, jwt.MapClaims{"sub": "reader", "spreadsheets": []string{"sales"}})
	everything := signToken(t, jwt.MapClaims{"sub": "ops", "spreadsheets": []string{"*"}})

	rec := do(f.mux, http.MethodPost, "/graphql/blog", body, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(f.mux, http.MethodPost, "/graphql/blog", body, map[string]string{"Authorization": blogOnly})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":{"findPosts":{"totalCount":2}}}`, rec.Body.String())

	rec = do(f.mux, http.MethodPost, "/graphql/blog", body, map[string]string{"Authorization": salesOnly})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(f.mux, http.MethodPost, "/admin/reload", "", map[string]string{"Authorization": blogOnly})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(f.mux, http.MethodPost, "/admin/reload", "", map[string]string{"Authorization": everything})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_RateLimit(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.RateLimit = config.RateLimitConfig{Enabled: true, RPS: 0.001, Burst: 1}
	f := newRouter(t, cfg)

	assert.Equal(t, http.StatusOK, do(f.mux, http.MethodGet, "/health", "", nil).Code)
	rec := do(f.mux, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestNormalizeHTTPSpanRoute(t *testing.T) {
	tests := map[string]string{
		"/health":            "/health",
		"/metrics":           "/metrics",
		"/admin/reload":      "/admin/reload",
		"/graphql/blog":      "/graphql/{spreadsheetID}",
		"/schema/sales-2024": "/schema/{spreadsheetID}",
		"/favicon.ico":       "/*",
	}
	for path, want := range tests {
		assert.Equal(t, want, normalizeHTTPSpanRoute(path), path)
	}
	assert.Equal(t, "HTTP /*", httpRootSpanName(nil))
}

func TestInit_ServesFileSpreadsheets(t *testing.T) {
	cfg := testConfig(t)
	cfg.Metadata.Source = config.MetadataFile
	cfg.Metadata.Dir = t.TempDir()
	cfg.Metadata.RefreshMinInterval = -1
	cfg.Server.Port = 18089
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Metadata.Dir, "blog.json"),
		[]byte(`{"id":"blog","schema":{"columns":[]},"sheets":[{"title":"Posts","columns":[{"name":"title","datatype":"String"}]}]}`), 0o600))

	app, err := New(cfg, logging.Discard())
	require.NoError(t, err)
	require.NoError(t, app.Init(context.Background()))
	require.NoError(t, app.Init(context.Background()), "Init is idempotent")
	t.Cleanup(func() { _ = app.Shutdown(context.Background()) })

	assert.Equal(t, []string{"blog"}, app.Manager().SpreadsheetIDs())

	rec := do(app.Handler(), http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// The memory store only holds data loaded from workbooks.
	rec = do(app.Handler(), http.MethodPost, "/graphql/blog", query(`{ findPosts { totalCount } }`), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"spreadsheet data not found"}`, rec.Body.String())
}
