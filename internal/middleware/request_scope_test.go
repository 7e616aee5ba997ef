package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"sheetgql/internal/loader"
	"sheetgql/internal/metadata"
	"sheetgql/internal/resolver"
	"sheetgql/internal/store"
	"sheetgql/internal/store/memstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func blogProvider() *memstore.Provider {
	p := memstore.New()
	p.Put("blog", []store.Document{
		{"_id": "p1", "_sheet": "Posts", "authorId": "a1"},
		{"_id": "a1", "_sheet": "Authors", "name": "Ada"},
	})
	return p
}

func routed(h http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/graphql/{"+SpreadsheetPathValue+"}", h)
	return mux
}

func TestRequestScopeMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		zone       string
		lang       string
		wantZone   string
		wantLocale string
	}{
		{"no headers", "", "", "", ""},
		{"valid zone", "Europe/Paris", "", "Europe/Paris", ""},
		{"invalid zone ignored", "Mars/Olympus", "", "", ""},
		{"accept language", "", "fr-CH, fr;q=0.9, en;q=0.8", "", "fr-CH"},
		{"weights respected", "", "en;q=0.5, de", "", "de"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var scope *resolver.RequestScope
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				var err error
				scope, err = resolver.ScopeFromContext(r.Context())
				require.NoError(t, err)
				w.WriteHeader(http.StatusOK)
			})
			handler := routed(RequestScopeMiddleware(RequestScopeConfig{Stores: blogProvider()})(next))

			req := httptest.NewRequest(http.MethodPost, "/graphql/blog", nil)
			if tt.zone != "" {
				req.Header.Set(DefaultZoneHeader, tt.zone)
			}
			if tt.lang != "" {
				req.Header.Set("Accept-Language", tt.lang)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			require.Equal(t, http.StatusOK, rec.Code)
			require.NotNil(t, scope)
			assert.NotNil(t, scope.Loader)
			assert.Equal(t, tt.wantZone, scope.Zone)
			assert.Equal(t, tt.wantLocale, scope.Locale)
		})
	}
}

func TestRequestScopeMiddleware_EachRequestGetsItsOwnLoader(t *testing.T) {
	var loaders []*loader.Loader
	next := http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		scope, err := resolver.ScopeFromContext(r.Context())
		require.NoError(t, err)
		loaders = append(loaders, scope.Loader)
	})
	handler := routed(RequestScopeMiddleware(RequestScopeConfig{Stores: blogProvider()})(next))

	for i := 0; i < 2; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/graphql/blog", nil))
	}
	require.Len(t, loaders, 2)
	assert.NotSame(t, loaders[0], loaders[1])
}

func TestRequestScopeMiddleware_StoreErrors(t *testing.T) {
	failing := store.ProviderFunc(func(context.Context, string) (store.Store, error) {
		return nil, errors.New("connection refused")
	})
	tests := []struct {
		name       string
		provider   store.Provider
		path       string
		wantStatus int
		wantBody   string
	}{
		{"unknown spreadsheet", blogProvider(), "/graphql/sales", http.StatusNotFound, `{"error":"spreadsheet data not found"}`},
		{"store down", failing, "/graphql/blog", http.StatusServiceUnavailable, `{"error":"store unavailable"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := routed(RequestScopeMiddleware(RequestScopeConfig{Stores: tt.provider})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
				t.Fatal("next must not run")
			})))
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, tt.path, nil))
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.JSONEq(t, tt.wantBody, rec.Body.String())
		})
	}
}

func TestGraphQLTracingMiddleware_RecordsLoaderStats(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	old := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() {
		_ = provider.Shutdown(context.Background())
		otel.SetTracerProvider(old)
	})

	ref := metadata.RelationshipRef{TargetSheet: "Authors", TargetField: "_id", Operator: metadata.RelationshipEq}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scope, err := resolver.ScopeFromContext(r.Context())
		require.NoError(t, err)
		q, ok := loader.RelationshipQuery("authorId", ref, "a1")
		require.True(t, ok)
		first := scope.Loader.Load(r.Context(), q)
		_ = scope.Loader.Load(r.Context(), q)
		docs, err := first()
		require.NoError(t, err)
		assert.Len(t, docs, 1)
		w.WriteHeader(http.StatusOK)
	})

	handler := routed(Chain(next,
		GraphQLRequestAnalysisMiddleware(nil),
		RequestScopeMiddleware(RequestScopeConfig{Stores: blogProvider()}),
		GraphQLTracingMiddleware(),
	))
	req := httptest.NewRequest(http.MethodPost, "/graphql/blog", strings.NewReader(`{"query":"{ findPosts { totalCount } }"}`))
	req.Header.Set("Content-Type", "application/json")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var execute sdktrace.ReadOnlySpan
	for _, span := range recorder.Ended() {
		if span.Name() == "graphql.execute" {
			execute = span
		}
	}
	require.NotNil(t, execute)
	attrs := attribute.NewSet(execute.Attributes()...)
	for key, want := range map[string]int64{
		"graphql.loader.loads":      2,
		"graphql.loader.dedup_hits": 1,
		"graphql.loader.batches":    1,
	} {
		got, ok := attrs.Value(attribute.Key(key))
		require.True(t, ok, key)
		assert.Equal(t, want, got.AsInt64(), key)
	}
	op, ok := attrs.Value("sheet.spreadsheet_id")
	require.True(t, ok)
	assert.Equal(t, "blog", op.AsString())
}

func TestGraphQLTracingMiddleware_SkipsEmptyQueries(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	old := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { otel.SetTracerProvider(old) })

	handler := Chain(okHandler(), GraphQLRequestAnalysisMiddleware(nil), GraphQLTracingMiddleware())
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/graphql/blog", nil))
	assert.Empty(t, recorder.Ended())
}
