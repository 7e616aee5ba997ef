package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestCORSMiddleware(t *testing.T) {
	tests := []struct {
		name        string
		cfg         CORSConfig
		method      string
		origin      string
		wantStatus  int
		wantOrigin  string
		wantMethods string
		wantCreds   string
	}{
		{
			name:       "disabled",
			cfg:        CORSConfig{},
			method:     http.MethodGet,
			origin:     "http://example.com",
			wantStatus: http.StatusOK,
		},
		{
			name:       "allowed origin",
			cfg:        CORSConfig{Enabled: true, AllowedOrigins: []string{"http://localhost:3000"}, AllowCredentials: true},
			method:     http.MethodPost,
			origin:     "http://localhost:3000",
			wantStatus: http.StatusOK,
			wantOrigin: "http://localhost:3000",
			wantCreds:  "true",
		},
		{
			name:       "unknown origin",
			cfg:        CORSConfig{Enabled: true, AllowedOrigins: []string{"http://localhost:3000"}},
			method:     http.MethodGet,
			origin:     "http://evil.example",
			wantStatus: http.StatusOK,
		},
		{
			name:       "wildcard drops credentials",
			cfg:        CORSConfig{Enabled: true, AllowedOrigins: []string{"*"}, AllowCredentials: true},
			method:     http.MethodGet,
			origin:     "http://any.example",
			wantStatus: http.StatusOK,
			wantOrigin: "*",
		},
		{
			name:        "preflight uses default methods",
			cfg:         CORSConfig{Enabled: true, AllowedOrigins: []string{"http://localhost:3000"}},
			method:      http.MethodOptions,
			origin:      "http://localhost:3000",
			wantStatus:  http.StatusNoContent,
			wantOrigin:  "http://localhost:3000",
			wantMethods: "GET, POST, OPTIONS",
		},
		{
			name:       "preflight from unknown origin",
			cfg:        CORSConfig{Enabled: true, AllowedOrigins: []string{"http://localhost:3000"}},
			method:     http.MethodOptions,
			origin:     "http://evil.example",
			wantStatus: http.StatusNoContent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(tt.method, "/graphql/blog", nil)
			req.Header.Set("Origin", tt.origin)
			CORSMiddleware(tt.cfg)(okHandler()).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, tt.wantMethods, rec.Header().Get("Access-Control-Allow-Methods"))
			assert.Equal(t, tt.wantCreds, rec.Header().Get("Access-Control-Allow-Credentials"))
		})
	}
}

func TestCORSMiddleware_PreflightHeaders(t *testing.T) {
	mw := CORSMiddleware(CORSConfig{
		Enabled:        true,
		AllowedOrigins: []string{"http://localhost:3000"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         600,
	})
	handler := mw(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("preflight must not reach the handler")
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/graphql/blog", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "Content-Type", rec.Header().Get("Access-Control-Allow-Headers"))
	assert.Equal(t, "600", rec.Header().Get("Access-Control-Max-Age"))
	assert.Equal(t, RequestIDHeader, rec.Header().Get("Access-Control-Expose-Headers"))
}
