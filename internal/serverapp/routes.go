package serverapp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"sheetgql/internal/config"
	"sheetgql/internal/logging"
	"sheetgql/internal/middleware"
	"sheetgql/internal/observability"
	"sheetgql/internal/schemarefresh"
	"sheetgql/internal/store"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	graphqlRoute = "/graphql/{" + middleware.SpreadsheetPathValue + "}"
	schemaRoute  = "/schema/{" + middleware.SpreadsheetPathValue + "}"
	reloadRoute  = "/admin/reload"
)

// adminReloadTimeout bounds a reload triggered over HTTP.
const adminReloadTimeout = 30 * time.Second

// routeDeps is everything the router needs from Init.
type routeDeps struct {
	cfg       *config.Config
	logger    *logging.Logger
	manager   *schemarefresh.Manager
	stores    store.Provider
	health    healthCheck
	telemetry *telemetry
}

func buildRouter(d routeDeps) (*http.ServeMux, error) {
	tel := d.telemetry
	if tel == nil {
		tel = &telemetry{}
	}

	authMW, err := middleware.AuthMiddleware(authConfig(d.cfg), d.logger, tel.security)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize auth: %w", err)
	}

	graphqlHandler := middleware.Chain(serveSnapshot(d.manager),
		middleware.LoggingMiddleware(d.logger),
		authMW,
		middleware.SpreadsheetAccessMiddleware(tel.security),
		middleware.GraphQLRequestAnalysisMiddleware(d.manager),
		middleware.GraphQLMetricsMiddleware(tel.graphql),
		snapshotGate(d.manager),
		middleware.RequestScopeMiddleware(middleware.RequestScopeConfig{
			Stores:         d.stores,
			GraphQLMetrics: tel.graphql,
			ZoneHeader:     d.cfg.Server.ZoneHeader,
		}),
		middleware.GraphQLTracingMiddleware(),
	)

	schemaHandler := middleware.Chain(schemaSDLHandler(d.manager),
		middleware.LoggingMiddleware(d.logger),
		authMW,
		middleware.SpreadsheetAccessMiddleware(tel.security),
	)

	mux := http.NewServeMux()
	mux.Handle(graphqlRoute, graphqlHandler)
	mux.Handle(schemaRoute, schemaHandler)
	mux.HandleFunc("/health", healthHandler(d.health, d.manager, d.cfg.Server.HealthCheckTimeout))

	if d.cfg.Server.Admin.ReloadEnabled {
		adminHandler, err := buildAdminHandler(d.cfg, d.logger, d.manager, tel.security)
		if err != nil {
			return nil, err
		}
		mux.Handle(reloadRoute, adminHandler)
		d.logger.Info("admin reload endpoint enabled", slog.String("path", reloadRoute))
	}

	if d.cfg.Observability.MetricsEnabled && tel.meterProvider != nil {
		mux.Handle("/metrics", promhttp.Handler())
		d.logger.Info("metrics endpoint enabled", slog.String("path", "/metrics"))
	}
	return mux, nil
}

func authConfig(cfg *config.Config) middleware.AuthConfig {
	a := cfg.Server.Auth
	return middleware.AuthConfig{
		Mode:              a.Mode,
		Secret:            a.JWTSecret,
		IssuerURL:         a.OIDCIssuerURL,
		CAFile:            a.OIDCCAFile,
		Issuer:            a.Issuer,
		Audience:          a.Audience,
		ClockSkew:         a.ClockSkew,
		SpreadsheetsClaim: a.SpreadsheetsClaim,
	}
}

// snapshotGate answers 404 for unknown spreadsheets and 503 for spreadsheets
// whose schema failed to build before any store work happens.
func snapshotGate(manager *schemarefresh.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, err := manager.Snapshot(middleware.SpreadsheetID(r)); err != nil {
				status, message := schemarefresh.HTTPStatus(err)
				schemarefresh.WriteError(w, status, message)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// serveSnapshot dispatches to the current handler of the routed spreadsheet.
// The lookup happens per request so a refresh is picked up immediately.
func serveSnapshot(manager *schemarefresh.Manager) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		manager.Handler(middleware.SpreadsheetID(r)).ServeHTTP(w, r)
	})
}

func schemaSDLHandler(manager *schemarefresh.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := manager.Snapshot(middleware.SpreadsheetID(r))
		if err != nil {
			status, message := schemarefresh.HTTPStatus(err)
			schemarefresh.WriteError(w, status, message)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("ETag", `"`+snap.Fingerprint+`"`)
		_, _ = w.Write([]byte(snap.Synthesized.SDL))
	}
}

func buildAdminHandler(cfg *config.Config, logger *logging.Logger, manager *schemarefresh.Manager, securityMetrics *observability.SecurityMetrics) (http.Handler, error) {
	handler := http.Handler(schemaReloadHandler(manager, securityMetrics))

	if token := strings.TrimSpace(cfg.Server.Admin.AuthToken); token != "" {
		tokenMW, err := middleware.AdminTokenAuthMiddleware(middleware.AdminTokenAuthConfig{
			Token:   token,
			Metrics: securityMetrics,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize admin token auth: %w", err)
		}
		return middleware.Chain(handler, middleware.LoggingMiddleware(logger), tokenMW), nil
	}

	if cfg.Server.Auth.Mode != "" && cfg.Server.Auth.Mode != middleware.AuthModeNone {
		authMW, err := middleware.AuthMiddleware(authConfig(cfg), logger, securityMetrics)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize admin auth: %w", err)
		}
		return middleware.Chain(handler, middleware.LoggingMiddleware(logger), authMW, requireGlobalGrant), nil
	}

	return middleware.Chain(handler, middleware.LoggingMiddleware(logger)), nil
}

// requireGlobalGrant admits only tokens whose grant covers every spreadsheet.
func requireGlobalGrant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth, ok := middleware.AuthFromContext(r.Context())
		if !ok || !auth.HasGrant || !auth.Allows("*") {
			writeJSON(w, http.StatusForbidden, map[string]any{"error": "forbidden"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func schemaReloadHandler(manager *schemarefresh.Manager, securityMetrics *observability.SecurityMetrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := logging.FromContext(r.Context())

		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
			return
		}

		authCtx, authenticated := middleware.AuthFromContext(r.Context())
		id := strings.TrimSpace(r.URL.Query().Get("id"))
		logAttrs := []any{
			slog.String("operation", "schema_reload"),
			slog.String("remote_addr", r.RemoteAddr),
			slog.Bool("authenticated", authenticated),
		}
		if id != "" {
			logAttrs = append(logAttrs, slog.String("spreadsheet_id", id))
		}
		if authenticated {
			logAttrs = append(logAttrs, slog.String("authenticated_user", authCtx.Subject))
		}
		reqLogger.Info("admin endpoint accessed", logAttrs...)

		ctx, cancel := context.WithTimeout(r.Context(), adminReloadTimeout)
		defer cancel()

		var err error
		if id != "" {
			err = manager.Refresh(ctx, id, observability.TriggerAdmin)
		} else {
			err = manager.RefreshAll(ctx, observability.TriggerAdmin)
		}
		if securityMetrics != nil {
			securityMetrics.RecordAdminEndpointAccess(r.Context(), "schema_reload", authenticated, err == nil)
		}
		if err != nil {
			reqLogger.Error("schema reload failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, map[string]any{"status": "error", "message": "schema reload failed"})
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"status":       "ok",
			"spreadsheets": len(manager.SpreadsheetIDs()),
			"available":    manager.Available(),
		})
	}
}

func healthHandler(check healthCheck, manager *schemarefresh.Manager, timeout time.Duration) http.HandlerFunc {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := logging.FromContext(r.Context())

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		if err := check(ctx); err != nil {
			reqLogger.Error("health check failed",
				slog.String("error", err.Error()),
				slog.String("check", "store"),
			)
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unhealthy", "store": "failed"})
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"status":       "healthy",
			"store":        "ok",
			"spreadsheets": len(manager.SpreadsheetIDs()),
			"available":    manager.Available(),
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func wrapHTTPHandler(cfg *config.Config, logger *logging.Logger, handler http.Handler) http.Handler {
	if cfg.Observability.MetricsEnabled || cfg.Observability.TracingEnabled {
		handler = otelhttp.NewHandler(handler, "http.server",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return httpRootSpanName(r)
			}),
		)
		logger.Info("HTTP instrumentation enabled")
	}

	if cfg.Server.CORS.Enabled {
		c := cfg.Server.CORS
		handler = middleware.CORSMiddleware(middleware.CORSConfig{
			Enabled:          c.Enabled,
			AllowedOrigins:   c.AllowedOrigins,
			AllowedMethods:   c.AllowedMethods,
			AllowedHeaders:   c.AllowedHeaders,
			ExposeHeaders:    c.ExposeHeaders,
			AllowCredentials: c.AllowCredentials,
			MaxAge:           c.MaxAge,
		})(handler)
	}

	if cfg.Server.RateLimit.Enabled {
		rl := cfg.Server.RateLimit
		handler = middleware.RateLimitMiddleware(middleware.RateLimitConfig{
			Enabled:   rl.Enabled,
			RPS:       rl.RPS,
			Burst:     rl.Burst,
			PerClient: rl.PerClient,
		})(handler)
	}
	return handler
}

func httpRootSpanName(r *http.Request) string {
	if r == nil {
		return "HTTP /*"
	}
	method := strings.TrimSpace(r.Method)
	if method == "" {
		method = "HTTP"
	}
	return method + " " + normalizeHTTPSpanRoute(r.URL.Path)
}

// normalizeHTTPSpanRoute keeps span names low-cardinality by collapsing
// spreadsheet ids out of the path.
func normalizeHTTPSpanRoute(rawPath string) string {
	switch {
	case rawPath == "/health", rawPath == "/metrics", rawPath == reloadRoute:
		return rawPath
	case strings.HasPrefix(rawPath, "/graphql/"):
		return graphqlRoute
	case strings.HasPrefix(rawPath, "/schema/"):
		return schemaRoute
	default:
		return "/*"
	}
}
