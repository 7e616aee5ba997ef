package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"sheetgql/internal/logging"
	"sheetgql/internal/observability"
)

const defaultAdminTokenHeader = "X-Admin-Token"

// AdminTokenAuthConfig controls shared-token authentication for the admin
// endpoints.
type AdminTokenAuthConfig struct {
	Token      string
	HeaderName string
	Metrics    *observability.SecurityMetrics
}

// AdminTokenAuthMiddleware requires the shared admin token on every request.
func AdminTokenAuthMiddleware(cfg AdminTokenAuthConfig) (func(http.Handler) http.Handler, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("admin auth token is required")
	}
	headerName := strings.TrimSpace(cfg.HeaderName)
	if headerName == "" {
		headerName = defaultAdminTokenHeader
	}
	expected := sha256.Sum256([]byte(token))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := sha256.Sum256([]byte(strings.TrimSpace(r.Header.Get(headerName))))
			ok := subtle.ConstantTimeCompare(provided[:], expected[:]) == 1
			if cfg.Metrics != nil {
				cfg.Metrics.RecordAdminEndpointAccess(r.Context(), r.URL.Path, ok, ok)
			}
			if !ok {
				logging.FromContext(r.Context()).Warn("admin request rejected",
					slog.String("path", r.URL.Path),
					slog.String("remote_addr", r.RemoteAddr),
				)
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			ctx := WithAuthContext(r.Context(), AuthContext{
				Subject:      "admin_token",
				Issuer:       "admin_token",
				Claims:       map[string]any{"auth_method": "admin_token"},
				Spreadsheets: []string{"*"},
				HasGrant:     true,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}, nil
}
