package middleware

import (
	"log/slog"
	"net/http"

	"sheetgql/internal/logging"
	"sheetgql/internal/observability"
)

// SpreadsheetAccessMiddleware rejects authenticated callers whose grant does
// not cover the routed spreadsheet. Requests without an auth context pass;
// tokens without a grant claim are rejected.
func SpreadsheetAccessMiddleware(metrics *observability.SecurityMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth, ok := AuthFromContext(r.Context())
			id := SpreadsheetID(r)
			if !ok || id == "" {
				next.ServeHTTP(w, r)
				return
			}
			if auth.HasGrant && auth.Allows(id) {
				next.ServeHTTP(w, r)
				return
			}

			if metrics != nil {
				metrics.RecordForbiddenSpreadsheet(r.Context(), id)
			}
			logging.FromContext(r.Context()).Warn("spreadsheet access denied",
				slog.String("subject", auth.Subject),
				slog.Bool("has_grant", auth.HasGrant),
			)
			writeError(w, http.StatusForbidden, "forbidden")
		})
	}
}
