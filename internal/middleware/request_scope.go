package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	"golang.org/x/text/language"

	"sheetgql/internal/datefmt"
	"sheetgql/internal/logging"
	"sheetgql/internal/observability"
	"sheetgql/internal/resolver"
	"sheetgql/internal/store"
)

// DefaultZoneHeader lets a client pick the zone date fields render in.
const DefaultZoneHeader = "X-Timezone"

// RequestScopeConfig configures RequestScopeMiddleware.
type RequestScopeConfig struct {
	Stores         store.Provider
	GraphQLMetrics *observability.GraphQLMetrics
	ZoneHeader     string
}

// RequestScopeMiddleware opens the routed spreadsheet's store and attaches
// a fresh resolver scope, with its own relationship loader, to the request.
// The zone header and Accept-Language override the configured date
// defaults; invalid values are ignored.
func RequestScopeMiddleware(cfg RequestScopeConfig) func(http.Handler) http.Handler {
	zoneHeader := cfg.ZoneHeader
	if zoneHeader == "" {
		zoneHeader = DefaultZoneHeader
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			logger := logging.FromContext(ctx)
			id := SpreadsheetID(r)

			s, err := cfg.Stores.Collection(ctx, id)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					writeError(w, http.StatusNotFound, "spreadsheet data not found")
					return
				}
				logger.Error("failed to open store", slog.String("error", err.Error()))
				writeError(w, http.StatusServiceUnavailable, "store unavailable")
				return
			}

			scope := resolver.NewRequestScope(s, cfg.GraphQLMetrics, logger)
			if zone := r.Header.Get(zoneHeader); zone != "" {
				if _, err := datefmt.LoadZone(zone); err == nil {
					scope.Zone = zone
				} else {
					logger.Debug("ignoring invalid zone header", slog.String("zone", zone))
				}
			}
			scope.Locale = preferredLocale(r.Header.Get("Accept-Language"))

			next.ServeHTTP(w, r.WithContext(resolver.WithRequestScope(ctx, scope)))
		})
	}
}

// preferredLocale returns the highest weighted tag of an Accept-Language
// header, or "" when there is none.
func preferredLocale(header string) string {
	if header == "" {
		return ""
	}
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil || len(tags) == 0 {
		return ""
	}
	return tags[0].String()
}
