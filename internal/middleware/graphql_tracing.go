package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"sheetgql/internal/gqlrequest"
	"sheetgql/internal/logging"
	"sheetgql/internal/observability"
	"sheetgql/internal/resolver"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// GraphQLTracingMiddleware wraps GraphQL execution in a span. Requests
// without a query, such as GraphiQL page loads, are not traced.
func GraphQLTracingMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			analysis := gqlrequest.AnalysisFromContext(r.Context())
			if analysis == nil || strings.TrimSpace(analysis.Envelope.Query) == "" {
				next.ServeHTTP(w, r)
				return
			}
			meta, _ := gqlrequest.ExecMetaFromContext(r.Context())

			ctx, span := otel.Tracer("sheetgql/graphql").Start(r.Context(), "graphql.execute")
			defer span.End()
			if sc := span.SpanContext(); sc.IsValid() {
				ctx = logging.WithLogger(ctx, logging.FromContext(ctx).WithFields(
					slog.String("trace_id", sc.TraceID().String()),
					slog.String("span_id", sc.SpanID().String()),
				))
			}
			if span.IsRecording() {
				span.SetAttributes(observability.GraphQLSpanAttributes(analysis, meta)...)
			}

			next.ServeHTTP(w, r.WithContext(ctx))

			scope, err := resolver.ScopeFromContext(ctx)
			if err != nil || scope.Loader == nil || !span.IsRecording() {
				return
			}
			stats := scope.Loader.Stats()
			span.SetAttributes(
				attribute.Int("graphql.loader.loads", stats.Loads),
				attribute.Int("graphql.loader.dedup_hits", stats.DedupHits),
				attribute.Int("graphql.loader.batches", stats.Batches),
			)
		})
	}
}
