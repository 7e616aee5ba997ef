package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"sheetgql/internal/gqlrequest"
	"sheetgql/internal/observability"
)

// GraphQLMetricsMiddleware records request count, duration, errors and
// query depth for GraphQL POSTs. GraphiQL page loads are skipped.
func GraphQLMetricsMiddleware(metrics *observability.GraphQLMetrics) func(http.Handler) http.Handler {
	if metrics == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}

			ctx := observability.ContextWithGraphQLMetrics(r.Context(), metrics)
			r = r.WithContext(ctx)
			metrics.IncrementActiveRequests(ctx)
			defer metrics.DecrementActiveRequests(ctx)
			start := time.Now()

			analysis := gqlrequest.AnalysisFromContext(ctx)
			if analysis == nil {
				analysis = gqlrequest.Analyze(r)
			}
			operationType := "unknown"
			if analysis.Err == nil && analysis.OperationType != "" {
				operationType = analysis.OperationType
				metrics.RecordQueryDepth(ctx, int64(analysis.Depth), operationType)
			}

			rec := &bodyRecorder{statusRecorder: newStatusRecorder(w)}
			next.ServeHTTP(rec, r)

			hasErrors := rec.status >= 400 || responseHasGraphQLErrors(rec.body.Bytes())
			metrics.RecordRequest(ctx, time.Since(start), hasErrors, operationType, SpreadsheetID(r))
		})
	}
}

// bodyRecorder keeps a copy of the response so GraphQL errors reported
// with status 200 can be detected.
type bodyRecorder struct {
	*statusRecorder
	body bytes.Buffer
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.statusRecorder.Write(b)
}

func responseHasGraphQLErrors(body []byte) bool {
	var payload struct {
		Errors []json.RawMessage `json:"errors"`
	}
	if err := json.Unmarshal(bytes.TrimSpace(body), &payload); err != nil {
		return false
	}
	return len(payload.Errors) > 0
}
