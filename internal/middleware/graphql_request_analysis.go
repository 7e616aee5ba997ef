package middleware

import (
	"net/http"

	"sheetgql/internal/gqlrequest"
	"sheetgql/internal/logging"
	"sheetgql/internal/observability"
	"sheetgql/internal/schemarefresh"
)

// SnapshotLookup finds the schema snapshot serving a spreadsheet.
type SnapshotLookup interface {
	Snapshot(id string) (*schemarefresh.Snapshot, error)
}

// GraphQLRequestAnalysisMiddleware decodes and analyzes the GraphQL request
// once and stores the result in the context for the layers below. snapshots
// may be nil.
func GraphQLRequestAnalysisMiddleware(snapshots SnapshotLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			analysis := gqlrequest.Analyze(r)
			ctx := gqlrequest.WithAnalysis(r.Context(), analysis)

			meta := gqlrequest.ExecMeta{SpreadsheetID: SpreadsheetID(r)}
			if snapshots != nil && meta.SpreadsheetID != "" {
				if snap, err := snapshots.Snapshot(meta.SpreadsheetID); err == nil {
					meta.Fingerprint = snap.Fingerprint
				}
			}
			if auth, ok := AuthFromContext(ctx); ok {
				meta.Subject = auth.Subject
			}
			ctx = gqlrequest.WithExecMeta(ctx, meta)

			if fields := observability.GraphQLLogFields(ctx, analysis, meta); len(fields) > 0 {
				ctx = logging.WithLogger(ctx, logging.FromContext(ctx).WithFields(fields...))
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
