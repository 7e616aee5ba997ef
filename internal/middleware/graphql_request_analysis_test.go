package middleware

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"sheetgql/internal/gqlrequest"
	"sheetgql/internal/schemarefresh"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type snapshotMap map[string]*schemarefresh.Snapshot

func (m snapshotMap) Snapshot(id string) (*schemarefresh.Snapshot, error) {
	if snap, ok := m[id]; ok {
		return snap, nil
	}
	return nil, fmt.Errorf("%w: %s", schemarefresh.ErrUnknownSpreadsheet, id)
}

func TestGraphQLRequestAnalysisMiddleware(t *testing.T) {
	var (
		analysis *gqlrequest.Analysis
		meta     gqlrequest.ExecMeta
		metaOK   bool
		body     string
	)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		analysis = gqlrequest.AnalysisFromContext(r.Context())
		meta, metaOK = gqlrequest.ExecMetaFromContext(r.Context())
		data, _ := io.ReadAll(r.Body)
		body = string(data)
		w.WriteHeader(http.StatusOK)
	})

	snapshots := snapshotMap{"blog": {SpreadsheetID: "blog", Fingerprint: "fp-1"}}
	mux := http.NewServeMux()
	mux.Handle("/graphql/{"+SpreadsheetPathValue+"}", GraphQLRequestAnalysisMiddleware(snapshots)(next))

	payload := `{"query":"query Recent { findPosts { totalCount } }","operationName":"Recent"}`
	req := httptest.NewRequest(http.MethodPost, "/graphql/blog", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req = req.WithContext(WithAuthContext(req.Context(), AuthContext{Subject: "ada"}))
	mux.ServeHTTP(httptest.NewRecorder(), req)

	require.NotNil(t, analysis)
	require.True(t, metaOK)
	assert.Equal(t, "query", analysis.OperationType)
	assert.Equal(t, "Recent", analysis.OperationName)
	assert.Equal(t, []string{"findPosts"}, analysis.RootFields)
	assert.NotEmpty(t, analysis.Hash)
	assert.Equal(t, gqlrequest.ExecMeta{SpreadsheetID: "blog", Fingerprint: "fp-1", Subject: "ada"}, meta)
	assert.Equal(t, payload, body, "the body is readable downstream")
}

func TestGraphQLRequestAnalysisMiddleware_UnknownSpreadsheet(t *testing.T) {
	var meta gqlrequest.ExecMeta
	next := http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		meta, _ = gqlrequest.ExecMetaFromContext(r.Context())
	})
	mux := http.NewServeMux()
	mux.Handle("/graphql/{"+SpreadsheetPathValue+"}", GraphQLRequestAnalysisMiddleware(snapshotMap{})(next))

	req := httptest.NewRequestWithContext(context.Background(), http.MethodGet, "/graphql/nope?query=%7Bfind%7BtotalCount%7D%7D", nil)
	mux.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "nope", meta.SpreadsheetID)
	assert.Empty(t, meta.Fingerprint)
}
