package observability

import (
	"context"
	"log/slog"
	"testing"

	"sheetgql/internal/gqlrequest"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

func TestGraphQLSpanAttributes(t *testing.T) {
	analysis := &gqlrequest.Analysis{
		Envelope:      gqlrequest.Envelope{Query: "query Q { findPosts { totalCount } }", SizeBytes: 36},
		OperationName: "Q",
		OperationType: "query",
		RootFields:    []string{"findPosts"},
		FieldCount:    2,
		Depth:         2,
		Hash:          "hash123",
	}
	meta := gqlrequest.ExecMeta{SpreadsheetID: "sheet-1", Fingerprint: "fp-1", Subject: "alice"}

	attrs := GraphQLSpanAttributes(analysis, meta)
	byKey := make(map[attribute.Key]attribute.Value, len(attrs))
	for _, kv := range attrs {
		byKey[kv.Key] = kv.Value
	}

	assert.Equal(t, "Q", byKey["graphql.operation.name"].AsString())
	assert.Equal(t, "hash123", byKey["graphql.operation.hash"].AsString())
	assert.Equal(t, []string{"findPosts"}, byKey["graphql.operation.root_fields"].AsStringSlice())
	assert.Equal(t, int64(2), byKey["graphql.query.depth"].AsInt64())
	assert.Equal(t, "sheet-1", byKey["sheet.spreadsheet_id"].AsString())
	assert.Equal(t, "alice", byKey["auth.subject"].AsString())
}

func TestGraphQLSpanAttributes_SkipsShapeOnParseError(t *testing.T) {
	attrs := GraphQLSpanAttributes(&gqlrequest.Analysis{Err: assert.AnError}, gqlrequest.ExecMeta{})
	for _, kv := range attrs {
		assert.NotEqual(t, attribute.Key("graphql.query.depth"), kv.Key)
	}
}

func TestGraphQLLogFieldsIncludesTraceID(t *testing.T) {
	spanCtx := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: trace.TraceID{1, 2, 3},
		SpanID:  trace.SpanID{4, 5, 6},
		Remote:  true,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), spanCtx)

	fields := GraphQLLogFields(ctx, &gqlrequest.Analysis{OperationName: "Q", OperationType: "query"}, gqlrequest.ExecMeta{SpreadsheetID: "sheet-1"})
	assert.Len(t, fields, 4)

	values := make(map[string]string, len(fields))
	for _, field := range fields {
		attr := field.(slog.Attr)
		values[attr.Key] = attr.Value.String()
	}
	assert.Equal(t, spanCtx.TraceID().String(), values["trace_id"])
	assert.Equal(t, "sheet-1", values["spreadsheet_id"])
}
