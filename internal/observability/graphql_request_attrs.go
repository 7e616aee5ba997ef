package observability

import (
	"context"
	"log/slog"
	"strings"

	"sheetgql/internal/gqlrequest"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// GraphQLSpanAttributes builds span attributes from request analysis.
func GraphQLSpanAttributes(analysis *gqlrequest.Analysis, meta gqlrequest.ExecMeta) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 12)

	if analysis != nil {
		if analysis.OperationName != "" {
			attrs = append(attrs, attribute.String("graphql.operation.name", analysis.OperationName))
		}
		if analysis.OperationType != "" {
			attrs = append(attrs, attribute.String("graphql.operation.type", analysis.OperationType))
		}
		if analysis.Hash != "" {
			attrs = append(attrs, attribute.String("graphql.operation.hash", analysis.Hash))
		}
		if len(analysis.RootFields) > 0 {
			attrs = append(attrs, attribute.StringSlice("graphql.operation.root_fields", analysis.RootFields))
		}
		if analysis.Envelope.SizeBytes > 0 {
			attrs = append(attrs, attribute.Int("graphql.document.size_bytes", analysis.Envelope.SizeBytes))
		}
		if analysis.Err == nil && analysis.OperationType != "" {
			attrs = append(attrs,
				attribute.Int("graphql.query.field_count", analysis.FieldCount),
				attribute.Int("graphql.query.depth", analysis.Depth),
				attribute.Int("graphql.query.variable_count", analysis.VariableCount),
			)
		}
	}

	if meta.SpreadsheetID != "" {
		attrs = append(attrs, attribute.String("sheet.spreadsheet_id", meta.SpreadsheetID))
	}
	if meta.Fingerprint != "" {
		attrs = append(attrs, attribute.String("schema.fingerprint", meta.Fingerprint))
	}
	if meta.Subject != "" {
		attrs = append(attrs, attribute.String("auth.subject", meta.Subject))
	}
	return attrs
}

// GraphQLLogFields builds structured log fields from request analysis.
func GraphQLLogFields(ctx context.Context, analysis *gqlrequest.Analysis, meta gqlrequest.ExecMeta) []any {
	fields := make([]any, 0, 8)

	if analysis != nil {
		if analysis.OperationName != "" {
			fields = append(fields, slog.String("operation_name", analysis.OperationName))
		}
		if analysis.OperationType != "" {
			fields = append(fields, slog.String("operation_type", analysis.OperationType))
		}
		if analysis.Hash != "" {
			fields = append(fields, slog.String("operation_hash", analysis.Hash))
		}
		if len(analysis.RootFields) > 0 {
			fields = append(fields, slog.String("root_fields", strings.Join(analysis.RootFields, ",")))
		}
	}

	if meta.SpreadsheetID != "" {
		fields = append(fields, slog.String("spreadsheet_id", meta.SpreadsheetID))
	}
	if meta.Fingerprint != "" {
		fields = append(fields, slog.String("schema_fingerprint", meta.Fingerprint))
	}
	if meta.Subject != "" {
		fields = append(fields, slog.String("subject", meta.Subject))
	}

	if spanCtx := trace.SpanContextFromContext(ctx); spanCtx.IsValid() {
		fields = append(fields, slog.String("trace_id", spanCtx.TraceID().String()))
	}
	return fields
}
