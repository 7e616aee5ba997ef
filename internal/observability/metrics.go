package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeterName is the instrumentation scope of every metric of the service.
const MeterName = "sheetgql"

// GraphQLMetrics holds metrics for GraphQL requests and relationship batching.
type GraphQLMetrics struct {
	requestDuration metric.Float64Histogram
	requestCounter  metric.Int64Counter
	errorCounter    metric.Int64Counter
	activeRequests  metric.Int64UpDownCounter
	queryDepth      metric.Int64Histogram

	batchSize         metric.Int64Histogram
	batchResultRows   metric.Int64Histogram
	batchDedupHits    metric.Int64Counter
	batchQueriesSaved metric.Int64Counter
	batchErrors       metric.Int64Counter
}

// InitGraphQLMetrics creates the GraphQL instruments on the global meter
// provider.
func InitGraphQLMetrics() (*GraphQLMetrics, error) {
	meter := otel.Meter(MeterName)
	m := &GraphQLMetrics{}
	var err error

	if m.requestDuration, err = meter.Float64Histogram("graphql.request.duration",
		metric.WithDescription("Duration of GraphQL requests in milliseconds"),
		metric.WithUnit("ms")); err != nil {
		return nil, fmt.Errorf("failed to create request duration histogram: %w", err)
	}
	if m.requestCounter, err = meter.Int64Counter("graphql.requests.total",
		metric.WithDescription("Total number of GraphQL requests")); err != nil {
		return nil, fmt.Errorf("failed to create request counter: %w", err)
	}
	if m.errorCounter, err = meter.Int64Counter("graphql.errors.total",
		metric.WithDescription("Total number of GraphQL requests with errors")); err != nil {
		return nil, fmt.Errorf("failed to create error counter: %w", err)
	}
	if m.activeRequests, err = meter.Int64UpDownCounter("graphql.requests.active",
		metric.WithDescription("Number of GraphQL requests in flight")); err != nil {
		return nil, fmt.Errorf("failed to create active requests counter: %w", err)
	}
	if m.queryDepth, err = meter.Int64Histogram("graphql.query.depth",
		metric.WithDescription("Selection depth of GraphQL operations")); err != nil {
		return nil, fmt.Errorf("failed to create query depth histogram: %w", err)
	}
	if m.batchSize, err = meter.Int64Histogram("graphql.batch.size",
		metric.WithDescription("Number of distinct sub-queries combined into one relationship load")); err != nil {
		return nil, fmt.Errorf("failed to create batch size histogram: %w", err)
	}
	if m.batchResultRows, err = meter.Int64Histogram("graphql.batch.result_rows",
		metric.WithDescription("Number of documents returned by a combined relationship load")); err != nil {
		return nil, fmt.Errorf("failed to create batch result rows histogram: %w", err)
	}
	if m.batchDedupHits, err = meter.Int64Counter("graphql.batch.dedup_hits",
		metric.WithDescription("Relationship loads answered by an identical pending sub-query")); err != nil {
		return nil, fmt.Errorf("failed to create batch dedup counter: %w", err)
	}
	if m.batchQueriesSaved, err = meter.Int64Counter("graphql.batch.queries_saved",
		metric.WithDescription("Store queries saved by batching relationship loads")); err != nil {
		return nil, fmt.Errorf("failed to create batch queries saved counter: %w", err)
	}
	if m.batchErrors, err = meter.Int64Counter("graphql.batch.errors",
		metric.WithDescription("Combined relationship loads that failed")); err != nil {
		return nil, fmt.Errorf("failed to create batch error counter: %w", err)
	}
	return m, nil
}

// InitMetrics creates the GraphQL metrics and logs that they are ready.
func InitMetrics(logger *slog.Logger) (*GraphQLMetrics, error) {
	metrics, err := InitGraphQLMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize GraphQL metrics: %w", err)
	}
	logger.Info("GraphQL metrics initialized")
	return metrics, nil
}

// RecordRequest records a finished GraphQL request.
func (m *GraphQLMetrics) RecordRequest(ctx context.Context, duration time.Duration, hasErrors bool, operationType, spreadsheetID string) {
	attrs := metric.WithAttributes(
		attribute.String("operation_type", operationType),
		attribute.String("spreadsheet_id", spreadsheetID),
		attribute.Bool("has_errors", hasErrors),
	)
	m.requestDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	m.requestCounter.Add(ctx, 1, attrs)
	if hasErrors {
		m.errorCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("operation_type", operationType),
			attribute.String("spreadsheet_id", spreadsheetID),
		))
	}
}

// RecordQueryDepth records the selection depth of an operation.
func (m *GraphQLMetrics) RecordQueryDepth(ctx context.Context, depth int64, operationType string) {
	m.queryDepth.Record(ctx, depth, metric.WithAttributes(attribute.String("operation_type", operationType)))
}

func (m *GraphQLMetrics) IncrementActiveRequests(ctx context.Context) {
	m.activeRequests.Add(ctx, 1)
}

func (m *GraphQLMetrics) DecrementActiveRequests(ctx context.Context) {
	m.activeRequests.Add(ctx, -1)
}

// RecordBatch records one combined relationship load. waiters is the number
// of loads that shared it, distinct the number of sub-queries in its $or.
func (m *GraphQLMetrics) RecordBatch(ctx context.Context, targetSheet string, waiters, distinct, rows int, err error) {
	attrs := metric.WithAttributes(attribute.String("target_sheet", targetSheet))
	m.batchSize.Record(ctx, int64(distinct), attrs)
	if err != nil {
		m.batchErrors.Add(ctx, 1, attrs)
		return
	}
	m.batchResultRows.Record(ctx, int64(rows), attrs)
	if saved := waiters - 1; saved > 0 {
		m.batchQueriesSaved.Add(ctx, int64(saved), attrs)
	}
}

// RecordDedupHit records a load answered by an identical pending sub-query.
func (m *GraphQLMetrics) RecordDedupHit(ctx context.Context, targetSheet string) {
	m.batchDedupHits.Add(ctx, 1, metric.WithAttributes(attribute.String("target_sheet", targetSheet)))
}

type graphQLMetricsContextKey struct{}

// ContextWithGraphQLMetrics stores GraphQL metrics in ctx.
func ContextWithGraphQLMetrics(ctx context.Context, metrics *GraphQLMetrics) context.Context {
	return context.WithValue(ctx, graphQLMetricsContextKey{}, metrics)
}

// GraphQLMetricsFromContext returns the metrics stored in ctx, or nil.
func GraphQLMetricsFromContext(ctx context.Context) *GraphQLMetrics {
	metrics, _ := ctx.Value(graphQLMetricsContextKey{}).(*GraphQLMetrics)
	return metrics
}
