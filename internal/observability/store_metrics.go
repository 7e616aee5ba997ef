package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// StoreMetrics holds metrics for document store operations.
type StoreMetrics struct {
	duration  metric.Float64Histogram
	errors    metric.Int64Counter
	documents metric.Int64Histogram
}

// InitStoreMetrics creates the store instruments.
func InitStoreMetrics() (*StoreMetrics, error) {
	meter := otel.Meter(MeterName)

	duration, err := meter.Float64Histogram("store.operation.duration",
		metric.WithDescription("Duration of document store operations in milliseconds"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, fmt.Errorf("failed to create store duration histogram: %w", err)
	}
	errors, err := meter.Int64Counter("store.operation.errors.total",
		metric.WithDescription("Total number of failed document store operations"))
	if err != nil {
		return nil, fmt.Errorf("failed to create store error counter: %w", err)
	}
	documents, err := meter.Int64Histogram("store.operation.documents",
		metric.WithDescription("Number of documents returned or counted by a store operation"))
	if err != nil {
		return nil, fmt.Errorf("failed to create store documents histogram: %w", err)
	}
	return &StoreMetrics{duration: duration, errors: errors, documents: documents}, nil
}

// RecordOperation records one store call. documents is ignored on error.
func (m *StoreMetrics) RecordOperation(ctx context.Context, backend, operation string, duration time.Duration, documents int64, err error) {
	attrs := metric.WithAttributes(
		attribute.String("store", backend),
		attribute.String("operation", operation),
		attribute.Bool("success", err == nil),
	)
	m.duration.Record(ctx, float64(duration.Milliseconds()), attrs)
	if err != nil {
		m.errors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("store", backend),
			attribute.String("operation", operation),
		))
		return
	}
	m.documents.Record(ctx, documents, attrs)
}
