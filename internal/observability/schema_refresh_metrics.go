package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Refresh triggers.
const (
	TriggerStartup = "startup"
	TriggerWatch   = "watch"
	TriggerPoll    = "poll"
	TriggerAdmin   = "admin"
)

// SchemaRefreshMetrics records per-spreadsheet schema synthesis.
type SchemaRefreshMetrics struct {
	refreshCounter  metric.Int64Counter
	errorCounter    metric.Int64Counter
	durationHist    metric.Float64Histogram
	lastSuccessUnix atomic.Int64
	available       atomic.Int64
}

// InitSchemaRefreshMetrics creates the refresh instruments and registers the
// observable gauges.
func InitSchemaRefreshMetrics(logger *slog.Logger) (*SchemaRefreshMetrics, error) {
	meter := otel.Meter(MeterName)
	m := &SchemaRefreshMetrics{}
	var err error

	if m.refreshCounter, err = meter.Int64Counter("schema.refresh.total",
		metric.WithDescription("Total number of schema synthesis attempts")); err != nil {
		return nil, fmt.Errorf("failed to create schema refresh counter: %w", err)
	}
	if m.errorCounter, err = meter.Int64Counter("schema.refresh.errors.total",
		metric.WithDescription("Total number of failed schema synthesis attempts")); err != nil {
		return nil, fmt.Errorf("failed to create schema refresh error counter: %w", err)
	}
	if m.durationHist, err = meter.Float64Histogram("schema.refresh.duration",
		metric.WithDescription("Duration of schema synthesis in milliseconds"),
		metric.WithUnit("ms")); err != nil {
		return nil, fmt.Errorf("failed to create schema refresh duration histogram: %w", err)
	}

	lastSuccess, err := meter.Int64ObservableGauge("schema.refresh.last_success_unix",
		metric.WithDescription("Unix timestamp of the last successful schema synthesis"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("failed to create schema refresh last success gauge: %w", err)
	}
	available, err := meter.Int64ObservableGauge("schema.spreadsheets.available",
		metric.WithDescription("Number of spreadsheets with a servable schema"))
	if err != nil {
		return nil, fmt.Errorf("failed to create available spreadsheets gauge: %w", err)
	}

	_, err = meter.RegisterCallback(func(ctx context.Context, observer metric.Observer) error {
		if value := m.lastSuccessUnix.Load(); value > 0 {
			observer.ObserveInt64(lastSuccess, value)
		}
		observer.ObserveInt64(available, m.available.Load())
		return nil
	}, lastSuccess, available)
	if err != nil {
		return nil, fmt.Errorf("failed to register schema refresh gauge callback: %w", err)
	}

	logger.Info("schema refresh metrics initialized")
	return m, nil
}

// RecordRefresh records one synthesis attempt for a spreadsheet.
func (m *SchemaRefreshMetrics) RecordRefresh(ctx context.Context, duration time.Duration, success bool, trigger, spreadsheetID string) {
	attrs := metric.WithAttributes(
		attribute.String("trigger", trigger),
		attribute.String("spreadsheet_id", spreadsheetID),
		attribute.Bool("success", success),
	)
	m.refreshCounter.Add(ctx, 1, attrs)
	m.durationHist.Record(ctx, float64(duration.Milliseconds()), attrs)
	if !success {
		m.errorCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("trigger", trigger),
			attribute.String("spreadsheet_id", spreadsheetID),
		))
		return
	}
	m.lastSuccessUnix.Store(time.Now().Unix())
}

// SetAvailable records how many spreadsheets currently have a schema.
func (m *SchemaRefreshMetrics) SetAvailable(n int) {
	m.available.Store(int64(n))
}
