package store

import (
	"context"
	"time"

	"sheetgql/internal/observability"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "sheetgql/store"

type instrumented struct {
	next    Store
	backend string
	metrics *observability.StoreMetrics
	tracer  trace.Tracer
}

// Instrument wraps s so every call is traced and, when metrics is non-nil,
// recorded. backend labels both, e.g. "mysql".
func Instrument(s Store, backend string, metrics *observability.StoreMetrics) Store {
	return &instrumented{
		next:    s,
		backend: backend,
		metrics: metrics,
		tracer:  otel.Tracer(tracerName),
	}
}

func (i *instrumented) start(ctx context.Context, op string) (context.Context, trace.Span) {
	return i.tracer.Start(ctx, "store."+op, trace.WithAttributes(
		attribute.String("store.backend", i.backend),
		attribute.String("store.operation", op),
	))
}

func (i *instrumented) finish(ctx context.Context, span trace.Span, op string, started time.Time, n int64, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(attribute.Int64("store.documents", n))
	}
	span.End()
	if i.metrics != nil {
		i.metrics.RecordOperation(ctx, i.backend, op, time.Since(started), n, err)
	}
}

func (i *instrumented) Find(ctx context.Context, filter Filter, opts FindOptions) ([]Document, error) {
	started := time.Now()
	ctx, span := i.start(ctx, "find")
	docs, err := i.next.Find(ctx, filter, opts)
	i.finish(ctx, span, "find", started, int64(len(docs)), err)
	return docs, err
}

func (i *instrumented) FindOne(ctx context.Context, filter Filter, opts FindOptions) (Document, error) {
	started := time.Now()
	ctx, span := i.start(ctx, "find_one")
	doc, err := i.next.FindOne(ctx, filter, opts)
	var n int64
	if doc != nil {
		n = 1
	}
	i.finish(ctx, span, "find_one", started, n, err)
	return doc, err
}

func (i *instrumented) CountDocuments(ctx context.Context, filter Filter) (int64, error) {
	started := time.Now()
	ctx, span := i.start(ctx, "count")
	n, err := i.next.CountDocuments(ctx, filter)
	i.finish(ctx, span, "count", started, n, err)
	return n, err
}

// InstrumentProvider wraps every store p hands out with Instrument.
func InstrumentProvider(p Provider, backend string, metrics *observability.StoreMetrics) Provider {
	return ProviderFunc(func(ctx context.Context, spreadsheetID string) (Store, error) {
		s, err := p.Collection(ctx, spreadsheetID)
		if err != nil {
			return nil, err
		}
		return Instrument(s, backend, metrics), nil
	})
}
