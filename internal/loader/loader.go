// Package loader batches relationship lookups made while resolving one
// GraphQL request. Loads are queued and return a thunk; the first thunk the
// executor forces sends every queued sub-query to the store as a single
// $or find and hands each waiter the documents matching its own filter.
package loader

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"sheetgql/internal/docmatch"
	"sheetgql/internal/metadata"
	"sheetgql/internal/observability"
	"sheetgql/internal/store"
)

// SubQuery is one relationship lookup.
type SubQuery struct {
	// Column is the relationship column on the source row.
	Column      string
	TargetSheet string
	Filter      store.Filter
}

// RelationshipResolutionError reports a failed batched load. Every sub-query
// of the failed batch receives it.
type RelationshipResolutionError struct {
	Column      string
	TargetSheet string
	Err         error
}

func (e *RelationshipResolutionError) Error() string {
	return fmt.Sprintf("failed to resolve relationship %s -> %s: %v", e.Column, e.TargetSheet, e.Err)
}

func (e *RelationshipResolutionError) Unwrap() error {
	return e.Err
}

// Thunk yields the documents of a queued load.
type Thunk func() ([]store.Document, error)

type call struct {
	query   SubQuery
	waiters int
	done    chan struct{}
	docs    []store.Document
	err     error
}

// Loader is request scoped. It is safe for concurrent use.
type Loader struct {
	store   store.Store
	metrics *observability.GraphQLMetrics
	tracer  trace.Tracer

	mu      sync.Mutex
	pending []*call
	calls   map[string]*call
	stats   Stats
}

// Stats summarizes what a loader did during a request.
type Stats struct {
	Loads     int
	DedupHits int
	Batches   int
}

// New creates a loader reading from s. metrics may be nil.
func New(s store.Store, metrics *observability.GraphQLMetrics) *Loader {
	return &Loader{
		store:   s,
		metrics: metrics,
		tracer:  otel.Tracer("sheetgql/loader"),
		calls:   make(map[string]*call),
	}
}

// Key is the dedup key of a filter: its canonical JSON encoding.
func Key(filter store.Filter) (string, error) {
	data, err := json.Marshal(filter)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Load queues q and returns a thunk for its documents. Identical filters
// within the request share one queued call.
func (l *Loader) Load(ctx context.Context, q SubQuery) Thunk {
	key, err := Key(q.Filter)
	if err != nil {
		return func() ([]store.Document, error) {
			return nil, &RelationshipResolutionError{Column: q.Column, TargetSheet: q.TargetSheet, Err: err}
		}
	}

	l.mu.Lock()
	l.stats.Loads++
	c, ok := l.calls[key]
	if ok {
		c.waiters++
		l.stats.DedupHits++
	} else {
		c = &call{query: q, waiters: 1, done: make(chan struct{})}
		l.calls[key] = c
		l.pending = append(l.pending, c)
	}
	l.mu.Unlock()

	if ok && l.metrics != nil {
		l.metrics.RecordDedupHit(ctx, q.TargetSheet)
	}

	return func() ([]store.Document, error) {
		l.dispatch(ctx)
		select {
		case <-c.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if c.err != nil {
			return nil, &RelationshipResolutionError{Column: q.Column, TargetSheet: q.TargetSheet, Err: c.err}
		}
		return c.docs, nil
	}
}

// Pending reports how many distinct sub-queries wait for dispatch.
func (l *Loader) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// Stats returns the loader's counters so far.
func (l *Loader) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

func (l *Loader) dispatch(ctx context.Context) {
	l.mu.Lock()
	batch := l.pending
	l.pending = nil
	waiters := 0
	for _, c := range batch {
		waiters += c.waiters
	}
	if len(batch) > 0 {
		l.stats.Batches++
	}
	l.mu.Unlock()
	if len(batch) == 0 {
		return
	}

	target := batch[0].query.TargetSheet
	filters := make([]any, len(batch))
	for i, c := range batch {
		filters[i] = c.query.Filter
		if c.query.TargetSheet != target {
			target = "*"
		}
	}
	filter := batch[0].query.Filter
	if len(batch) > 1 {
		filter = store.Filter{"$or": filters}
	}

	ctx, span := l.tracer.Start(ctx, "loader.dispatch", trace.WithAttributes(
		attribute.String("loader.target_sheet", target),
		attribute.Int("loader.batch_size", len(batch)),
		attribute.Int("loader.waiters", waiters),
	))
	defer span.End()

	docs, err := l.store.Find(ctx, filter, store.FindOptions{})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if l.metrics != nil {
		l.metrics.RecordBatch(ctx, target, waiters, len(batch), len(docs), err)
	}

	for _, c := range batch {
		if err != nil {
			c.err = err
		} else {
			c.docs, c.err = matching(docs, c.query.Filter)
		}
		close(c.done)
	}
}

func matching(docs []store.Document, filter store.Filter) ([]store.Document, error) {
	out := make([]store.Document, 0)
	for _, doc := range docs {
		ok, err := docmatch.Match(doc, filter)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, doc)
		}
	}
	return out, nil
}

// RelationshipQuery builds the sub-query that resolves a relationship column
// for one row value. It reports false when the value is empty and no lookup
// is needed.
func RelationshipQuery(column string, ref metadata.RelationshipRef, value any) (SubQuery, bool) {
	if value == nil {
		return SubQuery{}, false
	}
	var cond any = value
	if ref.Operator == metadata.RelationshipIn {
		list := asList(value)
		if len(list) == 0 {
			return SubQuery{}, false
		}
		cond = map[string]any{"$in": list}
	}

	filter := store.Filter{ref.TargetField: cond}
	if ref.TargetSheet != metadata.UnionSheetTitle {
		filter[store.SheetKey] = ref.TargetSheet
	}
	return SubQuery{Column: column, TargetSheet: ref.TargetSheet, Filter: filter}, true
}

func asList(v any) []any {
	if list, ok := v.([]any); ok {
		return list
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out
	}
	return []any{v}
}
