package resolver

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"sheetgql/internal/store"
)

// Connection is the value of a find field. It holds the translated query
// and runs the rows and count store calls only when, and only the first
// time, the matching field is resolved.
type Connection struct {
	store   store.Store
	sheet   string
	filter  store.Filter
	options store.FindOptions

	rowsOnce sync.Once
	edges    []*Edge
	rowsErr  error

	countOnce sync.Once
	count     int64
	countErr  error
}

// Edge wraps one row of a connection.
type Edge struct {
	Row store.Document
}

// pageInfo is the constant page info of every connection. Cursor paging is
// not implemented.
func pageInfo() map[string]any {
	return map[string]any{
		"hasNextPage":     false,
		"hasPreviousPage": false,
		"startCursor":     nil,
		"endCursor":       nil,
	}
}

// NewConnection creates a lazy connection over s.
func NewConnection(s store.Store, sheet string, filter store.Filter, options store.FindOptions) *Connection {
	return &Connection{store: s, sheet: sheet, filter: filter, options: options}
}

// Filter returns the store filter of the connection.
func (c *Connection) Filter() store.Filter {
	return c.filter
}

// Options returns the find options of the connection.
func (c *Connection) Options() store.FindOptions {
	return c.options
}

// Edges finds the rows of the connection.
func (c *Connection) Edges(ctx context.Context) ([]*Edge, error) {
	c.rowsOnce.Do(func() {
		ctx, span := startResolverSpan(ctx, "graphql.connection.rows", attribute.String("sheet.title", c.sheet))
		docs, err := c.store.Find(ctx, c.filter, c.options)
		if err != nil {
			c.rowsErr = err
			finishResolverSpan(span, err, -1)
			return
		}
		c.edges = make([]*Edge, len(docs))
		for i, doc := range docs {
			c.edges[i] = &Edge{Row: doc}
		}
		finishResolverSpan(span, nil, len(docs))
	})
	return c.edges, c.rowsErr
}

// TotalCount counts every row matching the filter, ignoring skip and limit.
func (c *Connection) TotalCount(ctx context.Context) (int64, error) {
	c.countOnce.Do(func() {
		ctx, span := startResolverSpan(ctx, "graphql.connection.total_count", attribute.String("sheet.title", c.sheet))
		c.count, c.countErr = c.store.CountDocuments(ctx, c.filter)
		finishResolverSpan(span, c.countErr, -1)
	})
	return c.count, c.countErr
}
