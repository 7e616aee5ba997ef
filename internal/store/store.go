// Package store defines the read-only document store the query layer runs
// against. Concrete stores live in subpackages.
package store

import (
	"context"
	"errors"
)

// Document is one stored row. Every sheet row carries the _sheet and _id
// keys; nested documents are embedded maps.
type Document = map[string]any

// Filter is a Mongo-style query document.
type Filter = map[string]any

// SortDirection is the direction of one sort key.
type SortDirection string

const (
	Ascending  SortDirection = "ASC"
	Descending SortDirection = "DESC"
)

// SortField is one key of an ordered sort, addressed by a dotted path.
type SortField struct {
	Path      string
	Direction SortDirection
}

// FindOptions modifies a find. Nil pointers mean the option is absent.
type FindOptions struct {
	Skip       *int64
	Limit      *int64
	Sort       []SortField
	Projection map[string]any
}

// ErrNotFound is returned by Provider.Collection for an unknown spreadsheet.
var ErrNotFound = errors.New("spreadsheet not found")

// Store reads the documents of one spreadsheet.
type Store interface {
	Find(ctx context.Context, filter Filter, opts FindOptions) ([]Document, error)
	// FindOne returns nil without error when nothing matches.
	FindOne(ctx context.Context, filter Filter, opts FindOptions) (Document, error)
	CountDocuments(ctx context.Context, filter Filter) (int64, error)
}

// Provider hands out the store of a spreadsheet.
type Provider interface {
	Collection(ctx context.Context, spreadsheetID string) (Store, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, spreadsheetID string) (Store, error)

// Collection implements Provider.
func (f ProviderFunc) Collection(ctx context.Context, spreadsheetID string) (Store, error) {
	return f(ctx, spreadsheetID)
}

// Int64 returns a pointer to v, for building FindOptions.
func Int64(v int64) *int64 {
	return &v
}

// Keys present on every stored row.
const (
	IDKey    = "_id"
	SheetKey = "_sheet"
)
