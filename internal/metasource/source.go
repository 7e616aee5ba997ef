// Package metasource provides spreadsheet metadata to the schema layer. A
// Source lists and fetches metadata; sources that can observe changes also
// implement Watcher.
package metasource

import (
	"context"
	"errors"
	"fmt"

	"sheetgql/internal/metadata"
)

// ErrNotFound is returned by Get for an unknown spreadsheet.
var ErrNotFound = errors.New("metadata not found")

// Source reads spreadsheet metadata.
type Source interface {
	// List returns every readable spreadsheet. Entries that fail to load are
	// skipped and reported in the returned error alongside the rest.
	List(ctx context.Context) ([]*metadata.Metadata, error)
	Get(ctx context.Context, id string) (*metadata.Metadata, error)
}

// Watcher reports changed spreadsheets until ctx is done. onChange receives
// the id of every spreadsheet that was added, modified or removed.
type Watcher interface {
	Watch(ctx context.Context, onChange func(id string)) error
}

// LoadError reports a metadata entry that could not be read.
type LoadError struct {
	// Origin is the file name or key the entry came from.
	Origin string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load metadata from %s: %v", e.Origin, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Static serves a fixed set of metadata. It is used by tests and by
// single-file runs.
type Static struct {
	entries []*metadata.Metadata
}

// NewStatic creates a Static source.
func NewStatic(entries ...*metadata.Metadata) *Static {
	return &Static{entries: entries}
}

// List implements Source.
func (s *Static) List(context.Context) ([]*metadata.Metadata, error) {
	return s.entries, nil
}

// Get implements Source.
func (s *Static) Get(_ context.Context, id string) (*metadata.Metadata, error) {
	for _, md := range s.entries {
		if md.ID == id {
			return md, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}
