// Package memstore is an in-memory document store. It evaluates filters with
// docmatch and backs tests and the xlsx development mode.
package memstore

import (
	"context"
	"fmt"
	"sync"

	"sheetgql/internal/docmatch"
	"sheetgql/internal/store"
)

// Collection holds the documents of one spreadsheet. It is safe for
// concurrent reads; Replace swaps the document set atomically.
type Collection struct {
	mu   sync.RWMutex
	docs []store.Document
}

// NewCollection creates a collection over docs. The slice is not copied.
func NewCollection(docs []store.Document) *Collection {
	return &Collection{docs: docs}
}

// Replace swaps the document set.
func (c *Collection) Replace(docs []store.Document) {
	c.mu.Lock()
	c.docs = docs
	c.mu.Unlock()
}

func (c *Collection) match(ctx context.Context, filter store.Filter) ([]store.Document, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []store.Document
	for _, doc := range c.docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
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

// Find implements store.Store.
func (c *Collection) Find(ctx context.Context, filter store.Filter, opts store.FindOptions) ([]store.Document, error) {
	docs, err := c.match(ctx, filter)
	if err != nil {
		return nil, err
	}
	docmatch.Sort(docs, opts.Sort)
	docs = docmatch.Page(docs, opts.Skip, opts.Limit)

	out := make([]store.Document, len(docs))
	for i, doc := range docs {
		out[i] = docmatch.Project(doc, opts.Projection)
	}
	return out, nil
}

// FindOne implements store.Store.
func (c *Collection) FindOne(ctx context.Context, filter store.Filter, opts store.FindOptions) (store.Document, error) {
	opts.Limit = store.Int64(1)
	docs, err := c.Find(ctx, filter, opts)
	if err != nil || len(docs) == 0 {
		return nil, err
	}
	return docs[0], nil
}

// CountDocuments implements store.Store.
func (c *Collection) CountDocuments(ctx context.Context, filter store.Filter) (int64, error) {
	docs, err := c.match(ctx, filter)
	if err != nil {
		return 0, err
	}
	return int64(len(docs)), nil
}

// Provider maps spreadsheet ids to collections.
type Provider struct {
	mu          sync.RWMutex
	collections map[string]*Collection
}

// New creates an empty provider.
func New() *Provider {
	return &Provider{collections: make(map[string]*Collection)}
}

// Put installs or replaces the documents of a spreadsheet.
func (p *Provider) Put(spreadsheetID string, docs []store.Document) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.collections[spreadsheetID]; ok {
		c.Replace(docs)
		return
	}
	p.collections[spreadsheetID] = NewCollection(docs)
}

// Delete drops a spreadsheet.
func (p *Provider) Delete(spreadsheetID string) {
	p.mu.Lock()
	delete(p.collections, spreadsheetID)
	p.mu.Unlock()
}

// Collection implements store.Provider.
func (p *Provider) Collection(_ context.Context, spreadsheetID string) (store.Store, error) {
	p.mu.RLock()
	c, ok := p.collections[spreadsheetID]
	p.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrNotFound, spreadsheetID)
	}
	return c, nil
}
