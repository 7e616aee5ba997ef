// Package sqlstore serves spreadsheet documents from a TiDB or MySQL table
// holding one JSON document per row:
//
//	CREATE TABLE sheet_documents (
//	  id BIGINT AUTO_INCREMENT PRIMARY KEY,
//	  spreadsheet_id VARCHAR(128) NOT NULL,
//	  doc JSON NOT NULL,
//	  KEY (spreadsheet_id)
//	);
//
// Store filters are compiled to JSON function predicates with squirrel.
package sqlstore

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"sheetgql/internal/docmatch"
	"sheetgql/internal/store"
)

// DefaultTable is the table read when no other is configured.
const DefaultTable = "sheet_documents"

// Querier is the subset of *sql.DB the store needs.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Provider hands out per-spreadsheet views of the documents table.
type Provider struct {
	db    Querier
	table string
}

// Option configures a Provider.
type Option func(*Provider)

// WithTable overrides the documents table name.
func WithTable(name string) Option {
	return func(p *Provider) {
		if name != "" {
			p.table = name
		}
	}
}

// New creates a Provider over db.
func New(db Querier, opts ...Option) *Provider {
	p := &Provider{db: db, table: DefaultTable}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Collection implements store.Provider. It does not touch the database.
func (p *Provider) Collection(_ context.Context, spreadsheetID string) (store.Store, error) {
	return &Collection{db: p.db, table: p.table, spreadsheetID: spreadsheetID}, nil
}

// Collection reads the documents of one spreadsheet.
type Collection struct {
	db            Querier
	table         string
	spreadsheetID string
}

// QuoteIdentifier quotes a SQL identifier with backticks.
func QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (c *Collection) where(b sq.SelectBuilder, filter store.Filter) (sq.SelectBuilder, error) {
	b = b.From(QuoteIdentifier(c.table)).Where(sq.Eq{"spreadsheet_id": c.spreadsheetID})
	pred, err := buildFilter(filter)
	if err != nil {
		return b, err
	}
	if pred != nil {
		b = b.Where(pred)
	}
	return b, nil
}

// FindSQL renders the SELECT issued by Find.
func (c *Collection) FindSQL(filter store.Filter, opts store.FindOptions) (string, []any, error) {
	b, err := c.where(sq.Select("doc"), filter)
	if err != nil {
		return "", nil, err
	}
	for _, field := range opts.Sort {
		dir := "ASC"
		if field.Direction == store.Descending {
			dir = "DESC"
		}
		b = b.OrderByClause(docScope.extract()+" "+dir, jsonPath(field.Path))
	}

	skip := opts.Skip != nil && *opts.Skip > 0
	switch {
	case opts.Limit != nil && *opts.Limit > 0:
		b = b.Limit(uint64(*opts.Limit))
	case skip:
		// MySQL has no OFFSET without LIMIT.
		b = b.Limit(math.MaxUint64)
	}
	if skip {
		b = b.Offset(uint64(*opts.Skip))
	}
	return b.PlaceholderFormat(sq.Question).ToSql()
}

// Find implements store.Store.
func (c *Collection) Find(ctx context.Context, filter store.Filter, opts store.FindOptions) ([]store.Document, error) {
	query, args, err := c.FindSQL(filter, opts)
	if err != nil {
		return nil, err
	}
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var docs []store.Document
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		doc, err := decodeDocument(raw)
		if err != nil {
			return nil, err
		}
		docs = append(docs, docmatch.Project(doc, opts.Projection))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read documents: %w", err)
	}
	return docs, nil
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
	b, err := c.where(sq.Select("COUNT(*)"), filter)
	if err != nil {
		return 0, err
	}
	query, args, err := b.PlaceholderFormat(sq.Question).ToSql()
	if err != nil {
		return 0, err
	}
	var n int64
	if err := c.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return n, nil
}

// decodeDocument decodes a JSON document, keeping integral numbers as int64.
func decodeDocument(raw []byte) (store.Document, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return normalizeNumbers(doc).(map[string]any), nil
}

func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			t[k] = normalizeNumbers(child)
		}
		return t
	case []any:
		for i, child := range t {
			t[i] = normalizeNumbers(child)
		}
		return t
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
		f, _ := t.Float64()
		return f
	}
	return v
}
