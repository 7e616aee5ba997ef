// Package mongostore serves spreadsheet documents from MongoDB, one
// collection per spreadsheet. Store filters are already Mongo query
// documents and are passed through unchanged.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"sheetgql/internal/store"
)

// collection is the part of *mongo.Collection the store uses.
type collection interface {
	Find(ctx context.Context, filter any, opts ...*options.FindOptions) (*mongo.Cursor, error)
	FindOne(ctx context.Context, filter any, opts ...*options.FindOneOptions) *mongo.SingleResult
	CountDocuments(ctx context.Context, filter any, opts ...*options.CountOptions) (int64, error)
}

// Provider maps spreadsheet ids to collections of one database.
type Provider struct {
	db     *mongo.Database
	prefix string
}

// New creates a Provider. Collection names are prefix + spreadsheet id.
func New(db *mongo.Database, prefix string) *Provider {
	return &Provider{db: db, prefix: prefix}
}

// Connect dials uri, verifies the primary is reachable and returns the client
// with a Provider over database.
func Connect(ctx context.Context, uri, database, prefix string, timeout time.Duration) (*mongo.Client, *Provider, error) {
	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("failed to ping mongo: %w", err)
	}
	return client, New(client.Database(database), prefix), nil
}

// Collection implements store.Provider.
func (p *Provider) Collection(_ context.Context, spreadsheetID string) (store.Store, error) {
	return &Collection{coll: p.db.Collection(p.prefix + spreadsheetID)}, nil
}

// Collection reads one spreadsheet's documents.
type Collection struct {
	coll collection
}

func sortDocument(fields []store.SortField) bson.D {
	if len(fields) == 0 {
		return nil
	}
	sort := make(bson.D, 0, len(fields))
	for _, f := range fields {
		dir := 1
		if f.Direction == store.Descending {
			dir = -1
		}
		sort = append(sort, bson.E{Key: f.Path, Value: dir})
	}
	return sort
}

func findOptions(opts store.FindOptions) *options.FindOptions {
	fo := options.Find()
	if opts.Skip != nil && *opts.Skip > 0 {
		fo.SetSkip(*opts.Skip)
	}
	if opts.Limit != nil && *opts.Limit > 0 {
		fo.SetLimit(*opts.Limit)
	}
	if sort := sortDocument(opts.Sort); sort != nil {
		fo.SetSort(sort)
	}
	if len(opts.Projection) > 0 {
		fo.SetProjection(opts.Projection)
	}
	return fo
}

func findOneOptions(opts store.FindOptions) *options.FindOneOptions {
	fo := options.FindOne()
	if opts.Skip != nil && *opts.Skip > 0 {
		fo.SetSkip(*opts.Skip)
	}
	if sort := sortDocument(opts.Sort); sort != nil {
		fo.SetSort(sort)
	}
	if len(opts.Projection) > 0 {
		fo.SetProjection(opts.Projection)
	}
	return fo
}

func filterDocument(filter store.Filter) any {
	if filter == nil {
		return bson.M{}
	}
	return filter
}

// Find implements store.Store.
func (c *Collection) Find(ctx context.Context, filter store.Filter, opts store.FindOptions) ([]store.Document, error) {
	cursor, err := c.coll.Find(ctx, filterDocument(filter), findOptions(opts))
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	var raw []bson.M
	if err := cursor.All(ctx, &raw); err != nil {
		return nil, fmt.Errorf("failed to read documents: %w", err)
	}
	docs := make([]store.Document, len(raw))
	for i, doc := range raw {
		docs[i] = normalize(doc).(map[string]any)
	}
	return docs, nil
}

// FindOne implements store.Store.
func (c *Collection) FindOne(ctx context.Context, filter store.Filter, opts store.FindOptions) (store.Document, error) {
	var raw bson.M
	err := c.coll.FindOne(ctx, filterDocument(filter), findOneOptions(opts)).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query document: %w", err)
	}
	return normalize(raw).(map[string]any), nil
}

// CountDocuments implements store.Store.
func (c *Collection) CountDocuments(ctx context.Context, filter store.Filter) (int64, error) {
	n, err := c.coll.CountDocuments(ctx, filterDocument(filter))
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return n, nil
}

// normalize converts driver types into the plain Go values the rest of the
// service works with.
func normalize(v any) any {
	switch t := v.(type) {
	case bson.M:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[k] = normalize(child)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[k] = normalize(child)
		}
		return out
	case bson.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			out[e.Key] = normalize(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = normalize(child)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = normalize(child)
		}
		return out
	case primitive.DateTime:
		return t.Time().UTC()
	case primitive.ObjectID:
		return t.Hex()
	case primitive.Decimal128:
		return t.String()
	case int32:
		return int64(t)
	}
	return v
}
