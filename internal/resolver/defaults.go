package resolver

import (
	"encoding/json"
	"fmt"

	"github.com/graphql-go/graphql"
	"github.com/spf13/cast"
	"go.opentelemetry.io/otel/attribute"

	"sheetgql/internal/datefmt"
	"sheetgql/internal/loader"
	"sheetgql/internal/metadata"
	"sheetgql/internal/schemagen"
	"sheetgql/internal/store"
	"sheetgql/internal/translate"
	"sheetgql/internal/typemap"
)

// DefaultLimit caps find results when the query sets no limit.
const DefaultLimit = 1000

// Options configure the default resolvers.
type Options struct {
	// DefaultLimit applies when a find has no limit argument. Zero means
	// DefaultLimit; a negative value disables the default.
	DefaultLimit int64
	// MaxLimit clamps every find limit. Zero disables clamping.
	MaxLimit int64
	// DefaultZone and DefaultLocale are the last fallbacks for date fields.
	DefaultZone   string
	DefaultLocale string
}

func (o Options) limit(requested *int64) *int64 {
	var limit *int64
	switch {
	case requested != nil:
		limit = store.Int64(*requested)
	case o.DefaultLimit > 0:
		limit = store.Int64(o.DefaultLimit)
	case o.DefaultLimit == 0:
		limit = store.Int64(DefaultLimit)
	}
	if o.MaxLimit <= 0 {
		return limit
	}
	// A zero limit means no limit to the stores.
	if limit == nil || *limit == 0 || *limit > o.MaxLimit {
		limit = store.Int64(o.MaxLimit)
	}
	return limit
}

type defaults struct {
	opts     Options
	settings metadata.Settings
}

// DefaultRegistry registers the standard resolvers of a synthesized schema.
func DefaultRegistry(schema *schemagen.Schema, opts Options) *Registry {
	reg := NewRegistry()
	d := &defaults{opts: opts, settings: schema.Settings}

	for _, sb := range schema.Sheets {
		names := sb.Names
		reg.Register(schemagen.QueryTypeName, names.FindFieldName, d.find(sb))
		reg.Register(schemagen.QueryTypeName, names.FindOneFieldName, d.findOne(sb))

		reg.Register(names.ConnectionName, schemagen.RowsField, FieldResolverFunc(resolveEdges))
		reg.Register(names.ConnectionName, schemagen.EdgesField, FieldResolverFunc(resolveEdges))
		reg.Register(names.ConnectionName, schemagen.TotalCountField, FieldResolverFunc(resolveTotalCount))
		reg.Register(names.ConnectionName, schemagen.PageInfoField, FieldResolverFunc(resolvePageInfo))
		reg.Register(names.EdgeName, schemagen.RowField, FieldResolverFunc(resolveRow))
		reg.Register(names.EdgeName, schemagen.NodeField, FieldResolverFunc(resolveRow))
	}

	for _, fb := range schema.Fields {
		switch fb.Strategy {
		case typemap.DateFormat:
			reg.Register(fb.TypeName, fb.Field.Name, d.date(fb, datefmt.Date))
		case typemap.DatetimeFormat:
			reg.Register(fb.TypeName, fb.Field.Name, d.date(fb, datefmt.Datetime))
		case typemap.Relationship:
			reg.Register(fb.TypeName, fb.Field.Name, relationship(fb))
		case typemap.Document:
			reg.Register(fb.TypeName, fb.Field.Name, document(fb.Column.Name))
		default:
			reg.Register(fb.TypeName, fb.Field.Name, sourceResolver(fb.Column.Name))
		}
	}
	return reg
}

// query translates the arguments of a root field and scopes the filter to
// the sheet.
func (d *defaults) query(sb schemagen.SheetBinding, args map[string]any) (translate.TranslatedQuery, error) {
	q := translate.Translate(translate.FromGraphQLArgs(args))
	if q.Options.Skip != nil && *q.Options.Skip < 0 {
		return q, fmt.Errorf("skip must not be negative, got %d", *q.Options.Skip)
	}
	if q.Options.Limit != nil && *q.Options.Limit < 0 {
		return q, fmt.Errorf("limit must not be negative, got %d", *q.Options.Limit)
	}
	if q.Filter == nil {
		q.Filter = store.Filter{}
	}
	if !sb.Sheet.IsUnion() {
		q.Filter[store.SheetKey] = sb.Sheet.Title
	}
	return q, nil
}

func (d *defaults) find(sb schemagen.SheetBinding) FieldResolverFunc {
	return func(p graphql.ResolveParams) (any, error) {
		scope, err := ScopeFromContext(p.Context)
		if err != nil {
			return nil, err
		}
		q, err := d.query(sb, p.Args)
		if err != nil {
			return nil, err
		}
		q.Options.Limit = d.opts.limit(q.Options.Limit)
		return NewConnection(scope.Store, sb.Sheet.Title, q.Filter, q.Options), nil
	}
}

func (d *defaults) findOne(sb schemagen.SheetBinding) FieldResolverFunc {
	return func(p graphql.ResolveParams) (any, error) {
		scope, err := ScopeFromContext(p.Context)
		if err != nil {
			return nil, err
		}
		q, err := d.query(sb, p.Args)
		if err != nil {
			return nil, err
		}

		ctx, span := startResolverSpan(p.Context, "graphql.resolve.find_one",
			attribute.String("sheet.title", sb.Sheet.Title),
			attribute.String("graphql.field.name", p.Info.FieldName),
		)
		doc, err := scope.Store.FindOne(ctx, q.Filter, q.Options)
		rows := 0
		if doc != nil {
			rows = 1
		}
		finishResolverSpan(span, err, rows)
		if err != nil {
			return nil, err
		}
		if doc == nil {
			return nil, nil
		}
		return doc, nil
	}
}

func resolveEdges(p graphql.ResolveParams) (any, error) {
	conn, ok := p.Source.(*Connection)
	if !ok {
		return nil, fmt.Errorf("rows: unexpected parent %T", p.Source)
	}
	return conn.Edges(p.Context)
}

func resolveTotalCount(p graphql.ResolveParams) (any, error) {
	conn, ok := p.Source.(*Connection)
	if !ok {
		return nil, fmt.Errorf("totalCount: unexpected parent %T", p.Source)
	}
	return conn.TotalCount(p.Context)
}

func resolvePageInfo(graphql.ResolveParams) (any, error) {
	return pageInfo(), nil
}

func resolveRow(p graphql.ResolveParams) (any, error) {
	edge, ok := p.Source.(*Edge)
	if !ok {
		return nil, fmt.Errorf("row: unexpected parent %T", p.Source)
	}
	return edge.Row, nil
}

// date renders a Date or Datetime column. Zone and locale fall back from
// the field argument to the column, the spreadsheet settings, the request
// scope and finally the configured defaults.
func (d *defaults) date(fb schemagen.FieldBinding, kind datefmt.Kind) FieldResolverFunc {
	column := fb.Column
	return func(p graphql.ResolveParams) (any, error) {
		doc, ok := p.Source.(map[string]any)
		if !ok {
			return nil, nil
		}
		var scopeZone, scopeLocale string
		if scope, err := ScopeFromContext(p.Context); err == nil {
			scopeZone, scopeLocale = scope.Zone, scope.Locale
		}

		opts := datefmt.Options{
			FormatString: cast.ToString(p.Args[typemap.ArgFormatString]),
			FromNow:      cast.ToBool(p.Args[typemap.ArgFromNow]),
			Difference:   cast.ToString(p.Args[typemap.ArgDifference]),
			Zone: firstNonEmpty(cast.ToString(p.Args[typemap.ArgZone]),
				column.Zone, d.settings.Zone, scopeZone, d.opts.DefaultZone),
			Locale: firstNonEmpty(cast.ToString(p.Args[typemap.ArgLocale]),
				column.Locale, d.settings.Locale, scopeLocale, d.opts.DefaultLocale),
		}
		return datefmt.Render(doc[column.Name], kind, opts)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// document passes a nested document through. Documents stored as JSON text
// are decoded first.
func document(column string) FieldResolverFunc {
	return func(p graphql.ResolveParams) (any, error) {
		doc, ok := p.Source.(map[string]any)
		if !ok {
			return nil, nil
		}
		switch v := doc[column].(type) {
		case string:
			if v == "" {
				return nil, nil
			}
			var nested map[string]any
			if err := json.Unmarshal([]byte(v), &nested); err != nil {
				return nil, fmt.Errorf("column %q does not hold a document: %w", column, err)
			}
			return nested, nil
		default:
			return v, nil
		}
	}
}

// relationship queues a lookup on the request loader and hands graphql-go
// a thunk, so sibling rows are resolved in one store call.
func relationship(fb schemagen.FieldBinding) FieldResolverFunc {
	column := fb.Column.Name
	ref := fb.Relationship.Ref
	return func(p graphql.ResolveParams) (any, error) {
		doc, ok := p.Source.(map[string]any)
		if !ok {
			return nil, nil
		}
		q, ok := loader.RelationshipQuery(column, ref, doc[column])
		if !ok {
			return nil, nil
		}
		scope, err := ScopeFromContext(p.Context)
		if err != nil {
			return nil, err
		}
		if scope.Loader == nil {
			return nil, fmt.Errorf("relationship %q: request scope has no loader", column)
		}
		thunk := scope.Loader.Load(p.Context, q)
		return func() (interface{}, error) {
			docs, err := thunk()
			if err != nil {
				return nil, err
			}
			return docs, nil
		}, nil
	}
}
