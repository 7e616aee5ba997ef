// Package translate turns GraphQL filter, sort and paging arguments into
// store queries. Translation is pure and lenient: shapes it does not
// recognize are passed through unchanged for the store to judge.
package translate

import (
	"fmt"

	"github.com/spf13/cast"

	"sheetgql/internal/store"
)

// Args are the arguments of a find or findOne field.
type Args struct {
	Filter     any
	Sort       any
	Skip       *int64
	Limit      *int64
	Projection map[string]any
}

// TranslatedQuery is the store-native form of Args.
type TranslatedQuery struct {
	Filter  store.Filter
	Options store.FindOptions
}

// Translate converts Args into a store query. Absent options stay absent.
func Translate(args Args) TranslatedQuery {
	q := TranslatedQuery{
		Filter: TranslateFilter(args.Filter),
		Options: store.FindOptions{
			Skip:  args.Skip,
			Limit: args.Limit,
			Sort:  TranslateSort(args.Sort),
		},
	}
	if args.Projection != nil {
		q.Options.Projection = make(map[string]any, len(args.Projection))
		for key, value := range args.Projection {
			q.Options.Projection[FieldPath(key)] = value
		}
	}
	return q
}

// TranslateFilter converts a filter argument. Anything that is not an
// object yields an empty filter.
func TranslateFilter(filter any) store.Filter {
	if filter == nil {
		return store.Filter{}
	}
	out, ok := Classify(filter).render().(map[string]any)
	if !ok {
		return store.Filter{}
	}
	return out
}

// TranslateSort converts a sort argument of the form
// {fields: [...], order: [...]} into ordered sort fields. Missing order
// entries default to ascending.
func TranslateSort(sort any) []store.SortField {
	m, ok := sort.(map[string]any)
	if !ok {
		return nil
	}
	fields := toSlice(m["fields"])
	if len(fields) == 0 {
		return nil
	}
	order := toSlice(m["order"])

	out := make([]store.SortField, 0, len(fields))
	for i, f := range fields {
		name, err := cast.ToStringE(f)
		if err != nil || name == "" {
			continue
		}
		direction := store.Ascending
		if i < len(order) && cast.ToString(order[i]) == string(store.Descending) {
			direction = store.Descending
		}
		out = append(out, store.SortField{Path: FieldPath(name), Direction: direction})
	}
	return out
}

func toSlice(v any) []any {
	switch v := v.(type) {
	case []any:
		return v
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out
	case nil:
		return nil
	default:
		return []any{v}
	}
}

// FromGraphQLArgs reads Args from resolver arguments.
func FromGraphQLArgs(raw map[string]any) Args {
	args := Args{Filter: raw["filter"], Sort: raw["sort"]}
	if v, ok := raw["skip"]; ok && v != nil {
		if n, err := cast.ToInt64E(v); err == nil {
			args.Skip = &n
		}
	}
	if v, ok := raw["limit"]; ok && v != nil {
		if n, err := cast.ToInt64E(v); err == nil {
			args.Limit = &n
		}
	}
	if v, ok := raw["projection"].(map[string]any); ok {
		args.Projection = v
	}
	return args
}

// InvalidFilterArgumentError reports a filter a store cannot evaluate.
type InvalidFilterArgumentError struct {
	Path     string
	Operator string
	Reason   string
}

func (e *InvalidFilterArgumentError) Error() string {
	switch {
	case e.Operator != "" && e.Path != "":
		return fmt.Sprintf("invalid filter on %q: operator %s: %s", e.Path, e.Operator, e.Reason)
	case e.Operator != "":
		return fmt.Sprintf("invalid filter: operator %s: %s", e.Operator, e.Reason)
	default:
		return fmt.Sprintf("invalid filter on %q: %s", e.Path, e.Reason)
	}
}
