package docmatch

import (
	"slices"
	"strings"

	"github.com/spf13/cast"

	"sheetgql/internal/store"
)

// Sort orders docs in place by the sort fields, stably.
func Sort(docs []store.Document, fields []store.SortField) {
	if len(fields) == 0 {
		return
	}
	slices.SortStableFunc(docs, func(a, b store.Document) int {
		for _, f := range fields {
			av, _ := Lookup(a, f.Path)
			bv, _ := Lookup(b, f.Path)
			c := sortCompare(av, bv)
			if f.Direction == store.Descending {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return 0
	})
}

// Page applies skip and limit. A limit of zero or less means no limit.
func Page(docs []store.Document, skip, limit *int64) []store.Document {
	if skip != nil && *skip > 0 {
		if *skip >= int64(len(docs)) {
			return nil
		}
		docs = docs[*skip:]
	}
	if limit != nil && *limit > 0 && *limit < int64(len(docs)) {
		docs = docs[:*limit]
	}
	return docs
}

// Project applies a projection. Truthy values select fields to include,
// falsy values fields to exclude; _id is kept unless excluded explicitly.
func Project(doc store.Document, projection map[string]any) store.Document {
	if len(projection) == 0 {
		return doc
	}

	include := false
	for path, v := range projection {
		if path != store.IDKey && cast.ToBool(v) {
			include = true
			break
		}
	}

	if !include {
		out := deepCopy(doc)
		for path, v := range projection {
			if !cast.ToBool(v) {
				removePath(out, strings.Split(path, "."))
			}
		}
		return out
	}

	out := store.Document{}
	if v, ok := projection[store.IDKey]; !ok || cast.ToBool(v) {
		if id, ok := doc[store.IDKey]; ok {
			out[store.IDKey] = id
		}
	}
	for path, v := range projection {
		if !cast.ToBool(v) {
			continue
		}
		copyPath(doc, out, strings.Split(path, "."))
	}
	return out
}

func copyPath(src, dst map[string]any, segments []string) {
	v, ok := src[segments[0]]
	if !ok {
		return
	}
	if len(segments) == 1 {
		dst[segments[0]] = v
		return
	}
	child, ok := v.(map[string]any)
	if !ok {
		return
	}
	next, ok := dst[segments[0]].(map[string]any)
	if !ok {
		next = map[string]any{}
		dst[segments[0]] = next
	}
	copyPath(child, next, segments[1:])
}

func removePath(doc map[string]any, segments []string) {
	if len(segments) == 1 {
		delete(doc, segments[0])
		return
	}
	if child, ok := doc[segments[0]].(map[string]any); ok {
		removePath(child, segments[1:])
	}
}

func deepCopy(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		if child, ok := v.(map[string]any); ok {
			out[k] = deepCopy(child)
			continue
		}
		out[k] = v
	}
	return out
}
