package docmatch

import (
	"encoding/json"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/cast"

	"sheetgql/internal/datefmt"
)

// typeRank orders values of different kinds, roughly following the BSON
// comparison order.
func typeRank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case string:
		return 2
	case map[string]any:
		return 3
	case bool:
		return 5
	case time.Time, *time.Time:
		return 6
	}
	if isNumber(v) {
		return 1
	}
	if isArray(v) {
		return 4
	}
	return 7
}

func isNumber(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64, json.Number:
		return true
	}
	return false
}

func isArray(v any) bool {
	if v == nil {
		return false
	}
	kind := reflect.TypeOf(v).Kind()
	return kind == reflect.Slice || kind == reflect.Array
}

// toSlice returns the elements of a slice value.
func toSlice(v any) ([]any, bool) {
	if s, ok := v.([]any); ok {
		return s, true
	}
	if !isArray(v) {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func toTime(v any) (time.Time, bool) {
	switch v := v.(type) {
	case time.Time:
		return v, true
	case *time.Time:
		if v == nil {
			return time.Time{}, false
		}
		return *v, true
	case string:
		t, err := datefmt.Parse(v)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	}
	return time.Time{}, false
}

// compare orders two values. ok is false when the values are not
// comparable, e.g. a number and a string.
func compare(a, b any) (int, bool) {
	if isNumber(a) && isNumber(b) {
		x, errA := cast.ToFloat64E(a)
		y, errB := cast.ToFloat64E(b)
		if errA != nil || errB != nil {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	}

	_, aTime := a.(time.Time)
	_, aTimePtr := a.(*time.Time)
	_, bTime := b.(time.Time)
	_, bTimePtr := b.(*time.Time)
	if aTime || aTimePtr || bTime || bTimePtr {
		x, okA := toTime(a)
		y, okB := toTime(b)
		if !okA || !okB {
			return 0, false
		}
		return x.Compare(y), true
	}

	switch x := a.(type) {
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y), true
		}
	case bool:
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0, true
			case !x:
				return -1, true
			}
			return 1, true
		}
	case nil:
		if b == nil {
			return 0, true
		}
	}
	return 0, false
}

func equal(a, b any) bool {
	if c, ok := compare(a, b); ok {
		return c == 0
	}
	if typeRank(a) != typeRank(b) {
		return false
	}
	return reflect.DeepEqual(normalize(a), normalize(b))
}

// normalize converts slices and nested maps to []any and map[string]any
// so structurally equal values compare equal.
func normalize(v any) any {
	switch v := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			out[k] = normalize(val)
		}
		return out
	}
	if s, ok := toSlice(v); ok {
		out := make([]any, len(s))
		for i, val := range s {
			out[i] = normalize(val)
		}
		return out
	}
	if isNumber(v) {
		return cast.ToFloat64(v)
	}
	return v
}

// sortCompare orders values for sorting: comparable values by value,
// everything else by kind.
func sortCompare(a, b any) int {
	if c, ok := compare(a, b); ok {
		return c
	}
	ra, rb := typeRank(a), typeRank(b)
	switch {
	case ra < rb:
		return -1
	case ra > rb:
		return 1
	}
	return 0
}
