// Package docmatch evaluates Mongo-style filters, sorts and projections
// against in-memory documents. It backs the in-memory store and the local
// filtering of batched relationship loads.
package docmatch

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/spf13/cast"

	"sheetgql/internal/translate"
)

// Match reports whether doc satisfies filter.
func Match(doc map[string]any, filter map[string]any) (bool, error) {
	for key, cond := range filter {
		ok, err := matchKey(doc, key, cond)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func matchKey(doc map[string]any, key string, cond any) (bool, error) {
	switch key {
	case "$and", "$or", "$nor":
		clauses, ok := toSlice(cond)
		if !ok {
			return false, &translate.InvalidFilterArgumentError{Operator: key, Reason: "expected a list of filters"}
		}
		return matchLogical(doc, key, clauses)
	}
	if strings.HasPrefix(key, "$") {
		return false, &translate.InvalidFilterArgumentError{Operator: key, Reason: "not supported at document level"}
	}

	value, found := Lookup(doc, key)
	if ops, ok := operatorMap(cond); ok {
		return matchOperators(key, value, found, ops)
	}
	return matchEq(value, cond), nil
}

func matchLogical(doc map[string]any, op string, clauses []any) (bool, error) {
	for _, clause := range clauses {
		sub, ok := clause.(map[string]any)
		if !ok {
			return false, &translate.InvalidFilterArgumentError{Operator: op, Reason: fmt.Sprintf("clause %v is not a filter", clause)}
		}
		matched, err := Match(doc, sub)
		if err != nil {
			return false, err
		}
		switch {
		case op == "$and" && !matched:
			return false, nil
		case op == "$or" && matched:
			return true, nil
		case op == "$nor" && matched:
			return false, nil
		}
	}
	return op != "$or", nil
}

// operatorMap returns cond when it is an operator expression, i.e. a map
// whose keys all start with $.
func operatorMap(cond any) (map[string]any, bool) {
	m, ok := cond.(map[string]any)
	if !ok || len(m) == 0 {
		return nil, false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return nil, false
		}
	}
	return m, true
}

// Lookup resolves a dotted path. Arrays met along the way fan out: the
// result is the list of values found in their elements.
func Lookup(doc map[string]any, path string) (any, bool) {
	return lookup(doc, strings.Split(path, "."))
}

func lookup(v any, segments []string) (any, bool) {
	if len(segments) == 0 {
		return v, true
	}
	switch cur := v.(type) {
	case map[string]any:
		next, ok := cur[segments[0]]
		if !ok {
			return nil, false
		}
		return lookup(next, segments[1:])
	}
	if elems, ok := toSlice(v); ok {
		var out []any
		for _, elem := range elems {
			if found, ok := lookup(elem, segments); ok {
				out = append(out, found)
			}
		}
		return out, len(out) > 0
	}
	return nil, false
}

// matchEq implements equality, where an array value also matches when any
// of its elements is equal.
func matchEq(value, target any) bool {
	if equal(value, target) {
		return true
	}
	if elems, ok := toSlice(value); ok {
		for _, elem := range elems {
			if equal(elem, target) {
				return true
			}
		}
	}
	return false
}

// anyElement applies fn to value, or to each element when value is an
// array.
func anyElement(value any, fn func(any) bool) bool {
	if elems, ok := toSlice(value); ok {
		for _, elem := range elems {
			if fn(elem) {
				return true
			}
		}
		return false
	}
	return fn(value)
}

func matchOperators(path string, value any, found bool, ops map[string]any) (bool, error) {
	for op, operand := range ops {
		ok, err := matchOperator(path, value, found, op, operand, ops)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func invalid(path, op, reason string) error {
	return &translate.InvalidFilterArgumentError{Path: path, Operator: op, Reason: reason}
}

func matchOperator(path string, value any, found bool, op string, operand any, ops map[string]any) (bool, error) {
	switch op {
	case "$eq":
		return matchEq(value, operand), nil
	case "$ne":
		return !matchEq(value, operand), nil
	case "$gt", "$gte", "$lt", "$lte":
		if !found {
			return false, nil
		}
		return anyElement(value, func(v any) bool {
			c, ok := compare(v, operand)
			if !ok {
				return false
			}
			switch op {
			case "$gt":
				return c > 0
			case "$gte":
				return c >= 0
			case "$lt":
				return c < 0
			}
			return c <= 0
		}), nil
	case "$in", "$nin":
		set, ok := toSlice(operand)
		if !ok {
			return false, invalid(path, op, "expected a list")
		}
		in := false
		for _, candidate := range set {
			if matchEq(value, candidate) {
				in = true
				break
			}
		}
		return in == (op == "$in"), nil
	case "$exists":
		want := cast.ToBool(operand)
		return found == want, nil
	case "$regex":
		re, err := compileRegex(operand, ops["$options"])
		if err != nil {
			return false, invalid(path, op, err.Error())
		}
		return anyElement(value, func(v any) bool {
			s, ok := v.(string)
			return ok && re.MatchString(s)
		}), nil
	case "$options":
		if _, ok := ops["$regex"]; !ok {
			return false, invalid(path, op, "requires $regex")
		}
		return true, nil
	case "$not":
		sub, ok := operatorMap(operand)
		if !ok {
			return false, invalid(path, op, "expected an operator expression")
		}
		matched, err := matchOperators(path, value, found, sub)
		return !matched, err
	case "$all":
		want, ok := toSlice(operand)
		if !ok {
			return false, invalid(path, op, "expected a list")
		}
		if _, isArr := toSlice(value); !isArr || len(want) == 0 {
			return false, nil
		}
		for _, w := range want {
			if !matchEq(value, w) {
				return false, nil
			}
		}
		return true, nil
	case "$size":
		n, err := cast.ToIntE(operand)
		if err != nil {
			return false, invalid(path, op, "expected an integer")
		}
		elems, ok := toSlice(value)
		return ok && len(elems) == n, nil
	case "$elemMatch":
		return matchElem(path, value, operand)
	case "$type":
		name, err := cast.ToStringE(operand)
		if err != nil {
			return false, invalid(path, op, "expected a type name")
		}
		return found && typeName(value) == name, nil
	case "$mod":
		return matchMod(path, value, operand)
	default:
		return false, invalid(path, op, "not supported")
	}
}

func matchElem(path string, value, operand any) (bool, error) {
	elems, ok := toSlice(value)
	if !ok {
		return false, nil
	}
	cond, ok := operand.(map[string]any)
	if !ok {
		return false, invalid(path, "$elemMatch", "expected an object")
	}
	ops, isOps := operatorMap(cond)
	for _, elem := range elems {
		var matched bool
		var err error
		if isOps {
			matched, err = matchOperators(path, elem, true, ops)
		} else if doc, isDoc := elem.(map[string]any); isDoc {
			matched, err = Match(doc, cond)
		}
		if err != nil {
			return false, err
		}
		if matched {
			return true, nil
		}
	}
	return false, nil
}

func matchMod(path string, value, operand any) (bool, error) {
	args, ok := toSlice(operand)
	if !ok || len(args) != 2 {
		return false, invalid(path, "$mod", "expected [divisor, remainder]")
	}
	divisor, err := cast.ToInt64E(args[0])
	if err != nil || divisor == 0 {
		return false, invalid(path, "$mod", "invalid divisor")
	}
	remainder, err := cast.ToInt64E(args[1])
	if err != nil {
		return false, invalid(path, "$mod", "invalid remainder")
	}
	return anyElement(value, func(v any) bool {
		if !isNumber(v) {
			return false
		}
		return cast.ToInt64(v)%divisor == remainder
	}), nil
}

func compileRegex(pattern, options any) (*regexp.Regexp, error) {
	expr, err := cast.ToStringE(pattern)
	if err != nil {
		return nil, fmt.Errorf("pattern must be a string")
	}
	var flags string
	for _, o := range cast.ToString(options) {
		switch o {
		case 'i', 'm', 's':
			flags += string(o)
		case 'x', 'u':
		default:
			return nil, fmt.Errorf("unsupported regex option %q", o)
		}
	}
	if flags != "" {
		expr = "(?" + flags + ")" + expr
	}
	return regexp.Compile(expr)
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "bool"
	case map[string]any:
		return "object"
	}
	switch typeRank(v) {
	case 1:
		switch v.(type) {
		case float32, float64:
			return "double"
		}
		return "int"
	case 4:
		return "array"
	case 6:
		return "date"
	}
	return "unknown"
}
