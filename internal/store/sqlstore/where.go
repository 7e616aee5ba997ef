package sqlstore

import (
	"encoding/json"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/spf13/cast"

	"sheetgql/internal/datefmt"
	"sheetgql/internal/store"
	"sheetgql/internal/translate"
)

// jsonPath renders a dotted document path as a quoted MySQL JSON path, e.g.
// author.email -> $."author"."email". Paths are always bound as arguments.
func jsonPath(path string) string {
	var b strings.Builder
	b.WriteString("$")
	for _, segment := range strings.Split(path, ".") {
		b.WriteString(`."`)
		b.WriteString(strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(segment))
		b.WriteString(`"`)
	}
	return b.String()
}

// jsonArg encodes a filter operand so it can be compared as JSON through
// CAST(? AS JSON).
func jsonArg(path, op string, v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", &translate.InvalidFilterArgumentError{Path: path, Operator: op, Reason: err.Error()}
	}
	return string(data), nil
}

// not negates a predicate, treating NULL (a missing path) as false first.
type not struct {
	pred sq.Sqlizer
}

func (n not) ToSql() (string, []any, error) {
	sql, args, err := n.pred.ToSql()
	if err != nil {
		return "", nil, err
	}
	return "NOT COALESCE((" + sql + "), FALSE)", args, nil
}

func toSlice(v any) ([]any, bool) {
	if s, ok := v.([]any); ok {
		return s, true
	}
	if v == nil {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// scope is the JSON value predicates read from: the doc column, or one
// array element inside an $elemMatch. depth numbers nested element aliases.
type scope struct {
	col   string
	depth int
	field string
}

var docScope = scope{col: "doc"}

// buildFilter turns a translated filter into a WHERE predicate over the doc
// column. It returns nil for an empty filter.
func buildFilter(filter store.Filter) (sq.Sqlizer, error) {
	return docScope.filter(filter)
}

func (s scope) path(path string) string {
	if path == "" {
		return "$"
	}
	return jsonPath(path)
}

// name is the field reported in errors.
func (s scope) name(path string) string {
	switch {
	case s.field == "":
		return path
	case path == "":
		return s.field
	}
	return s.field + "." + path
}

func (s scope) extract() string {
	return "JSON_EXTRACT(" + s.col + ", ?)"
}

func (s scope) filter(filter store.Filter) (sq.Sqlizer, error) {
	if len(filter) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(filter))
	for key := range filter {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	and := make(sq.And, 0, len(keys))
	for _, key := range keys {
		pred, err := s.key(key, filter[key])
		if err != nil {
			return nil, err
		}
		and = append(and, pred)
	}
	if len(and) == 1 {
		return and[0], nil
	}
	return and, nil
}

func (s scope) key(key string, cond any) (sq.Sqlizer, error) {
	switch key {
	case "$and", "$or", "$nor":
		return s.logical(key, cond)
	}
	if strings.HasPrefix(key, translate.OperatorPrefix) {
		return nil, &translate.InvalidFilterArgumentError{Path: s.field, Operator: key, Reason: "not supported at document level"}
	}
	if ops, ok := operatorMap(cond); ok {
		return s.operators(key, ops)
	}
	return s.operator(key, "$eq", cond, nil)
}

func (s scope) logical(op string, cond any) (sq.Sqlizer, error) {
	clauses, ok := toSlice(cond)
	if !ok {
		return nil, &translate.InvalidFilterArgumentError{Path: s.field, Operator: op, Reason: "expected a list of filters"}
	}
	preds := make([]sq.Sqlizer, 0, len(clauses))
	for _, clause := range clauses {
		sub, ok := clause.(map[string]any)
		if !ok {
			return nil, &translate.InvalidFilterArgumentError{Path: s.field, Operator: op, Reason: fmt.Sprintf("clause %v is not a filter", clause)}
		}
		pred, err := s.filter(sub)
		if err != nil {
			return nil, err
		}
		if pred == nil {
			pred = sq.Expr("TRUE")
		}
		preds = append(preds, pred)
	}
	switch op {
	case "$and":
		return sq.And(preds), nil
	case "$or":
		return sq.Or(preds), nil
	default:
		return not{pred: sq.Or(preds)}, nil
	}
}

func operatorMap(cond any) (map[string]any, bool) {
	m, ok := cond.(map[string]any)
	if !ok || len(m) == 0 {
		return nil, false
	}
	for key := range m {
		if !strings.HasPrefix(key, translate.OperatorPrefix) {
			return nil, false
		}
	}
	return m, true
}

func (s scope) operators(path string, ops map[string]any) (sq.Sqlizer, error) {
	keys := make([]string, 0, len(ops))
	for key := range ops {
		if key == "$options" {
			continue
		}
		keys = append(keys, key)
	}
	slices.Sort(keys)
	if len(keys) == 0 {
		return nil, &translate.InvalidFilterArgumentError{Path: s.name(path), Operator: "$options", Reason: "requires $regex"}
	}

	and := make(sq.And, 0, len(keys))
	for _, op := range keys {
		pred, err := s.operator(path, op, ops[op], ops)
		if err != nil {
			return nil, err
		}
		and = append(and, pred)
	}
	if len(and) == 1 {
		return and[0], nil
	}
	return and, nil
}

func temporal(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), true
	case *time.Time:
		if t != nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func hasTemporal(list []any) bool {
	for _, v := range list {
		if _, ok := temporal(v); ok {
			return true
		}
	}
	return false
}

// value is the JSON operand a stored value is compared with. Dates are
// stored as calendar dates on Date columns and as UTC instants with
// milliseconds on Datetime columns, so a time operand takes the layout
// matching the length of the stored value.
func (s scope) value(path, op, p string, operand any) (sq.Sqlizer, error) {
	if t, ok := temporal(operand); ok {
		date, _ := json.Marshal(t.Format(datefmt.DateLayout))
		instant, _ := json.Marshal(t.Format(datefmt.DatetimeLayout))
		return sq.Expr("CAST(IF(CHAR_LENGTH(JSON_UNQUOTE("+s.extract()+")) = ?, ?, ?) AS JSON)",
			p, len(datefmt.DateLayout), string(date), string(instant)), nil
	}
	arg, err := jsonArg(s.name(path), op, operand)
	if err != nil {
		return nil, err
	}
	return sq.Expr("CAST(? AS JSON)", arg), nil
}

// each expands a list operator holding times into one $eq per element.
func (s scope) each(path string, list []any) ([]sq.Sqlizer, error) {
	preds := make([]sq.Sqlizer, 0, len(list))
	for _, v := range list {
		pred, err := s.operator(path, "$eq", v, nil)
		if err != nil {
			return nil, err
		}
		preds = append(preds, pred)
	}
	return preds, nil
}

func (s scope) operator(path, op string, operand any, siblings map[string]any) (sq.Sqlizer, error) {
	p := s.path(path)
	extract := s.extract()
	invalid := func(reason string) error {
		return &translate.InvalidFilterArgumentError{Path: s.name(path), Operator: op, Reason: reason}
	}
	switch op {
	case "$eq":
		if operand == nil {
			return sq.Expr("("+extract+" IS NULL OR JSON_TYPE("+extract+") = 'NULL')", p, p), nil
		}
		v, err := s.value(path, op, p, operand)
		if err != nil {
			return nil, err
		}
		return sq.Expr("JSON_CONTAINS("+s.col+", ?, ?)", v, p), nil
	case "$ne":
		if operand == nil {
			return sq.Expr("JSON_TYPE("+extract+") <> 'NULL'", p), nil
		}
		eq, err := s.operator(path, "$eq", operand, nil)
		if err != nil {
			return nil, err
		}
		return not{pred: eq}, nil
	case "$gt", "$gte", "$lt", "$lte":
		v, err := s.value(path, op, p, operand)
		if err != nil {
			return nil, err
		}
		return sq.Expr(extract+" "+comparisons[op]+" ?", p, v), nil
	case "$in", "$nin":
		list, ok := toSlice(operand)
		if !ok {
			return nil, invalid("expected a list")
		}
		var in sq.Sqlizer
		if hasTemporal(list) {
			preds, err := s.each(path, list)
			if err != nil {
				return nil, err
			}
			in = sq.Or(preds)
		} else {
			arg, err := jsonArg(s.name(path), op, list)
			if err != nil {
				return nil, err
			}
			in = sq.Expr("JSON_OVERLAPS("+extract+", CAST(? AS JSON))", p, arg)
		}
		if op == "$nin" {
			return not{pred: in}, nil
		}
		return in, nil
	case "$all":
		list, ok := toSlice(operand)
		if !ok {
			return nil, invalid("expected a list")
		}
		if hasTemporal(list) {
			preds, err := s.each(path, list)
			if err != nil {
				return nil, err
			}
			return sq.And(preds), nil
		}
		arg, err := jsonArg(s.name(path), op, list)
		if err != nil {
			return nil, err
		}
		return sq.Expr("JSON_CONTAINS("+s.col+", CAST(? AS JSON), ?)", arg, p), nil
	case "$exists":
		exists := sq.Expr("JSON_CONTAINS_PATH("+s.col+", 'one', ?)", p)
		if cast.ToBool(operand) {
			return exists, nil
		}
		return not{pred: exists}, nil
	case "$size":
		n, err := cast.ToInt64E(operand)
		if err != nil {
			return nil, invalid("expected an integer")
		}
		return sq.Expr("(JSON_TYPE("+extract+") = 'ARRAY' AND JSON_LENGTH("+s.col+", ?) = ?)", p, p, n), nil
	case "$regex":
		pattern, err := cast.ToStringE(operand)
		if err != nil {
			return nil, invalid("expected a pattern")
		}
		matchType, err := regexMatchType(s.name(path), siblings["$options"])
		if err != nil {
			return nil, err
		}
		return sq.Expr("REGEXP_LIKE(JSON_UNQUOTE("+extract+"), ?, ?)", p, pattern, matchType), nil
	case "$not":
		if ops, ok := operatorMap(operand); ok {
			pred, err := s.operators(path, ops)
			if err != nil {
				return nil, err
			}
			return not{pred: pred}, nil
		}
		pred, err := s.operator(path, "$regex", operand, nil)
		if err != nil {
			return nil, err
		}
		return not{pred: pred}, nil
	case "$elemMatch":
		return s.elemMatch(path, operand)
	default:
		return nil, invalid("not supported by the SQL store")
	}
}

// elemMatch matches when one element of the array at path satisfies the
// condition. Elements are read through JSON_TABLE; an operator condition
// applies to the element itself, a field condition to the element's fields.
func (s scope) elemMatch(path string, operand any) (sq.Sqlizer, error) {
	cond, ok := operand.(map[string]any)
	if !ok {
		return nil, &translate.InvalidFilterArgumentError{Path: s.name(path), Operator: "$elemMatch", Reason: "expected an object"}
	}
	alias := fmt.Sprintf("elem%d", s.depth)
	elem := scope{col: alias + ".v", depth: s.depth + 1, field: s.name(path)}

	var pred sq.Sqlizer
	var err error
	if ops, isOps := operatorMap(cond); isOps {
		pred, err = elem.operators("", ops)
	} else {
		pred, err = elem.filter(cond)
	}
	if err != nil {
		return nil, err
	}
	if pred == nil {
		pred = sq.Expr("TRUE")
	}
	return sq.Expr("EXISTS (SELECT 1 FROM JSON_TABLE("+s.extract()+", '$[*]' COLUMNS (v JSON PATH '$')) AS "+alias+" WHERE ?)",
		s.path(path), pred), nil
}

var comparisons = map[string]string{"$gt": ">", "$gte": ">=", "$lt": "<", "$lte": "<="}

// regexMatchType maps Mongo regex options onto a REGEXP_LIKE match type.
func regexMatchType(path string, options any) (string, error) {
	opts := cast.ToString(options)
	matchType := "c"
	for _, o := range opts {
		switch o {
		case 'i':
			matchType += "i"
		case 'm':
			matchType += "m"
		case 's':
			matchType += "n"
		default:
			return "", &translate.InvalidFilterArgumentError{Path: path, Operator: "$options", Reason: fmt.Sprintf("unsupported option %q", o)}
		}
	}
	return matchType, nil
}
