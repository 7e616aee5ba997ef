package translate

import (
	"strings"
	"time"

	"sheetgql/internal/naming"
)

// OperatorPrefix marks operator keys in store queries.
const OperatorPrefix = "$"

// reservedOperators are the operator names rewritten with OperatorPrefix.
var reservedOperators = map[string]bool{
	"eq": true, "gt": true, "gte": true, "in": true, "lt": true, "lte": true,
	"ne": true, "nin": true, "and": true, "not": true, "nor": true, "or": true,
	"exists": true, "type": true, "regex": true, "options": true, "all": true,
	"elemMatch": true, "size": true, "mod": true, "text": true, "where": true,
}

// IsOperator reports whether name is a reserved operator name.
func IsOperator(name string) bool {
	return reservedOperators[name]
}

// Node is a classified filter value.
type Node interface {
	render() any
}

// Leaf is an opaque value: a scalar, a time, a slice or nil. Leaves are
// copied to the store query untouched.
type Leaf struct {
	Value any
}

// Operator is a reserved operator applied to its operand.
type Operator struct {
	Name    string
	Operand Node
}

// Field constrains a document path.
type Field struct {
	Path  string
	Value Node
}

// Object is a query document. Members are Operator or Field nodes.
type Object struct {
	Members []Node
}

func (l Leaf) render() any {
	return l.Value
}

func (o Operator) render() any {
	return o.Operand.render()
}

func (f Field) render() any {
	return f.Value.render()
}

func (o Object) render() any {
	out := make(map[string]any, len(o.Members))
	for _, m := range o.Members {
		switch m := m.(type) {
		case Operator:
			out[OperatorPrefix+m.Name] = m.render()
		case Field:
			out[m.Path] = m.render()
		}
	}
	return out
}

type position int

const (
	// fieldPosition holds document paths, e.g. the top level of a filter.
	fieldPosition position = iota
	// operatorPosition holds operators, e.g. the value of a field.
	operatorPosition
)

// Classify turns a raw filter argument into a Node tree.
func Classify(v any) Node {
	return classify(v, fieldPosition)
}

func classify(v any, pos position) Node {
	switch v := v.(type) {
	case nil:
		return Leaf{}
	case time.Time, *time.Time:
		return Leaf{Value: v}
	case map[string]any:
		return classifyObject(v, pos)
	default:
		// Slices, arrays and any other shape stay opaque.
		return Leaf{Value: v}
	}
}

func classifyObject(m map[string]any, pos position) Node {
	obj := Object{Members: make([]Node, 0, len(m))}
	for key, value := range m {
		switch {
		case strings.HasPrefix(key, OperatorPrefix):
			name := strings.TrimPrefix(key, OperatorPrefix)
			obj.Members = append(obj.Members, Operator{Name: name, Operand: classify(value, operatorPosition)})
		case pos == operatorPosition && IsOperator(key):
			obj.Members = append(obj.Members, Operator{Name: key, Operand: classify(value, operatorPosition)})
		default:
			obj.Members = append(obj.Members, Field{Path: FieldPath(key), Value: classify(value, operatorPosition)})
		}
	}
	return obj
}

// FieldPath converts a generated field name into a dotted store path:
// every separator becomes a dot and every segment is unescaped.
func FieldPath(name string) string {
	return strings.Join(naming.SplitPath(name), ".")
}
