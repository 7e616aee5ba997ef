// Package sdl is a typed intermediate representation of a GraphQL schema
// document. Definitions are assembled through a Builder, which rejects
// duplicate names as they are added, then printed and validated with
// gqlparser.
package sdl

import "strings"

// Kind is the kind of a top-level definition.
type Kind int

const (
	Object Kind = iota
	InputObject
	Enum
	Scalar
)

func (k Kind) String() string {
	switch k {
	case Object:
		return "type"
	case InputObject:
		return "input"
	case Enum:
		return "enum"
	case Scalar:
		return "scalar"
	default:
		return "unknown"
	}
}

// TypeRef references a named type, possibly wrapped in lists and non-null
// markers.
type TypeRef struct {
	// Name is set for named types and empty for lists.
	Name string
	// Elem is the element type of a list.
	Elem    *TypeRef
	NonNull bool
}

// Named references a named type.
func Named(name string) TypeRef {
	return TypeRef{Name: name}
}

// ListOf references a list of elem.
func ListOf(elem TypeRef) TypeRef {
	return TypeRef{Elem: &elem}
}

// NonNullOf returns t marked non-null.
func NonNullOf(t TypeRef) TypeRef {
	t.NonNull = true
	return t
}

// IsList reports whether the outermost wrapper is a list.
func (t TypeRef) IsList() bool {
	return t.Elem != nil
}

// NamedType returns the innermost named type.
func (t TypeRef) NamedType() string {
	for t.Elem != nil {
		t = *t.Elem
	}
	return t.Name
}

func (t TypeRef) String() string {
	var b strings.Builder
	if t.Elem != nil {
		b.WriteString("[")
		b.WriteString(t.Elem.String())
		b.WriteString("]")
	} else {
		b.WriteString(t.Name)
	}
	if t.NonNull {
		b.WriteString("!")
	}
	return b.String()
}

// Argument is an argument of an object field.
type Argument struct {
	Name string
	Type TypeRef
}

// Field is a field of an object or input object.
type Field struct {
	Name        string
	Description string
	Type        TypeRef
	Args        []Argument
	// Source is the store key the field reads. It is not printed.
	Source string
}

// Definition is a top-level type definition.
type Definition struct {
	Kind        Kind
	Name        string
	Description string
	Fields      []*Field
	Values      []string
}

// Field looks up a field by name.
func (d *Definition) Field(name string) *Field {
	for _, f := range d.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// Document is a complete schema document.
type Document struct {
	QueryType   string
	Definitions []*Definition
}

// Definition looks up a definition by name.
func (d *Document) Definition(name string) *Definition {
	for _, def := range d.Definitions {
		if def.Name == name {
			return def
		}
	}
	return nil
}
