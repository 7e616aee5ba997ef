package sdl

import (
	"fmt"

	"sheetgql/internal/naming"
)

// Builder assembles a Document. Every type, field and enum value is checked
// against the names already added, so a collision is reported at the point
// where it is introduced.
type Builder struct {
	doc     *Document
	tracker *naming.CollisionTracker
	byName  map[string]*Definition
}

// NewBuilder creates a builder whose document uses queryType as the query
// root.
func NewBuilder(queryType string) *Builder {
	return &Builder{
		doc:     &Document{QueryType: queryType},
		tracker: naming.NewCollisionTracker(),
		byName:  make(map[string]*Definition),
	}
}

// Define adds an empty definition. source describes where the name came
// from and appears in collision errors.
func (b *Builder) Define(kind Kind, name, source string) (*Definition, error) {
	if !naming.IsValidName(name) {
		return nil, fmt.Errorf("%s %q generated for %s is not a valid GraphQL name", kind, name, source)
	}
	if err := b.tracker.RegisterType(name, source); err != nil {
		return nil, err
	}
	def := &Definition{Kind: kind, Name: name}
	b.doc.Definitions = append(b.doc.Definitions, def)
	b.byName[name] = def
	return def, nil
}

// AddField appends a field to an object or input object definition.
func (b *Builder) AddField(def *Definition, field *Field, source string) error {
	if def.Kind != Object && def.Kind != InputObject {
		return fmt.Errorf("cannot add field %q to %s %s", field.Name, def.Kind, def.Name)
	}
	if !naming.IsValidName(field.Name) {
		return fmt.Errorf("field %q of %s generated for %s is not a valid GraphQL name", field.Name, def.Name, source)
	}
	if def.Kind == InputObject && len(field.Args) > 0 {
		return fmt.Errorf("input field %s.%s cannot take arguments", def.Name, field.Name)
	}
	if err := b.tracker.RegisterField(def.Name, field.Name, source); err != nil {
		return err
	}
	def.Fields = append(def.Fields, field)
	return nil
}

// AddValue appends a value to an enum definition.
func (b *Builder) AddValue(def *Definition, value, source string) error {
	if def.Kind != Enum {
		return fmt.Errorf("cannot add enum value %q to %s %s", value, def.Kind, def.Name)
	}
	if !naming.IsValidName(value) {
		return fmt.Errorf("enum value %q of %s generated for %s is not a valid GraphQL name", value, def.Name, source)
	}
	if err := b.tracker.RegisterField(def.Name, value, source); err != nil {
		return err
	}
	def.Values = append(def.Values, value)
	return nil
}

// Lookup returns a definition added earlier.
func (b *Builder) Lookup(name string) (*Definition, bool) {
	def, ok := b.byName[name]
	return def, ok
}

// Document returns the assembled document after checking that every
// referenced type is defined.
func (b *Builder) Document() (*Document, error) {
	if _, ok := b.byName[b.doc.QueryType]; !ok {
		return nil, fmt.Errorf("query type %q is not defined", b.doc.QueryType)
	}
	for _, def := range b.doc.Definitions {
		for _, field := range def.Fields {
			if err := b.checkRef(def.Name+"."+field.Name, field.Type); err != nil {
				return nil, err
			}
			for _, arg := range field.Args {
				if err := b.checkRef(def.Name+"."+field.Name+"("+arg.Name+")", arg.Type); err != nil {
					return nil, err
				}
			}
		}
	}
	return b.doc, nil
}

func (b *Builder) checkRef(where string, t TypeRef) error {
	name := t.NamedType()
	if isBuiltinScalar(name) {
		return nil
	}
	if _, ok := b.byName[name]; !ok {
		return fmt.Errorf("%s references undefined type %q", where, name)
	}
	return nil
}

func isBuiltinScalar(name string) bool {
	switch name {
	case "String", "Int", "Float", "Boolean", "ID":
		return true
	}
	return false
}
