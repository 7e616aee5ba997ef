package resolver

import (
	"fmt"

	"github.com/graphql-go/graphql"

	"sheetgql/internal/scalars"
	"sheetgql/internal/schemagen"
	"sheetgql/internal/sdl"
	"sheetgql/internal/typemap"
)

// Bind builds an executable graphql-go schema from a synthesized schema.
// Fields with a resolver in reg use it; every other field reads its source
// key from a map parent.
func Bind(schema *schemagen.Schema, reg *Registry) (graphql.Schema, error) {
	if schema == nil || schema.Document == nil {
		return graphql.Schema{}, fmt.Errorf("resolver: schema has no document")
	}
	b := &binder{doc: schema.Document, reg: reg, types: builtinTypes()}
	if err := b.declare(); err != nil {
		return graphql.Schema{}, err
	}
	if err := b.checkRefs(); err != nil {
		return graphql.Schema{}, err
	}

	query, ok := b.types[b.doc.QueryType].(*graphql.Object)
	if !ok {
		return graphql.Schema{}, fmt.Errorf("resolver: query type %q is not an object", b.doc.QueryType)
	}
	return graphql.NewSchema(graphql.SchemaConfig{
		Query: query,
		Types: b.declared,
	})
}

type binder struct {
	doc      *sdl.Document
	reg      *Registry
	types    map[string]graphql.Type
	declared []graphql.Type
}

func builtinTypes() map[string]graphql.Type {
	return map[string]graphql.Type{
		"Int":     graphql.Int,
		"Float":   graphql.Float,
		"String":  graphql.String,
		"Boolean": graphql.Boolean,
		"ID":      graphql.ID,
	}
}

func customScalar(name string) (*graphql.Scalar, bool) {
	switch name {
	case typemap.DateScalar:
		return scalars.Date(), true
	case typemap.DatetimeScalar:
		return scalars.Datetime(), true
	case typemap.JSONScalar:
		return scalars.JSON(), true
	}
	return nil, false
}

// declare creates every named type. Field lists are thunks so definitions
// may reference each other in any order.
func (b *binder) declare() error {
	for _, def := range b.doc.Definitions {
		if _, dup := b.types[def.Name]; dup {
			return fmt.Errorf("resolver: type %q declared twice", def.Name)
		}
		var t graphql.Type
		switch def.Kind {
		case sdl.Scalar:
			scalar, ok := customScalar(def.Name)
			if !ok {
				return fmt.Errorf("resolver: no implementation for scalar %q", def.Name)
			}
			t = scalar
		case sdl.Enum:
			t = b.enum(def)
		case sdl.InputObject:
			t = b.inputObject(def)
		case sdl.Object:
			t = b.object(def)
		default:
			return fmt.Errorf("resolver: unsupported definition kind %s for %q", def.Kind, def.Name)
		}
		b.types[def.Name] = t
		b.declared = append(b.declared, t)
	}
	return nil
}

func (b *binder) checkRefs() error {
	check := func(owner string, ref sdl.TypeRef) error {
		if _, ok := b.types[ref.NamedType()]; !ok {
			return fmt.Errorf("resolver: %s references unknown type %q", owner, ref.NamedType())
		}
		return nil
	}
	for _, def := range b.doc.Definitions {
		for _, f := range def.Fields {
			owner := def.Name + "." + f.Name
			if err := check(owner, f.Type); err != nil {
				return err
			}
			for _, arg := range f.Args {
				if err := check(owner+"("+arg.Name+")", arg.Type); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (b *binder) typeOf(ref sdl.TypeRef) graphql.Type {
	var t graphql.Type
	if ref.Elem != nil {
		t = graphql.NewList(b.typeOf(*ref.Elem))
	} else {
		t = b.types[ref.Name]
	}
	if ref.NonNull {
		t = graphql.NewNonNull(t)
	}
	return t
}

func (b *binder) enum(def *sdl.Definition) *graphql.Enum {
	values := make(graphql.EnumValueConfigMap, len(def.Values))
	for _, v := range def.Values {
		values[v] = &graphql.EnumValueConfig{Value: v}
	}
	return graphql.NewEnum(graphql.EnumConfig{
		Name:        def.Name,
		Description: def.Description,
		Values:      values,
	})
}

func (b *binder) inputObject(def *sdl.Definition) *graphql.InputObject {
	return graphql.NewInputObject(graphql.InputObjectConfig{
		Name:        def.Name,
		Description: def.Description,
		Fields: graphql.InputObjectConfigFieldMapThunk(func() graphql.InputObjectConfigFieldMap {
			fields := make(graphql.InputObjectConfigFieldMap, len(def.Fields))
			for _, f := range def.Fields {
				fields[f.Name] = &graphql.InputObjectFieldConfig{
					Type:        b.typeOf(f.Type),
					Description: f.Description,
				}
			}
			return fields
		}),
	})
}

func (b *binder) object(def *sdl.Definition) *graphql.Object {
	return graphql.NewObject(graphql.ObjectConfig{
		Name:        def.Name,
		Description: def.Description,
		Fields: graphql.FieldsThunk(func() graphql.Fields {
			fields := make(graphql.Fields, len(def.Fields))
			for _, f := range def.Fields {
				fields[f.Name] = b.field(def.Name, f)
			}
			return fields
		}),
	})
}

func (b *binder) field(typeName string, f *sdl.Field) *graphql.Field {
	field := &graphql.Field{
		Name:        f.Name,
		Type:        b.typeOf(f.Type),
		Description: f.Description,
	}
	if len(f.Args) > 0 {
		field.Args = make(graphql.FieldConfigArgument, len(f.Args))
		for _, arg := range f.Args {
			field.Args[arg.Name] = &graphql.ArgumentConfig{Type: b.typeOf(arg.Type)}
		}
	}
	if r, ok := b.reg.Lookup(typeName, f.Name); ok {
		field.Resolve = r.Resolve
	} else {
		field.Resolve = sourceResolver(sourceKey(f)).Resolve
	}
	return field
}

func sourceKey(f *sdl.Field) string {
	if f.Source != "" {
		return f.Source
	}
	return f.Name
}

// sourceResolver reads key from a map parent, falling back to graphql-go's
// default resolution for other parents.
func sourceResolver(key string) FieldResolverFunc {
	return func(p graphql.ResolveParams) (any, error) {
		if doc, ok := p.Source.(map[string]any); ok {
			return doc[key], nil
		}
		return graphql.DefaultResolveFn(p)
	}
}
