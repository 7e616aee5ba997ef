package sdl

import (
	"bytes"
	"fmt"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/formatter"
)

// Print renders a document as SDL text.
func Print(doc *Document) string {
	var buf bytes.Buffer
	formatter.NewFormatter(&buf).FormatSchemaDocument(toAST(doc))
	return buf.String()
}

// Validate parses and validates SDL text, returning the loaded schema.
func Validate(name, src string) (*ast.Schema, error) {
	schema, err := gqlparser.LoadSchema(&ast.Source{Name: name, Input: src})
	if err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	return schema, nil
}

func toAST(doc *Document) *ast.SchemaDocument {
	out := &ast.SchemaDocument{
		Schema: ast.SchemaDefinitionList{{
			OperationTypes: ast.OperationTypeDefinitionList{{
				Operation: ast.Query,
				Type:      doc.QueryType,
			}},
		}},
	}
	for _, def := range doc.Definitions {
		out.Definitions = append(out.Definitions, definitionToAST(def))
	}
	return out
}

func definitionToAST(def *Definition) *ast.Definition {
	out := &ast.Definition{
		Kind:        astKind(def.Kind),
		Name:        def.Name,
		Description: def.Description,
	}
	for _, field := range def.Fields {
		fd := &ast.FieldDefinition{
			Name:        field.Name,
			Description: field.Description,
			Type:        typeToAST(field.Type),
		}
		for _, arg := range field.Args {
			fd.Arguments = append(fd.Arguments, &ast.ArgumentDefinition{
				Name: arg.Name,
				Type: typeToAST(arg.Type),
			})
		}
		out.Fields = append(out.Fields, fd)
	}
	for _, value := range def.Values {
		out.EnumValues = append(out.EnumValues, &ast.EnumValueDefinition{Name: value})
	}
	return out
}

func typeToAST(t TypeRef) *ast.Type {
	var out *ast.Type
	if t.Elem != nil {
		out = ast.ListType(typeToAST(*t.Elem), nil)
	} else {
		out = ast.NamedType(t.Name, nil)
	}
	out.NonNull = t.NonNull
	return out
}

func astKind(k Kind) ast.DefinitionKind {
	switch k {
	case InputObject:
		return ast.InputObject
	case Enum:
		return ast.Enum
	case Scalar:
		return ast.Scalar
	default:
		return ast.Object
	}
}
