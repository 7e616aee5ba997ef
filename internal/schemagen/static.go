package schemagen

import (
	"sheetgql/internal/sdl"
	"sheetgql/internal/typemap"
)

const (
	pageInfoName      = "PageInfo"
	sortOrderEnumName = "SortOrderEnum"
	staticSource      = "static definitions"
)

// Sort directions.
const (
	SortASC  = "ASC"
	SortDESC = "DESC"
)

// operatorInput describes one of the shared query operator inputs.
type operatorInput struct {
	name   string
	scalar string
	// ordered adds range operators.
	ordered bool
	// text adds pattern operators.
	text bool
	// array adds array operators and makes eq match elements.
	array bool
}

var operatorInputs = []operatorInput{
	{name: typemap.StringOperatorInput, scalar: "String", ordered: true, text: true},
	{name: typemap.IntOperatorInput, scalar: "Int", ordered: true},
	{name: typemap.FloatOperatorInput, scalar: "Float", ordered: true},
	{name: typemap.BooleanOperatorInput, scalar: "Boolean"},
	{name: typemap.DateOperatorInput, scalar: typemap.DateScalar, ordered: true},
	{name: typemap.DatetimeOperatorInput, scalar: typemap.DatetimeScalar, ordered: true},
	{name: typemap.StringArrayOperatorInput, scalar: "String", text: true, array: true},
}

func (op operatorInput) fields() []*sdl.Field {
	scalar := sdl.Named(op.scalar)
	list := sdl.ListOf(scalar)
	fields := []*sdl.Field{
		{Name: "eq", Type: scalar},
		{Name: "ne", Type: scalar},
		{Name: "in", Type: list},
		{Name: "nin", Type: list},
	}
	if op.ordered {
		fields = append(fields,
			&sdl.Field{Name: "gt", Type: scalar},
			&sdl.Field{Name: "gte", Type: scalar},
			&sdl.Field{Name: "lt", Type: scalar},
			&sdl.Field{Name: "lte", Type: scalar},
		)
	}
	if op.text {
		fields = append(fields,
			&sdl.Field{Name: "regex", Type: sdl.Named("String")},
			&sdl.Field{Name: "options", Type: sdl.Named("String")},
		)
	}
	if op.array {
		fields = append(fields,
			&sdl.Field{Name: "all", Type: list},
			&sdl.Field{Name: "size", Type: sdl.Named("Int")},
			&sdl.Field{Name: "elemMatch", Type: sdl.Named(typemap.StringOperatorInput)},
		)
	} else {
		fields = append(fields, &sdl.Field{Name: "not", Type: sdl.Named(op.name)})
	}
	return append(fields, &sdl.Field{Name: "exists", Type: sdl.Named("Boolean")})
}

// emitStatic appends the definitions shared unmodified by every schema.
func (g *generator) emitStatic() error {
	for _, scalar := range []string{typemap.DateScalar, typemap.DatetimeScalar, typemap.JSONScalar} {
		if _, err := g.b.Define(sdl.Scalar, scalar, staticSource); err != nil {
			return err
		}
	}

	order, err := g.b.Define(sdl.Enum, sortOrderEnumName, staticSource)
	if err != nil {
		return err
	}
	for _, v := range []string{SortASC, SortDESC} {
		if err := g.b.AddValue(order, v, staticSource); err != nil {
			return err
		}
	}

	pageInfo, err := g.b.Define(sdl.Object, pageInfoName, staticSource)
	if err != nil {
		return err
	}
	for _, f := range []*sdl.Field{
		{Name: "hasNextPage", Type: sdl.NonNullOf(sdl.Named("Boolean"))},
		{Name: "hasPreviousPage", Type: sdl.NonNullOf(sdl.Named("Boolean"))},
		{Name: "startCursor", Type: sdl.Named("String")},
		{Name: "endCursor", Type: sdl.Named("String")},
	} {
		if err := g.b.AddField(pageInfo, f, staticSource); err != nil {
			return err
		}
	}

	for _, op := range operatorInputs {
		def, err := g.b.Define(sdl.InputObject, op.name, staticSource)
		if err != nil {
			return err
		}
		for _, f := range op.fields() {
			if err := g.b.AddField(def, f, staticSource); err != nil {
				return err
			}
		}
	}
	return nil
}
