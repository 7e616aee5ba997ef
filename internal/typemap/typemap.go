// Package typemap maps column datatypes to GraphQL output types, filter
// operator inputs and resolver strategies.
package typemap

import (
	"fmt"

	"sheetgql/internal/metadata"
	"sheetgql/internal/naming"
	"sheetgql/internal/sdl"
)

// Scalar and operator input names shared by every synthesized schema.
const (
	DateScalar     = "Date"
	DatetimeScalar = "Datetime"
	JSONScalar     = "JSON"

	StringOperatorInput      = "StringQueryOperatorInput"
	IntOperatorInput         = "IntQueryOperatorInput"
	FloatOperatorInput       = "FloatQueryOperatorInput"
	BooleanOperatorInput     = "BooleanQueryOperatorInput"
	DateOperatorInput        = "DateQueryOperatorInput"
	DatetimeOperatorInput    = "DatetimeQueryOperatorInput"
	StringArrayOperatorInput = "StringArrayQueryOperatorInput"
)

// Strategy selects how a field is resolved.
type Strategy int

const (
	Passthrough Strategy = iota
	DateFormat
	DatetimeFormat
	Relationship
	Document
)

func (s Strategy) String() string {
	switch s {
	case DateFormat:
		return "date"
	case DatetimeFormat:
		return "datetime"
	case Relationship:
		return "relationship"
	case Document:
		return "document"
	default:
		return "passthrough"
	}
}

// UnknownDataTypeError reports a column whose datatype is outside the closed
// enumeration.
type UnknownDataTypeError struct {
	Sheet    string
	Column   string
	DataType metadata.DataType
}

func (e *UnknownDataTypeError) Error() string {
	return fmt.Sprintf("unknown datatype %q for column %q of %s", e.DataType, e.Column, e.Sheet)
}

// Column is a column together with the context it is mapped in.
type Column struct {
	// Owner names the sheet or document the column belongs to.
	Owner  string
	Schema metadata.ColumnSchema
	// Relationship is set when the column references another sheet.
	Relationship *metadata.RelationshipRef
	// Docs are the document names of the owner.
	Docs map[string]naming.DocNames
}

// Mapper maps columns using a Namer for relationship target types.
type Mapper struct {
	namer *naming.Namer
}

// New creates a Mapper.
func New(namer *naming.Namer) *Mapper {
	if namer == nil {
		namer = naming.Default()
	}
	return &Mapper{namer: namer}
}

func (c Column) unknown() error {
	return &UnknownDataTypeError{Sheet: c.Owner, Column: c.Schema.Name, DataType: c.Schema.DataType}
}

// OutputType returns the GraphQL output type of a column.
func (m *Mapper) OutputType(c Column) (sdl.TypeRef, error) {
	if !c.Schema.DataType.Valid() {
		return sdl.TypeRef{}, c.unknown()
	}
	if c.Schema.Name == metadata.IDField {
		return sdl.NonNullOf(sdl.Named("ID")), nil
	}
	if c.Relationship != nil {
		return sdl.ListOf(sdl.Named(m.namer.TypeName(c.Relationship.TargetSheet))), nil
	}

	switch c.Schema.DataType {
	case metadata.String, metadata.PlainText, metadata.Markdown:
		return sdl.Named("String"), nil
	case metadata.Int:
		return sdl.Named("Int"), nil
	case metadata.Float:
		return sdl.Named("Float"), nil
	case metadata.Boolean:
		return sdl.Named("Boolean"), nil
	case metadata.Date:
		return sdl.Named(DateScalar), nil
	case metadata.Datetime:
		return sdl.Named(DatetimeScalar), nil
	case metadata.StringList:
		return sdl.ListOf(sdl.Named("String")), nil
	case metadata.JSON:
		return sdl.Named(JSONScalar), nil
	case metadata.Document:
		doc, ok := c.Docs[c.Schema.Name]
		if !ok {
			return sdl.TypeRef{}, fmt.Errorf("no document names for column %q of %s", c.Schema.Name, c.Owner)
		}
		return sdl.Named(doc.TypeName), nil
	}
	return sdl.TypeRef{}, c.unknown()
}

// FilterInputType returns the operator input type used to filter a column.
// An empty name means the column has no operators of its own.
func FilterInputType(c Column) (string, error) {
	if !c.Schema.DataType.Valid() {
		return "", c.unknown()
	}
	if c.Schema.Name == metadata.IDField {
		return StringOperatorInput, nil
	}

	switch c.Schema.DataType {
	case metadata.String, metadata.PlainText, metadata.Markdown:
		return StringOperatorInput, nil
	case metadata.Int:
		return IntOperatorInput, nil
	case metadata.Float:
		return FloatOperatorInput, nil
	case metadata.Boolean:
		return BooleanOperatorInput, nil
	case metadata.Date:
		return DateOperatorInput, nil
	case metadata.Datetime:
		return DatetimeOperatorInput, nil
	case metadata.StringList:
		return StringArrayOperatorInput, nil
	case metadata.Document, metadata.JSON:
		return "", nil
	}
	return "", c.unknown()
}

// StrategyFor returns the resolver strategy of a column.
func StrategyFor(c Column) Strategy {
	if c.Schema.Name == metadata.IDField {
		return Passthrough
	}
	if c.Relationship != nil {
		return Relationship
	}
	switch c.Schema.DataType {
	case metadata.Date:
		return DateFormat
	case metadata.Datetime:
		return DatetimeFormat
	case metadata.Document:
		return Document
	}
	return Passthrough
}

// Date field argument names.
const (
	ArgFormatString = "formatString"
	ArgFromNow      = "fromNow"
	ArgDifference   = "difference"
	ArgLocale       = "locale"
	ArgZone         = "zone"
)

// DateArguments returns the arguments accepted by Date and Datetime fields.
func DateArguments() []sdl.Argument {
	return []sdl.Argument{
		{Name: ArgFormatString, Type: sdl.Named("String")},
		{Name: ArgFromNow, Type: sdl.Named("Boolean")},
		{Name: ArgDifference, Type: sdl.Named("String")},
		{Name: ArgLocale, Type: sdl.Named("String")},
		{Name: ArgZone, Type: sdl.Named("String")},
	}
}
