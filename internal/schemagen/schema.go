// Package schemagen synthesizes a GraphQL schema for a spreadsheet from its
// metadata. The output pairs the SDL with the bindings the resolver layer
// needs to execute it.
package schemagen

import (
	"fmt"

	"sheetgql/internal/metadata"
	"sheetgql/internal/naming"
	"sheetgql/internal/sdl"
	"sheetgql/internal/typemap"
)

// QueryTypeName is the query root of every synthesized schema.
const QueryTypeName = "Query"

// Field names of the generated connection, edge and sort types.
const (
	RowsField       = "rows"
	EdgesField      = "edges"
	TotalCountField = "totalCount"
	PageInfoField   = "pageInfo"
	RowField        = "row"
	NodeField       = "node"
	SortFieldsField = "fields"
	SortOrderField  = "order"
)

// Root field argument names.
const (
	ArgFilter = "filter"
	ArgLimit  = "limit"
	ArgSkip   = "skip"
	ArgSort   = "sort"
)

// SynthesisError stages.
const (
	StageNames         = "names"
	StageRelationships = "relationships"
	StageTypes         = "types"
	StageBuild         = "build"
	StageValidate      = "validate"
)

// SchemaSynthesisError reports why a spreadsheet has no usable schema.
type SchemaSynthesisError struct {
	SpreadsheetID string
	Stage         string
	Err           error
}

func (e *SchemaSynthesisError) Error() string {
	return fmt.Sprintf("schema synthesis for spreadsheet %s failed at %s: %v", e.SpreadsheetID, e.Stage, e.Err)
}

func (e *SchemaSynthesisError) Unwrap() error {
	return e.Err
}

// SheetBinding ties a sheet to the names generated for it.
type SheetBinding struct {
	Sheet metadata.SheetSchema
	Names naming.GeneratedNames
}

// RelationshipBinding is the resolved target of a relationship field.
type RelationshipBinding struct {
	Ref            metadata.RelationshipRef
	TargetTypeName string
}

// FieldBinding describes how an output field generated from a column is
// resolved.
type FieldBinding struct {
	TypeName     string
	Field        *sdl.Field
	Column       metadata.ColumnSchema
	Strategy     typemap.Strategy
	Relationship *RelationshipBinding
}

// Schema is the result of synthesis. It is immutable once returned.
type Schema struct {
	SpreadsheetID string
	Fingerprint   string
	Settings      metadata.Settings
	Document      *sdl.Document
	SDL           string
	Sheets        []SheetBinding
	Fields        []FieldBinding
}

// Sheet returns the binding of a sheet by its generated type name.
func (s *Schema) Sheet(typeName string) (SheetBinding, bool) {
	for _, sheet := range s.Sheets {
		if sheet.Names.TypeName == typeName {
			return sheet, true
		}
	}
	return SheetBinding{}, false
}

// Option customizes synthesis.
type Option func(*options)

type options struct {
	namer *naming.Namer
}

// WithNamer sets the Namer used to derive names.
func WithNamer(namer *naming.Namer) Option {
	return func(o *options) {
		if namer != nil {
			o.namer = namer
		}
	}
}

// Synthesize builds the schema of a spreadsheet. Any failure is returned as
// a *SchemaSynthesisError and no partial schema is produced.
func Synthesize(md *metadata.Metadata, opts ...Option) (*Schema, error) {
	o := options{namer: naming.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	g := newGenerator(md, o.namer)
	if err := g.run(); err != nil {
		return nil, err
	}
	return g.schema, nil
}
