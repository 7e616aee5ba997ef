package typemap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sheetgql/internal/metadata"
	"sheetgql/internal/naming"
)

func TestMapping(t *testing.T) {
	docs := map[string]naming.DocNames{"author": {TypeName: "PostsAuthorDoc"}}
	authors := &metadata.RelationshipRef{TargetSheet: "Authors", TargetField: "_id", Operator: "eq"}

	tests := []struct {
		name     string
		col      Column
		output   string
		filter   string
		strategy Strategy
	}{
		{"string", Column{Schema: metadata.ColumnSchema{Name: "a", DataType: metadata.String}}, "String", StringOperatorInput, Passthrough},
		{"plain text", Column{Schema: metadata.ColumnSchema{Name: "a", DataType: metadata.PlainText}}, "String", StringOperatorInput, Passthrough},
		{"markdown", Column{Schema: metadata.ColumnSchema{Name: "a", DataType: metadata.Markdown}}, "String", StringOperatorInput, Passthrough},
		{"int", Column{Schema: metadata.ColumnSchema{Name: "a", DataType: metadata.Int}}, "Int", IntOperatorInput, Passthrough},
		{"float", Column{Schema: metadata.ColumnSchema{Name: "a", DataType: metadata.Float}}, "Float", FloatOperatorInput, Passthrough},
		{"boolean", Column{Schema: metadata.ColumnSchema{Name: "a", DataType: metadata.Boolean}}, "Boolean", BooleanOperatorInput, Passthrough},
		{"date", Column{Schema: metadata.ColumnSchema{Name: "a", DataType: metadata.Date}}, "Date", DateOperatorInput, DateFormat},
		{"datetime", Column{Schema: metadata.ColumnSchema{Name: "a", DataType: metadata.Datetime}}, "Datetime", DatetimeOperatorInput, DatetimeFormat},
		{"string list", Column{Schema: metadata.ColumnSchema{Name: "a", DataType: metadata.StringList}}, "[String]", StringArrayOperatorInput, Passthrough},
		{"json", Column{Schema: metadata.ColumnSchema{Name: "a", DataType: metadata.JSON}}, "JSON", "", Passthrough},
		{"document", Column{Schema: metadata.ColumnSchema{Name: "author", DataType: metadata.Document}, Docs: docs}, "PostsAuthorDoc", "", Document},
		{"id overrides datatype", Column{Schema: metadata.ColumnSchema{Name: "_id", DataType: metadata.Int}}, "ID!", StringOperatorInput, Passthrough},
		{"relationship", Column{Schema: metadata.ColumnSchema{Name: "authorId", DataType: metadata.String}, Relationship: authors}, "[Authors]", StringOperatorInput, Relationship},
	}

	mapper := New(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := mapper.OutputType(tt.col)
			require.NoError(t, err)
			assert.Equal(t, tt.output, out.String())

			filter, err := FilterInputType(tt.col)
			require.NoError(t, err)
			assert.Equal(t, tt.filter, filter)

			assert.Equal(t, tt.strategy, StrategyFor(tt.col))
		})
	}
}

func TestUnknownDataType(t *testing.T) {
	col := Column{Owner: "Posts", Schema: metadata.ColumnSchema{Name: "price", DataType: "Currency"}}

	_, err := New(nil).OutputType(col)
	var unknown *UnknownDataTypeError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "Posts", unknown.Sheet)
	assert.Equal(t, "price", unknown.Column)

	_, err = FilterInputType(col)
	require.ErrorAs(t, err, &unknown)
}

func TestDocumentWithoutNames(t *testing.T) {
	_, err := New(nil).OutputType(Column{Schema: metadata.ColumnSchema{Name: "d", DataType: metadata.Document}})
	assert.Error(t, err)
}

func TestDateArguments(t *testing.T) {
	args := DateArguments()
	names := make([]string, 0, len(args))
	for _, arg := range args {
		names = append(names, arg.Name)
	}
	assert.Equal(t, []string{"formatString", "fromNow", "difference", "locale", "zone"}, names)
}
