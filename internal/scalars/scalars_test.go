package scalars

import (
	"testing"
	"time"

	"github.com/graphql-go/graphql/language/ast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateScalar(t *testing.T) {
	scalar := Date()

	assert.Equal(t, "2024-01-15", scalar.Serialize(time.Date(2024, 1, 15, 23, 30, 0, 0, time.UTC)))
	assert.Equal(t, "Monday", scalar.Serialize("Monday"), "rendered values pass through")
	assert.Equal(t, int64(-3), scalar.Serialize(int64(-3)))
	assert.Nil(t, scalar.Serialize(3.5))

	parsed := scalar.ParseValue("2024-01-02")
	require.IsType(t, time.Time{}, parsed)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), parsed)

	truncated := scalar.ParseLiteral(&ast.StringValue{Value: "2024-01-02T15:04:05Z"})
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), truncated)

	assert.Nil(t, scalar.ParseValue("not-a-date"))
	assert.Nil(t, scalar.ParseLiteral(&ast.IntValue{Value: "1"}))
}

func TestDatetimeScalar(t *testing.T) {
	scalar := Datetime()

	when := time.Date(2018, 4, 5, 12, 30, 4, 0, time.UTC)
	assert.Equal(t, "2018-04-05T12:30:04.000Z", scalar.Serialize(when))

	parsed := scalar.ParseLiteral(&ast.StringValue{Value: "2018-04-05T08:30:04-04:00"})
	require.IsType(t, time.Time{}, parsed)
	assert.True(t, when.Equal(parsed.(time.Time)))
}

func TestJSONScalar(t *testing.T) {
	scalar := JSON()

	doc := map[string]interface{}{"a": []interface{}{1, "x"}}
	assert.Equal(t, doc, scalar.Serialize(doc))
	assert.Equal(t, map[string]interface{}{"k": true}, scalar.Serialize([]byte(`{"k":true}`)))

	literal := scalar.ParseLiteral(&ast.ObjectValue{Fields: []*ast.ObjectField{
		{Name: &ast.Name{Value: "n"}, Value: &ast.IntValue{Value: "5"}},
		{Name: &ast.Name{Value: "l"}, Value: &ast.ListValue{Values: []ast.Value{
			&ast.StringValue{Value: "a"},
			&ast.BooleanValue{Value: false},
		}}},
	}})
	assert.Equal(t, map[string]interface{}{"n": int64(5), "l": []interface{}{"a", false}}, literal)
}
