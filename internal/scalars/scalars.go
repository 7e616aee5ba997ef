// Package scalars defines the custom GraphQL scalars shared by every
// synthesized schema.
package scalars

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"

	"sheetgql/internal/datefmt"
	"sheetgql/internal/typemap"
)

// Date returns the Date scalar. Field resolvers render values through
// datefmt, so serialization passes rendered strings and differences through
// and only formats raw times. Input values parse to time.Time at midnight UTC.
func Date() *graphql.Scalar {
	return graphql.NewScalar(graphql.ScalarConfig{
		Name:        typemap.DateScalar,
		Description: "Calendar date rendered as YYYY-MM-DD unless formatted by field arguments.",
		Serialize: func(value interface{}) interface{} {
			return serializeTemporal(value, datefmt.DateLayout)
		},
		ParseValue: func(value interface{}) interface{} {
			return parseTemporal(value, true)
		},
		ParseLiteral: func(valueAST ast.Value) interface{} {
			if sv, ok := valueAST.(*ast.StringValue); ok {
				return parseTemporal(sv.Value, true)
			}
			return nil
		},
	})
}

// Datetime returns the Datetime scalar.
func Datetime() *graphql.Scalar {
	return graphql.NewScalar(graphql.ScalarConfig{
		Name:        typemap.DatetimeScalar,
		Description: "Instant rendered as ISO-8601 with milliseconds unless formatted by field arguments.",
		Serialize: func(value interface{}) interface{} {
			return serializeTemporal(value, datefmt.DatetimeLayout)
		},
		ParseValue: func(value interface{}) interface{} {
			return parseTemporal(value, false)
		},
		ParseLiteral: func(valueAST ast.Value) interface{} {
			if sv, ok := valueAST.(*ast.StringValue); ok {
				return parseTemporal(sv.Value, false)
			}
			return nil
		},
	})
}

func serializeTemporal(value interface{}, layout string) interface{} {
	switch v := value.(type) {
	case string, int64, int:
		return v
	case time.Time:
		return v.UTC().Format(layout)
	case *time.Time:
		if v == nil {
			return nil
		}
		return v.UTC().Format(layout)
	default:
		return nil
	}
}

func parseTemporal(value interface{}, dateOnly bool) interface{} {
	if s, ok := value.(string); ok && dateOnly {
		if parsed, err := time.Parse(datefmt.DateLayout, s); err == nil {
			return parsed
		}
	}
	t, err := datefmt.Parse(value)
	if err != nil {
		return nil
	}
	if dateOnly {
		t = t.UTC()
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
	return t
}

// JSON returns the JSON scalar. Values are emitted as native JSON, not as
// encoded strings.
func JSON() *graphql.Scalar {
	return graphql.NewScalar(graphql.ScalarConfig{
		Name:        typemap.JSONScalar,
		Description: "Arbitrary JSON value.",
		Serialize: func(value interface{}) interface{} {
			if raw, ok := value.([]byte); ok {
				var decoded interface{}
				if err := json.Unmarshal(raw, &decoded); err != nil {
					return string(raw)
				}
				return decoded
			}
			return value
		},
		ParseValue: func(value interface{}) interface{} {
			return value
		},
		ParseLiteral: parseJSONLiteral,
	})
}

func parseJSONLiteral(valueAST ast.Value) interface{} {
	switch v := valueAST.(type) {
	case *ast.StringValue:
		return v.Value
	case *ast.BooleanValue:
		return v.Value
	case *ast.IntValue:
		if n, err := strconv.ParseInt(v.Value, 10, 64); err == nil {
			return n
		}
		return nil
	case *ast.FloatValue:
		if f, err := strconv.ParseFloat(v.Value, 64); err == nil {
			return f
		}
		return nil
	case *ast.EnumValue:
		return v.Value
	case *ast.ListValue:
		out := make([]interface{}, len(v.Values))
		for i, item := range v.Values {
			out[i] = parseJSONLiteral(item)
		}
		return out
	case *ast.ObjectValue:
		out := make(map[string]interface{}, len(v.Fields))
		for _, field := range v.Fields {
			out[field.Name.Value] = parseJSONLiteral(field.Value)
		}
		return out
	default:
		return nil
	}
}
