package xlsxload

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"sheetgql/internal/datefmt"
	"sheetgql/internal/metadata"
)

// inferCells picks the narrowest datatype every value parses as.
func inferCells(values []string) metadata.DataType {
	if len(values) == 0 {
		return metadata.String
	}
	candidates := []struct {
		dt metadata.DataType
		ok func(string) bool
	}{
		{metadata.Boolean, func(s string) bool { _, err := parseBool(s); return err == nil }},
		{metadata.Int, func(s string) bool { _, err := parseInt(s); return err == nil }},
		{metadata.Float, func(s string) bool { _, err := parseFloat(s); return err == nil }},
		{metadata.Date, func(s string) bool { _, err := parseTemporal(s, metadata.Date); return err == nil }},
		{metadata.Datetime, func(s string) bool { _, err := parseTemporal(s, metadata.Datetime); return err == nil }},
		{metadata.JSON, looksLikeJSON},
	}
	for _, c := range candidates {
		if all(values, c.ok) {
			return c.dt
		}
	}
	return metadata.String
}

func all(values []string, ok func(string) bool) bool {
	for _, v := range values {
		if !ok(v) {
			return false
		}
	}
	return true
}

func parseBool(s string) (bool, error) {
	switch strings.ToUpper(s) {
	case "TRUE":
		return true, nil
	case "FALSE":
		return false, nil
	}
	return false, fmt.Errorf("%q is not TRUE or FALSE", s)
}

// parseInt accepts base-10 integers only, so "0x10" and "010" stay text.
func parseInt(s string) (int64, error) {
	if len(s) > 1 && s[0] == '0' {
		return 0, fmt.Errorf("%q has a leading zero", s)
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not an integer", s)
	}
	return n, nil
}

func parseFloat(s string) (float64, error) {
	if len(s) > 1 && s[0] == '0' && s[1] != '.' {
		return 0, fmt.Errorf("%q has a leading zero", s)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, fmt.Errorf("%q is not a number", s)
	}
	return f, nil
}

// parseTemporal accepts calendar dates for Date and any layout datefmt
// reads for Datetime.
func parseTemporal(s string, dt metadata.DataType) (time.Time, error) {
	if dt == metadata.Date {
		t, err := time.Parse(datefmt.DateLayout, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("%q is not a date", s)
		}
		return t, nil
	}
	if _, err := parseFloat(s); err == nil {
		return time.Time{}, fmt.Errorf("%q is not a datetime", s)
	}
	return datefmt.Parse(s)
}

func looksLikeJSON(s string) bool {
	if !strings.HasPrefix(s, "{") && !strings.HasPrefix(s, "[") {
		return false
	}
	return json.Valid([]byte(s))
}

// inferDocument derives a document schema from decoded JSON objects. Keys
// are ordered by first appearance, and alphabetically within one object.
func inferDocument(objects []any) metadata.DocumentSchema {
	var doc metadata.DocumentSchema
	var order []string
	values := make(map[string][]any)
	for _, o := range objects {
		m, ok := o.(map[string]any)
		if !ok {
			continue
		}
		for _, key := range sortedKeys(m) {
			if _, seen := values[key]; !seen {
				order = append(order, key)
				values[key] = nil
			}
			if m[key] != nil {
				values[key] = append(values[key], m[key])
			}
		}
	}

	for _, key := range order {
		dt := inferJSON(values[key])
		doc.Fields = append(doc.Fields, metadata.ColumnSchema{Name: key, DataType: dt})
		if dt == metadata.Document {
			if doc.Docs == nil {
				doc.Docs = make(map[string]metadata.DocumentSchema)
			}
			doc.Docs[key] = inferDocument(values[key])
		}
	}
	return doc
}

// inferJSON types the decoded values of one document key.
func inferJSON(values []any) metadata.DataType {
	if len(values) == 0 {
		return metadata.JSON
	}
	var kinds []metadata.DataType
	for _, v := range values {
		kinds = append(kinds, jsonKind(v))
	}
	first := kinds[0]
	for _, k := range kinds[1:] {
		switch {
		case k == first:
		case first == metadata.Int && k == metadata.Float, first == metadata.Float && k == metadata.Int:
			first = metadata.Float
		default:
			return metadata.JSON
		}
	}
	return first
}

func jsonKind(v any) metadata.DataType {
	switch v := v.(type) {
	case bool:
		return metadata.Boolean
	case int64:
		return metadata.Int
	case float64:
		return metadata.Float
	case string:
		if _, err := parseTemporal(v, metadata.Date); err == nil {
			return metadata.Date
		}
		return metadata.String
	case map[string]any:
		return metadata.Document
	case []any:
		for _, e := range v {
			if _, ok := e.(string); !ok {
				return metadata.JSON
			}
		}
		return metadata.StringList
	}
	return metadata.JSON
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
