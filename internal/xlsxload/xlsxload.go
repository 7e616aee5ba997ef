// Package xlsxload reads an Excel workbook into spreadsheet metadata and the
// documents the query layer serves. It backs the development mode, where a
// workbook on disk stands in for the load pipeline and the document store.
//
// Every sheet is one data sheet: the first row holds column names and each
// further row one document. A header may carry a datatype hint after a
// colon ("tags:StringList"); other columns are typed from their values.
// Sheets whose names start with an underscore are configuration:
//
//	_settings        key/value rows: zone, locale, version
//	_relationships   sheet, column, targetSheet, targetField, operator
package xlsxload

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/xuri/excelize/v2"

	"sheetgql/internal/datefmt"
	"sheetgql/internal/metadata"
	"sheetgql/internal/store"
)

// Configuration sheet names.
const (
	SettingsSheet      = "_settings"
	RelationshipsSheet = "_relationships"
)

// Workbook is a loaded spreadsheet.
type Workbook struct {
	Metadata  *metadata.Metadata
	Documents []store.Document
}

// Options customize loading.
type Options struct {
	// ID is the spreadsheet id. LoadFile defaults it to the file name
	// without extension.
	ID string
}

// CellError reports a cell that does not hold a value of its column's type.
type CellError struct {
	Sheet string
	Cell  string
	Err   error
}

func (e *CellError) Error() string {
	return fmt.Sprintf("sheet %q cell %s: %v", e.Sheet, e.Cell, e.Err)
}

func (e *CellError) Unwrap() error {
	return e.Err
}

// LoadFile reads the workbook at path.
func LoadFile(path string, opts Options) (*Workbook, error) {
	if opts.ID == "" {
		opts.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	return load(f, opts)
}

// Load reads a workbook from r. opts.ID is required.
func Load(r io.Reader, opts Options) (*Workbook, error) {
	if opts.ID == "" {
		return nil, fmt.Errorf("spreadsheet id is required")
	}
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read workbook: %w", err)
	}
	defer func() { _ = f.Close() }()
	return load(f, opts)
}

func load(f *excelize.File, opts Options) (*Workbook, error) {
	md := &metadata.Metadata{ID: opts.ID}
	wb := &Workbook{Metadata: md}

	var relationships [][]string
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("failed to read sheet %q: %w", name, err)
		}
		switch {
		case name == SettingsSheet:
			if err := applySettings(md, rows); err != nil {
				return nil, err
			}
			continue
		case name == RelationshipsSheet:
			relationships = rows
			continue
		case strings.HasPrefix(name, "_"):
			continue
		}

		sheet, docs, err := readSheet(name, rows)
		if err != nil {
			return nil, err
		}
		md.Sheets = append(md.Sheets, sheet)
		wb.Documents = append(wb.Documents, docs...)
	}

	if err := applyRelationships(md, relationships); err != nil {
		return nil, err
	}
	md.Schema = unionSchema(md.Sheets)
	if err := md.Validate(); err != nil {
		return nil, err
	}
	return wb, nil
}

type header struct {
	name string
	hint metadata.DataType
}

func parseHeader(cell string) header {
	cell = strings.TrimSpace(cell)
	if i := strings.LastIndexByte(cell, ':'); i > 0 {
		if hint := metadata.DataType(strings.TrimSpace(cell[i+1:])); hint.Valid() {
			return header{name: strings.TrimSpace(cell[:i]), hint: hint}
		}
	}
	return header{name: cell}
}

func readSheet(title string, rows [][]string) (metadata.SheetSchema, []store.Document, error) {
	sheet := metadata.SheetSchema{Title: title}
	if len(rows) == 0 {
		return sheet, nil, nil
	}

	var headers []header
	var indexes []int
	for i, cell := range rows[0] {
		h := parseHeader(cell)
		if h.name == "" {
			continue
		}
		if h.name == metadata.IDField {
			h.hint = metadata.String
		}
		headers = append(headers, h)
		indexes = append(indexes, i)
	}

	body := rows[1:]
	for n, h := range headers {
		values := columnValues(body, indexes[n])
		dt := h.hint
		if dt == "" {
			dt = inferCells(values)
		}
		col := metadata.ColumnSchema{Name: h.name, DataType: dt}
		if sample := firstNonEmpty(values); sample != "" {
			col.Sample = sample
		}
		sheet.Columns = append(sheet.Columns, col)
	}

	docs := make([]store.Document, 0, len(body))
	for r, row := range body {
		if isBlank(row) {
			continue
		}
		doc := store.Document{
			store.SheetKey: title,
			store.IDKey:    fmt.Sprintf("%s-%d", title, r+2),
		}
		for n, col := range sheet.Columns {
			i := indexes[n]
			if i >= len(row) || strings.TrimSpace(row[i]) == "" {
				continue
			}
			value, err := convertCell(row[i], col.DataType)
			if err != nil {
				cell, _ := excelize.CoordinatesToCellName(i+1, r+2)
				return sheet, nil, &CellError{Sheet: title, Cell: cell, Err: err}
			}
			doc[col.Name] = value
		}
		docs = append(docs, doc)
	}

	for _, col := range sheet.Columns {
		if col.DataType != metadata.Document {
			continue
		}
		if sheet.Docs == nil {
			sheet.Docs = make(map[string]metadata.DocumentSchema)
		}
		var objects []any
		for _, doc := range docs {
			if v, ok := doc[col.Name]; ok {
				objects = append(objects, v)
			}
		}
		sheet.Docs[col.Name] = inferDocument(objects)
	}
	return sheet, docs, nil
}

func columnValues(rows [][]string, index int) []string {
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		if index < len(row) {
			if v := strings.TrimSpace(row[index]); v != "" {
				out = append(out, v)
			}
		}
	}
	return out
}

func firstNonEmpty(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func applySettings(md *metadata.Metadata, rows [][]string) error {
	for i, row := range rows {
		if len(row) < 2 {
			continue
		}
		key, value := strings.ToLower(strings.TrimSpace(row[0])), strings.TrimSpace(row[1])
		switch key {
		case "zone":
			md.Settings.Zone = value
		case "locale":
			md.Settings.Locale = value
		case "version":
			v, err := cast.ToInt64E(value)
			if err != nil {
				return &CellError{Sheet: SettingsSheet, Cell: fmt.Sprintf("B%d", i+1), Err: err}
			}
			md.Version = v
		}
	}
	return nil
}

// applyRelationships reads the relationships sheet. The first row is a
// header and is skipped.
func applyRelationships(md *metadata.Metadata, rows [][]string) error {
	if len(rows) < 2 {
		return nil
	}
	for i, row := range rows[1:] {
		cells := make([]string, 5)
		for j := range cells {
			if j < len(row) {
				cells[j] = strings.TrimSpace(row[j])
			}
		}
		if cells[0] == "" && cells[1] == "" {
			continue
		}
		found := false
		for s := range md.Sheets {
			if md.Sheets[s].Title != cells[0] {
				continue
			}
			if md.Sheets[s].Relationships == nil {
				md.Sheets[s].Relationships = make(map[string]metadata.RelationshipRef)
			}
			md.Sheets[s].Relationships[cells[1]] = metadata.RelationshipRef{
				TargetSheet: cells[2],
				TargetField: cells[3],
				Operator:    cells[4],
			}
			found = true
		}
		if !found {
			return &CellError{Sheet: RelationshipsSheet, Cell: fmt.Sprintf("A%d", i+2), Err: fmt.Errorf("unknown sheet %q", cells[0])}
		}
	}
	return nil
}

// unionSchema merges the columns of every sheet, in first-seen order. A
// column typed differently across sheets falls back to JSON.
func unionSchema(sheets []metadata.SheetSchema) metadata.SheetSchema {
	union := metadata.SheetSchema{
		Title:   metadata.UnionSheetTitle,
		Columns: []metadata.ColumnSchema{{Name: metadata.IDField, DataType: metadata.String}},
	}
	index := map[string]int{metadata.IDField: 0}
	for _, sheet := range sheets {
		for _, col := range sheet.Columns {
			i, seen := index[col.Name]
			if !seen {
				index[col.Name] = len(union.Columns)
				union.Columns = append(union.Columns, metadata.ColumnSchema{Name: col.Name, DataType: col.DataType})
				if col.DataType == metadata.Document {
					if union.Docs == nil {
						union.Docs = make(map[string]metadata.DocumentSchema)
					}
					union.Docs[col.Name] = sheet.Docs[col.Name]
				}
				continue
			}
			if union.Columns[i].DataType != col.DataType {
				if union.Columns[i].DataType == metadata.Document {
					delete(union.Docs, col.Name)
				}
				union.Columns[i].DataType = metadata.JSON
			}
		}
	}
	return union
}

// convertCell turns cell text into a stored value of the given type.
func convertCell(cell string, dt metadata.DataType) (any, error) {
	cell = strings.TrimSpace(cell)
	switch dt {
	case metadata.Int:
		return parseInt(cell)
	case metadata.Float:
		return parseFloat(cell)
	case metadata.Boolean:
		return parseBool(cell)
	case metadata.Date, metadata.Datetime:
		t, err := parseTemporal(cell, dt)
		if err != nil {
			return nil, err
		}
		return storedTemporal(t, dt), nil
	case metadata.StringList:
		parts := strings.Split(cell, ",")
		out := make([]any, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out, nil
	case metadata.JSON, metadata.Document:
		v, err := decodeJSON(cell)
		if err != nil {
			return nil, err
		}
		if _, ok := v.(map[string]any); dt == metadata.Document && !ok {
			return nil, fmt.Errorf("document cell is not a JSON object")
		}
		return v, nil
	default:
		return cell, nil
	}
}

// storedTemporal renders a date in the one form dates are stored in: the
// calendar date for Date columns, a UTC instant with milliseconds for
// Datetime columns. Both forms order lexically.
func storedTemporal(t time.Time, dt metadata.DataType) string {
	if dt == metadata.Date {
		return t.UTC().Format(datefmt.DateLayout)
	}
	return t.UTC().Format(datefmt.DatetimeLayout)
}

func decodeJSON(text string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return normalizeJSON(v), nil
}

// normalizeJSON replaces json.Number with int64 or float64.
func normalizeJSON(v any) any {
	switch v := v.(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
		return cast.ToFloat64(v.String())
	case map[string]any:
		for k, e := range v {
			v[k] = normalizeJSON(e)
		}
		return v
	case []any:
		for i, e := range v {
			v[i] = normalizeJSON(e)
		}
		return v
	default:
		return v
	}
}
