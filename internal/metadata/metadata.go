// Package metadata describes the tabular shape of a loaded spreadsheet: its
// sheets, their ordered columns, embedded document sub-schemas and the
// relationships between sheets. Values of this package are produced by the
// load pipeline and consumed read-only by schema synthesis.
package metadata

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// UnionSheetTitle is the reserved title of the sheet that spans every row of
// a spreadsheet regardless of the sheet it came from.
const UnionSheetTitle = "Rows"

// SheetField is the document key that records which sheet a row came from.
const SheetField = "_sheet"

// IDField is the document identifier key.
const IDField = "_id"

// RelationshipRef describes a lookup from a column value into another sheet.
type RelationshipRef struct {
	TargetSheet string `json:"targetSheet"`
	TargetField string `json:"targetField"`
	Operator    string `json:"operator"`
}

// Relationship operators.
const (
	RelationshipEq = "eq"
	RelationshipIn = "in"
)

// ColumnSchema is one column of a sheet, or one field of a document.
type ColumnSchema struct {
	Name         string           `json:"name"`
	DataType     DataType         `json:"datatype"`
	Sample       any              `json:"sample,omitempty"`
	Relationship *RelationshipRef `json:"relationship,omitempty"`
	// Zone and Locale are presentation defaults for Date and Datetime columns.
	Zone   string `json:"zone,omitempty"`
	Locale string `json:"locale,omitempty"`
}

// DocumentSchema is the shape of a Document-typed column.
type DocumentSchema struct {
	Fields []ColumnSchema            `json:"fields"`
	Docs   map[string]DocumentSchema `json:"docs,omitempty"`
}

// SheetSchema is the shape of a single sheet, or of the union sheet.
type SheetSchema struct {
	Title         string                     `json:"title"`
	Columns       []ColumnSchema             `json:"columns"`
	Docs          map[string]DocumentSchema  `json:"docs,omitempty"`
	Relationships map[string]RelationshipRef `json:"relationships,omitempty"`
}

// IsUnion reports whether the sheet is the reserved union view.
func (s SheetSchema) IsUnion() bool {
	return s.Title == UnionSheetTitle
}

// RelationshipFor returns the relationship configured for a column, if any.
// Entries in the sheet-level map take precedence over the column's own ref.
func (s SheetSchema) RelationshipFor(col ColumnSchema) (RelationshipRef, bool) {
	if ref, ok := s.Relationships[col.Name]; ok {
		return normalizeRelationship(ref), true
	}
	if col.Relationship != nil {
		return normalizeRelationship(*col.Relationship), true
	}
	return RelationshipRef{}, false
}

func normalizeRelationship(ref RelationshipRef) RelationshipRef {
	ref.Operator = strings.ToLower(strings.TrimSpace(ref.Operator))
	if ref.Operator == "" {
		ref.Operator = RelationshipEq
	}
	if ref.TargetField == "" {
		ref.TargetField = IDField
	}
	return ref
}

// Settings carries spreadsheet-wide presentation defaults.
type Settings struct {
	Zone   string `json:"zone,omitempty"`
	Locale string `json:"locale,omitempty"`
}

// Metadata is the full description of one spreadsheet.
type Metadata struct {
	ID       string        `json:"id"`
	Version  int64         `json:"version,omitempty"`
	Settings Settings      `json:"settings,omitempty"`
	Schema   SheetSchema   `json:"schema"`
	Sheets   []SheetSchema `json:"sheets"`
}

// AllSheets returns the union sheet followed by every individual sheet.
func (m *Metadata) AllSheets() []SheetSchema {
	sheets := make([]SheetSchema, 0, len(m.Sheets)+1)
	union := m.Schema
	if union.Title == "" {
		union.Title = UnionSheetTitle
	}
	sheets = append(sheets, union)
	return append(sheets, m.Sheets...)
}

// Sheet looks up a sheet by title, including the union sheet.
func (m *Metadata) Sheet(title string) (SheetSchema, bool) {
	for _, sheet := range m.AllSheets() {
		if sheet.Title == title {
			return sheet, true
		}
	}
	return SheetSchema{}, false
}

// Fingerprint returns a stable digest of the metadata content. Two values
// with the same fingerprint synthesize the same schema.
func (m *Metadata) Fingerprint() string {
	// encoding/json sorts map keys, so the encoding is canonical.
	data, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Validate checks structural requirements that do not depend on type mapping.
func (m *Metadata) Validate() error {
	if strings.TrimSpace(m.ID) == "" {
		return fmt.Errorf("metadata id is required")
	}
	seen := make(map[string]struct{}, len(m.Sheets))
	for _, sheet := range m.Sheets {
		if strings.TrimSpace(sheet.Title) == "" {
			return fmt.Errorf("metadata %s: sheet title is required", m.ID)
		}
		if sheet.IsUnion() {
			return fmt.Errorf("metadata %s: sheet title %q is reserved", m.ID, UnionSheetTitle)
		}
		if _, dup := seen[sheet.Title]; dup {
			return fmt.Errorf("metadata %s: duplicate sheet title %q", m.ID, sheet.Title)
		}
		seen[sheet.Title] = struct{}{}
	}
	for _, sheet := range m.AllSheets() {
		if err := validateColumns(sheet.Title, sheet.Columns, sheet.Docs); err != nil {
			return fmt.Errorf("metadata %s: %w", m.ID, err)
		}
	}
	return nil
}

func validateColumns(owner string, columns []ColumnSchema, docs map[string]DocumentSchema) error {
	names := make(map[string]struct{}, len(columns))
	for _, col := range columns {
		if col.Name == "" {
			return fmt.Errorf("%s: column name is required", owner)
		}
		if _, dup := names[col.Name]; dup {
			return fmt.Errorf("%s: duplicate column %q", owner, col.Name)
		}
		names[col.Name] = struct{}{}
		if col.DataType != Document {
			continue
		}
		doc, ok := docs[col.Name]
		if !ok {
			return fmt.Errorf("%s: document column %q has no document schema", owner, col.Name)
		}
		if err := validateColumns(owner+"."+col.Name, doc.Fields, doc.Docs); err != nil {
			return err
		}
	}
	return nil
}

// Parse decodes metadata from JSON and validates its structure.
func Parse(data []byte) (*Metadata, error) {
	return Load(bytes.NewReader(data))
}

// Load decodes metadata from a JSON stream and validates its structure.
func Load(r io.Reader) (*Metadata, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var md Metadata
	if err := dec.Decode(&md); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	if md.Schema.Title == "" {
		md.Schema.Title = UnionSheetTitle
	}
	if err := md.Validate(); err != nil {
		return nil, err
	}
	return &md, nil
}
