// Package naming derives every GraphQL identifier of a synthesized schema
// from sheet titles and column names. All functions are pure: the same sheet
// always yields the same names.
package naming

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"sheetgql/internal/metadata"
)

// Fixed suffixes appended to a sheet's type name.
const (
	FilterInputSuffix = "FilterInput"
	SortInputSuffix   = "SortInput"
	FieldsEnumSuffix  = "FieldsEnum"
	ConnectionSuffix  = "Connection"
	EdgeSuffix        = "Edge"
	DocSuffix         = "Doc"
)

// DocNames are the names generated for one Document-typed column.
type DocNames struct {
	TypeName        string
	FilterInputName string
	SortInputName   string
	FieldsEnumName  string
	// Docs holds names for documents nested inside this document.
	Docs map[string]DocNames
}

// GeneratedNames are the names generated for one sheet.
type GeneratedNames struct {
	TypeName         string
	ConnectionName   string
	EdgeName         string
	FilterInputName  string
	SortInputName    string
	FieldsEnumName   string
	FindFieldName    string
	FindOneFieldName string
	Docs             map[string]DocNames
}

// Config customizes naming.
type Config struct {
	// TypeOverrides maps a sheet title to the type name to use instead of the
	// derived one. Useful when two titles collapse to the same identifier.
	TypeOverrides map[string]string `mapstructure:"type_overrides"`
}

// Namer derives names using a Config.
type Namer struct {
	config Config
}

// New creates a Namer.
func New(cfg Config) *Namer {
	return &Namer{config: cfg}
}

// Default returns a Namer without overrides.
func Default() *Namer {
	return New(Config{})
}

// NamesFor derives the names for a sheet with the default Namer.
func NamesFor(sheet metadata.SheetSchema) GeneratedNames {
	return Default().NamesFor(sheet)
}

// NamesFor derives the full name set for a sheet.
func (n *Namer) NamesFor(sheet metadata.SheetSchema) GeneratedNames {
	typeName := n.TypeName(sheet.Title)
	names := GeneratedNames{
		TypeName:         typeName,
		ConnectionName:   typeName + ConnectionSuffix,
		EdgeName:         typeName + EdgeSuffix,
		FilterInputName:  typeName + FilterInputSuffix,
		SortInputName:    typeName + SortInputSuffix,
		FieldsEnumName:   typeName + FieldsEnumSuffix,
		FindFieldName:    "find" + typeName,
		FindOneFieldName: "findOne" + typeName,
		Docs:             docNamesFor(typeName, sheet.Columns, sheet.Docs),
	}
	if sheet.IsUnion() {
		names.FindFieldName = "find"
		names.FindOneFieldName = "findOne"
	}
	return names
}

func docNamesFor(owner string, columns []metadata.ColumnSchema, docs map[string]metadata.DocumentSchema) map[string]DocNames {
	out := make(map[string]DocNames)
	used := make(map[string]bool)
	for _, col := range columns {
		if col.DataType != metadata.Document {
			continue
		}
		// "author" and "Author" capitalize to the same part; later columns
		// are disambiguated in column order.
		part := Capitalize(EscapeName(col.Name))
		for used[part] {
			part += "_"
		}
		used[part] = true
		typeName := owner + part + DocSuffix
		doc := docs[col.Name]
		out[col.Name] = DocNames{
			TypeName:        typeName,
			FilterInputName: typeName + FilterInputSuffix,
			SortInputName:   typeName + SortInputSuffix,
			FieldsEnumName:  typeName + FieldsEnumSuffix,
			Docs:            docNamesFor(typeName, doc.Fields, doc.Docs),
		}
	}
	return out
}

// TypeName derives the GraphQL type name of a sheet title. The title is
// capitalized and used for both singular and plural positions.
func (n *Namer) TypeName(title string) string {
	if override, ok := n.config.TypeOverrides[title]; ok && override != "" {
		return override
	}
	name := pascalWords(title)
	if IsValidName(title) {
		name = Capitalize(title)
	}
	if isReservedTypeName(name) {
		return name + "_"
	}
	return name
}

// FieldName derives the GraphQL field name of a column.
func FieldName(column string) string {
	return EscapeName(column)
}

// Capitalize upper-cases the first rune of s.
func Capitalize(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}

// pascalWords builds an identifier from the alphanumeric words of s, e.g.
// "sales 2024 (draft)" -> "Sales2024Draft".
func pascalWords(s string) string {
	words := strings.FieldsFunc(s, func(r rune) bool {
		return !isLetter(r) && !isDigit(r)
	})
	var b strings.Builder
	for _, word := range words {
		b.WriteString(Capitalize(word))
	}
	out := b.String()
	if out == "" {
		return "Sheet"
	}
	if r, _ := utf8.DecodeRuneInString(out); isDigit(r) {
		return "_" + out
	}
	return out
}
