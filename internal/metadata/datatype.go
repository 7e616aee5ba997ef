package metadata

// DataType is the inferred type of a column.
type DataType string

const (
	String     DataType = "String"
	Int        DataType = "Int"
	Float      DataType = "Float"
	Boolean    DataType = "Boolean"
	Date       DataType = "Date"
	Datetime   DataType = "Datetime"
	StringList DataType = "StringList"
	Document   DataType = "Document"
	PlainText  DataType = "PlainText"
	Markdown   DataType = "Markdown"
	JSON       DataType = "JSON"
)

// DataTypes lists every member of the closed enumeration in declaration order.
var DataTypes = []DataType{
	String, Int, Float, Boolean, Date, Datetime, StringList, Document, PlainText, Markdown, JSON,
}

// Valid reports whether t belongs to the closed enumeration.
func (t DataType) Valid() bool {
	for _, known := range DataTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Temporal reports whether values of the type are rendered through date formatting.
func (t DataType) Temporal() bool {
	return t == Date || t == Datetime
}
