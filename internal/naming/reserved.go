package naming

import "strings"

// reservedTypeNames are built-in scalars and the names of the static block
// shared by every synthesized schema.
var reservedTypeNames = map[string]bool{
	"Query":         true,
	"Mutation":      true,
	"Subscription":  true,
	"String":        true,
	"Int":           true,
	"Float":         true,
	"Boolean":       true,
	"ID":            true,
	"Date":          true,
	"Datetime":      true,
	"JSON":          true,
	"PageInfo":      true,
	"SortOrderEnum": true,
}

// isReservedTypeName checks whether a derived type name would shadow a
// built-in or static definition.
func isReservedTypeName(name string) bool {
	if reservedTypeNames[name] {
		return true
	}
	return strings.HasSuffix(name, "QueryOperatorInput")
}
