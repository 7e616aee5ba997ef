package naming

import "fmt"

// CollisionError reports two sources mapping to the same generated name.
type CollisionError struct {
	Scope    string
	Name     string
	Existing string
	Source   string
}

func (e *CollisionError) Error() string {
	if e.Scope == "" {
		return fmt.Sprintf("name %q generated for %s collides with %s", e.Name, e.Source, e.Existing)
	}
	return fmt.Sprintf("name %q in %s generated for %s collides with %s", e.Name, e.Scope, e.Source, e.Existing)
}

// CollisionTracker records generated names and reports duplicates. Generated
// names are part of the public API of a spreadsheet, so collisions are
// reported instead of being renamed silently.
type CollisionTracker struct {
	types  map[string]string
	fields map[string]map[string]string
}

// NewCollisionTracker creates an empty tracker.
func NewCollisionTracker() *CollisionTracker {
	return &CollisionTracker{
		types:  make(map[string]string),
		fields: make(map[string]map[string]string),
	}
}

// RegisterType records a type name.
func (c *CollisionTracker) RegisterType(name, source string) error {
	if existing, ok := c.types[name]; ok {
		return &CollisionError{Name: name, Existing: existing, Source: source}
	}
	c.types[name] = source
	return nil
}

// RegisterField records a field, input field, or enum value within a type.
func (c *CollisionTracker) RegisterField(typeName, name, source string) error {
	seen := c.fields[typeName]
	if seen == nil {
		seen = make(map[string]string)
		c.fields[typeName] = seen
	}
	if existing, ok := seen[name]; ok {
		return &CollisionError{Scope: typeName, Name: name, Existing: existing, Source: source}
	}
	seen[name] = source
	return nil
}

// HasType reports whether a type name was registered.
func (c *CollisionTracker) HasType(name string) bool {
	_, ok := c.types[name]
	return ok
}
