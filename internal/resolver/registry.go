// Package resolver binds a synthesized schema to execution. Bind turns the
// schema IR into graphql-go types and attaches the resolvers held in a
// Registry; DefaultRegistry supplies the standard find/findOne, connection,
// date, document and relationship resolvers.
package resolver

import (
	"sort"

	"github.com/graphql-go/graphql"
)

// FieldResolver resolves one field of one type.
type FieldResolver interface {
	Resolve(p graphql.ResolveParams) (any, error)
}

// FieldResolverFunc adapts a function to FieldResolver.
type FieldResolverFunc func(p graphql.ResolveParams) (any, error)

// Resolve implements FieldResolver.
func (f FieldResolverFunc) Resolve(p graphql.ResolveParams) (any, error) {
	return f(p)
}

type fieldKey struct {
	typeName  string
	fieldName string
}

// Registry maps (type, field) pairs to resolvers. It is built once per schema
// and read concurrently afterwards.
type Registry struct {
	resolvers map[fieldKey]FieldResolver
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{resolvers: make(map[fieldKey]FieldResolver)}
}

// Register sets the resolver of typeName.fieldName, replacing any previous one.
func (r *Registry) Register(typeName, fieldName string, resolver FieldResolver) {
	r.resolvers[fieldKey{typeName: typeName, fieldName: fieldName}] = resolver
}

// Lookup returns the resolver of typeName.fieldName.
func (r *Registry) Lookup(typeName, fieldName string) (FieldResolver, bool) {
	if r == nil {
		return nil, false
	}
	resolver, ok := r.resolvers[fieldKey{typeName: typeName, fieldName: fieldName}]
	return resolver, ok
}

// Len reports how many resolvers are registered.
func (r *Registry) Len() int {
	return len(r.resolvers)
}

// Keys lists the registered pairs as "Type.field", sorted.
func (r *Registry) Keys() []string {
	out := make([]string, 0, len(r.resolvers))
	for k := range r.resolvers {
		out = append(out, k.typeName+"."+k.fieldName)
	}
	sort.Strings(out)
	return out
}
