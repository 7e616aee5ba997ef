package resolver

import (
	"context"
	"errors"

	"sheetgql/internal/loader"
	"sheetgql/internal/logging"
	"sheetgql/internal/observability"
	"sheetgql/internal/store"
)

// ErrNoRequestScope is returned by resolvers executed without a scope in
// their context.
var ErrNoRequestScope = errors.New("resolver: no request scope in context")

// RequestScope carries the per-request dependencies of resolvers.
type RequestScope struct {
	Store  store.Store
	Loader *loader.Loader
	Logger *logging.Logger
	// Zone and Locale override the configured date defaults for the request.
	Zone   string
	Locale string
}

type scopeKey struct{}

// WithRequestScope stores scope in ctx.
func WithRequestScope(ctx context.Context, scope *RequestScope) context.Context {
	return context.WithValue(ctx, scopeKey{}, scope)
}

// ScopeFromContext returns the scope stored in ctx.
func ScopeFromContext(ctx context.Context) (*RequestScope, error) {
	if ctx == nil {
		return nil, ErrNoRequestScope
	}
	scope, ok := ctx.Value(scopeKey{}).(*RequestScope)
	if !ok || scope == nil || scope.Store == nil {
		return nil, ErrNoRequestScope
	}
	return scope, nil
}

// NewRequestScope builds a scope reading from s, with a fresh loader.
func NewRequestScope(s store.Store, metrics *observability.GraphQLMetrics, logger *logging.Logger) *RequestScope {
	return &RequestScope{
		Store:  s,
		Loader: loader.New(s, metrics),
		Logger: logger,
	}
}
