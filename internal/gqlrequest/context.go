package gqlrequest

import "context"

type analysisKey struct{}
type execMetaKey struct{}

// ExecMeta identifies what a request executes against and on whose behalf.
type ExecMeta struct {
	SpreadsheetID string
	Fingerprint   string
	Subject       string
}

// WithAnalysis stores an analysis in ctx.
func WithAnalysis(ctx context.Context, a *Analysis) context.Context {
	return context.WithValue(ctx, analysisKey{}, a)
}

// AnalysisFromContext returns the analysis stored in ctx, or nil.
func AnalysisFromContext(ctx context.Context) *Analysis {
	a, _ := ctx.Value(analysisKey{}).(*Analysis)
	return a
}

// WithExecMeta stores execution metadata in ctx.
func WithExecMeta(ctx context.Context, meta ExecMeta) context.Context {
	return context.WithValue(ctx, execMetaKey{}, meta)
}

// ExecMetaFromContext returns the execution metadata stored in ctx.
func ExecMetaFromContext(ctx context.Context) (ExecMeta, bool) {
	meta, ok := ctx.Value(execMetaKey{}).(ExecMeta)
	return meta, ok
}
