package gqlrequest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/parser"
	"github.com/graphql-go/graphql/language/printer"
	"github.com/graphql-go/graphql/language/source"
)

// AnonymousOperation names operations without a name.
const AnonymousOperation = "<anonymous>"

// Analysis describes the operation a request will execute.
type Analysis struct {
	Envelope      Envelope
	OperationName string
	OperationType string
	// RootFields are the root selections in document order, e.g.
	// findPosts, so a request can be attributed to the sheets it reads.
	RootFields    []string
	FieldCount    int
	Depth         int
	VariableCount int
	Hash          string
	// Err records why analysis stopped early. Execution reports the same
	// problem to the client, so it is informational only.
	Err error
}

// Analyze decodes and analyzes r.
func Analyze(r *http.Request) *Analysis {
	env, err := DecodeEnvelope(r)
	if err != nil {
		return &Analysis{Envelope: env, Err: err}
	}
	return AnalyzeEnvelope(env)
}

// AnalyzeEnvelope parses the query of env and measures the selected
// operation.
func AnalyzeEnvelope(env Envelope) *Analysis {
	a := &Analysis{Envelope: env}
	if strings.TrimSpace(env.Query) == "" {
		a.Err = fmt.Errorf("request has no query")
		return a
	}

	doc, err := parser.Parse(parser.ParseParams{
		Source: source.NewSource(&source.Source{Body: []byte(env.Query), Name: "request"}),
	})
	if err != nil {
		a.Err = err
		return a
	}

	fragments := map[string]*ast.FragmentDefinition{}
	var ops []*ast.OperationDefinition
	for _, def := range doc.Definitions {
		switch def := def.(type) {
		case *ast.OperationDefinition:
			ops = append(ops, def)
		case *ast.FragmentDefinition:
			if def.Name != nil {
				fragments[def.Name.Value] = def
			}
		}
	}

	op, err := selectOperation(ops, env.OperationName)
	if err != nil {
		a.Err = err
		return a
	}

	a.OperationName = operationName(op)
	a.OperationType = string(op.Operation)
	a.VariableCount = len(op.VariableDefinitions)

	w := &walker{fragments: fragments, used: map[string]bool{}}
	a.RootFields = w.rootFields(op.SelectionSet, map[string]bool{})
	a.FieldCount, a.Depth = w.measure(op.SelectionSet, 1, map[string]bool{})
	a.Hash = w.hash(op)
	return a
}

func selectOperation(ops []*ast.OperationDefinition, name string) (*ast.OperationDefinition, error) {
	if name != "" {
		for _, op := range ops {
			if op.Name != nil && op.Name.Value == name {
				return op, nil
			}
		}
		return nil, fmt.Errorf("unknown operation named %q", name)
	}
	switch len(ops) {
	case 0:
		return nil, fmt.Errorf("request does not include an operation")
	case 1:
		return ops[0], nil
	}
	return nil, fmt.Errorf("operationName is required when request has multiple operations")
}

func operationName(op *ast.OperationDefinition) string {
	if op.Name == nil || op.Name.Value == "" {
		return AnonymousOperation
	}
	return op.Name.Value
}

// walker follows selections through fragments. Each spread is expanded at
// most once along any path, which keeps cyclic fragments finite.
type walker struct {
	fragments map[string]*ast.FragmentDefinition
	used      map[string]bool
}

func (w *walker) fragment(spread *ast.FragmentSpread) (string, *ast.FragmentDefinition) {
	if spread.Name == nil {
		return "", nil
	}
	name := spread.Name.Value
	w.used[name] = true
	return name, w.fragments[name]
}

func (w *walker) rootFields(set *ast.SelectionSet, active map[string]bool) []string {
	if set == nil {
		return nil
	}
	var out []string
	for _, sel := range set.Selections {
		switch sel := sel.(type) {
		case *ast.Field:
			if sel.Name != nil && !slices.Contains(out, sel.Name.Value) {
				out = append(out, sel.Name.Value)
			}
		case *ast.InlineFragment:
			out = appendUnique(out, w.rootFields(sel.SelectionSet, active))
		case *ast.FragmentSpread:
			name, frag := w.fragment(sel)
			if frag == nil || active[name] {
				continue
			}
			active[name] = true
			out = appendUnique(out, w.rootFields(frag.SelectionSet, active))
			delete(active, name)
		}
	}
	return out
}

func appendUnique(dst, src []string) []string {
	for _, s := range src {
		if !slices.Contains(dst, s) {
			dst = append(dst, s)
		}
	}
	return dst
}

// measure counts fields and the deepest field level below set.
func (w *walker) measure(set *ast.SelectionSet, depth int, active map[string]bool) (int, int) {
	if set == nil {
		return 0, depth - 1
	}
	fields, maxDepth := 0, depth
	add := func(n, d int) {
		fields += n
		maxDepth = max(maxDepth, d)
	}
	for _, sel := range set.Selections {
		switch sel := sel.(type) {
		case *ast.Field:
			fields++
			if sel.SelectionSet != nil {
				add(w.measure(sel.SelectionSet, depth+1, active))
			}
		case *ast.InlineFragment:
			add(w.measure(sel.SelectionSet, depth, active))
		case *ast.FragmentSpread:
			name, frag := w.fragment(sel)
			if frag == nil || active[name] {
				continue
			}
			active[name] = true
			add(w.measure(frag.SelectionSet, depth, active))
			delete(active, name)
		}
	}
	return fields, maxDepth
}

// hash digests the printed operation and the fragments it uses, so
// formatting differences do not change the result.
func (w *walker) hash(op *ast.OperationDefinition) string {
	names := make([]string, 0, len(w.used))
	for name := range w.used {
		if _, ok := w.fragments[name]; ok {
			names = append(names, name)
		}
	}
	slices.Sort(names)

	nodes := []ast.Node{op}
	for _, name := range names {
		nodes = append(nodes, w.fragments[name])
	}
	printed, _ := printer.Print(ast.NewDocument(&ast.Document{Definitions: nodes})).(string)

	sum := sha256.New()
	fmt.Fprintf(sum, "%s\x00%s", operationName(op), printed)
	return hex.EncodeToString(sum.Sum(nil))
}
