package schemarefresh

import (
	"fmt"

	"sheetgql/internal/metadata"
	"sheetgql/internal/naming"
	"sheetgql/internal/resolver"
	"sheetgql/internal/schemagen"

	"github.com/graphql-go/graphql"
)

// BuildSchemaConfig defines inputs for schema assembly.
type BuildSchemaConfig struct {
	Naming naming.Config
	Query  resolver.Options
}

// BuildSchemaResult contains the artifacts produced by BuildSchema.
type BuildSchemaResult struct {
	Synthesized   *schemagen.Schema
	Registry      *resolver.Registry
	GraphQLSchema graphql.Schema
}

// BuildSchema runs the schema assembly pipeline used by the server, sdlgen
// and tests: synthesis, default resolver registration, binding.
func BuildSchema(md *metadata.Metadata, cfg BuildSchemaConfig) (*BuildSchemaResult, error) {
	if md == nil {
		return nil, fmt.Errorf("schema builder requires metadata")
	}

	synthesized, err := schemagen.Synthesize(md, schemagen.WithNamer(naming.New(cfg.Naming)))
	if err != nil {
		return nil, err
	}

	reg := resolver.DefaultRegistry(synthesized, cfg.Query)
	schema, err := resolver.Bind(synthesized, reg)
	if err != nil {
		return nil, &schemagen.SchemaSynthesisError{
			SpreadsheetID: md.ID,
			Stage:         schemagen.StageBuild,
			Err:           fmt.Errorf("failed to bind resolvers: %w", err),
		}
	}

	return &BuildSchemaResult{
		Synthesized:   synthesized,
		Registry:      reg,
		GraphQLSchema: schema,
	}, nil
}
