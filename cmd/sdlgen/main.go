// Command sdlgen prints the GraphQL SDL the server would expose for one
// spreadsheet, without a store or a running server.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"sheetgql/internal/metadata"
	"sheetgql/internal/naming"
	"sheetgql/internal/schemagen"
	"sheetgql/internal/schemarefresh"
	"sheetgql/internal/xlsxload"

	"github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		slog.Error("sdlgen failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout io.Writer) error {
	fs := pflag.NewFlagSet("sdlgen", pflag.ContinueOnError)
	metadataPath := fs.String("metadata", "", "Metadata JSON file, or - for stdin")
	workbookPath := fs.String("xlsx", "", "Workbook to derive metadata from")
	overrides := fs.StringToString("type-override", nil, "Sheet title to type name, e.g. \"Blog Posts=Post\"")
	if err := fs.Parse(args); err != nil {
		return err
	}

	md, err := loadMetadata(*metadataPath, *workbookPath, stdin)
	if err != nil {
		return err
	}

	result, err := schemarefresh.BuildSchema(md, schemarefresh.BuildSchemaConfig{
		Naming: naming.Config{TypeOverrides: *overrides},
	})
	if err != nil {
		var synthErr *schemagen.SchemaSynthesisError
		if errors.As(err, &synthErr) {
			return fmt.Errorf("spreadsheet %s has no usable schema (%s): %w", synthErr.SpreadsheetID, synthErr.Stage, synthErr.Err)
		}
		return err
	}

	sdl := result.Synthesized.SDL
	if !strings.HasSuffix(sdl, "\n") {
		sdl += "\n"
	}
	_, err = io.WriteString(stdout, sdl)
	return err
}

func loadMetadata(metadataPath, workbookPath string, stdin io.Reader) (*metadata.Metadata, error) {
	switch {
	case metadataPath != "" && workbookPath != "":
		return nil, fmt.Errorf("--metadata and --xlsx are mutually exclusive")
	case workbookPath != "":
		wb, err := xlsxload.LoadFile(workbookPath, xlsxload.Options{})
		if err != nil {
			return nil, err
		}
		return wb.Metadata, nil
	case metadataPath == "-":
		return metadata.Load(stdin)
	case metadataPath != "":
		f, err := os.Open(metadataPath)
		if err != nil {
			return nil, err
		}
		defer func() { _ = f.Close() }()
		return metadata.Load(f)
	default:
		return nil, fmt.Errorf("one of --metadata or --xlsx is required")
	}
}
