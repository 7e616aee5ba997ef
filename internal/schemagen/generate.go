package schemagen

import (
	"fmt"

	"sheetgql/internal/metadata"
	"sheetgql/internal/naming"
	"sheetgql/internal/sdl"
	"sheetgql/internal/typemap"
)

// block is one object type generated from a column list: a sheet, or a
// document nested in a sheet or another document.
type block struct {
	label           string
	typeName        string
	filterInputName string
	sortInputName   string
	fieldsEnumName  string
	schema          metadata.SheetSchema
	docNames        map[string]naming.DocNames
	isSheet         bool
}

type generator struct {
	md     *metadata.Metadata
	namer  *naming.Namer
	mapper *typemap.Mapper
	b      *sdl.Builder
	sheets []SheetBinding
	fields []FieldBinding
	schema *Schema
}

func newGenerator(md *metadata.Metadata, namer *naming.Namer) *generator {
	return &generator{
		md:     md,
		namer:  namer,
		mapper: typemap.New(namer),
		b:      sdl.NewBuilder(QueryTypeName),
	}
}

func (g *generator) fail(stage string, err error) error {
	return &SchemaSynthesisError{SpreadsheetID: g.md.ID, Stage: stage, Err: err}
}

func (g *generator) run() error {
	for _, sheet := range g.md.AllSheets() {
		if sheet.Title == "" {
			return g.fail(StageNames, fmt.Errorf("sheet title is required"))
		}
		g.sheets = append(g.sheets, SheetBinding{Sheet: sheet, Names: g.namer.NamesFor(sheet)})
	}

	for _, sb := range g.sheets {
		if err := checkTypes(sb.Sheet.Title, sb.Sheet.Columns, sb.Sheet.Docs); err != nil {
			return g.fail(StageTypes, err)
		}
		if err := g.checkRelationships(sb.Sheet); err != nil {
			return g.fail(StageRelationships, err)
		}
	}

	if err := g.build(); err != nil {
		return g.fail(StageBuild, err)
	}
	doc, err := g.b.Document()
	if err != nil {
		return g.fail(StageBuild, err)
	}

	src := sdl.Print(doc)
	if _, err := sdl.Validate(g.md.ID+".graphql", src); err != nil {
		return g.fail(StageValidate, err)
	}

	g.schema = &Schema{
		SpreadsheetID: g.md.ID,
		Fingerprint:   g.md.Fingerprint(),
		Settings:      g.md.Settings,
		Document:      doc,
		SDL:           src,
		Sheets:        g.sheets,
		Fields:        g.fields,
	}
	return nil
}

func checkTypes(owner string, columns []metadata.ColumnSchema, docs map[string]metadata.DocumentSchema) error {
	for _, col := range columns {
		if _, err := typemap.FilterInputType(typemap.Column{Owner: owner, Schema: col}); err != nil {
			return err
		}
		if col.DataType == metadata.Document {
			doc := docs[col.Name]
			if err := checkTypes(owner+"."+col.Name, doc.Fields, doc.Docs); err != nil {
				return err
			}
		}
	}
	return nil
}

func (g *generator) checkRelationships(sheet metadata.SheetSchema) error {
	for name := range sheet.Relationships {
		if !hasColumn(sheet.Columns, name) {
			return fmt.Errorf("sheet %q: relationship configured for unknown column %q", sheet.Title, name)
		}
	}
	for _, col := range sheet.Columns {
		ref, ok := sheet.RelationshipFor(col)
		if !ok {
			continue
		}
		if _, exists := g.md.Sheet(ref.TargetSheet); !exists {
			return fmt.Errorf("sheet %q column %q: unknown target sheet %q", sheet.Title, col.Name, ref.TargetSheet)
		}
		if ref.Operator != metadata.RelationshipEq && ref.Operator != metadata.RelationshipIn {
			return fmt.Errorf("sheet %q column %q: unsupported relationship operator %q", sheet.Title, col.Name, ref.Operator)
		}
	}
	return nil
}

func hasColumn(columns []metadata.ColumnSchema, name string) bool {
	for _, col := range columns {
		if col.Name == name {
			return true
		}
	}
	return false
}

func (g *generator) build() error {
	if err := g.emitQuery(); err != nil {
		return err
	}
	for _, sb := range g.sheets {
		if err := g.emitSheet(sb); err != nil {
			return err
		}
	}
	for _, sb := range g.sheets {
		if err := g.emitDocs(sheetBlock(sb), sb.Names.Docs); err != nil {
			return err
		}
	}
	return g.emitStatic()
}

func sheetBlock(sb SheetBinding) block {
	return block{
		label:           fmt.Sprintf("sheet %q", sb.Sheet.Title),
		typeName:        sb.Names.TypeName,
		filterInputName: sb.Names.FilterInputName,
		sortInputName:   sb.Names.SortInputName,
		fieldsEnumName:  sb.Names.FieldsEnumName,
		schema:          sb.Sheet,
		docNames:        sb.Names.Docs,
		isSheet:         true,
	}
}

func (g *generator) emitQuery() error {
	query, err := g.b.Define(sdl.Object, QueryTypeName, "query root")
	if err != nil {
		return err
	}
	for _, sb := range g.sheets {
		names := sb.Names
		source := fmt.Sprintf("sheet %q", sb.Sheet.Title)
		args := []sdl.Argument{
			{Name: ArgFilter, Type: sdl.Named(names.FilterInputName)},
			{Name: ArgLimit, Type: sdl.Named("Int")},
			{Name: ArgSkip, Type: sdl.Named("Int")},
			{Name: ArgSort, Type: sdl.Named(names.SortInputName)},
		}
		if err := g.b.AddField(query, &sdl.Field{
			Name: names.FindFieldName,
			Type: sdl.NonNullOf(sdl.Named(names.ConnectionName)),
			Args: args,
		}, source); err != nil {
			return err
		}
		if err := g.b.AddField(query, &sdl.Field{
			Name: names.FindOneFieldName,
			Type: sdl.Named(names.TypeName),
			Args: args,
		}, source); err != nil {
			return err
		}
	}
	return nil
}

func (g *generator) emitSheet(sb SheetBinding) error {
	blk := sheetBlock(sb)
	names := sb.Names

	if err := g.emitObject(blk); err != nil {
		return err
	}

	conn, err := g.b.Define(sdl.Object, names.ConnectionName, blk.label)
	if err != nil {
		return err
	}
	edges := sdl.ListOf(sdl.NonNullOf(sdl.Named(names.EdgeName)))
	for _, f := range []*sdl.Field{
		{Name: RowsField, Type: edges},
		{Name: EdgesField, Type: edges},
		{Name: TotalCountField, Type: sdl.NonNullOf(sdl.Named("Int"))},
		{Name: PageInfoField, Type: sdl.NonNullOf(sdl.Named(pageInfoName))},
	} {
		if err := g.b.AddField(conn, f, blk.label); err != nil {
			return err
		}
	}

	edge, err := g.b.Define(sdl.Object, names.EdgeName, blk.label)
	if err != nil {
		return err
	}
	row := sdl.NonNullOf(sdl.Named(names.TypeName))
	if err := g.b.AddField(edge, &sdl.Field{Name: RowField, Type: row}, blk.label); err != nil {
		return err
	}
	if err := g.b.AddField(edge, &sdl.Field{Name: NodeField, Type: row}, blk.label); err != nil {
		return err
	}

	if err := g.emitFieldsEnum(blk); err != nil {
		return err
	}
	if _, err := g.emitFilterInput(blk); err != nil {
		return err
	}
	return g.emitSortInput(blk)
}

// emitDocs emits the blocks of every non-empty document column of owner,
// depth first.
func (g *generator) emitDocs(owner block, names map[string]naming.DocNames) error {
	for _, col := range owner.schema.Columns {
		if col.DataType != metadata.Document || emptyDoc(owner.schema, col) {
			continue
		}
		doc := owner.schema.Docs[col.Name]
		dn := names[col.Name]
		blk := block{
			label:           fmt.Sprintf("document %q of %s", col.Name, owner.label),
			typeName:        dn.TypeName,
			filterInputName: dn.FilterInputName,
			sortInputName:   dn.SortInputName,
			fieldsEnumName:  dn.FieldsEnumName,
			schema:          metadata.SheetSchema{Title: owner.schema.Title + "." + col.Name, Columns: doc.Fields, Docs: doc.Docs},
			docNames:        dn.Docs,
		}
		if err := g.emitObject(blk); err != nil {
			return err
		}
		if err := g.emitFieldsEnum(blk); err != nil {
			return err
		}
		if _, err := g.emitFilterInput(blk); err != nil {
			return err
		}
		if err := g.emitSortInput(blk); err != nil {
			return err
		}
		if err := g.emitDocs(blk, dn.Docs); err != nil {
			return err
		}
	}
	return nil
}

func emptyDoc(schema metadata.SheetSchema, col metadata.ColumnSchema) bool {
	return len(schema.Docs[col.Name].Fields) == 0
}

func (g *generator) emitObject(blk block) error {
	def, err := g.b.Define(sdl.Object, blk.typeName, blk.label)
	if err != nil {
		return err
	}
	for _, col := range blk.schema.Columns {
		if err := g.addOutputField(def, blk, col); err != nil {
			return err
		}
	}
	if len(blk.schema.Columns) == 0 {
		// Every stored row carries an _id, and an object type needs at least
		// one field.
		return g.addOutputField(def, blk, metadata.ColumnSchema{Name: metadata.IDField, DataType: metadata.String})
	}
	return nil
}

func (g *generator) addOutputField(def *sdl.Definition, blk block, col metadata.ColumnSchema) error {
	c := typemap.Column{Owner: blk.schema.Title, Schema: col, Docs: blk.docNames}
	var rel *RelationshipBinding
	if ref, ok := blk.schema.RelationshipFor(col); ok && col.Name != metadata.IDField {
		c.Relationship = &ref
		rel = &RelationshipBinding{Ref: ref, TargetTypeName: g.namer.TypeName(ref.TargetSheet)}
	}

	typ, err := g.mapper.OutputType(c)
	if err != nil {
		return err
	}
	strategy := typemap.StrategyFor(c)
	if strategy == typemap.Document && emptyDoc(blk.schema, col) {
		typ = sdl.Named(typemap.JSONScalar)
		strategy = typemap.Passthrough
	}

	field := &sdl.Field{Name: naming.FieldName(col.Name), Type: typ, Source: col.Name}
	if strategy == typemap.DateFormat || strategy == typemap.DatetimeFormat {
		field.Args = typemap.DateArguments()
	}
	if err := g.b.AddField(def, field, fmt.Sprintf("column %q", col.Name)); err != nil {
		return err
	}
	g.fields = append(g.fields, FieldBinding{
		TypeName:     def.Name,
		Field:        field,
		Column:       col,
		Strategy:     strategy,
		Relationship: rel,
	})
	return nil
}

// enumPaths lists sortable paths in column order. Non-empty documents
// contribute the paths of their fields instead of their own.
func enumPaths(schema metadata.SheetSchema, prefix []string) [][]string {
	var out [][]string
	for _, col := range schema.Columns {
		path := appendPath(prefix, col.Name)
		if col.DataType == metadata.Document && !emptyDoc(schema, col) {
			doc := schema.Docs[col.Name]
			out = append(out, enumPaths(metadata.SheetSchema{Columns: doc.Fields, Docs: doc.Docs}, path)...)
			continue
		}
		out = append(out, path)
	}
	return out
}

type filterEntry struct {
	path      []string
	inputType string
}

// filterEntries lists filterable paths in column order, flattening nested
// documents into their parent.
func filterEntries(schema metadata.SheetSchema, prefix []string) []filterEntry {
	var out []filterEntry
	for _, col := range schema.Columns {
		path := appendPath(prefix, col.Name)
		if col.DataType == metadata.Document {
			doc := schema.Docs[col.Name]
			out = append(out, filterEntries(metadata.SheetSchema{Columns: doc.Fields, Docs: doc.Docs}, path)...)
			continue
		}
		inputType, err := typemap.FilterInputType(typemap.Column{Schema: col})
		if err != nil || inputType == "" {
			continue
		}
		out = append(out, filterEntry{path: path, inputType: inputType})
	}
	return out
}

func appendPath(prefix []string, name string) []string {
	path := make([]string, len(prefix), len(prefix)+1)
	copy(path, prefix)
	return append(path, name)
}

func (g *generator) emitFieldsEnum(blk block) error {
	def, err := g.b.Define(sdl.Enum, blk.fieldsEnumName, blk.label)
	if err != nil {
		return err
	}
	paths := enumPaths(blk.schema, nil)
	if blk.isSheet && !hasColumn(blk.schema.Columns, metadata.IDField) {
		paths = append(paths, []string{metadata.IDField})
	}
	for _, path := range paths {
		if err := g.b.AddValue(def, naming.JoinPath(path...), fmt.Sprintf("path %v", path)); err != nil {
			return err
		}
	}
	return nil
}

// emitFilterInput emits the filter input of a block. Documents whose fields
// are all unfilterable get none, and false is returned.
func (g *generator) emitFilterInput(blk block) (bool, error) {
	entries := filterEntries(blk.schema, nil)
	if blk.isSheet && !hasColumn(blk.schema.Columns, metadata.IDField) {
		entries = append(entries, filterEntry{path: []string{metadata.IDField}, inputType: typemap.StringOperatorInput})
	}
	if len(entries) == 0 {
		return false, nil
	}
	def, err := g.b.Define(sdl.InputObject, blk.filterInputName, blk.label)
	if err != nil {
		return false, err
	}
	for _, entry := range entries {
		field := &sdl.Field{
			Name:   naming.JoinPath(entry.path...),
			Type:   sdl.Named(entry.inputType),
			Source: joinSource(entry.path),
		}
		if err := g.b.AddField(def, field, fmt.Sprintf("path %v", entry.path)); err != nil {
			return false, err
		}
	}
	return true, nil
}

func joinSource(path []string) string {
	out := path[0]
	for _, p := range path[1:] {
		out += "." + p
	}
	return out
}

func (g *generator) emitSortInput(blk block) error {
	def, err := g.b.Define(sdl.InputObject, blk.sortInputName, blk.label)
	if err != nil {
		return err
	}
	if err := g.b.AddField(def, &sdl.Field{
		Name: SortFieldsField,
		Type: sdl.ListOf(sdl.Named(blk.fieldsEnumName)),
	}, blk.label); err != nil {
		return err
	}
	return g.b.AddField(def, &sdl.Field{
		Name: SortOrderField,
		Type: sdl.ListOf(sdl.Named(sortOrderEnumName)),
	}, blk.label)
}
