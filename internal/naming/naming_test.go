package naming

import (
	"testing"
	"unicode/utf8"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sheetgql/internal/metadata"
)

func postsSheet() metadata.SheetSchema {
	return metadata.SheetSchema{
		Title: "Posts",
		Columns: []metadata.ColumnSchema{
			{Name: "letter", DataType: metadata.String},
			{Name: "author", DataType: metadata.Document},
			{Name: "Author", DataType: metadata.Document},
		},
		Docs: map[string]metadata.DocumentSchema{
			"author": {
				Fields: []metadata.ColumnSchema{{Name: "address", DataType: metadata.Document}},
				Docs: map[string]metadata.DocumentSchema{
					"address": {Fields: []metadata.ColumnSchema{{Name: "city", DataType: metadata.String}}},
				},
			},
			"Author": {Fields: []metadata.ColumnSchema{{Name: "name", DataType: metadata.String}}},
		},
	}
}

func TestNamesFor(t *testing.T) {
	names := NamesFor(postsSheet())

	assert.Equal(t, "Posts", names.TypeName)
	assert.Equal(t, "PostsConnection", names.ConnectionName)
	assert.Equal(t, "PostsEdge", names.EdgeName)
	assert.Equal(t, "PostsFilterInput", names.FilterInputName)
	assert.Equal(t, "PostsSortInput", names.SortInputName)
	assert.Equal(t, "PostsFieldsEnum", names.FieldsEnumName)
	assert.Equal(t, "findPosts", names.FindFieldName)
	assert.Equal(t, "findOnePosts", names.FindOneFieldName)

	require.Len(t, names.Docs, 2)
	author := names.Docs["author"]
	assert.Equal(t, "PostsAuthorDoc", author.TypeName)
	assert.Equal(t, "PostsAuthorDocFilterInput", author.FilterInputName)
	assert.Equal(t, "PostsAuthorDocSortInput", author.SortInputName)
	assert.Equal(t, "PostsAuthor_Doc", names.Docs["Author"].TypeName)
	assert.Equal(t, "PostsAuthorDocAddressDoc", author.Docs["address"].TypeName)
}

func TestNamesFor_UnionSheet(t *testing.T) {
	names := NamesFor(metadata.SheetSchema{Title: metadata.UnionSheetTitle})
	assert.Equal(t, "Rows", names.TypeName)
	assert.Equal(t, "find", names.FindFieldName)
	assert.Equal(t, "findOne", names.FindOneFieldName)
	assert.Equal(t, "RowsConnection", names.ConnectionName)
}

func TestTypeName(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{"posts", "Posts"},
		{"Posts", "Posts"},
		{"sales 2024 (draft)", "Sales2024Draft"},
		{"2024 budget", "_2024Budget"},
		{"***", "Sheet"},
		{"date", "Date_"},
		{"PageInfo", "PageInfo_"},
		{"StringQueryOperatorInput", "StringQueryOperatorInput_"},
	}
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			assert.Equal(t, tt.want, Default().TypeName(tt.title))
		})
	}
}

func TestTypeName_Override(t *testing.T) {
	n := New(Config{TypeOverrides: map[string]string{"sales 2024": "Sales"}})
	assert.Equal(t, "Sales", n.TypeName("sales 2024"))
	assert.Equal(t, "findSales", n.NamesFor(metadata.SheetSchema{Title: "sales 2024"}).FindFieldName)
}

func TestEscapeName(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"letter", "letter"},
		{"first_name", "first_name"},
		{"price $", "price_x0020__x0024_"},
		{"1st", "_x0031_st"},
		{"__typename", "_x005F__typename"},
		{"true", "_x0074_rue"},
		{"null", "_x006E_ull"},
		{"a___b", "a_x005F__x005F__b"},
		{"_x0041_", "_x005F_x0041_x005F_"},
		{"ünïcode", "_x00FC_n_x00EF_code"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EscapeName(tt.name)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.name, UnescapeName(got))
			if tt.name != "" {
				assert.True(t, IsValidName(got), got)
			}
		})
	}
}

func TestSplitPath(t *testing.T) {
	tests := []struct {
		name string
		want []string
	}{
		{"author___email", []string{"author", "email"}},
		{"author___address___city", []string{"author", "address", "city"}},
		{"plain", []string{"plain"}},
		{"a____b", []string{"a", "_b"}},
		{"a_x0024____b", []string{"a$", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitPath(tt.name))
		})
	}
}

func TestCollisionTracker(t *testing.T) {
	tracker := NewCollisionTracker()
	require.NoError(t, tracker.RegisterType("Posts", "sheet Posts"))
	assert.True(t, tracker.HasType("Posts"))

	err := tracker.RegisterType("Posts", "sheet posts")
	var collision *CollisionError
	require.ErrorAs(t, err, &collision)
	assert.Equal(t, "sheet Posts", collision.Existing)

	require.NoError(t, tracker.RegisterField("Posts", "letter", "column letter"))
	require.NoError(t, tracker.RegisterField("Authors", "letter", "column letter"))
	err = tracker.RegisterField("Posts", "letter", "column letter")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "in Posts")
}

func TestProperty_Naming(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("escaping round-trips", prop.ForAll(
		func(s string) bool {
			if !utf8.ValidString(s) {
				return true
			}
			return UnescapeName(EscapeName(s)) == s
		},
		gen.AnyString(),
	))

	properties.Property("escaped names are valid GraphQL names", prop.ForAll(
		func(s string) bool {
			if s == "" {
				return true
			}
			return IsValidName(EscapeName(s))
		},
		gen.AnyString(),
	))

	properties.Property("joined paths split back into their segments", prop.ForAll(
		func(a, b string) bool {
			if !utf8.ValidString(a) || !utf8.ValidString(b) {
				return true
			}
			got := SplitPath(JoinPath(a, b))
			return len(got) == 2 && got[0] == a && got[1] == b
		},
		gen.AnyString(),
		gen.AnyString(),
	))

	properties.Property("names are deterministic and doc names never collide", prop.ForAll(
		func(title string, cols []string) bool {
			if title == "" {
				return true
			}
			sheet := metadata.SheetSchema{Title: title, Docs: map[string]metadata.DocumentSchema{}}
			seen := map[string]bool{}
			for _, col := range cols {
				if seen[col] {
					continue
				}
				seen[col] = true
				sheet.Columns = append(sheet.Columns, metadata.ColumnSchema{Name: col, DataType: metadata.Document})
				sheet.Docs[col] = metadata.DocumentSchema{}
			}

			first := NamesFor(sheet)
			second := NamesFor(sheet)
			if first.TypeName != second.TypeName || len(first.Docs) != len(second.Docs) {
				return false
			}
			typeNames := map[string]bool{}
			for col, doc := range first.Docs {
				if second.Docs[col].TypeName != doc.TypeName || typeNames[doc.TypeName] {
					return false
				}
				typeNames[doc.TypeName] = true
			}
			return len(typeNames) == len(sheet.Columns)
		},
		gen.AlphaString(),
		gen.SliceOf(gen.OneGenOf(gen.AlphaString(), gen.Identifier(), gen.AnyString())),
	))

	properties.TestingRun(t)
}
