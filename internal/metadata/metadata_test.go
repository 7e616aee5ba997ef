package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const postsMetadata = `{
  "id": "sheet-1",
  "schema": {
    "title": "Rows",
    "columns": [
      {"name": "_id", "datatype": "String"},
      {"name": "letter", "datatype": "String", "sample": "A"},
      {"name": "value", "datatype": "Int", "sample": 1}
    ]
  },
  "sheets": [
    {
      "title": "Posts",
      "columns": [
        {"name": "letter", "datatype": "String"},
        {"name": "value", "datatype": "Int"},
        {"name": "author", "datatype": "Document"},
        {"name": "authorId", "datatype": "String", "relationship": {"targetSheet": "Authors", "targetField": "_id"}}
      ],
      "docs": {
        "author": {"fields": [{"name": "email", "datatype": "String"}]}
      }
    },
    {
      "title": "Authors",
      "columns": [{"name": "name", "datatype": "String"}]
    }
  ]
}`

func TestParse(t *testing.T) {
	md, err := Parse([]byte(postsMetadata))
	require.NoError(t, err)

	assert.Equal(t, "sheet-1", md.ID)
	sheets := md.AllSheets()
	require.Len(t, sheets, 3)
	assert.Equal(t, UnionSheetTitle, sheets[0].Title)
	assert.True(t, sheets[0].IsUnion())
	assert.Equal(t, "Posts", sheets[1].Title)

	posts := sheets[1]
	names := make([]string, 0, len(posts.Columns))
	for _, col := range posts.Columns {
		names = append(names, col.Name)
	}
	assert.Equal(t, []string{"letter", "value", "author", "authorId"}, names)

	ref, ok := posts.RelationshipFor(posts.Columns[3])
	require.True(t, ok)
	assert.Equal(t, RelationshipRef{TargetSheet: "Authors", TargetField: "_id", Operator: RelationshipEq}, ref)

	_, ok = posts.RelationshipFor(posts.Columns[0])
	assert.False(t, ok)
}

func TestParse_KeepsUnknownDataTypes(t *testing.T) {
	md, err := Parse([]byte(`{"id":"x","schema":{"columns":[{"name":"a","datatype":"Currency"}]},"sheets":[]}`))
	require.NoError(t, err)
	assert.False(t, md.Schema.Columns[0].DataType.Valid())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{
			name:    "missing id",
			input:   `{"schema":{"columns":[]},"sheets":[]}`,
			wantErr: "id is required",
		},
		{
			name:    "reserved sheet title",
			input:   `{"id":"x","schema":{"columns":[]},"sheets":[{"title":"Rows","columns":[]}]}`,
			wantErr: "reserved",
		},
		{
			name:    "duplicate sheet",
			input:   `{"id":"x","schema":{"columns":[]},"sheets":[{"title":"A","columns":[]},{"title":"A","columns":[]}]}`,
			wantErr: "duplicate sheet",
		},
		{
			name:    "duplicate column",
			input:   `{"id":"x","schema":{"columns":[{"name":"a","datatype":"String"},{"name":"a","datatype":"Int"}]},"sheets":[]}`,
			wantErr: "duplicate column",
		},
		{
			name:    "document without schema",
			input:   `{"id":"x","schema":{"columns":[{"name":"d","datatype":"Document"}]},"sheets":[]}`,
			wantErr: "no document schema",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.input))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFingerprint(t *testing.T) {
	a, err := Parse([]byte(postsMetadata))
	require.NoError(t, err)
	b, err := Parse([]byte(postsMetadata))
	require.NoError(t, err)

	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.Len(t, a.Fingerprint(), 64)

	b.Sheets[0].Columns[0].Name = "letters"
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}

func TestDataTypeValid(t *testing.T) {
	for _, dt := range DataTypes {
		assert.True(t, dt.Valid(), dt)
	}
	assert.False(t, DataType("Currency").Valid())
	assert.True(t, Date.Temporal())
	assert.False(t, String.Temporal())
}
