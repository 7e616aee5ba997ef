package gqlrequest

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzeEnvelope(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		operation  string
		wantName   string
		wantRoots  []string
		wantFields int
		wantDepth  int
		wantVars   int
		wantErr    bool
	}{
		{
			name:       "anonymous find",
			query:      `{ findPosts { totalCount rows { row { letter } } } }`,
			wantName:   AnonymousOperation,
			wantRoots:  []string{"findPosts"},
			wantFields: 5,
			wantDepth:  4,
		},
		{
			name: "named with variables and fragments",
			query: `query Q($f: PostsFilterInput) {
				findPosts(filter: $f) { ...Conn }
				findOneAuthors { name }
			}
			fragment Conn on PostsConnection { totalCount edges { node { letter } } }`,
			operation:  "Q",
			wantName:   "Q",
			wantRoots:  []string{"findPosts", "findOneAuthors"},
			wantFields: 7,
			wantDepth:  4,
			wantVars:   1,
		},
		{
			name:       "root fields through fragments",
			query:      `query { ...Roots find { totalCount } } fragment Roots on Query { findPosts { totalCount } }`,
			wantName:   AnonymousOperation,
			wantRoots:  []string{"findPosts", "find"},
			wantFields: 4,
			wantDepth:  2,
		},
		{
			name:    "parse error",
			query:   `{ findPosts {`,
			wantErr: true,
		},
		{
			name:      "unknown operation",
			query:     `query A { find { totalCount } }`,
			operation: "B",
			wantErr:   true,
		},
		{
			name:    "ambiguous operation",
			query:   `query A { find { totalCount } } query B { find { totalCount } }`,
			wantErr: true,
		},
		{
			name:    "empty",
			query:   "  ",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := AnalyzeEnvelope(Envelope{Query: tt.query, OperationName: tt.operation})
			if tt.wantErr {
				assert.Error(t, a.Err)
				assert.Empty(t, a.Hash)
				return
			}
			require.NoError(t, a.Err)
			assert.Equal(t, tt.wantName, a.OperationName)
			assert.Equal(t, "query", a.OperationType)
			assert.Equal(t, tt.wantRoots, a.RootFields)
			assert.Equal(t, tt.wantFields, a.FieldCount)
			assert.Equal(t, tt.wantDepth, a.Depth)
			assert.Equal(t, tt.wantVars, a.VariableCount)
			assert.Len(t, a.Hash, 64)
		})
	}
}

func TestAnalyzeEnvelope_HashIgnoresFormatting(t *testing.T) {
	a := AnalyzeEnvelope(Envelope{Query: `{ findPosts { totalCount } }`})
	b := AnalyzeEnvelope(Envelope{Query: "{\n  findPosts {\n    totalCount\n  }\n}"})
	c := AnalyzeEnvelope(Envelope{Query: `{ findPosts { rows { row { letter } } } }`})
	assert.Equal(t, a.Hash, b.Hash)
	assert.NotEqual(t, a.Hash, c.Hash)
}

func TestAnalyzeEnvelope_CyclicFragments(t *testing.T) {
	a := AnalyzeEnvelope(Envelope{Query: `{ ...A } fragment A on Query { find { totalCount } ...B } fragment B on Query { ...A }`})
	require.NoError(t, a.Err)
	assert.Equal(t, []string{"find"}, a.RootFields)
}

func TestDecodeEnvelope(t *testing.T) {
	t.Run("json post keeps body readable", func(t *testing.T) {
		body := `{"query":"{ find { totalCount } }","operationName":"","variables":{"a":1}}`
		req := httptest.NewRequest(http.MethodPost, "/graphql/s1", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")

		env, err := DecodeEnvelope(req)
		require.NoError(t, err)
		assert.Equal(t, "{ find { totalCount } }", env.Query)
		assert.Equal(t, float64(1), env.Variables["a"])
		assert.Equal(t, len(env.Query), env.SizeBytes)

		rest := new(strings.Builder)
		_, err = io.Copy(rest, req.Body)
		require.NoError(t, err)
		assert.Equal(t, body, rest.String())
	})

	t.Run("graphql body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/graphql/s1", strings.NewReader("{ find { totalCount } }"))
		req.Header.Set("Content-Type", "application/graphql")
		env, err := DecodeEnvelope(req)
		require.NoError(t, err)
		assert.Equal(t, "{ find { totalCount } }", env.Query)
	})

	t.Run("get", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, `/graphql/s1?query=%7B+find+%7B+totalCount+%7D+%7D&operationName=Q&variables=%7B%22a%22%3A2%7D`, nil)
		env, err := DecodeEnvelope(req)
		require.NoError(t, err)
		assert.Equal(t, "{ find { totalCount } }", env.Query)
		assert.Equal(t, "Q", env.OperationName)
		assert.Equal(t, float64(2), env.Variables["a"])
	})

	t.Run("invalid json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/graphql/s1", strings.NewReader("{"))
		_, err := DecodeEnvelope(req)
		assert.Error(t, err)
		assert.Error(t, Analyze(req).Err)
	})
}
