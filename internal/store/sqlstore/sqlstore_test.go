package sqlstore

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sheetgql/internal/store"
	"sheetgql/internal/translate"
)

func newCollection(t *testing.T) (*Collection, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s, err := New(db).Collection(context.Background(), "sheet-1")
	require.NoError(t, err)
	return s.(*Collection), mock
}

func TestJSONPath(t *testing.T) {
	assert.Equal(t, `$."letter"`, jsonPath("letter"))
	assert.Equal(t, `$."author"."email"`, jsonPath("author.email"))
	assert.Equal(t, `$."say \"hi\""`, jsonPath(`say "hi"`))
}

func TestFindSQL(t *testing.T) {
	c := &Collection{table: DefaultTable, spreadsheetID: "sheet-1"}

	tests := []struct {
		name      string
		filter    store.Filter
		opts      store.FindOptions
		wantParts []string
		wantArgs  []any
	}{
		{
			name:      "spreadsheet scope only",
			filter:    store.Filter{},
			wantParts: []string{"SELECT doc FROM `sheet_documents` WHERE spreadsheet_id = ?"},
			wantArgs:  []any{"sheet-1"},
		},
		{
			name:   "equality on a sheet",
			filter: store.Filter{"_sheet": "Posts"},
			wantParts: []string{
				"spreadsheet_id = ?",
				"JSON_CONTAINS(doc, CAST(? AS JSON), ?)",
			},
			wantArgs: []any{"sheet-1", `"Posts"`, `$."_sheet"`},
		},
		{
			name:   "range and sort",
			filter: store.Filter{"value": map[string]any{"$gt": 1, "$lte": 3}},
			opts: store.FindOptions{
				Sort:  []store.SortField{{Path: "author.email", Direction: store.Descending}},
				Limit: store.Int64(2),
				Skip:  store.Int64(1),
			},
			wantParts: []string{
				"JSON_EXTRACT(doc, ?) > CAST(? AS JSON)",
				"JSON_EXTRACT(doc, ?) <= CAST(? AS JSON)",
				"ORDER BY JSON_EXTRACT(doc, ?) DESC",
				"LIMIT 2",
				"OFFSET 1",
			},
			wantArgs: []any{"sheet-1", `$."value"`, "1", `$."value"`, "3", `$."author"."email"`},
		},
		{
			name:      "skip without limit",
			filter:    store.Filter{},
			opts:      store.FindOptions{Skip: store.Int64(5)},
			wantParts: []string{"LIMIT 18446744073709551615", "OFFSET 5"},
			wantArgs:  []any{"sheet-1"},
		},
		{
			name:   "in and or",
			filter: store.Filter{"$or": []any{map[string]any{"letter": map[string]any{"$in": []string{"A", "B"}}}, map[string]any{"value": 3}}},
			wantParts: []string{
				"(JSON_OVERLAPS(JSON_EXTRACT(doc, ?), CAST(? AS JSON)) OR JSON_CONTAINS(doc, CAST(? AS JSON), ?))",
			},
			wantArgs: []any{"sheet-1", `$."letter"`, `["A","B"]`, "3", `$."value"`},
		},
		{
			name:   "regex with options",
			filter: store.Filter{"letter": map[string]any{"$regex": "^a", "$options": "i"}},
			wantParts: []string{
				"REGEXP_LIKE(JSON_UNQUOTE(JSON_EXTRACT(doc, ?)), ?, ?)",
			},
			wantArgs: []any{"sheet-1", `$."letter"`, "^a", "ci"},
		},
		{
			name:   "negations",
			filter: store.Filter{"tags": map[string]any{"$nin": []any{"x"}}},
			wantParts: []string{
				"NOT COALESCE((JSON_OVERLAPS(JSON_EXTRACT(doc, ?), CAST(? AS JSON))), FALSE)",
			},
			wantArgs: []any{"sheet-1", `$."tags"`, `["x"]`},
		},
		{
			name:   "date equality uses the stored layout",
			filter: store.Filter{"published": map[string]any{"$eq": time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)}},
			wantParts: []string{
				"JSON_CONTAINS(doc, CAST(IF(CHAR_LENGTH(JSON_UNQUOTE(JSON_EXTRACT(doc, ?))) = ?, ?, ?) AS JSON), ?)",
			},
			wantArgs: []any{"sheet-1", `$."published"`, 10, `"2024-03-05"`, `"2024-03-05T00:00:00.000Z"`, `$."published"`},
		},
		{
			name:   "datetime range converts to UTC",
			filter: store.Filter{"updated": map[string]any{"$gte": time.Date(2024, 3, 5, 7, 0, 0, 0, time.FixedZone("EST", -5*3600))}},
			wantParts: []string{
				"JSON_EXTRACT(doc, ?) >= CAST(IF(CHAR_LENGTH(JSON_UNQUOTE(JSON_EXTRACT(doc, ?))) = ?, ?, ?) AS JSON)",
			},
			wantArgs: []any{"sheet-1", `$."updated"`, `$."updated"`, 10, `"2024-03-05"`, `"2024-03-05T12:00:00.000Z"`},
		},
		{
			name:   "date in expands to equalities",
			filter: store.Filter{"published": map[string]any{"$in": []any{time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)}}},
			wantParts: []string{
				"(JSON_CONTAINS(doc, CAST(IF(CHAR_LENGTH(JSON_UNQUOTE(JSON_EXTRACT(doc, ?))) = ?, ?, ?) AS JSON), ?))",
			},
			wantArgs: []any{"sheet-1", `$."published"`, 10, `"2024-03-05"`, `"2024-03-05T00:00:00.000Z"`, `$."published"`},
		},
		{
			name:   "elemMatch on scalar elements",
			filter: store.Filter{"tags": map[string]any{"$elemMatch": map[string]any{"$eq": "go"}}},
			wantParts: []string{
				"EXISTS (SELECT 1 FROM JSON_TABLE(JSON_EXTRACT(doc, ?), '$[*]' COLUMNS (v JSON PATH '$')) AS elem0 WHERE JSON_CONTAINS(elem0.v, CAST(? AS JSON), ?))",
			},
			wantArgs: []any{"sheet-1", `$."tags"`, `"go"`, "$"},
		},
		{
			name:   "elemMatch with regex",
			filter: store.Filter{"tags": map[string]any{"$elemMatch": map[string]any{"$regex": "^gr", "$options": "i"}}},
			wantParts: []string{
				"AS elem0 WHERE REGEXP_LIKE(JSON_UNQUOTE(JSON_EXTRACT(elem0.v, ?)), ?, ?))",
			},
			wantArgs: []any{"sheet-1", `$."tags"`, "$", "^gr", "ci"},
		},
		{
			name:   "elemMatch on embedded documents",
			filter: store.Filter{"comments": map[string]any{"$elemMatch": map[string]any{"by": "y", "likes": map[string]any{"$gt": 5}}}},
			wantParts: []string{
				"AS elem0 WHERE (JSON_CONTAINS(elem0.v, CAST(? AS JSON), ?) AND JSON_EXTRACT(elem0.v, ?) > CAST(? AS JSON)))",
			},
			wantArgs: []any{"sheet-1", `$."comments"`, `"y"`, `$."by"`, `$."likes"`, "5"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, args, err := c.FindSQL(tt.filter, tt.opts)
			require.NoError(t, err)
			for _, part := range tt.wantParts {
				assert.Contains(t, query, part)
			}
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestFindSQL_UnsupportedOperator(t *testing.T) {
	c := &Collection{table: DefaultTable, spreadsheetID: "sheet-1"}

	for _, filter := range []store.Filter{
		{"value": map[string]any{"$mod": []any{2, 0}}},
		{"$where": "true"},
		{"letter": map[string]any{"$regex": "a", "$options": "x"}},
		{"tags": map[string]any{"$elemMatch": "go"}},
		{"tags": map[string]any{"$elemMatch": map[string]any{"$mod": []any{2, 0}}}},
	} {
		_, _, err := c.FindSQL(filter, store.FindOptions{})
		var invalid *translate.InvalidFilterArgumentError
		assert.True(t, errors.As(err, &invalid), "filter %v", filter)
	}
}

func TestCollection_Find(t *testing.T) {
	c, mock := newCollection(t)

	rows := sqlmock.NewRows([]string{"doc"}).
		AddRow([]byte(`{"_id":"1","_sheet":"Posts","value":1,"ratio":0.5,"author":{"email":"a@x"}}`)).
		AddRow([]byte(`{"_id":"2","_sheet":"Posts","value":2}`))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT doc FROM `sheet_documents` WHERE spreadsheet_id = ? AND JSON_CONTAINS(doc, CAST(? AS JSON), ?)")).
		WithArgs("sheet-1", `"Posts"`, `$."_sheet"`).
		WillReturnRows(rows)

	docs, err := c.Find(context.Background(), store.Filter{"_sheet": "Posts"}, store.FindOptions{})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, int64(1), docs[0]["value"])
	assert.Equal(t, 0.5, docs[0]["ratio"])
	assert.Equal(t, map[string]any{"email": "a@x"}, docs[0]["author"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCollection_FindOne(t *testing.T) {
	c, mock := newCollection(t)

	mock.ExpectQuery(`SELECT doc FROM .sheet_documents. WHERE spreadsheet_id = \? LIMIT 1`).
		WithArgs("sheet-1").
		WillReturnRows(sqlmock.NewRows([]string{"doc"}))

	doc, err := c.FindOne(context.Background(), store.Filter{}, store.FindOptions{})
	require.NoError(t, err)
	assert.Nil(t, doc)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCollection_CountDocuments(t *testing.T) {
	c, mock := newCollection(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM `sheet_documents` WHERE spreadsheet_id = ?")).
		WithArgs("sheet-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	n, err := c.CountDocuments(context.Background(), store.Filter{})
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCollection_QueryError(t *testing.T) {
	c, mock := newCollection(t)

	mock.ExpectQuery("SELECT doc").WillReturnError(errors.New("connection reset"))

	_, err := c.Find(context.Background(), store.Filter{}, store.FindOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to query documents")
}

func TestWithTable(t *testing.T) {
	p := New(nil, WithTable("docs"))
	s, err := p.Collection(context.Background(), "x")
	require.NoError(t, err)
	query, _, err := s.(*Collection).FindSQL(store.Filter{}, store.FindOptions{})
	require.NoError(t, err)
	assert.Contains(t, query, "FROM `docs`")
}
