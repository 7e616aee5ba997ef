package metasource

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"sheetgql/internal/logging"
	"sheetgql/internal/metadata"
	"sheetgql/internal/store"
	"sheetgql/internal/store/memstore"
)

const blogJSON = `{"id":"blog","schema":{"columns":[]},"sheets":[{"title":"Posts","columns":[{"name":"title","datatype":"String"}]}]}`
const salesJSON = `{"id":"sales","schema":{"columns":[]},"sheets":[]}`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func ids(list []*metadata.Metadata) []string {
	out := make([]string, len(list))
	for i, md := range list {
		out[i] = md.ID
	}
	return out
}

func TestFileSource_List(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.json", blogJSON)
	writeFile(t, dir, "b.json", salesJSON)
	writeFile(t, dir, "c.json", `{"schema":`)
	writeFile(t, dir, "notes.txt", "ignored")

	src := NewFileSource(dir, time.Second, logging.Discard())
	list, err := src.List(context.Background())
	assert.Equal(t, []string{"blog", "sales"}, ids(list))

	var loadErr *LoadError
	require.True(t, errors.As(err, &loadErr))
	assert.Equal(t, filepath.Join(dir, "c.json"), loadErr.Origin)
}

func TestFileSource_Get(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "whatever.json", blogJSON)
	src := NewFileSource(dir, time.Second, nil)

	md, err := src.Get(context.Background(), "blog")
	require.NoError(t, err)
	assert.Equal(t, "Posts", md.Sheets[0].Title)

	_, err = src.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPoller_ReportsChanges(t *testing.T) {
	dir := t.TempDir()
	blog := writeFile(t, dir, "blog.json", blogJSON)
	src := NewFileSource(dir, time.Second, logging.Discard())
	p := &poller{
		logger: logging.Discard(),
		paths:  src.paths,
		idOf: func(path string) (string, error) {
			md, err := readFile(path)
			if err != nil {
				return "", err
			}
			return md.ID, nil
		},
	}
	p.prime()

	var changed []string
	record := func(id string) { changed = append(changed, id) }

	p.scan(record)
	assert.Empty(t, changed)

	writeFile(t, dir, "sales.json", salesJSON)
	p.scan(record)
	assert.Equal(t, []string{"sales"}, changed)

	changed = nil
	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(blog, future, future))
	p.scan(record)
	assert.Equal(t, []string{"blog"}, changed)

	changed = nil
	require.NoError(t, os.Remove(blog))
	p.scan(record)
	assert.Equal(t, []string{"blog"}, changed)
}

func TestFileSource_WatchStopsWithContext(t *testing.T) {
	src := NewFileSource(t.TempDir(), 10*time.Millisecond, logging.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := src.Watch(ctx, func(string) {})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStatic(t *testing.T) {
	md, err := metadata.Parse([]byte(blogJSON))
	require.NoError(t, err)
	src := NewStatic(md)

	list, err := src.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 1)

	got, err := src.Get(context.Background(), "blog")
	require.NoError(t, err)
	assert.Same(t, md, got)

	_, err = src.Get(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNotFound)
}

type fakeEntry struct {
	key   string
	value []byte
	op    jetstream.KeyValueOp
}

func (e *fakeEntry) Bucket() string                  { return "metadata" }
func (e *fakeEntry) Key() string                     { return e.key }
func (e *fakeEntry) Value() []byte                   { return e.value }
func (e *fakeEntry) Revision() uint64                { return 1 }
func (e *fakeEntry) Created() time.Time              { return time.Time{} }
func (e *fakeEntry) Delta() uint64                   { return 0 }
func (e *fakeEntry) Operation() jetstream.KeyValueOp { return e.op }

type fakeWatcher struct {
	updates chan jetstream.KeyValueEntry
	once    sync.Once
	stopped chan struct{}
}

func (w *fakeWatcher) Updates() <-chan jetstream.KeyValueEntry { return w.updates }
func (w *fakeWatcher) Stop() error {
	w.once.Do(func() { close(w.stopped) })
	return nil
}

type fakeKV struct {
	entries map[string][]byte
	watcher *fakeWatcher
}

func (kv *fakeKV) Keys(context.Context, ...jetstream.WatchOpt) ([]string, error) {
	if len(kv.entries) == 0 {
		return nil, jetstream.ErrNoKeysFound
	}
	keys := make([]string, 0, len(kv.entries))
	for k := range kv.entries {
		keys = append(keys, k)
	}
	return keys, nil
}

func (kv *fakeKV) Get(_ context.Context, key string) (jetstream.KeyValueEntry, error) {
	v, ok := kv.entries[key]
	if !ok {
		return nil, jetstream.ErrKeyNotFound
	}
	return &fakeEntry{key: key, value: v, op: jetstream.KeyValuePut}, nil
}

func (kv *fakeKV) WatchAll(context.Context, ...jetstream.WatchOpt) (jetstream.KeyWatcher, error) {
	return kv.watcher, nil
}

func TestKVSource_ListAndGet(t *testing.T) {
	kv := &fakeKV{entries: map[string][]byte{
		"sales":    []byte(salesJSON),
		"blog":     []byte(blogJSON),
		"mismatch": []byte(blogJSON),
	}}
	src := NewKVSource(kv, logging.Discard())

	list, err := src.List(context.Background())
	assert.Equal(t, []string{"blog", "sales"}, ids(list))
	var loadErr *LoadError
	require.True(t, errors.As(err, &loadErr))
	assert.Contains(t, loadErr.Error(), "does not match key")

	_, err = src.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestKVSource_EmptyBucket(t *testing.T) {
	src := NewKVSource(&fakeKV{}, nil)
	list, err := src.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestKVSource_Watch(t *testing.T) {
	w := &fakeWatcher{updates: make(chan jetstream.KeyValueEntry, 4), stopped: make(chan struct{})}
	src := NewKVSource(&fakeKV{watcher: w}, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan string, 4)
	done := make(chan error, 1)
	go func() {
		done <- src.Watch(ctx, func(id string) { changed <- id })
	}()

	w.updates <- nil
	w.updates <- &fakeEntry{key: "blog", op: jetstream.KeyValuePut}
	w.updates <- &fakeEntry{key: "sales", op: jetstream.KeyValueDelete}

	assert.Equal(t, "blog", <-changed)
	assert.Equal(t, "sales", <-changed)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	<-w.stopped
}

func TestXLSXSource(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetName("Sheet1", "Posts"))
	require.NoError(t, f.SetSheetRow("Posts", "A1", &[]any{"title", "views"}))
	require.NoError(t, f.SetSheetRow("Posts", "A2", &[]any{"Hello", "10"}))
	path := filepath.Join(t.TempDir(), "blog.xlsx")
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	provider := memstore.New()
	src, err := NewXLSXSource([]string{path}, provider, time.Second, logging.Discard())
	require.NoError(t, err)

	list, err := src.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"blog"}, ids(list))

	coll, err := provider.Collection(context.Background(), "blog")
	require.NoError(t, err)
	n, err := coll.CountDocuments(context.Background(), store.Filter{"_sheet": "Posts"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = src.Get(context.Background(), "other")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestXLSXSource_DuplicateIDs(t *testing.T) {
	_, err := NewXLSXSource([]string{"a/blog.xlsx", "b/blog.xlsx"}, memstore.New(), 0, nil)
	require.Error(t, err)
}
