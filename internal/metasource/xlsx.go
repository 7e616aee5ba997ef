package metasource

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"sheetgql/internal/logging"
	"sheetgql/internal/metadata"
	"sheetgql/internal/store/memstore"
	"sheetgql/internal/xlsxload"
)

// XLSXSource serves workbooks from disk. Loading a workbook also replaces
// its documents in the in-memory store, so metadata and data stay in step.
type XLSXSource struct {
	files    map[string]string
	store    *memstore.Provider
	interval time.Duration
	logger   *logging.Logger
}

// NewXLSXSource creates a source over the given workbook files. Each file's
// spreadsheet id is its name without extension.
func NewXLSXSource(files []string, store *memstore.Provider, interval time.Duration, logger *logging.Logger) (*XLSXSource, error) {
	s := &XLSXSource{
		files:    make(map[string]string, len(files)),
		store:    store,
		interval: interval,
		logger:   logging.OrDefault(logger).Component("metasource.xlsx"),
	}
	for _, path := range files {
		id := workbookID(path)
		if other, dup := s.files[id]; dup {
			return nil, fmt.Errorf("workbooks %s and %s share spreadsheet id %q", other, path, id)
		}
		s.files[id] = path
	}
	return s, nil
}

func workbookID(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

func (s *XLSXSource) ids() []string {
	ids := make([]string, 0, len(s.files))
	for id := range s.files {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *XLSXSource) load(id string) (*metadata.Metadata, error) {
	path, ok := s.files[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	wb, err := xlsxload.LoadFile(path, xlsxload.Options{ID: id})
	if err != nil {
		return nil, &LoadError{Origin: path, Err: err}
	}
	s.store.Put(id, wb.Documents)
	s.logger.Debug("loaded workbook", "spreadsheet_id", id, "documents", len(wb.Documents))
	return wb.Metadata, nil
}

// List implements Source.
func (s *XLSXSource) List(ctx context.Context) ([]*metadata.Metadata, error) {
	var out []*metadata.Metadata
	var errs []error
	for _, id := range s.ids() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		md, err := s.load(id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, md)
	}
	return out, errors.Join(errs...)
}

// Get implements Source.
func (s *XLSXSource) Get(_ context.Context, id string) (*metadata.Metadata, error) {
	md, err := s.load(id)
	if errors.Is(err, ErrNotFound) {
		s.store.Delete(id)
	}
	return md, err
}

// Watch implements Watcher.
func (s *XLSXSource) Watch(ctx context.Context, onChange func(id string)) error {
	p := &poller{
		interval: s.interval,
		logger:   s.logger,
		paths: func() ([]string, error) {
			paths := make([]string, 0, len(s.files))
			for _, id := range s.ids() {
				paths = append(paths, s.files[id])
			}
			return paths, nil
		},
		idOf: func(path string) (string, error) {
			return workbookID(path), nil
		},
	}
	return p.run(ctx, onChange)
}
