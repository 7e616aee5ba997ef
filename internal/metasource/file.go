package metasource

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"sheetgql/internal/logging"
	"sheetgql/internal/metadata"
)

// FileSource reads one metadata document per *.json file in a directory and
// watches the directory by polling.
type FileSource struct {
	dir      string
	interval time.Duration
	logger   *logging.Logger
}

// NewFileSource creates a FileSource over dir.
func NewFileSource(dir string, interval time.Duration, logger *logging.Logger) *FileSource {
	return &FileSource{
		dir:      dir,
		interval: interval,
		logger:   logging.OrDefault(logger).Component("metasource.file"),
	}
}

func (s *FileSource) paths() ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

func readFile(path string) (*metadata.Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return metadata.Load(f)
}

// List implements Source.
func (s *FileSource) List(ctx context.Context) ([]*metadata.Metadata, error) {
	paths, err := s.paths()
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", s.dir, err)
	}
	var out []*metadata.Metadata
	var errs []error
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		md, err := readFile(path)
		if err != nil {
			errs = append(errs, &LoadError{Origin: path, Err: err})
			continue
		}
		out = append(out, md)
	}
	return out, errors.Join(errs...)
}

// Get implements Source. Files are matched on the id they contain, not on
// their names.
func (s *FileSource) Get(ctx context.Context, id string) (*metadata.Metadata, error) {
	list, err := s.List(ctx)
	for _, md := range list {
		if md.ID == id {
			return md, nil
		}
	}
	if err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Watch implements Watcher.
func (s *FileSource) Watch(ctx context.Context, onChange func(id string)) error {
	p := &poller{
		interval: s.interval,
		logger:   s.logger,
		paths:    s.paths,
		idOf: func(path string) (string, error) {
			md, err := readFile(path)
			if err != nil {
				return "", err
			}
			return md.ID, nil
		},
	}
	s.logger.Info("watching metadata directory", "dir", s.dir, "interval", s.interval)
	return p.run(ctx, onChange)
}
