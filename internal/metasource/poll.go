package metasource

import (
	"context"
	"os"
	"time"

	"sheetgql/internal/logging"
)

// DefaultPollInterval is used when a file source is created without one.
const DefaultPollInterval = 5 * time.Second

type fileStamp struct {
	modTime time.Time
	size    int64
}

// poller watches a set of files by modification time and size.
type poller struct {
	interval time.Duration
	logger   *logging.Logger
	// paths lists the files to watch on each tick.
	paths func() ([]string, error)
	// idOf names the spreadsheet a file holds.
	idOf func(path string) (string, error)

	stamps map[string]fileStamp
	ids    map[string]string
}

func stamp(path string) (fileStamp, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return fileStamp{}, false
	}
	return fileStamp{modTime: info.ModTime(), size: info.Size()}, true
}

// prime records the current state without reporting changes.
func (p *poller) prime() {
	p.stamps = make(map[string]fileStamp)
	p.ids = make(map[string]string)
	paths, err := p.paths()
	if err != nil {
		p.logger.Warn("failed to list watched files", "error", err)
		return
	}
	for _, path := range paths {
		if s, ok := stamp(path); ok {
			p.stamps[path] = s
			if id, err := p.idOf(path); err == nil {
				p.ids[path] = id
			}
		}
	}
}

// scan reports the ids of files that appeared, changed or disappeared since
// the last scan.
func (p *poller) scan(onChange func(id string)) {
	paths, err := p.paths()
	if err != nil {
		p.logger.Warn("failed to list watched files", "error", err)
		return
	}

	seen := make(map[string]bool, len(paths))
	for _, path := range paths {
		seen[path] = true
		s, ok := stamp(path)
		if !ok {
			continue
		}
		if old, known := p.stamps[path]; known && old == s {
			continue
		}
		p.stamps[path] = s
		id, err := p.idOf(path)
		if err != nil {
			p.logger.Warn("failed to read changed file", "path", path, "error", err)
			continue
		}
		if previous, ok := p.ids[path]; ok && previous != id {
			onChange(previous)
		}
		p.ids[path] = id
		onChange(id)
	}

	for path := range p.stamps {
		if seen[path] {
			continue
		}
		delete(p.stamps, path)
		if id, ok := p.ids[path]; ok {
			delete(p.ids, path)
			onChange(id)
		}
	}
}

func (p *poller) run(ctx context.Context, onChange func(id string)) error {
	interval := p.interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	p.prime()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.scan(onChange)
		}
	}
}
