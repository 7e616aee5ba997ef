// Package schemarefresh keeps one schema snapshot per spreadsheet and
// rebuilds snapshots when their metadata changes.
package schemarefresh

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"sheetgql/internal/logging"
	"sheetgql/internal/metadata"
	"sheetgql/internal/metasource"
	"sheetgql/internal/observability"
	"sheetgql/internal/schemagen"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/handler"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrSchemaUnavailable is returned for a spreadsheet whose schema could
	// not be synthesized.
	ErrSchemaUnavailable = errors.New("schema unavailable")
	// ErrUnknownSpreadsheet is returned for ids no source has reported.
	ErrUnknownSpreadsheet = errors.New("spreadsheet not found")
)

// allSpreadsheets labels refresh metrics that cover every spreadsheet.
const allSpreadsheets = "*"

// Snapshot is an immutable view of one spreadsheet's schema. When Err is set
// the spreadsheet is unavailable and Schema is nil.
type Snapshot struct {
	SpreadsheetID string
	Schema        *graphql.Schema
	Synthesized   *schemagen.Schema
	Handler       http.Handler
	BuiltAt       time.Time
	Fingerprint   string
	Err           error
}

// Available reports whether the snapshot can serve requests.
func (s *Snapshot) Available() bool {
	return s != nil && s.Err == nil && s.Schema != nil
}

// Settings returns the spreadsheet settings, or zero settings when the
// snapshot is unavailable.
func (s *Snapshot) Settings() metadata.Settings {
	if !s.Available() {
		return metadata.Settings{}
	}
	return s.Synthesized.Settings
}

// Config controls schema refresh behavior.
type Config struct {
	Source  metasource.Source
	Build   BuildSchemaConfig
	Logger  *logging.Logger
	Metrics *observability.SchemaRefreshMetrics
	// MinInterval and MaxInterval bound the poll backoff for sources that
	// cannot be watched, and the retry backoff of broken watches. A negative
	// MinInterval disables polling.
	MinInterval time.Duration
	MaxInterval time.Duration
	GraphiQL    bool
	// Concurrency bounds parallel rebuilds. Zero means 4.
	Concurrency int
}

// Manager maintains and refreshes schema snapshots.
type Manager struct {
	source      metasource.Source
	build       BuildSchemaConfig
	logger      *logging.Logger
	metrics     *observability.SchemaRefreshMetrics
	minInterval time.Duration
	maxInterval time.Duration
	pollEnabled bool
	graphiQL    bool
	concurrency int

	// mu serializes writers; readers only touch active.
	mu     sync.Mutex
	active atomic.Value // map[string]*Snapshot
	wg     sync.WaitGroup
}

// NewManager lists every spreadsheet, builds the initial snapshots and
// returns a manager. It fails only when the source yields nothing at all.
func NewManager(ctx context.Context, cfg Config) (*Manager, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("schema refresh manager requires a metadata source")
	}

	minInterval := cfg.MinInterval
	maxInterval := cfg.MaxInterval
	pollEnabled := minInterval >= 0
	if minInterval <= 0 {
		minInterval = 30 * time.Second
	}
	if maxInterval <= 0 {
		maxInterval = 5 * time.Minute
	}
	if maxInterval < minInterval {
		maxInterval = minInterval
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	m := &Manager{
		source:      cfg.Source,
		build:       cfg.Build,
		logger:      logging.OrDefault(cfg.Logger).WithFields(slog.String("component", "schema_refresh")),
		metrics:     cfg.Metrics,
		minInterval: minInterval,
		maxInterval: maxInterval,
		pollEnabled: pollEnabled,
		graphiQL:    cfg.GraphiQL,
		concurrency: concurrency,
	}
	m.active.Store(map[string]*Snapshot{})

	if _, err := m.refreshAll(ctx, observability.TriggerStartup); err != nil {
		return nil, err
	}
	return m, nil
}

// Start begins watching or polling the source in the background.
func (m *Manager) Start(ctx context.Context) {
	if w, ok := m.source.(metasource.Watcher); ok {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.watchLoop(ctx, w)
		}()
		return
	}
	if !m.pollEnabled {
		m.logger.Info("schema refresh disabled")
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.refreshLoop(ctx)
	}()
}

// Wait blocks until the background loop exits or the context is canceled.
func (m *Manager) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) snapshots() map[string]*Snapshot {
	if v, ok := m.active.Load().(map[string]*Snapshot); ok {
		return v
	}
	return nil
}

// swap must be called with mu held.
func (m *Manager) swap(next map[string]*Snapshot) {
	m.active.Store(next)
	if m.metrics != nil {
		m.metrics.SetAvailable(countAvailable(next))
	}
}

func countAvailable(snapshots map[string]*Snapshot) int {
	n := 0
	for _, snap := range snapshots {
		if snap.Available() {
			n++
		}
	}
	return n
}

// Snapshot returns the current snapshot of id. An unavailable spreadsheet
// returns its snapshot together with ErrSchemaUnavailable.
func (m *Manager) Snapshot(id string) (*Snapshot, error) {
	snap, ok := m.snapshots()[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSpreadsheet, id)
	}
	if !snap.Available() {
		return snap, fmt.Errorf("%w: %s: %w", ErrSchemaUnavailable, id, snap.Err)
	}
	return snap, nil
}

// SpreadsheetIDs returns the ids of all known spreadsheets, sorted.
func (m *Manager) SpreadsheetIDs() []string {
	current := m.snapshots()
	ids := make([]string, 0, len(current))
	for id := range current {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Available returns how many spreadsheets can serve requests.
func (m *Manager) Available() int {
	return countAvailable(m.snapshots())
}

// Handler returns the GraphQL handler of id, or a JSON error handler when
// the spreadsheet is unknown or unavailable.
func (m *Manager) Handler(id string) http.Handler {
	snap, err := m.Snapshot(id)
	if err != nil {
		status, message := HTTPStatus(err)
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			WriteError(w, status, message)
		})
	}
	return snap.Handler
}

// HTTPStatus maps a Snapshot error to a status code and public message.
func HTTPStatus(err error) (int, string) {
	switch {
	case errors.Is(err, ErrUnknownSpreadsheet):
		return http.StatusNotFound, ErrUnknownSpreadsheet.Error()
	case errors.Is(err, ErrSchemaUnavailable):
		return http.StatusServiceUnavailable, ErrSchemaUnavailable.Error()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// WriteError writes {"error": message} with status.
func WriteError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// RefreshAll re-reads every spreadsheet and swaps in the rebuilt snapshots.
func (m *Manager) RefreshAll(ctx context.Context, trigger string) error {
	_, err := m.refreshAll(ctx, trigger)
	return err
}

// Refresh re-reads one spreadsheet. A spreadsheet the source no longer has
// is removed. A synthesis failure leaves the spreadsheet unavailable and is
// returned.
func (m *Manager) Refresh(ctx context.Context, id, trigger string) error {
	start := time.Now()
	md, err := m.source.Get(ctx, id)
	if err != nil && !errors.Is(err, metasource.ErrNotFound) {
		m.recordRefresh(ctx, time.Since(start), false, trigger, id)
		return fmt.Errorf("failed to load metadata %s: %w", id, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	current := m.snapshots()

	if md == nil {
		if _, ok := current[id]; ok {
			next := cloneWithout(current, id)
			m.swap(next)
			m.logger.Info("spreadsheet removed", slog.String("spreadsheet_id", id), slog.String("trigger", trigger))
		}
		m.recordRefresh(ctx, time.Since(start), true, trigger, id)
		return nil
	}

	if prev, ok := current[id]; ok && prev.Fingerprint == md.Fingerprint() {
		m.logger.Debug("metadata unchanged", slog.String("spreadsheet_id", id), slog.String("trigger", trigger))
		m.recordRefresh(ctx, time.Since(start), prev.Available(), trigger, id)
		return prev.Err
	}

	snap := m.buildSnapshot(md)
	next := cloneWithout(current, "")
	next[id] = snap
	m.swap(next)
	m.recordRefresh(ctx, time.Since(start), snap.Available(), trigger, id)
	return snap.Err
}

func cloneWithout(current map[string]*Snapshot, skip string) map[string]*Snapshot {
	next := make(map[string]*Snapshot, len(current)+1)
	for id, snap := range current {
		if id != skip {
			next[id] = snap
		}
	}
	return next
}

// refreshAll reports how many spreadsheets were added, rebuilt or removed.
func (m *Manager) refreshAll(ctx context.Context, trigger string) (int, error) {
	start := time.Now()
	list, listErr := m.source.List(ctx)
	if listErr != nil && len(list) == 0 {
		m.recordRefresh(ctx, time.Since(start), false, trigger, allSpreadsheets)
		return 0, fmt.Errorf("failed to list metadata: %w", listErr)
	}
	if listErr != nil {
		m.logger.Warn("some metadata could not be loaded", slog.String("error", listErr.Error()))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	current := m.snapshots()

	seen := make(map[string]struct{}, len(list))
	built := make([]*Snapshot, len(list))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)
	for i, md := range list {
		if _, dup := seen[md.ID]; dup {
			m.logger.Warn("duplicate spreadsheet id, keeping the first", slog.String("spreadsheet_id", md.ID))
			continue
		}
		seen[md.ID] = struct{}{}
		if prev, ok := current[md.ID]; ok && prev.Fingerprint == md.Fingerprint() {
			built[i] = prev
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			built[i] = m.buildSnapshot(md)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		m.recordRefresh(ctx, time.Since(start), false, trigger, allSpreadsheets)
		return 0, err
	}

	next := make(map[string]*Snapshot, len(list))
	if listErr != nil {
		// Spreadsheets that failed to load keep serving their last snapshot.
		for id, snap := range current {
			next[id] = snap
		}
	}
	changed := 0
	for _, snap := range built {
		if snap == nil {
			continue
		}
		if current[snap.SpreadsheetID] != snap {
			changed++
		}
		next[snap.SpreadsheetID] = snap
	}
	for id := range current {
		if _, ok := next[id]; !ok {
			changed++
			m.logger.Info("spreadsheet removed", slog.String("spreadsheet_id", id), slog.String("trigger", trigger))
		}
	}
	m.swap(next)

	m.recordRefresh(ctx, time.Since(start), true, trigger, allSpreadsheets)
	if changed > 0 {
		m.logger.Info("schema refresh complete",
			slog.String("trigger", trigger),
			slog.Int("changed", changed),
			slog.Int("spreadsheets", len(next)),
			slog.Int("available", countAvailable(next)),
		)
	}
	return changed, nil
}

func (m *Manager) buildSnapshot(md *metadata.Metadata) *Snapshot {
	start := time.Now()
	snap := &Snapshot{
		SpreadsheetID: md.ID,
		Fingerprint:   md.Fingerprint(),
	}

	result, err := BuildSchema(md, m.build)
	snap.BuiltAt = time.Now()
	if err != nil {
		snap.Err = err
		attrs := []any{slog.String("spreadsheet_id", md.ID), slog.String("error", err.Error())}
		var synthErr *schemagen.SchemaSynthesisError
		if errors.As(err, &synthErr) {
			attrs = append(attrs, slog.String("stage", synthErr.Stage))
		}
		m.logger.Error("schema synthesis failed, spreadsheet unavailable", attrs...)
		return snap
	}

	snap.Synthesized = result.Synthesized
	snap.Schema = &result.GraphQLSchema
	snap.Handler = handler.New(&handler.Config{
		Schema:   snap.Schema,
		Pretty:   true,
		GraphiQL: m.graphiQL,
	})
	m.logger.Info("schema built",
		slog.String("spreadsheet_id", md.ID),
		slog.Int("sheets", len(result.Synthesized.Sheets)),
		slog.Int("resolvers", result.Registry.Len()),
		slog.Duration("duration", time.Since(start)),
	)
	return snap
}

func (m *Manager) watchLoop(ctx context.Context, w metasource.Watcher) {
	backoff := m.minInterval
	for {
		err := w.Watch(ctx, func(id string) {
			if err := m.Refresh(ctx, id, observability.TriggerWatch); err != nil {
				m.logger.Warn("schema refresh failed", slog.String("spreadsheet_id", id), slog.String("error", err.Error()))
			}
		})
		if ctx.Err() != nil {
			m.logger.Info("schema refresh stopped")
			return
		}
		m.logger.Warn("metadata watch ended, retrying",
			slog.Any("error", err),
			slog.Duration("retry_in", backoff),
		)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			m.logger.Info("schema refresh stopped")
			return
		case <-timer.C:
		}
		backoff = nextInterval(backoff, m.minInterval, m.maxInterval)

		// Changes made while the watch was down are only seen by a full pass.
		if _, err := m.refreshAll(ctx, observability.TriggerWatch); err != nil {
			m.logger.Warn("schema resync failed", slog.String("error", err.Error()))
		}
	}
}

func (m *Manager) refreshLoop(ctx context.Context) {
	interval := m.minInterval
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("schema refresh stopped")
			return
		case <-timer.C:
			interval = m.refreshOnce(ctx, interval)
			timer.Reset(interval)
		}
	}
}

func (m *Manager) refreshOnce(ctx context.Context, interval time.Duration) time.Duration {
	changed, err := m.refreshAll(ctx, observability.TriggerPoll)
	if err != nil {
		m.logger.Error("failed to refresh schemas", slog.String("error", err.Error()))
		return m.minInterval
	}
	if changed > 0 {
		return m.minInterval
	}
	return nextInterval(interval, m.minInterval, m.maxInterval)
}

func nextInterval(current, minInterval, maxInterval time.Duration) time.Duration {
	if current < minInterval {
		return minInterval
	}
	next := current + current/2
	if next > maxInterval {
		return maxInterval
	}
	return next
}

func (m *Manager) recordRefresh(ctx context.Context, duration time.Duration, success bool, trigger, spreadsheetID string) {
	if m.metrics == nil {
		return
	}
	m.metrics.RecordRefresh(ctx, duration, success, trigger, spreadsheetID)
}
