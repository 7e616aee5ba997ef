package metasource

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"sheetgql/internal/logging"
	"sheetgql/internal/metadata"
)

// KeyValue is the part of a JetStream key-value bucket the source uses.
// Keys are spreadsheet ids and values metadata JSON.
type KeyValue interface {
	Keys(ctx context.Context, opts ...jetstream.WatchOpt) ([]string, error)
	Get(ctx context.Context, key string) (jetstream.KeyValueEntry, error)
	WatchAll(ctx context.Context, opts ...jetstream.WatchOpt) (jetstream.KeyWatcher, error)
}

// KVSource reads metadata from a NATS JetStream key-value bucket and
// watches it for changes.
type KVSource struct {
	kv     KeyValue
	logger *logging.Logger
}

// NewKVSource creates a source over kv.
func NewKVSource(kv KeyValue, logger *logging.Logger) *KVSource {
	return &KVSource{kv: kv, logger: logging.OrDefault(logger).Component("metasource.kv")}
}

// ConnectKV dials NATS and opens bucket. The returned function closes the
// connection.
func ConnectKV(ctx context.Context, url, bucket string, timeout time.Duration, logger *logging.Logger) (*KVSource, func(), error) {
	opts := []nats.Option{nats.Name("sheetgql")}
	if timeout > 0 {
		opts = append(opts, nats.Timeout(timeout))
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}
	kv, err := js.KeyValue(ctx, bucket)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("failed to open key-value bucket %q: %w", bucket, err)
	}
	return NewKVSource(kv, logger), nc.Close, nil
}

func parseEntry(entry jetstream.KeyValueEntry) (*metadata.Metadata, error) {
	md, err := metadata.Parse(entry.Value())
	if err != nil {
		return nil, &LoadError{Origin: "key " + entry.Key(), Err: err}
	}
	if md.ID != entry.Key() {
		return nil, &LoadError{Origin: "key " + entry.Key(), Err: fmt.Errorf("metadata id %q does not match key", md.ID)}
	}
	return md, nil
}

// List implements Source.
func (s *KVSource) List(ctx context.Context) ([]*metadata.Metadata, error) {
	keys, err := s.kv.Keys(ctx)
	if errors.Is(err, jetstream.ErrNoKeysFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list metadata keys: %w", err)
	}
	sort.Strings(keys)

	var out []*metadata.Metadata
	var errs []error
	for _, key := range keys {
		md, err := s.Get(ctx, key)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			errs = append(errs, err)
			continue
		}
		out = append(out, md)
	}
	return out, errors.Join(errs...)
}

// Get implements Source.
func (s *KVSource) Get(ctx context.Context, id string) (*metadata.Metadata, error) {
	entry, err := s.kv.Get(ctx, id)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata %s: %w", id, err)
	}
	return parseEntry(entry)
}

// Watch implements Watcher. Puts and deletes are both reported; the caller
// finds out which by calling Get.
func (s *KVSource) Watch(ctx context.Context, onChange func(id string)) error {
	watcher, err := s.kv.WatchAll(ctx, jetstream.UpdatesOnly())
	if err != nil {
		return fmt.Errorf("failed to watch metadata bucket: %w", err)
	}
	defer func() {
		if err := watcher.Stop(); err != nil {
			s.logger.Warn("failed to stop metadata watcher", "error", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case entry, ok := <-watcher.Updates():
			if !ok {
				return errors.New("metadata watcher closed")
			}
			if entry == nil {
				continue
			}
			switch entry.Operation() {
			case jetstream.KeyValuePut, jetstream.KeyValueDelete, jetstream.KeyValuePurge:
				s.logger.Debug("metadata changed", "spreadsheet_id", entry.Key(), "operation", entry.Operation().String(), "revision", entry.Revision())
				onChange(entry.Key())
			}
		}
	}
}
