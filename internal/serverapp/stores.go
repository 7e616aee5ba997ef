package serverapp

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"sheetgql/internal/config"
	"sheetgql/internal/logging"
	"sheetgql/internal/metasource"
	"sheetgql/internal/observability"
	"sheetgql/internal/store"
	"sheetgql/internal/store/memstore"
	"sheetgql/internal/store/mongostore"
	"sheetgql/internal/store/sqlstore"

	"github.com/XSAM/otelsql"
	_ "github.com/go-sql-driver/mysql"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// healthCheck reports whether the document store is reachable.
type healthCheck func(ctx context.Context) error

func alwaysHealthy(context.Context) error { return nil }

// openedStore is the document store selected by configuration.
type openedStore struct {
	provider store.Provider
	// memory is set for the memory store so workbook sources can fill it.
	memory *memstore.Provider
	health healthCheck
}

func openStore(ctx context.Context, cfg *config.Config, logger *logging.Logger, metrics *observability.StoreMetrics, cleanup *cleanupStack) (*openedStore, error) {
	var opened *openedStore
	switch cfg.Store.Kind {
	case config.StoreMemory:
		mem := memstore.New()
		opened = &openedStore{provider: mem, memory: mem, health: alwaysHealthy}
		logger.Info("using in-memory document store")
	case config.StoreMySQL:
		db, err := openMySQL(ctx, cfg, logger, cleanup)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to mysql: %w", err)
		}
		opened = &openedStore{
			provider: sqlstore.New(db, sqlstore.WithTable(cfg.Store.MySQL.Table)),
			health:   db.PingContext,
		}
	case config.StoreMongo:
		client, provider, err := mongostore.Connect(ctx, cfg.Store.Mongo.URI, cfg.Store.Mongo.Database,
			cfg.Store.Mongo.CollectionPrefix, cfg.Store.ConnectTimeout)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to mongo: %w", err)
		}
		cleanup.push("mongo client", client.Disconnect)
		logger.Info("connected to mongo",
			slog.String("database", cfg.Store.Mongo.Database),
			slog.String("collection_prefix", cfg.Store.Mongo.CollectionPrefix),
		)
		opened = &openedStore{
			provider: provider,
			health:   func(ctx context.Context) error { return client.Ping(ctx, nil) },
		}
	default:
		return nil, fmt.Errorf("unknown store kind %q", cfg.Store.Kind)
	}

	opened.provider = store.InstrumentProvider(opened.provider, cfg.Store.Kind, metrics)
	return opened, nil
}

func openMySQL(ctx context.Context, cfg *config.Config, logger *logging.Logger, cleanup *cleanupStack) (*sql.DB, error) {
	dsn, err := cfg.Store.MySQL.FormatDSN()
	if err != nil {
		return nil, err
	}

	opts := []otelsql.Option{otelsql.WithAttributes(semconv.DBSystemMySQL)}
	if cfg.Observability.TracingEnabled {
		opts = append(opts, otelsql.WithSpanOptions(otelsql.SpanOptions{DisableErrSkip: true}))
		if cfg.Observability.SQLCommenterEnabled {
			opts = append(opts, otelsql.WithSQLCommenter(true))
		}
	} else if cfg.Observability.SQLCommenterEnabled {
		logger.Debug("sqlcommenter requires tracing, skipping")
	}

	db, err := otelsql.Open("mysql", dsn, opts...)
	if err != nil {
		return nil, err
	}

	var statsReg interface{ Unregister() error }
	if cfg.Observability.MetricsEnabled {
		statsReg, err = otelsql.RegisterDBStatsMetrics(db, otelsql.WithAttributes(semconv.DBSystemMySQL))
		if err != nil {
			logger.Warn("failed to register DB stats metrics", slog.String("error", err.Error()))
		}
	}
	cleanup.push("database", func(context.Context) error {
		if statsReg != nil {
			if err := statsReg.Unregister(); err != nil {
				logger.Warn("failed to unregister DB stats metrics", slog.String("error", err.Error()))
			}
		}
		return db.Close()
	})

	pool := cfg.Store.MySQL.Pool
	db.SetMaxOpenConns(pool.MaxOpen)
	db.SetMaxIdleConns(pool.MaxIdle)
	db.SetConnMaxLifetime(pool.MaxLifetime)

	if err := waitForDatabase(ctx, db, cfg.Store.ConnectTimeout, logger); err != nil {
		return nil, err
	}
	logger.Info("connected to mysql",
		slog.String("table", cfg.Store.MySQL.Table),
		slog.Int("pool_max_open", pool.MaxOpen),
		slog.Int("pool_max_idle", pool.MaxIdle),
		slog.Duration("pool_max_lifetime", pool.MaxLifetime),
	)
	return db, nil
}

// waitForDatabase pings until the database answers or timeout passes. A zero
// timeout pings once.
func waitForDatabase(ctx context.Context, db *sql.DB, timeout time.Duration, logger *logging.Logger) error {
	if timeout <= 0 {
		return db.PingContext(ctx)
	}

	deadline := time.Now().Add(timeout)
	interval := 500 * time.Millisecond
	for attempt := 1; ; attempt++ {
		err := db.PingContext(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Info("database connection established", slog.Int("attempts", attempt))
			}
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("database not available after %v: %w", timeout, err)
		}
		logger.Warn("database not ready, retrying",
			slog.Int("attempt", attempt),
			slog.Duration("retry_in", interval),
			slog.String("error", err.Error()),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
		interval = min(interval*2, 30*time.Second)
	}
}

func openSource(ctx context.Context, cfg *config.Config, logger *logging.Logger, mem *memstore.Provider, cleanup *cleanupStack) (metasource.Source, error) {
	md := cfg.Metadata
	switch md.Source {
	case config.MetadataFile:
		logger.Info("reading spreadsheet metadata from directory", slog.String("dir", md.Dir))
		return metasource.NewFileSource(md.Dir, md.PollInterval, logger), nil
	case config.MetadataNATS:
		src, closeConn, err := metasource.ConnectKV(ctx, md.NATSURL, md.Bucket, cfg.Store.ConnectTimeout, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open metadata bucket: %w", err)
		}
		cleanup.push("nats connection", func(context.Context) error {
			closeConn()
			return nil
		})
		logger.Info("reading spreadsheet metadata from key-value bucket", slog.String("bucket", md.Bucket))
		return src, nil
	case config.MetadataXLSX:
		if mem == nil {
			return nil, fmt.Errorf("the xlsx metadata source requires the memory store")
		}
		src, err := metasource.NewXLSXSource(md.XLSXFiles, mem, md.PollInterval, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("loading spreadsheets from workbooks", slog.Int("workbooks", len(md.XLSXFiles)))
		return src, nil
	default:
		return nil, fmt.Errorf("unknown metadata source %q", md.Source)
	}
}
