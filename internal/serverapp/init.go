package serverapp

import (
	"context"
	"fmt"
	"log/slog"

	"sheetgql/internal/resolver"
	"sheetgql/internal/schemarefresh"
)

// Init acquires every runtime resource. It is idempotent; on failure the
// resources acquired so far are released.
func (a *App) Init(ctx context.Context) error {
	a.stateMu.Lock()
	if a.initialized {
		a.stateMu.Unlock()
		return nil
	}
	a.stateMu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}

	cleanup := cleanupStack{}
	success := false
	defer func() {
		if !success {
			cleanup.run(context.Background(), a.logger)
		}
	}()

	if a.loggerProvider != nil {
		cleanup.push("logger provider", func(shutdownCtx context.Context) error {
			return a.loggerProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	tel, err := initTelemetry(a.cfg, a.logger, &cleanup)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	opened, err := openStore(ctx, a.cfg, a.logger, tel.store, &cleanup)
	if err != nil {
		return err
	}

	source, err := openSource(ctx, a.cfg, a.logger, opened.memory, &cleanup)
	if err != nil {
		return fmt.Errorf("failed to open metadata source: %w", err)
	}

	q := a.cfg.Query
	manager, err := schemarefresh.NewManager(ctx, schemarefresh.Config{
		Source: source,
		Build: schemarefresh.BuildSchemaConfig{
			Naming: a.cfg.Naming,
			Query: resolver.Options{
				DefaultLimit:  q.DefaultLimit,
				MaxLimit:      q.MaxLimit,
				DefaultZone:   q.DefaultZone,
				DefaultLocale: q.DefaultLocale,
			},
		},
		Logger:      a.logger,
		Metrics:     tel.refresh,
		MinInterval: a.cfg.Metadata.RefreshMinInterval,
		MaxInterval: a.cfg.Metadata.RefreshMaxInterval,
		GraphiQL:    a.cfg.Server.GraphiQLEnabled,
		Concurrency: a.cfg.Metadata.RefreshConcurrency,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize schema refresh manager: %w", err)
	}
	schemaCtx, schemaCancel := context.WithCancel(context.Background())
	manager.Start(schemaCtx)
	cleanup.push("schema manager", func(shutdownCtx context.Context) error {
		schemaCancel()
		return manager.Wait(shutdownCtx)
	})
	a.logger.Info("spreadsheet schemas loaded",
		slog.Int("spreadsheets", len(manager.SpreadsheetIDs())),
		slog.Int("available", manager.Available()),
	)

	mux, err := buildRouter(routeDeps{
		cfg:       a.cfg,
		logger:    a.logger,
		manager:   manager,
		stores:    opened.provider,
		health:    opened.health,
		telemetry: tel,
	})
	if err != nil {
		return err
	}
	handler := wrapHTTPHandler(a.cfg, a.logger, mux)

	serverAddr := fmt.Sprintf(":%d", a.cfg.Server.Port)
	srv := buildServer(a.cfg, handler, serverAddr)
	cleanup.push("HTTP server", srv.Shutdown)

	a.stateMu.Lock()
	a.telemetry = tel
	a.stores = opened.provider
	a.health = opened.health
	a.source = source
	a.manager = manager
	a.schemaCancel = schemaCancel
	a.handler = handler
	a.serverAddr = serverAddr
	a.srv = srv
	a.cleanup = cleanup
	a.initialized = true
	a.stateMu.Unlock()

	success = true
	return nil
}
