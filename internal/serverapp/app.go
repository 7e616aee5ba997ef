// Package serverapp wires configuration, stores, metadata sources and the
// schema manager into the sheetgql HTTP server and owns its lifecycle.
package serverapp

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"sheetgql/internal/config"
	"sheetgql/internal/logging"
	"sheetgql/internal/metasource"
	"sheetgql/internal/observability"
	"sheetgql/internal/schemarefresh"
	"sheetgql/internal/store"
)

// App owns runtime resources for the sheetgql server lifecycle.
type App struct {
	cfg    *config.Config
	logger *logging.Logger

	loggerProvider *observability.LoggerProvider
	telemetry      *telemetry

	stores store.Provider
	health healthCheck
	source metasource.Source

	manager      *schemarefresh.Manager
	schemaCancel context.CancelFunc

	handler    http.Handler
	serverAddr string
	srv        *http.Server

	cleanup cleanupStack

	stateMu      sync.Mutex
	initialized  bool
	started      bool
	serverErrors chan error

	shutdownOnce sync.Once
}

// New creates an App lifecycle wrapper.
func New(cfg *config.Config, logger *logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &App{cfg: cfg, logger: logger}, nil
}

// AttachLoggerProvider registers an optional logger provider for shutdown cleanup.
func (a *App) AttachLoggerProvider(provider *observability.LoggerProvider) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	a.loggerProvider = provider
}

// Handler returns the root HTTP handler. It is nil before Init.
func (a *App) Handler() http.Handler {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.handler
}

// Manager returns the schema manager. It is nil before Init.
func (a *App) Manager() *schemarefresh.Manager {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.manager
}
