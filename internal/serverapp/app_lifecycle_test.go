package serverapp

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"sheetgql/internal/config"
	"sheetgql/internal/logging"
)

func testLogger() *logging.Logger {
	return logging.NewLogger(logging.Config{Level: "info", Format: "text"})
}

func TestWaitForStop_SignalWins(t *testing.T) {
	app := &App{logger: testLogger()}
	stop := make(chan os.Signal, 1)
	serverErrors := make(chan error, 1)

	stop <- syscall.SIGTERM

	reason, err := app.WaitForStop(stop, serverErrors)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reason != "signal" {
		t.Fatalf("expected reason=signal, got %q", reason)
	}
}

func TestWaitForStop_ServerErrorWins(t *testing.T) {
	app := &App{logger: testLogger()}
	stop := make(chan os.Signal, 1)
	serverErrors := make(chan error, 1)
	serverErrors <- errors.New("boom")

	reason, err := app.WaitForStop(stop, serverErrors)
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	if reason != "server_error" {
		t.Fatalf("expected reason=server_error, got %q", reason)
	}
}

func TestWaitForStop_NoChannels(t *testing.T) {
	app := &App{logger: testLogger()}
	if _, err := app.WaitForStop(nil, nil); err == nil {
		t.Fatalf("expected an error when there is nothing to wait on")
	}
}

func TestShutdown_Idempotent(t *testing.T) {
	app := &App{logger: testLogger()}
	var calls int32
	app.cleanup.push("test", func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := app.Shutdown(ctx); err != nil {
		t.Fatalf("first shutdown failed: %v", err)
	}
	if err := app.Shutdown(ctx); err != nil {
		t.Fatalf("second shutdown failed: %v", err)
	}

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected cleanup to run once, ran %d times", got)
	}
}

func TestCleanupStack_RunsInReverse(t *testing.T) {
	var order []string
	var s cleanupStack
	for _, name := range []string{"store", "source", "server"} {
		s.push(name, func(context.Context) error {
			order = append(order, name)
			return nil
		})
	}
	s.push("broken", func(context.Context) error { return errors.New("ignored") })

	s.run(context.Background(), logging.Discard())

	want := []string{"server", "source", "store"}
	if len(order) != len(want) {
		t.Fatalf("expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, order)
		}
	}
}

func TestStart_BeforeInit_Fails(t *testing.T) {
	app := &App{logger: testLogger()}
	if _, err := app.Start(); err == nil {
		t.Fatalf("expected start to fail before init")
	}
}

func TestStartAndShutdown_HappyPath(t *testing.T) {
	app := &App{
		cfg:        &config.Config{},
		logger:     testLogger(),
		serverAddr: "127.0.0.1:0",
		srv: &http.Server{
			Addr:    "127.0.0.1:0",
			Handler: http.NewServeMux(),
		},
		initialized: true,
	}
	app.cleanup.push("HTTP server", func(ctx context.Context) error {
		return app.srv.Shutdown(ctx)
	})

	first, err := app.Start()
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	second, err := app.Start()
	if err != nil {
		t.Fatalf("second start failed: %v", err)
	}
	if first != second {
		t.Fatalf("expected a second Start to return the same error channel")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := app.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
}

func TestNew_RequiresConfigAndLogger(t *testing.T) {
	if _, err := New(nil, testLogger()); err == nil {
		t.Fatalf("expected error without config")
	}
	if _, err := New(&config.Config{}, nil); err == nil {
		t.Fatalf("expected error without logger")
	}
}

func TestInitFailure_DoesNotMarkInitialized(t *testing.T) {
	appCfg := testConfig(t)
	appCfg.Metadata.Source = config.MetadataFile
	appCfg.Metadata.Dir = t.TempDir()
	if err := os.WriteFile(filepath.Join(appCfg.Metadata.Dir, "broken.json"), []byte(`{"id":`), 0o600); err != nil {
		t.Fatalf("write metadata: %v", err)
	}

	app, err := New(appCfg, testLogger())
	if err != nil {
		t.Fatalf("new failed: %v", err)
	}

	if err := app.Init(context.Background()); err == nil {
		t.Fatalf("expected init to fail when no metadata loads")
	}

	app.stateMu.Lock()
	initialized := app.initialized
	app.stateMu.Unlock()
	if initialized {
		t.Fatalf("app should not be marked initialized after failed Init")
	}
	if app.Handler() != nil {
		t.Fatalf("handler should stay nil after failed Init")
	}
}

func TestInitFailure_UnknownStore(t *testing.T) {
	appCfg := testConfig(t)
	appCfg.Store.Kind = "redis"

	app, err := New(appCfg, testLogger())
	if err != nil {
		t.Fatalf("new failed: %v", err)
	}
	if err := app.Init(context.Background()); err == nil {
		t.Fatalf("expected init to fail for an unknown store")
	}
}
