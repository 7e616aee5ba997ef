// Package logging builds the service's slog logger and carries request and
// spreadsheet scoped loggers through a context.
//
// Records always go to a local handler (stdout unless Config.Output says
// otherwise). When an OTLP logger provider is configured they are also
// bridged to it through otelslog, so exported records keep the trace
// correlation the bridge adds.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/sdk/log"
)

// ServiceName is the instrumentation scope of exported log records.
const ServiceName = "sheetgql"

// Field names shared by every component.
const (
	RequestIDField   = "request_id"
	SpreadsheetField = "spreadsheet_id"
	ComponentField   = "component"
)

type contextKey int

const (
	loggerKey contextKey = iota
	requestIDKey
)

// Logger is the service logger. It embeds slog.Logger so call sites use the
// slog API directly.
type Logger struct {
	*slog.Logger
}

// Config selects the level, the local format and an optional OTLP export.
type Config struct {
	Level          string // debug, info, warn, error
	Format         string // json or text
	LoggerProvider *log.LoggerProvider
	Output         io.Writer
}

// ParseLevel maps a configured level name onto a slog level. Unknown names
// fall back to info.
func ParseLevel(name string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(name))); err != nil {
		return slog.LevelInfo
	}
	return level
}

// NewLogger builds the logger described by cfg.
func NewLogger(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	level := ParseLevel(cfg.Level)
	opts := &slog.HandlerOptions{Level: level, AddSource: level <= slog.LevelDebug}

	var local slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		local = slog.NewJSONHandler(out, opts)
	} else {
		local = slog.NewTextHandler(out, opts)
	}

	handler := local
	if cfg.LoggerProvider != nil {
		handler = fanout{local, otelslog.NewHandler(ServiceName, otelslog.WithLoggerProvider(cfg.LoggerProvider))}
	}
	return &Logger{Logger: slog.New(handler)}
}

// fanout hands every record to each handler that accepts its level.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, record slog.Record) error {
	for _, h := range f {
		if !h.Enabled(ctx, record.Level) {
			continue
		}
		if err := h.Handle(ctx, record.Clone()); err != nil {
			return err
		}
	}
	return nil
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}

// WithFields returns a child logger carrying extra attributes.
func (l *Logger) WithFields(fields ...any) *Logger {
	return &Logger{Logger: l.With(fields...)}
}

// WithRequestID tags records with the HTTP request id.
func (l *Logger) WithRequestID(requestID string) *Logger {
	return l.WithFields(slog.String(RequestIDField, requestID))
}

// Spreadsheet tags records with the spreadsheet being served.
func (l *Logger) Spreadsheet(id string) *Logger {
	return l.WithFields(slog.String(SpreadsheetField, id))
}

// Component tags records with the emitting component.
func (l *Logger) Component(name string) *Logger {
	return l.WithFields(slog.String(ComponentField, name))
}

// OrDefault returns l, or a logger over slog.Default when l is nil.
func OrDefault(l *Logger) *Logger {
	if l != nil {
		return l
	}
	return &Logger{Logger: slog.Default()}
}

// Discard returns a logger that drops every record.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.DiscardHandler)}
}

// FromContext returns the request logger stored in ctx, or the default one.
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(loggerKey).(*Logger); ok {
		return logger
	}
	return OrDefault(nil)
}

func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// GetRequestID returns the request id stored by WithRequestIDContext.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func WithRequestIDContext(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}
