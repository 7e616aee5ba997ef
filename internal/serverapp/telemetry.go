package serverapp

import (
	"context"
	"log/slog"

	"sheetgql/internal/config"
	"sheetgql/internal/logging"
	"sheetgql/internal/observability"
)

// InitLogger builds the process logger and, when log export is enabled, the
// OTLP logger provider it fans out to.
func InitLogger(cfg *config.Config) (*logging.Logger, *observability.LoggerProvider, error) {
	loggerCfg := logging.Config{
		Level:  cfg.Observability.Logging.Level,
		Format: cfg.Observability.Logging.Format,
	}
	logger := logging.NewLogger(loggerCfg)
	slog.SetDefault(logger.Logger)

	if !cfg.Observability.Logging.ExportsEnabled {
		return logger, nil, nil
	}

	logsConfig := cfg.Observability.LogsConfig()
	logger.Info("initializing OpenTelemetry logging",
		slog.String("otlp_endpoint", logsConfig.Endpoint),
		slog.String("otlp_protocol", logsConfig.Protocol),
		slog.Bool("insecure", logsConfig.Insecure),
	)
	loggerProvider, err := observability.InitLoggerProvider(otelConfig(cfg, logsConfig))
	if err != nil {
		return nil, nil, err
	}

	loggerCfg.LoggerProvider = loggerProvider.Provider()
	logger = logging.NewLogger(loggerCfg)
	slog.SetDefault(logger.Logger)
	logger.Info("OpenTelemetry logging initialized")
	return logger, loggerProvider, nil
}

func otelConfig(cfg *config.Config, otlp config.OTLPConfig) observability.Config {
	return observability.Config{
		ServiceName:      cfg.Observability.ServiceName,
		ServiceVersion:   cfg.Observability.ServiceVersion,
		Environment:      cfg.Observability.Environment,
		TraceSampleRatio: cfg.Observability.TraceSampleRatio,
		OTLPConfig: observability.OTLPExporterConfig{
			Endpoint:          otlp.Endpoint,
			Protocol:          otlp.Protocol,
			Insecure:          otlp.Insecure,
			TLSCertFile:       otlp.TLSCertFile,
			TLSClientCertFile: otlp.TLSClientCertFile,
			TLSClientKeyFile:  otlp.TLSClientKeyFile,
			Headers:           otlp.Headers,
			Timeout:           otlp.Timeout,
			Compression:       otlp.Compression,
			RetryEnabled:      otlp.RetryEnabled,
		},
	}
}

// telemetry holds the providers and instruments the server records into.
// Every field is nil when its signal is disabled.
type telemetry struct {
	meterProvider  *observability.MeterProvider
	tracerProvider *observability.TracerProvider

	graphql  *observability.GraphQLMetrics
	refresh  *observability.SchemaRefreshMetrics
	security *observability.SecurityMetrics
	store    *observability.StoreMetrics
}

func initTelemetry(cfg *config.Config, logger *logging.Logger, cleanup *cleanupStack) (*telemetry, error) {
	t := &telemetry{}

	if cfg.Observability.MetricsEnabled {
		logger.Info("initializing OpenTelemetry metrics",
			slog.String("service_name", cfg.Observability.ServiceName),
			slog.String("environment", cfg.Observability.Environment),
		)
		mp, err := observability.InitMeterProvider(otelConfig(cfg, config.OTLPConfig{}))
		if err != nil {
			return nil, err
		}
		t.meterProvider = mp
		cleanup.push("meter provider", func(ctx context.Context) error {
			return mp.Shutdown(ctx, logger.Logger)
		})

		if t.graphql, err = observability.InitMetrics(logger.Logger); err != nil {
			return nil, err
		}
		if t.refresh, err = observability.InitSchemaRefreshMetrics(logger.Logger); err != nil {
			return nil, err
		}
		if t.security, err = observability.InitSecurityMetrics(); err != nil {
			return nil, err
		}
		if t.store, err = observability.InitStoreMetrics(); err != nil {
			return nil, err
		}
	}

	if cfg.Observability.TracingEnabled {
		tracesConfig := cfg.Observability.TracesConfig()
		logger.Info("initializing OpenTelemetry tracing",
			slog.String("otlp_endpoint", tracesConfig.Endpoint),
			slog.String("otlp_protocol", tracesConfig.Protocol),
			slog.Float64("sample_ratio", cfg.Observability.TraceSampleRatio),
		)
		tp, err := observability.InitTracerProvider(otelConfig(cfg, tracesConfig))
		if err != nil {
			return nil, err
		}
		t.tracerProvider = tp
		cleanup.push("tracer provider", func(ctx context.Context) error {
			return tp.Shutdown(ctx, logger.Logger)
		})
	}
	return t, nil
}
