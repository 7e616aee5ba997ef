// Package config loads configuration from files, env vars, and flags, and validates it.
package config

import (
	"time"

	"sheetgql/internal/naming"
)

// Store kinds.
const (
	StoreMemory = "memory"
	StoreMySQL  = "mysql"
	StoreMongo  = "mongo"
)

// Metadata source kinds.
const (
	MetadataFile = "file"
	MetadataNATS = "nats"
	MetadataXLSX = "xlsx"
)

// Config holds the application configuration.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Store         StoreConfig         `mapstructure:"store"`
	Metadata      MetadataConfig      `mapstructure:"metadata"`
	Query         QueryConfig         `mapstructure:"query"`
	Naming        naming.Config       `mapstructure:"naming"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// AuthConfig selects how bearer tokens are verified.
type AuthConfig struct {
	Mode          string        `mapstructure:"mode"` // none, jwt, oidc
	JWTSecret     string        `mapstructure:"jwt_secret"`
	JWTSecretFile string        `mapstructure:"jwt_secret_file"`
	OIDCIssuerURL string        `mapstructure:"oidc_issuer_url"`
	OIDCCAFile    string        `mapstructure:"oidc_ca_file"`
	Issuer        string        `mapstructure:"issuer"`
	Audience      string        `mapstructure:"audience"`
	ClockSkew     time.Duration `mapstructure:"clock_skew"`
	// SpreadsheetsClaim names the claim listing the spreadsheets a token may query.
	SpreadsheetsClaim string `mapstructure:"spreadsheets_claim"`
}

// AdminConfig controls the reload endpoint.
type AdminConfig struct {
	ReloadEnabled bool   `mapstructure:"reload_enabled"`
	AuthToken     string `mapstructure:"auth_token"`
	AuthTokenFile string `mapstructure:"auth_token_file"`
}

// RateLimitConfig holds token bucket parameters.
type RateLimitConfig struct {
	Enabled   bool    `mapstructure:"enabled"`
	RPS       float64 `mapstructure:"rps"`
	Burst     int     `mapstructure:"burst"`
	PerClient bool    `mapstructure:"per_client"`
}

// CORSConfig holds cross-origin settings.
type CORSConfig struct {
	Enabled          bool     `mapstructure:"enabled"`
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	ExposeHeaders    []string `mapstructure:"expose_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port               int             `mapstructure:"port"`
	GraphiQLEnabled    bool            `mapstructure:"graphiql_enabled"`
	ZoneHeader         string          `mapstructure:"zone_header"`
	ReadTimeout        time.Duration   `mapstructure:"read_timeout"`
	WriteTimeout       time.Duration   `mapstructure:"write_timeout"`
	IdleTimeout        time.Duration   `mapstructure:"idle_timeout"`
	ShutdownTimeout    time.Duration   `mapstructure:"shutdown_timeout"`
	HealthCheckTimeout time.Duration   `mapstructure:"health_check_timeout"`
	Auth               AuthConfig      `mapstructure:"auth"`
	Admin              AdminConfig     `mapstructure:"admin"`
	RateLimit          RateLimitConfig `mapstructure:"rate_limit"`
	CORS               CORSConfig      `mapstructure:"cors"`
}

// PoolConfig holds connection pool parameters.
type PoolConfig struct {
	MaxOpen     int           `mapstructure:"max_open"`
	MaxIdle     int           `mapstructure:"max_idle"`
	MaxLifetime time.Duration `mapstructure:"max_lifetime"`
}

// MySQLConfig locates the TiDB/MySQL documents table.
type MySQLConfig struct {
	DSN            string     `mapstructure:"dsn"`
	DSNFile        string     `mapstructure:"dsn_file"`
	Host           string     `mapstructure:"host"`
	Port           int        `mapstructure:"port"`
	User           string     `mapstructure:"user"`
	Password       string     `mapstructure:"password"`
	PasswordFile   string     `mapstructure:"password_file"`
	PasswordPrompt bool       `mapstructure:"password_prompt"`
	Database       string     `mapstructure:"database"`
	Table          string     `mapstructure:"table"`
	TLS            string     `mapstructure:"tls"` // driver tls parameter: false, true, skip-verify, preferred
	Pool           PoolConfig `mapstructure:"pool"`
}

// MongoConfig locates the document collections.
type MongoConfig struct {
	URI              string `mapstructure:"uri"`
	Database         string `mapstructure:"database"`
	CollectionPrefix string `mapstructure:"collection_prefix"`
}

// StoreConfig selects the document store.
type StoreConfig struct {
	Kind           string        `mapstructure:"kind"` // memory, mysql, mongo
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	MySQL          MySQLConfig   `mapstructure:"mysql"`
	Mongo          MongoConfig   `mapstructure:"mongo"`
}

// MetadataConfig selects where spreadsheet metadata comes from and how often
// it is re-read.
type MetadataConfig struct {
	Source             string        `mapstructure:"source"` // file, nats, xlsx
	Dir                string        `mapstructure:"dir"`
	NATSURL            string        `mapstructure:"nats_url"`
	Bucket             string        `mapstructure:"bucket"`
	XLSXFiles          []string      `mapstructure:"xlsx_files"`
	PollInterval       time.Duration `mapstructure:"poll_interval"`
	RefreshMinInterval time.Duration `mapstructure:"refresh_min_interval"`
	RefreshMaxInterval time.Duration `mapstructure:"refresh_max_interval"`
	RefreshConcurrency int           `mapstructure:"refresh_concurrency"`
}

// QueryConfig holds resolver defaults.
type QueryConfig struct {
	DefaultLimit  int64  `mapstructure:"default_limit"`
	MaxLimit      int64  `mapstructure:"max_limit"`
	DefaultZone   string `mapstructure:"default_zone"`
	DefaultLocale string `mapstructure:"default_locale"`
}

// LoggingConfig holds logging parameters.
type LoggingConfig struct {
	Level          string `mapstructure:"level"`           // debug, info, warn, error
	Format         string `mapstructure:"format"`          // json, text
	ExportsEnabled bool   `mapstructure:"exports_enabled"` // Enable OTLP log export
}

// ObservabilityConfig holds observability parameters.
type ObservabilityConfig struct {
	ServiceName         string        `mapstructure:"service_name"`
	ServiceVersion      string        `mapstructure:"service_version"`
	Environment         string        `mapstructure:"environment"`
	MetricsEnabled      bool          `mapstructure:"metrics_enabled"`
	TracingEnabled      bool          `mapstructure:"tracing_enabled"`
	TraceSampleRatio    float64       `mapstructure:"trace_sample_ratio"`
	SQLCommenterEnabled bool          `mapstructure:"sqlcommenter_enabled"`
	Logging             LoggingConfig `mapstructure:"logging"`

	// Global OTLP settings, overridable per signal.
	OTLP   OTLPConfig  `mapstructure:"otlp"`
	Traces *OTLPConfig `mapstructure:"traces,omitempty"`
	Logs   *OTLPConfig `mapstructure:"logs,omitempty"`
}

// OTLPConfig holds OTLP exporter configuration.
type OTLPConfig struct {
	Endpoint          string            `mapstructure:"endpoint"`
	Protocol          string            `mapstructure:"protocol"` // "grpc", "http/protobuf"
	Insecure          bool              `mapstructure:"insecure"`
	TLSCertFile       string            `mapstructure:"tls_cert_file"`
	TLSClientCertFile string            `mapstructure:"tls_client_cert_file"`
	TLSClientKeyFile  string            `mapstructure:"tls_client_key_file"`
	Headers           map[string]string `mapstructure:"headers"`
	Timeout           time.Duration     `mapstructure:"timeout"`
	Compression       string            `mapstructure:"compression"` // "none", "gzip"
	RetryEnabled      bool              `mapstructure:"retry_enabled"`
}

// TracesConfig returns the effective OTLP config for traces.
func (c *ObservabilityConfig) TracesConfig() OTLPConfig {
	if c.Traces != nil {
		return mergeOTLPConfigs(c.OTLP, *c.Traces)
	}
	return c.OTLP
}

// LogsConfig returns the effective OTLP config for logs.
func (c *ObservabilityConfig) LogsConfig() OTLPConfig {
	if c.Logs != nil {
		return mergeOTLPConfigs(c.OTLP, *c.Logs)
	}
	return c.OTLP
}

// mergeOTLPConfigs lays the set fields of override over base. Insecure and
// RetryEnabled always come from the override.
func mergeOTLPConfigs(base, override OTLPConfig) OTLPConfig {
	out := base
	if override.Endpoint != "" {
		out.Endpoint = override.Endpoint
	}
	if override.Protocol != "" {
		out.Protocol = override.Protocol
	}
	out.Insecure = override.Insecure
	out.RetryEnabled = override.RetryEnabled
	if override.TLSCertFile != "" {
		out.TLSCertFile = override.TLSCertFile
	}
	if override.TLSClientCertFile != "" {
		out.TLSClientCertFile = override.TLSClientCertFile
	}
	if override.TLSClientKeyFile != "" {
		out.TLSClientKeyFile = override.TLSClientKeyFile
	}
	if override.Headers != nil {
		out.Headers = make(map[string]string, len(base.Headers)+len(override.Headers))
		for k, v := range base.Headers {
			out.Headers[k] = v
		}
		for k, v := range override.Headers {
			out.Headers[k] = v
		}
	}
	if override.Timeout != 0 {
		out.Timeout = override.Timeout
	}
	if override.Compression != "" {
		out.Compression = override.Compression
	}
	return out
}
