package config

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"

	"sheetgql/internal/datefmt"
	"sheetgql/internal/naming"

	"golang.org/x/text/language"
)

// ValidationError represents a configuration validation error with context.
type ValidationError struct {
	Field   string
	Message string
	Hint    string
}

func (e ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (hint: %s)", e.Field, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Field   string
	Message string
	Hint    string
}

// ValidationResult contains the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Error returns a combined error message if there are validation errors.
func (r *ValidationResult) Error() string {
	if !r.HasErrors() {
		return ""
	}
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

func (r *ValidationResult) fail(field, message, hint string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message, Hint: hint})
}

func (r *ValidationResult) warn(field, message, hint string) {
	r.Warnings = append(r.Warnings, ValidationWarning{Field: field, Message: message, Hint: hint})
}

// Validate checks the configuration. Errors are fatal; warnings are logged.
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{}
	c.Server.validate(result)
	c.Store.validate(result)
	c.Metadata.validate(result)
	c.Query.validate(result)
	validateNamingConfig(result, c.Naming)
	c.Observability.validate(result)

	if c.Store.Kind == StoreMemory && c.Metadata.Source != MetadataXLSX {
		result.warn("store.kind",
			"the memory store only holds data loaded from workbooks",
			"set metadata.source=xlsx or use the mysql or mongo store")
	}
	if c.Metadata.Source == MetadataXLSX && c.Store.Kind != StoreMemory {
		result.fail("store.kind",
			"the xlsx metadata source serves its data from the memory store",
			"set store.kind=memory")
	}
	return result
}

func (s *ServerConfig) validate(result *ValidationResult) {
	if s.Port < 1 || s.Port > 65535 {
		result.fail("server.port", fmt.Sprintf("port %d is out of valid range (1-65535)", s.Port), "")
	}

	if s.RateLimit.Enabled {
		if s.RateLimit.RPS <= 0 {
			result.fail("server.rate_limit.rps", "rps must be greater than 0 when rate limiting is enabled", "")
		}
		if s.RateLimit.Burst <= 0 {
			result.fail("server.rate_limit.burst", "burst must be greater than 0 when rate limiting is enabled", "")
		}
	} else if s.RateLimit.RPS > 0 || s.RateLimit.Burst > 0 {
		result.warn("server.rate_limit.enabled",
			"rate limit values are set but rate limiting is disabled",
			"enable server.rate_limit.enabled to apply rate limits")
	}

	if s.CORS.Enabled {
		if len(s.CORS.AllowedOrigins) == 0 {
			result.fail("server.cors.allowed_origins", "CORS enabled but no allowed origins configured",
				"set allowed_origins or disable CORS")
		}
		wildcard := false
		for _, origin := range s.CORS.AllowedOrigins {
			if strings.TrimSpace(origin) == "*" {
				wildcard = true
				break
			}
		}
		if wildcard && s.CORS.AllowCredentials {
			result.fail("server.cors.allowed_origins", "wildcard origin (*) cannot be used with credentials",
				"use specific origins with credentials, or wildcard without credentials")
		}
		if wildcard {
			result.warn("server.cors.allowed_origins", "CORS wildcard origin enabled",
				"use specific origins in production")
		}
	}

	s.Auth.validate(result)

	if s.Admin.ReloadEnabled && s.Auth.Mode == "none" && s.Admin.AuthToken == "" {
		result.warn("server.admin.reload_enabled",
			"admin reload endpoint is enabled without authentication",
			"set server.admin.auth_token or enable server.auth.mode")
	}
}

func (a *AuthConfig) validate(result *ValidationResult) {
	switch a.Mode {
	case "", "none":
	case "jwt":
		if a.JWTSecret == "" {
			result.fail("server.auth.jwt_secret", "secret is required when auth mode is jwt",
				"set server.auth.jwt_secret or server.auth.jwt_secret_file")
		} else if len(a.JWTSecret) < 32 {
			result.warn("server.auth.jwt_secret", "secret is shorter than 32 bytes", "use a longer random secret")
		}
	case "oidc":
		if a.OIDCIssuerURL == "" {
			result.fail("server.auth.oidc_issuer_url", "issuer URL is required when auth mode is oidc", "")
		} else if u, err := url.Parse(a.OIDCIssuerURL); err != nil || u.Scheme != "https" {
			result.fail("server.auth.oidc_issuer_url", "issuer URL must use https", "")
		}
		if a.Audience == "" {
			result.fail("server.auth.audience", "audience is required when auth mode is oidc", "")
		}
	default:
		result.fail("server.auth.mode", fmt.Sprintf("invalid auth mode %q", a.Mode), "valid values are: none, jwt, oidc")
	}
	if a.ClockSkew < 0 {
		result.fail("server.auth.clock_skew", "clock_skew cannot be negative", "")
	}
}

func (s *StoreConfig) validate(result *ValidationResult) {
	switch s.Kind {
	case StoreMemory:
	case StoreMySQL:
		if s.MySQL.DSN == "" && s.MySQL.Host == "" {
			result.fail("store.mysql.host", "host or dsn is required for the mysql store", "")
		}
		if s.MySQL.DSN != "" {
			if _, err := s.MySQL.FormatDSN(); err != nil {
				result.fail("store.mysql.dsn", err.Error(), "")
			}
		}
		if s.MySQL.Pool.MaxOpen < 0 || s.MySQL.Pool.MaxIdle < 0 {
			result.fail("store.mysql.pool", "pool sizes cannot be negative", "")
		}
	case StoreMongo:
		if s.Mongo.URI == "" {
			result.fail("store.mongo.uri", "uri is required for the mongo store", "")
		}
		if s.Mongo.Database == "" {
			result.fail("store.mongo.database", "database is required for the mongo store", "")
		}
	default:
		result.fail("store.kind", fmt.Sprintf("invalid store kind %q", s.Kind), "valid values are: memory, mysql, mongo")
	}
}

func (m *MetadataConfig) validate(result *ValidationResult) {
	switch m.Source {
	case MetadataFile:
		if m.Dir == "" {
			result.fail("metadata.dir", "dir is required for the file source", "")
		}
	case MetadataNATS:
		if m.NATSURL == "" {
			result.fail("metadata.nats_url", "nats_url is required for the nats source", "")
		}
		if m.Bucket == "" {
			result.fail("metadata.bucket", "bucket is required for the nats source", "")
		}
	case MetadataXLSX:
		if len(m.XLSXFiles) == 0 {
			result.fail("metadata.xlsx_files", "at least one workbook is required for the xlsx source", "")
		}
	default:
		result.fail("metadata.source", fmt.Sprintf("invalid metadata source %q", m.Source), "valid values are: file, nats, xlsx")
	}

	if m.RefreshMinInterval > 0 && m.RefreshMaxInterval > 0 && m.RefreshMaxInterval < m.RefreshMinInterval {
		result.fail("metadata.refresh_max_interval", "refresh_max_interval is below refresh_min_interval", "")
	}
	if m.RefreshConcurrency < 0 {
		result.fail("metadata.refresh_concurrency", "refresh_concurrency cannot be negative", "")
	}
	if m.PollInterval < 0 {
		result.fail("metadata.poll_interval", "poll_interval cannot be negative", "")
	}
}

func (q *QueryConfig) validate(result *ValidationResult) {
	if q.MaxLimit < 0 {
		result.fail("query.max_limit", "max_limit cannot be negative", "")
	}
	if q.MaxLimit > 0 && q.DefaultLimit > q.MaxLimit {
		result.warn("query.default_limit", "default_limit exceeds max_limit and will be clamped", "")
	}
	if q.DefaultZone != "" {
		if _, err := datefmt.LoadZone(q.DefaultZone); err != nil {
			result.fail("query.default_zone", err.Error(), "use an IANA zone name such as Europe/Paris")
		}
	}
	if q.DefaultLocale != "" {
		if _, err := language.Parse(q.DefaultLocale); err != nil {
			result.fail("query.default_locale", fmt.Sprintf("invalid locale %q", q.DefaultLocale), "use a BCP 47 tag such as en-US")
		}
	}
}

var graphQLNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func validateNamingConfig(result *ValidationResult, cfg naming.Config) {
	for title, typeName := range cfg.TypeOverrides {
		typeName = strings.TrimSpace(typeName)
		switch {
		case strings.TrimSpace(title) == "":
			result.fail("naming.type_overrides", "sheet title cannot be empty", "")
		case !graphQLNamePattern.MatchString(typeName):
			result.fail("naming.type_overrides",
				fmt.Sprintf("type override %q for sheet %q is not a GraphQL name", typeName, title), "")
		case strings.HasPrefix(typeName, "__"):
			result.fail("naming.type_overrides",
				fmt.Sprintf("type override %q for sheet %q uses the reserved __ prefix", typeName, title), "")
		}
	}
}

func (o *ObservabilityConfig) validate(result *ValidationResult) {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[o.Logging.Level] {
		result.fail("observability.logging.level", fmt.Sprintf("invalid log level %q", o.Logging.Level),
			"valid values are: debug, info, warn, error")
	}
	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[o.Logging.Format] {
		result.fail("observability.logging.format", fmt.Sprintf("invalid log format %q", o.Logging.Format),
			"valid values are: json, text")
	}
	if o.TraceSampleRatio < 0 || o.TraceSampleRatio > 1 {
		result.fail("observability.trace_sample_ratio", "trace_sample_ratio must be between 0 and 1", "")
	}

	o.OTLP.validate("observability.otlp", result)
	if o.Traces != nil {
		o.Traces.validate("observability.traces", result)
	}
	if o.Logs != nil {
		o.Logs.validate("observability.logs", result)
	}
}

func (o *OTLPConfig) validate(prefix string, result *ValidationResult) {
	validProtocols := map[string]bool{"": true, "grpc": true, "http/protobuf": true}
	if !validProtocols[o.Protocol] {
		result.fail(prefix+".protocol", fmt.Sprintf("invalid OTLP protocol %q", o.Protocol),
			"valid values are: grpc, http/protobuf")
	}
	if o.Protocol == "http/protobuf" && !validOTLPEndpoint(o.Endpoint) {
		result.fail(prefix+".endpoint", fmt.Sprintf("invalid OTLP endpoint %q for http/protobuf", o.Endpoint),
			"use host:port or a full URL")
	}
	validCompressions := map[string]bool{"": true, "none": true, "gzip": true}
	if !validCompressions[o.Compression] {
		result.fail(prefix+".compression", fmt.Sprintf("invalid OTLP compression %q", o.Compression),
			"valid values are: none, gzip")
	}
}

func validOTLPEndpoint(endpoint string) bool {
	if endpoint == "" {
		return false
	}
	if strings.Contains(endpoint, "://") {
		parsed, err := url.Parse(endpoint)
		if err != nil {
			return false
		}
		return parsed.Host != ""
	}
	_, _, err := net.SplitHostPort(endpoint)
	return err == nil
}
