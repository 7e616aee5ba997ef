package config

import (
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"syscall"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

// EnvPrefix prefixes every environment variable, e.g. SHEETGQL_STORE_KIND.
const EnvPrefix = "SHEETGQL"

// stdinPath makes a *_file setting read from standard input.
const stdinPath = "@-"

// Load reads configuration from the process flags with the following
// precedence:
// 1. Explicit overrides (v.Set) for secrets read from files or the prompt
// 2. Command line flags
// 3. Environment variables
// 4. Config file
// 5. Default values
func Load() (*Config, error) {
	return LoadArgs(pflag.CommandLine, os.Args[1:])
}

// LoadArgs is Load over an explicit flag set and argument list. Flags are
// defined on fs if it does not already carry them.
func LoadArgs(fs *pflag.FlagSet, args []string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	defineFlags(fs)
	if !fs.Parsed() {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
	}

	cfgPath, _ := fs.GetString("config")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.SetConfigName("sheetgql")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/sheetgql/")
		v.AddConfigPath("$HOME/.sheetgql")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		if cfgPath != "" {
			return nil, fmt.Errorf("failed to read config file %q: %w", cfgPath, err)
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	bindChangedFlags(fs, v)
	if err := validateSingleStdinFileSource(v); err != nil {
		return nil, err
	}
	if err := loadSecrets(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.UnmarshalExact(&cfg, viper.DecodeHook(decodeHook())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

func decodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		stringToStringSliceHookFunc(","),
	)
}

// secretFiles maps each secret to the setting naming a file it can be read from.
var secretFiles = []struct {
	key, fileKey, what string
}{
	{"store.mysql.dsn", "store.mysql.dsn_file", "mysql DSN"},
	{"store.mysql.password", "store.mysql.password_file", "mysql password"},
	{"server.auth.jwt_secret", "server.auth.jwt_secret_file", "JWT secret"},
	{"server.admin.auth_token", "server.admin.auth_token_file", "admin auth token"},
}

func loadSecrets(v *viper.Viper) error {
	for _, s := range secretFiles {
		if v.GetString(s.key) != "" || v.GetString(s.fileKey) == "" {
			continue
		}
		path := v.GetString(s.fileKey)
		secret, err := readSecretFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s file: %w", s.what, err)
		}
		if secret == "" {
			return fmt.Errorf("%s file %q is empty", s.what, path)
		}
		v.Set(s.key, secret)
	}

	if v.GetString(storeKindKey) == StoreMySQL &&
		v.GetString("store.mysql.dsn") == "" &&
		v.GetString("store.mysql.password") == "" &&
		v.GetBool("store.mysql.password_prompt") {
		pwd, err := promptPassword()
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		v.Set("store.mysql.password", pwd)
	}
	return nil
}

const storeKindKey = "store.kind"

// bindChangedFlags copies only explicitly set flags into Viper, preserving
// precedence: flags > env > file > defaults.
func bindChangedFlags(fs *pflag.FlagSet, v *viper.Viper) {
	fs.Visit(func(f *pflag.Flag) {
		if f.Name == "config" || f.Name == "version" {
			return
		}
		switch f.Value.Type() {
		case "string":
			val, _ := fs.GetString(f.Name)
			v.Set(f.Name, val)
		case "int":
			val, _ := fs.GetInt(f.Name)
			v.Set(f.Name, val)
		case "int64":
			val, _ := fs.GetInt64(f.Name)
			v.Set(f.Name, val)
		case "bool":
			val, _ := fs.GetBool(f.Name)
			v.Set(f.Name, val)
		case "float64":
			val, _ := fs.GetFloat64(f.Name)
			v.Set(f.Name, val)
		case "duration":
			val, _ := fs.GetDuration(f.Name)
			v.Set(f.Name, val)
		case "stringSlice":
			val, _ := fs.GetStringSlice(f.Name)
			v.Set(f.Name, val)
		default:
			v.Set(f.Name, f.Value.String())
		}
	})
}

// defineFlags defines the command line flags using canonical snake_case keys.
func defineFlags(fs *pflag.FlagSet) {
	if fs.Lookup("config") != nil {
		return
	}

	fs.Int("server.port", 0, "HTTP server port")
	fs.Bool("server.graphiql_enabled", false, "Serve GraphiQL on GET /graphql/{id} (dev only)")
	fs.String("server.zone_header", "", "Request header carrying the client time zone")
	fs.Duration("server.read_timeout", 0, "HTTP server read timeout")
	fs.Duration("server.write_timeout", 0, "HTTP server write timeout")
	fs.Duration("server.idle_timeout", 0, "HTTP server idle timeout")
	fs.Duration("server.shutdown_timeout", 0, "HTTP server graceful shutdown timeout")
	fs.Duration("server.health_check_timeout", 0, "Health check timeout")

	fs.String("server.auth.mode", "", "Token verification: none, jwt, oidc")
	fs.String("server.auth.jwt_secret", "", "HMAC secret for jwt mode")
	fs.String("server.auth.jwt_secret_file", "", "Path to file containing the HMAC secret (use @- for stdin)")
	fs.String("server.auth.oidc_issuer_url", "", "OIDC issuer URL (for discovery and JWKS)")
	fs.String("server.auth.oidc_ca_file", "", "PEM bundle trusted when talking to the OIDC issuer")
	fs.String("server.auth.issuer", "", "Expected token issuer (jwt mode)")
	fs.String("server.auth.audience", "", "Expected token audience")
	fs.Duration("server.auth.clock_skew", 0, "Allowed token clock skew (e.g. 2m)")
	fs.String("server.auth.spreadsheets_claim", "", "Claim listing the spreadsheets a token may query")

	fs.Bool("server.admin.reload_enabled", false, "Enable /admin/reload")
	fs.String("server.admin.auth_token", "", "Shared secret required in X-Admin-Token when auth mode is none")
	fs.String("server.admin.auth_token_file", "", "Path to file containing admin auth token (use @- for stdin)")

	fs.Bool("server.rate_limit.enabled", false, "Enable rate limiting")
	fs.Float64("server.rate_limit.rps", 0, "Rate limit requests per second")
	fs.Int("server.rate_limit.burst", 0, "Rate limit burst size")
	fs.Bool("server.rate_limit.per_client", false, "Keep one bucket per client address")

	fs.Bool("server.cors.enabled", false, "Enable CORS")
	fs.StringSlice("server.cors.allowed_origins", nil, "Allowed CORS origins (comma-separated or repeated)")
	fs.StringSlice("server.cors.allowed_methods", nil, "Allowed CORS methods")
	fs.StringSlice("server.cors.allowed_headers", nil, "Allowed CORS headers")
	fs.StringSlice("server.cors.expose_headers", nil, "CORS headers exposed to the browser")
	fs.Bool("server.cors.allow_credentials", false, "Allow credentials in CORS requests")
	fs.Int("server.cors.max_age", 0, "CORS preflight cache duration (seconds)")

	fs.String("store.kind", "", "Document store: memory, mysql, mongo")
	fs.Duration("store.connect_timeout", 0, "Max time to wait for the store on startup")
	fs.String("store.mysql.dsn", "", "Complete MySQL DSN (user:pass@tcp(host:port)/db)")
	fs.String("store.mysql.dsn_file", "", "Path to file containing the DSN (use @- for stdin)")
	fs.String("store.mysql.host", "", "MySQL host")
	fs.Int("store.mysql.port", 0, "MySQL port")
	fs.String("store.mysql.user", "", "MySQL user")
	fs.String("store.mysql.password", "", "MySQL password")
	fs.String("store.mysql.password_file", "", "Path to file containing the password (use @- for stdin)")
	fs.Bool("store.mysql.password_prompt", false, "Prompt for the MySQL password")
	fs.String("store.mysql.database", "", "MySQL database")
	fs.String("store.mysql.table", "", "Documents table")
	fs.String("store.mysql.tls", "", "Driver tls parameter (false, true, skip-verify, preferred)")
	fs.Int("store.mysql.pool.max_open", 0, "Maximum open connections")
	fs.Int("store.mysql.pool.max_idle", 0, "Maximum idle connections")
	fs.Duration("store.mysql.pool.max_lifetime", 0, "Connection max lifetime")
	fs.String("store.mongo.uri", "", "Mongo connection URI")
	fs.String("store.mongo.database", "", "Mongo database")
	fs.String("store.mongo.collection_prefix", "", "Prefix of per-spreadsheet collection names")

	fs.String("metadata.source", "", "Metadata source: file, nats, xlsx")
	fs.String("metadata.dir", "", "Directory of <id>.json metadata files")
	fs.String("metadata.nats_url", "", "NATS server URL")
	fs.String("metadata.bucket", "", "JetStream key-value bucket holding metadata")
	fs.StringSlice("metadata.xlsx_files", nil, "Workbooks served in xlsx mode")
	fs.Duration("metadata.poll_interval", 0, "How often file sources are scanned for changes")
	fs.Duration("metadata.refresh_min_interval", 0, "Minimum interval between full schema refreshes (negative disables)")
	fs.Duration("metadata.refresh_max_interval", 0, "Maximum interval between full schema refreshes")
	fs.Int("metadata.refresh_concurrency", 0, "Spreadsheets rebuilt in parallel")

	fs.Int64("query.default_limit", 0, "Rows returned when find has no limit (negative disables)")
	fs.Int64("query.max_limit", 0, "Clamp for every find limit (0 disables)")
	fs.String("query.default_zone", "", "IANA zone used for date fields")
	fs.String("query.default_locale", "", "BCP 47 locale used for date fields")

	fs.String("observability.service_name", "", "Service name for observability")
	fs.String("observability.service_version", "", "Service version for observability")
	fs.String("observability.environment", "", "Environment name (dev, staging, prod)")
	fs.Bool("observability.metrics_enabled", false, "Enable metrics collection")
	fs.Bool("observability.tracing_enabled", false, "Enable distributed tracing")
	fs.Float64("observability.trace_sample_ratio", 0, "Trace sampling ratio from 0.0 to 1.0")
	fs.Bool("observability.sqlcommenter_enabled", false, "Inject trace context into SQL queries")
	fs.String("observability.logging.level", "", "Log level (debug, info, warn, error)")
	fs.String("observability.logging.format", "", "Log format (json, text)")
	fs.Bool("observability.logging.exports_enabled", false, "Enable OTLP log export")
	fs.String("observability.otlp.endpoint", "", "OTLP endpoint for all signals (e.g., localhost:4317)")
	fs.String("observability.otlp.protocol", "", "OTLP protocol for all signals (grpc, http/protobuf)")
	fs.Bool("observability.otlp.insecure", false, "Use insecure connection (no TLS)")
	fs.Duration("observability.otlp.timeout", 0, "OTLP export timeout")
	fs.String("observability.otlp.compression", "", "OTLP compression (none, gzip)")

	fs.StringP("config", "c", "", "Config file path")
}

// setDefaults sets default values (lowest precedence).
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.graphiql_enabled", false)
	v.SetDefault("server.zone_header", "X-Timezone")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.health_check_timeout", 2*time.Second)

	v.SetDefault("server.auth.mode", "none")
	v.SetDefault("server.auth.jwt_secret", "")
	v.SetDefault("server.auth.jwt_secret_file", "")
	v.SetDefault("server.auth.oidc_issuer_url", "")
	v.SetDefault("server.auth.oidc_ca_file", "")
	v.SetDefault("server.auth.issuer", "")
	v.SetDefault("server.auth.audience", "")
	v.SetDefault("server.auth.clock_skew", 2*time.Minute)
	v.SetDefault("server.auth.spreadsheets_claim", "spreadsheets")

	v.SetDefault("server.admin.reload_enabled", false)
	v.SetDefault("server.admin.auth_token", "")
	v.SetDefault("server.admin.auth_token_file", "")

	v.SetDefault("server.rate_limit.enabled", false)
	v.SetDefault("server.rate_limit.rps", 0.0)
	v.SetDefault("server.rate_limit.burst", 0)
	v.SetDefault("server.rate_limit.per_client", false)

	v.SetDefault("server.cors.enabled", false)
	v.SetDefault("server.cors.allowed_origins", []string{})
	v.SetDefault("server.cors.allowed_methods", []string{"GET", "POST", "OPTIONS"})
	v.SetDefault("server.cors.allowed_headers", []string{"Content-Type", "Authorization", "X-Request-ID", "X-Timezone"})
	v.SetDefault("server.cors.expose_headers", []string{"X-Request-ID"})
	v.SetDefault("server.cors.allow_credentials", false)
	v.SetDefault("server.cors.max_age", 86400)

	v.SetDefault(storeKindKey, StoreMemory)
	v.SetDefault("store.connect_timeout", 30*time.Second)
	v.SetDefault("store.mysql.dsn", "")
	v.SetDefault("store.mysql.dsn_file", "")
	v.SetDefault("store.mysql.host", "localhost")
	v.SetDefault("store.mysql.port", 4000)
	v.SetDefault("store.mysql.user", "sheetgql")
	v.SetDefault("store.mysql.password", "")
	v.SetDefault("store.mysql.password_file", "")
	v.SetDefault("store.mysql.password_prompt", false)
	v.SetDefault("store.mysql.database", "sheets")
	v.SetDefault("store.mysql.table", "sheet_documents")
	v.SetDefault("store.mysql.tls", "")
	v.SetDefault("store.mysql.pool.max_open", 25)
	v.SetDefault("store.mysql.pool.max_idle", 5)
	v.SetDefault("store.mysql.pool.max_lifetime", 5*time.Minute)
	v.SetDefault("store.mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("store.mongo.database", "sheets")
	v.SetDefault("store.mongo.collection_prefix", "")

	v.SetDefault("metadata.source", MetadataFile)
	v.SetDefault("metadata.dir", "./metadata")
	v.SetDefault("metadata.nats_url", "nats://localhost:4222")
	v.SetDefault("metadata.bucket", "sheet_metadata")
	v.SetDefault("metadata.xlsx_files", []string{})
	v.SetDefault("metadata.poll_interval", 5*time.Second)
	v.SetDefault("metadata.refresh_min_interval", 30*time.Second)
	v.SetDefault("metadata.refresh_max_interval", 5*time.Minute)
	v.SetDefault("metadata.refresh_concurrency", 4)

	v.SetDefault("query.default_limit", int64(1000))
	v.SetDefault("query.max_limit", int64(0))
	v.SetDefault("query.default_zone", "UTC")
	v.SetDefault("query.default_locale", "en")

	v.SetDefault("naming.type_overrides", map[string]string{})

	v.SetDefault("observability.service_name", "sheetgql")
	v.SetDefault("observability.service_version", "")
	v.SetDefault("observability.environment", "development")
	v.SetDefault("observability.metrics_enabled", true)
	v.SetDefault("observability.tracing_enabled", false)
	v.SetDefault("observability.trace_sample_ratio", 1.0)
	v.SetDefault("observability.sqlcommenter_enabled", true)
	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "json")
	v.SetDefault("observability.logging.exports_enabled", false)
	v.SetDefault("observability.otlp.endpoint", "localhost:4317")
	v.SetDefault("observability.otlp.protocol", "grpc")
	v.SetDefault("observability.otlp.insecure", false)
	v.SetDefault("observability.otlp.tls_cert_file", "")
	v.SetDefault("observability.otlp.tls_client_cert_file", "")
	v.SetDefault("observability.otlp.tls_client_key_file", "")
	v.SetDefault("observability.otlp.timeout", 10*time.Second)
	v.SetDefault("observability.otlp.compression", "gzip")
	v.SetDefault("observability.otlp.retry_enabled", true)
}

// promptPassword prompts for a password without echoing to the terminal.
func promptPassword() (string, error) {
	fmt.Fprint(os.Stderr, "Enter MySQL password: ")
	pwd, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}

func readSecretFile(path string) (string, error) {
	var data []byte
	var err error
	if path == stdinPath {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func validateSingleStdinFileSource(v *viper.Viper) error {
	var configured []string
	for _, s := range secretFiles {
		if strings.TrimSpace(v.GetString(s.fileKey)) == stdinPath {
			configured = append(configured, s.fileKey)
		}
	}
	if len(configured) > 1 {
		return fmt.Errorf(
			"multiple settings read from stdin (%s); only one @- source is allowed",
			strings.Join(configured, ", "),
		)
	}
	return nil
}

func stringToStringSliceHookFunc(sep string) mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if from.Kind() != reflect.String || to != reflect.TypeOf([]string{}) {
			return data, nil
		}
		raw := strings.TrimSpace(data.(string))
		if raw == "" {
			return []string{}, nil
		}
		parts := strings.Split(raw, sep)
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts, nil
	}
}
