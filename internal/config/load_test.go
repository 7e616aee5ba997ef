package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadArgs(t *testing.T, args ...string) (*Config, error) {
	t.Helper()
	return LoadArgs(pflag.NewFlagSet("sheetgql", pflag.ContinueOnError), args)
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := loadArgs(t)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "none", cfg.Server.Auth.Mode)
	assert.Equal(t, "spreadsheets", cfg.Server.Auth.SpreadsheetsClaim)
	assert.Equal(t, 2*time.Minute, cfg.Server.Auth.ClockSkew)
	assert.Equal(t, []string{"GET", "POST", "OPTIONS"}, cfg.Server.CORS.AllowedMethods)
	assert.Equal(t, StoreMemory, cfg.Store.Kind)
	assert.Equal(t, MetadataFile, cfg.Metadata.Source)
	assert.Equal(t, 30*time.Second, cfg.Metadata.RefreshMinInterval)
	assert.Equal(t, 4, cfg.Metadata.RefreshConcurrency)
	assert.Equal(t, int64(1000), cfg.Query.DefaultLimit)
	assert.Equal(t, "UTC", cfg.Query.DefaultZone)
	assert.Equal(t, "sheetgql", cfg.Observability.ServiceName)
	assert.Nil(t, cfg.Observability.Traces)
}

func TestLoad_Precedence(t *testing.T) {
	path := writeFile(t, "sheetgql.yaml", `
server:
  port: 9000
  read_timeout: 45s
store:
  kind: mongo
  mongo:
    database: sheets_test
metadata:
  source: xlsx
  xlsx_files: [blog.xlsx]
query:
  max_limit: 100
`)
	t.Setenv("SHEETGQL_SERVER_PORT", "9100")
	t.Setenv("SHEETGQL_QUERY_MAX_LIMIT", "500")
	t.Setenv("SHEETGQL_METADATA_XLSX_FILES", "a.xlsx, b.xlsx")

	cfg, err := loadArgs(t, "-c", path, "--server.port=9200")
	require.NoError(t, err)

	assert.Equal(t, 9200, cfg.Server.Port, "flag beats env and file")
	assert.Equal(t, int64(500), cfg.Query.MaxLimit, "env beats file")
	assert.Equal(t, []string{"a.xlsx", "b.xlsx"}, cfg.Metadata.XLSXFiles)
	assert.Equal(t, StoreMongo, cfg.Store.Kind)
	assert.Equal(t, "sheets_test", cfg.Store.Mongo.Database)
	assert.Equal(t, 45*time.Second, cfg.Server.ReadTimeout)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := loadArgs(t, "-c", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoad_RejectsUnknownKeys(t *testing.T) {
	path := writeFile(t, "sheetgql.yaml", `
server:
  auth:
    db_role_enabled: true
`)
	_, err := loadArgs(t, "-c", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db_role_enabled")
}

func TestLoad_SecretFiles(t *testing.T) {
	secret := writeFile(t, "jwt", "  s3cret-value-that-is-long-enough \n")
	token := writeFile(t, "admin", "admin-token\n")
	t.Setenv("SHEETGQL_SERVER_AUTH_JWT_SECRET_FILE", secret)

	cfg, err := loadArgs(t, "--server.admin.auth_token_file", token)
	require.NoError(t, err)
	assert.Equal(t, "s3cret-value-that-is-long-enough", cfg.Server.Auth.JWTSecret)
	assert.Equal(t, "admin-token", cfg.Server.Admin.AuthToken)
}

func TestLoad_ExplicitSecretWinsOverFile(t *testing.T) {
	t.Setenv("SHEETGQL_SERVER_ADMIN_AUTH_TOKEN", "inline")
	cfg, err := loadArgs(t, "--server.admin.auth_token_file", filepath.Join(t.TempDir(), "never-read"))
	require.NoError(t, err)
	assert.Equal(t, "inline", cfg.Server.Admin.AuthToken)
}

func TestLoad_EmptySecretFile(t *testing.T) {
	empty := writeFile(t, "empty", "\n")
	_, err := loadArgs(t, "--store.mysql.dsn_file", empty)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is empty")
}

func TestValidateSingleStdinFileSource(t *testing.T) {
	t.Run("one", func(t *testing.T) {
		v := viper.New()
		v.Set("store.mysql.dsn_file", "@-")
		v.Set("server.admin.auth_token_file", "/tmp/token")
		assert.NoError(t, validateSingleStdinFileSource(v))
	})
	t.Run("many", func(t *testing.T) {
		v := viper.New()
		v.Set("store.mysql.password_file", "@-")
		v.Set("server.auth.jwt_secret_file", " @- ")
		err := validateSingleStdinFileSource(v)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "store.mysql.password_file")
		assert.Contains(t, err.Error(), "server.auth.jwt_secret_file")
	})
}

func TestMergeOTLPConfigs(t *testing.T) {
	base := OTLPConfig{
		Endpoint:     "collector:4317",
		Protocol:     "grpc",
		Headers:      map[string]string{"a": "1", "b": "2"},
		Timeout:      10 * time.Second,
		Compression:  "gzip",
		RetryEnabled: true,
	}
	obs := ObservabilityConfig{
		OTLP:   base,
		Traces: &OTLPConfig{Endpoint: "traces:4318", Protocol: "http/protobuf", Insecure: true, Headers: map[string]string{"b": "3"}},
	}

	traces := obs.TracesConfig()
	assert.Equal(t, "traces:4318", traces.Endpoint)
	assert.Equal(t, "http/protobuf", traces.Protocol)
	assert.True(t, traces.Insecure)
	assert.False(t, traces.RetryEnabled)
	assert.Equal(t, map[string]string{"a": "1", "b": "3"}, traces.Headers)
	assert.Equal(t, 10*time.Second, traces.Timeout)
	assert.Equal(t, "gzip", traces.Compression)

	assert.Equal(t, base, obs.LogsConfig())
}

func TestMySQLConfig_FormatDSN(t *testing.T) {
	t.Run("discrete fields", func(t *testing.T) {
		m := MySQLConfig{Host: "tidb", Port: 4000, User: "reader", Password: "p@ss", Database: "sheets", TLS: "true"}
		dsn, err := m.FormatDSN()
		require.NoError(t, err)
		assert.Contains(t, dsn, "reader:p@ss@tcp(tidb:4000)/sheets?")
		assert.Contains(t, dsn, "parseTime=true")
		assert.Contains(t, dsn, "tls=true")
	})
	t.Run("explicit dsn", func(t *testing.T) {
		m := MySQLConfig{DSN: "root@tcp(db:3306)/docs", Host: "ignored"}
		dsn, err := m.FormatDSN()
		require.NoError(t, err)
		assert.Contains(t, dsn, "root@tcp(db:3306)/docs")
		assert.Contains(t, dsn, "parseTime=true")
		assert.NotContains(t, dsn, "ignored")
	})
	t.Run("invalid dsn", func(t *testing.T) {
		m := MySQLConfig{DSN: "not a dsn"}
		_, err := m.FormatDSN()
		assert.Error(t, err)
	})
}
