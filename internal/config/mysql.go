package config

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
)

// FormatDSN returns the driver DSN for the store. An explicit DSN wins over
// the discrete fields; parseTime is always on and the TLS setting is applied
// when the DSN does not carry its own.
func (m *MySQLConfig) FormatDSN() (string, error) {
	if m.DSN != "" {
		cfg, err := mysql.ParseDSN(m.DSN)
		if err != nil {
			return "", fmt.Errorf("invalid mysql DSN: %w", err)
		}
		cfg.ParseTime = true
		if cfg.TLSConfig == "" && m.TLS != "" {
			cfg.TLSConfig = m.TLS
		}
		return cfg.FormatDSN(), nil
	}

	cfg := mysql.NewConfig()
	cfg.User = m.User
	cfg.Passwd = m.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(m.Host, strconv.Itoa(m.Port))
	cfg.DBName = m.Database
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.TLSConfig = m.TLS
	return cfg.FormatDSN(), nil
}
