package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// DatabaseConfig selects the Postgres instance backing the stock store.
type DatabaseConfig struct {
	URL            string        `koanf:"url"`
	Timeout        time.Duration `koanf:"timeout"`
	MaxConns       int32         `koanf:"maxconns"`
	MigrateOnStart bool          `koanf:"migrateonstart"`
}

// String returns a string representation of the DatabaseConfig with the password masked.
func (c *DatabaseConfig) String() string {
	var b strings.Builder
	b.WriteString("\n--- Database ---\n")
	b.WriteString(fmt.Sprintf("  url: %s\n", MaskURL(c.URL)))
	b.WriteString(fmt.Sprintf("  timeout: %s\n", c.Timeout))
	b.WriteString(fmt.Sprintf("  maxconns: %d\n", c.MaxConns))
	b.WriteString(fmt.Sprintf("  migrateonstart: %t\n", c.MigrateOnStart))
	return b.String()
}

func (c *DatabaseConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("database URL is not configured")
	}
	if !isValidPostgresURL(c.URL) {
		return fmt.Errorf("database URL must start with 'postgres://': %s", MaskURL(c.URL))
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("database timeout must be greater than 0")
	}
	if c.MaxConns < 0 {
		return fmt.Errorf("database maxconns must not be negative: %d", c.MaxConns)
	}
	return nil
}

// isValidPostgresURL checks if the provided URL is a valid PostgreSQL URL
func isValidPostgresURL(url string) bool {
	return strings.HasPrefix(url, "postgres://") ||
		strings.HasPrefix(url, "postgresql://")
}

// MaskURL hides the password of a connection URL. Unparseable URLs are masked entirely.
func MaskURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "****"
	}
	return u.Redacted()
}
