package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"slices"
	"strings"
	"time"
)

// maxIdentifierLen is PostgreSQL's NAMEDATALEN - 1.
const maxIdentifierLen = 63

var secureSSLModes = []string{"require", "verify-ca", "verify-full"}

// DatabaseConfig configures the PostgreSQL pool backing the flag registry,
// the merchant directory and the audit log.
type DatabaseConfig struct {
	URL      string `envconfig:"URL"` // takes precedence over the individual fields
	Host     string `envconfig:"HOST"`
	Port     string `envconfig:"PORT"`
	Name     string `envconfig:"NAME"`
	User     string `envconfig:"USER"`
	Password string `envconfig:"PASSWORD"`
	SSLMode  string `envconfig:"SSL_MODE" default:"prefer" validate:"oneof=disable allow prefer require verify-ca verify-full"`

	MaxConns        int           `envconfig:"MAX_CONNS" default:"25" validate:"min=1"`
	MinConns        int           `envconfig:"MIN_CONNS" default:"2" validate:"min=0"`
	MaxConnLifetime time.Duration `envconfig:"MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `envconfig:"MAX_CONN_IDLE_TIME" default:"30m"`
	ConnectTimeout  time.Duration `envconfig:"CONNECT_TIMEOUT" default:"5s"`

	PingMaxRetries int           `envconfig:"PING_MAX_RETRIES" default:"5" validate:"min=1"`
	PingBackoff    time.Duration `envconfig:"PING_BACKOFF" default:"1s"`

	PoolMonitorInterval time.Duration `envconfig:"POOL_MONITOR_INTERVAL" default:"15s"`
}

// ConnectionString returns URL verbatim, or a postgres:// URL assembled from the
// components with credentials escaped.
func (c *DatabaseConfig) ConnectionString() string {
	if c.URL != "" {
		return c.URL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, c.Port),
		Path:     "/" + c.Name,
		RawQuery: url.Values{"sslmode": {c.SSLMode}}.Encode(),
	}
	return u.String()
}

// IsConfigured reports whether enough is set to attempt a connection.
func (c *DatabaseConfig) IsConfigured() bool {
	return c.URL != "" || (c.Host != "" && c.Port != "" && c.Name != "" && c.User != "")
}

// Validate checks the pool bounds and whichever addressing form is in use.
// Production additionally requires a 12+ character password and an encrypted sslmode.
func (c *DatabaseConfig) Validate(environment string) error {
	if c.MinConns > c.MaxConns {
		return fmt.Errorf("database min conns (%d) exceeds max conns (%d)", c.MinConns, c.MaxConns)
	}

	if c.URL != "" {
		if err := validatePostgresURL(c.URL); err != nil {
			return fmt.Errorf("invalid database URL: %w", err)
		}
		return nil
	}

	err := errors.Join(
		validateHost(c.Host, "database"),
		validatePort(c.Port, "database"),
		validateIdentifier(c.Name, "database name"),
		validateNoWhitespace(c.User, "database user"),
	)
	if err != nil {
		return err
	}

	if environment != EnvironmentProduction {
		return nil
	}
	switch {
	case c.Password == "":
		return errors.New("database password is required in production")
	case !slices.Contains(secureSSLModes, c.SSLMode):
		return fmt.Errorf("database sslmode %q is not allowed in production (use one of %v)", c.SSLMode, secureSSLModes)
	}
	return validateSecretLength(c.Password, "database password", environment, 12)
}

func validatePostgresURL(raw string) error {
	parsed, err := parseAndValidateURL(raw, []string{"postgres", "postgresql"})
	if err != nil {
		return err
	}
	if parsed.User.Username() == "" {
		return errors.New("user is required in URL")
	}
	return validateIdentifier(strings.TrimPrefix(parsed.Path, "/"), "database name")
}

func validateIdentifier(name, field string) error {
	if err := validateNoWhitespace(name, field); err != nil {
		return err
	}
	if len(name) > maxIdentifierLen {
		return fmt.Errorf("%s exceeds %d characters", field, maxIdentifierLen)
	}
	return nil
}
