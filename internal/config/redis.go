package config

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/redis/go-redis/v9"
)

// maxRedisDB is the highest logical database index of a stock Redis server.
const maxRedisDB = 15

// RedisConfig configures the connection used for invalidation broadcasts.
// Redis never holds flag data; losing it only widens the staleness window to the cache TTL.
type RedisConfig struct {
	URL        string `envconfig:"URL"` // takes precedence over the individual fields
	Host       string `envconfig:"HOST"`
	Port       string `envconfig:"PORT"`
	Password   string `envconfig:"PASSWORD"`
	DB         int    `envconfig:"DB" default:"0" validate:"min=0,max=15"`
	TLSEnabled bool   `envconfig:"TLS_ENABLED" default:"false"`

	PoolSize        int           `envconfig:"POOL_SIZE" default:"50" validate:"min=1"`
	MinIdleConns    int           `envconfig:"MIN_IDLE_CONNS" default:"10" validate:"min=0"`
	DialTimeout     time.Duration `envconfig:"DIAL_TIMEOUT" default:"5s"`
	ReadTimeout     time.Duration `envconfig:"READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"WRITE_TIMEOUT" default:"3s"`
	PoolTimeout     time.Duration `envconfig:"POOL_TIMEOUT" default:"4s"`
	MaxRetries      int           `envconfig:"MAX_RETRIES" default:"3" validate:"min=0"`
	MinRetryBackoff time.Duration `envconfig:"MIN_RETRY_BACKOFF" default:"8ms"`
	MaxRetryBackoff time.Duration `envconfig:"MAX_RETRY_BACKOFF" default:"512ms"`

	PingMaxRetries int           `envconfig:"PING_MAX_RETRIES" default:"5" validate:"min=1"`
	PingBackoff    time.Duration `envconfig:"PING_BACKOFF" default:"1s"`
}

// Address is the URL when one is set, otherwise host:port.
func (c *RedisConfig) Address() string {
	if c.URL != "" {
		return c.URL
	}
	return net.JoinHostPort(c.Host, c.Port)
}

// IsConfigured reports whether enough is set to attempt a connection.
func (c *RedisConfig) IsConfigured() bool {
	return c.URL != "" || (c.Host != "" && c.Port != "")
}

// Validate checks the pool bounds and whichever addressing form is in use.
// Production additionally requires a password and TLS for component-based addressing.
func (c *RedisConfig) Validate(environment string) error {
	if c.MinIdleConns > c.PoolSize {
		return fmt.Errorf("redis min idle conns (%d) exceeds pool size (%d)", c.MinIdleConns, c.PoolSize)
	}

	if c.URL != "" {
		return validateRedisURL(c.URL)
	}

	if err := errors.Join(validateHost(c.Host, "redis"), validatePort(c.Port, "redis")); err != nil {
		return err
	}

	if environment != EnvironmentProduction {
		return nil
	}
	switch {
	case c.Password == "":
		return errors.New("redis password is required in production")
	case !c.TLSEnabled:
		return errors.New("redis TLS must be enabled in production")
	}
	return validateSecretLength(c.Password, "redis password", environment, 12)
}

// validateRedisURL defers scheme and syntax checks to the client's own parser so the
// config accepts exactly what NewRedisClient will.
func validateRedisURL(raw string) error {
	opts, err := redis.ParseURL(raw)
	if err != nil {
		return fmt.Errorf("invalid redis URL: %w", err)
	}
	if opts.DB < 0 || opts.DB > maxRedisDB {
		return fmt.Errorf("invalid redis URL: database %d outside 0-%d", opts.DB, maxRedisDB)
	}
	return nil
}
