package config

import (
	"fmt"
	"time"
)

// CacheConfig configures the per-instance flag cache and its invalidation broadcast.
type CacheConfig struct {
	// Capacity is the hard cap on cached flags per instance.
	Capacity int `envconfig:"CAPACITY" default:"10000" validate:"min=1"`

	// TTL bounds staleness when an invalidation broadcast is lost.
	// The cache library tracks expiry with one-second granularity.
	TTL time.Duration `envconfig:"TTL" default:"30s" validate:"min=1s"`

	// Channel is the pub/sub channel carrying invalidated flag keys.
	Channel string `envconfig:"CHANNEL" default:"feature_flags:invalidate"`

	// BroadcastEnabled turns cross-instance invalidation on. When off, instances
	// converge through TTL expiry only.
	BroadcastEnabled bool `envconfig:"BROADCAST_ENABLED" default:"true"`

	// PublishTimeout caps how long a mutation waits on the broadcast.
	PublishTimeout time.Duration `envconfig:"PUBLISH_TIMEOUT" default:"2s" validate:"gt=0"`

	// MetricsInterval is how often cache statistics are exported.
	MetricsInterval time.Duration `envconfig:"METRICS_INTERVAL" default:"15s" validate:"gt=0"`
}

// Validate checks CacheConfig fields for correctness.
func (c *CacheConfig) Validate() error {
	if c.BroadcastEnabled {
		if err := validateNoWhitespace(c.Channel, "invalidation channel"); err != nil {
			return err
		}
	}
	if c.TTL%time.Second != 0 {
		return fmt.Errorf("cache ttl must be a whole number of seconds, got %s", c.TTL)
	}
	return nil
}
