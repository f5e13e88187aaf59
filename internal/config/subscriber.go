package config

import (
	"fmt"
	"time"
)

// SubscriberConfig tunes the invalidation listener's reconnect behavior.
type SubscriberConfig struct {
	MinBackoff time.Duration `envconfig:"MIN_BACKOFF" default:"500ms" validate:"gt=0"`
	MaxBackoff time.Duration `envconfig:"MAX_BACKOFF" default:"30s" validate:"gt=0"`
}

// Validate checks that the backoff window is well formed.
func (c *SubscriberConfig) Validate() error {
	if c.MinBackoff > c.MaxBackoff {
		return fmt.Errorf("subscriber min_backoff (%s) cannot be greater than max_backoff (%s)", c.MinBackoff, c.MaxBackoff)
	}
	return nil
}
