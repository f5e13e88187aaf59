package cache

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// Broadcaster announces that a flag changed so every instance drops its local copy.
// Messages carry the flag key only. Receivers always re-read the registry.
type Broadcaster interface {
	Publish(ctx context.Context, flagKey string) error
}

var (
	_ Broadcaster = (*RedisBroadcaster)(nil)
	_ Broadcaster = NopBroadcaster{}
)

// RedisBroadcaster publishes invalidations on a Redis pub/sub channel.
// Delivery is at-most-once: subscribers that are disconnected miss the message and
// rely on the TTL.
type RedisBroadcaster struct {
	client  redis.UniversalClient
	channel string
}

func NewRedisBroadcaster(client redis.UniversalClient, channel string) *RedisBroadcaster {
	if client == nil {
		panic("cache: redis client cannot be nil")
	}
	if channel == "" {
		panic("cache: invalidation channel cannot be empty")
	}
	return &RedisBroadcaster{client: client, channel: channel}
}

func (b *RedisBroadcaster) Publish(ctx context.Context, flagKey string) error {
	if flagKey == "" {
		return errors.New("cannot broadcast an empty flag key")
	}
	return b.client.Publish(ctx, b.channel, flagKey).Err()
}

// NopBroadcaster is used when broadcasting is disabled. Other instances then converge
// through the TTL alone.
type NopBroadcaster struct{}

func (NopBroadcaster) Publish(context.Context, string) error { return nil }
