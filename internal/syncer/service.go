// Package syncer runs the background subscriber that keeps an instance's flag cache
// converged with writes made on other instances.
package syncer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rafaeljc/gatekeeper/internal/config"
	"github.com/rafaeljc/gatekeeper/internal/observability"
)

// Evicter is the part of the flag cache the subscriber drives.
type Evicter interface {
	Evict(key string)
	Purge()
}

// Service subscribes to the invalidation channel and evicts every key it receives.
// It never touches the registry and never blocks evaluation: losing the connection only
// widens the staleness window back to the cache TTL.
type Service struct {
	logger  *slog.Logger
	config  config.SubscriberConfig
	channel string
	client  redis.UniversalClient
	cache   Evicter

	ready     chan struct{}
	readyOnce sync.Once
}

// New creates the subscriber. It does nothing until Run is called.
func New(logger *slog.Logger, cfg config.SubscriberConfig, channel string, client redis.UniversalClient, cache Evicter) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if client == nil {
		panic("syncer: redis client cannot be nil")
	}
	if cache == nil {
		panic("syncer: cache cannot be nil")
	}
	if channel == "" {
		panic("syncer: channel cannot be empty")
	}
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = 500 * time.Millisecond
	}
	if cfg.MaxBackoff < cfg.MinBackoff {
		cfg.MaxBackoff = cfg.MinBackoff
	}

	return &Service{
		logger:  logger,
		config:  cfg,
		channel: channel,
		client:  client,
		cache:   cache,
		ready:   make(chan struct{}),
	}
}

// Ready is closed once the first subscription is confirmed.
func (s *Service) Ready() <-chan struct{} {
	return s.ready
}

// Run subscribes and processes invalidations until ctx is cancelled.
// Connection failures are retried with exponential backoff; Run only returns on
// cancellation.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info("starting invalidation subscriber", slog.String("channel", s.channel))

	backoff := s.config.MinBackoff
	subscribedBefore := false

	for {
		err := s.listen(ctx, &subscribedBefore, &backoff)
		if ctx.Err() != nil {
			s.logger.Info("invalidation subscriber stopping")
			return nil
		}

		// Messages sent while we were away are lost. Flush rather than trust the cache.
		s.cache.Purge()
		observability.SubscriberReconnects.Inc()
		s.logger.Warn("invalidation subscription lost, retrying",
			slog.String("error", errString(err)),
			slog.Duration("backoff", backoff),
		)

		select {
		case <-ctx.Done():
			s.logger.Info("invalidation subscriber stopping")
			return nil
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, s.config.MaxBackoff)
	}
}

// listen holds one subscription until it fails or ctx ends.
func (s *Service) listen(ctx context.Context, subscribedBefore *bool, backoff *time.Duration) error {
	pubsub := s.client.Subscribe(ctx, s.channel)
	defer pubsub.Close()

	// A blocked read does not watch ctx; closing the subscription unblocks it.
	stop := context.AfterFunc(ctx, func() { _ = pubsub.Close() })
	defer stop()

	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}

	if *subscribedBefore {
		// Invalidations published between the failure and now were missed.
		s.cache.Purge()
		s.logger.Info("invalidation subscription restored")
	}
	*subscribedBefore = true
	*backoff = s.config.MinBackoff
	s.readyOnce.Do(func() { close(s.ready) })

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			return err
		}
		if msg.Payload == "" {
			continue
		}

		s.cache.Evict(msg.Payload)
		observability.InvalidationsReceived.Inc()
		s.logger.Debug("flag invalidated", slog.String("flag_key", msg.Payload))
	}
}

func errString(err error) string {
	if err == nil {
		return "subscription closed"
	}
	return err.Error()
}
