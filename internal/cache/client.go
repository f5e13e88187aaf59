// Package cache holds the per-instance flag cache and the Redis plumbing behind the
// invalidation broadcast.
package cache

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rafaeljc/gatekeeper/internal/config"
	"github.com/rafaeljc/gatekeeper/internal/logger"
	"github.com/rafaeljc/gatekeeper/internal/observability"
)

// NewRedisClient connects to the Redis instance that carries invalidation messages.
// It handles connection pooling, TLS, and initial connectivity checks with retries.
func NewRedisClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}

	opts, err := redisOptions(cfg)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)

	retries := max(cfg.PingMaxRetries, 1)
	backoff := cfg.PingBackoff
	log := logger.FromContext(ctx)

	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, opts.DialTimeout+opts.ReadTimeout)
		lastErr = client.Ping(pingCtx).Err()
		cancel()

		if lastErr == nil {
			log.Info("connected to redis", slog.Int("attempt", attempt))
			return client, nil
		}

		log.Warn("redis ping failed", slog.Int("attempt", attempt), slog.Any("error", lastErr))
		if attempt == retries {
			break
		}

		select {
		case <-ctx.Done():
			_ = client.Close()
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	_ = client.Close()
	return nil, fmt.Errorf("failed to connect to redis after %d retries: %w", retries, lastErr)
}

// redisOptions builds client options. A URL wins over discrete fields, and the pool
// settings from cfg apply either way.
func redisOptions(cfg *config.RedisConfig) (*redis.Options, error) {
	opts := &redis.Options{}
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse redis url: %w", err)
		}
		opts = parsed
	} else {
		opts.Addr = cfg.Address()
		opts.Password = cfg.Password
		opts.DB = cfg.DB
		if cfg.TLSEnabled {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
	}

	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout
	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns
	opts.PoolTimeout = cfg.PoolTimeout
	opts.MaxRetries = cfg.MaxRetries
	opts.MinRetryBackoff = cfg.MinRetryBackoff
	opts.MaxRetryBackoff = cfg.MaxRetryBackoff

	return opts, nil
}

// RunPoolMonitor publishes go-redis pool statistics until ctx is done.
func RunPoolMonitor(ctx context.Context, client *redis.Client, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last redis.PoolStats
	for {
		s := client.PoolStats()
		observability.RedisPoolConnections.WithLabelValues("total").Set(float64(s.TotalConns))
		observability.RedisPoolConnections.WithLabelValues("idle").Set(float64(s.IdleConns))
		observability.RedisPoolConnections.WithLabelValues("stale").Set(float64(s.StaleConns))

		if s.Hits > last.Hits {
			observability.RedisPoolHits.Add(float64(s.Hits - last.Hits))
		}
		if s.Misses > last.Misses {
			observability.RedisPoolMisses.Add(float64(s.Misses - last.Misses))
		}
		if s.Timeouts > last.Timeouts {
			observability.RedisPoolTimeouts.Add(float64(s.Timeouts - last.Timeouts))
		}
		last = *s

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
