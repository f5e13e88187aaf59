// Package database provides the PostgreSQL connection factory, pool monitor and health checker.
package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rafaeljc/gatekeeper/internal/config"
	"github.com/rafaeljc/gatekeeper/internal/logger"
	"github.com/rafaeljc/gatekeeper/internal/observability"
)

// NewPostgresPool initializes a PostgreSQL connection pool from cfg.
// The first ping is retried with linear backoff so the service tolerates a database that
// is still starting (compose, k8s init ordering).
func NewPostgresPool(ctx context.Context, cfg *config.DatabaseConfig) (*pgxpool.Pool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config cannot be nil")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	// MaxConns prevents the app from starving the DB (connection exhaustion).
	poolCfg.MaxConns = int32(cfg.MaxConns)
	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	log := logger.FromContext(ctx)

	var pingErr error
	retries := max(cfg.PingMaxRetries, 1)
	for attempt := 1; attempt <= retries; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
		pingErr = pool.Ping(pingCtx)
		cancel()
		if pingErr == nil {
			log.Info("connected to postgres",
				slog.Int("max_conns", cfg.MaxConns),
				slog.Int("attempt", attempt),
			)
			return pool, nil
		}

		if attempt == retries {
			break
		}
		log.Warn("postgres not reachable, retrying",
			slog.Int("attempt", attempt),
			slog.String("error", pingErr.Error()),
		)

		select {
		case <-ctx.Done():
			pool.Close()
			return nil, ctx.Err()
		case <-time.After(cfg.PingBackoff * time.Duration(attempt)):
		}
	}

	pool.Close()
	return nil, fmt.Errorf("failed to ping database after %d attempts: %w", retries, pingErr)
}

// RunPoolMonitor publishes pgxpool statistics to Prometheus every interval until ctx is done.
// pgxpool exposes cumulative counters, so the monitor forwards deltas to keep the
// Prometheus counters monotonic.
func RunPoolMonitor(ctx context.Context, pool *pgxpool.Pool, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last poolCounters
	for {
		last = recordPoolStats(pool.Stat(), last)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

type poolCounters struct {
	acquires int64
	waits    int64
	acquired time.Duration
}

func recordPoolStats(s *pgxpool.Stat, last poolCounters) poolCounters {
	observability.DBPoolConnections.WithLabelValues("total").Set(float64(s.TotalConns()))
	observability.DBPoolConnections.WithLabelValues("idle").Set(float64(s.IdleConns()))
	observability.DBPoolConnections.WithLabelValues("in_use").Set(float64(s.AcquiredConns()))
	observability.DBPoolConnections.WithLabelValues("max").Set(float64(s.MaxConns()))

	now := poolCounters{
		acquires: s.AcquireCount(),
		waits:    s.EmptyAcquireCount(),
		acquired: s.AcquireDuration(),
	}
	if d := now.acquires - last.acquires; d > 0 {
		observability.DBPoolAcquireCount.Add(float64(d))
	}
	if d := now.waits - last.waits; d > 0 {
		observability.DBPoolWaitCount.Add(float64(d))
	}
	if d := now.acquired - last.acquired; d > 0 {
		observability.DBPoolAcquireDuration.Add(d.Seconds())
	}
	return now
}
