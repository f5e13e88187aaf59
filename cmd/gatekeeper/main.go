// Package main initializes and runs the Gatekeeper feature flag service.
//
// It is the composition root: one process serves the administration REST API, the
// gRPC evaluation API and the observability endpoints, and listens for cache
// invalidations from its peers.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"

	"github.com/rafaeljc/gatekeeper/internal/audit"
	"github.com/rafaeljc/gatekeeper/internal/auth"
	"github.com/rafaeljc/gatekeeper/internal/cache"
	"github.com/rafaeljc/gatekeeper/internal/config"
	"github.com/rafaeljc/gatekeeper/internal/controlapi"
	"github.com/rafaeljc/gatekeeper/internal/dataapi"
	"github.com/rafaeljc/gatekeeper/internal/database"
	"github.com/rafaeljc/gatekeeper/internal/evaluation"
	"github.com/rafaeljc/gatekeeper/internal/logger"
	"github.com/rafaeljc/gatekeeper/internal/merchant"
	"github.com/rafaeljc/gatekeeper/internal/observability"
	"github.com/rafaeljc/gatekeeper/internal/registry"
	"github.com/rafaeljc/gatekeeper/internal/ruleengine"
	"github.com/rafaeljc/gatekeeper/internal/store"
	"github.com/rafaeljc/gatekeeper/internal/syncer"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	// -------------------------------------------------------------------------
	// 1. Configuration & Logging
	// -------------------------------------------------------------------------
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(&cfg.App)
	slog.SetDefault(log)
	cfg.LogConfig(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// -------------------------------------------------------------------------
	// 2. Infrastructure
	// -------------------------------------------------------------------------
	pool, err := database.NewPostgresPool(ctx, &cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	redisClient, err := cache.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer func() { _ = redisClient.Close() }()

	local, err := cache.NewMemoryCache(cfg.Cache.Capacity, cfg.Cache.TTL)
	if err != nil {
		return fmt.Errorf("failed to create local cache: %w", err)
	}
	defer local.Close()

	hash, err := ruleengine.HashByName(cfg.Evaluation.BucketHash)
	if err != nil {
		return err
	}

	// -------------------------------------------------------------------------
	// 3. Wiring
	// -------------------------------------------------------------------------
	flagCache := cache.NewFlagCache(log, local, broadcaster(log, cfg, redisClient), cfg.Cache.PublishTimeout)
	directory := merchant.NewPostgresDirectory(pool)

	flags := registry.NewService(log,
		store.NewPostgresStore(pool),
		directory,
		audit.NewPostgresSink(pool),
		flagCache,
	)
	engine := ruleengine.New(log, merchant.Resolver(directory), ruleengine.WithHash(hash))
	evals := evaluation.NewService(log, flags, engine, cfg.Evaluation.Concurrency)

	authn := auth.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.Leeway)
	control := controlapi.NewAPI(log, flags, evals, authn, cfg.HTTP.MaxBodyBytes)

	subscriber := syncer.New(log, cfg.Subscriber, cfg.Cache.Channel, redisClient, flagCache)

	obs := observability.NewServer(log, &cfg.Observability,
		database.NewHealthChecker(pool),
		cache.NewHealthChecker(redisClient),
	)

	// -------------------------------------------------------------------------
	// 4. Servers & Background Workers
	// -------------------------------------------------------------------------
	httpServer := &http.Server{
		Addr:              cfg.HTTP.Addr(),
		Handler:           control.Router,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
		MaxHeaderBytes:    cfg.HTTP.MaxHeaderBytes,
	}

	var (
		grpcServer   *grpc.Server
		grpcListener net.Listener
	)
	if cfg.GRPC.Enabled {
		// Bind first so a taken port fails before anything starts.
		grpcListener, err = net.Listen("tcp", cfg.GRPC.Addr())
		if err != nil {
			return fmt.Errorf("failed to bind grpc address %s: %w", cfg.GRPC.Addr(), err)
		}

		var hs *health.Server
		grpcServer, hs = dataapi.NewServer(log, &cfg.GRPC, dataapi.NewAPI(evals))
		defer hs.Shutdown()
	}

	obs.Start()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		database.RunPoolMonitor(gctx, pool, cfg.Database.PoolMonitorInterval)
		return nil
	})
	g.Go(func() error {
		cache.RunPoolMonitor(gctx, redisClient, cfg.Cache.MetricsInterval)
		return nil
	})
	g.Go(func() error {
		local.RunMetricsCollector(gctx, cfg.Cache.MetricsInterval)
		return nil
	})
	g.Go(func() error {
		return subscriber.Run(gctx)
	})

	g.Go(func() error {
		log.Info("starting http server", slog.String("addr", httpServer.Addr))
		var err error
		if cfg.HTTP.TLSEnabled {
			err = httpServer.ListenAndServeTLS(cfg.HTTP.TLSCert, cfg.HTTP.TLSKey)
		} else {
			err = httpServer.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	if grpcServer != nil {
		g.Go(func() error {
			log.Info("starting grpc server", slog.String("addr", grpcListener.Addr().String()))
			if err := grpcServer.Serve(grpcListener); err != nil {
				return fmt.Errorf("grpc server failed: %w", err)
			}
			return nil
		})
	}

	// -------------------------------------------------------------------------
	// 5. Graceful Shutdown
	// -------------------------------------------------------------------------
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received, draining servers")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.App.ShutdownTimeout)
		defer cancel()

		if grpcServer != nil {
			gracefulStopGRPC(shutdownCtx, grpcServer)
		}
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("http server shutdown failed", slog.String("error", err.Error()))
		}
		if err := obs.Shutdown(shutdownCtx); err != nil {
			log.Error("observability server shutdown failed", slog.String("error", err.Error()))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("service exited successfully")
	return nil
}

// broadcaster publishes invalidations on Redis unless broadcasting is disabled, in
// which case peers converge through the cache TTL alone.
func broadcaster(log *slog.Logger, cfg *config.Config, client redis.UniversalClient) cache.Broadcaster {
	if !cfg.Cache.BroadcastEnabled {
		log.Warn("invalidation broadcast disabled, peers converge within the cache ttl",
			slog.Duration("ttl", cfg.Cache.TTL),
		)
		return cache.NopBroadcaster{}
	}
	return cache.NewRedisBroadcaster(client, cfg.Cache.Channel)
}

// gracefulStopGRPC waits for in-flight RPCs, forcing a stop once ctx expires.
func gracefulStopGRPC(ctx context.Context, srv *grpc.Server) {
	done := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		srv.Stop()
	}
}
