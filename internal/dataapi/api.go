// Package dataapi implements the gRPC evaluation API used by internal services.
// Messages are JSON encoded; see codec.go.
package dataapi

import (
	"context"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"

	"github.com/rafaeljc/gatekeeper/internal/config"
	"github.com/rafaeljc/gatekeeper/internal/evaluation"
	"github.com/rafaeljc/gatekeeper/internal/ruleengine"
)

// Evaluator answers evaluation queries. evaluation.Service implements it.
type Evaluator interface {
	Evaluate(ctx context.Context, flagKey, merchantID string) (ruleengine.Result, error)
	EvaluateAll(ctx context.Context, merchantID string) (evaluation.MerchantEvaluations, error)
}

var _ EvaluationServer = (*API)(nil)

// API implements gatekeeper.v1.Evaluation.
type API struct {
	evaluations Evaluator
}

// NewAPI creates the evaluation API.
func NewAPI(evaluations Evaluator) *API {
	if evaluations == nil {
		panic("dataapi: evaluator cannot be nil")
	}
	return &API{evaluations: evaluations}
}

// Register connects this implementation to the grpc.Server engine.
func (a *API) Register(s grpc.ServiceRegistrar) {
	s.RegisterService(&serviceDesc, a)
}

// NewServer builds a gRPC server with the request interceptor, the standard health
// service and the keepalive limits from cfg, and registers api on it.
func NewServer(log *slog.Logger, cfg *config.GRPCConfig, api *API) (*grpc.Server, *health.Server) {
	if cfg == nil {
		panic("dataapi: grpc config cannot be nil")
	}

	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(RequestInterceptor(log)),
		grpc.MaxConcurrentStreams(cfg.MaxConcurrentStreams),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:             cfg.KeepaliveTime,
			Timeout:          cfg.KeepaliveTimeout,
			MaxConnectionAge: cfg.MaxConnectionAge,
		}),
	)
	api.Register(srv)

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)

	return srv, hs
}
