// Package evaluation answers "is this flag on for this merchant" for the HTTP and gRPC
// surfaces. It reads definitions through the registry cache and never mutates state.
package evaluation

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rafaeljc/gatekeeper/internal/logger"
	"github.com/rafaeljc/gatekeeper/internal/observability"
	"github.com/rafaeljc/gatekeeper/internal/ruleengine"
	"github.com/rafaeljc/gatekeeper/internal/store"
)

// FlagSource supplies definitions. registry.Service implements it.
type FlagSource interface {
	// Get returns a live flag, or an error matching registry.ErrNotFound.
	Get(ctx context.Context, key string) (*store.Flag, error)
	ListActive(ctx context.Context) ([]*store.Flag, error)
}

// MerchantEvaluations is the result of evaluating every flag for one merchant.
type MerchantEvaluations struct {
	MerchantID  string              `json:"merchantId"`
	Evaluations []ruleengine.Result `json:"evaluations"`
}

// Service evaluates flags.
type Service struct {
	logger      *slog.Logger
	flags       FlagSource
	engine      *ruleengine.Engine
	concurrency int
}

// NewService creates the evaluation service. concurrency bounds the fan-out of
// EvaluateAll; values below 1 mean one flag at a time.
func NewService(log *slog.Logger, flags FlagSource, engine *ruleengine.Engine, concurrency int) *Service {
	if flags == nil {
		panic("evaluation: flag source cannot be nil")
	}
	if engine == nil {
		panic("evaluation: engine cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		logger:      log,
		flags:       flags,
		engine:      engine,
		concurrency: max(concurrency, 1),
	}
}

// Evaluate decides flagKey for merchantID. The only error is a failed definition
// lookup (unknown flag or registry outage); the decision itself cannot fail.
func (s *Service) Evaluate(ctx context.Context, flagKey, merchantID string) (ruleengine.Result, error) {
	start := time.Now()

	f, err := s.flags.Get(ctx, flagKey)
	if err != nil {
		return ruleengine.Result{}, err
	}

	res := s.decide(ctx, f, merchantID)
	observability.EvaluationDuration.Observe(time.Since(start).Seconds())
	return res, nil
}

// EvaluateAll evaluates every live flag for merchantID, in registry order.
// Flags are decided independently: a directory failure for one flag yields a
// no-match for that flag only.
func (s *Service) EvaluateAll(ctx context.Context, merchantID string) (MerchantEvaluations, error) {
	flags, err := s.flags.ListActive(ctx)
	if err != nil {
		return MerchantEvaluations{}, err
	}

	results := make([]ruleengine.Result, len(flags))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, f := range flags {
		g.Go(func() error {
			results[i] = s.decide(gctx, f, merchantID)
			return nil
		})
	}
	// decide never fails, so Wait only synchronises.
	_ = g.Wait()

	logger.FromContextOr(ctx, s.logger).Debug("evaluated all flags",
		slog.String("merchant_id", merchantID),
		slog.Int("flags", len(flags)),
	)
	return MerchantEvaluations{MerchantID: merchantID, Evaluations: results}, nil
}

func (s *Service) decide(ctx context.Context, f *store.Flag, merchantID string) ruleengine.Result {
	res := s.engine.Evaluate(ctx, &f.FeatureFlag, merchantID)
	observability.EvaluationsTotal.WithLabelValues(string(res.Reason)).Inc()
	return res
}
