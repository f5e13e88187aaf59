package ruleengine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rafaeljc/gatekeeper/internal/logger"
)

// Engine is the orchestrator for feature flag evaluation.
// It is safe for concurrent use: strategies are stateless and the strategy table
// is never mutated after construction.
type Engine struct {
	strategies map[Strategy]Evaluator
	logger     *slog.Logger // Dedicated logger instance (DI)
}

// Option customizes an Engine.
type Option func(*engineOptions)

type engineOptions struct {
	hash HashFunc
}

// WithHash selects the hash used for percentage bucketing (SHA-256 by default).
func WithHash(hash HashFunc) Option {
	return func(o *engineOptions) {
		o.hash = hash
	}
}

// New creates a new Engine.
// The resolver backs tier and country targeting and is required.
// If logger is nil, it defaults to slog.Default().
func New(log *slog.Logger, resolver AttributeResolver, opts ...Option) *Engine {
	if resolver == nil {
		panic("ruleengine: attribute resolver cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}

	options := engineOptions{hash: SHA256Hash}
	for _, opt := range opts {
		opt(&options)
	}

	return &Engine{
		logger: log,
		strategies: map[Strategy]Evaluator{
			StrategyAll:           &AllEvaluator{},
			StrategyPercentage:    NewPercentageEvaluator(options.hash),
			StrategyMerchantIDs:   &MerchantIDEvaluator{},
			StrategyMerchantTiers: NewTierEvaluator(resolver),
			StrategyCountries:     NewCountryEvaluator(resolver),
		},
	}
}

// Evaluate decides whether flag is active for merchantID.
//
// Precedence, first match wins:
//  1. Global switch off: false, DISABLED_GLOBALLY. Overrides are not consulted.
//  2. Explicit override for the merchant: forced value, OVERRIDE_ON / OVERRIDE_OFF.
//  3. Rollout strategy.
//
// Evaluation never fails. An unrecognized strategy yields false with
// UNKNOWN_STRATEGY, and a strategy error is logged and treated as a no-match.
func (e *Engine) Evaluate(ctx context.Context, flag *FeatureFlag, merchantID string) Result {
	result := Result{FlagKey: flag.Key, MerchantID: merchantID}

	if !flag.Enabled {
		result.Reason = ReasonDisabledGlobally
		result.Detail = "Flag is globally disabled"
		return result
	}

	if forced, ok := flag.Overrides.Lookup(merchantID); ok {
		result.Enabled = forced
		result.Reason = ReasonOverrideOff
		if forced {
			result.Reason = ReasonOverrideOn
		}
		result.Detail = fmt.Sprintf("Merchant has an explicit override: %s", onOff(forced))
		return result
	}

	strategy, exists := e.strategies[flag.Strategy]
	if !exists {
		e.log(ctx).Warn("unknown rollout strategy",
			"flag_key", flag.Key,
			"strategy", flag.Strategy,
		)
		result.Reason = ReasonUnknownStrategy
		result.Detail = "Unrecognised rollout strategy"
		return result
	}

	outcome, err := strategy.Eval(ctx, flag, EvaluationInput{MerchantID: merchantID, FlagKey: flag.Key})
	if err != nil {
		// Fail closed: the merchant is not selected, but the caller still gets an answer.
		e.log(ctx).Error("strategy evaluation failed",
			"error", err,
			"flag_key", flag.Key,
			"strategy", flag.Strategy,
			"merchant_id", merchantID,
		)
		outcome.Match = false
	}

	result.Enabled = outcome.Match
	result.Reason = outcome.Reason
	result.Detail = outcome.Detail
	return result
}

// log prefers the request-scoped logger when one was injected into ctx.
func (e *Engine) log(ctx context.Context) *slog.Logger {
	return logger.FromContextOr(ctx, e.logger)
}

func onOff(v bool) string {
	if v {
		return "ON"
	}
	return "OFF"
}
