package ruleengine

import (
	"context"
	"fmt"
)

// PercentageEvaluator implements gradual rollouts.
// It uses deterministic hashing so the same merchant always falls into the same
// bucket for a given flag (stickiness), while the flag key salt keeps cohorts
// independent across flags.
type PercentageEvaluator struct {
	hash HashFunc
}

// NewPercentageEvaluator returns an evaluator bucketing with hash (SHA-256 when nil).
func NewPercentageEvaluator(hash HashFunc) *PercentageEvaluator {
	if hash == nil {
		hash = SHA256Hash
	}
	return &PercentageEvaluator{hash: hash}
}

// Eval includes the merchant when its bucket is strictly below the percentage.
// A missing percentage behaves as 0%: nobody is included.
//
// Thread-Safety: stateless.
func (e *PercentageEvaluator) Eval(_ context.Context, flag *FeatureFlag, input EvaluationInput) (Outcome, error) {
	var pct Percentage
	if flag.Percentage != nil {
		pct = *flag.Percentage
	}

	bucket := BucketWith(e.hash, input.MerchantID, input.FlagKey)

	if pct.Includes(bucket) {
		return Outcome{
			Match:  true,
			Reason: ReasonPercentageRollout,
			Detail: fmt.Sprintf("Merchant is in the %s%% rollout cohort (bucket %d)", pct, bucket),
		}, nil
	}

	return Outcome{
		Reason: ReasonPercentageExcluded,
		Detail: fmt.Sprintf("Merchant is outside the %s%% rollout cohort (bucket %d)", pct, bucket),
	}, nil
}
