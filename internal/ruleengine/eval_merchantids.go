package ruleengine

import (
	"context"
	"slices"
)

// MerchantIDEvaluator implements allow-list targeting.
type MerchantIDEvaluator struct{}

// Eval checks whether the merchant is listed in the flag's target merchant IDs.
// Target lists are small (validated at write time), so a linear scan beats
// building a set on every evaluation.
func (e *MerchantIDEvaluator) Eval(_ context.Context, flag *FeatureFlag, input EvaluationInput) (Outcome, error) {
	if input.MerchantID != "" && slices.Contains(flag.TargetMerchantIDs, input.MerchantID) {
		return Outcome{
			Match:  true,
			Reason: ReasonMerchantIDsMatch,
			Detail: "Merchant is in the target merchant IDs list",
		}, nil
	}

	return Outcome{
		Reason: ReasonMerchantIDsNoMatch,
		Detail: "Merchant is not in the target merchant IDs list",
	}, nil
}
