package ruleengine

import "context"

// AllEvaluator selects every merchant.
type AllEvaluator struct{}

func (e *AllEvaluator) Eval(_ context.Context, _ *FeatureFlag, _ EvaluationInput) (Outcome, error) {
	return Outcome{Match: true, Reason: ReasonAllEnabled, Detail: "Flag is enabled for all merchants"}, nil
}
