package ruleengine

import "context"

// Evaluator is the interface that all rollout strategies must implement.
type Evaluator interface {
	// Eval checks whether the merchant in input is selected by the flag's strategy.
	//
	// The returned Outcome always carries a reason code, even alongside an error:
	// a strategy that cannot decide (e.g. the merchant directory is unreachable)
	// reports its no-match reason and the error, and the Engine logs the error and
	// treats the outcome as not matched.
	Eval(ctx context.Context, flag *FeatureFlag, input EvaluationInput) (Outcome, error)
}

// Attributes is what the merchant directory knows about a merchant.
type Attributes struct {
	Tier    Tier
	Country string
}

// AttributeResolver looks up merchant attributes for tier and country targeting.
// found is false when the merchant is unknown; that is not an error.
type AttributeResolver interface {
	ResolveAttributes(ctx context.Context, merchantID string) (attrs Attributes, found bool, err error)
}
