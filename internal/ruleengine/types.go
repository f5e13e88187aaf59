// Package ruleengine decides whether a feature flag is active for a merchant.
// It implements a Strategy pattern where each rollout strategy is an Evaluator,
// and the Engine applies the precedence chain (global switch, explicit override,
// rollout strategy) to produce a typed, explainable Result.
package ruleengine

// Strategy names the rollout rule attached to a flag.
type Strategy string

const (
	StrategyAll           Strategy = "ALL"
	StrategyPercentage    Strategy = "PERCENTAGE"
	StrategyMerchantIDs   Strategy = "MERCHANT_IDS"
	StrategyMerchantTiers Strategy = "MERCHANT_TIERS"
	StrategyCountries     Strategy = "COUNTRIES"
)

// Strategies lists every strategy the engine knows, in declaration order.
var Strategies = []Strategy{
	StrategyAll,
	StrategyPercentage,
	StrategyMerchantIDs,
	StrategyMerchantTiers,
	StrategyCountries,
}

// Valid reports whether s is one of the known strategies.
func (s Strategy) Valid() bool {
	for _, known := range Strategies {
		if s == known {
			return true
		}
	}
	return false
}

// Tier is the commercial plan a merchant belongs to.
type Tier string

const (
	TierStarter    Tier = "STARTER"
	TierGrowth     Tier = "GROWTH"
	TierEnterprise Tier = "ENTERPRISE"
)

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	switch t {
	case TierStarter, TierGrowth, TierEnterprise:
		return true
	}
	return false
}

// FeatureFlag is the evaluable part of a flag definition.
// It carries no persistence metadata; the store wraps it with identity and versioning.
//
// Only the parameter matching Strategy is consulted during evaluation. The other
// parameters may hold stale values from a previous strategy and are ignored.
type FeatureFlag struct {
	Key         string `json:"flagKey"`
	DisplayName string `json:"displayName"`
	Description string `json:"description"`

	// Enabled is the global switch. When false, every merchant evaluates to false,
	// overrides included.
	Enabled bool `json:"isEnabled"`

	// KillSwitch marks the flag as restricted: only top-privilege actors may mutate it.
	// It does not influence evaluation.
	KillSwitch bool `json:"isKillSwitch"`

	Strategy          Strategy    `json:"rolloutStrategy"`
	Percentage        *Percentage `json:"rolloutPercentage"`
	TargetMerchantIDs []string    `json:"targetMerchantIds"`
	TargetTiers       []Tier      `json:"targetTiers"`
	TargetCountries   []string    `json:"targetCountries"`

	Overrides Overrides `json:"overrides"`
}

// EvaluationInput aggregates the context needed by a strategy.
type EvaluationInput struct {
	// MerchantID is the subject of the evaluation (The "Who").
	MerchantID string

	// FlagKey salts the bucketing hash so assignments are independent across flags.
	FlagKey string
}
