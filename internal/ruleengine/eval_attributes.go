package ruleengine

import (
	"context"
	"fmt"
	"slices"
)

// TierEvaluator targets merchants by commercial tier.
type TierEvaluator struct {
	resolver AttributeResolver
}

// NewTierEvaluator creates a TierEvaluator backed by the merchant directory.
func NewTierEvaluator(resolver AttributeResolver) *TierEvaluator {
	return &TierEvaluator{resolver: resolver}
}

// Eval matches when the merchant is known and its tier is targeted.
// Unknown merchants, merchants without a tier and lookup failures are no-matches.
func (e *TierEvaluator) Eval(ctx context.Context, flag *FeatureFlag, input EvaluationInput) (Outcome, error) {
	attrs, found, err := e.resolver.ResolveAttributes(ctx, input.MerchantID)
	if err != nil {
		return tierNoMatch(""), fmt.Errorf("resolve merchant tier: %w", err)
	}

	if found && attrs.Tier != "" && slices.Contains(flag.TargetTiers, attrs.Tier) {
		return Outcome{
			Match:  true,
			Reason: ReasonMerchantTierMatch,
			Detail: fmt.Sprintf("Merchant tier '%s' is in the target tiers", attrs.Tier),
		}, nil
	}

	return tierNoMatch(attrs.Tier), nil
}

func tierNoMatch(tier Tier) Outcome {
	label := string(tier)
	if label == "" {
		label = "unknown"
	}
	return Outcome{
		Reason: ReasonMerchantTierNoMatch,
		Detail: fmt.Sprintf("Merchant tier '%s' is not in the target tiers", label),
	}
}

// CountryEvaluator targets merchants by country code.
type CountryEvaluator struct {
	resolver AttributeResolver
}

// NewCountryEvaluator creates a CountryEvaluator backed by the merchant directory.
func NewCountryEvaluator(resolver AttributeResolver) *CountryEvaluator {
	return &CountryEvaluator{resolver: resolver}
}

// Eval matches when the merchant is known and its country is targeted.
// Country codes are compared exactly as stored.
func (e *CountryEvaluator) Eval(ctx context.Context, flag *FeatureFlag, input EvaluationInput) (Outcome, error) {
	attrs, found, err := e.resolver.ResolveAttributes(ctx, input.MerchantID)
	if err != nil {
		return countryNoMatch(""), fmt.Errorf("resolve merchant country: %w", err)
	}

	if found && attrs.Country != "" && slices.Contains(flag.TargetCountries, attrs.Country) {
		return Outcome{
			Match:  true,
			Reason: ReasonCountryMatch,
			Detail: fmt.Sprintf("Merchant country '%s' is in the target countries", attrs.Country),
		}, nil
	}

	return countryNoMatch(attrs.Country), nil
}

func countryNoMatch(country string) Outcome {
	if country == "" {
		country = "unknown"
	}
	return Outcome{
		Reason: ReasonCountryNoMatch,
		Detail: fmt.Sprintf("Merchant country '%s' is not in the target countries", country),
	}
}
