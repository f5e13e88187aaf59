package registry

import (
	"fmt"
	"slices"

	"github.com/rafaeljc/gatekeeper/internal/ruleengine"
	"github.com/rafaeljc/gatekeeper/internal/store"
)

// CreateInput is the body of a flag creation.
type CreateInput struct {
	Key               string              `json:"flagKey" validate:"required,min=3,max=100,flagkey"`
	DisplayName       string              `json:"displayName" validate:"required,max=255"`
	Description       string              `json:"description" validate:"required,min=20"`
	Strategy          ruleengine.Strategy `json:"rolloutStrategy" validate:"required,strategy"`
	Enabled           bool                `json:"isEnabled"`
	KillSwitch        bool                `json:"isKillSwitch"`
	Percentage        *float64            `json:"rolloutPercentage" validate:"omitempty,percent2"`
	TargetMerchantIDs []string            `json:"targetMerchantIds" validate:"omitempty,dive,required,max=255"`
	TargetTiers       []ruleengine.Tier   `json:"targetTiers" validate:"omitempty,dive,tier"`
	TargetCountries   []string            `json:"targetCountries" validate:"omitempty,dive,iso3166_1_alpha2"`
}

func (in CreateInput) flag() *store.Flag {
	f := &store.Flag{FeatureFlag: ruleengine.FeatureFlag{
		Key:               in.Key,
		DisplayName:       in.DisplayName,
		Description:       in.Description,
		Enabled:           in.Enabled,
		KillSwitch:        in.KillSwitch,
		Strategy:          in.Strategy,
		TargetMerchantIDs: slices.Clone(in.TargetMerchantIDs),
		TargetTiers:       slices.Clone(in.TargetTiers),
		TargetCountries:   slices.Clone(in.TargetCountries),
	}}
	if in.Percentage != nil {
		// Already checked by the percent2 tag.
		f.Percentage = ruleengine.MustPercentage(*in.Percentage)
	}
	return f
}

// Patch is a partial update. Nil fields keep their stored value.
// isKillSwitch is deliberately absent: it is fixed at creation.
type Patch struct {
	DisplayName       *string              `json:"displayName" validate:"omitempty,min=1,max=255"`
	Description       *string              `json:"description" validate:"omitempty,min=20"`
	Enabled           *bool                `json:"isEnabled"`
	Strategy          *ruleengine.Strategy `json:"rolloutStrategy" validate:"omitempty,strategy"`
	Percentage        *float64             `json:"rolloutPercentage" validate:"omitempty,percent2"`
	TargetMerchantIDs []string             `json:"targetMerchantIds" validate:"omitempty,dive,required,max=255"`
	TargetTiers       []ruleengine.Tier    `json:"targetTiers" validate:"omitempty,dive,tier"`
	TargetCountries   []string             `json:"targetCountries" validate:"omitempty,dive,iso3166_1_alpha2"`
}

// apply merges p into f. Switching strategy keeps the other strategies' parameters so
// switching back restores them.
func (p Patch) apply(f *ruleengine.FeatureFlag) {
	if p.DisplayName != nil {
		f.DisplayName = *p.DisplayName
	}
	if p.Description != nil {
		f.Description = *p.Description
	}
	if p.Enabled != nil {
		f.Enabled = *p.Enabled
	}
	if p.Strategy != nil {
		f.Strategy = *p.Strategy
	}
	if p.Percentage != nil {
		f.Percentage = ruleengine.MustPercentage(*p.Percentage)
	}
	if p.TargetMerchantIDs != nil {
		f.TargetMerchantIDs = slices.Clone(p.TargetMerchantIDs)
	}
	if p.TargetTiers != nil {
		f.TargetTiers = slices.Clone(p.TargetTiers)
	}
	if p.TargetCountries != nil {
		f.TargetCountries = slices.Clone(p.TargetCountries)
	}
}

// OverrideInput forces a flag on or off for one merchant.
type OverrideInput struct {
	MerchantID string `json:"merchantId" validate:"required,max=255"`
	Enabled    *bool  `json:"enabled" validate:"required"`
	Reason     string `json:"reason" validate:"required,min=10,max=500"`
}

// checkStrategyParams rejects a definition whose selected strategy has no parameter.
// Parameters of other strategies are not inspected.
func checkStrategyParams(f *ruleengine.FeatureFlag) error {
	missing := func(field string) error {
		return invalid(field, fmt.Sprintf("is required when rolloutStrategy is %s", f.Strategy))
	}

	switch f.Strategy {
	case ruleengine.StrategyPercentage:
		if f.Percentage == nil {
			return missing("rolloutPercentage")
		}
	case ruleengine.StrategyMerchantIDs:
		if f.TargetMerchantIDs == nil {
			return missing("targetMerchantIds")
		}
	case ruleengine.StrategyMerchantTiers:
		if f.TargetTiers == nil {
			return missing("targetTiers")
		}
	case ruleengine.StrategyCountries:
		if f.TargetCountries == nil {
			return missing("targetCountries")
		}
	}
	return nil
}
