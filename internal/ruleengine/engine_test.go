package ruleengine

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

// fakeResolver is an in-memory AttributeResolver.
type fakeResolver struct {
	merchants map[string]Attributes
	err       error
}

func (f *fakeResolver) ResolveAttributes(_ context.Context, merchantID string) (Attributes, bool, error) {
	if f.err != nil {
		return Attributes{}, false, f.err
	}
	attrs, ok := f.merchants[merchantID]
	return attrs, ok, nil
}

func newTestResolver() *fakeResolver {
	return &fakeResolver{merchants: map[string]Attributes{
		"m-enterprise-ng": {Tier: TierEnterprise, Country: "NG"},
		"m-starter-ke":    {Tier: TierStarter, Country: "KE"},
		"m-no-attrs":      {},
	}}
}

func TestEngine_Evaluate(t *testing.T) {
	tests := []struct {
		name       string
		flag       FeatureFlag
		merchantID string
		want       bool
		wantReason Reason
		wantDetail string
	}{
		// --- Precedence ---
		{
			name:       "Should return false when globally disabled even with an ON override",
			flag:       FeatureFlag{Key: "f", Enabled: false, Strategy: StrategyAll, Overrides: NewOverrides().With("m1", true)},
			merchantID: "m1",
			want:       false,
			wantReason: ReasonDisabledGlobally,
			wantDetail: "Flag is globally disabled",
		},
		{
			name:       "Should honor an ON override over a 0% rollout",
			flag:       FeatureFlag{Key: "f", Enabled: true, Strategy: StrategyPercentage, Percentage: MustPercentage(0), Overrides: NewOverrides().With("m1", true)},
			merchantID: "m1",
			want:       true,
			wantReason: ReasonOverrideOn,
			wantDetail: "Merchant has an explicit override: ON",
		},
		{
			name:       "Should honor an OFF override over strategy ALL",
			flag:       FeatureFlag{Key: "f", Enabled: true, Strategy: StrategyAll, Overrides: NewOverrides().With("m1", false)},
			merchantID: "m1",
			want:       false,
			wantReason: ReasonOverrideOff,
			wantDetail: "Merchant has an explicit override: OFF",
		},
		{
			name:       "Should fall through to the strategy for merchants without override",
			flag:       FeatureFlag{Key: "f", Enabled: true, Strategy: StrategyAll, Overrides: NewOverrides().With("m1", false)},
			merchantID: "m2",
			want:       true,
			wantReason: ReasonAllEnabled,
		},

		// --- Strategies ---
		{
			name:       "Should exclude merchant-200 from new_engine at 45.3%",
			flag:       FeatureFlag{Key: "new_engine", Enabled: true, Strategy: StrategyPercentage, Percentage: MustPercentage(45.3)},
			merchantID: "merchant-200",
			want:       false,
			wantReason: ReasonPercentageExcluded,
			wantDetail: "Merchant is outside the 45.3% rollout cohort (bucket 62)",
		},
		{
			name:       "Should match a listed merchant ID",
			flag:       FeatureFlag{Key: "f", Enabled: true, Strategy: StrategyMerchantIDs, TargetMerchantIDs: []string{"a", "m1"}},
			merchantID: "m1",
			want:       true,
			wantReason: ReasonMerchantIDsMatch,
		},
		{
			name:       "Should not match an unlisted merchant ID",
			flag:       FeatureFlag{Key: "f", Enabled: true, Strategy: StrategyMerchantIDs, TargetMerchantIDs: []string{"a"}},
			merchantID: "m1",
			want:       false,
			wantReason: ReasonMerchantIDsNoMatch,
		},
		{
			name:       "Should match a targeted tier",
			flag:       FeatureFlag{Key: "f", Enabled: true, Strategy: StrategyMerchantTiers, TargetTiers: []Tier{TierEnterprise}},
			merchantID: "m-enterprise-ng",
			want:       true,
			wantReason: ReasonMerchantTierMatch,
			wantDetail: "Merchant tier 'ENTERPRISE' is in the target tiers",
		},
		{
			name:       "Should not match an untargeted tier",
			flag:       FeatureFlag{Key: "f", Enabled: true, Strategy: StrategyMerchantTiers, TargetTiers: []Tier{TierEnterprise}},
			merchantID: "m-starter-ke",
			want:       false,
			wantReason: ReasonMerchantTierNoMatch,
			wantDetail: "Merchant tier 'STARTER' is not in the target tiers",
		},
		{
			name:       "Should treat an unknown merchant as a tier no-match",
			flag:       FeatureFlag{Key: "f", Enabled: true, Strategy: StrategyMerchantTiers, TargetTiers: []Tier{TierEnterprise}},
			merchantID: "m-ghost",
			want:       false,
			wantReason: ReasonMerchantTierNoMatch,
			wantDetail: "Merchant tier 'unknown' is not in the target tiers",
		},
		{
			name:       "Should match a targeted country",
			flag:       FeatureFlag{Key: "f", Enabled: true, Strategy: StrategyCountries, TargetCountries: []string{"NG", "GH"}},
			merchantID: "m-enterprise-ng",
			want:       true,
			wantReason: ReasonCountryMatch,
			wantDetail: "Merchant country 'NG' is in the target countries",
		},
		{
			name:       "Should not match a merchant without a country",
			flag:       FeatureFlag{Key: "f", Enabled: true, Strategy: StrategyCountries, TargetCountries: []string{"NG"}},
			merchantID: "m-no-attrs",
			want:       false,
			wantReason: ReasonCountryNoMatch,
			wantDetail: "Merchant country 'unknown' is not in the target countries",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			engine := New(slog.New(slog.DiscardHandler), newTestResolver())

			// Act
			got := engine.Evaluate(context.Background(), &tt.flag, tt.merchantID)

			// Assert
			assert.Equal(t, tt.want, got.Enabled)
			assert.Equal(t, tt.wantReason, got.Reason)
			assert.Equal(t, tt.flag.Key, got.FlagKey)
			assert.Equal(t, tt.merchantID, got.MerchantID)
			if tt.wantDetail != "" {
				assert.Equal(t, tt.wantDetail, got.Detail)
			}
		})
	}
}

func TestEngine_FailureModes(t *testing.T) {
	t.Run("Should fail closed and LOG WARNING on unknown strategy", func(t *testing.T) {
		// Arrange
		var logBuffer bytes.Buffer
		engine := New(slog.New(slog.NewJSONHandler(&logBuffer, nil)), newTestResolver())
		flag := &FeatureFlag{Key: "f", Enabled: true, Strategy: "GEO_FENCE"}

		// Act
		got := engine.Evaluate(context.Background(), flag, "m1")

		// Assert
		assert.False(t, got.Enabled)
		assert.Equal(t, ReasonUnknownStrategy, got.Reason)
		assert.Contains(t, logBuffer.String(), "unknown rollout strategy")
		assert.Contains(t, logBuffer.String(), "GEO_FENCE")
	})

	t.Run("Should degrade to no-match and LOG ERROR when the directory fails", func(t *testing.T) {
		// Arrange
		var logBuffer bytes.Buffer
		engine := New(slog.New(slog.NewJSONHandler(&logBuffer, nil)), &fakeResolver{err: errors.New("connection refused")})
		flag := &FeatureFlag{Key: "f", Enabled: true, Strategy: StrategyCountries, TargetCountries: []string{"NG"}}

		// Act
		got := engine.Evaluate(context.Background(), flag, "m-enterprise-ng")

		// Assert
		assert.False(t, got.Enabled)
		assert.Equal(t, ReasonCountryNoMatch, got.Reason)
		assert.Contains(t, logBuffer.String(), "strategy evaluation failed")
		assert.Contains(t, logBuffer.String(), "connection refused")
	})

	t.Run("Should panic without a resolver", func(t *testing.T) {
		assert.Panics(t, func() { New(nil, nil) })
	})
}

// TestEngine_Independence verifies that one merchant gets independent buckets across flags.
func TestEngine_Independence(t *testing.T) {
	engine := New(nil, newTestResolver())
	ctx := context.Background()

	// merchant-001 lands in bucket 2, 59 and 37 for these flags.
	rollout := func(key string) *FeatureFlag {
		return &FeatureFlag{Key: key, Enabled: true, Strategy: StrategyPercentage, Percentage: MustPercentage(40)}
	}

	assert.True(t, engine.Evaluate(ctx, rollout("new_engine"), "merchant-001").Enabled)
	assert.False(t, engine.Evaluate(ctx, rollout("checkout_v2"), "merchant-001").Enabled)
	assert.True(t, engine.Evaluate(ctx, rollout("instant_payouts"), "merchant-001").Enabled)
}

func TestEngine_WithHash(t *testing.T) {
	// A constant hash pins every merchant to bucket 7.
	engine := New(nil, newTestResolver(), WithHash(func(string) uint32 { return 107 }))
	flag := &FeatureFlag{Key: "f", Enabled: true, Strategy: StrategyPercentage, Percentage: MustPercentage(8)}

	got := engine.Evaluate(context.Background(), flag, "anyone")

	assert.True(t, got.Enabled)
	assert.Contains(t, got.Detail, "bucket 7")
}
