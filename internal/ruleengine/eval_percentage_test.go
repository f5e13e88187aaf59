package ruleengine

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Helper to generate a cryptographically random string.
// Ensures our tests are not biased by sequential patterns.
func generateRandomID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		panic(err)
	}
	return hex.EncodeToString(bytes)
}

func percentageFlag(key string, pct float64) *FeatureFlag {
	return &FeatureFlag{
		Key:        key,
		Enabled:    true,
		Strategy:   StrategyPercentage,
		Percentage: MustPercentage(pct),
	}
}

// TestPercentageEvaluator_Boundaries proves that 0% never selects anyone and 100% always selects everyone.
func TestPercentageEvaluator_Boundaries(t *testing.T) {
	t.Parallel()

	evaluator := NewPercentageEvaluator(nil)
	ctx := context.Background()
	fuzzIterations := 10000

	t.Run("0% Rollout - Fuzz Test", func(t *testing.T) {
		flag := percentageFlag("zero_rollout", 0)

		for i := range fuzzIterations {
			got, err := evaluator.Eval(ctx, flag, EvaluationInput{MerchantID: generateRandomID(), FlagKey: flag.Key})

			require.NoError(t, err)
			if got.Match {
				t.Fatalf("Failed at iteration %d: 0%% rollout matched", i)
			}
			require.Equal(t, ReasonPercentageExcluded, got.Reason)
		}
	})

	t.Run("100% Rollout - Fuzz Test", func(t *testing.T) {
		flag := percentageFlag("full_rollout", 100)

		for i := range fuzzIterations {
			got, err := evaluator.Eval(ctx, flag, EvaluationInput{MerchantID: generateRandomID(), FlagKey: flag.Key})

			require.NoError(t, err)
			if !got.Match {
				t.Fatalf("Failed at iteration %d: 100%% rollout did not match", i)
			}
			require.Equal(t, ReasonPercentageRollout, got.Reason)
		}
	})

	t.Run("Missing percentage behaves as 0%", func(t *testing.T) {
		flag := &FeatureFlag{Key: "no_pct", Enabled: true, Strategy: StrategyPercentage}

		got, err := evaluator.Eval(ctx, flag, EvaluationInput{MerchantID: "merchant-001", FlagKey: flag.Key})

		require.NoError(t, err)
		assert.False(t, got.Match)
	})
}

func TestPercentageEvaluator_Scenario(t *testing.T) {
	t.Parallel()

	evaluator := NewPercentageEvaluator(SHA256Hash)
	flag := percentageFlag("new_engine", 45.3)

	tests := []struct {
		name       string
		merchantID string
		wantMatch  bool
		wantDetail string
	}{
		{
			name:       "Should exclude merchant-200 (bucket 62)",
			merchantID: "merchant-200",
			wantMatch:  false,
			wantDetail: "Merchant is outside the 45.3% rollout cohort (bucket 62)",
		},
		{
			name:       "Should include merchant-001 (bucket 2)",
			merchantID: "merchant-001",
			wantMatch:  true,
			wantDetail: "Merchant is in the 45.3% rollout cohort (bucket 2)",
		},
		{
			name:       "Should include bucket 45 under 45.3%",
			merchantID: "m-185",
			wantMatch:  true,
			wantDetail: "Merchant is in the 45.3% rollout cohort (bucket 45)",
		},
		{
			name:       "Should exclude bucket 46 under 45.3%",
			merchantID: "m-269",
			wantMatch:  false,
			wantDetail: "Merchant is outside the 45.3% rollout cohort (bucket 46)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := evaluator.Eval(context.Background(), flag, EvaluationInput{MerchantID: tt.merchantID, FlagKey: flag.Key})

			require.NoError(t, err)
			assert.Equal(t, tt.wantMatch, got.Match)
			assert.Equal(t, tt.wantDetail, got.Detail)
		})
	}
}

// TestPercentageEvaluator_Monotonic verifies that raising the percentage never drops a merchant.
func TestPercentageEvaluator_Monotonic(t *testing.T) {
	t.Parallel()

	evaluator := NewPercentageEvaluator(nil)
	steps := []float64{0, 5, 10.5, 25, 45.3, 50, 75.25, 99.99, 100}

	for range 500 {
		merchantID := generateRandomID()
		included := false

		for _, step := range steps {
			flag := percentageFlag("monotonic_check", step)
			got, err := evaluator.Eval(context.Background(), flag, EvaluationInput{MerchantID: merchantID, FlagKey: flag.Key})
			require.NoError(t, err)

			if included {
				require.True(t, got.Match, "merchant %s dropped out when raising to %v%%", merchantID, step)
			}
			included = got.Match
		}
	}
}

// TestPercentageEvaluator_Distribution checks the rollout share statistically.
func TestPercentageEvaluator_Distribution(t *testing.T) {
	t.Parallel()

	evaluator := NewPercentageEvaluator(nil)
	flag := percentageFlag("distribution_check", 30)
	iterations := 100_000
	matched := 0

	for range iterations {
		got, _ := evaluator.Eval(context.Background(), flag, EvaluationInput{MerchantID: generateRandomID(), FlagKey: flag.Key})
		if got.Match {
			matched++
		}
	}

	ratio := float64(matched) / float64(iterations)
	assert.InDelta(t, 0.30, ratio, 0.01, "expected ~30%% of merchants, got %.4f", ratio)
}
