package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/gatekeeper/internal/ruleengine"
	"github.com/rafaeljc/gatekeeper/internal/store"
)

// runRepositoryContract exercises the behavior every FlagRepository must share.
// Each scenario uses its own keys so implementations can be reused across calls.
func runRepositoryContract(t *testing.T, repo store.FlagRepository) {
	ctx := context.Background()

	newFlag := func(key string) *store.Flag {
		return &store.Flag{FeatureFlag: ruleengine.FeatureFlag{
			Key:         key,
			DisplayName: "Contract " + key,
			Description: "Flag created by the repository contract tests",
			Enabled:     true,
			Strategy:    ruleengine.StrategyPercentage,
			Percentage:  ruleengine.MustPercentage(45.3),
		}}
	}

	t.Run("CreateFlag_AssignsIdentityAndVersion", func(t *testing.T) {
		f := newFlag("contract_create")

		err := repo.CreateFlag(ctx, f)

		require.NoError(t, err)
		assert.NotEmpty(t, f.ID)
		assert.Equal(t, int64(1), f.Version, "new flags must start at Version 1")
		assert.False(t, f.CreatedAt.IsZero())
		assert.False(t, f.UpdatedAt.IsZero())
	})

	t.Run("CreateFlag_RejectsDuplicateKey", func(t *testing.T) {
		require.NoError(t, repo.CreateFlag(ctx, newFlag("contract_dup")))

		err := repo.CreateFlag(ctx, newFlag("contract_dup"))

		assert.ErrorIs(t, err, store.ErrDuplicateKey)
	})

	t.Run("GetFlag_RoundTripsEveryField", func(t *testing.T) {
		f := newFlag("contract_roundtrip")
		f.KillSwitch = true
		f.TargetMerchantIDs = []string{"m-1", "m-2"}
		f.TargetTiers = []ruleengine.Tier{ruleengine.TierEnterprise}
		f.TargetCountries = []string{"NG"}
		f.Overrides = ruleengine.NewOverrides().With("m-9", true).With("m-3", false)
		f.LastChangedByID = "admin-1"
		require.NoError(t, repo.CreateFlag(ctx, f))

		got, err := repo.GetFlag(ctx, "contract_roundtrip")

		require.NoError(t, err)
		assert.Equal(t, f.ID, got.ID)
		assert.Equal(t, f.DisplayName, got.DisplayName)
		assert.True(t, got.KillSwitch)
		require.NotNil(t, got.Percentage)
		assert.Equal(t, ruleengine.Percentage(4530), *got.Percentage)
		assert.Equal(t, []string{"m-1", "m-2"}, got.TargetMerchantIDs)
		assert.Equal(t, []ruleengine.Tier{ruleengine.TierEnterprise}, got.TargetTiers)
		assert.Equal(t, []string{"NG"}, got.TargetCountries)
		assert.Equal(t, []string{"m-9", "m-3"}, got.Overrides.MerchantIDs(), "override order must survive persistence")
		assert.Equal(t, "admin-1", got.LastChangedByID)
	})

	t.Run("GetFlag_NotFound", func(t *testing.T) {
		_, err := repo.GetFlag(ctx, "contract_missing")

		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("UpdateFlag_BumpsVersion", func(t *testing.T) {
		f := newFlag("contract_update")
		require.NoError(t, repo.CreateFlag(ctx, f))

		f.Enabled = false
		f.Percentage = ruleengine.MustPercentage(10)
		err := repo.UpdateFlag(ctx, f)

		require.NoError(t, err)
		assert.Equal(t, int64(2), f.Version)

		got, err := repo.GetFlag(ctx, "contract_update")
		require.NoError(t, err)
		assert.False(t, got.Enabled)
		assert.Equal(t, ruleengine.Percentage(1000), *got.Percentage)
		assert.Equal(t, int64(2), got.Version)
	})

	t.Run("UpdateFlag_RejectsStaleVersion", func(t *testing.T) {
		f := newFlag("contract_stale")
		require.NoError(t, repo.CreateFlag(ctx, f))

		stale := f.Clone()
		require.NoError(t, repo.UpdateFlag(ctx, f))

		stale.Description = "This write was based on version one"
		err := repo.UpdateFlag(ctx, stale)

		assert.ErrorIs(t, err, store.ErrVersionConflict)
	})

	t.Run("UpdateFlag_NotFound", func(t *testing.T) {
		err := repo.UpdateFlag(ctx, newFlag("contract_ghost"))

		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("SoftDelete_HidesFlagButKeepsKeyReserved", func(t *testing.T) {
		f := newFlag("contract_delete")
		require.NoError(t, repo.CreateFlag(ctx, f))

		now := time.Now()
		f.DeletedAt = &now
		require.NoError(t, repo.UpdateFlag(ctx, f))

		_, err := repo.GetFlag(ctx, "contract_delete")
		assert.ErrorIs(t, err, store.ErrNotFound)

		all, err := repo.ListFlags(ctx)
		require.NoError(t, err)
		for _, listed := range all {
			assert.NotEqual(t, "contract_delete", listed.Key)
		}

		err = repo.CreateFlag(ctx, newFlag("contract_delete"))
		assert.ErrorIs(t, err, store.ErrDuplicateKey)
	})

	t.Run("ListFlags_ReturnsLiveFlags", func(t *testing.T) {
		require.NoError(t, repo.CreateFlag(ctx, newFlag("contract_list")))

		all, err := repo.ListFlags(ctx)

		require.NoError(t, err)
		keys := make([]string, 0, len(all))
		for _, f := range all {
			keys = append(keys, f.Key)
		}
		assert.Contains(t, keys, "contract_list")
		assert.Contains(t, keys, "contract_create")
	})
}
