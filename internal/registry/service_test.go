package registry_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/gatekeeper/internal/audit"
	"github.com/rafaeljc/gatekeeper/internal/auth"
	"github.com/rafaeljc/gatekeeper/internal/cache"
	"github.com/rafaeljc/gatekeeper/internal/merchant"
	"github.com/rafaeljc/gatekeeper/internal/registry"
	"github.com/rafaeljc/gatekeeper/internal/ruleengine"
	"github.com/rafaeljc/gatekeeper/internal/store"
	"github.com/rafaeljc/gatekeeper/internal/testsupport"
)

var (
	superAdmin   = auth.Actor{ID: "admin-super", Role: auth.RoleSuperAdmin}
	supportAdmin = auth.Actor{ID: "admin-support", Role: auth.RoleSupportAdmin, Granted: []auth.Permission{auth.PermConfigWrite}}
)

// recordingBroadcaster remembers every published key.
type recordingBroadcaster struct {
	mu   sync.Mutex
	keys []string
}

func (b *recordingBroadcaster) Publish(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.keys = append(b.keys, key)
	return nil
}

func (b *recordingBroadcaster) published() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.keys...)
}

type fixture struct {
	svc       *registry.Service
	repo      *store.MemoryStore
	directory *merchant.StaticDirectory
	sink      *audit.MemorySink
	bus       *recordingBroadcaster
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	return newFixtureWithRepo(t, store.NewMemoryStore())
}

func newFixtureWithRepo(t *testing.T, repo store.FlagRepository) fixture {
	t.Helper()

	local, err := cache.NewMemoryCache(100, time.Minute)
	require.NoError(t, err)
	t.Cleanup(local.Close)

	bus := &recordingBroadcaster{}
	directory := merchant.NewStaticDirectory(
		merchant.Merchant{ID: "merchant-001", Tier: ruleengine.TierGrowth, Country: "NG"},
		merchant.Merchant{ID: "merchant-002", Tier: ruleengine.TierStarter, Country: "KE"},
		merchant.Merchant{ID: "M1", Tier: ruleengine.TierEnterprise, Country: "GH"},
	)
	sink := audit.NewMemorySink()

	f := fixture{
		svc:       registry.NewService(nil, repo, directory, sink, cache.NewFlagCache(nil, local, bus, time.Second)),
		directory: directory,
		sink:      sink,
		bus:       bus,
	}
	if ms, ok := repo.(*store.MemoryStore); ok {
		f.repo = ms
	}
	return f
}

func ptr[T any](v T) *T { return &v }

func percentageInput(key string, pct float64) registry.CreateInput {
	return registry.CreateInput{
		Key:         key,
		DisplayName: "New engine",
		Description: "Routes payouts through the new ledger engine",
		Strategy:    ruleengine.StrategyPercentage,
		Enabled:     true,
		Percentage:  ptr(pct),
	}
}

func validationFields(t *testing.T, err error) []string {
	t.Helper()
	var verr *registry.ValidationError
	require.ErrorAs(t, err, &verr)
	fields := make([]string, len(verr.Issues))
	for i, is := range verr.Issues {
		fields[i] = is.Field
	}
	return fields
}

func TestService_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("Should store the flag and audit the creation", func(t *testing.T) {
		// Arrange
		fx := newFixture(t)

		// Act
		f, err := fx.svc.Create(ctx, superAdmin, percentageInput("new_engine", 45.3))

		// Assert
		require.NoError(t, err)
		assert.NotEmpty(t, f.ID)
		assert.Equal(t, int64(1), f.Version)
		assert.Equal(t, superAdmin.ID, f.LastChangedByID)
		assert.Equal(t, ruleengine.Percentage(4530), *f.Percentage)

		entries := fx.sink.Entries()
		require.Len(t, entries, 1)
		assert.Equal(t, audit.ActionFlagCreated, entries[0].Action)
		assert.Equal(t, audit.EntityFeatureFlag, entries[0].EntityType)
		assert.Equal(t, f.ID, entries[0].EntityID)
		assert.Equal(t, superAdmin.ID, entries[0].ActorID)
	})

	t.Run("Should reject a duplicate key with Conflict", func(t *testing.T) {
		fx := newFixture(t)
		_, err := fx.svc.Create(ctx, superAdmin, percentageInput("new_engine", 10))
		require.NoError(t, err)

		_, err = fx.svc.Create(ctx, superAdmin, percentageInput("new_engine", 20))
		assert.ErrorIs(t, err, registry.ErrConflict)
		assert.Equal(t, "Flag 'new_engine' already exists", err.Error())
	})

	tests := []struct {
		name   string
		mutate func(*registry.CreateInput)
		field  string
	}{
		{"Should reject uppercase keys", func(in *registry.CreateInput) { in.Key = "NewEngine" }, "flagKey"},
		{"Should reject short descriptions", func(in *registry.CreateInput) { in.Description = "too short" }, "description"},
		{"Should reject a missing display name", func(in *registry.CreateInput) { in.DisplayName = "" }, "displayName"},
		{"Should reject unknown strategies", func(in *registry.CreateInput) { in.Strategy = "RANDOM" }, "rolloutStrategy"},
		{"Should reject three decimals", func(in *registry.CreateInput) { in.Percentage = ptr(45.333) }, "rolloutPercentage"},
		{"Should require a percentage for PERCENTAGE", func(in *registry.CreateInput) { in.Percentage = nil }, "rolloutPercentage"},
		{"Should require ids for MERCHANT_IDS", func(in *registry.CreateInput) {
			in.Strategy = ruleengine.StrategyMerchantIDs
		}, "targetMerchantIds"},
		{"Should reject unknown tiers", func(in *registry.CreateInput) {
			in.Strategy = ruleengine.StrategyMerchantTiers
			in.TargetTiers = []ruleengine.Tier{"PLATINUM"}
		}, "targetTiers[0]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture(t)
			in := percentageInput("new_engine", 45.3)
			tt.mutate(&in)

			_, err := fx.svc.Create(ctx, superAdmin, in)

			assert.Contains(t, validationFields(t, err), tt.field)
			assert.Empty(t, fx.sink.Entries(), "rejected input must not be audited")
		})
	}
}

func TestService_Update(t *testing.T) {
	ctx := context.Background()

	t.Run("Should only change the fields present in the patch", func(t *testing.T) {
		// Arrange
		fx := newFixture(t)
		created, err := fx.svc.Create(ctx, superAdmin, percentageInput("new_engine", 45.3))
		require.NoError(t, err)

		// Act
		updated, err := fx.svc.Update(ctx, superAdmin, "new_engine", registry.Patch{Enabled: ptr(false)})

		// Assert
		require.NoError(t, err)
		assert.False(t, updated.Enabled)
		assert.Equal(t, created.DisplayName, updated.DisplayName)
		assert.Equal(t, created.Description, updated.Description)
		assert.Equal(t, *created.Percentage, *updated.Percentage)
		assert.Equal(t, int64(2), updated.Version)
	})

	t.Run("Should keep other strategies' parameters when switching strategy", func(t *testing.T) {
		fx := newFixture(t)
		_, err := fx.svc.Create(ctx, superAdmin, percentageInput("new_engine", 45.3))
		require.NoError(t, err)

		all := ruleengine.StrategyAll
		_, err = fx.svc.Update(ctx, superAdmin, "new_engine", registry.Patch{Strategy: &all})
		require.NoError(t, err)

		pct := ruleengine.StrategyPercentage
		back, err := fx.svc.Update(ctx, superAdmin, "new_engine", registry.Patch{Strategy: &pct})
		require.NoError(t, err)
		assert.Equal(t, ruleengine.Percentage(4530), *back.Percentage)
	})

	t.Run("Should validate the merged definition", func(t *testing.T) {
		fx := newFixture(t)
		_, err := fx.svc.Create(ctx, superAdmin, percentageInput("new_engine", 45.3))
		require.NoError(t, err)

		ids := ruleengine.StrategyMerchantIDs
		_, err = fx.svc.Update(ctx, superAdmin, "new_engine", registry.Patch{Strategy: &ids})
		assert.Equal(t, []string{"targetMerchantIds"}, validationFields(t, err))
	})

	t.Run("Should return NotFound for unknown flags", func(t *testing.T) {
		fx := newFixture(t)
		_, err := fx.svc.Update(ctx, superAdmin, "ghost_flag", registry.Patch{Enabled: ptr(true)})
		assert.ErrorIs(t, err, registry.ErrNotFound)
	})

	t.Run("Should evict and broadcast so the next read is fresh", func(t *testing.T) {
		fx := newFixture(t)
		_, err := fx.svc.Create(ctx, superAdmin, percentageInput("new_engine", 45.3))
		require.NoError(t, err)

		cached, err := fx.svc.Get(ctx, "new_engine")
		require.NoError(t, err)
		require.True(t, cached.Enabled)

		_, err = fx.svc.Update(ctx, superAdmin, "new_engine", registry.Patch{Enabled: ptr(false)})
		require.NoError(t, err)

		fresh, err := fx.svc.Get(ctx, "new_engine")
		require.NoError(t, err)
		assert.False(t, fresh.Enabled)
		assert.Equal(t, []string{"new_engine", "new_engine"}, fx.bus.published())
	})
}

func TestService_KillSwitchGuard(t *testing.T) {
	ctx := context.Background()

	seed := func(t *testing.T) fixture {
		fx := newFixture(t)
		in := percentageInput("instant_payouts", 100)
		in.KillSwitch = true
		_, err := fx.svc.Create(ctx, superAdmin, in)
		require.NoError(t, err)
		return fx
	}

	mutations := map[string]func(fx fixture, actor auth.Actor) error{
		"update": func(fx fixture, actor auth.Actor) error {
			_, err := fx.svc.Update(ctx, actor, "instant_payouts", registry.Patch{Enabled: ptr(false)})
			return err
		},
		"set override": func(fx fixture, actor auth.Actor) error {
			_, err := fx.svc.SetOverride(ctx, actor, "instant_payouts", registry.OverrideInput{
				MerchantID: "merchant-001", Enabled: ptr(false), Reason: "support ticket 4412",
			})
			return err
		},
		"delete": func(fx fixture, actor auth.Actor) error {
			return fx.svc.Delete(ctx, actor, "instant_payouts")
		},
	}

	for name, mutate := range mutations {
		t.Run("Should forbid "+name+" below top privilege", func(t *testing.T) {
			fx := seed(t)
			testsupport.AssertMetricDelta(t, "gatekeeper_registry_kill_switch_denials_total", nil, 1, func() {
				err := mutate(fx, supportAdmin)
				assert.ErrorIs(t, err, registry.ErrForbidden)
			})
		})

		t.Run("Should allow "+name+" for top privilege", func(t *testing.T) {
			fx := seed(t)
			assert.NoError(t, mutate(fx, superAdmin))
		})
	}

	t.Run("Should report NotFound rather than Forbidden for unknown flags", func(t *testing.T) {
		fx := newFixture(t)
		_, err := fx.svc.Update(ctx, supportAdmin, "ghost_flag", registry.Patch{Enabled: ptr(false)})
		assert.ErrorIs(t, err, registry.ErrNotFound)
	})

	t.Run("Should not guard regular flags", func(t *testing.T) {
		fx := newFixture(t)
		_, err := fx.svc.Create(ctx, superAdmin, percentageInput("new_engine", 45.3))
		require.NoError(t, err)

		_, err = fx.svc.Update(ctx, supportAdmin, "new_engine", registry.Patch{Enabled: ptr(false)})
		assert.NoError(t, err)
	})
}

func TestService_Overrides(t *testing.T) {
	ctx := context.Background()
	override := func(id string, enabled bool) registry.OverrideInput {
		return registry.OverrideInput{MerchantID: id, Enabled: ptr(enabled), Reason: "debugging checkout issue"}
	}

	t.Run("Should set an override and audit it with metadata", func(t *testing.T) {
		// Arrange
		fx := newFixture(t)
		_, err := fx.svc.Create(ctx, superAdmin, percentageInput("new_engine", 45.3))
		require.NoError(t, err)

		// Act
		f, err := fx.svc.SetOverride(ctx, superAdmin, "new_engine", override("M1", true))

		// Assert
		require.NoError(t, err)
		enabled, ok := f.Overrides.Lookup("M1")
		assert.True(t, ok)
		assert.True(t, enabled)
		assert.Equal(t, []string{"M1"}, f.Overrides.MerchantIDs())

		entries := fx.sink.Entries()
		last := entries[len(entries)-1]
		assert.Equal(t, audit.ActionOverrideSet, last.Action)
		assert.Equal(t, "M1", last.Metadata["merchantId"])
		assert.Equal(t, true, last.Metadata["enabled"])
		assert.Equal(t, "debugging checkout issue", last.Metadata["reason"])
	})

	t.Run("Should replace an existing override in place", func(t *testing.T) {
		fx := newFixture(t)
		_, err := fx.svc.Create(ctx, superAdmin, percentageInput("new_engine", 45.3))
		require.NoError(t, err)
		_, err = fx.svc.SetOverride(ctx, superAdmin, "new_engine", override("M1", true))
		require.NoError(t, err)
		_, err = fx.svc.SetOverride(ctx, superAdmin, "new_engine", override("merchant-001", true))
		require.NoError(t, err)

		f, err := fx.svc.SetOverride(ctx, superAdmin, "new_engine", override("M1", false))
		require.NoError(t, err)

		enabled, _ := f.Overrides.Lookup("M1")
		assert.False(t, enabled)
		assert.Equal(t, []string{"M1", "merchant-001"}, f.Overrides.MerchantIDs())
	})

	t.Run("Should return NotFound for an unknown merchant", func(t *testing.T) {
		fx := newFixture(t)
		_, err := fx.svc.Create(ctx, superAdmin, percentageInput("new_engine", 45.3))
		require.NoError(t, err)

		_, err = fx.svc.SetOverride(ctx, superAdmin, "new_engine", override("merchant-999", true))
		assert.ErrorIs(t, err, registry.ErrNotFound)
		assert.Equal(t, "Merchant 'merchant-999' not found", err.Error())
	})

	t.Run("Should return NotFound for an unknown flag", func(t *testing.T) {
		fx := newFixture(t)
		_, err := fx.svc.SetOverride(ctx, superAdmin, "ghost_flag", override("M1", true))
		assert.ErrorIs(t, err, registry.ErrNotFound)
	})

	t.Run("Should reject a short reason", func(t *testing.T) {
		fx := newFixture(t)
		in := override("M1", true)
		in.Reason = "because"
		_, err := fx.svc.SetOverride(ctx, superAdmin, "new_engine", in)
		assert.Equal(t, []string{"reason"}, validationFields(t, err))
	})

	t.Run("Should require the enabled field", func(t *testing.T) {
		fx := newFixture(t)
		in := override("M1", true)
		in.Enabled = nil
		_, err := fx.svc.SetOverride(ctx, superAdmin, "new_engine", in)
		assert.Equal(t, []string{"enabled"}, validationFields(t, err))
	})

	t.Run("Should remove an override and confirm", func(t *testing.T) {
		fx := newFixture(t)
		_, err := fx.svc.Create(ctx, superAdmin, percentageInput("new_engine", 45.3))
		require.NoError(t, err)
		_, err = fx.svc.SetOverride(ctx, superAdmin, "new_engine", override("M1", true))
		require.NoError(t, err)

		msg, err := fx.svc.RemoveOverride(ctx, superAdmin, "new_engine", "M1")
		require.NoError(t, err)
		assert.Equal(t, "Override removed for merchant M1 on flag new_engine", msg)

		f, err := fx.svc.Get(ctx, "new_engine")
		require.NoError(t, err)
		assert.Zero(t, f.Overrides.Len())

		entries := fx.sink.Entries()
		assert.Equal(t, audit.ActionOverrideRemoved, entries[len(entries)-1].Action)
	})

	t.Run("Should reject removing a missing override", func(t *testing.T) {
		fx := newFixture(t)
		_, err := fx.svc.Create(ctx, superAdmin, percentageInput("new_engine", 45.3))
		require.NoError(t, err)

		_, err = fx.svc.RemoveOverride(ctx, superAdmin, "new_engine", "M1")
		assert.Equal(t, []string{"merchantId"}, validationFields(t, err))
		assert.Contains(t, err.Error(), "No override exists for merchant 'M1' on flag 'new_engine'")
	})

	t.Run("Should not lose overrides set concurrently", func(t *testing.T) {
		// Five writers: each can lose the version race at most four times, so the
		// bounded retry loop always lands every write.
		fx := newFixture(t)
		_, err := fx.svc.Create(ctx, superAdmin, percentageInput("new_engine", 45.3))
		require.NoError(t, err)

		ids := []string{"m_a", "m_b", "m_c", "m_d", "m_e"}
		for _, id := range ids {
			fx.directory.Put(merchant.Merchant{ID: id, Tier: ruleengine.TierStarter, Country: "NG"})
		}

		var wg sync.WaitGroup
		errs := make(chan error, len(ids))
		for _, id := range ids {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := fx.svc.SetOverride(ctx, superAdmin, "new_engine", override(id, true))
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		f, err := fx.repo.GetFlag(ctx, "new_engine")
		require.NoError(t, err)
		assert.ElementsMatch(t, ids, f.Overrides.MerchantIDs())
	})
}

// conflictingRepo always loses the optimistic version check.
type conflictingRepo struct {
	*store.MemoryStore
}

func (conflictingRepo) UpdateFlag(context.Context, *store.Flag) error {
	return fmt.Errorf("%w: simulated", store.ErrVersionConflict)
}

func TestService_GivesUpAfterRepeatedConflicts(t *testing.T) {
	ctx := context.Background()
	repo := conflictingRepo{store.NewMemoryStore()}
	fx := newFixtureWithRepo(t, repo)

	_, err := fx.svc.Create(ctx, superAdmin, percentageInput("new_engine", 45.3))
	require.NoError(t, err)

	testsupport.AssertMetricDelta(t, "gatekeeper_registry_mutations_total",
		map[string]string{"action": "update", "status": "conflict"}, 1, func() {
			_, err = fx.svc.Update(ctx, superAdmin, "new_engine", registry.Patch{Enabled: ptr(false)})
		})
	assert.ErrorIs(t, err, registry.ErrConflict)
}

func TestService_Delete(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	_, err := fx.svc.Create(ctx, superAdmin, percentageInput("new_engine", 45.3))
	require.NoError(t, err)
	_, err = fx.svc.Get(ctx, "new_engine") // warm the cache
	require.NoError(t, err)

	require.NoError(t, fx.svc.Delete(ctx, superAdmin, "new_engine"))

	_, err = fx.svc.Get(ctx, "new_engine")
	assert.ErrorIs(t, err, registry.ErrNotFound)

	views, err := fx.svc.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, views)

	_, err = fx.svc.Create(ctx, superAdmin, percentageInput("new_engine", 10))
	assert.ErrorIs(t, err, registry.ErrConflict, "deleted keys stay reserved")

	assert.ErrorIs(t, fx.svc.Delete(ctx, superAdmin, "new_engine"), registry.ErrNotFound)

	entries := fx.sink.Entries()
	assert.Equal(t, audit.ActionFlagDeleted, entries[len(entries)-1].Action)
}

func TestService_ListEstimates(t *testing.T) {
	ctx := context.Background()

	create := func(t *testing.T, fx fixture, in registry.CreateInput) {
		t.Helper()
		_, err := fx.svc.Create(ctx, superAdmin, in)
		require.NoError(t, err)
	}
	seed := func(t *testing.T, fx fixture) {
		for i := range 997 {
			fx.directory.Put(merchant.Merchant{ID: fmt.Sprintf("bulk-%d", i)})
		}
		// 3 fixture merchants + 997 = 1000.

		create(t, fx, percentageInput("new_engine", 45.3))

		all := percentageInput("checkout_v_two", 0)
		all.Strategy = ruleengine.StrategyAll
		create(t, fx, all)

		ids := percentageInput("instant_payouts", 0)
		ids.Strategy = ruleengine.StrategyMerchantIDs
		ids.TargetMerchantIDs = []string{"M1", "merchant-001"}
		create(t, fx, ids)

		tiers := percentageInput("enterprise_reports", 0)
		tiers.Strategy = ruleengine.StrategyMerchantTiers
		tiers.TargetTiers = []ruleengine.Tier{ruleengine.TierEnterprise}
		create(t, fx, tiers)

		off := percentageInput("dark_launch", 100)
		off.Enabled = false
		create(t, fx, off)
	}

	estimates := func(t *testing.T, fx fixture) map[string]int64 {
		views, err := fx.svc.List(ctx)
		require.NoError(t, err)
		out := make(map[string]int64, len(views))
		for _, v := range views {
			out[v.Key] = v.EstimatedAffectedMerchants
		}
		return out
	}

	t.Run("Should estimate reach per strategy", func(t *testing.T) {
		fx := newFixture(t)
		seed(t, fx)

		assert.Equal(t, map[string]int64{
			"new_engine":         453,
			"checkout_v_two":     1000,
			"instant_payouts":    2,
			"enterprise_reports": registry.UnknownEstimate,
			"dark_launch":        0,
		}, estimates(t, fx))
	})

	t.Run("Should degrade count-based estimates when the directory fails", func(t *testing.T) {
		fx := newFixture(t)
		seed(t, fx)
		fx.directory.CountErr = errors.New("directory unavailable")

		got := estimates(t, fx)
		assert.Equal(t, registry.UnknownEstimate, got["new_engine"])
		assert.Equal(t, registry.UnknownEstimate, got["checkout_v_two"])
		assert.Equal(t, int64(2), got["instant_payouts"])
		assert.Equal(t, int64(0), got["dark_launch"])
	})

	t.Run("Should estimate a single flag", func(t *testing.T) {
		fx := newFixture(t)
		seed(t, fx)

		v, err := fx.svc.GetWithEstimate(ctx, "new_engine")
		require.NoError(t, err)
		assert.Equal(t, int64(453), v.EstimatedAffectedMerchants)
	})
}

func TestService_AuditFailureDoesNotFailMutation(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	fx.sink.Err = errors.New("audit store down")

	testsupport.AssertMetricDelta(t, "gatekeeper_registry_audit_failures_total", nil, 1, func() {
		_, err := fx.svc.Create(ctx, superAdmin, percentageInput("new_engine", 45.3))
		assert.NoError(t, err)
	})
}

func TestNewService_PanicsOnMissingDependencies(t *testing.T) {
	local, err := cache.NewMemoryCache(10, time.Minute)
	require.NoError(t, err)
	defer local.Close()
	fc := cache.NewFlagCache(nil, local, cache.NopBroadcaster{}, time.Second)

	repo := store.NewMemoryStore()
	dir := merchant.NewStaticDirectory()
	sink := audit.NewMemorySink()

	assert.Panics(t, func() { registry.NewService(nil, nil, dir, sink, fc) })
	assert.Panics(t, func() { registry.NewService(nil, repo, nil, sink, fc) })
	assert.Panics(t, func() { registry.NewService(nil, repo, dir, nil, fc) })
	assert.Panics(t, func() { registry.NewService(nil, repo, dir, sink, nil) })
}
