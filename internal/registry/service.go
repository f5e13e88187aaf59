// Package registry owns feature flag definitions: validation, persistence with
// optimistic retries, the kill-switch guard, auditing and cache invalidation.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rafaeljc/gatekeeper/internal/audit"
	"github.com/rafaeljc/gatekeeper/internal/auth"
	"github.com/rafaeljc/gatekeeper/internal/cache"
	"github.com/rafaeljc/gatekeeper/internal/logger"
	"github.com/rafaeljc/gatekeeper/internal/merchant"
	"github.com/rafaeljc/gatekeeper/internal/observability"
	"github.com/rafaeljc/gatekeeper/internal/store"
	"github.com/rafaeljc/gatekeeper/internal/validation"
)

// maxAttempts bounds the read-modify-write loop when concurrent writers keep winning.
const maxAttempts = 5

// mutation labels for gatekeeper_registry_mutations_total.
const (
	opCreate         = "create"
	opUpdate         = "update"
	opOverrideSet    = "override_set"
	opOverrideRemove = "override_remove"
	opDelete         = "delete"
)

// FlagView is a definition together with its estimated reach.
type FlagView struct {
	*store.Flag
	EstimatedAffectedMerchants int64
}

// Service is the Flag Registry.
type Service struct {
	logger    *slog.Logger
	repo      store.FlagRepository
	directory merchant.Directory
	audit     audit.Sink
	cache     *cache.FlagCache
	now       func() time.Time
}

// NewService wires the registry. Every collaborator is mandatory.
func NewService(log *slog.Logger, repo store.FlagRepository, directory merchant.Directory, sink audit.Sink, flagCache *cache.FlagCache) *Service {
	if repo == nil {
		panic("registry: flag repository cannot be nil")
	}
	if directory == nil {
		panic("registry: merchant directory cannot be nil")
	}
	if sink == nil {
		panic("registry: audit sink cannot be nil")
	}
	validation.AssertNotNil(flagCache, "flag cache")
	if log == nil {
		log = slog.Default()
	}

	return &Service{
		logger:    log,
		repo:      repo,
		directory: directory,
		audit:     sink,
		cache:     flagCache,
		now:       time.Now,
	}
}

// Get returns a live flag through the cache. The result is shared and must not be mutated.
func (s *Service) Get(ctx context.Context, key string) (*store.Flag, error) {
	f, err := s.cache.GetOrLoad(ctx, key, s.repo.GetFlag)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFoundf("Feature flag '%s' not found", key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load flag %q: %w", key, err)
	}
	return f, nil
}

// GetWithEstimate is Get plus the estimated number of affected merchants.
func (s *Service) GetWithEstimate(ctx context.Context, key string) (FlagView, error) {
	f, err := s.Get(ctx, key)
	if err != nil {
		return FlagView{}, err
	}

	total := UnknownEstimate
	if needsTotal(&f.FeatureFlag) {
		total = s.merchantTotal(ctx)
	}
	return FlagView{Flag: f, EstimatedAffectedMerchants: estimateAffected(&f.FeatureFlag, total)}, nil
}

// List returns every live flag, newest first, with reach estimates.
func (s *Service) List(ctx context.Context) ([]FlagView, error) {
	flags, err := s.repo.ListFlags(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list flags: %w", err)
	}

	total := UnknownEstimate
	for _, f := range flags {
		if needsTotal(&f.FeatureFlag) {
			total = s.merchantTotal(ctx)
			break
		}
	}

	views := make([]FlagView, len(flags))
	for i, f := range flags {
		views[i] = FlagView{Flag: f, EstimatedAffectedMerchants: estimateAffected(&f.FeatureFlag, total)}
	}
	return views, nil
}

// ListActive returns every live flag straight from the registry.
func (s *Service) ListActive(ctx context.Context) ([]*store.Flag, error) {
	flags, err := s.repo.ListFlags(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list flags: %w", err)
	}
	return flags, nil
}

// merchantTotal degrades to UnknownEstimate instead of failing the read.
func (s *Service) merchantTotal(ctx context.Context) int64 {
	total, err := s.directory.Count(ctx)
	if err != nil {
		s.log(ctx).Warn("failed to count merchants, reporting unknown reach",
			slog.String("error", err.Error()),
		)
		return UnknownEstimate
	}
	return total
}

// Create validates and stores a new flag.
func (s *Service) Create(ctx context.Context, actor auth.Actor, in CreateInput) (*store.Flag, error) {
	f, err := s.create(ctx, actor, in)
	s.count(opCreate, err)
	return f, err
}

func (s *Service) create(ctx context.Context, actor auth.Actor, in CreateInput) (*store.Flag, error) {
	if err := validate(in); err != nil {
		return nil, err
	}

	f := in.flag()
	if err := checkStrategyParams(&f.FeatureFlag); err != nil {
		return nil, err
	}
	f.LastChangedByID = actor.ID

	if err := s.repo.CreateFlag(ctx, f); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return nil, conflictf("Flag '%s' already exists", in.Key)
		}
		return nil, fmt.Errorf("failed to create flag: %w", err)
	}

	s.cache.Invalidate(ctx, f.Key)
	s.record(ctx, audit.Entry{
		EntityID: f.ID,
		Action:   audit.ActionFlagCreated,
		ActorID:  actor.ID,
		After:    f,
	})

	s.log(ctx).Info("feature flag created",
		slog.String("flag_key", f.Key),
		slog.String("actor_id", actor.ID),
	)
	return f, nil
}

// Update applies a partial patch. Kill-switch flags need top privilege.
func (s *Service) Update(ctx context.Context, actor auth.Actor, key string, patch Patch) (*store.Flag, error) {
	f, err := s.update(ctx, actor, key, patch)
	s.count(opUpdate, err)
	return f, err
}

func (s *Service) update(ctx context.Context, actor auth.Actor, key string, patch Patch) (*store.Flag, error) {
	if err := validate(patch); err != nil {
		return nil, err
	}

	return s.mutate(ctx, actor, key, func(before, next *store.Flag) (audit.Entry, error) {
		patch.apply(&next.FeatureFlag)
		if err := checkStrategyParams(&next.FeatureFlag); err != nil {
			return audit.Entry{}, err
		}
		return audit.Entry{Action: audit.ActionFlagUpdated, Before: before, After: next}, nil
	})
}

// SetOverride forces the flag on or off for one merchant, replacing any previous
// override for that merchant.
func (s *Service) SetOverride(ctx context.Context, actor auth.Actor, key string, in OverrideInput) (*store.Flag, error) {
	f, err := s.setOverride(ctx, actor, key, in)
	s.count(opOverrideSet, err)
	return f, err
}

func (s *Service) setOverride(ctx context.Context, actor auth.Actor, key string, in OverrideInput) (*store.Flag, error) {
	if err := validate(in); err != nil {
		return nil, err
	}
	enabled := *in.Enabled

	return s.mutate(ctx, actor, key, func(before, next *store.Flag) (audit.Entry, error) {
		m, err := s.directory.FindByID(ctx, in.MerchantID)
		if err != nil {
			return audit.Entry{}, fmt.Errorf("failed to look up merchant: %w", err)
		}
		if m == nil {
			return audit.Entry{}, notFoundf("Merchant '%s' not found", in.MerchantID)
		}

		next.Overrides = next.Overrides.With(in.MerchantID, enabled)
		return audit.Entry{
			Action: audit.ActionOverrideSet,
			Before: overridesState(before),
			After:  overridesState(next),
			Metadata: map[string]any{
				"flagKey":    key,
				"merchantId": in.MerchantID,
				"enabled":    enabled,
				"reason":     in.Reason,
			},
		}, nil
	})
}

// RemoveOverride drops the override for merchantID and returns a confirmation message.
func (s *Service) RemoveOverride(ctx context.Context, actor auth.Actor, key, merchantID string) (string, error) {
	_, err := s.mutate(ctx, actor, key, func(before, next *store.Flag) (audit.Entry, error) {
		remaining, ok := next.Overrides.Without(merchantID)
		if !ok {
			return audit.Entry{}, invalid("merchantId",
				fmt.Sprintf("No override exists for merchant '%s' on flag '%s'", merchantID, key))
		}

		next.Overrides = remaining
		return audit.Entry{
			Action:   audit.ActionOverrideRemoved,
			Before:   overridesState(before),
			After:    overridesState(next),
			Metadata: map[string]any{"flagKey": key, "merchantId": merchantID},
		}, nil
	})
	s.count(opOverrideRemove, err)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Override removed for merchant %s on flag %s", merchantID, key), nil
}

// Delete soft-deletes the flag. The key stays reserved.
func (s *Service) Delete(ctx context.Context, actor auth.Actor, key string) error {
	_, err := s.mutate(ctx, actor, key, func(before, next *store.Flag) (audit.Entry, error) {
		deletedAt := s.now().UTC()
		next.DeletedAt = &deletedAt
		return audit.Entry{Action: audit.ActionFlagDeleted, Before: before}, nil
	})
	s.count(opDelete, err)
	return err
}

// change edits next (a private copy of before) and describes the audit record.
type change func(before, next *store.Flag) (audit.Entry, error)

// mutate is the read-modify-write loop shared by every update. The version check in
// the store turns concurrent writers into retries, so a change is always applied to
// the latest definition and never overwrites another writer's override.
func (s *Service) mutate(ctx context.Context, actor auth.Actor, key string, apply change) (*store.Flag, error) {
	for attempt := 1; ; attempt++ {
		before, err := s.repo.GetFlag(ctx, key)
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFoundf("Feature flag '%s' not found", key)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load flag %q: %w", key, err)
		}

		if err := authorizeMutation(before, actor); err != nil {
			return nil, err
		}

		next := before.Clone()
		entry, err := apply(before, next)
		if err != nil {
			return nil, err
		}
		next.LastChangedByID = actor.ID

		err = s.repo.UpdateFlag(ctx, next)
		switch {
		case err == nil:
		case errors.Is(err, store.ErrVersionConflict) && attempt < maxAttempts:
			s.log(ctx).Debug("flag changed underneath, retrying",
				slog.String("flag_key", key),
				slog.Int("attempt", attempt),
			)
			continue
		case errors.Is(err, store.ErrVersionConflict):
			return nil, conflictf("Feature flag '%s' is being modified concurrently, retry later", key)
		case errors.Is(err, store.ErrNotFound):
			return nil, notFoundf("Feature flag '%s' not found", key)
		default:
			return nil, fmt.Errorf("failed to update flag %q: %w", key, err)
		}

		s.cache.Invalidate(ctx, key)

		entry.EntityID = next.ID
		entry.ActorID = actor.ID
		s.record(ctx, entry)

		s.log(ctx).Info("feature flag changed",
			slog.String("flag_key", key),
			slog.String("action", string(entry.Action)),
			slog.String("actor_id", actor.ID),
			slog.Int64("version", next.Version),
		)
		return next, nil
	}
}

// record writes an audit entry. The mutation is already committed, so a sink failure
// is reported and counted but not returned.
func (s *Service) record(ctx context.Context, e audit.Entry) {
	e.EntityType = audit.EntityFeatureFlag
	if err := s.audit.Record(ctx, e); err != nil {
		observability.AuditFailures.Inc()
		s.log(ctx).Error("failed to record audit entry",
			slog.String("action", string(e.Action)),
			slog.String("entity_id", e.EntityID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Service) count(op string, err error) {
	observability.MutationsTotal.WithLabelValues(op, outcome(err)).Inc()
}

func outcome(err error) string {
	var verr *ValidationError
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.As(err, &verr), errors.Is(err, ErrNotFound), errors.Is(err, ErrForbidden):
		return "rejected"
	default:
		return "error"
	}
}

func (s *Service) log(ctx context.Context) *slog.Logger {
	return logger.FromContextOr(ctx, s.logger)
}

// overridesState is the audit snapshot of an override change.
func overridesState(f *store.Flag) map[string]any {
	return map[string]any{
		"overrides":             f.Overrides,
		"overriddenMerchantIds": f.Overrides.MerchantIDs(),
	}
}
