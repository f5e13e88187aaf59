// Package store provides the Data Access Layer (Repository) for feature flag definitions.
// It handles all direct interactions with the PostgreSQL database using the pgx driver,
// and ships an in-memory implementation with identical semantics for tests and local runs.
package store

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/rafaeljc/gatekeeper/internal/ruleengine"
)

var (
	// ErrNotFound is returned when no live (non-deleted) flag has the requested key.
	ErrNotFound = errors.New("flag not found")

	// ErrDuplicateKey is returned when a flag key is already taken, including by a
	// soft-deleted flag.
	ErrDuplicateKey = errors.New("flag key already exists")

	// ErrVersionConflict is returned when an update was based on a stale version.
	ErrVersionConflict = errors.New("flag was modified concurrently")
)

// Flag is a persisted feature flag definition.
// It mirrors the 'feature_flags' table structure.
type Flag struct {
	ruleengine.FeatureFlag

	ID              string     `json:"id"`
	Version         int64      `json:"version"`
	LastChangedByID string     `json:"lastChangedById,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
	DeletedAt       *time.Time `json:"deletedAt,omitempty"`
}

// Clone returns a copy that shares no mutable state with f.
// Overrides are immutable and safe to share.
func (f *Flag) Clone() *Flag {
	c := *f
	c.TargetMerchantIDs = slices.Clone(f.TargetMerchantIDs)
	c.TargetTiers = slices.Clone(f.TargetTiers)
	c.TargetCountries = slices.Clone(f.TargetCountries)
	if f.Percentage != nil {
		p := *f.Percentage
		c.Percentage = &p
	}
	if f.DeletedAt != nil {
		d := *f.DeletedAt
		c.DeletedAt = &d
	}
	return &c
}

// FlagRepository defines the interface for flag persistence operations.
// Using an interface allows for dependency injection and easier mocking in tests.
type FlagRepository interface {
	// CreateFlag inserts a new flag and populates ID, Version and timestamps in the struct.
	// Returns ErrDuplicateKey if the key is taken.
	CreateFlag(ctx context.Context, f *Flag) error

	// GetFlag returns the live flag with the given key, or ErrNotFound.
	GetFlag(ctx context.Context, key string) (*Flag, error)

	// UpdateFlag persists f if the stored version still equals f.Version
	// (optimistic concurrency). On success f.Version and f.UpdatedAt are refreshed.
	// Returns ErrNotFound if the flag is gone and ErrVersionConflict if it moved on.
	// Setting f.DeletedAt soft-deletes the flag.
	UpdateFlag(ctx context.Context, f *Flag) error

	// ListFlags returns every live flag, newest first (deterministic).
	ListFlags(ctx context.Context) ([]*Flag, error)
}
