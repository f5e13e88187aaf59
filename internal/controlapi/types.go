package controlapi

import (
	"time"

	"github.com/rafaeljc/gatekeeper/internal/registry"
	"github.com/rafaeljc/gatekeeper/internal/ruleengine"
	"github.com/rafaeljc/gatekeeper/internal/store"
)

// Error codes returned in ErrorResponse.Code.
const (
	codeInvalidJSON  = "ERR_INVALID_JSON"
	codeInvalidInput = "ERR_INVALID_INPUT"
	codeConflict     = "ERR_CONFLICT"
	codeNotFound     = "ERR_NOT_FOUND"
	codeForbidden    = "ERR_FORBIDDEN"
	codeUnauthorized = "ERR_UNAUTHORIZED"
	codeInternal     = "ERR_INTERNAL"
)

// Flag is the feature flag resource as returned by the API.
type Flag struct {
	// ID is the internal surrogate key. Read-only.
	ID string `json:"id"`

	FlagKey      string `json:"flagKey"`
	DisplayName  string `json:"displayName"`
	Description  string `json:"description"`
	IsEnabled    bool   `json:"isEnabled"`
	IsKillSwitch bool   `json:"isKillSwitch"`

	RolloutStrategy   ruleengine.Strategy    `json:"rolloutStrategy"`
	RolloutPercentage *ruleengine.Percentage `json:"rolloutPercentage"`
	TargetMerchantIDs []string               `json:"targetMerchantIds"`
	TargetTiers       []ruleengine.Tier      `json:"targetTiers"`
	TargetCountries   []string               `json:"targetCountries"`

	// Overrides is an object keyed by merchant ID, in the order the overrides were set.
	Overrides             ruleengine.Overrides `json:"overrides"`
	OverriddenMerchantIDs []string             `json:"overriddenMerchantIds"`

	// EstimatedAffectedMerchants is present on reads only. -1 means unknown.
	EstimatedAffectedMerchants *int64 `json:"estimatedAffectedMerchants,omitempty"`

	// Version is the monotonic counter for optimistic locking.
	Version         int64     `json:"version"`
	LastChangedByID string    `json:"lastChangedById,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// ListResponse wraps the flag list.
type ListResponse struct {
	Data  []Flag `json:"data"`
	Total int    `json:"total"`
}

// MessageResponse carries a human-readable confirmation.
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse represents a standard structured API error.
type ErrorResponse struct {
	// Code is a machine-readable error code (e.g., "ERR_INVALID_INPUT").
	Code string `json:"code"`

	// Message is a human-readable description of the error.
	Message string `json:"message"`

	// Details lists the rejected fields of a validation failure.
	Details []ErrorDetail `json:"details,omitempty"`
}

// ErrorDetail provides context about specific field validation failures.
type ErrorDetail struct {
	Field string `json:"field"`
	Issue string `json:"issue"`
}

func toFlag(f *store.Flag) Flag {
	return Flag{
		ID:                    f.ID,
		FlagKey:               f.Key,
		DisplayName:           f.DisplayName,
		Description:           f.Description,
		IsEnabled:             f.Enabled,
		IsKillSwitch:          f.KillSwitch,
		RolloutStrategy:       f.Strategy,
		RolloutPercentage:     f.Percentage,
		TargetMerchantIDs:     nonNil(f.TargetMerchantIDs),
		TargetTiers:           nonNil(f.TargetTiers),
		TargetCountries:       nonNil(f.TargetCountries),
		Overrides:             f.Overrides,
		OverriddenMerchantIDs: nonNil(f.Overrides.MerchantIDs()),
		Version:               f.Version,
		LastChangedByID:       f.LastChangedByID,
		CreatedAt:             f.CreatedAt,
		UpdatedAt:             f.UpdatedAt,
	}
}

func toFlagView(v registry.FlagView) Flag {
	out := toFlag(v.Flag)
	estimate := v.EstimatedAffectedMerchants
	out.EstimatedAffectedMerchants = &estimate
	return out
}

// nonNil makes empty lists encode as [] instead of null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
