// Package merchant provides read access to the merchant directory.
// Flag targeting only needs a merchant's tier and country, plus a population
// count for rollout impact estimates.
package merchant

import (
	"context"

	"github.com/rafaeljc/gatekeeper/internal/ruleengine"
)

// Merchant is the subset of merchant data relevant to flag targeting.
type Merchant struct {
	ID      string
	Tier    ruleengine.Tier
	Country string
}

// Directory looks up merchants.
type Directory interface {
	// FindByID returns the merchant, or (nil, nil) when it does not exist.
	FindByID(ctx context.Context, id string) (*Merchant, error)

	// Count returns the total number of merchants.
	Count(ctx context.Context) (int64, error)
}

// Resolver adapts a Directory to the rule engine's attribute lookup.
func Resolver(d Directory) ruleengine.AttributeResolver {
	if d == nil {
		panic("merchant: directory cannot be nil")
	}
	return resolver{directory: d}
}

type resolver struct {
	directory Directory
}

func (r resolver) ResolveAttributes(ctx context.Context, merchantID string) (ruleengine.Attributes, bool, error) {
	m, err := r.directory.FindByID(ctx, merchantID)
	if err != nil || m == nil {
		return ruleengine.Attributes{}, false, err
	}
	return ruleengine.Attributes{Tier: m.Tier, Country: m.Country}, true, nil
}
