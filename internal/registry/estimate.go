package registry

import (
	"math"

	"github.com/rafaeljc/gatekeeper/internal/ruleengine"
)

// UnknownEstimate is reported when the reach of a flag cannot be computed cheaply.
const UnknownEstimate int64 = -1

// estimateAffected approximates how many merchants see f as enabled. total is the
// merchant count, or UnknownEstimate when the directory could not provide it.
// Overrides are not taken into account.
func estimateAffected(f *ruleengine.FeatureFlag, total int64) int64 {
	if !f.Enabled {
		return 0
	}

	switch f.Strategy {
	case ruleengine.StrategyAll:
		return total
	case ruleengine.StrategyPercentage:
		if total == UnknownEstimate {
			return UnknownEstimate
		}
		var pct float64
		if f.Percentage != nil {
			pct = f.Percentage.Float64()
		}
		return int64(math.Round(pct / 100 * float64(total)))
	case ruleengine.StrategyMerchantIDs:
		return int64(len(f.TargetMerchantIDs))
	default:
		// Tier and country reach would need a directory scan per flag.
		return UnknownEstimate
	}
}

// needsTotal reports whether estimating f requires the merchant count.
func needsTotal(f *ruleengine.FeatureFlag) bool {
	return f.Enabled && (f.Strategy == ruleengine.StrategyAll || f.Strategy == ruleengine.StrategyPercentage)
}
