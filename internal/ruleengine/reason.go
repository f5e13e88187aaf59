package ruleengine

// Reason is the closed set of codes explaining an evaluation outcome.
type Reason string

const (
	ReasonDisabledGlobally    Reason = "DISABLED_GLOBALLY"
	ReasonOverrideOn          Reason = "OVERRIDE_ON"
	ReasonOverrideOff         Reason = "OVERRIDE_OFF"
	ReasonAllEnabled          Reason = "ALL_ENABLED"
	ReasonPercentageRollout   Reason = "PERCENTAGE_ROLLOUT"
	ReasonPercentageExcluded  Reason = "PERCENTAGE_EXCLUDED"
	ReasonMerchantIDsMatch    Reason = "MERCHANT_IDS_MATCH"
	ReasonMerchantIDsNoMatch  Reason = "MERCHANT_IDS_NO_MATCH"
	ReasonMerchantTierMatch   Reason = "MERCHANT_TIER_MATCH"
	ReasonMerchantTierNoMatch Reason = "MERCHANT_TIER_NO_MATCH"
	ReasonCountryMatch        Reason = "COUNTRY_MATCH"
	ReasonCountryNoMatch      Reason = "COUNTRY_NO_MATCH"
	ReasonUnknownStrategy     Reason = "UNKNOWN_STRATEGY"
)

// Result is the outcome of evaluating one flag for one merchant.
type Result struct {
	FlagKey    string `json:"flagKey"`
	MerchantID string `json:"merchantId"`
	Enabled    bool   `json:"isEnabled"`
	Reason     Reason `json:"reason"`

	// Detail is a human-readable explanation (e.g. "Bucket 62 not in 45.3% rollout").
	// It is informational only; clients must branch on Reason.
	Detail string `json:"detail"`
}

// Outcome is what a single strategy reports back to the Engine.
type Outcome struct {
	Match  bool
	Reason Reason
	Detail string
}
