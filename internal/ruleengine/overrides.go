package ruleengine

import (
	"bytes"
	"encoding/json"
	"slices"
)

// OverrideEntry is a single forced outcome for one merchant.
type OverrideEntry struct {
	MerchantID string `json:"merchantId"`
	Enabled    bool   `json:"enabled"`
}

// Overrides maps merchant IDs to a forced outcome, remembering insertion order.
//
// The value is immutable: With and Without return new instances, so a flag held
// by the cache can be read concurrently while a writer builds its replacement.
// The ordered list of overridden merchants is derived from the map and can never
// disagree with it.
type Overrides struct {
	values map[string]bool
	order  []string
}

// NewOverrides builds an Overrides from entries. Later duplicates replace earlier values
// but keep the first position.
func NewOverrides(entries ...OverrideEntry) Overrides {
	var o Overrides
	for _, e := range entries {
		o = o.With(e.MerchantID, e.Enabled)
	}
	return o
}

// Lookup returns the forced outcome for merchantID, if any.
func (o Overrides) Lookup(merchantID string) (enabled bool, ok bool) {
	enabled, ok = o.values[merchantID]
	return enabled, ok
}

// Len returns the number of overridden merchants.
func (o Overrides) Len() int {
	return len(o.order)
}

// MerchantIDs returns the overridden merchants in insertion order.
func (o Overrides) MerchantIDs() []string {
	return slices.Clone(o.order)
}

// Entries returns the overrides in insertion order.
func (o Overrides) Entries() []OverrideEntry {
	entries := make([]OverrideEntry, 0, len(o.order))
	for _, id := range o.order {
		entries = append(entries, OverrideEntry{MerchantID: id, Enabled: o.values[id]})
	}
	return entries
}

// Map returns a copy of the overrides as a plain map.
func (o Overrides) Map() map[string]bool {
	m := make(map[string]bool, len(o.values))
	for id, enabled := range o.values {
		m[id] = enabled
	}
	return m
}

// With returns a copy with merchantID forced to enabled.
// Replacing an existing override keeps its original position.
func (o Overrides) With(merchantID string, enabled bool) Overrides {
	next := Overrides{
		values: make(map[string]bool, len(o.values)+1),
		order:  slices.Clone(o.order),
	}
	for id, v := range o.values {
		next.values[id] = v
	}
	if _, exists := next.values[merchantID]; !exists {
		next.order = append(next.order, merchantID)
	}
	next.values[merchantID] = enabled
	return next
}

// Without returns a copy without merchantID. The boolean reports whether it was present.
func (o Overrides) Without(merchantID string) (Overrides, bool) {
	if _, exists := o.values[merchantID]; !exists {
		return o, false
	}

	next := Overrides{
		values: make(map[string]bool, len(o.values)-1),
		order:  make([]string, 0, len(o.order)-1),
	}
	for _, id := range o.order {
		if id == merchantID {
			continue
		}
		next.order = append(next.order, id)
		next.values[id] = o.values[id]
	}
	return next, true
}

// MarshalJSON encodes the overrides as a JSON object keyed by merchant ID, in insertion order.
func (o Overrides) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, id := range o.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(id)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		if o.values[id] {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
