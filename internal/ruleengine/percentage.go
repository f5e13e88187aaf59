package ruleengine

import (
	"errors"
	"math"
	"strconv"
)

var (
	// ErrPercentageRange is returned for values outside [0, 100].
	ErrPercentageRange = errors.New("percentage must be between 0 and 100")

	// ErrPercentagePrecision is returned for values with more than two decimal places.
	ErrPercentagePrecision = errors.New("percentage must have at most 2 decimal places")
)

// Percentage is a rollout share held in hundredths of a percent (4530 == 45.30%).
// Keeping it integral makes the bucket comparison exact at boundaries like 45.3.
type Percentage int32

// MaxPercentage is 100.00%.
const MaxPercentage Percentage = 10_000

// NewPercentage converts a decimal percentage (e.g. 45.3) into a Percentage.
func NewPercentage(v float64) (Percentage, error) {
	if math.IsNaN(v) || v < 0 || v > 100 {
		return 0, ErrPercentageRange
	}

	scaled := v * 100
	rounded := math.Round(scaled)
	if math.Abs(scaled-rounded) > 1e-6 {
		return 0, ErrPercentagePrecision
	}

	return Percentage(rounded), nil
}

// MustPercentage is NewPercentage for literals known to be valid. It panics otherwise.
func MustPercentage(v float64) *Percentage {
	p, err := NewPercentage(v)
	if err != nil {
		panic(err)
	}
	return &p
}

// Float64 returns the decimal form (4530 -> 45.3).
func (p Percentage) Float64() float64 {
	return float64(p) / 100
}

// String renders the shortest decimal form, e.g. "45.3" or "100".
func (p Percentage) String() string {
	return strconv.FormatFloat(p.Float64(), 'f', -1, 64)
}

// Includes reports whether a bucket in [0, 99] falls inside the rollout.
// bucket < percentage, compared in hundredths.
func (p Percentage) Includes(bucket int) bool {
	return int64(bucket)*100 < int64(p)
}

// MarshalJSON encodes the percentage as a JSON number (45.3).
func (p Percentage) MarshalJSON() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalJSON accepts a JSON number and applies the same checks as NewPercentage.
func (p *Percentage) UnmarshalJSON(data []byte) error {
	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return err
	}
	parsed, err := NewPercentage(v)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
