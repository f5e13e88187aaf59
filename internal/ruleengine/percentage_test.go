package ruleengine

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPercentage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   float64
		want    Percentage
		wantErr error
	}{
		{name: "Should accept zero", input: 0, want: 0},
		{name: "Should accept one hundred", input: 100, want: MaxPercentage},
		{name: "Should accept two decimals", input: 45.3, want: 4530},
		{name: "Should accept hundredths", input: 0.01, want: 1},
		{name: "Should accept 33.33", input: 33.33, want: 3333},
		{name: "Should reject negative values", input: -0.01, wantErr: ErrPercentageRange},
		{name: "Should reject values over 100", input: 100.01, wantErr: ErrPercentageRange},
		{name: "Should reject three decimals", input: 12.345, wantErr: ErrPercentagePrecision},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewPercentage(tt.input)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPercentage_Includes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		pct    Percentage
		bucket int
		want   bool
	}{
		{name: "Should include bucket 45 at 45.30%", pct: 4530, bucket: 45, want: true},
		{name: "Should exclude bucket 46 at 45.30%", pct: 4530, bucket: 46, want: false},
		{name: "Should exclude bucket 45 at exactly 45%", pct: 4500, bucket: 45, want: false},
		{name: "Should include bucket 44 at exactly 45%", pct: 4500, bucket: 44, want: true},
		{name: "Should exclude bucket 0 at 0%", pct: 0, bucket: 0, want: false},
		{name: "Should include bucket 0 at 0.01%", pct: 1, bucket: 0, want: true},
		{name: "Should include bucket 99 at 100%", pct: MaxPercentage, bucket: 99, want: true},
		{name: "Should include bucket 99 at 99.99%", pct: 9999, bucket: 99, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.pct.Includes(tt.bucket))
		})
	}
}

func TestPercentage_JSON(t *testing.T) {
	t.Parallel()

	t.Run("Should encode as a plain number", func(t *testing.T) {
		raw, err := json.Marshal(Percentage(4530))
		require.NoError(t, err)
		assert.JSONEq(t, `45.3`, string(raw))
	})

	t.Run("Should reject precision errors on decode", func(t *testing.T) {
		var p Percentage
		err := json.Unmarshal([]byte(`10.125`), &p)
		assert.ErrorIs(t, err, ErrPercentagePrecision)
	})

	t.Run("Should decode valid numbers", func(t *testing.T) {
		var p Percentage
		require.NoError(t, json.Unmarshal([]byte(`12.5`), &p))
		assert.Equal(t, Percentage(1250), p)
		assert.Equal(t, "12.5", p.String())
	})
}
