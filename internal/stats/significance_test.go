package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestZScoreDegenerateRules(t *testing.T) {
	// Flat baseline: defined as zero for any value, never a division error.
	assert.Zero(t, ZScore(9999, 50, 0))
	assert.Zero(t, ZScore(-3, 50, 0))

	// Value equal to baseline mean is zero deviation under any spread.
	assert.Zero(t, ZScore(50, 50, 12.5))
	assert.Zero(t, ZScore(50, 50, 0))

	assert.InDelta(t, 2.0, ZScore(70, 50, 10), 1e-12)
	assert.InDelta(t, -2.0, ZScore(30, 50, 10), 1e-12)
}

func TestPercentChangeDegenerateRules(t *testing.T) {
	assert.Zero(t, PercentChange(123, 0))
	assert.InDelta(t, 400.0, PercentChange(500, 100), 1e-12)
	assert.InDelta(t, -50.0, PercentChange(50, 100), 1e-12)
}

func TestClassifyZScore(t *testing.T) {
	tests := []struct {
		z    float64
		want Significance
	}{
		{0, NotSignificant},
		{1.28, NotSignificant}, // thresholds are strict
		{1.29, Marginal},
		{1.96, Marginal},
		{1.97, Significant},
		{2.58, Significant},
		{2.59, HighlySignificant},
		{-2.59, HighlySignificant}, // symmetric around zero
		{-1.5, Marginal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyZScore(tt.z), "z=%v", tt.z)
	}
}

func TestClassifyPercentChange(t *testing.T) {
	tests := []struct {
		pct  float64
		want Significance
	}{
		{0, NotSignificant},
		{2, NotSignificant},
		{2.1, Marginal},
		{5, Marginal},
		{5.1, Significant},
		{10, Significant},
		{10.1, HighlySignificant},
		{-25, HighlySignificant},
		{400, HighlySignificant},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyPercentChange(tt.pct), "pct=%v", tt.pct)
	}
}

func TestSignificanceMonotonicInDeviation(t *testing.T) {
	prev := 0
	for z := 0.0; z < 5; z += 0.01 {
		rank := ClassifyZScore(z).Rank()
		assert.GreaterOrEqual(t, rank, prev, "rank regressed at z=%v", z)
		prev = rank
	}

	prev = 0
	for pct := 0.0; pct < 40; pct += 0.05 {
		rank := ClassifyPercentChange(pct).Rank()
		assert.GreaterOrEqual(t, rank, prev, "rank regressed at pct=%v", pct)
		prev = rank
	}
}
