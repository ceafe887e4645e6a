package stats

import "math"

// Significance is the qualitative tier assigned to a deviation measure.
type Significance string

const (
	NotSignificant    Significance = "Not Significant"
	Marginal          Significance = "Marginal"
	Significant       Significance = "Significant"
	HighlySignificant Significance = "Highly Significant"
)

// Rank orders tiers by severity, NotSignificant = 0 .. HighlySignificant = 3.
func (s Significance) Rank() int {
	switch s {
	case Marginal:
		return 1
	case Significant:
		return 2
	case HighlySignificant:
		return 3
	default:
		return 0
	}
}

// Two-tailed normal critical values at 99% / 95% / 90% confidence.
const (
	zHighlySignificant = 2.58
	zSignificant       = 1.96
	zMarginal          = 1.28
)

// Percentage-change tiers. Scale-free but variance-blind, so both scales
// are exposed side by side and never merged.
const (
	pctHighlySignificant = 10.0
	pctSignificant       = 5.0
	pctMarginal          = 2.0
)

// ZScore measures how many baseline standard deviations value sits from the
// baseline mean. Defined as 0 when the baseline has no spread.
func ZScore(value, baselineMean, baselineStdDev float64) float64 {
	if baselineStdDev == 0 {
		return 0
	}
	return (value - baselineMean) / baselineStdDev
}

// PercentChange measures the relative change of value against the baseline
// mean, in percent. Defined as 0 when the baseline mean is 0.
func PercentChange(value, baselineMean float64) float64 {
	if baselineMean == 0 {
		return 0
	}
	return (value - baselineMean) / baselineMean * 100
}

// ClassifyZScore maps |z| to a significance tier.
func ClassifyZScore(z float64) Significance {
	switch abs := math.Abs(z); {
	case abs > zHighlySignificant:
		return HighlySignificant
	case abs > zSignificant:
		return Significant
	case abs > zMarginal:
		return Marginal
	default:
		return NotSignificant
	}
}

// ClassifyPercentChange maps |Δ%| to a significance tier.
func ClassifyPercentChange(pct float64) Significance {
	switch abs := math.Abs(pct); {
	case abs > pctHighlySignificant:
		return HighlySignificant
	case abs > pctSignificant:
		return Significant
	case abs > pctMarginal:
		return Marginal
	default:
		return NotSignificant
	}
}
