package timeseries

// Package timeseries holds the in-memory representation of a load-test
// metrics series and the windowing operations over it.
//
// Responsibilities:
//   - Model one sampled row as a timestamp plus per-column cells
//   - Make "numeric value" vs "absent value" explicit per cell, so every
//     aggregation path decides inclusion instead of relying on coercion
//   - Canonicalize heterogeneous timestamp tokens to epoch milliseconds
//   - Slice before/after windows relative to an event instant
//
// A series is ordered ascending by timestamp. Loading (CSV parsing, schema
// resolution) lives in internal/ingest; statistics live in internal/stats.

// Cell is a single metric reading: either a numeric value or absent.
// Blank, unparseable, or missing fields are all represented as absent.
type Cell struct {
	val     float64
	present bool
}

// NumericCell returns a cell holding v.
func NumericCell(v float64) Cell { return Cell{val: v, present: true} }

// AbsentCell returns a cell with no value.
func AbsentCell() Cell { return Cell{} }

// Value returns the numeric value and whether one is present.
func (c Cell) Value() (float64, bool) { return c.val, c.present }

// IsAbsent reports whether the cell holds no value.
func (c Cell) IsAbsent() bool { return !c.present }

// Sample is one row of the series: an instant plus the metric cells
// observed at that instant, keyed by resolved column name.
type Sample struct {
	Timestamp int64 // epoch milliseconds
	Metrics   map[string]Cell
}

// Cell returns the named metric cell, absent when the column was not
// recorded for this sample.
func (s Sample) Cell(column string) Cell {
	if c, ok := s.Metrics[column]; ok {
		return c
	}
	return AbsentCell()
}

// Series is an immutable, ascending-ordered sequence of samples.
type Series struct {
	Samples []Sample
}

// Len returns the number of samples.
func (s *Series) Len() int { return len(s.Samples) }

// Empty reports whether the series holds no samples.
func (s *Series) Empty() bool { return len(s.Samples) == 0 }

// First returns the earliest sample. Callers must check Empty first.
func (s *Series) First() Sample { return s.Samples[0] }

// Last returns the latest sample. Callers must check Empty first.
func (s *Series) Last() Sample { return s.Samples[len(s.Samples)-1] }

// Range returns the samples with Start ≤ timestamp ≤ End.
func (s *Series) Range(start, end int64) []Sample {
	out := make([]Sample, 0)
	for _, sm := range s.Samples {
		if sm.Timestamp < start {
			continue
		}
		if sm.Timestamp > end {
			break
		}
		out = append(out, sm)
	}
	return out
}
