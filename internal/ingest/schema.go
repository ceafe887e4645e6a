package ingest

import (
	"fmt"
	"strings"
)

// Package ingest loads the two tabular inputs: the load-test metrics series
// and the pod-termination event log.
//
// Responsibilities:
//   - Resolve header names to semantic roles once, at load time, producing
//     a typed schema every downstream component consumes; nothing after
//     ingestion scans header strings again
//   - Parse every cell to an explicit numeric-or-absent value
//   - Canonicalize timestamp tokens (epoch seconds, epoch milliseconds, or
//     date strings) to epoch milliseconds
//
// A required column that cannot be resolved is fatal and names the file and
// the match that failed, so the operator can fix the export or the
// configuration.

// Config controls schema resolution.
type Config struct {
	// LatencyMatch and ThroughputMatch locate the tracked metric columns by
	// substring match against header names. First match wins.
	LatencyMatch    string
	ThroughputMatch string
	// CheckRateColumns is the known list of check-rate column names,
	// matched exactly. Columns from the list missing in the header are
	// simply not tracked; none of them is required.
	CheckRateColumns []string
}

// DefaultConfig returns the conventional k6-style column matches.
func DefaultConfig() Config {
	return Config{
		LatencyMatch:     "Latency",
		ThroughputMatch:  "Throughput",
		CheckRateColumns: []string{"ChecksRate", "Checks Rate", "CheckRate"},
	}
}

// Schema is the resolved column index of one series file.
type Schema struct {
	TimeColumn string   // column 0 by contract
	Latency    string   // header name matched for latency
	Throughput string   // header name matched for throughput
	CheckRates []string // check-rate columns present in this file
	Columns    []string // full header in file order
}

// TrackedMetrics returns the metric columns assessments run over, in
// report order.
func (s *Schema) TrackedMetrics() []string {
	return []string{s.Latency, s.Throughput}
}

// ColumnNotFoundError reports a required column missing from a header.
type ColumnNotFoundError struct {
	File  string
	Match string
}

func (e *ColumnNotFoundError) Error() string {
	return fmt.Sprintf("%s: no column matching %q in header", e.File, e.Match)
}

// ResolveSchema maps a header row to semantic roles. Column 0 is the time
// column; latency and throughput are required, check-rate columns optional.
func ResolveSchema(file string, header []string, cfg Config) (*Schema, error) {
	if len(header) < 2 {
		return nil, fmt.Errorf("%s: header has %d columns, need a time column plus metrics", file, len(header))
	}

	s := &Schema{
		TimeColumn: header[0],
		Columns:    append([]string(nil), header...),
	}

	var err error
	if s.Latency, err = matchSubstring(file, header, cfg.LatencyMatch); err != nil {
		return nil, err
	}
	if s.Throughput, err = matchSubstring(file, header, cfg.ThroughputMatch); err != nil {
		return nil, err
	}

	for _, want := range cfg.CheckRateColumns {
		for _, h := range header[1:] {
			if h == want {
				s.CheckRates = append(s.CheckRates, h)
				break
			}
		}
	}
	return s, nil
}

func matchSubstring(file string, header []string, match string) (string, error) {
	for _, h := range header[1:] {
		if strings.Contains(h, match) {
			return h, nil
		}
	}
	return "", &ColumnNotFoundError{File: file, Match: match}
}
