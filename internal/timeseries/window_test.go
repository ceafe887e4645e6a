package timeseries

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func sampleAt(ts int64, latency float64) Sample {
	return Sample{
		Timestamp: ts,
		Metrics:   map[string]Cell{"Latency": NumericCell(latency)},
	}
}

func testSeries(ts ...int64) *Series {
	s := &Series{}
	for _, t := range ts {
		s.Samples = append(s.Samples, sampleAt(t, 100))
	}
	return s
}

func TestBeforeWindowBounds(t *testing.T) {
	// Window of 3s before t=2500 covers [-500, 2500).
	s := testSeries(0, 1000, 2000, 2500, 3000, 4000)

	got := Before(s, 2500, 3)
	assert.Len(t, got, 3)
	assert.Equal(t, int64(0), got[0].Timestamp)
	assert.Equal(t, int64(2000), got[2].Timestamp)
}

func TestAfterWindowBounds(t *testing.T) {
	// Window of 2s after t=2500 covers (2500, 4500].
	s := testSeries(0, 1000, 2000, 2500, 3000, 4000, 4500, 5000)

	got := After(s, 2500, 2)
	assert.Len(t, got, 3)
	assert.Equal(t, int64(3000), got[0].Timestamp)
	assert.Equal(t, int64(4500), got[2].Timestamp)
}

func TestEventInstantInNeitherWindow(t *testing.T) {
	s := testSeries(1000, 2000, 3000)

	for _, sm := range Before(s, 2000, 10) {
		assert.NotEqual(t, int64(2000), sm.Timestamp)
	}
	for _, sm := range After(s, 2000, 10) {
		assert.NotEqual(t, int64(2000), sm.Timestamp)
	}
}

func TestWindowBoundaryInclusion(t *testing.T) {
	s := testSeries(1000, 2000, 3000, 4000, 5000)

	// Exactly eventTime - w*1000 is inside the before window.
	before := Before(s, 4000, 3)
	assert.Equal(t, int64(1000), before[0].Timestamp)

	// Exactly eventTime + w*1000 is inside the after window.
	after := After(s, 2000, 3)
	assert.Equal(t, int64(5000), after[len(after)-1].Timestamp)
}

func TestEmptyWindowIsValid(t *testing.T) {
	s := testSeries(1000, 2000)

	got := After(s, 2000, 5)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}
