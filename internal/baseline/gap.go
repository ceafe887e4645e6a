package baseline

import (
	"fmt"
	"sort"

	"github.com/resilitics/resilitics/internal/timeseries"
)

// gapStrategy scans the run for the longest stretch with no termination in
// it and uses that stretch as the reference for every event. Predates the
// fixed-margin trim; kept as a selectable policy for runs whose quiet period
// is not at the edges.
type gapStrategy struct{}

func (g *gapStrategy) Name() string { return StrategyGap }

func (g *gapStrategy) Compute(s *timeseries.Series, eventTimes []int64) (*Reference, error) {
	if s.Empty() {
		return nil, fmt.Errorf("gap baseline series is empty: %w", ErrEmptyBaseline)
	}

	start, end := widestGap(s.First().Timestamp, s.Last().Timestamp, eventTimes)
	samples := s.Range(start, end)
	if len(samples) == 0 {
		return nil, fmt.Errorf("widest termination-free gap [%d, %d] holds no samples: %w",
			start, end, ErrEmptyBaseline)
	}

	w := &Window{Start: start, End: end, SampleCount: len(samples)}
	return &Reference{
		Series: s,
		Window: w,
		lookup: func(int64) []timeseries.Sample { return samples },
	}, nil
}

// widestGap returns the bounds of the longest interval between consecutive
// termination instants, counting the stretches before the first event and
// after the last one. The instants themselves are excluded so a sample taken
// at the moment of a termination never lands in the reference.
func widestGap(first, last int64, eventTimes []int64) (int64, int64) {
	times := make([]int64, 0, len(eventTimes))
	for _, t := range eventTimes {
		if t >= first && t <= last {
			times = append(times, t)
		}
	}
	if len(times) == 0 {
		return first, last
	}
	sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })

	bestStart, bestEnd := first, times[0]-1
	consider := func(start, end int64) {
		if end-start > bestEnd-bestStart {
			bestStart, bestEnd = start, end
		}
	}
	for i := 1; i < len(times); i++ {
		consider(times[i-1]+1, times[i]-1)
	}
	consider(times[len(times)-1]+1, last)

	return bestStart, bestEnd
}
