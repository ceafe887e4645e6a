package baseline

import (
	"fmt"

	"github.com/resilitics/resilitics/internal/timeseries"
)

// globalStrategy trims a fixed margin from both ends of a full series and
// uses everything inside as the reference for every event. The reference
// series is the analysis run itself unless a separate clean run is supplied.
type globalStrategy struct {
	cfg Config
}

func (g *globalStrategy) Name() string { return StrategyGlobal }

func (g *globalStrategy) Compute(s *timeseries.Series, _ []int64) (*Reference, error) {
	ref := s
	if g.cfg.CleanSeries != nil {
		ref = g.cfg.CleanSeries
	}
	if ref.Empty() {
		return nil, fmt.Errorf("global baseline series is empty: %w", ErrEmptyBaseline)
	}

	margin := int64(g.cfg.OmitSeconds) * 1000
	start := ref.First().Timestamp + margin
	end := ref.Last().Timestamp - margin

	var samples []timeseries.Sample
	if start <= end {
		samples = ref.Range(start, end)
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("global baseline [%d, %d] after trimming %ds from each end: %w",
			start, end, g.cfg.OmitSeconds, ErrEmptyBaseline)
	}

	w := &Window{Start: start, End: end, SampleCount: len(samples)}
	return &Reference{
		Series: s,
		Window: w,
		lookup: func(int64) []timeseries.Sample { return samples },
	}, nil
}
