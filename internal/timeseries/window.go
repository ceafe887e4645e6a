package timeseries

// Before returns the samples in [eventTime − windowSeconds·1000, eventTime).
// The event instant itself is excluded. An empty result is valid and means
// the series holds no data for that stretch; callers surface it as a
// per-event "no data" state rather than an error.
func Before(s *Series, eventTime int64, windowSeconds int) []Sample {
	start := eventTime - int64(windowSeconds)*1000
	out := make([]Sample, 0)
	for _, sm := range s.Samples {
		if sm.Timestamp < start {
			continue
		}
		if sm.Timestamp >= eventTime {
			break
		}
		out = append(out, sm)
	}
	return out
}

// After returns the samples in (eventTime, eventTime + windowSeconds·1000].
// The event instant itself is excluded, so a sample at exactly eventTime
// contributes to neither window.
func After(s *Series, eventTime int64, windowSeconds int) []Sample {
	end := eventTime + int64(windowSeconds)*1000
	out := make([]Sample, 0)
	for _, sm := range s.Samples {
		if sm.Timestamp <= eventTime {
			continue
		}
		if sm.Timestamp > end {
			break
		}
		out = append(out, sm)
	}
	return out
}
