package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/resilitics/resilitics/internal/impact"
	"github.com/resilitics/resilitics/internal/timeseries"
)

// Event log column names, matched exactly.
const (
	eventColPod    = "Pod"
	eventColTime   = "Termination Time"
	eventColStatus = "Status"
)

// LoadEvents reads a termination event log. An empty log is valid (a run
// with no disruptions); malformed rows are not.
func LoadEvents(path string) ([]impact.Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening event log: %w", err)
	}
	defer f.Close()

	return readEvents(f, path)
}

func readEvents(r io.Reader, path string) ([]impact.Event, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%s: event log has no header row", path)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: reading header: %w", path, err)
	}

	podIdx, err := exactColumn(path, header, eventColPod)
	if err != nil {
		return nil, err
	}
	timeIdx, err := exactColumn(path, header, eventColTime)
	if err != nil {
		return nil, err
	}
	statusIdx, err := exactColumn(path, header, eventColStatus)
	if err != nil {
		return nil, err
	}

	events := make([]impact.Event, 0)
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		if len(rec) == 0 || (len(rec) == 1 && rec[0] == "") {
			continue
		}
		if max := maxIdx(podIdx, timeIdx, statusIdx); max >= len(rec) {
			return nil, fmt.Errorf("%s:%d: row has %d fields, need at least %d", path, line, len(rec), max+1)
		}

		ts, err := timeseries.NormalizeTimestamp(rec[timeIdx])
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		outcome, err := impact.ParseOutcome(rec[statusIdx])
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}

		events = append(events, impact.Event{
			Pod:     rec[podIdx],
			Time:    ts,
			Outcome: outcome,
		})
	}
	return events, nil
}

func exactColumn(path string, header []string, name string) (int, error) {
	for i, h := range header {
		if h == name {
			return i, nil
		}
	}
	return 0, &ColumnNotFoundError{File: path, Match: name}
}

func maxIdx(idx ...int) int {
	m := idx[0]
	for _, i := range idx[1:] {
		if i > m {
			m = i
		}
	}
	return m
}
