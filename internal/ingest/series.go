package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/resilitics/resilitics/internal/impact"
	"github.com/resilitics/resilitics/internal/timeseries"
)

// LoadSeries reads a metrics CSV, resolves its schema, and materializes the
// series in ascending timestamp order. Cells that are blank or unparseable
// become absent; a time token that parses neither as a number nor as a date
// is fatal, since all windowing depends on absolute ordering.
func LoadSeries(path string, cfg Config) (*timeseries.Series, *Schema, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening series file: %w", err)
	}
	defer f.Close()

	series, schema, err := readSeries(f, path, cfg)
	if err != nil {
		return nil, nil, err
	}
	return series, schema, nil
}

func readSeries(r io.Reader, path string, cfg Config) (*timeseries.Series, *Schema, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1 // ragged exports happen; short rows read as absent cells

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil, fmt.Errorf("%s: %w", path, impact.ErrEmptySeries)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%s: reading header: %w", path, err)
	}

	schema, err := ResolveSchema(path, header, cfg)
	if err != nil {
		return nil, nil, err
	}

	series := &timeseries.Series{}
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		if len(rec) == 0 || rec[0] == "" {
			continue
		}

		ts, err := timeseries.NormalizeTimestamp(rec[0])
		if err != nil {
			return nil, nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}

		metrics := make(map[string]timeseries.Cell, len(header)-1)
		for i := 1; i < len(header); i++ {
			metrics[header[i]] = parseCell(rec, i)
		}
		series.Samples = append(series.Samples, timeseries.Sample{Timestamp: ts, Metrics: metrics})
	}

	if series.Empty() {
		return nil, nil, fmt.Errorf("%s: %w", path, impact.ErrEmptySeries)
	}
	sort.SliceStable(series.Samples, func(i, j int) bool {
		return series.Samples[i].Timestamp < series.Samples[j].Timestamp
	})
	return series, schema, nil
}

func parseCell(rec []string, i int) timeseries.Cell {
	if i >= len(rec) {
		return timeseries.AbsentCell()
	}
	v, err := strconv.ParseFloat(rec[i], 64)
	if err != nil {
		return timeseries.AbsentCell()
	}
	return timeseries.NumericCell(v)
}
