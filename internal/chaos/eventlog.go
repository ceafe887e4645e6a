package chaos

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/resilitics/resilitics/internal/impact"
)

// eventLogHeader matches the exact column names the analyzer's event loader
// looks for.
var eventLogHeader = []string{"Pod", "Termination Time", "Status"}

// EventLog records termination attempts. With a path it writes CSV rows the
// analyzer ingests as-is; without one it keeps events in memory only.
type EventLog struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
	events []impact.Event
}

// NewEventLog opens (truncating) the CSV at path and writes the header.
// An empty path yields a memory-only log.
func NewEventLog(path string) (*EventLog, error) {
	log := &EventLog{}
	if path == "" {
		return log, nil
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating event log: %w", err)
	}
	writer := csv.NewWriter(file)
	if err := writer.Write(eventLogHeader); err != nil {
		file.Close()
		return nil, fmt.Errorf("writing event log header: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		file.Close()
		return nil, fmt.Errorf("writing event log header: %w", err)
	}

	log.file = file
	log.writer = writer
	return log, nil
}

// Record appends one attempt. Rows are flushed immediately so an aborted
// run still leaves a usable log behind.
func (l *EventLog) Record(ev impact.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.events = append(l.events, ev)
	if l.writer == nil {
		return nil
	}
	row := []string{ev.Pod, strconv.FormatInt(ev.Time, 10), string(ev.Outcome)}
	if err := l.writer.Write(row); err != nil {
		return fmt.Errorf("recording event: %w", err)
	}
	l.writer.Flush()
	if err := l.writer.Error(); err != nil {
		return fmt.Errorf("recording event: %w", err)
	}
	return nil
}

// Events returns a copy of everything recorded so far.
func (l *EventLog) Events() []impact.Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]impact.Event, len(l.events))
	copy(out, l.events)
	return out
}

// Close flushes and closes the underlying file, if any.
func (l *EventLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	l.writer.Flush()
	flushErr := l.writer.Error()
	closeErr := l.file.Close()
	l.file = nil
	l.writer = nil
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}
