package storage

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/tidewatch/pierviz/internal/interfaces"
)

// TimestampLayout is the log timestamp format, at hour granularity with a
// fixed ":00"-style minute field.
const TimestampLayout = "2006-01-02 15:04"

// HourKeyLen truncates a log timestamp to "YYYY-MM-DD HH" for hour-granular
// lookups.
const HourKeyLen = 13

var csvHeader = []string{"timestamp", "visibility_ft", "conditions"}

// VisibilityRecord is one logged estimate tied to a timestamp. VisibilityFt
// is NaN for the unusable sentinel, encoded as an empty CSV field.
type VisibilityRecord struct {
	Timestamp    string
	VisibilityFt float64
	Conditions   string
}

// VisibilityLog is the append-only canonical log of visibility estimates.
// A single mutex guards the header-check-plus-write sequence so concurrent
// backfill workers cannot interleave partial rows or duplicate the header.
type VisibilityLog struct {
	path   string
	mu     sync.Mutex
	logger arbor.ILogger
}

// NewVisibilityLog creates a visibility log backed by the CSV file at path.
func NewVisibilityLog(path string, logger arbor.ILogger) *VisibilityLog {
	return &VisibilityLog{
		path:   path,
		logger: logger,
	}
}

// Path returns the log file location.
func (l *VisibilityLog) Path() string {
	return l.path
}

// Append writes one record, creating the file with a header row on first use.
// The existence check and the write form one critical section.
func (l *VisibilityLog) Append(timestamp string, est interfaces.Estimate) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	writeHeader := true
	if info, err := os.Stat(l.path); err == nil && info.Size() > 0 {
		writeHeader = false
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open visibility log %s: %w", l.path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if writeHeader {
		if err := w.Write(csvHeader); err != nil {
			return fmt.Errorf("failed to write visibility log header: %w", err)
		}
	}

	visStr := ""
	if !est.Unusable() {
		visStr = strconv.FormatFloat(est.VisibilityFt, 'f', -1, 64)
	}
	if err := w.Write([]string{timestamp, visStr, est.Conditions}); err != nil {
		return fmt.Errorf("failed to write visibility row: %w", err)
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush visibility row: %w", err)
	}
	return nil
}

// Timestamps returns the set of timestamps already present in the log.
// Membership is by string equality on the stored timestamp field.
func (l *VisibilityLog) Timestamps() (map[string]struct{}, error) {
	existing := make(map[string]struct{})

	rows, err := l.readAll()
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		if ts := row.Timestamp; ts != "" {
			existing[ts] = struct{}{}
		}
	}
	return existing, nil
}

// Load returns all records keyed by "YYYY-MM-DD HH" for hour-granular lookup.
// Rows with an empty or unparseable visibility field carry the NaN sentinel.
func (l *VisibilityLog) Load() (map[string]VisibilityRecord, error) {
	records := make(map[string]VisibilityRecord)

	rows, err := l.readAll()
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		if row.Timestamp == "" {
			continue
		}
		key := row.Timestamp
		if len(key) > HourKeyLen {
			key = key[:HourKeyLen]
		}
		records[key] = row
	}
	return records, nil
}

func (l *VisibilityLog) readAll() ([]VisibilityRecord, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open visibility log %s: %w", l.path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read visibility log %s: %w", l.path, err)
	}

	var records []VisibilityRecord
	for i, row := range rows {
		if i == 0 && len(row) > 0 && row[0] == csvHeader[0] {
			continue
		}
		if len(row) < 1 {
			continue
		}
		rec := VisibilityRecord{
			Timestamp:    row[0],
			VisibilityFt: math.NaN(),
		}
		if len(row) > 1 && row[1] != "" {
			if v, err := strconv.ParseFloat(row[1], 64); err == nil {
				rec.VisibilityFt = v
			}
		}
		if len(row) > 2 {
			rec.Conditions = row[2]
		}
		records = append(records, rec)
	}
	return records, nil
}
