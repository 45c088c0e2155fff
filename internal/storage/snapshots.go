package storage

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
)

// Snapshot is one captured image for a specific calendar hour, addressed as
// <base>/<year>/<month>/<day>/<hour>.png with the hour zero-padded.
type Snapshot struct {
	Path  string
	Year  string
	Month string
	Day   string
	Hour  int
}

// Timestamp returns the log timestamp for this snapshot's hour slot.
func (s Snapshot) Timestamp() string {
	return fmt.Sprintf("%s-%s-%s %02d:00", s.Year, s.Month, s.Day, s.Hour)
}

// SnapshotStore manages the on-disk snapshot corpus.
type SnapshotStore struct {
	baseDir string
	logger  arbor.ILogger
}

// NewSnapshotStore creates a snapshot store rooted at baseDir.
func NewSnapshotStore(baseDir string, logger arbor.ILogger) *SnapshotStore {
	return &SnapshotStore{
		baseDir: baseDir,
		logger:  logger,
	}
}

// BaseDir returns the corpus root directory.
func (s *SnapshotStore) BaseDir() string {
	return s.baseDir
}

// SlotPath returns the destination path for the hour slot containing t.
// A later capture for the same slot overwrites the earlier one.
func (s *SnapshotStore) SlotPath(t time.Time) string {
	return filepath.Join(s.baseDir, t.Format("2006"), t.Format("01"), t.Format("02"), t.Format("15")+".png")
}

// EnsureSlotDir creates the directory for the hour slot containing t.
func (s *SnapshotStore) EnsureSlotDir(t time.Time) error {
	dir := filepath.Dir(s.SlotPath(t))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory %s: %w", dir, err)
	}
	return nil
}

// CleanOutsideWindow deletes snapshots whose filename hour is outside the
// allowed window. Malformed filenames are skipped, best effort.
func (s *SnapshotStore) CleanOutsideWindow(window Window) (int, error) {
	if _, err := os.Stat(s.baseDir); os.IsNotExist(err) {
		return 0, nil
	}

	removed := 0
	err := filepath.WalkDir(s.baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".png") {
			return err
		}
		hour, ok := hourFromStem(path)
		if !ok {
			return nil
		}
		if !window.Contains(hour) {
			if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
				s.logger.Warn().Err(rmErr).Str("path", path).Msg("Failed to remove out-of-window snapshot")
				return nil
			}
			removed++
			s.logger.Debug().Str("path", path).Int("hour", hour).Msg("Removed out-of-window snapshot")
		}
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("failed to scan snapshot corpus: %w", err)
	}
	return removed, nil
}

// DaySnapshots returns the snapshots present for the given calendar day,
// in directory iteration order.
func (s *SnapshotStore) DaySnapshots(day time.Time) ([]Snapshot, error) {
	year := day.Format("2006")
	month := day.Format("01")
	dayStr := day.Format("02")
	dayDir := filepath.Join(s.baseDir, year, month, dayStr)

	entries, err := os.ReadDir(dayDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read day directory %s: %w", dayDir, err)
	}

	var snapshots []Snapshot
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".png") {
			continue
		}
		hour, ok := hourFromStem(entry.Name())
		if !ok {
			continue
		}
		snapshots = append(snapshots, Snapshot{
			Path:  filepath.Join(dayDir, entry.Name()),
			Year:  year,
			Month: month,
			Day:   dayStr,
			Hour:  hour,
		})
	}
	return snapshots, nil
}

// MonthSnapshots returns every snapshot under the given month, sorted by path.
func (s *SnapshotStore) MonthSnapshots(year, month string) ([]Snapshot, error) {
	monthDir := filepath.Join(s.baseDir, year, month)
	if _, err := os.Stat(monthDir); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no snapshots found at %s: %w", monthDir, err)
		}
		return nil, fmt.Errorf("failed to access month directory %s: %w", monthDir, err)
	}

	var snapshots []Snapshot
	err := filepath.WalkDir(monthDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".png") {
			return err
		}
		hour, ok := hourFromStem(path)
		if !ok {
			return nil
		}
		snapshots = append(snapshots, Snapshot{
			Path:  path,
			Year:  year,
			Month: month,
			Day:   filepath.Base(filepath.Dir(path)),
			Hour:  hour,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan month directory %s: %w", monthDir, err)
	}

	sort.Slice(snapshots, func(i, j int) bool { return snapshots[i].Path < snapshots[j].Path })
	return snapshots, nil
}

// MonthEntry identifies a (year, month) pair with at least one snapshot.
type MonthEntry struct {
	Year  string `json:"year"`
	Month string `json:"month"`
}

// Months lists the (year, month) pairs that contain at least one snapshot,
// sorted ascending.
func (s *SnapshotStore) Months() ([]MonthEntry, error) {
	var months []MonthEntry

	yearDirs, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return months, nil
		}
		return nil, fmt.Errorf("failed to read snapshot corpus %s: %w", s.baseDir, err)
	}

	for _, yearDir := range sortedDirs(yearDirs) {
		monthDirs, err := os.ReadDir(filepath.Join(s.baseDir, yearDir))
		if err != nil {
			continue
		}
		for _, monthDir := range sortedDirs(monthDirs) {
			hasPNG := false
			_ = filepath.WalkDir(filepath.Join(s.baseDir, yearDir, monthDir), func(path string, d fs.DirEntry, err error) error {
				if err == nil && !d.IsDir() && strings.HasSuffix(path, ".png") {
					hasPNG = true
					return filepath.SkipAll
				}
				return nil
			})
			if hasPNG {
				months = append(months, MonthEntry{Year: yearDir, Month: monthDir})
			}
		}
	}
	return months, nil
}

// hourFromStem extracts the hour from a snapshot filename like "07.png".
// Returns false for non-numeric stems.
func hourFromStem(path string) (int, bool) {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	for _, r := range stem {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	if stem == "" {
		return 0, false
	}
	hour, err := strconv.Atoi(stem)
	if err != nil {
		return 0, false
	}
	return hour, true
}

func sortedDirs(entries []os.DirEntry) []string {
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names
}
