package manifest

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/tidewatch/pierviz/internal/storage"
)

// Last7Entry is one day's chosen snapshot in the rolling week manifest,
// optionally enriched with its visibility record.
type Last7Entry struct {
	File         string   `json:"file"`
	Date         string   `json:"date"`
	Time         string   `json:"time"`
	VisibilityFt *float64 `json:"visibility_ft,omitempty"`
	Conditions   string   `json:"conditions,omitempty"`
}

// Builder derives the rolling last-7-days gallery and the months index from
// the snapshot corpus plus the visibility log. Both outputs are pure
// projections: fully rebuilt on every run, never treated as inputs.
type Builder struct {
	store   *storage.SnapshotStore
	vislog  *storage.VisibilityLog
	docsDir string
	window  storage.Window
	logger  arbor.ILogger
}

// NewBuilder creates a manifest builder writing under docsDir.
func NewBuilder(store *storage.SnapshotStore, vislog *storage.VisibilityLog, docsDir string, window storage.Window, logger arbor.ILogger) *Builder {
	return &Builder{
		store:   store,
		vislog:  vislog,
		docsDir: docsDir,
		window:  window,
		logger:  logger,
	}
}

// BuildLast7 rebuilds docs/last7days: for each of the 7 most recent calendar
// days (today first), the in-window snapshot closest to local noon. Ties go
// to the first snapshot encountered in directory iteration order. Days with
// no in-window snapshot are omitted.
func (b *Builder) BuildLast7(now time.Time) ([]Last7Entry, error) {
	last7Dir := filepath.Join(b.docsDir, "last7days")
	if err := os.MkdirAll(last7Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create last7days directory: %w", err)
	}

	// Full rebuild: discard prior output so a partially-failed previous run
	// never leaves stale entries mixed with fresh ones.
	if err := b.clearLast7(last7Dir); err != nil {
		return nil, err
	}

	records, err := b.vislog.Load()
	if err != nil {
		b.logger.Warn().Err(err).Msg("Failed to load visibility log, building manifest without estimates")
		records = nil
	}

	const noon = 12
	entries := make([]Last7Entry, 0, 7)

	for offset := 0; offset < 7; offset++ {
		day := now.AddDate(0, 0, -offset)
		snapshots, err := b.store.DaySnapshots(day)
		if err != nil {
			return nil, err
		}

		var best *storage.Snapshot
		bestDiff := 0
		for i := range snapshots {
			snap := snapshots[i]
			if !b.window.Contains(snap.Hour) {
				continue
			}
			diff := snap.Hour - noon
			if diff < 0 {
				diff = -diff
			}
			if best == nil || diff < bestDiff {
				best = &snapshots[i]
				bestDiff = diff
			}
		}
		if best == nil {
			continue
		}

		date := fmt.Sprintf("%s-%s-%s", best.Year, best.Month, best.Day)
		outName := fmt.Sprintf("%s_%02d.png", date, best.Hour)
		if err := copyFile(best.Path, filepath.Join(last7Dir, outName)); err != nil {
			return nil, err
		}

		entry := Last7Entry{
			File: outName,
			Date: date,
			Time: fmt.Sprintf("%02d", best.Hour),
		}
		if rec, ok := records[fmt.Sprintf("%s %02d", date, best.Hour)]; ok && !math.IsNaN(rec.VisibilityFt) {
			vis := rec.VisibilityFt
			entry.VisibilityFt = &vis
			entry.Conditions = rec.Conditions
		}
		entries = append(entries, entry)
	}

	if err := writeJSON(filepath.Join(last7Dir, "last7days.json"), entries); err != nil {
		return nil, err
	}

	b.logger.Debug().Int("entries", len(entries)).Msg("Rebuilt last7days manifest")
	return entries, nil
}

// BuildMonths rebuilds docs/months.json: the ascending list of (year, month)
// pairs with at least one snapshot.
func (b *Builder) BuildMonths() ([]storage.MonthEntry, error) {
	months, err := b.store.Months()
	if err != nil {
		return nil, err
	}
	if months == nil {
		months = []storage.MonthEntry{}
	}

	if err := os.MkdirAll(b.docsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create docs directory: %w", err)
	}
	if err := writeJSON(filepath.Join(b.docsDir, "months.json"), months); err != nil {
		return nil, err
	}

	b.logger.Debug().Int("months", len(months)).Msg("Rebuilt months manifest")
	return months, nil
}

func (b *Builder) clearLast7(last7Dir string) error {
	entries, err := os.ReadDir(last7Dir)
	if err != nil {
		return fmt.Errorf("failed to read last7days directory: %w", err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".png") || name == "last7days.json" {
			if err := os.Remove(filepath.Join(last7Dir, name)); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("failed to clear stale manifest entry %s: %w", name, err)
			}
		}
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest %s: %w", path, err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)
	}
	return nil
}
