package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidewatch/pierviz/internal/common"
)

// writeSnap creates an empty snapshot file under base.
func writeSnap(t *testing.T, base, year, month, day, name string) string {
	t.Helper()
	dir := filepath.Join(base, year, month, day)
	require.NoError(t, os.MkdirAll(dir, 0755))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("png"), 0644))
	return path
}

func TestSlotPath(t *testing.T) {
	store := NewSnapshotStore("snapshots", common.GetLogger())

	ts := time.Date(2026, 1, 5, 7, 30, 0, 0, time.Local)
	want := filepath.Join("snapshots", "2026", "01", "05", "07.png")
	assert.Equal(t, want, store.SlotPath(ts))
}

func TestWindowContains(t *testing.T) {
	w := Window{Start: 6, End: 19}

	tests := []struct {
		hour int
		want bool
	}{
		{5, false},
		{6, true},
		{12, true},
		{19, true},
		{20, false},
		{0, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, w.Contains(tt.hour), "hour %d", tt.hour)
	}
}

func TestCleanOutsideWindow(t *testing.T) {
	base := t.TempDir()
	store := NewSnapshotStore(base, common.GetLogger())

	inside1 := writeSnap(t, base, "2026", "01", "05", "06.png")
	inside2 := writeSnap(t, base, "2026", "01", "05", "19.png")
	outside1 := writeSnap(t, base, "2026", "01", "05", "05.png")
	outside2 := writeSnap(t, base, "2026", "01", "06", "20.png")
	malformed := writeSnap(t, base, "2026", "01", "05", "thumb.png")

	removed, err := store.CleanOutsideWindow(Window{Start: 6, End: 19})
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	assert.FileExists(t, inside1)
	assert.FileExists(t, inside2)
	assert.NoFileExists(t, outside1)
	assert.NoFileExists(t, outside2)
	// Non-numeric stems are skipped, best effort.
	assert.FileExists(t, malformed)
}

func TestCleanOutsideWindowMissingCorpus(t *testing.T) {
	store := NewSnapshotStore(filepath.Join(t.TempDir(), "nope"), common.GetLogger())

	removed, err := store.CleanOutsideWindow(Window{Start: 6, End: 19})
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestDaySnapshots(t *testing.T) {
	base := t.TempDir()
	store := NewSnapshotStore(base, common.GetLogger())

	writeSnap(t, base, "2026", "01", "05", "09.png")
	writeSnap(t, base, "2026", "01", "05", "13.png")
	writeSnap(t, base, "2026", "01", "05", "notes.txt")

	day := time.Date(2026, 1, 5, 0, 0, 0, 0, time.Local)
	snapshots, err := store.DaySnapshots(day)
	require.NoError(t, err)
	require.Len(t, snapshots, 2)

	hours := []int{snapshots[0].Hour, snapshots[1].Hour}
	assert.ElementsMatch(t, []int{9, 13}, hours)
	assert.Equal(t, "2026-01-05 09:00", snapshots[0].Timestamp())
}

func TestDaySnapshotsMissingDay(t *testing.T) {
	store := NewSnapshotStore(t.TempDir(), common.GetLogger())

	snapshots, err := store.DaySnapshots(time.Now())
	require.NoError(t, err)
	assert.Empty(t, snapshots)
}

func TestMonthSnapshots(t *testing.T) {
	base := t.TempDir()
	store := NewSnapshotStore(base, common.GetLogger())

	writeSnap(t, base, "2026", "01", "10", "08.png")
	writeSnap(t, base, "2026", "01", "02", "14.png")
	writeSnap(t, base, "2026", "02", "01", "12.png")

	snapshots, err := store.MonthSnapshots("2026", "01")
	require.NoError(t, err)
	require.Len(t, snapshots, 2)

	// Sorted by path: day 02 before day 10.
	assert.Equal(t, "02", snapshots[0].Day)
	assert.Equal(t, "10", snapshots[1].Day)
	assert.Equal(t, "2026-01-02 14:00", snapshots[0].Timestamp())
}

func TestMonthSnapshotsMissingMonth(t *testing.T) {
	store := NewSnapshotStore(t.TempDir(), common.GetLogger())

	_, err := store.MonthSnapshots("2026", "03")
	assert.Error(t, err)
}

func TestMonths(t *testing.T) {
	base := t.TempDir()
	store := NewSnapshotStore(base, common.GetLogger())

	writeSnap(t, base, "2025", "12", "31", "10.png")
	writeSnap(t, base, "2026", "01", "05", "12.png")
	// Month directory with no PNGs anywhere must be excluded.
	require.NoError(t, os.MkdirAll(filepath.Join(base, "2026", "02", "01"), 0755))

	months, err := store.Months()
	require.NoError(t, err)
	assert.Equal(t, []MonthEntry{
		{Year: "2025", Month: "12"},
		{Year: "2026", Month: "01"},
	}, months)
}

func TestMonthsEmptyCorpus(t *testing.T) {
	store := NewSnapshotStore(filepath.Join(t.TempDir(), "nope"), common.GetLogger())

	months, err := store.Months()
	require.NoError(t, err)
	assert.Empty(t, months)
}

func TestHourFromStem(t *testing.T) {
	tests := []struct {
		name string
		want int
		ok   bool
	}{
		{"07.png", 7, true},
		{"19.png", 19, true},
		{"0.png", 0, true},
		{"thumb.png", 0, false},
		{"7a.png", 0, false},
		{".png", 0, false},
	}
	for _, tt := range tests {
		got, ok := hourFromStem(tt.name)
		assert.Equal(t, tt.ok, ok, tt.name)
		if tt.ok {
			assert.Equal(t, tt.want, got, tt.name)
		}
	}
}

func TestSnapshotTimestampZeroPadding(t *testing.T) {
	snap := Snapshot{Year: "2026", Month: "01", Day: "05", Hour: 7}
	assert.Equal(t, fmt.Sprintf("2026-01-05 %02d:00", 7), snap.Timestamp())
}
