package backfill

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/tidewatch/pierviz/internal/interfaces"
	"github.com/tidewatch/pierviz/internal/storage"
)

// Result summarizes one backfill run.
type Result struct {
	Found     int
	Skipped   int
	Processed int
	Failed    int
}

// Scheduler parallelizes the visibility oracle over a month of historical
// snapshots. Timestamps already present in the log are skipped before
// dispatch, which makes a re-run after interruption process only the missing
// remainder. The log's own mutex serializes row appends; a shared rate
// limiter paces dispatches across workers.
type Scheduler struct {
	store   *storage.SnapshotStore
	vislog  *storage.VisibilityLog
	oracle  interfaces.VisionOracle
	limiter *rate.Limiter
	logger  arbor.ILogger
}

// NewScheduler creates a backfill scheduler pacing oracle calls at
// requestsPerMinute across all workers.
func NewScheduler(store *storage.SnapshotStore, vislog *storage.VisibilityLog, oracle interfaces.VisionOracle, requestsPerMinute float64, logger arbor.ILogger) *Scheduler {
	return &Scheduler{
		store:   store,
		vislog:  vislog,
		oracle:  oracle,
		limiter: rate.NewLimiter(rate.Limit(requestsPerMinute/60.0), 1),
		logger:  logger,
	}
}

// Run processes every not-yet-estimated snapshot in the given month through
// the oracle with a fixed-size worker pool. One item's failure never aborts
// the batch: it is logged, counted, and the remaining workers continue.
func (s *Scheduler) Run(ctx context.Context, year, month string, workers int) (Result, error) {
	var result Result

	snapshots, err := s.store.MonthSnapshots(year, month)
	if err != nil {
		return result, err
	}
	result.Found = len(snapshots)

	existing, err := s.vislog.Timestamps()
	if err != nil {
		return result, err
	}

	var toProcess []storage.Snapshot
	for _, snap := range snapshots {
		if _, done := existing[snap.Timestamp()]; done {
			continue
		}
		toProcess = append(toProcess, snap)
	}
	result.Skipped = result.Found - len(toProcess)

	s.logger.Info().
		Str("year", year).
		Str("month", month).
		Int("found", result.Found).
		Int("skipped", result.Skipped).
		Int("pending", len(toProcess)).
		Int("workers", workers).
		Msg("Starting visibility backfill")

	if len(toProcess) == 0 {
		return result, nil
	}
	if workers > len(toProcess) {
		workers = len(toProcess)
	}

	jobs := make(chan storage.Snapshot)
	var wg sync.WaitGroup
	var processed, failed int64

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for snap := range jobs {
				if s.processOne(ctx, snap) {
					atomic.AddInt64(&processed, 1)
				} else {
					atomic.AddInt64(&failed, 1)
				}
			}
		}()
	}

	total := len(toProcess)
	for i, snap := range toProcess {
		jobs <- snap
		s.logger.Debug().
			Int("dispatched", i+1).
			Int("total", total).
			Str("timestamp", snap.Timestamp()).
			Msg("Dispatched snapshot for estimation")
	}
	close(jobs)
	wg.Wait()

	result.Processed = int(processed)
	result.Failed = int(failed)

	s.logger.Info().
		Int("processed", result.Processed).
		Int("failed", result.Failed).
		Msg("Visibility backfill complete")

	return result, nil
}

// processOne runs a single snapshot through the oracle and appends its row.
// Panics and append errors are contained here, at the pool boundary.
func (s *Scheduler) processOne(ctx context.Context, snap storage.Snapshot) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("path", snap.Path).
				Str("panic", fmt.Sprint(r)).
				Msg("Backfill worker recovered from panic")
			ok = false
		}
	}()

	if err := s.limiter.Wait(ctx); err != nil {
		s.logger.Warn().Err(err).Str("path", snap.Path).Msg("Backfill dispatch cancelled")
		return false
	}

	est := s.oracle.Estimate(ctx, snap.Path)

	if err := s.vislog.Append(snap.Timestamp(), est); err != nil {
		s.logger.Error().Err(err).Str("timestamp", snap.Timestamp()).Msg("Failed to append visibility row")
		return false
	}

	s.logger.Info().
		Str("timestamp", snap.Timestamp()).
		Float64("visibility_ft", est.VisibilityFt).
		Msg("Recorded visibility estimate")
	return true
}
