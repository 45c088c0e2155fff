package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/tidewatch/pierviz/internal/common"
	"github.com/tidewatch/pierviz/internal/services/capture"
	"github.com/tidewatch/pierviz/internal/services/manifest"
	"github.com/tidewatch/pierviz/internal/services/visibility"
	"github.com/tidewatch/pierviz/internal/storage"
)

var (
	configFile   = flag.String("config", "", "Configuration file path (TOML)")
	pageURL      = flag.String("url", "", "Page to open (overrides config)")
	startHour    = flag.Int("start-hour", -1, "Inclusive start hour (overrides config)")
	endHour      = flag.Int("end-hour", -1, "Inclusive end hour (overrides config)")
	headless     = flag.String("headless", "", "Set to 'false' to show the browser (overrides config)")
	schedule     = flag.String("schedule", "", "Cron expression to run capture in-process (overrides config)")
	showVersion  = flag.Bool("version", false, "Print version information")
	showVersionV = flag.Bool("v", false, "Print version information (shorthand)")
)

func main() {
	flag.Parse()

	if *showVersion || *showVersionV {
		fmt.Printf("Pierviz version %s\n", common.GetFullVersion())
		os.Exit(0)
	}

	// Startup sequence: load config, apply CLI overrides, init logger, banner.
	config, err := common.LoadFromFile(*configFile)
	if err != nil {
		tempLogger := arbor.NewLogger()
		tempLogger.Fatal().Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}
	common.ApplyFlagOverrides(config, *pageURL, *startHour, *endHour, *headless)
	if *schedule != "" {
		config.Capture.Schedule = *schedule
	}
	// Flags have the highest priority, so the resolved config is validated
	// again after they are applied.
	if err := common.Validate(config); err != nil {
		tempLogger := arbor.NewLogger()
		tempLogger.Fatal().Err(err).Msg("Invalid configuration after flag overrides")
		os.Exit(1)
	}

	logger := common.InitLogger(config)
	common.PrintBanner(common.GetVersion())

	app, err := newApp(config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize services")
		os.Exit(1)
	}

	if config.Capture.Schedule != "" {
		runScheduled(config, app, logger)
		return
	}

	os.Exit(app.runOnce(context.Background(), time.Now()))
}

// runScheduled runs the capture pipeline in-process on a cron schedule.
func runScheduled(config *common.Config, app *app, logger arbor.ILogger) {
	c := cron.New()
	_, err := c.AddFunc(config.Capture.Schedule, func() {
		app.runOnce(context.Background(), time.Now())
	})
	if err != nil {
		logger.Fatal().Err(err).Str("schedule", config.Capture.Schedule).Msg("Invalid cron schedule")
		os.Exit(1)
	}

	logger.Info().Str("schedule", config.Capture.Schedule).Msg("Running capture on schedule")
	c.Run()
}

// app wires the live single-shot pipeline: capture, estimate, log, housekeep.
type app struct {
	config   *common.Config
	logger   arbor.ILogger
	store    *storage.SnapshotStore
	vislog   *storage.VisibilityLog
	capturer *capture.Service
	oracle   *visibility.Client
	builder  *manifest.Builder
}

func newApp(config *common.Config, logger arbor.ILogger) (*app, error) {
	store := storage.NewSnapshotStore(config.Capture.SnapshotsDir, logger)
	vislog := storage.NewVisibilityLog(visibilityLogPath(config), logger)

	oracle, err := visibility.NewClient(&config.Oracle, logger)
	if err != nil {
		return nil, err
	}

	capturer, err := capture.NewService(&config.Browser, &config.Capture, logger)
	if err != nil {
		return nil, err
	}

	window := storage.Window{Start: config.Capture.StartHour, End: config.Capture.EndHour}

	return &app{
		config:   config,
		logger:   logger,
		store:    store,
		vislog:   vislog,
		capturer: capturer,
		oracle:   oracle,
		builder:  manifest.NewBuilder(store, vislog, config.Docs.Dir, window, logger),
	}, nil
}

// runOnce performs one scheduled single-shot run. The exit code is non-zero
// only when a capture attempted inside the window failed to produce a file;
// oracle degradations are recorded in the log and never affect the exit code.
// Housekeeping and manifest rebuilds run regardless of capture outcome.
func (a *app) runOnce(ctx context.Context, now time.Time) int {
	runLogger := a.logger.WithCorrelationId(uuid.New().String())
	window := storage.Window{Start: a.config.Capture.StartHour, End: a.config.Capture.EndHour}

	exitCode := 0
	if window.Contains(now.Hour()) {
		if err := a.captureAndEstimate(ctx, now, runLogger); err != nil {
			runLogger.Error().Err(err).Msg("Error while capturing snapshot")
			exitCode = 1
		}
	} else {
		runLogger.Info().
			Int("hour", now.Hour()).
			Int("start_hour", window.Start).
			Int("end_hour", window.End).
			Msg("Current hour outside capture window, not capturing")
	}

	a.housekeep(now, window, runLogger)
	return exitCode
}

func (a *app) captureAndEstimate(ctx context.Context, now time.Time, logger arbor.ILogger) error {
	if err := a.store.EnsureSlotDir(now); err != nil {
		return err
	}

	dest := a.store.SlotPath(now)
	if err := a.capturer.Capture(ctx, a.config.Capture.URL, dest); err != nil {
		return err
	}
	logger.Info().Str("path", dest).Msg("Saved snapshot")

	logger.Info().Msg("Estimating visibility")
	est := a.oracle.Estimate(ctx, dest)

	timestamp := now.Format(storage.TimestampLayout)
	if err := a.vislog.Append(timestamp, est); err != nil {
		// Log failures here are not capture failures; the exit code stays 0.
		logger.Error().Err(err).Str("timestamp", timestamp).Msg("Failed to append visibility row")
		return nil
	}

	logger.Info().
		Float64("visibility_ft", est.VisibilityFt).
		Str("conditions", est.Conditions).
		Msg("Recorded visibility estimate")
	return nil
}

func (a *app) housekeep(now time.Time, window storage.Window, logger arbor.ILogger) {
	if removed, err := a.store.CleanOutsideWindow(window); err != nil {
		logger.Warn().Err(err).Msg("Housekeeping scan failed")
	} else if removed > 0 {
		logger.Info().Int("removed", removed).Msg("Removed out-of-window snapshots")
	}

	if _, err := a.builder.BuildLast7(now); err != nil {
		logger.Error().Err(err).Msg("Failed to rebuild last7days manifest")
	}
	if _, err := a.builder.BuildMonths(); err != nil {
		logger.Error().Err(err).Msg("Failed to rebuild months manifest")
	}
	logger.Info().Msg("Updated last7days and months manifests")
}

func visibilityLogPath(config *common.Config) string {
	return filepath.Join(config.Docs.Dir, "visibility.csv")
}
