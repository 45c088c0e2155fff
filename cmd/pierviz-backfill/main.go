package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ternarybob/arbor"

	"github.com/tidewatch/pierviz/internal/common"
	"github.com/tidewatch/pierviz/internal/services/backfill"
	"github.com/tidewatch/pierviz/internal/services/visibility"
	"github.com/tidewatch/pierviz/internal/storage"
)

var (
	configFile  = flag.String("config", "", "Configuration file path (TOML)")
	workers     = flag.Int("workers", 0, "Number of parallel workers (overrides config)")
	showVersion = flag.Bool("version", false, "Print version information")
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [flags] <year> <month> [workers]\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "Example: %s 2026 01 10\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Printf("Pierviz version %s\n", common.GetFullVersion())
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) < 2 {
		usage()
		os.Exit(1)
	}

	year := args[0]
	month := args[1]
	if len(month) == 1 {
		month = "0" + month
	}

	config, err := common.LoadFromFile(*configFile)
	if err != nil {
		tempLogger := arbor.NewLogger()
		tempLogger.Fatal().Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}

	if len(args) > 2 {
		if w, err := strconv.Atoi(args[2]); err == nil && w > 0 {
			config.Backfill.Workers = w
		}
	}
	if *workers > 0 {
		config.Backfill.Workers = *workers
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

	store := storage.NewSnapshotStore(config.Capture.SnapshotsDir, logger)
	vislog := storage.NewVisibilityLog(filepath.Join(config.Docs.Dir, "visibility.csv"), logger)

	oracle, err := visibility.NewClient(&config.Oracle, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize visibility oracle")
		os.Exit(1)
	}

	scheduler := backfill.NewScheduler(store, vislog, oracle, config.Oracle.RequestsPerMinute, logger)

	result, err := scheduler.Run(context.Background(), year, month, config.Backfill.Workers)
	if err != nil {
		logger.Fatal().Err(err).Str("year", year).Str("month", month).Msg("Backfill failed")
		os.Exit(1)
	}

	fmt.Printf("Done! Found %d images, skipped %d already estimated, processed %d (%d failed).\n",
		result.Found, result.Skipped, result.Processed, result.Failed)
}
