package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration, resolved once at startup
// and passed down explicitly. Priority: CLI flags > environment > .env file
// defaults > config file > built-in defaults.
type Config struct {
	Environment string         `toml:"environment"`
	Capture     CaptureConfig  `toml:"capture"`
	Browser     BrowserConfig  `toml:"browser"`
	Oracle      OracleConfig   `toml:"oracle"`
	Backfill    BackfillConfig `toml:"backfill"`
	Docs        DocsConfig     `toml:"docs"`
	Logging     LoggingConfig  `toml:"logging"`
}

// CaptureConfig controls the snapshot capture path and the hourly window.
type CaptureConfig struct {
	URL          string `toml:"url" validate:"required,url"`
	SnapshotsDir string `toml:"snapshots_dir" validate:"required"`
	StartHour    int    `toml:"start_hour" validate:"min=0,max=23"`
	EndHour      int    `toml:"end_hour" validate:"min=0,max=23,gtefield=StartHour"`
	TargetWidth  int    `toml:"target_width" validate:"min=1"`
	TargetHeight int    `toml:"target_height" validate:"min=1"`
	Schedule     string `toml:"schedule"` // optional cron expression for daemon mode
}

// BrowserConfig contains chromedp browser settings for the capture strategy.
// Timeouts are duration strings ("10s") parsed with time.ParseDuration when
// the capture service is constructed.
type BrowserConfig struct {
	Headless        bool   `toml:"headless"`
	NoSandbox       bool   `toml:"no_sandbox"`
	DisableGPU      bool   `toml:"disable_gpu"`
	WindowWidth     int    `toml:"window_width" validate:"min=1"`
	WindowHeight    int    `toml:"window_height" validate:"min=1"`
	MinPageHeight   int    `toml:"min_page_height"`
	PageLoadTimeout string `toml:"page_load_timeout"`
	SettleTime      string `toml:"settle_time"`
	ElementWait     string `toml:"element_wait"`
}

// OracleConfig contains vision oracle provider settings.
type OracleConfig struct {
	Provider          string  `toml:"provider" validate:"oneof=anthropic gemini"`
	Model             string  `toml:"model"`
	APIKey            string  `toml:"api_key"`
	MaxTokens         int     `toml:"max_tokens" validate:"min=1"`
	Timeout           string  `toml:"timeout"`
	MaxRetries        int     `toml:"max_retries" validate:"min=1"`
	ReferenceDir      string  `toml:"reference_dir"`
	RequestsPerMinute float64 `toml:"requests_per_minute" validate:"gt=0"`
}

// BackfillConfig contains backfill scheduler settings.
type BackfillConfig struct {
	Workers int `toml:"workers" validate:"min=1"`
}

// DocsConfig contains derived-manifest output locations.
type DocsConfig struct {
	Dir string `toml:"dir" validate:"required"`
}

// LoggingConfig controls arbor logger output.
type LoggingConfig struct {
	Level  string   `toml:"level"`
	Output []string `toml:"output"`
}

// NewDefaultConfig returns the built-in default configuration.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "production",
		Capture: CaptureConfig{
			URL:          "https://coollab.ucsd.edu/pierviz/",
			SnapshotsDir: "snapshots",
			StartHour:    6,
			EndHour:      19,
			TargetWidth:  1920,
			TargetHeight: 940,
		},
		Browser: BrowserConfig{
			Headless:        true,
			NoSandbox:       true,
			DisableGPU:      true,
			WindowWidth:     1920,
			WindowHeight:    1080,
			MinPageHeight:   1080,
			PageLoadTimeout: "10s",
			SettleTime:      "5s",
			ElementWait:     "10s",
		},
		Oracle: OracleConfig{
			Provider:          "anthropic",
			MaxTokens:         5000,
			Timeout:           "120s",
			MaxRetries:        5,
			ReferenceDir:      "reference",
			RequestsPerMinute: 30,
		},
		Backfill: BackfillConfig{
			Workers: 10,
		},
		Docs: DocsConfig{
			Dir: "docs",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout"},
		},
	}
}

// LoadFromFile loads configuration with priority: default -> file -> env.
// A local .env file, when present, seeds environment defaults before env
// overrides are applied (existing environment variables always win).
func LoadFromFile(path string) (*Config, error) {
	config := NewDefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	// Seed environment defaults from .env; ignore absence.
	_ = godotenv.Load()

	applyEnvOverrides(config)

	if err := Validate(config); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config.
// Both PIERVIZ_-prefixed names and the short legacy names (URL, START_HOUR,
// END_HOUR, HEADLESS) are honored.
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("PIERVIZ_ENV"); env != "" {
		config.Environment = env
	}

	if url := firstEnv("PIERVIZ_URL", "URL"); url != "" {
		config.Capture.URL = url
	}
	if startHour := firstEnv("PIERVIZ_START_HOUR", "START_HOUR"); startHour != "" {
		if h, err := strconv.Atoi(startHour); err == nil {
			config.Capture.StartHour = h
		}
	}
	if endHour := firstEnv("PIERVIZ_END_HOUR", "END_HOUR"); endHour != "" {
		if h, err := strconv.Atoi(endHour); err == nil {
			config.Capture.EndHour = h
		}
	}
	if headless := firstEnv("PIERVIZ_HEADLESS", "HEADLESS"); headless != "" {
		config.Browser.Headless = parseBool(headless)
	}
	if snapshotsDir := os.Getenv("PIERVIZ_SNAPSHOTS_DIR"); snapshotsDir != "" {
		config.Capture.SnapshotsDir = snapshotsDir
	}
	if docsDir := os.Getenv("PIERVIZ_DOCS_DIR"); docsDir != "" {
		config.Docs.Dir = docsDir
	}

	if provider := os.Getenv("PIERVIZ_ORACLE_PROVIDER"); provider != "" {
		config.Oracle.Provider = strings.ToLower(provider)
	}
	if model := os.Getenv("PIERVIZ_ORACLE_MODEL"); model != "" {
		config.Oracle.Model = model
	}
	// Provider API keys resolve from the conventional provider variables
	// first, then the generic override. Absence is not fatal: every oracle
	// call degrades to the unusable sentinel.
	if config.Oracle.APIKey == "" {
		switch config.Oracle.Provider {
		case "gemini":
			config.Oracle.APIKey = firstEnv("GEMINI_API_KEY", "GOOGLE_API_KEY")
		default:
			config.Oracle.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	}
	if apiKey := os.Getenv("PIERVIZ_ORACLE_API_KEY"); apiKey != "" {
		config.Oracle.APIKey = apiKey
	}

	if workers := os.Getenv("PIERVIZ_BACKFILL_WORKERS"); workers != "" {
		if w, err := strconv.Atoi(workers); err == nil && w > 0 {
			config.Backfill.Workers = w
		}
	}

	if level := os.Getenv("PIERVIZ_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("PIERVIZ_LOG_OUTPUT"); output != "" {
		parts := strings.Split(output, ",")
		outputs := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}
}

// ApplyFlagOverrides applies command-line flag overrides (highest priority).
// Zero values mean "flag not set" and leave the config untouched.
func ApplyFlagOverrides(config *Config, url string, startHour, endHour int, headless string) {
	if url != "" {
		config.Capture.URL = url
	}
	if startHour >= 0 {
		config.Capture.StartHour = startHour
	}
	if endHour >= 0 {
		config.Capture.EndHour = endHour
	}
	if headless != "" {
		config.Browser.Headless = parseBool(headless)
	}
}

// Validate checks the resolved configuration against struct constraints.
func Validate(config *Config) error {
	validate := validator.New()
	if err := validate.Struct(config); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func firstEnv(names ...string) string {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "0", "false", "no", "off":
		return false
	}
	return true
}
