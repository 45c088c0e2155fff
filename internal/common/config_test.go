package common

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	config := NewDefaultConfig()

	assert.Equal(t, "https://coollab.ucsd.edu/pierviz/", config.Capture.URL)
	assert.Equal(t, 6, config.Capture.StartHour)
	assert.Equal(t, 19, config.Capture.EndHour)
	assert.Equal(t, 1920, config.Capture.TargetWidth)
	assert.Equal(t, 940, config.Capture.TargetHeight)
	assert.True(t, config.Browser.Headless)
	assert.Equal(t, "5s", config.Browser.SettleTime)
	assert.Equal(t, "anthropic", config.Oracle.Provider)
	assert.Equal(t, 5, config.Oracle.MaxRetries)
	assert.Equal(t, 10, config.Backfill.Workers)

	require.NoError(t, Validate(config))
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pierviz.toml")
	content := `
environment = "development"

[capture]
url = "https://example.com/feed/"
start_hour = 7
end_hour = 18

[browser]
page_load_timeout = "20s"
settle_time = "2s"

[oracle]
provider = "gemini"
model = "gemini-2.0-flash"

[backfill]
workers = 4
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	config, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "development", config.Environment)
	assert.Equal(t, "https://example.com/feed/", config.Capture.URL)
	assert.Equal(t, 7, config.Capture.StartHour)
	assert.Equal(t, 18, config.Capture.EndHour)
	assert.Equal(t, "gemini", config.Oracle.Provider)
	assert.Equal(t, 4, config.Backfill.Workers)
	// Browser timeouts are duration strings.
	assert.Equal(t, "20s", config.Browser.PageLoadTimeout)
	assert.Equal(t, "2s", config.Browser.SettleTime)
	// Unspecified sections keep defaults.
	assert.Equal(t, 1920, config.Capture.TargetWidth)
	assert.Equal(t, "10s", config.Browser.ElementWait)
}

func TestLoadFromFileMissing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("URL", "https://env.example.com/")
	t.Setenv("START_HOUR", "8")
	t.Setenv("END_HOUR", "17")
	t.Setenv("HEADLESS", "false")
	t.Setenv("PIERVIZ_BACKFILL_WORKERS", "3")
	t.Setenv("PIERVIZ_LOG_LEVEL", "debug")

	config, err := LoadFromFile("")
	require.NoError(t, err)

	assert.Equal(t, "https://env.example.com/", config.Capture.URL)
	assert.Equal(t, 8, config.Capture.StartHour)
	assert.Equal(t, 17, config.Capture.EndHour)
	assert.False(t, config.Browser.Headless)
	assert.Equal(t, 3, config.Backfill.Workers)
	assert.Equal(t, "debug", config.Logging.Level)
}

func TestPrefixedEnvWinsOverLegacyName(t *testing.T) {
	t.Setenv("URL", "https://legacy.example.com/")
	t.Setenv("PIERVIZ_URL", "https://prefixed.example.com/")

	config, err := LoadFromFile("")
	require.NoError(t, err)
	assert.Equal(t, "https://prefixed.example.com/", config.Capture.URL)
}

func TestApplyFlagOverrides(t *testing.T) {
	config := NewDefaultConfig()

	ApplyFlagOverrides(config, "https://flag.example.com/", 9, 16, "false")
	assert.Equal(t, "https://flag.example.com/", config.Capture.URL)
	assert.Equal(t, 9, config.Capture.StartHour)
	assert.Equal(t, 16, config.Capture.EndHour)
	assert.False(t, config.Browser.Headless)

	// Unset flags leave the config untouched.
	ApplyFlagOverrides(config, "", -1, -1, "")
	assert.Equal(t, "https://flag.example.com/", config.Capture.URL)
	assert.Equal(t, 9, config.Capture.StartHour)
}

func TestFlagOverridesAreRevalidated(t *testing.T) {
	config := NewDefaultConfig()
	require.NoError(t, Validate(config))

	ApplyFlagOverrides(config, "", 30, -1, "")
	assert.Error(t, Validate(config))

	config = NewDefaultConfig()
	ApplyFlagOverrides(config, "not a url", -1, -1, "")
	assert.Error(t, Validate(config))
}

func TestValidateRejectsBadWindow(t *testing.T) {
	config := NewDefaultConfig()
	config.Capture.StartHour = 20
	config.Capture.EndHour = 10

	assert.Error(t, Validate(config))
}

func TestValidateRejectsBadProvider(t *testing.T) {
	config := NewDefaultConfig()
	config.Oracle.Provider = "openai"

	assert.Error(t, Validate(config))
}

func TestParseBool(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"true", true},
		{"1", true},
		{"yes", true},
		{"false", false},
		{"FALSE", false},
		{"0", false},
		{"no", false},
		{"off", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseBool(tt.in), tt.in)
	}
}
