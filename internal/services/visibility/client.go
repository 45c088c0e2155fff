package visibility

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/tidewatch/pierviz/internal/common"
	"github.com/tidewatch/pierviz/internal/interfaces"
)

// provider is the raw vision-model call behind the client. The client owns
// credentials handling, retries, and response parsing; providers only build
// the request and return the model's text.
type provider interface {
	name() string
	complete(ctx context.Context, system string, parts []promptPart) (string, error)
}

// Client is the rate-limit-tolerant visibility oracle. It treats the model as
// a fallible oracle: every failure mode degrades to the unusable sentinel
// with a descriptive conditions string, and nothing propagates past the
// client boundary.
type Client struct {
	config   *common.OracleConfig
	logger   arbor.ILogger
	provider provider
	retry    *RetryPolicy
	timeout  time.Duration
}

// NewClient creates a visibility oracle client for the configured provider.
// A missing API key is not an error: the client is created unconfigured and
// every Estimate call short-circuits to the sentinel without a network call.
func NewClient(cfg *common.OracleConfig, logger arbor.ILogger) (*Client, error) {
	timeout, err := time.ParseDuration(cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid oracle timeout %q: %w", cfg.Timeout, err)
	}

	retry := NewDefaultRetryPolicy()
	if cfg.MaxRetries > 0 {
		retry.MaxAttempts = cfg.MaxRetries
	}

	client := &Client{
		config:  cfg,
		logger:  logger,
		retry:   retry,
		timeout: timeout,
	}

	if cfg.APIKey == "" {
		logger.Warn().
			Str("provider", cfg.Provider).
			Msg("No oracle API key configured, visibility estimates will be recorded as unusable")
		return client, nil
	}

	switch cfg.Provider {
	case "gemini":
		p, err := newGeminiProvider(context.Background(), cfg.APIKey, cfg.Model, cfg.MaxTokens)
		if err != nil {
			return nil, err
		}
		client.provider = p
	case "anthropic", "":
		client.provider = newAnthropicProvider(cfg.APIKey, cfg.Model, cfg.MaxTokens)
	default:
		return nil, fmt.Errorf("unsupported oracle provider %q: must be 'anthropic' or 'gemini'", cfg.Provider)
	}

	logger.Debug().
		Str("provider", client.provider.name()).
		Str("model", cfg.Model).
		Int("max_retries", retry.MaxAttempts).
		Str("timeout", timeout.String()).
		Msg("Visibility oracle client initialized")

	return client, nil
}

// Configured reports whether the client has a usable provider.
func (c *Client) Configured() bool {
	return c.provider != nil
}

// Estimate produces a visibility estimate for the snapshot at imagePath.
// Rate-limit errors are retried with exponential backoff; any other failure
// degrades immediately to the unusable sentinel.
func (c *Client) Estimate(ctx context.Context, imagePath string) interfaces.Estimate {
	if c.provider == nil {
		return interfaces.Unusable("api key not configured")
	}

	target, err := os.ReadFile(imagePath)
	if err != nil {
		return interfaces.Unusable(fmt.Sprintf("error: %v", err))
	}

	parts := buildPrompt(c.config.ReferenceDir, target, mediaTypeForPath(imagePath))

	for attempt := 0; attempt < c.retry.MaxAttempts; attempt++ {
		raw, err := c.complete(ctx, parts)
		if err == nil {
			est, parseErr := parseEstimate(raw)
			if parseErr != nil {
				c.logger.Warn().
					Err(parseErr).
					Str("image", imagePath).
					Msg("Visibility estimation returned malformed response")
				return interfaces.Unusable(fmt.Sprintf("error: %v", parseErr))
			}
			return est
		}

		if !IsRateLimitError(err) {
			c.logger.Warn().
				Err(err).
				Str("image", imagePath).
				Msg("Visibility estimation failed")
			return interfaces.Unusable(fmt.Sprintf("error: %v", err))
		}

		backoff := c.retry.Backoff(attempt)
		c.logger.Debug().
			Int("attempt", attempt+1).
			Str("backoff", backoff.String()).
			Str("image", imagePath).
			Msg("Rate limited, retrying after backoff")

		select {
		case <-ctx.Done():
			return interfaces.Unusable(fmt.Sprintf("error: %v", ctx.Err()))
		case <-time.After(backoff):
		}
	}

	c.logger.Warn().
		Int("max_attempts", c.retry.MaxAttempts).
		Str("image", imagePath).
		Msg("Exhausted rate limit retries")
	return interfaces.Unusable("error: rate limit retries exhausted")
}

func (c *Client) complete(ctx context.Context, parts []promptPart) (string, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.provider.complete(timeoutCtx, systemPrompt, parts)
}
