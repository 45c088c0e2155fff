package capture

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/tidewatch/pierviz/internal/common"
)

// tierResult is the outcome of one fallback tier. Soft failures advance the
// chain to the next tier; hard failures abort the whole chain. Context
// cancellation is a hard failure: later tiers cannot succeed either.
type tierResult int

const (
	tierCaptured tierResult = iota
	tierSoftFail
	tierHardFail
)

// Service captures one snapshot of the live feed by walking an ordered
// fallback chain: top-level video element, video inside each iframe, then a
// full-page screenshot. DOM restructuring on the target page (the video
// moving into an iframe after an update) is tolerated without redeployment.
type Service struct {
	browser         *common.BrowserConfig
	target          *common.CaptureConfig
	pageLoadTimeout time.Duration
	settleTime      time.Duration
	elementWait     time.Duration
	logger          arbor.ILogger
}

// NewService creates a capture service, parsing the configured browser
// timeout strings.
func NewService(browser *common.BrowserConfig, target *common.CaptureConfig, logger arbor.ILogger) (*Service, error) {
	pageLoadTimeout, err := time.ParseDuration(browser.PageLoadTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid page load timeout %q: %w", browser.PageLoadTimeout, err)
	}
	settleTime, err := time.ParseDuration(browser.SettleTime)
	if err != nil {
		return nil, fmt.Errorf("invalid settle time %q: %w", browser.SettleTime, err)
	}
	elementWait, err := time.ParseDuration(browser.ElementWait)
	if err != nil {
		return nil, fmt.Errorf("invalid element wait %q: %w", browser.ElementWait, err)
	}

	return &Service{
		browser:         browser,
		target:          target,
		pageLoadTimeout: pageLoadTimeout,
		settleTime:      settleTime,
		elementWait:     elementWait,
		logger:          logger,
	}, nil
}

// Capture loads pageURL and writes exactly one normalized PNG at destination.
// On failure no partial file is left behind.
func (s *Service) Capture(ctx context.Context, pageURL, destination string) error {
	browserCtx, cancel := newBrowserContext(ctx, s.browser)
	defer cancel()

	if err := s.loadPage(browserCtx, pageURL); err != nil {
		return err
	}

	buf, err := s.captureBestEvidence(browserCtx)
	if err != nil {
		return err
	}

	if err := os.WriteFile(destination, buf, 0644); err != nil {
		return fmt.Errorf("failed to write snapshot %s: %w", destination, err)
	}

	if err := normalizeSize(destination, s.target.TargetWidth, s.target.TargetHeight); err != nil {
		os.Remove(destination)
		return fmt.Errorf("failed to normalize snapshot: %w", err)
	}

	// Post-capture integrity check: a missing or empty file is a failure.
	info, err := os.Stat(destination)
	if err != nil || info.Size() == 0 {
		os.Remove(destination)
		return fmt.Errorf("snapshot file missing or empty after capture: %s", destination)
	}

	return nil
}

// loadPage navigates with a bounded timeout, then waits a fixed settle
// interval to allow dynamic media players to hydrate.
func (s *Service) loadPage(ctx context.Context, pageURL string) error {
	navCtx, cancel := context.WithTimeout(ctx, s.pageLoadTimeout)
	defer cancel()

	if err := chromedp.Run(navCtx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("failed to load page %s: %w", pageURL, err)
	}

	if err := chromedp.Run(ctx, chromedp.Sleep(s.settleTime)); err != nil {
		return fmt.Errorf("failed waiting for page to settle: %w", err)
	}
	return nil
}

// tier is one step of the fallback chain.
type tier struct {
	name string
	run  func(ctx context.Context) ([]byte, tierResult)
}

// runFallbackChain walks the tiers in order, stopping at the first capture.
// Soft failures advance to the next tier; a hard failure aborts the chain;
// exhausting every tier is a total capture failure.
func runFallbackChain(ctx context.Context, tiers []tier, logger arbor.ILogger) ([]byte, string, error) {
	for _, t := range tiers {
		buf, result := t.run(ctx)
		switch result {
		case tierCaptured:
			logger.Debug().Str("tier", t.name).Msg("Capture tier succeeded")
			return buf, t.name, nil
		case tierHardFail:
			return nil, t.name, fmt.Errorf("capture aborted in tier %s", t.name)
		}
	}
	return nil, "", fmt.Errorf("all capture tiers exhausted")
}

// captureBestEvidence walks the fallback chain, stopping at first success.
func (s *Service) captureBestEvidence(ctx context.Context) ([]byte, error) {
	tiers := []tier{
		{name: "video", run: func(ctx context.Context) ([]byte, tierResult) {
			return s.tryVideoScreenshot(ctx, nil)
		}},
		{name: "iframe-video", run: s.tryFrameScreenshots},
		{name: "full-page", run: func(ctx context.Context) ([]byte, tierResult) {
			buf, err := s.fullPageScreenshot(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil, tierHardFail
				}
				s.logger.Debug().Err(err).Msg("Full-page screenshot failed")
				return nil, tierSoftFail
			}
			return buf, tierCaptured
		}},
	}

	buf, _, err := runFallbackChain(ctx, tiers, s.logger)
	return buf, err
}

// tryVideoScreenshot attempts to screenshot a <video> element, optionally
// scoped to an iframe node. Element-not-found and script errors are soft
// failures that advance the chain.
func (s *Service) tryVideoScreenshot(ctx context.Context, frame *cdp.Node) ([]byte, tierResult) {
	waitCtx, cancel := context.WithTimeout(ctx, s.elementWait)
	defer cancel()

	queryOpts := []chromedp.QueryOption{chromedp.ByQuery}
	if frame != nil {
		queryOpts = append(queryOpts, chromedp.FromNode(frame))
	}

	var buf []byte
	err := chromedp.Run(waitCtx,
		chromedp.WaitVisible("video", queryOpts...),
		chromedp.ScrollIntoView("video", queryOpts...),
		chromedp.Sleep(300*time.Millisecond),
		chromedp.Screenshot("video", &buf, queryOpts...),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, tierHardFail
		}
		s.logger.Debug().Err(err).Bool("iframe", frame != nil).Msg("Video element screenshot attempt failed")
		return nil, tierSoftFail
	}
	if len(buf) == 0 {
		return nil, tierSoftFail
	}
	return buf, tierCaptured
}

// tryFrameScreenshots enumerates iframes in document order and retries the
// video screenshot inside each, stopping at first success. The per-frame
// timeout context is cancelled regardless of outcome, which restores the
// top-level context for subsequent tiers.
func (s *Service) tryFrameScreenshots(ctx context.Context) ([]byte, tierResult) {
	var frames []*cdp.Node
	listCtx, cancel := context.WithTimeout(ctx, s.elementWait)
	defer cancel()

	if err := chromedp.Run(listCtx,
		chromedp.Nodes("iframe", &frames, chromedp.ByQueryAll, chromedp.AtLeast(0)),
	); err != nil {
		if ctx.Err() != nil {
			return nil, tierHardFail
		}
		s.logger.Debug().Err(err).Msg("Failed to enumerate iframes")
		return nil, tierSoftFail
	}

	for i, frame := range frames {
		buf, result := s.tryVideoScreenshot(ctx, frame)
		if result == tierCaptured {
			s.logger.Debug().Int("iframe_index", i).Msg("Captured video element inside iframe")
			return buf, tierCaptured
		}
		if result == tierHardFail {
			return nil, tierHardFail
		}
	}
	return nil, tierSoftFail
}

// fullPageScreenshot resizes the capture surface to the page's full
// scrollable height (with a minimum floor) and captures the composited page.
func (s *Service) fullPageScreenshot(ctx context.Context) ([]byte, error) {
	height := s.browser.MinPageHeight

	var scrollHeight int
	if err := chromedp.Run(ctx, chromedp.Evaluate(
		`Math.max(document.body.scrollHeight, document.documentElement.scrollHeight)`,
		&scrollHeight,
	)); err != nil {
		// Best effort: fall back to the floor height.
		s.logger.Debug().Err(err).Msg("Failed to measure page height")
	} else if scrollHeight > height {
		height = scrollHeight
	}

	if err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return emulation.SetDeviceMetricsOverride(
			int64(s.browser.WindowWidth), int64(height), 1, false,
		).Do(ctx)
	})); err != nil {
		s.logger.Debug().Err(err).Int("height", height).Msg("Failed to resize capture surface")
	}

	var buf []byte
	if err := chromedp.Run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("full-page screenshot failed: %w", err)
	}
	if len(buf) == 0 {
		return nil, fmt.Errorf("full-page screenshot produced no data")
	}
	return buf, nil
}
