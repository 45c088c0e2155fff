package capture

import (
	"context"

	"github.com/chromedp/chromedp"

	"github.com/tidewatch/pierviz/internal/common"
)

// buildAllocatorOptions assembles Chrome launch flags from browser config.
func buildAllocatorOptions(cfg *common.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("no-sandbox", cfg.NoSandbox),
		chromedp.Flag("disable-gpu", cfg.DisableGPU),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight),
	)

	if cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}

	return opts
}

// newBrowserContext creates an allocator and browser context pair. The
// returned cancel function tears down both.
func newBrowserContext(ctx context.Context, cfg *common.BrowserConfig) (context.Context, context.CancelFunc) {
	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(ctx, buildAllocatorOptions(cfg)...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)

	cancel := func() {
		browserCancel()
		allocatorCancel()
	}
	return browserCtx, cancel
}
