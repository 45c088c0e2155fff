package capture

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidewatch/pierviz/internal/common"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	config := common.NewDefaultConfig()
	svc, err := NewService(&config.Browser, &config.Capture, common.GetLogger())
	require.NoError(t, err)
	return svc
}

func TestNewServiceParsesTimeoutStrings(t *testing.T) {
	config := common.NewDefaultConfig()
	config.Browser.PageLoadTimeout = "20s"
	config.Browser.SettleTime = "1500ms"
	config.Browser.ElementWait = "3s"

	svc, err := NewService(&config.Browser, &config.Capture, common.GetLogger())
	require.NoError(t, err)
	assert.Equal(t, 20*time.Second, svc.pageLoadTimeout)
	assert.Equal(t, 1500*time.Millisecond, svc.settleTime)
	assert.Equal(t, 3*time.Second, svc.elementWait)
}

func TestNewServiceRejectsBadTimeout(t *testing.T) {
	config := common.NewDefaultConfig()
	config.Browser.PageLoadTimeout = "soon"

	_, err := NewService(&config.Browser, &config.Capture, common.GetLogger())
	assert.Error(t, err)
}

func fixedTier(name string, buf []byte, result tierResult, order *[]string) tier {
	return tier{
		name: name,
		run: func(context.Context) ([]byte, tierResult) {
			*order = append(*order, name)
			return buf, result
		},
	}
}

func TestRunFallbackChainStopsAtFirstSuccess(t *testing.T) {
	var order []string
	tiers := []tier{
		fixedTier("video", []byte("v"), tierCaptured, &order),
		fixedTier("iframe-video", nil, tierSoftFail, &order),
		fixedTier("full-page", nil, tierSoftFail, &order),
	}

	buf, name, err := runFallbackChain(context.Background(), tiers, common.GetLogger())
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), buf)
	assert.Equal(t, "video", name)
	assert.Equal(t, []string{"video"}, order)
}

func TestRunFallbackChainAdvancesOnSoftFailure(t *testing.T) {
	var order []string
	tiers := []tier{
		fixedTier("video", nil, tierSoftFail, &order),
		fixedTier("iframe-video", nil, tierSoftFail, &order),
		fixedTier("full-page", []byte("fp"), tierCaptured, &order),
	}

	buf, name, err := runFallbackChain(context.Background(), tiers, common.GetLogger())
	require.NoError(t, err)
	assert.Equal(t, []byte("fp"), buf)
	assert.Equal(t, "full-page", name)
	assert.Equal(t, []string{"video", "iframe-video", "full-page"}, order)
}

func TestRunFallbackChainAbortsOnHardFailure(t *testing.T) {
	var order []string
	tiers := []tier{
		fixedTier("video", nil, tierHardFail, &order),
		fixedTier("full-page", []byte("fp"), tierCaptured, &order),
	}

	_, _, err := runFallbackChain(context.Background(), tiers, common.GetLogger())
	assert.Error(t, err)
	assert.Equal(t, []string{"video"}, order)
}

func TestVideoScreenshotHardFailsWhenCancelled(t *testing.T) {
	svc := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, result := svc.tryVideoScreenshot(ctx, nil)
	assert.Equal(t, tierHardFail, result)
}

func TestFrameScreenshotsHardFailWhenCancelled(t *testing.T) {
	svc := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, result := svc.tryFrameScreenshots(ctx)
	assert.Equal(t, tierHardFail, result)
}

func TestRunFallbackChainExhaustion(t *testing.T) {
	var order []string
	tiers := []tier{
		fixedTier("video", nil, tierSoftFail, &order),
		fixedTier("iframe-video", nil, tierSoftFail, &order),
		fixedTier("full-page", nil, tierSoftFail, &order),
	}

	_, _, err := runFallbackChain(context.Background(), tiers, common.GetLogger())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "exhausted")
	assert.Len(t, order, 3)
}
