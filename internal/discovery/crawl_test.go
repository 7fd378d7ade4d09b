package discovery

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// scriptCrawler returns a crawler whose subprocess is a shell script, so
// tests can fake the scraper's stdout protocol.
func scriptCrawler(t *testing.T, script string) *Crawler {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scraper.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755))

	crawler, err := NewCrawler(Config{Command: path, CredentialProfileID: "prof-1"}, zap.NewNop())
	require.NoError(t, err)
	return crawler
}

func TestNewCrawlerRequiresCommand(t *testing.T) {
	_, err := NewCrawler(Config{}, zap.NewNop())
	assert.Error(t, err)
}

func TestRunStreamsPayloadsInOrder(t *testing.T) {
	crawler := scriptCrawler(t, `
echo 'SCRAPER_BROWSER_USE_URL=https://live.example/abc'
echo 'SCRAPER_USER_PAYLOAD={"id":"c1","full_name":"Ada Lovelace"}'
echo 'SCRAPER_USER_PAYLOAD={"id":"c2","first_name":"Grace","last_name":"Hopper"}'
echo 'SCRAPER_CAPTURE_STATS={"apiRequests":7,"searchMatches":2,"savedSearchResponses":2,"emittedCandidates":2}'
echo 'ignored noise line'
`)

	var ids []string
	var liveURL string
	result, err := crawler.Run(context.Background(), "https://example.com/search", 2, Callbacks{
		OnUserPayload: func(payload map[string]interface{}) error {
			ids = append(ids, payload["id"].(string))
			return nil
		},
		OnBrowserUseURL: func(url string) { liveURL = url },
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"c1", "c2"}, ids)
	assert.Equal(t, "https://live.example/abc", liveURL)
	assert.Equal(t, 2, result.PayloadCount)
	assert.Equal(t, 0, result.InvalidPayloadCount)
	require.NotNil(t, result.CaptureStats)
	assert.Equal(t, 7, result.CaptureStats.APIRequests)
	assert.Equal(t, 2, result.CaptureStats.EmittedCandidates)
}

func TestRunCountsRejectedPayloadsWithoutAborting(t *testing.T) {
	crawler := scriptCrawler(t, `
echo 'SCRAPER_USER_PAYLOAD={"full_name":"No Id"}'
echo 'SCRAPER_USER_PAYLOAD={"id":"c1"}'
`)

	var invalidReasons []string
	result, err := crawler.Run(context.Background(), "https://example.com", 1, Callbacks{
		OnUserPayload: func(payload map[string]interface{}) error {
			if payload["id"] == nil {
				return errors.New("id: required")
			}
			return nil
		},
		OnInvalidUserPayload: func(_ interface{}, reason string) {
			invalidReasons = append(invalidReasons, reason)
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.PayloadCount)
	assert.Equal(t, 1, result.InvalidPayloadCount)
	assert.Equal(t, []string{"id: required"}, invalidReasons)
}

func TestRunMalformedPayloadJSONKillsProcess(t *testing.T) {
	crawler := scriptCrawler(t, `
echo 'SCRAPER_USER_PAYLOAD={not json'
sleep 30
`)

	_, err := crawler.Run(context.Background(), "https://example.com", 1, Callbacks{
		OnUserPayload: func(map[string]interface{}) error { return nil },
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse user payload")
}

func TestRunNonZeroExitFails(t *testing.T) {
	crawler := scriptCrawler(t, `
echo 'SCRAPER_USER_PAYLOAD={"id":"c1"}'
exit 3
`)

	var count int
	_, err := crawler.Run(context.Background(), "https://example.com", 1, Callbacks{
		OnUserPayload: func(map[string]interface{}) error {
			count++
			return nil
		},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scraper process")
	// Payloads emitted before the crash were still delivered.
	assert.Equal(t, 1, count)
}

func TestRunContextCancellationStopsCrawl(t *testing.T) {
	crawler := scriptCrawler(t, `sleep 30`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := crawler.Run(ctx, "https://example.com", 1, Callbacks{})
	assert.Error(t, err)
}

func TestRunPassesFlagsToSubprocess(t *testing.T) {
	// The script echoes its own argv back through the capture-dir channel so
	// the test can see what the crawler passed.
	crawler := scriptCrawler(t, `echo "SCRAPER_PROFILE_CAPTURE_DIR=$*"`)

	var captureDir string
	_, err := crawler.Run(context.Background(), "https://example.com/search?q=go", 4, Callbacks{
		OnProfileCaptureDir: func(dir string) { captureDir = dir },
	})
	require.NoError(t, err)
	assert.Contains(t, captureDir, "--target-url https://example.com/search?q=go")
	assert.Contains(t, captureDir, "--profile-id prof-1")
	assert.Contains(t, captureDir, "--total-pages 4")
}
