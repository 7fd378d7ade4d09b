// Package discovery runs the candidate discovery crawl: an external scraper
// subprocess that walks a search target and emits structured lines on
// stdout. Each line class carries a SCRAPER_* prefix; candidate payloads are
// streamed to the caller one at a time as they appear.
package discovery

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/scoutline/orchestrator/internal/metrics"
)

const (
	userPayloadPrefix   = "SCRAPER_USER_PAYLOAD="
	browserUseURLPrefix = "SCRAPER_BROWSER_USE_URL="
	captureStatsPrefix  = "SCRAPER_CAPTURE_STATS="
	captureDirPrefix    = "SCRAPER_PROFILE_CAPTURE_DIR="
)

// Config holds discovery subprocess configuration. Command and Args name the
// scraper entrypoint; the target URL, credential profile, and page count are
// appended as flags per invocation.
type Config struct {
	Command             string   `mapstructure:"command"`
	Args                []string `mapstructure:"args"`
	WorkDir             string   `mapstructure:"work_dir"`
	CredentialProfileID string   `mapstructure:"credential_profile_id"`
}

// CaptureStats summarizes the crawl from the scraper's point of view.
type CaptureStats struct {
	APIRequests          int `json:"apiRequests"`
	SearchMatches        int `json:"searchMatches"`
	SavedSearchResponses int `json:"savedSearchResponses"`
	EmittedCandidates    int `json:"emittedCandidates"`
}

// Result is the crawl outcome after the subprocess exits cleanly.
type Result struct {
	BrowserUseURL       string
	ProfileCaptureDir   string
	PayloadCount        int
	InvalidPayloadCount int
	CaptureStats        *CaptureStats
}

// Callbacks receives crawl events as they stream in. OnUserPayload returning
// an error marks that payload invalid; it does not abort the crawl.
type Callbacks struct {
	OnUserPayload        func(payload map[string]interface{}) error
	OnInvalidUserPayload func(payload interface{}, reason string)
	OnBrowserUseURL      func(url string)
	OnProfileCaptureDir  func(dir string)
}

// Crawler spawns and supervises the scraper subprocess.
type Crawler struct {
	config Config
	logger *zap.Logger
}

// NewCrawler creates a crawler.
func NewCrawler(config Config, logger *zap.Logger) (*Crawler, error) {
	if config.Command == "" {
		return nil, fmt.Errorf("discovery: command is required")
	}
	return &Crawler{config: config, logger: logger}, nil
}

// Run executes one crawl and blocks until the subprocess exits and all
// emitted lines have been handled. A malformed structured line (unparseable
// JSON after a known prefix) kills the subprocess and fails the crawl;
// payloads rejected by the caller are only counted.
func (c *Crawler) Run(ctx context.Context, targetURL string, totalPages int, cb Callbacks) (*Result, error) {
	args := append([]string{}, c.config.Args...)
	args = append(args,
		"--target-url", targetURL,
		"--profile-id", c.config.CredentialProfileID,
		"--total-pages", strconv.Itoa(totalPages),
	)

	cmd := exec.CommandContext(ctx, c.config.Command, args...)
	cmd.Dir = c.config.WorkDir
	cmd.Env = append(cmd.Environ(), "PYTHONUNBUFFERED=1")

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("attach scraper stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("attach scraper stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start scraper process: %w", err)
	}
	c.logger.Info("Discovery crawl started",
		zap.String("target_url", targetURL),
		zap.Int("total_pages", totalPages),
		zap.Int("pid", cmd.Process.Pid),
	)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			c.logger.Debug("scraper stderr", zap.String("line", scanner.Text()))
		}
	}()

	result := &Result{}
	var lineErr error

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		if err := c.processLine(line, result, cb); err != nil {
			lineErr = err
			// Stop the scraper; remaining output is drained below so Wait
			// does not block on a full pipe.
			_ = cmd.Process.Kill()
			break
		}
	}
	_, _ = io.Copy(io.Discard, stdout)

	wg.Wait()
	waitErr := cmd.Wait()

	if lineErr != nil {
		return nil, lineErr
	}
	if waitErr != nil {
		return nil, fmt.Errorf("scraper process: %w", waitErr)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read scraper stdout: %w", err)
	}

	c.logger.Info("Discovery crawl finished",
		zap.Int("payloads", result.PayloadCount),
		zap.Int("invalid_payloads", result.InvalidPayloadCount),
	)
	return result, nil
}

func (c *Crawler) processLine(line string, result *Result, cb Callbacks) error {
	switch {
	case strings.HasPrefix(line, captureDirPrefix):
		dir := strings.TrimPrefix(line, captureDirPrefix)
		result.ProfileCaptureDir = dir
		if dir != "" && cb.OnProfileCaptureDir != nil {
			cb.OnProfileCaptureDir(dir)
		}

	case strings.HasPrefix(line, captureStatsPrefix):
		var stats CaptureStats
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, captureStatsPrefix)), &stats); err != nil {
			return fmt.Errorf("parse capture stats: %w", err)
		}
		result.CaptureStats = &stats

	case strings.HasPrefix(line, browserUseURLPrefix):
		url := strings.TrimPrefix(line, browserUseURLPrefix)
		result.BrowserUseURL = url
		if url != "" && cb.OnBrowserUseURL != nil {
			cb.OnBrowserUseURL(url)
		}

	case strings.HasPrefix(line, userPayloadPrefix):
		var payload map[string]interface{}
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, userPayloadPrefix)), &payload); err != nil {
			return fmt.Errorf("parse user payload: %w", err)
		}
		if cb.OnUserPayload == nil {
			result.PayloadCount++
			return nil
		}
		if err := cb.OnUserPayload(payload); err != nil {
			result.InvalidPayloadCount++
			metrics.InvalidDiscoveryPayloads.Inc()
			c.logger.Warn("Invalid discovery payload", zap.Error(err))
			if cb.OnInvalidUserPayload != nil {
				cb.OnInvalidUserPayload(payload, err.Error())
			}
			return nil
		}
		result.PayloadCount++
		metrics.CandidatesDiscovered.Inc()
	}
	return nil
}
