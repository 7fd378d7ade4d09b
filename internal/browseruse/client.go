// Package browseruse is a client for the Browser Use cloud API: session
// creation plus synchronous task execution (create task, poll to
// completion). Every sub-agent scrape goes through this client.
package browseruse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/scoutline/orchestrator/internal/circuitbreaker"
	"github.com/scoutline/orchestrator/internal/metrics"
)

// Config holds Browser Use API configuration.
type Config struct {
	BaseURL           string        `mapstructure:"base_url"`
	APIKey            string        `mapstructure:"api_key"`
	DefaultMaxSteps   int           `mapstructure:"default_max_steps"`
	SessionsPerMinute int           `mapstructure:"sessions_per_minute"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
}

// Session is one live browser automation session.
type Session struct {
	ID      string `json:"id"`
	LiveURL string `json:"liveUrl"`
}

// TaskRequest describes one automation task.
type TaskRequest struct {
	Task                  string          `json:"task"`
	SessionID             string          `json:"sessionId,omitempty"`
	StartURL              string          `json:"startUrl,omitempty"`
	AllowedDomains        []string        `json:"allowedDomains,omitempty"`
	MaxSteps              int             `json:"maxSteps,omitempty"`
	SystemPromptExtension string          `json:"systemPromptExtension,omitempty"`
	OutputSchema          json.RawMessage `json:"structuredOutput,omitempty"`
}

// TaskResult is the finished task's output.
type TaskResult struct {
	Output    string
	SessionID string
}

// Client talks to the Browser Use API. Session creation is rate limited and
// all calls go through a circuit breaker.
type Client struct {
	http         *circuitbreaker.HTTPWrapper
	baseURL      string
	apiKey       string
	maxSteps     int
	pollInterval time.Duration
	limiter      *rate.Limiter
	logger       *zap.Logger
}

// NewClient creates a Browser Use API client.
func NewClient(config Config, logger *zap.Logger) (*Client, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("browseruse: api key is required")
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://api.browser-use.com/api/v1"
	}
	if config.DefaultMaxSteps == 0 {
		config.DefaultMaxSteps = 75
	}
	if config.SessionsPerMinute == 0 {
		config.SessionsPerMinute = 30
	}
	if config.PollInterval == 0 {
		config.PollInterval = 2 * time.Second
	}
	if config.RequestTimeout == 0 {
		config.RequestTimeout = 60 * time.Second
	}

	httpClient := &http.Client{Timeout: config.RequestTimeout}
	wrapped := circuitbreaker.NewHTTPWrapper(httpClient, "browseruse", circuitbreaker.Config{}, logger)

	return &Client{
		http:         wrapped,
		baseURL:      config.BaseURL,
		apiKey:       config.APIKey,
		maxSteps:     config.DefaultMaxSteps,
		pollInterval: config.PollInterval,
		limiter:      rate.NewLimiter(rate.Limit(float64(config.SessionsPerMinute)/60.0), config.SessionsPerMinute),
		logger:       logger,
	}, nil
}

// CreateSession provisions a fresh browser session and returns its id and
// live view URL.
func (c *Client) CreateSession(ctx context.Context) (*Session, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("session rate limit: %w", err)
	}

	var session Session
	if err := c.post(ctx, "/sessions", map[string]interface{}{}, &session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	if session.ID == "" {
		return nil, fmt.Errorf("create session: response missing id")
	}

	metrics.BrowserSessionsCreated.Inc()
	c.logger.Debug("Browser session created", zap.String("session_id", session.ID))
	return &session, nil
}

type taskStatus struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionId"`
	Status    string `json:"status"`
	Output    string `json:"doneOutput"`
	Error     string `json:"error"`
}

// RunTask creates a task and polls it until the vendor reports a terminal
// status. There is no client-side deadline beyond ctx; a hung task holds
// its caller until the context is cancelled.
func (c *Client) RunTask(ctx context.Context, req TaskRequest) (*TaskResult, error) {
	if req.MaxSteps == 0 {
		req.MaxSteps = c.maxSteps
	}

	var created taskStatus
	if err := c.post(ctx, "/tasks", req, &created); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	if created.ID == "" {
		return nil, fmt.Errorf("create task: response missing id")
	}

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}

		var status taskStatus
		if err := c.get(ctx, "/tasks/"+created.ID, &status); err != nil {
			return nil, fmt.Errorf("poll task %s: %w", created.ID, err)
		}

		switch status.Status {
		case "finished":
			return &TaskResult{Output: status.Output, SessionID: status.SessionID}, nil
		case "failed", "stopped":
			msg := status.Error
			if msg == "" {
				msg = status.Status
			}
			return nil, fmt.Errorf("task %s: %s", created.ID, msg)
		}
	}
}

func (c *Client) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.send(req, out)
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out interface{}) error {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("browseruse API %s: status %d: %s", req.URL.Path, resp.StatusCode, bytes.TrimSpace(body))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
