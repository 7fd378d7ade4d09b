// Package firecrawl is a client for the Firecrawl search API, used to
// resolve Devpost profile URLs from candidate names.
package firecrawl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/scoutline/orchestrator/internal/circuitbreaker"
)

// Config holds Firecrawl API configuration.
type Config struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	SearchLimit    int           `mapstructure:"search_limit"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`
}

// SearchResult is one web result from a Firecrawl search.
type SearchResult struct {
	URL      string `json:"url"`
	Title    string `json:"title"`
	Metadata struct {
		URL string `json:"url"`
	} `json:"metadata"`
}

// ResultURL returns the result's URL, preferring the direct field over
// document metadata.
func (r SearchResult) ResultURL() string {
	if u := strings.TrimSpace(r.URL); u != "" {
		return u
	}
	return strings.TrimSpace(r.Metadata.URL)
}

// Client talks to the Firecrawl search API.
type Client struct {
	http        *circuitbreaker.HTTPWrapper
	baseURL     string
	apiKey      string
	searchLimit int
	logger      *zap.Logger
}

// NewClient creates a Firecrawl client.
func NewClient(config Config, logger *zap.Logger) (*Client, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("firecrawl: api key is required")
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://api.firecrawl.dev/v1"
	}
	if config.SearchLimit == 0 {
		config.SearchLimit = 10
	}
	if config.RequestTimeout == 0 {
		config.RequestTimeout = 30 * time.Second
	}

	httpClient := &http.Client{Timeout: config.RequestTimeout}
	return &Client{
		http:        circuitbreaker.NewHTTPWrapper(httpClient, "firecrawl", circuitbreaker.Config{}, logger),
		baseURL:     config.BaseURL,
		apiKey:      config.APIKey,
		searchLimit: config.SearchLimit,
		logger:      logger,
	}, nil
}

type searchResponse struct {
	Web  []SearchResult `json:"web"`
	Data []SearchResult `json:"data"`
}

// Search runs a web search and returns the result list. The API has shipped
// the result array under both "web" and "data" keys; both are accepted.
func (c *Client) Search(ctx context.Context, query string) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("firecrawl: empty search query")
	}

	payload, err := json.Marshal(map[string]interface{}{
		"query":   query,
		"sources": []string{"web"},
		"limit":   c.searchLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("encode search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("firecrawl search: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read search response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("firecrawl search: status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	var decoded searchResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	if decoded.Web != nil {
		return decoded.Web, nil
	}
	return decoded.Data, nil
}
