package firecrawl

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/scoutline/orchestrator/internal/metrics"
)

// ErrProfileNotFound reports that no Devpost user profile could be resolved
// for a name. Callers treat it as "skip the Devpost agent", not as a
// candidate failure.
var ErrProfileNotFound = errors.New("no devpost profile found")

// Devpost roots that are site sections rather than user handles.
var blockedDevpostSegments = map[string]bool{
	"software":      true,
	"hackathons":    true,
	"organizations": true,
	"organization":  true,
	"updates":       true,
	"blog":          true,
	"search":        true,
	"about":         true,
	"guidelines":    true,
	"privacy":       true,
	"terms":         true,
	"jobs":          true,
	"contact":       true,
}

// NormalizeDevpostProfileURL canonicalizes a URL to https://devpost.com/<handle>
// when it points at a Devpost user profile, and returns "" otherwise.
func NormalizeDevpostProfileURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return ""
	}

	host := strings.ToLower(parsed.Hostname())
	if host != "devpost.com" && host != "www.devpost.com" {
		return ""
	}

	var segments []string
	for _, seg := range strings.Split(parsed.Path, "/") {
		if seg = strings.TrimSpace(seg); seg != "" {
			segments = append(segments, seg)
		}
	}
	if len(segments) != 1 {
		return ""
	}

	handle := segments[0]
	if blockedDevpostSegments[strings.ToLower(handle)] {
		return ""
	}
	return "https://devpost.com/" + url.PathEscape(handle)
}

// DevpostResolver resolves candidate names to Devpost profile URLs through
// web search, with a Redis cache in front of the API. Negative results are
// cached too so repeated workflows do not re-search names that have no
// profile.
type DevpostResolver struct {
	client   *Client
	cache    redis.UniversalClient
	cacheTTL time.Duration
	logger   *zap.Logger
}

const notFoundMarker = "__not_found__"

// NewDevpostResolver creates a resolver. cache may be nil, in which case
// every lookup hits the search API.
func NewDevpostResolver(client *Client, cache redis.UniversalClient, cacheTTL time.Duration, logger *zap.Logger) *DevpostResolver {
	if cacheTTL == 0 {
		cacheTTL = 24 * time.Hour
	}
	return &DevpostResolver{client: client, cache: cache, cacheTTL: cacheTTL, logger: logger}
}

// FindProfileByName searches "<name> Devpost" and returns the first result
// that canonicalizes to a user profile URL. Returns ErrProfileNotFound when
// no result qualifies.
func (r *DevpostResolver) FindProfileByName(ctx context.Context, fullName string) (string, error) {
	fullName = strings.TrimSpace(fullName)
	if fullName == "" {
		return "", fmt.Errorf("devpost lookup: empty name")
	}

	cacheKey := "devpost:profile:" + strings.ToLower(fullName)
	if r.cache != nil {
		cached, err := r.cache.Get(ctx, cacheKey).Result()
		switch {
		case err == nil:
			metrics.DevpostLookups.WithLabelValues("cache_hit").Inc()
			if cached == notFoundMarker {
				return "", fmt.Errorf("%w: %q", ErrProfileNotFound, fullName)
			}
			return cached, nil
		case err != redis.Nil:
			r.logger.Warn("Devpost cache read failed", zap.String("name", fullName), zap.Error(err))
		}
	}

	results, err := r.client.Search(ctx, fullName+" Devpost")
	if err != nil {
		metrics.DevpostLookups.WithLabelValues("error").Inc()
		return "", fmt.Errorf("devpost lookup for %q: %w", fullName, err)
	}

	for _, result := range results {
		profileURL := NormalizeDevpostProfileURL(result.ResultURL())
		if profileURL == "" {
			continue
		}
		metrics.DevpostLookups.WithLabelValues("found").Inc()
		r.cacheSet(ctx, cacheKey, profileURL)
		return profileURL, nil
	}

	metrics.DevpostLookups.WithLabelValues("not_found").Inc()
	r.cacheSet(ctx, cacheKey, notFoundMarker)
	return "", fmt.Errorf("%w: %q", ErrProfileNotFound, fullName)
}

func (r *DevpostResolver) cacheSet(ctx context.Context, key, value string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Set(ctx, key, value, r.cacheTTL).Err(); err != nil {
		r.logger.Warn("Devpost cache write failed", zap.String("key", key), zap.Error(err))
	}
}
