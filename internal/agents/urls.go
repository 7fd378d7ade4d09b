package agents

import (
	"net/url"
	"strings"
)

func isLinkedinHost(host string) bool {
	host = strings.ToLower(host)
	return host == "linkedin.com" || host == "www.linkedin.com"
}

// canonicalizeURL normalizes a URL to https with a lowercased host and no
// trailing path slashes, for dedup. Returns "" for anything unparseable or
// non-http.
func canonicalizeURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return ""
	}

	path := strings.TrimRight(parsed.EscapedPath(), "/")
	if path == "" {
		path = "/"
	}
	port := parsed.Port()
	if port == "80" || port == "443" {
		port = ""
	}

	host := strings.ToLower(parsed.Hostname())
	if port != "" {
		host += ":" + port
	}
	return "https://" + host + path
}

// isLinkedinPostURL reports whether the URL points at a LinkedIn post.
func isLinkedinPostURL(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return false
	}
	if !isLinkedinHost(parsed.Hostname()) {
		return false
	}
	return strings.HasPrefix(strings.ToLower(parsed.Path), "/posts/")
}

func pathSegments(parsed *url.URL) []string {
	var segments []string
	for _, seg := range strings.Split(parsed.Path, "/") {
		if seg = strings.TrimSpace(seg); seg != "" {
			segments = append(segments, seg)
		}
	}
	return segments
}

// extractPostSlug returns the post slug from a /posts/<slug> URL, or "".
func extractPostSlug(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	segments := pathSegments(parsed)
	if len(segments) < 2 || strings.ToLower(segments[0]) != "posts" {
		return ""
	}
	return segments[1]
}

// extractLinkedinUsername returns the handle from a /in/<username> profile
// URL, or "".
func extractLinkedinUsername(profileURL string) string {
	parsed, err := url.Parse(profileURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return ""
	}
	if !isLinkedinHost(parsed.Hostname()) {
		return ""
	}
	segments := pathSegments(parsed)
	if len(segments) < 2 || strings.ToLower(segments[0]) != "in" {
		return ""
	}
	username, err := url.PathUnescape(segments[1])
	if err != nil {
		return segments[1]
	}
	return username
}

func dedupePreserveOrder(items []string) []string {
	seen := make(map[string]bool, len(items))
	var out []string
	for _, item := range items {
		if seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
	}
	return out
}
