// Package candidates normalizes raw discovery payloads into the minimal
// candidate shape the per-candidate pipeline works with.
package candidates

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/scoutline/orchestrator/internal/validation"
)

// Snapshot is the normalized view of one discovered candidate. Optional
// fields use "" for absent; blank or whitespace-only source values never
// survive normalization.
type Snapshot struct {
	SourceCandidateID string
	Name              string
	FullName          string
	LinkedinURL       string
	GithubURL         string
}

var schemeRe = regexp.MustCompile(`^[a-zA-Z][a-zA-Z\d+\-.]*://`)

// BuildSnapshot maps one raw discovery payload to a Snapshot. The payload
// schema is owned by the discovery collaborator; only the fields the
// pipeline needs are read. A missing or blank id is a validation error.
func BuildSnapshot(payload map[string]interface{}) (Snapshot, error) {
	var c validation.Collector

	id := trimmedField(payload, "id")
	if id == "" {
		c.Add("id", "is required")
	}
	if err := c.Err(); err != nil {
		return Snapshot{}, err
	}

	name := trimmedField(payload, "full_name")

	// Name derivation: explicit full name wins, then first+last, then empty.
	fullName := name
	if fullName == "" {
		first := trimmedField(payload, "first_name")
		last := trimmedField(payload, "last_name")
		fullName = strings.TrimSpace(first + " " + last)
	}

	return Snapshot{
		SourceCandidateID: id,
		Name:              name,
		FullName:          fullName,
		LinkedinURL:       NormalizeHTTPURL(trimmedField(payload, "linkedin_url")),
		GithubURL:         NormalizeHTTPURL(trimmedField(payload, "github_url")),
	}, nil
}

// NormalizeHTTPURL trims raw, defaults a missing scheme to https, and
// returns the parsed URL string. Anything that is not a valid http(s) URL
// normalizes to "".
func NormalizeHTTPURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}

	if !schemeRe.MatchString(trimmed) {
		trimmed = "https://" + trimmed
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return ""
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return ""
	}
	if parsed.Host == "" {
		return ""
	}
	return parsed.String()
}

func trimmedField(payload map[string]interface{}, key string) string {
	value, ok := payload[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(value)
}
