package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

var githubAllowedDomains = []string{"github.com", "www.github.com", "google.com", "www.google.com"}

var githubCollectionRules = []string{
	"Open the provided GitHub profile URL and stay on github.com.",
	"Capture the exact visible contributions headline and period text shown near the contributions graph on initial profile load.",
	"Collect display name, username, bio, repositories count, followers count, and following count if visible.",
	"Collect up to 6 pinned repositories visible on initial profile load with name, URL, description, primary language, stars, and forks.",
	"Extract only visible values, never infer missing counts, and use null when a field is not visible.",
}

const githubSystemPrompt = `You are a GitHub profile extraction agent.
Stay only on github.com pages. Capture only what is visible when the profile
loads. Do not invent values; use null for fields that are not visible.
Return JSON only, matching the provided schema exactly.`

var githubOutputSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "displayName": {"type": ["string", "null"]},
    "username": {"type": ["string", "null"]},
    "bio": {"type": ["string", "null"]},
    "followersCount": {"type": ["string", "null"]},
    "contributionsHeadline": {"type": ["string", "null"]},
    "pinnedRepositories": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "name": {"type": "string"},
          "url": {"type": ["string", "null"]},
          "description": {"type": ["string", "null"]},
          "primaryLanguage": {"type": ["string", "null"]},
          "stars": {"type": ["string", "null"]},
          "forks": {"type": ["string", "null"]}
        },
        "required": ["name"]
      }
    }
  },
  "required": ["pinnedRepositories"]
}`)

type githubPinnedRepo struct {
	Name            string `json:"name"`
	URL             string `json:"url"`
	Description     string `json:"description"`
	PrimaryLanguage string `json:"primaryLanguage"`
	Stars           string `json:"stars"`
	Forks           string `json:"forks"`
}

type githubProfile struct {
	DisplayName           string             `json:"displayName"`
	Username              string             `json:"username"`
	Bio                   string             `json:"bio"`
	FollowersCount        string             `json:"followersCount"`
	ContributionsHeadline string             `json:"contributionsHeadline"`
	PinnedRepositories    []githubPinnedRepo `json:"pinnedRepositories"`
}

// RunGithub scrapes a GitHub profile and returns a markdown summary.
func RunGithub(ctx context.Context, runner BrowserRunner, profileURL, sessionID string) (Result, error) {
	prompt := fmt.Sprintf("Open this GitHub profile: %s\nCollect data using these exact rules:\n%s\nReturn JSON only.",
		profileURL, numberedRules(githubCollectionRules))

	taskResult, err := runner.RunTask(ctx, taskRequest(prompt, sessionID, profileURL, githubAllowedDomains, githubSystemPrompt, githubOutputSchema))
	if err != nil {
		return Result{}, err
	}

	var profile githubProfile
	if err := decodeStructured(taskResult.Output, &profile); err != nil {
		return Result{}, err
	}
	return Result{Markdown: githubMarkdown(profile)}, nil
}

func githubMarkdown(p githubProfile) string {
	var b strings.Builder
	writeSection(&b, "## GitHub Profile")
	fmt.Fprintf(&b, "- Name: %s\n", orUnknown(p.DisplayName))
	fmt.Fprintf(&b, "- Username: %s\n", orUnknown(p.Username))
	if p.Bio != "" {
		fmt.Fprintf(&b, "- Bio: %s\n", p.Bio)
	}
	if p.FollowersCount != "" {
		fmt.Fprintf(&b, "- Followers: %s\n", p.FollowersCount)
	}
	if p.ContributionsHeadline != "" {
		fmt.Fprintf(&b, "- Contributions: %s\n", p.ContributionsHeadline)
	}

	if len(p.PinnedRepositories) > 0 {
		writeSection(&b, "### Pinned Repositories")
		for _, repo := range p.PinnedRepositories {
			fmt.Fprintf(&b, "- **%s**", repo.Name)
			if repo.PrimaryLanguage != "" {
				fmt.Fprintf(&b, " (%s)", repo.PrimaryLanguage)
			}
			if repo.Stars != "" {
				fmt.Fprintf(&b, ", %s stars", repo.Stars)
			}
			b.WriteString("\n")
			if repo.Description != "" {
				fmt.Fprintf(&b, "  %s\n", repo.Description)
			}
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
