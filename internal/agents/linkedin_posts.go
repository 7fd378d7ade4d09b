package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/scoutline/orchestrator/internal/firecrawl"
)

// Searcher runs a web search. Satisfied by the firecrawl client.
type Searcher interface {
	Search(ctx context.Context, query string) ([]firecrawl.SearchResult, error)
}

const linkedinPostsAnalysisLimit = 5

var linkedinPostsAllowedDomains = []string{"linkedin.com", "www.linkedin.com"}

const linkedinPostsSystemPrompt = `You are a LinkedIn post topic analysis agent.
Visit and analyze only the URLs provided in the task prompt. Do not infer or
fabricate content from inaccessible pages. Focus on what the user posts
about, themes, and recurring topics. Keep summaries factual and concise.
Return JSON only, matching the provided schema exactly.`

var linkedinPostsOutputSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "summary": {"type": ["string", "null"]},
    "topics": {"type": "array", "items": {"type": "string"}},
    "posts": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "url": {"type": "string"},
          "topic": {"type": ["string", "null"]},
          "summary": {"type": ["string", "null"]}
        },
        "required": ["url"]
      }
    }
  },
  "required": ["topics", "posts"]
}`)

type linkedinPostsAnalysis struct {
	Summary string   `json:"summary"`
	Topics  []string `json:"topics"`
	Posts   []struct {
		URL     string `json:"url"`
		Topic   string `json:"topic"`
		Summary string `json:"summary"`
	} `json:"posts"`
}

// verifyPostURLs canonicalizes and dedups search result URLs, keeping only
// LinkedIn post URLs whose slug is prefixed by the profile's username. The
// slug prefix check is what ties a post to the candidate rather than to a
// same-named stranger.
func verifyPostURLs(results []firecrawl.SearchResult, username string) []string {
	var candidates []string
	for _, result := range results {
		if canonical := canonicalizeURL(result.ResultURL()); canonical != "" {
			candidates = append(candidates, canonical)
		}
	}

	var verified []string
	prefix := strings.ToLower(username) + "_"
	for _, candidate := range dedupePreserveOrder(candidates) {
		if !isLinkedinPostURL(candidate) {
			continue
		}
		slug := extractPostSlug(candidate)
		if slug == "" || !strings.HasPrefix(strings.ToLower(slug), prefix) {
			continue
		}
		verified = append(verified, candidate)
	}
	return verified
}

// RunLinkedinPosts finds the candidate's recent LinkedIn posts via web
// search, verifies each URL belongs to the profile, and analyzes the
// verified posts in the browser session. fullName is required because the
// search query is name-based.
func RunLinkedinPosts(ctx context.Context, runner BrowserRunner, searcher Searcher, fullName, profileURL, sessionID string) (Result, error) {
	if strings.TrimSpace(fullName) == "" {
		return Result{}, fmt.Errorf("linkedin posts agent requires a full name")
	}

	username := extractLinkedinUsername(profileURL)
	if username == "" {
		return Result{}, fmt.Errorf("could not derive LinkedIn username from profile URL %q", profileURL)
	}

	query := fmt.Sprintf("%q site:linkedin.com/posts", fullName)
	results, err := searcher.Search(ctx, query)
	if err != nil {
		return Result{}, fmt.Errorf("posts search: %w", err)
	}

	verified := verifyPostURLs(results, username)
	if len(verified) > linkedinPostsAnalysisLimit {
		verified = verified[:linkedinPostsAnalysisLimit]
	}

	if len(verified) == 0 {
		markdown := fmt.Sprintf("## LinkedIn Posts\n- Name: %s\n- Profile: %s\n\nNo verified posts found.", fullName, profileURL)
		return Result{Markdown: markdown, TargetURL: profileURL}, nil
	}

	var urlList strings.Builder
	for i, u := range verified {
		fmt.Fprintf(&urlList, "%d. %s\n", i+1, u)
	}
	prompt := strings.Join([]string{
		fmt.Sprintf("Analyze LinkedIn posts for: %s", fullName),
		fmt.Sprintf("Verified LinkedIn username: %s", username),
		"Open each verified post URL below and identify what the user posts about.",
		"Only use these URLs:",
		strings.TrimRight(urlList.String(), "\n"),
		"Return JSON only.",
	}, "\n")

	taskResult, err := runner.RunTask(ctx, taskRequest(prompt, sessionID, verified[0], linkedinPostsAllowedDomains, linkedinPostsSystemPrompt, linkedinPostsOutputSchema))
	if err != nil {
		return Result{}, err
	}

	var analysis linkedinPostsAnalysis
	if err := decodeStructured(taskResult.Output, &analysis); err != nil {
		return Result{}, err
	}

	return Result{
		Markdown:  linkedinPostsMarkdown(fullName, profileURL, verified, analysis),
		TargetURL: verified[0],
	}, nil
}

func linkedinPostsMarkdown(fullName, profileURL string, verified []string, analysis linkedinPostsAnalysis) string {
	var b strings.Builder
	writeSection(&b, "## LinkedIn Posts")
	fmt.Fprintf(&b, "- Name: %s\n", fullName)
	fmt.Fprintf(&b, "- Profile: %s\n", profileURL)
	fmt.Fprintf(&b, "- Verified posts analyzed: %d\n", len(verified))
	if analysis.Summary != "" {
		writeSection(&b, "### Summary")
		b.WriteString(analysis.Summary)
		b.WriteString("\n")
	}
	if len(analysis.Topics) > 0 {
		writeSection(&b, "### Topics")
		for _, topic := range analysis.Topics {
			fmt.Fprintf(&b, "- %s\n", topic)
		}
	}
	if len(analysis.Posts) > 0 {
		writeSection(&b, "### Posts")
		for _, post := range analysis.Posts {
			fmt.Fprintf(&b, "- %s", post.URL)
			if post.Topic != "" {
				fmt.Fprintf(&b, " (%s)", post.Topic)
			}
			b.WriteString("\n")
			if post.Summary != "" {
				fmt.Fprintf(&b, "  %s\n", post.Summary)
			}
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
