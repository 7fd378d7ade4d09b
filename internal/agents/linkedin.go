package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

var linkedinAllowedDomains = []string{"linkedin.com", "www.linkedin.com", "google.com", "www.google.com"}

const linkedinSystemPrompt = `You are a LinkedIn profile extraction agent.
Start with a Google site search for the target profile and click the first
result. If a login wall blocks the profile, repeat the Google site search.
Once on the profile, scroll smoothly from top to bottom and extract the
visible basic info, activity, and projects. Do not invent details.
Return JSON only, matching the provided schema exactly.`

var linkedinOutputSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "name": {"type": ["string", "null"]},
    "headline": {"type": ["string", "null"]},
    "location": {"type": ["string", "null"]},
    "about": {"type": ["string", "null"]},
    "activity": {"type": "array", "items": {"type": "string"}},
    "projects": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "name": {"type": "string"},
          "description": {"type": ["string", "null"]},
          "link": {"type": ["string", "null"]}
        },
        "required": ["name"]
      }
    }
  },
  "required": ["activity", "projects"]
}`)

type linkedinProject struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Link        string `json:"link"`
}

type linkedinProfile struct {
	Name     string            `json:"name"`
	Headline string            `json:"headline"`
	Location string            `json:"location"`
	About    string            `json:"about"`
	Activity []string          `json:"activity"`
	Projects []linkedinProject `json:"projects"`
}

// RunLinkedin scrapes a LinkedIn profile and returns a markdown summary. The
// task routes through a Google site search because direct navigation tends to
// hit the login wall.
func RunLinkedin(ctx context.Context, runner BrowserRunner, profileURL, sessionID string) (Result, error) {
	prompt := strings.Join([]string{
		fmt.Sprintf("Target LinkedIn profile: %s", profileURL),
		fmt.Sprintf("1. Go to Google and search: site:%s", profileURL),
		"2. Click the first result to open the profile.",
		"3. If blocked by a login wall, repeat the Google site search.",
		"4. Scroll through the profile from top to bottom.",
		"5. Extract basic info, activity, and projects.",
		"Return ONLY JSON matching the schema.",
	}, "\n")

	taskResult, err := runner.RunTask(ctx, taskRequest(prompt, sessionID, "", linkedinAllowedDomains, linkedinSystemPrompt, linkedinOutputSchema))
	if err != nil {
		return Result{}, err
	}

	var profile linkedinProfile
	if err := decodeStructured(taskResult.Output, &profile); err != nil {
		return Result{}, err
	}
	return Result{Markdown: linkedinMarkdown(profile)}, nil
}

func linkedinMarkdown(p linkedinProfile) string {
	var b strings.Builder
	writeSection(&b, "## LinkedIn Profile")
	fmt.Fprintf(&b, "- Name: %s\n", orUnknown(p.Name))
	if p.Headline != "" {
		fmt.Fprintf(&b, "- Headline: %s\n", p.Headline)
	}
	if p.Location != "" {
		fmt.Fprintf(&b, "- Location: %s\n", p.Location)
	}
	if p.About != "" {
		writeSection(&b, "### About")
		b.WriteString(p.About)
		b.WriteString("\n")
	}
	if len(p.Activity) > 0 {
		writeSection(&b, "### Recent Activity")
		for _, item := range p.Activity {
			fmt.Fprintf(&b, "- %s\n", item)
		}
	}
	if len(p.Projects) > 0 {
		writeSection(&b, "### Projects")
		for _, project := range p.Projects {
			fmt.Fprintf(&b, "- **%s**", project.Name)
			if project.Description != "" {
				fmt.Fprintf(&b, ": %s", project.Description)
			}
			b.WriteString("\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
