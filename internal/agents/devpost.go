package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

var devpostAllowedDomains = []string{"devpost.com", "www.devpost.com"}

var devpostCollectionRules = []string{
	"Open the Devpost profile URL and stay on devpost.com pages only.",
	"Collect wins and awards from the profile and linked Devpost project pages when needed.",
	"Collect built projects from visible profile content and linked Devpost project pages.",
	"Use only information that is visible on the page. Never invent missing values.",
	"If a value is not visible, use null for nullable fields and an empty array when no items are found.",
	"Write a concise high-level summary focused on wins and what the user built.",
}

const devpostSystemPrompt = `You are a Devpost profile extraction agent.
Stay on devpost.com pages only, starting from the provided user profile URL.
Extract wins and awards tied to the profile's hackathon history, built
projects with concise descriptions, and technologies only when explicitly
visible. Do not hallucinate; use null for unknown nullable fields and empty
arrays when no wins or projects are found.
Return JSON only, matching the provided schema exactly.`

var devpostOutputSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "summary": {"type": ["string", "null"]},
    "wins": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "title": {"type": "string"},
          "hackathon": {"type": ["string", "null"]},
          "prize": {"type": ["string", "null"]}
        },
        "required": ["title"]
      }
    },
    "projects": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "name": {"type": "string"},
          "description": {"type": ["string", "null"]},
          "technologies": {"type": "array", "items": {"type": "string"}}
        },
        "required": ["name"]
      }
    }
  },
  "required": ["wins", "projects"]
}`)

type devpostProfile struct {
	Summary string `json:"summary"`
	Wins    []struct {
		Title     string `json:"title"`
		Hackathon string `json:"hackathon"`
		Prize     string `json:"prize"`
	} `json:"wins"`
	Projects []struct {
		Name         string   `json:"name"`
		Description  string   `json:"description"`
		Technologies []string `json:"technologies"`
	} `json:"projects"`
}

// RunDevpost scrapes a resolved Devpost profile and returns a markdown
// summary of wins and built projects. The result's TargetURL carries the
// resolved profile URL so the run record reflects where the scrape landed.
func RunDevpost(ctx context.Context, runner BrowserRunner, profileURL, fullName, sessionID string) (Result, error) {
	prompt := strings.Join([]string{
		fmt.Sprintf("Open this Devpost user profile: %s", profileURL),
		fmt.Sprintf("This profile was selected for the person name: %s", fullName),
		"Collect data using these exact rules:",
		numberedRules(devpostCollectionRules),
		"Return JSON only.",
	}, "\n")

	taskResult, err := runner.RunTask(ctx, taskRequest(prompt, sessionID, profileURL, devpostAllowedDomains, devpostSystemPrompt, devpostOutputSchema))
	if err != nil {
		return Result{}, err
	}

	var profile devpostProfile
	if err := decodeStructured(taskResult.Output, &profile); err != nil {
		return Result{}, err
	}
	return Result{Markdown: devpostMarkdown(fullName, profileURL, profile), TargetURL: profileURL}, nil
}

func devpostMarkdown(fullName, profileURL string, p devpostProfile) string {
	var b strings.Builder
	writeSection(&b, "## Devpost Profile")
	fmt.Fprintf(&b, "- Name: %s\n", fullName)
	fmt.Fprintf(&b, "- Profile: %s\n", profileURL)
	if p.Summary != "" {
		writeSection(&b, "### Summary")
		b.WriteString(p.Summary)
		b.WriteString("\n")
	}
	if len(p.Wins) > 0 {
		writeSection(&b, "### Wins")
		for _, win := range p.Wins {
			fmt.Fprintf(&b, "- **%s**", win.Title)
			if win.Hackathon != "" {
				fmt.Fprintf(&b, " at %s", win.Hackathon)
			}
			if win.Prize != "" {
				fmt.Fprintf(&b, " (%s)", win.Prize)
			}
			b.WriteString("\n")
		}
	}
	if len(p.Projects) > 0 {
		writeSection(&b, "### Projects")
		for _, project := range p.Projects {
			fmt.Fprintf(&b, "- **%s**", project.Name)
			if project.Description != "" {
				fmt.Fprintf(&b, ": %s", project.Description)
			}
			if len(project.Technologies) > 0 {
				fmt.Fprintf(&b, " [%s]", strings.Join(project.Technologies, ", "))
			}
			b.WriteString("\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
