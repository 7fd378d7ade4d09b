// Package agents holds the profile scraping sub-agents. Each agent is a
// thin wrapper over the browser automation client: a task prompt with
// collection rules, a pinned domain allowlist, a structured output schema,
// and a markdown rendering of the structured result.
package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/scoutline/orchestrator/internal/browseruse"
)

// BrowserRunner executes one browser automation task.
type BrowserRunner interface {
	RunTask(ctx context.Context, req browseruse.TaskRequest) (*browseruse.TaskResult, error)
}

// Result is one agent's scrape outcome. LiveURL and TargetURL are optional
// overrides; the run executor falls back to session values when empty.
type Result struct {
	Markdown  string
	LiveURL   string
	TargetURL string
}

func decodeStructured(output string, v interface{}) error {
	output = strings.TrimSpace(output)
	// Some automation runs fence the JSON payload in a markdown code block.
	if strings.HasPrefix(output, "```") {
		output = strings.TrimPrefix(output, "```json")
		output = strings.TrimPrefix(output, "```")
		output = strings.TrimSuffix(strings.TrimSpace(output), "```")
	}
	if err := json.Unmarshal([]byte(output), v); err != nil {
		return fmt.Errorf("decode structured output: %w", err)
	}
	return nil
}

func taskRequest(prompt, sessionID, startURL string, allowedDomains []string, systemPrompt string, schema json.RawMessage) browseruse.TaskRequest {
	return browseruse.TaskRequest{
		Task:                  prompt,
		SessionID:             sessionID,
		StartURL:              startURL,
		AllowedDomains:        allowedDomains,
		SystemPromptExtension: systemPrompt,
		OutputSchema:          schema,
	}
}

func numberedRules(rules []string) string {
	var b strings.Builder
	for i, rule := range rules {
		fmt.Fprintf(&b, "%d. %s\n", i+1, rule)
	}
	return strings.TrimRight(b.String(), "\n")
}

func writeSection(b *strings.Builder, heading string) {
	if b.Len() > 0 {
		b.WriteString("\n")
	}
	b.WriteString(heading)
	b.WriteString("\n")
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "unknown"
	}
	return s
}
