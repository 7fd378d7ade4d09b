// Package validation provides structured field-level validation errors
// shared by the HTTP request validators and the discovery payload parser.
package validation

import (
	"fmt"
	"strings"
)

// Issue is a single failed check against one field.
type Issue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// Error aggregates the issues found while validating one value. Issues keep
// the order in which the checks ran; the first issue is the one surfaced in
// normalized error messages.
type Error struct {
	Issues []Issue
}

func (e *Error) Error() string {
	if len(e.Issues) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		parts = append(parts, fmt.Sprintf("%s: %s", issue.Path, issue.Message))
	}
	return strings.Join(parts, "; ")
}

// First returns the first recorded issue. The path falls back to "root" when
// the check did not target a named field.
func (e *Error) First() Issue {
	if len(e.Issues) == 0 {
		return Issue{Path: "root", Message: "validation failed"}
	}
	first := e.Issues[0]
	if first.Path == "" {
		first.Path = "root"
	}
	return first
}

// Collector accumulates issues during a validation pass.
type Collector struct {
	issues []Issue
}

// Add records one failed check.
func (c *Collector) Add(path, message string) {
	c.issues = append(c.issues, Issue{Path: path, Message: message})
}

// Err returns the accumulated *Error, or nil when every check passed.
func (c *Collector) Err() error {
	if len(c.issues) == 0 {
		return nil
	}
	return &Error{Issues: c.issues}
}
