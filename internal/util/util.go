package util

import (
	"errors"

	"github.com/scoutline/orchestrator/internal/validation"
)

// ErrorMessage normalizes an error into the message stored on run, candidate,
// and workflow records. Structured validation errors are reduced to their
// first failing field ("path: message"); everything else uses err.Error().
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var verr *validation.Error
	if errors.As(err, &verr) {
		issue := verr.First()
		return issue.Path + ": " + issue.Message
	}
	return err.Error()
}

// TruncateString truncates s to maxLen runes and appends "..." if truncated
// (UTF-8 safe). If preserveWords is true, truncates at the last space before
// maxLen when possible.
func TruncateString(s string, maxLen int, preserveWords bool) string {
	if maxLen <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return "..."[:maxLen]
	}
	cut := maxLen - 3
	if preserveWords {
		if idx := lastSpaceBeforeRune(runes, cut); idx > 0 {
			cut = idx
		}
	}
	return string(runes[:cut]) + "..."
}

func lastSpaceBeforeRune(runes []rune, pos int) int {
	if pos > len(runes) {
		pos = len(runes)
	}
	for i := pos - 1; i >= 0; i-- {
		if runes[i] == ' ' || runes[i] == '\t' || runes[i] == '\n' {
			return i
		}
	}
	return -1
}
