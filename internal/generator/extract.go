package generator

import (
	"errors"
	"regexp"
	"strings"
)

// FunctionName is the well-known name the sandbox looks up.
const FunctionName = "extract_tools"

// ErrNoCode is wrapped by CodeExtractionError.
var ErrNoCode = errors.New("no extract_tools function found in model output")

// CodeExtractionError is returned when no strategy matches the model output.
type CodeExtractionError struct {
	// Preview is the start of the response, for diagnostics.
	Preview string
}

func (e *CodeExtractionError) Error() string {
	return "code extraction: " + ErrNoCode.Error()
}

func (e *CodeExtractionError) Unwrap() error { return ErrNoCode }

// Ordered from most to least specific.
var codePatterns = []*regexp.Regexp{
	regexp.MustCompile("(?s)```lua\\s*(function\\s+" + FunctionName + ".*?)```"),
	regexp.MustCompile("(?s)```\\s*(function\\s+" + FunctionName + ".*?)```"),
	regexp.MustCompile("(?s)(function\\s+" + FunctionName + ".*?)(?:```|$)"),
}

const previewLength = 200

// ExtractCode pulls the extract_tools function out of a completion. A lua-tagged
// fenced block wins over an untagged one, which wins over a bare declaration.
func ExtractCode(response string) (string, error) {
	for _, re := range codePatterns {
		m := re.FindStringSubmatch(response)
		if m == nil {
			continue
		}
		if code := strings.TrimSpace(m[1]); code != "" {
			return code, nil
		}
	}
	return "", &CodeExtractionError{Preview: truncateRunes(response, previewLength)}
}

// truncateRunes cuts s to at most n characters without splitting a rune.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
