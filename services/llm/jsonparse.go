package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedJSON is matched by every *ParseError.
var ErrMalformedJSON = errors.New("malformed JSON in model response")

// ParseError is returned by ParseJSON when the response is not valid JSON
// after fence stripping.
type ParseError struct {
	// Raw is the text after stripping, truncated for logging.
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%v: %v (raw: %q)", ErrMalformedJSON, e.Err, e.Raw)
}

func (e *ParseError) Unwrap() []error {
	return []error{ErrMalformedJSON, e.Err}
}

const maxRawInError = 200

// StripFences trims model output down to its first Markdown code fence
// (```json ... ``` or ``` ... ```). Prose before or after the fence is
// dropped. Output without a fence is only trimmed of whitespace.
func StripFences(text string) string {
	s := strings.TrimSpace(text)
	i := strings.Index(s, "```")
	if i < 0 {
		return s
	}
	s = s[i+len("```"):]
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimPrefix(s, "JSON")
	if j := strings.Index(s, "```"); j >= 0 {
		s = s[:j]
	}
	return strings.TrimSpace(s)
}

// outermostJSON returns the span from the first '{' or '[' to the last
// matching closer, or "" when there is none.
func outermostJSON(s string) string {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return ""
	}
	closer := "}"
	if s[start] == '[' {
		closer = "]"
	}
	end := strings.LastIndex(s, closer)
	if end <= start {
		return ""
	}
	return s[start : end+1]
}

// ParseJSON extracts the JSON value in text and unmarshals it into v. A
// fenced block wins; otherwise prose around the outermost object or array
// is ignored. Any failure is a *ParseError.
func ParseJSON(text string, v any) error {
	cleaned := StripFences(text)
	err := json.Unmarshal([]byte(cleaned), v)
	if err != nil {
		if inner := outermostJSON(cleaned); inner != "" && inner != cleaned {
			if json.Unmarshal([]byte(inner), v) == nil {
				return nil
			}
		}
		raw := cleaned
		if len(raw) > maxRawInError {
			raw = raw[:maxRawInError] + "..."
		}
		return &ParseError{Raw: raw, Err: err}
	}
	return nil
}
