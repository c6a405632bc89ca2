package generation

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Pre-compiled extraction patterns, tried in order. Models wrap JSON in
// fenced blocks, prepend prose, or truncate the object mid-stream; each
// strategy tolerates one of those failure shapes.
var (
	// fencedJSONPattern matches the first ```json fenced block, lazily,
	// across newlines.
	fencedJSONPattern = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")
	// fencedBlockPattern matches a generic fenced block whose payload
	// starts with '{'.
	fencedBlockPattern = regexp.MustCompile("(?s)```\\s*(\\{.*?\\})\\s*```")
	// braceObjectPattern matches a brace-balanced object up to one nesting
	// level; deeper nesting falls through to the repair scan.
	braceObjectPattern = regexp.MustCompile(`\{[^{}]*(?:\{[^{}]*\}[^{}]*)*\}`)
)

// ExtractObject extracts the first parseable, non-empty JSON object from
// arbitrary model output. It never panics on malformed input; when every
// strategy fails it reports ok=false.
func ExtractObject(text string) (map[string]any, bool) {
	strategies := []func(string) []string{
		func(s string) []string { return submatches(fencedJSONPattern, s) },
		func(s string) []string { return submatches(fencedBlockPattern, s) },
		func(s string) []string { return braceObjectPattern.FindAllString(s, -1) },
	}

	for _, strategy := range strategies {
		for _, candidate := range strategy(text) {
			if obj, ok := tryParseObject(normalizeCandidate(candidate)); ok {
				return obj, true
			}
		}
	}

	return repairObject(text)
}

func submatches(re *regexp.Regexp, text string) []string {
	var out []string
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		if len(m) > 1 {
			out = append(out, m[1])
		}
	}
	return out
}

// normalizeCandidate strips a leading byte-order mark and trims the
// candidate to its outermost {...} span.
func normalizeCandidate(s string) string {
	s = strings.TrimPrefix(strings.TrimSpace(s), "\uFEFF")
	s = strings.TrimSpace(s)

	if start := strings.Index(s, "{"); start != -1 {
		s = s[start:]
	}
	if end := strings.LastIndex(s, "}"); end != -1 {
		s = s[:end+1]
	}
	return s
}

// tryParseObject accepts only non-empty JSON objects; arrays and scalars
// are rejected so a stage never receives the wrong shape.
func tryParseObject(s string) (map[string]any, bool) {
	if s == "" {
		return nil, false
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, false
	}
	obj, ok := v.(map[string]any)
	if !ok || len(obj) == 0 {
		return nil, false
	}
	return obj, true
}

// repairObject is the last-resort pass: locate the first '{' and scan
// forward counting brace depth; the candidate ends where depth returns to
// zero. If depth never closes the object was truncated and there is
// nothing to salvage.
func repairObject(text string) (map[string]any, bool) {
	start := strings.Index(text, "{")
	if start == -1 {
		return nil, false
	}

	depth := 0
	for i := start; i < len(text); i++ {
		switch text[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return tryParseObject(text[start : i+1])
			}
		}
	}
	return nil, false
}
