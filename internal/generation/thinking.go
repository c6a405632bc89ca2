package generation

import (
	"regexp"
	"strings"
)

// Models sometimes emit a reasoning preamble before the JSON. We surface it
// for diagnostics only; its presence or absence never affects control flow.
var thinkingPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<thinking>(.*?)</thinking>`),
	regexp.MustCompile(`(?is)<think>(.*?)</think>`),
	regexp.MustCompile(`(?is)thinking[：:](.*?)(?:\n\n|$)`),
}

var thinkingKeywords = []string{"thinking", "consider", "analyze", "reasoning"}

// ExtractThinking returns any detected thinking content, or "".
func ExtractThinking(content string) string {
	for _, re := range thinkingPatterns {
		if m := re.FindStringSubmatch(content); len(m) > 1 {
			text := strings.TrimSpace(m[1])
			if len(text) > 10 {
				return text
			}
		}
	}

	// Fallback: a keyword-flagged prose block ahead of the fenced JSON.
	fenceStart := strings.Index(content, "```json")
	if fenceStart <= 50 {
		return ""
	}
	prefix := strings.TrimSpace(content[:fenceStart])
	lower := strings.ToLower(prefix)
	for _, kw := range thinkingKeywords {
		if strings.Contains(lower, kw) {
			lines := strings.Split(prefix, "\n")
			if len(lines) > 3 {
				lines = lines[len(lines)-3:]
			}
			tail := strings.TrimSpace(strings.Join(lines, "\n"))
			if len(tail) > 20 {
				return tail
			}
			return ""
		}
	}
	return ""
}
