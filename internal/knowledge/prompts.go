package knowledge

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"novelforge/internal/novel"
)

// extractionPrompt asks for world entries that are genuinely new relative
// to the current key lists. Only key names are sent, not descriptions; the
// full maps would waste budget and invite rewrites of existing entries.
func extractionPrompt(w *novel.WorldBuilding, content string) string {
	var sb strings.Builder

	sb.WriteString("Analyze the paragraph below and extract new world-building elements. Follow the pure-add rules strictly:\n\n")
	sb.WriteString("[Existing entries]\n")
	fmt.Fprintf(&sb, "Characters: %s\n", keyList(w.Characters))
	fmt.Fprintf(&sb, "Settings: %s\n", keyList(w.Settings))
	fmt.Fprintf(&sb, "Terminology: %s\n", keyList(w.Terminology))

	sb.WriteString("\n[New paragraph]\n")
	sb.WriteString(content)

	sb.WriteString(`

[Pure-add rules]
1. Only add brand-new characters/settings/terms; never modify existing entries.
2. If a name is already in the lists above, skip it entirely; do not include it in the output.
3. Only add elements that explicitly appear in the paragraph.
4. Keep each description under 15 words, based on the paragraph's actual content.
5. Do not speculate or invent information the paragraph does not state.

Output format:
{
    "new_characters": [{"name": "new character name", "desc": "short description from the paragraph"}],
    "new_settings": [{"name": "new setting name", "desc": "short description from the paragraph"}],
    "new_terms": [{"name": "new term", "desc": "short definition from the paragraph"}],
    "plot_points": ["important plot point in this paragraph"]
}

Note: output only genuinely new items; never repeat existing entries.`)

	return sb.String()
}

// summaryPrompt produces the chapter plot summary from the accumulated
// plot points.
func summaryPrompt(chapterIndex int, chapterTitle string, points []string) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Chapter %d (%s) is complete. Summarize its plot.\n\n", chapterIndex+1, chapterTitle)
	sb.WriteString("[Accumulated plot points]\n")
	if len(points) == 0 {
		sb.WriteString("(none recorded)\n")
	}
	for _, p := range points {
		fmt.Fprintf(&sb, "- %s\n", p)
	}

	sb.WriteString(`
[Requirements]
- Write a prose summary of at most 200 characters capturing the chapter's essential developments.
- List the characters and settings that played a part.

Output format:
{
    "summary": "prose summary, at most 200 characters",
    "characters_involved": ["name"],
    "settings_involved": ["name"]
}`)

	return sb.String()
}

// mergePrompt asks for a strict reduction of duplicate world entries. Plot
// points are deliberately absent: entity dedup and plot reduction must not
// be conflated.
func mergePrompt(w *novel.WorldBuilding) string {
	var sb strings.Builder

	sb.WriteString("Perform a strict merge of duplicate world-building entries. Follow the rules exactly:\n\n")
	sb.WriteString("[Current entries]\n")
	fmt.Fprintf(&sb, "Characters: %s\n", marshalMap(w.Characters))
	fmt.Fprintf(&sb, "Settings: %s\n", marshalMap(w.Settings))
	fmt.Fprintf(&sb, "Terminology: %s\n", marshalMap(w.Terminology))

	sb.WriteString(`
[Strict merge rules]
1. Duplicate detection: find entries that denote the same thing under different names (e.g. "scarred man", "the man with the scar").
2. Merge principle: keep the most complete description and fold in the core information from the other entries.
3. Canonical naming: pick the most common or most accurate name as the canonical one.
4. Content constraint: merge only from content present in the existing entries; never invent new content.
5. Return the complete reduced maps, including untouched entries.

Output format:
{
    "characters": {"canonical name": "merged description from original entries"},
    "settings": {"canonical name": "merged description from original entries"},
    "terminology": {"canonical term": "merged definition from original entries"},
    "changes_log": [
        "merged characters: 'scarred man' + 'man with the scar' -> 'scarred man' (most frequent name)"
    ]
}

If no duplicates exist, return the original entries unchanged and state in changes_log that nothing needed merging.`)

	return sb.String()
}

// reductionPrompt reduces one chapter's plot points to a compact ordered set.
func reductionPrompt(chapterIndex int, chapterTitle string, points []string) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Reduce the plot points of chapter %d (%s) to their essential set.\n\n", chapterIndex+1, chapterTitle)
	sb.WriteString("[Chapter plot points]\n")
	for _, p := range points {
		fmt.Fprintf(&sb, "- %s\n", p)
	}

	sb.WriteString(`
[Requirements]
- Reduce to the 3-5 points that matter for the story going forward.
- Preserve causal and narrative order.
- Only condense and combine; never invent developments that are not listed.

Output format:
{
    "plot_points": ["reduced plot point in order"]
}`)

	return sb.String()
}

func keyList(m map[string]string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return "[" + strings.Join(keys, ", ") + "]"
}

func marshalMap(m map[string]string) string {
	data, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(data)
}
