// Package prompt builds the user prompts for every pipeline stage. All the
// style knobs of GlobalWritingConfig are consumed here and nowhere else.
package prompt

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"novelforge/internal/novel"
)

// Builder constructs stage prompts from the project's writing configuration
// and knowledge base.
type Builder struct {
	project *novel.Project
}

func NewBuilder(project *novel.Project) *Builder {
	return &Builder{project: project}
}

// Outline builds the full-novel outline prompt.
func (b *Builder) Outline(additional string) string {
	cfg := b.project.Config
	var sb strings.Builder

	fmt.Fprintf(&sb, "Generate the complete creative outline for a novel titled %q.\n\n", b.project.Title)
	sb.WriteString("[Basic information]\n")
	fmt.Fprintf(&sb, "- Title: %s\n", b.project.Title)
	fmt.Fprintf(&sb, "- Theme / style: %s\n", b.project.Theme)
	writeIfSet(&sb, "- Narrative style: %s\n", cfg.WritingStyle)
	writeIfSet(&sb, "- Pacing: %s\n", cfg.PacingStyle)
	writeIfSet(&sb, "- Overall tone: %s\n", cfg.Tone)
	writeListIfSet(&sb, "- Core themes: %s\n", cfg.ContinuousThemes)
	writeListIfSet(&sb, "- Must include: %s\n", cfg.MustIncludeElements)
	writeListIfSet(&sb, "- Avoid: %s\n", cfg.AvoidElements)

	sb.WriteString("\n[Creative requirements]\n")
	sb.WriteString("- Expected chapter count: 10-20\n")
	fmt.Fprintf(&sb, "- Target words per chapter: about %d\n", cfg.TargetChapterWords)
	sb.WriteString("\nBuild a complete story structure covering main characters, world setting and plot development.")

	b.appendCommonSuffix(&sb, additional)
	return sb.String()
}

// Chapters builds the chapter-division prompt from the current outline.
func (b *Builder) Chapters(additional string) string {
	cfg := b.project.Config
	var sb strings.Builder

	sb.WriteString("Based on the following outline, divide the novel into chapters:\n\n")
	sb.WriteString("[Overall outline]\n")
	sb.WriteString(b.project.Outline)
	sb.WriteString("\n\n[Division requirements]\n")
	sb.WriteString("- Chapter count: 10-20\n")
	fmt.Fprintf(&sb, "- Target words per chapter: %d\n", cfg.TargetChapterWords)
	writeIfSet(&sb, "- Pacing: %s\n", cfg.PacingStyle)

	sb.WriteString("\n[Chapter requirements]\n")
	sb.WriteString("1. Every chapter title must be specific and engaging\n")
	sb.WriteString("2. Keep each chapter summary within 50 words\n")
	sb.WriteString("3. Plot development across chapters must stay logical\n")

	b.appendCommonSuffix(&sb, additional)
	return sb.String()
}

// ChapterOutline builds the per-chapter outline prompt. worldContext carries
// the knowledge-base entries plus prior chapters' plot summaries for
// continuity.
func (b *Builder) ChapterOutline(chapterIndex int, chapter *novel.Chapter, worldContext string) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Generate a detailed outline for chapter %d:\n\n", chapterIndex+1)
	sb.WriteString("[Overall outline]\n")
	sb.WriteString(b.project.Outline)
	sb.WriteString("\n\n[Chapter information]\n")
	fmt.Fprintf(&sb, "- Title: %s\n", chapter.Title)
	fmt.Fprintf(&sb, "- Summary: %s\n", chapter.Summary)
	writeListIfSet(&sb, "- Key events: %s\n", chapter.KeyEvents)
	writeListIfSet(&sb, "- Characters involved: %s\n", chapter.CharactersInvolved)

	if worldContext != "" {
		sb.WriteString("\n[Current world state]\n")
		sb.WriteString(worldContext)
		sb.WriteString("\n")
	}

	sb.WriteString("\nGenerate the detailed creative outline for this chapter.")
	b.appendCommonSuffix(&sb, "")
	return sb.String()
}

// Paragraphs builds the paragraph-division prompt from the chapter outline.
func (b *Builder) Paragraphs(chapter *novel.Chapter) string {
	var sb strings.Builder

	sb.WriteString("Based on the following chapter outline, divide the chapter into concrete paragraphs:\n\n")
	fmt.Fprintf(&sb, "Chapter title: %s\n", chapter.Title)
	sb.WriteString("Chapter outline: ")
	sb.WriteString(marshalIndent(chapter.Outline))
	sb.WriteString("\n\nDivide the chapter into an appropriate number of paragraphs, each with a clear purpose and content focus.")

	b.appendCommonSuffix(&sb, "")
	return sb.String()
}

// WritingContext carries everything the writing stage injects into its
// prompt besides the paragraph descriptor itself.
type WritingContext struct {
	ChapterIndex    int
	ParagraphIndex  int
	Chapter         *novel.Chapter
	Paragraph       *novel.Paragraph
	PreviousContent string // trailing content of the 1-2 preceding paragraphs
	SelectedContext string // optional user-selected reference text
}

// Writing builds the prose-writing prompt for one paragraph.
func (b *Builder) Writing(wc WritingContext) string {
	cfg := b.project.Config
	var sb strings.Builder

	sb.WriteString(LanguageInstruction(cfg.Language))
	sb.WriteString("\n\n")
	fmt.Fprintf(&sb, "Write paragraph %d of chapter %d:\n\n", wc.ParagraphIndex+1, wc.ChapterIndex+1)

	sb.WriteString("[Writing style]\n")
	writeIfSet(&sb, "- Narration: %s\n", cfg.WritingStyle)
	writeIfSet(&sb, "- Tone: %s\n", cfg.Tone)
	writeIfSet(&sb, "- Dialogue style: %s\n", cfg.DialogueStyle)
	writeIfSet(&sb, "- Description density: %s\n", cfg.DescriptionDensity)
	writeIfSet(&sb, "- Emotional intensity: %s\n", cfg.EmotionalIntensity)

	target := wc.Paragraph.EstimatedWords
	if target == 0 {
		target = cfg.TargetParagraphWords
	}
	sb.WriteString("\n[Paragraph task]\n")
	fmt.Fprintf(&sb, "- Purpose: %s\n", wc.Paragraph.Purpose)
	fmt.Fprintf(&sb, "- Target length: about %d words\n", target)
	writeIfSet(&sb, "- Mood: %s\n", wc.Paragraph.Mood)
	writeListIfSet(&sb, "- Key points: %s\n", wc.Paragraph.KeyPoints)

	sb.WriteString("\n[Chapter background]\n")
	fmt.Fprintf(&sb, "- Chapter title: %s\n", wc.Chapter.Title)
	fmt.Fprintf(&sb, "- Chapter goal: %s\n", wc.Chapter.Summary)
	if len(wc.Chapter.Outline) > 0 {
		fmt.Fprintf(&sb, "- Chapter outline: %s\n", marshalCompact(wc.Chapter.Outline))
	}

	if strings.TrimSpace(wc.SelectedContext) != "" {
		sb.WriteString("\n[Reference] The user selected this reference content; stay consistent with it:\n")
		sb.WriteString(strings.TrimSpace(wc.SelectedContext))
		sb.WriteString("\n")
	}

	if wc.PreviousContent != "" {
		sb.WriteString("\n[Preceding text] Continue from the paragraphs below without repeating them:\n")
		sb.WriteString(wc.PreviousContent)
		sb.WriteString("\n")
	}

	if constraints := NamingConstraints(b.project.WorldBuilding); constraints != "" {
		sb.WriteString("\n")
		sb.WriteString(constraints)
		sb.WriteString("\nIMPORTANT: follow the naming rules above exactly to keep the story consistent.\n")
	}

	b.appendCommonSuffix(&sb, "")
	return sb.String()
}

func (b *Builder) appendCommonSuffix(sb *strings.Builder, additional string) {
	if g := strings.TrimSpace(b.project.Config.GlobalInstructions); g != "" {
		sb.WriteString("\n\n[Global creative guidance]\n")
		sb.WriteString(g)
	}
	if a := strings.TrimSpace(additional); a != "" {
		sb.WriteString("\n\n[Additional instructions]\n")
		sb.WriteString(a)
	}
}

// WorldContext renders the knowledge base plus prior chapters' plot
// summaries as prompt context.
func WorldContext(w *novel.WorldBuilding) string {
	var parts []string

	if len(w.Characters) > 0 {
		parts = append(parts, renderEntries("Characters:", w.Characters))
	}
	if len(w.Settings) > 0 {
		parts = append(parts, renderEntries("Settings:", w.Settings))
	}
	if len(w.Terminology) > 0 {
		parts = append(parts, renderEntries("Terminology:", w.Terminology))
	}

	if len(w.ChapterPlotSummaries) > 0 {
		indices := make([]int, 0, len(w.ChapterPlotSummaries))
		for i := range w.ChapterPlotSummaries {
			indices = append(indices, i)
		}
		sort.Ints(indices)

		var sb strings.Builder
		sb.WriteString("Previous chapter summaries:")
		for _, i := range indices {
			s := w.ChapterPlotSummaries[i]
			fmt.Fprintf(&sb, "\n- Chapter %d (%s): %s", s.ChapterIndex+1, s.ChapterTitle, s.Summary)
		}
		parts = append(parts, sb.String())
	}

	return strings.Join(parts, "\n")
}

// NamingConstraints renders the exact-name directives injected into writing
// prompts so the model never invents variants of established names.
func NamingConstraints(w *novel.WorldBuilding) string {
	var parts []string

	if len(w.Characters) > 0 {
		parts = append(parts,
			renderEntries("[Character naming rules]", limitEntries(w.Characters, 10)),
			"Use these exact character names; do not invent variants or aliases.")
	}
	if len(w.Settings) > 0 {
		parts = append(parts,
			renderEntries("[Setting naming rules]", limitEntries(w.Settings, 8)),
			"Use these exact setting names.")
	}
	if len(w.Terminology) > 0 {
		parts = append(parts,
			renderEntries("[Terminology rules]", limitEntries(w.Terminology, 10)),
			"Use these exact terms to keep concepts consistent.")
	}

	return strings.Join(parts, "\n")
}

// LanguageInstruction maps a language tag to the writing-language directive.
func LanguageInstruction(language string) string {
	switch language {
	case "zh-TW":
		return "Write in Traditional Chinese. Use 「」 quotation marks for dialogue."
	case "zh-CN":
		return "Write in Simplified Chinese."
	case "ja-JP":
		return "Write in Japanese."
	default:
		return "Write in English. Use proper quotation marks for dialogue and keep paragraphs clearly separated."
	}
}

func renderEntries(header string, entries map[string]string) string {
	var sb strings.Builder
	sb.WriteString(header)
	for _, name := range sortedKeys(entries) {
		fmt.Fprintf(&sb, "\n- %s: %s", name, entries[name])
	}
	return sb.String()
}

func limitEntries(entries map[string]string, n int) map[string]string {
	if len(entries) <= n {
		return entries
	}
	out := make(map[string]string, n)
	for _, name := range sortedKeys(entries)[:n] {
		out[name] = entries[name]
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func writeIfSet(sb *strings.Builder, format, value string) {
	if value != "" {
		fmt.Fprintf(sb, format, value)
	}
}

func writeListIfSet(sb *strings.Builder, format string, values []string) {
	if len(values) > 0 {
		fmt.Fprintf(sb, format, strings.Join(values, ", "))
	}
}

func marshalIndent(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

func marshalCompact(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
