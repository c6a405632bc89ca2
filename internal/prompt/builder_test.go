package prompt

import (
	"fmt"
	"strings"
	"testing"

	"novelforge/internal/novel"
)

func styledProject() *novel.Project {
	p := novel.NewProject("The Fall", "maritime tragedy")
	p.Config.WritingStyle = "spare, declarative"
	p.Config.Tone = "grim"
	p.Config.GlobalInstructions = "never break chronology"
	return p
}

func TestOutlinePromptCarriesConfig(t *testing.T) {
	b := NewBuilder(styledProject())
	got := b.Outline("open at sea")

	for _, want := range []string{"The Fall", "maritime tragedy", "spare, declarative", "grim", "never break chronology", "open at sea"} {
		if !strings.Contains(got, want) {
			t.Errorf("outline prompt missing %q", want)
		}
	}
}

func TestWritingPromptStructure(t *testing.T) {
	project := styledProject()
	project.WorldBuilding.Characters["王"] = "勇敢的少年"

	chapter := &novel.Chapter{Title: "The Storm", Summary: "storm hits"}
	para := &novel.Paragraph{Order: 2, Purpose: "the mast breaks", EstimatedWords: 250}

	b := NewBuilder(project)
	got := b.Writing(WritingContext{
		ChapterIndex:    0,
		ParagraphIndex:  1,
		Chapter:         chapter,
		Paragraph:       para,
		PreviousContent: "The storm rose.",
		SelectedContext: "reference snippet",
	})

	for _, want := range []string{
		"Write in English",
		"paragraph 2 of chapter 1",
		"the mast breaks",
		"about 250 words",
		"The storm rose.",
		"reference snippet",
		"王",
		"do not invent variants or aliases",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("writing prompt missing %q", want)
		}
	}
}

func TestWritingPromptFallsBackToConfiguredParagraphLength(t *testing.T) {
	b := NewBuilder(styledProject())
	got := b.Writing(WritingContext{
		Chapter:   &novel.Chapter{Title: "The Storm"},
		Paragraph: &novel.Paragraph{Order: 1, Purpose: "open"},
	})
	if !strings.Contains(got, "about 300 words") {
		t.Error("default paragraph length not applied")
	}
}

func TestWorldContextOrdersChapterSummaries(t *testing.T) {
	w := novel.NewWorldBuilding()
	w.Characters["王"] = "勇敢的少年"
	for _, i := range []int{2, 0, 1} {
		w.ChapterPlotSummaries[i] = &novel.ChapterPlotSummary{
			ChapterIndex: i,
			ChapterTitle: fmt.Sprintf("chapter title %d", i),
			Summary:      fmt.Sprintf("summary %d", i),
		}
	}

	got := WorldContext(w)
	i0 := strings.Index(got, "summary 0")
	i1 := strings.Index(got, "summary 1")
	i2 := strings.Index(got, "summary 2")
	if i0 == -1 || i1 == -1 || i2 == -1 {
		t.Fatalf("summaries missing from context:\n%s", got)
	}
	if !(i0 < i1 && i1 < i2) {
		t.Errorf("summaries out of order: %d %d %d", i0, i1, i2)
	}
	if !strings.Contains(got, "王") {
		t.Error("characters missing from context")
	}
}

func TestWorldContextEmptyKnowledgeBase(t *testing.T) {
	if got := WorldContext(novel.NewWorldBuilding()); got != "" {
		t.Errorf("empty knowledge base produced context %q", got)
	}
}

func TestNamingConstraintsLimitsEntries(t *testing.T) {
	w := novel.NewWorldBuilding()
	for i := 0; i < 15; i++ {
		w.Characters[fmt.Sprintf("character-%02d", i)] = "someone"
	}

	got := NamingConstraints(w)
	if n := strings.Count(got, "character-"); n != 10 {
		t.Errorf("constraint lists %d characters, want 10", n)
	}
	if !strings.Contains(got, "exact character names") {
		t.Error("missing exact-name directive")
	}
}

func TestNamingConstraintsEmpty(t *testing.T) {
	if got := NamingConstraints(novel.NewWorldBuilding()); got != "" {
		t.Errorf("empty knowledge base produced constraints %q", got)
	}
}

func TestLanguageInstruction(t *testing.T) {
	tests := []struct {
		lang string
		want string
	}{
		{"zh-TW", "Traditional Chinese"},
		{"zh-CN", "Simplified Chinese"},
		{"ja-JP", "Japanese"},
		{"en-US", "English"},
		{"", "English"},
	}
	for _, tt := range tests {
		if got := LanguageInstruction(tt.lang); !strings.Contains(got, tt.want) {
			t.Errorf("LanguageInstruction(%q) = %q, want mention of %s", tt.lang, got, tt.want)
		}
	}
}
