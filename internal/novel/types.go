package novel

import (
	"strings"

	"github.com/google/uuid"
)

// Paragraph is the smallest unit of generated prose. Order is 1-based and
// stable: paragraphs are created in bulk and never reordered.
type Paragraph struct {
	Order          int      `json:"order"`
	Purpose        string   `json:"purpose"`
	ContentType    string   `json:"contentType,omitempty"`
	KeyPoints      []string `json:"keyPoints,omitempty"`
	EstimatedWords int      `json:"estimatedWords"`
	Mood           string   `json:"mood,omitempty"`
	Content        string   `json:"content"`
	Status         Status   `json:"status"`
	WordCount      int      `json:"wordCount"`
}

// Chapter holds one chapter descriptor plus its outline and paragraphs.
type Chapter struct {
	Title              string         `json:"title"`
	Summary            string         `json:"summary"`
	KeyEvents          []string       `json:"keyEvents,omitempty"`
	CharactersInvolved []string       `json:"charactersInvolved,omitempty"`
	EstimatedWords     int            `json:"estimatedWords"`
	Outline            map[string]any `json:"outline,omitempty"`
	Paragraphs         []Paragraph    `json:"paragraphs"`
	Status             Status         `json:"status"`
}

// AllParagraphsCompleted reports whether every paragraph is completed and
// the paragraph sequence is non-empty. Chapter completion is recomputed
// from this on every paragraph completion, never cached blindly.
func (c *Chapter) AllParagraphsCompleted() bool {
	if len(c.Paragraphs) == 0 {
		return false
	}
	for i := range c.Paragraphs {
		if c.Paragraphs[i].Status != StatusCompleted {
			return false
		}
	}
	return true
}

// ChapterPlotSummary is the consolidated record of one completed chapter.
type ChapterPlotSummary struct {
	ChapterIndex          int      `json:"chapterIndex"`
	ChapterTitle          string   `json:"chapterTitle"`
	PlotPoints            []string `json:"plotPoints,omitempty"`
	Summary               string   `json:"summary"`
	CharactersIntroduced  []string `json:"charactersIntroduced,omitempty"`
	SettingsIntroduced    []string `json:"settingsIntroduced,omitempty"`
}

// WorldBuilding is the consistency knowledge base shared across the whole
// generation run. It is mutated only by the pipeline goroutine; concurrent
// readers must use Snapshot.
type WorldBuilding struct {
	Characters  map[string]string `json:"characters"`
	Settings    map[string]string `json:"settings"`
	Terminology map[string]string `json:"terminology"`

	// PlotPoints is the flat global list. Consolidated entries carry a
	// "[Chapter N]" prefix; raw entries from ingestion carry none.
	PlotPoints []string `json:"plotPoints"`

	ChapterPlotSummaries map[int]*ChapterPlotSummary `json:"chapterPlotSummaries"`

	// CurrentChapterPlotPoints accumulates plot points for the chapter in
	// progress. It is flushed into a ChapterPlotSummary and cleared exactly
	// once, at chapter completion.
	CurrentChapterPlotPoints []string `json:"currentChapterPlotPoints"`

	// CurrentChapter is the chapter index the accumulation buffer belongs
	// to, -1 before any ingestion.
	CurrentChapter int `json:"currentChapter"`
}

// NewWorldBuilding returns an empty knowledge base.
func NewWorldBuilding() *WorldBuilding {
	return &WorldBuilding{
		Characters:           map[string]string{},
		Settings:             map[string]string{},
		Terminology:          map[string]string{},
		ChapterPlotSummaries: map[int]*ChapterPlotSummary{},
		CurrentChapter:       -1,
	}
}

// Snapshot returns a deep copy safe for concurrent readers. The pipeline
// may replace whole maps atomically during a merge pass, so readers never
// hold references into the live maps.
func (w *WorldBuilding) Snapshot() *WorldBuilding {
	cp := &WorldBuilding{
		Characters:               copyMap(w.Characters),
		Settings:                 copyMap(w.Settings),
		Terminology:              copyMap(w.Terminology),
		PlotPoints:               append([]string(nil), w.PlotPoints...),
		ChapterPlotSummaries:     map[int]*ChapterPlotSummary{},
		CurrentChapterPlotPoints: append([]string(nil), w.CurrentChapterPlotPoints...),
		CurrentChapter:           w.CurrentChapter,
	}
	for idx, s := range w.ChapterPlotSummaries {
		dup := *s
		dup.PlotPoints = append([]string(nil), s.PlotPoints...)
		dup.CharactersIntroduced = append([]string(nil), s.CharactersIntroduced...)
		dup.SettingsIntroduced = append([]string(nil), s.SettingsIntroduced...)
		cp.ChapterPlotSummaries[idx] = &dup
	}
	return cp
}

func copyMap(m map[string]string) map[string]string {
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

// GlobalWritingConfig carries style knobs consumed only by prompt
// construction, never by the pipeline state machine.
type GlobalWritingConfig struct {
	WritingStyle        string   `json:"writingStyle,omitempty"`
	PacingStyle         string   `json:"pacingStyle,omitempty"`
	Tone                string   `json:"tone,omitempty"`
	ContinuousThemes    []string `json:"continuousThemes,omitempty"`
	MustIncludeElements []string `json:"mustIncludeElements,omitempty"`
	AvoidElements       []string `json:"avoidElements,omitempty"`
	TargetChapterWords  int      `json:"targetChapterWords,omitempty"`
	TargetParagraphWords int     `json:"targetParagraphWords,omitempty"`
	DialogueStyle       string   `json:"dialogueStyle,omitempty"`
	DescriptionDensity  string   `json:"descriptionDensity,omitempty"`
	EmotionalIntensity  string   `json:"emotionalIntensity,omitempty"`
	GlobalInstructions  string   `json:"globalInstructions,omitempty"`
	Language            string   `json:"language,omitempty"`
}

// Project is the root aggregate. It is created empty, mutated only by
// pipeline operations, and persisted by the storage collaborator. It has no
// field for credentials or API configuration.
type Project struct {
	ID            string              `json:"id"`
	Title         string              `json:"title"`
	Theme         string              `json:"theme"`
	Outline       string              `json:"outline"`
	Chapters      []Chapter           `json:"chapters"`
	WorldBuilding *WorldBuilding      `json:"worldBuilding"`
	Config        GlobalWritingConfig `json:"config"`
}

// NewProject creates an empty project.
func NewProject(title, theme string) *Project {
	return &Project{
		ID:            uuid.NewString(),
		Title:         strings.TrimSpace(title),
		Theme:         strings.TrimSpace(theme),
		WorldBuilding: NewWorldBuilding(),
		Config: GlobalWritingConfig{
			TargetChapterWords:   3000,
			TargetParagraphWords: 300,
			Language:             "en-US",
		},
	}
}
