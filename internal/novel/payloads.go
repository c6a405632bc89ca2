package novel

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Each pipeline stage expects its own payload shape. The parser hands back
// an untyped object; stages decode it into one of these tagged variants and
// validate immediately, so untyped maps never travel further than this
// package.

// NamedDesc is a name/description pair as emitted by the model for world
// entries. Both "desc" and "description" appear in the wild.
type NamedDesc struct {
	Name        string `json:"name"`
	Desc        string `json:"desc"`
	Description string `json:"description,omitempty"`
}

// Text returns whichever description field the model filled in.
func (n NamedDesc) Text() string {
	if n.Desc != "" {
		return n.Desc
	}
	return n.Description
}

// OutlinePayload is the full-novel outline. The raw object replaces
// Project.Outline verbatim; the typed fields exist to seed the knowledge
// base.
type OutlinePayload struct {
	Title          string      `json:"title"`
	Summary        string      `json:"summary"`
	Themes         []string    `json:"themes"`
	MainCharacters []NamedDesc `json:"main_characters"`
	WorldSetting   string      `json:"world_setting"`

	Raw map[string]any `json:"-"`
}

// ChapterDescriptor is one entry of the chapter-division result.
type ChapterDescriptor struct {
	Number             int      `json:"number"`
	Title              string   `json:"title" validate:"required"`
	Summary            string   `json:"summary"`
	KeyEvents          []string `json:"key_events"`
	CharactersInvolved []string `json:"characters_involved"`
	EstimatedWords     int      `json:"estimated_words"`
}

type ChaptersPayload struct {
	Chapters []ChapterDescriptor `json:"chapters" validate:"min=1,dive"`
}

type ChapterOutlinePayload struct {
	Outline map[string]any `json:"outline" validate:"min=1"`
}

// ParagraphDescriptor is one entry of the paragraph-division result.
type ParagraphDescriptor struct {
	Number         int      `json:"number"`
	Purpose        string   `json:"purpose" validate:"required"`
	ContentType    string   `json:"content_type"`
	KeyPoints      []string `json:"key_points"`
	EstimatedWords int      `json:"estimated_words"`
	Mood           string   `json:"mood"`
}

type ParagraphsPayload struct {
	Paragraphs []ParagraphDescriptor `json:"paragraphs" validate:"min=1,dive"`
}

type WritingPayload struct {
	Content   string `json:"content" validate:"required"`
	WordCount int    `json:"word_count"`
}

// ExtractionPayload is the per-paragraph world-building extraction result.
// Every collection may legitimately be empty.
type ExtractionPayload struct {
	NewCharacters []NamedDesc `json:"new_characters"`
	NewSettings   []NamedDesc `json:"new_settings"`
	NewTerms      []NamedDesc `json:"new_terms"`
	PlotPoints    []string    `json:"plot_points"`
}

// MergePayload is the world-entry merge result: reduced maps under canonical
// names plus a human-readable change log.
type MergePayload struct {
	Characters  map[string]string `json:"characters"`
	Settings    map[string]string `json:"settings"`
	Terminology map[string]string `json:"terminology"`
	ChangesLog  []string          `json:"changes_log"`
}

type PlotSummaryPayload struct {
	Summary            string   `json:"summary" validate:"required"`
	CharactersInvolved []string `json:"characters_involved"`
	SettingsInvolved   []string `json:"settings_involved"`
}

type PlotReductionPayload struct {
	PlotPoints []string `json:"plot_points" validate:"min=1"`
}

var validate = validator.New()

// DecodePayload round-trips the parsed object into dst and runs struct
// validation. Callers translate a validation failure into a
// SemanticEmptyError for their stage.
func DecodePayload(obj map[string]any, dst any) error {
	data, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decoding payload: %w", err)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("validating payload: %w", err)
	}
	return nil
}
