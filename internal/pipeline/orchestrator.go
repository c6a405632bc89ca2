// Package pipeline drives the staged novel generation: outline, chapter
// division, per-chapter outline, paragraph division, prose writing. All
// project mutation happens here or in the knowledge engine it invokes; the
// stages own their state transitions and the chapter-completion check.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"novelforge/internal/core"
	"novelforge/internal/generation"
	"novelforge/internal/knowledge"
	"novelforge/internal/novel"
	"novelforge/internal/prompt"
)

// Stage names as they appear in StageError coordinates.
const (
	StageOutline        = "outline"
	StageChapters       = "chapters"
	StageChapterOutline = "chapter_outline"
	StageParagraphs     = "paragraphs"
	StageWriting        = "writing"
)

// Orchestrator executes pipeline stages against one project. It is not safe
// for concurrent use; run it from a single goroutine and read project state
// through WorldBuilding.Snapshot where needed.
type Orchestrator struct {
	project  *novel.Project
	gen      *generation.Generator
	kb       *knowledge.Engine
	prompts  *prompt.Builder
	progress ProgressFunc
	logger   *slog.Logger
}

type Option func(*Orchestrator)

// WithProgress installs a progress callback. The callback runs synchronously
// on the pipeline goroutine; keep it cheap.
func WithProgress(fn ProgressFunc) Option {
	return func(o *Orchestrator) {
		o.progress = fn
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

func NewOrchestrator(project *novel.Project, gen *generation.Generator, kb *knowledge.Engine, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		project: project,
		gen:     gen,
		kb:      kb,
		prompts: prompt.NewBuilder(project),
		logger:  slog.Default().With("component", "pipeline"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Project returns the project being driven.
func (o *Orchestrator) Project() *novel.Project {
	return o.project
}

func (o *Orchestrator) emit(name string, chapterIndex, paragraphIndex int, payload any) {
	if o.progress == nil {
		return
	}
	o.progress(Event{
		Name:           name,
		ChapterIndex:   chapterIndex,
		ParagraphIndex: paragraphIndex,
		Payload:        payload,
	})
}

// GenerateOutline produces the full-novel outline on the planning model,
// replaces Project.Outline wholesale, and seeds the knowledge base with the
// outline's main characters and world setting.
func (o *Orchestrator) GenerateOutline(ctx context.Context, additional string) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	o.logger.Info("generating outline", "project", o.project.ID, "title", o.project.Title)

	obj, err := o.gen.Generate(ctx, generation.TaskOutline, o.prompts.Outline(additional),
		generation.Options{UsePlanningModel: true})
	if err != nil {
		return nil, core.NewStageError(StageOutline, -1, -1, err)
	}

	var payload novel.OutlinePayload
	if err := novel.DecodePayload(obj, &payload); err != nil {
		return nil, core.NewStageError(StageOutline, -1, -1, err)
	}
	payload.Raw = obj

	pretty, err := json.MarshalIndent(obj, "", "  ")
	if err != nil {
		return nil, core.NewStageError(StageOutline, -1, -1, fmt.Errorf("encoding outline: %w", err))
	}
	o.project.Outline = string(pretty)

	o.kb.SeedFromOutline(o.project.WorldBuilding, &payload)

	o.logger.Info("outline generated",
		"project", o.project.ID,
		"outline_length", len(o.project.Outline),
		"seeded_characters", len(payload.MainCharacters))
	o.emit(EventOutlineGenerated, -1, -1, obj)
	return obj, nil
}

// DivideChapters splits the outline into chapters and replaces the chapter
// list wholesale. A well-formed but empty result preserves the prior list
// and surfaces as a SemanticEmptyError inside the StageError.
func (o *Orchestrator) DivideChapters(ctx context.Context, additional string) ([]novel.Chapter, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	o.logger.Info("dividing chapters", "project", o.project.ID)

	obj, err := o.gen.Generate(ctx, generation.TaskChapters, o.prompts.Chapters(additional),
		generation.Options{UsePlanningModel: true})
	if err != nil {
		return nil, core.NewStageError(StageChapters, -1, -1, err)
	}

	var payload novel.ChaptersPayload
	if err := novel.DecodePayload(obj, &payload); err != nil {
		o.logger.Warn("chapter division returned no usable chapters, keeping prior list",
			"project", o.project.ID, "error", err)
		return nil, core.NewStageError(StageChapters, -1, -1,
			&core.SemanticEmptyError{Stage: StageChapters, Key: "chapters"})
	}

	chapters := make([]novel.Chapter, 0, len(payload.Chapters))
	for _, d := range payload.Chapters {
		chapters = append(chapters, novel.Chapter{
			Title:              strings.TrimSpace(d.Title),
			Summary:            strings.TrimSpace(d.Summary),
			KeyEvents:          d.KeyEvents,
			CharactersInvolved: d.CharactersInvolved,
			EstimatedWords:     d.EstimatedWords,
			Status:             novel.StatusNotStarted,
		})
	}
	o.project.Chapters = chapters

	o.logger.Info("chapters generated", "project", o.project.ID, "count", len(chapters))
	o.emit(EventChaptersGenerated, -1, -1, chapters)
	return chapters, nil
}

// GenerateChapterOutline produces the detailed outline for one chapter. The
// world context passed into the prompt includes prior chapters' consolidated
// plot summaries, which is what carries continuity across chapters.
func (o *Orchestrator) GenerateChapterOutline(ctx context.Context, chapterIndex int) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := o.checkChapterIndex(chapterIndex); err != nil {
		return nil, core.NewStageError(StageChapterOutline, chapterIndex, -1, err)
	}

	chapter := &o.project.Chapters[chapterIndex]
	o.logger.Info("generating chapter outline", "chapter", chapterIndex, "title", chapter.Title)

	worldContext := prompt.WorldContext(o.project.WorldBuilding)
	obj, err := o.gen.Generate(ctx, generation.TaskChapterOutline,
		o.prompts.ChapterOutline(chapterIndex, chapter, worldContext),
		generation.Options{UsePlanningModel: true})
	if err != nil {
		return nil, core.NewStageError(StageChapterOutline, chapterIndex, -1, err)
	}

	var payload novel.ChapterOutlinePayload
	if err := novel.DecodePayload(obj, &payload); err != nil {
		return nil, core.NewStageError(StageChapterOutline, chapterIndex, -1,
			&core.SemanticEmptyError{Stage: StageChapterOutline, Key: "outline"})
	}
	chapter.Outline = payload.Outline
	chapter.Status = novel.StatusInProgress

	o.emit(EventChapterOutlineGenerated, chapterIndex, -1, payload.Outline)
	return payload.Outline, nil
}

// DivideParagraphs splits one chapter into paragraph descriptors, replacing
// the chapter's paragraph list wholesale. All paragraphs start NotStarted
// with empty content.
func (o *Orchestrator) DivideParagraphs(ctx context.Context, chapterIndex int) ([]novel.Paragraph, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := o.checkChapterIndex(chapterIndex); err != nil {
		return nil, core.NewStageError(StageParagraphs, chapterIndex, -1, err)
	}

	chapter := &o.project.Chapters[chapterIndex]
	o.logger.Info("dividing paragraphs", "chapter", chapterIndex, "title", chapter.Title)

	obj, err := o.gen.Generate(ctx, generation.TaskParagraphs, o.prompts.Paragraphs(chapter),
		generation.Options{UsePlanningModel: true})
	if err != nil {
		return nil, core.NewStageError(StageParagraphs, chapterIndex, -1, err)
	}

	var payload novel.ParagraphsPayload
	if err := novel.DecodePayload(obj, &payload); err != nil {
		return nil, core.NewStageError(StageParagraphs, chapterIndex, -1,
			&core.SemanticEmptyError{Stage: StageParagraphs, Key: "paragraphs"})
	}

	paragraphs := make([]novel.Paragraph, 0, len(payload.Paragraphs))
	for i, d := range payload.Paragraphs {
		order := d.Number
		if order <= 0 {
			order = i + 1
		}
		paragraphs = append(paragraphs, novel.Paragraph{
			Order:          order,
			Purpose:        strings.TrimSpace(d.Purpose),
			ContentType:    d.ContentType,
			KeyPoints:      d.KeyPoints,
			EstimatedWords: d.EstimatedWords,
			Mood:           d.Mood,
			Status:         novel.StatusNotStarted,
		})
	}
	chapter.Paragraphs = paragraphs

	o.logger.Info("paragraphs generated", "chapter", chapterIndex, "count", len(paragraphs))
	o.emit(EventParagraphsGenerated, chapterIndex, -1, paragraphs)
	return paragraphs, nil
}

// WriteParagraph generates prose for one paragraph on the main model, feeds
// the result through knowledge ingestion, and runs chapter consolidation
// when this paragraph completes the chapter. selectedContext is optional
// user-chosen reference text injected into the prompt.
func (o *Orchestrator) WriteParagraph(ctx context.Context, chapterIndex, paragraphIndex int, selectedContext string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := o.checkChapterIndex(chapterIndex); err != nil {
		return "", core.NewStageError(StageWriting, chapterIndex, paragraphIndex, err)
	}
	chapter := &o.project.Chapters[chapterIndex]
	if paragraphIndex < 0 || paragraphIndex >= len(chapter.Paragraphs) {
		return "", core.NewStageError(StageWriting, chapterIndex, paragraphIndex,
			&core.IndexRangeError{Kind: "paragraph", Index: paragraphIndex, Length: len(chapter.Paragraphs)})
	}
	para := &chapter.Paragraphs[paragraphIndex]

	o.logger.Info("writing paragraph",
		"chapter", chapterIndex,
		"paragraph", paragraphIndex,
		"purpose", para.Purpose)

	// A failed write must leave prior status and content untouched so the
	// caller can retry the exact same paragraph.
	prevStatus := para.Status
	para.Status = novel.StatusInProgress

	wc := prompt.WritingContext{
		ChapterIndex:    chapterIndex,
		ParagraphIndex:  paragraphIndex,
		Chapter:         chapter,
		Paragraph:       para,
		PreviousContent: previousParagraphs(chapter, paragraphIndex),
		SelectedContext: selectedContext,
	}

	obj, err := o.gen.Generate(ctx, generation.TaskWriting, o.prompts.Writing(wc), generation.Options{})
	if err != nil {
		para.Status = prevStatus
		return "", core.NewStageError(StageWriting, chapterIndex, paragraphIndex, err)
	}

	var payload novel.WritingPayload
	if err := novel.DecodePayload(obj, &payload); err != nil {
		para.Status = prevStatus
		return "", core.NewStageError(StageWriting, chapterIndex, paragraphIndex,
			&core.SemanticEmptyError{Stage: StageWriting, Key: "content"})
	}

	// Validation only rejects a zero string; whitespace-only content still
	// gets through and must not complete the paragraph.
	content := strings.TrimSpace(payload.Content)
	if content == "" {
		para.Status = prevStatus
		return "", core.NewStageError(StageWriting, chapterIndex, paragraphIndex,
			&core.SemanticEmptyError{Stage: StageWriting, Key: "content"})
	}
	para.Content = content
	para.WordCount = payload.WordCount
	if para.WordCount <= 0 {
		para.WordCount = countWords(content)
	}
	para.Status = novel.StatusCompleted

	// Ingestion failure degrades consistency, never the prose. Log and move on.
	if err := o.kb.IngestParagraph(ctx, o.project.WorldBuilding, content, chapterIndex); err != nil {
		o.logger.Warn("knowledge ingestion failed",
			"chapter", chapterIndex,
			"paragraph", paragraphIndex,
			"error", err)
	}

	o.emit(EventParagraphWritten, chapterIndex, paragraphIndex, para.WordCount)
	o.checkChapterCompletion(ctx, chapterIndex)
	return content, nil
}

// checkChapterCompletion marks the chapter completed and runs consolidation
// exactly once. Consolidation is synchronous: the next chapter must see this
// chapter's plot summary.
func (o *Orchestrator) checkChapterCompletion(ctx context.Context, chapterIndex int) {
	chapter := &o.project.Chapters[chapterIndex]
	if chapter.Status == novel.StatusCompleted {
		return
	}
	if !chapter.AllParagraphsCompleted() {
		return
	}

	chapter.Status = novel.StatusCompleted
	o.logger.Info("chapter completed",
		"chapter", chapterIndex,
		"title", chapter.Title,
		"paragraphs", len(chapter.Paragraphs))

	o.kb.ConsolidateChapter(ctx, o.project, chapterIndex)
}

// RunChapter drives one chapter end to end: chapter outline and paragraph
// division when missing, then every unwritten paragraph in order.
func (o *Orchestrator) RunChapter(ctx context.Context, chapterIndex int) error {
	if err := o.checkChapterIndex(chapterIndex); err != nil {
		return core.NewStageError(StageChapterOutline, chapterIndex, -1, err)
	}
	chapter := &o.project.Chapters[chapterIndex]

	if len(chapter.Outline) == 0 {
		if _, err := o.GenerateChapterOutline(ctx, chapterIndex); err != nil {
			return err
		}
	}
	if len(chapter.Paragraphs) == 0 {
		if _, err := o.DivideParagraphs(ctx, chapterIndex); err != nil {
			return err
		}
	}
	for i := range chapter.Paragraphs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if chapter.Paragraphs[i].Status == novel.StatusCompleted {
			continue
		}
		if _, err := o.WriteParagraph(ctx, chapterIndex, i, ""); err != nil {
			return err
		}
	}
	return nil
}

// RunAll drives the whole pipeline: outline and chapter division when
// missing, then every chapter in order. Chapter consolidation runs inside
// the completion check, so each chapter's summary is in place before the
// next chapter's outline is generated.
func (o *Orchestrator) RunAll(ctx context.Context) error {
	if strings.TrimSpace(o.project.Outline) == "" {
		if _, err := o.GenerateOutline(ctx, ""); err != nil {
			return err
		}
	}
	if len(o.project.Chapters) == 0 {
		if _, err := o.DivideChapters(ctx, ""); err != nil {
			return err
		}
	}
	for i := range o.project.Chapters {
		if err := ctx.Err(); err != nil {
			return err
		}
		if o.project.Chapters[i].Status == novel.StatusCompleted {
			continue
		}
		if err := o.RunChapter(ctx, i); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) checkChapterIndex(chapterIndex int) error {
	if chapterIndex < 0 || chapterIndex >= len(o.project.Chapters) {
		return &core.IndexRangeError{Kind: "chapter", Index: chapterIndex, Length: len(o.project.Chapters)}
	}
	return nil
}

// previousParagraphs renders the content of the one or two completed
// paragraphs immediately before paragraphIndex, oldest first, for use as
// continuation context.
func previousParagraphs(chapter *novel.Chapter, paragraphIndex int) string {
	var parts []string
	for i := paragraphIndex - 2; i < paragraphIndex; i++ {
		if i < 0 {
			continue
		}
		p := &chapter.Paragraphs[i]
		if p.Status != novel.StatusCompleted || p.Content == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("===== Paragraph %d =====\n%s", p.Order, p.Content))
	}
	return strings.Join(parts, "\n\n")
}

// countWords counts space-separated words. Scripts written without word
// separators (Han, Hiragana, Katakana) are counted per non-space rune.
func countWords(s string) int {
	for _, r := range s {
		if unicode.Is(unicode.Han, r) || unicode.Is(unicode.Hiragana, r) || unicode.Is(unicode.Katakana, r) {
			n := 0
			for _, r := range s {
				if !unicode.IsSpace(r) {
					n++
				}
			}
			return n
		}
	}
	return len(strings.Fields(s))
}
