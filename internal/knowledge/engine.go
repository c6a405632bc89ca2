// Package knowledge maintains the world-building knowledge base: pure-add
// ingestion after every written paragraph and the chapter-completion
// consolidation passes.
package knowledge

import (
	"context"
	"log/slog"
	"strings"

	"novelforge/internal/generation"
	"novelforge/internal/novel"
)

// Engine runs the LLM-assisted knowledge-base operations. It mutates the
// WorldBuilding aggregate it is handed; ownership stays with the caller.
type Engine struct {
	gen    *generation.Generator
	logger *slog.Logger
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func NewEngine(gen *generation.Generator, opts ...Option) *Engine {
	e := &Engine{
		gen:    gen,
		logger: slog.Default().With("component", "knowledge"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SeedFromOutline inserts main characters and the world setting found in a
// freshly generated outline. Pure add: existing keys are never overwritten.
func (e *Engine) SeedFromOutline(w *novel.WorldBuilding, payload *novel.OutlinePayload) {
	for _, ch := range payload.MainCharacters {
		name := strings.TrimSpace(ch.Name)
		desc := strings.TrimSpace(ch.Text())
		if name == "" || desc == "" {
			continue
		}
		if _, exists := w.Characters[name]; !exists {
			w.Characters[name] = desc
			e.logger.Debug("seeded character from outline", "name", name)
		}
	}
	if ws := strings.TrimSpace(payload.WorldSetting); ws != "" {
		if _, exists := w.Settings[worldSettingKey]; !exists {
			w.Settings[worldSettingKey] = ws
		}
	}
}

const worldSettingKey = "overall world"

// IngestParagraph extracts new world entries from one written paragraph and
// applies them under the pure-add policy: a name already present in a map
// is discarded even when the model proposes it as new. Plot points are
// appended to the global list and to the current-chapter accumulation
// buffer, which binds lazily to the first chapter index it sees.
func (e *Engine) IngestParagraph(ctx context.Context, w *novel.WorldBuilding, content string, chapterIndex int) error {
	prompt := extractionPrompt(w, content)

	obj, err := e.gen.Generate(ctx, generation.TaskWorldBuilding, prompt, generation.Options{})
	if err != nil {
		return err
	}

	var payload novel.ExtractionPayload
	if err := novel.DecodePayload(obj, &payload); err != nil {
		return err
	}

	if w.CurrentChapter != chapterIndex {
		w.CurrentChapter = chapterIndex
		w.CurrentChapterPlotPoints = nil
	}

	for _, ch := range payload.NewCharacters {
		e.pureAdd(w.Characters, ch, "character")
	}
	for _, s := range payload.NewSettings {
		e.pureAdd(w.Settings, s, "setting")
	}
	for _, t := range payload.NewTerms {
		e.pureAdd(w.Terminology, t, "term")
	}

	for _, point := range payload.PlotPoints {
		point = strings.TrimSpace(point)
		if point == "" || contains(w.PlotPoints, point) {
			continue
		}
		w.PlotPoints = append(w.PlotPoints, point)
		w.CurrentChapterPlotPoints = append(w.CurrentChapterPlotPoints, point)
		e.logger.Debug("plot point recorded", "chapter", chapterIndex, "point", point)
	}

	return nil
}

// pureAdd inserts the entry only when its name is unseen. The model is told
// to emit only new names, but its dedup is never trusted.
func (e *Engine) pureAdd(m map[string]string, entry novel.NamedDesc, kind string) {
	name := strings.TrimSpace(entry.Name)
	desc := strings.TrimSpace(entry.Text())
	if name == "" || desc == "" {
		return
	}
	if _, exists := m[name]; exists {
		e.logger.Debug("discarding duplicate proposal", "kind", kind, "name", name)
		return
	}
	m[name] = desc
	e.logger.Debug("new entry added", "kind", kind, "name", name)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
