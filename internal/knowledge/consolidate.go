package knowledge

import (
	"context"
	"fmt"
	"strings"

	"novelforge/internal/generation"
	"novelforge/internal/novel"
)

// ChapterTag formats the prefix that marks a consolidated plot point as
// belonging to one chapter in the global list.
func ChapterTag(chapterIndex int) string {
	return fmt.Sprintf("[Chapter %d]", chapterIndex+1)
}

// ConsolidateChapter runs the three consolidation sub-passes for a just
// completed chapter: plot summary, world-entry merge, plot-point reduction.
// The passes run in order and each failure is logged without aborting the
// others, so the pipeline never stalls on a cosmetic dedup failure.
func (e *Engine) ConsolidateChapter(ctx context.Context, project *novel.Project, chapterIndex int) {
	w := project.WorldBuilding
	chapter := &project.Chapters[chapterIndex]

	e.logger.Info("consolidating chapter",
		"chapter", chapterIndex,
		"title", chapter.Title,
		"buffered_plot_points", len(w.CurrentChapterPlotPoints))

	if err := e.summarizeChapter(ctx, w, chapterIndex, chapter.Title); err != nil {
		e.logger.Error("chapter plot summary failed", "chapter", chapterIndex, "error", err)
	}
	if err := e.mergeWorldEntries(ctx, w); err != nil {
		e.logger.Error("world-entry merge failed", "chapter", chapterIndex, "error", err)
	}
	if err := e.reduceChapterPlotPoints(ctx, w, chapterIndex); err != nil {
		e.logger.Error("plot-point reduction failed", "chapter", chapterIndex, "error", err)
	}
}

// summarizeChapter flushes the accumulation buffer into a ChapterPlotSummary.
// Idempotent: an existing summary for the index is kept and only the buffer
// is cleared.
func (e *Engine) summarizeChapter(ctx context.Context, w *novel.WorldBuilding, chapterIndex int, chapterTitle string) error {
	if _, exists := w.ChapterPlotSummaries[chapterIndex]; exists {
		e.logger.Debug("chapter summary already present, skipping", "chapter", chapterIndex)
		w.CurrentChapterPlotPoints = nil
		return nil
	}

	points := append([]string(nil), w.CurrentChapterPlotPoints...)
	prompt := summaryPrompt(chapterIndex, chapterTitle, points)

	obj, err := e.gen.Generate(ctx, generation.TaskWorldBuilding, prompt, generation.Options{UsePlanningModel: true})
	if err != nil {
		return err
	}

	var payload novel.PlotSummaryPayload
	if err := novel.DecodePayload(obj, &payload); err != nil {
		return err
	}

	w.ChapterPlotSummaries[chapterIndex] = &novel.ChapterPlotSummary{
		ChapterIndex:         chapterIndex,
		ChapterTitle:         chapterTitle,
		PlotPoints:           points,
		Summary:              payload.Summary,
		CharactersIntroduced: payload.CharactersInvolved,
		SettingsIntroduced:   payload.SettingsInvolved,
	}
	w.CurrentChapterPlotPoints = nil

	e.logger.Info("chapter plot summary stored",
		"chapter", chapterIndex,
		"summary_length", len(payload.Summary),
		"plot_points", len(points))
	return nil
}

// mergeWorldEntries asks the model to fold entries that denote the same
// thing under different names into one canonical entry per concept. The
// result replaces the three maps wholesale; plot points are handled by the
// reduction pass, never here. Merging is a reduction of existing content,
// so an empty result map means "nothing to merge" and leaves the original
// in place.
func (e *Engine) mergeWorldEntries(ctx context.Context, w *novel.WorldBuilding) error {
	if len(w.Characters)+len(w.Settings)+len(w.Terminology) == 0 {
		return nil
	}

	prompt := mergePrompt(w)

	obj, err := e.gen.Generate(ctx, generation.TaskWorldBuilding, prompt, generation.Options{UsePlanningModel: true})
	if err != nil {
		return err
	}

	var payload novel.MergePayload
	if err := novel.DecodePayload(obj, &payload); err != nil {
		return err
	}

	before := len(w.Characters) + len(w.Settings) + len(w.Terminology)
	if len(payload.Characters) > 0 {
		w.Characters = payload.Characters
	}
	if len(payload.Settings) > 0 {
		w.Settings = payload.Settings
	}
	if len(payload.Terminology) > 0 {
		w.Terminology = payload.Terminology
	}
	after := len(w.Characters) + len(w.Settings) + len(w.Terminology)

	for _, change := range payload.ChangesLog {
		e.logger.Info("world merge change", "change", change)
	}
	if before != after {
		e.logger.Info("world entries merged", "before", before, "after", after)
	} else {
		e.logger.Info("world merge found nothing to fold")
	}
	return nil
}

// reduceChapterPlotPoints reduces the just-completed chapter's plot points
// to a compact set and re-inserts them into the global list tagged with the
// chapter index, replacing both the chapter's raw untagged points and any
// previously tagged entries for the same index.
func (e *Engine) reduceChapterPlotPoints(ctx context.Context, w *novel.WorldBuilding, chapterIndex int) error {
	summary, ok := w.ChapterPlotSummaries[chapterIndex]
	if !ok || len(summary.PlotPoints) == 0 {
		e.logger.Debug("no chapter plot points to reduce", "chapter", chapterIndex)
		return nil
	}

	prompt := reductionPrompt(chapterIndex, summary.ChapterTitle, summary.PlotPoints)

	obj, err := e.gen.Generate(ctx, generation.TaskWorldBuilding, prompt, generation.Options{UsePlanningModel: true})
	if err != nil {
		return err
	}

	var payload novel.PlotReductionPayload
	if err := novel.DecodePayload(obj, &payload); err != nil {
		return err
	}

	tag := ChapterTag(chapterIndex)
	raw := make(map[string]bool, len(summary.PlotPoints))
	for _, p := range summary.PlotPoints {
		raw[p] = true
	}

	kept := make([]string, 0, len(w.PlotPoints))
	for _, p := range w.PlotPoints {
		if strings.HasPrefix(p, tag) || raw[p] {
			continue
		}
		kept = append(kept, p)
	}
	for _, p := range payload.PlotPoints {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		kept = append(kept, tag+" "+p)
	}
	w.PlotPoints = kept

	e.logger.Info("chapter plot points reduced",
		"chapter", chapterIndex,
		"from", len(summary.PlotPoints),
		"to", len(payload.PlotPoints))
	return nil
}
