package knowledge

import (
	"context"
	"reflect"
	"strings"
	"testing"

	"novelforge/internal/agent"
	"novelforge/internal/core"
	"novelforge/internal/novel"
)

func errTransport() error {
	return &core.TransportError{Provider: "openai", StatusCode: 500, Err: core.ErrServerError}
}

func completedProject() *novel.Project {
	project := novel.NewProject("The Fall", "tragedy")
	project.Chapters = []novel.Chapter{
		{Title: "The Storm", Status: novel.StatusCompleted},
	}
	w := project.WorldBuilding
	w.Characters["王"] = "勇敢的少年"
	w.Characters["scarred man"] = "a drifter with a scar"
	w.Characters["the man with the scar"] = "seen at the harbor"
	w.CurrentChapter = 0
	w.CurrentChapterPlotPoints = []string{"the storm breaks", "王 saves the crew"}
	w.PlotPoints = []string{"the storm breaks", "王 saves the crew"}
	return project
}

func TestConsolidateChapterRunsAllThreePasses(t *testing.T) {
	summaryResp := `{"summary": "A storm nearly sinks the ship; 王 saves the crew.", "characters_involved": ["王"], "settings_involved": []}`
	mergeResp := `{
		"characters": {"王": "勇敢的少年", "scarred man": "a drifter with a scar, seen at the harbor"},
		"settings": {},
		"terminology": {},
		"changes_log": ["merged characters: 'scarred man' + 'the man with the scar' -> 'scarred man'"]
	}`
	reductionResp := `{"plot_points": ["王 saves the crew from the storm"]}`

	e, client := newTestEngine(
		agent.ScriptedResponse{Content: summaryResp},
		agent.ScriptedResponse{Content: mergeResp},
		agent.ScriptedResponse{Content: reductionResp},
	)
	project := completedProject()
	w := project.WorldBuilding

	e.ConsolidateChapter(context.Background(), project, 0)

	if client.CallCount() != 3 {
		t.Fatalf("calls = %d, want exactly one per sub-pass", client.CallCount())
	}

	summary, ok := w.ChapterPlotSummaries[0]
	if !ok {
		t.Fatal("chapter summary not stored")
	}
	if summary.ChapterTitle != "The Storm" || summary.Summary == "" {
		t.Errorf("summary = %+v", summary)
	}
	if !reflect.DeepEqual(summary.PlotPoints, []string{"the storm breaks", "王 saves the crew"}) {
		t.Errorf("summary plot points = %v", summary.PlotPoints)
	}
	if len(w.CurrentChapterPlotPoints) != 0 {
		t.Errorf("buffer not cleared: %v", w.CurrentChapterPlotPoints)
	}

	if len(w.Characters) != 2 {
		t.Errorf("merge did not replace characters: %v", w.Characters)
	}

	want := []string{"[Chapter 1] 王 saves the crew from the storm"}
	if !reflect.DeepEqual(w.PlotPoints, want) {
		t.Errorf("global plot points = %v, want %v", w.PlotPoints, want)
	}
}

func TestConsolidateChapterIsIdempotent(t *testing.T) {
	e, client := newTestEngine(
		agent.ScriptedResponse{Content: `{"summary": "A storm.", "characters_involved": [], "settings_involved": []}`},
		agent.ScriptedResponse{Content: `{"characters": {}, "settings": {}, "terminology": {}, "changes_log": []}`},
		agent.ScriptedResponse{Content: `{"plot_points": ["the storm breaks"]}`},
		// Second run: summary pass skips (already stored), so only merge and
		// reduction go out again.
		agent.ScriptedResponse{Content: `{"characters": {}, "settings": {}, "terminology": {}, "changes_log": []}`},
		agent.ScriptedResponse{Content: `{"plot_points": ["the storm breaks"]}`},
	)
	project := completedProject()
	w := project.WorldBuilding

	e.ConsolidateChapter(context.Background(), project, 0)
	firstSummary := w.ChapterPlotSummaries[0]
	firstPoints := append([]string(nil), w.PlotPoints...)

	e.ConsolidateChapter(context.Background(), project, 0)

	if w.ChapterPlotSummaries[0] != firstSummary {
		t.Error("existing summary replaced on second run")
	}
	if !reflect.DeepEqual(w.PlotPoints, firstPoints) {
		t.Errorf("plot points drifted: %v -> %v", firstPoints, w.PlotPoints)
	}
	if client.CallCount() != 5 {
		t.Errorf("calls = %d, want 5 (summary skipped on rerun)", client.CallCount())
	}
}

func TestMergeLeavesMapsWhenPayloadEmpty(t *testing.T) {
	e, _ := newTestEngine(
		agent.ScriptedResponse{Content: `{"characters": {}, "settings": {}, "terminology": {}, "changes_log": ["nothing to merge"]}`},
	)
	w := novel.NewWorldBuilding()
	w.Characters["王"] = "勇敢的少年"
	w.Settings["the forge"] = "soot-black workshop"

	if err := e.mergeWorldEntries(context.Background(), w); err != nil {
		t.Fatal(err)
	}
	if len(w.Characters) != 1 || len(w.Settings) != 1 {
		t.Errorf("empty merge result wiped entries: %v / %v", w.Characters, w.Settings)
	}
}

func TestMergeSkipsWhenKnowledgeBaseEmpty(t *testing.T) {
	e, client := newTestEngine()
	if err := e.mergeWorldEntries(context.Background(), novel.NewWorldBuilding()); err != nil {
		t.Fatal(err)
	}
	if client.CallCount() != 0 {
		t.Errorf("merge called the model for an empty knowledge base")
	}
}

func TestReductionReplacesPreviouslyTaggedEntries(t *testing.T) {
	e, _ := newTestEngine(
		agent.ScriptedResponse{Content: `{"plot_points": ["the rewritten point"]}`},
	)
	w := novel.NewWorldBuilding()
	w.ChapterPlotSummaries[1] = &novel.ChapterPlotSummary{
		ChapterIndex: 1,
		ChapterTitle: "The Storm",
		PlotPoints:   []string{"raw point a", "raw point b"},
	}
	w.PlotPoints = []string{
		"[Chapter 1] point from an earlier chapter",
		"[Chapter 2] stale consolidated point",
		"raw point a",
		"raw point b",
		"unrelated raw point",
	}

	if err := e.reduceChapterPlotPoints(context.Background(), w, 1); err != nil {
		t.Fatal(err)
	}

	want := []string{
		"[Chapter 1] point from an earlier chapter",
		"unrelated raw point",
		"[Chapter 2] the rewritten point",
	}
	if !reflect.DeepEqual(w.PlotPoints, want) {
		t.Errorf("plot points = %v, want %v", w.PlotPoints, want)
	}
}

func TestConsolidateChapterSurvivesSummaryFailure(t *testing.T) {
	// Summary pass fails on transport; merge must still run. Reduction skips
	// because no summary exists, and the buffer stays intact for a retry.
	e, client := newTestEngine(
		agent.ScriptedResponse{Err: errTransport()},
		agent.ScriptedResponse{Content: `{"characters": {"王": "勇敢的少年"}, "settings": {}, "terminology": {}, "changes_log": []}`},
	)
	project := completedProject()
	w := project.WorldBuilding

	e.ConsolidateChapter(context.Background(), project, 0)

	if client.CallCount() != 2 {
		t.Errorf("calls = %d, want 2 (summary + merge)", client.CallCount())
	}
	if _, ok := w.ChapterPlotSummaries[0]; ok {
		t.Error("summary stored despite failure")
	}
	if len(w.CurrentChapterPlotPoints) == 0 {
		t.Error("buffer cleared despite summary failure")
	}
}

func TestChapterTag(t *testing.T) {
	if got := ChapterTag(0); got != "[Chapter 1]" {
		t.Errorf("ChapterTag(0) = %q", got)
	}
	if got := ChapterTag(9); got != "[Chapter 10]" {
		t.Errorf("ChapterTag(9) = %q", got)
	}
	if !strings.HasPrefix(ChapterTag(2)+" point", "[Chapter 3] ") {
		t.Error("tagged point formatting broken")
	}
}
