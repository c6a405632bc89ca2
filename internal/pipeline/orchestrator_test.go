package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"novelforge/internal/agent"
	"novelforge/internal/core"
	"novelforge/internal/generation"
	"novelforge/internal/knowledge"
	"novelforge/internal/novel"
)

func newTestOrchestrator(project *novel.Project, responses ...agent.ScriptedResponse) (*Orchestrator, *agent.ScriptedClient, *[]Event) {
	client := agent.NewScriptedClient(responses...)
	gen := generation.NewGenerator(client)
	kb := knowledge.NewEngine(gen)

	var events []Event
	orch := NewOrchestrator(project, gen, kb, WithProgress(func(ev Event) {
		events = append(events, ev)
	}))
	return orch, client, &events
}

func projectWithChapter(paragraphs int) *novel.Project {
	project := novel.NewProject("The Fall", "tragedy")
	ch := novel.Chapter{
		Title:   "The Storm",
		Summary: "a storm nearly sinks the ship",
		Outline: map[string]any{"beats": []any{"storm hits", "rescue"}},
	}
	for i := 0; i < paragraphs; i++ {
		ch.Paragraphs = append(ch.Paragraphs, novel.Paragraph{
			Order:   i + 1,
			Purpose: "advance the storm",
		})
	}
	project.Chapters = []novel.Chapter{ch}
	return project
}

func TestGenerateOutlineSeedsKnowledgeBase(t *testing.T) {
	outline := `{
		"title": "The Fall",
		"summary": "a tragedy at sea",
		"themes": ["hubris"],
		"main_characters": [{"name": "王", "desc": "勇敢的少年"}],
		"world_setting": "a drowned empire"
	}`
	project := novel.NewProject("The Fall", "tragedy")
	orch, client, events := newTestOrchestrator(project, agent.ScriptedResponse{Content: outline})

	obj, err := orch.GenerateOutline(context.Background(), "keep it grim")
	if err != nil {
		t.Fatal(err)
	}
	if obj["title"] != "The Fall" {
		t.Errorf("obj = %v", obj)
	}
	if !strings.Contains(project.Outline, "drowned empire") {
		t.Errorf("project outline not replaced: %q", project.Outline)
	}
	if got := project.WorldBuilding.Characters["王"]; got != "勇敢的少年" {
		t.Errorf("knowledge base not seeded: %v", project.WorldBuilding.Characters)
	}
	if got := project.WorldBuilding.Settings["overall world"]; got != "a drowned empire" {
		t.Errorf("world setting not seeded: %v", project.WorldBuilding.Settings)
	}

	if len(*events) != 1 || (*events)[0].Name != EventOutlineGenerated {
		t.Errorf("events = %+v", *events)
	}

	// The additional instruction must reach the prompt.
	calls := client.Calls()
	if !strings.Contains(calls[0][1].Content, "keep it grim") {
		t.Error("additional instructions not forwarded to the prompt")
	}
}

func TestDivideChaptersReplacesWholesale(t *testing.T) {
	resp := `{"chapters": [
		{"number": 1, "title": "The Storm", "summary": "a storm hits", "estimated_words": 3000},
		{"number": 2, "title": "The Calm", "summary": "aftermath", "estimated_words": 2500}
	]}`
	project := novel.NewProject("The Fall", "tragedy")
	project.Outline = `{"summary": "a tragedy at sea"}`
	project.Chapters = []novel.Chapter{{Title: "stale chapter"}}

	orch, _, events := newTestOrchestrator(project, agent.ScriptedResponse{Content: resp})

	chapters, err := orch.DivideChapters(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if len(chapters) != 2 || project.Chapters[0].Title != "The Storm" {
		t.Errorf("chapters = %+v", project.Chapters)
	}
	for i := range project.Chapters {
		if project.Chapters[i].Status != novel.StatusNotStarted {
			t.Errorf("chapter %d status = %v", i, project.Chapters[i].Status)
		}
	}
	if len(*events) != 1 || (*events)[0].Name != EventChaptersGenerated {
		t.Errorf("events = %+v", *events)
	}
}

func TestDivideChaptersEmptyResultPreservesPriorList(t *testing.T) {
	project := novel.NewProject("The Fall", "tragedy")
	project.Chapters = []novel.Chapter{{Title: "keep me"}}

	orch, _, _ := newTestOrchestrator(project,
		agent.ScriptedResponse{Content: `{"chapters": []}`})

	_, err := orch.DivideChapters(context.Background(), "")
	if !core.IsSemanticEmpty(err) {
		t.Fatalf("err = %v, want SemanticEmptyError", err)
	}
	var se *core.StageError
	if !errors.As(err, &se) || se.Stage != StageChapters {
		t.Errorf("err = %v, want StageError for chapters", err)
	}
	if len(project.Chapters) != 1 || project.Chapters[0].Title != "keep me" {
		t.Errorf("prior chapters corrupted: %+v", project.Chapters)
	}
}

func TestIndexRangeFailsBeforeAnyNetworkCall(t *testing.T) {
	project := projectWithChapter(2)
	orch, client, _ := newTestOrchestrator(project)

	tests := []struct {
		name string
		call func() error
	}{
		{"chapter outline", func() error { _, err := orch.GenerateChapterOutline(context.Background(), 5); return err }},
		{"paragraphs", func() error { _, err := orch.DivideParagraphs(context.Background(), -1); return err }},
		{"writing bad chapter", func() error { _, err := orch.WriteParagraph(context.Background(), 9, 0, ""); return err }},
		{"writing bad paragraph", func() error { _, err := orch.WriteParagraph(context.Background(), 0, 7, ""); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			var ire *core.IndexRangeError
			if !errors.As(err, &ire) {
				t.Fatalf("err = %v, want IndexRangeError", err)
			}
			if core.IsRetryable(err) {
				t.Error("index range errors must not be retryable")
			}
		})
	}
	if client.CallCount() != 0 {
		t.Errorf("calls = %d, want 0", client.CallCount())
	}
}

func TestWriteParagraphFailurePreservesPriorState(t *testing.T) {
	project := projectWithChapter(1)
	project.Chapters[0].Paragraphs[0].Content = "prior prose"
	project.Chapters[0].Paragraphs[0].Status = novel.StatusCompleted

	orch, _, _ := newTestOrchestrator(project,
		agent.ScriptedResponse{Err: &core.TransportError{Provider: "openai", Err: core.ErrServerError}})

	_, err := orch.WriteParagraph(context.Background(), 0, 0, "")
	if err == nil {
		t.Fatal("expected error")
	}
	var se *core.StageError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want StageError", err)
	}
	if se.Stage != StageWriting || se.Chapter != 0 || se.Paragraph != 0 {
		t.Errorf("coordinates = %s/%d/%d", se.Stage, se.Chapter, se.Paragraph)
	}

	p := project.Chapters[0].Paragraphs[0]
	if p.Content != "prior prose" || p.Status != novel.StatusCompleted {
		t.Errorf("prior state corrupted: %+v", p)
	}
}

func TestWriteParagraphEmptyContentIsSemanticEmpty(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{"empty content", `{"content": "", "word_count": 0}`},
		{"whitespace-only content", `{"content": "   \n\t  ", "word_count": 0}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			project := projectWithChapter(1)
			orch, client, _ := newTestOrchestrator(project,
				agent.ScriptedResponse{Content: tt.response})

			_, err := orch.WriteParagraph(context.Background(), 0, 0, "")
			if !core.IsSemanticEmpty(err) {
				t.Fatalf("err = %v, want SemanticEmptyError", err)
			}
			p := project.Chapters[0].Paragraphs[0]
			if p.Status == novel.StatusCompleted {
				t.Error("paragraph completed with empty content")
			}
			if p.Content != "" {
				t.Errorf("content = %q, want untouched", p.Content)
			}

			// The empty write must not cascade: no ingestion, no chapter
			// completion, no consolidation.
			if project.Chapters[0].Status == novel.StatusCompleted {
				t.Error("chapter completed off an empty paragraph")
			}
			if client.CallCount() != 1 {
				t.Errorf("calls = %d, want 1 (writing only)", client.CallCount())
			}
		})
	}
}

func TestChapterCompletionTriggersConsolidationOnce(t *testing.T) {
	project := projectWithChapter(2)
	orch, client, events := newTestOrchestrator(project,
		// paragraph 1: writing + ingestion
		agent.ScriptedResponse{Content: `{"content": "The storm rose over the harbor.", "word_count": 6}`},
		agent.ScriptedResponse{Content: `{"plot_points": ["the storm rises"]}`},
		// paragraph 2: writing + ingestion
		agent.ScriptedResponse{Content: `{"content": "王 lashed himself to the mast.", "word_count": 6}`},
		agent.ScriptedResponse{Content: `{"new_characters": [{"name": "王", "desc": "a sailor"}], "plot_points": ["王 fights the storm"]}`},
		// consolidation: summary, merge, reduction
		agent.ScriptedResponse{Content: `{"summary": "A storm nearly sinks the ship.", "characters_involved": ["王"], "settings_involved": []}`},
		agent.ScriptedResponse{Content: `{"characters": {}, "settings": {}, "terminology": {}, "changes_log": []}`},
		agent.ScriptedResponse{Content: `{"plot_points": ["王 survives the storm"]}`},
	)

	for i := 0; i < 2; i++ {
		if _, err := orch.WriteParagraph(context.Background(), 0, i, ""); err != nil {
			t.Fatalf("paragraph %d: %v", i, err)
		}
	}

	ch := &project.Chapters[0]
	if ch.Status != novel.StatusCompleted {
		t.Errorf("chapter status = %v, want completed", ch.Status)
	}
	for i := range ch.Paragraphs {
		p := &ch.Paragraphs[i]
		if p.Status != novel.StatusCompleted || p.Content == "" || p.WordCount == 0 {
			t.Errorf("paragraph %d not completed: %+v", i, p)
		}
	}

	w := project.WorldBuilding
	if _, ok := w.ChapterPlotSummaries[0]; !ok {
		t.Error("chapter summary missing after consolidation")
	}
	if len(w.CurrentChapterPlotPoints) != 0 {
		t.Errorf("buffer not empty after consolidation: %v", w.CurrentChapterPlotPoints)
	}
	if len(w.PlotPoints) != 1 || !strings.HasPrefix(w.PlotPoints[0], "[Chapter 1] ") {
		t.Errorf("plot points = %v", w.PlotPoints)
	}

	// 2 writing + 2 ingestion + 3 consolidation; consolidation must not
	// fire a second time.
	if client.CallCount() != 7 {
		t.Errorf("calls = %d, want 7", client.CallCount())
	}

	written := 0
	for _, ev := range *events {
		if ev.Name == EventParagraphWritten {
			written++
		}
	}
	if written != 2 {
		t.Errorf("paragraph_written events = %d, want 2", written)
	}
}

func TestWriteParagraphInjectsPreviousContent(t *testing.T) {
	project := projectWithChapter(3)
	project.Chapters[0].Paragraphs[0].Content = "First paragraph prose."
	project.Chapters[0].Paragraphs[0].Status = novel.StatusCompleted
	project.Chapters[0].Paragraphs[1].Content = "Second paragraph prose."
	project.Chapters[0].Paragraphs[1].Status = novel.StatusCompleted

	orch, client, _ := newTestOrchestrator(project,
		agent.ScriptedResponse{Content: `{"content": "Third paragraph prose.", "word_count": 3}`},
		agent.ScriptedResponse{Content: `{"plot_points": []}`},
	)

	if _, err := orch.WriteParagraph(context.Background(), 0, 2, "user reference text"); err != nil {
		t.Fatal(err)
	}

	prompt := client.Calls()[0][1].Content
	if !strings.Contains(prompt, "First paragraph prose.") || !strings.Contains(prompt, "Second paragraph prose.") {
		t.Error("prompt missing preceding paragraph content")
	}
	if !strings.Contains(prompt, "user reference text") {
		t.Error("prompt missing selected context")
	}
}

func TestCancellationCheckedBeforeStage(t *testing.T) {
	project := projectWithChapter(1)
	orch, client, _ := newTestOrchestrator(project,
		agent.ScriptedResponse{Content: `{"content": "never used"}`})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := orch.WriteParagraph(ctx, 0, 0, ""); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if client.CallCount() != 0 {
		t.Errorf("calls = %d, want 0", client.CallCount())
	}
}

func TestRunChapterDrivesOutlineParagraphsAndWriting(t *testing.T) {
	project := novel.NewProject("The Fall", "tragedy")
	project.Outline = `{"summary": "a tragedy at sea"}`
	project.Chapters = []novel.Chapter{{Title: "The Storm", Summary: "storm hits"}}

	orch, _, _ := newTestOrchestrator(project,
		agent.ScriptedResponse{Content: `{"outline": {"beats": ["storm", "rescue"]}}`},
		agent.ScriptedResponse{Content: `{"paragraphs": [{"number": 1, "purpose": "open the storm", "estimated_words": 300}]}`},
		agent.ScriptedResponse{Content: `{"content": "The storm rose.", "word_count": 3}`},
		agent.ScriptedResponse{Content: `{"plot_points": []}`},
		agent.ScriptedResponse{Content: `{"summary": "A storm.", "characters_involved": [], "settings_involved": []}`},
		agent.ScriptedResponse{Content: `{"plot_points": ["the storm"]}`},
	)

	if err := orch.RunChapter(context.Background(), 0); err != nil {
		t.Fatal(err)
	}

	ch := &project.Chapters[0]
	if len(ch.Outline) == 0 {
		t.Error("chapter outline not generated")
	}
	if len(ch.Paragraphs) != 1 || ch.Paragraphs[0].Status != novel.StatusCompleted {
		t.Errorf("paragraphs = %+v", ch.Paragraphs)
	}
	if ch.Status != novel.StatusCompleted {
		t.Errorf("chapter status = %v", ch.Status)
	}
}
