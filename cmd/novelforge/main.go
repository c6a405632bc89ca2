// novelforge drives LLM-assisted novel generation: outline, chapter and
// paragraph division, prose writing, and a consistency knowledge base that
// is consolidated at every chapter boundary.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"novelforge/internal/agent"
	"novelforge/internal/config"
	"novelforge/internal/generation"
	"novelforge/internal/knowledge"
	"novelforge/internal/novel"
	"novelforge/internal/pipeline"
	"novelforge/internal/storage"
)

var (
	flagDataDir string
	flagVerbose bool
)

func main() {
	root := &cobra.Command{
		Use:           "novelforge",
		Short:         "Staged LLM novel generation with a consistency knowledge base",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if flagVerbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}
	root.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "override the data directory")
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newCmd(), runCmd(), statusCmd(), listCmd(), exportCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newProjectStore() (*storage.ProjectStore, error) {
	dataDir := flagDataDir
	if dataDir == "" {
		cfg, err := config.Load()
		if err != nil {
			return nil, err
		}
		dataDir = cfg.Paths.DataDir
	}
	return storage.NewProjectStore(storage.NewFileSystem(dataDir)), nil
}

func newCmd() *cobra.Command {
	var theme string
	cmd := &cobra.Command{
		Use:   "new <title>",
		Short: "Create a new novel project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := newProjectStore()
			if err != nil {
				return err
			}

			project := novel.NewProject(args[0], theme)
			if err := store.Save(cmd.Context(), project); err != nil {
				return err
			}
			fmt.Printf("Created project %s (%q)\n", project.ID, project.Title)
			return nil
		},
	}
	cmd.Flags().StringVarP(&theme, "theme", "t", "", "theme and style of the novel")
	return cmd
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <project-id>",
		Short: "Drive the full generation pipeline for a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			dataDir := flagDataDir
			if dataDir == "" {
				dataDir = cfg.Paths.DataDir
			}
			store := storage.NewProjectStore(storage.NewFileSystem(dataDir))

			project, err := store.Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			runErr := drive(ctx, cfg, project)

			// Persist whatever was produced, even on failure, so a rerun
			// resumes instead of starting over.
			if saveErr := store.Save(context.WithoutCancel(ctx), project); saveErr != nil {
				slog.Error("saving project snapshot failed", "error", saveErr)
				if runErr == nil {
					return saveErr
				}
			}
			if runErr != nil {
				return runErr
			}
			fmt.Printf("Project %s complete: %d chapters\n", project.ID, len(project.Chapters))
			return nil
		},
	}
	return cmd
}

// buildPipeline wires config into the transport, generator, knowledge engine
// and orchestrator stack.
func buildPipeline(cfg *config.Config, project *novel.Project, progress pipeline.ProgressFunc) *pipeline.Orchestrator {
	opts := []agent.Option{
		agent.WithRetry(cfg.Limits.MaxRetries),
		agent.WithTimeout(cfg.Limits.RequestTimeout),
		agent.WithRateLimit(cfg.Limits.RateLimit.RequestsPerMinute, cfg.Limits.RateLimit.BurstSize),
	}
	if p := cfg.AI.Planning; p != nil {
		opts = append(opts, agent.WithPlanningModel(agent.ProviderConfig{
			Provider: p.Provider,
			BaseURL:  p.BaseURL,
			Model:    p.Model,
			APIKey:   p.APIKey,
		}))
	}
	client := agent.NewClient(agent.ProviderConfig{
		Provider: cfg.AI.Main.Provider,
		BaseURL:  cfg.AI.Main.BaseURL,
		Model:    cfg.AI.Main.Model,
		APIKey:   cfg.AI.Main.APIKey,
	}, opts...)

	gen := generation.NewGenerator(client)
	kb := knowledge.NewEngine(gen)
	return pipeline.NewOrchestrator(project, gen, kb, pipeline.WithProgress(progress))
}

// drive runs the blocking pipeline in one goroutine and consumes progress
// events in another, so slow terminal output never delays a stage.
func drive(ctx context.Context, cfg *config.Config, project *novel.Project) error {
	events := make(chan pipeline.Event, 16)
	orch := buildPipeline(cfg, project, func(ev pipeline.Event) {
		events <- ev
	})

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for ev := range events {
			printEvent(ev)
		}
		return nil
	})
	g.Go(func() error {
		defer close(events)
		return orch.RunAll(ctx)
	})

	return g.Wait()
}

func printEvent(ev pipeline.Event) {
	switch ev.Name {
	case pipeline.EventOutlineGenerated:
		fmt.Println("outline generated")
	case pipeline.EventChaptersGenerated:
		fmt.Println("chapters divided")
	case pipeline.EventChapterOutlineGenerated:
		fmt.Printf("chapter %d: outline generated\n", ev.ChapterIndex+1)
	case pipeline.EventParagraphsGenerated:
		fmt.Printf("chapter %d: paragraphs divided\n", ev.ChapterIndex+1)
	case pipeline.EventParagraphWritten:
		fmt.Printf("chapter %d: paragraph %d written\n", ev.ChapterIndex+1, ev.ParagraphIndex+1)
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <project-id>",
		Short: "Print per-chapter and per-paragraph status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := newProjectStore()
			if err != nil {
				return err
			}
			project, err := store.Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			fmt.Printf("%s (%s)\n", project.Title, project.ID)
			if project.Outline == "" {
				fmt.Println("outline: not generated")
			} else {
				fmt.Println("outline: generated")
			}
			for i := range project.Chapters {
				ch := &project.Chapters[i]
				fmt.Printf("chapter %d [%s] %s\n", i+1, ch.Status, ch.Title)
				for j := range ch.Paragraphs {
					p := &ch.Paragraphs[j]
					fmt.Printf("  paragraph %d [%s] %d words\n", p.Order, p.Status, p.WordCount)
				}
			}
			return nil
		},
	}
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := newProjectStore()
			if err != nil {
				return err
			}
			ids, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			for _, id := range ids {
				project, err := store.Load(cmd.Context(), id)
				if err != nil {
					fmt.Printf("%s (unreadable: %v)\n", id, err)
					continue
				}
				fmt.Printf("%s  %s\n", id, project.Title)
			}
			return nil
		},
	}
}

func exportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <project-id>",
		Short: "Export the manuscript as plain text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := newProjectStore()
			if err != nil {
				return err
			}
			project, err := store.Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			path, err := store.ExportManuscript(cmd.Context(), project)
			if err != nil {
				return err
			}
			fmt.Println("exported to", path)
			return nil
		},
	}
}
