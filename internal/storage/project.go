package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"novelforge/internal/novel"
)

// ProjectStore persists project snapshots as JSON files under
// projects/<id>.json. The snapshot is the project aggregate itself, which
// carries no credentials or API configuration by construction.
type ProjectStore struct {
	store Storage
}

func NewProjectStore(store Storage) *ProjectStore {
	return &ProjectStore{store: store}
}

func projectPath(id string) string {
	return filepath.Join("projects", id+".json")
}

func (ps *ProjectStore) Save(ctx context.Context, project *novel.Project) error {
	if strings.TrimSpace(project.ID) == "" {
		return fmt.Errorf("project has no ID")
	}
	data, err := json.MarshalIndent(project, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding project: %w", err)
	}
	if err := ps.store.Save(ctx, projectPath(project.ID), data); err != nil {
		return fmt.Errorf("saving project %s: %w", project.ID, err)
	}
	return nil
}

func (ps *ProjectStore) Load(ctx context.Context, id string) (*novel.Project, error) {
	data, err := ps.store.Load(ctx, projectPath(id))
	if err != nil {
		return nil, fmt.Errorf("loading project %s: %w", id, err)
	}
	var project novel.Project
	if err := json.Unmarshal(data, &project); err != nil {
		return nil, fmt.Errorf("decoding project %s: %w", id, err)
	}
	if project.WorldBuilding == nil {
		project.WorldBuilding = novel.NewWorldBuilding()
	}
	return &project, nil
}

// List returns the IDs of all stored projects, sorted.
func (ps *ProjectStore) List(ctx context.Context) ([]string, error) {
	names, err := ps.store.ListDir(ctx, "projects", ".json")
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(names))
	for _, name := range names {
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	return ids, nil
}

func (ps *ProjectStore) Exists(ctx context.Context, id string) bool {
	return ps.store.Exists(ctx, projectPath(id))
}

func (ps *ProjectStore) Delete(ctx context.Context, id string) error {
	return ps.store.Delete(ctx, projectPath(id))
}

// ExportManuscript renders the completed prose as plain text under
// exports/<slug>_<shortid>.txt and returns the relative path.
func (ps *ProjectStore) ExportManuscript(ctx context.Context, project *novel.Project) (string, error) {
	var sb strings.Builder
	sb.WriteString(project.Title)
	sb.WriteString("\n\n")
	for i := range project.Chapters {
		ch := &project.Chapters[i]
		fmt.Fprintf(&sb, "Chapter %d: %s\n\n", i+1, ch.Title)
		for j := range ch.Paragraphs {
			if ch.Paragraphs[j].Content == "" {
				continue
			}
			sb.WriteString(ch.Paragraphs[j].Content)
			sb.WriteString("\n\n")
		}
	}

	shortID := project.ID
	if len(shortID) > 8 {
		shortID = shortID[:8]
	}
	path := filepath.Join("exports", fmt.Sprintf("%s_%s.txt", slugify(project.Title, 30), shortID))
	if err := ps.store.Save(ctx, path, []byte(sb.String())); err != nil {
		return "", fmt.Errorf("exporting manuscript: %w", err)
	}
	return path, nil
}

// slugify converts a title to a safe filename component.
func slugify(s string, maxLen int) string {
	s = strings.ToLower(strings.TrimSpace(s))

	var sb strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
		case r == ' ', r == '/', r == '\\', r == ':', r == '.', r == '_', r == '-':
			sb.WriteRune('-')
		}
	}
	s = sb.String()

	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "-")
	}
	s = strings.Trim(s, "-")

	if len(s) > maxLen {
		s = strings.TrimRight(s[:maxLen], "-")
	}
	if s == "" {
		s = "untitled"
	}
	return s
}
