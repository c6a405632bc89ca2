package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileSystem stores blobs as plain files under a single base directory.
// Every relative path is resolved through resolve, which rejects anything
// that would land outside the base.
type FileSystem struct {
	baseDir string
}

func NewFileSystem(baseDir string) *FileSystem {
	return &FileSystem{baseDir: baseDir}
}

// resolve maps a relative store path to an absolute filesystem path,
// rejecting absolute inputs and anything that escapes the base directory.
func (fs *FileSystem) resolve(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("empty path")
	}
	cleaned := filepath.Clean(path)
	if !filepath.IsLocal(cleaned) {
		return "", fmt.Errorf("path %q escapes the store", path)
	}
	return filepath.Join(fs.baseDir, cleaned), nil
}

// Save writes atomically: data lands in a temp file in the target directory
// and is renamed into place, so a crash mid-write never corrupts an existing
// snapshot.
func (fs *FileSystem) Save(ctx context.Context, path string, data []byte) error {
	fullPath, err := fs.resolve(path)
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}

	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(fullPath)+".tmp*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("setting permissions: %w", err)
	}

	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replacing file: %w", err)
	}

	return nil
}

func (fs *FileSystem) Load(ctx context.Context, path string) ([]byte, error) {
	fullPath, err := fs.resolve(path)
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}

	data, err := os.ReadFile(fullPath)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}

	return data, nil
}

// ListDir returns the names of regular files directly under dir whose name
// ends in ext, sorted. A directory that does not exist yet lists as empty
// rather than erroring, so a fresh store needs no priming.
func (fs *FileSystem) ListDir(ctx context.Context, dir, ext string) ([]string, error) {
	fullDir, err := fs.resolve(dir)
	if err != nil {
		return nil, fmt.Errorf("invalid directory: %w", err)
	}

	entries, err := os.ReadDir(fullDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if ext != "" && !strings.HasSuffix(entry.Name(), ext) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

func (fs *FileSystem) Exists(ctx context.Context, path string) bool {
	fullPath, err := fs.resolve(path)
	if err != nil {
		return false
	}

	info, err := os.Stat(fullPath)
	return err == nil && !info.IsDir()
}

func (fs *FileSystem) Delete(ctx context.Context, path string) error {
	fullPath, err := fs.resolve(path)
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}

	if err := os.Remove(fullPath); err != nil {
		return fmt.Errorf("deleting file: %w", err)
	}

	return nil
}
