// Package storage persists project snapshots under a sandboxed base
// directory. All paths are relative to the base and validated against
// traversal before any filesystem access.
package storage

import "context"

type Storage interface {
	Save(ctx context.Context, path string, data []byte) error
	Load(ctx context.Context, path string) ([]byte, error)
	ListDir(ctx context.Context, dir, ext string) ([]string, error)
	Exists(ctx context.Context, path string) bool
	Delete(ctx context.Context, path string) error
}
