// Package jsonindex persists the file metadata mapping as a single JSON
// snapshot. Every mutation re-reads and rewrites the whole snapshot, so all
// mutating operations are serialized through one mutex; an upload racing the
// garbage collector would otherwise lose updates under read-modify-write.
package jsonindex

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/droplink/droplink/internal/files"
)

// Index implements files.MetadataIndex with a snapshot file on disk.
type Index struct {
	path string
	mu   sync.Mutex
}

// NewIndex creates an index backed by the snapshot at path. The snapshot is
// created lazily on the first mutation.
func NewIndex(path string) (*Index, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}
	return &Index{path: path}, nil
}

// Load returns the full mapping. A missing, empty, or corrupt snapshot
// yields an empty mapping; corruption is logged, not fatal.
func (ix *Index) Load() map[string]files.File {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.load()
}

// Get returns the record for id, if present.
func (ix *Index) Get(id string) (files.File, bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	file, ok := ix.load()[id]
	return file, ok
}

// Upsert stores the record under its id.
func (ix *Index) Upsert(file files.File) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	m := ix.load()
	m[file.ID] = file
	return ix.save(m)
}

// Remove deletes the record for id. Removing a missing id is not an error.
func (ix *Index) Remove(id string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	m := ix.load()
	if _, ok := m[id]; !ok {
		return nil
	}
	delete(m, id)
	return ix.save(m)
}

// Prune removes every record matching expired, calling onRemove for each
// victim before dropping it, and rewrites the snapshot once at the end.
// The lock is held for the whole cycle so no upload can interleave.
func (ix *Index) Prune(expired func(files.File) bool, onRemove func(files.File)) (int, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	m := ix.load()
	removed := 0
	for id, file := range m {
		if !expired(file) {
			continue
		}
		if onRemove != nil {
			onRemove(file)
		}
		delete(m, id)
		removed++
	}

	if removed == 0 {
		return 0, nil
	}
	return removed, ix.save(m)
}

// load reads the snapshot without locking; callers hold ix.mu.
func (ix *Index) load() map[string]files.File {
	raw, err := os.ReadFile(ix.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("metadata snapshot unreadable, starting empty", "path", ix.path, "error", err)
		}
		return map[string]files.File{}
	}
	if len(raw) == 0 {
		return map[string]files.File{}
	}

	var m map[string]files.File
	if err := json.Unmarshal(raw, &m); err != nil {
		slog.Warn("metadata snapshot corrupt, starting empty", "path", ix.path, "error", err)
		return map[string]files.File{}
	}
	return m
}

// save atomically replaces the snapshot: write a temp file next to it, sync,
// rename. A crash mid-write leaves the previous snapshot intact.
func (ix *Index) save(m map[string]files.File) error {
	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode metadata snapshot: %w", err)
	}

	dir := filepath.Dir(ix.path)
	tmp, err := os.CreateTemp(dir, "index-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create snapshot temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write metadata snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync metadata snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close metadata snapshot: %w", err)
	}

	if err := os.Rename(tmpPath, ix.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace metadata snapshot: %w", err)
	}
	return nil
}
