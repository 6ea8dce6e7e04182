package fs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/droplink/droplink/internal/files"
)

const tempDirName = ".tmp"

// Storage implements files.BlobStorage on the local filesystem. Blobs are
// written to a temp directory first and renamed into place, so a key is
// never visible to readers until its bytes are complete.
type Storage struct {
	dataDir string
}

// NewStorage creates the data and temp directories if needed.
func NewStorage(dataDir string) (*Storage, error) {
	if err := os.MkdirAll(filepath.Join(dataDir, tempDirName), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &Storage{dataDir: dataDir}, nil
}

// Save streams content into a temp file and atomically publishes it under
// key. On any error the temp file is removed and the key stays absent.
// Saving over an existing key is refused so a colliding key can never
// silently overwrite another object's bytes.
func (s *Storage) Save(key string, content io.Reader) (int64, error) {
	if err := validateKey(key); err != nil {
		return 0, err
	}

	finalPath := filepath.Join(s.dataDir, key)
	if _, err := os.Stat(finalPath); err == nil {
		return 0, fmt.Errorf("storage key %q already exists", key)
	}

	tmp, err := os.CreateTemp(filepath.Join(s.dataDir, tempDirName), "upload-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	size, err := io.Copy(tmp, content)
	if err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to write file content: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to publish file: %w", err)
	}

	return size, nil
}

// Open returns a reader for the blob content.
func (s *Storage) Open(key string) (io.ReadCloser, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	f, err := os.Open(filepath.Join(s.dataDir, key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, files.ErrNotFound
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return f, nil
}

// Delete removes the blob. Idempotent: a missing key is not an error.
func (s *Storage) Delete(key string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	if err := os.Remove(filepath.Join(s.dataDir, key)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// Size returns the byte length of the stored blob.
func (s *Storage) Size(key string) (int64, error) {
	if err := validateKey(key); err != nil {
		return 0, err
	}

	info, err := os.Stat(filepath.Join(s.dataDir, key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, files.ErrNotFound
		}
		return 0, fmt.Errorf("failed to stat file: %w", err)
	}
	return info.Size(), nil
}

// validateKey rejects keys that could escape the data directory. Keys are
// generated server-side, so a failure here indicates a bug or a forged URL.
func validateKey(key string) error {
	if key == "" {
		return errors.New("empty storage key")
	}
	if strings.ContainsAny(key, `/\`) || strings.Contains(key, "..") {
		return fmt.Errorf("invalid storage key %q", key)
	}
	return nil
}
