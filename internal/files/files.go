package files

import (
	"errors"
	"io"
	"time"
)

// File is the metadata record of one shared object. The ID doubles as the
// storage key in the blob store.
type File struct {
	ID           string    `json:"id"`
	OriginalName string    `json:"originalName"`
	MimeType     string    `json:"mimeType"`
	SizeBytes    int64     `json:"sizeBytes"`
	CreatedAt    time.Time `json:"createdAt"`
}

var (
	// ErrNotFound is returned for ids that were never uploaded or have
	// already been swept.
	ErrNotFound = errors.New("file not found")

	// ErrNoFile is returned when an upload carries no file part.
	ErrNoFile = errors.New("no file provided")

	// ErrTooLarge is returned when an upload exceeds the configured cap.
	ErrTooLarge = errors.New("file too large")
)

// BlobStorage defines the interface for the physical byte store.
type BlobStorage interface {
	// Save streams content to durable storage under key and returns the
	// number of bytes written. A failed save must leave nothing behind.
	Save(key string, content io.Reader) (int64, error)

	// Open returns a reader for the stored bytes, or ErrNotFound.
	Open(key string) (io.ReadCloser, error)

	// Delete removes the blob. Deleting a missing key is not an error.
	Delete(key string) error
}

// MetadataIndex defines the interface for the persisted id -> record mapping.
// Implementations must serialize all mutations through a single lock.
type MetadataIndex interface {
	Get(id string) (File, bool)
	Upsert(file File) error
	Remove(id string) error

	// Prune removes every record for which expired returns true, calling
	// onRemove for each victim before it is dropped from the mapping, and
	// persists the mapping once at the end if anything was removed.
	// It returns the number of records removed.
	Prune(expired func(File) bool, onRemove func(File)) (int, error)
}
