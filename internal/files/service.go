package files

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// sniffLen is how many leading bytes are peeked for content-type detection.
const sniffLen = 3072

// ServiceConfig carries the tunables of the file service.
type ServiceConfig struct {
	// MaxSizeBytes caps the stored size of a single upload.
	MaxSizeBytes int64

	// Retention is how long an object stays servable after upload.
	Retention time.Duration

	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// Service provides application-level file operations
type Service struct {
	storage   BlobStorage
	index     MetadataIndex
	maxSize   int64
	retention time.Duration
	now       func() time.Time
}

// NewService creates a new file service
func NewService(storage BlobStorage, index MetadataIndex, cfg ServiceConfig) *Service {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		storage:   storage,
		index:     index,
		maxSize:   cfg.MaxSizeBytes,
		retention: cfg.Retention,
		now:       now,
	}
}

// UploadRequest represents a file upload request
type UploadRequest struct {
	Name     string
	MimeType string
	Content  io.Reader
}

// Upload streams a file into storage and commits its metadata record.
// The blob is published before the record; if the metadata commit fails,
// the blob is deleted again so no orphaned bytes remain.
func (s *Service) Upload(req *UploadRequest) (*File, error) {
	if req.Content == nil {
		return nil, ErrNoFile
	}

	content := bufio.NewReaderSize(req.Content, sniffLen)
	mimeType := req.MimeType
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = detectMimeType(content)
	}

	key := s.newStorageKey(req.Name)

	size, err := s.storage.Save(key, &cappedReader{r: content, max: s.maxSize})
	if err != nil {
		if errors.Is(err, ErrTooLarge) {
			return nil, ErrTooLarge
		}
		return nil, fmt.Errorf("failed to save file: %w", err)
	}

	file := File{
		ID:           key,
		OriginalName: req.Name,
		MimeType:     mimeType,
		SizeBytes:    size,
		CreatedAt:    s.now(),
	}

	if err := s.index.Upsert(file); err != nil {
		// Clean up the blob if the metadata commit fails.
		if delErr := s.storage.Delete(key); delErr != nil {
			slog.Error("failed to clean up blob after index failure", "key", key, "error", delErr)
		}
		return nil, fmt.Errorf("failed to save file metadata: %w", err)
	}

	return &file, nil
}

// Resolve returns the record for id. Unknown ids and records past the
// retention window both resolve to ErrNotFound; expired objects stop being
// servable at the deadline even before the next sweep deletes them.
func (s *Service) Resolve(id string) (*File, error) {
	file, ok := s.index.Get(id)
	if !ok || s.expired(file) {
		return nil, ErrNotFound
	}
	return &file, nil
}

// Open resolves id and returns its record together with the blob content.
func (s *Service) Open(id string) (*File, io.ReadCloser, error) {
	file, err := s.Resolve(id)
	if err != nil {
		return nil, nil, err
	}

	content, err := s.storage.Open(file.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("failed to open file content: %w", err)
	}
	return file, content, nil
}

// Sweep runs one garbage collection cycle: every record past the retention
// window is removed together with its blob. Blob deletion is best-effort;
// the snapshot is rewritten once per sweep. Returns the number of objects
// removed and the bytes reclaimed.
func (s *Service) Sweep() (int, int64, error) {
	var reclaimed int64

	removed, err := s.index.Prune(s.expired, func(file File) {
		if err := s.storage.Delete(file.ID); err != nil {
			slog.Error("failed to delete expired blob", "key", file.ID, "error", err)
			return
		}
		reclaimed += file.SizeBytes
	})
	if err != nil {
		return removed, reclaimed, fmt.Errorf("failed to prune metadata index: %w", err)
	}
	return removed, reclaimed, nil
}

func (s *Service) expired(file File) bool {
	return s.now().Sub(file.CreatedAt) > s.retention
}

// newStorageKey builds a key unique under concurrent uploads: upload time in
// millis, a random component, and the sanitized filename for operator
// readability. The sanitized name is display data, never a trusted path.
func (s *Service) newStorageKey(name string) string {
	random := strings.SplitN(uuid.NewString(), "-", 2)[0]
	return fmt.Sprintf("%d-%s-%s", s.now().UnixMilli(), random, sanitizeName(name))
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// sanitizeName makes a filename safe to embed in a storage key: whitespace
// runs collapse to underscores and path separators are dropped.
func sanitizeName(name string) string {
	name = strings.ReplaceAll(name, "/", "")
	name = strings.ReplaceAll(name, `\`, "")
	name = whitespaceRe.ReplaceAllString(name, "_")
	if name == "" || name == "." || name == ".." {
		return "file"
	}
	return name
}

// detectMimeType sniffs the content type from the buffered head of the
// stream without consuming it.
func detectMimeType(content *bufio.Reader) string {
	head, err := content.Peek(sniffLen)
	if err != nil && !errors.Is(err, io.EOF) {
		return "application/octet-stream"
	}
	return mimetype.Detect(head).String()
}

// cappedReader fails the copy once more than max bytes have been read, so an
// oversize upload is rejected mid-stream instead of being buffered whole.
type cappedReader struct {
	r    io.Reader
	max  int64
	read int64
}

func (cr *cappedReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	cr.read += int64(n)
	if cr.read > cr.max {
		return n, ErrTooLarge
	}
	return n, err
}
