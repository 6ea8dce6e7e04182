package fs

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/droplink/droplink/internal/files"
)

func newTestStorage(t *testing.T) (*Storage, string) {
	t.Helper()
	dir := t.TempDir()
	storage, err := NewStorage(dir)
	require.NoError(t, err)
	return storage, dir
}

func TestSaveAndOpen(t *testing.T) {
	storage, _ := newTestStorage(t)

	size, err := storage.Save("key-1", strings.NewReader("hello world"))
	require.NoError(t, err)
	assert.Equal(t, int64(11), size)

	rc, err := storage.Open("key-1")
	require.NoError(t, err)
	defer rc.Close()

	content, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(content))
}

func TestSaveZeroBytes(t *testing.T) {
	storage, _ := newTestStorage(t)

	size, err := storage.Save("empty", strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, int64(0), size)

	rc, err := storage.Open("empty")
	require.NoError(t, err)
	defer rc.Close()

	content, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Empty(t, content)
}

func TestSaveRefusesExistingKey(t *testing.T) {
	storage, _ := newTestStorage(t)

	_, err := storage.Save("key-1", strings.NewReader("first"))
	require.NoError(t, err)

	_, err = storage.Save("key-1", strings.NewReader("second"))
	require.Error(t, err)

	// The original bytes are untouched.
	rc, err := storage.Open("key-1")
	require.NoError(t, err)
	defer rc.Close()
	content, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "first", string(content))
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("connection dropped")
}

func TestSaveFailureLeavesNothing(t *testing.T) {
	storage, dir := newTestStorage(t)

	_, err := storage.Save("key-1", io.MultiReader(strings.NewReader("partial"), failingReader{}))
	require.Error(t, err)

	_, err = storage.Open("key-1")
	assert.ErrorIs(t, err, files.ErrNotFound)

	// No temp file left behind either.
	entries, err := os.ReadDir(filepath.Join(dir, tempDirName))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestOpenMissingKey(t *testing.T) {
	storage, _ := newTestStorage(t)

	_, err := storage.Open("nope")
	assert.ErrorIs(t, err, files.ErrNotFound)
}

func TestDeleteIsIdempotent(t *testing.T) {
	storage, _ := newTestStorage(t)

	_, err := storage.Save("key-1", strings.NewReader("data"))
	require.NoError(t, err)

	require.NoError(t, storage.Delete("key-1"))
	require.NoError(t, storage.Delete("key-1"))
	require.NoError(t, storage.Delete("never-existed"))

	_, err = storage.Open("key-1")
	assert.ErrorIs(t, err, files.ErrNotFound)
}

func TestSize(t *testing.T) {
	storage, _ := newTestStorage(t)

	_, err := storage.Save("key-1", strings.NewReader("12345"))
	require.NoError(t, err)

	size, err := storage.Size("key-1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), size)

	_, err = storage.Size("missing")
	assert.ErrorIs(t, err, files.ErrNotFound)
}

func TestValidateKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{name: "plain key", key: "1700000000-abcd1234-report.pdf", wantErr: false},
		{name: "empty", key: "", wantErr: true},
		{name: "slash", key: "a/b", wantErr: true},
		{name: "backslash", key: `a\b`, wantErr: true},
		{name: "dotdot", key: "..secret", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateKey(tt.key)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
