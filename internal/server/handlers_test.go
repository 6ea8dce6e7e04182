package server

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/droplink/droplink/internal/files"
	"github.com/droplink/droplink/internal/fs"
	"github.com/droplink/droplink/internal/jsonindex"
)

func newTestHandler(t *testing.T, cfg *Config) http.Handler {
	t.Helper()

	storage, err := fs.NewStorage(t.TempDir())
	require.NoError(t, err)
	index, err := jsonindex.NewIndex(filepath.Join(t.TempDir(), "metadata.json"))
	require.NoError(t, err)

	svc := files.NewService(storage, index, files.ServiceConfig{
		MaxSizeBytes: cfg.MaxUploadSize,
		Retention:    cfg.Retention,
	})
	return newRouter(cfg, svc)
}

func multipartBody(t *testing.T, fieldName, fileName, content string) (*bytes.Buffer, string) {
	t.Helper()

	body := new(bytes.Buffer)
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile(fieldName, fileName)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func TestHealthz(t *testing.T) {
	req := httptest.NewRequest("GET", "/healthz", nil)
	rr := httptest.NewRecorder()
	http.HandlerFunc(healthz).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestUploadNoFileField(t *testing.T) {
	handler := newTestHandler(t, &Config{MaxUploadSize: 1024, Retention: time.Minute})

	body, contentType := multipartBody(t, "attachment", "x.txt", "data")
	req := httptest.NewRequest("POST", "/upload", body)
	req.Header.Set("Content-Type", contentType)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.JSONEq(t, `{"error":"No file uploaded"}`, rr.Body.String())
}

func TestUploadNotMultipart(t *testing.T) {
	handler := newTestHandler(t, &Config{MaxUploadSize: 1024, Retention: time.Minute})

	req := httptest.NewRequest("POST", "/upload", strings.NewReader("raw body"))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestUploadOverCap(t *testing.T) {
	handler := newTestHandler(t, &Config{MaxUploadSize: 16, Retention: time.Minute})

	body, contentType := multipartBody(t, "file", "big.bin", strings.Repeat("a", 100))
	req := httptest.NewRequest("POST", "/upload", body)
	req.Header.Set("Content-Type", contentType)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	assert.JSONEq(t, `{"error":"File too large"}`, rr.Body.String())
}

func TestUploadDeclaredLengthOverCap(t *testing.T) {
	handler := newTestHandler(t, &Config{MaxUploadSize: 16, Retention: time.Minute})

	req := httptest.NewRequest("POST", "/upload", strings.NewReader(""))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=x")
	req.ContentLength = 16 + uploadOverhead + 1

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}

func TestUnknownIDRoutes(t *testing.T) {
	handler := newTestHandler(t, &Config{MaxUploadSize: 1024, Retention: time.Minute})

	tests := []struct {
		name     string
		path     string
		wantJSON bool
	}{
		{name: "api metadata", path: "/api/file/unknown", wantJSON: true},
		{name: "raw file", path: "/files/unknown", wantJSON: true},
		{name: "download", path: "/files/unknown/download", wantJSON: true},
		{name: "share page", path: "/file/unknown", wantJSON: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tt.path, nil)
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			assert.Equal(t, http.StatusNotFound, rr.Code)
			if tt.wantJSON {
				assert.JSONEq(t, `{"error":"File not found"}`, rr.Body.String())
			} else {
				assert.Contains(t, rr.Body.String(), "File not found")
			}
		})
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{bytes: 0, want: "0 Bytes"},
		{bytes: 10, want: "10.00 Bytes"},
		{bytes: 1023, want: "1023.00 Bytes"},
		{bytes: 1024, want: "1.00 KB"},
		{bytes: 1536, want: "1.50 KB"},
		{bytes: 10 * 1024 * 1024, want: "10.00 MB"},
		{bytes: 5 << 30, want: "5.00 GB"},
		{bytes: 2 << 40, want: "2.00 TB"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, formatBytes(tt.bytes))
		})
	}
}

func TestRequestScheme(t *testing.T) {
	req := httptest.NewRequest("GET", "http://example.com/", nil)
	assert.Equal(t, "http", requestScheme(req))

	req.Header.Set("X-Forwarded-Proto", "https")
	assert.Equal(t, "https", requestScheme(req))

	tlsReq := httptest.NewRequest("GET", "https://example.com/", nil)
	assert.Equal(t, "https", requestScheme(tlsReq))
}

func TestDerivedURLsUseRequestHost(t *testing.T) {
	req := httptest.NewRequest("GET", "http://droplink.example:8080/upload", nil)

	assert.Equal(t, "http://droplink.example:8080/files/abc", fileURL(req, "abc"))
	assert.Equal(t, "http://droplink.example:8080/file/abc", shareURL(req, "abc"))
}
