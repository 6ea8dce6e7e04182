package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/droplink/droplink/internal/files"
)

// uploadOverhead is slack added to the size cap for multipart framing when
// checking the declared Content-Length. The cap itself is enforced on the
// file stream while it is written.
const uploadOverhead = 1 << 20

type uploadResponse struct {
	Message  string `json:"message"`
	ID       string `json:"id"`
	ShareURL string `json:"shareUrl"`
	FileURL  string `json:"fileUrl"`
}

type fileMetaResponse struct {
	files.File
	FileURL  string `json:"fileUrl"`
	ShareURL string `json:"shareUrl"`
}

func uploadFile(cfg *Config, fileService *files.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > cfg.MaxUploadSize+uploadOverhead {
			writeError(w, http.StatusRequestEntityTooLarge, "File too large")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxUploadSize+uploadOverhead)

		mr, err := r.MultipartReader()
		if err != nil {
			writeError(w, http.StatusBadRequest, "No file uploaded")
			return
		}

		// Stream parts until the file field shows up; nothing is buffered.
		var result *files.File
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				writeError(w, http.StatusBadRequest, "No file uploaded")
				return
			}
			if part.FormName() != "file" {
				part.Close()
				continue
			}

			result, err = fileService.Upload(&files.UploadRequest{
				Name:     part.FileName(),
				MimeType: part.Header.Get("Content-Type"),
				Content:  part,
			})
			part.Close()
			if err != nil {
				var maxBytesErr *http.MaxBytesError
				switch {
				case errors.Is(err, files.ErrTooLarge) || errors.As(err, &maxBytesErr):
					writeError(w, http.StatusRequestEntityTooLarge, "File too large")
				case errors.Is(err, files.ErrNoFile):
					writeError(w, http.StatusBadRequest, "No file uploaded")
				default:
					slog.Error("upload failed", "error", err, "filename", part.FileName())
					writeError(w, http.StatusInternalServerError, "Internal server error")
				}
				return
			}
			break
		}

		if result == nil {
			writeError(w, http.StatusBadRequest, "No file uploaded")
			return
		}

		writeJSON(w, http.StatusOK, uploadResponse{
			Message:  "Upload successful",
			ID:       result.ID,
			ShareURL: shareURL(r, result.ID),
			FileURL:  fileURL(r, result.ID),
		})
	}
}

func fileMeta(fileService *files.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")

		file, err := fileService.Resolve(id)
		if err != nil {
			writeError(w, http.StatusNotFound, "File not found")
			return
		}

		writeJSON(w, http.StatusOK, fileMetaResponse{
			File:     *file,
			FileURL:  fileURL(r, file.ID),
			ShareURL: shareURL(r, file.ID),
		})
	}
}

// serveFile streams the blob inline with its recorded content type, used by
// the share page previews.
func serveFile(fileService *files.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.PathValue("key")

		file, content, err := fileService.Open(key)
		if err != nil {
			writeError(w, http.StatusNotFound, "File not found")
			return
		}
		defer content.Close()

		w.Header().Set("Content-Type", file.MimeType)
		w.Header().Set("Content-Length", fmt.Sprintf("%d", file.SizeBytes))
		w.WriteHeader(http.StatusOK)
		if _, err := io.Copy(w, content); err != nil {
			slog.Error("failed to stream file", "error", err, "key", key)
		}
	}
}

// downloadFile streams the blob with a forced attachment disposition, the
// filename restored to the original regardless of the storage key.
func downloadFile(fileService *files.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.PathValue("key")

		file, content, err := fileService.Open(key)
		if err != nil {
			writeError(w, http.StatusNotFound, "File not found")
			return
		}
		defer content.Close()

		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", file.OriginalName))
		w.Header().Set("Content-Length", fmt.Sprintf("%d", file.SizeBytes))
		w.WriteHeader(http.StatusOK)
		if _, err := io.Copy(w, content); err != nil {
			slog.Error("failed to stream download", "error", err, "key", key)
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// fileURL and shareURL are derived from the request's own scheme and host on
// every read; they are never persisted.
func fileURL(r *http.Request, id string) string {
	return fmt.Sprintf("%s://%s/files/%s", requestScheme(r), r.Host, url.PathEscape(id))
}

func shareURL(r *http.Request, id string) string {
	return fmt.Sprintf("%s://%s/file/%s", requestScheme(r), r.Host, url.PathEscape(id))
}

func requestScheme(r *http.Request) string {
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		return proto
	}
	if r.TLS != nil {
		return "https"
	}
	return "http"
}
