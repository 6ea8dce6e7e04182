package server

import (
	"fmt"
	"html/template"
	"log/slog"
	"math"
	"net/http"
	"strings"

	"github.com/droplink/droplink/internal/files"
)

type sharePageData struct {
	Name        string
	MimeType    string
	Size        string
	FileURL     string
	DownloadURL string
	IsImage     bool
	IsPDF       bool
}

// sharePage renders the human-facing page behind a share link. An unknown or
// expired id gets the not-found card; that is a terminal state, not an error.
func sharePage(fileService *files.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")

		file, err := fileService.Resolve(id)
		if err != nil {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.WriteHeader(http.StatusNotFound)
			if err := notFoundTmpl.Execute(w, nil); err != nil {
				slog.Error("failed to render not-found page", "error", err)
			}
			return
		}

		data := sharePageData{
			Name:        file.OriginalName,
			MimeType:    file.MimeType,
			Size:        formatBytes(file.SizeBytes),
			FileURL:     fileURL(r, file.ID),
			DownloadURL: "/files/" + file.ID + "/download",
			IsImage:     strings.HasPrefix(file.MimeType, "image/"),
			IsPDF:       file.MimeType == "application/pdf",
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		if err := sharePageTmpl.Execute(w, data); err != nil {
			slog.Error("failed to render share page", "error", err, "file_id", id)
		}
	}
}

// formatBytes renders a byte count with binary-prefix units and two decimal
// places, e.g. 10485760 -> "10.00 MB".
func formatBytes(bytes int64) string {
	if bytes == 0 {
		return "0 Bytes"
	}
	units := []string{"Bytes", "KB", "MB", "GB", "TB"}
	i := int(math.Floor(math.Log(float64(bytes)) / math.Log(1024)))
	if i >= len(units) {
		i = len(units) - 1
	}
	value := float64(bytes) / math.Pow(1024, float64(i))
	return fmt.Sprintf("%.2f %s", value, units[i])
}

var notFoundTmpl = template.Must(template.New("notfound").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8" />
  <title>File Not Found</title>
  <style>
    body {
      margin:0; display:flex; align-items:center; justify-content:center;
      min-height:100vh; background:#020617; color:#e5e7eb; font-family:system-ui;
    }
    .card {
      background:#0f172a; padding:24px 28px; border-radius:16px;
      border:1px solid rgba(148,163,184,0.5); max-width:400px; text-align:center;
    }
  </style>
</head>
<body>
  <div class="card">
    <h2>&#10060; File not found</h2>
    <p>The link may be incorrect or the file was removed.</p>
  </div>
</body>
</html>
`))

var sharePageTmpl = template.Must(template.New("share").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8" />
  <title>Download: {{.Name}}</title>
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <style>
    * { box-sizing:border-box; font-family:system-ui,-apple-system,"Segoe UI",sans-serif; }
    body {
      margin:0; min-height:100vh; display:flex; align-items:center; justify-content:center;
      background:#ffffff; color:#1f2937;
    }
    .card {
      background:#ffffff; border-radius:18px; padding:24px 24px 26px;
      width:100%; max-width:520px; border:1px solid #e5e7eb;
      box-shadow:0 12px 40px rgba(17,24,39,0.12);
    }
    h1 { margin:0 0 10px; font-size:1.15rem; font-weight:700; }
    .hero { text-align:center; margin-bottom:16px; }
    .hero-title { font-size:1.35rem; font-weight:800; margin:0 0 6px; }
    .brand-blue { color:#2563eb; }
    .text-black { color:#111827; }
    .hero-sub { font-size:0.85rem; color:#9ca3af; }
    .meta { font-size:0.9rem; color:#9ca3af; margin-bottom:16px; }
    .meta-row { margin-bottom:4px; }
    .label { font-weight:600; color:#111827; }
    .value { color:#374151; word-break:break-all; }
    .btn {
      display:inline-flex; align-items:center; justify-content:center;
      gap:8px; padding:16px 30px; border-radius:999px;
      border:1px solid #111827; cursor:pointer; font-size:1.06rem; font-weight:800;
      background:#111827; color:#ffffff; text-decoration:none; margin-top:12px;
      width:320px; max-width:100%;
    }
    .bottom-actions { display:flex; justify-content:center; margin-top:18px; }
    .note { margin-top:10px; font-size:0.8rem; color:#6b7280; }
    .preview {
      margin-top:14px; padding-top:10px; border-top:1px dashed #d1d5db;
      font-size:0.85rem; color:#6b7280;
    }
    .preview-box {
      margin-top:8px; border-radius:12px; overflow:hidden; height:480px;
      background:#ffffff; box-shadow:inset 0 0 0 1px #e5e7eb;
    }
    img.preview-img { display:block; width:100%; height:auto; border-radius:12px; }
    iframe.preview-frame {
      width:100%; height:100%; border:none; border-radius:12px; margin:0;
      background:#ffffff; display:block;
    }
  </style>
</head>
<body>
  <div class="card">
    <div class="hero">
      <div class="hero-title"><span class="brand-blue">DropLink</span> <span class="text-black">shared a file with you</span></div>
      <div class="hero-sub">Find file details below</div>
    </div>

    <h1>&#128193; {{.Name}}</h1>
    <div class="meta">
      <div class="meta-row">
        <span class="label">Type:</span>
        <span class="value">{{.MimeType}}</span>
      </div>
      <div class="meta-row">
        <span class="label">Size:</span>
        <span class="value">{{.Size}}</span>
      </div>
    </div>

    <div class="preview">
      <div>Preview (if supported by browser):</div>
      <div class="preview-box">
        {{if .IsImage -}}
        <img class="preview-img" src="{{.FileURL}}" alt="preview" />
        {{- else if .IsPDF -}}
        <iframe class="preview-frame" src="{{.FileURL}}#toolbar=0&navpanes=0" scrolling="no"></iframe>
        {{- else -}}
        <div style="padding:12px;">Preview not available for this file type.</div>
        {{- end}}
      </div>
    </div>

    <div class="bottom-actions">
      <a class="btn" href="{{.DownloadURL}}">&#11015; Download File</a>
    </div>

    <div class="note">
      Share this page URL so others can see the file info and download it.
    </div>
  </div>
</body>
</html>
`))
