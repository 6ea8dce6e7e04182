package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/gzhttp"

	"github.com/droplink/droplink/internal/files"
	"github.com/droplink/droplink/internal/fs"
	"github.com/droplink/droplink/internal/jsonindex"
)

type Config struct {
	Addr          string        `env:"DROPLINK_ADDR" envDefault:":3001"`
	DataDir       string        `env:"DROPLINK_DATA_DIR" envDefault:"data/uploads"`
	IndexPath     string        `env:"DROPLINK_INDEX_PATH" envDefault:"data/metadata.json"`
	MaxUploadSize int64         `env:"DROPLINK_MAX_UPLOAD_BYTES" envDefault:"1073741824"`
	Retention     time.Duration `env:"DROPLINK_RETENTION" envDefault:"10m"`
	SweepInterval time.Duration `env:"DROPLINK_SWEEP_INTERVAL" envDefault:"1m"`
}

// New builds the HTTP server and starts the background sweep. The returned
// stop function halts the sweeper and must be called on shutdown.
func New(cfg *Config) (*http.Server, func(), error) {
	// Initialize structured logger with JSON handler
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	storage, err := fs.NewStorage(cfg.DataDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize blob storage: %w", err)
	}
	index, err := jsonindex.NewIndex(cfg.IndexPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize metadata index: %w", err)
	}

	fileService := files.NewService(storage, index, files.ServiceConfig{
		MaxSizeBytes: cfg.MaxUploadSize,
		Retention:    cfg.Retention,
	})

	sweeper := files.NewSweeper(fileService, cfg.SweepInterval)
	stop := sweeper.Start()

	slog.Info("file service configured",
		"data_dir", cfg.DataDir,
		"max_upload", humanize.IBytes(uint64(cfg.MaxUploadSize)),
		"retention", cfg.Retention.String(),
		"sweep_interval", cfg.SweepInterval.String(),
	)

	// Wrap the router with gzip and logging middleware
	handler := loggingMiddleware(gzhttp.GzipHandler(newRouter(cfg, fileService)))

	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}, stop, nil
}

func newRouter(cfg *Config, fileService *files.Service) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", healthz)
	mux.HandleFunc("POST /upload", uploadFile(cfg, fileService))
	mux.HandleFunc("GET /api/file/{id}", fileMeta(fileService))
	mux.HandleFunc("GET /file/{id}", sharePage(fileService))
	mux.HandleFunc("GET /files/{key}", serveFile(fileService))
	mux.HandleFunc("GET /files/{key}/download", downloadFile(fileService))
	return mux
}

func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// loggingMiddleware logs HTTP requests with structured logging
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create a response writer wrapper to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)

		slog.Info("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.statusCode,
			"duration_ms", duration.Milliseconds(),
			"remote_addr", r.RemoteAddr,
			"user_agent", r.UserAgent(),
		)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
