package report

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"quill/internal/middleware"
	"quill/internal/worker"
)

var allowedExts = map[string]bool{".pdf": true, ".json": true}

type Upload struct {
	Path     string `json:"path"`
	FileName string `json:"file_name"`
	SHA256   string `json:"sha256"`
	Size     int64  `json:"size"`
}

// Handler accepts report files and queues them for loading.
type Handler struct {
	uploadDir string
	maxBytes  int64
	pub       worker.TaskPublisher
}

func NewHandler(uploadDir string, maxUploadMB int64, pub worker.TaskPublisher) *Handler {
	if maxUploadMB <= 0 {
		maxUploadMB = 50
	}
	return &Handler{uploadDir: uploadDir, maxBytes: maxUploadMB << 20, pub: pub}
}

func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)

	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		h.writeError(ctx, w, "BAD_REQUEST", "File too large", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(ctx, w, "BAD_REQUEST", "Unable to retrieve file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	base := filepath.Base(header.Filename)
	if !allowedExts[strings.ToLower(filepath.Ext(base))] {
		h.writeError(ctx, w, "BAD_REQUEST", "Unsupported file type, expected .pdf or .json", http.StatusBadRequest)
		return
	}

	if err := os.MkdirAll(h.uploadDir, 0o750); err != nil {
		slog.ErrorContext(ctx, "failed to create upload directory", "error", err, "path", filepath.Clean(h.uploadDir))
		h.writeError(ctx, w, "INTERNAL_ERROR", "Failed to create upload directory", http.StatusInternalServerError)
		return
	}

	path := filepath.Clean(filepath.Join(h.uploadDir, fmt.Sprintf("%s_%s", uuid.New().String(), base)))
	up, err := save(file, path)
	if err != nil {
		slog.ErrorContext(ctx, "failed to save upload", "error", err, "path", path) // #nosec G706 -- path is UUID-based, not raw user input
		h.writeError(ctx, w, "INTERNAL_ERROR", "Failed to save file", http.StatusInternalServerError)
		return
	}
	up.FileName = base

	task := worker.FileTask{Path: path, FileName: base, CorrelationID: worker.CorrelationFrom(ctx)}
	if err := worker.Enqueue(h.pub, task); err != nil {
		if removeErr := os.Remove(path); removeErr != nil { // #nosec G703 -- path is UUID-based
			slog.WarnContext(ctx, "failed to clean up uploaded file", "error", removeErr, "path", path)
		}
		slog.ErrorContext(ctx, "failed to enqueue file task", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "Failed to queue file", http.StatusInternalServerError)
		return
	}

	slog.InfoContext(ctx, "report uploaded", "path", path, "size", up.Size)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": up}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func save(src io.Reader, path string) (*Upload, error) {
	dst, err := os.Create(path) // #nosec G304 -- path is constructed from UUID + sanitized basename
	if err != nil {
		return nil, err
	}
	defer dst.Close()

	hash := sha256.New()
	n, err := io.Copy(io.MultiWriter(dst, hash), src)
	if err != nil {
		_ = os.Remove(path)
		return nil, err
	}
	return &Upload{Path: path, SHA256: fmt.Sprintf("%x", hash.Sum(nil)), Size: n}, nil
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.ErrorContext(ctx, "failed to encode error response", "error", err)
	}
}
