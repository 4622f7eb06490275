package draft

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"quill/internal/middleware"
	"quill/internal/pipeline"
	"quill/internal/worker"
)

type Handler struct {
	service *Service
	pub     worker.TaskPublisher
}

func NewHandler(s *Service, pub worker.TaskPublisher) *Handler {
	return &Handler{service: s, pub: pub}
}

// Create queues an outline for drafting.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		Outline string `json:"outline"`
		Name    string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}

	sections := pipeline.Decompose(req.Outline)
	if len(sections) == 0 {
		h.writeError(ctx, w, "VALIDATION_ERROR", "Outline has no SECTION: entries", http.StatusBadRequest)
		return
	}

	task := worker.DraftTask{
		Outline:       req.Outline,
		OutputDir:     h.service.DirFor(req.Name),
		CorrelationID: worker.CorrelationFrom(ctx),
	}
	if err := worker.Enqueue(h.pub, task); err != nil {
		slog.ErrorContext(ctx, "failed to enqueue draft task", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "Failed to queue draft", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	resp := map[string]interface{}{
		"data": map[string]interface{}{
			"output_dir":     task.OutputDir,
			"sections":       len(sections),
			"correlation_id": task.CorrelationID,
		},
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
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
