package source

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"quill/internal/middleware"
	"quill/internal/vector"
	"quill/internal/worker"
)

const defaultReportLimit = 50

type ReportLister interface {
	ListReports(ctx context.Context, sourceName string, limit, offset int) ([]vector.Report, error)
}

type Handler struct {
	service *Service
	reports ReportLister
	pub     worker.TaskPublisher
}

func NewHandler(service *Service, reports ReportLister, pub worker.TaskPublisher) *Handler {
	return &Handler{service: service, reports: reports, pub: pub}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	sources, err := h.service.List(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to list sources", "error", err)
		h.writeError(r.Context(), w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeJSON(r.Context(), w, http.StatusOK, map[string]interface{}{
		"data": sources,
		"meta": map[string]int{"count": len(sources)},
	})
}

func (h *Handler) Reports(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if !h.service.Known(name) {
		h.writeError(r.Context(), w, "NOT_FOUND", "Source not found", http.StatusNotFound)
		return
	}

	limit := defaultReportLimit
	offset := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	reports, err := h.reports.ListReports(r.Context(), name, limit, offset)
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to list reports", "source", name, "error", err)
		h.writeError(r.Context(), w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}
	if reports == nil {
		reports = []vector.Report{}
	}

	h.writeJSON(r.Context(), w, http.StatusOK, map[string]interface{}{
		"data": reports,
		"meta": map[string]int{"count": len(reports), "limit": limit, "offset": offset},
	})
}

// Check queues a freshness check of the source.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if !h.service.Known(name) {
		h.writeError(r.Context(), w, "NOT_FOUND", "Source not found", http.StatusNotFound)
		return
	}

	task := worker.SourceTask{Source: name, CorrelationID: worker.CorrelationFrom(r.Context())}
	h.enqueue(w, r, task)
}

// Posts queues one specific post of the source.
func (h *Handler) Posts(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if !h.service.Known(name) {
		h.writeError(r.Context(), w, "NOT_FOUND", "Source not found", http.StatusNotFound)
		return
	}

	var req struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}
	if u, err := url.Parse(req.URL); err != nil || req.URL == "" || (u.Scheme != "http" && u.Scheme != "https") {
		h.writeError(r.Context(), w, "VALIDATION_ERROR", "A valid http(s) url is required", http.StatusBadRequest)
		return
	}

	task := worker.SourceTask{Source: name, URL: req.URL, CorrelationID: worker.CorrelationFrom(r.Context())}
	h.enqueue(w, r, task)
}

func (h *Handler) enqueue(w http.ResponseWriter, r *http.Request, task worker.SourceTask) {
	if err := worker.Enqueue(h.pub, task); err != nil {
		slog.ErrorContext(r.Context(), "failed to enqueue source task", "source", task.Source, "error", err)
		h.writeError(r.Context(), w, "INTERNAL_ERROR", "Failed to queue task", http.StatusInternalServerError)
		return
	}

	h.writeJSON(r.Context(), w, http.StatusAccepted, map[string]interface{}{"data": task})
}

func (h *Handler) writeJSON(ctx context.Context, w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	h.writeJSON(ctx, w, status, map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	})
}
