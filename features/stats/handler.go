package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"quill/internal/middleware"
)

type Counter interface {
	Count(ctx context.Context) (int, error)
}

type LibraryStore interface {
	CountReports(ctx context.Context) (int, error)
	CountChunks(ctx context.Context) (int, error)
}

type Handler struct {
	sources Counter
	jobs    Counter
	library LibraryStore
}

func NewHandler(sources, jobs Counter, library LibraryStore) *Handler {
	return &Handler{sources: sources, jobs: jobs, library: library}
}

type StatsResponse struct {
	Sources    int `json:"sources"`
	Reports    int `json:"reports"`
	Chunks     int `json:"chunks"`
	FailedJobs int `json:"failed_jobs"`
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var resp StatsResponse
	counts := []struct {
		what  string
		count func(context.Context) (int, error)
		into  *int
	}{
		{"sources", h.sources.Count, &resp.Sources},
		{"reports", h.library.CountReports, &resp.Reports},
		{"chunks", h.library.CountChunks, &resp.Chunks},
		{"failed jobs", h.jobs.Count, &resp.FailedJobs},
	}

	for _, c := range counts {
		n, err := c.count(ctx)
		if err != nil {
			slog.ErrorContext(ctx, "failed to count "+c.what, "error", err)
			h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count "+c.what, http.StatusInternalServerError)
			return
		}
		*c.into = n
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": resp}); err != nil {
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
