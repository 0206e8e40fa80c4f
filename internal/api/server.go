// Package api exposes the document summarization service over HTTP (chi)
// and as an MCP server. Handlers validate input and call into the job
// core; they hold no orchestration state of their own.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ilyakh/docsum/internal/docstore"
	"github.com/ilyakh/docsum/internal/job"
	"github.com/ilyakh/docsum/internal/pipeline"
)

const maxUploadBodySize = 10 << 20 // 10MB
const maxRequestBodySize = 1 << 20 // 1MB

// Defaults supplies processing parameters for fields a request omits.
type Defaults struct {
	SummaryMode string
	Backend     string
	MaxPages    int
	Tables      bool
}

// Deps holds everything the HTTP layer needs.
type Deps struct {
	Jobs      *job.Store
	Scheduler *pipeline.Scheduler
	Docs      *docstore.Store
	Defaults  Defaults
	UploadDir string
}

// NewHandler builds the HTTP router.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth(deps))

	r.Route("/api", func(r chi.Router) {
		r.Post("/upload", handleUpload(deps))
		r.Get("/documents", handleListDocuments(deps))
		r.Delete("/documents/{id}", handleDeleteDocument(deps))
		r.Post("/process", handleProcess(deps))
		r.Post("/summarize-sync", handleSummarizeSync(deps))
		r.Get("/status/{id}", handleStatus(deps))
		r.Get("/jobs", handleListJobs(deps))
		r.Post("/jobs/{id}/cancel", handleCancelJob(deps))
		r.Delete("/jobs/{id}", handleDeleteJob(deps))
		r.Get("/history", handleHistory(deps))
	})

	return r
}

func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		total, byStatus := deps.Jobs.Stats()
		writeJSON(w, http.StatusOK, map[string]any{
			"status":     "ok",
			"jobs_total": total,
			"jobs":       byStatus,
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
