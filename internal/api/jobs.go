package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"slices"

	"github.com/go-chi/chi/v5"

	"github.com/ilyakh/docsum/internal/docstore"
	"github.com/ilyakh/docsum/internal/job"
	"github.com/ilyakh/docsum/internal/llm"
)

// processRequest carries the processing parameters for a previously
// uploaded document. Omitted fields take server defaults.
type processRequest struct {
	DocumentID      string   `json:"document_id"`
	SummaryMode     string   `json:"summary_mode"`
	Backend         string   `json:"backend"`
	ExtractEntities *bool    `json:"extract_entities"`
	EntityTypes     []string `json:"entity_types"`
	MaxPages        int      `json:"max_pages"`
	ExtractTables   *bool    `json:"extract_tables"`
}

func (deps Deps) buildConfig(req processRequest) (job.Config, error) {
	mode, err := llm.ParseMode(req.SummaryMode)
	if err != nil {
		return job.Config{}, err
	}
	if req.SummaryMode == "" {
		mode = llm.Mode(deps.Defaults.SummaryMode)
	}

	backend := req.Backend
	if backend == "" {
		backend = deps.Defaults.Backend
	}
	if !slices.Contains(llm.Backends(), backend) {
		return job.Config{}, fmt.Errorf("unknown backend %q", backend)
	}

	maxPages := req.MaxPages
	if maxPages == 0 {
		maxPages = deps.Defaults.MaxPages
	}
	if maxPages < 1 || maxPages > 10 {
		return job.Config{}, fmt.Errorf("max_pages must be between 1 and 10, got %d", req.MaxPages)
	}

	entities := true
	if req.ExtractEntities != nil {
		entities = *req.ExtractEntities
	}
	tables := deps.Defaults.Tables
	if req.ExtractTables != nil {
		tables = *req.ExtractTables
	}

	return job.Config{
		SummaryMode:     string(mode),
		Backend:         backend,
		ExtractEntities: entities,
		EntityTypes:     req.EntityTypes,
		MaxPages:        maxPages,
		ExtractTables:   tables,
	}, nil
}

// handleProcess creates a job for an uploaded document and starts it
// asynchronously. The response returns immediately with the job id; callers
// poll /api/status/{id} for progress.
func handleProcess(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req processRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body: %v", err)
			return
		}
		if req.DocumentID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request", "document_id is required")
			return
		}

		cfg, err := deps.buildConfig(req)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request", "%v", err)
			return
		}

		doc, err := deps.Docs.GetDocument(req.DocumentID)
		if err != nil {
			if errors.Is(err, docstore.ErrNotFound) {
				httpError(w, http.StatusNotFound, "not_found", "document %s not found", req.DocumentID)
				return
			}
			httpError(w, http.StatusInternalServerError, "internal_error", "looking up document: %v", err)
			return
		}

		id := deps.Scheduler.Submit(job.InputRef{
			DocumentID: doc.ID,
			Path:       doc.StoredPath,
			Filename:   doc.Filename,
		}, cfg)

		if err := deps.Scheduler.Start(id); err != nil {
			httpError(w, http.StatusInternalServerError, "internal_error", "starting job: %v", err)
			return
		}

		writeJSON(w, http.StatusAccepted, map[string]any{
			"job_id": id,
			"status": job.StatusPending,
		})
	}
}

// handleSummarizeSync runs the full pipeline within the request, blocking
// until the job reaches a terminal state. The job is tracked in the store
// like any other, so it remains visible in /api/jobs afterward.
func handleSummarizeSync(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBodySize)
		if err := r.ParseMultipartForm(maxUploadBodySize); err != nil {
			httpError(w, http.StatusRequestEntityTooLarge, "invalid_request", "file too large or malformed multipart body")
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request", "missing file field")
			return
		}
		defer file.Close()

		cfg, err := deps.buildConfig(processRequest{
			SummaryMode: r.FormValue("summary_mode"),
			Backend:     r.FormValue("backend"),
			MaxPages:    formInt(r, "max_pages"),
		})
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request", "%v", err)
			return
		}

		tmp, err := os.CreateTemp("", "docsum-sync-*.pdf")
		if err != nil {
			httpError(w, http.StatusInternalServerError, "internal_error", "creating temp file: %v", err)
			return
		}
		defer os.Remove(tmp.Name())
		if _, err := tmp.ReadFrom(file); err != nil {
			tmp.Close()
			httpError(w, http.StatusInternalServerError, "internal_error", "writing temp file: %v", err)
			return
		}
		tmp.Close()

		j, err := deps.Scheduler.RunSync(r.Context(), job.InputRef{
			Path:     tmp.Name(),
			Filename: header.Filename,
		}, cfg)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "internal_error", "running job: %v", err)
			return
		}

		code := http.StatusOK
		if j.Status == job.StatusFailed {
			code = http.StatusUnprocessableEntity
		}
		writeJSON(w, code, job.Project(j))
	}
}

// handleStatus returns the job's status projection. The shape varies with
// status: progress appears while running, result on completion, error on
// failure.
func handleStatus(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		j, err := deps.Jobs.Get(id)
		if err != nil {
			httpError(w, http.StatusNotFound, "not_found", "job %s not found", id)
			return
		}
		writeJSON(w, http.StatusOK, job.Project(j))
	}
}

func handleListJobs(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobs := deps.Jobs.List()

		if status := r.URL.Query().Get("status"); status != "" {
			filtered := jobs[:0]
			for _, j := range jobs {
				if j.Status == job.Status(status) {
					filtered = append(filtered, j)
				}
			}
			jobs = filtered
		}

		summaries := make([]job.Summary, 0, len(jobs))
		for _, j := range jobs {
			summaries = append(summaries, job.ProjectSummary(j))
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"jobs":  summaries,
			"count": len(summaries),
		})
	}
}

func handleCancelJob(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		err := deps.Scheduler.Cancel(id)
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, map[string]any{
				"job_id": id,
				"status": "cancellation requested",
			})
		case errors.Is(err, job.ErrNotFound):
			httpError(w, http.StatusNotFound, "not_found", "job %s not found", id)
		case errors.Is(err, job.ErrTerminal):
			httpError(w, http.StatusConflict, "conflict", "job %s already finished", id)
		default:
			httpError(w, http.StatusInternalServerError, "internal_error", "cancelling job: %v", err)
		}
	}
}

func handleDeleteJob(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		err := deps.Jobs.Delete(id)
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, map[string]any{
				"job_id":  id,
				"deleted": true,
			})
		case errors.Is(err, job.ErrNotFound):
			httpError(w, http.StatusNotFound, "not_found", "job %s not found", id)
		case errors.Is(err, job.ErrJobRunning):
			httpError(w, http.StatusConflict, "conflict", "job %s has an active run, cancel it first", id)
		default:
			httpError(w, http.StatusInternalServerError, "internal_error", "deleting job: %v", err)
		}
	}
}

// handleHistory lists archived terminal runs from the document store. Unlike
// /api/jobs this survives restarts.
func handleHistory(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 50, 200)
		runs, err := deps.Docs.ListRuns(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "internal_error", "failed to list runs: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"runs":  runs,
			"count": len(runs),
		})
	}
}

func formInt(r *http.Request, key string) int {
	s := r.FormValue(key)
	if s == "" {
		return 0
	}
	var v int
	fmt.Sscanf(s, "%d", &v)
	return v
}
