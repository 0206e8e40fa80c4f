package api

import (
	"errors"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ilyakh/docsum/internal/docstore"
	"github.com/ilyakh/docsum/internal/extract"
)

// handleUpload stores a PDF and returns its document record. Processing
// parameters are supplied later at /api/process, not here.
func handleUpload(deps Deps) http.HandlerFunc {
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

		if !strings.EqualFold(filepath.Ext(header.Filename), ".pdf") {
			httpError(w, http.StatusBadRequest, "invalid_request", "only PDF files are accepted")
			return
		}

		doc, err := deps.Docs.SaveUpload(deps.UploadDir, header.Filename, file, extract.PageCount)
		if err != nil {
			if errors.Is(err, extract.ErrNotPDF) {
				httpError(w, http.StatusBadRequest, "invalid_request", "file is not a valid PDF")
				return
			}
			httpError(w, http.StatusInternalServerError, "internal_error", "failed to store document: %v", err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"document_id": doc.ID,
			"filename":    doc.Filename,
			"size_bytes":  doc.SizeBytes,
			"pages":       doc.Pages,
			"uploaded_at": doc.UploadedAt,
		})
	}
}

func handleListDocuments(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 50, 200)
		docs, err := deps.Docs.ListDocuments(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "internal_error", "failed to list documents: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"documents": docs,
			"count":     len(docs),
		})
	}
}

// handleDeleteDocument removes a document record and its stored file.
func handleDeleteDocument(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := deps.Docs.DeleteDocument(id); err != nil {
			if errors.Is(err, docstore.ErrNotFound) {
				httpError(w, http.StatusNotFound, "not_found", "document %s not found", id)
				return
			}
			httpError(w, http.StatusInternalServerError, "internal_error", "failed to delete document: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"document_id": id,
			"deleted":     true,
		})
	}
}
