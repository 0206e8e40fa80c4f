package docstore

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Document is one uploaded PDF, stored on disk with its record here.
type Document struct {
	ID         string    `json:"document_id"`
	Filename   string    `json:"filename"`
	StoredPath string    `json:"-"`
	SizeBytes  int64     `json:"size_bytes"`
	Pages      int       `json:"pages"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// Run is the archived record of a terminal job: what was summarized, with
// what outcome. Read-only history, not live orchestration state.
type Run struct {
	ID           string    `json:"id"`
	JobID        string    `json:"job_id"`
	DocumentID   string    `json:"document_id"`
	Status       string    `json:"status"`
	Summary      string    `json:"summary,omitempty"`
	EntitiesJSON string    `json:"entities,omitempty"`
	MetadataJSON string    `json:"metadata,omitempty"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	FinishedAt   time.Time `json:"finished_at"`
}
