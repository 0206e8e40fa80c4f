package docstore

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ArchiveRun records a terminal job outcome.
func (s *Store) ArchiveRun(r Run) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.EntitiesJSON == "" {
		r.EntitiesJSON = "[]"
	}
	if r.MetadataJSON == "" {
		r.MetadataJSON = "{}"
	}
	_, err := s.db.Exec(`
		INSERT INTO runs (id, job_id, document_id, status, summary, entities_json, metadata_json, error, created_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.JobID, r.DocumentID, r.Status, r.Summary, r.EntitiesJSON, r.MetadataJSON, r.Error,
		r.CreatedAt.UTC().Format(time.RFC3339), r.FinishedAt.UTC().Format(time.RFC3339),
	)
	return err
}

// ListRuns returns the most recently finished runs first.
func (s *Store) ListRuns(limit int) ([]Run, error) {
	rows, err := s.db.Query(`
		SELECT id, job_id, document_id, status, summary, entities_json, metadata_json, error, created_at, finished_at
		FROM runs ORDER BY finished_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Run
	for rows.Next() {
		var r Run
		var createdAt, finishedAt string
		if err := rows.Scan(&r.ID, &r.JobID, &r.DocumentID, &r.Status, &r.Summary, &r.EntitiesJSON, &r.MetadataJSON, &r.Error, &createdAt, &finishedAt); err != nil {
			return nil, err
		}
		if r.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		if r.FinishedAt, err = time.Parse(time.RFC3339, finishedAt); err != nil {
			return nil, fmt.Errorf("parsing finished_at: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
