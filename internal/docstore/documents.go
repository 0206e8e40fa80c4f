package docstore

import (
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// SaveUpload streams an uploaded file to uploadDir under a fresh id and
// records it. Returns the stored document. The file is removed again if the
// insert fails.
func (s *Store) SaveUpload(uploadDir, filename string, r io.Reader, pagesOf func(path string) (int, error)) (Document, error) {
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		return Document{}, fmt.Errorf("creating upload directory: %w", err)
	}

	id := uuid.New().String()
	path := filepath.Join(uploadDir, id+".pdf")

	f, err := os.Create(path)
	if err != nil {
		return Document{}, fmt.Errorf("creating upload file: %w", err)
	}
	size, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return Document{}, fmt.Errorf("writing upload: %w", err)
	}

	pages, err := pagesOf(path)
	if err != nil {
		os.Remove(path)
		return Document{}, fmt.Errorf("invalid pdf: %w", err)
	}

	doc := Document{
		ID:         id,
		Filename:   filename,
		StoredPath: path,
		SizeBytes:  size,
		Pages:      pages,
		UploadedAt: time.Now().UTC(),
	}
	if err := s.InsertDocument(doc); err != nil {
		os.Remove(path)
		return Document{}, err
	}
	return doc, nil
}

// InsertDocument records a document.
func (s *Store) InsertDocument(d Document) error {
	_, err := s.db.Exec(`
		INSERT INTO documents (id, filename, stored_path, size_bytes, pages, uploaded_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		d.ID, d.Filename, d.StoredPath, d.SizeBytes, d.Pages,
		d.UploadedAt.UTC().Format(time.RFC3339),
	)
	return err
}

// GetDocument returns the document with the given id.
func (s *Store) GetDocument(id string) (Document, error) {
	var d Document
	var uploadedAt string
	err := s.db.QueryRow(`
		SELECT id, filename, stored_path, size_bytes, pages, uploaded_at
		FROM documents WHERE id = ?`, id,
	).Scan(&d.ID, &d.Filename, &d.StoredPath, &d.SizeBytes, &d.Pages, &uploadedAt)
	if err == sql.ErrNoRows {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, err
	}
	t, err := time.Parse(time.RFC3339, uploadedAt)
	if err != nil {
		return Document{}, fmt.Errorf("parsing uploaded_at: %w", err)
	}
	d.UploadedAt = t
	return d, nil
}

// ListDocuments returns the most recently uploaded documents first.
func (s *Store) ListDocuments(limit int) ([]Document, error) {
	rows, err := s.db.Query(`
		SELECT id, filename, stored_path, size_bytes, pages, uploaded_at
		FROM documents ORDER BY uploaded_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Document
	for rows.Next() {
		var d Document
		var uploadedAt string
		if err := rows.Scan(&d.ID, &d.Filename, &d.StoredPath, &d.SizeBytes, &d.Pages, &uploadedAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, uploadedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing uploaded_at: %w", err)
		}
		d.UploadedAt = t
		results = append(results, d)
	}
	return results, rows.Err()
}

// DeleteDocument removes the record and the stored file. Missing files are
// tolerated; a missing record is ErrNotFound.
func (s *Store) DeleteDocument(id string) error {
	doc, err := s.GetDocument(id)
	if err != nil {
		return err
	}

	res, err := s.db.Exec(`DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}

	if doc.StoredPath != "" {
		if err := os.Remove(doc.StoredPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing stored file: %w", err)
		}
	}
	return nil
}
