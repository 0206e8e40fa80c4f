package job

import "time"

// Projection is the externally visible rendering of a job record. It always
// carries id, status, and timestamps; progress checkpoints appear while the
// job is running (and for cancelled jobs, whose completed work stays
// visible); the result appears only on completion and the error detail only
// on failure.
type Projection struct {
	ID        string       `json:"job_id"`
	Status    Status       `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
	Progress  []Checkpoint `json:"progress,omitempty"`
	Result    any          `json:"result,omitempty"`
	Error     *StageError  `json:"error,omitempty"`
}

// Summary is the compact projection used by list views.
type Summary struct {
	ID        string    `json:"job_id"`
	Status    Status    `json:"status"`
	Filename  string    `json:"filename,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Project renders a job snapshot into its external shape. It never mutates
// the record; the caller is expected to pass a Store snapshot, which is
// already consistent under concurrent updates.
func Project(j Job) Projection {
	p := Projection{
		ID:        j.ID,
		Status:    j.Status,
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	}

	switch j.Status {
	case StatusRunning, StatusCancelled:
		p.Progress = j.Progress
	case StatusCompleted:
		p.Result = j.FinalResult
	case StatusFailed:
		p.Error = j.Err
	}
	return p
}

// ProjectSummary renders the list-view shape.
func ProjectSummary(j Job) Summary {
	return Summary{
		ID:        j.ID,
		Status:    j.Status,
		Filename:  j.Input.Filename,
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	}
}
