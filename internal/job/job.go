// Package job is the orchestration core: it tracks processing jobs in a
// concurrency-safe store and drives their pipeline runs through a scheduler.
package job

import (
	"errors"
	"fmt"
	"time"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transitions are permitted from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// ValidTransition reports whether the state machine permits from → to.
// pending → running, pending → cancelled, running → completed/failed/cancelled.
func ValidTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusRunning || to == StatusCancelled
	case StatusRunning:
		return to == StatusCompleted || to == StatusFailed || to == StatusCancelled
	}
	return false
}

var (
	// ErrNotFound is returned when the referenced job does not exist.
	ErrNotFound = errors.New("job not found")

	// ErrAlreadyRunning is returned when Start is called on a running job.
	ErrAlreadyRunning = errors.New("job is already running")

	// ErrTerminal is returned when an operation targets a job that has
	// already reached a terminal state.
	ErrTerminal = errors.New("job is in a terminal state")

	// ErrJobRunning is returned by Delete when the job has an active run.
	// The caller must cancel the job before deleting it.
	ErrJobRunning = errors.New("job has an active run")
)

// StageError records which pipeline stage failed and why. It is stored on
// the job record, never raised to the caller that started the run.
type StageError struct {
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %s", e.Stage, e.Message)
}

// Checkpoint marks one stage's start and finish within a run. FinishedAt is
// nil while the stage is still executing.
type Checkpoint struct {
	Stage      string     `json:"stage"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Outcome    string     `json:"outcome,omitempty"` // "ok" or "failed"
}

// InputRef is an opaque handle to the source document. The core passes it
// through to stages without interpreting it.
type InputRef struct {
	DocumentID string `json:"document_id"`
	Path       string `json:"path"`
	Filename   string `json:"filename"`
}

// Config holds the processing parameters fixed at submission. The core only
// carries them to stages; their meaning belongs to the stage implementations.
type Config struct {
	SummaryMode     string   `json:"summary_mode"`
	Backend         string   `json:"backend"`
	ExtractEntities bool     `json:"extract_entities"`
	EntityTypes     []string `json:"entity_types,omitempty"`
	MaxPages        int      `json:"max_pages"`
	ExtractTables   bool     `json:"extract_tables"`
}

// Job is one orchestrated pipeline run for a single input document.
type Job struct {
	ID        string
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time

	Input  InputRef
	Config Config

	Progress       []Checkpoint
	PartialResults map[string]any

	FinalResult any
	Err         *StageError

	// seq orders jobs created within the same clock tick.
	seq uint64
}

// clone returns a deep copy safe to hand to readers while writers proceed.
func (j *Job) clone() Job {
	c := *j
	if j.Progress != nil {
		c.Progress = make([]Checkpoint, len(j.Progress))
		copy(c.Progress, j.Progress)
	}
	if j.PartialResults != nil {
		c.PartialResults = make(map[string]any, len(j.PartialResults))
		for k, v := range j.PartialResults {
			c.PartialResults[k] = v
		}
	}
	if j.Config.EntityTypes != nil {
		c.Config.EntityTypes = make([]string, len(j.Config.EntityTypes))
		copy(c.Config.EntityTypes, j.Config.EntityTypes)
	}
	if j.Err != nil {
		e := *j.Err
		c.Err = &e
	}
	return c
}
