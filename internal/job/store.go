package job

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store is the single source of truth for job records. The map is guarded
// by an RWMutex; each record carries its own mutex so two updates for the
// same id never interleave and one job's writer never blocks another's.
// Reads return deep-copied snapshots.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*entry
	seq  uint64
}

type entry struct {
	mu  sync.Mutex
	job Job
}

// NewStore creates an empty Store. Construct one per process (or per test)
// and pass it by reference; there is no package-level instance.
func NewStore() *Store {
	return &Store{jobs: make(map[string]*entry)}
}

// Create allocates a new pending job and returns its id.
func (s *Store) Create(input InputRef, cfg Config) string {
	id := uuid.New().String()
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.jobs[id] = &entry{job: Job{
		ID:             id,
		Status:         StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
		Input:          input,
		Config:         cfg,
		PartialResults: make(map[string]any),
		seq:            s.seq,
	}}
	return id
}

// Get returns a snapshot of the job, or ErrNotFound.
func (s *Store) Get(id string) (Job, error) {
	s.mu.RLock()
	e, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		return Job{}, ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.job.clone(), nil
}

// Update applies mutate to the job under its per-record lock. The mutation
// is all-or-nothing: if mutate returns an error the record is untouched.
// Updates to terminal records are rejected with ErrTerminal, and any status
// change the state machine forbids is rejected too. UpdatedAt is bumped and
// clamped so it never regresses.
func (s *Store) Update(id string, mutate func(*Job) error) error {
	s.mu.RLock()
	e, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.job.Status.Terminal() {
		return ErrTerminal
	}

	next := e.job.clone()
	if err := mutate(&next); err != nil {
		return err
	}
	if next.Status != e.job.Status && !ValidTransition(e.job.Status, next.Status) {
		return ErrTerminal
	}

	now := time.Now().UTC()
	if now.Before(e.job.UpdatedAt) {
		now = e.job.UpdatedAt
	}
	next.UpdatedAt = now
	next.ID = e.job.ID
	next.CreatedAt = e.job.CreatedAt
	next.seq = e.job.seq
	e.job = next
	return nil
}

// List returns snapshots of all jobs, most recently created first.
func (s *Store) List() []Job {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.jobs))
	for _, e := range s.jobs {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]Job, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.job.clone())
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq > out[j].seq })
	return out
}

// Delete removes the record entirely. A running job is refused with
// ErrJobRunning; cancel it first. Deleting an absent id returns ErrNotFound.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}

	e.mu.Lock()
	running := e.job.Status == StatusRunning
	e.mu.Unlock()
	if running {
		return ErrJobRunning
	}

	delete(s.jobs, id)
	return nil
}

// Stats returns the total job count and a per-status breakdown.
func (s *Store) Stats() (total int, byStatus map[Status]int) {
	byStatus = map[Status]int{
		StatusPending:   0,
		StatusRunning:   0,
		StatusCompleted: 0,
		StatusFailed:    0,
		StatusCancelled: 0,
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.jobs {
		e.mu.Lock()
		byStatus[e.job.Status]++
		e.mu.Unlock()
		total++
	}
	return total, byStatus
}
