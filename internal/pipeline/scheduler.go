package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/ilyakh/docsum/internal/job"
)

// StageBuilder returns the ordered stage list for a job's config. The
// composition is fixed at submission; config toggles (e.g. entity
// extraction) only decide which stages are included.
type StageBuilder func(cfg job.Config) []Stage

// Assembler builds the final result from the full set of stage outputs.
type Assembler func(rc *RunContext, elapsed time.Duration) any

// TerminalHook is called after a job reaches a terminal state, with a
// snapshot of the final record. Used for archiving; failures there never
// affect the job record.
type TerminalHook func(j job.Job)

// Scheduler dispatches pipeline runs for jobs and writes progress back into
// the store as stages complete. It guarantees at most one active run per
// job id and bounds the number of concurrent runs.
type Scheduler struct {
	store    *job.Store
	stages   StageBuilder
	assemble Assembler
	onDone   TerminalHook
	runner   Runner
	sem      *semaphore.Weighted
	logger   *slog.Logger

	// base is the parent context for async runs. It must outlive HTTP
	// request contexts; cancelling it stops every in-flight run.
	base context.Context

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// NewScheduler creates a Scheduler whose background runs live under ctx.
// maxConcurrent bounds simultaneous executions (defaults to 4 if <= 0).
// onDone may be nil.
func NewScheduler(ctx context.Context, store *job.Store, stages StageBuilder, assemble Assembler, maxConcurrent int, onDone TerminalHook) *Scheduler {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return &Scheduler{
		store:    store,
		stages:   stages,
		assemble: assemble,
		onDone:   onDone,
		sem:      semaphore.NewWeighted(int64(maxConcurrent)),
		logger:   slog.Default(),
		base:     ctx,
		cancels:  make(map[string]context.CancelFunc),
	}
}

// Submit creates a new pending job and returns its id.
func (s *Scheduler) Submit(input job.InputRef, cfg job.Config) string {
	return s.store.Create(input, cfg)
}

// Start transitions the job pending → running and dispatches its pipeline
// run on a background goroutine, returning immediately. A second Start on a
// running job is rejected with job.ErrAlreadyRunning, not queued.
func (s *Scheduler) Start(id string) error {
	runCtx, cancel := context.WithCancel(s.base)

	// Register the cancel func before the status flips to running, so a
	// Cancel racing with Start never sees a running job it cannot stop.
	s.mu.Lock()
	if _, exists := s.cancels[id]; exists {
		s.mu.Unlock()
		cancel()
		return job.ErrAlreadyRunning
	}
	s.cancels[id] = cancel
	s.mu.Unlock()

	snapshot, err := s.claim(id)
	if err != nil {
		cancel()
		s.mu.Lock()
		delete(s.cancels, id)
		s.mu.Unlock()
		return err
	}

	go func() {
		defer func() {
			cancel()
			s.mu.Lock()
			delete(s.cancels, id)
			s.mu.Unlock()
		}()

		if err := s.sem.Acquire(runCtx, 1); err != nil {
			s.finishCancelled(id)
			return
		}
		defer s.sem.Release(1)

		s.execute(runCtx, snapshot)
	}()
	return nil
}

// RunSync creates a job and executes its pipeline on the caller's
// goroutine, blocking until terminal. It reuses the same store update
// sequence as the async path, so both produce identical record shapes.
func (s *Scheduler) RunSync(ctx context.Context, input job.InputRef, cfg job.Config) (job.Job, error) {
	id := s.store.Create(input, cfg)
	snapshot, err := s.claim(id)
	if err != nil {
		return job.Job{}, err
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		s.finishCancelled(id)
		return s.store.Get(id)
	}
	s.execute(ctx, snapshot)
	s.sem.Release(1)

	return s.store.Get(id)
}

// Cancel stops a pending or running job. Pending jobs transition straight
// to cancelled; running jobs have their context cancelled and stop at the
// next stage boundary. Terminal jobs return job.ErrTerminal.
func (s *Scheduler) Cancel(id string) error {
	j, err := s.store.Get(id)
	if err != nil {
		return err
	}

	switch j.Status {
	case job.StatusPending:
		return s.store.Update(id, func(j *job.Job) error {
			j.Status = job.StatusCancelled
			return nil
		})
	case job.StatusRunning:
		s.mu.Lock()
		cancel, ok := s.cancels[id]
		s.mu.Unlock()
		if ok {
			cancel()
			return nil
		}
		// Running but no registered cancel: the run belongs to a sync
		// caller whose context we do not own.
		return fmt.Errorf("job %s: no cancellable run", id)
	default:
		return job.ErrTerminal
	}
}

// claim performs the pending → running transition and returns the snapshot
// the run will work from.
func (s *Scheduler) claim(id string) (job.Job, error) {
	err := s.store.Update(id, func(j *job.Job) error {
		switch j.Status {
		case job.StatusPending:
			j.Status = job.StatusRunning
			return nil
		case job.StatusRunning:
			return job.ErrAlreadyRunning
		default:
			return job.ErrTerminal
		}
	})
	if err != nil {
		return job.Job{}, err
	}
	return s.store.Get(id)
}

// execute drives the runner for one claimed job and writes the terminal
// transition. All stage-level failures are absorbed into the record.
func (s *Scheduler) execute(ctx context.Context, snapshot job.Job) {
	start := time.Now()
	rc := &RunContext{
		Input:   snapshot.Input,
		Config:  snapshot.Config,
		Outputs: make(map[string]any),
	}
	obs := &progressWriter{store: s.store, id: snapshot.ID, logger: s.logger}

	err := s.runner.Run(ctx, rc, s.stages(snapshot.Config), obs)

	switch {
	case err == nil:
		result := s.assemble(rc, time.Since(start))
		err = s.store.Update(snapshot.ID, func(j *job.Job) error {
			j.Status = job.StatusCompleted
			j.FinalResult = result
			return nil
		})
		if err != nil {
			s.logger.Error("completing job", "job_id", snapshot.ID, "error", err)
		}
	case errors.Is(err, ErrCancelled):
		s.finishCancelled(snapshot.ID)
	default:
		var stageErr *job.StageError
		if !errors.As(err, &stageErr) {
			stageErr = &job.StageError{Stage: "pipeline", Message: err.Error()}
		}
		s.logger.Warn("job failed", "job_id", snapshot.ID, "stage", stageErr.Stage, "error", stageErr.Message)
		if err := s.store.Update(snapshot.ID, func(j *job.Job) error {
			j.Status = job.StatusFailed
			j.Err = stageErr
			return nil
		}); err != nil {
			s.logger.Error("failing job", "job_id", snapshot.ID, "error", err)
		}
	}

	if s.onDone != nil {
		if final, err := s.store.Get(snapshot.ID); err == nil && final.Status.Terminal() {
			s.onDone(final)
		}
	}
}

func (s *Scheduler) finishCancelled(id string) {
	err := s.store.Update(id, func(j *job.Job) error {
		j.Status = job.StatusCancelled
		return nil
	})
	if err != nil && !errors.Is(err, job.ErrTerminal) {
		s.logger.Error("cancelling job", "job_id", id, "error", err)
	}
}

// progressWriter records checkpoints and partial results in the store as
// the runner crosses stage boundaries. A reader polling mid-run observes
// checkpoints strictly in stage order.
type progressWriter struct {
	store  *job.Store
	id     string
	logger *slog.Logger
}

func (w *progressWriter) StageStarted(name string) {
	err := w.store.Update(w.id, func(j *job.Job) error {
		j.Progress = append(j.Progress, job.Checkpoint{
			Stage:     name,
			StartedAt: time.Now().UTC(),
		})
		return nil
	})
	if err != nil {
		w.logger.Error("recording stage start", "job_id", w.id, "stage", name, "error", err)
	}
}

func (w *progressWriter) StageFinished(name string, output any, stageErr error) {
	err := w.store.Update(w.id, func(j *job.Job) error {
		now := time.Now().UTC()
		for i := len(j.Progress) - 1; i >= 0; i-- {
			if j.Progress[i].Stage == name && j.Progress[i].FinishedAt == nil {
				j.Progress[i].FinishedAt = &now
				if stageErr != nil {
					j.Progress[i].Outcome = "failed"
				} else {
					j.Progress[i].Outcome = "ok"
				}
				break
			}
		}
		if stageErr == nil {
			if _, exists := j.PartialResults[name]; !exists {
				j.PartialResults[name] = output
			}
		}
		return nil
	})
	if err != nil {
		w.logger.Error("recording stage finish", "job_id", w.id, "stage", name, "error", err)
	}
}
