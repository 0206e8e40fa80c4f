package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ilyakh/docsum/internal/job"
)

// twoStageBuilder returns a fixed extract/summarize-shaped pair of stages
// where the second can be made to fail or block.
func twoStageBuilder(failSecond bool, block chan struct{}) StageBuilder {
	return func(cfg job.Config) []Stage {
		return []Stage{
			{Name: "first", Run: func(ctx context.Context, rc *RunContext) (any, error) {
				return "first-out", nil
			}},
			{Name: "second", Run: func(ctx context.Context, rc *RunContext) (any, error) {
				if block != nil {
					select {
					case <-block:
					case <-ctx.Done():
						return nil, ctx.Err()
					}
				}
				if failSecond {
					return nil, errors.New("bad encoding")
				}
				return "second-out", nil
			}},
		}
	}
}

func testAssembler(rc *RunContext, elapsed time.Duration) any {
	return map[string]any{
		"first":  rc.Output("first"),
		"second": rc.Output("second"),
	}
}

func waitTerminal(t *testing.T, store *job.Store, id string) job.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		j, err := store.Get(id)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if j.Status.Terminal() {
			return j
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s never reached a terminal state", id)
	return job.Job{}
}

func TestAsyncRunCompletes(t *testing.T) {
	store := job.NewStore()
	s := NewScheduler(context.Background(), store, twoStageBuilder(false, nil), testAssembler, 2, nil)

	id := s.Submit(job.InputRef{Filename: "a.pdf"}, job.Config{})
	if err := s.Start(id); err != nil {
		t.Fatalf("Start: %v", err)
	}

	j := waitTerminal(t, store, id)
	if j.Status != job.StatusCompleted {
		t.Fatalf("status = %s, want completed (err: %v)", j.Status, j.Err)
	}

	result, ok := j.FinalResult.(map[string]any)
	if !ok {
		t.Fatalf("final result has type %T", j.FinalResult)
	}
	if result["first"] != "first-out" || result["second"] != "second-out" {
		t.Errorf("assembled result = %v", result)
	}

	if len(j.Progress) != 2 {
		t.Fatalf("progress has %d checkpoints, want 2", len(j.Progress))
	}
	for i, name := range []string{"first", "second"} {
		cp := j.Progress[i]
		if cp.Stage != name || cp.Outcome != "ok" || cp.FinishedAt == nil {
			t.Errorf("checkpoint %d = %+v", i, cp)
		}
	}
	if j.PartialResults["first"] != "first-out" || j.PartialResults["second"] != "second-out" {
		t.Errorf("partial results = %v", j.PartialResults)
	}
}

func TestStageFailureRecordsStageAndKeepsEarlierPartials(t *testing.T) {
	store := job.NewStore()
	s := NewScheduler(context.Background(), store, twoStageBuilder(true, nil), testAssembler, 2, nil)

	id := s.Submit(job.InputRef{Filename: "bad.pdf"}, job.Config{})
	if err := s.Start(id); err != nil {
		t.Fatalf("Start: %v", err)
	}

	j := waitTerminal(t, store, id)
	if j.Status != job.StatusFailed {
		t.Fatalf("status = %s, want failed", j.Status)
	}
	if j.Err == nil || j.Err.Stage != "second" {
		t.Fatalf("error = %+v, want stage second", j.Err)
	}
	if j.FinalResult != nil {
		t.Error("failed job carries a final result")
	}
	if _, ok := j.PartialResults["first"]; !ok {
		t.Error("partial result of completed stage missing")
	}
	if _, ok := j.PartialResults["second"]; ok {
		t.Error("failed stage left a partial result")
	}
	last := j.Progress[len(j.Progress)-1]
	if last.Stage != "second" || last.Outcome != "failed" {
		t.Errorf("last checkpoint = %+v", last)
	}
}

func TestSyncAndAsyncProduceSameRecordShape(t *testing.T) {
	store := job.NewStore()
	s := NewScheduler(context.Background(), store, twoStageBuilder(false, nil), testAssembler, 2, nil)

	asyncID := s.Submit(job.InputRef{Filename: "a.pdf"}, job.Config{})
	if err := s.Start(asyncID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	asyncJob := waitTerminal(t, store, asyncID)

	syncJob, err := s.RunSync(context.Background(), job.InputRef{Filename: "a.pdf"}, job.Config{})
	if err != nil {
		t.Fatalf("RunSync: %v", err)
	}

	if asyncJob.Status != syncJob.Status {
		t.Errorf("status differs: async %s, sync %s", asyncJob.Status, syncJob.Status)
	}
	if len(asyncJob.Progress) != len(syncJob.Progress) {
		t.Errorf("checkpoint counts differ: async %d, sync %d", len(asyncJob.Progress), len(syncJob.Progress))
	}
	if len(asyncJob.PartialResults) != len(syncJob.PartialResults) {
		t.Errorf("partial result counts differ: async %d, sync %d",
			len(asyncJob.PartialResults), len(syncJob.PartialResults))
	}
}

func TestDuplicateStartRejected(t *testing.T) {
	store := job.NewStore()
	block := make(chan struct{})
	s := NewScheduler(context.Background(), store, twoStageBuilder(false, block), testAssembler, 2, nil)

	id := s.Submit(job.InputRef{Filename: "a.pdf"}, job.Config{})
	if err := s.Start(id); err != nil {
		t.Fatalf("first Start: %v", err)
	}

	// Wait until the run has claimed the record.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if j, _ := store.Get(id); j.Status == job.StatusRunning {
			break
		}
		time.Sleep(time.Millisecond)
	}

	if err := s.Start(id); !errors.Is(err, job.ErrAlreadyRunning) {
		t.Errorf("second Start: err = %v, want ErrAlreadyRunning", err)
	}

	close(block)
	if j := waitTerminal(t, store, id); j.Status != job.StatusCompleted {
		t.Errorf("status = %s, want completed", j.Status)
	}
}

func TestStartTerminalJobRejected(t *testing.T) {
	store := job.NewStore()
	s := NewScheduler(context.Background(), store, twoStageBuilder(false, nil), testAssembler, 2, nil)

	id := s.Submit(job.InputRef{Filename: "a.pdf"}, job.Config{})
	if err := s.Start(id); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitTerminal(t, store, id)

	if err := s.Start(id); !errors.Is(err, job.ErrTerminal) {
		t.Errorf("Start on terminal job: err = %v, want ErrTerminal", err)
	}
}

func TestCancelPendingJob(t *testing.T) {
	store := job.NewStore()
	s := NewScheduler(context.Background(), store, twoStageBuilder(false, nil), testAssembler, 2, nil)

	id := s.Submit(job.InputRef{Filename: "a.pdf"}, job.Config{})
	if err := s.Cancel(id); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	j, _ := store.Get(id)
	if j.Status != job.StatusCancelled {
		t.Errorf("status = %s, want cancelled", j.Status)
	}
}

func TestCancelRunningJobStopsAtBoundary(t *testing.T) {
	store := job.NewStore()
	block := make(chan struct{})
	s := NewScheduler(context.Background(), store, twoStageBuilder(false, block), testAssembler, 2, nil)

	id := s.Submit(job.InputRef{Filename: "a.pdf"}, job.Config{})
	if err := s.Start(id); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Wait for the second stage to be entered (first checkpoint finished).
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		j, _ := store.Get(id)
		if len(j.Progress) == 2 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	if err := s.Cancel(id); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	j := waitTerminal(t, store, id)
	if j.Status != job.StatusCancelled {
		t.Fatalf("status = %s, want cancelled", j.Status)
	}
	if _, ok := j.PartialResults["first"]; !ok {
		t.Error("completed stage's partial result dropped on cancellation")
	}
	if j.FinalResult != nil {
		t.Error("cancelled job carries a final result")
	}
}

func TestCancelTerminalJobRejected(t *testing.T) {
	store := job.NewStore()
	s := NewScheduler(context.Background(), store, twoStageBuilder(false, nil), testAssembler, 2, nil)

	id := s.Submit(job.InputRef{Filename: "a.pdf"}, job.Config{})
	if err := s.Start(id); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitTerminal(t, store, id)

	if err := s.Cancel(id); !errors.Is(err, job.ErrTerminal) {
		t.Errorf("Cancel terminal job: err = %v, want ErrTerminal", err)
	}
}

func TestTerminalHookObservesFinalRecord(t *testing.T) {
	store := job.NewStore()

	var mu sync.Mutex
	var seen []job.Job
	hook := func(j job.Job) {
		mu.Lock()
		seen = append(seen, j)
		mu.Unlock()
	}

	s := NewScheduler(context.Background(), store, twoStageBuilder(false, nil), testAssembler, 2, hook)

	if _, err := s.RunSync(context.Background(), job.InputRef{Filename: "a.pdf"}, job.Config{}); err != nil {
		t.Fatalf("RunSync: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 1 {
		t.Fatalf("hook called %d times, want 1", len(seen))
	}
	if seen[0].Status != job.StatusCompleted {
		t.Errorf("hook saw status %s, want completed", seen[0].Status)
	}
	if seen[0].FinalResult == nil {
		t.Error("hook saw no final result")
	}
}

func TestPanickingStageFailsJobNotProcess(t *testing.T) {
	store := job.NewStore()
	builder := func(cfg job.Config) []Stage {
		return []Stage{{Name: "extract", Run: func(ctx context.Context, rc *RunContext) (any, error) {
			panic("malformed xref table")
		}}}
	}
	s := NewScheduler(context.Background(), store, builder, testAssembler, 2, nil)

	id := s.Submit(job.InputRef{Filename: "bad.pdf"}, job.Config{})
	if err := s.Start(id); err != nil {
		t.Fatalf("Start: %v", err)
	}

	j := waitTerminal(t, store, id)
	if j.Status != job.StatusFailed {
		t.Fatalf("status = %s, want failed", j.Status)
	}
	if j.Err == nil || j.Err.Stage != "extract" {
		t.Fatalf("error = %+v, want stage extract", j.Err)
	}
	if !strings.Contains(j.Err.Message, "malformed xref table") {
		t.Errorf("error message = %q, panic value lost", j.Err.Message)
	}
}

func TestEntityStageFailureScenario(t *testing.T) {
	store := job.NewStore()
	builder := func(cfg job.Config) []Stage {
		return []Stage{
			{Name: "extract", Run: func(ctx context.Context, rc *RunContext) (any, error) {
				return "page text", nil
			}},
			{Name: "entities", Run: func(ctx context.Context, rc *RunContext) (any, error) {
				return nil, errors.New("bad-encoding")
			}},
			{Name: "summarize", Run: func(ctx context.Context, rc *RunContext) (any, error) {
				t.Error("stage after the failure was executed")
				return nil, nil
			}},
		}
	}
	s := NewScheduler(context.Background(), store, builder, testAssembler, 2, nil)

	id := s.Submit(job.InputRef{Filename: "a.pdf"}, job.Config{ExtractEntities: true})
	if err := s.Start(id); err != nil {
		t.Fatalf("Start: %v", err)
	}

	j := waitTerminal(t, store, id)
	if j.Status != job.StatusFailed {
		t.Fatalf("status = %s, want failed", j.Status)
	}
	if j.Err == nil || j.Err.Stage != "entities" {
		t.Fatalf("error = %+v, want stage entities", j.Err)
	}
	if j.Err.Message != "bad-encoding" {
		t.Errorf("error message = %q, want bad-encoding", j.Err.Message)
	}
	if len(j.PartialResults) != 1 || j.PartialResults["extract"] != "page text" {
		t.Errorf("partial results = %v, want only the extract output", j.PartialResults)
	}
}

func TestCancelImmediatelyAfterStart(t *testing.T) {
	store := job.NewStore()
	block := make(chan struct{})
	s := NewScheduler(context.Background(), store, twoStageBuilder(false, block), testAssembler, 2, nil)

	// No wait between Start and Cancel: whichever state Cancel observes,
	// it must be able to stop the job.
	id := s.Submit(job.InputRef{Filename: "a.pdf"}, job.Config{})
	if err := s.Start(id); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Cancel(id); err != nil {
		t.Fatalf("Cancel right after Start: %v", err)
	}

	j := waitTerminal(t, store, id)
	if j.Status != job.StatusCancelled {
		t.Errorf("status = %s, want cancelled", j.Status)
	}
}

func TestConcurrencyBound(t *testing.T) {
	store := job.NewStore()
	block := make(chan struct{})

	var mu sync.Mutex
	active, peak := 0, 0
	builder := func(cfg job.Config) []Stage {
		return []Stage{{Name: "only", Run: func(ctx context.Context, rc *RunContext) (any, error) {
			mu.Lock()
			active++
			if active > peak {
				peak = active
			}
			mu.Unlock()

			<-block

			mu.Lock()
			active--
			mu.Unlock()
			return "ok", nil
		}}}
	}

	s := NewScheduler(context.Background(), store, builder, testAssembler, 2, nil)

	var ids []string
	for i := 0; i < 6; i++ {
		id := s.Submit(job.InputRef{Filename: "a.pdf"}, job.Config{})
		if err := s.Start(id); err != nil {
			t.Fatalf("Start %d: %v", i, err)
		}
		ids = append(ids, id)
	}

	time.Sleep(50 * time.Millisecond)
	close(block)
	for _, id := range ids {
		waitTerminal(t, store, id)
	}

	mu.Lock()
	defer mu.Unlock()
	if peak > 2 {
		t.Errorf("observed %d concurrent runs, bound is 2", peak)
	}
}
