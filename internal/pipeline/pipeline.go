// Package pipeline defines the stage contract and the single-pass runner
// that executes an ordered list of stages for one job.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/ilyakh/docsum/internal/job"
)

// RunContext is the accumulated state a stage may read: the original input
// handle, the job's config, and the outputs of every prior stage. Stages
// never write job state themselves; the scheduler owns all store mutation.
type RunContext struct {
	Input   job.InputRef
	Config  job.Config
	Outputs map[string]any
}

// Output returns the named prior stage's output, or nil if it has not run.
func (rc *RunContext) Output(stage string) any {
	if rc.Outputs == nil {
		return nil
	}
	return rc.Outputs[stage]
}

// StageFunc consumes the run context and produces the stage's output or an
// error. A failing stage stops the run; classification of transient errors
// (and any internal retrying) is the stage's own responsibility.
type StageFunc func(ctx context.Context, rc *RunContext) (any, error)

// Stage is one named, ordered pipeline step.
type Stage struct {
	Name string
	Run  StageFunc
}

// Observer receives callbacks around each stage so the caller can record
// progress. Callbacks run on the executing goroutine, in stage order.
type Observer interface {
	StageStarted(name string)
	StageFinished(name string, output any, err error)
}

// ErrCancelled is returned by Run when the context is cancelled at a stage
// boundary; the run stops without being treated as a stage failure.
var ErrCancelled = errors.New("pipeline run cancelled")

// Runner executes stages in order, threading each output into the run
// context, and stops at the first failure. Strictly single-pass: no retries.
type Runner struct{}

// Run invokes each stage in order. On success rc.Outputs holds every stage's
// output and the returned error is nil. On the first stage failure it
// returns a *job.StageError naming the failing stage; outputs of earlier
// stages remain in rc.Outputs. Cancellation is checked only at stage
// boundaries and surfaces as ErrCancelled.
func (r *Runner) Run(ctx context.Context, rc *RunContext, stages []Stage, obs Observer) error {
	if rc.Outputs == nil {
		rc.Outputs = make(map[string]any)
	}

	for _, st := range stages {
		if ctx.Err() != nil {
			return ErrCancelled
		}

		if obs != nil {
			obs.StageStarted(st.Name)
		}

		out, err := runStage(ctx, st, rc)

		if obs != nil {
			obs.StageFinished(st.Name, out, err)
		}
		if err != nil {
			if ctx.Err() != nil {
				return ErrCancelled
			}
			return &job.StageError{Stage: st.Name, Message: err.Error()}
		}

		rc.Outputs[st.Name] = out
	}
	return nil
}

// runStage invokes one stage, absorbing panics into an ordinary error. The
// pdf parser in particular can panic on malformed content streams that pass
// the upload-time open check; one bad document must fail its own job, not
// the process.
func runStage(ctx context.Context, st Stage, rc *RunContext) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return st.Run(ctx, rc)
}
