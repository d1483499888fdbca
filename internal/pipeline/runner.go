package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Runner executes pipeline definitions. Steps run strictly in order in the
// caller's goroutine, each exactly once; the first failure ends the run and
// the remaining steps are skipped.
type Runner struct {
	logger    *zap.Logger
	observers []Observer
}

// NewRunner creates a new pipeline runner
func NewRunner(logger *zap.Logger, observers ...Observer) *Runner {
	return &Runner{
		logger:    logger,
		observers: observers,
	}
}

// Run executes def and returns its record. The returned error is the
// failing step's error, unwrapped, so callers can match sentinels on it.
func (r *Runner) Run(ctx context.Context, def Definition) (*Run, error) {
	if len(def.Steps) == 0 {
		return nil, fmt.Errorf("pipeline %s has no steps", def.Name)
	}

	run := &Run{
		ID:         RunID(uuid.NewString()),
		Definition: def.Name,
		State:      RunStateStarted,
		Steps:      make([]StepExecution, len(def.Steps)),
		StartedAt:  time.Now(),
	}
	for i, step := range def.Steps {
		run.Steps[i] = StepExecution{ID: step.ID, State: StepStatePending}
	}

	r.emit(Event{RunID: run.ID, Definition: def.Name, Type: EventRunStarted, Timestamp: run.StartedAt})

	if def.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, def.Timeout)
		defer cancel()
	}

	run.State = RunStateRunning

	var runErr error
	for i, step := range def.Steps {
		if runErr != nil {
			run.Steps[i].State = StepStateSkipped
			continue
		}
		if err := r.executeStep(ctx, run, i, step); err != nil {
			r.logger.Error("Step failed",
				zap.String("runID", string(run.ID)),
				zap.String("pipeline", def.Name),
				zap.String("stepID", string(step.ID)),
				zap.Error(err))
			runErr = err
		}
	}

	now := time.Now()
	run.CompletedAt = &now

	if runErr != nil {
		run.State = RunStateFailed
		run.Error = runErr.Error()
		r.emit(Event{RunID: run.ID, Definition: def.Name, Type: EventRunFailed, Timestamp: now, Duration: run.Duration(), Error: runErr})
		return run, runErr
	}

	run.State = RunStateCompleted
	r.emit(Event{RunID: run.ID, Definition: def.Name, Type: EventRunCompleted, Timestamp: now, Duration: run.Duration()})

	r.logger.Info("Pipeline completed",
		zap.String("runID", string(run.ID)),
		zap.String("pipeline", def.Name),
		zap.Duration("duration", run.Duration()))

	return run, nil
}

// executeStep executes a single step
func (r *Runner) executeStep(ctx context.Context, run *Run, index int, step Step) error {
	if err := ctx.Err(); err != nil {
		r.failStep(run, index, step, time.Now(), err)
		return err
	}

	started := time.Now()
	run.Steps[index].State = StepStateRunning
	run.Steps[index].StartedAt = &started

	r.emit(Event{RunID: run.ID, Definition: run.Definition, StepID: step.ID, Type: EventStepStarted, Timestamp: started})

	if err := step.Execute(ctx); err != nil {
		r.failStep(run, index, step, started, err)
		return err
	}

	now := time.Now()
	run.Steps[index].State = StepStateCompleted
	run.Steps[index].CompletedAt = &now

	r.emit(Event{RunID: run.ID, Definition: run.Definition, StepID: step.ID, Type: EventStepCompleted, Timestamp: now, Duration: now.Sub(started)})

	r.logger.Debug("Step completed",
		zap.String("runID", string(run.ID)),
		zap.String("stepID", string(step.ID)),
		zap.Duration("duration", now.Sub(started)))

	return nil
}

func (r *Runner) failStep(run *Run, index int, step Step, started time.Time, err error) {
	now := time.Now()
	run.Steps[index].State = StepStateFailed
	run.Steps[index].CompletedAt = &now
	run.Steps[index].Error = err.Error()

	r.emit(Event{RunID: run.ID, Definition: run.Definition, StepID: step.ID, Type: EventStepFailed, Timestamp: now, Duration: now.Sub(started), Error: err})
}

func (r *Runner) emit(event Event) {
	for _, observer := range r.observers {
		observer.Observe(event)
	}
}
