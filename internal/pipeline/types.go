package pipeline

import (
	"context"
	"time"
)

// RunState represents the current state of a pipeline run
type RunState string

const (
	RunStateStarted   RunState = "started"
	RunStateRunning   RunState = "running"
	RunStateCompleted RunState = "completed"
	RunStateFailed    RunState = "failed"
)

// StepState represents the state of an individual step
type StepState string

const (
	StepStatePending   StepState = "pending"
	StepStateRunning   StepState = "running"
	StepStateCompleted StepState = "completed"
	StepStateFailed    StepState = "failed"
	StepStateSkipped   StepState = "skipped"
)

// RunID uniquely identifies a pipeline run
type RunID string

// StepID uniquely identifies a step within a pipeline
type StepID string

// Step is one stage of a pipeline. Steps share state through whatever the
// Execute closure captures.
type Step struct {
	ID      StepID
	Execute func(ctx context.Context) error
}

// Definition defines the steps of one pipeline run, executed in order
type Definition struct {
	Name    string
	Steps   []Step
	Timeout time.Duration
}

// Run is the record of one pipeline execution
type Run struct {
	ID          RunID           `json:"id"`
	Definition  string          `json:"definition"`
	State       RunState        `json:"state"`
	Steps       []StepExecution `json:"steps"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// Duration is how long the run took, zero while it is still running
func (r *Run) Duration() time.Duration {
	if r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}

// StepExecution represents the execution state of a step
type StepExecution struct {
	ID          StepID     `json:"id"`
	State       StepState  `json:"state"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// Event represents an event in the run lifecycle
type Event struct {
	RunID      RunID         `json:"run_id"`
	Definition string        `json:"definition"`
	StepID     StepID        `json:"step_id,omitempty"`
	Type       string        `json:"type"`
	Timestamp  time.Time     `json:"timestamp"`
	Duration   time.Duration `json:"duration,omitempty"`
	Error      error         `json:"-"`
}

// Event types
const (
	EventRunStarted    = "run_started"
	EventRunCompleted  = "run_completed"
	EventRunFailed     = "run_failed"
	EventStepStarted   = "step_started"
	EventStepCompleted = "step_completed"
	EventStepFailed    = "step_failed"
)

// Observer receives run events synchronously, e.g. to record metrics
type Observer interface {
	Observe(event Event)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(event Event)

func (f ObserverFunc) Observe(event Event) { f(event) }
