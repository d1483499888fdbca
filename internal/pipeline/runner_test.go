package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func TestRunnerExecutesStepsInOrder(t *testing.T) {
	var order []StepID
	var events []string

	runner := NewRunner(zaptest.NewLogger(t), ObserverFunc(func(e Event) {
		events = append(events, e.Type)
	}))

	step := func(id StepID) Step {
		return Step{ID: id, Execute: func(ctx context.Context) error {
			order = append(order, id)
			return nil
		}}
	}

	run, err := runner.Run(context.Background(), Definition{
		Name:  "converse",
		Steps: []Step{step("transcribe"), step("reply"), step("synthesize")},
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if run.State != RunStateCompleted {
		t.Errorf("Expected completed state, got %s", run.State)
	}

	expected := []StepID{"transcribe", "reply", "synthesize"}
	if len(order) != len(expected) {
		t.Fatalf("Expected %d steps executed, got %d", len(expected), len(order))
	}
	for i, id := range expected {
		if order[i] != id {
			t.Errorf("Expected step %d to be %s, got %s", i, id, order[i])
		}
		if run.Steps[i].State != StepStateCompleted {
			t.Errorf("Expected step %s completed, got %s", id, run.Steps[i].State)
		}
	}

	if events[0] != EventRunStarted || events[len(events)-1] != EventRunCompleted {
		t.Errorf("Unexpected event sequence %v", events)
	}
	if run.ID == "" {
		t.Error("Expected run to have an ID")
	}
}

func TestRunnerStopsAtFirstFailure(t *testing.T) {
	errBoom := errors.New("boom")
	synthesized := false
	var failedStep StepID

	runner := NewRunner(zaptest.NewLogger(t), ObserverFunc(func(e Event) {
		if e.Type == EventStepFailed {
			failedStep = e.StepID
		}
	}))

	run, err := runner.Run(context.Background(), Definition{
		Name: "converse",
		Steps: []Step{
			{ID: "transcribe", Execute: func(ctx context.Context) error { return nil }},
			{ID: "reply", Execute: func(ctx context.Context) error { return errBoom }},
			{ID: "synthesize", Execute: func(ctx context.Context) error {
				synthesized = true
				return nil
			}},
		},
	})

	if !errors.Is(err, errBoom) {
		t.Fatalf("Expected step error, got %v", err)
	}
	if synthesized {
		t.Error("Expected later steps to be skipped")
	}
	if run.State != RunStateFailed {
		t.Errorf("Expected failed state, got %s", run.State)
	}
	if run.Steps[2].State != StepStateSkipped {
		t.Errorf("Expected skipped state, got %s", run.Steps[2].State)
	}
	if failedStep != "reply" {
		t.Errorf("Expected reply step to fail, got %s", failedStep)
	}
}

func TestRunnerAppliesTimeout(t *testing.T) {
	runner := NewRunner(zaptest.NewLogger(t))

	_, err := runner.Run(context.Background(), Definition{
		Name:    "slow",
		Timeout: 10 * time.Millisecond,
		Steps: []Step{{ID: "wait", Execute: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}}},
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}

func TestRunnerRejectsEmptyDefinition(t *testing.T) {
	runner := NewRunner(zaptest.NewLogger(t))
	if _, err := runner.Run(context.Background(), Definition{Name: "empty"}); err == nil {
		t.Error("Expected error for definition without steps")
	}
}
