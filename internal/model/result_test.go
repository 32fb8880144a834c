package model_test

import (
	"testing"
	"time"

	"github.com/storyline-qa/storyline/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestCompleteDerivesPassedFromSteps(t *testing.T) {
	t.Parallel()

	r := model.NewTestResult("sc-1", model.EnvTesting)
	r.AddStep(model.StepResult{StepID: "st-1", Passed: true})
	r.AddStep(model.StepResult{StepID: "st-2", Passed: true})

	r.Complete("done")

	assert.True(t, r.Passed)
	assert.True(t, r.Completed())
	assert.Equal(t, "done", r.Message)
	assert.Equal(t, r.CompletedAt.Sub(r.StartedAt), r.Duration)
}

func TestCompleteFailsOnFailedStep(t *testing.T) {
	t.Parallel()

	r := model.NewTestResult("sc-1", model.EnvTesting)
	r.AddStep(model.StepResult{StepID: "st-1", Passed: true})
	r.AddStep(model.StepResult{StepID: "st-2", Passed: false})

	r.Complete("")

	assert.False(t, r.Passed)
}

func TestCompleteIgnoresContinueOnFailureSteps(t *testing.T) {
	t.Parallel()

	r := model.NewTestResult("sc-1", model.EnvTesting)
	r.AddStep(model.StepResult{StepID: "st-1", Passed: false, ContinueOnFailure: true})
	r.AddStep(model.StepResult{StepID: "st-2", Passed: true})

	r.Complete("")

	assert.True(t, r.Passed)
}

func TestCompleteIsIdempotent(t *testing.T) {
	t.Parallel()

	r := model.NewTestResult("sc-1", model.EnvTesting)
	r.AddStep(model.StepResult{StepID: "st-1", Passed: true})

	r.Complete("first")

	completedAt := r.CompletedAt

	time.Sleep(time.Millisecond)
	r.Complete("second")

	assert.Equal(t, "first", r.Message)
	assert.Equal(t, completedAt, r.CompletedAt)
}

func TestFirstFailureReturnsEarliestFailedStep(t *testing.T) {
	t.Parallel()

	r := model.NewTestResult("sc-1", model.EnvTesting)
	r.AddStep(model.StepResult{StepID: "st-1", Passed: true})
	r.AddStep(model.StepResult{StepID: "st-2", Passed: false})
	r.AddStep(model.StepResult{StepID: "st-3", Passed: false})

	failed, ok := r.FirstFailure()

	assert.True(t, ok)
	assert.Equal(t, "st-2", failed.StepID)
}

func TestFinishDerivesStepDuration(t *testing.T) {
	t.Parallel()

	sr := model.NewStepResult(model.TestStep{ID: "st-1", Action: model.ActionClick, Target: "#go"})
	sr = sr.Finish(true, "clicked")

	assert.True(t, sr.Passed)
	assert.Equal(t, "clicked", sr.Message)
	assert.Equal(t, sr.CompletedAt.Sub(sr.StartedAt), sr.Duration)
}
