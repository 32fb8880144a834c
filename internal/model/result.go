package model

import (
	"time"

	"github.com/google/uuid"
)

// TestResult is the record of a single scenario execution. It is created
// empty by an executor, appended to per step, finalized exactly once via
// Complete and immutable after it was persisted.
type TestResult struct {
	ID          string       `json:"id"`
	ScenarioID  string       `json:"scenarioId"`
	Environment Environment  `json:"environment"`
	StartedAt   time.Time    `json:"startedAt"`
	CompletedAt time.Time    `json:"completedAt"`
	// Duration is always CompletedAt - StartedAt.
	Duration time.Duration `json:"duration"`
	Passed   bool          `json:"passed"`
	Message  string        `json:"message,omitempty"`
	Steps    []StepResult  `json:"steps"`
	// ExecutorTags identify the backend that produced this result.
	ExecutorTags []string         `json:"executorTags,omitempty"`
	Metadata     map[string]Value `json:"metadata,omitempty"`
}

// StepResult is the outcome of one step within a scenario execution.
type StepResult struct {
	StepID      string        `json:"stepId"`
	Name        string        `json:"name"`
	Action      string        `json:"action"`
	Target      string        `json:"target"`
	Passed      bool          `json:"passed"`
	Message     string        `json:"message,omitempty"`
	StartedAt   time.Time     `json:"startedAt"`
	CompletedAt time.Time     `json:"completedAt"`
	Duration    time.Duration `json:"duration"`
	Screenshot  string        `json:"screenshot,omitempty"`
	// ContinueOnFailure mirrors the step flag so that Complete can decide
	// whether this step's failure fails the whole run.
	ContinueOnFailure bool `json:"continueOnFailure"`
}

// NewTestResult returns an empty result for a starting execution.
func NewTestResult(scenarioID string, env Environment) TestResult {
	return TestResult{
		ID:          uuid.NewString(),
		ScenarioID:  scenarioID,
		Environment: env,
		StartedAt:   time.Now(),
		Steps:       []StepResult{},
	}
}

// NewStepResult starts the result record for a step.
func NewStepResult(step TestStep) StepResult {
	return StepResult{
		StepID:            step.ID,
		Name:              step.Description,
		Action:            step.Action,
		Target:            step.Target,
		StartedAt:         time.Now(),
		ContinueOnFailure: step.ContinueOnFailure,
	}
}

// Finish closes a step result and derives its duration.
func (sr StepResult) Finish(passed bool, message string) StepResult {
	sr.CompletedAt = time.Now()
	sr.Duration = sr.CompletedAt.Sub(sr.StartedAt)
	sr.Passed = passed
	sr.Message = message

	return sr
}

// AddStep appends a finished step result.
func (r *TestResult) AddStep(sr StepResult) {
	r.Steps = append(r.Steps, sr)
}

// Completed reports whether Complete has already been called.
func (r TestResult) Completed() bool {
	return !r.CompletedAt.IsZero()
}

// Complete finalizes the result: it stamps the completion time, derives the
// duration and computes the overall outcome. The run passed iff every step
// that is not marked continue-on-failure passed. Calling Complete on an
// already finalized result is a no-op.
func (r *TestResult) Complete(message string) {
	if r.Completed() {
		return
	}

	r.CompletedAt = time.Now()
	r.Duration = r.CompletedAt.Sub(r.StartedAt)
	r.Message = message

	passed := true

	for _, sr := range r.Steps {
		if !sr.Passed && !sr.ContinueOnFailure {
			passed = false
			break
		}
	}

	r.Passed = passed
}

// FirstFailure returns the first failed step result, if any.
func (r TestResult) FirstFailure() (StepResult, bool) {
	for _, sr := range r.Steps {
		if !sr.Passed {
			return sr, true
		}
	}

	return StepResult{}, false
}

// ValidationResult is the generator's quality judgement of a scenario.
type ValidationResult struct {
	IsValid         bool     `json:"isValid"`
	QualityScore    int      `json:"qualityScore"`
	Issues          []string `json:"issues,omitempty"`
	Suggestions     []string `json:"suggestions,omitempty"`
	MissingCoverage []string `json:"missingCoverage,omitempty"`
}

// ExecutorValidation is an executor's pre-flight check of a scenario,
// independent of execution.
type ExecutorValidation struct {
	CanExecute bool     `json:"canExecute"`
	Messages   []string `json:"messages,omitempty"`
}

// Capabilities describe what an executor backend supports.
type Capabilities struct {
	SupportedTypes        []TestType `json:"supportedTypes"`
	SupportedActions      []string   `json:"supportedActions"`
	MaxParallelExecutions int        `json:"maxParallelExecutions"`
	SupportsScreenshots   bool       `json:"supportsScreenshots"`
	SupportsVideo         bool       `json:"supportsVideo"`
}

// HealthCheckResult is the outcome of an executor liveness probe.
type HealthCheckResult struct {
	IsHealthy    bool          `json:"isHealthy"`
	Message      string        `json:"message,omitempty"`
	ResponseTime time.Duration `json:"responseTime"`
	CheckedAt    time.Time     `json:"checkedAt"`
}
