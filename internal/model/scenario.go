// The model package holds the shared vocabulary of the scenario platform.
// It is intentionally free of business logic beyond structural validation
// so that every other package can depend on it without cycles.
package model

import (
	"fmt"
	"time"
)

// TestType declares which kind of backend can run a scenario.
type TestType string

const (
	TestTypeUI    TestType = "ui"
	TestTypeAPI   TestType = "api"
	TestTypeMixed TestType = "mixed"
)

type ScenarioStatus string

const (
	StatusDraft      ScenarioStatus = "draft"
	StatusGenerated  ScenarioStatus = "generated"
	StatusValidated  ScenarioStatus = "validated"
	StatusActive     ScenarioStatus = "active"
	StatusDeprecated ScenarioStatus = "deprecated"
)

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// TestScenario is the unit of testable intent, generated from a user story.
// Scenarios are mutated only through whole-object replacement; the core never
// modifies a stored scenario in place.
type TestScenario struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	UserStory   string         `json:"userStory"`
	Type        TestType       `json:"type"`
	Status      ScenarioStatus `json:"status"`
	Priority    Priority       `json:"priority"`
	Environment Environment    `json:"environment"`
	ProjectID   string         `json:"projectId"`
	Steps       []TestStep     `json:"steps"`
	// Tags allow grouping of scenarios, e.g. by feature or team.
	Tags             []string  `json:"tags,omitempty"`
	Preconditions    []string  `json:"preconditions,omitempty"`
	ExpectedOutcomes []string  `json:"expectedOutcomes,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
	CreatedBy        string    `json:"createdBy"`
	// Timeout bounds the whole scenario execution. Zero means no limit.
	// Enforcing it is the executor's responsibility.
	Timeout time.Duration `json:"timeout,omitempty"`
	// RetryCount is the number of additional executions attempted when a
	// run fails. Only the final attempt's result is kept.
	RetryCount   int  `json:"retryCount"`
	ParallelSafe bool `json:"parallelSafe"`

	Metadata      map[string]Value `json:"metadata,omitempty"`
	Configuration map[string]Value `json:"configuration,omitempty"`
	TestData      map[string]Value `json:"testData,omitempty"`
}

// TestStep is one atomic action within a scenario.
type TestStep struct {
	ID          string `json:"id"`
	Order       int    `json:"order"`
	Action      string `json:"action"`
	Target      string `json:"target"`
	Description string `json:"description,omitempty"`
	Expected    string `json:"expected,omitempty"`
	// Parameters take precedence over StepData when a key exists in both.
	Parameters        map[string]Value `json:"parameters,omitempty"`
	StepData          map[string]Value `json:"stepData,omitempty"`
	Prerequisites     []string         `json:"prerequisites,omitempty"`
	Timeout           time.Duration    `json:"timeout,omitempty"`
	WaitBefore        time.Duration    `json:"waitBefore,omitempty"`
	WaitAfter         time.Duration    `json:"waitAfter,omitempty"`
	ContinueOnFailure bool             `json:"continueOnFailure"`
	Screenshot        bool             `json:"screenshot"`
	ValidationRules   []ValidationRule `json:"validationRules,omitempty"`
	Enabled           bool             `json:"enabled"`
	Tags              []string         `json:"tags,omitempty"`
}

// ValidationRule is an additional assertion evaluated by the executor after
// the step action ran.
type ValidationRule struct {
	Type     string `json:"type"`
	Target   string `json:"target,omitempty"`
	Expected Value  `json:"expected"`
	Message  string `json:"message,omitempty"`
}

// Known step actions. Executors may support a subset of these, declared via
// their capabilities.
const (
	ActionNavigate      = "navigate"
	ActionClick         = "click"
	ActionEnterText     = "enter_text"
	ActionSelect        = "select"
	ActionWait          = "wait"
	ActionVerify        = "verify"
	ActionGet           = "get"
	ActionPost          = "post"
	ActionPut           = "put"
	ActionPatch         = "patch"
	ActionDelete        = "delete"
	ActionAssertStatus  = "assert_status"
	ActionAssertBody    = "assert_body"
	ActionAssertHeader  = "assert_header"
	ActionAssertText    = "assert_text"
	ActionAssertElement = "assert_element"
)

var knownActions = map[string]struct{}{
	ActionNavigate:      {},
	ActionClick:         {},
	ActionEnterText:     {},
	ActionSelect:        {},
	ActionWait:          {},
	ActionVerify:        {},
	ActionGet:           {},
	ActionPost:          {},
	ActionPut:           {},
	ActionPatch:         {},
	ActionDelete:        {},
	ActionAssertStatus:  {},
	ActionAssertBody:    {},
	ActionAssertHeader:  {},
	ActionAssertText:    {},
	ActionAssertElement: {},
}

// requiredParams maps actions to the parameter keys they cannot run without.
var requiredParams = map[string][]string{
	ActionEnterText:     {"value"},
	ActionPost:          {"body"},
	ActionPut:           {"body"},
	ActionPatch:         {"body"},
	ActionWait:          {"duration"},
	ActionVerify:        {"expected"},
	ActionAssertStatus:  {"expected"},
	ActionAssertBody:    {"expected"},
	ActionAssertHeader:  {"expected"},
	ActionAssertText:    {"expected"},
	ActionAssertElement: {"expected"},
}

// Parameter resolves a step parameter, consulting Parameters first and
// falling back to StepData.
func (s TestStep) Parameter(key string) (Value, bool) {
	if v, ok := s.Parameters[key]; ok {
		return v, true
	}

	v, ok := s.StepData[key]

	return v, ok
}

// Validate checks the structural invariants of a step and returns a list of
// human readable issues. An empty list means the step is valid.
func (s TestStep) Validate() []string {
	var issues []string

	if s.Action == "" {
		issues = append(issues, fmt.Sprintf("step %d: action must not be empty", s.Order))
	} else if _, ok := knownActions[s.Action]; !ok {
		issues = append(issues, fmt.Sprintf("step %d: unknown action %q", s.Order, s.Action))
	}

	if s.Target == "" {
		issues = append(issues, fmt.Sprintf("step %d: target must not be empty", s.Order))
	}

	if s.Timeout < 0 {
		issues = append(issues, fmt.Sprintf("step %d: timeout must not be negative", s.Order))
	}
	if s.WaitBefore < 0 || s.WaitAfter < 0 {
		issues = append(issues, fmt.Sprintf("step %d: wait durations must not be negative", s.Order))
	}

	for _, key := range requiredParams[s.Action] {
		if _, ok := s.Parameter(key); !ok {
			issues = append(issues, fmt.Sprintf("step %d: action %q requires parameter %q", s.Order, s.Action, key))
		}
	}

	return issues
}

// Validate checks the structural invariants of the scenario, including every
// step. An empty list means the scenario may be persisted and executed.
func (s TestScenario) Validate() []string {
	var issues []string

	if s.Title == "" {
		issues = append(issues, "title must not be empty")
	}
	if s.ProjectID == "" {
		issues = append(issues, "project id must not be empty")
	}
	if len(s.Steps) == 0 {
		issues = append(issues, "scenario must contain at least one step")
	}
	if s.Timeout < 0 {
		issues = append(issues, "timeout must be positive")
	}
	if s.RetryCount < 0 {
		issues = append(issues, "retry count must not be negative")
	}

	for _, step := range s.Steps {
		issues = append(issues, step.Validate()...)
	}

	return issues
}

// EnabledSteps returns the steps an executor must run, in declared order.
func (s TestScenario) EnabledSteps() []TestStep {
	steps := make([]TestStep, 0, len(s.Steps))

	for _, step := range s.Steps {
		if step.Enabled {
			steps = append(steps, step)
		}
	}

	return steps
}
