package model_test

import (
	"testing"
	"time"

	"github.com/storyline-qa/storyline/internal/model"
	"github.com/stretchr/testify/assert"
)

func validScenario() model.TestScenario {
	return model.TestScenario{
		ID:        "sc-1",
		Title:     "Login flow",
		ProjectID: "proj-1",
		Type:      model.TestTypeUI,
		Steps: []model.TestStep{
			{
				ID:      "st-1",
				Order:   1,
				Action:  model.ActionNavigate,
				Target:  "https://example.com",
				Enabled: true,
			},
		},
	}
}

func TestValidScenarioHasNoIssues(t *testing.T) {
	t.Parallel()

	assert.Empty(t, validScenario().Validate())
}

func TestScenarioWithoutStepsIsInvalid(t *testing.T) {
	t.Parallel()

	sc := validScenario()
	sc.Steps = nil

	issues := sc.Validate()

	assert.Contains(t, issues, "scenario must contain at least one step")
}

func TestScenarioWithoutTitleAndProjectIsInvalid(t *testing.T) {
	t.Parallel()

	sc := validScenario()
	sc.Title = ""
	sc.ProjectID = ""

	issues := sc.Validate()

	assert.Contains(t, issues, "title must not be empty")
	assert.Contains(t, issues, "project id must not be empty")
}

func TestNegativeRetryCountIsInvalid(t *testing.T) {
	t.Parallel()

	sc := validScenario()
	sc.RetryCount = -1

	assert.Contains(t, sc.Validate(), "retry count must not be negative")
}

func TestStepWithUnknownActionIsInvalid(t *testing.T) {
	t.Parallel()

	sc := validScenario()
	sc.Steps[0].Action = "teleport"

	assert.Contains(t, sc.Validate(), `step 1: unknown action "teleport"`)
}

func TestStepMissingRequiredParameterIsInvalid(t *testing.T) {
	t.Parallel()

	sc := validScenario()
	sc.Steps[0].Action = model.ActionEnterText

	assert.Contains(t, sc.Validate(), `step 1: action "enter_text" requires parameter "value"`)
}

func TestStepParameterFallsBackToStepData(t *testing.T) {
	t.Parallel()

	step := model.TestStep{
		Action:     model.ActionEnterText,
		Target:     "#field",
		Parameters: map[string]model.Value{"value": model.String("from-params")},
		StepData: map[string]model.Value{
			"value": model.String("from-data"),
			"extra": model.Bool(true),
		},
	}

	v, ok := step.Parameter("value")
	assert.True(t, ok)
	assert.Equal(t, "from-params", v.Str())

	v, ok = step.Parameter("extra")
	assert.True(t, ok)
	assert.True(t, v.Boolean())

	_, ok = step.Parameter("missing")
	assert.False(t, ok)
}

func TestStepWithNegativeWaitIsInvalid(t *testing.T) {
	t.Parallel()

	sc := validScenario()
	sc.Steps[0].WaitBefore = -time.Second

	assert.Contains(t, sc.Validate(), "step 1: wait durations must not be negative")
}

func TestEnabledStepsFiltersDisabled(t *testing.T) {
	t.Parallel()

	sc := validScenario()
	sc.Steps = append(sc.Steps, model.TestStep{
		ID:      "st-2",
		Order:   2,
		Action:  model.ActionClick,
		Target:  "#submit",
		Enabled: false,
	})

	enabled := sc.EnabledSteps()

	assert.Len(t, enabled, 1)
	assert.Equal(t, "st-1", enabled[0].ID)
}
