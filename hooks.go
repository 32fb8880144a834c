package storyline

import (
	"fmt"
	"log/slog"

	"github.com/storyline-qa/storyline/internal/model"
)

// Hook is the base interface every lifecycle listener implements. The
// concrete listener interfaces a hook supports are detected via interface
// assertion when the server starts.
type Hook interface {
	Name() string
	Init() error
}

type ScenarioCreatedListener interface {
	Hook
	ScenarioCreated(scenario model.TestScenario)
}

type TestFinishedListener interface {
	Hook
	TestFinished(scenario model.TestScenario, result model.TestResult)
}

type hookManager struct {
	all             []Hook
	scenarioCreated []ScenarioCreatedListener
	testFinished    []TestFinishedListener

	log *slog.Logger
}

func newHookManager(log *slog.Logger) *hookManager {
	return &hookManager{log: log}
}

func (m *hookManager) init() error {
	for _, h := range m.all {
		if err := h.Init(); err != nil {
			return fmt.Errorf("initiating hook %q: %w", h.Name(), err)
		}

		registered := false

		if l, ok := h.(ScenarioCreatedListener); ok {
			m.scenarioCreated = append(m.scenarioCreated, l)
			registered = true
		}
		if l, ok := h.(TestFinishedListener); ok {
			m.testFinished = append(m.testFinished, l)
			registered = true
		}

		if !registered {
			return fmt.Errorf("hook %q does not implement any listener", h.Name())
		}
	}

	return nil
}

func (m *hookManager) notifyScenarioCreated(scenario model.TestScenario) {
	for _, l := range m.scenarioCreated {
		m.safeNotify(l, func() { l.ScenarioCreated(scenario) })
	}
}

func (m *hookManager) notifyTestFinished(scenario model.TestScenario, result model.TestResult) {
	for _, l := range m.testFinished {
		m.safeNotify(l, func() { l.TestFinished(scenario, result) })
	}
}

// safeNotify keeps a panicking hook from taking down an execution.
func (m *hookManager) safeNotify(h Hook, notify func()) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Warn("hook panicked", "hook", h.Name(), "recovered", r)
		}
	}()

	notify()
}
