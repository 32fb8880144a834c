package hook

import (
	"log/slog"

	"github.com/storyline-qa/storyline/internal/model"
)

// LoggingHook writes a structured log line for every scenario lifecycle
// event.
type LoggingHook struct {
	log *slog.Logger
}

func NewLoggingHook(log *slog.Logger) *LoggingHook {
	if log == nil {
		log = slog.Default()
	}

	return &LoggingHook{log: log}
}

func (h *LoggingHook) Name() string {
	return "logging"
}

func (h *LoggingHook) Init() error {
	return nil
}

func (h *LoggingHook) ScenarioCreated(scenario model.TestScenario) {
	h.log.Info("scenario created",
		"scenario-id", scenario.ID,
		"project-id", scenario.ProjectID,
		"type", scenario.Type,
		"steps", len(scenario.Steps))
}

func (h *LoggingHook) TestFinished(scenario model.TestScenario, result model.TestResult) {
	h.log.Info("test finished",
		"scenario-id", scenario.ID,
		"result-id", result.ID,
		"passed", result.Passed,
		"duration", result.Duration)
}
