package metric

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ScenariosGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storyline_scenarios_generated_total",
		Help: "The number of scenarios generated from user stories",
	}, []string{"project", "type"})

	TestsRunning = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "storyline_tests_running",
		Help: "The number of scenario executions currently in flight",
	}, []string{"type"})

	TestRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storyline_tests_run_total",
		Help: "The number of scenario executions since the service was started",
	}, []string{"type", "executor", "result"})

	ExecutorHealthy = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "storyline_executor_healthy",
		Help: "Whether an executor's last health check succeeded (1) or failed (0)",
	}, []string{"executor"})
)

// RunResultLabel maps a pass/fail flag to the label value used on
// TestRunsTotal.
func RunResultLabel(passed bool) string {
	if passed {
		return "passed"
	}

	return "failed"
}
