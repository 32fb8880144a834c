package storyline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/storyline-qa/storyline/internal/metric"
	"github.com/storyline-qa/storyline/internal/model"
)

// CreateFromUserStory generates a scenario from the story, stamps the
// project id and persists it. It returns the id of the new scenario.
func (s *Server) CreateFromUserStory(ctx context.Context, story, projectID, projectContext string) (string, error) {
	scenario, err := s.generator.Generate(ctx, story, projectContext)
	if err != nil {
		return "", model.GenerationError{Err: err}
	}

	scenario.ProjectID = projectID

	if issues := scenario.Validate(); len(issues) > 0 {
		return "", model.ValidationError{Issues: issues}
	}

	if err := s.repo.SaveScenario(ctx, scenario); err != nil {
		return "", model.PersistenceError{Op: "saving scenario", Err: err}
	}

	metric.ScenariosGenerated.WithLabelValues(projectID, string(scenario.Type)).Inc()

	s.hooks.notifyScenarioCreated(scenario)

	s.log.Info("scenario created from user story",
		"scenario-id", scenario.ID,
		"project-id", projectID,
		"type", scenario.Type)

	return scenario.ID, nil
}

// ExecuteTest loads the scenario, dispatches it to the first capable
// executor and persists the result. Failed runs are retried up to the
// scenario's RetryCount; only the final attempt's result is kept.
// Scenario status never gates execution, a scenario with steps is runnable
// regardless of its lifecycle state.
func (s *Server) ExecuteTest(ctx context.Context, scenarioID string) (model.TestResult, error) {
	scenario, err := s.repo.GetScenario(ctx, scenarioID)
	if err != nil {
		var notFound model.NotFoundError
		if errors.As(err, &notFound) {
			return model.TestResult{}, err
		}

		return model.TestResult{}, model.PersistenceError{Op: "loading scenario", Err: err}
	}

	if issues := scenario.Validate(); len(issues) > 0 {
		return model.TestResult{}, model.ValidationError{Issues: issues}
	}

	ex, err := s.selectExecutor(scenario.Type)
	if err != nil {
		return model.TestResult{}, err
	}

	s.runningTests.Add(1)
	defer s.runningTests.Done()

	running := metric.TestsRunning.WithLabelValues(string(scenario.Type))
	running.Inc()
	defer running.Dec()

	attempts := 1 + scenario.RetryCount

	var (
		result  model.TestResult
		execErr error
	)

	for attempt := 1; attempt <= attempts; attempt++ {
		result, execErr = ex.ExecuteTest(ctx, scenario)

		if execErr == nil && result.Passed {
			break
		}

		if execErr != nil {
			s.log.Warn("execution attempt faulted",
				"scenario-id", scenarioID,
				"executor", ex.Name(),
				"attempt", attempt,
				"error", execErr)
		}

		if attempt < attempts {
			s.log.Info("retrying failed execution",
				"scenario-id", scenarioID,
				"attempt", attempt,
				"max-attempts", attempts)
		}

		if ctx.Err() != nil {
			break
		}
	}

	if execErr != nil {
		return model.TestResult{}, model.ExecutionError{
			Executor:   ex.Name(),
			ScenarioID: scenarioID,
			Err:        execErr,
		}
	}

	// earlier attempts are deliberately not persisted; record how many
	// there were so the history isn't entirely lost
	if attempts > 1 {
		if result.Metadata == nil {
			result.Metadata = map[string]model.Value{}
		}
		result.Metadata["attempts"] = model.Int(attempts)
	}

	metric.TestRunsTotal.WithLabelValues(string(scenario.Type), ex.Name(), metric.RunResultLabel(result.Passed)).Inc()

	if err := s.repo.SaveResult(ctx, result); err != nil {
		return model.TestResult{}, model.PersistenceError{Op: "saving result", Err: err}
	}

	s.hooks.notifyTestFinished(scenario, result)

	return result, nil
}

// ExecuteTestsParallel runs the given scenarios concurrently, bounded by
// maxConcurrency simultaneous in-flight executions. Result order does not
// match input order and one scenario's failure never cancels its siblings.
// The returned error joins the individual failures, if any.
func (s *Server) ExecuteTestsParallel(ctx context.Context, scenarioIDs []string, maxConcurrency int) ([]model.TestResult, error) {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}

	sem := make(chan struct{}, maxConcurrency)

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results []model.TestResult
		errs    []error
	)

	for _, id := range scenarioIDs {
		id := id

		wg.Add(1)

		go func() {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			result, err := s.ExecuteTest(ctx, id)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				errs = append(errs, err)
				return
			}

			results = append(results, result)
		}()
	}

	wg.Wait()

	return results, errors.Join(errs...)
}

// GetProjectTests returns all scenarios of a project, newest first.
func (s *Server) GetProjectTests(ctx context.Context, projectID string) ([]model.TestScenario, error) {
	scenarios, err := s.repo.GetScenariosByProject(ctx, projectID)
	if err != nil {
		return nil, model.PersistenceError{Op: "loading project scenarios", Err: err}
	}

	return scenarios, nil
}

// GetTestStatistics aggregates execution statistics for a project and date
// range.
func (s *Server) GetTestStatistics(ctx context.Context, projectID string, from, to time.Time) (model.TestStatistics, error) {
	stats, err := s.repo.GetTestStatistics(ctx, projectID, from, to)
	if err != nil {
		return model.TestStatistics{}, model.PersistenceError{Op: "computing statistics", Err: err}
	}

	return stats, nil
}

// GetExecutorHealthStatus probes every registered executor with a bounded
// concurrent fan-out. A failing health check shows up as an unhealthy
// entry, it is never escalated to the caller.
func (s *Server) GetExecutorHealthStatus(ctx context.Context) map[string]model.HealthCheckResult {
	executors := s.registeredExecutors()

	statuses := make(map[string]model.HealthCheckResult, len(executors))

	sem := make(chan struct{}, s.healthFanOut)

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)

	for _, ex := range executors {
		ex := ex

		wg.Add(1)

		go func() {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			result := s.safeHealthCheck(ctx, ex)

			healthy := 0.0
			if result.IsHealthy {
				healthy = 1.0
			}
			metric.ExecutorHealthy.WithLabelValues(ex.Name()).Set(healthy)

			mu.Lock()
			statuses[ex.Name()] = result
			mu.Unlock()
		}()
	}

	wg.Wait()

	return statuses
}

// safeHealthCheck converts a panicking health check into an unhealthy
// status instead of tearing down the server.
func (s *Server) safeHealthCheck(ctx context.Context, ex Executor) (result model.HealthCheckResult) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			s.log.Warn("health check panicked", "executor", ex.Name(), "recovered", r)

			result = model.HealthCheckResult{
				IsHealthy:    false,
				Message:      "health check panicked",
				ResponseTime: time.Since(start),
				CheckedAt:    start,
			}
		}
	}()

	return ex.PerformHealthCheck(ctx)
}

// selectExecutor returns the first registered executor capable of the test
// type. Registration order decides between multiple capable executors.
func (s *Server) selectExecutor(t model.TestType) (Executor, error) {
	s.executorsMu.RLock()
	defer s.executorsMu.RUnlock()

	for _, ex := range s.executors {
		if ex.CanExecute(t) {
			return ex, nil
		}
	}

	return nil, model.NoExecutorError{Type: t}
}
