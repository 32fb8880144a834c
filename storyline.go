// Package storyline turns free-text user stories into structured test
// scenarios and runs them against pluggable execution backends, tracking
// results and aggregate statistics.
//
// The package is used as a library: construct a Server with New, register
// executors, then either call the orchestration methods directly or expose
// them over HTTP via Run.
package storyline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/storyline-qa/storyline/internal/generate"
	"github.com/storyline-qa/storyline/internal/model"
	"github.com/storyline-qa/storyline/internal/storage"
	"github.com/robfig/cron/v3"
)

// Reexports so that library users don't have to import internal packages.

type TestScenario = model.TestScenario
type TestStep = model.TestStep
type TestResult = model.TestResult
type StepResult = model.StepResult
type TestStatistics = model.TestStatistics
type TestType = model.TestType
type HealthCheckResult = model.HealthCheckResult
type Capabilities = model.Capabilities
type ValidationResult = model.ValidationResult
type ExecutorValidation = model.ExecutorValidation
type ScenarioQuery = model.ScenarioQuery
type ResultQuery = model.ResultQuery
type Value = model.Value

// Generator converts natural-language input into structured scenarios.
// The built-in rule-based implementation (internal/generate) satisfies the
// same contract an external LLM-backed client would, so either can be
// plugged in.
type Generator interface {
	Generate(ctx context.Context, userStory, projectContext string) (model.TestScenario, error)
	RefineSteps(ctx context.Context, steps []model.TestStep, feedback string) ([]model.TestStep, error)
	AnalyzeFailure(ctx context.Context, result model.TestResult) (string, error)
	GenerateTestData(ctx context.Context, scenario model.TestScenario, requirements string) (map[string]model.Value, error)
	OptimizeScenarios(ctx context.Context, scenarios []model.TestScenario) ([]model.TestScenario, error)
	SuggestAdditionalTests(ctx context.Context, existing []model.TestScenario, projectContext string) ([]model.TestScenario, error)
	ValidateScenario(ctx context.Context, scenario model.TestScenario) (model.ValidationResult, error)
}

// Executor is a backend capable of running scenarios of one or more
// declared test types. Initialize and Cleanup bracket the executor's
// lifetime (once at registration and teardown), not individual tests.
type Executor interface {
	Name() string
	CanExecute(t model.TestType) bool
	ExecuteTest(ctx context.Context, scenario model.TestScenario) (model.TestResult, error)
	ValidateScenario(ctx context.Context, scenario model.TestScenario) model.ExecutorValidation
	GetCapabilities() model.Capabilities
	PerformHealthCheck(ctx context.Context) model.HealthCheckResult
	Initialize(ctx context.Context, config map[string]model.Value) error
	Cleanup(ctx context.Context) error
}

// Repository is the persistence abstraction for scenarios and results,
// independent of the backing store. Implementations must be safe for
// concurrent use; see internal/storage for the in-memory and SQLite ones.
type Repository interface {
	SaveScenario(ctx context.Context, sc model.TestScenario) error
	GetScenario(ctx context.Context, id string) (model.TestScenario, error)
	GetScenariosByProject(ctx context.Context, projectID string) ([]model.TestScenario, error)
	SearchScenarios(ctx context.Context, query model.ScenarioQuery) (model.ScenarioPage, error)
	UpdateScenario(ctx context.Context, sc model.TestScenario) error
	DeleteScenario(ctx context.Context, id string) error

	SaveResult(ctx context.Context, res model.TestResult) error
	GetResult(ctx context.Context, id string) (model.TestResult, error)
	GetResultsByScenario(ctx context.Context, scenarioID string) ([]model.TestResult, error)
	SearchResults(ctx context.Context, query model.ResultQuery) (model.ResultPage, error)
	DeleteResult(ctx context.Context, id string) error

	GetTestStatistics(ctx context.Context, projectID string, from, to time.Time) (model.TestStatistics, error)
	ArchiveOldResults(ctx context.Context, olderThan time.Time) (int, error)
}

// Server is the orchestration service: it sequences scenario creation,
// execution and statistics aggregation across the generator, the
// repository and the registered executors.
type Server struct {
	log *slog.Logger

	repo      Repository
	generator Generator

	// executors is the ordered registry; dispatch picks the first
	// executor whose CanExecute matches, so registration order decides
	// ties.
	executorsMu sync.RWMutex
	executors   []Executor

	// hookList collects the hooks passed via options; the manager is built
	// in New once the logger is final.
	hookList []Hook
	hooks    *hookManager

	schedules []ScheduledRun
	cron      *cron.Cron

	port             int
	addr             atomic.Value
	healthFanOut     int
	started          atomic.Bool
	shuttingDown     atomic.Bool
	runningTests     sync.WaitGroup
	httpShutdownFunc func(ctx context.Context) error
}

// New configures a Server. Without options it uses the in-memory
// repository, the rule-based generator and no executors.
func New(opts ...Option) *Server {
	s := &Server{
		log:          slog.Default(),
		port:         1337,
		healthFanOut: 4,
	}

	for _, o := range opts {
		o(s)
	}

	if s.repo == nil {
		s.repo = storage.NewMemoryRepository()
	}
	if s.generator == nil {
		s.generator = generate.New(s.log)
	}

	s.hooks = newHookManager(s.log)
	s.hooks.all = s.hookList

	return s
}

// RegisterExecutor initializes the executor once and appends it to the
// registry. Duplicate capability registrations are allowed; the first
// registered executor wins at dispatch time.
func (s *Server) RegisterExecutor(ctx context.Context, ex Executor, config map[string]model.Value) error {
	if err := ex.Initialize(ctx, config); err != nil {
		return fmt.Errorf("initializing executor %q: %w", ex.Name(), err)
	}

	s.executorsMu.Lock()
	s.executors = append(s.executors, ex)
	s.executorsMu.Unlock()

	s.log.Info("executor registered", "executor", ex.Name())

	return nil
}

func (s *Server) registeredExecutors() []Executor {
	s.executorsMu.RLock()
	defer s.executorsMu.RUnlock()

	executors := make([]Executor, len(s.executors))
	copy(executors, s.executors)

	return executors
}

// Start initializes hooks and schedules. It does not serve HTTP; use Run
// for that.
func (s *Server) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return fmt.Errorf("server already started")
	}

	if err := s.hooks.init(); err != nil {
		return err
	}

	if err := s.startSchedules(); err != nil {
		return err
	}

	return nil
}

// Run starts the server and serves the HTTP API until the context is
// cancelled or the listener fails.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}

	return s.runHTTP(ctx)
}

// Shutdown stops the schedules, waits for in-flight executions and cleans
// up every registered executor. An executor's cleanup failure is logged,
// not returned: teardown always visits all executors.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shuttingDown.Store(true)

	if s.cron != nil {
		<-s.cron.Stop().Done()
	}

	if s.httpShutdownFunc != nil {
		if err := s.httpShutdownFunc(ctx); err != nil {
			s.log.Warn("http shutdown failed", "error", err)
		}
	}

	done := make(chan struct{})

	go func() {
		s.runningTests.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("waiting for running tests: %w", ctx.Err())
	}

	for _, ex := range s.registeredExecutors() {
		if err := ex.Cleanup(ctx); err != nil {
			s.log.Warn("executor cleanup failed", "executor", ex.Name(), "error", err)
		}
	}

	return nil
}
