package storyline_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/storyline-qa/storyline"
	"github.com/storyline-qa/storyline/internal/executor"
	"github.com/storyline-qa/storyline/internal/model"
	"github.com/storyline-qa/storyline/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ storyline.Repository = (*storage.MemoryRepository)(nil)
	_ storyline.Repository = (*storage.SQLiteRepository)(nil)
	_ storyline.Executor   = (*executor.HTTPExecutor)(nil)
	_ storyline.Executor   = (*fakeExecutor)(nil)
)

// fakeExecutor is a scriptable in-process executor. outcomes holds the
// per-attempt results; once exhausted every further run passes.
type fakeExecutor struct {
	name  string
	types []model.TestType

	mu       sync.Mutex
	outcomes []bool
	calls    int

	delay time.Duration

	inFlight    atomic.Int32
	maxInFlight atomic.Int32

	healthy   bool
	initCalls atomic.Int32
}

func newFakeExecutor(name string, types ...model.TestType) *fakeExecutor {
	if len(types) == 0 {
		types = []model.TestType{model.TestTypeUI, model.TestTypeAPI, model.TestTypeMixed}
	}

	return &fakeExecutor{name: name, types: types, healthy: true}
}

func (f *fakeExecutor) Name() string { return f.name }

func (f *fakeExecutor) CanExecute(t model.TestType) bool {
	for _, supported := range f.types {
		if supported == t {
			return true
		}
	}

	return false
}

func (f *fakeExecutor) ExecuteTest(ctx context.Context, sc model.TestScenario) (model.TestResult, error) {
	current := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)

	for {
		max := f.maxInFlight.Load()
		if current <= max || f.maxInFlight.CompareAndSwap(max, current) {
			break
		}
	}

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	passed := true
	if f.calls < len(f.outcomes) {
		passed = f.outcomes[f.calls]
	}
	f.calls++
	f.mu.Unlock()

	result := model.NewTestResult(sc.ID, sc.Environment)
	result.ExecutorTags = []string{f.name}
	result.AddStep(model.StepResult{StepID: "step", Passed: passed})
	result.Complete("scripted outcome")

	return result, nil
}

func (f *fakeExecutor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.calls
}

func (f *fakeExecutor) ValidateScenario(ctx context.Context, sc model.TestScenario) model.ExecutorValidation {
	return model.ExecutorValidation{CanExecute: f.CanExecute(sc.Type)}
}

func (f *fakeExecutor) GetCapabilities() model.Capabilities {
	return model.Capabilities{SupportedTypes: f.types}
}

func (f *fakeExecutor) PerformHealthCheck(ctx context.Context) model.HealthCheckResult {
	return model.HealthCheckResult{IsHealthy: f.healthy, CheckedAt: time.Now()}
}

func (f *fakeExecutor) Initialize(ctx context.Context, config map[string]model.Value) error {
	f.initCalls.Add(1)
	return nil
}

func (f *fakeExecutor) Cleanup(ctx context.Context) error { return nil }

func storedScenario(t *testing.T, s *storyline.Server, repo storyline.Repository, retryCount int) model.TestScenario {
	t.Helper()

	sc := model.TestScenario{
		ID:         "sc-1",
		Title:      "Stored scenario",
		ProjectID:  "proj-1",
		Type:       model.TestTypeUI,
		RetryCount: retryCount,
		Steps: []model.TestStep{
			{ID: "st-1", Order: 1, Action: model.ActionNavigate, Target: "/", Enabled: true},
		},
	}

	require.NoError(t, repo.SaveScenario(context.Background(), sc))

	return sc
}

func TestCreateFromUserStoryPersistsScenario(t *testing.T) {
	t.Parallel()

	repo := storage.NewMemoryRepository()
	s := storyline.New(storyline.WithRepository(repo))

	id, err := s.CreateFromUserStory(context.Background(), "login at https://example.com", "proj-1", "")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	sc, err := repo.GetScenario(context.Background(), id)
	require.NoError(t, err)

	assert.Equal(t, "proj-1", sc.ProjectID)
	assert.NotEmpty(t, sc.Steps)
}

func TestExecuteTestDispatchesAndPersistsResult(t *testing.T) {
	t.Parallel()

	repo := storage.NewMemoryRepository()
	s := storyline.New(storyline.WithRepository(repo))

	ex := newFakeExecutor("fake")
	require.NoError(t, s.RegisterExecutor(context.Background(), ex, nil))
	assert.Equal(t, int32(1), ex.initCalls.Load())

	sc := storedScenario(t, s, repo, 0)

	result, err := s.ExecuteTest(context.Background(), sc.ID)
	require.NoError(t, err)

	assert.True(t, result.Passed)
	assert.Equal(t, 1, ex.callCount())

	stored, err := repo.GetResult(context.Background(), result.ID)
	require.NoError(t, err)
	assert.Equal(t, sc.ID, stored.ScenarioID)
}

func TestExecuteTestOfUnknownScenarioReturnsNotFound(t *testing.T) {
	t.Parallel()

	s := storyline.New()
	require.NoError(t, s.RegisterExecutor(context.Background(), newFakeExecutor("fake"), nil))

	_, err := s.ExecuteTest(context.Background(), "missing")

	assert.ErrorAs(t, err, &model.NotFoundError{})
}

func TestExecuteTestWithoutCapableExecutorFails(t *testing.T) {
	t.Parallel()

	repo := storage.NewMemoryRepository()
	s := storyline.New(storyline.WithRepository(repo))

	// only an api executor is registered, the scenario is ui
	require.NoError(t, s.RegisterExecutor(context.Background(), newFakeExecutor("api-only", model.TestTypeAPI), nil))

	sc := storedScenario(t, s, repo, 0)

	_, err := s.ExecuteTest(context.Background(), sc.ID)

	var noExecutor model.NoExecutorError
	require.ErrorAs(t, err, &noExecutor)
	assert.Equal(t, sc.Type, noExecutor.Type)
}

func TestExecuteTestRetriesUntilPass(t *testing.T) {
	t.Parallel()

	repo := storage.NewMemoryRepository()
	s := storyline.New(storyline.WithRepository(repo))

	ex := newFakeExecutor("flaky")
	ex.outcomes = []bool{false, false, true}
	require.NoError(t, s.RegisterExecutor(context.Background(), ex, nil))

	sc := storedScenario(t, s, repo, 2)

	result, err := s.ExecuteTest(context.Background(), sc.ID)
	require.NoError(t, err)

	assert.True(t, result.Passed, "the third attempt passes")
	assert.Equal(t, 3, ex.callCount())

	// only the final attempt is persisted
	results, err := repo.GetResultsByScenario(context.Background(), sc.ID)
	require.NoError(t, err)
	require.Len(t, results, 1)

	require.Contains(t, results[0].Metadata, "attempts")
	assert.Equal(t, float64(3), results[0].Metadata["attempts"].Float64())
}

func TestExecuteTestStopsRetryingAfterFirstPass(t *testing.T) {
	t.Parallel()

	repo := storage.NewMemoryRepository()
	s := storyline.New(storyline.WithRepository(repo))

	ex := newFakeExecutor("stable")
	require.NoError(t, s.RegisterExecutor(context.Background(), ex, nil))

	sc := storedScenario(t, s, repo, 5)

	result, err := s.ExecuteTest(context.Background(), sc.ID)
	require.NoError(t, err)

	assert.True(t, result.Passed)
	assert.Equal(t, 1, ex.callCount(), "a passing run is never retried")
}

func TestExecuteTestKeepsLastFailedAttempt(t *testing.T) {
	t.Parallel()

	repo := storage.NewMemoryRepository()
	s := storyline.New(storyline.WithRepository(repo))

	ex := newFakeExecutor("failing")
	ex.outcomes = []bool{false, false}
	require.NoError(t, s.RegisterExecutor(context.Background(), ex, nil))

	sc := storedScenario(t, s, repo, 1)

	result, err := s.ExecuteTest(context.Background(), sc.ID)
	require.NoError(t, err)

	assert.False(t, result.Passed)
	assert.Equal(t, 2, ex.callCount())

	results, err := repo.GetResultsByScenario(context.Background(), sc.ID)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestFirstRegisteredExecutorWins(t *testing.T) {
	t.Parallel()

	repo := storage.NewMemoryRepository()
	s := storyline.New(storyline.WithRepository(repo))

	first := newFakeExecutor("first")
	second := newFakeExecutor("second")

	require.NoError(t, s.RegisterExecutor(context.Background(), first, nil))
	require.NoError(t, s.RegisterExecutor(context.Background(), second, nil))

	sc := storedScenario(t, s, repo, 0)

	result, err := s.ExecuteTest(context.Background(), sc.ID)
	require.NoError(t, err)

	assert.Equal(t, []string{"first"}, result.ExecutorTags)
	assert.Equal(t, 1, first.callCount())
	assert.Equal(t, 0, second.callCount())
}

func TestExecuteTestsParallelBoundsConcurrency(t *testing.T) {
	t.Parallel()

	repo := storage.NewMemoryRepository()
	s := storyline.New(storyline.WithRepository(repo))

	ex := newFakeExecutor("parallel")
	ex.delay = 30 * time.Millisecond
	require.NoError(t, s.RegisterExecutor(context.Background(), ex, nil))

	var ids []string

	for i := 0; i < 6; i++ {
		sc := model.TestScenario{
			ID:        fmt.Sprintf("sc-%d", i),
			Title:     "Parallel scenario",
			ProjectID: "proj-1",
			Type:      model.TestTypeUI,
			Steps: []model.TestStep{
				{ID: "st-1", Order: 1, Action: model.ActionNavigate, Target: "/", Enabled: true},
			},
		}
		require.NoError(t, repo.SaveScenario(context.Background(), sc))
		ids = append(ids, sc.ID)
	}

	results, err := s.ExecuteTestsParallel(context.Background(), ids, 2)
	require.NoError(t, err)

	assert.Len(t, results, 6)
	assert.LessOrEqual(t, ex.maxInFlight.Load(), int32(2), "concurrency bound exceeded")
	assert.Greater(t, ex.maxInFlight.Load(), int32(0))
}

func TestExecuteTestsParallelCollectsPartialFailures(t *testing.T) {
	t.Parallel()

	repo := storage.NewMemoryRepository()
	s := storyline.New(storyline.WithRepository(repo))
	require.NoError(t, s.RegisterExecutor(context.Background(), newFakeExecutor("fake"), nil))

	sc := storedScenario(t, s, repo, 0)

	results, err := s.ExecuteTestsParallel(context.Background(), []string{sc.ID, "missing"}, 2)

	require.Error(t, err)
	assert.Len(t, results, 1, "the sibling run still completes")

	var notFound model.NotFoundError
	assert.True(t, errors.As(err, &notFound))
}

func TestGetExecutorHealthStatusProbesAllExecutors(t *testing.T) {
	t.Parallel()

	s := storyline.New(storyline.WithHealthCheckFanOut(2))

	healthy := newFakeExecutor("healthy")
	unhealthy := newFakeExecutor("unhealthy")
	unhealthy.healthy = false

	require.NoError(t, s.RegisterExecutor(context.Background(), healthy, nil))
	require.NoError(t, s.RegisterExecutor(context.Background(), unhealthy, nil))

	statuses := s.GetExecutorHealthStatus(context.Background())

	require.Len(t, statuses, 2)
	assert.True(t, statuses["healthy"].IsHealthy)
	assert.False(t, statuses["unhealthy"].IsHealthy)
}

func TestGetProjectTests(t *testing.T) {
	t.Parallel()

	repo := storage.NewMemoryRepository()
	s := storyline.New(storyline.WithRepository(repo))

	_, err := s.CreateFromUserStory(context.Background(), "login at https://example.com", "proj-1", "")
	require.NoError(t, err)
	_, err = s.CreateFromUserStory(context.Background(), "pay my bill", "proj-2", "")
	require.NoError(t, err)

	scenarios, err := s.GetProjectTests(context.Background(), "proj-1")
	require.NoError(t, err)

	require.Len(t, scenarios, 1)
	assert.Equal(t, "proj-1", scenarios[0].ProjectID)
}

func TestGetTestStatisticsAfterRuns(t *testing.T) {
	t.Parallel()

	repo := storage.NewMemoryRepository()
	s := storyline.New(storyline.WithRepository(repo))

	ex := newFakeExecutor("fake")
	ex.outcomes = []bool{true, false}
	require.NoError(t, s.RegisterExecutor(context.Background(), ex, nil))

	sc := storedScenario(t, s, repo, 0)

	_, err := s.ExecuteTest(context.Background(), sc.ID)
	require.NoError(t, err)
	_, err = s.ExecuteTest(context.Background(), sc.ID)
	require.NoError(t, err)

	stats, err := s.GetTestStatistics(context.Background(), "proj-1", time.Time{}, time.Time{})
	require.NoError(t, err)

	assert.Equal(t, 2, stats.TotalExecutions)
	assert.Equal(t, 1, stats.Passed)
	assert.InDelta(t, 50.0, stats.PassRate, 0.01)
}
