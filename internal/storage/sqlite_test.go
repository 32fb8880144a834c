package storage_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/storyline-qa/storyline/internal/model"
	"github.com/storyline-qa/storyline/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteRepo(t *testing.T) *storage.SQLiteRepository {
	t.Helper()

	repo, err := storage.NewSQLite("", slog.Default())
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = repo.Close()
	})

	return repo
}

func TestSQLiteScenarioRoundTrip(t *testing.T) {
	t.Parallel()

	repo := newSQLiteRepo(t)
	ctx := context.Background()

	sc := newScenario("proj-1", "Login flow")
	sc.Tags = []string{"login", "ui"}
	sc.TestData = map[string]model.Value{"username": model.String("qa@example.com")}
	sc.Timeout = 2 * time.Minute
	require.NoError(t, repo.SaveScenario(ctx, sc))

	loaded, err := repo.GetScenario(ctx, sc.ID)
	require.NoError(t, err)

	assert.Equal(t, sc.ID, loaded.ID)
	assert.Equal(t, sc.Title, loaded.Title)
	assert.Equal(t, sc.Tags, loaded.Tags)
	assert.Equal(t, sc.Timeout, loaded.Timeout)
	require.Len(t, loaded.Steps, 1)
	assert.Equal(t, sc.Steps[0].Action, loaded.Steps[0].Action)
	assert.True(t, sc.TestData["username"].Equal(loaded.TestData["username"]))
}

func TestSQLiteGetMissingScenarioReturnsNotFound(t *testing.T) {
	t.Parallel()

	repo := newSQLiteRepo(t)

	_, err := repo.GetScenario(context.Background(), "nope")

	assert.ErrorAs(t, err, &model.NotFoundError{})
}

func TestSQLiteSaveScenarioUpserts(t *testing.T) {
	t.Parallel()

	repo := newSQLiteRepo(t)
	ctx := context.Background()

	sc := newScenario("proj-1", "Login flow")
	require.NoError(t, repo.SaveScenario(ctx, sc))

	sc.Title = "Renamed"
	require.NoError(t, repo.SaveScenario(ctx, sc))

	loaded, err := repo.GetScenario(ctx, sc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", loaded.Title)

	scenarios, err := repo.GetScenariosByProject(ctx, "proj-1")
	require.NoError(t, err)
	assert.Len(t, scenarios, 1)
}

func TestSQLiteUpdateRequiresExistingScenario(t *testing.T) {
	t.Parallel()

	repo := newSQLiteRepo(t)

	err := repo.UpdateScenario(context.Background(), newScenario("proj-1", "Login flow"))

	assert.ErrorAs(t, err, &model.NotFoundError{})
}

func TestSQLiteDeleteScenario(t *testing.T) {
	t.Parallel()

	repo := newSQLiteRepo(t)
	ctx := context.Background()

	sc := newScenario("proj-1", "Login flow")
	require.NoError(t, repo.SaveScenario(ctx, sc))
	require.NoError(t, repo.DeleteScenario(ctx, sc.ID))

	_, err := repo.GetScenario(ctx, sc.ID)
	assert.ErrorAs(t, err, &model.NotFoundError{})

	assert.ErrorAs(t, repo.DeleteScenario(ctx, sc.ID), &model.NotFoundError{})
}

func TestSQLiteSearchScenariosFiltersInSQL(t *testing.T) {
	t.Parallel()

	repo := newSQLiteRepo(t)
	ctx := context.Background()

	ui := newScenario("proj-1", "Login flow")
	ui.Type = model.TestTypeUI
	ui.Tags = []string{"login"}

	api := newScenario("proj-1", "Quote service check")
	api.Type = model.TestTypeAPI
	api.Tags = []string{"quote"}

	other := newScenario("proj-2", "Unrelated")

	for _, sc := range []model.TestScenario{ui, api, other} {
		require.NoError(t, repo.SaveScenario(ctx, sc))
	}

	page, err := repo.SearchScenarios(ctx, model.ScenarioQuery{
		ProjectID: "proj-1",
		Types:     []model.TestType{model.TestTypeAPI},
	})
	require.NoError(t, err)

	require.Equal(t, 1, page.Total)
	assert.Equal(t, api.ID, page.Items[0].ID)

	page, err = repo.SearchScenarios(ctx, model.ScenarioQuery{
		ProjectID: "proj-1",
		Tags:      []string{"login"},
	})
	require.NoError(t, err)

	require.Equal(t, 1, page.Total)
	assert.Equal(t, ui.ID, page.Items[0].ID)

	page, err = repo.SearchScenarios(ctx, model.ScenarioQuery{Text: "quote"})
	require.NoError(t, err)

	require.Equal(t, 1, page.Total)
	assert.Equal(t, api.ID, page.Items[0].ID)
}

func TestSQLiteResultRoundTripAndSearch(t *testing.T) {
	t.Parallel()

	repo := newSQLiteRepo(t)
	ctx := context.Background()

	sc := newScenario("proj-1", "Login flow")
	require.NoError(t, repo.SaveScenario(ctx, sc))

	now := time.Now()

	res := newResult(sc.ID, true, now)
	res.Steps = []model.StepResult{{StepID: uuid.NewString(), Action: model.ActionNavigate, Target: "/", Passed: true}}
	require.NoError(t, repo.SaveResult(ctx, res))
	require.NoError(t, repo.SaveResult(ctx, newResult(sc.ID, false, now.Add(-time.Hour))))

	loaded, err := repo.GetResult(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, res.ID, loaded.ID)
	assert.True(t, loaded.Passed)
	require.Len(t, loaded.Steps, 1)

	results, err := repo.GetResultsByScenario(ctx, sc.ID)
	require.NoError(t, err)
	require.Len(t, results, 2)
	// newest first
	assert.Equal(t, res.ID, results[0].ID)

	passed := false

	page, err := repo.SearchResults(ctx, model.ResultQuery{ScenarioID: sc.ID, Passed: &passed})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
}

func TestSQLiteStatistics(t *testing.T) {
	t.Parallel()

	repo := newSQLiteRepo(t)
	ctx := context.Background()

	sc := newScenario("proj-1", "Login flow")
	require.NoError(t, repo.SaveScenario(ctx, sc))

	now := time.Now()

	require.NoError(t, repo.SaveResult(ctx, newResult(sc.ID, true, now.Add(-time.Hour))))
	require.NoError(t, repo.SaveResult(ctx, newResult(sc.ID, false, now)))

	stats, err := repo.GetTestStatistics(ctx, "proj-1", time.Time{}, time.Time{})
	require.NoError(t, err)

	assert.Equal(t, 1, stats.TotalScenarios)
	assert.Equal(t, 2, stats.TotalExecutions)
	assert.Equal(t, 1, stats.Passed)
	assert.InDelta(t, 50.0, stats.PassRate, 0.01)
}

func TestSQLiteArchiveOldResults(t *testing.T) {
	t.Parallel()

	repo := newSQLiteRepo(t)
	ctx := context.Background()

	sc := newScenario("proj-1", "Login flow")
	require.NoError(t, repo.SaveScenario(ctx, sc))

	cutoff := time.Now()

	old := newResult(sc.ID, true, cutoff.Add(-time.Hour))
	recent := newResult(sc.ID, true, cutoff.Add(time.Hour))

	require.NoError(t, repo.SaveResult(ctx, old))
	require.NoError(t, repo.SaveResult(ctx, recent))

	removed, err := repo.ArchiveOldResults(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = repo.GetResult(ctx, old.ID)
	assert.ErrorAs(t, err, &model.NotFoundError{})
	_, err = repo.GetResult(ctx, recent.ID)
	assert.NoError(t, err)

	_, err = repo.GetScenario(ctx, sc.ID)
	assert.NoError(t, err)
}

func TestSQLiteArchiveComparesMixedFractionTimestamps(t *testing.T) {
	t.Parallel()

	repo := newSQLiteRepo(t)
	ctx := context.Background()

	sc := newScenario("proj-1", "Login flow")
	require.NoError(t, repo.SaveScenario(ctx, sc))

	// a whole-second cutoff against sub-second result times exercises the
	// string comparison with differing fraction lengths
	cutoff := time.Now().Truncate(time.Second)

	after := newResult(sc.ID, true, cutoff.Add(500*time.Millisecond))
	before := newResult(sc.ID, true, cutoff.Add(-500*time.Millisecond))

	require.NoError(t, repo.SaveResult(ctx, after))
	require.NoError(t, repo.SaveResult(ctx, before))

	removed, err := repo.ArchiveOldResults(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = repo.GetResult(ctx, after.ID)
	assert.NoError(t, err, "result started after the cutoff must survive")
	_, err = repo.GetResult(ctx, before.ID)
	assert.ErrorAs(t, err, &model.NotFoundError{})

	page, err := repo.SearchResults(ctx, model.ResultQuery{StartedFrom: cutoff})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	assert.Equal(t, after.ID, page.Items[0].ID)
}
