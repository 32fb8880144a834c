// Package storage provides the repository implementations for scenarios and
// results: a concurrency-safe in-memory store used as the reference
// implementation and in tests, and a SQLite-backed store for durable setups.
package storage

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/storyline-qa/storyline/internal/model"
	"golang.org/x/exp/slices"
)

// MemoryRepository keeps scenarios and results in two concurrency-safe maps
// keyed by id. Every stored object is treated as immutable: reads hand out
// the stored value, writes replace it wholesale, so no caller ever observes
// a partially updated entity. Statistics and searches work on a snapshot
// taken via Range and never hold a lock while scanning.
type MemoryRepository struct {
	scenarios sync.Map // scenario id -> model.TestScenario
	results   sync.Map // result id -> model.TestResult
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) SaveScenario(ctx context.Context, sc model.TestScenario) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	sc.UpdatedAt = time.Now()
	r.scenarios.Store(sc.ID, sc)

	return nil
}

func (r *MemoryRepository) GetScenario(ctx context.Context, id string) (model.TestScenario, error) {
	if err := ctx.Err(); err != nil {
		return model.TestScenario{}, err
	}

	val, ok := r.scenarios.Load(id)
	if !ok {
		return model.TestScenario{}, model.NotFoundError{Kind: "scenario", ID: id}
	}

	return val.(model.TestScenario), nil
}

func (r *MemoryRepository) GetScenariosByProject(ctx context.Context, projectID string) ([]model.TestScenario, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	scenarios := []model.TestScenario{}

	r.scenarios.Range(func(_, value any) bool {
		sc := value.(model.TestScenario)
		if sc.ProjectID == projectID {
			scenarios = append(scenarios, sc)
		}
		return true
	})

	sortScenarios(scenarios, model.SortByCreatedAt, false)

	return scenarios, nil
}

func (r *MemoryRepository) UpdateScenario(ctx context.Context, sc model.TestScenario) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if _, ok := r.scenarios.Load(sc.ID); !ok {
		return model.NotFoundError{Kind: "scenario", ID: sc.ID}
	}

	sc.UpdatedAt = time.Now()
	r.scenarios.Store(sc.ID, sc)

	return nil
}

func (r *MemoryRepository) DeleteScenario(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if _, ok := r.scenarios.LoadAndDelete(id); !ok {
		return model.NotFoundError{Kind: "scenario", ID: id}
	}

	return nil
}

func (r *MemoryRepository) SearchScenarios(ctx context.Context, query model.ScenarioQuery) (model.ScenarioPage, error) {
	if err := ctx.Err(); err != nil {
		return model.ScenarioPage{}, err
	}

	query = query.Normalize()

	matches := []model.TestScenario{}

	r.scenarios.Range(func(_, value any) bool {
		sc := value.(model.TestScenario)
		if matchScenario(sc, query) {
			matches = append(matches, sc)
		}
		return true
	})

	sortScenarios(matches, query.SortBy, query.Ascending)

	start, end := model.PageBounds(query.Page, query.PageSize, len(matches))

	return model.ScenarioPage{
		Items:    matches[start:end],
		Total:    len(matches),
		Page:     query.Page,
		PageSize: query.PageSize,
	}, nil
}

func (r *MemoryRepository) SaveResult(ctx context.Context, res model.TestResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.results.Store(res.ID, res)

	return nil
}

func (r *MemoryRepository) GetResult(ctx context.Context, id string) (model.TestResult, error) {
	if err := ctx.Err(); err != nil {
		return model.TestResult{}, err
	}

	val, ok := r.results.Load(id)
	if !ok {
		return model.TestResult{}, model.NotFoundError{Kind: "result", ID: id}
	}

	return val.(model.TestResult), nil
}

func (r *MemoryRepository) GetResultsByScenario(ctx context.Context, scenarioID string) ([]model.TestResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	results := []model.TestResult{}

	r.results.Range(func(_, value any) bool {
		res := value.(model.TestResult)
		if res.ScenarioID == scenarioID {
			results = append(results, res)
		}
		return true
	})

	sortResults(results, model.SortByStartedAt, false)

	return results, nil
}

func (r *MemoryRepository) SearchResults(ctx context.Context, query model.ResultQuery) (model.ResultPage, error) {
	if err := ctx.Err(); err != nil {
		return model.ResultPage{}, err
	}

	query = query.Normalize()

	matches := []model.TestResult{}

	r.results.Range(func(_, value any) bool {
		res := value.(model.TestResult)
		if matchResult(res, query) {
			matches = append(matches, res)
		}
		return true
	})

	sortResults(matches, query.SortBy, query.Ascending)

	start, end := model.PageBounds(query.Page, query.PageSize, len(matches))

	return model.ResultPage{
		Items:    matches[start:end],
		Total:    len(matches),
		Page:     query.Page,
		PageSize: query.PageSize,
	}, nil
}

func (r *MemoryRepository) DeleteResult(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if _, ok := r.results.LoadAndDelete(id); !ok {
		return model.NotFoundError{Kind: "result", ID: id}
	}

	return nil
}

func (r *MemoryRepository) GetTestStatistics(ctx context.Context, projectID string, from, to time.Time) (model.TestStatistics, error) {
	if err := ctx.Err(); err != nil {
		return model.TestStatistics{}, err
	}

	scenarios, err := r.GetScenariosByProject(ctx, projectID)
	if err != nil {
		return model.TestStatistics{}, err
	}

	ids := make(map[string]struct{}, len(scenarios))
	for _, sc := range scenarios {
		ids[sc.ID] = struct{}{}
	}

	results := []model.TestResult{}

	r.results.Range(func(_, value any) bool {
		res := value.(model.TestResult)
		if _, ok := ids[res.ScenarioID]; ok {
			results = append(results, res)
		}
		return true
	})

	return model.ComputeStatistics(projectID, from, to, scenarios, results), nil
}

// ArchiveOldResults removes all results that started strictly before the
// cutoff and returns how many were removed. Scenarios are never touched.
func (r *MemoryRepository) ArchiveOldResults(ctx context.Context, olderThan time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	removed := 0

	r.results.Range(func(key, value any) bool {
		res := value.(model.TestResult)
		if res.StartedAt.Before(olderThan) {
			if _, loaded := r.results.LoadAndDelete(key); loaded {
				removed++
			}
		}
		return true
	})

	return removed, nil
}

func matchScenario(sc model.TestScenario, q model.ScenarioQuery) bool {
	if q.ProjectID != "" && sc.ProjectID != q.ProjectID {
		return false
	}
	if len(q.Types) > 0 && !slices.Contains(q.Types, sc.Type) {
		return false
	}
	if len(q.Statuses) > 0 && !slices.Contains(q.Statuses, sc.Status) {
		return false
	}
	if len(q.Priorities) > 0 && !slices.Contains(q.Priorities, sc.Priority) {
		return false
	}

	for _, tag := range q.Tags {
		if !slices.Contains(sc.Tags, tag) {
			return false
		}
	}

	if q.CreatedBy != "" && !strings.Contains(sc.CreatedBy, q.CreatedBy) {
		return false
	}
	if !q.CreatedFrom.IsZero() && sc.CreatedAt.Before(q.CreatedFrom) {
		return false
	}
	if !q.CreatedTo.IsZero() && sc.CreatedAt.After(q.CreatedTo) {
		return false
	}

	if q.Text != "" {
		text := strings.ToLower(q.Text)
		if !strings.Contains(strings.ToLower(sc.Title), text) &&
			!strings.Contains(strings.ToLower(sc.Description), text) {
			return false
		}
	}

	return true
}

func matchResult(res model.TestResult, q model.ResultQuery) bool {
	if q.ScenarioID != "" && res.ScenarioID != q.ScenarioID {
		return false
	}
	if q.Environment != "" && res.Environment != q.Environment {
		return false
	}
	if q.Passed != nil && res.Passed != *q.Passed {
		return false
	}
	if !q.StartedFrom.IsZero() && res.StartedAt.Before(q.StartedFrom) {
		return false
	}
	if !q.StartedTo.IsZero() && res.StartedAt.After(q.StartedTo) {
		return false
	}

	return true
}

var priorityRank = map[model.Priority]int{
	model.PriorityLow:      0,
	model.PriorityMedium:   1,
	model.PriorityHigh:     2,
	model.PriorityCritical: 3,
}

func sortScenarios(scenarios []model.TestScenario, field model.SortField, ascending bool) {
	slices.SortStableFunc(scenarios, func(a, b model.TestScenario) int {
		var c int

		switch field {
		case model.SortByTitle:
			c = strings.Compare(a.Title, b.Title)
		case model.SortByUpdatedAt:
			c = a.UpdatedAt.Compare(b.UpdatedAt)
		case model.SortByPriority:
			c = priorityRank[a.Priority] - priorityRank[b.Priority]
		default:
			c = a.CreatedAt.Compare(b.CreatedAt)
		}

		if !ascending {
			c = -c
		}

		return c
	})
}

func sortResults(results []model.TestResult, field model.SortField, ascending bool) {
	slices.SortStableFunc(results, func(a, b model.TestResult) int {
		var c int

		switch field {
		case model.SortByDuration:
			switch {
			case a.Duration < b.Duration:
				c = -1
			case a.Duration > b.Duration:
				c = 1
			}
		default:
			c = a.StartedAt.Compare(b.StartedAt)
		}

		if !ascending {
			c = -c
		}

		return c
	})
}
