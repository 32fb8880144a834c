package model

import (
	"time"

	"golang.org/x/exp/slices"
)

// TestStatistics are derived on demand from the scenario and result sets of
// a project; they are never stored.
type TestStatistics struct {
	ProjectID       string        `json:"projectId"`
	From            time.Time     `json:"from"`
	To              time.Time     `json:"to"`
	TotalScenarios  int           `json:"totalScenarios"`
	TotalExecutions int           `json:"totalExecutions"`
	Passed          int           `json:"passed"`
	Failed          int           `json:"failed"`
	PassRate        float64       `json:"passRate"`
	AverageDuration time.Duration `json:"averageDuration"`

	ByType        map[TestType]ExecutionStats    `json:"byType"`
	ByEnvironment map[Environment]ExecutionStats `json:"byEnvironment"`
	Daily         []DailyStats                   `json:"daily"`
}

// ExecutionStats is a breakdown bucket using the same formulas as the
// top-level statistics, restricted to a subset of results.
type ExecutionStats struct {
	Executions      int           `json:"executions"`
	Passed          int           `json:"passed"`
	PassRate        float64       `json:"passRate"`
	AverageDuration time.Duration `json:"averageDuration"`
}

// DailyStats buckets executions by the calendar date of their start time.
type DailyStats struct {
	Date       time.Time `json:"date"`
	Executions int       `json:"executions"`
	Passed     int       `json:"passed"`
	Failed     int       `json:"failed"`
	PassRate   float64   `json:"passRate"`
}

// passRate is passed/total scaled to percent; 0 when there were no runs.
func passRate(passed, total int) float64 {
	if total == 0 {
		return 0
	}

	return float64(passed) / float64(total) * 100
}

func meanDuration(total time.Duration, count int) time.Duration {
	if count == 0 {
		return 0
	}

	return total / time.Duration(count)
}

// ComputeStatistics derives project statistics from scenarios and the
// results that ran between from and to. Both repository implementations
// share this so that the formulas cannot drift apart.
func ComputeStatistics(projectID string, from, to time.Time, scenarios []TestScenario, results []TestResult) TestStatistics {
	stats := TestStatistics{
		ProjectID:      projectID,
		From:           from,
		To:             to,
		TotalScenarios: len(scenarios),
		ByType:         map[TestType]ExecutionStats{},
		ByEnvironment:  map[Environment]ExecutionStats{},
	}

	scenarioType := make(map[string]TestType, len(scenarios))
	for _, sc := range scenarios {
		scenarioType[sc.ID] = sc.Type
	}

	var totalDuration time.Duration

	typeDurations := map[TestType]time.Duration{}
	envDurations := map[Environment]time.Duration{}
	daily := map[time.Time]*DailyStats{}

	for _, r := range results {
		if !from.IsZero() && r.StartedAt.Before(from) {
			continue
		}
		if !to.IsZero() && r.StartedAt.After(to) {
			continue
		}

		stats.TotalExecutions++
		totalDuration += r.Duration

		if r.Passed {
			stats.Passed++
		} else {
			stats.Failed++
		}

		if t, ok := scenarioType[r.ScenarioID]; ok {
			bucket := stats.ByType[t]
			bucket.Executions++
			if r.Passed {
				bucket.Passed++
			}
			typeDurations[t] += r.Duration
			stats.ByType[t] = bucket
		}

		env := stats.ByEnvironment[r.Environment]
		env.Executions++
		if r.Passed {
			env.Passed++
		}
		envDurations[r.Environment] += r.Duration
		stats.ByEnvironment[r.Environment] = env

		day := r.StartedAt.Truncate(24 * time.Hour)

		d, ok := daily[day]
		if !ok {
			d = &DailyStats{Date: day}
			daily[day] = d
		}

		d.Executions++
		if r.Passed {
			d.Passed++
		} else {
			d.Failed++
		}
	}

	stats.PassRate = passRate(stats.Passed, stats.TotalExecutions)
	stats.AverageDuration = meanDuration(totalDuration, stats.TotalExecutions)

	for t, bucket := range stats.ByType {
		bucket.PassRate = passRate(bucket.Passed, bucket.Executions)
		bucket.AverageDuration = meanDuration(typeDurations[t], bucket.Executions)
		stats.ByType[t] = bucket
	}

	for env, bucket := range stats.ByEnvironment {
		bucket.PassRate = passRate(bucket.Passed, bucket.Executions)
		bucket.AverageDuration = meanDuration(envDurations[env], bucket.Executions)
		stats.ByEnvironment[env] = bucket
	}

	for _, d := range daily {
		d.PassRate = passRate(d.Passed, d.Executions)
		stats.Daily = append(stats.Daily, *d)
	}

	slices.SortFunc(stats.Daily, func(a, b DailyStats) int {
		return a.Date.Compare(b.Date)
	})

	return stats
}
