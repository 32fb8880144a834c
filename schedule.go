package storyline

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// ScheduledRun executes a stored scenario on a cron schedule.
type ScheduledRun struct {
	// ScenarioID is the id of the scenario to be run.
	ScenarioID string
	// Schedule defines how often a run is triggered. For the format see
	// https://pkg.go.dev/github.com/robfig/cron#hdr-CRON_Expression_Format
	Schedule string
	// EntryID identifies the cronjob.
	EntryID cron.EntryID
}

func (s *Server) startSchedules() error {
	if len(s.schedules) == 0 {
		return nil
	}

	s.cron = cron.New(cron.WithSeconds())

	for i := range s.schedules {
		schedule := s.schedules[i]

		entryID, err := s.cron.AddFunc(schedule.Schedule, func() {
			s.runScheduled(schedule.ScenarioID)
		})
		if err != nil {
			return fmt.Errorf("adding scheduled run for scenario %q: %w", schedule.ScenarioID, err)
		}

		s.schedules[i].EntryID = entryID
	}

	s.cron.Start()

	return nil
}

func (s *Server) runScheduled(scenarioID string) {
	if s.shuttingDown.Load() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	result, err := s.ExecuteTest(ctx, scenarioID)
	if err != nil {
		s.log.Error("scheduled run failed", "scenario-id", scenarioID, "error", err)
		return
	}

	s.log.Info("scheduled run finished",
		"scenario-id", scenarioID,
		"result-id", result.ID,
		"passed", result.Passed)
}
