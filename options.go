package storyline

import "log/slog"

type Option func(s *Server)

func WithLogger(log *slog.Logger) Option {
	return func(s *Server) {
		s.log = log
	}
}

func WithRepository(repo Repository) Option {
	return func(s *Server) {
		s.repo = repo
	}
}

func WithGenerator(g Generator) Option {
	return func(s *Server) {
		s.generator = g
	}
}

// WithPort sets the HTTP API port. Only relevant when serving via Run.
func WithPort(port int) Option {
	return func(s *Server) {
		s.port = port
	}
}

// WithHook registers a lifecycle listener. The hook's concrete listener
// interfaces are detected during Start.
func WithHook(h Hook) Option {
	return func(s *Server) {
		s.hookList = append(s.hookList, h)
	}
}

// WithScheduledRun executes a stored scenario on a cron schedule.
func WithScheduledRun(sr ScheduledRun) Option {
	return func(s *Server) {
		s.schedules = append(s.schedules, sr)
	}
}

// WithHealthCheckFanOut bounds how many executor health checks run
// concurrently.
func WithHealthCheckFanOut(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.healthFanOut = n
		}
	}
}
