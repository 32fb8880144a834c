package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/storyline-qa/storyline"
	"github.com/storyline-qa/storyline/internal/executor"
	"github.com/storyline-qa/storyline/internal/hook"
	"github.com/storyline-qa/storyline/internal/model"
	"github.com/storyline-qa/storyline/internal/storage"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the storyline server",
		RunE:  serve,
	}

	cmd.Flags().String("config", "", "path to the yaml config file")

	return cmd
}

func serve(cmd *cobra.Command, _ []string) error {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return err
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	opts := []storyline.Option{
		storyline.WithLogger(log),
		storyline.WithPort(cfg.Port),
		storyline.WithHook(hook.NewLoggingHook(log)),
	}

	if cfg.Database != "" {
		repo, err := storage.NewSQLite(cfg.Database, log)
		if err != nil {
			return err
		}

		opts = append(opts, storyline.WithRepository(repo))
	}

	if cfg.HealthCheckFanOut > 0 {
		opts = append(opts, storyline.WithHealthCheckFanOut(cfg.HealthCheckFanOut))
	}

	if len(cfg.Elasticsearch.Addresses) > 0 {
		es, err := hook.NewElasticHook(cfg.Elasticsearch.Addresses, cfg.Elasticsearch.Index, log)
		if err != nil {
			return err
		}

		opts = append(opts, storyline.WithHook(es))
	}

	for _, sr := range cfg.Schedules {
		opts = append(opts, storyline.WithScheduledRun(storyline.ScheduledRun{
			ScenarioID: sr.ScenarioID,
			Schedule:   sr.Schedule,
		}))
	}

	s := storyline.New(opts...)

	executorConfig := map[string]model.Value{}
	if cfg.HTTPExecutor.Timeout != "" {
		executorConfig["timeout"] = model.String(cfg.HTTPExecutor.Timeout)
	}
	if cfg.HTTPExecutor.HealthURL != "" {
		executorConfig["health_url"] = model.String(cfg.HTTPExecutor.HealthURL)
	}

	if err := s.RegisterExecutor(cmd.Context(), executor.NewHTTP(log), executorConfig); err != nil {
		return err
	}

	errs := make(chan error, 1)

	go func() {
		errs <- s.Run(context.Background())
	}()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errs:
		return err
	case sig := <-signals:
		log.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.Shutdown(ctx)
}
