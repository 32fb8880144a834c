package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type serverConfig struct {
	Port int `yaml:"port"`

	// Database is the SQLite file path. Empty selects the in-memory
	// repository.
	Database string `yaml:"database"`

	HealthCheckFanOut int `yaml:"healthCheckFanOut"`

	Elasticsearch struct {
		Addresses []string `yaml:"addresses"`
		Index     string   `yaml:"index"`
	} `yaml:"elasticsearch"`

	HTTPExecutor struct {
		Timeout   string `yaml:"timeout"`
		HealthURL string `yaml:"healthUrl"`
	} `yaml:"httpExecutor"`

	Schedules []struct {
		ScenarioID string `yaml:"scenarioId"`
		Schedule   string `yaml:"schedule"`
	} `yaml:"schedules"`
}

func loadConfig(path string) (serverConfig, error) {
	cfg := serverConfig{Port: 1337}

	if path == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config %q: %w", path, err)
	}

	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %q: %w", path, err)
	}

	return cfg, nil
}
