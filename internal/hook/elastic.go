// Package hook contains the built-in listeners that react to scenario
// lifecycle events: indexing finished results into Elasticsearch and
// structured logging.
package hook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/storyline-qa/storyline/internal/model"
)

// ElasticHook indexes every finished test result into an Elasticsearch
// index so that runs can be searched and dashboarded alongside service
// logs. Index failures are logged, never propagated: result persistence
// does not depend on the search cluster being up.
type ElasticHook struct {
	client *elasticsearch.Client
	index  string
	log    *slog.Logger
}

func NewElasticHook(addresses []string, index string, log *slog.Logger) (*ElasticHook, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: addresses,
	})
	if err != nil {
		return nil, fmt.Errorf("creating elasticsearch client: %w", err)
	}

	if index == "" {
		index = "storyline-results"
	}

	return &ElasticHook{
		client: client,
		index:  index,
		log:    log,
	}, nil
}

func (h *ElasticHook) Name() string {
	return "elastic-search"
}

func (h *ElasticHook) Init() error {
	if h.client == nil {
		return fmt.Errorf("elasticsearch client is not configured")
	}

	return nil
}

// resultDocument flattens the parts of a result that are useful to query.
type resultDocument struct {
	ResultID    string            `json:"resultId"`
	ScenarioID  string            `json:"scenarioId"`
	ProjectID   string            `json:"projectId"`
	Title       string            `json:"title"`
	Type        model.TestType    `json:"type"`
	Environment model.Environment `json:"environment"`
	Passed      bool              `json:"passed"`
	Message     string            `json:"message,omitempty"`
	StartedAt   time.Time         `json:"startedAt"`
	DurationMS  int64             `json:"durationMs"`
	Steps       int               `json:"steps"`
}

func (h *ElasticHook) TestFinished(scenario model.TestScenario, result model.TestResult) {
	doc := resultDocument{
		ResultID:    result.ID,
		ScenarioID:  scenario.ID,
		ProjectID:   scenario.ProjectID,
		Title:       scenario.Title,
		Type:        scenario.Type,
		Environment: result.Environment,
		Passed:      result.Passed,
		Message:     result.Message,
		StartedAt:   result.StartedAt,
		DurationMS:  result.Duration.Milliseconds(),
		Steps:       len(result.Steps),
	}

	body, err := json.Marshal(doc)
	if err != nil {
		h.log.Warn("marshaling result document failed", "result-id", result.ID, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := h.client.Index(
		h.index,
		bytes.NewReader(body),
		h.client.Index.WithContext(ctx),
		h.client.Index.WithDocumentID(result.ID),
	)
	if err != nil {
		h.log.Warn("indexing result failed", "result-id", result.ID, "error", err)
		return
	}
	defer res.Body.Close()

	if res.IsError() {
		h.log.Warn("indexing result failed", "result-id", result.ID, "status", res.Status())
	}
}
