// Package client is a typed HTTP client for the storyline API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/storyline-qa/storyline/internal/model"
)

type TestScenario = model.TestScenario
type TestResult = model.TestResult
type TestStatistics = model.TestStatistics
type HealthCheckResult = model.HealthCheckResult

type Client struct {
	http *http.Client
	host string
}

type RequestError struct {
	ResponseCode int
	Message      string
}

func (e RequestError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("request failed with status %d: %s", e.ResponseCode, e.Message)
	}

	return fmt.Sprintf("request failed with status %d", e.ResponseCode)
}

func New(host string, c *http.Client) Client {
	return Client{http: c, host: host}
}

func (c Client) CreateScenario(ctx context.Context, projectID, story, projectContext string) (string, error) {
	u := c.url("/projects/%s/scenarios", url.PathEscape(projectID))

	payload, err := json.Marshal(map[string]string{
		"story":   story,
		"context": projectContext,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequest("POST", u, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	var created struct {
		ID string `json:"id"`
	}

	if err = c.do(ctx, req, &created); err != nil {
		return "", err
	}

	return created.ID, nil
}

func (c Client) GetScenario(ctx context.Context, scenarioID string) (TestScenario, error) {
	req, err := http.NewRequest("GET", c.url("/scenarios/%s", url.PathEscape(scenarioID)), nil)
	if err != nil {
		return TestScenario{}, err
	}

	var scenario TestScenario

	if err = c.do(ctx, req, &scenario); err != nil {
		return TestScenario{}, err
	}

	return scenario, nil
}

func (c Client) ListScenarios(ctx context.Context, projectID string) ([]TestScenario, error) {
	req, err := http.NewRequest("GET", c.url("/projects/%s/scenarios", url.PathEscape(projectID)), nil)
	if err != nil {
		return nil, err
	}

	var scenarios []TestScenario

	if err = c.do(ctx, req, &scenarios); err != nil {
		return nil, err
	}

	return scenarios, nil
}

func (c Client) RunScenario(ctx context.Context, scenarioID string) (TestResult, error) {
	req, err := http.NewRequest("POST", c.url("/scenarios/%s/runs", url.PathEscape(scenarioID)), nil)
	if err != nil {
		return TestResult{}, err
	}

	var result TestResult

	if err = c.do(ctx, req, &result); err != nil {
		return TestResult{}, err
	}

	return result, nil
}

func (c Client) GetResults(ctx context.Context, scenarioID string) ([]TestResult, error) {
	req, err := http.NewRequest("GET", c.url("/scenarios/%s/results", url.PathEscape(scenarioID)), nil)
	if err != nil {
		return nil, err
	}

	var results []TestResult

	if err = c.do(ctx, req, &results); err != nil {
		return nil, err
	}

	return results, nil
}

func (c Client) GetStatistics(ctx context.Context, projectID string, from, to time.Time) (TestStatistics, error) {
	u := c.url("/projects/%s/statistics", url.PathEscape(projectID))

	query := url.Values{}
	if !from.IsZero() {
		query.Set("from", from.Format(time.RFC3339))
	}
	if !to.IsZero() {
		query.Set("to", to.Format(time.RFC3339))
	}
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequest("GET", u, nil)
	if err != nil {
		return TestStatistics{}, err
	}

	var stats TestStatistics

	if err = c.do(ctx, req, &stats); err != nil {
		return TestStatistics{}, err
	}

	return stats, nil
}

func (c Client) GetExecutorHealth(ctx context.Context) (map[string]HealthCheckResult, error) {
	req, err := http.NewRequest("GET", c.url("/executors/health"), nil)
	if err != nil {
		return nil, err
	}

	var statuses map[string]HealthCheckResult

	if err = c.do(ctx, req, &statuses); err != nil {
		return nil, err
	}

	return statuses, nil
}

func (c Client) url(path string, args ...any) string {
	return fmt.Sprintf(c.host+path, args...)
}

func (c Client) do(ctx context.Context, req *http.Request, body any) error {
	req = req.WithContext(ctx)
	req.Header.Add("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(res.Body).Decode(&apiErr)

		return RequestError{ResponseCode: res.StatusCode, Message: apiErr.Error}
	}

	if body != nil {
		if err = json.NewDecoder(res.Body).Decode(body); err != nil {
			return err
		}
	}

	return nil
}
