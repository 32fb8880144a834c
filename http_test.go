package storyline_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/storyline-qa/storyline"
	"github.com/storyline-qa/storyline/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T, opts ...storyline.Option) (*storyline.Server, client.Client) {
	t.Helper()

	opts = append(opts, storyline.WithPort(0))

	s := storyline.New(opts...)
	require.NoError(t, s.RegisterExecutor(context.Background(), newFakeExecutor("fake"), nil))

	go func() {
		if err := s.Run(context.Background()); err != nil {
			t.Errorf("server stopped: %v", err)
		}
	}()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = s.Shutdown(ctx)
	})

	var addr string

	require.Eventually(t, func() bool {
		addr = s.ServerAddr()
		return addr != ""
	}, 5*time.Second, 10*time.Millisecond, "server did not start listening")

	return s, client.New("http://"+addr, &http.Client{Timeout: 5 * time.Second})
}

func TestHTTPScenarioLifecycle(t *testing.T) {
	t.Parallel()

	_, c := startServer(t)
	ctx := context.Background()

	id, err := c.CreateScenario(ctx, "proj-1", "login at https://example.com", "")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	sc, err := c.GetScenario(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "proj-1", sc.ProjectID)
	assert.NotEmpty(t, sc.Steps)

	scenarios, err := c.ListScenarios(ctx, "proj-1")
	require.NoError(t, err)
	require.Len(t, scenarios, 1)

	result, err := c.RunScenario(ctx, id)
	require.NoError(t, err)
	assert.True(t, result.Passed)

	results, err := c.GetResults(ctx, id)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, result.ID, results[0].ID)

	stats, err := c.GetStatistics(ctx, "proj-1", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalExecutions)

	health, err := c.GetExecutorHealth(ctx)
	require.NoError(t, err)
	require.Contains(t, health, "fake")
	assert.True(t, health["fake"].IsHealthy)
}

func TestHTTPUnknownScenarioReturns404(t *testing.T) {
	t.Parallel()

	_, c := startServer(t)

	_, err := c.GetScenario(context.Background(), "missing")

	var reqErr client.RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, http.StatusNotFound, reqErr.ResponseCode)
}

func TestHTTPRunUnknownScenarioReturns404(t *testing.T) {
	t.Parallel()

	_, c := startServer(t)

	_, err := c.RunScenario(context.Background(), "missing")

	var reqErr client.RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, http.StatusNotFound, reqErr.ResponseCode)
}
