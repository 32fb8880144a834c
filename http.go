package storyline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/storyline-qa/storyline/internal/model"
)

// The HTTP surface is a thin shell over the orchestrator: handlers decode,
// delegate and encode. All behavior lives in the Server methods.

type createScenarioRequest struct {
	Story   string `json:"story"`
	Context string `json:"context,omitempty"`
}

type createScenarioResponse struct {
	ID string `json:"id"`
}

type parallelRunRequest struct {
	ScenarioIDs    []string `json:"scenarioIds"`
	MaxConcurrency int      `json:"maxConcurrency"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) runHTTP(ctx context.Context) error {
	router := httprouter.New()

	router.POST("/projects/:project-id/scenarios", s.handleCreateScenario)
	router.GET("/projects/:project-id/scenarios", s.handleListScenarios)
	router.GET("/projects/:project-id/statistics", s.handleStatistics)
	router.GET("/scenarios/:scenario-id", s.handleGetScenario)
	router.POST("/scenarios/:scenario-id/runs", s.handleExecuteScenario)
	router.GET("/scenarios/:scenario-id/results", s.handleScenarioResults)
	router.POST("/runs", s.handleExecuteParallel)
	router.GET("/executors/health", s.handleExecutorHealth)
	router.Handler(http.MethodGet, "/metrics", promhttp.Handler())

	listener, err := net.Listen("tcp", "localhost:"+strconv.Itoa(s.port))
	if err != nil {
		return fmt.Errorf("listening on port %d: %w", s.port, err)
	}

	s.addr.Store(listener.Addr().String())

	server := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.httpShutdownFunc = server.Shutdown

	s.log.Info("http api listening", "addr", listener.Addr().String())

	if err := server.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// ServerAddr returns the bound address of the HTTP listener, empty until
// Run started serving. Useful with port 0 in tests.
func (s *Server) ServerAddr() string {
	if addr, ok := s.addr.Load().(string); ok {
		return addr
	}

	return ""
}

func (s *Server) handleCreateScenario(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	var req createScenarioRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decoding request: %w", err))
		return
	}

	id, err := s.CreateFromUserStory(r.Context(), req.Story, p.ByName("project-id"), req.Context)
	if err != nil {
		s.httpError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, createScenarioResponse{ID: id})
}

func (s *Server) handleGetScenario(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	scenario, err := s.repo.GetScenario(r.Context(), p.ByName("scenario-id"))
	if err != nil {
		s.httpError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, scenario)
}

func (s *Server) handleListScenarios(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	scenarios, err := s.GetProjectTests(r.Context(), p.ByName("project-id"))
	if err != nil {
		s.httpError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, scenarios)
}

func (s *Server) handleExecuteScenario(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	result, err := s.ExecuteTest(r.Context(), p.ByName("scenario-id"))
	if err != nil {
		s.httpError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleScenarioResults(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	results, err := s.repo.GetResultsByScenario(r.Context(), p.ByName("scenario-id"))
	if err != nil {
		s.httpError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleExecuteParallel(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req parallelRunRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decoding request: %w", err))
		return
	}

	results, err := s.ExecuteTestsParallel(r.Context(), req.ScenarioIDs, req.MaxConcurrency)
	if err != nil && len(results) == 0 {
		s.httpError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	from, err := parseTimeParam(r, "from")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	to, err := parseTimeParam(r, "to")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	stats, err := s.GetTestStatistics(r.Context(), p.ByName("project-id"), from, to)
	if err != nil {
		s.httpError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleExecutorHealth(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.writeJSON(w, http.StatusOK, s.GetExecutorHealthStatus(r.Context()))
}

func parseTimeParam(r *http.Request, name string) (time.Time, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return time.Time{}, nil
	}

	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed %q parameter: %w", name, err)
	}

	return t, nil
}

func (s *Server) httpError(w http.ResponseWriter, err error) {
	var (
		notFound   model.NotFoundError
		validation model.ValidationError
		noExecutor model.NoExecutorError
	)

	switch {
	case errors.As(err, &notFound):
		s.writeError(w, http.StatusNotFound, err)
	case errors.As(err, &validation):
		s.writeError(w, http.StatusBadRequest, err)
	case errors.As(err, &noExecutor):
		s.writeError(w, http.StatusUnprocessableEntity, err)
	default:
		s.writeError(w, http.StatusInternalServerError, err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Warn("writing response failed", "error", err)
	}
}
