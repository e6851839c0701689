// Package api provides HTTP handlers for the backtest monitoring API.
//
// Endpoints:
//
//	GET /api/v1/status           - Service health check
//	GET /api/v1/strategies       - List registered strategy names
//	GET /api/v1/runs             - List sweep runs (with optional filters)
//	GET /api/v1/runs/{run_id}    - Detailed sweep run status
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/algomatic/go-backtest/pkg/runtracker"
	"github.com/algomatic/go-backtest/pkg/strategy"
)

// Server holds dependencies for the API handlers.
type Server struct {
	Tracker *runtracker.Tracker
	Logger  *slog.Logger
}

// NewServer creates a new API server.
func NewServer(tracker *runtracker.Tracker, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		Tracker: tracker,
		Logger:  logger,
	}
}

// RegisterRoutes registers all API routes on the provided mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/status", s.HandleStatus)
	mux.HandleFunc("GET /api/v1/strategies", s.HandleListStrategies)
	mux.HandleFunc("GET /api/v1/runs", s.HandleListRuns)
	// Go 1.22+ pattern matching with path parameters
	mux.HandleFunc("GET /api/v1/runs/{run_id}", s.HandleGetRun)
}

// ---------------------------------------------------------------------------
// Response types
// ---------------------------------------------------------------------------

type statusResponse struct {
	Status        string  `json:"status"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	Version       string  `json:"version"`
}

type strategyListResponse struct {
	Strategies []string `json:"strategies"`
	Total      int      `json:"total"`
}

type runListItem struct {
	RunID                     string   `json:"run_id"`
	Strategy                  string   `json:"strategy"`
	Symbol                    string   `json:"symbol"`
	Interval                  string   `json:"interval"`
	StartTime                 string   `json:"start_time"`
	EndTime                   *string  `json:"end_time"`
	Status                    string   `json:"status"`
	GridSize                  int      `json:"grid_size"`
	Evaluated                 int      `json:"evaluated"`
	ProgressPercent           int      `json:"progress_percent"`
	ElapsedTimeSeconds        float64  `json:"elapsed_time_seconds"`
	EstimatedRemainingSeconds float64  `json:"estimated_remaining_seconds"`
	BestScore                 *float64 `json:"best_score"`
}

type runListResponse struct {
	Runs      []runListItem `json:"runs"`
	TotalRuns int           `json:"total_runs"`
}

type runDetailResponse struct {
	RunID                     string   `json:"run_id"`
	Strategy                  string   `json:"strategy"`
	Symbol                    string   `json:"symbol"`
	Interval                  string   `json:"interval"`
	StartTime                 string   `json:"start_time"`
	EndTime                   *string  `json:"end_time"`
	Status                    string   `json:"status"`
	GridSize                  int      `json:"grid_size"`
	Evaluated                 int      `json:"evaluated"`
	Valid                     int      `json:"valid"`
	Filtered                  int      `json:"filtered"`
	ProgressPercent           int      `json:"progress_percent"`
	ElapsedTimeSeconds        float64  `json:"elapsed_time_seconds"`
	EstimatedRemainingSeconds float64  `json:"estimated_remaining_seconds"`
	ETACompletion             *string  `json:"eta_completion"`
	BestScore                 *float64 `json:"best_score"`
	ErrorMessage              *string  `json:"error_message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

// HandleStatus returns overall service health and readiness.
func (s *Server) HandleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Status:        "healthy",
		UptimeSeconds: s.Tracker.UptimeSeconds(),
		Version:       s.Tracker.Version(),
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleListStrategies returns the registered strategy names.
func (s *Server) HandleListStrategies(w http.ResponseWriter, r *http.Request) {
	names := strategy.Names()
	writeJSON(w, http.StatusOK, strategyListResponse{
		Strategies: names,
		Total:      len(names),
	})
}

// HandleListRuns returns a list of sweep runs with progress statistics.
func (s *Server) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	statusFilter := q.Get("status")
	strategyFilter := q.Get("strategy")
	limit := 100
	if l := q.Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	runs := s.Tracker.ListRuns(statusFilter, strategyFilter, limit)
	items := make([]runListItem, len(runs))
	for i, run := range runs {
		items[i] = buildRunListItem(run)
	}

	writeJSON(w, http.StatusOK, runListResponse{
		Runs:      items,
		TotalRuns: len(items),
	})
}

// HandleGetRun returns detailed status of a specific sweep run.
func (s *Server) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run_id")
	if runID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "run_id is required"})
		return
	}

	run := s.Tracker.GetRun(runID)
	if run == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "run not found"})
		return
	}

	resp := runDetailResponse{
		RunID:                     run.RunID,
		Strategy:                  run.Strategy,
		Symbol:                    run.Symbol,
		Interval:                  run.Interval,
		StartTime:                 run.StartTime.UTC().Format("2006-01-02T15:04:05Z"),
		EndTime:                   formatOptionalTime(run.EndTime),
		Status:                    string(run.Status),
		GridSize:                  run.GridSize,
		Evaluated:                 run.Evaluated,
		Valid:                     run.Valid,
		Filtered:                  run.Filtered,
		ProgressPercent:           run.ProgressPercent(),
		ElapsedTimeSeconds:        run.ElapsedSeconds(),
		EstimatedRemainingSeconds: run.EstimatedRemainingSeconds(),
		ETACompletion:             formatOptionalTime(run.ETACompletion()),
		BestScore:                 run.BestScore,
	}
	if run.ErrorMessage != "" {
		msg := run.ErrorMessage
		resp.ErrorMessage = &msg
	}

	writeJSON(w, http.StatusOK, resp)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to encode JSON response", "error", err)
	}
}

func buildRunListItem(run *runtracker.SweepRun) runListItem {
	return runListItem{
		RunID:                     run.RunID,
		Strategy:                  run.Strategy,
		Symbol:                    run.Symbol,
		Interval:                  run.Interval,
		StartTime:                 run.StartTime.UTC().Format("2006-01-02T15:04:05Z"),
		EndTime:                   formatOptionalTime(run.EndTime),
		Status:                    string(run.Status),
		GridSize:                  run.GridSize,
		Evaluated:                 run.Evaluated,
		ProgressPercent:           run.ProgressPercent(),
		ElapsedTimeSeconds:        run.ElapsedSeconds(),
		EstimatedRemainingSeconds: run.EstimatedRemainingSeconds(),
		BestScore:                 run.BestScore,
	}
}

func formatOptionalTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format("2006-01-02T15:04:05Z")
	return &s
}
