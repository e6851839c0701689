package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/algomatic/go-backtest/pkg/runtracker"
)

func newTestServer(t *testing.T) (*Server, *runtracker.Tracker) {
	t.Helper()
	tracker := runtracker.NewTracker(nil, "test-v1")
	server := NewServer(tracker, nil)
	return server, tracker
}

func TestHandleStatus(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	w := httptest.NewRecorder()

	srv.HandleStatus(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var resp statusResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if resp.Status != "healthy" {
		t.Errorf("expected status 'healthy', got %q", resp.Status)
	}
	if resp.Version != "test-v1" {
		t.Errorf("expected version 'test-v1', got %q", resp.Version)
	}
	if resp.UptimeSeconds < 0 {
		t.Error("expected non-negative uptime")
	}
}

func TestHandleListStrategies(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/strategies", nil)
	w := httptest.NewRecorder()

	srv.HandleListStrategies(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var resp strategyListResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if resp.Total != len(resp.Strategies) {
		t.Errorf("total %d does not match list length %d", resp.Total, len(resp.Strategies))
	}
	found := false
	for _, name := range resp.Strategies {
		if name == "adaptive_ema_v1" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected adaptive_ema_v1 in %v", resp.Strategies)
	}
}

func TestHandleListRunsEmpty(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil)
	w := httptest.NewRecorder()

	srv.HandleListRuns(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var resp runListResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if resp.TotalRuns != 0 {
		t.Errorf("expected 0 runs, got %d", resp.TotalRuns)
	}
	if len(resp.Runs) != 0 {
		t.Errorf("expected empty runs array, got %d", len(resp.Runs))
	}
}

func TestHandleListRunsWithData(t *testing.T) {
	srv, tracker := newTestServer(t)

	runID := tracker.StartSweep("adaptive_ema_v2", "AAPL", "1h", 4)
	tracker.RecordEvaluation(runID, true, 55.0)
	tracker.RecordEvaluation(runID, false, 0)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil)
	w := httptest.NewRecorder()

	srv.HandleListRuns(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var resp runListResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if resp.TotalRuns != 1 {
		t.Fatalf("expected 1 run, got %d", resp.TotalRuns)
	}

	run := resp.Runs[0]
	if run.RunID != runID {
		t.Errorf("expected run_id %q, got %q", runID, run.RunID)
	}
	if run.Symbol != "AAPL" {
		t.Errorf("expected symbol AAPL, got %q", run.Symbol)
	}
	if run.GridSize != 4 {
		t.Errorf("expected grid size 4, got %d", run.GridSize)
	}
	if run.Evaluated != 2 {
		t.Errorf("expected 2 evaluated, got %d", run.Evaluated)
	}
	if run.ProgressPercent != 50 {
		t.Errorf("expected 50%% progress, got %d%%", run.ProgressPercent)
	}
	if run.BestScore == nil || *run.BestScore != 55.0 {
		t.Errorf("expected best score 55.0, got %v", run.BestScore)
	}
}

func TestHandleListRunsWithFilter(t *testing.T) {
	srv, tracker := newTestServer(t)

	tracker.StartSweep("adaptive_ema_v1", "AAPL", "1h", 10)
	runID := tracker.StartSweep("adaptive_donchian_v1", "GOOG", "1d", 10)
	tracker.CompleteSweep(runID, 10, 8, 2, nil)

	// Filter by strategy
	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs?strategy=adaptive_donchian_v1", nil)
	w := httptest.NewRecorder()

	srv.HandleListRuns(w, req)

	var resp runListResponse
	json.NewDecoder(w.Body).Decode(&resp)

	if resp.TotalRuns != 1 {
		t.Fatalf("expected 1 donchian run, got %d", resp.TotalRuns)
	}
	if resp.Runs[0].Symbol != "GOOG" {
		t.Errorf("expected GOOG, got %q", resp.Runs[0].Symbol)
	}

	// Filter by status
	req = httptest.NewRequest(http.MethodGet, "/api/v1/runs?status=completed", nil)
	w = httptest.NewRecorder()

	srv.HandleListRuns(w, req)

	resp = runListResponse{}
	json.NewDecoder(w.Body).Decode(&resp)

	if resp.TotalRuns != 1 {
		t.Errorf("expected 1 completed run, got %d", resp.TotalRuns)
	}
}

func TestHandleListRunsWithLimit(t *testing.T) {
	srv, tracker := newTestServer(t)

	for i := 0; i < 5; i++ {
		tracker.StartSweep("adaptive_ema_v1", "AAPL", "1h", 10)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs?limit=2", nil)
	w := httptest.NewRecorder()

	srv.HandleListRuns(w, req)

	var resp runListResponse
	json.NewDecoder(w.Body).Decode(&resp)

	if resp.TotalRuns != 2 {
		t.Errorf("expected 2 runs with limit=2, got %d", resp.TotalRuns)
	}
}

func TestHandleGetRunNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs/nonexistent", nil)
	req.SetPathValue("run_id", "nonexistent")
	w := httptest.NewRecorder()

	srv.HandleGetRun(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", w.Code)
	}

	var resp errorResponse
	json.NewDecoder(w.Body).Decode(&resp)

	if resp.Error != "run not found" {
		t.Errorf("expected 'run not found', got %q", resp.Error)
	}
}

func TestHandleGetRunDetailed(t *testing.T) {
	srv, tracker := newTestServer(t)

	runID := tracker.StartSweep("adaptive_ema_v2", "AAPL", "1h", 8)
	tracker.RecordEvaluation(runID, true, 42.5)
	tracker.RecordEvaluation(runID, true, 61.2)
	tracker.RecordEvaluation(runID, false, 0)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs/"+runID, nil)
	req.SetPathValue("run_id", runID)
	w := httptest.NewRecorder()

	srv.HandleGetRun(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var resp runDetailResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if resp.RunID != runID {
		t.Errorf("expected run_id %q, got %q", runID, resp.RunID)
	}
	if resp.Strategy != "adaptive_ema_v2" {
		t.Errorf("expected strategy adaptive_ema_v2, got %q", resp.Strategy)
	}
	if resp.Status != "running" {
		t.Errorf("expected status running, got %q", resp.Status)
	}
	if resp.Evaluated != 3 {
		t.Errorf("expected 3 evaluated, got %d", resp.Evaluated)
	}
	if resp.Valid != 2 {
		t.Errorf("expected 2 valid, got %d", resp.Valid)
	}
	if resp.Filtered != 1 {
		t.Errorf("expected 1 filtered, got %d", resp.Filtered)
	}
	if resp.BestScore == nil || *resp.BestScore != 61.2 {
		t.Errorf("expected best score 61.2, got %v", resp.BestScore)
	}
	if resp.EndTime != nil {
		t.Errorf("expected nil end_time for running sweep, got %v", *resp.EndTime)
	}
}

func TestHandleGetRunFailed(t *testing.T) {
	srv, tracker := newTestServer(t)

	runID := tracker.StartSweep("adaptive_ema_v1", "MSFT", "5m", 3)
	tracker.FailSweep(runID, "series too short")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs/"+runID, nil)
	req.SetPathValue("run_id", runID)
	w := httptest.NewRecorder()

	srv.HandleGetRun(w, req)

	var resp runDetailResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if resp.Status != "failed" {
		t.Errorf("expected status failed, got %q", resp.Status)
	}
	if resp.ErrorMessage == nil || *resp.ErrorMessage != "series too short" {
		t.Errorf("expected error message, got %v", resp.ErrorMessage)
	}
	if resp.EndTime == nil {
		t.Error("expected end_time to be set for failed sweep")
	}
}

func TestHandleGetRunEmptyRunID(t *testing.T) {
	srv, _ := newTestServer(t)

	// PathValue returns "" for missing path parameter
	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs/", nil)
	req.SetPathValue("run_id", "")
	w := httptest.NewRecorder()

	srv.HandleGetRun(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", w.Code)
	}
}

func TestContentTypeJSON(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	w := httptest.NewRecorder()

	srv.HandleStatus(w, req)

	ct := w.Header().Get("Content-Type")
	if ct != "application/json" {
		t.Errorf("expected Content-Type 'application/json', got %q", ct)
	}
}

func TestRouteRegistration(t *testing.T) {
	srv, tracker := newTestServer(t)
	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)

	runID := tracker.StartSweep("adaptive_ema_v1", "AAPL", "1h", 2)

	// Verify routes resolve through the mux, including the path parameter.
	for _, path := range []string{"/api/v1/status", "/api/v1/strategies", "/api/v1/runs", "/api/v1/runs/" + runID} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("%s: expected status 200 from mux, got %d", path, w.Code)
		}
	}
}
