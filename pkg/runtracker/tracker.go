package runtracker

import (
	"crypto/rand"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Tracker provides thread-safe management of sweep run state. It is the
// central store queried by the monitoring API endpoints.
type Tracker struct {
	mu     sync.RWMutex
	runs   map[string]*SweepRun
	logger *slog.Logger

	// startedAt is used by the health endpoint to report uptime.
	startedAt time.Time
	version   string
}

// NewTracker creates a new run tracker.
func NewTracker(logger *slog.Logger, version string) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	if version == "" {
		version = "dev"
	}
	return &Tracker{
		runs:      make(map[string]*SweepRun),
		logger:    logger,
		startedAt: time.Now(),
		version:   version,
	}
}

// StartedAt returns the time the tracker was created.
func (t *Tracker) StartedAt() time.Time { return t.startedAt }

// Version returns the version string.
func (t *Tracker) Version() string { return t.version }

// UptimeSeconds returns seconds since the tracker was created.
func (t *Tracker) UptimeSeconds() float64 { return time.Since(t.startedAt).Seconds() }

// generateRunID produces a short random hex run identifier.
func generateRunID() string {
	b := make([]byte, 5)
	_, _ = rand.Read(b)
	return fmt.Sprintf("%x", b)
}

// StartSweep registers a new sweep run and returns its run_id.
func (t *Tracker) StartSweep(strategy, symbol, interval string, gridSize int) string {
	runID := generateRunID()
	run := &SweepRun{
		RunID:     runID,
		Strategy:  strategy,
		Symbol:    symbol,
		Interval:  interval,
		GridSize:  gridSize,
		StartTime: time.Now(),
		Status:    StatusRunning,
	}
	t.mu.Lock()
	t.runs[runID] = run
	t.mu.Unlock()

	t.logger.Info("sweep started",
		"run_id", runID, "strategy", strategy,
		"symbol", symbol, "grid_size", gridSize,
	)
	return runID
}

// RecordEvaluation advances the progress counters for one finished grid
// point. Suitable as a Sweeper.OnEvaluation hook.
func (t *Tracker) RecordEvaluation(runID string, valid bool, score float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	run, ok := t.runs[runID]
	if !ok {
		t.logger.Warn("RecordEvaluation: run not found", "run_id", runID)
		return
	}
	run.Evaluated++
	if valid {
		run.Valid++
		if run.BestScore == nil || score > *run.BestScore {
			s := score
			run.BestScore = &s
		}
	} else {
		run.Filtered++
	}
}

// CompleteSweep finalises a run with the sweep's authoritative counts.
func (t *Tracker) CompleteSweep(runID string, tested, valid, filtered int, bestScore *float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	run, ok := t.runs[runID]
	if !ok {
		t.logger.Warn("CompleteSweep: run not found", "run_id", runID)
		return
	}
	now := time.Now()
	run.EndTime = &now
	run.Status = StatusCompleted
	run.Evaluated = tested
	run.Valid = valid
	run.Filtered = filtered
	run.BestScore = bestScore
	t.logger.Info("sweep finished",
		"run_id", runID,
		"tested", tested, "valid", valid, "filtered", filtered,
		"elapsed_secs", run.ElapsedSeconds(),
	)
}

// FailSweep marks a run as failed with an error message.
func (t *Tracker) FailSweep(runID string, errMsg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	run, ok := t.runs[runID]
	if !ok {
		t.logger.Warn("FailSweep: run not found", "run_id", runID)
		return
	}
	now := time.Now()
	run.EndTime = &now
	run.Status = StatusFailed
	run.ErrorMessage = errMsg
	t.logger.Warn("sweep failed", "run_id", runID, "error", errMsg)
}

// GetRun returns a snapshot of the run with the given ID, or nil.
func (t *Tracker) GetRun(runID string) *SweepRun {
	t.mu.RLock()
	defer t.mu.RUnlock()
	run, ok := t.runs[runID]
	if !ok {
		return nil
	}
	cp := *run
	return &cp
}

// ListRuns returns run snapshots, newest first, optionally filtered by
// status and/or strategy name.
func (t *Tracker) ListRuns(statusFilter, strategyFilter string, limit int) []*SweepRun {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make([]*SweepRun, 0, len(t.runs))
	for _, run := range t.runs {
		if statusFilter != "" && string(run.Status) != statusFilter {
			continue
		}
		if strategyFilter != "" && run.Strategy != strategyFilter {
			continue
		}
		cp := *run
		result = append(result, &cp)
	}

	sortByStartDesc(result)
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}

func sortByStartDesc(runs []*SweepRun) {
	for i := 0; i < len(runs); i++ {
		for j := i + 1; j < len(runs); j++ {
			if runs[j].StartTime.After(runs[i].StartTime) {
				runs[i], runs[j] = runs[j], runs[i]
			}
		}
	}
}
