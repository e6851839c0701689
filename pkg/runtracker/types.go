// Package runtracker provides in-memory tracking of parameter sweep
// progress and status. It is queried by the monitoring API endpoints so
// dashboards can display live sweep progress and ETA.
package runtracker

import "time"

// RunStatus represents the overall status of a sweep run.
type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
)

// SweepRun tracks one parameter sweep: a strategy swept over a grid for
// one symbol and interval.
type SweepRun struct {
	RunID    string `json:"run_id"`
	Strategy string `json:"strategy"`
	Symbol   string `json:"symbol"`
	Interval string `json:"interval"`
	GridSize int    `json:"grid_size"`

	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time"`
	Status    RunStatus  `json:"status"`

	Evaluated int      `json:"evaluated"`
	Valid     int      `json:"valid"`
	Filtered  int      `json:"filtered"`
	BestScore *float64 `json:"best_score,omitempty"`

	ErrorMessage string `json:"error_message,omitempty"`
}

// ProgressPercent returns the completion percentage (0-100).
func (r *SweepRun) ProgressPercent() int {
	if r.GridSize == 0 {
		return 0
	}
	return r.Evaluated * 100 / r.GridSize
}

// ElapsedSeconds returns seconds since the run started, frozen at the
// end time once the run finishes.
func (r *SweepRun) ElapsedSeconds() float64 {
	if r.EndTime != nil {
		return r.EndTime.Sub(r.StartTime).Seconds()
	}
	return time.Since(r.StartTime).Seconds()
}

// EstimatedRemainingSeconds extrapolates from the throughput so far.
func (r *SweepRun) EstimatedRemainingSeconds() float64 {
	if r.Evaluated == 0 || r.EndTime != nil {
		return 0
	}
	avg := r.ElapsedSeconds() / float64(r.Evaluated)
	return avg * float64(r.GridSize-r.Evaluated)
}

// ETACompletion returns the estimated completion time, or nil while it
// cannot be calculated.
func (r *SweepRun) ETACompletion() *time.Time {
	remaining := r.EstimatedRemainingSeconds()
	if remaining <= 0 {
		return nil
	}
	eta := time.Now().Add(time.Duration(remaining * float64(time.Second)))
	return &eta
}
