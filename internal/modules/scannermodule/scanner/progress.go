package scanner

import (
	"sync"
	"time"
)

// ScanState is the pollable progress record of one course.
type ScanState struct {
	Total       int    `json:"total"`
	Processed   int    `json:"processed"`
	CurrentFile string `json:"current_file"`
	Done        bool   `json:"done"`
	Error       bool   `json:"error"`
}

// ProgressSnapshot adds derived figures to a ScanState for API consumers
type ProgressSnapshot struct {
	ScanState
	Percentage     float64    `json:"percentage"`
	FilesPerSecond float64    `json:"files_per_second"`
	ETA            *time.Time `json:"eta,omitempty"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
}

type courseProgress struct {
	state      ScanState
	estimator  *ProgressEstimator
	startedAt  time.Time
	finishedAt time.Time
}

// ProgressTracker holds the scan progress of every course seen by this
// process. Writes are visible to readers immediately.
type ProgressTracker struct {
	mu      sync.RWMutex
	courses map[uint]*courseProgress
}

// NewProgressTracker creates an empty tracker
func NewProgressTracker() *ProgressTracker {
	return &ProgressTracker{courses: make(map[uint]*courseProgress)}
}

// Start overwrites the course record for a new pass
func (pt *ProgressTracker) Start(courseID uint, totalFiles int) {
	estimator := NewProgressEstimator()
	estimator.SetTotal(int64(totalFiles))

	pt.mu.Lock()
	defer pt.mu.Unlock()
	pt.courses[courseID] = &courseProgress{
		state:     ScanState{Total: totalFiles},
		estimator: estimator,
		startedAt: time.Now(),
	}
}

// SetTotal records the file count of a pass started before counting
func (pt *ProgressTracker) SetTotal(courseID uint, totalFiles int) {
	pt.mu.Lock()
	cp, ok := pt.courses[courseID]
	if !ok || cp.state.Done {
		pt.mu.Unlock()
		return
	}
	cp.state.Total = totalFiles
	pt.mu.Unlock()

	cp.estimator.SetTotal(int64(totalFiles))
}

// Advance counts one processed file and records its name
func (pt *ProgressTracker) Advance(courseID uint, currentFilename string) {
	pt.mu.Lock()
	cp, ok := pt.courses[courseID]
	if !ok || cp.state.Done {
		pt.mu.Unlock()
		return
	}
	cp.state.Processed++
	cp.state.CurrentFile = currentFilename
	processed := cp.state.Processed
	pt.mu.Unlock()

	cp.estimator.Update(int64(processed))
}

// Finish marks the pass as done, flagging an error when ok is false
func (pt *ProgressTracker) Finish(courseID uint, ok bool) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	cp, exists := pt.courses[courseID]
	if !exists {
		cp = &courseProgress{estimator: NewProgressEstimator(), startedAt: time.Now()}
		pt.courses[courseID] = cp
	}
	cp.state.CurrentFile = ""
	cp.state.Done = true
	cp.state.Error = !ok
	cp.finishedAt = time.Now()
}

// Read returns the course record. Unknown courses read as an empty,
// finished pass.
func (pt *ProgressTracker) Read(courseID uint) ScanState {
	pt.mu.RLock()
	defer pt.mu.RUnlock()

	cp, ok := pt.courses[courseID]
	if !ok {
		return ScanState{Done: true}
	}
	return cp.state
}

// Snapshot returns the record with percentage, rate and ETA
func (pt *ProgressTracker) Snapshot(courseID uint) ProgressSnapshot {
	pt.mu.RLock()
	cp, ok := pt.courses[courseID]
	if !ok {
		pt.mu.RUnlock()
		return ProgressSnapshot{ScanState: ScanState{Done: true}}
	}
	snap := ProgressSnapshot{ScanState: cp.state}
	started := cp.startedAt
	finished := cp.finishedAt
	estimator := cp.estimator
	pt.mu.RUnlock()

	snap.StartedAt = &started
	if !finished.IsZero() {
		snap.FinishedAt = &finished
	}

	progress, eta, rate := estimator.GetEstimate()
	if snap.Done {
		snap.Percentage = progress
		if !snap.Error {
			snap.Percentage = 100
		}
		return snap
	}

	snap.Percentage = progress
	snap.FilesPerSecond = rate
	if !eta.IsZero() {
		snap.ETA = &eta
	}
	return snap
}

// Running returns the ids of courses whose current pass has not finished
func (pt *ProgressTracker) Running() []uint {
	pt.mu.RLock()
	defer pt.mu.RUnlock()

	var ids []uint
	for id, cp := range pt.courses {
		if !cp.state.Done {
			ids = append(ids, id)
		}
	}
	return ids
}
