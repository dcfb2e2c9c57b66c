package scanner

import (
	"sync"
	"time"
)

// ProgressEstimator derives percentage, rate and ETA from the file counters
// of one scan pass.
type ProgressEstimator struct {
	mu        sync.RWMutex
	startTime time.Time

	totalFiles     int64
	processedFiles int64

	recentSamples []rateSample
	maxSamples    int
}

type rateSample struct {
	timestamp time.Time
	files     int64
}

// NewProgressEstimator creates a new progress estimator
func NewProgressEstimator() *ProgressEstimator {
	return &ProgressEstimator{
		startTime:     time.Now(),
		maxSamples:    5,
		recentSamples: make([]rateSample, 0, 5),
	}
}

// SetTotal sets the total expected files
func (pe *ProgressEstimator) SetTotal(files int64) {
	pe.mu.Lock()
	defer pe.mu.Unlock()
	pe.totalFiles = files
}

// Update records the current processed count
func (pe *ProgressEstimator) Update(processedFiles int64) {
	pe.mu.Lock()
	defer pe.mu.Unlock()

	pe.recentSamples = append(pe.recentSamples, rateSample{
		timestamp: time.Now(),
		files:     processedFiles,
	})
	if len(pe.recentSamples) > pe.maxSamples {
		pe.recentSamples = pe.recentSamples[1:]
	}
	pe.processedFiles = processedFiles
}

// GetEstimate returns the current progress percentage, ETA and processing rate
func (pe *ProgressEstimator) GetEstimate() (progress float64, eta time.Time, filesPerSecond float64) {
	pe.mu.RLock()
	defer pe.mu.RUnlock()

	if pe.totalFiles > 0 {
		progress = float64(pe.processedFiles) / float64(pe.totalFiles) * 100
		if progress > 100 {
			progress = 100
		}
	}

	filesPerSecond = pe.calculateSimpleRate()

	remainingFiles := pe.totalFiles - pe.processedFiles
	if remainingFiles <= 0 || pe.totalFiles <= 0 {
		return progress, time.Time{}, filesPerSecond
	}

	now := time.Now()

	// Recent rate first, overall average as fallback
	if filesPerSecond > 0.01 {
		remainingSeconds := float64(remainingFiles) / filesPerSecond
		if remainingSeconds < 24*3600 {
			return progress, now.Add(time.Duration(remainingSeconds * float64(time.Second))), filesPerSecond
		}
	}

	elapsed := now.Sub(pe.startTime).Seconds()
	if elapsed > 0 && pe.processedFiles > 0 {
		avgRate := float64(pe.processedFiles) / elapsed
		remainingSeconds := float64(remainingFiles) / avgRate
		if remainingSeconds < 48*3600 {
			return progress, now.Add(time.Duration(remainingSeconds * float64(time.Second))), avgRate
		}
	}

	return progress, time.Time{}, filesPerSecond
}

// calculateSimpleRate uses the first and last of the recent samples
func (pe *ProgressEstimator) calculateSimpleRate() float64 {
	if len(pe.recentSamples) < 2 {
		return 0
	}

	oldest := pe.recentSamples[0]
	newest := pe.recentSamples[len(pe.recentSamples)-1]

	duration := newest.timestamp.Sub(oldest.timestamp).Seconds()
	if duration <= 0 {
		return 0
	}

	filesProcessed := newest.files - oldest.files
	if filesProcessed <= 0 {
		return 0
	}

	return float64(filesProcessed) / duration
}

// Elapsed returns the time since the estimator was created
func (pe *ProgressEstimator) Elapsed() time.Duration {
	return time.Since(pe.startTime)
}
