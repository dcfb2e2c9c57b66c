package scanner

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProgressTracker_UnknownCourse(t *testing.T) {
	pt := NewProgressTracker()
	assert.Equal(t, ScanState{Done: true}, pt.Read(42))

	snap := pt.Snapshot(42)
	assert.True(t, snap.Done)
	assert.Nil(t, snap.StartedAt)
}

func TestProgressTracker_Lifecycle(t *testing.T) {
	pt := NewProgressTracker()

	pt.Start(1, 3)
	assert.Equal(t, ScanState{Total: 3}, pt.Read(1))
	assert.Equal(t, []uint{1}, pt.Running())

	pt.Advance(1, "a.mp4")
	pt.Advance(1, "b.mp4")
	assert.Equal(t, ScanState{Total: 3, Processed: 2, CurrentFile: "b.mp4"}, pt.Read(1))

	snap := pt.Snapshot(1)
	assert.InDelta(t, 66.66, snap.Percentage, 0.1)
	assert.NotNil(t, snap.StartedAt)
	assert.Nil(t, snap.FinishedAt)

	pt.Finish(1, true)
	assert.Equal(t, ScanState{Total: 3, Processed: 2, Done: true}, pt.Read(1))
	assert.Empty(t, pt.Running())
	assert.Equal(t, 100.0, pt.Snapshot(1).Percentage)

	// Finished passes ignore late advances
	pt.Advance(1, "c.mp4")
	assert.Equal(t, 2, pt.Read(1).Processed)

	// A new pass overwrites the previous record
	pt.Start(1, 5)
	assert.Equal(t, ScanState{Total: 5}, pt.Read(1))
}

func TestProgressTracker_FinishWithError(t *testing.T) {
	pt := NewProgressTracker()
	pt.Start(3, 4)
	pt.Advance(3, "a.mp4")
	pt.Finish(3, false)

	state := pt.Read(3)
	assert.True(t, state.Done)
	assert.True(t, state.Error)
	assert.Equal(t, 1, state.Processed)

	snap := pt.Snapshot(3)
	assert.Equal(t, 25.0, snap.Percentage)
	assert.NotNil(t, snap.FinishedAt)
}

func TestProgressTracker_SetTotalAfterStart(t *testing.T) {
	pt := NewProgressTracker()
	pt.Start(4, 2)
	pt.Finish(4, true)

	// A new pass is visible as running before its files are counted
	pt.Start(4, 0)
	assert.Equal(t, ScanState{}, pt.Read(4))
	assert.Equal(t, []uint{4}, pt.Running())

	pt.SetTotal(4, 8)
	pt.Advance(4, "a.mp4")
	assert.Equal(t, ScanState{Total: 8, Processed: 1, CurrentFile: "a.mp4"}, pt.Read(4))
	assert.Equal(t, 12.5, pt.Snapshot(4).Percentage)

	// Finished or unknown passes ignore it
	pt.Finish(4, true)
	pt.SetTotal(4, 99)
	assert.Equal(t, 8, pt.Read(4).Total)
	pt.SetTotal(5, 3)
	assert.Equal(t, ScanState{Done: true}, pt.Read(5))
}

func TestProgressTracker_AdvanceUnknownCourse(t *testing.T) {
	pt := NewProgressTracker()
	pt.Advance(9, "x.mp4")
	assert.Equal(t, ScanState{Done: true}, pt.Read(9))
}

func TestProgressTracker_MonotonicUnderConcurrentReads(t *testing.T) {
	pt := NewProgressTracker()
	pt.Start(1, 500)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			pt.Advance(1, "f.mp4")
		}
		pt.Finish(1, true)
	}()

	last := 0
	for {
		state := pt.Read(1)
		assert.GreaterOrEqual(t, state.Processed, last)
		last = state.Processed
		if state.Done {
			break
		}
	}
	wg.Wait()
	assert.Equal(t, 500, last)
}

func TestProgressEstimator_GetEstimate(t *testing.T) {
	pe := NewProgressEstimator()
	pe.SetTotal(10)

	progress, eta, rate := pe.GetEstimate()
	assert.Equal(t, 0.0, progress)
	assert.True(t, eta.IsZero())
	assert.Equal(t, 0.0, rate)

	pe.Update(2)
	time.Sleep(20 * time.Millisecond)
	pe.Update(4)

	progress, eta, rate = pe.GetEstimate()
	assert.Equal(t, 40.0, progress)
	assert.Greater(t, rate, 0.0)
	assert.True(t, eta.After(time.Now()))

	pe.Update(12)
	progress, eta, _ = pe.GetEstimate()
	assert.Equal(t, 100.0, progress)
	assert.True(t, eta.IsZero())
}
