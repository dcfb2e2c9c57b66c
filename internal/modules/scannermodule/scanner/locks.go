package scanner

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ErrScanInProgress is returned when a course already has a pass running
// or queued
var ErrScanInProgress = errors.New("scan already in progress")

// ScanLockRegistry guarantees at most one reconciliation pass per course.
// Locks are created lazily and live for the lifetime of the process; the
// registry mutex only guards creation.
type ScanLockRegistry struct {
	mu    sync.Mutex
	locks map[uint]*courseLock
}

type courseLock struct {
	mu   sync.Mutex
	held atomic.Bool
}

// NewScanLockRegistry creates an empty registry
func NewScanLockRegistry() *ScanLockRegistry {
	return &ScanLockRegistry{locks: make(map[uint]*courseLock)}
}

func (r *ScanLockRegistry) lockFor(courseID uint) *courseLock {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.locks[courseID]
	if !ok {
		l = &courseLock{}
		r.locks[courseID] = l
	}
	return l
}

// TryAcquire takes the course lock without blocking. False means a scan
// for the course is already running.
func (r *ScanLockRegistry) TryAcquire(courseID uint) bool {
	l := r.lockFor(courseID)
	if !l.mu.TryLock() {
		return false
	}
	l.held.Store(true)
	return true
}

// Release frees the course lock. Must only follow a successful TryAcquire.
func (r *ScanLockRegistry) Release(courseID uint) {
	l := r.lockFor(courseID)
	l.held.Store(false)
	l.mu.Unlock()
}

// Wait blocks until no pass holds the course lock. It does not take the
// lock, so a TryAcquire after Wait can still lose to another caller.
func (r *ScanLockRegistry) Wait(courseID uint) {
	l := r.lockFor(courseID)
	l.mu.Lock()
	l.mu.Unlock()
}

// IsHeld reports whether a scan currently holds the course lock
func (r *ScanLockRegistry) IsHeld(courseID uint) bool {
	r.mu.Lock()
	l, ok := r.locks[courseID]
	r.mu.Unlock()
	return ok && l.held.Load()
}
