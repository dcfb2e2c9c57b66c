package utils

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/mantonx/coursevault/internal/logger"
)

// WorkerPool runs submitted tasks on a fixed set of goroutines. Scans are
// handed to it so HTTP handlers and the file monitor return immediately.
type WorkerPool struct {
	workers   int
	workQueue chan task
	stopCh    chan struct{}
	wg        sync.WaitGroup
	running   bool
	mu        sync.RWMutex

	active    atomic.Int64
	completed atomic.Int64
}

type task struct {
	name string
	run  func()
}

// PoolStats is a point-in-time view of the pool
type PoolStats struct {
	Workers   int   `json:"workers"`
	Queued    int   `json:"queued"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
}

// NewWorkerPool creates a pool with the given worker count and queue size.
// A non-positive queue size buffers 2x the worker count.
func NewWorkerPool(workers, queueSize int) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = workers * 2
	}
	return &WorkerPool{
		workers:   workers,
		workQueue: make(chan task, queueSize),
		stopCh:    make(chan struct{}),
	}
}

// Start begins processing work items. Calling it twice has no effect.
func (wp *WorkerPool) Start() {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	if wp.running {
		return
	}

	wp.running = true
	for i := 0; i < wp.workers; i++ {
		wp.wg.Add(1)
		go wp.worker()
	}
}

// Stop stops accepting work, lets workers finish their current task and
// waits for them to exit. Queued tasks that never started are dropped.
func (wp *WorkerPool) Stop() {
	wp.mu.Lock()
	if !wp.running {
		wp.mu.Unlock()
		return
	}
	wp.running = false
	close(wp.stopCh)
	wp.mu.Unlock()

	wp.wg.Wait()
}

// Submit queues a named task. Returns false when the queue is full or the
// pool is not running. Never blocks.
func (wp *WorkerPool) Submit(name string, work func()) bool {
	wp.mu.RLock()
	defer wp.mu.RUnlock()

	if !wp.running || work == nil {
		return false
	}

	select {
	case wp.workQueue <- task{name: name, run: work}:
		return true
	default:
		return false
	}
}

// SubmitWait queues a named task, waiting for room in the queue. Returns
// false when the pool is not running, is stopped while waiting or ctx is
// done first.
func (wp *WorkerPool) SubmitWait(ctx context.Context, name string, work func()) bool {
	wp.mu.RLock()
	running := wp.running
	wp.mu.RUnlock()
	if !running || work == nil {
		return false
	}

	select {
	case wp.workQueue <- task{name: name, run: work}:
		return true
	case <-wp.stopCh:
		return false
	case <-ctx.Done():
		return false
	}
}

// IsRunning reports whether the pool accepts work
func (wp *WorkerPool) IsRunning() bool {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	return wp.running
}

// Stats returns the current queue depth and counters
func (wp *WorkerPool) Stats() PoolStats {
	return PoolStats{
		Workers:   wp.workers,
		Queued:    len(wp.workQueue),
		Active:    wp.active.Load(),
		Completed: wp.completed.Load(),
	}
}

func (wp *WorkerPool) worker() {
	defer wp.wg.Done()

	for {
		select {
		case t := <-wp.workQueue:
			wp.execute(t)
		case <-wp.stopCh:
			return
		}
	}
}

func (wp *WorkerPool) execute(t task) {
	wp.active.Add(1)
	defer func() {
		wp.active.Add(-1)
		wp.completed.Add(1)
		if r := recover(); r != nil {
			logger.Error("Worker task panicked", "task", t.name, "panic", r)
		}
	}()
	t.run()
}
