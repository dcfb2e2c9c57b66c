package scanner

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestScanLockRegistry_TryAcquire(t *testing.T) {
	r := NewScanLockRegistry()

	assert.False(t, r.IsHeld(1))
	assert.True(t, r.TryAcquire(1))
	assert.True(t, r.IsHeld(1))
	assert.False(t, r.TryAcquire(1), "second acquire must not block or succeed")

	// Other courses are independent
	assert.True(t, r.TryAcquire(2))
	r.Release(2)

	r.Release(1)
	assert.False(t, r.IsHeld(1))
	assert.True(t, r.TryAcquire(1), "lock is reusable after release")
	r.Release(1)
}

func TestScanLockRegistry_ConcurrentAcquire(t *testing.T) {
	r := NewScanLockRegistry()

	var (
		wg       sync.WaitGroup
		acquired atomic.Int32
		start    = make(chan struct{})
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if r.TryAcquire(7) {
				acquired.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), acquired.Load())
	r.Release(7)
}

func TestScanLockRegistry_Wait(t *testing.T) {
	r := NewScanLockRegistry()

	// Free locks do not block
	r.Wait(3)
	assert.False(t, r.IsHeld(3))

	assert.True(t, r.TryAcquire(3))
	waited := make(chan struct{})
	go func() {
		r.Wait(3)
		close(waited)
	}()

	select {
	case <-waited:
		t.Fatal("Wait returned while the lock was held")
	case <-time.After(50 * time.Millisecond):
	}

	r.Release(3)
	select {
	case <-waited:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after release")
	}
	assert.False(t, r.IsHeld(3), "Wait does not keep the lock")
	assert.True(t, r.TryAcquire(3))
	r.Release(3)
}
