package scanner

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mantonx/coursevault/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMonitor(t *testing.T, bus events.EventBus) (*FileMonitor, chan uint) {
	t.Helper()
	cfg := DefaultScanConfig()
	cfg.DebounceInterval = 100 * time.Millisecond

	triggered := make(chan uint, 16)
	fm, err := NewFileMonitor(cfg, bus, func(courseID uint) { triggered <- courseID }, nil)
	require.NoError(t, err)
	require.NoError(t, fm.Start())
	t.Cleanup(func() { fm.Stop() })
	return fm, triggered
}

func TestFileMonitor_TriggersAfterChanges(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "Week1/a.mp4")

	bus := &recordingBus{}
	fm, triggered := newTestMonitor(t, bus)
	require.NoError(t, fm.StartMonitoring(3, []string{root}))
	assert.True(t, fm.IsMonitoring(3))
	assert.Equal(t, 2, fm.GetMonitoringStatus()[3].Directories)

	// A burst of writes collapses into one rescan
	writeFiles(t, root, "Week1/b.mp4", "Week1/b.srt", "Week1/c.pdf")

	select {
	case id := <-triggered:
		assert.Equal(t, uint(3), id)
	case <-time.After(5 * time.Second):
		t.Fatal("expected a rescan trigger")
	}

	select {
	case <-triggered:
		t.Fatal("burst should trigger a single rescan")
	case <-time.After(400 * time.Millisecond):
	}

	status := fm.GetMonitoringStatus()[3]
	assert.Equal(t, int64(1), status.Rescans)
	assert.GreaterOrEqual(t, status.Changes, int64(3))

	_, ok := bus.last(events.EventCourseChanged)
	assert.True(t, ok)
}

func TestFileMonitor_IgnoresUnrelatedFiles(t *testing.T) {
	root := t.TempDir()
	fm, triggered := newTestMonitor(t, nil)
	require.NoError(t, fm.StartMonitoring(1, []string{root}))

	writeFiles(t, root, "archive.zip", ".hidden.mp4")

	select {
	case <-triggered:
		t.Fatal("unrelated files must not trigger a rescan")
	case <-time.After(500 * time.Millisecond):
	}
}

func TestFileMonitor_WatchesNewDirectories(t *testing.T) {
	root := t.TempDir()
	fm, triggered := newTestMonitor(t, nil)
	require.NoError(t, fm.StartMonitoring(1, []string{root}))

	require.NoError(t, os.Mkdir(filepath.Join(root, "Week2"), 0755))
	select {
	case <-triggered:
	case <-time.After(5 * time.Second):
		t.Fatal("new directory should trigger a rescan")
	}

	assert.Eventually(t, func() bool {
		return fm.GetMonitoringStatus()[1].Directories == 2
	}, 2*time.Second, 20*time.Millisecond)

	writeFiles(t, root, "Week2/lesson.mkv")
	select {
	case <-triggered:
	case <-time.After(5 * time.Second):
		t.Fatal("file in new directory should trigger a rescan")
	}
}

func TestFileMonitor_StopMonitoring(t *testing.T) {
	root := t.TempDir()
	fm, _ := newTestMonitor(t, nil)

	assert.Error(t, fm.StopMonitoring(1))
	assert.Error(t, fm.StartMonitoring(1, []string{filepath.Join(root, "missing")}))

	require.NoError(t, fm.StartMonitoring(1, []string{root}))
	require.NoError(t, fm.StartMonitoring(2, []string{root}))
	require.NoError(t, fm.StopMonitoring(1))
	assert.False(t, fm.IsMonitoring(1))

	// The shared directory stays watched for the other course
	assert.Equal(t, 1, fm.watchRefs[root])
	assert.True(t, fm.IsMonitoring(2))
}
