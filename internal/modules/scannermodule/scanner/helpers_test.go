package scanner

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/mantonx/coursevault/internal/config"
	"github.com/mantonx/coursevault/internal/database"
	"github.com/mantonx/coursevault/internal/events"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(config.DatabaseFullConfig{
		Type:         "sqlite",
		DatabasePath: filepath.Join(t.TempDir(), "scanner.db"),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func createCourse(t *testing.T, db *gorm.DB, name, path string) *database.Course {
	t.Helper()
	course := &database.Course{Name: name, Path: path}
	require.NoError(t, db.Create(course).Error)
	return course
}

// writeFiles creates each relative path under root with placeholder content
func writeFiles(t *testing.T, root string, paths ...string) {
	t.Helper()
	for _, p := range paths {
		full := filepath.Join(root, filepath.FromSlash(p))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
		require.NoError(t, os.WriteFile(full, []byte("x"), 0644))
	}
}

// countingProbe returns a fixed duration and counts calls
type countingProbe struct {
	duration string
	calls    atomic.Int32
}

func (p *countingProbe) Probe(ctx context.Context, filePath string) string {
	p.calls.Add(1)
	return p.duration
}

// probeFunc adapts a function to DurationProbe
type probeFunc func(ctx context.Context, filePath string) string

func (f probeFunc) Probe(ctx context.Context, filePath string) string {
	return f(ctx, filePath)
}

// recordingBus is an EventBus that keeps every published event
type recordingBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *recordingBus) Publish(ctx context.Context, event events.Event) error {
	return b.PublishAsync(event)
}

func (b *recordingBus) PublishAsync(event events.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	return nil
}

func (b *recordingBus) Subscribe(ctx context.Context, filter events.EventFilter, handler events.EventHandler) (*events.Subscription, error) {
	return &events.Subscription{ID: "test", Filter: filter, Handler: handler}, nil
}

func (b *recordingBus) Unsubscribe(subscriptionID string) error { return nil }

func (b *recordingBus) GetEvents(filter events.EventFilter, limit, offset int) ([]events.Event, int64, error) {
	return nil, 0, nil
}

func (b *recordingBus) GetStats() events.EventStats { return events.EventStats{} }

func (b *recordingBus) Start(ctx context.Context) error { return nil }

func (b *recordingBus) Stop(ctx context.Context) error { return nil }

func (b *recordingBus) types() []events.EventType {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]events.EventType, len(b.events))
	for i, e := range b.events {
		out[i] = e.Type
	}
	return out
}

func (b *recordingBus) last(eventType events.EventType) (events.Event, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.events) - 1; i >= 0; i-- {
		if b.events[i].Type == eventType {
			return b.events[i], true
		}
	}
	return events.Event{}, false
}
