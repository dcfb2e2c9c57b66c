package catalogmodule

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mantonx/coursevault/internal/config"
	"github.com/mantonx/coursevault/internal/database"
	"github.com/mantonx/coursevault/internal/events"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(config.DatabaseFullConfig{
		Type:         "sqlite",
		DatabasePath: filepath.Join(t.TempDir(), "catalog.db"),
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

func testStorage(t *testing.T) config.StorageConfig {
	t.Helper()
	uploads := t.TempDir()
	return config.StorageConfig{
		UploadDir:    uploads,
		ExportDir:    filepath.Join(uploads, "notas-exportadas"),
		CoverFormat:  "webp",
		CoverQuality: 80,
		MaxCoverSize: 1 << 20,
	}
}

// MockScanRequester records scheduled scans
type MockScanRequester struct {
	mock.Mock
}

func (m *MockScanRequester) RequestScan(courseID uint) error {
	args := m.Called(courseID)
	return args.Error(0)
}

// MockEventBus implements events.EventBus and records published events
type MockEventBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *MockEventBus) Publish(ctx context.Context, event events.Event) error {
	return b.PublishAsync(event)
}

func (b *MockEventBus) PublishAsync(event events.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	return nil
}

func (b *MockEventBus) Subscribe(ctx context.Context, filter events.EventFilter, handler events.EventHandler) (*events.Subscription, error) {
	return &events.Subscription{ID: "mock", Filter: filter, Handler: handler}, nil
}

func (b *MockEventBus) Unsubscribe(subscriptionID string) error { return nil }

func (b *MockEventBus) GetEvents(filter events.EventFilter, limit, offset int) ([]events.Event, int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]events.Event(nil), b.events...), int64(len(b.events)), nil
}

func (b *MockEventBus) GetStats() events.EventStats { return events.EventStats{} }

func (b *MockEventBus) Start(ctx context.Context) error { return nil }

func (b *MockEventBus) Stop(ctx context.Context) error { return nil }

func (b *MockEventBus) types() []events.EventType {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]events.EventType, len(b.events))
	for i, e := range b.events {
		out[i] = e.Type
	}
	return out
}

type fixture struct {
	db      *gorm.DB
	service *Service
	scans   *MockScanRequester
	bus     *MockEventBus
	storage config.StorageConfig
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		db:      setupTestDB(t),
		scans:   &MockScanRequester{},
		bus:     &MockEventBus{},
		storage: testStorage(t),
	}
	f.scans.On("RequestScan", mock.Anything).Return(nil)
	f.service = NewService(f.db, f.storage, WithScanRequester(f.scans), WithEventBus(f.bus))
	return f
}

func (f *fixture) course(t *testing.T, name string) *database.Course {
	t.Helper()
	course := &database.Course{Name: name, Path: t.TempDir()}
	require.NoError(t, f.db.Create(course).Error)
	return course
}

func (f *fixture) lesson(t *testing.T, courseID uint, title string, active, completed bool) *database.Lesson {
	t.Helper()
	lesson := &database.Lesson{
		CourseID:    courseID,
		Title:       title,
		Module:      "Module 1",
		VideoPath:   filepath.Join("/videos", title+".mp4"),
		IsActive:    active,
		IsCompleted: completed,
	}
	require.NoError(t, f.db.Create(lesson).Error)
	return lesson
}

func mkdirs(t *testing.T, root string, names ...string) {
	t.Helper()
	for _, n := range names {
		require.NoError(t, os.MkdirAll(filepath.Join(root, n), 0755))
	}
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		for y := 0; y < 8; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 30), G: uint8(y * 30), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}
