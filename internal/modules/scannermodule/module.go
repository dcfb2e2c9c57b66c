package scannermodule

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/mantonx/coursevault/internal/config"
	"github.com/mantonx/coursevault/internal/database"
	"github.com/mantonx/coursevault/internal/events"
	"github.com/mantonx/coursevault/internal/logger"
	"github.com/mantonx/coursevault/internal/modules/databasemodule"
	"github.com/mantonx/coursevault/internal/modules/modulemanager"
	"github.com/mantonx/coursevault/internal/modules/scannermodule/scanner"
	"github.com/mantonx/coursevault/internal/utils"
	"gorm.io/gorm"
)

const (
	// ModuleID is the unique identifier for the scanner module
	ModuleID = "system.scanner"

	// ModuleName is the display name for the scanner module
	ModuleName = "Course Scanner"
)

var (
	// ErrScanInProgress means a pass for the course is running or queued
	ErrScanInProgress = scanner.ErrScanInProgress

	// ErrScannerStopped means the worker pool no longer accepts scans
	ErrScannerStopped = errors.New("scanner is not accepting scans")
)

// Module schedules reconciliation passes off the request path and exposes
// their progress.
type Module struct {
	db       *gorm.DB
	eventBus events.EventBus
	cfg      config.ScannerConfig
	logger   hclog.Logger

	engine  *scanner.Engine
	pool    *utils.WorkerPool
	monitor *scanner.FileMonitor

	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	pending       map[uint]struct{}
	backlog       []uint
	draining      bool
	subscriptions []string
}

// NewModule creates the scanner module
func NewModule(db *gorm.DB, eventBus events.EventBus, cfg config.ScannerConfig) *Module {
	return &Module{
		db:       db,
		eventBus: eventBus,
		cfg:      cfg,
		logger:   logger.Named("scanner"),
		pending:  make(map[uint]struct{}),
	}
}

func (m *Module) ID() string   { return ModuleID }
func (m *Module) Name() string { return ModuleName }
func (m *Module) Core() bool   { return true }

// Dependencies makes sure the schema exists before scans can run
func (m *Module) Dependencies() []string {
	return []string{databasemodule.ModuleID}
}

// Migrate is a no-op; the database module owns the schema
func (m *Module) Migrate(db *gorm.DB) error {
	return nil
}

// Init builds the engine, starts the worker pool and, when enabled, the
// file monitor.
func (m *Module) Init() error {
	if m.db == nil {
		m.db = database.GetDB()
	}
	if m.db == nil {
		return fmt.Errorf("scanner module requires a database connection")
	}
	if m.eventBus == nil {
		m.eventBus = events.GetGlobalEventBus()
	}

	scanCfg := scanner.FromConfig(m.cfg)
	m.engine = scanner.NewEngine(
		databasemodule.NewTransactionManager(m.db),
		scanCfg,
		scanner.WithEventBus(m.eventBus),
		scanner.WithLogger(m.logger),
	)

	workers := m.cfg.WorkerCount
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.pool = utils.NewWorkerPool(workers, m.cfg.QueueSize)
	m.pool.Start()

	if m.cfg.WatchEnabled {
		monitor, err := scanner.NewFileMonitor(scanCfg, m.eventBus, m.onFilesChanged, m.logger.Named("monitor"))
		if err != nil {
			m.logger.Warn("File monitoring disabled", "error", err)
		} else {
			m.monitor = monitor
			if err := m.monitor.Start(); err != nil {
				return fmt.Errorf("failed to start file monitor: %w", err)
			}
		}
	}

	if err := m.subscribe(); err != nil {
		return err
	}

	m.logger.Info("Scanner module initialized",
		"workers", m.pool.Stats().Workers,
		"watch", m.monitor != nil)
	return nil
}

func (m *Module) subscribe() error {
	if m.eventBus == nil || m.monitor == nil {
		return nil
	}

	sub, err := m.eventBus.Subscribe(context.Background(),
		events.EventFilter{Types: []events.EventType{events.EventScanCompleted}},
		m.onScanCompleted)
	if err != nil {
		return fmt.Errorf("failed to subscribe to scan events: %w", err)
	}
	m.subscriptions = append(m.subscriptions, sub.ID)

	sub, err = m.eventBus.Subscribe(context.Background(),
		events.EventFilter{Types: []events.EventType{events.EventCourseDeleted}},
		m.onCourseDeleted)
	if err != nil {
		return fmt.Errorf("failed to subscribe to course events: %w", err)
	}
	m.subscriptions = append(m.subscriptions, sub.ID)
	return nil
}

// Shutdown stops watching and waits for running scans to finish
func (m *Module) Shutdown(ctx context.Context) error {
	for _, id := range m.subscriptions {
		_ = m.eventBus.Unsubscribe(id)
	}
	m.subscriptions = nil
	if m.cancel != nil {
		m.cancel()
	}

	var err error
	if m.monitor != nil {
		err = m.monitor.Stop()
	}

	done := make(chan struct{})
	go func() {
		if m.pool != nil {
			m.pool.Stop()
		}
		close(done)
	}()

	select {
	case <-done:
		return err
	case <-ctx.Done():
		return errors.Join(err, fmt.Errorf("scans still running at shutdown: %w", ctx.Err()))
	}
}

// RequestScan queues a pass for courseID and returns immediately. A
// request made while a pass runs queues one follow-up pass, so changes the
// running walk may have missed are picked up. Requests made while a pass
// is already queued are merged into it. When the worker queue is full the
// pass waits in a backlog instead of being dropped.
func (m *Module) RequestScan(courseID uint) error {
	if !m.pool.IsRunning() {
		return ErrScannerStopped
	}

	m.mu.Lock()
	if _, queued := m.pending[courseID]; queued {
		m.mu.Unlock()
		return nil
	}
	m.pending[courseID] = struct{}{}
	m.mu.Unlock()

	if m.pool.Submit(scanTaskName(courseID), m.scanTask(courseID)) {
		m.logger.Debug("Scan queued", "course_id", courseID)
		return nil
	}

	m.mu.Lock()
	m.backlog = append(m.backlog, courseID)
	startDrain := !m.draining
	m.draining = true
	m.mu.Unlock()

	if startDrain {
		go m.drainBacklog()
	}
	m.logger.Debug("Scan queue full, pass deferred", "course_id", courseID)
	return nil
}

// Rescan is an explicit user request. Unlike RequestScan it is rejected
// with ErrScanInProgress while a pass is running or queued.
func (m *Module) Rescan(courseID uint) error {
	if m.IsScanning(courseID) {
		return ErrScanInProgress
	}
	return m.RequestScan(courseID)
}

// scanTask waits for a running pass of the course before clearing the
// pending mark, so the walk it starts sees every change requested so far.
func (m *Module) scanTask(courseID uint) func() {
	return func() {
		m.engine.Locks().Wait(courseID)
		m.clearPending(courseID)
		if _, err := m.ScanNow(context.Background(), courseID); err != nil {
			m.logger.Error("Scheduled scan could not start", "course_id", courseID, "error", err)
		}
	}
}

// drainBacklog feeds deferred passes to the pool as room frees up
func (m *Module) drainBacklog() {
	for {
		m.mu.Lock()
		if len(m.backlog) == 0 {
			m.draining = false
			m.mu.Unlock()
			return
		}
		courseID := m.backlog[0]
		m.backlog = m.backlog[1:]
		m.mu.Unlock()

		if !m.pool.SubmitWait(m.ctx, scanTaskName(courseID), m.scanTask(courseID)) {
			m.mu.Lock()
			for _, id := range m.backlog {
				delete(m.pending, id)
			}
			delete(m.pending, courseID)
			m.backlog = nil
			m.draining = false
			m.mu.Unlock()
			m.logger.Warn("Scanner stopped with deferred passes", "course_id", courseID)
			return
		}
	}
}

// Backlog returns how many passes wait for room in the worker queue
func (m *Module) Backlog() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.backlog)
}

func scanTaskName(courseID uint) string {
	return fmt.Sprintf("scan-course-%d", courseID)
}

// ScanNow runs a pass synchronously on the calling goroutine. The only
// error is a missing course; scan failures are reported in the result and
// the progress tracker.
func (m *Module) ScanNow(ctx context.Context, courseID uint) (scanner.ScanResult, error) {
	var course database.Course
	if err := m.db.WithContext(ctx).First(&course, courseID).Error; err != nil {
		return scanner.ScanResult{CourseID: courseID}, fmt.Errorf("failed to load course %d: %w", courseID, err)
	}
	return m.engine.Scan(ctx, course.ID, course.Path, course.ExtraPaths), nil
}

func (m *Module) clearPending(courseID uint) {
	m.mu.Lock()
	delete(m.pending, courseID)
	m.mu.Unlock()
}

// IsScanning reports whether a pass is running or queued for courseID
func (m *Module) IsScanning(courseID uint) bool {
	if m.engine.Locks().IsHeld(courseID) {
		return true
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, queued := m.pending[courseID]
	return queued
}

// ReadProgress returns the latest progress record for courseID
func (m *Module) ReadProgress(courseID uint) scanner.ScanState {
	return m.engine.Progress().Read(courseID)
}

// Progress returns the progress record with rate and ETA
func (m *Module) Progress(courseID uint) scanner.ProgressSnapshot {
	return m.engine.Progress().Snapshot(courseID)
}

// Status summarizes the scanner for the status endpoint
func (m *Module) Status() map[string]interface{} {
	status := map[string]interface{}{
		"running": m.engine.Progress().Running(),
		"pool":    m.pool.Stats(),
		"backlog": m.Backlog(),
	}
	if m.monitor != nil {
		status["monitoring"] = m.monitor.GetMonitoringStatus()
	}
	return status
}

// HealthCheck reports degraded when the scan queue is saturated
func (m *Module) HealthCheck(ctx context.Context) modulemanager.HealthStatus {
	stats := m.pool.Stats()
	status := modulemanager.HealthStatus{
		Status:      modulemanager.HealthStateHealthy,
		LastChecked: time.Now(),
		Details: map[string]interface{}{
			"workers":   stats.Workers,
			"queued":    stats.Queued,
			"active":    stats.Active,
			"completed": stats.Completed,
			"backlog":   m.Backlog(),
			"watching":  m.monitor != nil,
		},
	}
	if m.cfg.QueueSize > 0 && stats.Queued >= m.cfg.QueueSize {
		status.Status = modulemanager.HealthStateDegraded
		status.Message = "scan queue is full"
	}
	if !m.pool.IsRunning() {
		status.Status = modulemanager.HealthStateUnhealthy
		status.Message = "scan workers stopped"
	}
	return status
}

func (m *Module) onFilesChanged(courseID uint) {
	if err := m.RequestScan(courseID); err != nil {
		m.logger.Warn("Could not queue rescan after file changes", "course_id", courseID, "error", err)
	}
}

func (m *Module) onScanCompleted(event events.Event) error {
	courseID, ok := courseIDFromEvent(event)
	if !ok {
		return nil
	}

	var course database.Course
	if err := m.db.First(&course, courseID).Error; err != nil {
		return nil
	}
	return m.monitor.StartMonitoring(course.ID, course.Roots())
}

func (m *Module) onCourseDeleted(event events.Event) error {
	courseID, ok := courseIDFromEvent(event)
	if !ok || !m.monitor.IsMonitoring(courseID) {
		return nil
	}
	return m.monitor.StopMonitoring(courseID)
}

func courseIDFromEvent(event events.Event) (uint, bool) {
	switch v := event.Data["course_id"].(type) {
	case uint:
		return v, true
	case int:
		return uint(v), v > 0
	case float64:
		return uint(v), v > 0
	default:
		return 0, false
	}
}
