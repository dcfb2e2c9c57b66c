package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hashicorp/go-hclog"
	"github.com/mantonx/coursevault/internal/events"
)

// TriggerFunc asks for a rescan of a course
type TriggerFunc func(courseID uint)

// FileMonitor watches course roots and requests a rescan once a burst of
// relevant filesystem changes has settled.
type FileMonitor struct {
	watcher  *fsnotify.Watcher
	eventBus events.EventBus
	walker   *DirectoryWalker
	subs     map[string]struct{}
	trigger  TriggerFunc
	logger   hclog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.RWMutex

	monitored map[uint]*MonitoredCourse
	watchRefs map[string]int
	courseDir map[uint][]string

	eventQueue       chan FileEvent
	debounceInterval time.Duration
}

// MonitoredCourse describes one watched course
type MonitoredCourse struct {
	ID          uint      `json:"id"`
	Roots       []string  `json:"roots"`
	StartTime   time.Time `json:"start_time"`
	Directories int       `json:"directories"`
	Changes     int64     `json:"changes"`
	Rescans     int64     `json:"rescans"`
	LastChange  time.Time `json:"last_change,omitempty"`
	Status      string    `json:"status"` // "monitoring", "pending"
}

// FileEvent is a relevant filesystem change under a watched course
type FileEvent struct {
	Type      fsnotify.Op
	Path      string
	CourseID  uint
	Timestamp time.Time
}

// NewFileMonitor creates a monitor calling trigger for changed courses
func NewFileMonitor(cfg *ScanConfig, eventBus events.EventBus, trigger TriggerFunc, logger hclog.Logger) (*FileMonitor, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	debounce := cfg.DebounceInterval
	if debounce <= 0 {
		debounce = 2 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &FileMonitor{
		watcher:          watcher,
		eventBus:         eventBus,
		walker:           NewDirectoryWalker(cfg, logger),
		subs:             extensionSet(cfg.SubtitleExtensions),
		trigger:          trigger,
		logger:           logger,
		ctx:              ctx,
		cancel:           cancel,
		monitored:        make(map[uint]*MonitoredCourse),
		watchRefs:        make(map[string]int),
		courseDir:        make(map[uint][]string),
		eventQueue:       make(chan FileEvent, 1000),
		debounceInterval: debounce,
	}, nil
}

// Start begins processing filesystem events
func (fm *FileMonitor) Start() error {
	fm.wg.Add(2)
	go fm.watchEvents()
	go fm.processFileEvents()

	fm.logger.Info("File monitor started", "debounce", fm.debounceInterval)
	return nil
}

// Stop closes the watcher and waits for the event loops to exit
func (fm *FileMonitor) Stop() error {
	fm.cancel()
	err := fm.watcher.Close()
	fm.wg.Wait()

	fm.logger.Info("File monitor stopped")
	return err
}

// StartMonitoring watches every directory under roots for the course.
// Calling it again with different roots replaces the watched set.
func (fm *FileMonitor) StartMonitoring(courseID uint, roots []string) error {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	if current, ok := fm.monitored[courseID]; ok {
		if slices.Equal(current.Roots, roots) {
			return nil
		}
		fm.unwatchCourse(courseID)
	}

	var dirs []string
	for _, root := range roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			continue
		}
		dirs = append(dirs, fm.addRecursiveWatch(abs)...)
	}
	if len(dirs) == 0 {
		return fmt.Errorf("no watchable directories for course %d", courseID)
	}

	fm.courseDir[courseID] = dirs
	fm.monitored[courseID] = &MonitoredCourse{
		ID:          courseID,
		Roots:       append([]string(nil), roots...),
		StartTime:   time.Now(),
		Directories: len(dirs),
		Status:      "monitoring",
	}

	fm.logger.Info("Started monitoring course", "course_id", courseID, "directories", len(dirs))
	return nil
}

// StopMonitoring removes the watches of a course
func (fm *FileMonitor) StopMonitoring(courseID uint) error {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	if _, ok := fm.monitored[courseID]; !ok {
		return fmt.Errorf("course %d is not being monitored", courseID)
	}
	fm.unwatchCourse(courseID)

	fm.logger.Info("Stopped monitoring course", "course_id", courseID)
	return nil
}

// IsMonitoring reports whether a course is watched
func (fm *FileMonitor) IsMonitoring(courseID uint) bool {
	fm.mu.RLock()
	defer fm.mu.RUnlock()
	_, ok := fm.monitored[courseID]
	return ok
}

// GetMonitoringStatus returns a copy of the state of every watched course
func (fm *FileMonitor) GetMonitoringStatus() map[uint]*MonitoredCourse {
	fm.mu.RLock()
	defer fm.mu.RUnlock()

	status := make(map[uint]*MonitoredCourse, len(fm.monitored))
	for id, mc := range fm.monitored {
		copied := *mc
		copied.Roots = append([]string(nil), mc.Roots...)
		status[id] = &copied
	}
	return status
}

// unwatchCourse must be called with fm.mu held
func (fm *FileMonitor) unwatchCourse(courseID uint) {
	for _, dir := range fm.courseDir[courseID] {
		fm.unwatch(dir)
	}
	delete(fm.courseDir, courseID)
	delete(fm.monitored, courseID)
}

// addRecursiveWatch watches root and its subdirectories and returns the
// directories added. Must be called with fm.mu held.
func (fm *FileMonitor) addRecursiveWatch(root string) []string {
	var dirs []string
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if fm.watch(path) {
			dirs = append(dirs, path)
		}
		return nil
	})
	return dirs
}

func (fm *FileMonitor) watch(dir string) bool {
	if fm.watchRefs[dir] == 0 {
		if err := fm.watcher.Add(dir); err != nil {
			fm.logger.Debug("Failed to add watch", "path", dir, "error", err)
			return false
		}
	}
	fm.watchRefs[dir]++
	return true
}

func (fm *FileMonitor) unwatch(dir string) {
	fm.watchRefs[dir]--
	if fm.watchRefs[dir] > 0 {
		return
	}
	delete(fm.watchRefs, dir)
	// Removed directories drop their watch on their own
	_ = fm.watcher.Remove(dir)
}

func (fm *FileMonitor) watchEvents() {
	defer fm.wg.Done()

	for {
		select {
		case event, ok := <-fm.watcher.Events:
			if !ok {
				return
			}
			fm.handleFileSystemEvent(event)

		case err, ok := <-fm.watcher.Errors:
			if !ok {
				return
			}
			fm.logger.Error("File watcher error", "error", err)

		case <-fm.ctx.Done():
			return
		}
	}
}

func (fm *FileMonitor) handleFileSystemEvent(event fsnotify.Event) {
	if event.Op == fsnotify.Chmod || !fm.isRelevant(event.Name) {
		return
	}

	courses := fm.findCoursesForPath(event.Name)
	if len(courses) == 0 {
		return
	}

	// New directories need their own watch
	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			fm.mu.Lock()
			for _, courseID := range courses {
				if _, ok := fm.monitored[courseID]; !ok {
					continue
				}
				added := fm.addRecursiveWatch(event.Name)
				fm.courseDir[courseID] = append(fm.courseDir[courseID], added...)
				fm.monitored[courseID].Directories += len(added)
			}
			fm.mu.Unlock()
		}
	}

	for _, courseID := range courses {
		select {
		case fm.eventQueue <- FileEvent{Type: event.Op, Path: event.Name, CourseID: courseID, Timestamp: time.Now()}:
		case <-fm.ctx.Done():
			return
		default:
			fm.logger.Warn("File event queue full, dropping event", "path", event.Name)
		}
	}
}

// processFileEvents collects changes per course and triggers a rescan once
// a course has been quiet for the debounce interval.
func (fm *FileMonitor) processFileEvents() {
	defer fm.wg.Done()

	tick := fm.debounceInterval / 4
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	pending := make(map[uint]time.Time)

	for {
		select {
		case event := <-fm.eventQueue:
			pending[event.CourseID] = event.Timestamp
			fm.mu.Lock()
			if mc, ok := fm.monitored[event.CourseID]; ok {
				mc.Changes++
				mc.LastChange = event.Timestamp
				mc.Status = "pending"
			}
			fm.mu.Unlock()

		case now := <-ticker.C:
			for courseID, last := range pending {
				if now.Sub(last) < fm.debounceInterval {
					continue
				}
				delete(pending, courseID)
				fm.fire(courseID)
			}

		case <-fm.ctx.Done():
			return
		}
	}
}

func (fm *FileMonitor) fire(courseID uint) {
	fm.mu.Lock()
	mc, ok := fm.monitored[courseID]
	if ok {
		mc.Rescans++
		mc.Status = "monitoring"
	}
	fm.mu.Unlock()
	if !ok {
		return
	}

	fm.logger.Info("Course files changed, requesting rescan", "course_id", courseID)

	event := events.NewSystemEvent(events.EventCourseChanged, "Course Files Changed",
		fmt.Sprintf("Files changed under course #%d", courseID))
	event.Source = "scanner"
	event.Data = map[string]interface{}{"course_id": courseID}
	_ = events.PublishAsync(fm.eventBus, event)

	if fm.trigger != nil {
		fm.trigger(courseID)
	}
}

// isRelevant keeps lesson files, subtitles and directories. Names without
// an extension may be directories that were removed, so they count too.
func (fm *FileMonitor) isRelevant(path string) bool {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" || fm.walker.Supports(name) {
		return true
	}
	if _, ok := fm.subs[ext]; ok {
		return true
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func (fm *FileMonitor) findCoursesForPath(path string) []uint {
	fm.mu.RLock()
	defer fm.mu.RUnlock()

	var ids []uint
	for id, mc := range fm.monitored {
		for _, root := range mc.Roots {
			abs, err := filepath.Abs(root)
			if err != nil {
				continue
			}
			if path == abs || strings.HasPrefix(path, abs+string(filepath.Separator)) {
				ids = append(ids, id)
				break
			}
		}
	}
	return ids
}
