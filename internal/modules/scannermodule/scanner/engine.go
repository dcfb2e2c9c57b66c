package scanner

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/mantonx/coursevault/internal/database"
	"github.com/mantonx/coursevault/internal/events"
	"github.com/mantonx/coursevault/internal/modules/databasemodule"
	"gorm.io/gorm"
)

// ScanResult summarizes one call to Engine.Scan
type ScanResult struct {
	CourseID uint `json:"course_id"`

	// Another scan held the course lock; nothing was touched
	Skipped bool `json:"skipped"`

	// The pass was rolled back; the catalog keeps its previous state
	Failed bool `json:"failed"`

	Total       int           `json:"total"`
	Created     int           `json:"created"`
	Updated     int           `json:"updated"`
	Unchanged   int           `json:"unchanged"`
	Reactivated int           `json:"reactivated"`
	Deactivated int           `json:"deactivated"`
	Donated     int           `json:"donated"`
	NotesCloned int           `json:"notes_cloned"`
	Duration    time.Duration `json:"duration"`
}

// Engine reconciles the lessons of a course with the files under its roots
type Engine struct {
	txm       *databasemodule.TransactionManager
	locks     *ScanLockRegistry
	progress  *ProgressTracker
	walker    *DirectoryWalker
	subtitles *SubtitleMatcher
	probe     DurationProbe
	eventBus  events.EventBus
	newRepo   RepositoryFactory
	logger    hclog.Logger
}

// EngineOption customizes an Engine
type EngineOption func(*Engine)

// WithLocks shares a lock registry with other components
func WithLocks(locks *ScanLockRegistry) EngineOption {
	return func(e *Engine) { e.locks = locks }
}

// WithProgress shares a progress tracker with pollers
func WithProgress(progress *ProgressTracker) EngineOption {
	return func(e *Engine) { e.progress = progress }
}

// WithProbe replaces the duration probe
func WithProbe(probe DurationProbe) EngineOption {
	return func(e *Engine) { e.probe = probe }
}

// WithEventBus publishes scan lifecycle events on bus
func WithEventBus(bus events.EventBus) EngineOption {
	return func(e *Engine) { e.eventBus = bus }
}

// WithRepositoryFactory replaces the gorm lesson repository
func WithRepositoryFactory(factory RepositoryFactory) EngineOption {
	return func(e *Engine) { e.newRepo = factory }
}

// WithLogger sets the engine logger
func WithLogger(logger hclog.Logger) EngineOption {
	return func(e *Engine) { e.logger = logger }
}

// NewEngine creates a reconciliation engine. Without WithProbe, durations
// come from ffprobe behind an LRU cache.
func NewEngine(txm *databasemodule.TransactionManager, cfg *ScanConfig, opts ...EngineOption) *Engine {
	if cfg == nil {
		cfg = DefaultScanConfig()
	}

	e := &Engine{
		txm:       txm,
		subtitles: NewSubtitleMatcher(cfg.SubtitleExtensions),
		newRepo:   NewLessonRepository,
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.logger == nil {
		e.logger = hclog.NewNullLogger()
	}
	if e.locks == nil {
		e.locks = NewScanLockRegistry()
	}
	if e.progress == nil {
		e.progress = NewProgressTracker()
	}
	if e.probe == nil {
		ffprobe := NewFFProbe(cfg.FFProbePath, cfg.ProbeTimeout, e.logger.Named("ffprobe"))
		if cached, err := NewCachedProbe(ffprobe, cfg.ProbeCacheSize); err == nil {
			e.probe = cached
		} else {
			e.probe = ffprobe
		}
	}
	e.walker = NewDirectoryWalker(cfg, e.logger.Named("walker"))

	return e
}

// Locks returns the registry guarding scans
func (e *Engine) Locks() *ScanLockRegistry {
	return e.locks
}

// Progress returns the tracker updated by scans
func (e *Engine) Progress() *ProgressTracker {
	return e.progress
}

// Walker returns the directory walker used for scans
func (e *Engine) Walker() *DirectoryWalker {
	return e.walker
}

// Scan runs one reconciliation pass for a course. It never returns an
// error: a pass that cannot be committed leaves the previous catalog in
// place and shows up as error=true in the progress tracker. When another
// pass already holds the course lock, Scan returns a skipped result
// without touching any state.
//
// The walk, subtitle matching, donor lookups and probing only read. Their
// writes are collected into a plan that is applied in one short
// transaction, so other courses and catalog edits never wait on a walk.
func (e *Engine) Scan(ctx context.Context, courseID uint, primaryRoot string, extraRoots []string) (result ScanResult) {
	result.CourseID = courseID

	if !e.locks.TryAcquire(courseID) {
		e.logger.Debug("Scan already in progress", "course_id", courseID)
		result.Skipped = true
		e.publish(events.EventScanSkipped, "Scan Skipped",
			fmt.Sprintf("Course #%d is already being scanned", courseID),
			map[string]interface{}{"course_id": courseID})
		return result
	}
	defer e.locks.Release(courseID)

	start := time.Now()
	roots := scanRoots(primaryRoot, extraRoots)

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Scan panicked", "course_id", courseID, "panic", r)
			result.Failed = true
			result.Duration = time.Since(start)
			e.progress.Finish(courseID, false)
			e.publish(events.EventScanFailed, "Scan Failed",
				fmt.Sprintf("Scan of course #%d failed", courseID),
				map[string]interface{}{"course_id": courseID, "error": fmt.Sprint(r)})
		}
	}()

	// Pollers see the pass as running before the count is known
	e.progress.Start(courseID, 0)
	total := e.walker.Count(roots)
	result.Total = total
	e.progress.SetTotal(courseID, total)

	e.logger.Info("Scan started", "course_id", courseID, "roots", len(roots), "files", total)
	e.publish(events.EventScanStarted, "Scan Started",
		fmt.Sprintf("Scanning %d files for course #%d", total, courseID),
		map[string]interface{}{"course_id": courseID, "roots": roots, "total": total})

	plan, err := e.plan(ctx, e.newRepo(e.txm.DB().WithContext(ctx)), courseID, roots)
	if err == nil {
		err = e.txm.WithTransaction(ctx, func(tx *gorm.DB) error {
			return e.apply(e.newRepo(tx), plan, &result)
		})
	}
	result.Duration = time.Since(start)

	if err != nil {
		result.Failed = true
		e.progress.Finish(courseID, false)
		e.logger.Error("Scan failed", "course_id", courseID, "error", err)
		e.publish(events.EventScanFailed, "Scan Failed",
			fmt.Sprintf("Scan of course #%d failed", courseID),
			map[string]interface{}{"course_id": courseID, "error": err.Error()})
		return result
	}

	e.progress.Finish(courseID, true)
	e.logger.Info("Scan completed",
		"course_id", courseID,
		"created", result.Created,
		"updated", result.Updated,
		"reactivated", result.Reactivated,
		"deactivated", result.Deactivated,
		"donated", result.Donated,
		"duration", result.Duration)
	e.publish(events.EventScanCompleted, "Scan Completed",
		fmt.Sprintf("Course #%d synchronized", courseID),
		map[string]interface{}{
			"course_id":   courseID,
			"roots":       roots,
			"total":       result.Total,
			"created":     result.Created,
			"updated":     result.Updated,
			"unchanged":   result.Unchanged,
			"reactivated": result.Reactivated,
			"deactivated": result.Deactivated,
			"donated":     result.Donated,
			"duration_ms": result.Duration.Milliseconds(),
		})
	return result
}

// scanPlan holds the writes of one pass, in the order they are applied
type scanPlan struct {
	refreshes  []plannedRefresh
	creates    []plannedLesson
	deactivate []uint
	unchanged  int
}

type plannedRefresh struct {
	lesson       *database.Lesson
	reactivating bool
}

type plannedLesson struct {
	lesson *database.Lesson
	donor  *database.Lesson
}

// plan walks the roots and decides every write of the pass. repo must not
// be bound to a write transaction.
func (e *Engine) plan(ctx context.Context, repo LessonRepository, courseID uint, roots []string) (*scanPlan, error) {
	existing, err := repo.FindByCourse(courseID)
	if err != nil {
		return nil, err
	}

	index := make(map[string]*database.Lesson, len(existing))
	for i := range existing {
		if path := existing[i].FilePath(); path != "" {
			index[path] = &existing[i]
		}
	}

	plan := &scanPlan{}
	donors := NewDonorResolver(repo)
	refreshed := make(map[uint]struct{})
	seen := make(map[string]struct{})

	err = e.walker.Walk(roots, func(entry WalkEntry) error {
		seen[entry.Path] = struct{}{}

		var subtitles database.StringList
		if !entry.IsDocument {
			subtitles = e.subtitles.FindSubtitles(entry.Path)
		}

		if lesson, ok := index[entry.Path]; ok {
			reactivating, changed := refresh(lesson, entry, subtitles)
			_, queued := refreshed[lesson.ID]
			switch {
			case !changed:
				plan.unchanged++
			case lesson.ID == 0, queued:
				// Seen earlier in this pass through an overlapping root; the
				// planned write already carries the change
			default:
				refreshed[lesson.ID] = struct{}{}
				plan.refreshes = append(plan.refreshes, plannedRefresh{lesson: lesson, reactivating: reactivating})
			}
		} else {
			created, err := e.register(ctx, donors, courseID, entry, subtitles)
			if err != nil {
				return err
			}
			plan.creates = append(plan.creates, created)
			index[entry.Path] = created.lesson
		}

		e.progress.Advance(courseID, entry.Name)
		return nil
	})
	if err != nil {
		return nil, err
	}

	for i := range existing {
		lesson := &existing[i]
		if _, ok := seen[lesson.FilePath()]; ok || !lesson.IsActive {
			continue
		}
		plan.deactivate = append(plan.deactivate, lesson.ID)
	}

	return plan, nil
}

// apply writes a plan through repo, which is bound to the pass transaction
func (e *Engine) apply(repo LessonRepository, plan *scanPlan, result *ScanResult) error {
	result.Unchanged = plan.unchanged

	for _, r := range plan.refreshes {
		if err := repo.Upsert(r.lesson); err != nil {
			return err
		}
		if r.reactivating {
			result.Reactivated++
		} else {
			result.Updated++
		}
	}

	donors := NewDonorResolver(repo)
	for _, c := range plan.creates {
		if err := repo.Upsert(c.lesson); err != nil {
			return err
		}
		result.Created++

		if c.donor == nil {
			continue
		}
		cloned, err := donors.CopyNotes(c.donor, c.lesson)
		if err != nil {
			return err
		}
		result.Donated++
		result.NotesCloned += cloned
		e.logger.Debug("Transplanted progress from donor",
			"path", c.lesson.FilePath(), "donor_lesson", c.donor.ID, "donor_course", c.donor.CourseID, "notes", cloned)
	}

	for _, id := range plan.deactivate {
		if err := repo.SetActive(id, false); err != nil {
			return err
		}
		result.Deactivated++
	}
	return nil
}

// refresh rewrites the filename-derived fields of an indexed lesson and
// reactivates it. Progress and notes are never touched.
func refresh(lesson *database.Lesson, entry WalkEntry, subtitles database.StringList) (reactivating, changed bool) {
	title := stem(entry.Name)
	reactivating = !lesson.IsActive
	changed = reactivating ||
		lesson.Title != title ||
		lesson.Module != entry.HierarchyLabel ||
		lesson.HierarchyPath != entry.HierarchyLabel ||
		!slices.Equal(lesson.SubtitlePaths, subtitles)
	if !changed {
		return false, false
	}

	lesson.Title = title
	lesson.Module = entry.HierarchyLabel
	lesson.HierarchyPath = entry.HierarchyLabel
	lesson.SubtitlePaths = subtitles
	lesson.IsActive = true
	return reactivating, true
}

// register builds the lesson for a file not yet in the course, seeding it
// from a donor in another course when one exists.
func (e *Engine) register(ctx context.Context, donors *DonorResolver, courseID uint, entry WalkEntry, subtitles database.StringList) (plannedLesson, error) {
	lesson := &database.Lesson{
		CourseID:       courseID,
		Title:          stem(entry.Name),
		Module:         entry.HierarchyLabel,
		HierarchyPath:  entry.HierarchyLabel,
		ProgressStatus: database.ProgressNotStarted,
		TimeElapsed:    "0",
		SubtitlePaths:  subtitles,
		IsActive:       true,
	}
	if entry.IsDocument {
		lesson.DocumentPath = entry.Path
	} else {
		lesson.VideoPath = entry.Path
	}

	donor, err := donors.FindDonor(entry.Path, courseID)
	if err != nil {
		return plannedLesson{}, err
	}

	needsProbe := true
	if donor != nil {
		needsProbe = donors.Transplant(donor, lesson)
	}
	if needsProbe {
		lesson.Duration = e.probe.Probe(ctx, entry.Path)
	}
	return plannedLesson{lesson: lesson, donor: donor}, nil
}

func (e *Engine) publish(eventType events.EventType, title, message string, data map[string]interface{}) {
	event := events.NewSystemEvent(eventType, title, message)
	event.Source = "scanner"
	event.Data = data
	if err := events.PublishAsync(e.eventBus, event); err != nil {
		e.logger.Debug("Failed to publish scan event", "type", eventType, "error", err)
	}
}

func scanRoots(primaryRoot string, extraRoots []string) []string {
	roots := make([]string, 0, 1+len(extraRoots))
	if primaryRoot != "" {
		roots = append(roots, primaryRoot)
	}
	for _, root := range extraRoots {
		if root != "" {
			roots = append(roots, root)
		}
	}
	return roots
}
