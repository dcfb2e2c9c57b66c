package catalogmodule

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/mantonx/coursevault/internal/config"
	"github.com/mantonx/coursevault/internal/database"
	"github.com/mantonx/coursevault/internal/events"
	"github.com/mantonx/coursevault/internal/modules/databasemodule"
	"gorm.io/gorm"
)

// CoverUpload is an image file sent with a course form
type CoverUpload struct {
	Reader io.Reader
	Name   string
}

// Service implements course, lesson and note operations
type Service struct {
	db        *gorm.DB
	txm       *databasemodule.TransactionManager
	scans     ScanRequester
	covers    *CoverStore
	exportDir string
	eventBus  events.EventBus
	logger    hclog.Logger
	now       func() time.Time
}

// ServiceOption customizes a Service
type ServiceOption func(*Service)

// WithScanRequester schedules a scan after courses are created or moved
func WithScanRequester(scans ScanRequester) ServiceOption {
	return func(s *Service) { s.scans = scans }
}

// WithEventBus publishes course lifecycle events on bus
func WithEventBus(bus events.EventBus) ServiceOption {
	return func(s *Service) { s.eventBus = bus }
}

// WithLogger sets the service logger
func WithLogger(logger hclog.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

// NewService creates a catalog service
func NewService(db *gorm.DB, storage config.StorageConfig, opts ...ServiceOption) *Service {
	s := &Service{
		db:        db,
		txm:       databasemodule.NewTransactionManager(db),
		covers:    NewCoverStore(storage),
		exportDir: storage.ExportDir,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = hclog.NewNullLogger()
	}
	if s.exportDir == "" {
		s.exportDir = filepath.Join(storage.UploadDir, "notas-exportadas")
	}
	return s
}

// Covers returns the store holding uploaded covers
func (s *Service) Covers() *CoverStore {
	return s.covers
}

// ListCourses returns courses ordered by id. A page below 1 returns every
// course.
func (s *Service) ListCourses(ctx context.Context, page, perPage int) ([]CourseView, int64, error) {
	db := s.db.WithContext(ctx)

	var total int64
	if err := db.Model(&database.Course{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count courses: %w", err)
	}

	q := db.Order("id ASC")
	if page > 0 {
		q = q.Offset((page - 1) * perPage).Limit(perPage)
	}

	var courses []database.Course
	if err := q.Find(&courses).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list courses: %w", err)
	}

	ids := make([]uint, len(courses))
	for i, c := range courses {
		ids[i] = c.ID
	}
	completion, err := s.completion(ctx, ids)
	if err != nil {
		return nil, 0, err
	}

	views := make([]CourseView, len(courses))
	for i, c := range courses {
		views[i] = CourseView{Course: c, CompletionPercentage: completion[c.ID]}
	}
	return views, total, nil
}

// GetCourse returns one course with its completion percentage
func (s *Service) GetCourse(ctx context.Context, id uint) (*CourseView, error) {
	course, err := s.loadCourse(ctx, id)
	if err != nil {
		return nil, err
	}
	completion, err := s.completion(ctx, []uint{id})
	if err != nil {
		return nil, err
	}
	return &CourseView{Course: *course, CompletionPercentage: completion[id]}, nil
}

// CompletionPercentage returns completed active lessons over all active
// lessons, as a percentage
func (s *Service) CompletionPercentage(ctx context.Context, courseID uint) (float64, error) {
	if _, err := s.loadCourse(ctx, courseID); err != nil {
		return 0, err
	}
	completion, err := s.completion(ctx, []uint{courseID})
	if err != nil {
		return 0, err
	}
	return completion[courseID], nil
}

func (s *Service) completion(ctx context.Context, courseIDs []uint) (map[uint]float64, error) {
	result := make(map[uint]float64, len(courseIDs))
	if len(courseIDs) == 0 {
		return result, nil
	}

	var rows []struct {
		CourseID  uint
		Total     int64
		Completed int64
	}
	err := s.db.WithContext(ctx).Model(&database.Lesson{}).
		Select("course_id, COUNT(*) AS total, SUM(CASE WHEN is_completed = ? THEN 1 ELSE 0 END) AS completed", true).
		Where("is_active = ? AND course_id IN ?", true, courseIDs).
		Group("course_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to compute completion: %w", err)
	}

	for _, row := range rows {
		if row.Total > 0 {
			result[row.CourseID] = float64(row.Completed) / float64(row.Total) * 100
		}
	}
	return result, nil
}

// CreateCourse validates and stores a course, then schedules its first scan
func (s *Service) CreateCourse(ctx context.Context, in CourseInput, cover *CoverUpload) (*database.Course, error) {
	course := &database.Course{}
	if err := s.applyInput(ctx, course, in); err != nil {
		return nil, err
	}

	if in.CoverURL != "" {
		course.CoverURL = strings.TrimSpace(in.CoverURL)
	} else if cover != nil {
		name, err := s.covers.Save(cover.Reader, cover.Name)
		if err != nil {
			return nil, err
		}
		course.CoverFile = name
	}

	if err := s.db.WithContext(ctx).Create(course).Error; err != nil {
		s.covers.Remove(course.CoverFile)
		return nil, fmt.Errorf("failed to create course: %w", err)
	}

	s.logger.Info("Course created", "course_id", course.ID, "path", course.Path, "extra_paths", len(course.ExtraPaths))
	s.publish(events.EventCourseCreated, "Course Created", course)
	s.requestScan(course.ID)
	return course, nil
}

// UpdateCourse replaces the editable fields of a course. A new scan is
// scheduled when the primary or extra paths change.
func (s *Service) UpdateCourse(ctx context.Context, id uint, in CourseInput, cover *CoverUpload) (*database.Course, bool, error) {
	course, err := s.loadCourse(ctx, id)
	if err != nil {
		return nil, false, err
	}
	oldPath := course.Path
	oldExtras := slices.Clone([]string(course.ExtraPaths))
	oldCover := course.CoverFile

	if err := s.applyInput(ctx, course, in); err != nil {
		return nil, false, err
	}

	switch {
	case in.CoverURL != "":
		course.CoverURL = strings.TrimSpace(in.CoverURL)
		course.CoverFile = ""
	case cover != nil:
		name, err := s.covers.Save(cover.Reader, cover.Name)
		if err != nil {
			return nil, false, err
		}
		course.CoverFile = name
		course.CoverURL = ""
	}

	if err := s.db.WithContext(ctx).Save(course).Error; err != nil {
		if course.CoverFile != oldCover {
			s.covers.Remove(course.CoverFile)
		}
		return nil, false, fmt.Errorf("failed to update course: %w", err)
	}
	if oldCover != "" && course.CoverFile != oldCover {
		if err := s.covers.Remove(oldCover); err != nil {
			s.logger.Warn("Could not remove replaced cover", "course_id", id, "error", err)
		}
	}

	rescan := oldPath != course.Path || !slices.Equal(oldExtras, []string(course.ExtraPaths))
	s.publish(events.EventCourseUpdated, "Course Updated", course)
	if rescan {
		s.logger.Info("Course roots changed", "course_id", id, "path", course.Path)
		s.requestScan(course.ID)
	}
	return course, rescan, nil
}

// applyInput validates name and paths and copies them onto course
func (s *Service) applyInput(ctx context.Context, course *database.Course, in CourseInput) error {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return ErrNameRequired
	}
	path, err := normalizeDir(in.Path)
	if err != nil {
		return err
	}
	extras, err := normalizeDirs(in.ExtraPaths)
	if err != nil {
		return err
	}

	var existing database.Course
	q := s.db.WithContext(ctx).Where("path = ?", path)
	if course.ID != 0 {
		q = q.Where("id <> ?", course.ID)
	}
	err = q.First(&existing).Error
	switch {
	case err == nil:
		return fmt.Errorf("%w: %q", ErrDuplicatePath, existing.Name)
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("failed to check course path: %w", err)
	}

	course.Name = name
	course.Path = path
	course.ExtraPaths = extras
	return nil
}

// ToggleFavorite flips the favorite flag
func (s *Service) ToggleFavorite(ctx context.Context, id uint) (*database.Course, error) {
	course, err := s.loadCourse(ctx, id)
	if err != nil {
		return nil, err
	}
	course.IsFavorite = !course.IsFavorite
	if err := s.db.WithContext(ctx).Model(course).UpdateColumn("is_favorite", course.IsFavorite).Error; err != nil {
		return nil, fmt.Errorf("failed to update favorite: %w", err)
	}
	return course, nil
}

// DeleteCourse backs up the course notes to a JSON file, then removes the
// course and everything attached to it in one transaction
func (s *Service) DeleteCourse(ctx context.Context, id uint) (*DeleteResult, error) {
	course, err := s.loadCourse(ctx, id)
	if err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)

	var lessons []database.Lesson
	if err := db.Where("course_id = ?", id).Order("id ASC").Find(&lessons).Error; err != nil {
		return nil, fmt.Errorf("failed to load lessons: %w", err)
	}

	result := &DeleteResult{}
	if len(lessons) > 0 {
		lessonIDs := make([]uint, len(lessons))
		for i, l := range lessons {
			lessonIDs[i] = l.ID
		}

		var notes []database.Note
		if err := db.Where("lesson_id IN ?", lessonIDs).Order("id ASC").Find(&notes).Error; err != nil {
			return nil, fmt.Errorf("failed to load notes: %w", err)
		}
		if len(notes) > 0 {
			export := buildNotesExport(course, lessons, notes, s.now())
			path, err := writeNotesExport(s.exportDir, course, export)
			if err != nil {
				return nil, err
			}
			result.NotesExported = len(notes)
			result.NotesExportPath = path
			s.logger.Info("Notes exported before course deletion", "course_id", id, "notes", len(notes), "file", path)
		}
	}

	err = s.txm.WithTransaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Where("course_id = ?", id).Delete(&database.ModuleLink{}).Error; err != nil {
			return fmt.Errorf("failed to delete module links: %w", err)
		}
		lessonIDs := tx.Model(&database.Lesson{}).Select("id").Where("course_id = ?", id)
		if err := tx.Where("lesson_id IN (?)", lessonIDs).Delete(&database.Note{}).Error; err != nil {
			return fmt.Errorf("failed to delete notes: %w", err)
		}
		res := tx.Where("course_id = ?", id).Delete(&database.Lesson{})
		if res.Error != nil {
			return fmt.Errorf("failed to delete lessons: %w", res.Error)
		}
		result.LessonsDeleted = res.RowsAffected
		if err := tx.Delete(&database.Course{}, id).Error; err != nil {
			return fmt.Errorf("failed to delete course: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.covers.Remove(course.CoverFile); err != nil {
		s.logger.Warn("Could not remove course cover", "course_id", id, "error", err)
	}

	s.logger.Info("Course deleted", "course_id", id, "lessons", result.LessonsDeleted)
	s.publish(events.EventCourseDeleted, "Course Deleted", course)
	return result, nil
}

// ImportAll registers every direct subdirectory of dir that is not already
// a course and schedules a scan for each
func (s *Service) ImportAll(ctx context.Context, dir string) ([]database.Course, error) {
	root, err := normalizeDir(dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", root, err)
	}

	var added []database.Course
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		path := filepath.Join(root, entry.Name())
		if info, err := os.Stat(path); err != nil || !info.IsDir() {
			continue
		}

		var count int64
		if err := s.db.WithContext(ctx).Model(&database.Course{}).Where("path = ?", path).Count(&count).Error; err != nil {
			return added, fmt.Errorf("failed to check course path: %w", err)
		}
		if count > 0 {
			continue
		}

		course := database.Course{Name: entry.Name(), Path: path}
		if err := s.db.WithContext(ctx).Create(&course).Error; err != nil {
			return added, fmt.Errorf("failed to create course %s: %w", entry.Name(), err)
		}
		s.publish(events.EventCourseCreated, "Course Imported", &course)
		s.requestScan(course.ID)
		added = append(added, course)
	}

	s.logger.Info("Import finished", "dir", root, "added", len(added))
	return added, nil
}

// ListLessons returns the active lessons of a course in catalog order.
// search matches titles case-insensitively. A page below 1 returns every
// lesson.
func (s *Service) ListLessons(ctx context.Context, courseID uint, search string, page, perPage int) ([]LessonView, int64, error) {
	course, err := s.loadCourse(ctx, courseID)
	if err != nil {
		return nil, 0, err
	}

	q := s.db.WithContext(ctx).Model(&database.Lesson{}).
		Where("course_id = ? AND is_active = ?", courseID, true)
	if search = strings.TrimSpace(search); search != "" {
		q = q.Where("LOWER(title) LIKE ?", "%"+strings.ToLower(search)+"%")
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count lessons: %w", err)
	}

	q = q.Order("id ASC")
	if page > 0 {
		q = q.Offset((page - 1) * perPage).Limit(perPage)
	}
	var lessons []database.Lesson
	if err := q.Find(&lessons).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list lessons: %w", err)
	}

	views := make([]LessonView, len(lessons))
	for i, l := range lessons {
		views[i] = LessonView{Lesson: l, CourseTitle: course.Name}
	}
	return views, total, nil
}

// GetLesson returns one lesson
func (s *Service) GetLesson(ctx context.Context, id uint) (*LessonView, error) {
	lesson, err := s.loadLesson(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	var course database.Course
	if err := s.db.WithContext(ctx).Select("id", "name").First(&course, lesson.CourseID).Error; err != nil {
		return nil, fmt.Errorf("failed to load course of lesson %d: %w", id, err)
	}
	return &LessonView{Lesson: *lesson, CourseTitle: course.Name}, nil
}

// UpdateLessonProgress applies the set fields of u
func (s *Service) UpdateLessonProgress(ctx context.Context, u LessonProgressUpdate) (*database.Lesson, error) {
	if err := s.applyProgress(ctx, s.db, u); err != nil {
		return nil, err
	}
	return s.loadLesson(ctx, s.db, u.ID)
}

// BatchUpdateLessons applies every update in one transaction. An unknown
// lesson rolls the whole batch back.
func (s *Service) BatchUpdateLessons(ctx context.Context, updates []LessonProgressUpdate) (int, error) {
	err := s.txm.WithTransaction(ctx, func(tx *gorm.DB) error {
		for _, u := range updates {
			if err := s.applyProgress(ctx, tx, u); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(updates), nil
}

// applyProgress writes columns only; lesson hooks validate paths, which a
// progress update never touches
func (s *Service) applyProgress(ctx context.Context, db *gorm.DB, u LessonProgressUpdate) error {
	cols, err := u.columns()
	if err != nil {
		return err
	}
	if len(cols) == 0 {
		_, err := s.loadLesson(ctx, db, u.ID)
		return err
	}
	cols["updated_at"] = s.now()

	res := db.WithContext(ctx).Model(&database.Lesson{}).Where("id = ?", u.ID).UpdateColumns(cols)
	if res.Error != nil {
		return fmt.Errorf("failed to update lesson %d: %w", u.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %d", ErrLessonNotFound, u.ID)
	}
	return nil
}

// ListNotes returns the notes of a lesson ordered by timestamp
func (s *Service) ListNotes(ctx context.Context, lessonID uint) ([]database.Note, error) {
	if _, err := s.loadLesson(ctx, s.db, lessonID); err != nil {
		return nil, err
	}
	notes := []database.Note{}
	if err := s.db.WithContext(ctx).Where("lesson_id = ?", lessonID).Order("timestamp ASC, id ASC").Find(&notes).Error; err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	return notes, nil
}

// CreateNote adds a note at timestamp seconds into the lesson
func (s *Service) CreateNote(ctx context.Context, lessonID uint, timestamp float64, content string) (*database.Note, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrNoteContentRequired
	}
	if _, err := s.loadLesson(ctx, s.db, lessonID); err != nil {
		return nil, err
	}

	note := &database.Note{LessonID: lessonID, Timestamp: timestamp, Content: content}
	if err := s.db.WithContext(ctx).Create(note).Error; err != nil {
		return nil, fmt.Errorf("failed to create note: %w", err)
	}
	return note, nil
}

// UpdateNote replaces the content of a note
func (s *Service) UpdateNote(ctx context.Context, id uint, content string) (*database.Note, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrNoteContentRequired
	}

	var note database.Note
	if err := s.db.WithContext(ctx).First(&note, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoteNotFound
		}
		return nil, fmt.Errorf("failed to load note: %w", err)
	}
	if err := s.db.WithContext(ctx).Model(&note).UpdateColumn("content", content).Error; err != nil {
		return nil, fmt.Errorf("failed to update note: %w", err)
	}
	note.Content = content
	return &note, nil
}

// DeleteNote removes a note
func (s *Service) DeleteNote(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&database.Note{}, id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete note: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNoteNotFound
	}
	return nil
}

// AnnotatedLessons lists active lessons of a course that carry notes, most
// recently annotated first
func (s *Service) AnnotatedLessons(ctx context.Context, courseID uint) ([]AnnotatedLesson, error) {
	if _, err := s.loadCourse(ctx, courseID); err != nil {
		return nil, err
	}

	rows := []AnnotatedLesson{}
	err := s.db.WithContext(ctx).Table("lessons").
		Select("lessons.id AS lesson_id, lessons.title, lessons.module, lessons.hierarchy_path, COUNT(notes.id) AS note_count").
		Joins("JOIN notes ON notes.lesson_id = lessons.id").
		Where("lessons.course_id = ? AND lessons.is_active = ?", courseID, true).
		Group("lessons.id, lessons.title, lessons.module, lessons.hierarchy_path").
		Order("MAX(notes.created_at) DESC, lessons.id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list annotated lessons: %w", err)
	}
	return rows, nil
}

func (s *Service) loadCourse(ctx context.Context, id uint) (*database.Course, error) {
	var course database.Course
	if err := s.db.WithContext(ctx).First(&course, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCourseNotFound
		}
		return nil, fmt.Errorf("failed to load course: %w", err)
	}
	return &course, nil
}

func (s *Service) loadLesson(ctx context.Context, db *gorm.DB, id uint) (*database.Lesson, error) {
	var lesson database.Lesson
	if err := db.WithContext(ctx).First(&lesson, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrLessonNotFound, id)
		}
		return nil, fmt.Errorf("failed to load lesson: %w", err)
	}
	return &lesson, nil
}

func (s *Service) requestScan(courseID uint) {
	if s.scans == nil {
		return
	}
	if err := s.scans.RequestScan(courseID); err != nil {
		s.logger.Warn("Could not schedule scan", "course_id", courseID, "error", err)
	}
}

func (s *Service) publish(eventType events.EventType, title string, course *database.Course) {
	events.PublishAsync(s.eventBus, events.Event{
		Type:    eventType,
		Source:  "catalog",
		Title:   title,
		Message: course.Name,
		Data: map[string]interface{}{
			"course_id": course.ID,
			"path":      course.Path,
		},
	})
}
