package scanner

import (
	"errors"
	"fmt"

	"github.com/mantonx/coursevault/internal/database"
	"gorm.io/gorm"
)

// LessonRepository is the storage surface a scan pass works against. A pass
// reads through one instance and writes through another bound to its
// transaction.
type LessonRepository interface {
	FindByCourse(courseID uint) ([]database.Lesson, error)
	FindByPathAcrossCourses(path string, excludeCourseID uint) (*database.Lesson, error)
	Upsert(lesson *database.Lesson) error
	SetActive(lessonID uint, active bool) error
	ListNotes(lessonID uint) ([]database.Note, error)
	CloneNotes(fromLessonID, toLessonID uint) (int, error)
}

// RepositoryFactory binds a LessonRepository to a transaction
type RepositoryFactory func(tx *gorm.DB) LessonRepository

type gormLessonRepository struct {
	db *gorm.DB
}

// NewLessonRepository returns a gorm-backed repository using db
func NewLessonRepository(db *gorm.DB) LessonRepository {
	return &gormLessonRepository{db: db}
}

func (r *gormLessonRepository) FindByCourse(courseID uint) ([]database.Lesson, error) {
	var lessons []database.Lesson
	if err := r.db.Where("course_id = ?", courseID).Order("id ASC").Find(&lessons).Error; err != nil {
		return nil, fmt.Errorf("failed to load lessons for course %d: %w", courseID, err)
	}
	return lessons, nil
}

// FindByPathAcrossCourses returns the lowest-id lesson of another course
// backed by path, or nil when there is none. Inactive lessons qualify.
func (r *gormLessonRepository) FindByPathAcrossCourses(path string, excludeCourseID uint) (*database.Lesson, error) {
	var lesson database.Lesson
	err := r.db.
		Where("course_id <> ?", excludeCourseID).
		Where(r.db.Where("video_path = ? AND video_path <> ''", path).
			Or("document_path = ? AND document_path <> ''", path)).
		Order("id ASC").
		First(&lesson).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up donor for %s: %w", path, err)
	}
	return &lesson, nil
}

// scanColumns are the lesson columns a pass owns. Progress columns are
// left to the catalog so edits made while a pass walks are kept.
var scanColumns = []string{"title", "module", "hierarchy_path", "subtitle_paths", "is_active", "updated_at"}

// Upsert inserts a new lesson, or rewrites the scan-owned columns of an
// existing one.
func (r *gormLessonRepository) Upsert(lesson *database.Lesson) error {
	var err error
	if lesson.ID == 0 {
		err = r.db.Create(lesson).Error
	} else {
		err = r.db.Model(lesson).Select(scanColumns).Updates(lesson).Error
	}
	if err != nil {
		return fmt.Errorf("failed to save lesson %s: %w", lesson.FilePath(), err)
	}
	return nil
}

func (r *gormLessonRepository) SetActive(lessonID uint, active bool) error {
	err := r.db.Model(&database.Lesson{}).
		Where("id = ?", lessonID).
		UpdateColumn("is_active", active).Error
	if err != nil {
		return fmt.Errorf("failed to set lesson %d active=%t: %w", lessonID, active, err)
	}
	return nil
}

func (r *gormLessonRepository) ListNotes(lessonID uint) ([]database.Note, error) {
	var notes []database.Note
	err := r.db.Where("lesson_id = ?", lessonID).Order("timestamp ASC, id ASC").Find(&notes).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list notes for lesson %d: %w", lessonID, err)
	}
	return notes, nil
}

// CloneNotes copies every note of one lesson onto another and returns how
// many were copied. The source notes are left in place.
func (r *gormLessonRepository) CloneNotes(fromLessonID, toLessonID uint) (int, error) {
	notes, err := r.ListNotes(fromLessonID)
	if err != nil {
		return 0, err
	}
	if len(notes) == 0 {
		return 0, nil
	}

	clones := make([]database.Note, len(notes))
	for i, note := range notes {
		clones[i] = database.Note{
			LessonID:  toLessonID,
			Timestamp: note.Timestamp,
			Content:   note.Content,
		}
	}
	if err := r.db.Create(&clones).Error; err != nil {
		return 0, fmt.Errorf("failed to clone notes from lesson %d to %d: %w", fromLessonID, toLessonID, err)
	}
	return len(clones), nil
}
