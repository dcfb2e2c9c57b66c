package catalogmodule

import (
	"time"

	"github.com/mantonx/coursevault/internal/database"
)

// Pagination limits
const (
	DefaultCoursesPerPage = 12
	MaxCoursesPerPage     = 100
	DefaultLessonsPerPage = 50
	MaxLessonsPerPage     = 200
)

// ScanRequester queues a reconciliation pass for a course
type ScanRequester interface {
	RequestScan(courseID uint) error
}

// CourseInput carries the editable fields of a course
type CourseInput struct {
	Name       string
	Path       string
	ExtraPaths []string
	CoverURL   string
}

// CourseView is a course with its completion over active lessons
type CourseView struct {
	database.Course
	CompletionPercentage float64 `json:"completion_percentage"`
}

// LessonView is a lesson with the name of its course
type LessonView struct {
	database.Lesson
	CourseTitle string `json:"course_title"`
}

// Page is one page of a listing
type Page[T any] struct {
	Data    []T   `json:"data"`
	Page    int   `json:"page"`
	PerPage int   `json:"per_page"`
	Total   int64 `json:"total"`
	Pages   int   `json:"pages"`
}

func newPage[T any](data []T, page, perPage int, total int64) Page[T] {
	if data == nil {
		data = []T{}
	}
	pages := 0
	if perPage > 0 {
		pages = int((total + int64(perPage) - 1) / int64(perPage))
	}
	return Page[T]{Data: data, Page: page, PerPage: perPage, Total: total, Pages: pages}
}

// LessonProgressUpdate changes the progress fields that are set
type LessonProgressUpdate struct {
	ID             uint    `json:"id"`
	ProgressStatus *string `json:"progressStatus,omitempty"`
	IsCompleted    *bool   `json:"isCompleted,omitempty"`
	TimeElapsed    *string `json:"time_elapsed,omitempty"`
}

func (u LessonProgressUpdate) columns() (map[string]interface{}, error) {
	cols := make(map[string]interface{}, 4)
	if u.ProgressStatus != nil && *u.ProgressStatus != "" {
		switch *u.ProgressStatus {
		case database.ProgressNotStarted, database.ProgressInProgress, database.ProgressCompleted:
			cols["progress_status"] = *u.ProgressStatus
		default:
			return nil, ErrInvalidProgress
		}
	}
	if u.IsCompleted != nil {
		cols["is_completed"] = *u.IsCompleted
	}
	if u.TimeElapsed != nil {
		cols["time_elapsed"] = *u.TimeElapsed
	}
	return cols, nil
}

// AnnotatedLesson is an active lesson with at least one note
type AnnotatedLesson struct {
	LessonID      uint   `json:"lesson_id"`
	Title         string `json:"title"`
	Module        string `json:"module"`
	HierarchyPath string `json:"hierarchy_path"`
	NoteCount     int64  `json:"note_count"`
}

// ModuleLinkInput is the body of a module link create or update
type ModuleLinkInput struct {
	ModuleName string `json:"module_name"`
	Label      string `json:"label"`
	URL        string `json:"url"`
}

// ModuleLinkView is a module link as listed under its module
type ModuleLinkView struct {
	ID    uint   `json:"id"`
	Label string `json:"label"`
	URL   string `json:"url"`
}

func newModuleLinkView(link *database.ModuleLink) ModuleLinkView {
	return ModuleLinkView{ID: link.ID, Label: link.Label, URL: link.URL}
}

// DeleteResult reports what a course deletion removed
type DeleteResult struct {
	LessonsDeleted  int64  `json:"lessons_deleted"`
	NotesExported   int    `json:"notes_exported"`
	NotesExportPath string `json:"notes_export_path,omitempty"`
}

// NotesExport is the backup document written before a course is deleted
type NotesExport struct {
	CourseName string         `json:"course_name"`
	CoursePath string         `json:"course_path"`
	ExportedAt time.Time      `json:"exported_at"`
	TotalNotes int            `json:"total_notes"`
	Notes      []ExportedNote `json:"notes"`
}

// ExportedNote is a note with the context of its lesson
type ExportedNote struct {
	NoteID        uint      `json:"note_id"`
	LessonTitle   string    `json:"lesson_title"`
	LessonModule  string    `json:"lesson_module"`
	HierarchyPath string    `json:"hierarchy_path"`
	Timestamp     float64   `json:"timestamp"`
	Content       string    `json:"content"`
	CreatedAt     time.Time `json:"created_at"`
}
