package database

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// ErrLessonPathExclusive is returned when a lesson does not carry exactly
// one of video path or document path.
var ErrLessonPathExclusive = errors.New("lesson must have exactly one of video_path or document_path")

// Progress states for a lesson
const (
	ProgressNotStarted = "not_started"
	ProgressInProgress = "in_progress"
	ProgressCompleted  = "completed"
)

// StringList is stored as a JSON array in a text column.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if len(l) == 0 {
		return "", nil
	}
	data, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (l *StringList) Scan(value interface{}) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*l = nil
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("cannot scan %T into StringList", value)
	}
	if len(raw) == 0 || string(raw) == "null" {
		*l = nil
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("invalid string list %q: %w", raw, err)
	}
	*l = out
	return nil
}

// MarshalJSON renders an empty list as [] rather than null
func (l StringList) MarshalJSON() ([]byte, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(l))
}

// Course is a catalog entry rooted at one primary directory plus optional extras
type Course struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	Name       string     `gorm:"not null" json:"name"`
	Path       string     `gorm:"not null;uniqueIndex" json:"path"`
	ExtraPaths StringList `gorm:"type:text" json:"extra_paths"`
	CoverURL   string     `json:"cover_url"`
	CoverFile  string     `json:"cover_file"`
	IsFavorite bool       `gorm:"not null;default:false" json:"is_favorite"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`

	Lessons []Lesson `gorm:"foreignKey:CourseID" json:"-"`
}

// Roots returns the primary path followed by the extra paths
func (c *Course) Roots() []string {
	roots := make([]string, 0, 1+len(c.ExtraPaths))
	roots = append(roots, c.Path)
	return append(roots, c.ExtraPaths...)
}

// Lesson is one catalog entry backed by exactly one file
type Lesson struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	CourseID       uint       `gorm:"not null;index" json:"course_id"`
	Title          string     `gorm:"not null" json:"title"`
	Module         string     `json:"module"`
	HierarchyPath  string     `gorm:"index" json:"hierarchy_path"`
	VideoPath      string     `gorm:"index" json:"video_path"`
	DocumentPath   string     `gorm:"index" json:"document_path"`
	ProgressStatus string     `gorm:"not null;default:not_started" json:"progress_status"`
	IsCompleted    bool       `gorm:"not null;default:false" json:"is_completed"`
	TimeElapsed    string     `gorm:"not null;default:'0'" json:"time_elapsed"`
	Duration       string     `json:"duration"`
	SubtitlePaths  StringList `gorm:"type:text" json:"subtitle_paths"`
	IsActive       bool       `gorm:"not null;index" json:"is_active"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`

	Notes []Note `gorm:"foreignKey:LessonID" json:"-"`
}

// FilePath returns whichever of the two path fields is populated
func (l *Lesson) FilePath() string {
	if l.VideoPath != "" {
		return l.VideoPath
	}
	return l.DocumentPath
}

// IsDocument reports whether the lesson is backed by a document file
func (l *Lesson) IsDocument() bool {
	return l.DocumentPath != ""
}

// BeforeSave enforces the video/document exclusivity on create and save.
// Column-only updates (UpdateColumn/UpdateColumns) bypass hooks.
func (l *Lesson) BeforeSave(tx *gorm.DB) error {
	if (l.VideoPath == "") == (l.DocumentPath == "") {
		return ErrLessonPathExclusive
	}
	return nil
}

// DefaultModuleLinkLabel is the label stored when a module link has none
const DefaultModuleLinkLabel = "Questões"

// ModuleLink attaches an external URL, usually an exercise list, to a
// module of a course. Links are keyed by module name so they survive rescans.
type ModuleLink struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	CourseID   uint      `gorm:"not null;index" json:"course_id"`
	ModuleName string    `gorm:"not null" json:"module_name"`
	Label      string    `gorm:"not null;default:'Questões'" json:"label"`
	URL        string    `gorm:"column:questions_url;not null" json:"url"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Note is a timestamped annotation on a lesson
type Note struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	LessonID  uint      `gorm:"not null;index" json:"lesson_id"`
	Timestamp float64   `gorm:"not null;default:0" json:"timestamp"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// AllModels lists the models managed by AutoMigrate
func AllModels() []interface{} {
	return []interface{}{&Course{}, &Lesson{}, &Note{}, &ModuleLink{}}
}
