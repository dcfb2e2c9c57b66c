package catalogmodule

import "errors"

// Sentinel errors returned by the catalog service
var (
	// ErrCourseNotFound indicates a course ID doesn't exist
	ErrCourseNotFound = errors.New("course not found")

	// ErrLessonNotFound indicates a lesson ID doesn't exist
	ErrLessonNotFound = errors.New("lesson not found")

	// ErrNoteNotFound indicates a note ID doesn't exist
	ErrNoteNotFound = errors.New("note not found")

	// ErrModuleLinkNotFound indicates a module link ID doesn't exist
	ErrModuleLinkNotFound = errors.New("module link not found")

	// ErrModuleLinkFieldsRequired indicates a link without a module or URL
	ErrModuleLinkFieldsRequired = errors.New("module_name and url are required")

	// ErrDuplicatePath indicates another course already uses the path
	ErrDuplicatePath = errors.New("a course with this path already exists")

	// ErrInvalidPath indicates a path that is missing or not a directory
	ErrInvalidPath = errors.New("path does not exist or is not a directory")

	// ErrNameRequired indicates a course without a name
	ErrNameRequired = errors.New("course name is required")

	// ErrNoteContentRequired indicates an empty note body
	ErrNoteContentRequired = errors.New("note content is required")

	// ErrInvalidProgress indicates an unknown progress status
	ErrInvalidProgress = errors.New("invalid progress status")

	// ErrInvalidCover indicates an upload that is not a decodable image
	ErrInvalidCover = errors.New("cover is not a supported image")

	// ErrCoverTooLarge indicates an upload over the configured size limit
	ErrCoverTooLarge = errors.New("cover image is too large")
)
