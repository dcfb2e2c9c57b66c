package catalogmodule

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	apperrors "github.com/mantonx/coursevault/internal/errors"
)

// Handler serves the catalog HTTP API
type Handler struct {
	service *Service
}

// NewHandler creates handlers over service
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// ListCourses handles GET /api/courses
//
// Query parameters:
//   - page: 1-based page; omitted returns every course as a plain array
//   - per_page: page size, at most 100
func (h *Handler) ListCourses(c *gin.Context) {
	page, perPage, paged := parsePagination(c, DefaultCoursesPerPage, MaxCoursesPerPage)

	courses, total, err := h.service.ListCourses(c.Request.Context(), page, perPage)
	if err != nil {
		respondError(c, err)
		return
	}
	if !paged {
		c.JSON(http.StatusOK, courses)
		return
	}
	c.JSON(http.StatusOK, newPage(courses, page, perPage, total))
}

// GetCourse handles GET /api/courses/:id
func (h *Handler) GetCourse(c *gin.Context) {
	id, ok := apperrors.ParseIDParam(c, "id")
	if !ok {
		return
	}
	course, err := h.service.GetCourse(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, course)
}

// CreateCourse handles POST /api/courses
//
// Accepts a JSON body or a multipart form with name, path, extra_paths
// (JSON array or one path per line), imageURL and an imageFile upload.
func (h *Handler) CreateCourse(c *gin.Context) {
	input, cover, err := bindCourseInput(c)
	if err != nil {
		apperrors.HandleValidationError(c, err.Error(), "body")
		return
	}
	if cover != nil {
		defer closeCover(cover)
	}

	course, err := h.service.CreateCourse(c.Request.Context(), input, cover)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, course)
}

// UpdateCourse handles PUT /api/courses/:id
func (h *Handler) UpdateCourse(c *gin.Context) {
	id, ok := apperrors.ParseIDParam(c, "id")
	if !ok {
		return
	}
	input, cover, err := bindCourseInput(c)
	if err != nil {
		apperrors.HandleValidationError(c, err.Error(), "body")
		return
	}
	if cover != nil {
		defer closeCover(cover)
	}

	course, rescan, err := h.service.UpdateCourse(c.Request.Context(), id, input, cover)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"course":          course,
		"rescan_required": rescan,
	})
}

// DeleteCourse handles DELETE /api/courses/:id
func (h *Handler) DeleteCourse(c *gin.Context) {
	id, ok := apperrors.ParseIDParam(c, "id")
	if !ok {
		return
	}
	result, err := h.service.DeleteCourse(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":           "Course and its lessons deleted",
		"lessons_deleted":   result.LessonsDeleted,
		"notes_exported":    result.NotesExported,
		"notes_export_path": result.NotesExportPath,
	})
}

// GetFavorite handles GET /api/courses/:id/favorite
func (h *Handler) GetFavorite(c *gin.Context) {
	id, ok := apperrors.ParseIDParam(c, "id")
	if !ok {
		return
	}
	course, err := h.service.GetCourse(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": course.ID, "is_favorite": course.IsFavorite})
}

// ToggleFavorite handles PUT /api/courses/:id/favorite
func (h *Handler) ToggleFavorite(c *gin.Context) {
	id, ok := apperrors.ParseIDParam(c, "id")
	if !ok {
		return
	}
	course, err := h.service.ToggleFavorite(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": course.ID, "is_favorite": course.IsFavorite})
}

// ImportAll handles POST /api/courses/import-all
//
// Request body: {"path": "/courses"}
func (h *Handler) ImportAll(c *gin.Context) {
	var req struct {
		Path string `json:"path"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Path) == "" {
		apperrors.HandleValidationError(c, "Path of the directory holding the courses is required", "path")
		return
	}

	added, err := h.service.ImportAll(c.Request.Context(), req.Path)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"added":   len(added),
		"courses": added,
	})
}

// CompletionPercentage handles GET /api/courses/:id/completion
func (h *Handler) CompletionPercentage(c *gin.Context) {
	id, ok := apperrors.ParseIDParam(c, "id")
	if !ok {
		return
	}
	pct, err := h.service.CompletionPercentage(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"completion_percentage": pct})
}

// ListLessons handles GET /api/courses/:id/lessons
//
// Query parameters:
//   - search: case-insensitive title filter
//   - page, per_page: pagination, at most 200 per page
func (h *Handler) ListLessons(c *gin.Context) {
	id, ok := apperrors.ParseIDParam(c, "id")
	if !ok {
		return
	}
	page, perPage, paged := parsePagination(c, DefaultLessonsPerPage, MaxLessonsPerPage)

	lessons, total, err := h.service.ListLessons(c.Request.Context(), id, c.Query("search"), page, perPage)
	if err != nil {
		respondError(c, err)
		return
	}
	if !paged {
		c.JSON(http.StatusOK, lessons)
		return
	}
	c.JSON(http.StatusOK, newPage(lessons, page, perPage, total))
}

// AnnotatedLessons handles GET /api/courses/:id/annotated-lessons
func (h *Handler) AnnotatedLessons(c *gin.Context) {
	id, ok := apperrors.ParseIDParam(c, "id")
	if !ok {
		return
	}
	lessons, err := h.service.AnnotatedLessons(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, lessons)
}

// GetLesson handles GET /api/lessons/:id
func (h *Handler) GetLesson(c *gin.Context) {
	id, ok := apperrors.ParseIDParam(c, "id")
	if !ok {
		return
	}
	lesson, err := h.service.GetLesson(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, lesson)
}

// UpdateLessonProgress handles PUT /api/lessons/:id/progress
//
// Request body: {"progressStatus": "in_progress", "isCompleted": false, "time_elapsed": "120"}
func (h *Handler) UpdateLessonProgress(c *gin.Context) {
	id, ok := apperrors.ParseIDParam(c, "id")
	if !ok {
		return
	}
	var update LessonProgressUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		apperrors.HandleValidationError(c, "Invalid request body", "body")
		return
	}
	update.ID = id

	lesson, err := h.service.UpdateLessonProgress(c.Request.Context(), update)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, lesson)
}

// BatchUpdateLessons handles POST /api/lessons/batch-update
//
// Request body is either {"updates": [{"id": 1, "isCompleted": true}, ...]}
// or {"lessonIds": [1, 2], "isCompleted": true}.
func (h *Handler) BatchUpdateLessons(c *gin.Context) {
	var req struct {
		Updates     []LessonProgressUpdate `json:"updates"`
		LessonIDs   []uint                 `json:"lessonIds"`
		IsCompleted *bool                  `json:"isCompleted"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.HandleValidationError(c, "Invalid request body", "body")
		return
	}

	updates := req.Updates
	if len(req.LessonIDs) > 0 {
		if req.IsCompleted == nil {
			apperrors.HandleValidationError(c, "isCompleted is required with lessonIds", "isCompleted")
			return
		}
		for _, id := range req.LessonIDs {
			updates = append(updates, LessonProgressUpdate{ID: id, IsCompleted: req.IsCompleted})
		}
	}
	if len(updates) == 0 {
		apperrors.HandleValidationError(c, "No lesson updates given", "updates")
		return
	}

	updated, err := h.service.BatchUpdateLessons(c.Request.Context(), updates)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

// ListNotes handles GET /api/lessons/:id/notes
func (h *Handler) ListNotes(c *gin.Context) {
	id, ok := apperrors.ParseIDParam(c, "id")
	if !ok {
		return
	}
	notes, err := h.service.ListNotes(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, notes)
}

// CreateNote handles POST /api/lessons/:id/notes
//
// Request body: {"timestamp": 42.5, "content": "..."}
func (h *Handler) CreateNote(c *gin.Context) {
	id, ok := apperrors.ParseIDParam(c, "id")
	if !ok {
		return
	}
	var req struct {
		Timestamp float64 `json:"timestamp"`
		Content   string  `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.HandleValidationError(c, "Invalid request body", "body")
		return
	}

	note, err := h.service.CreateNote(c.Request.Context(), id, req.Timestamp, req.Content)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, note)
}

// UpdateNote handles PUT /api/notes/:id
func (h *Handler) UpdateNote(c *gin.Context) {
	id, ok := apperrors.ParseIDParam(c, "id")
	if !ok {
		return
	}
	var req struct {
		Content string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.HandleValidationError(c, "Invalid request body", "body")
		return
	}

	note, err := h.service.UpdateNote(c.Request.Context(), id, req.Content)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, note)
}

// DeleteNote handles DELETE /api/notes/:id
func (h *Handler) DeleteNote(c *gin.Context) {
	id, ok := apperrors.ParseIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteNote(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Note deleted"})
}

// ListModuleLinks handles GET /api/courses/:id/module-links
//
// The response maps each module name to its links.
func (h *Handler) ListModuleLinks(c *gin.Context) {
	id, ok := apperrors.ParseIDParam(c, "id")
	if !ok {
		return
	}
	links, err := h.service.ModuleLinks(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, links)
}

// CreateModuleLink handles POST /api/courses/:id/module-links
//
// Request body: {"module_name": "...", "label": "...", "url": "..."}
func (h *Handler) CreateModuleLink(c *gin.Context) {
	id, ok := apperrors.ParseIDParam(c, "id")
	if !ok {
		return
	}
	var req ModuleLinkInput
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.HandleValidationError(c, "Invalid request body", "body")
		return
	}

	link, err := h.service.CreateModuleLink(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, link)
}

// UpdateModuleLink handles PUT /api/module-links/:id
func (h *Handler) UpdateModuleLink(c *gin.Context) {
	id, ok := apperrors.ParseIDParam(c, "id")
	if !ok {
		return
	}
	var req ModuleLinkInput
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.HandleValidationError(c, "Invalid request body", "body")
		return
	}

	link, err := h.service.UpdateModuleLink(c.Request.Context(), id, req.Label, req.URL)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, link)
}

// DeleteModuleLink handles DELETE /api/module-links/:id
func (h *Handler) DeleteModuleLink(c *gin.Context) {
	id, ok := apperrors.ParseIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteModuleLink(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// ModuleLinkLabels handles GET /api/module-link-labels
func (h *Handler) ModuleLinkLabels(c *gin.Context) {
	labels, err := h.service.ModuleLinkLabels(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, labels)
}

// GetCover handles GET /api/covers/:name
func (h *Handler) GetCover(c *gin.Context) {
	c.File(h.service.Covers().Path(c.Param("name")))
}

// bindCourseInput reads a course from a JSON body or a form
func bindCourseInput(c *gin.Context) (CourseInput, *CoverUpload, error) {
	if c.ContentType() == gin.MIMEJSON {
		var req struct {
			Name       string          `json:"name"`
			Path       string          `json:"path"`
			ExtraPaths json.RawMessage `json:"extra_paths"`
			CoverURL   string          `json:"cover_url"`
			ImageURL   string          `json:"imageURL"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			return CourseInput{}, nil, errors.New("invalid request body")
		}

		extras := string(req.ExtraPaths)
		var single string
		if json.Unmarshal(req.ExtraPaths, &single) == nil {
			extras = single
		}
		return CourseInput{
			Name:       req.Name,
			Path:       req.Path,
			ExtraPaths: ParseExtraPaths(extras),
			CoverURL:   firstNonEmpty(req.CoverURL, req.ImageURL),
		}, nil, nil
	}

	input := CourseInput{
		Name:       c.PostForm("name"),
		Path:       c.PostForm("path"),
		ExtraPaths: ParseExtraPaths(c.PostForm("extra_paths")),
		CoverURL:   firstNonEmpty(c.PostForm("imageURL"), c.PostForm("cover_url")),
	}
	if input.CoverURL != "" {
		return input, nil, nil
	}

	for _, field := range []string{"imageFile", "cover"} {
		header, err := c.FormFile(field)
		if err != nil {
			continue
		}
		file, err := header.Open()
		if err != nil {
			return input, nil, errors.New("could not read uploaded cover")
		}
		return input, &CoverUpload{Reader: file, Name: header.Filename}, nil
	}
	return input, nil, nil
}

func closeCover(cover *CoverUpload) {
	if closer, ok := cover.Reader.(io.Closer); ok {
		closer.Close()
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// parsePagination reads page and per_page. paged is false when no page
// was requested.
func parsePagination(c *gin.Context, defaultPerPage, maxPerPage int) (page, perPage int, paged bool) {
	rawPage, ok := c.GetQuery("page")
	if !ok {
		return 0, 0, false
	}

	page, err := strconv.Atoi(rawPage)
	if err != nil || page < 1 {
		page = 1
	}
	perPage, err = strconv.Atoi(c.DefaultQuery("per_page", strconv.Itoa(defaultPerPage)))
	if err != nil || perPage < 1 {
		perPage = defaultPerPage
	}
	return page, min(perPage, maxPerPage), true
}

// respondError maps service errors onto HTTP responses
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrCourseNotFound):
		apperrors.HandleNotFound(c, "Course", c.Param("id"))
	case errors.Is(err, ErrLessonNotFound):
		apperrors.HandleNotFound(c, "Lesson", c.Param("id"))
	case errors.Is(err, ErrNoteNotFound):
		apperrors.HandleNotFound(c, "Note", c.Param("id"))
	case errors.Is(err, ErrModuleLinkNotFound):
		apperrors.HandleNotFound(c, "Module link", c.Param("id"))
	case errors.Is(err, ErrModuleLinkFieldsRequired):
		apperrors.HandleValidationError(c, err.Error(), "module_name")
	case errors.Is(err, ErrDuplicatePath):
		apperrors.HandleConflict(c, err.Error(), err)
	case errors.Is(err, ErrCoverTooLarge):
		(&apperrors.AppError{
			Code:       "PAYLOAD_TOO_LARGE",
			Message:    err.Error(),
			HTTPStatus: http.StatusRequestEntityTooLarge,
		}).ToGinResponse(c)
	case errors.Is(err, ErrInvalidPath):
		apperrors.HandleValidationError(c, err.Error(), "path")
	case errors.Is(err, ErrNameRequired):
		apperrors.HandleValidationError(c, err.Error(), "name")
	case errors.Is(err, ErrNoteContentRequired):
		apperrors.HandleValidationError(c, err.Error(), "content")
	case errors.Is(err, ErrInvalidProgress):
		apperrors.HandleValidationError(c, err.Error(), "progressStatus")
	case errors.Is(err, ErrInvalidCover):
		apperrors.HandleValidationError(c, err.Error(), "imageFile")
	default:
		apperrors.HandleInternalError(c, "Catalog operation failed", err)
	}
}
