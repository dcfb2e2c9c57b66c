package catalogmodule

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/chai2010/webp"
	"github.com/mantonx/coursevault/internal/database"
	"github.com/mantonx/coursevault/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestCreateCourse_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dir := t.TempDir()

	_, err := f.service.CreateCourse(ctx, CourseInput{Name: "  ", Path: dir}, nil)
	assert.ErrorIs(t, err, ErrNameRequired)

	_, err = f.service.CreateCourse(ctx, CourseInput{Name: "Go", Path: filepath.Join(dir, "missing")}, nil)
	assert.ErrorIs(t, err, ErrInvalidPath)

	file := filepath.Join(dir, "file.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))
	_, err = f.service.CreateCourse(ctx, CourseInput{Name: "Go", Path: file}, nil)
	assert.ErrorIs(t, err, ErrInvalidPath, "a regular file is not a course root")

	_, err = f.service.CreateCourse(ctx, CourseInput{Name: "Go", Path: dir, ExtraPaths: []string{"/nope/one", dir}}, nil)
	require.ErrorIs(t, err, ErrInvalidPath)
	assert.Contains(t, err.Error(), "/nope/one")

	f.scans.AssertNotCalled(t, "RequestScan", mock.Anything)
}

func TestCreateCourse_StoresAndSchedulesScan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dir := t.TempDir()
	extra := t.TempDir()

	course, err := f.service.CreateCourse(ctx, CourseInput{
		Name:       " Go Fundamentals ",
		Path:       dir,
		ExtraPaths: []string{extra},
		CoverURL:   "https://example.com/cover.png",
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, "Go Fundamentals", course.Name)
	assert.Equal(t, dir, course.Path)
	assert.Equal(t, []string{extra}, []string(course.ExtraPaths))
	assert.Equal(t, "https://example.com/cover.png", course.CoverURL)
	f.scans.AssertCalled(t, "RequestScan", course.ID)
	assert.Contains(t, f.bus.types(), events.EventCourseCreated)

	var stored database.Course
	require.NoError(t, f.db.First(&stored, course.ID).Error)
	assert.Equal(t, []string{extra}, []string(stored.ExtraPaths))

	_, err = f.service.CreateCourse(ctx, CourseInput{Name: "Again", Path: dir}, nil)
	assert.ErrorIs(t, err, ErrDuplicatePath)
}

func TestCreateCourse_ScanRequestFailureStillCreates(t *testing.T) {
	f := newFixture(t)
	scans := &MockScanRequester{}
	scans.On("RequestScan", mock.Anything).Return(errors.New("scanner is not accepting scans"))
	f.service = NewService(f.db, f.storage, WithScanRequester(scans))

	course, err := f.service.CreateCourse(context.Background(), CourseInput{Name: "Go", Path: t.TempDir()}, nil)
	require.NoError(t, err)
	assert.NotZero(t, course.ID)
	scans.AssertExpectations(t)
}

func TestCreateCourse_CoverUpload(t *testing.T) {
	f := newFixture(t)

	course, err := f.service.CreateCourse(context.Background(), CourseInput{Name: "Go", Path: t.TempDir()},
		&CoverUpload{Reader: bytes.NewReader(pngBytes(t)), Name: "cover.png"})
	require.NoError(t, err)
	require.NotEmpty(t, course.CoverFile)
	assert.Equal(t, ".webp", filepath.Ext(course.CoverFile))

	data, err := os.ReadFile(filepath.Join(f.storage.UploadDir, course.CoverFile))
	require.NoError(t, err)
	img, err := webp.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 8, img.Bounds().Dx())

	_, err = f.service.CreateCourse(context.Background(), CourseInput{Name: "Bad", Path: t.TempDir()},
		&CoverUpload{Reader: bytes.NewReader([]byte("not an image")), Name: "cover.png"})
	assert.ErrorIs(t, err, ErrInvalidCover)
}

func TestUpdateCourse_RescansWhenRootsChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dir := t.TempDir()

	course, err := f.service.CreateCourse(ctx, CourseInput{Name: "Go", Path: dir}, nil)
	require.NoError(t, err)
	f.scans.Calls = nil

	updated, rescan, err := f.service.UpdateCourse(ctx, course.ID, CourseInput{Name: "Go 2", Path: dir}, nil)
	require.NoError(t, err)
	assert.False(t, rescan)
	assert.Equal(t, "Go 2", updated.Name)
	f.scans.AssertNotCalled(t, "RequestScan", mock.Anything)

	extra := t.TempDir()
	_, rescan, err = f.service.UpdateCourse(ctx, course.ID, CourseInput{Name: "Go 2", Path: dir, ExtraPaths: []string{extra}}, nil)
	require.NoError(t, err)
	assert.True(t, rescan)
	f.scans.AssertCalled(t, "RequestScan", course.ID)

	other := f.course(t, "Other")
	_, _, err = f.service.UpdateCourse(ctx, course.ID, CourseInput{Name: "Go 2", Path: other.Path}, nil)
	assert.ErrorIs(t, err, ErrDuplicatePath)

	_, _, err = f.service.UpdateCourse(ctx, 999, CourseInput{Name: "x", Path: dir}, nil)
	assert.ErrorIs(t, err, ErrCourseNotFound)
}

func TestUpdateCourse_ReplacesCoverFile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dir := t.TempDir()

	course, err := f.service.CreateCourse(ctx, CourseInput{Name: "Go", Path: dir},
		&CoverUpload{Reader: bytes.NewReader(pngBytes(t)), Name: "a.png"})
	require.NoError(t, err)
	oldCover := filepath.Join(f.storage.UploadDir, course.CoverFile)
	require.FileExists(t, oldCover)

	updated, _, err := f.service.UpdateCourse(ctx, course.ID, CourseInput{Name: "Go", Path: dir, CoverURL: "https://example.com/c.jpg"}, nil)
	require.NoError(t, err)
	assert.Empty(t, updated.CoverFile)
	assert.Equal(t, "https://example.com/c.jpg", updated.CoverURL)
	assert.NoFileExists(t, oldCover)
}

func TestToggleFavorite(t *testing.T) {
	f := newFixture(t)
	course := f.course(t, "Go")

	toggled, err := f.service.ToggleFavorite(context.Background(), course.ID)
	require.NoError(t, err)
	assert.True(t, toggled.IsFavorite)

	toggled, err = f.service.ToggleFavorite(context.Background(), course.ID)
	require.NoError(t, err)
	assert.False(t, toggled.IsFavorite)

	_, err = f.service.ToggleFavorite(context.Background(), 999)
	assert.ErrorIs(t, err, ErrCourseNotFound)
}

func TestListCourses_CompletionAndPagination(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.course(t, "First")
	f.course(t, "Second")
	third := f.course(t, "Third")

	f.lesson(t, first.ID, "a", true, true)
	f.lesson(t, first.ID, "b", true, true)
	f.lesson(t, first.ID, "c", true, false)
	f.lesson(t, first.ID, "d", true, false)
	f.lesson(t, first.ID, "gone", false, true)
	f.lesson(t, third.ID, "only", true, true)

	all, total, err := f.service.ListCourses(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, int64(3), total)
	assert.InDelta(t, 50.0, all[0].CompletionPercentage, 0.001)
	assert.Zero(t, all[1].CompletionPercentage)
	assert.InDelta(t, 100.0, all[2].CompletionPercentage, 0.001)

	page, total, err := f.service.ListCourses(ctx, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, page, 1)
	assert.Equal(t, third.ID, page[0].ID)

	pct, err := f.service.CompletionPercentage(ctx, first.ID)
	require.NoError(t, err)
	assert.InDelta(t, 50.0, pct, 0.001)
}

func TestDeleteCourse_ExportsNotesThenRemovesEverything(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.service.now = func() time.Time { return time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC) }

	course := f.course(t, "Go / Advanced Course")
	other := f.course(t, "Other")
	l1 := f.lesson(t, course.ID, "Intro", true, false)
	l2 := f.lesson(t, course.ID, "Old", false, false)
	kept := f.lesson(t, other.ID, "Keep", true, false)

	_, err := f.service.CreateNote(ctx, l1.ID, 12.5, "first")
	require.NoError(t, err)
	_, err = f.service.CreateNote(ctx, l2.ID, 3, "second")
	require.NoError(t, err)
	_, err = f.service.CreateNote(ctx, kept.ID, 1, "untouched")
	require.NoError(t, err)

	result, err := f.service.DeleteCourse(ctx, course.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.LessonsDeleted)
	assert.Equal(t, 2, result.NotesExported)

	expectedName := "notas_Go_-_Advanced_Course_" + idStr(course.ID) + "_20260314_092653.json"
	assert.Equal(t, filepath.Join(f.storage.ExportDir, expectedName), result.NotesExportPath)

	data, err := os.ReadFile(result.NotesExportPath)
	require.NoError(t, err)
	var export NotesExport
	require.NoError(t, json.Unmarshal(data, &export))
	assert.Equal(t, course.Name, export.CourseName)
	assert.Equal(t, course.Path, export.CoursePath)
	assert.Equal(t, 2, export.TotalNotes)
	require.Len(t, export.Notes, 2)
	assert.Equal(t, "Intro", export.Notes[0].LessonTitle)
	assert.Equal(t, "Module 1", export.Notes[0].LessonModule)
	assert.Equal(t, 12.5, export.Notes[0].Timestamp)
	assert.Equal(t, "Old", export.Notes[1].LessonTitle)

	var count int64
	f.db.Model(&database.Course{}).Where("id = ?", course.ID).Count(&count)
	assert.Zero(t, count)
	f.db.Model(&database.Lesson{}).Where("course_id = ?", course.ID).Count(&count)
	assert.Zero(t, count)
	f.db.Model(&database.Note{}).Count(&count)
	assert.Equal(t, int64(1), count, "notes of other courses survive")

	assert.Contains(t, f.bus.types(), events.EventCourseDeleted)

	_, err = f.service.DeleteCourse(ctx, course.ID)
	assert.ErrorIs(t, err, ErrCourseNotFound)
}

func TestDeleteCourse_WithoutNotesWritesNoExport(t *testing.T) {
	f := newFixture(t)
	course := f.course(t, "Plain")
	f.lesson(t, course.ID, "a", true, false)

	result, err := f.service.DeleteCourse(context.Background(), course.ID)
	require.NoError(t, err)
	assert.Zero(t, result.NotesExported)
	assert.Empty(t, result.NotesExportPath)
	assert.NoDirExists(t, f.storage.ExportDir)
}

func TestDeleteCourse_RemovesCoverFile(t *testing.T) {
	f := newFixture(t)
	course, err := f.service.CreateCourse(context.Background(), CourseInput{Name: "Go", Path: t.TempDir()},
		&CoverUpload{Reader: bytes.NewReader(pngBytes(t)), Name: "a.png"})
	require.NoError(t, err)
	cover := filepath.Join(f.storage.UploadDir, course.CoverFile)
	require.FileExists(t, cover)

	_, err = f.service.DeleteCourse(context.Background(), course.ID)
	require.NoError(t, err)
	assert.NoFileExists(t, cover)
}

func TestImportAll(t *testing.T) {
	f := newFixture(t)
	root := t.TempDir()
	mkdirs(t, root, "Alpha", "Beta", ".hidden", "Gamma/nested")
	require.NoError(t, os.WriteFile(filepath.Join(root, "readme.txt"), []byte("x"), 0644))

	existing := &database.Course{Name: "Alpha", Path: filepath.Join(root, "Alpha")}
	require.NoError(t, f.db.Create(existing).Error)

	added, err := f.service.ImportAll(context.Background(), root)
	require.NoError(t, err)
	require.Len(t, added, 2)
	assert.Equal(t, "Beta", added[0].Name)
	assert.Equal(t, filepath.Join(root, "Beta"), added[0].Path)
	assert.Equal(t, "Gamma", added[1].Name)
	f.scans.AssertNumberOfCalls(t, "RequestScan", 2)

	again, err := f.service.ImportAll(context.Background(), root)
	require.NoError(t, err)
	assert.Empty(t, again)

	_, err = f.service.ImportAll(context.Background(), filepath.Join(root, "missing"))
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestListLessons_SearchAndPagination(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	course := f.course(t, "Go")
	f.lesson(t, course.ID, "Intro to Channels", true, false)
	f.lesson(t, course.ID, "Goroutines", true, false)
	f.lesson(t, course.ID, "Buffered CHANNELS", true, false)
	f.lesson(t, course.ID, "Removed channels", false, false)

	lessons, total, err := f.service.ListLessons(ctx, course.ID, "channels", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, lessons, 2)
	assert.Equal(t, "Intro to Channels", lessons[0].Title)
	assert.Equal(t, "Buffered CHANNELS", lessons[1].Title)
	assert.Equal(t, "Go", lessons[0].CourseTitle)

	lessons, total, err = f.service.ListLessons(ctx, course.ID, "", 2, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, lessons, 1)
	assert.Equal(t, "Buffered CHANNELS", lessons[0].Title)

	_, _, err = f.service.ListLessons(ctx, 999, "", 0, 0)
	assert.ErrorIs(t, err, ErrCourseNotFound)
}

func TestUpdateLessonProgress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	course := f.course(t, "Go")
	lesson := f.lesson(t, course.ID, "Intro", true, false)

	status := database.ProgressInProgress
	elapsed := "125"
	updated, err := f.service.UpdateLessonProgress(ctx, LessonProgressUpdate{ID: lesson.ID, ProgressStatus: &status, TimeElapsed: &elapsed})
	require.NoError(t, err)
	assert.Equal(t, database.ProgressInProgress, updated.ProgressStatus)
	assert.Equal(t, "125", updated.TimeElapsed)
	assert.False(t, updated.IsCompleted)
	assert.Equal(t, lesson.VideoPath, updated.VideoPath)

	done := true
	updated, err = f.service.UpdateLessonProgress(ctx, LessonProgressUpdate{ID: lesson.ID, IsCompleted: &done})
	require.NoError(t, err)
	assert.True(t, updated.IsCompleted)
	assert.Equal(t, "125", updated.TimeElapsed)

	bogus := "halfway"
	_, err = f.service.UpdateLessonProgress(ctx, LessonProgressUpdate{ID: lesson.ID, ProgressStatus: &bogus})
	assert.ErrorIs(t, err, ErrInvalidProgress)

	_, err = f.service.UpdateLessonProgress(ctx, LessonProgressUpdate{ID: 999, IsCompleted: &done})
	assert.ErrorIs(t, err, ErrLessonNotFound)
}

func TestBatchUpdateLessons_AllOrNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	course := f.course(t, "Go")
	a := f.lesson(t, course.ID, "a", true, false)
	b := f.lesson(t, course.ID, "b", true, false)
	done := true

	_, err := f.service.BatchUpdateLessons(ctx, []LessonProgressUpdate{
		{ID: a.ID, IsCompleted: &done},
		{ID: 999, IsCompleted: &done},
	})
	require.ErrorIs(t, err, ErrLessonNotFound)

	var reloaded database.Lesson
	require.NoError(t, f.db.First(&reloaded, a.ID).Error)
	assert.False(t, reloaded.IsCompleted, "failed batch must roll back")

	n, err := f.service.BatchUpdateLessons(ctx, []LessonProgressUpdate{
		{ID: a.ID, IsCompleted: &done},
		{ID: b.ID, IsCompleted: &done},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	pct, err := f.service.CompletionPercentage(ctx, course.ID)
	require.NoError(t, err)
	assert.InDelta(t, 100.0, pct, 0.001)
}

func TestNotesLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	course := f.course(t, "Go")
	lesson := f.lesson(t, course.ID, "Intro", true, false)

	_, err := f.service.CreateNote(ctx, lesson.ID, 1, "   ")
	assert.ErrorIs(t, err, ErrNoteContentRequired)

	_, err = f.service.CreateNote(ctx, 999, 1, "orphan")
	assert.ErrorIs(t, err, ErrLessonNotFound)

	late, err := f.service.CreateNote(ctx, lesson.ID, 90, "later")
	require.NoError(t, err)
	early, err := f.service.CreateNote(ctx, lesson.ID, 5, " earlier ")
	require.NoError(t, err)
	assert.Equal(t, "earlier", early.Content)

	notes, err := f.service.ListNotes(ctx, lesson.ID)
	require.NoError(t, err)
	require.Len(t, notes, 2)
	assert.Equal(t, early.ID, notes[0].ID)
	assert.Equal(t, late.ID, notes[1].ID)

	updated, err := f.service.UpdateNote(ctx, late.ID, "edited")
	require.NoError(t, err)
	assert.Equal(t, "edited", updated.Content)
	assert.Equal(t, 90.0, updated.Timestamp)

	_, err = f.service.UpdateNote(ctx, late.ID, "")
	assert.ErrorIs(t, err, ErrNoteContentRequired)
	_, err = f.service.UpdateNote(ctx, 999, "x")
	assert.ErrorIs(t, err, ErrNoteNotFound)

	require.NoError(t, f.service.DeleteNote(ctx, late.ID))
	assert.ErrorIs(t, f.service.DeleteNote(ctx, late.ID), ErrNoteNotFound)

	notes, err = f.service.ListNotes(ctx, lesson.ID)
	require.NoError(t, err)
	assert.Len(t, notes, 1)
}

func TestAnnotatedLessons(t *testing.T) {
	f := newFixture(t)
	course := f.course(t, "Go")
	quiet := f.lesson(t, course.ID, "Quiet", true, false)
	busy := f.lesson(t, course.ID, "Busy", true, false)
	recent := f.lesson(t, course.ID, "Recent", true, false)
	hidden := f.lesson(t, course.ID, "Hidden", false, false)
	_ = quiet

	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	notes := []database.Note{
		{LessonID: busy.ID, Content: "1", CreatedAt: base},
		{LessonID: busy.ID, Content: "2", CreatedAt: base.Add(time.Minute)},
		{LessonID: recent.ID, Content: "3", CreatedAt: base.Add(time.Hour)},
		{LessonID: hidden.ID, Content: "4", CreatedAt: base.Add(2 * time.Hour)},
	}
	require.NoError(t, f.db.Create(&notes).Error)

	annotated, err := f.service.AnnotatedLessons(context.Background(), course.ID)
	require.NoError(t, err)
	require.Len(t, annotated, 2)
	assert.Equal(t, AnnotatedLesson{LessonID: recent.ID, Title: "Recent", Module: "Module 1", NoteCount: 1}, annotated[0])
	assert.Equal(t, busy.ID, annotated[1].LessonID)
	assert.Equal(t, int64(2), annotated[1].NoteCount)
}

func TestParseExtraPaths(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"empty", "  ", nil},
		{"json array", `["/a", " /b ", ""]`, []string{"/a", "/b"}},
		{"newline list", "/a\n\n  /b  \n", []string{"/a", "/b"}},
		{"single path", "/only", []string{"/only"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseExtraPaths(tt.raw)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExportFileName_TruncatesLongNames(t *testing.T) {
	name := ""
	for i := 0; i < 70; i++ {
		name += "é"
	}
	course := &database.Course{ID: 7, Name: name}
	got := exportFileName(course, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))

	want := "notas_"
	for i := 0; i < 50; i++ {
		want += "é"
	}
	assert.Equal(t, want+"_7_20260102_030405.json", got)
}

func TestCoverStore(t *testing.T) {
	storage := testStorage(t)

	t.Run("too large", func(t *testing.T) {
		cfg := storage
		cfg.MaxCoverSize = 16
		_, err := NewCoverStore(cfg).Save(bytes.NewReader(pngBytes(t)), "a.png")
		assert.ErrorIs(t, err, ErrCoverTooLarge)
	})

	t.Run("original format keeps bytes", func(t *testing.T) {
		cfg := storage
		cfg.CoverFormat = "original"
		store := NewCoverStore(cfg)
		data := pngBytes(t)

		name, err := store.Save(bytes.NewReader(data), "Cover.PNG")
		require.NoError(t, err)
		assert.Equal(t, ".png", filepath.Ext(name))

		stored, err := os.ReadFile(store.Path(name))
		require.NoError(t, err)
		assert.Equal(t, data, stored)

		require.NoError(t, store.Remove(name))
		assert.NoFileExists(t, store.Path(name))
		assert.NoError(t, store.Remove(name), "removing twice is not an error")
	})

	t.Run("path stays inside upload dir", func(t *testing.T) {
		store := NewCoverStore(storage)
		assert.Equal(t, filepath.Join(storage.UploadDir, "passwd"), store.Path("../../etc/passwd"))
	})
}

func idStr(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
