package catalogmodule

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mantonx/coursevault/internal/database"
)

const exportNameLimit = 50

var exportNameReplacer = strings.NewReplacer(" ", "_", "/", "-", `\`, "-")

// exportFileName builds notas_<safe-name>_<id>_<timestamp>.json
func exportFileName(course *database.Course, now time.Time) string {
	safe := []rune(exportNameReplacer.Replace(course.Name))
	if len(safe) > exportNameLimit {
		safe = safe[:exportNameLimit]
	}
	return fmt.Sprintf("notas_%s_%d_%s.json", string(safe), course.ID, now.Format("20060102_150405"))
}

// buildNotesExport pairs each note with the lesson it belongs to
func buildNotesExport(course *database.Course, lessons []database.Lesson, notes []database.Note, now time.Time) NotesExport {
	byID := make(map[uint]*database.Lesson, len(lessons))
	for i := range lessons {
		byID[lessons[i].ID] = &lessons[i]
	}

	export := NotesExport{
		CourseName: course.Name,
		CoursePath: course.Path,
		ExportedAt: now,
		TotalNotes: len(notes),
		Notes:      make([]ExportedNote, 0, len(notes)),
	}
	for _, n := range notes {
		entry := ExportedNote{
			NoteID:    n.ID,
			Timestamp: n.Timestamp,
			Content:   n.Content,
			CreatedAt: n.CreatedAt,
		}
		if lesson, ok := byID[n.LessonID]; ok {
			entry.LessonTitle = lesson.Title
			entry.LessonModule = lesson.Module
			entry.HierarchyPath = lesson.HierarchyPath
		}
		export.Notes = append(export.Notes, entry)
	}
	return export
}

// writeNotesExport writes the backup and returns its path
func writeNotesExport(dir string, course *database.Course, export NotesExport) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode notes export: %w", err)
	}

	path := filepath.Join(dir, exportFileName(course, export.ExportedAt))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write notes export: %w", err)
	}
	return path, nil
}
