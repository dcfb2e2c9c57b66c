package scanner

import (
	"github.com/mantonx/coursevault/internal/database"
)

// DonorResolver finds an existing lesson in another course backed by the
// same file, whose progress and notes seed a newly registered lesson.
type DonorResolver struct {
	repo LessonRepository
}

// NewDonorResolver creates a resolver over repo
func NewDonorResolver(repo LessonRepository) *DonorResolver {
	return &DonorResolver{repo: repo}
}

// FindDonor returns the lowest-id lesson outside excludeCourseID whose
// video or document path equals filePath, or nil.
func (d *DonorResolver) FindDonor(filePath string, excludeCourseID uint) (*database.Lesson, error) {
	return d.repo.FindByPathAcrossCourses(filePath, excludeCourseID)
}

// Transplant copies the donor's progress onto lesson. The duration is only
// taken when the donor has one; the returned flag reports whether the
// caller still has to probe.
func (d *DonorResolver) Transplant(donor, lesson *database.Lesson) (needsProbe bool) {
	lesson.ProgressStatus = donor.ProgressStatus
	lesson.IsCompleted = donor.IsCompleted
	lesson.TimeElapsed = donor.TimeElapsed
	lesson.Duration = donor.Duration
	return donor.Duration == ""
}

// CopyNotes clones the donor's notes onto the saved lesson
func (d *DonorResolver) CopyNotes(donor, lesson *database.Lesson) (int, error) {
	return d.repo.CloneNotes(donor.ID, lesson.ID)
}
