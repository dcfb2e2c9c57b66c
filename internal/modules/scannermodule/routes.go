package scannermodule

import (
	"errors"
	"net/http"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mantonx/coursevault/internal/database"
	apperrors "github.com/mantonx/coursevault/internal/errors"
	"gorm.io/gorm"
)

// RegisterRoutes registers the scanner module routes
func (m *Module) RegisterRoutes(router *gin.Engine) {
	courses := router.Group("/api/courses")
	{
		courses.POST("/:id/rescan", m.rescanCourse)
		courses.GET("/:id/scan-progress", m.getScanProgress)
		courses.GET("/:id/scan-progress/ws", m.streamScanProgress)
	}

	router.GET("/api/scanner/status", m.getStatus)
}

// rescanCourse queues a reconciliation pass and answers 202
func (m *Module) rescanCourse(c *gin.Context) {
	courseID, ok := apperrors.ParseIDParam(c, "id")
	if !ok {
		return
	}

	var course database.Course
	if err := m.db.WithContext(c.Request.Context()).First(&course, courseID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			apperrors.HandleNotFound(c, "Course", strconv.FormatUint(uint64(courseID), 10))
			return
		}
		apperrors.HandleDatabaseError(c, "load course", err)
		return
	}
	if info, err := os.Stat(course.Path); err != nil || !info.IsDir() {
		apperrors.HandleValidationError(c, "Course path does not exist: "+course.Path, "path")
		return
	}

	switch err := m.Rescan(courseID); {
	case err == nil:
		c.JSON(http.StatusAccepted, gin.H{
			"status":    "scan_started",
			"course_id": courseID,
		})
	case errors.Is(err, ErrScanInProgress):
		c.JSON(http.StatusConflict, gin.H{
			"status":    "already_scanning",
			"course_id": courseID,
			"error":     "A scan is already in progress for this course",
			"code":      "CONFLICT",
		})
	case errors.Is(err, ErrScannerStopped):
		apperrors.NewUnavailableError("Scanner is not accepting scans", err).ToGinResponse(c)
	default:
		apperrors.HandleInternalError(c, "Failed to queue scan", err)
	}
}

// getStatus lists running passes, worker pool stats and watched courses
func (m *Module) getStatus(c *gin.Context) {
	status := m.Status()
	status["scanner_id"] = m.ID()
	status["scanner_name"] = m.Name()
	c.JSON(http.StatusOK, status)
}
