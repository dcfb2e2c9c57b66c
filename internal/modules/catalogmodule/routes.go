package catalogmodule

import "github.com/gin-gonic/gin"

// RegisterRoutes registers the catalog routes
func (m *Module) RegisterRoutes(router *gin.Engine) {
	h := m.handler

	courses := router.Group("/api/courses")
	{
		courses.GET("", h.ListCourses)
		courses.POST("", h.CreateCourse)
		courses.POST("/import-all", h.ImportAll)

		courses.GET("/:id", h.GetCourse)
		courses.PUT("/:id", h.UpdateCourse)
		courses.DELETE("/:id", h.DeleteCourse)
		courses.GET("/:id/favorite", h.GetFavorite)
		courses.PUT("/:id/favorite", h.ToggleFavorite)
		courses.GET("/:id/completion", h.CompletionPercentage)
		courses.GET("/:id/lessons", h.ListLessons)
		courses.GET("/:id/annotated-lessons", h.AnnotatedLessons)
		courses.GET("/:id/module-links", h.ListModuleLinks)
		courses.POST("/:id/module-links", h.CreateModuleLink)
	}

	lessons := router.Group("/api/lessons")
	{
		lessons.POST("/batch-update", h.BatchUpdateLessons)
		lessons.GET("/:id", h.GetLesson)
		lessons.PUT("/:id/progress", h.UpdateLessonProgress)
		lessons.GET("/:id/notes", h.ListNotes)
		lessons.POST("/:id/notes", h.CreateNote)
	}

	notes := router.Group("/api/notes")
	{
		notes.PUT("/:id", h.UpdateNote)
		notes.DELETE("/:id", h.DeleteNote)
	}

	links := router.Group("/api/module-links")
	{
		links.PUT("/:id", h.UpdateModuleLink)
		links.DELETE("/:id", h.DeleteModuleLink)
	}
	router.GET("/api/module-link-labels", h.ModuleLinkLabels)

	router.GET("/api/covers/:name", h.GetCover)
}
