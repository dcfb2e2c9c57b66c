package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mantonx/coursevault/internal/events"
)

// setupRoutes registers the routes owned by the server itself. Module
// routes are added by the registry.
func (s *Server) setupRoutes(r *gin.Engine) {
	api := r.Group("/api")
	{
		api.GET("/health", s.getHealth)
		api.GET("/system/health", s.getSystemHealth)

		eventsGroup := api.Group("/events")
		{
			eventsGroup.GET("", s.getEvents)
			eventsGroup.GET("/stats", s.getEventStats)
		}
	}
}

func (s *Server) getHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "coursevault",
		"uptime":  time.Since(s.startedAt).Round(time.Second).String(),
	})
}

// getEvents handles GET /api/events
//
// Query parameters:
//   - type: event type filter, repeatable
//   - source: event source filter, repeatable
//   - limit, offset: paging over the recent events buffer
func (s *Server) getEvents(c *gin.Context) {
	filter := events.EventFilter{Sources: c.QueryArray("source")}
	for _, t := range c.QueryArray("type") {
		filter.Types = append(filter.Types, events.EventType(t))
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	list, total, err := s.eventBus.GetEvents(filter, max(limit, 0), max(offset, 0))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"events": list,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

func (s *Server) getEventStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.eventBus.GetStats())
}
