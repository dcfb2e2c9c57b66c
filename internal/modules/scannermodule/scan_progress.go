package scannermodule

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	apperrors "github.com/mantonx/coursevault/internal/errors"
)

const (
	progressPushInterval = 500 * time.Millisecond
	progressWriteTimeout = 10 * time.Second
)

var progressUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// getScanProgress handles GET /api/courses/:id/scan-progress. Courses
// never scanned by this process read as finished.
func (m *Module) getScanProgress(c *gin.Context) {
	courseID, ok := apperrors.ParseIDParam(c, "id")
	if !ok {
		return
	}

	c.JSON(http.StatusOK, m.Progress(courseID))
}

// streamScanProgress pushes a snapshot every half second and closes the
// socket once the pass is done.
func (m *Module) streamScanProgress(c *gin.Context) {
	courseID, ok := apperrors.ParseIDParam(c, "id")
	if !ok {
		return
	}

	conn, err := progressUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		m.logger.Debug("Progress stream upgrade failed", "course_id", courseID, "error", err)
		return
	}
	defer conn.Close()

	// Drain client frames so close messages are noticed
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(progressPushInterval)
	defer ticker.Stop()

	for {
		snapshot := m.Progress(courseID)
		conn.SetWriteDeadline(time.Now().Add(progressWriteTimeout))
		if err := conn.WriteJSON(snapshot); err != nil {
			return
		}
		if snapshot.Done && !m.IsScanning(courseID) {
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "scan finished"),
				time.Now().Add(time.Second))
			return
		}

		select {
		case <-ticker.C:
		case <-closed:
			return
		case <-c.Request.Context().Done():
			return
		}
	}
}
