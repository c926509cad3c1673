package dashboard

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/zulandar/padtest/internal/db"
	"github.com/zulandar/padtest/internal/models"
)

// rowsEvent holds the rows added to a run since the last event.
type rowsEvent struct {
	RunID  string             `json:"run_id"`
	LastID uint               `json:"last_id"`
	Rows   []models.ResultRow `json:"rows"`
}

// handleSSE streams the result rows of a run. Rows already stored are sent
// first, then new rows as they appear. ?after=<id> resumes a stream.
func handleSSE(gdb *gorm.DB, poll time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		runID := c.Param("id")
		var lastSeenID uint
		if s := c.Query("after"); s != "" {
			fmt.Sscanf(s, "%d", &lastSeenID)
		}

		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")

		writeSSE(c.Writer, "connected", map[string]string{"run_id": runID})
		c.Writer.Flush()

		send := func() bool {
			rows, err := db.LoadRows(gdb, runID, db.RowFilter{AfterID: lastSeenID, Limit: maxRows})
			if err != nil {
				writeSSE(c.Writer, "error", map[string]string{"error": err.Error()})
				c.Writer.Flush()
				return false
			}
			if len(rows) == 0 {
				return true
			}
			lastSeenID = rows[len(rows)-1].ID
			writeSSE(c.Writer, "rows", rowsEvent{RunID: runID, LastID: lastSeenID, Rows: rows})
			c.Writer.Flush()
			return true
		}
		if !send() {
			return
		}

		ctx := c.Request.Context()
		ticker := time.NewTicker(poll)
		heartbeat := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		defer heartbeat.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-heartbeat.C:
				writeSSE(c.Writer, "heartbeat", map[string]string{
					"timestamp": time.Now().UTC().Format(time.RFC3339),
				})
				c.Writer.Flush()
			case <-ticker.C:
				if !send() {
					return
				}
			}
		}
	}
}

// writeSSE writes a single SSE event to the writer.
func writeSSE(w io.Writer, event string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, string(jsonData))
}
