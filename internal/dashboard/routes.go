package dashboard

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/zulandar/padtest/internal/db"
	"github.com/zulandar/padtest/internal/results"
)

// maxRows caps one results page.
const maxRows = 5000

// registerRoutes sets up all API routes on the Gin router.
func registerRoutes(router *gin.Engine, gdb *gorm.DB, poll time.Duration) {
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.GET("/runs", handleRuns(gdb))
	api.GET("/runs/:id", handleRun(gdb))
	api.GET("/runs/:id/results", handleResults(gdb))
	api.GET("/runs/:id/curve", handleCurve(gdb))
	api.GET("/runs/:id/events", handleSSE(gdb, poll))
}

func handleRuns(gdb *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		runs, err := RunList(gdb, time.Now())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"runs": runs})
	}
}

func handleRun(gdb *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		run, err := db.GetRun(gdb, c.Param("id"))
		if err != nil {
			abortLookup(c, err)
			return
		}
		summary, err := StatusSummary(gdb, run.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"run":     run,
			"summary": summary,
		})
	}
}

func handleResults(gdb *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		f := db.RowFilter{
			Test:     c.Query("test"),
			Phase:    c.Query("phase"),
			Location: c.Query("location"),
			Kind:     c.Query("kind"),
			Limit:    maxRows,
		}
		if s := c.Query("after"); s != "" {
			after, err := strconv.ParseUint(s, 10, 64)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "after must be a row id"})
				return
			}
			f.AfterID = uint(after)
		}
		if s := c.Query("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
				return
			}
			f.Limit = min(n, maxRows)
		}
		run, err := db.GetRun(gdb, c.Param("id"))
		if err != nil {
			abortLookup(c, err)
			return
		}
		rows, err := db.LoadRows(gdb, run.ID, f)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"rows": rows, "count": len(rows)})
	}
}

func handleCurve(gdb *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		test := c.Query("test")
		if test == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "test is required"})
			return
		}
		location := c.DefaultQuery("location", results.Top)
		run, err := db.GetRun(gdb, c.Param("id"))
		if err != nil {
			abortLookup(c, err)
			return
		}
		points, err := Curve(gdb, run.ID, test, location)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"test": test, "location": location, "points": points})
	}
}

func abortLookup(c *gin.Context, err error) {
	if errors.Is(err, db.ErrRunNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
