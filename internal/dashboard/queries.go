package dashboard

import (
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/zulandar/padtest/internal/db"
	"github.com/zulandar/padtest/internal/models"
)

// RunRow holds run data for the run list.
type RunRow struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	ModelType string    `json:"model_type"`
	Kind      string    `json:"kind"`
	Width     float64   `json:"width"`
	Depth     float64   `json:"depth"`
	Tests     int       `json:"tests"`
	Rows      int64     `json:"rows"`
	CreatedAt time.Time `json:"created_at"`
	Age       string    `json:"age"`
}

// RunList returns every run with its test and row counts.
func RunList(gdb *gorm.DB, now time.Time) ([]RunRow, error) {
	runs, err := db.ListRuns(gdb)
	if err != nil {
		return nil, err
	}
	tests, err := countBy(gdb, &models.TestOutcome{})
	if err != nil {
		return nil, err
	}
	rows, err := countBy(gdb, &models.ResultRow{})
	if err != nil {
		return nil, err
	}
	out := make([]RunRow, len(runs))
	for i, r := range runs {
		out[i] = RunRow{
			ID:        r.ID,
			Title:     r.Title,
			ModelType: r.ModelType,
			Kind:      r.Kind,
			Width:     r.Width,
			Depth:     r.Depth,
			Tests:     int(tests[r.ID]),
			Rows:      rows[r.ID],
			CreatedAt: r.CreatedAt,
			Age:       formatDuration(now.Sub(r.CreatedAt)),
		}
	}
	return out, nil
}

// countBy counts the rows of a table per run.
func countBy(gdb *gorm.DB, model any) (map[string]int64, error) {
	type row struct {
		RunID string
		Count int64
	}
	var rows []row
	if err := gdb.Model(model).
		Select("run_id, count(*) as count").
		Group("run_id").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("count per run: %w", err)
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.RunID] = r.Count
	}
	return out, nil
}

// StatusCount holds test counts by status for one kind.
type StatusCount struct {
	Kind     string `json:"kind"`
	Complete int    `json:"complete"`
	Partial  int    `json:"partial"`
	Total    int    `json:"total"`
}

// StatusSummary returns per-kind test counts grouped by status.
func StatusSummary(gdb *gorm.DB, runID string) ([]StatusCount, error) {
	type row struct {
		Kind   string
		Status string
		Count  int
	}
	var rows []row
	if err := gdb.Model(&models.TestOutcome{}).
		Select("kind, status, count(*) as count").
		Where("run_id = ?", runID).
		Group("kind, status").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	byKind := make(map[string]*StatusCount)
	for _, r := range rows {
		sc, ok := byKind[r.Kind]
		if !ok {
			sc = &StatusCount{Kind: r.Kind}
			byKind[r.Kind] = sc
		}
		switch r.Status {
		case "complete":
			sc.Complete += r.Count
		case "partial":
			sc.Partial += r.Count
		}
		sc.Total += r.Count
	}

	result := make([]StatusCount, 0, len(byKind))
	for _, sc := range byKind {
		result = append(result, *sc)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Kind < result[j].Kind })
	return result, nil
}

// CurvePoint is one point of a load-displacement curve.
type CurvePoint struct {
	Phase        string  `json:"phase"`
	Load         float64 `json:"load"`
	Displacement float64 `json:"displacement"`
}

// Curve returns the terminal point of each phase of a test at a location,
// starting from the origin.
func Curve(gdb *gorm.DB, runID, test, location string) ([]CurvePoint, error) {
	rows, err := db.LoadRows(gdb, runID, db.RowFilter{Test: test, Location: location})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	last := map[string]models.ResultRow{}
	var order []string
	for _, r := range rows {
		if _, ok := last[r.Phase]; !ok {
			order = append(order, r.Phase)
		}
		last[r.Phase] = r
	}
	out := []CurvePoint{{}}
	for _, p := range order {
		r := last[p]
		out = append(out, CurvePoint{Phase: p, Load: r.Force, Displacement: r.Displacement})
	}
	return out, nil
}

// formatDuration formats a duration as a human-readable string like "2h 15m".
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h >= 24 {
		days := h / 24
		h = h % 24
		return fmt.Sprintf("%dd %dh", days, h)
	}
	return fmt.Sprintf("%dh %dm", h, m)
}
