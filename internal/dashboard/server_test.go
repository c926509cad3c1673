package dashboard

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"

	"github.com/zulandar/padtest/internal/config"
	"github.com/zulandar/padtest/internal/db"
	"github.com/zulandar/padtest/internal/engine"
	"github.com/zulandar/padtest/internal/geometry"
	"github.com/zulandar/padtest/internal/models"
	"github.com/zulandar/padtest/internal/solver/solvertest"
)

func TestStart_NilDB(t *testing.T) {
	err := Start(context.Background(), StartOpts{DB: nil})
	if err == nil {
		t.Fatal("expected error for nil db")
	}
	if !strings.Contains(err.Error(), "db is required") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "db is required")
	}
}

// setup stores one run over clay on sand with a two-increment load test
// and a safety test.
func setup(t *testing.T) (*gorm.DB, *models.Run, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gdb, err := db.Open(config.StoreConfig{Driver: config.DriverSQLite, Path: ":memory:"})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(gdb))

	spec := engine.Spec{
		Project:  engine.Project{Title: "pad"},
		Geometry: geometry.Spec{Kind: geometry.KindPlate, B: 2, D: 1, DStrata: []float64{5, 15}},
		Soil: []map[string]any{
			{"name": "clay", "gammaUnsat": 17, "E": 8000, "c": 20, "phi": 22},
			{"name": "sand", "gammaUnsat": 18, "E": 30000, "c": 1, "phi": 33},
		},
		Foundation: engine.Foundation{Params: map[string]any{"EA": 5e6, "EI": 8e4, "w": 9.6}},
	}
	m, err := engine.New(solvertest.New(), spec, engine.Options{}, zaptest.NewLogger(t))
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, m.Build(ctx))
	_, err = m.LoadTest(ctx, "lt", engine.LoadTestOptions{Loads: []float64{100, 200}})
	require.NoError(t, err)
	_, err = m.SafetyTest(ctx, "fos", engine.SafetyOptions{})
	require.NoError(t, err)

	run, err := db.SaveRun(gdb, m)
	require.NoError(t, err)
	return gdb, run, NewRouter(gdb, zaptest.NewLogger(t), 10*time.Millisecond)
}

func get(t *testing.T, router *gin.Engine, path string, out any) int {
	t.Helper()
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	if out != nil && w.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
	}
	return w.Code
}

func TestHealthz(t *testing.T) {
	_, _, router := setup(t)
	assert.Equal(t, http.StatusOK, get(t, router, "/healthz", nil))
}

func TestRuns(t *testing.T) {
	_, run, router := setup(t)

	var body struct {
		Runs []RunRow `json:"runs"`
	}
	require.Equal(t, http.StatusOK, get(t, router, "/api/runs", &body))
	require.Len(t, body.Runs, 1)
	got := body.Runs[0]
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, "pad", got.Title)
	assert.Equal(t, 2, got.Tests)
	assert.Positive(t, got.Rows)
	assert.NotEmpty(t, got.Age)
}

func TestRun_DetailAndSummary(t *testing.T) {
	_, run, router := setup(t)

	var body struct {
		Run     models.Run    `json:"run"`
		Summary []StatusCount `json:"summary"`
	}
	require.Equal(t, http.StatusOK, get(t, router, "/api/runs/"+run.ID, &body))
	assert.Len(t, body.Run.Tests, 2)
	assert.Equal(t, []StatusCount{
		{Kind: "load", Complete: 1, Total: 1},
		{Kind: "safety", Complete: 1, Total: 1},
	}, body.Summary)
}

func TestRun_NotFound(t *testing.T) {
	_, _, router := setup(t)
	assert.Equal(t, http.StatusNotFound, get(t, router, "/api/runs/missing", nil))
	assert.Equal(t, http.StatusNotFound, get(t, router, "/api/runs/missing/results", nil))
	assert.Equal(t, http.StatusNotFound, get(t, router, "/api/runs/missing/curve?test=lt", nil))
}

func TestResults_Filters(t *testing.T) {
	_, run, router := setup(t)

	var body struct {
		Rows  []models.ResultRow `json:"rows"`
		Count int                `json:"count"`
	}
	path := "/api/runs/" + run.ID + "/results?test=lt&location=top"
	require.Equal(t, http.StatusOK, get(t, router, path, &body))
	require.NotEmpty(t, body.Rows)
	assert.Equal(t, len(body.Rows), body.Count)
	for _, r := range body.Rows {
		assert.Equal(t, "lt", r.Test)
		assert.Equal(t, "top", r.Location)
	}

	require.Equal(t, http.StatusOK, get(t, router, path+"&limit=1", &body))
	assert.Len(t, body.Rows, 1)
}

func TestResults_BadQuery(t *testing.T) {
	_, run, router := setup(t)
	base := "/api/runs/" + run.ID + "/results"
	assert.Equal(t, http.StatusBadRequest, get(t, router, base+"?after=x", nil))
	assert.Equal(t, http.StatusBadRequest, get(t, router, base+"?limit=0", nil))
}

func TestCurve(t *testing.T) {
	_, run, router := setup(t)

	var body struct {
		Location string       `json:"location"`
		Points   []CurvePoint `json:"points"`
	}
	require.Equal(t, http.StatusOK, get(t, router, "/api/runs/"+run.ID+"/curve?test=lt", &body))
	assert.Equal(t, "top", body.Location)
	require.Len(t, body.Points, 3)
	assert.Equal(t, CurvePoint{}, body.Points[0])
	assert.Equal(t, "lt_stage_1", body.Points[2].Phase)
	assert.InDelta(t, 200, body.Points[2].Load, 1e-9)

	assert.Equal(t, http.StatusBadRequest, get(t, router, "/api/runs/"+run.ID+"/curve", nil))
}

func TestEvents_StreamsStoredAndNewRows(t *testing.T) {
	gdb, run, router := setup(t)
	srv := httptest.NewServer(router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/runs/"+run.ID+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	body := bufio.NewReader(resp.Body)
	events := readEvents(t, body, 2)
	assert.Equal(t, "connected", events[0].name)
	require.Equal(t, "rows", events[1].name)
	var first rowsEvent
	require.NoError(t, json.Unmarshal([]byte(events[1].data), &first))
	assert.NotEmpty(t, first.Rows)

	require.NoError(t, gdb.Create(&models.ResultRow{RunID: run.ID, Test: "lt", Phase: "lt_stage_2", Location: "top"}).Error)

	next := readEvents(t, body, 1)
	require.Equal(t, "rows", next[0].name)
	var second rowsEvent
	require.NoError(t, json.Unmarshal([]byte(next[0].data), &second))
	require.Len(t, second.Rows, 1)
	assert.Equal(t, "lt_stage_2", second.Rows[0].Phase)
	assert.Greater(t, second.LastID, first.LastID)
}

type event struct{ name, data string }

func readEvents(t *testing.T, r *bufio.Reader, n int) []event {
	t.Helper()
	var out []event
	var cur event
	for len(out) < n {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			cur.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			cur.data = strings.TrimPrefix(line, "data: ")
		case line == "" && cur.name != "":
			if cur.name != "heartbeat" {
				out = append(out, cur)
			}
			cur = event{}
		}
	}
	return out
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{30 * time.Second, "30s"},
		{5 * time.Minute, "5m"},
		{3*time.Hour + 15*time.Minute, "3h 15m"},
		{50 * time.Hour, "2d 2h"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestUnknownRoute_Returns404(t *testing.T) {
	_, _, router := setup(t)
	assert.Equal(t, http.StatusNotFound, get(t, router, "/nonexistent", nil))
}
