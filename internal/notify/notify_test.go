package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/zulandar/padtest/internal/engine"
	"github.com/zulandar/padtest/internal/models"
	"github.com/zulandar/padtest/internal/phase"
)

func TestFormatOutcome(t *testing.T) {
	evt := FormatOutcome("pad", engine.Outcome{
		Test: "lt", Kind: phase.Load, Status: engine.Complete,
		Phases: []string{"lt_stage_0", "lt_stage_1"}, Capacity: 300,
	})
	assert.Equal(t, "pad: load test lt complete", evt.Title)
	assert.Equal(t, "success", evt.Severity)
	assert.Equal(t, ColorSuccess, evt.Color)
	assert.Contains(t, evt.Body, "**Capacity**: 300 kN")
	assert.Contains(t, evt.Fields, Field{Name: "Phases", Value: "2", Short: true})
}

func TestFormatOutcome_PartialSafety(t *testing.T) {
	evt := FormatOutcome("pad", engine.Outcome{
		Test: "fos", Kind: phase.Safety, Status: engine.Partial,
		SafetyFactor: 1.25, Reason: "target 1.3 not reached",
	})
	assert.Equal(t, "warning", evt.Severity)
	assert.Equal(t, ColorWarning, evt.Color)
	assert.Contains(t, evt.Body, "**Safety factor**: 1.25")
	assert.Contains(t, evt.Body, "**Reason**: target 1.3 not reached")
}

func TestSeverityColor_Unknown(t *testing.T) {
	assert.Equal(t, ColorInfo, severityColor("bogus"))
	assert.Equal(t, ColorError, severityColor("error"))
}

func TestHub_OnTestPostsToEveryNotifier(t *testing.T) {
	slack, discord := NewMockNotifier("slack"), NewMockNotifier("discord")
	hub := NewHub("pad", zaptest.NewLogger(t), slack, discord)

	hub.OnTest(context.Background())(engine.Outcome{Test: "lt", Kind: phase.Load, Status: engine.Complete})

	for _, n := range []*MockNotifier{slack, discord} {
		sent := n.AllSent()
		require.Len(t, sent, 1, n.Name())
		assert.Equal(t, "pad: load test lt complete", sent[0].Text)
		require.Len(t, sent[0].Events, 1)
	}
}

func TestHub_SendJoinsErrors(t *testing.T) {
	bad, good := NewMockNotifier("slack"), NewMockNotifier("discord")
	bad.FailWith(errors.New("invalid_auth"))
	hub := NewHub("pad", nil, bad, good)

	err := hub.Send(context.Background(), Message{Text: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "slack: invalid_auth")
	assert.Len(t, good.AllSent(), 1)

	// The engine hook swallows delivery errors.
	hub.OnTest(context.Background())(engine.Outcome{Test: "lt"})
	assert.Len(t, good.AllSent(), 2)
}

func TestHub_Close(t *testing.T) {
	n := NewMockNotifier("slack")
	hub := NewHub("pad", nil, n)
	require.NoError(t, hub.Close())
	assert.True(t, n.Closed())
}

func TestHub_Empty(t *testing.T) {
	hub := NewHub("pad", nil)
	assert.Zero(t, hub.Len())
	hub.OnTest(context.Background())(engine.Outcome{Test: "lt"})
}

func TestParseSchedule(t *testing.T) {
	assert.NoError(t, ParseSchedule("0 8 * * 1-5"))
	assert.Error(t, ParseSchedule("every morning"))
	// Seconds fields are not accepted.
	assert.Error(t, ParseSchedule("0 0 8 * * *"))
}

func openTest(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&models.Run{}, &models.TestOutcome{}, &models.ResultRow{}))
	return db
}

func seed(t *testing.T, db *gorm.DB, id string, created time.Time, outcomes ...models.TestOutcome) {
	t.Helper()
	require.NoError(t, db.Create(&models.Run{ID: id, Title: id, CreatedAt: created, Geometry: datatypes.JSON("{}")}).Error)
	for _, o := range outcomes {
		o.RunID = id
		require.NoError(t, db.Create(&o).Error)
	}
}

func TestBuildDigest(t *testing.T) {
	db := openTest(t)
	base := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	seed(t, db, "old", base.Add(-48*time.Hour), models.TestOutcome{Test: "x", Kind: "load", Status: "complete"})
	seed(t, db, "a", base.Add(time.Hour),
		models.TestOutcome{Test: "lt", Kind: "load", Status: "complete", Capacity: 300},
		models.TestOutcome{Test: "fos", Kind: "safety", Status: "complete", SafetyFactor: 1.6},
	)
	seed(t, db, "b", base.Add(2*time.Hour),
		models.TestOutcome{Test: "fos", Kind: "safety", Status: "partial", SafetyFactor: 1.2},
	)

	d, err := BuildDigest(db, base, base.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, d.Runs)
	assert.Equal(t, 3, d.Tests)
	assert.Equal(t, 1, d.Partial)
	assert.Equal(t, 1.2, d.MinSafety)
	assert.Equal(t, []KindDigest{
		{Kind: "load", Tests: 1},
		{Kind: "safety", Tests: 2, Partial: 1},
	}, d.ByKind)

	evt := FormatDigest(d)
	assert.Equal(t, "Run Digest", evt.Title)
	assert.Equal(t, "warning", evt.Severity)
	assert.Contains(t, evt.Body, "**Lowest safety factor**: 1.2")
	assert.Contains(t, evt.Body, "safety: 2 tests, 1 partial")
}

func TestScheduler_Post(t *testing.T) {
	db := openTest(t)
	mock := NewMockNotifier("slack")
	s := NewScheduler(db, NewHub("pad", nil, mock), zaptest.NewLogger(t))
	start := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	s.last = start
	s.now = func() time.Time { return start.Add(time.Hour) }

	// Nothing stored yet: no post.
	require.NoError(t, s.Post(context.Background()))
	assert.Empty(t, mock.AllSent())

	seed(t, db, "a", start.Add(90*time.Minute), models.TestOutcome{Test: "lt", Kind: "load", Status: "complete"})
	s.now = func() time.Time { return start.Add(2 * time.Hour) }
	require.NoError(t, s.Post(context.Background()))
	sent := mock.AllSent()
	require.Len(t, sent, 1)
	assert.Equal(t, "Run Digest", sent[0].Events[0].Title)

	// The next period starts where the last one ended.
	s.now = func() time.Time { return start.Add(3 * time.Hour) }
	require.NoError(t, s.Post(context.Background()))
	assert.Len(t, mock.AllSent(), 1)
}

func TestScheduler_RunRejectsBadSchedule(t *testing.T) {
	s := NewScheduler(openTest(t), NewHub("pad", nil), nil)
	err := s.Run(context.Background(), "not a schedule")
	require.Error(t, err)
}

func TestScheduler_RunStopsOnCancel(t *testing.T) {
	s := NewScheduler(openTest(t), NewHub("pad", nil), nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, "0 8 * * *") }()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
