package results

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zulandar/padtest/internal/geometry"
	"github.com/zulandar/padtest/internal/phase"
	"github.com/zulandar/padtest/internal/solver"
	"github.com/zulandar/padtest/internal/solver/solvertest"
)

type fixture struct {
	fake    *solvertest.Fake
	initial solver.ID
	load    solver.ID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	f := solvertest.New()
	require.NoError(t, f.NewProject(ctx, solver.Project{Title: "results"}))
	for _, n := range []string{Top, "0", "1"} {
		require.NoError(t, f.AddOutputPoint(ctx, geometry.OutputPoint{Name: n}))
	}
	load, err := f.AddLoad(ctx, geometry.Load{Kind: geometry.PointLoad})
	require.NoError(t, err)
	initial, err := f.InitialPhase(ctx)
	require.NoError(t, err)
	return &fixture{fake: f, initial: initial, load: load}
}

func (fx *fixture) phase(t *testing.T, parent solver.ID, s solver.PhaseSettings, load float64) solver.ID {
	t.Helper()
	ctx := context.Background()
	id, err := fx.fake.CreatePhase(ctx, parent, s)
	require.NoError(t, err)
	if load != 0 {
		require.NoError(t, fx.fake.SetLoad(ctx, id, fx.load, load))
	}
	_, err = fx.fake.Calculate(ctx, id)
	require.NoError(t, err)
	return id
}

func TestExtract_LoadPhaseTerminalStep(t *testing.T) {
	fx := newFixture(t)
	id := fx.phase(t, fx.initial, solver.PhaseSettings{Name: "load_1", Kind: solver.Plastic}, -50)

	e := &Extractor{Solver: fx.fake}
	recs, err := e.Extract(context.Background(), Meta{
		Test: "lt", Phase: "load_1", Kind: phase.Load, Seq: 3, SolverID: id,
		Load: 100, Share: 0.5, Direction: -1, Area: 2,
		Locations: []string{Top, "0", "1"},
	})
	require.NoError(t, err)
	require.Len(t, recs, 3)

	r := recs[0]
	assert.Equal(t, Top, r.Location)
	assert.Equal(t, 4, r.Step)
	assert.InDelta(t, 100, r.Force, 1e-9)
	assert.InDelta(t, 50, r.Stress, 1e-9)
	assert.InDelta(t, 0.005, r.Displacement, 1e-12)
	assert.InDelta(t, 1, r.SumMstage, 1e-12)
}

func TestExtract_SafetyPeak(t *testing.T) {
	fx := newFixture(t)
	fx.fake.SafetyPeak = 1.5
	id := fx.phase(t, fx.initial, solver.PhaseSettings{Name: "sf", Kind: solver.Safety}, 0)

	e := &Extractor{Solver: fx.fake}
	recs, err := e.Extract(context.Background(), Meta{
		Test: "sf", Phase: "sf", Kind: phase.Safety, SolverID: id, Locations: []string{Top},
	})
	require.NoError(t, err)
	require.Len(t, recs, 5)
	last := recs[len(recs)-1]
	assert.InDelta(t, 1.5, last.SafetyFactor, 1e-9)
	assert.InDelta(t, 1.1, recs[0].SafetyFactor, 1e-9)
}

func TestExtract_DynamicPerStep(t *testing.T) {
	fx := newFixture(t)
	id := fx.phase(t, fx.initial, solver.PhaseSettings{
		Name: "dyn", Kind: solver.Dynamic, Duration: 1, SubSteps: 2,
		History: []solver.Sample{{Time: 0, Acceleration: 0}, {Time: 0.5, Acceleration: 1}, {Time: 1, Acceleration: 0}},
	}, 0)

	e := &Extractor{Solver: fx.fake}
	recs, err := e.Extract(context.Background(), Meta{
		Test: "dyn", Phase: "dyn", Kind: phase.Dynamic, SolverID: id, Locations: []string{Top},
	})
	require.NoError(t, err)
	require.Len(t, recs, 6)
	assert.InDelta(t, 0.5, recs[2].Time, 1e-12)
	assert.InDelta(t, 1, recs[2].Acceleration, 1e-12)
}

func TestExtract_MissingPhase(t *testing.T) {
	fx := newFixture(t)
	e := &Extractor{Solver: fx.fake}
	_, err := e.Extract(context.Background(), Meta{Phase: "gone", SolverID: "phase_99"})
	assert.ErrorIs(t, err, solver.ErrNotFound)
}

func rec(test, ph string, seq, step int, loc string) Record {
	return Record{Test: test, Phase: ph, Seq: seq, Step: step, Location: loc, Kind: phase.Load}
}

func TestStore_AddRejectsDuplicates(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Add(rec("a", "p1", 1, 1, Top)))

	err := s.Add(rec("a", "p2", 2, 1, Top), rec("a", "p1", 1, 1, Top))
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.Equal(t, 1, s.Len(), "batch with a duplicate is not added")

	err = s.Add(rec("a", "p3", 3, 1, Top), rec("a", "p3", 3, 1, Top))
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestStore_DeleteLeavesOtherTests(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Add(
		rec("a", "a1", 1, 1, Top), rec("a", "a2", 2, 1, Top),
		rec("b", "b1", 3, 1, Top), rec("b", "b2", 4, 1, Top),
	))
	assert.Equal(t, 1, s.DeletePhases("a2"))
	assert.Equal(t, 2, s.DeleteTest("b"))

	snap := s.Snapshot()
	require.Equal(t, 1, snap.Len())
	assert.Equal(t, "a1", snap.Table(Filter{})[0].Phase)

	// Keys are released with their records.
	require.NoError(t, s.Add(rec("b", "b1", 3, 1, Top)))
}

func TestSnapshot_OrderAndFilter(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Add(rec("a", "p2", 2, 2, Top), rec("a", "p2", 2, 1, Top)))
	require.NoError(t, s.Add(rec("a", "p1", 1, 4, Top), rec("a", "p1", 1, 4, "0")))
	snap := s.Snapshot()

	rows := snap.Table(Filter{Location: Top})
	require.Len(t, rows, 3)
	assert.Equal(t, "p1", rows[0].Phase)
	assert.Equal(t, 1, rows[1].Step)
	assert.Equal(t, 2, rows[2].Step)

	assert.Len(t, snap.Table(Filter{Kinds: []phase.Kind{phase.Safety}}), 0)
	assert.Equal(t, []string{"a"}, snap.Tests())

	// Later writes do not leak into the snapshot.
	require.NoError(t, s.Add(rec("a", "p3", 3, 1, Top)))
	assert.Equal(t, 4, snap.Len())
}

func TestSnapshot_Curve(t *testing.T) {
	s := NewStore()
	for i, load := range []float64{100, 200} {
		r := rec("lt", []string{"l1", "l2"}[i], i+1, 4, Top)
		r.Force = load
		r.Displacement = load / 10000
		require.NoError(t, s.Add(r))
	}
	c := s.Snapshot().Curve("lt", Top)
	require.Len(t, c, 3)
	assert.Equal(t, Point{}, c[0])
	assert.Equal(t, 200.0, c[2].Load)
	assert.Nil(t, s.Snapshot().Curve("lt", "1"))
}

func TestStore_ConcurrentReaders(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.Add(rec("a", "p", 1, i, Top))
			_ = s.Snapshot().Table(Filter{Test: "a"})
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 8, s.Len())
}
