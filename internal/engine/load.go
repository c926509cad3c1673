package engine

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/zulandar/padtest/internal/geometry"
	"github.com/zulandar/padtest/internal/phase"
	"github.com/zulandar/padtest/internal/results"
	"github.com/zulandar/padtest/internal/solver"
)

// DefaultMaxAttempts bounds the consecutive non-convergences of one step.
const DefaultMaxAttempts = 2

// LoadTestOptions configures a load test.
type LoadTestOptions struct {
	// Loads are the total load magnitudes at the end of each phase. They
	// must be positive and strictly increasing.
	Loads     []float64 `yaml:"loads" json:"loads"`
	Direction Direction `yaml:"direction" json:"direction"`
	// From is the phase the test starts from, construction by default.
	From string `yaml:"from" json:"from,omitempty"`
	// MaxAttempts bounds the attempts per increment.
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts,omitempty"`
	// Reduction, when in (0, 1), retries a failed increment at
	// prev + (target - prev) * Reduction instead of the same load.
	Reduction float64 `yaml:"reduction" json:"reduction,omitempty"`
}

func validateIncrements(loads []float64) error {
	if len(loads) == 0 {
		return fmt.Errorf("%w: no loads", ErrInvalidIncrements)
	}
	prev := 0.0
	for i, l := range loads {
		if l <= prev {
			return fmt.Errorf("%w: load %d (%g) after %g", ErrInvalidIncrements, i+1, l, prev)
		}
		prev = l
	}
	return nil
}

// loadRun carries the state shared by the phases of one load or failure
// test.
type loadRun struct {
	test      string
	kind      phase.Kind
	sign      float64
	prev      *phase.Phase
	prevLoad  float64
	ratchet   bool
	ratcheted bool
	phases    []string
}

// LoadTest applies the loads one phase each. A phase that does not converge
// is rolled back and retried; when the attempts run out the test ends as
// Partial and keeps the converged phases.
func (m *Model) LoadTest(ctx context.Context, id string, opts LoadTestOptions) (Outcome, error) {
	if err := validateIncrements(opts.Loads); err != nil {
		return Outcome{}, err
	}
	if opts.Reduction < 0 || opts.Reduction >= 1 {
		return Outcome{}, fmt.Errorf("%w: reduction %g", ErrInvalidOptions, opts.Reduction)
	}
	sign, err := opts.Direction.sign()
	if err != nil {
		return Outcome{}, err
	}
	from, err := m.beginTest(id, opts.From)
	if err != nil {
		return Outcome{}, err
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}

	run := &loadRun{test: id, kind: phase.Load, sign: sign, prev: from, prevLoad: startLoad(from)}
	out := Outcome{Test: id, Kind: phase.Load, Status: Complete}
	entry := TestEntry{ID: id, Kind: phase.Load, Load: &opts}

	for i, target := range opts.Loads {
		load := target
		converged := false
		for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
			ok, st, _, err := m.loadPhase(ctx, run, stageName(id, i), load)
			if err != nil {
				return Outcome{}, m.abort(ctx, id, err)
			}
			if ok {
				converged = true
				break
			}
			out.Reason = st.Message
			if opts.Reduction > 0 {
				load = run.prevLoad + (load-run.prevLoad)*opts.Reduction
			}
		}
		if !converged {
			out.Status = Partial
			out.Reason = fmt.Sprintf("load %g did not converge after %d attempts: %s", target, opts.MaxAttempts, out.Reason)
			break
		}
	}
	out.Phases = run.phases
	out.Capacity = run.prevLoad
	if out.Status == Complete {
		out.Reason = ""
	}
	return m.finish(entry, out), nil
}

// startLoad returns the load in effect at the end of a phase.
func startLoad(p *phase.Phase) float64 {
	if p.Kind == phase.Load || p.Kind == phase.Failure {
		return p.Target
	}
	return 0
}

// loadPhase creates, calculates and records one load phase. On
// non-convergence the phase is rolled back and ok is false.
func (m *Model) loadPhase(ctx context.Context, run *loadRun, name string, load float64) (ok bool, st solver.Status, recs []results.Record, err error) {
	p, err := m.create(ctx, phase.Phase{
		Name:     name,
		Test:     run.test,
		Previous: run.prev.Name,
		Kind:     run.kind,
		Target:   load,
	}, solver.PhaseSettings{Kind: solver.Plastic})
	if err != nil {
		return false, st, nil, err
	}
	if err := m.applyLoad(ctx, p.SolverID, load*run.sign); err != nil {
		return false, st, nil, &PhaseError{Test: run.test, Phase: name, Kind: run.kind, Err: err}
	}
	applied := false
	if run.ratchet {
		if !run.ratcheted {
			if err := m.applyRatchetting(ctx, p.SolverID); err != nil {
				return false, st, nil, &PhaseError{Test: run.test, Phase: name, Kind: run.kind, Err: err}
			}
			run.ratcheted, applied = true, true
		}
		p.Ratchetting = true
	}

	st, err = m.calculate(ctx, p)
	if err != nil {
		return false, st, nil, err
	}
	if !st.Converged {
		if applied {
			run.ratcheted = false
		}
		return false, st, nil, m.discard(ctx, p)
	}

	recs, err = m.extract(ctx, p, results.Meta{Load: load, Direction: run.sign})
	if err != nil {
		return false, st, nil, err
	}
	if !run.ratchet && m.ratchetting(recs) {
		run.ratchet = true
		for i := range recs {
			recs[i].Ratchetting = true
		}
		m.log.Info("ratchetting detected", zap.String("test", run.test), zap.String("phase", name))
	}
	if err := m.save(p, recs, phase.Converged, st.Message); err != nil {
		return false, st, nil, err
	}
	run.prev = p
	run.prevLoad = load
	run.phases = append(run.phases, name)
	return true, st, recs, nil
}

// applyLoad activates the load in a phase and sets its solver value.
func (m *Model) applyLoad(ctx context.Context, ph solver.ID, total float64) error {
	if err := m.solver.SetActive(ctx, ph, m.load, true); err != nil {
		return fmt.Errorf("activate load: %w", err)
	}
	if err := m.solver.SetLoad(ctx, ph, m.load, total*m.loadScale()); err != nil {
		return fmt.Errorf("set load: %w", err)
	}
	return nil
}

// ratchetting reports whether the settlement under the base reached the
// threshold. The load point is not under the base and is skipped.
func (m *Model) ratchetting(recs []results.Record) bool {
	if m.ratchet == nil || m.spec.RatchettingThreshold <= 0 {
		return false
	}
	settlement := 0.0
	for _, r := range recs {
		if r.Location == results.Top {
			continue
		}
		if r.Uy < 0 {
			settlement = math.Max(settlement, -r.Uy)
		}
	}
	return settlement >= m.spec.RatchettingThreshold
}

// applyRatchetting switches the ratchetting zone to its material.
func (m *Model) applyRatchetting(ctx context.Context, ph solver.ID) error {
	for _, i := range m.geom.PolygonsWith(geometry.RoleRatchetting) {
		if err := m.solver.AssignMaterial(ctx, ph, m.polygons[i], m.ratchetID); err != nil {
			return fmt.Errorf("assign ratchetting material to polygon %d: %w", i, err)
		}
	}
	return nil
}

// StopRule ends an open-ended failure test. Each non-zero field is a
// criterion; the test stops at the first one met.
type StopRule struct {
	// MaxFailures is the number of consecutive non-convergences. Every
	// retry bisects toward the last converged load.
	MaxFailures int `yaml:"max_failures" json:"max_failures"`
	// PlateauRatio stops when the secant stiffness of an increment drops
	// below this fraction of the first increment's.
	PlateauRatio float64 `yaml:"plateau_ratio" json:"plateau_ratio"`
	// MaxDisplacement caps the displacement of the load point, measured
	// from the start phase.
	MaxDisplacement float64 `yaml:"max_displacement" json:"max_displacement"`
	// MaxPhases bounds the number of phases tried.
	MaxPhases int `yaml:"max_phases" json:"max_phases"`
}

// DefaultStopRule returns the rule used when none is given. The
// displacement cap is a tenth of the foundation width.
func DefaultStopRule(b float64) StopRule {
	return StopRule{MaxFailures: 2, PlateauRatio: 0.02, MaxDisplacement: 0.1 * b, MaxPhases: 50}
}

// FailureTestOptions configures a failure test. The load grows as
// load = LoadFactor*load + LoadIncrement.
type FailureTestOptions struct {
	Direction     Direction `yaml:"direction" json:"direction"`
	StartLoad     float64   `yaml:"start_load" json:"start_load"`
	LoadFactor    float64   `yaml:"load_factor" json:"load_factor"`
	LoadIncrement float64   `yaml:"load_increment" json:"load_increment"`
	// MaxLoad caps the load; 0 leaves it open.
	MaxLoad float64   `yaml:"max_load" json:"max_load,omitempty"`
	From    string    `yaml:"from" json:"from,omitempty"`
	Stop    *StopRule `yaml:"stop" json:"stop,omitempty"`
}

func (o *FailureTestOptions) applyDefaults(b float64) {
	if o.StartLoad == 0 {
		o.StartLoad = 50
	}
	if o.LoadFactor == 0 {
		o.LoadFactor = 2
	}
	if o.Stop == nil {
		r := DefaultStopRule(b)
		o.Stop = &r
	}
	if o.Stop.MaxPhases <= 0 {
		o.Stop.MaxPhases = 50
	}
}

func (o *FailureTestOptions) validate() error {
	if o.StartLoad < 0 || o.LoadIncrement < 0 || o.MaxLoad < 0 {
		return fmt.Errorf("%w: negative load", ErrInvalidIncrements)
	}
	if o.LoadFactor < 1 || (o.LoadFactor == 1 && o.LoadIncrement == 0) {
		return fmt.Errorf("%w: factor %g and increment %g do not increase the load", ErrInvalidIncrements, o.LoadFactor, o.LoadIncrement)
	}
	return nil
}

// FailureTest raises the load until the stop rule is met. The last
// converged phase gives the capacity.
func (m *Model) FailureTest(ctx context.Context, id string, opts FailureTestOptions) (Outcome, error) {
	opts.applyDefaults(m.geom.B)
	if err := opts.validate(); err != nil {
		return Outcome{}, err
	}
	sign, err := opts.Direction.sign()
	if err != nil {
		return Outcome{}, err
	}
	from, err := m.beginTest(id, opts.From)
	if err != nil {
		return Outcome{}, err
	}
	rule := *opts.Stop
	run := &loadRun{test: id, kind: phase.Failure, sign: sign, prev: from, prevLoad: startLoad(from)}
	out := Outcome{Test: id, Kind: phase.Failure, Status: Complete}
	entry := TestEntry{ID: id, Kind: phase.Failure, Failure: &opts}

	base := m.uyAt(from.Name) * sign
	lastDisp := base
	k0 := 0.0
	failures := 0
	load := opts.StartLoad
	if load <= run.prevLoad {
		load = opts.LoadFactor*run.prevLoad + opts.LoadIncrement
	}

	for n := 0; n < rule.MaxPhases; n++ {
		if opts.MaxLoad > 0 && load > opts.MaxLoad {
			if run.prevLoad >= opts.MaxLoad {
				out.Reason = fmt.Sprintf("maximum load %g reached", opts.MaxLoad)
				break
			}
			load = opts.MaxLoad
		}
		before := run.prevLoad
		ok, st, recs, err := m.loadPhase(ctx, run, stageName(id, len(run.phases)), load)
		if err != nil {
			return Outcome{}, m.abort(ctx, id, err)
		}
		if !ok {
			failures++
			out.Reason = st.Message
			if rule.MaxFailures > 0 && failures >= rule.MaxFailures {
				out.Reason = fmt.Sprintf("%d consecutive non-convergences: %s", failures, st.Message)
				break
			}
			load = run.prevLoad + (load-run.prevLoad)/2
			continue
		}
		failures = 0
		r, _ := terminal(recs, results.Top)
		disp := r.Displacement
		if dd := disp - lastDisp; dd > 0 {
			k := (load - before) / dd
			if k0 == 0 {
				k0 = k
			} else if rule.PlateauRatio > 0 && k < rule.PlateauRatio*k0 {
				out.Reason = fmt.Sprintf("plateau: stiffness %g below %g of initial %g", k, rule.PlateauRatio, k0)
				break
			}
		}
		lastDisp = disp
		if rule.MaxDisplacement > 0 && disp-base >= rule.MaxDisplacement {
			out.Reason = fmt.Sprintf("displacement %g reached the cap %g", disp-base, rule.MaxDisplacement)
			break
		}
		load = opts.LoadFactor*load + opts.LoadIncrement
		if n == rule.MaxPhases-1 {
			out.Reason = fmt.Sprintf("%d phases tried", rule.MaxPhases)
		}
	}

	out.Phases = run.phases
	out.Capacity = run.prevLoad
	if len(run.phases) == 0 {
		out.Status = Partial
		out.Capacity = 0
	}
	return m.finish(entry, out), nil
}

// uyAt returns the vertical displacement of the load point at the end of a
// phase.
func (m *Model) uyAt(name string) float64 {
	rows := m.records.Snapshot().Table(results.Filter{Phase: name, Location: results.Top})
	if len(rows) == 0 {
		return 0
	}
	return rows[len(rows)-1].Uy
}
