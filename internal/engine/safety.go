package engine

import (
	"context"
	"fmt"
	"math"

	"github.com/zulandar/padtest/internal/phase"
	"github.com/zulandar/padtest/internal/results"
	"github.com/zulandar/padtest/internal/solver"
)

// DefaultSafetySteps is the step budget of a safety phase.
const DefaultSafetySteps = 100

// SafetyOptions configures a strength reduction test.
type SafetyOptions struct {
	// From is the phase to reduce, construction by default.
	From string `yaml:"from" json:"from,omitempty"`
	// Target is the multiplier to reach; 0 runs to failure.
	Target      float64 `yaml:"target" json:"target,omitempty"`
	MaxSteps    int     `yaml:"max_steps" json:"max_steps,omitempty"`
	MaxAttempts int     `yaml:"max_attempts" json:"max_attempts,omitempty"`
}

// SafetyTest appends a strength reduction phase. Run to failure, the
// reported factor is the largest multiplier before the solver stopped.
// With a target, a phase that does not converge is rolled back and retried
// with twice the steps.
func (m *Model) SafetyTest(ctx context.Context, id string, opts SafetyOptions) (Outcome, error) {
	if opts.Target < 0 || (opts.Target > 0 && opts.Target <= 1) {
		return Outcome{}, fmt.Errorf("%w: safety target %g must exceed 1", ErrInvalidOptions, opts.Target)
	}
	from, err := m.beginTest(id, opts.From)
	if err != nil {
		return Outcome{}, err
	}
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = DefaultSafetySteps
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	entry := TestEntry{ID: id, Kind: phase.Safety, Safety: &opts}
	out := Outcome{Test: id, Kind: phase.Safety, Status: Complete}
	meta := results.Meta{Load: startLoad(from)}

	if opts.Target == 0 {
		p, err := m.create(ctx, phase.Phase{Name: id, Test: id, Previous: from.Name, Kind: phase.Safety},
			solver.PhaseSettings{Kind: solver.Safety, MaxSteps: opts.MaxSteps})
		if err != nil {
			return Outcome{}, m.abort(ctx, id, err)
		}
		st, err := m.calculate(ctx, p)
		if err != nil {
			return Outcome{}, m.abort(ctx, id, err)
		}
		recs, err := m.extract(ctx, p, meta)
		if err != nil {
			return Outcome{}, m.abort(ctx, id, err)
		}
		if len(recs) == 0 {
			return Outcome{}, m.abort(ctx, id, &PhaseError{Test: id, Phase: p.Name, Kind: p.Kind, Message: "no steps stored: " + st.Message})
		}
		// The search ends when the solver stops converging; the phase keeps
		// its records either way.
		status := phase.Failed
		if st.Converged {
			status = phase.Converged
		}
		if err := m.save(p, recs, status, st.Message); err != nil {
			return Outcome{}, m.abort(ctx, id, err)
		}
		out.Phases = []string{p.Name}
		out.SafetyFactor = peakMsf(recs)
		out.Reason = st.Message
		return m.finish(entry, out), nil
	}

	steps := opts.MaxSteps
	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		p, err := m.create(ctx, phase.Phase{Name: id, Test: id, Previous: from.Name, Kind: phase.Safety, Target: opts.Target},
			solver.PhaseSettings{Kind: solver.Safety, MaxSteps: steps, TargetMsf: opts.Target})
		if err != nil {
			return Outcome{}, m.abort(ctx, id, err)
		}
		st, err := m.calculate(ctx, p)
		if err != nil {
			return Outcome{}, m.abort(ctx, id, err)
		}
		if st.Converged {
			recs, err := m.collect(ctx, p, meta)
			if err != nil {
				return Outcome{}, m.abort(ctx, id, err)
			}
			out.Phases = []string{p.Name}
			out.SafetyFactor = peakMsf(recs)
			return m.finish(entry, out), nil
		}
		if err := m.discard(ctx, p); err != nil {
			return Outcome{}, m.abort(ctx, id, err)
		}
		out.Reason = st.Message
		steps *= 2
	}
	out.Status = Partial
	out.Reason = fmt.Sprintf("target %g not reached after %d attempts: %s", opts.Target, opts.MaxAttempts, out.Reason)
	return m.finish(entry, out), nil
}

func peakMsf(recs []results.Record) float64 {
	peak := 0.0
	for _, r := range recs {
		peak = math.Max(peak, r.SafetyFactor)
	}
	return peak
}
