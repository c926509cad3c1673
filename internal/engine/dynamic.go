package engine

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/zulandar/padtest/internal/phase"
	"github.com/zulandar/padtest/internal/results"
	"github.com/zulandar/padtest/internal/solver"
)

// DefaultSubSteps is the number of calculation steps per history sample.
const DefaultSubSteps = 10

// DampingTarget is a damping ratio to hit at a frequency.
type DampingTarget struct {
	Frequency float64 `yaml:"frequency" json:"frequency"`
	Ratio     float64 `yaml:"ratio" json:"ratio"`
}

// Damping gives the Rayleigh coefficients directly or through two targets.
type Damping struct {
	Alpha   float64         `yaml:"alpha" json:"alpha,omitempty"`
	Beta    float64         `yaml:"beta" json:"beta,omitempty"`
	Targets []DampingTarget `yaml:"targets" json:"targets,omitempty"`
}

// Coefficients returns alpha and beta.
func (d Damping) Coefficients() (alpha, beta float64, err error) {
	switch len(d.Targets) {
	case 0:
		if d.Alpha < 0 || d.Beta < 0 {
			return 0, 0, fmt.Errorf("%w: negative Rayleigh coefficient", ErrInvalidOptions)
		}
		return d.Alpha, d.Beta, nil
	case 2:
		t1, t2 := d.Targets[0], d.Targets[1]
		return RayleighFromTargets(t1.Frequency, t1.Ratio, t2.Frequency, t2.Ratio)
	}
	return 0, 0, fmt.Errorf("%w: Rayleigh damping needs two targets, got %d", ErrInvalidOptions, len(d.Targets))
}

// RayleighFromTargets solves for the coefficients that give ratio xi1 at
// frequency f1 and xi2 at f2 (Hz), with xi(w) = alpha/(2w) + beta*w/2.
func RayleighFromTargets(f1, xi1, f2, xi2 float64) (alpha, beta float64, err error) {
	if f1 <= 0 || f2 <= 0 || f1 == f2 {
		return 0, 0, fmt.Errorf("%w: target frequencies %g and %g", ErrInvalidOptions, f1, f2)
	}
	w1, w2 := 2*math.Pi*f1, 2*math.Pi*f2
	a := mat.NewDense(2, 2, []float64{
		1 / (2 * w1), w1 / 2,
		1 / (2 * w2), w2 / 2,
	})
	b := mat.NewVecDense(2, []float64{xi1, xi2})
	var x mat.VecDense
	if err := x.SolveVec(a, b); err != nil {
		return 0, 0, fmt.Errorf("engine: solve Rayleigh coefficients: %w", err)
	}
	return x.AtVec(0), x.AtVec(1), nil
}

// DampingRatio evaluates the Rayleigh damping ratio at frequency f (Hz).
func DampingRatio(alpha, beta, f float64) float64 {
	w := 2 * math.Pi * f
	return alpha/(2*w) + beta*w/2
}

// DynamicOptions configures a dynamic or shake test.
type DynamicOptions struct {
	From    string          `yaml:"from" json:"from,omitempty"`
	History []solver.Sample `yaml:"history" json:"history"`
	// Duration defaults to the time of the last sample.
	Duration    float64 `yaml:"duration" json:"duration,omitempty"`
	SubSteps    int     `yaml:"sub_steps" json:"sub_steps,omitempty"`
	Damping     Damping `yaml:"damping" json:"damping"`
	MaxAttempts int     `yaml:"max_attempts" json:"max_attempts,omitempty"`
}

func (o *DynamicOptions) validate() error {
	if len(o.History) < 2 {
		return fmt.Errorf("%w: acceleration history needs two samples", ErrInvalidOptions)
	}
	for i := 1; i < len(o.History); i++ {
		if o.History[i].Time <= o.History[i-1].Time {
			return fmt.Errorf("%w: history time %g not after %g", ErrInvalidOptions, o.History[i].Time, o.History[i-1].Time)
		}
	}
	if o.Duration < 0 || o.SubSteps < 0 {
		return fmt.Errorf("%w: negative duration or sub-steps", ErrInvalidOptions)
	}
	return nil
}

// DynamicTest applies a base acceleration history with Rayleigh damping.
// A phase that does not converge is rolled back and retried with twice
// the sub-steps.
func (m *Model) DynamicTest(ctx context.Context, id string, opts DynamicOptions) (Outcome, error) {
	alpha, beta, err := opts.Damping.Coefficients()
	if err != nil {
		return Outcome{}, err
	}
	return m.timeHistory(ctx, id, phase.Dynamic, opts, solver.Viscous, alpha, beta)
}

// ShakeTest applies a base acceleration history with compliant lateral
// boundaries and no Rayleigh damping.
func (m *Model) ShakeTest(ctx context.Context, id string, opts DynamicOptions) (Outcome, error) {
	if opts.Damping.Alpha != 0 || opts.Damping.Beta != 0 || len(opts.Damping.Targets) != 0 {
		return Outcome{}, fmt.Errorf("%w: shake tests take no damping", ErrInvalidOptions)
	}
	return m.timeHistory(ctx, id, phase.Shake, opts, solver.Compliant, 0, 0)
}

func (m *Model) timeHistory(ctx context.Context, id string, kind phase.Kind, opts DynamicOptions, boundary solver.Boundary, alpha, beta float64) (Outcome, error) {
	if err := opts.validate(); err != nil {
		return Outcome{}, err
	}
	from, err := m.beginTest(id, opts.From)
	if err != nil {
		return Outcome{}, err
	}
	if opts.Duration == 0 {
		opts.Duration = opts.History[len(opts.History)-1].Time
	}
	if opts.SubSteps == 0 {
		opts.SubSteps = DefaultSubSteps
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	entry := TestEntry{ID: id, Kind: kind, Dynamic: &opts}
	out := Outcome{Test: id, Kind: kind, Status: Complete}

	sub := opts.SubSteps
	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		p, err := m.create(ctx, phase.Phase{Name: id, Test: id, Previous: from.Name, Kind: kind, Target: opts.Duration},
			solver.PhaseSettings{
				Kind:     solver.Dynamic,
				MaxSteps: len(opts.History) * sub,
				Duration: opts.Duration,
				SubSteps: sub,
				History:  opts.History,
				Boundary: boundary,
				Alpha:    alpha,
				Beta:     beta,
			})
		if err != nil {
			return Outcome{}, m.abort(ctx, id, err)
		}
		st, err := m.calculate(ctx, p)
		if err != nil {
			return Outcome{}, m.abort(ctx, id, err)
		}
		if st.Converged {
			if _, err := m.collect(ctx, p, results.Meta{Load: startLoad(from)}); err != nil {
				return Outcome{}, m.abort(ctx, id, err)
			}
			out.Phases = []string{p.Name}
			return m.finish(entry, out), nil
		}
		if err := m.discard(ctx, p); err != nil {
			return Outcome{}, m.abort(ctx, id, err)
		}
		out.Reason = st.Message
		sub *= 2
	}
	out.Status = Partial
	out.Reason = fmt.Sprintf("did not converge after %d attempts: %s", opts.MaxAttempts, out.Reason)
	return m.finish(entry, out), nil
}

// Sampled builds a history from accelerations sampled every dt from t = 0.
func Sampled(dt float64, acc []float64) ([]solver.Sample, error) {
	if dt <= 0 || len(acc) == 0 {
		return nil, fmt.Errorf("%w: sampled history needs dt > 0 and accelerations", ErrInvalidOptions)
	}
	out := make([]solver.Sample, len(acc))
	for i, a := range acc {
		out[i] = solver.Sample{Time: float64(i) * dt, Acceleration: a}
	}
	return out, nil
}
