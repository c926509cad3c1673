package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/zulandar/padtest/internal/phase"
	"github.com/zulandar/padtest/internal/results"
	"github.com/zulandar/padtest/internal/solver"
)

// Direction is the sense of a foundation load.
type Direction string

const (
	Compression Direction = "compression"
	PullOut     Direction = "pull out"
)

// sign is the sign of the solver load: compression pushes down.
func (d Direction) sign() (float64, error) {
	switch d {
	case Compression, "":
		return -1, nil
	case PullOut:
		return 1, nil
	}
	return 0, fmt.Errorf("%w: direction %q", ErrInvalidOptions, d)
}

// OutcomeStatus summarises how a test ended.
type OutcomeStatus string

const (
	Complete OutcomeStatus = "complete"
	// Partial means the test stopped early on non-convergence. The
	// records of the converged phases are kept.
	Partial OutcomeStatus = "partial"
)

// Outcome is the result of one test.
type Outcome struct {
	Test   string        `json:"test"`
	Kind   phase.Kind    `json:"kind"`
	Status OutcomeStatus `json:"status"`
	Phases []string      `json:"phases"`
	// Capacity is the last converged load of a load or failure test.
	Capacity float64 `json:"capacity,omitempty"`
	// SafetyFactor is the terminal multiplier of a safety test.
	SafetyFactor float64 `json:"safety_factor,omitempty"`
	Reason       string  `json:"reason,omitempty"`
}

// beginTest checks the test id and the predecessor phase.
func (m *Model) beginTest(id, from string) (*phase.Phase, error) {
	if !m.built {
		return nil, ErrNotBuilt
	}
	if id == "" {
		return nil, fmt.Errorf("%w: test id is required", ErrInvalidOptions)
	}
	for _, e := range m.testLog {
		if e.ID == id {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTest, id)
		}
	}
	if len(m.chain.ByTest(id)) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateTest, id)
	}
	if from == "" {
		from = m.start
	}
	p, ok := m.chain.Get(from)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPhase, from)
	}
	if p.Status != phase.Converged {
		return nil, fmt.Errorf("%w: phase %s has not converged", ErrInvalidOptions, from)
	}
	return p, nil
}

// create adds a pending phase to the chain and the solver.
func (m *Model) create(ctx context.Context, p phase.Phase, settings solver.PhaseSettings) (*phase.Phase, error) {
	parent, ok := m.chain.Get(p.Previous)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPhase, p.Previous)
	}
	settings.Name = p.Name
	if settings.MaxStepsStored == 0 {
		settings.MaxStepsStored = DefaultMaxStepsStored
	}
	id, err := m.solver.CreatePhase(ctx, parent.SolverID, settings)
	if err != nil {
		return nil, fmt.Errorf("engine: create phase %s: %w", p.Name, err)
	}
	p.SolverID = id
	stored, err := m.chain.Add(p)
	if err != nil {
		// Keep the solver in step with the chain.
		_ = m.solver.DeletePhase(ctx, id)
		return nil, fmt.Errorf("engine: %w", err)
	}
	return stored, nil
}

// calculate runs a phase and logs the outcome.
func (m *Model) calculate(ctx context.Context, p *phase.Phase) (solver.Status, error) {
	st, err := m.solver.Calculate(ctx, p.SolverID)
	if err != nil {
		return st, &PhaseError{Test: p.Test, Phase: p.Name, Kind: p.Kind, Err: err}
	}
	fields := []zap.Field{
		zap.String("test", p.Test),
		zap.String("phase", p.Name),
		zap.String("kind", string(p.Kind)),
		zap.Float64("target", p.Target),
	}
	if st.Converged {
		m.log.Info("phase converged", fields...)
	} else {
		m.log.Warn("phase did not converge", append(fields, zap.String("status", st.Message))...)
	}
	return st, nil
}

// extract reads the records of a calculated phase.
func (m *Model) extract(ctx context.Context, p *phase.Phase, meta results.Meta) ([]results.Record, error) {
	meta.Test = p.Test
	meta.Phase = p.Name
	meta.Previous = p.Previous
	meta.Kind = p.Kind
	meta.Seq = p.Seq
	meta.SolverID = p.SolverID
	meta.Locations = m.locations
	meta.Ratchetting = meta.Ratchetting || p.Ratchetting
	if meta.Share == 0 {
		meta.Share = m.loadScale()
	}
	if meta.Area == 0 {
		meta.Area = m.area()
	}
	recs, err := m.extractor.Extract(ctx, meta)
	if err != nil {
		return nil, &PhaseError{Test: p.Test, Phase: p.Name, Kind: p.Kind, Err: err}
	}
	return recs, nil
}

// save appends records, settles the phase status and refreshes the
// snapshot.
func (m *Model) save(p *phase.Phase, recs []results.Record, status phase.Status, msg string) error {
	if err := m.records.Add(recs...); err != nil {
		return fmt.Errorf("engine: store %s: %w", p.Name, err)
	}
	if err := m.chain.SetStatus(p.Name, status, msg); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	m.Refresh()
	if m.opts.OnPhase != nil {
		m.opts.OnPhase(*p, recs)
	}
	return nil
}

// collect extracts and stores the records of a converged phase.
func (m *Model) collect(ctx context.Context, p *phase.Phase, meta results.Meta) ([]results.Record, error) {
	recs, err := m.extract(ctx, p, meta)
	if err != nil {
		return nil, err
	}
	if err := m.save(p, recs, phase.Converged, ""); err != nil {
		return nil, err
	}
	return recs, nil
}

// discard removes a phase that did not converge. Nothing chains on it yet.
func (m *Model) discard(ctx context.Context, p *phase.Phase) error {
	if err := m.solver.DeletePhase(ctx, p.SolverID); err != nil && !errors.Is(err, solver.ErrNotFound) {
		return &PhaseError{Test: p.Test, Phase: p.Name, Kind: p.Kind, Message: "rollback", Err: err}
	}
	if _, err := m.chain.Remove(p.Name); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	m.contacts.Forget(p.SolverID)
	m.records.DeletePhases(p.Name)
	m.log.Debug("phase rolled back", zap.String("test", p.Test), zap.String("phase", p.Name))
	return nil
}

// abort rolls back a test that stopped on an error: the phase in progress
// and every phase the test already stored, with their records. The test is
// not logged, so its id can be run again.
func (m *Model) abort(ctx context.Context, id string, err error) error {
	if phases := m.chain.ByTest(id); len(phases) > 0 {
		if rerr := m.deleteFrom(ctx, phases[0]); rerr != nil {
			return errors.Join(err, rerr)
		}
	}
	m.records.DeleteTest(id)
	m.Refresh()
	m.log.Warn("test aborted", zap.String("test", id), zap.Error(err))
	return err
}

// finish logs the test and notifies the caller.
func (m *Model) finish(entry TestEntry, o Outcome) Outcome {
	entry.Phases = append([]string(nil), o.Phases...)
	entry.Outcome = o
	m.testLog = append(m.testLog, entry)
	m.Refresh()
	m.log.Info("test finished",
		zap.String("test", o.Test),
		zap.String("kind", string(o.Kind)),
		zap.String("status", string(o.Status)),
		zap.Int("phases", len(o.Phases)),
		zap.String("reason", o.Reason),
	)
	if m.opts.OnTest != nil {
		m.opts.OnTest(o)
	}
	return o
}

// stageName names the i-th phase of a multi-phase test.
func stageName(test string, i int) string {
	return fmt.Sprintf("%s_stage_%d", test, i)
}

// terminal returns the last record at a location.
func terminal(recs []results.Record, location string) (results.Record, bool) {
	for i := len(recs) - 1; i >= 0; i-- {
		if recs[i].Location == location {
			return recs[i], true
		}
	}
	return results.Record{}, false
}
