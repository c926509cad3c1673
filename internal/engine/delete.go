package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/zulandar/padtest/internal/phase"
	"github.com/zulandar/padtest/internal/solver"
)

// DeletePhase removes a phase, every phase chained after it and all their
// records. Phases are removed leaf first so the chain never holds a phase
// whose predecessor is gone.
func (m *Model) DeletePhase(ctx context.Context, name string) error {
	if !m.built {
		return ErrNotBuilt
	}
	p, ok := m.chain.Get(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPhase, name)
	}
	if p.Test == "" {
		return fmt.Errorf("%w: phase %s belongs to the construction sequence", ErrInvalidOptions, name)
	}
	return m.deleteFrom(ctx, p)
}

func (m *Model) deleteFrom(ctx context.Context, p *phase.Phase) error {
	doomed := append([]*phase.Phase{p}, m.chain.Descendants(p.Name)...)
	for i := len(doomed) - 1; i >= 0; i-- {
		d := doomed[i]
		if err := m.solver.DeletePhase(ctx, d.SolverID); err != nil && !errors.Is(err, solver.ErrNotFound) {
			m.Refresh()
			return &PhaseError{Test: d.Test, Phase: d.Name, Kind: d.Kind, Message: "delete", Err: err}
		}
		if _, err := m.chain.Remove(d.Name); err != nil {
			return fmt.Errorf("engine: %w", err)
		}
		m.contacts.Forget(d.SolverID)
		m.records.DeletePhases(d.Name)
		m.forgetPhase(d)
		m.log.Info("phase deleted", zap.String("test", d.Test), zap.String("phase", d.Name))
	}
	m.Refresh()
	return nil
}

// forgetPhase drops a deleted phase from the test log. A test left with no
// phases leaves the log.
func (m *Model) forgetPhase(p *phase.Phase) {
	kept := m.testLog[:0]
	for _, e := range m.testLog {
		if e.ID == p.Test {
			var phases []string
			for _, n := range e.Phases {
				if n != p.Name {
					phases = append(phases, n)
				}
			}
			e.Phases = phases
			if len(phases) == 0 {
				continue
			}
		}
		kept = append(kept, e)
	}
	m.testLog = kept
}

// DeleteTest removes every phase of a test with everything chained after
// them, and the test's records.
func (m *Model) DeleteTest(ctx context.Context, id string) error {
	if !m.built {
		return ErrNotBuilt
	}
	phases := m.chain.ByTest(id)
	logged := false
	for _, e := range m.testLog {
		logged = logged || e.ID == id
	}
	if len(phases) == 0 && !logged {
		return fmt.Errorf("%w: %s", ErrUnknownTest, id)
	}
	if len(phases) > 0 {
		// The first phase carries the rest of the test with it.
		if err := m.deleteFrom(ctx, phases[0]); err != nil {
			return err
		}
	}
	m.records.DeleteTest(id)
	kept := m.testLog[:0]
	for _, e := range m.testLog {
		if e.ID != id {
			kept = append(kept, e)
		}
	}
	m.testLog = kept
	m.Refresh()
	return nil
}
