package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/zulandar/padtest/internal/phase"
	"github.com/zulandar/padtest/internal/results"
)

// TestEntry records how a test was run so it can be replayed.
type TestEntry struct {
	ID      string              `yaml:"id" json:"id"`
	Kind    phase.Kind          `yaml:"kind" json:"kind"`
	Load    *LoadTestOptions    `yaml:"load,omitempty" json:"load,omitempty"`
	Failure *FailureTestOptions `yaml:"failure,omitempty" json:"failure,omitempty"`
	Safety  *SafetyOptions      `yaml:"safety,omitempty" json:"safety,omitempty"`
	Dynamic *DynamicOptions     `yaml:"dynamic,omitempty" json:"dynamic,omitempty"`
	Phases  []string            `yaml:"phases" json:"phases"`
	Outcome Outcome             `yaml:"-" json:"outcome"`
}

// TestLog returns the tests run on the model, oldest first.
func (m *Model) TestLog() []TestEntry {
	return append([]TestEntry(nil), m.testLog...)
}

// Confirm asks the operator a yes/no question.
type Confirm func(question string) bool

// Regenerate discards the solver project with every phase and record,
// builds the model again and, with replay, runs the logged tests again in
// their original order.
func (m *Model) Regenerate(ctx context.Context, confirm Confirm, replay bool) error {
	question := fmt.Sprintf("regenerate %q and discard %d tests?", m.spec.Project.Title, len(m.testLog))
	if confirm == nil || !confirm(question) {
		return ErrNotConfirmed
	}
	old := m.TestLog()

	if err := m.Release(ctx); err != nil {
		m.log.Warn("release before regeneration", zap.Error(err))
	}
	m.chain = phase.NewChain()
	m.records = results.NewStore()
	m.testLog = nil
	m.soilIDs, m.fillIDs = nil, nil
	m.ratchetID, m.foundation = "", ""
	m.start = ""
	m.Refresh()

	if err := m.Build(ctx); err != nil {
		return fmt.Errorf("engine: regenerate: %w", err)
	}
	m.log.Info("model regenerated", zap.Int("tests", len(old)), zap.Bool("replay", replay))
	if !replay {
		return nil
	}
	for _, e := range old {
		if _, err := m.Run(ctx, e); err != nil {
			return fmt.Errorf("engine: replay %s: %w", e.ID, err)
		}
	}
	return nil
}

// Run runs the test an entry describes. Dynamic entries of kind shake run
// as shake tests.
func (m *Model) Run(ctx context.Context, e TestEntry) (Outcome, error) {
	switch {
	case e.Load != nil:
		return m.LoadTest(ctx, e.ID, *e.Load)
	case e.Failure != nil:
		return m.FailureTest(ctx, e.ID, *e.Failure)
	case e.Safety != nil:
		return m.SafetyTest(ctx, e.ID, *e.Safety)
	case e.Dynamic != nil && e.Kind == phase.Shake:
		return m.ShakeTest(ctx, e.ID, *e.Dynamic)
	case e.Dynamic != nil:
		return m.DynamicTest(ctx, e.ID, *e.Dynamic)
	}
	return Outcome{}, fmt.Errorf("%w: test %s has no options", ErrInvalidOptions, e.ID)
}
