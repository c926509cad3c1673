// Package results turns solver steps into test records and keeps them.
package results

import (
	"context"
	"fmt"
	"math"

	"github.com/zulandar/padtest/internal/phase"
	"github.com/zulandar/padtest/internal/solver"
)

// Top is the location name of the load application point.
const Top = "top"

// Record is one row of test output.
type Record struct {
	Test     string     `json:"test"`
	Phase    string     `json:"phase"`
	Previous string     `json:"previous,omitempty"`
	Kind     phase.Kind `json:"kind"`
	Seq      int        `json:"seq"`
	Step     int        `json:"step"`
	Location string     `json:"location"`

	// Load is the target load of the phase, Force the load reached.
	Load         float64 `json:"load"`
	Force        float64 `json:"force"`
	Stress       float64 `json:"stress"`
	Displacement float64 `json:"displacement"`
	// Uy is the vertical displacement, positive up.
	Uy           float64 `json:"uy"`
	SumMstage    float64 `json:"sum_mstage"`
	SafetyFactor float64 `json:"safety_factor,omitempty"`
	Time         float64 `json:"time,omitempty"`
	Acceleration float64 `json:"acceleration,omitempty"`
	Ratchetting  bool    `json:"ratchetting,omitempty"`
}

// Key identifies a record.
type Key struct {
	Test, Phase, Location string
	Step                  int
}

// Key returns the identity of r.
func (r Record) Key() Key {
	return Key{Test: r.Test, Phase: r.Phase, Location: r.Location, Step: r.Step}
}

// Meta describes the phase being extracted.
type Meta struct {
	Test     string
	Phase    string
	Previous string
	Kind     phase.Kind
	Seq      int
	SolverID solver.ID

	// Load is the full-model target load of the phase.
	Load float64
	// Share is the fraction of the load the solver model carries.
	Share float64
	// Direction converts solver values to the test direction: -1 for
	// compression, 1 for pull out.
	Direction float64
	// Area converts force to stress.
	Area float64

	Locations   []string
	Ratchetting bool
}

// Extractor reads phase results from a solver.
type Extractor struct {
	Solver solver.Solver
}

// Extract returns the records of one calculated phase.
func (e *Extractor) Extract(ctx context.Context, m Meta) ([]Record, error) {
	steps, err := e.Solver.Results(ctx, m.SolverID)
	if err != nil {
		return nil, fmt.Errorf("results: read %s: %w", m.Phase, err)
	}
	if len(steps) == 0 {
		return nil, nil
	}
	if m.Share == 0 {
		m.Share = 1
	}
	if m.Direction == 0 {
		m.Direction = -1
	}

	switch m.Kind {
	case phase.Safety:
		peak := 0.0
		for _, s := range steps {
			peak = math.Max(peak, s.Msf)
		}
		recs := e.perStep(m, steps)
		for i := range recs {
			if recs[i].Step == steps[len(steps)-1].Number {
				recs[i].SafetyFactor = peak
			}
		}
		return recs, nil
	case phase.Dynamic, phase.Shake:
		return e.perStep(m, steps), nil
	default:
		return e.records(m, steps[len(steps)-1]), nil
	}
}

func (e *Extractor) perStep(m Meta, steps []solver.Step) []Record {
	var out []Record
	for _, s := range steps {
		out = append(out, e.records(m, s)...)
	}
	return out
}

// records returns one record per location for a step, the load point first.
func (e *Extractor) records(m Meta, s solver.Step) []Record {
	locs := m.Locations
	if len(locs) == 0 {
		locs = []string{Top}
	}
	force := s.Force * m.Direction / m.Share
	stress := 0.0
	if m.Area > 0 {
		stress = force / m.Area
	}
	out := make([]Record, 0, len(locs))
	for _, loc := range locs {
		out = append(out, Record{
			Test:         m.Test,
			Phase:        m.Phase,
			Previous:     m.Previous,
			Kind:         m.Kind,
			Seq:          m.Seq,
			Step:         s.Number,
			Location:     loc,
			Load:         m.Load,
			Force:        force,
			Stress:       stress,
			Displacement: s.Displacement[loc] * m.Direction,
			Uy:           s.Displacement[loc],
			SumMstage:    s.SumMstage,
			SafetyFactor: s.Msf,
			Time:         s.Time,
			Acceleration: s.Acceleration,
			Ratchetting:  m.Ratchetting,
		})
	}
	return out
}
