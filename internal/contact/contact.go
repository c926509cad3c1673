// Package contact builds the soil-structure interfaces of a model and keeps
// their solver state.
package contact

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/zulandar/padtest/internal/geometry"
	"github.com/zulandar/padtest/internal/material"
	"github.com/zulandar/padtest/internal/solver"
)

// DefaultRinter is the strength reduction used when neither an override nor
// the adjacent soil gives one.
const DefaultRinter = 1.0

// Override replaces the strength of one named interface.
type Override struct {
	Rinter   *float64 `yaml:"rinter" json:"rinter,omitempty"`
	CInter   *float64 `yaml:"c_inter" json:"c_inter,omitempty"`
	PhiInter *float64 `yaml:"phi_inter" json:"phi_inter,omitempty"`
	KnInter  *float64 `yaml:"kn_inter" json:"kn_inter,omitempty"`
	KsInter  *float64 `yaml:"ks_inter" json:"ks_inter,omitempty"`
}

func (o Override) empty() bool {
	return o.Rinter == nil && o.CInter == nil && o.PhiInter == nil && o.KnInter == nil && o.KsInter == nil
}

// Strength is the resolved interface strength and stiffness.
type Strength struct {
	Rinter float64 `json:"rinter"`
	C      float64 `json:"c"`
	TanPhi float64 `json:"tan_phi"`
	Kn     float64 `json:"kn,omitempty"`
	Ks     float64 `json:"ks,omitempty"`
}

// Interface is one contact edge with its strength and solver state.
type Interface struct {
	Edge     geometry.Edge
	Strength Strength
	// Params is set when the interface needs its own material.
	Params map[string]any

	SolverID   solver.ID
	MaterialID solver.ID
	active     map[solver.ID]bool
}

// Name returns the contact edge name.
func (i *Interface) Name() string { return i.Edge.Name }

// Active reports the last state requested for a phase.
func (i *Interface) Active(phase solver.ID) (on, known bool) {
	on, known = i.active[phase]
	return on, known
}

// Build creates one interface per contact edge of g. adjacent returns the
// soil next to an edge, or nil when there is none.
func Build(g *geometry.Geometry, adjacent func(geometry.Edge) *material.Soil, overrides map[string]Override) []*Interface {
	var out []*Interface
	for _, e := range g.Contacts {
		soil := adjacent(e)
		o, ok := overrides[e.Name]
		if !ok {
			// Mirrored edges share the override of their right-hand twin.
			o = overrides[trimSide(e.Name)]
		}
		out = append(out, newInterface(e, soil, o))
	}
	return out
}

func trimSide(name string) string {
	const suffix = "_left"
	if len(name) > len(suffix) && name[len(name)-len(suffix):] == suffix {
		return name[:len(name)-len(suffix)]
	}
	return name
}

func newInterface(e geometry.Edge, soil *material.Soil, o Override) *Interface {
	r := DefaultRinter
	var c, phi float64
	if soil != nil {
		r = soil.Rinter()
		c, _ = soil.Value(material.KeyCRef)
		phi, _ = soil.Value(material.KeyPhi)
	}
	if o.Rinter != nil {
		r = *o.Rinter
	}
	s := Strength{
		Rinter: r,
		C:      r * c,
		TanPhi: r * math.Tan(phi*math.Pi/180),
	}
	if soil != nil {
		s.Kn, _ = soil.Value(material.KeyKnInter)
		s.Ks, _ = soil.Value(material.KeyKsInter)
	}
	if o.CInter != nil {
		s.C = *o.CInter
	}
	if o.PhiInter != nil {
		s.TanPhi = math.Tan(*o.PhiInter * math.Pi / 180)
	}
	if o.KnInter != nil {
		s.Kn = *o.KnInter
	}
	if o.KsInter != nil {
		s.Ks = *o.KsInter
	}

	i := &Interface{Edge: e, Strength: s, active: make(map[solver.ID]bool)}
	if !o.empty() && soil != nil {
		i.Params = soil.Params()
		i.Params[material.KeyStrengthDet] = "Manual"
		i.Params[material.KeyRinter] = s.Rinter
		i.Params[material.KeyKnInter] = s.Kn
		i.Params[material.KeyKsInter] = s.Ks
		if o.CInter != nil || o.PhiInter != nil {
			// The solver applies Rinter to c and phi, so fold the
			// overrides into the material strength at Rinter = 1.
			i.Params[material.KeyRinter] = 1.0
			i.Params[material.KeyCRef] = s.C
			i.Params[material.KeyPhi] = math.Atan(s.TanPhi) * 180 / math.Pi
		}
	}
	return i
}

// Manager submits interfaces to the solver and tracks their activation.
type Manager struct {
	items []*Interface
	log   *zap.Logger
}

// NewManager wraps a set of interfaces.
func NewManager(items []*Interface, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{items: items, log: log}
}

// Interfaces returns the managed interfaces.
func (m *Manager) Interfaces() []*Interface { return m.items }

// Get returns the interface with the given edge name.
func (m *Manager) Get(name string) (*Interface, bool) {
	for _, i := range m.items {
		if i.Name() == name {
			return i, true
		}
	}
	return nil, false
}

// Submit creates every interface not yet known to the solver.
func (m *Manager) Submit(ctx context.Context, s solver.Solver) error {
	for _, i := range m.items {
		if i.SolverID != "" {
			continue
		}
		id, err := s.AddInterface(ctx, i.Edge)
		if err != nil {
			return fmt.Errorf("contact: add interface %s: %w", i.Name(), err)
		}
		i.SolverID = id
		if i.Params != nil && i.MaterialID == "" {
			mid, err := s.CreateSoilMaterial(ctx, i.Name()+"_interface", i.Params)
			if err != nil {
				return fmt.Errorf("contact: create material for %s: %w", i.Name(), err)
			}
			i.MaterialID = mid
		}
		m.log.Debug("interface submitted",
			zap.String("interface", i.Name()),
			zap.Float64("rinter", i.Strength.Rinter),
		)
	}
	return nil
}

// Activate sets every interface on or off in a phase. Interfaces already in
// the requested state for that phase are skipped.
func (m *Manager) Activate(ctx context.Context, s solver.Solver, phase solver.ID, on bool) error {
	for _, i := range m.items {
		if i.SolverID == "" {
			return fmt.Errorf("contact: activate %s: interface not submitted", i.Name())
		}
		if cur, ok := i.active[phase]; ok && cur == on {
			continue
		}
		if err := s.SetActive(ctx, phase, i.SolverID, on); err != nil {
			return fmt.Errorf("contact: activate %s in %s: %w", i.Name(), phase, err)
		}
		if on && i.MaterialID != "" {
			if err := s.AssignMaterial(ctx, phase, i.SolverID, i.MaterialID); err != nil {
				return fmt.Errorf("contact: assign material to %s: %w", i.Name(), err)
			}
		}
		i.active[phase] = on
	}
	return nil
}

// Forget drops the activation state recorded for a phase.
func (m *Manager) Forget(phase solver.ID) {
	for _, i := range m.items {
		delete(i.active, phase)
	}
}

// Release removes the interfaces from the solver. Objects the solver no
// longer has are skipped, so Release is safe on partial and released sets.
func (m *Manager) Release(ctx context.Context, s solver.Solver) error {
	var errs []error
	for _, i := range m.items {
		for _, id := range []*solver.ID{&i.SolverID, &i.MaterialID} {
			if *id == "" {
				continue
			}
			err := s.DeleteObject(ctx, *id)
			if err != nil && !errors.Is(err, solver.ErrNotFound) {
				errs = append(errs, fmt.Errorf("contact: release %s: %w", i.Name(), err))
				continue
			}
			*id = ""
		}
		i.active = make(map[solver.ID]bool)
	}
	return errors.Join(errs...)
}
