// Package engine drives an external FE solver through the construction,
// load, safety and dynamic phases of a shallow-foundation test.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/zulandar/padtest/internal/contact"
	"github.com/zulandar/padtest/internal/geometry"
	"github.com/zulandar/padtest/internal/material"
	"github.com/zulandar/padtest/internal/phase"
	"github.com/zulandar/padtest/internal/results"
	"github.com/zulandar/padtest/internal/solver"
)

// Model types.
const (
	Axisymmetry = "axisymmetry"
	PlaneStrain = "planestrain"
)

const (
	DefaultElementType    = "15-Noded"
	DefaultMeshDensity    = 0.06
	DefaultMaxStepsStored = 1000
)

// DefaultLocations are the output points along the foundation base, from
// the centre (0) to the edge (1).
var DefaultLocations = []float64{0, 0.25, 0.5, 0.75, 1}

// Names of the phases created by Build.
const (
	InitialPhase      = "initial"
	ExcavationPhase   = "excavation"
	ConstructionPhase = "construction"
)

// Project holds the model-wide settings.
type Project struct {
	Title       string    `yaml:"title" json:"title"`
	Comments    string    `yaml:"comments" json:"comments,omitempty"`
	ModelType   string    `yaml:"model_type" json:"model_type"`
	ElementType string    `yaml:"element_type" json:"element_type"`
	MeshDensity float64   `yaml:"mesh_density" json:"mesh_density"`
	Locations   []float64 `yaml:"locations" json:"locations"`
	// Excavation runs an excavation phase before the fill is placed.
	Excavation bool `yaml:"excavation" json:"excavation"`
}

// Foundation describes the foundation material. Concrete derives it from
// the section; Params gives plate stiffness (plate) or a soil mapping
// (solid) directly.
type Foundation struct {
	Concrete *material.Concrete `yaml:"concrete" json:"concrete,omitempty"`
	Params   map[string]any     `yaml:"params" json:"params,omitempty"`
}

// Spec is everything needed to build a model.
type Spec struct {
	Project  Project       `yaml:"project" json:"project"`
	Geometry geometry.Spec `yaml:"geometry" json:"geometry"`

	// Soil holds one mapping per stratum, Fill one per fill layer.
	Soil        []map[string]any `yaml:"soil" json:"soil"`
	Fill        []map[string]any `yaml:"fill" json:"fill,omitempty"`
	Ratchetting map[string]any   `yaml:"ratchetting" json:"ratchetting,omitempty"`
	// RatchettingThreshold is the settlement under the base that switches
	// the ratchetting zone to the ratchetting material. 0 disables it.
	RatchettingThreshold float64 `yaml:"ratchetting_threshold" json:"ratchetting_threshold,omitempty"`

	Foundation Foundation                  `yaml:"foundation" json:"foundation"`
	Interfaces map[string]contact.Override `yaml:"interfaces" json:"interfaces,omitempty"`
}

// Options are runtime hooks.
type Options struct {
	// OnPhase is called after the records of a phase are stored.
	OnPhase func(p phase.Phase, recs []results.Record)
	// OnTest is called when a test finishes.
	OnTest func(o Outcome)
}

// Model owns the geometry, materials, interfaces, phases and results of
// one solver project. It is not safe for concurrent use; the snapshot it
// returns is.
type Model struct {
	solver solver.Solver
	spec   Spec
	opts   Options
	log    *zap.Logger

	geom      *geometry.Geometry
	soils     []*material.Soil
	fills     []*material.Soil
	ratchet   *material.Soil
	plateMat  *material.Plate
	solidMat  *material.Soil
	contacts  *contact.Manager
	chain     *phase.Chain
	records   *results.Store
	extractor *results.Extractor
	snapshot  results.Snapshot
	locations []string

	polygons   []solver.ID
	plates     []solver.ID
	load       solver.ID
	water      solver.ID
	soilIDs    []solver.ID
	fillIDs    []solver.ID
	ratchetID  solver.ID
	foundation solver.ID

	start   string
	built   bool
	testLog []TestEntry
}

// New validates the spec and prepares the model. No solver call is made.
func New(s solver.Solver, spec Spec, opts Options, log *zap.Logger) (*Model, error) {
	if log == nil {
		log = zap.NewNop()
	}
	applyProjectDefaults(&spec.Project)
	gs := spec.Geometry
	gs.Axisymmetric = spec.Project.ModelType == Axisymmetry

	g, err := geometry.Build(gs)
	if err != nil {
		return nil, fmt.Errorf("engine: build geometry: %w", err)
	}
	m := &Model{
		solver:    s,
		spec:      spec,
		opts:      opts,
		log:       log,
		geom:      g,
		chain:     phase.NewChain(),
		records:   results.NewStore(),
		extractor: &results.Extractor{Solver: s},
	}
	if err := m.initMaterials(); err != nil {
		return nil, err
	}
	m.contacts = contact.NewManager(contact.Build(g, m.adjacent, spec.Interfaces), log)
	for _, a := range g.Adjustments {
		log.Info("geometry adjusted", zap.String("adjustment", a))
	}
	return m, nil
}

func applyProjectDefaults(p *Project) {
	if p.ModelType == "" {
		p.ModelType = PlaneStrain
	}
	if p.ElementType == "" {
		p.ElementType = DefaultElementType
	}
	if p.MeshDensity <= 0 {
		p.MeshDensity = DefaultMeshDensity
	}
	if len(p.Locations) == 0 {
		p.Locations = append([]float64(nil), DefaultLocations...)
	}
}

func soilName(raw map[string]any, fallback string) string {
	for k, v := range raw {
		if material.Normalize(k) == material.Normalize(material.KeyName) {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return fallback
}

func (m *Model) initMaterials() error {
	g := m.geom
	if len(m.spec.Soil) != len(g.Strata) {
		return fmt.Errorf("engine: %w: %d soil materials for %d strata", geometry.ErrInvalidConfig, len(m.spec.Soil), len(g.Strata))
	}
	for i, raw := range m.spec.Soil {
		s, err := material.NewSoil(soilName(raw, g.Strata[i].Material), raw)
		if err != nil {
			return fmt.Errorf("engine: stratum %d: %w", i+1, err)
		}
		m.logDefaults(s.Name, s.Defaults)
		m.soils = append(m.soils, s)
	}

	if g.HasFill() {
		if len(m.spec.Fill) != len(g.Fill) {
			return fmt.Errorf("engine: %w: %d fill materials for %d fill layers", geometry.ErrInvalidConfig, len(m.spec.Fill), len(g.Fill))
		}
		for i, raw := range m.spec.Fill {
			s, err := material.NewSoil(soilName(raw, g.Fill[i].Material), raw)
			if err != nil {
				return fmt.Errorf("engine: fill %d: %w", i+1, err)
			}
			m.logDefaults(s.Name, s.Defaults)
			m.fills = append(m.fills, s)
		}
	}

	if g.Ratchetting > 0 {
		if m.spec.Ratchetting == nil {
			return fmt.Errorf("engine: %w: ratchetting zone needs a ratchetting material", geometry.ErrInvalidConfig)
		}
		s, err := material.NewSoil(soilName(m.spec.Ratchetting, "ratchetting"), m.spec.Ratchetting)
		if err != nil {
			return fmt.Errorf("engine: ratchetting material: %w", err)
		}
		m.logDefaults(s.Name, s.Defaults)
		m.ratchet = s
	}

	f := m.spec.Foundation
	var err error
	switch g.Kind {
	case geometry.KindPlate:
		if f.Concrete != nil {
			m.plateMat, err = f.Concrete.Plate("foundation")
		} else {
			m.plateMat, err = material.PlateFromParams("foundation", f.Params)
		}
		if err == nil {
			m.logDefaults(m.plateMat.Name, m.plateMat.Defaults)
		}
	case geometry.KindSolid:
		if f.Concrete != nil {
			m.solidMat, err = f.Concrete.Solid("foundation")
		} else {
			m.solidMat, err = material.NewSoil("foundation", f.Params)
		}
		if err == nil {
			m.logDefaults(m.solidMat.Name, m.solidMat.Defaults)
		}
	}
	if err != nil {
		return fmt.Errorf("engine: foundation material: %w", err)
	}
	return nil
}

func (m *Model) logDefaults(name string, defaults []material.Default) {
	for _, d := range defaults {
		m.log.Debug("material default applied",
			zap.String("material", name),
			zap.String("key", d.Key),
			zap.Any("value", d.Value),
			zap.String("reason", d.Reason),
		)
	}
}

// adjacent returns the soil next to a contact edge.
func (m *Model) adjacent(e geometry.Edge) *material.Soil {
	if e.Fill >= 0 && e.Fill < len(m.fills) {
		return m.fills[e.Fill]
	}
	if e.Stratum >= 0 && e.Stratum < len(m.soils) {
		return m.soils[e.Stratum]
	}
	return nil
}

// Geometry returns the assembled geometry.
func (m *Model) Geometry() *geometry.Geometry { return m.geom }

// Soils returns the stratum materials.
func (m *Model) Soils() []*material.Soil { return m.soils }

// FillMaterials returns the fill layer materials.
func (m *Model) FillMaterials() []*material.Soil { return m.fills }

// Project returns the project settings with defaults applied.
func (m *Model) Project() Project { return m.spec.Project }

// Materials returns the solver parameters of every material by name.
func (m *Model) Materials() map[string]map[string]any {
	out := map[string]map[string]any{}
	for _, group := range [][]*material.Soil{m.soils, m.fills, {m.ratchet, m.solidMat}} {
		for _, s := range group {
			if s != nil {
				out[s.Name] = s.Params()
			}
		}
	}
	if m.plateMat != nil {
		out[m.plateMat.Name] = m.plateMat.Params()
	}
	for _, i := range m.contacts.Interfaces() {
		if i.Params != nil {
			out[i.Name()+"_interface"] = i.Params
		}
	}
	return out
}

// Interfaces returns the interface manager.
func (m *Model) Interfaces() *contact.Manager { return m.contacts }

// Phases returns every phase in creation order.
func (m *Model) Phases() []phase.Phase {
	var out []phase.Phase
	for _, p := range m.chain.All() {
		out = append(out, *p)
	}
	return out
}

// Locations returns the output point names, the load point first.
func (m *Model) Locations() []string { return append([]string(nil), m.locations...) }

// Built reports whether Build completed.
func (m *Model) Built() bool { return m.built }

// Refresh rebuilds the cached snapshot from the store and returns it.
func (m *Model) Refresh() results.Snapshot {
	m.snapshot = m.records.Snapshot()
	return m.snapshot
}

// Snapshot returns the snapshot taken at the last Refresh.
func (m *Model) Snapshot() results.Snapshot { return m.snapshot }

// Build creates the project in the solver and calculates the initial
// phases.
func (m *Model) Build(ctx context.Context) error {
	if m.built {
		return fmt.Errorf("engine: model already built")
	}
	s := m.solver
	g := m.geom
	p := m.spec.Project
	if err := s.NewProject(ctx, solver.Project{
		Title:       p.Title,
		Comments:    p.Comments,
		ModelType:   p.ModelType,
		ElementType: p.ElementType,
		XMin:        g.XMin,
		XMax:        g.XMax,
		Depth:       g.Depth,
	}); err != nil {
		return fmt.Errorf("engine: new project: %w", err)
	}

	m.polygons = m.polygons[:0]
	for i, poly := range g.Polygons {
		id, err := s.AddPolygon(ctx, poly)
		if err != nil {
			return fmt.Errorf("engine: add polygon %d: %w", i, err)
		}
		m.polygons = append(m.polygons, id)
	}
	if g.WaterTable != nil {
		id, err := s.AddWaterLevel(ctx, *g.WaterTable)
		if err != nil {
			return fmt.Errorf("engine: add water level: %w", err)
		}
		m.water = id
	}
	m.plates = m.plates[:0]
	for _, pl := range g.Plates {
		id, err := s.AddPlate(ctx, pl)
		if err != nil {
			return fmt.Errorf("engine: add plate %s: %w", pl.Name, err)
		}
		m.plates = append(m.plates, id)
	}
	if err := m.contacts.Submit(ctx, s); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	if err := m.submitMaterials(ctx); err != nil {
		return err
	}
	id, err := s.AddLoad(ctx, g.Load)
	if err != nil {
		return fmt.Errorf("engine: add load: %w", err)
	}
	m.load = id

	m.locations = m.locations[:0]
	for _, op := range g.OutputPoints(p.Locations) {
		if err := s.AddOutputPoint(ctx, op); err != nil {
			return fmt.Errorf("engine: add output point %s: %w", op.Name, err)
		}
		m.locations = append(m.locations, op.Name)
	}
	if err := s.Mesh(ctx, p.MeshDensity); err != nil {
		return fmt.Errorf("engine: mesh: %w", err)
	}

	if err := m.initialPhases(ctx); err != nil {
		return err
	}
	m.built = true
	m.Refresh()
	m.log.Info("model built",
		zap.String("kind", string(g.Kind)),
		zap.String("symmetry", string(g.Symmetry)),
		zap.Int("polygons", len(g.Polygons)),
		zap.Int("interfaces", len(m.contacts.Interfaces())),
	)
	return nil
}

func (m *Model) submitMaterials(ctx context.Context) error {
	s := m.solver
	m.soilIDs = m.soilIDs[:0]
	for _, soil := range m.soils {
		id, err := s.CreateSoilMaterial(ctx, soil.Name, soil.Params())
		if err != nil {
			return fmt.Errorf("engine: create material %s: %w", soil.Name, err)
		}
		m.soilIDs = append(m.soilIDs, id)
	}
	m.fillIDs = m.fillIDs[:0]
	for _, soil := range m.fills {
		id, err := s.CreateSoilMaterial(ctx, soil.Name, soil.Params())
		if err != nil {
			return fmt.Errorf("engine: create material %s: %w", soil.Name, err)
		}
		m.fillIDs = append(m.fillIDs, id)
	}
	if m.ratchet != nil {
		id, err := s.CreateSoilMaterial(ctx, m.ratchet.Name, m.ratchet.Params())
		if err != nil {
			return fmt.Errorf("engine: create material %s: %w", m.ratchet.Name, err)
		}
		m.ratchetID = id
	}
	var err error
	switch {
	case m.plateMat != nil:
		m.foundation, err = s.CreatePlateMaterial(ctx, m.plateMat.Name, m.plateMat.Params())
	case m.solidMat != nil:
		m.foundation, err = s.CreateSoilMaterial(ctx, m.solidMat.Name, m.solidMat.Params())
	}
	if err != nil {
		return fmt.Errorf("engine: create foundation material: %w", err)
	}
	return nil
}

// initialPhases adds and calculates initial -> [excavation ->] construction.
func (m *Model) initialPhases(ctx context.Context) error {
	s := m.solver
	g := m.geom
	initial, err := s.InitialPhase(ctx)
	if err != nil {
		return fmt.Errorf("engine: initial phase: %w", err)
	}
	if _, err := m.chain.Add(phase.Phase{Name: InitialPhase, Kind: phase.Initial, SolverID: initial}); err != nil {
		return fmt.Errorf("engine: %w", err)
	}

	excavate := g.HasFill() && m.spec.Project.Excavation
	for i, poly := range g.Polygons {
		id := m.polygons[i]
		if poly.Stratum < 0 {
			if err := s.SetActive(ctx, initial, id, false); err != nil {
				return fmt.Errorf("engine: deactivate polygon %d: %w", i, err)
			}
			continue
		}
		if err := s.SetActive(ctx, initial, id, true); err != nil {
			return fmt.Errorf("engine: activate polygon %d: %w", i, err)
		}
		mat := m.soilIDs[poly.Stratum]
		if !excavate && poly.Role == geometry.RoleFill {
			mat = m.fillIDs[poly.Fill]
		}
		if !excavate && poly.Role == geometry.RoleFoundation {
			continue
		}
		if err := s.AssignMaterial(ctx, initial, id, mat); err != nil {
			return fmt.Errorf("engine: assign material to polygon %d: %w", i, err)
		}
	}

	last := InitialPhase
	if excavate {
		if err := m.setFoundation(ctx, initial, false); err != nil {
			return err
		}
		exc, err := m.addInitial(ctx, ExcavationPhase, phase.Excavation, last, solver.Excavate)
		if err != nil {
			return err
		}
		for i, poly := range g.Polygons {
			if !poly.Excavated || poly.Stratum < 0 {
				continue
			}
			if err := s.SetActive(ctx, exc, m.polygons[i], false); err != nil {
				return fmt.Errorf("engine: excavate polygon %d: %w", i, err)
			}
		}
		last = ExcavationPhase
		con, err := m.addInitial(ctx, ConstructionPhase, phase.Construction, last, solver.Plastic)
		if err != nil {
			return err
		}
		if err := m.setFoundation(ctx, con, true); err != nil {
			return err
		}
		for _, i := range g.PolygonsWith(geometry.RoleFill) {
			if err := s.SetActive(ctx, con, m.polygons[i], true); err != nil {
				return fmt.Errorf("engine: place fill polygon %d: %w", i, err)
			}
			if err := s.AssignMaterial(ctx, con, m.polygons[i], m.fillIDs[g.Polygons[i].Fill]); err != nil {
				return fmt.Errorf("engine: assign fill to polygon %d: %w", i, err)
			}
		}
		if err := m.contacts.Activate(ctx, s, con, true); err != nil {
			return fmt.Errorf("engine: %w", err)
		}
	} else {
		if err := m.setFoundation(ctx, initial, true); err != nil {
			return err
		}
		if err := m.contacts.Activate(ctx, s, initial, true); err != nil {
			return fmt.Errorf("engine: %w", err)
		}
		if _, err := m.addInitial(ctx, ConstructionPhase, phase.Construction, last, solver.Plastic); err != nil {
			return err
		}
	}
	m.start = ConstructionPhase

	for _, p := range m.chain.All() {
		st, err := s.Calculate(ctx, p.SolverID)
		if err != nil {
			return fmt.Errorf("engine: calculate %s: %w", p.Name, err)
		}
		if !st.Converged {
			_ = m.chain.SetStatus(p.Name, phase.Failed, st.Message)
			m.log.Error("construction failed", zap.String("phase", p.Name), zap.String("status", st.Message))
			return &PhaseError{Phase: p.Name, Kind: p.Kind, Message: st.Message, Err: ErrConstructionFailed}
		}
		if p.Name != ConstructionPhase {
			if err := m.chain.SetStatus(p.Name, phase.Converged, st.Message); err != nil {
				return fmt.Errorf("engine: %w", err)
			}
		}
	}
	con, _ := m.chain.Get(ConstructionPhase)
	_, err = m.collect(ctx, con, results.Meta{})
	return err
}

func (m *Model) addInitial(ctx context.Context, name string, kind phase.Kind, prev string, sk solver.PhaseKind) (solver.ID, error) {
	parent, _ := m.chain.Get(prev)
	id, err := m.solver.CreatePhase(ctx, parent.SolverID, solver.PhaseSettings{
		Name:           name,
		Kind:           sk,
		MaxStepsStored: DefaultMaxStepsStored,
	})
	if err != nil {
		return "", fmt.Errorf("engine: create phase %s: %w", name, err)
	}
	if _, err := m.chain.Add(phase.Phase{Name: name, Previous: prev, Kind: kind, SolverID: id}); err != nil {
		return "", fmt.Errorf("engine: %w", err)
	}
	return id, nil
}

// setFoundation switches the foundation plates or polygons in a phase.
func (m *Model) setFoundation(ctx context.Context, ph solver.ID, on bool) error {
	s := m.solver
	for i, id := range m.plates {
		if err := s.SetActive(ctx, ph, id, on); err != nil {
			return fmt.Errorf("engine: set plate %d: %w", i, err)
		}
		if on {
			if err := s.AssignMaterial(ctx, ph, id, m.foundation); err != nil {
				return fmt.Errorf("engine: assign plate material: %w", err)
			}
		}
	}
	for _, i := range m.geom.PolygonsWith(geometry.RoleFoundation) {
		if !on && m.geom.Polygons[i].Stratum >= 0 {
			// Below ground the footprint stays soil until excavated.
			continue
		}
		if err := s.SetActive(ctx, ph, m.polygons[i], on); err != nil {
			return fmt.Errorf("engine: set foundation polygon %d: %w", i, err)
		}
		if on {
			if err := s.AssignMaterial(ctx, ph, m.polygons[i], m.foundation); err != nil {
				return fmt.Errorf("engine: assign foundation material: %w", err)
			}
		}
	}
	return nil
}

// Release removes the model objects from the solver. Objects the solver no
// longer has are skipped.
func (m *Model) Release(ctx context.Context) error {
	var errs []error
	if err := m.contacts.Release(ctx, m.solver); err != nil {
		errs = append(errs, err)
	}
	ids := append([]solver.ID{}, m.polygons...)
	ids = append(ids, m.plates...)
	ids = append(ids, m.load, m.water)
	for _, id := range ids {
		if id == "" {
			continue
		}
		if err := m.solver.DeleteObject(ctx, id); err != nil && !errors.Is(err, solver.ErrNotFound) {
			errs = append(errs, fmt.Errorf("engine: release %s: %w", id, err))
		}
	}
	m.polygons, m.plates, m.load, m.water = nil, nil, "", ""
	m.built = false
	return errors.Join(errs...)
}

// loadScale converts a total load to the value sent to the solver: the
// share carried by the model for point loads, the intensity for line loads.
func (m *Model) loadScale() float64 {
	if m.geom.Load.Kind == geometry.LineLoad && m.geom.Load.Width > 0 {
		return 1 / m.geom.Load.Width
	}
	return m.geom.LoadShare()
}

// area is the bearing area used for stress.
func (m *Model) area() float64 {
	b := m.geom.B
	if m.geom.Axisymmetric {
		return math.Pi * b * b / 4
	}
	return b
}
