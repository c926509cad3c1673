// Package solvertest provides a scripted in-memory solver for tests.
package solvertest

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/zulandar/padtest/internal/geometry"
	"github.com/zulandar/padtest/internal/solver"
)

// Phase is the fake's view of a phase.
type Phase struct {
	ID        solver.ID
	Name      string
	Parent    solver.ID
	Settings  solver.PhaseSettings
	Loads     map[solver.ID]float64
	Active    map[solver.ID]bool
	Materials map[solver.ID]solver.ID
	Status    *solver.Status

	steps []solver.Step
}

// Fake implements solver.Solver. Load phases converge with a linear
// load-displacement response unless scripted otherwise.
type Fake struct {
	mu sync.Mutex

	// Stiffness is the load per unit displacement of every output point.
	Stiffness float64
	// FailAbove makes load phases above this magnitude diverge; 0 disables.
	FailAbove float64
	// StepsPerPhase is the number of steps a load phase stores.
	StepsPerPhase int
	// SafetyPeak is the largest multiplier a safety phase reaches.
	SafetyPeak float64
	// MinSubSteps makes dynamic phases with fewer sub-steps diverge.
	MinSubSteps int

	objects  map[solver.ID]string
	outputs  []string
	phases   map[solver.ID]*Phase
	order    []solver.ID
	initial  solver.ID
	next     int
	calls    []string
	failures map[string]int
	errs     map[string]error
	project  *solver.Project
}

// New creates a Fake with a stiffness of 10000 per unit displacement.
func New() *Fake {
	return &Fake{
		Stiffness:     10000,
		StepsPerPhase: 4,
		SafetyPeak:    1.6,
		objects:       make(map[solver.ID]string),
		phases:        make(map[solver.ID]*Phase),
		failures:      make(map[string]int),
		errs:          make(map[string]error),
	}
}

var _ solver.Solver = (*Fake)(nil)

// --- Test helpers ---

// FailPhase makes the next n calculations of the named phase diverge.
func (f *Fake) FailPhase(name string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[name] += n
}

// FailMethod makes every later call to method return err.
func (f *Fake) FailMethod(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.errs, method)
		return
	}
	f.errs[method] = err
}

// Calls returns the names of the methods called so far.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

// Count returns how many times method was called.
func (f *Fake) Count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == method {
			n++
		}
	}
	return n
}

// Objects returns the number of live objects of a kind.
func (f *Fake) Objects(kind string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, k := range f.objects {
		if k == kind {
			n++
		}
	}
	return n
}

// PhaseNames returns the live phase names in creation order.
func (f *Fake) PhaseNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var names []string
	for _, id := range f.order {
		names = append(names, f.phases[id].Name)
	}
	return names
}

// PhaseByName returns a copy of a live phase.
func (f *Fake) PhaseByName(name string) (Phase, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range f.order {
		if p := f.phases[id]; p.Name == name {
			return *p, true
		}
	}
	return Phase{}, false
}

// --- solver.Solver ---

func (f *Fake) call(method string) error {
	f.calls = append(f.calls, method)
	return f.errs[method]
}

func (f *Fake) add(method, kind string) (solver.ID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call(method); err != nil {
		return "", err
	}
	f.next++
	id := solver.ID(fmt.Sprintf("%s_%d", kind, f.next))
	f.objects[id] = kind
	return id, nil
}

func (f *Fake) NewProject(ctx context.Context, p solver.Project) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("NewProject"); err != nil {
		return err
	}
	f.objects = make(map[solver.ID]string)
	f.phases = make(map[solver.ID]*Phase)
	f.order = nil
	f.outputs = nil
	f.initial = ""
	f.project = &p
	return nil
}

func (f *Fake) AddPolygon(ctx context.Context, p geometry.Polygon) (solver.ID, error) {
	return f.add("AddPolygon", "polygon")
}

func (f *Fake) AddPlate(ctx context.Context, p geometry.PlateLine) (solver.ID, error) {
	return f.add("AddPlate", "plate")
}

func (f *Fake) AddInterface(ctx context.Context, e geometry.Edge) (solver.ID, error) {
	return f.add("AddInterface", "interface")
}

func (f *Fake) AddWaterLevel(ctx context.Context, w geometry.WaterLevel) (solver.ID, error) {
	return f.add("AddWaterLevel", "waterlevel")
}

func (f *Fake) AddLoad(ctx context.Context, l geometry.Load) (solver.ID, error) {
	return f.add("AddLoad", "load")
}

func (f *Fake) AddOutputPoint(ctx context.Context, p geometry.OutputPoint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("AddOutputPoint"); err != nil {
		return err
	}
	f.outputs = append(f.outputs, p.Name)
	return nil
}

func (f *Fake) CreateSoilMaterial(ctx context.Context, name string, params map[string]any) (solver.ID, error) {
	return f.add("CreateSoilMaterial", "soilmat")
}

func (f *Fake) CreatePlateMaterial(ctx context.Context, name string, params map[string]any) (solver.ID, error) {
	return f.add("CreatePlateMaterial", "platemat")
}

func (f *Fake) Mesh(ctx context.Context, density float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.call("Mesh")
}

func (f *Fake) InitialPhase(ctx context.Context) (solver.ID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("InitialPhase"); err != nil {
		return "", err
	}
	if f.initial == "" {
		f.initial = f.newPhase("", solver.PhaseSettings{Name: "Initial phase", Kind: solver.Plastic})
	}
	return f.initial, nil
}

func (f *Fake) newPhase(parent solver.ID, s solver.PhaseSettings) solver.ID {
	f.next++
	id := solver.ID(fmt.Sprintf("phase_%d", f.next))
	f.phases[id] = &Phase{
		ID:        id,
		Name:      s.Name,
		Parent:    parent,
		Settings:  s,
		Loads:     make(map[solver.ID]float64),
		Active:    make(map[solver.ID]bool),
		Materials: make(map[solver.ID]solver.ID),
	}
	f.order = append(f.order, id)
	return id
}

func (f *Fake) CreatePhase(ctx context.Context, parent solver.ID, s solver.PhaseSettings) (solver.ID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("CreatePhase"); err != nil {
		return "", err
	}
	if _, ok := f.phases[parent]; !ok {
		return "", fmt.Errorf("create phase %s: parent %s: %w", s.Name, parent, solver.ErrNotFound)
	}
	return f.newPhase(parent, s), nil
}

func (f *Fake) lookup(phase, object solver.ID) (*Phase, error) {
	p, ok := f.phases[phase]
	if !ok {
		return nil, fmt.Errorf("phase %s: %w", phase, solver.ErrNotFound)
	}
	if _, ok := f.objects[object]; !ok {
		return nil, fmt.Errorf("object %s: %w", object, solver.ErrNotFound)
	}
	return p, nil
}

func (f *Fake) AssignMaterial(ctx context.Context, phase, object, material solver.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("AssignMaterial"); err != nil {
		return err
	}
	p, err := f.lookup(phase, object)
	if err != nil {
		return err
	}
	p.Materials[object] = material
	return nil
}

func (f *Fake) SetActive(ctx context.Context, phase, object solver.ID, active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("SetActive"); err != nil {
		return err
	}
	p, err := f.lookup(phase, object)
	if err != nil {
		return err
	}
	p.Active[object] = active
	return nil
}

func (f *Fake) SetLoad(ctx context.Context, phase, load solver.ID, value float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("SetLoad"); err != nil {
		return err
	}
	p, err := f.lookup(phase, load)
	if err != nil {
		return err
	}
	p.Loads[load] = value
	return nil
}

// loadOf returns the load in effect in a phase, inherited from ancestors.
func (f *Fake) loadOf(id solver.ID) float64 {
	for id != "" {
		p, ok := f.phases[id]
		if !ok {
			return 0
		}
		for _, v := range p.Loads {
			return v
		}
		id = p.Parent
	}
	return 0
}

// lastDisplacement returns the final displacements of a phase.
func (f *Fake) lastDisplacement(id solver.ID) map[string]float64 {
	out := make(map[string]float64, len(f.outputs))
	p, ok := f.phases[id]
	if !ok || len(p.steps) == 0 {
		for _, n := range f.outputs {
			out[n] = 0
		}
		return out
	}
	for k, v := range p.steps[len(p.steps)-1].Displacement {
		out[k] = v
	}
	return out
}

func (f *Fake) Calculate(ctx context.Context, phase solver.ID) (solver.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("Calculate"); err != nil {
		return solver.Status{}, err
	}
	p, ok := f.phases[phase]
	if !ok {
		return solver.Status{}, fmt.Errorf("calculate %s: %w", phase, solver.ErrNotFound)
	}

	var st solver.Status
	switch p.Settings.Kind {
	case solver.Safety:
		st = f.safety(p)
	case solver.Dynamic:
		st = f.dynamic(p)
	default:
		st = f.plastic(p)
	}
	if n := f.failures[p.Name]; n > 0 && st.Converged {
		f.failures[p.Name] = n - 1
		st = solver.Status{Message: "prescribed ultimate state not reached"}
		if len(p.steps) > 1 {
			p.steps = p.steps[:len(p.steps)/2]
		}
	}
	p.Status = &st
	return st, nil
}

func (f *Fake) plastic(p *Phase) solver.Status {
	from := f.loadOf(p.Parent)
	to := f.loadOf(p.ID)
	base := f.lastDisplacement(p.Parent)
	n := f.StepsPerPhase
	if n < 1 || from == to {
		n = 1
	}
	p.steps = nil
	for k := 1; k <= n; k++ {
		frac := float64(k) / float64(n)
		load := from + (to-from)*frac
		if f.FailAbove > 0 && math.Abs(load) > f.FailAbove {
			return solver.Status{Message: "soil body seems to collapse"}
		}
		disp := make(map[string]float64, len(base))
		for name, u := range base {
			disp[name] = u + (load-from)/f.Stiffness
		}
		p.steps = append(p.steps, solver.Step{Number: k, SumMstage: frac, Displacement: disp, Force: load})
	}
	return solver.Status{Converged: true, Message: "OK"}
}

func (f *Fake) safety(p *Phase) solver.Status {
	base := f.lastDisplacement(p.Parent)
	target := p.Settings.TargetMsf
	p.steps = nil
	msf := 1.0
	for k := 1; ; k++ {
		if p.Settings.MaxSteps > 0 && k > p.Settings.MaxSteps {
			return solver.Status{Message: "maximum number of steps reached"}
		}
		next := 1 + 0.1*float64(k)
		if target > 0 && next >= target-1e-9 {
			next = target
		}
		if next > f.SafetyPeak+1e-9 {
			return solver.Status{Message: "soil body seems to collapse"}
		}
		msf = next
		disp := make(map[string]float64, len(base))
		for name, u := range base {
			disp[name] = u - 0.01*(msf-1)
		}
		p.steps = append(p.steps, solver.Step{Number: k, SumMstage: 1, Msf: msf, Displacement: disp})
		if target > 0 && msf >= target {
			return solver.Status{Converged: true, Message: "OK"}
		}
	}
}

func (f *Fake) dynamic(p *Phase) solver.Status {
	s := p.Settings
	base := f.lastDisplacement(p.Parent)
	n := len(s.History) * max(s.SubSteps, 1)
	if n == 0 {
		n = max(s.SubSteps, 1)
	}
	p.steps = nil
	limit := n
	if s.SubSteps < f.MinSubSteps {
		limit = n / 2
	}
	for k := 1; k <= limit; k++ {
		t := s.Duration * float64(k) / float64(n)
		acc := interpolate(s.History, t)
		disp := make(map[string]float64, len(base))
		for name, u := range base {
			disp[name] = u + 1e-3*acc
		}
		p.steps = append(p.steps, solver.Step{Number: k, SumMstage: float64(k) / float64(n), Time: t, Acceleration: acc, Displacement: disp})
	}
	if limit < n {
		return solver.Status{Message: "time step too large"}
	}
	return solver.Status{Converged: true, Message: "OK"}
}

func interpolate(h []solver.Sample, t float64) float64 {
	if len(h) == 0 {
		return 0
	}
	if t <= h[0].Time {
		return h[0].Acceleration
	}
	for i := 1; i < len(h); i++ {
		if t <= h[i].Time {
			a, b := h[i-1], h[i]
			return a.Acceleration + (b.Acceleration-a.Acceleration)*(t-a.Time)/(b.Time-a.Time)
		}
	}
	return h[len(h)-1].Acceleration
}

func (f *Fake) Results(ctx context.Context, phase solver.ID) ([]solver.Step, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("Results"); err != nil {
		return nil, err
	}
	p, ok := f.phases[phase]
	if !ok {
		return nil, fmt.Errorf("results %s: %w", phase, solver.ErrNotFound)
	}
	out := make([]solver.Step, len(p.steps))
	copy(out, p.steps)
	return out, nil
}

func (f *Fake) DeletePhase(ctx context.Context, phase solver.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("DeletePhase"); err != nil {
		return err
	}
	if _, ok := f.phases[phase]; !ok {
		return fmt.Errorf("delete phase %s: %w", phase, solver.ErrNotFound)
	}
	for _, p := range f.phases {
		if p.Parent == phase {
			return fmt.Errorf("delete phase %s: phase %s depends on it", phase, p.Name)
		}
	}
	delete(f.phases, phase)
	for i, id := range f.order {
		if id == phase {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
	return nil
}

func (f *Fake) DeleteObject(ctx context.Context, object solver.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("DeleteObject"); err != nil {
		return err
	}
	if _, ok := f.objects[object]; !ok {
		return fmt.Errorf("delete %s: %w", object, solver.ErrNotFound)
	}
	delete(f.objects, object)
	return nil
}
