// Package solver defines the contract of the external FE solver the engine
// drives. The connection itself lives outside this module.
package solver

import (
	"context"
	"errors"

	"github.com/zulandar/padtest/internal/geometry"
)

// ErrNotFound is returned for operations on objects the solver no longer has.
var ErrNotFound = errors.New("solver: object not found")

// ID identifies an object in the solver project.
type ID string

// Project holds the model-wide settings of a new project.
type Project struct {
	Title       string
	Comments    string
	ModelType   string // "axisymmetry" or "planestrain"
	ElementType string // "6-Noded" or "15-Noded"
	XMin, XMax  float64
	Depth       float64
}

// PhaseKind is the calculation type of a phase.
type PhaseKind string

const (
	Plastic  PhaseKind = "plastic"
	Safety   PhaseKind = "safety"
	Dynamic  PhaseKind = "dynamic"
	Excavate PhaseKind = "excavation"
)

// Boundary is the lateral boundary condition of a dynamic phase.
type Boundary string

const (
	Viscous   Boundary = "viscous"
	Compliant Boundary = "compliant"
)

// Sample is one point of an acceleration history.
type Sample struct {
	Time         float64 `yaml:"time" json:"time"`
	Acceleration float64 `yaml:"acceleration" json:"acceleration"`
}

// PhaseSettings configures a new phase.
type PhaseSettings struct {
	Name           string
	Kind           PhaseKind
	MaxSteps       int
	MaxStepsStored int

	// Safety: target multiplier, 0 runs to failure.
	TargetMsf float64

	// Dynamic.
	Duration float64
	SubSteps int
	History  []Sample
	Boundary Boundary
	Alpha    float64
	Beta     float64
}

// Status is the outcome of a calculation.
type Status struct {
	Converged bool
	Message   string
}

// Step is one stored calculation step.
type Step struct {
	Number    int
	SumMstage float64
	Msf       float64
	Time      float64
	// Displacement is the vertical displacement per output point name.
	Displacement map[string]float64
	Force        float64
	Acceleration float64
}

// Solver is the remote FE solver. Every call blocks until the solver has
// finished the command. Implementations are not safe for concurrent use.
type Solver interface {
	NewProject(ctx context.Context, p Project) error
	AddPolygon(ctx context.Context, p geometry.Polygon) (ID, error)
	AddPlate(ctx context.Context, p geometry.PlateLine) (ID, error)
	AddInterface(ctx context.Context, e geometry.Edge) (ID, error)
	AddWaterLevel(ctx context.Context, w geometry.WaterLevel) (ID, error)
	AddLoad(ctx context.Context, l geometry.Load) (ID, error)
	AddOutputPoint(ctx context.Context, p geometry.OutputPoint) error
	CreateSoilMaterial(ctx context.Context, name string, params map[string]any) (ID, error)
	CreatePlateMaterial(ctx context.Context, name string, params map[string]any) (ID, error)
	Mesh(ctx context.Context, density float64) error

	InitialPhase(ctx context.Context) (ID, error)
	CreatePhase(ctx context.Context, parent ID, s PhaseSettings) (ID, error)
	// AssignMaterial sets the material of an object from phase on.
	AssignMaterial(ctx context.Context, phase, object, material ID) error
	SetActive(ctx context.Context, phase, object ID, active bool) error
	// SetLoad sets the load value (point load or line load intensity).
	SetLoad(ctx context.Context, phase, load ID, value float64) error
	Calculate(ctx context.Context, phase ID) (Status, error)
	Results(ctx context.Context, phase ID) ([]Step, error)

	DeletePhase(ctx context.Context, phase ID) error
	DeleteObject(ctx context.Context, object ID) error
}
