// Package geometry builds the stratified soil polygons, foundation
// structures and contact edges of a shallow-foundation model.
package geometry

import (
	"errors"
	"fmt"
	"strconv"
)

var (
	// ErrInvalidGeometry is returned when a structural invariant cannot be
	// defaulted (degenerate stratum, non-positive width, ...).
	ErrInvalidGeometry = errors.New("geometry: invalid geometry")
	// ErrInvalidConfig is returned for incompatible option combinations.
	ErrInvalidConfig = errors.New("geometry: invalid configuration")
)

// DefaultBFill is the distance between the foundation edge and the start
// of the fill slope when none is given.
const DefaultBFill = 0.5

// Kind is the foundation structure kind.
type Kind string

const (
	KindPlate Kind = "plate"
	KindSolid Kind = "solid"
)

// Symmetry selects between the half-domain and the full-domain model.
type Symmetry string

const (
	Symmetric Symmetry = "symmetric"
	Full      Symmetry = "full"
)

// InterfaceSet selects which foundation/soil contacts get an interface.
type InterfaceSet struct {
	Column  bool `yaml:"column" json:"column"`
	Top     bool `yaml:"top" json:"top"`
	Bottom  bool `yaml:"bottom" json:"bottom"`
	Lateral bool `yaml:"lateral" json:"lateral"`
}

// DefaultInterfaces only places an interface along the column.
var DefaultInterfaces = InterfaceSet{Column: true}

// Spec is the user-facing geometry definition.
type Spec struct {
	Kind         Kind     `yaml:"kind" json:"kind"`
	Symmetry     Symmetry `yaml:"symmetry" json:"symmetry"`
	Axisymmetric bool     `yaml:"-" json:"axisymmetric"`

	B      float64 `yaml:"b" json:"b"`
	D      float64 `yaml:"d" json:"d"`
	B1     float64 `yaml:"b1" json:"b1,omitempty"`
	D1     float64 `yaml:"d1" json:"d1,omitempty"`
	Offset float64 `yaml:"offset" json:"offset,omitempty"`

	DStrata      []float64 `yaml:"dstrata" json:"dstrata,omitempty"`
	WaterTable   *float64  `yaml:"wt" json:"wt,omitempty"`
	FillAngle    *float64  `yaml:"fill_angle" json:"fill_angle,omitempty"`
	BFill        *float64  `yaml:"bfill" json:"bfill,omitempty"`
	NFill        int       `yaml:"nfill" json:"nfill,omitempty"`
	DFill        []float64 `yaml:"dfill" json:"dfill,omitempty"`
	DRatchetting float64   `yaml:"dratchetting" json:"dratchetting,omitempty"`
	ModelWidth   float64   `yaml:"model_width" json:"model_width,omitempty"`
	ModelDepth   float64   `yaml:"model_depth" json:"model_depth,omitempty"`

	// Interfaces defaults to DefaultInterfaces when nil.
	Interfaces *InterfaceSet `yaml:"interfaces" json:"interfaces,omitempty"`
}

// PlateLine is a structural plate element.
type PlateLine struct {
	Name string `json:"name"`
	From Point  `json:"from"`
	To   Point  `json:"to"`
}

// Side names the face of an edge an interface is attached to.
type Side string

const (
	Negative Side = "negative"
	Positive Side = "positive"
)

// Edge is a foundation/soil contact line.
type Edge struct {
	Name string `json:"name"`
	From Point  `json:"from"`
	To   Point  `json:"to"`
	Side Side   `json:"side"`

	// Stratum and Fill locate the soil next to the edge. Fill is -1 when
	// the adjacent soil is native.
	Stratum int `json:"stratum"`
	Fill    int `json:"fill"`
}

// LoadKind is how the foundation load is applied.
type LoadKind string

const (
	PointLoad LoadKind = "point"
	LineLoad  LoadKind = "line"
)

// Load is the anchor of the foundation load.
type Load struct {
	Kind LoadKind `json:"kind"`
	From Point    `json:"from"`
	To   Point    `json:"to"`
	// Width converts a total load into a line load intensity.
	Width float64 `json:"width"`
}

// WaterLevel is the global phreatic line.
type WaterLevel struct {
	From Point `json:"from"`
	To   Point `json:"to"`
}

// OutputPoint is a named result location.
type OutputPoint struct {
	Name  string `json:"name"`
	Point Point  `json:"point"`
}

// Geometry is the assembled, solver-agnostic model geometry.
type Geometry struct {
	Kind         Kind     `json:"kind"`
	Symmetry     Symmetry `json:"symmetry"`
	Axisymmetric bool     `json:"axisymmetric"`

	B      float64 `json:"b"`
	D      float64 `json:"d"`
	B1     float64 `json:"b1,omitempty"`
	D1     float64 `json:"d1,omitempty"`
	Offset float64 `json:"offset"`

	// Width is the half-width of the symmetric model.
	Width float64 `json:"width"`
	Depth float64 `json:"depth"`
	XMin  float64 `json:"xmin"`
	XMax  float64 `json:"xmax"`

	Strata      Column  `json:"strata"`
	Fill        Column  `json:"fill,omitempty"`
	Excavation  Column  `json:"excavation,omitempty"`
	FillAngle   float64 `json:"fill_angle,omitempty"`
	BFill       float64 `json:"bfill,omitempty"`
	Ratchetting float64 `json:"dratchetting,omitempty"`

	Polygons   []Polygon   `json:"polygons"`
	Plates     []PlateLine `json:"plates,omitempty"`
	Contacts   []Edge      `json:"contacts,omitempty"`
	Load       Load        `json:"load"`
	WaterTable *WaterLevel `json:"water_table,omitempty"`

	// Adjustments lists every silent correction applied to the spec.
	Adjustments []string `json:"adjustments,omitempty"`
}

// HasFill reports whether the model has fill layers.
func (g *Geometry) HasFill() bool { return len(g.Fill) > 0 }

// HasColumn reports whether the foundation has a column above the footing.
func (g *Geometry) HasColumn() bool {
	if g.Kind == KindPlate {
		return g.D > 0
	}
	return g.D > g.D1
}

// Symmetric reports whether only the half-domain is modelled.
func (g *Geometry) Symmetric() bool { return g.Symmetry == Symmetric }

// LoadShare is the fraction of the total load carried by the modelled
// domain for point loads. Line loads are intensities and need no share.
func (g *Geometry) LoadShare() float64 {
	if g.Load.Kind == PointLoad && g.Symmetric() && !g.Axisymmetric {
		return 0.5
	}
	return 1
}

// Area returns the total polygon area.
func (g *Geometry) Area() float64 {
	var a float64
	for _, p := range g.Polygons {
		a += p.Area()
	}
	return a
}

// PolygonsWith returns the indexes of the polygons with the given role.
func (g *Geometry) PolygonsWith(role Role) []int {
	var idx []int
	for i, p := range g.Polygons {
		if p.Role == role {
			idx = append(idx, i)
		}
	}
	return idx
}

// OutputPoints returns the "top" point and one point per base location,
// where a location runs from 0 at the foundation centre to 1 at its edge.
func (g *Geometry) OutputPoints(locations []float64) []OutputPoint {
	pts := []OutputPoint{{Name: "top", Point: Point{X: g.Offset, Y: g.Load.From.Y}}}
	for _, f := range locations {
		pts = append(pts, OutputPoint{
			Name:  LocationName(f),
			Point: Point{X: g.Offset + f*g.B/2, Y: -g.D},
		})
	}
	return pts
}

// LocationName formats a base location as a result key.
func LocationName(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// Build validates the spec and assembles the geometry.
func Build(spec Spec) (*Geometry, error) {
	if spec.Symmetry == "" {
		spec.Symmetry = Symmetric
	}
	if spec.Kind == "" {
		spec.Kind = KindPlate
	}
	if spec.Offset != 0 && spec.Symmetry == Symmetric {
		return nil, fmt.Errorf("%w: offset %g requires the full model", ErrInvalidConfig, spec.Offset)
	}
	if spec.Axisymmetric && spec.Symmetry != Symmetric {
		return nil, fmt.Errorf("%w: axisymmetric models must be symmetric", ErrInvalidConfig)
	}
	if spec.B <= 0 {
		return nil, fmt.Errorf("%w: foundation width %g", ErrInvalidGeometry, spec.B)
	}
	if spec.D < 0 {
		return nil, fmt.Errorf("%w: foundation depth %g", ErrInvalidGeometry, spec.D)
	}
	if spec.DRatchetting < 0 {
		return nil, fmt.Errorf("%w: ratchetting depth %g", ErrInvalidGeometry, spec.DRatchetting)
	}
	if spec.ModelWidth < 0 || spec.ModelDepth < 0 {
		return nil, fmt.Errorf("%w: negative model extent", ErrInvalidGeometry)
	}

	l := &layout{b: spec.B, d: spec.D, b1: spec.B1, d1: spec.D1, dr: spec.DRatchetting}
	s, err := newStructure(spec.Kind, l)
	if err != nil {
		return nil, err
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	if err := l.resolveStrata(spec.DStrata, spec.ModelDepth); err != nil {
		return nil, err
	}
	if err := l.resolveFill(spec); err != nil {
		return nil, err
	}
	l.resolveWidth(spec.ModelWidth)
	if l.d+l.dr > l.depth {
		return nil, fmt.Errorf("%w: ratchetting zone below model depth %g", ErrInvalidGeometry, l.depth)
	}

	g := &Geometry{
		Kind:         spec.Kind,
		Symmetry:     spec.Symmetry,
		Axisymmetric: spec.Axisymmetric,
		B:            spec.B,
		D:            spec.D,
		B1:           spec.B1,
		D1:           spec.D1,
		Ratchetting:  spec.DRatchetting,
	}
	set := DefaultInterfaces
	if spec.Interfaces != nil {
		set = *spec.Interfaces
	}

	var sym symmetry = halfDomain{}
	if spec.Symmetry == Full {
		sym = mirroredDomain{}
	} else if spec.Symmetry != Symmetric {
		return nil, fmt.Errorf("%w: unknown symmetry %q", ErrInvalidConfig, spec.Symmetry)
	}
	if err := sym.assemble(l, s, set, spec.Offset, g); err != nil {
		return nil, err
	}

	g.Width = l.width
	g.Depth = l.depth
	g.Strata = l.strata
	g.Fill = l.fill
	g.Excavation = l.excavation
	g.FillAngle = l.fillAngle
	g.BFill = l.bfill
	if spec.WaterTable != nil {
		wt := -*spec.WaterTable
		g.WaterTable = &WaterLevel{From: Point{X: g.XMin, Y: wt}, To: Point{X: g.XMax, Y: wt}}
	}
	g.Adjustments = l.adjustments
	return g, nil
}
