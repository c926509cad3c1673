package geometry

import (
	"fmt"
	"math"
)

// Point is a 2D coordinate in model space (m). Y is elevation; the ground
// surface is at y = 0 and depth is negative.
type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Role classifies what a polygon represents in the model.
type Role string

const (
	RoleSoil        Role = "soil"
	RoleFill        Role = "fill"
	RoleFoundation  Role = "foundation"
	RoleRatchetting Role = "ratchetting"
)

// Polygon is a closed soil cluster submitted to the solver. Vertices are not
// repeated at the end.
type Polygon struct {
	Vertices []Point `json:"vertices"`
	Role     Role    `json:"role"`

	// Stratum is the index of the original stratum containing the centroid.
	Stratum int `json:"stratum"`
	// Fill is the fill layer index, -1 when the polygon is not fill.
	Fill int `json:"fill"`
	// Excavated polygons are removed during the excavation phase.
	Excavated bool `json:"excavated"`
}

// Area returns the polygon area using the shoelace formula.
func (p Polygon) Area() float64 {
	a, _, _ := p.areaAndCentroid()
	return math.Abs(a)
}

// Centroid returns the polygon centroid.
func (p Polygon) Centroid() Point {
	_, cx, cy := p.areaAndCentroid()
	return Point{X: cx, Y: cy}
}

// areaAndCentroid returns the signed area and the centroid.
func (p Polygon) areaAndCentroid() (signed, cx, cy float64) {
	n := len(p.Vertices)
	if n < 3 {
		return 0, 0, 0
	}
	var sumX, sumY float64
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		cross := p.Vertices[i].X*p.Vertices[j].Y - p.Vertices[j].X*p.Vertices[i].Y
		signed += cross
		sumX += (p.Vertices[i].X + p.Vertices[j].X) * cross
		sumY += (p.Vertices[i].Y + p.Vertices[j].Y) * cross
	}
	signed /= 2
	if signed != 0 {
		cx = sumX / (6 * signed)
		cy = sumY / (6 * signed)
	}
	return signed, cx, cy
}

// Bounds returns the bounding box corners (min, max).
func (p Polygon) Bounds() (Point, Point) {
	if len(p.Vertices) == 0 {
		return Point{}, Point{}
	}
	lo, hi := p.Vertices[0], p.Vertices[0]
	for _, v := range p.Vertices[1:] {
		lo.X = math.Min(lo.X, v.X)
		lo.Y = math.Min(lo.Y, v.Y)
		hi.X = math.Max(hi.X, v.X)
		hi.Y = math.Max(hi.Y, v.Y)
	}
	return lo, hi
}

// newPolygon drops collapsed vertices and rejects zero-area input.
func newPolygon(role Role, vertices ...Point) (Polygon, error) {
	var vs []Point
	for _, v := range vertices {
		if len(vs) > 0 && samePoint(vs[len(vs)-1], v) {
			continue
		}
		vs = append(vs, v)
	}
	if len(vs) > 1 && samePoint(vs[0], vs[len(vs)-1]) {
		vs = vs[:len(vs)-1]
	}
	p := Polygon{Vertices: vs, Role: role, Fill: -1}
	if p.Area() < eps {
		return Polygon{}, fmt.Errorf("%w: %s polygon has zero area", ErrInvalidGeometry, role)
	}
	return p, nil
}

// mirrored reflects the polygon about x = 0, keeping a counter-clockwise
// vertex order.
func (p Polygon) mirrored() Polygon {
	out := p
	out.Vertices = make([]Point, len(p.Vertices))
	n := len(p.Vertices)
	for i, v := range p.Vertices {
		out.Vertices[n-1-i] = Point{X: -v.X, Y: v.Y}
	}
	return out
}

func (p Polygon) translated(dx float64) Polygon {
	out := p
	out.Vertices = make([]Point, len(p.Vertices))
	for i, v := range p.Vertices {
		out.Vertices[i] = Point{X: v.X + dx, Y: v.Y}
	}
	return out
}

const eps = 1e-9

func samePoint(a, b Point) bool {
	return math.Abs(a.X-b.X) < eps && math.Abs(a.Y-b.Y) < eps
}
