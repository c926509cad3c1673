package geometry

import (
	"fmt"
	"math"
)

// probe is the distance from a contact edge to the point used to look up
// the adjacent soil.
const probe = 1e-3

// Structure is one foundation kind. It describes the foundation body in
// the right half-domain; the symmetry strategy turns it into a model.
type Structure interface {
	Kind() Kind

	validate() error
	// top is the highest elevation reached by the foundation.
	top() float64
	// bounds lists the elevations the foundation adds as horizontal cuts.
	bounds() []float64
	// core is the right edge of the foundation body in the slice whose
	// mid elevation is z, or 0 when the slice holds no foundation body.
	core(z float64) float64
	plates() []PlateLine
	contacts(set InterfaceSet) []Edge
	load() Load
}

func newStructure(kind Kind, l *layout) (Structure, error) {
	switch kind {
	case KindPlate:
		return &plateStructure{l: l}, nil
	case KindSolid:
		return &solidStructure{l: l}, nil
	}
	return nil, fmt.Errorf("%w: unknown foundation kind %q", ErrInvalidConfig, kind)
}

// plateStructure is a footing plate with a column plate on the axis.
type plateStructure struct {
	l *layout
}

func (s *plateStructure) Kind() Kind { return KindPlate }

func (s *plateStructure) validate() error { return nil }

func (s *plateStructure) top() float64 { return 0 }

func (s *plateStructure) bounds() []float64 { return []float64{-s.l.d} }

func (s *plateStructure) core(float64) float64 { return 0 }

func (s *plateStructure) plates() []PlateLine {
	l := s.l
	footing := PlateLine{Name: "footing", From: Point{0, -l.d}, To: Point{l.b / 2, -l.d}}
	if l.d == 0 {
		return []PlateLine{footing}
	}
	return []PlateLine{
		{Name: "column", From: Point{0, 0}, To: Point{0, -l.d}},
		footing,
	}
}

func (s *plateStructure) contacts(set InterfaceSet) []Edge {
	l := s.l
	var edges []Edge
	if set.Bottom {
		edges = append(edges, l.edge("bottom", Point{0, -l.d}, Point{l.b / 2, -l.d}, Negative, Point{l.b / 4, -l.d - probe}))
	}
	if set.Top && l.d > 0 {
		edges = append(edges, l.edge("top", Point{0, -l.d}, Point{l.b / 2, -l.d}, Positive, Point{l.b / 4, -l.d + probe}))
	}
	if set.Column && l.d > 0 {
		edges = append(edges, l.edge("column", Point{0, -l.d}, Point{0, 0}, Negative, Point{probe, -l.d / 2}))
	}
	return edges
}

func (s *plateStructure) load() Load {
	return Load{Kind: PointLoad, From: Point{0, 0}, To: Point{0, 0}, Width: s.l.b}
}

// solidStructure is a concrete footing of thickness d1 and a column of
// width b1 reaching the ground surface.
type solidStructure struct {
	l *layout
}

func (s *solidStructure) Kind() Kind { return KindSolid }

func (s *solidStructure) validate() error {
	l := s.l
	switch {
	case l.b1 <= 0:
		return fmt.Errorf("%w: column width %g", ErrInvalidGeometry, l.b1)
	case l.b1 > l.b:
		return fmt.Errorf("%w: column width %g exceeds footing width %g", ErrInvalidGeometry, l.b1, l.b)
	case l.d1 <= 0:
		return fmt.Errorf("%w: footing thickness %g", ErrInvalidGeometry, l.d1)
	}
	return nil
}

// footingTop is the elevation of the top of the footing.
func (s *solidStructure) footingTop() float64 { return -s.l.d + s.l.d1 }

func (s *solidStructure) top() float64 { return math.Max(0, s.footingTop()) }

func (s *solidStructure) bounds() []float64 { return []float64{-s.l.d, s.footingTop()} }

func (s *solidStructure) core(z float64) float64 {
	if z < -s.l.d || z > s.top() {
		return 0
	}
	if z > s.footingTop() {
		return s.l.b1 / 2
	}
	return s.l.b / 2
}

func (s *solidStructure) plates() []PlateLine { return nil }

func (s *solidStructure) contacts(set InterfaceSet) []Edge {
	l := s.l
	ft := s.footingTop()
	var edges []Edge
	if set.Bottom {
		edges = append(edges, l.edge("bottom", Point{0, -l.d}, Point{l.b / 2, -l.d}, Negative, Point{l.b / 4, -l.d - probe}))
	}
	if set.Lateral && l.d > 0 {
		top := math.Min(ft, 0)
		edges = append(edges, l.edge("lateral", Point{l.b / 2, -l.d}, Point{l.b / 2, top}, Negative, Point{l.b/2 + probe, (top - l.d) / 2}))
	}
	if set.Top && l.d > l.d1 {
		edges = append(edges, l.edge("top", Point{l.b / 2, ft}, Point{l.b1 / 2, ft}, Negative, Point{(l.b + l.b1) / 4, ft + probe}))
	}
	if set.Column && l.d > l.d1 {
		edges = append(edges, l.edge("column", Point{l.b1 / 2, ft}, Point{l.b1 / 2, 0}, Negative, Point{l.b1/2 + probe, ft / 2}))
	}
	return edges
}

func (s *solidStructure) load() Load {
	z := s.top()
	return Load{Kind: LineLoad, From: Point{0, z}, To: Point{s.l.b1 / 2, z}, Width: s.l.b1}
}

// edge builds a contact edge and resolves the soil next to it.
func (l *layout) edge(name string, from, to Point, side Side, at Point) Edge {
	e := Edge{Name: name, From: from, To: to, Side: side, Fill: -1}
	e.Stratum = l.strata.Index(at.Y)
	if l.hasFill() && at.Y > -l.d && at.Y < 0 {
		e.Fill = l.fill.Index(at.Y)
	}
	return e
}
