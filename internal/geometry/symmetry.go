package geometry

import (
	"fmt"
	"math"
)

// symmetry turns a half-domain structure into the modelled domain.
type symmetry interface {
	assemble(l *layout, s Structure, set InterfaceSet, offset float64, g *Geometry) error
}

// halfDomain models x in [0, W] only.
type halfDomain struct{}

func (halfDomain) assemble(l *layout, s Structure, set InterfaceSet, _ float64, g *Geometry) error {
	polys, err := l.slice(s, l.width)
	if err != nil {
		return err
	}
	g.Polygons = polys
	g.Plates = s.plates()
	g.Contacts = s.contacts(set)
	g.Load = s.load()
	g.XMin, g.XMax = 0, l.width
	return nil
}

// mirroredDomain models the full domain. The right half extends W - e and
// the mirrored left half W + e before everything is shifted by e, so the
// left edge is never farther from the foundation than the right edge.
type mirroredDomain struct{}

func (mirroredDomain) assemble(l *layout, s Structure, set InterfaceSet, offset float64, g *Geometry) error {
	e := offset
	if e > 0 {
		l.adjust("offset %g mirrored to %g", e, -e)
		e = -e
	}
	if l.width+e < l.minWidth {
		w := l.minWidth - e
		l.adjust("model width %g raised to %g to fit offset %g", l.width, w, e)
		l.width = w
	}

	right, err := l.slice(s, l.width-e)
	if err != nil {
		return err
	}
	left, err := l.slice(s, l.width+e)
	if err != nil {
		return err
	}
	for _, p := range left {
		g.Polygons = append(g.Polygons, p.mirrored().translated(e))
	}
	for _, p := range right {
		g.Polygons = append(g.Polygons, p.translated(e))
	}

	for _, p := range s.plates() {
		if p.From.X == 0 && p.To.X == 0 {
			g.Plates = append(g.Plates, shiftLine(p, e))
			continue
		}
		// Lines starting on the axis are joined with their mirror image.
		p.From = Point{X: -p.To.X, Y: p.To.Y}
		g.Plates = append(g.Plates, shiftLine(p, e))
	}

	for _, c := range s.contacts(set) {
		switch {
		case c.From.X == 0 && c.To.X == 0:
			g.Contacts = append(g.Contacts, shiftEdge(c, e))
			left := c
			left.Name += "_left"
			left.Side = opposite(c.Side)
			g.Contacts = append(g.Contacts, shiftEdge(left, e))
		case c.From.X == 0:
			c.From = Point{X: -c.To.X, Y: c.To.Y}
			g.Contacts = append(g.Contacts, shiftEdge(c, e))
		default:
			g.Contacts = append(g.Contacts, shiftEdge(c, e))
			left := c
			left.Name += "_left"
			left.From = Point{X: -c.To.X, Y: c.To.Y}
			left.To = Point{X: -c.From.X, Y: c.From.Y}
			g.Contacts = append(g.Contacts, shiftEdge(left, e))
		}
	}

	ld := s.load()
	if ld.Kind == LineLoad {
		ld.From.X = -ld.To.X
	}
	ld.From.X += e
	ld.To.X += e
	g.Load = ld

	g.Offset = e
	g.XMin = e - (l.width + e)
	g.XMax = e + (l.width - e)
	return nil
}

// slice cuts the half-domain of half-width w into polygons. Every stratum,
// fill, excavation, foundation and ratchetting boundary is a horizontal cut;
// inside a slice the regions are laid out left to right.
func (l *layout) slice(s Structure, w float64) ([]Polygon, error) {
	bounds := append([]float64{}, s.bounds()...)
	for _, c := range []Column{l.strata, l.fill, l.excavation} {
		for _, st := range c {
			bounds = append(bounds, st.Bottom)
		}
	}
	if l.dr > 0 {
		bounds = append(bounds, -l.d-l.dr)
	}
	zs := cuts(-l.depth, s.top(), bounds...)

	var out []Polygon
	add := func(p Polygon, err error, stratum, fill int, excavated bool) error {
		if err != nil {
			return err
		}
		p.Stratum = stratum
		p.Fill = fill
		p.Excavated = excavated
		out = append(out, p)
		return nil
	}

	for i := 0; i+1 < len(zs); i++ {
		zt, zb := zs[i], zs[i+1]
		mid := (zt + zb) / 2
		stratum := l.strata.Index(mid)

		x := s.core(mid)
		if x > 0 {
			p, err := newPolygon(RoleFoundation, Point{0, zb}, Point{x, zb}, Point{x, zt}, Point{0, zt})
			if err := add(p, err, stratum, -1, l.hasFill() && mid < 0); err != nil {
				return nil, err
			}
		}
		if mid > 0 {
			continue
		}

		inTop, inBot := x, x
		switch {
		case l.hasFill() && mid > -l.d:
			inTop, inBot = l.xFill(zt), l.xFill(zb)
			p, err := newPolygon(RoleFill, Point{x, zb}, Point{inBot, zb}, Point{inTop, zt}, Point{x, zt})
			if err := add(p, err, stratum, l.fill.Index(mid), true); err != nil {
				return nil, err
			}
		case l.dr > 0 && mid < -l.d && mid > -l.d-l.dr:
			rx := l.b/2 + l.bfill
			inTop, inBot = rx, rx
			p, err := newPolygon(RoleRatchetting, Point{0, zb}, Point{rx, zb}, Point{rx, zt}, Point{0, zt})
			if err := add(p, err, stratum, -1, false); err != nil {
				return nil, err
			}
		}
		if math.Max(inTop, inBot) >= w-eps {
			return nil, fmt.Errorf("%w: model half-width %g does not clear the foundation at elevation %g", ErrInvalidGeometry, w, mid)
		}
		p, err := newPolygon(RoleSoil, Point{inBot, zb}, Point{w, zb}, Point{w, zt}, Point{inTop, zt})
		if err := add(p, err, stratum, -1, false); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func opposite(s Side) Side {
	if s == Positive {
		return Negative
	}
	return Positive
}

func shiftLine(p PlateLine, dx float64) PlateLine {
	p.From.X += dx
	p.To.X += dx
	return p
}

func shiftEdge(c Edge, dx float64) Edge {
	c.From.X += dx
	c.To.X += dx
	return c
}
