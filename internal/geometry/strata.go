package geometry

import (
	"fmt"
	"math"
	"sort"
)

// Stratum is a horizontal soil layer. Elevations are negative below the
// ground surface.
type Stratum struct {
	Top      float64 `json:"top"`
	Bottom   float64 `json:"bottom"`
	Material string  `json:"material"`
}

// Thickness returns Top - Bottom.
func (s Stratum) Thickness() float64 { return s.Top - s.Bottom }

// Column is an ordered, contiguous, top-to-bottom set of strata.
type Column []Stratum

// Height returns the total modelled column height.
func (c Column) Height() float64 {
	var h float64
	for _, s := range c {
		h += s.Thickness()
	}
	return h
}

// Index returns the index of the layer containing elevation y, or -1.
func (c Column) Index(y float64) int {
	for i, s := range c {
		if y <= s.Top+eps && y >= s.Bottom-eps {
			return i
		}
	}
	return -1
}

// newColumn converts thicknesses into contiguous layers starting at top.
func newColumn(top float64, thickness []float64, prefix string) Column {
	col := make(Column, len(thickness))
	z := top
	for i, t := range thickness {
		col[i] = Stratum{Top: z, Bottom: z - t, Material: fmt.Sprintf("%s_%d", prefix, i+1)}
		z -= t
	}
	return col
}

// layout holds the resolved dimensions shared by every structure variant.
type layout struct {
	b, d, b1, d1 float64

	strata     Column
	fill       Column
	excavation Column

	fillAngle float64
	bfill     float64
	dr        float64

	depth    float64
	width    float64
	minWidth float64

	adjustments []string
}

func (l *layout) hasFill() bool { return len(l.fill) > 0 }

func (l *layout) adjust(format string, args ...any) {
	l.adjustments = append(l.adjustments, fmt.Sprintf(format, args...))
}

// xFill returns the x coordinate of the fill slope at elevation z.
func (l *layout) xFill(z float64) float64 {
	return (z+l.d)/math.Tan(l.fillAngle*math.Pi/180) + l.b/2 + l.bfill
}

// resolveStrata applies the model depth rules and extends the last
// stratum when the declared strata are shorter than the model.
func (l *layout) resolveStrata(dstrata []float64, modelDepth float64) error {
	for i, t := range dstrata {
		if t <= 0 {
			return fmt.Errorf("%w: stratum %d has thickness %g", ErrInvalidGeometry, i+1, t)
		}
	}
	def := l.d + 3*l.b
	minDepth := l.d + 0.5*l.b

	var sum float64
	for _, t := range dstrata {
		sum += t
	}
	depth := modelDepth
	switch {
	case depth == 0:
		depth = math.Max(def, sum)
	case depth < minDepth:
		l.adjust("model depth %g raised to minimum %g", depth, minDepth)
		depth = minDepth
	}

	thickness := append([]float64(nil), dstrata...)
	switch {
	case len(thickness) == 0:
		thickness = []float64{depth}
	case sum < depth:
		last := len(thickness) - 1
		thickness[last] = depth - (sum - thickness[last])
		l.adjust("stratum %d extended to %g to reach model depth %g", last+1, thickness[last], depth)
	case sum > depth:
		l.adjust("model depth %g raised to strata depth %g", depth, sum)
		depth = sum
	}
	l.depth = depth
	l.strata = newColumn(0, thickness, "strata")
	return nil
}

// resolveFill builds the fill and excavation layers. Fill only exists for
// embedded foundations with a fill angle.
func (l *layout) resolveFill(spec Spec) error {
	if spec.FillAngle == nil || l.d == 0 {
		return nil
	}
	angle := *spec.FillAngle
	if angle <= 0 || angle > 90 {
		return fmt.Errorf("%w: fill angle %g outside (0, 90]", ErrInvalidGeometry, angle)
	}
	if spec.NFill > 0 && len(spec.DFill) > 0 {
		return fmt.Errorf("%w: nfill and dfill are mutually exclusive", ErrInvalidConfig)
	}
	if spec.NFill < 0 {
		return fmt.Errorf("%w: nfill %d is negative", ErrInvalidGeometry, spec.NFill)
	}
	l.fillAngle = angle
	l.bfill = DefaultBFill
	if spec.BFill != nil {
		if *spec.BFill < 0 {
			return fmt.Errorf("%w: bfill %g is negative", ErrInvalidGeometry, *spec.BFill)
		}
		l.bfill = *spec.BFill
	}

	var dfill []float64
	switch {
	case spec.NFill > 0:
		for i := 0; i < spec.NFill; i++ {
			dfill = append(dfill, l.d/float64(spec.NFill))
		}
	case len(spec.DFill) > 0:
		dfill = append(dfill, spec.DFill...)
	default:
		dfill = []float64{l.d}
	}
	l.fill = newColumn(0, closeLayers(dfill, l.d), "fill")

	var dexc []float64
	for _, s := range l.strata {
		if -s.Bottom <= l.d+eps {
			dexc = append(dexc, s.Thickness())
		}
	}
	l.excavation = newColumn(0, closeLayers(dexc, l.d), "excavation")
	return nil
}

// closeLayers keeps the layers that end above depth and closes the set
// with a final layer reaching exactly depth.
func closeLayers(thickness []float64, depth float64) []float64 {
	var out []float64
	var sum float64
	for _, t := range thickness {
		if t <= 0 || sum+t >= depth-eps {
			break
		}
		out = append(out, t)
		sum += t
	}
	return append(out, depth-sum)
}

// resolveWidth applies the model half-width defaults and minimum.
func (l *layout) resolveWidth(modelWidth float64) {
	def := math.Max(1.5*l.d, 2*l.b)
	l.minWidth = 1.1 * l.b / 2
	if l.hasFill() {
		l.minWidth = math.Max(l.minWidth, l.b/2+l.bfill+l.d/math.Tan(l.fillAngle*math.Pi/180)+0.5)
		def = math.Max(def, l.minWidth)
	}
	switch {
	case modelWidth == 0:
		l.width = def
	case modelWidth < l.minWidth:
		l.adjust("model width %g raised to minimum %g", modelWidth, l.minWidth)
		l.width = l.minWidth
	default:
		l.width = modelWidth
	}
}

// cuts returns the distinct elevations within [lo, hi] in descending order.
func cuts(lo, hi float64, values ...float64) []float64 {
	var zs []float64
	for _, v := range append(values, lo, hi) {
		if v < lo-eps || v > hi+eps {
			continue
		}
		zs = append(zs, v)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(zs)))
	var out []float64
	for _, z := range zs {
		if len(out) > 0 && math.Abs(out[len(out)-1]-z) < eps {
			continue
		}
		out = append(out, z)
	}
	return out
}
