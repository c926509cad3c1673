package material

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// DefaultConcreteNu is the Poisson ratio used for concrete sections.
const DefaultConcreteNu = 0.4

// ErrMissingStiffness is returned when a plate has no usable stiffness.
var ErrMissingStiffness = errors.New("material: plate stiffness missing")

// Plate is an elastic, isotropic plate material.
type Plate struct {
	Name string  `json:"name"`
	EA   float64 `json:"ea"`
	EI   float64 `json:"ei"`
	W    float64 `json:"w"`
	Nu   float64 `json:"nu"`

	Defaults []Default `json:"defaults,omitempty"`
	Ignored  []string  `json:"ignored,omitempty"`
}

// EquivalentThickness returns sqrt(12 EI / EA).
func (p *Plate) EquivalentThickness() float64 {
	return math.Sqrt(12 * p.EI / p.EA)
}

// ShearModulus returns EA / deq / (2 (1 + nu)).
func (p *Plate) ShearModulus() float64 {
	return p.EA / p.EquivalentThickness() / (2 * (1 + p.Nu))
}

// Params returns the parameter mapping sent to the solver.
func (p *Plate) Params() map[string]any {
	return map[string]any{
		"MaterialType": "Elastic",
		"Isotropic":    true,
		"EA1":          p.EA,
		"EI":           p.EI,
		"w":            p.W,
		"nu":           p.Nu,
	}
}

var plateKeys = map[string]string{
	"ea":      "EA",
	"ea1":     "EA",
	"ei":      "EI",
	"w":       "w",
	"weight":  "w",
	"nu":      "nu",
	"poisson": "nu",
}

// PlateFromParams builds a plate from direct stiffness values.
func PlateFromParams(name string, raw map[string]any) (*Plate, error) {
	p := &Plate{Name: name}
	vals := map[string]float64{}
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		c, ok := plateKeys[Normalize(k)]
		if !ok {
			p.Ignored = append(p.Ignored, k)
			continue
		}
		v, ok := toFloat(raw[k])
		if !ok {
			p.Ignored = append(p.Ignored, fmt.Sprintf("%s (invalid value %q)", k, fmt.Sprint(raw[k])))
			continue
		}
		vals[c] = v
	}
	if vals["EA"] <= 0 || vals["EI"] <= 0 {
		return nil, &ConfigError{Material: name, Err: fmt.Errorf("%w: EA and EI must be positive", ErrMissingStiffness)}
	}
	p.EA, p.EI = vals["EA"], vals["EI"]
	if w, ok := vals["w"]; ok && w >= 0 {
		p.W = w
	} else {
		p.Defaults = append(p.Defaults, Default{Key: "w", Value: 0.0, Reason: "missing"})
	}
	if nu, ok := vals["nu"]; ok && nu >= 0 && nu < 0.5 {
		p.Nu = nu
	} else {
		p.Nu = DefaultConcreteNu
		p.Defaults = append(p.Defaults, Default{Key: "nu", Value: DefaultConcreteNu, Reason: "missing"})
	}
	return p, nil
}

// Concrete is a concrete section: unit weight (kN/m3), thickness (m) and
// either the Young modulus (kPa) or the compressive strength (MPa).
type Concrete struct {
	Gamma float64 `yaml:"gamma" json:"gamma"`
	D     float64 `yaml:"d" json:"d"`
	E     float64 `yaml:"E" json:"E,omitempty"`
	Fc    float64 `yaml:"fc" json:"fc,omitempty"`
	Nu    float64 `yaml:"nu" json:"nu,omitempty"`
}

// Young returns E, or 4700 sqrt(fc) MPa expressed in kPa when E is unset.
func (c Concrete) Young() (float64, error) {
	switch {
	case c.E > 0:
		return c.E, nil
	case c.Fc > 0:
		return 4700 * math.Sqrt(c.Fc) * 1000, nil
	}
	return 0, fmt.Errorf("%w: concrete needs E or fc", ErrMissingStiffness)
}

func (c Concrete) nu() (float64, []Default) {
	if c.Nu > 0 && c.Nu < 0.5 {
		return c.Nu, nil
	}
	return DefaultConcreteNu, []Default{{Key: "nu", Value: DefaultConcreteNu, Reason: "missing"}}
}

// Plate derives the plate stiffness of the section.
func (c Concrete) Plate(name string) (*Plate, error) {
	e, err := c.Young()
	if err != nil {
		return nil, &ConfigError{Material: name, Err: err}
	}
	if c.D <= 0 {
		return nil, &ConfigError{Material: name, Err: fmt.Errorf("%w: thickness %g", ErrMissingStiffness, c.D)}
	}
	nu, defaults := c.nu()
	return &Plate{
		Name:     name,
		EA:       e * c.D,
		EI:       e * math.Pow(c.D, 3) / 12,
		W:        c.Gamma * c.D,
		Nu:       nu,
		Defaults: defaults,
	}, nil
}

// Solid returns the linear elastic, non-porous soil used for solid
// foundation polygons.
func (c Concrete) Solid(name string) (*Soil, error) {
	e, err := c.Young()
	if err != nil {
		return nil, &ConfigError{Material: name, Err: err}
	}
	nu, _ := c.nu()
	return NewSoil(name, map[string]any{
		KeySoilModel:  string(LinearElastic),
		KeyDrainage:   string(NonPorous),
		KeyGammaUnsat: c.Gamma,
		KeyERef:       e,
		KeyNu:         nu,
	})
}
