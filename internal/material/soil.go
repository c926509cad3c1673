package material

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// ErrNoVariant is returned when a mapping satisfies no soil variant.
var ErrNoVariant = errors.New("material: no soil variant satisfied")

// ConfigError wraps a configuration problem for a named material.
type ConfigError struct {
	Material string
	Err      error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("material %s: %v", e.Material, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Model is a soil constitutive variant.
type Model string

const (
	LinearElastic Model = "LinearElastic"
	MohrCoulomb   Model = "MohrCoulomb"
	HardeningSoil Model = "HardeningSoil"
	HSSmall       Model = "HSSmall"
)

// variants lists the soil models from most to least specific.
var variants = []Model{HSSmall, HardeningSoil, MohrCoulomb, LinearElastic}

var modelNames = map[string]Model{
	"linearelastic":        LinearElastic,
	"elastic":              LinearElastic,
	"le":                   LinearElastic,
	"mohrcoulomb":          MohrCoulomb,
	"mc":                   MohrCoulomb,
	"hardeningsoil":        HardeningSoil,
	"hardeningstrain":      HardeningSoil,
	"hs":                   HardeningSoil,
	"hssmall":              HSSmall,
	"hardeningsoilsmall":   HSSmall,
	"hardeningstrainsmall": HSSmall,
}

// ParseModel resolves a user-supplied soil model name.
func ParseModel(s string) (Model, bool) {
	m, ok := modelNames[Normalize(s)]
	return m, ok
}

// Drainage is the drainage type of a soil.
type Drainage string

const (
	Drained    Drainage = "Drained"
	UndrainedA Drainage = "Undrained A"
	UndrainedB Drainage = "Undrained B"
	UndrainedC Drainage = "Undrained C"
	NonPorous  Drainage = "Non-porous"
)

var drainages = []Drainage{Drained, UndrainedA, UndrainedB, UndrainedC, NonPorous}

// unsupported lists the drainage types a model cannot use.
var unsupported = map[Model][]Drainage{
	LinearElastic: {UndrainedB},
	HardeningSoil: {UndrainedC, NonPorous},
	HSSmall:       {UndrainedC, NonPorous},
}

// Default records a value the factory substituted.
type Default struct {
	Key    string `json:"key"`
	Value  any    `json:"value"`
	Reason string `json:"reason"`
}

// Soil is an immutable soil material.
type Soil struct {
	Name     string
	Model    Model
	Drainage Drainage

	values map[string]float64
	text   map[string]string

	// Defaults lists every substituted value, in the order applied.
	Defaults []Default
	// Ignored lists the keys that were not used.
	Ignored []string
}

// Value returns a numeric parameter.
func (s *Soil) Value(key string) (float64, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Rinter is the interface strength reduction of the soil.
func (s *Soil) Rinter() float64 {
	if v, ok := s.values[KeyRinter]; ok {
		return v
	}
	return 1
}

// Params returns the parameter mapping sent to the solver.
func (s *Soil) Params() map[string]any {
	out := make(map[string]any, len(s.values)+len(s.text)+2)
	for k, v := range s.values {
		out[k] = v
	}
	for k, v := range s.text {
		out[k] = v
	}
	out[KeySoilModel] = string(s.Model)
	out[KeyDrainage] = string(s.Drainage)
	return out
}

// required returns the minimum key sets for a model. Stiffness is
// satisfied by either ERef or E50ref and is checked separately.
func required(m Model) []string {
	switch m {
	case LinearElastic:
		return []string{KeyGammaUnsat}
	case MohrCoulomb:
		return []string{KeyGammaUnsat, KeyCRef, KeyPhi}
	case HardeningSoil:
		return []string{KeyGammaUnsat, KeyCRef, KeyPhi, KeyE50Ref, KeyPowerM}
	case HSSmall:
		return []string{KeyGammaUnsat, KeyCRef, KeyPhi, KeyE50Ref, KeyPowerM, KeyG0Ref, KeyGamma07}
	}
	return nil
}

// missing returns the keys of m's minimum set absent from values.
func missing(m Model, values map[string]float64) []string {
	var out []string
	for _, k := range required(m) {
		if _, ok := values[k]; !ok {
			out = append(out, k)
		}
	}
	_, e := values[KeyERef]
	_, e50 := values[KeyE50Ref]
	if !e && !e50 {
		out = append(out, KeyERef+"|"+KeyE50Ref)
	}
	return out
}

// allowed lists the numeric keys each model uses.
var allowed = func() map[Model]map[string]bool {
	common := []string{KeyGammaUnsat, KeyGammaSat, KeyEInit, KeyNu, KeyPermH, KeyPermV,
		KeyRinter, KeyRinterResid, KeyKnInter, KeyKsInter,
		KeyRayleighAlpha, KeyRayleighBeta, KeyXi1, KeyXi2, KeyF1, KeyF2}
	le := append([]string{KeyERef, KeyG, KeyEoed}, common...)
	mc := append([]string{KeyCRef, KeyPhi, KeyPsi, KeyCInc, KeyVerticalRef, KeyTensileStr, KeyOCR, KeyPOP}, le...)
	hs := append([]string{KeyCRef, KeyPhi, KeyPsi, KeyCInc, KeyVerticalRef, KeyTensileStr, KeyOCR, KeyPOP,
		KeyE50Ref, KeyEoedRef, KeyEurRef, KeyPowerM, KeyPRef, KeyK0nc, KeyRF}, common...)
	small := append([]string{KeyG0Ref, KeyGamma07}, hs...)
	set := func(keys []string) map[string]bool {
		m := make(map[string]bool, len(keys))
		for _, k := range keys {
			m[k] = true
		}
		return m
	}
	return map[Model]map[string]bool{
		LinearElastic: set(le),
		MohrCoulomb:   set(mc),
		HardeningSoil: set(hs),
		HSSmall:       set(small),
	}
}()

// NewSoil builds a soil material from a configuration mapping. Missing or
// invalid values fall back to defaults, each recorded in Defaults. It only
// fails when no variant's minimum key set is satisfied.
func NewSoil(name string, raw map[string]any) (*Soil, error) {
	s := &Soil{Name: name, values: map[string]float64{}, text: map[string]string{}}
	invalid := map[string]string{}

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var requested string
	var drainage string
	for _, k := range keys {
		c, ok := Canonical(k)
		if !ok {
			s.Ignored = append(s.Ignored, k)
			continue
		}
		if _, dup := s.values[c]; dup {
			s.Ignored = append(s.Ignored, k)
			continue
		}
		if textKeys[c] {
			v := fmt.Sprint(raw[k])
			switch c {
			case KeyName:
				if v != "" {
					s.Name = v
				}
			case KeySoilModel:
				requested = v
			case KeyDrainage:
				drainage = v
			default:
				s.text[c] = v
			}
			continue
		}
		v, ok := toFloat(raw[k])
		if !ok || !validValue(c, v) {
			invalid[c] = fmt.Sprint(raw[k])
			continue
		}
		s.values[c] = v
	}

	if err := s.selectModel(requested); err != nil {
		return nil, &ConfigError{Material: s.Name, Err: err}
	}
	s.selectDrainage(drainage)
	s.applyDefaults(invalid)

	for k := range s.values {
		if !allowed[s.Model][k] {
			delete(s.values, k)
			s.Ignored = append(s.Ignored, k)
		}
	}
	for k, v := range invalid {
		if _, ok := s.values[k]; !ok {
			s.Ignored = append(s.Ignored, fmt.Sprintf("%s (invalid value %q)", k, v))
		}
	}
	sort.Strings(s.Ignored)
	return s, nil
}

func (s *Soil) record(key string, value any, reason string) {
	s.Defaults = append(s.Defaults, Default{Key: key, Value: value, Reason: reason})
}

// selectModel honours an explicit model when satisfied, otherwise picks
// the most specific satisfied variant.
func (s *Soil) selectModel(requested string) error {
	if requested != "" {
		m, ok := ParseModel(requested)
		if ok && len(missing(m, s.values)) == 0 {
			s.Model = m
			return nil
		}
		start := 0
		if ok {
			for i, v := range variants {
				if v == m {
					start = i
				}
			}
		}
		for _, v := range variants[start:] {
			if len(missing(v, s.values)) == 0 {
				s.Model = v
				reason := fmt.Sprintf("unknown soil model %q", requested)
				if ok {
					reason = fmt.Sprintf("%s requires %s", m, strings.Join(missing(m, s.values), ", "))
				}
				s.record(KeySoilModel, string(v), reason)
				return nil
			}
		}
	} else {
		for _, v := range variants {
			if len(missing(v, s.values)) == 0 {
				s.Model = v
				return nil
			}
		}
	}
	return fmt.Errorf("%w: %s requires %s", ErrNoVariant, LinearElastic,
		strings.Join(missing(LinearElastic, s.values), ", "))
}

func (s *Soil) selectDrainage(raw string) {
	d := Drained
	switch {
	case raw == "":
		s.record(KeyDrainage, string(d), "missing")
	default:
		found := false
		for _, c := range drainages {
			if Normalize(raw) == Normalize(string(c)) {
				d, found = c, true
				break
			}
		}
		if !found {
			s.record(KeyDrainage, string(Drained), fmt.Sprintf("invalid value %q", raw))
		}
	}
	for _, u := range unsupported[s.Model] {
		if d == u {
			s.record(KeyDrainage, string(Drained), fmt.Sprintf("%s does not support %s", s.Model, d))
			d = Drained
		}
	}
	s.Drainage = d
}

// applyDefaults fills missing values. Constant defaults come first, then
// the ones derived from other values.
func (s *Soil) applyDefaults(invalid map[string]string) {
	set := func(key string, value float64) {
		if _, ok := s.values[key]; ok {
			return
		}
		reason := "missing"
		if raw, bad := invalid[key]; bad {
			reason = fmt.Sprintf("invalid value %q", raw)
		}
		s.values[key] = value
		s.record(key, value, reason)
	}
	setText := func(key, value string) {
		if _, ok := s.text[key]; ok {
			return
		}
		s.text[key] = value
		s.record(key, value, "missing")
	}

	hs := s.Model == HardeningSoil || s.Model == HSSmall
	if hs {
		set(KeyNu, 0.2)
	} else {
		set(KeyNu, 0.3)
	}
	set(KeyRinter, 1)
	set(KeyPermH, 0)
	set(KeyPermV, 0)
	setText(KeyRayleighMethod, "Direct")
	setText(KeyStrengthDet, "Manual")
	if s.Model != LinearElastic {
		set(KeyPsi, 0)
		set(KeyCInc, 0)
		set(KeyOCR, 1)
		set(KeyPOP, 0)
	}
	if hs {
		set(KeyPRef, 100)
		set(KeyRF, 0.9)
	}

	set(KeyGammaSat, s.values[KeyGammaUnsat])
	if hs {
		e50 := s.values[KeyE50Ref]
		set(KeyEoedRef, e50)
		set(KeyEurRef, 3*e50)
		set(KeyK0nc, 1-math.Sin(s.values[KeyPhi]*math.Pi/180))
		return
	}
	set(KeyERef, s.values[KeyE50Ref])
	e, nu := s.values[KeyERef], s.values[KeyNu]
	set(KeyG, e/(2*(1+nu)))
	set(KeyEoed, e*(1-nu)/((1+nu)*(1-2*nu)))
}

// validValue rejects values the solver cannot accept.
func validValue(key string, v float64) bool {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return false
	}
	switch key {
	case KeyNu:
		return v >= 0 && v < 0.5
	case KeyERef, KeyE50Ref, KeyEoedRef, KeyEurRef, KeyG0Ref, KeyGammaUnsat, KeyGammaSat, KeyPRef:
		return v > 0
	case KeyCRef, KeyPhi, KeyPsi, KeyRinter, KeyPermH, KeyPermV, KeyPowerM, KeyGamma07:
		return v >= 0
	}
	return true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}
