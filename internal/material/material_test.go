package material

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hsSmallMapping() map[string]any {
	return map[string]any{
		"Gamma Unsat":   18.0,
		"gamma_sat":     20,
		"E50ref":        "30000",
		"power-m":       0.5,
		"c":             5.0,
		"phi":           30.0,
		"G0ref":         90000.0,
		"gamma07":       1e-4,
		"drainage type": "drained",
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Gamma Unsat", "gammaunsat"},
		{"perm_primary_horizontal_axis", "permprimaryhorizontalaxis"},
		{"Drainage-Type", "drainagetype"},
		{"E50ref", "e50ref"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in))
	}

	c, ok := Canonical("KX")
	require.True(t, ok)
	assert.Equal(t, KeyPermH, c)
	c, ok = Canonical("suref")
	require.True(t, ok)
	assert.Equal(t, KeyCRef, c)
}

func TestNewSoil_FallsBackOneVariantAtATime(t *testing.T) {
	full := hsSmallMapping()
	tests := []struct {
		name   string
		remove []string
		want   Model
	}{
		{"all keys", nil, HSSmall},
		{"no gamma07", []string{"gamma07"}, HardeningSoil},
		{"no G0ref", []string{"G0ref"}, HardeningSoil},
		{"no powerm", []string{"power-m"}, MohrCoulomb},
		{"no phi", []string{"phi"}, LinearElastic},
		{"no cohesion", []string{"c"}, LinearElastic},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := map[string]any{}
			for k, v := range full {
				m[k] = v
			}
			for _, k := range tt.remove {
				delete(m, k)
			}
			s, err := NewSoil("clay", m)
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.Model)
		})
	}
}

func TestNewSoil_NoVariant(t *testing.T) {
	_, err := NewSoil("air", map[string]any{"phi": 30})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoVariant)
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "air", cfgErr.Material)
}

func TestNewSoil_ExplicitModel(t *testing.T) {
	m := hsSmallMapping()
	m["SoilModel"] = "mohr-coulomb"
	s, err := NewSoil("sand", m)
	require.NoError(t, err)
	assert.Equal(t, MohrCoulomb, s.Model)
	assert.Contains(t, s.Ignored, KeyG0Ref)

	// HS requested without powerm falls back and records it.
	m = hsSmallMapping()
	delete(m, "power-m")
	m["model"] = "HS"
	s, err = NewSoil("sand", m)
	require.NoError(t, err)
	assert.Equal(t, MohrCoulomb, s.Model)
	d := findDefault(s, KeySoilModel)
	require.NotNil(t, d)
	assert.Contains(t, d.Reason, KeyPowerM)
}

func TestNewSoil_DerivedDefaults(t *testing.T) {
	s, err := NewSoil("clay", hsSmallMapping())
	require.NoError(t, err)

	v, _ := s.Value(KeyEurRef)
	assert.InDelta(t, 90000, v, 1e-9)
	v, _ = s.Value(KeyEoedRef)
	assert.InDelta(t, 30000, v, 1e-9)
	v, _ = s.Value(KeyK0nc)
	assert.InDelta(t, 1-math.Sin(math.Pi/6), v, 1e-12)
	v, _ = s.Value(KeyNu)
	assert.InDelta(t, 0.2, v, 1e-12)
	assert.Equal(t, 1.0, s.Rinter())
	v, _ = s.Value(KeyGammaSat)
	assert.InDelta(t, 20, v, 1e-12, "explicit gammaSat is kept")
	assert.Nil(t, findDefault(s, KeyGammaSat))

	assert.NotNil(t, findDefault(s, KeyK0nc))
	assert.NotNil(t, findDefault(s, KeyOCR))
	assert.Equal(t, Drained, s.Drainage)

	mc, err := NewSoil("mc", map[string]any{"gammaUnsat": 17, "E": 10000, "nu": 0.25, "c": 1, "phi": 35})
	require.NoError(t, err)
	g, _ := mc.Value(KeyG)
	assert.InDelta(t, 4000, g, 1e-9)
	eoed, _ := mc.Value(KeyEoed)
	assert.InDelta(t, 10000*0.75/(1.25*0.5), eoed, 1e-9)
}

func TestNewSoil_InvalidValuesDefault(t *testing.T) {
	s, err := NewSoil("clay", map[string]any{
		"gammaUnsat": 18, "E": 5000, "nu": 0.7, "Rinter": "soft", "colour": "red",
	})
	require.NoError(t, err)
	assert.Equal(t, LinearElastic, s.Model)

	nu := findDefault(s, KeyNu)
	require.NotNil(t, nu)
	assert.Equal(t, 0.3, nu.Value)
	assert.Contains(t, nu.Reason, "invalid")
	r := findDefault(s, KeyRinter)
	require.NotNil(t, r)
	assert.Contains(t, r.Reason, `"soft"`)
	assert.Contains(t, s.Ignored, "colour")
}

func TestNewSoil_Drainage(t *testing.T) {
	m := hsSmallMapping()
	m["drainage type"] = "Non porous"
	s, err := NewSoil("clay", m)
	require.NoError(t, err)
	assert.Equal(t, Drained, s.Drainage, "HS small does not support non-porous")

	s, err = NewSoil("clay", map[string]any{"gammaUnsat": 18, "E": 5000, "DrainageType": "undrained-a"})
	require.NoError(t, err)
	assert.Equal(t, UndrainedA, s.Drainage)

	s, err = NewSoil("clay", map[string]any{"gammaUnsat": 18, "E": 5000})
	require.NoError(t, err)
	assert.Equal(t, "missing", findDefault(s, KeyDrainage).Reason)
	assert.Equal(t, "Drained", s.Params()[KeyDrainage])
}

func TestPlate_BothPathsAgree(t *testing.T) {
	c := Concrete{Gamma: 24, D: 0.4, Fc: 25}
	derived, err := c.Plate("footing")
	require.NoError(t, err)

	e := 4700 * 5.0 * 1000
	assert.InDelta(t, e*0.4, derived.EA, 1e-6)
	assert.InDelta(t, e*0.064/12, derived.EI, 1e-6)
	assert.InDelta(t, 9.6, derived.W, 1e-12)
	assert.Equal(t, DefaultConcreteNu, derived.Nu)

	direct, err := PlateFromParams("footing", map[string]any{
		"EA": derived.EA, "EI": derived.EI, "w": derived.W, "poisson": derived.Nu,
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.4, direct.EquivalentThickness(), 1e-12)
	assert.InDelta(t, derived.EquivalentThickness(), direct.EquivalentThickness(), 1e-12)
	assert.InDelta(t, derived.ShearModulus(), direct.ShearModulus(), 1e-6)
}

func TestPlate_Errors(t *testing.T) {
	_, err := Concrete{Gamma: 24, D: 0.4}.Plate("footing")
	assert.ErrorIs(t, err, ErrMissingStiffness)

	_, err = PlateFromParams("footing", map[string]any{"EA": 1e6})
	assert.ErrorIs(t, err, ErrMissingStiffness)
}

func TestConcrete_Solid(t *testing.T) {
	s, err := Concrete{Gamma: 24, E: 3e7, Nu: 0.2}.Solid("concrete")
	require.NoError(t, err)
	assert.Equal(t, LinearElastic, s.Model)
	assert.Equal(t, NonPorous, s.Drainage)
	e, _ := s.Value(KeyERef)
	assert.Equal(t, 3e7, e)
}

func findDefault(s *Soil, key string) *Default {
	for i := range s.Defaults {
		if s.Defaults[i].Key == key {
			return &s.Defaults[i]
		}
	}
	return nil
}
