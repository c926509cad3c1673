package material

import "strings"

// Canonical parameter keys.
const (
	KeyGammaUnsat    = "gammaUnsat"
	KeyGammaSat      = "gammaSat"
	KeyEInit         = "einit"
	KeyERef          = "ERef"
	KeyE50Ref        = "E50ref"
	KeyEoedRef       = "EoedRef"
	KeyEurRef        = "EurRef"
	KeyPowerM        = "powerm"
	KeyG0Ref         = "G0ref"
	KeyGamma07       = "gamma07"
	KeyPRef          = "pRef"
	KeyNu            = "nu"
	KeyG             = "G"
	KeyEoed          = "Eoed"
	KeyCRef          = "cref"
	KeyPhi           = "phi"
	KeyPsi           = "psi"
	KeyCInc          = "cInc"
	KeyVerticalRef   = "VerticalRef"
	KeyK0nc          = "K0nc"
	KeyRF            = "RF"
	KeyOCR           = "OCR"
	KeyPOP           = "POP"
	KeyPermH         = "PermHorizontalPrimary"
	KeyPermV         = "PermVertical"
	KeyRinter        = "Rinter"
	KeyRinterResid   = "RinterResidual"
	KeyKnInter       = "knInter"
	KeyKsInter       = "ksInter"
	KeyTensileStr    = "TensileStrength"
	KeyRayleighAlpha = "RayleighAlpha"
	KeyRayleighBeta  = "RayleighBeta"
	KeyXi1           = "TargetDamping1"
	KeyXi2           = "TargetDamping2"
	KeyF1            = "TargetFrequency1"
	KeyF2            = "TargetFrequency2"

	KeyRayleighMethod = "RayleighDampingInputMethod"
	KeyStrengthDet    = "InterfaceStrengthDetermination"
	KeyDrainage       = "DrainageType"
	KeySoilModel      = "SoilModel"
	KeyName           = "Identification"
)

// aliases maps every accepted spelling to its canonical key.
var aliases = map[string][]string{
	KeyName:           {"MaterialName", "name", "Identification"},
	KeySoilModel:      {"SoilModel", "model"},
	KeyDrainage:       {"DrainageType", "drainage"},
	KeyGammaSat:       {"gammaSat"},
	KeyGammaUnsat:     {"gammaUnsat", "gamma"},
	KeyEInit:          {"einit", "e0"},
	KeyERef:           {"ERef", "E", "Eref"},
	KeyE50Ref:         {"E50ref", "E50"},
	KeyEoedRef:        {"EoedRef", "Eoedref"},
	KeyEurRef:         {"EurRef", "Euref"},
	KeyPowerM:         {"powerm", "m"},
	KeyG0Ref:          {"G0ref"},
	KeyGamma07:        {"gamma07"},
	KeyPRef:           {"pRef"},
	KeyNu:             {"nu", "poisson"},
	KeyCRef:           {"cref", "c", "suref"},
	KeyPhi:            {"phi"},
	KeyPsi:            {"psi"},
	KeyCInc:           {"cInc", "suinc"},
	KeyVerticalRef:    {"VerticalRef", "gammaref"},
	KeyK0nc:           {"K0nc"},
	KeyRF:             {"RF"},
	KeyOCR:            {"OCR", "overconsolidation ratio"},
	KeyPOP:            {"POP"},
	KeyPermH:          {"PermHorizontalPrimary", "perm_primary_horizontal_axis", "kx"},
	KeyPermV:          {"PermVertical", "perm_vertical_axis", "ky"},
	KeyRinter:         {"Rinter"},
	KeyRinterResid:    {"RinterResidual"},
	KeyKnInter:        {"knInter"},
	KeyKsInter:        {"ksInter"},
	KeyTensileStr:     {"TensileStrength"},
	KeyRayleighMethod: {"RayleighDampingInputMethod", "RayleighMethod"},
	KeyRayleighAlpha:  {"RayleighAlpha", "alpha"},
	KeyRayleighBeta:   {"RayleighBeta", "beta"},
	KeyXi1:            {"TargetDamping1", "xi1"},
	KeyXi2:            {"TargetDamping2", "xi2"},
	KeyF1:             {"TargetFrequency1", "f1"},
	KeyF2:             {"TargetFrequency2", "f2"},
	KeyStrengthDet:    {"InterfaceStrengthDetermination", "strengthdetermination"},
}

// textKeys hold string values; every other recognised key is numeric.
var textKeys = map[string]bool{
	KeyName:           true,
	KeySoilModel:      true,
	KeyDrainage:       true,
	KeyRayleighMethod: true,
	KeyStrengthDet:    true,
}

var lookup = func() map[string]string {
	m := make(map[string]string)
	for canonical, names := range aliases {
		for _, n := range names {
			m[Normalize(n)] = canonical
		}
	}
	return m
}()

// Normalize lower-cases a key and drops spaces, underscores and hyphens.
func Normalize(key string) string {
	key = strings.ToLower(key)
	return strings.NewReplacer(" ", "", "_", "", "-", "").Replace(key)
}

// Canonical returns the canonical key for a user-supplied key.
func Canonical(key string) (string, bool) {
	c, ok := lookup[Normalize(key)]
	return c, ok
}
