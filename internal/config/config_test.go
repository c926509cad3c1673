package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zulandar/padtest/internal/engine"
	"github.com/zulandar/padtest/internal/phase"
)

const minimalYAML = `
geometry:
  b: 2
  d: 1
soil:
  - {name: sand, gammaUnsat: 18, E: 30000, phi: 33}
foundation:
  params: {EA: 5000000, EI: 80000, w: 9.6}
`

func TestLoad_FullFixture(t *testing.T) {
	cfg, err := Load("testdata/valid_full.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Project.Title != "Pad footing B2" {
		t.Errorf("Project.Title = %q, want %q", cfg.Project.Title, "Pad footing B2")
	}
	if !cfg.Project.Excavation {
		t.Error("Project.Excavation = false, want true")
	}
	if cfg.Geometry.B != 2 || cfg.Geometry.D != 1 {
		t.Errorf("Geometry b, d = %g, %g, want 2, 1", cfg.Geometry.B, cfg.Geometry.D)
	}
	if cfg.Geometry.WaterTable == nil || *cfg.Geometry.WaterTable != 3 {
		t.Errorf("Geometry.WaterTable = %v, want 3", cfg.Geometry.WaterTable)
	}
	if cfg.Geometry.Interfaces == nil || !cfg.Geometry.Interfaces.Bottom {
		t.Errorf("Geometry.Interfaces = %+v, want bottom enabled", cfg.Geometry.Interfaces)
	}
	if len(cfg.Soil) != 2 || cfg.Soil[1]["name"] != "sand" {
		t.Errorf("Soil = %v, want clay and sand", cfg.Soil)
	}
	if cfg.Foundation.Concrete == nil || cfg.Foundation.Concrete.Fc != 25 {
		t.Errorf("Foundation.Concrete = %+v, want fc 25", cfg.Foundation.Concrete)
	}
	if r := cfg.Interfaces["bottom"].Rinter; r == nil || *r != 0.67 {
		t.Errorf("Interfaces[bottom].Rinter = %v, want 0.67", r)
	}

	if len(cfg.Tests) != 4 {
		t.Fatalf("len(Tests) = %d, want 4", len(cfg.Tests))
	}
	kinds := []phase.Kind{phase.Load, phase.Failure, phase.Safety, phase.Shake}
	for i, want := range kinds {
		if cfg.Tests[i].Kind != want {
			t.Errorf("Tests[%d].Kind = %q, want %q", i, cfg.Tests[i].Kind, want)
		}
	}
	if got := cfg.Tests[0].Load.Loads; len(got) != 3 || got[2] != 300 {
		t.Errorf("Tests[0].Load.Loads = %v, want [100 200 300]", got)
	}
	if stop := cfg.Tests[1].Failure.Stop; stop == nil || stop.MaxPhases != 30 {
		t.Errorf("Tests[1].Failure.Stop = %+v, want max_phases 30", stop)
	}
	if h := cfg.Tests[3].Dynamic.History; len(h) != 3 || h[1].Acceleration != 1.2 {
		t.Errorf("Tests[3].Dynamic.History = %v", h)
	}

	if cfg.Store.Driver != DriverMySQL || cfg.Store.Port != 3307 || cfg.Store.Database != "footings" {
		t.Errorf("Store = %+v", cfg.Store)
	}
	if cfg.Dashboard.Port != 9090 {
		t.Errorf("Dashboard.Port = %d, want 9090", cfg.Dashboard.Port)
	}
	if cfg.Notify.Slack.Channel != "#footings" {
		t.Errorf("Notify.Slack.Channel = %q", cfg.Notify.Slack.Channel)
	}
	if cfg.Notify.Digest != "0 8 * * 1-5" {
		t.Errorf("Notify.Digest = %q", cfg.Notify.Digest)
	}
	if cfg.Log.Level != "debug" || !cfg.Log.Development {
		t.Errorf("Log = %+v, want debug development", cfg.Log)
	}
}

func TestLoad_FullFixtureBuildsAModel(t *testing.T) {
	cfg, err := Load("testdata/valid_full.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := engine.New(nil, cfg.Spec, engine.Options{}, nil); err != nil {
		t.Fatalf("engine.New: %v", err)
	}
}

func TestParse_MinimalConfig_AppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Project.Title != "padtest" {
		t.Errorf("Project.Title = %q, want %q (default)", cfg.Project.Title, "padtest")
	}
	if cfg.Store.Driver != DriverSQLite {
		t.Errorf("Store.Driver = %q, want %q (default)", cfg.Store.Driver, DriverSQLite)
	}
	if cfg.Store.Path != "padtest.db" {
		t.Errorf("Store.Path = %q, want %q (default)", cfg.Store.Path, "padtest.db")
	}
	if cfg.Dashboard.Port != 8080 {
		t.Errorf("Dashboard.Port = %d, want %d (default)", cfg.Dashboard.Port, 8080)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want %q (default)", cfg.Log.Level, "info")
	}
	if len(cfg.Tests) != 0 {
		t.Errorf("len(Tests) = %d, want 0", len(cfg.Tests))
	}
}

func TestParse_MySQLDefaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML + "store:\n  driver: mysql\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Store.Host != "127.0.0.1" || cfg.Store.Port != 3306 || cfg.Store.User != "root" || cfg.Store.Database != "padtest" {
		t.Errorf("Store = %+v, want mysql defaults", cfg.Store)
	}
	if cfg.Store.Path != "" {
		t.Errorf("Store.Path = %q, want empty for mysql", cfg.Store.Path)
	}
}

func TestParse_InfersTestKind(t *testing.T) {
	yaml := minimalYAML + `
tests:
  - id: a
    load: {loads: [10, 20]}
  - id: b
    safety: {target: 1.5}
  - id: c
    dynamic:
      history: [{time: 0, acceleration: 0}, {time: 1, acceleration: 1}]
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []phase.Kind{phase.Load, phase.Safety, phase.Dynamic}
	for i, k := range want {
		if cfg.Tests[i].Kind != k {
			t.Errorf("Tests[%d].Kind = %q, want %q", i, cfg.Tests[i].Kind, k)
		}
	}
}

func TestParse_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing width",
			yaml: "soil: [{phi: 30}]\nfoundation: {params: {EA: 1}}\n",
			want: "geometry.b must be positive",
		},
		{
			name: "no soil",
			yaml: "geometry: {b: 2}\nfoundation: {params: {EA: 1}}\n",
			want: "at least one soil material is required",
		},
		{
			name: "no foundation",
			yaml: "geometry: {b: 2}\nsoil: [{phi: 30}]\n",
			want: "foundation needs concrete or params",
		},
		{
			name: "bad model type",
			yaml: minimalYAML + "project: {model_type: 3d}\n",
			want: `project.model_type "3d"`,
		},
		{
			name: "bad driver",
			yaml: minimalYAML + "store: {driver: postgres}\n",
			want: `store.driver "postgres"`,
		},
		{
			name: "test without id",
			yaml: minimalYAML + "tests: [{load: {loads: [1]}}]\n",
			want: "tests[0].id is required",
		},
		{
			name: "duplicate test",
			yaml: minimalYAML + "tests: [{id: a, load: {loads: [1]}}, {id: a, load: {loads: [2]}}]\n",
			want: `tests[1].id "a" is duplicated`,
		},
		{
			name: "two option blocks",
			yaml: minimalYAML + "tests: [{id: a, load: {loads: [1]}, safety: {}}]\n",
			want: "exactly one of load, failure, safety or dynamic",
		},
		{
			name: "kind mismatch",
			yaml: minimalYAML + "tests: [{id: a, kind: shake, load: {loads: [1]}}]\n",
			want: `kind "shake" does not match`,
		},
		{
			name: "half slack",
			yaml: minimalYAML + "notify: {slack: {channel: '#x'}}\n",
			want: "notify.slack needs both",
		},
		{
			name: "bad digest schedule",
			yaml: minimalYAML + "notify: {digest: 'daily'}\n",
			want: "notify.digest",
		},
		{
			name: "half discord",
			yaml: minimalYAML + "notify: {discord: {bot_token: t}}\n",
			want: "notify.discord needs both",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want to contain %q", err.Error(), tt.want)
			}
		})
	}
}

func TestParse_MultipleValidationErrors(t *testing.T) {
	_, err := Parse([]byte("store: {driver: oracle}\n"))
	if err == nil {
		t.Fatal("expected error")
	}
	msg := err.Error()
	for _, want := range []string{"geometry.b must be positive", "at least one soil", "foundation needs", "store.driver"} {
		if !strings.Contains(msg, want) {
			t.Errorf("error missing %q: %s", want, msg)
		}
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte(":::invalid"))
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
	if !strings.Contains(err.Error(), "config: parse:") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "config: parse:")
	}
}

func TestLoad_ValidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "padtest.yaml")
	if err := os.WriteFile(path, []byte(minimalYAML), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Geometry.B != 2 {
		t.Errorf("Geometry.B = %g, want 2", cfg.Geometry.B)
	}
}

func TestLoad_MinimalFixture(t *testing.T) {
	cfg, err := Load("testdata/valid_minimal.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Foundation.Params["EA"] != 5000000 {
		t.Errorf("Foundation.Params[EA] = %v, want 5000000", cfg.Foundation.Params["EA"])
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/padtest.yaml")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !strings.Contains(err.Error(), "config: read") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "config: read")
	}
}

func TestLoad_InvalidYAMLFixture(t *testing.T) {
	_, err := Load("testdata/invalid.yaml")
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
	if !strings.Contains(err.Error(), "config: parse:") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "config: parse:")
	}
}
