package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/zulandar/padtest/internal/config"
	"github.com/zulandar/padtest/internal/solver"
)

const testConfig = `
project:
  title: pad
geometry:
  b: 2
  d: 1
  dstrata: [5, 15]
soil:
  - {name: clay, gammaUnsat: 17, E: 8000, c: 20, phi: 22}
  - {name: sand, gammaUnsat: 18, E: 30000, c: 1, phi: 33}
foundation:
  params: {EA: 5000000, EI: 80000, w: 9.6}
tests:
  - id: lt
    load: {loads: [100, 200, 300]}
  - id: fos
    safety: {}
log:
  level: error
`

// writeConfig writes the test config with a sqlite store in a temp dir.
func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "padtest.yaml")
	body := testConfig + "store:\n  path: " + filepath.Join(dir, "padtest.db") + "\n"
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func execCmd(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

var runIDPattern = regexp.MustCompile(`Saved run ([0-9a-f-]{36})`)

func TestVersionCmd(t *testing.T) {
	out, err := execCmd(t, "", "version")
	if err != nil {
		t.Fatalf("version command failed: %v", err)
	}
	if !strings.Contains(out, "padtest dev") {
		t.Errorf("expected output to contain 'padtest dev', got: %s", out)
	}
	if !strings.Contains(out, "commit: none") {
		t.Errorf("expected output to contain 'commit: none', got: %s", out)
	}
}

func TestVersionCmdWithCustomValues(t *testing.T) {
	origVersion, origCommit, origDate := Version, Commit, Date
	Version, Commit, Date = "1.0.0", "abc123", "2026-01-01"
	defer func() { Version, Commit, Date = origVersion, origCommit, origDate }()

	out, err := execCmd(t, "", "version")
	if err != nil {
		t.Fatalf("version command failed: %v", err)
	}
	for _, want := range []string{"padtest 1.0.0", "commit: abc123", "built: 2026-01-01"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got: %s", want, out)
		}
	}
}

func TestRootCmdHelp(t *testing.T) {
	out, err := execCmd(t, "", "--help")
	if err != nil {
		t.Fatalf("help command failed: %v", err)
	}
	for _, sub := range []string{"version", "geometry", "materials", "run", "db", "results", "serve"} {
		if !strings.Contains(out, sub) {
			t.Errorf("expected help output to list %q, got: %s", sub, out)
		}
	}
}

func TestRootCmd_Metadata(t *testing.T) {
	cmd := newRootCmd()
	if cmd.Use != "padtest" {
		t.Errorf("Use = %q, want %q", cmd.Use, "padtest")
	}
	if cmd.Short != "Shallow foundation FE test orchestration" {
		t.Errorf("Short = %q", cmd.Short)
	}
	if !cmd.SilenceUsage {
		t.Error("SilenceUsage = false, want true")
	}
}

func TestExecute_ReturnsExitCode(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"no-such-command"})
	if got := execute(cmd); got != 1 {
		t.Errorf("execute() = %d, want 1", got)
	}
}

func TestGeometryCmd(t *testing.T) {
	out, err := execCmd(t, "", "geometry", "-c", writeConfig(t))
	if err != nil {
		t.Fatalf("geometry: %v\n%s", err, out)
	}
	for _, want := range []string{"pad: plate foundation", "ROLE", "soil", "Plates:"} {
		if !strings.Contains(out, want) {
			t.Errorf("geometry output missing %q:\n%s", want, out)
		}
	}
}

func TestGeometryCmd_JSON(t *testing.T) {
	out, err := execCmd(t, "", "geometry", "--json", "-c", writeConfig(t))
	if err != nil {
		t.Fatalf("geometry: %v", err)
	}
	if !strings.Contains(out, `"polygons"`) {
		t.Errorf("json output missing polygons:\n%s", out)
	}
}

func TestGeometryCmd_MissingConfig(t *testing.T) {
	_, err := execCmd(t, "", "geometry", "-c", "/nonexistent/padtest.yaml")
	if err == nil || !strings.Contains(err.Error(), "load config") {
		t.Fatalf("err = %v, want load config error", err)
	}
}

func TestMaterialsCmd(t *testing.T) {
	out, err := execCmd(t, "", "materials", "-c", writeConfig(t))
	if err != nil {
		t.Fatalf("materials: %v", err)
	}
	for _, want := range []string{"clay:", "sand:", "phi=22"} {
		if !strings.Contains(out, want) {
			t.Errorf("materials output missing %q:\n%s", want, out)
		}
	}
}

func TestRunCmd_RequiresSolver(t *testing.T) {
	_, err := execCmd(t, "", "run", "--no-store", "-c", writeConfig(t))
	if err == nil || !strings.Contains(err.Error(), "--dry-run") {
		t.Fatalf("err = %v, want no solver error", err)
	}
}

func TestRunCmd_UsesConnectedSolver(t *testing.T) {
	orig := connectSolver
	defer func() { connectSolver = orig }()
	called := false
	connectSolver = func(ctx context.Context, cfg *config.Config) (solver.Solver, error) {
		called = true
		return nil, context.DeadlineExceeded
	}

	_, err := execCmd(t, "", "run", "--no-store", "-c", writeConfig(t))
	if !called || err == nil {
		t.Fatalf("called = %v, err = %v", called, err)
	}
}

func TestRunCmd_DryRunStoresResults(t *testing.T) {
	path := writeConfig(t)
	out, err := execCmd(t, "", "run", "--dry-run", "-c", path)
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	for _, want := range []string{"Built pad", "TEST", "lt", "complete", "fos"} {
		if !strings.Contains(out, want) {
			t.Errorf("run output missing %q:\n%s", want, out)
		}
	}
	m := runIDPattern.FindStringSubmatch(out)
	if m == nil {
		t.Fatalf("no run id in output:\n%s", out)
	}
	runID := m[1]

	out, err = execCmd(t, "", "db", "runs", "-c", path)
	if err != nil {
		t.Fatalf("db runs: %v", err)
	}
	if !strings.Contains(out, runID) {
		t.Errorf("db runs missing %s:\n%s", runID, out)
	}

	out, err = execCmd(t, "", "results", runID, "--test", "lt", "--location", "top", "-c", path)
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	if !strings.Contains(out, "lt_stage_2") {
		t.Errorf("results missing last stage:\n%s", out)
	}

	out, err = execCmd(t, "", "results", runID, "--test", "lt", "--location", "top", "--format", "csv", "-c", path)
	if err != nil {
		t.Fatalf("results csv: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if lines[0] != strings.Join(csvHeader, ",") {
		t.Errorf("csv header = %q", lines[0])
	}
	if len(lines) < 4 {
		t.Errorf("csv rows = %d, want at least 3 data rows", len(lines)-1)
	}

	out, err = execCmd(t, "no\n", "db", "delete", runID, "-c", path)
	if err != nil {
		t.Fatalf("db delete: %v", err)
	}
	if !strings.Contains(out, "Aborted.") {
		t.Errorf("delete without yes should abort:\n%s", out)
	}

	out, err = execCmd(t, "yes\n", "db", "delete", runID, "-c", path)
	if err != nil {
		t.Fatalf("db delete: %v", err)
	}
	if !strings.Contains(out, "Deleted run "+runID) {
		t.Errorf("delete output:\n%s", out)
	}

	if _, err := execCmd(t, "", "results", runID, "-c", path); err == nil {
		t.Error("results of a deleted run should fail")
	}
}

func TestRunCmd_Only(t *testing.T) {
	out, err := execCmd(t, "", "run", "--dry-run", "--no-store", "--only", "fos", "-c", writeConfig(t))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if strings.Contains(out, "\nlt ") {
		t.Errorf("--only fos should not run lt:\n%s", out)
	}
	if runIDPattern.MatchString(out) {
		t.Errorf("--no-store should not save:\n%s", out)
	}
}

func TestRunCmd_OnlyUnknown(t *testing.T) {
	_, err := execCmd(t, "", "run", "--dry-run", "--no-store", "--only", "nope", "-c", writeConfig(t))
	if err == nil || !strings.Contains(err.Error(), "nope is not in the config") {
		t.Fatalf("err = %v", err)
	}
}

func TestRunCmd_Regenerate(t *testing.T) {
	out, err := execCmd(t, "", "run", "--dry-run", "--no-store", "--regenerate", "--yes", "-c", writeConfig(t))
	if err != nil {
		t.Fatalf("run: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Regenerated and replayed 2 tests") {
		t.Errorf("missing regeneration:\n%s", out)
	}
}

func TestRunCmd_RegenerateDeclined(t *testing.T) {
	out, err := execCmd(t, "no\n", "run", "--dry-run", "--no-store", "--regenerate", "-c", writeConfig(t))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out, "Regeneration skipped.") {
		t.Errorf("missing skip message:\n%s", out)
	}
}

func TestResultsCmd_BadFormat(t *testing.T) {
	_, err := execCmd(t, "", "results", "x", "--format", "xml", "-c", writeConfig(t))
	if err == nil || !strings.Contains(err.Error(), "unknown format") {
		t.Fatalf("err = %v", err)
	}
}

func TestDBMigrateCmd(t *testing.T) {
	out, err := execCmd(t, "", "db", "migrate", "-c", writeConfig(t))
	if err != nil {
		t.Fatalf("db migrate: %v", err)
	}
	if !strings.Contains(out, "Migrated 3 tables in sqlite store") {
		t.Errorf("output = %q", out)
	}
}

func TestConfirm(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.SetOut(new(bytes.Buffer))

	cmd.SetIn(strings.NewReader("yes\n"))
	if !confirm(cmd, false)("go?") {
		t.Error("yes should confirm")
	}
	cmd.SetIn(strings.NewReader("y\n"))
	if confirm(cmd, false)("go?") {
		t.Error("only yes confirms")
	}
	cmd.SetIn(strings.NewReader(""))
	if !confirm(cmd, true)("go?") {
		t.Error("--yes should confirm without input")
	}
}

func TestNum(t *testing.T) {
	if got := num(0); got != "-" {
		t.Errorf("num(0) = %q", got)
	}
	if got := num(1.6); got != "1.6" {
		t.Errorf("num(1.6) = %q", got)
	}
}
