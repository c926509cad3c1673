package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zulandar/padtest/internal/config"
	"github.com/zulandar/padtest/internal/db"
	"github.com/zulandar/padtest/internal/engine"
	"github.com/zulandar/padtest/internal/solver"
	"github.com/zulandar/padtest/internal/solver/solvertest"
)

var errNoSolver = errors.New("no solver connection available; use --dry-run to rehearse with the scripted solver")

// connectSolver opens the remote FE solver. Deployments that link a solver
// client replace it.
var connectSolver = func(ctx context.Context, cfg *config.Config) (solver.Solver, error) {
	return nil, errNoSolver
}

type runOpts struct {
	configPath string
	only       []string
	dryRun     bool
	stiffness  float64
	noStore    bool
	noNotify   bool
	regenerate bool
	yes        bool
}

func newRunCmd() *cobra.Command {
	var opts runOpts

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Build the model and run the configured tests",
		Long: `Builds the model, runs every test of the config in order and stores
the results as a new run. --only restricts the tests; --regenerate rebuilds
the model afterwards and replays the tests.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", defaultConfig, "path to padtest config file")
	cmd.Flags().StringSliceVar(&opts.only, "only", nil, "test ids to run (default all)")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "use the scripted in-memory solver")
	cmd.Flags().Float64Var(&opts.stiffness, "stiffness", 10000, "load per unit displacement of the scripted solver")
	cmd.Flags().BoolVar(&opts.noStore, "no-store", false, "do not save the results")
	cmd.Flags().BoolVar(&opts.noNotify, "no-notify", false, "do not post test outcomes")
	cmd.Flags().BoolVar(&opts.regenerate, "regenerate", false, "rebuild the model and replay the tests after the run")
	cmd.Flags().BoolVarP(&opts.yes, "yes", "y", false, "skip confirmation prompts")
	return cmd
}

func runRun(cmd *cobra.Command, opts runOpts) error {
	out := cmd.OutOrStdout()
	cfg, log, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	defer log.Sync()

	tests, err := selectTests(cfg.Tests, opts.only)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var s solver.Solver
	if opts.dryRun {
		fake := solvertest.New()
		fake.Stiffness = opts.stiffness
		s = fake
	} else if s, err = connectSolver(ctx, cfg); err != nil {
		return err
	}

	engineOpts := engine.Options{}
	if !opts.noNotify {
		hub, err := newHub(cfg, log)
		if err != nil {
			return err
		}
		defer hub.Close()
		engineOpts.OnTest = hub.OnTest(ctx)
	}

	m, err := engine.New(s, cfg.Spec, engineOpts, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := m.Release(context.Background()); err != nil {
			log.Warn("release solver objects", zap.Error(err))
		}
	}()

	if err := m.Build(ctx); err != nil {
		return fmt.Errorf("build model: %w", err)
	}
	fmt.Fprintf(out, "Built %s (%d phases)\n", cfg.Project.Title, len(m.Phases()))

	var runErr error
	for _, e := range tests {
		if _, err := m.Run(ctx, e); err != nil {
			runErr = fmt.Errorf("test %s: %w", e.ID, err)
			break
		}
	}

	if opts.regenerate && runErr == nil {
		if err := m.Regenerate(ctx, confirm(cmd, opts.yes), true); err != nil {
			if !errors.Is(err, engine.ErrNotConfirmed) {
				return err
			}
			fmt.Fprintln(out, "Regeneration skipped.")
		} else {
			fmt.Fprintf(out, "Regenerated and replayed %d tests\n", len(m.TestLog()))
		}
	}

	printOutcomes(out, m.TestLog())

	if !opts.noStore && len(m.TestLog()) > 0 {
		gormDB, err := connectFromConfig(cfg)
		if err != nil {
			return err
		}
		run, err := db.SaveRun(gormDB, m)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "\nSaved run %s (%d result rows) to %s store\n", run.ID, m.Snapshot().Len(), cfg.Store.Driver)
	}
	return runErr
}

// selectTests returns the tests named by only, in config order.
func selectTests(all []engine.TestEntry, only []string) ([]engine.TestEntry, error) {
	if len(only) == 0 {
		return all, nil
	}
	want := make(map[string]bool, len(only))
	for _, id := range only {
		want[id] = true
	}
	var out []engine.TestEntry
	for _, e := range all {
		if want[e.ID] {
			out = append(out, e)
			delete(want, e.ID)
		}
	}
	for id := range want {
		return nil, fmt.Errorf("%w: %s is not in the config", engine.ErrUnknownTest, id)
	}
	return out, nil
}

func printOutcomes(out io.Writer, log []engine.TestEntry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TEST\tKIND\tSTATUS\tPHASES\tCAPACITY\tFOS\tREASON")
	for _, e := range log {
		o := e.Outcome
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			e.ID, e.Kind, o.Status, len(e.Phases), num(o.Capacity), num(o.SafetyFactor), o.Reason)
	}
	w.Flush()
}
