package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/zulandar/padtest/internal/engine"
)

func newGeometryCmd() *cobra.Command {
	var (
		configPath string
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "geometry",
		Short: "Show the model geometry built from the config",
		Long:  "Builds the geometry without a solver and lists its polygons, plates, interfaces and adjustments.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGeometry(cmd, configPath, asJSON)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfig, "path to padtest config file")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the geometry as JSON")
	return cmd
}

func runGeometry(cmd *cobra.Command, configPath string, asJSON bool) error {
	out := cmd.OutOrStdout()
	cfg, log, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	defer log.Sync()

	m, err := engine.New(nil, cfg.Spec, engine.Options{}, log)
	if err != nil {
		return err
	}
	g := m.Geometry()

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(g)
	}

	fmt.Fprintf(out, "%s: %s foundation, %s, B=%g D=%g\n", cfg.Project.Title, g.Kind, m.Project().ModelType, g.B, g.D)
	fmt.Fprintf(out, "Model: x %g to %g, depth %g\n", g.XMin, g.XMax, g.Depth)
	fmt.Fprintf(out, "Strata: %d, fill layers: %d\n\n", len(g.Strata), len(g.Fill))

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tROLE\tSTRATUM\tFILL\tAREA\tEXCAVATED")
	for i, p := range g.Polygons {
		fill := "-"
		if p.Fill >= 0 {
			fill = fmt.Sprintf("%d", p.Fill)
		}
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%.3f\t%v\n", i, p.Role, p.Stratum, fill, p.Area(), p.Excavated)
	}
	w.Flush()

	if len(g.Plates) > 0 {
		fmt.Fprintln(out, "\nPlates:")
		for _, p := range g.Plates {
			fmt.Fprintf(out, "  %s (%g, %g) - (%g, %g)\n", p.Name, p.From.X, p.From.Y, p.To.X, p.To.Y)
		}
	}
	if len(g.Contacts) > 0 {
		fmt.Fprintln(out, "\nInterfaces:")
		for _, e := range g.Contacts {
			fmt.Fprintf(out, "  %s (%g, %g) - (%g, %g) %s\n", e.Name, e.From.X, e.From.Y, e.To.X, e.To.Y, e.Side)
		}
	}
	if len(g.Adjustments) > 0 {
		fmt.Fprintln(out, "\nAdjustments:")
		for _, a := range g.Adjustments {
			fmt.Fprintf(out, "  %s\n", a)
		}
	}
	return nil
}
