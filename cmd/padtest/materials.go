package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zulandar/padtest/internal/engine"
	"github.com/zulandar/padtest/internal/material"
)

func newMaterialsCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "materials",
		Short: "Show the materials sent to the solver",
		Long:  "Resolves every soil, fill, foundation and interface material and lists the defaults substituted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMaterials(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfig, "path to padtest config file")
	return cmd
}

func runMaterials(cmd *cobra.Command, configPath string) error {
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

	materials := m.Materials()
	names := make([]string, 0, len(materials))
	for name := range materials {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(out, "%s: %s\n", name, formatParams(materials[name]))
	}

	var defaults []string
	for _, s := range append(append([]*material.Soil(nil), m.Soils()...), m.FillMaterials()...) {
		for _, d := range s.Defaults {
			defaults = append(defaults, fmt.Sprintf("  %s.%s = %v (%s)", s.Name, d.Key, d.Value, d.Reason))
		}
	}
	if len(defaults) > 0 {
		fmt.Fprintln(out, "\nDefaults applied:")
		for _, d := range defaults {
			fmt.Fprintln(out, d)
		}
	}
	return nil
}

// formatParams renders a parameter map as sorted key=value pairs.
func formatParams(params map[string]any) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, params[k])
	}
	return strings.Join(parts, " ")
}
