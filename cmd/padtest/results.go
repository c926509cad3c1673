package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/zulandar/padtest/internal/db"
	"github.com/zulandar/padtest/internal/models"
)

type resultsOpts struct {
	configPath string
	filter     db.RowFilter
	format     string
}

func newResultsCmd() *cobra.Command {
	var opts resultsOpts

	cmd := &cobra.Command{
		Use:   "results <run-id>",
		Short: "Print the results table of a stored run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResults(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", defaultConfig, "path to padtest config file")
	cmd.Flags().StringVar(&opts.filter.Test, "test", "", "filter by test id")
	cmd.Flags().StringVar(&opts.filter.Phase, "phase", "", "filter by phase name")
	cmd.Flags().StringVar(&opts.filter.Location, "location", "", "filter by location (top, 0 ... 1)")
	cmd.Flags().StringVar(&opts.filter.Kind, "kind", "", "filter by phase kind")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "table", "output format: table, csv or json")
	return cmd
}

func runResults(cmd *cobra.Command, runID string, opts resultsOpts) error {
	out := cmd.OutOrStdout()
	switch opts.format {
	case "table", "csv", "json":
	default:
		return fmt.Errorf("unknown format %q (table, csv or json)", opts.format)
	}

	cfg, log, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	defer log.Sync()

	gormDB, err := connectFromConfig(cfg)
	if err != nil {
		return err
	}
	run, err := db.GetRun(gormDB, runID)
	if err != nil {
		return err
	}
	rows, err := db.LoadRows(gormDB, run.ID, opts.filter)
	if err != nil {
		return err
	}

	switch opts.format {
	case "csv":
		return writeCSV(out, rows)
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TEST\tPHASE\tSTEP\tLOCATION\tLOAD\tFORCE\tDISPLACEMENT\tMSF")
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\t%.6g\t%s\n",
			r.Test, r.Phase, r.Step, r.Location, num(r.Load), num(r.Force), r.Displacement, num(r.SafetyFactor))
	}
	w.Flush()
	fmt.Fprintf(out, "%d rows\n", len(rows))
	return nil
}

var csvHeader = []string{
	"test", "phase", "previous", "kind", "step", "location", "load", "force", "stress",
	"displacement", "uy", "sum_mstage", "safety_factor", "time", "acceleration", "ratchetting",
}

func writeCSV(out io.Writer, rows []models.ResultRow) error {
	w := csv.NewWriter(out)
	if err := w.Write(csvHeader); err != nil {
		return err
	}
	f := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	for _, r := range rows {
		rec := []string{
			r.Test, r.Phase, r.Previous, r.Kind, strconv.Itoa(r.Step), r.Location,
			f(r.Load), f(r.Force), f(r.Stress), f(r.Displacement), f(r.Uy), f(r.SumMstage),
			f(r.SafetyFactor), f(r.Time), f(r.Acceleration), strconv.FormatBool(r.Ratchetting),
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
