package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/zulandar/padtest/internal/db"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Result store management commands",
	}

	cmd.AddCommand(newDBMigrateCmd())
	cmd.AddCommand(newDBRunsCmd())
	cmd.AddCommand(newDBDeleteCmd())
	return cmd
}

func newDBMigrateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the result store and migrate its tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBMigrate(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfig, "path to padtest config file")
	return cmd
}

func runDBMigrate(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()
	cfg, log, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	defer log.Sync()

	if _, err := connectFromConfig(cfg); err != nil {
		return err
	}
	fmt.Fprintf(out, "Migrated %d tables in %s store\n", len(db.AllModels()), cfg.Store.Driver)
	return nil
}

func newDBRunsCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List stored runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBRuns(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfig, "path to padtest config file")
	return cmd
}

func runDBRuns(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()
	cfg, log, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	defer log.Sync()

	gormDB, err := connectFromConfig(cfg)
	if err != nil {
		return err
	}
	runs, err := db.ListRuns(gormDB)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs stored.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tMODEL\tKIND\tB\tCREATED")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%g\t%s\n",
			r.ID, r.Title, r.ModelType, r.Kind, r.Width, r.CreatedAt.Format(time.DateTime))
	}
	w.Flush()
	return nil
}

func newDBDeleteCmd() *cobra.Command {
	var (
		configPath string
		yes        bool
	)

	cmd := &cobra.Command{
		Use:   "delete <run-id>",
		Short: "Delete a stored run with its outcomes and results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBDelete(cmd, configPath, args[0], yes)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfig, "path to padtest config file")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation prompt")
	return cmd
}

func runDBDelete(cmd *cobra.Command, configPath, runID string, yes bool) error {
	out := cmd.OutOrStdout()
	cfg, log, err := loadConfig(configPath)
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
	question := fmt.Sprintf("Delete run %s (%s, %d tests)?", run.ID, run.Title, len(run.Tests))
	if !confirm(cmd, yes)(question) {
		fmt.Fprintln(out, "Aborted.")
		return nil
	}
	if err := db.DeleteRun(gormDB, run.ID); err != nil {
		return err
	}
	fmt.Fprintf(out, "Deleted run %s\n", run.ID)
	return nil
}
