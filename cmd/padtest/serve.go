package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zulandar/padtest/internal/dashboard"
	"github.com/zulandar/padtest/internal/notify"
)

func newServeCmd() *cobra.Command {
	var (
		configPath string
		port       int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve stored runs as a JSON API",
		Long: `Starts the results API (runs, tests, results, curves and a live event
stream). When notify.digest is set, a digest of new runs is posted on that
schedule.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath, port)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfig, "path to padtest config file")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (default dashboard.port)")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string, port int) error {
	cfg, log, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	defer log.Sync()

	gormDB, err := connectFromConfig(cfg)
	if err != nil {
		return err
	}
	if port == 0 {
		port = cfg.Dashboard.Port
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var sched *notify.Scheduler
	if cfg.Notify.Digest != "" {
		hub, err := newHub(cfg, log)
		if err != nil {
			return err
		}
		defer hub.Close()
		if hub.Len() == 0 {
			log.Warn("notify.digest is set but no notifier is configured")
		} else {
			sched = notify.NewScheduler(gormDB, hub, log)
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return dashboard.Start(ctx, dashboard.StartOpts{
			DB:   gormDB,
			Port: port,
			Out:  cmd.OutOrStdout(),
			Log:  log,
		})
	})
	if sched != nil {
		g.Go(func() error {
			log.Info("posting digests", zap.String("schedule", cfg.Notify.Digest))
			return sched.Run(ctx, cfg.Notify.Digest)
		})
	}

	return g.Wait()
}
