package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"
	"gorm.io/gorm"

	"github.com/zulandar/padtest/internal/config"
	"github.com/zulandar/padtest/internal/db"
	"github.com/zulandar/padtest/internal/logging"
	"github.com/zulandar/padtest/internal/notify"
	"github.com/zulandar/padtest/internal/notify/discord"
	"github.com/zulandar/padtest/internal/notify/slack"
)

func loadConfig(configPath string) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logging.New(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

// connectFromConfig opens the store and migrates its tables.
func connectFromConfig(cfg *config.Config) (*gorm.DB, error) {
	if err := db.CreateDatabase(cfg.Store); err != nil {
		return nil, err
	}
	gormDB, err := db.Open(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("connect to %s store: %w", cfg.Store.Driver, err)
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return nil, err
	}
	return gormDB, nil
}

// newHub creates the notifiers the config enables.
func newHub(cfg *config.Config, log *zap.Logger) (*notify.Hub, error) {
	var notifiers []notify.Notifier
	if s := cfg.Notify.Slack; s.BotToken != "" {
		n, err := slack.New(slack.Opts{BotToken: s.BotToken, ChannelID: s.Channel, Log: log})
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, n)
	}
	if d := cfg.Notify.Discord; d.BotToken != "" {
		n, err := discord.New(discord.Opts{BotToken: d.BotToken, ChannelID: d.ChannelID, Log: log})
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, n)
	}
	return notify.NewHub(cfg.Project.Title, log, notifiers...), nil
}

// confirm asks a yes/no question on the command's input. A terminal-less
// stdin cannot confirm; --yes skips the question.
func confirm(cmd *cobra.Command, yes bool) func(question string) bool {
	return func(question string) bool {
		if yes {
			return true
		}
		out := cmd.OutOrStdout()
		in := cmd.InOrStdin()
		if f, ok := in.(*os.File); ok && !term.IsTerminal(int(f.Fd())) {
			fmt.Fprintln(out, "stdin is not a terminal; pass --yes to confirm")
			return false
		}
		fmt.Fprintf(out, "%s Type \"yes\" to confirm: ", question)
		scanner := bufio.NewScanner(in)
		if scanner.Scan() {
			return strings.TrimSpace(scanner.Text()) == "yes"
		}
		return false
	}
}

// num formats a float for tables.
func num(v float64) string {
	if v == 0 {
		return "-"
	}
	return fmt.Sprintf("%.4g", v)
}
