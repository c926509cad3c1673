// Package config provides YAML-based configuration loading for padtest.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/zulandar/padtest/internal/engine"
	"github.com/zulandar/padtest/internal/logging"
	"github.com/zulandar/padtest/internal/notify"
	"github.com/zulandar/padtest/internal/phase"
)

// Config is the top-level padtest configuration, loaded from padtest.yaml.
// The model definition sits at the top level next to the test plan and the
// service sections.
type Config struct {
	engine.Spec `yaml:",inline"`

	Tests     []engine.TestEntry `yaml:"tests"`
	Store     StoreConfig        `yaml:"store"`
	Dashboard DashboardConfig    `yaml:"dashboard"`
	Notify    NotifyConfig       `yaml:"notify"`
	Log       logging.Config     `yaml:"log"`
}

// Store drivers.
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// StoreConfig locates the database results are exported to.
type StoreConfig struct {
	Driver string `yaml:"driver"`
	// Path is the sqlite database file.
	Path string `yaml:"path"`

	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// DashboardConfig holds the results API settings.
type DashboardConfig struct {
	Port int `yaml:"port"`
}

// NotifyConfig selects where test outcomes are posted. Empty sections are
// disabled.
type NotifyConfig struct {
	Slack   SlackConfig   `yaml:"slack"`
	Discord DiscordConfig `yaml:"discord"`
	// Digest is a 5-field cron schedule for run digests posted by serve.
	Digest string `yaml:"digest"`
}

// SlackConfig posts with a bot token.
type SlackConfig struct {
	BotToken string `yaml:"bot_token"`
	Channel  string `yaml:"channel"`
}

// DiscordConfig posts with a bot token.
type DiscordConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Project.Title == "" {
		c.Project.Title = "padtest"
	}
	if c.Store.Driver == "" {
		c.Store.Driver = DriverSQLite
	}
	if c.Store.Driver == DriverSQLite && c.Store.Path == "" {
		c.Store.Path = "padtest.db"
	}
	if c.Store.Driver == DriverMySQL {
		if c.Store.Host == "" {
			c.Store.Host = "127.0.0.1"
		}
		if c.Store.Port == 0 {
			c.Store.Port = 3306
		}
		if c.Store.User == "" {
			c.Store.User = "root"
		}
		if c.Store.Database == "" {
			c.Store.Database = "padtest"
		}
	}
	if c.Dashboard.Port == 0 {
		c.Dashboard.Port = 8080
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	for i := range c.Tests {
		t := &c.Tests[i]
		if t.Kind == "" {
			t.Kind = inferKind(*t)
		}
	}
}

func inferKind(t engine.TestEntry) phase.Kind {
	switch {
	case t.Load != nil:
		return phase.Load
	case t.Failure != nil:
		return phase.Failure
	case t.Safety != nil:
		return phase.Safety
	case t.Dynamic != nil:
		return phase.Dynamic
	}
	return ""
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	switch c.Project.ModelType {
	case "", engine.Axisymmetry, engine.PlaneStrain:
	default:
		errs = append(errs, fmt.Sprintf("project.model_type %q must be %s or %s", c.Project.ModelType, engine.Axisymmetry, engine.PlaneStrain))
	}
	if c.Geometry.B <= 0 {
		errs = append(errs, "geometry.b must be positive")
	}
	if len(c.Soil) == 0 {
		errs = append(errs, "at least one soil material is required")
	}
	if c.Foundation.Concrete == nil && len(c.Foundation.Params) == 0 {
		errs = append(errs, "foundation needs concrete or params")
	}

	seen := map[string]bool{}
	for i, t := range c.Tests {
		if t.ID == "" {
			errs = append(errs, fmt.Sprintf("tests[%d].id is required", i))
		} else if seen[t.ID] {
			errs = append(errs, fmt.Sprintf("tests[%d].id %q is duplicated", i, t.ID))
		}
		seen[t.ID] = true
		if msg := checkOptions(t); msg != "" {
			errs = append(errs, fmt.Sprintf("tests[%d] (%s): %s", i, t.ID, msg))
		}
	}

	switch c.Store.Driver {
	case DriverSQLite, DriverMySQL:
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q must be %s or %s", c.Store.Driver, DriverSQLite, DriverMySQL))
	}
	if c.Dashboard.Port < 0 || c.Dashboard.Port > 65535 {
		errs = append(errs, fmt.Sprintf("dashboard.port %d out of range", c.Dashboard.Port))
	}
	if (c.Notify.Slack.BotToken == "") != (c.Notify.Slack.Channel == "") {
		errs = append(errs, "notify.slack needs both bot_token and channel")
	}
	if (c.Notify.Discord.BotToken == "") != (c.Notify.Discord.ChannelID == "") {
		errs = append(errs, "notify.discord needs both bot_token and channel_id")
	}
	if c.Notify.Digest != "" {
		if err := notify.ParseSchedule(c.Notify.Digest); err != nil {
			errs = append(errs, fmt.Sprintf("notify.digest: %v", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// checkOptions reports a test whose options block does not match its kind.
func checkOptions(t engine.TestEntry) string {
	blocks := 0
	for _, set := range []bool{t.Load != nil, t.Failure != nil, t.Safety != nil, t.Dynamic != nil} {
		if set {
			blocks++
		}
	}
	if blocks != 1 {
		return fmt.Sprintf("exactly one of load, failure, safety or dynamic is required, got %d", blocks)
	}
	var ok bool
	switch t.Kind {
	case phase.Load:
		ok = t.Load != nil
	case phase.Failure:
		ok = t.Failure != nil
	case phase.Safety:
		ok = t.Safety != nil
	case phase.Dynamic, phase.Shake:
		ok = t.Dynamic != nil
	}
	if !ok {
		return fmt.Sprintf("kind %q does not match its options", t.Kind)
	}
	return ""
}
