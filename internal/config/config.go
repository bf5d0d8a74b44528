// Package config resolves docschema settings from flags, environment
// variables and an optional config file, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	// Name is the config file base name and the upper-cased env prefix
	Name = "docschema"

	DefaultURL            = "mongodb://localhost:27017"
	DefaultTimeout        = 60 * time.Second
	DefaultConnectTimeout = 5 * time.Second
)

// Config holds the resolved settings of one run
type Config struct {
	URL      string
	Database string
	// PlanFile is a YAML plan; empty uses the built-in chat_app plan
	PlanFile        string
	DryRun          bool
	Format          string
	Output          string
	Timeout         time.Duration
	ConnectTimeout  time.Duration
	LogLevel        string
	LogEncoding     string
	NoColor         bool
	MetricsTextfile string
	// ConfigFileUsed is the config file that was read, if any
	ConfigFileUsed string
}

// SetupFlags registers every setting as a flag on fs
func SetupFlags(fs *pflag.FlagSet) {
	fs.StringP("url", "u", DefaultURL, "database URL (mongodb://, mongodb+srv://, postgres://, mysql://, sqlite://)")
	fs.StringP("database", "d", "", "database name (default: from URL, then the plan)")
	fs.StringP("plan", "p", "", "YAML plan file (default: built-in chat_app plan)")
	fs.Bool("dry-run", false, "inspect the catalog and report what would be created")
	fs.StringP("format", "f", "text", "report format: text, markdown or json")
	fs.StringP("output", "o", "", "write the report to a file instead of stdout")
	fs.Duration("timeout", DefaultTimeout, "deadline for the whole run")
	fs.Duration("connect-timeout", DefaultConnectTimeout, "deadline for connecting to the database")
	fs.String("log-level", "info", "log level: debug, info, warn or error")
	fs.String("log-format", "console", "log encoding: console or json")
	fs.Bool("no-color", false, "disable colored output")
	fs.String("metrics-textfile", "", "write Prometheus metrics to this file after the run")
	fs.String("config", "", "config file (default: ./docschema.yaml or $HOME/.config/docschema/docschema.yaml)")
}

func setupDefaults(v *viper.Viper) {
	v.SetDefault("url", DefaultURL)
	v.SetDefault("database", "")
	v.SetDefault("plan", "")
	v.SetDefault("dry-run", false)
	v.SetDefault("format", "text")
	v.SetDefault("output", "")
	v.SetDefault("timeout", DefaultTimeout)
	v.SetDefault("connect-timeout", DefaultConnectTimeout)
	v.SetDefault("log-level", "info")
	v.SetDefault("log-format", "console")
	v.SetDefault("no-color", false)
	v.SetDefault("metrics-textfile", "")
}

// Load resolves the configuration. fs may be nil when no flags are in play.
func Load(v *viper.Viper, fs *pflag.FlagSet) (*Config, error) {
	setupDefaults(v)

	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", err)
		}
	}

	v.SetEnvPrefix(strings.ToUpper(Name))
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	// Names used by the chat service deployment
	_ = v.BindEnv("url", "DOCSCHEMA_URL", "MONGODB_URL")
	_ = v.BindEnv("database", "DOCSCHEMA_DATABASE", "DATABASE_NAME")

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	cfg := &Config{
		URL:             v.GetString("url"),
		Database:        v.GetString("database"),
		PlanFile:        v.GetString("plan"),
		DryRun:          v.GetBool("dry-run"),
		Format:          strings.ToLower(v.GetString("format")),
		Output:          v.GetString("output"),
		Timeout:         v.GetDuration("timeout"),
		ConnectTimeout:  v.GetDuration("connect-timeout"),
		LogLevel:        v.GetString("log-level"),
		LogEncoding:     v.GetString("log-format"),
		NoColor:         v.GetBool("no-color"),
		MetricsTextfile: v.GetString("metrics-textfile"),
		ConfigFileUsed:  v.ConfigFileUsed(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readConfigFile(v *viper.Viper) error {
	if fn := v.GetString("config"); fn != "" {
		v.SetConfigFile(fn)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
		return nil
	}

	v.SetConfigName(Name)
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", Name))
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// Validate checks settings that do not depend on the database
func (c *Config) Validate() error {
	if strings.TrimSpace(c.URL) == "" {
		return fmt.Errorf("database URL is required")
	}

	switch c.Format {
	case "text", "markdown", "md", "json":
	default:
		return fmt.Errorf("invalid format: %s (must be text, markdown or json)", c.Format)
	}

	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	if c.ConnectTimeout < 0 {
		return fmt.Errorf("connect-timeout must not be negative")
	}

	return nil
}
