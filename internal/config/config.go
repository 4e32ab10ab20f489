package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"gopkg.in/yaml.v3"
)

// CLI holds every command line flag and argument. Defaults here are the
// built-in baseline; a config file overrides them, and flags given on
// the command line override both.
type CLI struct {
	Pattern string `arg:"" optional:"" help:"Regular expression selecting which file paths to follow. When omitted every file except hidden ones matches."`
	Dir     string `arg:"" optional:"" default:"." help:"Directory to watch."`

	Lines     int  `short:"l" default:"-1" help:"For files present at startup, start from the last N lines. 0 starts at end of file, negative shows the whole file."`
	Recursive bool `short:"r" help:"Watch subdirectories too."`
	Depth     int  `short:"d" default:"0" help:"Limit recursion to this many levels below the directory. 0 means unlimited. Requires --recursive."`

	Color          string        `default:"auto" enum:"auto,always,never" env:"DIRTAIL_COLOR" help:"Colorize the file headers."`
	PollInterval   time.Duration `default:"500ms" env:"DIRTAIL_POLL_INTERVAL" help:"Directory listing interval when native file notifications are unavailable."`
	RescanInterval time.Duration `default:"5s" env:"DIRTAIL_RESCAN_INTERVAL" help:"Safety rescan interval that catches anything missed by notifications."`

	StateFile   string `env:"DIRTAIL_STATE_FILE" help:"Persist read positions to this file so a restart resumes instead of re-printing."`
	MetricsAddr string `env:"DIRTAIL_METRICS_ADDR" help:"Serve Prometheus metrics on this address (for example localhost:9090)."`
	LogLevel    string `default:"warn" env:"DIRTAIL_LOG_LEVEL" help:"Diagnostic log level on stderr (debug, info, warn, error)."`

	Tracing         bool   `env:"DIRTAIL_TRACING_ENABLED" help:"Export OpenTelemetry traces of scan cycles."`
	TracingEndpoint string `default:"localhost:4317" env:"DIRTAIL_TRACING_ENDPOINT" help:"OTLP collector endpoint."`
	TracingProtocol string `default:"grpc" enum:"grpc,http" env:"DIRTAIL_TRACING_PROTOCOL" help:"OTLP transport protocol."`

	ConfigFile string `name:"config" env:"DIRTAIL_CONFIG" help:"Path to a YAML config file."`
}

// FileConfig is the YAML config file shape. Every field is optional;
// absent fields leave the built-in defaults alone. Durations are
// strings in time.ParseDuration syntax.
type FileConfig struct {
	PollInterval   *string `yaml:"poll_interval"`
	RescanInterval *string `yaml:"rescan_interval"`
	Color          *string `yaml:"color"`
	LogLevel       *string `yaml:"log_level"`
	MetricsAddr    *string `yaml:"metrics_addr"`
	StateFile      *string `yaml:"state_file"`
}

// LoadFile reads and parses a YAML config file.
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return &fc, nil
}

// Apply overlays file values onto c. flagsSet names the flags the user
// gave explicitly; those keep their command line value, everything else
// takes the file value when the file provides one.
func (c *CLI) Apply(fc *FileConfig, flagsSet map[string]bool) error {
	if fc == nil {
		return nil
	}
	if fc.PollInterval != nil && !flagsSet["poll-interval"] {
		d, err := time.ParseDuration(*fc.PollInterval)
		if err != nil {
			return fmt.Errorf("invalid poll_interval: %w", err)
		}
		c.PollInterval = d
	}
	if fc.RescanInterval != nil && !flagsSet["rescan-interval"] {
		d, err := time.ParseDuration(*fc.RescanInterval)
		if err != nil {
			return fmt.Errorf("invalid rescan_interval: %w", err)
		}
		c.RescanInterval = d
	}
	if fc.Color != nil && !flagsSet["color"] {
		c.Color = *fc.Color
	}
	if fc.LogLevel != nil && !flagsSet["log-level"] {
		c.LogLevel = *fc.LogLevel
	}
	if fc.MetricsAddr != nil && !flagsSet["metrics-addr"] {
		c.MetricsAddr = *fc.MetricsAddr
	}
	if fc.StateFile != nil && !flagsSet["state-file"] {
		c.StateFile = *fc.StateFile
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *CLI) Validate() error {
	if c.Depth < 0 {
		return fmt.Errorf("--depth must not be negative")
	}
	if c.Depth > 0 && !c.Recursive {
		return fmt.Errorf("--depth requires --recursive")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("--poll-interval must be positive")
	}
	if c.RescanInterval <= 0 {
		return fmt.Errorf("--rescan-interval must be positive")
	}
	switch c.Color {
	case "auto", "always", "never":
	default:
		return fmt.Errorf("--color must be auto, always or never")
	}
	return nil
}

// Colorize resolves the color mode against the actual stdout.
func (c *CLI) Colorize() bool {
	switch c.Color {
	case "always":
		return true
	case "never":
		return false
	}
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
