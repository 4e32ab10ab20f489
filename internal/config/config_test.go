package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func defaultCLI() CLI {
	return CLI{
		Dir:             ".",
		Lines:           -1,
		Color:           "auto",
		PollInterval:    500 * time.Millisecond,
		RescanInterval:  5 * time.Second,
		LogLevel:        "warn",
		TracingEndpoint: "localhost:4317",
		TracingProtocol: "grpc",
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*CLI)
		wantErr bool
	}{
		{"defaults", nil, false},
		{"recursive with depth", func(c *CLI) { c.Recursive = true; c.Depth = 3 }, false},
		{"depth without recursive", func(c *CLI) { c.Depth = 3 }, true},
		{"negative depth", func(c *CLI) { c.Recursive = true; c.Depth = -1 }, true},
		{"zero poll interval", func(c *CLI) { c.PollInterval = 0 }, true},
		{"zero rescan interval", func(c *CLI) { c.RescanInterval = 0 }, true},
		{"bad color mode", func(c *CLI) { c.Color = "sometimes" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := defaultCLI()
			if tt.mutate != nil {
				tt.mutate(&c)
			}
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dirtail.yaml")
	content := "poll_interval: 2s\ncolor: never\nlog_level: debug\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	fc, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if fc.PollInterval == nil || *fc.PollInterval != "2s" {
		t.Errorf("PollInterval = %v, want 2s", fc.PollInterval)
	}
	if fc.RescanInterval != nil {
		t.Errorf("RescanInterval = %v, want nil", *fc.RescanInterval)
	}
	if fc.Color == nil || *fc.Color != "never" {
		t.Errorf("Color = %v, want never", fc.Color)
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("LoadFile() on missing file returned nil error")
	}
}

func TestLoadFileMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("poll_interval: [unclosed"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Error("LoadFile() on malformed file returned nil error")
	}
}

func TestApplyPrecedence(t *testing.T) {
	s := func(v string) *string { return &v }
	fc := &FileConfig{
		PollInterval: s("2s"),
		Color:        s("never"),
		LogLevel:     s("debug"),
	}

	t.Run("file overrides defaults", func(t *testing.T) {
		c := defaultCLI()
		if err := c.Apply(fc, map[string]bool{}); err != nil {
			t.Fatalf("Apply() error = %v", err)
		}
		if c.PollInterval != 2*time.Second {
			t.Errorf("PollInterval = %v, want 2s", c.PollInterval)
		}
		if c.Color != "never" {
			t.Errorf("Color = %q, want never", c.Color)
		}
		if c.RescanInterval != 5*time.Second {
			t.Errorf("RescanInterval = %v, want untouched default", c.RescanInterval)
		}
	})

	t.Run("explicit flags beat the file", func(t *testing.T) {
		c := defaultCLI()
		c.PollInterval = 100 * time.Millisecond
		c.Color = "always"
		set := map[string]bool{"poll-interval": true, "color": true}
		if err := c.Apply(fc, set); err != nil {
			t.Fatalf("Apply() error = %v", err)
		}
		if c.PollInterval != 100*time.Millisecond {
			t.Errorf("PollInterval = %v, want flag value kept", c.PollInterval)
		}
		if c.Color != "always" {
			t.Errorf("Color = %q, want flag value kept", c.Color)
		}
		if c.LogLevel != "debug" {
			t.Errorf("LogLevel = %q, want file value", c.LogLevel)
		}
	})

	t.Run("bad duration reported", func(t *testing.T) {
		c := defaultCLI()
		if err := c.Apply(&FileConfig{PollInterval: s("soon")}, nil); err == nil {
			t.Error("Apply() with bad duration returned nil error")
		}
	})
}

func TestColorizeExplicitModes(t *testing.T) {
	c := defaultCLI()
	c.Color = "always"
	if !c.Colorize() {
		t.Error("Colorize() = false for always")
	}
	c.Color = "never"
	if c.Colorize() {
		t.Error("Colorize() = true for never")
	}
}
