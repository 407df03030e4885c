// Package config loads lustc.yaml, the per-project compiler and runtime
// settings.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"
)

// Filename is the configuration file looked for in the working directory.
const Filename = "lustc.yaml"

// Version is the compiler version checked against the lustc field.
var Version = "v0.1.0"

// Runtime selects how compiled programs reach the outside world.
type Runtime string

const (
	// RuntimeProcess writes straight to file descriptor 1 and exits the
	// process on exit.
	RuntimeProcess Runtime = "process"
	// RuntimeLibc calls puts and exit in the C library.
	RuntimeLibc Runtime = "libc"
	// RuntimeBuffered collects output in memory and reports exit as an error.
	RuntimeBuffered Runtime = "buffered"
	// RuntimeNative compiles to machine code for the host and runs it in
	// the compiler's process. Output and exit go straight to the kernel.
	// Timeout and MaxSteps do not apply.
	RuntimeNative Runtime = "native"
)

// Config is the decoded contents of lustc.yaml.
type Config struct {
	// Lustc is the minimum compiler version the project needs.
	Lustc     string   `yaml:"lustc"`
	Runtime   Runtime  `yaml:"runtime"`
	Libc      string   `yaml:"libc"`
	MaxSteps  int64    `yaml:"max_steps"`
	HeapWords int      `yaml:"heap_words"`
	LogLevel  string   `yaml:"log_level"`
	Timeout   Duration `yaml:"timeout"`
}

// Default returns the settings used when no file is present.
func Default() Config {
	return Config{
		Runtime:   RuntimeProcess,
		MaxSteps:  10_000_000,
		HeapWords: 1 << 20,
		LogLevel:  "info",
		Timeout:   Duration(10 * time.Second),
	}
}

// Parse decodes YAML over the defaults. Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Load reads and validates the file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%w (in %s)", err, path)
	}
	if err := cfg.Validate(Version); err != nil {
		return Config{}, fmt.Errorf("%w (in %s)", err, path)
	}
	return cfg, nil
}

// Validate checks the settings for a compiler at version.
func (c Config) Validate(version string) error {
	switch c.Runtime {
	case RuntimeProcess, RuntimeLibc, RuntimeBuffered, RuntimeNative:
	default:
		return fmt.Errorf("config: unknown runtime %q", c.Runtime)
	}
	if c.MaxSteps < 0 {
		return fmt.Errorf("config: max_steps must not be negative")
	}
	if c.HeapWords < 0 {
		return fmt.Errorf("config: heap_words must not be negative")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("config: timeout must not be negative")
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.Lustc != "" {
		want := canonical(c.Lustc)
		if !semver.IsValid(want) {
			return fmt.Errorf("config: lustc %q is not a semantic version", c.Lustc)
		}
		have := canonical(version)
		if semver.IsValid(have) && semver.Compare(have, want) < 0 {
			return fmt.Errorf("config: project needs lustc %s, this is %s", want, have)
		}
	}
	return nil
}

// Level returns the slog level named by LogLevel.
func (c Config) Level() (slog.Level, error) {
	var level slog.Level
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("config: log_level: %w", err)
	}
	return level, nil
}

func canonical(v string) string {
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}

// Duration is a non-negative time.Duration written in time.ParseDuration
// syntax, such as "10s" or "1m30s". An empty value leaves it unchanged.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", node.Line)
	}
	if node.Value == "" {
		return nil
	}
	parsed, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	if parsed < 0 {
		return fmt.Errorf("line %d: duration %s must not be negative", node.Line, node.Value)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return d.Duration().String(), nil
}

// Duration returns the time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
