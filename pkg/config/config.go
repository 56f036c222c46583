// Package config layers interpreter settings from defaults, a
// .pascal.yaml file, PASCAL_ environment variables and command-line flags.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"pascal/interpreter-go/pkg/interpreter"
)

// FileName is the configuration file looked up in the project directory.
const FileName = ".pascal.yaml"

// EnvPrefix prefixes environment overrides, e.g. PASCAL_LOG_LEVEL.
const EnvPrefix = "PASCAL_"

// Defaults.
const (
	DefaultCheckSourceLimit = 1 << 20
	DefaultCacheSize        = 64
	DefaultLogLevel         = "warn"
	DefaultColor            = "auto"
)

// Config holds every interpreter and CLI setting.
type Config struct {
	DebugMode        string   `koanf:"debug_mode"`
	MaxStackDepth    int      `koanf:"max_stack_depth"`
	CheckSourceLimit int      `koanf:"check_source_limit"`
	CacheSize        int      `koanf:"cache_size"`
	LogLevel         string   `koanf:"log_level"`
	Color            string   `koanf:"color"`
	UnitPaths        []string `koanf:"unit_paths"`
	CacheDir         string   `koanf:"cache_dir"`

	// FileUsed is the configuration file that was loaded, if any.
	FileUsed string `koanf:"-"`
}

// LoadOptions select the inputs Load reads.
type LoadOptions struct {
	// File is an explicit configuration file; when empty, Dir/.pascal.yaml
	// is used if it exists.
	File string
	// Dir anchors relative unit paths. Defaults to the working directory.
	Dir string
	// Flags contribute values for flags the user set explicitly.
	Flags *pflag.FlagSet
}

func defaults() map[string]any {
	return map[string]any{
		"debug_mode":         interpreter.DebugOff.String(),
		"max_stack_depth":    interpreter.DefaultMaxStackDepth,
		"check_source_limit": DefaultCheckSourceLimit,
		"cache_size":         DefaultCacheSize,
		"log_level":          DefaultLogLevel,
		"color":              DefaultColor,
		"unit_paths":         []string{},
		"cache_dir":          "",
	}
}

// Load merges the configuration layers.
// Precedence (highest to lowest): flags > env vars > config file > defaults
func Load(opts LoadOptions) (*Config, error) {
	k := koanf.New(".")

	dir := opts.Dir
	if dir == "" {
		if cwd, err := os.Getwd(); err == nil {
			dir = cwd
		} else {
			dir = "."
		}
	}

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}

	path := opts.File
	if path == "" {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			path = candidate
		}
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if opts.Dir == "" {
			if abs, err := filepath.Abs(path); err == nil {
				dir = filepath.Dir(abs)
			}
		}
	}

	// PASCAL_MAX_STACK_DEPTH -> max_stack_depth
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("config: load env: %w", err)
	}

	if opts.Flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(opts.Flags, ".", k, func(f *pflag.Flag) (string, any) {
			if !f.Changed {
				return "", nil
			}
			return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(opts.Flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("config: load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	cfg.FileUsed = path
	for i, p := range cfg.UnitPaths {
		if p != "" && !filepath.IsAbs(p) {
			cfg.UnitPaths[i] = filepath.Join(dir, p)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects out-of-range settings.
func (c *Config) Validate() error {
	var issues []string
	if _, err := c.Mode(); err != nil {
		issues = append(issues, err.Error())
	}
	if c.MaxStackDepth <= 0 {
		issues = append(issues, fmt.Sprintf("max_stack_depth must be positive, got %d", c.MaxStackDepth))
	}
	if c.CheckSourceLimit < 0 {
		issues = append(issues, fmt.Sprintf("check_source_limit must not be negative, got %d", c.CheckSourceLimit))
	}
	if c.CacheSize < 0 {
		issues = append(issues, fmt.Sprintf("cache_size must not be negative, got %d", c.CacheSize))
	}
	if _, err := c.Level(); err != nil {
		issues = append(issues, err.Error())
	}
	switch c.Color {
	case "auto", "always", "never":
	default:
		issues = append(issues, fmt.Sprintf("color must be auto, always or never, got %q", c.Color))
	}
	if len(issues) > 0 {
		return fmt.Errorf("config: %s", strings.Join(issues, "; "))
	}
	return nil
}

// Mode parses debug_mode.
func (c *Config) Mode() (interpreter.DebugMode, error) {
	for _, m := range []interpreter.DebugMode{interpreter.DebugOff, interpreter.DebugStepInto, interpreter.DebugStepOver} {
		if strings.EqualFold(c.DebugMode, m.String()) {
			return m, nil
		}
	}
	return interpreter.DebugOff, fmt.Errorf("debug_mode must be off, step-into or step-over, got %q", c.DebugMode)
}

// Level parses log_level.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelWarn, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}

// Logger builds a text logger writing to w at the configured level.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	level, _ := c.Level()
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// Colorize reports whether diagnostics should be colored for a terminal
// (isTerminal) under the configured color setting.
func (c *Config) Colorize(isTerminal bool) bool {
	switch c.Color {
	case "always":
		return true
	case "never":
		return false
	default:
		return isTerminal
	}
}
