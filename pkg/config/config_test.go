package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pascal/interpreter-go/pkg/interpreter"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, FileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func testFlags() *pflag.FlagSet {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("debug-mode", "off", "")
	flags.Int("max-stack-depth", interpreter.DefaultMaxStackDepth, "")
	flags.String("log-level", DefaultLogLevel, "")
	flags.StringSlice("unit-paths", nil, "")
	return flags
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(LoadOptions{Dir: t.TempDir()})
	require.NoError(t, err)

	assert.Equal(t, "off", cfg.DebugMode)
	assert.Equal(t, interpreter.DefaultMaxStackDepth, cfg.MaxStackDepth)
	assert.Equal(t, DefaultCheckSourceLimit, cfg.CheckSourceLimit)
	assert.Equal(t, DefaultCacheSize, cfg.CacheSize)
	assert.Equal(t, "auto", cfg.Color)
	assert.Empty(t, cfg.UnitPaths)
	assert.Empty(t, cfg.FileUsed)
}

func TestLoadFileResolvesUnitPaths(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
debug_mode: step-over
max_stack_depth: 200
unit_paths:
  - lib
  - /opt/pascal/units
log_level: debug
`)

	cfg, err := Load(LoadOptions{Dir: dir})
	require.NoError(t, err)

	assert.Equal(t, path, cfg.FileUsed)
	assert.Equal(t, 200, cfg.MaxStackDepth)
	assert.Equal(t, []string{filepath.Join(dir, "lib"), "/opt/pascal/units"}, cfg.UnitPaths)

	mode, err := cfg.Mode()
	require.NoError(t, err)
	assert.Equal(t, interpreter.DebugStepOver, mode)

	level, err := cfg.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "max_stack_depth: 200\nlog_level: info\ncache_size: 5\n")
	t.Setenv("PASCAL_MAX_STACK_DEPTH", "300")
	t.Setenv("PASCAL_LOG_LEVEL", "error")

	flags := testFlags()
	require.NoError(t, flags.Parse([]string{"--max-stack-depth", "400"}))

	cfg, err := Load(LoadOptions{Dir: dir, Flags: flags})
	require.NoError(t, err)

	assert.Equal(t, 400, cfg.MaxStackDepth, "flag beats env")
	assert.Equal(t, "error", cfg.LogLevel, "env beats file")
	assert.Equal(t, 5, cfg.CacheSize, "file beats default")
	assert.Equal(t, "off", cfg.DebugMode, "unset flag keeps lower layers")
}

func TestLoadUnitPathsFromFlags(t *testing.T) {
	dir := t.TempDir()
	flags := testFlags()
	require.NoError(t, flags.Parse([]string{"--unit-paths", "a,b"}))

	cfg, err := Load(LoadOptions{Dir: dir, Flags: flags})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a"), filepath.Join(dir, "b")}, cfg.UnitPaths)
}

func TestLoadExplicitFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("color: never\nunit_paths: [units]\n"), 0o644))

	cfg, err := Load(LoadOptions{File: path})
	require.NoError(t, err)
	assert.Equal(t, "never", cfg.Color)
	assert.Equal(t, []string{filepath.Join(dir, "units")}, cfg.UnitPaths)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "debug_mode: sideways\nmax_stack_depth: 0\ncolor: sometimes\nlog_level: loud\n")

	_, err := Load(LoadOptions{Dir: dir})
	require.Error(t, err)
	for _, want := range []string{"debug_mode", "max_stack_depth", "color", "log_level"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(LoadOptions{File: filepath.Join(t.TempDir(), "absent.yaml")})
	require.Error(t, err)
}

func TestColorize(t *testing.T) {
	cfg := &Config{Color: "auto"}
	assert.True(t, cfg.Colorize(true))
	assert.False(t, cfg.Colorize(false))
	cfg.Color = "always"
	assert.True(t, cfg.Colorize(false))
	cfg.Color = "never"
	assert.False(t, cfg.Colorize(true))
}

func TestLoggerHonorsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := (&Config{LogLevel: "warn"}).Logger(&buf)
	logger.Info("hidden")
	logger.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}
