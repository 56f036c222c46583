package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"pascal/interpreter-go/pkg/config"
	"pascal/interpreter-go/pkg/diag"
	"pascal/interpreter-go/pkg/driver"
	"pascal/interpreter-go/pkg/interpreter"
	"pascal/interpreter-go/pkg/source"
)

// app holds the state shared by every subcommand of one invocation.
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	// dir replaces the working directory when set.
	dir        string
	configFile string

	cfg      *config.Config
	logger   *slog.Logger
	colorize bool
	exitCode int

	newPrompter func(cfg *readline.Config) (prompter, error)
}

func newApp(stdin io.Reader, stdout, stderr io.Writer) *app {
	return &app{
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
		logger: slog.New(slog.DiscardHandler),
		newPrompter: func(cfg *readline.Config) (prompter, error) {
			rl, err := readline.NewEx(cfg)
			if err != nil {
				return nil, err
			}
			return rl, nil
		},
	}
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "pascal",
		Short: "Run, check and debug Pascal programs",
		Long: `pascal interprets Pascal programs and the units they use.

Without a file argument, commands act on the main program named by the
nearest pascal.yml.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "version" || cmd.Name() == "__complete" {
				return nil
			}
			cfg, err := config.Load(config.LoadOptions{
				File:  a.configFile,
				Dir:   a.dir,
				Flags: cmd.Root().PersistentFlags(),
			})
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = cfg.Logger(a.stderr)
			a.colorize = cfg.Colorize(isTerminal(a.stderr))
			if cfg.FileUsed != "" {
				a.logger.Debug("using config file", "path", cfg.FileUsed)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate("{{.Name}} {{.Version}}\n")

	flags := root.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "config file (default: ./"+config.FileName+")")
	flags.String("debug-mode", interpreter.DebugOff.String(), "line tracing for run, initial stepping for debug (off|step-into|step-over)")
	flags.Int("max-stack-depth", interpreter.DefaultMaxStackDepth, "maximum routine nesting before a stack overflow error")
	flags.Int("check-source-limit", config.DefaultCheckSourceLimit, "largest source in bytes accepted by check and complete")
	flags.Int("cache-size", config.DefaultCacheSize, "number of check results remembered per invocation")
	flags.String("log-level", config.DefaultLogLevel, "log level (debug|info|warn|error)")
	flags.String("color", config.DefaultColor, "color diagnostics (auto|always|never)")
	flags.StringSlice("unit-paths", nil, "extra directories searched for units")
	flags.String("cache-dir", "", "directory for git dependency checkouts")

	_ = root.RegisterFlagCompletionFunc("debug-mode", fixedCompletions("off", "step-into", "step-over"))
	_ = root.RegisterFlagCompletionFunc("log-level", fixedCompletions("debug", "info", "warn", "error"))
	_ = root.RegisterFlagCompletionFunc("color", fixedCompletions("auto", "always", "never"))

	root.AddCommand(a.runCommand())
	root.AddCommand(a.checkCommand())
	root.AddCommand(a.debugCommand())
	root.AddCommand(a.completeCommand())
	root.AddCommand(a.versionCommand())
	return root
}

func fixedCompletions(values ...string) func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return values, cobra.ShellCompDirectiveNoFileComp
	}
}

func (a *app) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "pascal %s\n", Version)
		},
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && readline.IsTerminal(int(f.Fd()))
}

func (a *app) workdir() (string, error) {
	if a.dir != "" {
		return a.dir, nil
	}
	return os.Getwd()
}

// manifestFor finds the manifest governing start. A missing manifest is
// not an error.
func (a *app) manifestFor(start string) (*driver.Manifest, error) {
	path, err := driver.FindManifest(start)
	if errors.Is(err, driver.ErrManifestNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a.logger.Debug("using manifest", "path", path)
	return driver.LoadManifest(path)
}

// sources resolves the program files named on the command line, or the
// manifest's main program when none are, together with a unit loader
// searching the manifest, the programs' directories and unit_paths.
func (a *app) sources(args []string) ([]source.Source, *driver.Loader, error) {
	wd, err := a.workdir()
	if err != nil {
		return nil, nil, err
	}
	var paths []string
	for _, arg := range args {
		if !filepath.IsAbs(arg) {
			arg = filepath.Join(wd, arg)
		}
		paths = append(paths, arg)
	}

	start := wd
	if len(paths) > 0 {
		start = filepath.Dir(paths[0])
	}
	manifest, err := a.manifestFor(start)
	if err != nil {
		return nil, nil, err
	}
	if len(paths) == 0 {
		if manifest == nil {
			return nil, nil, fmt.Errorf("no program given and %w from %s", driver.ErrManifestNotFound, wd)
		}
		if manifest.Main == "" {
			return nil, nil, fmt.Errorf("manifest %s names no main program", manifest.Path)
		}
		paths = append(paths, manifest.MainPath())
	}

	var extra []string
	seen := make(map[string]bool)
	for _, p := range paths {
		if dir := filepath.Dir(p); !seen[dir] {
			seen[dir] = true
			extra = append(extra, dir)
		}
	}
	extra = append(extra, a.cfg.UnitPaths...)

	var loader *driver.Loader
	if manifest != nil {
		loader = driver.LoaderForManifest(manifest, extra, a.cfg.CacheDir, a.logger)
	} else {
		loader = driver.NewLoader(driver.LoaderOptions{SearchPaths: extra, CacheDir: a.cfg.CacheDir, Logger: a.logger})
	}

	srcs := make([]source.Source, 0, len(paths))
	for _, p := range paths {
		src, err := source.FromFile(p)
		if err != nil {
			return nil, nil, err
		}
		srcs = append(srcs, src)
	}
	return srcs, loader, nil
}

// report renders err against the source it points into and returns the
// exit status to use.
func (a *app) report(err error, src source.Source) error {
	text := src.Text
	if pos, ok := diag.PositionOf(err); ok && pos.Unit != "" && pos.Unit != src.Name {
		if data, readErr := os.ReadFile(pos.Unit); readErr == nil {
			text = string(data)
		}
	}
	a.printDiagnostic(diag.Render(err, text))
	return &exitError{code: 1}
}

func (a *app) paint(attrs ...color.Attribute) *color.Color {
	c := color.New(attrs...)
	if a.colorize {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
	return c
}

func (a *app) printDiagnostic(rendered string) {
	header := a.paint(color.FgRed, color.Bold)
	caret := a.paint(color.FgRed)
	frame := a.paint(color.Faint)
	lines := strings.Split(strings.TrimRight(rendered, "\n"), "\n")
	for i, line := range lines {
		switch {
		case i == 0:
			header.Fprintln(a.stderr, line)
		case strings.HasPrefix(line, "     | ") && strings.HasSuffix(line, "^"):
			caret.Fprintln(a.stderr, line)
		case strings.HasPrefix(line, "  at "):
			frame.Fprintln(a.stderr, line)
		default:
			fmt.Fprintln(a.stderr, line)
		}
	}
}
