package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"pascal/interpreter-go/pkg/ast"
	"pascal/interpreter-go/pkg/interpreter"
	"pascal/interpreter-go/pkg/runtime"
	"pascal/interpreter-go/pkg/source"
)

func (a *app) runCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run [file.pas]",
		Short: "Compile and run a program",
		Long: `Compile and run a program. The exit status is the halt code of the
program, or 1 after a compile or runtime error. With --debug-mode set,
each executed line and variable change is traced to stderr.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			srcs, loader, err := a.sources(args)
			if err != nil {
				return err
			}
			src := srcs[0]
			mode, err := a.cfg.Mode()
			if err != nil {
				return err
			}
			opts := interpreter.Options{
				Units:         loader,
				Logger:        a.logger,
				Stdout:        a.stdout,
				Stdin:         a.stdin,
				MaxStackDepth: a.cfg.MaxStackDepth,
			}
			if mode != interpreter.DebugOff {
				opts.Debug = &tracer{out: a.stderr}
				opts.DebugMode = mode
			}
			prog, err := interpreter.New(opts).Compile(src)
			if err != nil {
				return a.report(err, src)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			if err := prog.Run(ctx); err != nil {
				return a.report(err, src)
			}
			a.exitCode = prog.ExitCode()
			a.logger.Debug("program finished", "program", src.Name, "exit_code", a.exitCode)
			return nil
		},
	}
}

// tracer prints every reported line and the innermost frame after each
// variable change.
type tracer struct {
	out io.Writer
}

func (t *tracer) OnLine(_ ast.Node, pos source.LineInfo) {
	fmt.Fprintf(t.out, "[trace] %s:%d\n", filepath.Base(pos.Unit), pos.Line)
}

func (t *tracer) OnVariableChange(stack runtime.CallStack) {
	top, ok := stack.Top()
	if !ok {
		return
	}
	vars := make([]string, len(top.Vars))
	for i, b := range top.Vars {
		vars[i] = b.Name + "=" + runtime.Format(b.Value)
	}
	fmt.Fprintf(t.out, "[trace]   %s: %s\n", top.Routine, strings.Join(vars, " "))
}
