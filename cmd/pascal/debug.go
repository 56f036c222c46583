package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"pascal/interpreter-go/pkg/ast"
	"pascal/interpreter-go/pkg/diag"
	"pascal/interpreter-go/pkg/interpreter"
	"pascal/interpreter-go/pkg/runtime"
	"pascal/interpreter-go/pkg/source"
)

// prompter reads debugger commands; *readline.Instance satisfies it.
type prompter interface {
	Readline() (string, error)
	Close() error
}

func (a *app) debugCommand() *cobra.Command {
	var breaks []string
	cmd := &cobra.Command{
		Use:   "debug [file.pas]",
		Short: "Run a program under the interactive debugger",
		Long: `Run a program under the interactive debugger. Execution pauses before
the first statement; type help at the prompt for commands.`,
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
			if mode == interpreter.DebugOff {
				mode = interpreter.DebugStepInto
			}

			rl, err := a.newPrompter(&readline.Config{
				Prompt:          "debug> ",
				AutoComplete:    debugCompleter(),
				InterruptPrompt: "^C",
				EOFPrompt:       "quit",
				Stdin:           io.NopCloser(a.stdin),
				Stdout:          a.stdout,
				Stderr:          a.stderr,
			})
			if err != nil {
				return fmt.Errorf("failed to initialize debugger prompt: %w", err)
			}
			defer func() { _ = rl.Close() }()

			d := newDebugger(a.stdout, rl, src)
			for _, b := range breaks {
				if err := d.addBreakpoint(b); err != nil {
					return err
				}
			}
			prog, err := interpreter.New(interpreter.Options{
				Units:         loader,
				Logger:        a.logger,
				Stdout:        a.stdout,
				Stdin:         a.stdin,
				MaxStackDepth: a.cfg.MaxStackDepth,
				Debug:         d,
				DebugMode:     mode,
			}).Compile(src)
			if err != nil {
				return a.report(err, src)
			}
			d.attach(prog, mode)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			err = prog.Run(ctx)
			var terminated *diag.ScriptTerminated
			switch {
			case errors.As(err, &terminated) && d.quit:
				_, _ = fmt.Fprintln(a.stdout, "program terminated")
				a.exitCode = 1
			case err != nil:
				return a.report(err, src)
			default:
				a.exitCode = prog.ExitCode()
				_, _ = fmt.Fprintf(a.stdout, "program finished with exit code %d\n", a.exitCode)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&breaks, "break", "b", nil, "breakpoint as [FILE:]LINE (repeatable)")
	return cmd
}

func debugCompleter() *readline.PrefixCompleter {
	return readline.NewPrefixCompleter(
		readline.PcItem("step"),
		readline.PcItem("next"),
		readline.PcItem("continue"),
		readline.PcItem("break"),
		readline.PcItem("delete"),
		readline.PcItem("breakpoints"),
		readline.PcItem("stack"),
		readline.PcItem("vars"),
		readline.PcItem("print"),
		readline.PcItem("list"),
		readline.PcItem("quit"),
		readline.PcItem("help"),
	)
}

type breakpoint struct {
	unit string
	line int
}

func (b breakpoint) String() string {
	return fmt.Sprintf("%s:%d", b.unit, b.line)
}

// debugger is the DebugListener behind the debug command. It pauses when
// stepping or on a breakpoint and reads commands until one resumes.
type debugger struct {
	out    io.Writer
	prompt prompter
	prog   *interpreter.Program

	main   string
	lines  map[string][]string
	breaks map[breakpoint]bool

	stepping bool
	last     string
	quit     bool
}

func newDebugger(out io.Writer, prompt prompter, main source.Source) *debugger {
	d := &debugger{
		out:    out,
		prompt: prompt,
		main:   unitKey(main.Name),
		lines:  make(map[string][]string),
		breaks: make(map[breakpoint]bool),
	}
	d.lines[d.main] = strings.Split(main.Text, "\n")
	return d
}

func unitKey(path string) string {
	return strings.ToLower(filepath.Base(path))
}

func (d *debugger) attach(prog *interpreter.Program, mode interpreter.DebugMode) {
	d.prog = prog
	d.stepping = true
	if mode == interpreter.DebugStepOver {
		d.last = "next"
	} else {
		d.last = "step"
	}
}

func (d *debugger) parseBreakpoint(spec string) (breakpoint, error) {
	unit, lineText := d.main, spec
	if i := strings.LastIndex(spec, ":"); i >= 0 {
		unit, lineText = unitKey(spec[:i]), spec[i+1:]
		if !strings.HasSuffix(unit, ".pas") {
			unit += ".pas"
		}
	}
	line, err := strconv.Atoi(lineText)
	if err != nil || line < 1 {
		return breakpoint{}, fmt.Errorf("invalid breakpoint %q: want [FILE:]LINE", spec)
	}
	return breakpoint{unit: unit, line: line}, nil
}

func (d *debugger) addBreakpoint(spec string) error {
	b, err := d.parseBreakpoint(spec)
	if err != nil {
		return err
	}
	d.breaks[b] = true
	return nil
}

func (d *debugger) OnLine(_ ast.Node, pos source.LineInfo) {
	hit := d.breaks[breakpoint{unit: unitKey(pos.Unit), line: pos.Line}]
	if !d.stepping && !hit {
		return
	}
	if hit && !d.stepping {
		_, _ = fmt.Fprintf(d.out, "breakpoint %s:%d\n", unitKey(pos.Unit), pos.Line)
	}
	_, _ = fmt.Fprintf(d.out, "%s:%d  %s\n", unitKey(pos.Unit), pos.Line, strings.TrimSpace(d.sourceLine(pos)))
	d.interact(pos)
}

func (d *debugger) OnVariableChange(runtime.CallStack) {}

func (d *debugger) sourceLine(pos source.LineInfo) string {
	lines := d.unitLines(pos.Unit)
	if pos.Line < 1 || pos.Line > len(lines) {
		return ""
	}
	return lines[pos.Line-1]
}

func (d *debugger) unitLines(path string) []string {
	key := unitKey(path)
	if lines, ok := d.lines[key]; ok {
		return lines
	}
	var lines []string
	if data, err := os.ReadFile(path); err == nil {
		lines = strings.Split(string(data), "\n")
	}
	d.lines[key] = lines
	return lines
}

// interact reads commands until one resumes execution.
func (d *debugger) interact(pos source.LineInfo) {
	for {
		line, err := d.prompt.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if err != nil {
			d.terminate()
			return
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			fields = []string{d.last}
		}
		if d.execute(fields, pos) {
			return
		}
	}
}

// execute runs one command and reports whether execution resumes.
func (d *debugger) execute(fields []string, pos source.LineInfo) bool {
	switch cmd := strings.ToLower(fields[0]); cmd {
	case "s", "step":
		d.last = "step"
		d.stepping = true
		d.prog.SetDebugMode(interpreter.DebugStepInto)
		return true
	case "n", "next":
		d.last = "next"
		d.stepping = true
		d.prog.SetDebugMode(interpreter.DebugStepOver)
		return true
	case "c", "continue":
		d.stepping = false
		if len(d.breaks) == 0 {
			d.prog.SetDebugMode(interpreter.DebugOff)
		} else {
			d.prog.SetDebugMode(interpreter.DebugStepInto)
		}
		return true
	case "q", "quit":
		d.terminate()
		return true
	case "b", "break":
		if len(fields) < 2 {
			_, _ = fmt.Fprintln(d.out, "usage: break [FILE:]LINE")
			return false
		}
		if err := d.addBreakpoint(fields[1]); err != nil {
			_, _ = fmt.Fprintln(d.out, err)
			return false
		}
		_, _ = fmt.Fprintf(d.out, "breakpoint set at %s\n", fields[1])
	case "d", "delete":
		if len(fields) < 2 {
			d.breaks = make(map[breakpoint]bool)
			_, _ = fmt.Fprintln(d.out, "all breakpoints deleted")
			return false
		}
		b, err := d.parseBreakpoint(fields[1])
		if err != nil {
			_, _ = fmt.Fprintln(d.out, err)
			return false
		}
		if !d.breaks[b] {
			_, _ = fmt.Fprintf(d.out, "no breakpoint at %s\n", b)
			return false
		}
		delete(d.breaks, b)
		_, _ = fmt.Fprintf(d.out, "breakpoint %s deleted\n", b)
	case "breakpoints":
		d.printBreakpoints()
	case "bt", "stack":
		d.printStack()
	case "v", "vars":
		d.printVars()
	case "p", "print":
		if len(fields) < 2 {
			_, _ = fmt.Fprintln(d.out, "usage: print NAME")
			return false
		}
		d.printValue(fields[1])
	case "l", "list":
		d.list(pos)
	case "h", "help":
		d.help()
	default:
		_, _ = fmt.Fprintf(d.out, "unknown command %q (type help for commands)\n", cmd)
	}
	return false
}

func (d *debugger) terminate() {
	d.quit = true
	d.stepping = false
	d.prog.SetDebugMode(interpreter.DebugOff)
	d.prog.Terminate()
}

func (d *debugger) newTable() table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(d.out)
	t.SetStyle(table.StyleLight)
	return t
}

func (d *debugger) printStack() {
	stack := d.prog.CallStack()
	t := d.newTable()
	t.AppendHeader(table.Row{"#", "Routine", "Line"})
	for i := len(stack.Frames) - 1; i >= 0; i-- {
		f := stack.Frames[i]
		t.AppendRow(table.Row{f.Depth, f.Routine, f.Line.String()})
	}
	t.Render()
}

func (d *debugger) printVars() {
	top, ok := d.prog.CallStack().Top()
	if !ok || len(top.Vars) == 0 {
		_, _ = fmt.Fprintln(d.out, "(no variables)")
		return
	}
	t := d.newTable()
	t.SetTitle(top.Routine)
	t.AppendHeader(table.Row{"Name", "Value"})
	for _, b := range top.Vars {
		t.AppendRow(table.Row{b.Name, runtime.Format(b.Value)})
	}
	t.Render()
}

func (d *debugger) printValue(name string) {
	if top, ok := d.prog.CallStack().Top(); ok {
		for _, b := range top.Vars {
			if ast.Fold(b.Name) == ast.Fold(name) {
				_, _ = fmt.Fprintf(d.out, "%s = %s\n", b.Name, runtime.Format(b.Value))
				return
			}
		}
	}
	if v, ok := d.prog.Global(name); ok {
		_, _ = fmt.Fprintf(d.out, "%s = %s\n", name, runtime.Format(v))
		return
	}
	_, _ = fmt.Fprintf(d.out, "no variable %s in scope\n", name)
}

func (d *debugger) printBreakpoints() {
	if len(d.breaks) == 0 {
		_, _ = fmt.Fprintln(d.out, "no breakpoints")
		return
	}
	list := make([]breakpoint, 0, len(d.breaks))
	for b := range d.breaks {
		list = append(list, b)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].unit != list[j].unit {
			return list[i].unit < list[j].unit
		}
		return list[i].line < list[j].line
	})
	for _, b := range list {
		_, _ = fmt.Fprintln(d.out, b)
	}
}

func (d *debugger) list(pos source.LineInfo) {
	lines := d.unitLines(pos.Unit)
	from, to := max(pos.Line-3, 1), min(pos.Line+3, len(lines))
	for n := from; n <= to; n++ {
		marker := "  "
		if n == pos.Line {
			marker = "=>"
		}
		_, _ = fmt.Fprintf(d.out, "%s %4d | %s\n", marker, n, lines[n-1])
	}
}

func (d *debugger) help() {
	_, _ = fmt.Fprint(d.out, `Commands:
  step, s              run to the next statement, entering calls
  next, n              run to the next statement of this routine
  continue, c          run to the next breakpoint
  break, b [FILE:]LINE set a breakpoint
  delete, d [LINE]     delete one breakpoint, or all
  breakpoints          list breakpoints
  stack, bt            show the call stack
  vars, v              show variables of the current routine
  print, p NAME        show one variable
  list, l              show source around the current line
  quit, q              stop the program
An empty line repeats the last step or next.
`)
}
