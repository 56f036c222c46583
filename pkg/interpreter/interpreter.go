package interpreter

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/tevino/abool/v2"

	"pascal/interpreter-go/pkg/ast"
	"pascal/interpreter-go/pkg/builtins"
	"pascal/interpreter-go/pkg/diag"
	"pascal/interpreter-go/pkg/parser"
	"pascal/interpreter-go/pkg/runtime"
	"pascal/interpreter-go/pkg/source"
)

// DefaultMaxStackDepth bounds routine nesting when Options leaves it unset.
const DefaultMaxStackDepth = 1024

// Options configure an Interpreter. Zero values select the defaults:
// a fresh builtin registry, process stdio, a discarding logger.
type Options struct {
	Registry      *builtins.Registry
	Units         parser.UnitResolver
	Logger        *slog.Logger
	Stdout        io.Writer
	Stdin         io.Reader
	Debug         DebugListener
	DebugMode     DebugMode
	MaxStackDepth int
	Seed          int64
}

// Interpreter compiles Pascal sources into runnable programs. Each
// interpreter owns its builtin registry.
type Interpreter struct {
	opts Options
}

// New returns an interpreter configured by opts.
func New(opts Options) *Interpreter {
	if opts.Registry == nil {
		opts.Registry = builtins.NewRegistry()
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.MaxStackDepth <= 0 {
		opts.MaxStackDepth = DefaultMaxStackDepth
	}
	if opts.Seed == 0 {
		opts.Seed = time.Now().UnixNano()
	}
	return &Interpreter{opts: opts}
}

// Registry returns the builtin registry shared by compile and run.
func (i *Interpreter) Registry() *builtins.Registry {
	return i.opts.Registry
}

// Compile parses src and the units it uses. Parse errors abort
// compilation; nothing of a failed compile is ever executed.
func (i *Interpreter) Compile(src source.Source) (*Program, error) {
	unit, err := parser.Parse(src, parser.Options{
		Registry: i.opts.Registry,
		Units:    i.opts.Units,
		Logger:   i.opts.Logger,
	})
	if err != nil {
		return nil, err
	}
	i.opts.Logger.Debug("compiled program", "program", unit.Name.Spelling, "units", len(unit.Units))
	return i.newProgram(unit), nil
}

// CompileString is Compile over an in-memory source.
func (i *Interpreter) CompileString(name, text string) (*Program, error) {
	return i.Compile(source.FromString(name, text))
}

func (i *Interpreter) newProgram(unit *ast.CodeUnit) *Program {
	return &Program{
		Unit:      unit,
		interp:    i,
		logger:    i.opts.Logger,
		cancelled: abool.New(),
		done:      make(chan struct{}),
		listener:  i.opts.Debug,
		mode:      i.opts.DebugMode,
		in:        bufio.NewReader(i.opts.Stdin),
		rand:      rand.New(rand.NewSource(i.opts.Seed)),
	}
}

// Program is a compiled code unit ready to run.
type Program struct {
	Unit *ast.CodeUnit

	interp *Interpreter
	logger *slog.Logger

	cancelled *abool.AtomicBool
	done      chan struct{}
	stopOnce  sync.Once

	listener DebugListener
	mode     DebugMode
	muted    int

	in   *bufio.Reader
	rand *rand.Rand
	env  *builtins.Env

	global   *runtime.VariableContext
	stack    *callStack
	current  source.LineInfo
	exitCode int
}

// Terminate requests cancellation. It is safe to call from any goroutine;
// the running program unwinds with ScriptTerminated before its next
// statement.
func (p *Program) Terminate() {
	p.cancelled.Set()
	p.stopOnce.Do(func() { close(p.done) })
}

// Terminated reports whether cancellation was requested.
func (p *Program) Terminated() bool {
	return p.cancelled.IsSet()
}

// ExitCode is the code passed to halt, or 0.
func (p *Program) ExitCode() int {
	return p.exitCode
}

// SetDebugMode changes the debug mode; listeners call it from OnLine to
// step into or over the next call.
func (p *Program) SetDebugMode(mode DebugMode) {
	p.mode = mode
}

// DebugMode returns the current debug mode.
func (p *Program) DebugMode() DebugMode {
	return p.mode
}

// Run executes the used units' initialization sections and then the main
// block. Cancelling ctx terminates the program.
func (p *Program) Run(ctx context.Context) (err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	stop := context.AfterFunc(ctx, p.Terminate)
	defer stop()

	opts := p.interp.opts
	p.env = &builtins.Env{
		Out:    opts.Stdout,
		In:     p.in,
		Rand:   p.rand,
		Logger: p.logger,
		Sleep:  p.sleep,
	}
	p.global = runtime.NewVariableContext(nil, 0, p.Unit.Name.Spelling)
	p.stack = newCallStack()
	p.stack.push(p.Unit.Name.Spelling, p.global, p.Unit.Pos)
	p.exitCode = 0
	p.muted = 0

	defer func() {
		if r := recover(); r != nil {
			cause, ok := r.(error)
			if !ok {
				cause = fmt.Errorf("%v", r)
			}
			err = p.annotate(&diag.UnhandledError{Pos: p.current, Cause: cause})
		}
		if err != nil {
			err = p.finish(err)
		}
	}()

	p.logger.Debug("running program", "program", p.Unit.Name.Spelling)
	for _, unit := range p.Unit.Units {
		if err := p.declareAll(p.global, unit.Vars); err != nil {
			return err
		}
	}
	if err := p.declareAll(p.global, p.Unit.Vars); err != nil {
		return err
	}
	for _, unit := range p.Unit.Units {
		if unit.Body == nil || len(unit.Body.Body) == 0 {
			continue
		}
		p.logger.Debug("initializing unit", "unit", unit.Name.Spelling)
		if _, err := p.executeBlock(unit.Body, p.global); err != nil {
			return err
		}
	}
	_, err = p.executeBlock(p.Unit.Body, p.global)
	return err
}

// finish turns halt into a normal exit and attaches a call stack to
// runtime errors that do not carry one yet.
func (p *Program) finish(err error) error {
	var halt *diag.HaltSignal
	if errors.As(err, &halt) {
		p.exitCode = halt.Code
		p.logger.Debug("program halted", "code", halt.Code)
		return nil
	}
	return p.annotate(err)
}

// Global returns the current value of a program-level variable, or of a
// unit variable when name is qualified as "unit.name".
func (p *Program) Global(name string) (runtime.Value, bool) {
	if p.global == nil {
		return nil, false
	}
	key := name
	if unit, rest, ok := strings.Cut(name, "."); ok {
		key = ast.Fold(unit) + "." + ast.Fold(rest)
	} else {
		key = ast.Fold(name)
	}
	ref, err := p.global.Lookup(key)
	if err != nil {
		return nil, false
	}
	return ref.Get(), true
}

// sleep backs the delay/sleep builtins; it wakes early on cancellation.
func (p *Program) sleep(ms int64) error {
	timer := time.NewTimer(time.Duration(ms) * time.Millisecond)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-p.done:
		return &diag.ScriptTerminated{Pos: p.current}
	}
}

// RunString compiles and runs a source in one step.
func (i *Interpreter) RunString(ctx context.Context, name, text string) (*Program, error) {
	prog, err := i.CompileString(name, text)
	if err != nil {
		return nil, err
	}
	return prog, prog.Run(ctx)
}
