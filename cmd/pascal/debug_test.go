package main

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/chzyer/readline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const debugSource = `procedure bump(var n: integer);
begin
  n := n + 1;
end;
var x: integer;
begin
  x := 1;
  bump(x);
  writeln(x);
end.`

type scriptedPrompter struct {
	lines  []string
	closed bool
}

func (p *scriptedPrompter) Readline() (string, error) {
	if len(p.lines) == 0 {
		return "", io.EOF
	}
	line := p.lines[0]
	p.lines = p.lines[1:]
	return line, nil
}

func (p *scriptedPrompter) Close() error {
	p.closed = true
	return nil
}

func debugApp(t *testing.T, script ...string) (*app, *scriptedPrompter) {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "dbg.pas"), debugSource)
	p := &scriptedPrompter{lines: script}
	a := testApp(dir, "")
	a.newPrompter = func(*readline.Config) (prompter, error) { return p, nil }
	return a, p
}

func TestDebugStepIntoAndInspect(t *testing.T) {
	a, p := debugApp(t, "step", "step", "vars", "stack", "continue")
	res := runCLI(t, a, "debug", "dbg.pas")
	require.Equal(t, 0, res.code, res.stderr)

	out := res.stdout
	assert.Contains(t, out, "dbg.pas:7  x := 1;")
	assert.Contains(t, out, "dbg.pas:8  bump(x);")
	assert.Contains(t, out, "dbg.pas:3  n := n + 1;")
	assert.Contains(t, out, "ROUTINE")
	assert.Contains(t, out, "bump")
	assert.Contains(t, out, "2\nprogram finished with exit code 0")
	assert.NotContains(t, out, "dbg.pas:9", "continue without breakpoints runs to the end")
	assert.True(t, p.closed)
}

func TestDebugNextStepsOverCalls(t *testing.T) {
	a, _ := debugApp(t, "next", "next", "next")
	res := runCLI(t, a, "debug", "dbg.pas")
	require.Equal(t, 0, res.code, res.stderr)

	assert.Contains(t, res.stdout, "dbg.pas:7")
	assert.Contains(t, res.stdout, "dbg.pas:8")
	assert.Contains(t, res.stdout, "dbg.pas:9")
	assert.NotContains(t, res.stdout, "dbg.pas:3")
}

func TestDebugEmptyLineRepeatsInitialStepOver(t *testing.T) {
	a, _ := debugApp(t, "", "", "")
	res := runCLI(t, a, "--debug-mode", "step-over", "debug", "dbg.pas")
	require.Equal(t, 0, res.code, res.stderr)

	assert.Contains(t, res.stdout, "dbg.pas:9")
	assert.NotContains(t, res.stdout, "dbg.pas:3")
}

func TestDebugBreakpointFromFlag(t *testing.T) {
	a, _ := debugApp(t, "continue", "print x", "print n", "continue")
	res := runCLI(t, a, "debug", "--break", "3", "dbg.pas")
	require.Equal(t, 0, res.code, res.stderr)

	assert.Contains(t, res.stdout, "breakpoint dbg.pas:3")
	assert.Contains(t, res.stdout, "n = 1")
	assert.Contains(t, res.stdout, "x = 1")
	assert.NotContains(t, res.stdout, "dbg.pas:8")
}

func TestDebugManagesBreakpoints(t *testing.T) {
	a, _ := debugApp(t, "break 9", "break dbg:3", "breakpoints", "delete 9", "delete 9", "breakpoints", "break x", "quit")
	res := runCLI(t, a, "debug", "dbg.pas")
	assert.Equal(t, 1, res.code)

	out := res.stdout
	assert.Contains(t, out, "breakpoint set at 9")
	assert.Contains(t, out, "dbg.pas:3\ndbg.pas:9\n")
	assert.Contains(t, out, "breakpoint dbg.pas:9 deleted")
	assert.Contains(t, out, "no breakpoint at dbg.pas:9")
	assert.Contains(t, out, `invalid breakpoint "x"`)
	assert.Contains(t, out, "program terminated")
}

func TestDebugQuitStopsProgram(t *testing.T) {
	a, _ := debugApp(t, "quit")
	res := runCLI(t, a, "debug", "dbg.pas")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stdout, "program terminated")
	assert.NotContains(t, res.stdout, "2\n")
}

func TestDebugEndOfInputQuits(t *testing.T) {
	a, _ := debugApp(t)
	res := runCLI(t, a, "debug", "dbg.pas")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stdout, "program terminated")
}

func TestDebugHelpListAndUnknown(t *testing.T) {
	a, _ := debugApp(t, "help", "list", "bogus", "vars", "quit")
	res := runCLI(t, a, "debug", "dbg.pas")

	out := res.stdout
	assert.Contains(t, out, "Commands:")
	assert.Contains(t, out, "=>    7 |   x := 1;")
	assert.Contains(t, out, "      4 | end;")
	assert.Contains(t, out, `unknown command "bogus"`)
	assert.Contains(t, out, "VALUE")
}

func TestDebugReportsCompileErrors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "bad.pas"), "begin\n  q := 1;\nend.")
	a := testApp(dir, "")
	a.newPrompter = func(*readline.Config) (prompter, error) { return &scriptedPrompter{}, nil }

	res := runCLI(t, a, "debug", "bad.pas")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "PARSE ERROR")
}
