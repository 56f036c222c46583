package interpreter

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"pascal/interpreter-go/pkg/ast"
	"pascal/interpreter-go/pkg/builtins"
	"pascal/interpreter-go/pkg/diag"
	"pascal/interpreter-go/pkg/runtime"
	"pascal/interpreter-go/pkg/source"
)

func newTestInterpreter(out *bytes.Buffer, stdin string) *Interpreter {
	return New(Options{
		Stdout: out,
		Stdin:  strings.NewReader(stdin),
		Seed:   1,
	})
}

func runProgram(t *testing.T, text string) (string, *Program) {
	t.Helper()
	var out bytes.Buffer
	prog, err := newTestInterpreter(&out, "").RunString(context.Background(), "test.pas", text)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	return out.String(), prog
}

func runError(t *testing.T, text string, kind diag.Kind) error {
	t.Helper()
	var out bytes.Buffer
	_, err := newTestInterpreter(&out, "").RunString(context.Background(), "test.pas", text)
	if err == nil {
		t.Fatalf("expected %s error, program printed %q", kind, out.String())
	}
	if got := diag.KindOf(err); got != kind {
		t.Fatalf("expected %s error, got %s: %v", kind, got, err)
	}
	return err
}

func globalInt(t *testing.T, prog *Program, name string) int64 {
	t.Helper()
	v, ok := prog.Global(name)
	if !ok {
		t.Fatalf("global %s not found", name)
	}
	iv, ok := v.(runtime.IntegerValue)
	if !ok {
		t.Fatalf("expected integer for %s, got %T", name, v)
	}
	return iv.Val
}

func TestRunAssignsFoldedExpression(t *testing.T) {
	out, prog := runProgram(t, `program p;
var x: integer;
begin
  x := 2 + 3;
  writeln(x);
end.`)
	if out != "5\n" {
		t.Fatalf("expected output 5, got %q", out)
	}
	if got := globalInt(t, prog, "X"); got != 5 {
		t.Fatalf("expected x = 5, got %d", got)
	}
}

func TestFoldedAndEvaluatedOperatorsAgree(t *testing.T) {
	cases := []struct {
		typ  string
		a, b string
		expr string
		want string
	}{
		{"integer", "7", "2", "{a} + {b}", "9"},
		{"integer", "7", "12", "{a} - {b}", "-5"},
		{"integer", "65536", "65536", "{a} * {b}", "0"},
		{"integer", "2147483647", "1", "{a} + {b}", "-2147483648"},
		{"integer", "(-7)", "2", "{a} div {b}", "-3"},
		{"integer", "(-7)", "2", "{a} mod {b}", "-1"},
		{"integer", "7", "(-2)", "{a} mod {b}", "1"},
		{"integer", "12", "10", "{a} and {b}", "8"},
		{"integer", "12", "10", "{a} or {b}", "14"},
		{"integer", "12", "10", "{a} xor {b}", "6"},
		{"integer", "1", "31", "{a} shl {b}", "-2147483648"},
		{"integer", "(-8)", "1", "{a} shr {b}", "2147483644"},
		{"integer", "5", "0", "not {a}", "-6"},
		{"integer", "7", "2", "{a} / {b}", ""},
		{"real", "7.5", "2.25", "{a} + {b}", ""},
		{"real", "7.5", "10", "{a} - {b}", ""},
		{"real", "1.5", "4", "{a} * {b}", ""},
		{"real", "7", "2", "{a} / {b}", ""},
		{"char", "'a'", "'b'", "ord({a} + {b})", "195"},
		{"char", "'d'", "'b'", "ord({a} - {b})", "2"},
		{"char", "'d'", "'b'", "ord({a} div {b})", "1"},
		{"char", "'d'", "'b'", "ord({a} mod {b})", "2"},
		{"char", "'a'", "'b'", "ord({a} and {b})", "96"},
		{"char", "'a'", "'b'", "ord({a} or {b})", "99"},
		{"char", "'a'", "'b'", "ord({a} xor {b})", "3"},
		{"char", "'d'", "'b'", "{a} / {b}", ""},
	}
	for _, tc := range cases {
		folded := strings.NewReplacer("{a}", tc.a, "{b}", tc.b).Replace(tc.expr)
		evaluated := strings.NewReplacer("{a}", "a", "{b}", "b").Replace(tc.expr)
		t.Run(tc.typ+" "+folded, func(t *testing.T) {
			lit, _ := runProgram(t, "begin\n  writeln("+folded+");\nend.")
			vars, _ := runProgram(t, "var a, b: "+tc.typ+";\nbegin\n  a := "+tc.a+";\n  b := "+tc.b+";\n  writeln("+evaluated+");\nend.")
			if lit != vars {
				t.Fatalf("expected folded %q to match evaluated %q", lit, vars)
			}
			if tc.want != "" && lit != tc.want+"\n" {
				t.Fatalf("expected %s, got %q", tc.want, lit)
			}
		})
	}
}

func TestRunDivisionByZeroReportsLineAndStack(t *testing.T) {
	err := runError(t, `var x: real;
begin
  x := 1 div 0;
end.`, diag.KindArithmetic)
	pos, ok := diag.PositionOf(err)
	if !ok || pos.Line != 3 {
		t.Fatalf("expected error on line 3, got %v", pos)
	}
	var holder diag.StackHolder
	if !errors.As(err, &holder) || len(holder.StackTrace()) != 1 {
		t.Fatalf("expected a one-frame stack trace, got %v", err)
	}
}

func TestRunErrorInsideRoutineCarriesCallStack(t *testing.T) {
	err := runError(t, `program trace;
function ratio(a, b: integer): integer;
begin
  ratio := a div b;
end;
var r: integer;
begin
  r := ratio(4, 0);
end.`, diag.KindArithmetic)
	var holder diag.StackHolder
	if !errors.As(err, &holder) {
		t.Fatalf("expected stack holder, got %T", err)
	}
	frames := holder.StackTrace()
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	if frames[0].Routine != "trace" || frames[1].Routine != "ratio" {
		t.Fatalf("unexpected frames %+v", frames)
	}
	if frames[1].Line.Line != 4 || frames[0].Line.Line != 8 {
		t.Fatalf("unexpected frame lines %+v", frames)
	}
}

func TestRunForLoopKeepsLastValue(t *testing.T) {
	out, prog := runProgram(t, `var i, sum: integer;
begin
  sum := 0;
  for i := 1 to 5 do
  begin
    write(i, ' ');
    sum := sum + i;
  end;
  writeln;
  writeln(i);
end.`)
	if out != "1 2 3 4 5 \n5\n" {
		t.Fatalf("unexpected output %q", out)
	}
	if got := globalInt(t, prog, "sum"); got != 15 {
		t.Fatalf("expected sum 15, got %d", got)
	}
}

func TestRunForLoopEmptyRangeLeavesVariable(t *testing.T) {
	_, prog := runProgram(t, `var i, n: integer;
begin
  i := 42;
  for i := 5 to 1 do n := n + 1;
end.`)
	if globalInt(t, prog, "i") != 42 || globalInt(t, prog, "n") != 0 {
		t.Fatalf("expected untouched loop, got i=%d n=%d", globalInt(t, prog, "i"), globalInt(t, prog, "n"))
	}
}

func TestRunLoopControl(t *testing.T) {
	out, _ := runProgram(t, `var i, n: integer;
begin
  for i := 10 downto 1 do
  begin
    if i = 7 then break;
    write(i);
  end;
  writeln;
  n := 0;
  while n < 6 do
  begin
    n := n + 1;
    if odd(n) then continue;
    write(n);
  end;
  writeln;
  n := 0;
  repeat
    n := n + 3;
  until n > 10;
  writeln(n);
end.`)
	if out != "1098\n246\n12\n" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestRunCaseStatement(t *testing.T) {
	out, _ := runProgram(t, `var i: integer;
begin
  for i := 1 to 4 do
    case i of
      1: write('one ');
      2, 3: write('few ');
    else
      write('many');
    end;
  writeln;
end.`)
	if out != "one few few many\n" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestRunShortCircuitBoolean(t *testing.T) {
	out, _ := runProgram(t, `var n: integer; ok: boolean;
begin
  n := 0;
  ok := (n <> 0) and (10 div n > 1);
  writeln(ok);
  ok := (n = 0) or (10 div n > 1);
  writeln(ok);
end.`)
	if out != "FALSE\nTRUE\n" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestRunInlineVariableShadowsOuter(t *testing.T) {
	out, prog := runProgram(t, `var x: integer;
begin
  x := 1;
  begin
    var x: string;
    x := 'inner';
    writeln(x);
  end;
  writeln(x);
end.`)
	if out != "inner\n1\n" {
		t.Fatalf("unexpected output %q", out)
	}
	if globalInt(t, prog, "x") != 1 {
		t.Fatalf("expected outer x untouched")
	}
}

func TestRunNestedRoutineShadowsGlobalVariable(t *testing.T) {
	out, _ := runProgram(t, `var count: integer;
procedure show;
  function count: integer;
  begin
    count := 42;
  end;
begin
  writeln(count);
end;
begin
  count := 7;
  show;
  writeln(count);
end.`)
	if out != "42\n7\n" {
		t.Fatalf("expected inner function then global, got %q", out)
	}
}

func TestRunRecursionAndVarParameters(t *testing.T) {
	out, _ := runProgram(t, `function fact(n: integer): int64;
begin
  if n <= 1 then
    fact := 1
  else
    fact := n * fact(n - 1);
end;

procedure swap(var a, b: integer);
var t: integer;
begin
  t := a;
  a := b;
  b := t;
end;

var x, y: integer;
begin
  writeln(fact(10));
  x := 1;
  y := 2;
  swap(x, y);
  writeln(x, ' ', y);
end.`)
	if out != "3628800\n2 1\n" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestRunExitWithValue(t *testing.T) {
	out, _ := runProgram(t, `function firstEven(limit: integer): integer;
var i: integer;
begin
  Result := -1;
  for i := 1 to limit do
    if not odd(i) then exit(i);
end;
begin
  writeln(firstEven(9));
  writeln(firstEven(1));
end.`)
	if out != "2\n-1\n" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestRunNestedRoutinesUseStaticLink(t *testing.T) {
	out, _ := runProgram(t, `procedure outer;
var n: integer;
  procedure inner;
  begin
    n := n + 1;
  end;
begin
  n := 10;
  inner;
  inner;
  writeln(n);
end;

function depth(k: integer): integer;
  function peek: integer;
  begin
    peek := k;
  end;
begin
  if k = 0 then
    depth := peek
  else
    depth := depth(k - 1) + peek;
end;

begin
  outer;
  writeln(depth(3));
end.`)
	if out != "12\n6\n" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestRunByValueCopiesAggregates(t *testing.T) {
	out, _ := runProgram(t, `type Pair = record a, b: integer; end;
procedure clobber(p: Pair);
begin
  p.a := 99;
end;
var p, q: Pair;
begin
  p.a := 1;
  q := p;
  q.a := 2;
  clobber(p);
  writeln(p.a, q.a);
end.`)
	if out != "12\n" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestRunStackOverflow(t *testing.T) {
	var out bytes.Buffer
	interp := New(Options{Stdout: &out, MaxStackDepth: 50})
	_, err := interp.RunString(context.Background(), "deep.pas", `procedure dive(n: integer);
begin
  dive(n + 1);
end;
begin
  dive(0);
end.`)
	if !diag.IsKind(err, diag.KindStackOverflow) {
		t.Fatalf("expected stack overflow, got %v", err)
	}
	var holder diag.StackHolder
	if !errors.As(err, &holder) || len(holder.StackTrace()) != 50 {
		t.Fatalf("expected 50 frames in trace, got %v", err)
	}
}

func TestRunRangeCheck(t *testing.T) {
	runError(t, `type Digit = 0..9;
var d: Digit; i: integer;
begin
  i := 12;
  d := i;
end.`, diag.KindRangeCheck)
}

func TestRunIndexOutOfBounds(t *testing.T) {
	err := runError(t, `var a: array[1..3] of integer; i: integer;
begin
  i := 4;
  a[i] := 1;
end.`, diag.KindIndexOutOfBounds)
	if pos, _ := diag.PositionOf(err); pos.Line != 4 {
		t.Fatalf("expected line 4, got %v", pos)
	}
}

func TestRunStringIndexing(t *testing.T) {
	out, _ := runProgram(t, `var s: string;
begin
  s := 'cat';
  s[1] := 'b';
  writeln(s, ' ', s[3], ' ', length(s));
end.`)
	if out != "bat t 3\n" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestRunHaltRecordsExitCode(t *testing.T) {
	out, prog := runProgram(t, `begin
  writeln('before');
  halt(3);
  writeln('after');
end.`)
	if out != "before\n" {
		t.Fatalf("unexpected output %q", out)
	}
	if prog.ExitCode() != 3 {
		t.Fatalf("expected exit code 3, got %d", prog.ExitCode())
	}
}

func TestRunReadsInput(t *testing.T) {
	var out bytes.Buffer
	interp := newTestInterpreter(&out, "21 2\nworld\n")
	_, err := interp.RunString(context.Background(), "io.pas", `var a, b: integer; name: string;
begin
  readln(a, b);
  readln(name);
  writeln('hello ', name, ' ', a * b);
end.`)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if out.String() != "hello world 42\n" {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestRunFormattedWrite(t *testing.T) {
	out, _ := runProgram(t, `var r: real;
begin
  r := 3.14159;
  writeln(r:8:2, '|', 42:5, '|');
end.`)
	if out != "    3.14|   42|\n" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestTerminateBeforeRun(t *testing.T) {
	var out bytes.Buffer
	prog, err := newTestInterpreter(&out, "").CompileString("t.pas", `begin writeln('never'); end.`)
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	prog.Terminate()
	if err := prog.Run(context.Background()); !diag.IsKind(err, diag.KindScriptTerminated) {
		t.Fatalf("expected termination, got %v", err)
	}
	if out.Len() != 0 {
		t.Fatalf("expected no output, got %q", out.String())
	}
}

func TestContextCancellationStopsInfiniteLoop(t *testing.T) {
	var out bytes.Buffer
	prog, err := newTestInterpreter(&out, "").CompileString("spin.pas", `var n: int64;
begin
  while true do
    n := n + 1;
end.`)
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := prog.Run(ctx); !diag.IsKind(err, diag.KindScriptTerminated) {
		t.Fatalf("expected termination, got %v", err)
	}
	if !prog.Terminated() {
		t.Fatalf("expected program to report termination")
	}
}

func TestTerminateWakesSleep(t *testing.T) {
	var out bytes.Buffer
	prog, err := newTestInterpreter(&out, "").CompileString("nap.pas", `uses sysutils;
begin
  sleep(60000);
end.`)
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	time.AfterFunc(20*time.Millisecond, prog.Terminate)
	start := time.Now()
	err = prog.Run(context.Background())
	if !diag.IsKind(err, diag.KindScriptTerminated) {
		t.Fatalf("expected termination, got %v", err)
	}
	if time.Since(start) > 10*time.Second {
		t.Fatalf("sleep was not interrupted")
	}
}

type panickingListener struct{}

func (panickingListener) OnLine(ast.Node, source.LineInfo)   { panic("listener exploded") }
func (panickingListener) OnVariableChange(runtime.CallStack) {}

func TestRunRecoversHostPanics(t *testing.T) {
	var out bytes.Buffer
	interp := New(Options{Stdout: &out, Debug: panickingListener{}, DebugMode: DebugStepInto})
	_, err := interp.RunString(context.Background(), "p.pas", `var x: integer;
begin
  x := 1;
end.`)
	var unhandled *diag.UnhandledError
	if !errors.As(err, &unhandled) {
		t.Fatalf("expected UnhandledError, got %v", err)
	}
	if unhandled.Pos.Line != 3 || !strings.Contains(unhandled.Cause.Error(), "listener exploded") {
		t.Fatalf("unexpected unhandled error %+v", unhandled)
	}
}

type recordingListener struct {
	lines   []int
	changes []runtime.CallStack
	onLine  func(line int)
}

func (l *recordingListener) OnLine(_ ast.Node, pos source.LineInfo) {
	l.lines = append(l.lines, pos.Line)
	if l.onLine != nil {
		l.onLine(pos.Line)
	}
}

func (l *recordingListener) OnVariableChange(stack runtime.CallStack) {
	l.changes = append(l.changes, stack)
}

const debugProgram = `procedure bump(var n: integer);
begin
  n := n + 1;
end;
var x: integer;
begin
  x := 1;
  bump(x);
  writeln(x);
end.`

func runDebug(t *testing.T, mode DebugMode, listener *recordingListener) string {
	t.Helper()
	var out bytes.Buffer
	interp := New(Options{Stdout: &out, Debug: listener, DebugMode: mode})
	if _, err := interp.RunString(context.Background(), "dbg.pas", debugProgram); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	return out.String()
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestDebugStepIntoReportsEveryLine(t *testing.T) {
	listener := &recordingListener{}
	if out := runDebug(t, DebugStepInto, listener); out != "2\n" {
		t.Fatalf("unexpected output %q", out)
	}
	if want := []int{7, 8, 3, 9}; !equalInts(listener.lines, want) {
		t.Fatalf("expected lines %v, got %v", want, listener.lines)
	}
	if len(listener.changes) != 2 {
		t.Fatalf("expected 2 variable changes, got %d", len(listener.changes))
	}
	top, _ := listener.changes[1].Top()
	if top.Routine != "bump" || top.Depth != 1 {
		t.Fatalf("expected change inside bump, got %+v", top)
	}
	if len(top.Vars) != 1 || top.Vars[0].Name != "n" || top.Vars[0].Value != (runtime.IntegerValue{Val: 2}) {
		t.Fatalf("unexpected bump bindings %+v", top.Vars)
	}
}

func TestDebugStepOverSkipsCalledRoutines(t *testing.T) {
	listener := &recordingListener{}
	runDebug(t, DebugStepOver, listener)
	if want := []int{7, 8, 9}; !equalInts(listener.lines, want) {
		t.Fatalf("expected lines %v, got %v", want, listener.lines)
	}
	if len(listener.changes) != 1 {
		t.Fatalf("expected 1 variable change, got %d", len(listener.changes))
	}
}

func TestDebugOffIsSilent(t *testing.T) {
	listener := &recordingListener{}
	runDebug(t, DebugOff, listener)
	if len(listener.lines) != 0 || len(listener.changes) != 0 {
		t.Fatalf("expected no callbacks, got %v", listener.lines)
	}
}

func TestDebugListenerCanTerminate(t *testing.T) {
	var out bytes.Buffer
	listener := &recordingListener{}
	interp := New(Options{Stdout: &out, Debug: listener, DebugMode: DebugStepInto})
	prog, err := interp.CompileString("dbg.pas", debugProgram)
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	listener.onLine = func(line int) {
		if line == 8 {
			prog.Terminate()
		}
	}
	err = prog.Run(context.Background())
	if !diag.IsKind(err, diag.KindScriptTerminated) {
		t.Fatalf("expected termination, got %v", err)
	}
	if pos, _ := diag.PositionOf(err); pos.Line != 8 {
		t.Fatalf("expected termination at line 8, got %v", pos)
	}
	if out.Len() != 0 {
		t.Fatalf("expected no output, got %q", out.String())
	}
}

func TestListenerCanLeaveDebugging(t *testing.T) {
	var out bytes.Buffer
	listener := &recordingListener{}
	interp := New(Options{Stdout: &out, Debug: listener, DebugMode: DebugStepInto})
	prog, err := interp.CompileString("dbg.pas", debugProgram)
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	if prog.DebugMode() != DebugStepInto {
		t.Fatalf("expected step-into before run, got %s", prog.DebugMode())
	}
	listener.onLine = func(line int) {
		if line == 8 {
			prog.SetDebugMode(DebugOff)
		}
	}
	if err := prog.Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if want := []int{7, 8}; !equalInts(listener.lines, want) {
		t.Fatalf("expected lines %v, got %v", want, listener.lines)
	}
	if prog.DebugMode() != DebugOff {
		t.Fatalf("expected debugging off, got %s", prog.DebugMode())
	}
}

func TestInterpretersOwnTheirRegistry(t *testing.T) {
	a, b := New(Options{}), New(Options{})
	if a.Registry() == nil || a.Registry() == b.Registry() {
		t.Fatalf("expected a fresh registry per interpreter")
	}
	shared := builtins.NewRegistry()
	if got := New(Options{Registry: shared}).Registry(); got != shared {
		t.Fatalf("expected the given registry to be kept")
	}
}
