package parser

import (
	"errors"
	"testing"

	"pascal/interpreter-go/pkg/ast"
	"pascal/interpreter-go/pkg/diag"
	"pascal/interpreter-go/pkg/operators"
	"pascal/interpreter-go/pkg/runtime"
	"pascal/interpreter-go/pkg/scope"
	"pascal/interpreter-go/pkg/source"
	"pascal/interpreter-go/pkg/types"
)

func mustParse(t *testing.T, text string) *ast.CodeUnit {
	t.Helper()
	unit, err := Parse(source.FromString("test.pas", text), Options{})
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	return unit
}

func parseErr(t *testing.T, text string) error {
	t.Helper()
	_, err := Parse(source.FromString("test.pas", text), Options{})
	if err == nil {
		t.Fatalf("expected parse error for:\n%s", text)
	}
	return err
}

func firstAssign(t *testing.T, unit *ast.CodeUnit) *ast.Assign {
	t.Helper()
	if len(unit.Body.Body) == 0 {
		t.Fatalf("expected statements in main block")
	}
	assign, ok := unit.Body.Body[0].(*ast.Assign)
	if !ok {
		t.Fatalf("expected assignment, got %T", unit.Body.Body[0])
	}
	return assign
}

func TestParseConstantFoldsArithmetic(t *testing.T) {
	unit := mustParse(t, `program p;
var x: integer;
begin
  x := 2 + 3;
end.`)
	assign := firstAssign(t, unit)
	c, ok := assign.Value.(*ast.Constant)
	if !ok {
		t.Fatalf("expected folded constant, got %T", assign.Value)
	}
	if c.Value != (runtime.IntegerValue{Val: 5}) {
		t.Fatalf("expected 5, got %v", c.Value)
	}
	if unit.Name.Spelling != "p" || len(unit.Vars) != 1 {
		t.Fatalf("unexpected unit header: %s with %d vars", unit.Name, len(unit.Vars))
	}
}

func TestParseDivisionByZeroIsNotFolded(t *testing.T) {
	unit := mustParse(t, `var x: real;
begin
  x := 1 div 0;
end.`)
	assign := firstAssign(t, unit)
	conv, ok := assign.Value.(*ast.Conversion)
	if !ok {
		t.Fatalf("expected conversion to real, got %T", assign.Value)
	}
	bin, ok := conv.Operand.(*ast.Binary)
	if !ok || bin.Op != operators.OpDiv {
		t.Fatalf("expected unfolded div, got %T", conv.Operand)
	}
	if bin.Position().Line != 3 {
		t.Fatalf("expected division on line 3, got %s", bin.Position())
	}
}

func TestParseDivideAlwaysYieldsReal(t *testing.T) {
	unit := mustParse(t, `var a, b: integer; r: real;
begin
  r := a / b;
end.`)
	assign := firstAssign(t, unit)
	if !assign.Value.StaticType().Equals(types.Real) {
		t.Fatalf("expected Real, got %s", assign.Value.StaticType().Name())
	}
}

func TestParseRejectsImplicitRealToInteger(t *testing.T) {
	err := parseErr(t, `var i: integer;
begin
  i := 2.5;
end.`)
	var ute *diag.UnconvertibleTypeError
	if !errors.As(err, &ute) {
		t.Fatalf("expected UnconvertibleTypeError, got %v", err)
	}
	if !ute.Implicit || ute.From != "Real" || ute.To != "Integer" || ute.Expr != "2.5" {
		t.Fatalf("unexpected error details: %+v", ute)
	}
	if ute.Pos.Line != 3 {
		t.Fatalf("expected line 3, got %d", ute.Pos.Line)
	}
}

func TestParseExplicitCastsCharAndInteger(t *testing.T) {
	unit := mustParse(t, `var c: char; i: integer;
begin
  c := char(65);
  i := integer('A');
end.`)
	c := unit.Body.Body[0].(*ast.Assign).Value.(*ast.Constant)
	if c.Value != (runtime.CharValue{Val: 'A'}) {
		t.Fatalf("expected 'A', got %v", c.Value)
	}
	i := unit.Body.Body[1].(*ast.Assign).Value.(*ast.Constant)
	if i.Value != (runtime.IntegerValue{Val: 65}) {
		t.Fatalf("expected 65, got %v", i.Value)
	}
}

func TestParseUndeclaredIdentifier(t *testing.T) {
	err := parseErr(t, `begin
  y := 1;
end.`)
	if !diag.IsKind(err, diag.KindUndeclaredIdentifier) {
		t.Fatalf("expected undeclared identifier, got %v", err)
	}
	if pos, _ := diag.PositionOf(err); pos.Line != 2 || pos.Column != 3 {
		t.Fatalf("expected 2:3, got %s", pos)
	}
}

func TestParseDuplicateDeclaration(t *testing.T) {
	err := parseErr(t, `var x: integer; x: real;
begin end.`)
	if !diag.IsKind(err, diag.KindDuplicateDeclaration) {
		t.Fatalf("expected duplicate declaration, got %v", err)
	}
}

func TestParseIndexingNonArray(t *testing.T) {
	err := parseErr(t, `var i: integer;
begin
  i := i[1];
end.`)
	var nai *diag.NonArrayIndexedError
	if !errors.As(err, &nai) || nai.Type != "Integer" {
		t.Fatalf("expected NonArrayIndexedError on Integer, got %v", err)
	}
}

func TestParseStrictDivideAssign(t *testing.T) {
	// the quotient of /= must land in a real target, even though the
	// general rules would also reject it for integers only at assignment
	err := parseErr(t, `var i: integer;
begin
  i /= 2;
end.`)
	var ute *diag.UnconvertibleTypeError
	if !errors.As(err, &ute) || ute.To != "Integer" {
		t.Fatalf("expected UnconvertibleTypeError to Integer, got %v", err)
	}

	unit := mustParse(t, `var r: real;
begin
  r /= 2;
  r += 1;
end.`)
	ca, ok := unit.Body.Body[0].(*ast.CompoundAssign)
	if !ok || ca.Op != operators.OpDivide {
		t.Fatalf("expected compound divide, got %T", unit.Body.Body[0])
	}
	if _, ok := ca.Value.(*ast.Binary); !ok {
		t.Fatalf("expected binary value, got %T", ca.Value)
	}
}

func TestParseNestedBlockShadowsOuterVariable(t *testing.T) {
	unit := mustParse(t, `var x: integer;
begin
  x := 1;
  begin
    var x: string;
    x := 'inner';
  end;
  x := 2;
end.`)
	inner := unit.Body.Body[1].(*ast.Block)
	if len(inner.Vars) != 1 || !inner.Vars[0].T.Equals(types.String) {
		t.Fatalf("expected inline string variable, got %+v", inner.Vars)
	}
	innerAssign := inner.Body[0].(*ast.Assign)
	if innerAssign.Target.(*ast.VariableAccess).Decl != inner.Vars[0] {
		t.Fatalf("inner assignment should target the inner declaration")
	}
	outer := unit.Body.Body[2].(*ast.Assign)
	if outer.Target.(*ast.VariableAccess).Decl != unit.Vars[0] {
		t.Fatalf("outer assignment should target the outer declaration")
	}
}

func TestParseRoutinesAndOverloads(t *testing.T) {
	unit := mustParse(t, `program calls;
function twice(x: integer): integer;
begin
  twice := x * 2;
end;
function twice(s: string): string;
begin
  Result := s + s;
end;
procedure swap(var a, b: integer);
var t: integer;
begin
  t := a; a := b; b := t;
end;
var n, m: integer; s: string;
begin
  n := twice(4);
  s := twice('ab');
  swap(n, m);
end.`)
	if len(unit.Routines) != 3 {
		t.Fatalf("expected 3 routines, got %d", len(unit.Routines))
	}
	first := unit.Body.Body[0].(*ast.Assign).Value.(*ast.Call)
	second := unit.Body.Body[1].(*ast.Assign).Value.(*ast.Call)
	if first.Callee == second.Callee {
		t.Fatalf("expected distinct overloads")
	}
	if !second.StaticType().Equals(types.String) {
		t.Fatalf("expected string overload, got %s", second.StaticType().Name())
	}
	swap := unit.Routines[2]
	if !swap.Params[0].ByRef || len(swap.Locals) != 1 {
		t.Fatalf("unexpected swap declaration: %+v", swap)
	}
	if swap.Enclosing != 0 || swap.Scope == 0 {
		t.Fatalf("expected routine frame under the global frame, got scope %d enclosing %d", swap.Scope, swap.Enclosing)
	}
}

func TestParseVarArgumentMustBeAssignable(t *testing.T) {
	err := parseErr(t, `procedure bump(var a: integer);
begin
  a := a + 1;
end;
begin
  bump(3);
end.`)
	if !diag.IsKind(err, diag.KindBadFunctionCall) {
		t.Fatalf("expected bad function call, got %v", err)
	}
}

func TestParseForwardDeclarations(t *testing.T) {
	mustParse(t, `function isEven(n: integer): boolean; forward;
function isOdd(n: integer): boolean;
begin
  if n = 0 then isOdd := false else isOdd := isEven(n - 1);
end;
function isEven(n: integer): boolean;
begin
  if n = 0 then isEven := true else isEven := isOdd(n - 1);
end;
begin
  writeln(isEven(10));
end.`)

	err := parseErr(t, `procedure later; forward;
begin
  later;
end.`)
	if !diag.IsKind(err, diag.KindParsing) {
		t.Fatalf("expected parsing error for unresolved forward, got %v", err)
	}
}

func TestParseBreakOutsideLoop(t *testing.T) {
	err := parseErr(t, `begin
  break;
end.`)
	if pos, _ := diag.PositionOf(err); pos.Line != 2 {
		t.Fatalf("expected error on line 2, got %v", err)
	}
}

func TestParseTypesRecordsArraysEnums(t *testing.T) {
	unit := mustParse(t, `type
  Color = (Red, Green, Blue);
  Digit = 0..9;
  Point = record x, y: integer; end;
  Grid = array[1..3, 1..4] of Digit;
var
  c: Color;
  p: Point;
  g: Grid;
  d: array of real;
begin
  c := Blue;
  p.x := ord(c);
  g[2, 3] := 7;
  setlength(d, 3);
  d[0] := p.x;
end.`)
	if len(unit.Types) != 4 {
		t.Fatalf("expected 4 type declarations, got %d", len(unit.Types))
	}
	grid := unit.Types[3].T.(*types.Array)
	inner, ok := grid.Element.(*types.Array)
	if !ok || grid.Low != 1 || grid.High != 3 || inner.High != 4 {
		t.Fatalf("unexpected grid type %s", grid.Name())
	}
	blue := unit.Body.Body[0].(*ast.Assign).Value.(*ast.Constant)
	if blue.Value.(runtime.EnumValue).Ordinal != 2 {
		t.Fatalf("expected Blue = 2, got %v", blue.Value)
	}
	cell := unit.Body.Body[2].(*ast.Assign)
	if _, ok := cell.Target.(*ast.IndexAccess); !ok {
		t.Fatalf("expected index target, got %T", cell.Target)
	}
	if _, ok := cell.Value.StaticType().(*types.Subrange); !ok {
		t.Fatalf("expected value narrowed into Digit, got %s", cell.Value.StaticType().Name())
	}
	widened := unit.Body.Body[4].(*ast.Assign)
	if _, ok := widened.Value.(*ast.Conversion); !ok {
		t.Fatalf("expected integer field widened to real, got %T", widened.Value)
	}
}

func TestParseUnknownField(t *testing.T) {
	err := parseErr(t, `type TPoint = record x: integer; end;
var p: TPoint;
begin
  p.z := 1;
end.`)
	if !diag.IsKind(err, diag.KindUnknownField) {
		t.Fatalf("expected unknown field, got %v", err)
	}
}

func TestParseConstantSection(t *testing.T) {
	unit := mustParse(t, `const
  Size = 4 * 4;
  Name = 'grid';
  Limit: integer = 10;
var v: integer;
begin
  v := Size;
end.`)
	if len(unit.Consts) != 2 || unit.Consts[0].Value != (runtime.IntegerValue{Val: 16}) {
		t.Fatalf("unexpected consts: %+v", unit.Consts)
	}
	if len(unit.Vars) != 2 || unit.Vars[0].Init == nil {
		t.Fatalf("expected typed constant as initialized variable, got %+v", unit.Vars)
	}

	err := parseErr(t, `var v: integer;
const Bad = v + 1;
begin end.`)
	if !diag.IsKind(err, diag.KindParsing) {
		t.Fatalf("expected parsing error for variable in constant, got %v", err)
	}
}

func TestParseCaseStatement(t *testing.T) {
	unit := mustParse(t, `var n: integer; s: string;
begin
  case n of
    1, 2: s := 'small';
    3..9: s := 'medium';
  else
    s := 'large';
  end;
end.`)
	c := unit.Body.Body[0].(*ast.Case)
	if len(c.Branches) != 2 || len(c.Else) != 1 {
		t.Fatalf("unexpected case shape: %d branches, %d else", len(c.Branches), len(c.Else))
	}
	if c.Branches[1].Labels[0] != (ast.CaseLabel{Low: 3, High: 9}) {
		t.Fatalf("unexpected range label %+v", c.Branches[1].Labels[0])
	}

	err := parseErr(t, `var n: integer;
begin
  case n of
    1: n := 0;
    1: n := 1;
  end;
end.`)
	if !diag.IsKind(err, diag.KindParsing) {
		t.Fatalf("expected duplicate label error, got %v", err)
	}
}

func TestParseWriteFormatting(t *testing.T) {
	unit := mustParse(t, `var r: real;
begin
  writeln('r = ', r:8:2);
end.`)
	call := unit.Body.Body[0].(*ast.CallStatement).Call
	if len(call.Args) != 2 {
		t.Fatalf("expected 2 args, got %d", len(call.Args))
	}
	if _, ok := call.Args[1].(*ast.Formatted); !ok {
		t.Fatalf("expected formatted argument, got %T", call.Args[1])
	}
}

func TestParseUsesActivatesLibraries(t *testing.T) {
	err := parseErr(t, `var x: real;
begin
  x := power(2, 3);
end.`)
	if !diag.IsKind(err, diag.KindUndeclaredIdentifier) {
		t.Fatalf("expected power to be undeclared without uses math, got %v", err)
	}

	unit := mustParse(t, `uses math, classes;
var x: real; l: TStringList;
begin
  x := power(2, 3);
  l := TStringList.Create;
  l.Add('a');
  writeln(l.Count, l[0]);
end.`)
	if len(unit.Libraries) != 3 {
		t.Fatalf("expected system, math and classes, got %v", unit.Libraries)
	}
}

type mapUnits map[string]string

func (m mapUnits) ResolveUnit(name string) (source.Source, error) {
	text, ok := m[name]
	if !ok {
		return source.Source{}, errors.New("not found")
	}
	return source.FromString(name+".pas", text), nil
}

func TestParseSourceUnits(t *testing.T) {
	units := mapUnits{
		"shapes": `unit shapes;
interface
uses math;
var count: integer;
function area(w, h: real): real;
implementation
function area(w, h: real): real;
begin
  count := count + 1;
  area := max(w, h) * min(w, h);
end;
initialization
  count := 0;
end.`,
	}
	unit, err := Parse(source.FromString("main.pas", `program main;
uses shapes;
var a: real;
begin
  a := area(2, 3);
  writeln(count);
end.`), Options{Units: units})
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if len(unit.Units) != 1 || unit.Units[0].Name.Spelling != "shapes" {
		t.Fatalf("expected shapes unit, got %+v", unit.Units)
	}
	shapes := unit.Units[0]
	if shapes.Vars[0].Key != "shapes.count" {
		t.Fatalf("expected qualified key, got %q", shapes.Vars[0].Key)
	}

	_, err = Parse(source.FromString("main.pas", `uses missing; begin end.`), Options{Units: units})
	if !diag.IsKind(err, diag.KindUnknownUnit) {
		t.Fatalf("expected unknown unit, got %v", err)
	}
}

func TestParseCircularUnits(t *testing.T) {
	units := mapUnits{
		"a": "unit a; interface uses b; implementation end.",
		"b": "unit b; interface uses a; implementation end.",
	}
	_, err := Parse(source.FromString("main.pas", `uses a; begin end.`), Options{Units: units})
	if !diag.IsKind(err, diag.KindUnknownUnit) {
		t.Fatalf("expected circular unit error, got %v", err)
	}
}

func TestParseWithScopesReturnsArenaOnError(t *testing.T) {
	_, arena, err := ParseWithScopes(source.FromString("partial.pas", `var total: integer;
procedure step(amount: integer);
begin
  total := total +`), Options{})
	if err == nil {
		t.Fatalf("expected parse error")
	}
	id := arena.Innermost(source.Pos(4, 5))
	var names []string
	for _, sym := range arena.Visible(id) {
		names = append(names, sym.Name)
	}
	want := map[string]bool{"amount": false, "total": false, "step": false}
	for _, n := range names {
		if _, ok := want[n]; ok {
			want[n] = true
		}
	}
	for n, seen := range want {
		if !seen {
			t.Fatalf("expected %q among visible symbols %v", n, names)
		}
	}
	if arena.Get(id).Kind != scope.KindRoutine {
		t.Fatalf("expected routine context, got %s", arena.Get(id).Kind)
	}
}

func TestParseLexicalErrorsSurface(t *testing.T) {
	err := parseErr(t, `begin
  writeln('unterminated);
end.`)
	if !diag.IsKind(err, diag.KindLexical) {
		t.Fatalf("expected lexical error, got %v", err)
	}
}
