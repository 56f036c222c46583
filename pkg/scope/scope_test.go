package scope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pascal/interpreter-go/pkg/ast"
	"pascal/interpreter-go/pkg/diag"
	"pascal/interpreter-go/pkg/source"
	"pascal/interpreter-go/pkg/types"
)

func declareVar(t *testing.T, a *Arena, id ID, name string, typ types.DeclaredType) *Declaration {
	t.Helper()
	n := ast.NewName(name)
	decl := &Declaration{Kind: DeclVar, Name: n, Type: typ, Var: ast.NewVarDecl(source.Pos(1, 1), n, typ, "")}
	require.NoError(t, a.Declare(id, decl))
	return decl
}

func TestShadowingIsLimitedToTheBlock(t *testing.T) {
	a := NewArena()
	outer := declareVar(t, a, a.Root(), "x", types.Integer)

	block := a.Push(a.Root(), KindBlock, "", source.Pos(2, 1))
	inner := declareVar(t, a, block, "X", types.Real)

	got, err := a.Lookup(block, ast.NewName("x"), source.Pos(3, 1))
	require.NoError(t, err)
	assert.Same(t, inner, got)

	got, err = a.Lookup(a.Root(), ast.NewName("x"), source.Pos(5, 1))
	require.NoError(t, err)
	assert.Same(t, outer, got)
}

func TestLookupIsCaseInsensitive(t *testing.T) {
	a := NewArena()
	decl := declareVar(t, a, a.Root(), "Counter", types.Integer)
	got, err := a.Lookup(a.Root(), ast.NewName("COUNTER"), source.Pos(1, 1))
	require.NoError(t, err)
	assert.Equal(t, "Counter", got.Name.Spelling)
	assert.Same(t, decl, got)
}

func TestUndeclaredIdentifier(t *testing.T) {
	a := NewArena()
	_, err := a.Lookup(a.Root(), ast.NewName("missing"), source.Pos(7, 3))
	require.Error(t, err)
	assert.True(t, diag.IsKind(err, diag.KindUndeclaredIdentifier))
	pos, ok := diag.PositionOf(err)
	require.True(t, ok)
	assert.Equal(t, 7, pos.Line)
}

func TestDuplicateDeclaration(t *testing.T) {
	a := NewArena()
	declareVar(t, a, a.Root(), "x", types.Integer)
	err := a.Declare(a.Root(), &Declaration{Kind: DeclConst, Name: ast.NewName("X"), Type: types.Integer})
	assert.True(t, diag.IsKind(err, diag.KindDuplicateDeclaration))
}

func TestCompileTimeContextRejectsVariables(t *testing.T) {
	a := NewArena()
	declareVar(t, a, a.Root(), "v", types.Integer)
	require.NoError(t, a.Declare(a.Root(), &Declaration{Kind: DeclConst, Name: ast.NewName("c"), Type: types.Integer}))

	ct := a.PushCompileTime(a.Root(), source.Pos(1, 1))
	_, err := a.Lookup(ct, ast.NewName("c"), source.Pos(1, 1))
	assert.NoError(t, err)
	_, err = a.Lookup(ct, ast.NewName("v"), source.Pos(1, 1))
	assert.Error(t, err)
}

type fakeCallable struct {
	name string
}

func (f fakeCallable) CallableName() string           { return f.name }
func (f fakeCallable) Parameters() []ast.Parameter    { return nil }
func (f fakeCallable) ResultType() types.DeclaredType { return types.Integer }

func TestFunctionsAreGatheredInnermostFirst(t *testing.T) {
	a := NewArena()
	name := ast.NewName("f")
	require.NoError(t, a.AddFunction(a.Root(), name, fakeCallable{"outer"}, source.Pos(1, 1)))
	routine := a.Push(a.Root(), KindRoutine, "g", source.Pos(2, 1))
	require.NoError(t, a.AddFunction(routine, name, fakeCallable{"inner"}, source.Pos(3, 1)))
	require.NoError(t, a.AddFunction(routine, name, fakeCallable{"inner2"}, source.Pos(4, 1)))

	sets := a.Functions(routine, name)
	require.Len(t, sets, 2)
	assert.Len(t, sets[0], 2)
	assert.Equal(t, "outer", sets[1][0].CallableName())

	assert.Equal(t, int(routine), a.FrameOf(routine))
	block := a.Push(routine, KindBlock, "", source.Pos(5, 1))
	assert.Equal(t, int(routine), a.FrameOf(block))
	assert.Equal(t, 0, a.FrameOf(a.Root()))
}

func TestImportedUnitsResolveBehindLocals(t *testing.T) {
	a := NewArena()
	unit := a.Push(a.Root(), KindUnit, "helpers", source.Pos(1, 1))
	declareVar(t, a, unit, "shared", types.String)
	program := a.Push(a.Root(), KindUnit, "main", source.Pos(1, 1))
	a.Import(program, unit)

	got, err := a.Lookup(program, ast.NewName("shared"), source.Pos(2, 1))
	require.NoError(t, err)
	assert.Equal(t, types.String, got.Type)
}

func TestVisibleAndInnermost(t *testing.T) {
	a := NewArena()
	declareVar(t, a, a.Root(), "alpha", types.Integer)
	declareVar(t, a, a.Root(), "beta", types.Integer)
	routine := a.Push(a.Root(), KindRoutine, "p", source.Pos(3, 1))
	declareVar(t, a, routine, "Alpha", types.Real)
	a.Close(routine, source.Pos(10, 4))

	syms := a.Visible(routine)
	require.Len(t, syms, 2)
	assert.Equal(t, "Alpha", syms[0].Name)
	assert.Equal(t, "Real", syms[0].Type)
	assert.Equal(t, "beta", syms[1].Name)

	assert.Equal(t, routine, a.Innermost(source.Pos(5, 2)))
	assert.Equal(t, a.Root(), a.Innermost(source.Pos(12, 1)))
}

func TestInnerRoutineShadowsOuterVariable(t *testing.T) {
	a := NewArena()
	outer := declareVar(t, a, a.Root(), "count", types.Integer)
	routine := a.Push(a.Root(), KindRoutine, "show", source.Pos(2, 1))
	require.NoError(t, a.AddFunction(routine, ast.NewName("Count"), fakeCallable{"count"}, source.Pos(3, 1)))

	got, err := a.Lookup(routine, ast.NewName("count"), source.Pos(4, 1))
	require.NoError(t, err)
	assert.Equal(t, DeclFunction, got.Kind)

	block := a.Push(routine, KindBlock, "", source.Pos(5, 1))
	inner := declareVar(t, a, block, "count", types.Real)
	got, err = a.Lookup(block, ast.NewName("count"), source.Pos(6, 1))
	require.NoError(t, err)
	assert.Same(t, inner, got)

	got, err = a.Lookup(a.Root(), ast.NewName("count"), source.Pos(9, 1))
	require.NoError(t, err)
	assert.Same(t, outer, got)
}

func TestImportedRoutinesResolve(t *testing.T) {
	a := NewArena()
	unit := a.Push(a.Root(), KindUnit, "helpers", source.Pos(1, 1))
	require.NoError(t, a.AddFunction(unit, ast.NewName("greet"), fakeCallable{"greet"}, source.Pos(2, 1)))
	program := a.Push(a.Root(), KindUnit, "main", source.Pos(1, 1))
	a.Import(program, unit)

	got, err := a.Lookup(program, ast.NewName("GREET"), source.Pos(3, 1))
	require.NoError(t, err)
	assert.Equal(t, DeclFunction, got.Kind)
}
