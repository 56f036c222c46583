package scope

import (
	"sort"

	"pascal/interpreter-go/pkg/ast"
	"pascal/interpreter-go/pkg/diag"
	"pascal/interpreter-go/pkg/source"
	"pascal/interpreter-go/pkg/types"
)

// ID indexes a context inside its Arena.
type ID int

// NoParent marks the root context.
const NoParent ID = -1

// Kind is the flavor of a context.
type Kind int

const (
	KindRoot Kind = iota
	KindUnit
	KindRoutine
	KindBlock
)

func (k Kind) String() string {
	switch k {
	case KindRoot:
		return "root"
	case KindUnit:
		return "unit"
	case KindRoutine:
		return "routine"
	case KindBlock:
		return "block"
	default:
		return "unknown"
	}
}

// DeclKind distinguishes the symbols a context can hold.
type DeclKind int

const (
	DeclConst DeclKind = iota
	DeclVar
	DeclType
	DeclFunction
)

func (k DeclKind) String() string {
	switch k {
	case DeclConst:
		return "const"
	case DeclVar:
		return "var"
	case DeclType:
		return "type"
	case DeclFunction:
		return "function"
	default:
		return "unknown"
	}
}

// Declaration binds a Name to a type within one context.
type Declaration struct {
	Kind  DeclKind
	Name  ast.Name
	Type  types.DeclaredType
	Pos   source.LineInfo
	Const *ast.ConstDecl
	Var   *ast.VarDecl
}

// Context is one lexical scope. It refers to its parent by index only.
type Context struct {
	ID          ID
	Parent      ID
	Kind        Kind
	Name        string
	CompileTime bool
	Frame       int
	Start       source.LineInfo
	End         source.LineInfo

	decls   map[string]*Declaration
	order   []string
	funcs   map[string][]ast.Callable
	imports []ID
}

// Arena owns every context created while parsing one program.
type Arena struct {
	contexts []*Context
}

// NewArena creates an arena holding only the root context.
func NewArena() *Arena {
	a := &Arena{}
	a.push(NoParent, KindRoot, "", false, source.LineInfo{})
	return a
}

// Root returns the id of the root context.
func (a *Arena) Root() ID { return 0 }

// Len reports how many contexts exist.
func (a *Arena) Len() int { return len(a.contexts) }

// Get returns the context for id.
func (a *Arena) Get(id ID) *Context { return a.contexts[id] }

// Push creates a child of parent.
func (a *Arena) Push(parent ID, kind Kind, name string, start source.LineInfo) ID {
	return a.push(parent, kind, name, false, start)
}

// PushCompileTime creates a compile-time child used while folding constant
// expressions; variables are not visible through it.
func (a *Arena) PushCompileTime(parent ID, start source.LineInfo) ID {
	return a.push(parent, KindBlock, "", true, start)
}

func (a *Arena) push(parent ID, kind Kind, name string, compileTime bool, start source.LineInfo) ID {
	id := ID(len(a.contexts))
	frame := 0
	if kind == KindRoutine {
		frame = int(id)
	} else if parent != NoParent {
		frame = a.contexts[parent].Frame
	}
	a.contexts = append(a.contexts, &Context{
		ID:          id,
		Parent:      parent,
		Kind:        kind,
		Name:        name,
		CompileTime: compileTime,
		Frame:       frame,
		Start:       start,
		decls:       make(map[string]*Declaration),
		funcs:       make(map[string][]ast.Callable),
	})
	return id
}

// Close records where a context's source span ends.
func (a *Arena) Close(id ID, end source.LineInfo) {
	a.contexts[id].End = end
}

// Import makes the top-level symbols of another context (a used unit)
// visible from id, behind id's own declarations.
func (a *Arena) Import(id, unit ID) {
	ctx := a.contexts[id]
	for _, existing := range ctx.imports {
		if existing == unit {
			return
		}
	}
	ctx.imports = append(ctx.imports, unit)
}

// Declare enters decl into context id.
func (a *Arena) Declare(id ID, decl *Declaration) error {
	ctx := a.contexts[id]
	key := decl.Name.Key()
	if prev, ok := ctx.decls[key]; ok {
		return duplicate(decl, prev.Pos)
	}
	if _, ok := ctx.funcs[key]; ok {
		return duplicate(decl, source.LineInfo{})
	}
	ctx.decls[key] = decl
	ctx.order = append(ctx.order, key)
	return nil
}

// AddFunction appends fn to the overload set of name in context id.
func (a *Arena) AddFunction(id ID, name ast.Name, fn ast.Callable, pos source.LineInfo) error {
	ctx := a.contexts[id]
	key := name.Key()
	if prev, ok := ctx.decls[key]; ok {
		return duplicate(&Declaration{Kind: DeclFunction, Name: name, Pos: pos}, prev.Pos)
	}
	if _, ok := ctx.funcs[key]; !ok {
		ctx.order = append(ctx.order, key)
	}
	ctx.funcs[key] = append(ctx.funcs[key], fn)
	return nil
}

func duplicate(decl *Declaration, prev source.LineInfo) error {
	if prev.IsZero() {
		return diag.NewParsingKind(diag.KindDuplicateDeclaration, decl.Pos, "duplicate identifier %q", decl.Name.Spelling)
	}
	return diag.NewParsingKind(diag.KindDuplicateDeclaration, decl.Pos, "duplicate identifier %q (first declared at %s)", decl.Name.Spelling, prev)
}

// Resolve looks name up from id outward without failing. The first
// context binding name wins, whether it binds a declaration or routines;
// routines resolve to a DeclFunction entry.
func (a *Arena) Resolve(id ID, name ast.Name) (*Declaration, bool) {
	key := name.Key()
	for cur := id; cur != NoParent; cur = a.contexts[cur].Parent {
		ctx := a.contexts[cur]
		if decl, ok := ctx.bound(key, name); ok {
			return decl, true
		}
		for _, imp := range ctx.imports {
			if decl, ok := a.contexts[imp].bound(key, name); ok {
				return decl, true
			}
		}
	}
	return nil, false
}

func (c *Context) bound(key string, name ast.Name) (*Declaration, bool) {
	if decl, ok := c.decls[key]; ok {
		return decl, true
	}
	if _, ok := c.funcs[key]; ok {
		return &Declaration{Kind: DeclFunction, Name: name}, true
	}
	return nil, false
}

// Lookup resolves name from id outward. In a compile-time context only
// constants and types resolve.
func (a *Arena) Lookup(id ID, name ast.Name, pos source.LineInfo) (*Declaration, error) {
	decl, ok := a.Resolve(id, name)
	if !ok {
		return nil, diag.NewParsingKind(diag.KindUndeclaredIdentifier, pos, "undeclared identifier %q", name.Spelling)
	}
	if decl.Kind == DeclVar && a.inCompileTime(id) {
		return nil, diag.NewParsing(pos, "variable %q cannot appear in a constant expression", name.Spelling)
	}
	return decl, nil
}

func (a *Arena) inCompileTime(id ID) bool {
	for cur := id; cur != NoParent; cur = a.contexts[cur].Parent {
		if a.contexts[cur].CompileTime {
			return true
		}
	}
	return false
}

// Functions gathers the overload sets visible for name, innermost first.
func (a *Arena) Functions(id ID, name ast.Name) [][]ast.Callable {
	key := name.Key()
	var out [][]ast.Callable
	for cur := id; cur != NoParent; cur = a.contexts[cur].Parent {
		ctx := a.contexts[cur]
		if set, ok := ctx.funcs[key]; ok {
			out = append(out, set)
		}
		for _, imp := range ctx.imports {
			if set, ok := a.contexts[imp].funcs[key]; ok {
				out = append(out, set)
			}
		}
	}
	return out
}

// LocalFunctions returns the overload set declared directly in id.
func (a *Arena) LocalFunctions(id ID, name ast.Name) []ast.Callable {
	return a.contexts[id].funcs[name.Key()]
}

// FrameOf returns the runtime frame id owning context id.
func (a *Arena) FrameOf(id ID) int {
	return a.contexts[id].Frame
}

// Symbol is one entry of a completion snapshot.
type Symbol struct {
	Name string
	Kind DeclKind
	Type string
}

// Visible returns every symbol reachable from id, inner declarations
// shadowing outer ones, sorted by name.
func (a *Arena) Visible(id ID) []Symbol {
	seen := make(map[string]bool)
	var out []Symbol
	collect := func(ctx *Context) {
		for _, key := range ctx.order {
			if seen[key] {
				continue
			}
			seen[key] = true
			if decl, ok := ctx.decls[key]; ok {
				sym := Symbol{Name: decl.Name.Spelling, Kind: decl.Kind}
				if decl.Type != nil {
					sym.Type = decl.Type.Name()
				}
				out = append(out, sym)
				continue
			}
			for _, fn := range ctx.funcs[key] {
				sym := Symbol{Name: fn.CallableName(), Kind: DeclFunction}
				if res := fn.ResultType(); res != nil {
					sym.Type = res.Name()
				}
				out = append(out, sym)
				break
			}
		}
	}
	for cur := id; cur != NoParent; cur = a.contexts[cur].Parent {
		ctx := a.contexts[cur]
		collect(ctx)
		for _, imp := range ctx.imports {
			collect(a.contexts[imp])
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return ast.Fold(out[i].Name) < ast.Fold(out[j].Name) })
	return out
}

// Innermost returns the deepest context whose span contains pos. Contexts
// with no recorded end are treated as open to the end of the source. A
// position naming a unit only matches contexts of that unit.
func (a *Arena) Innermost(pos source.LineInfo) ID {
	best := a.Root()
	for _, ctx := range a.contexts[1:] {
		if ctx.CompileTime || !contains(ctx, pos) {
			continue
		}
		if a.depth(ctx.ID) >= a.depth(best) {
			best = ctx.ID
		}
	}
	return best
}

func contains(ctx *Context, pos source.LineInfo) bool {
	if pos.Unit != "" && ctx.Start.Unit != "" && pos.Unit != ctx.Start.Unit {
		return false
	}
	if before(pos, ctx.Start) {
		return false
	}
	return ctx.End.IsZero() || !before(ctx.End, pos)
}

func before(a, b source.LineInfo) bool {
	if a.Line != b.Line {
		return a.Line < b.Line
	}
	return a.Column < b.Column
}

func (a *Arena) depth(id ID) int {
	d := 0
	for cur := id; cur != NoParent; cur = a.contexts[cur].Parent {
		d++
	}
	return d
}
