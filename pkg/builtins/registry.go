package builtins

import (
	"bufio"
	"io"
	"log/slog"
	"math/rand"
	"sort"
	"strings"

	"pascal/interpreter-go/pkg/ast"
	"pascal/interpreter-go/pkg/runtime"
	"pascal/interpreter-go/pkg/source"
	"pascal/interpreter-go/pkg/types"
)

// Env is the host environment builtins run against. One Env belongs to one
// running program.
type Env struct {
	Out    io.Writer
	In     *bufio.Reader
	Rand   *rand.Rand
	Logger *slog.Logger
	// Sleep blocks for ms milliseconds; it returns early with an error when
	// the program is cancelled.
	Sleep func(ms int64) error
}

// Call carries the evaluated arguments of one builtin invocation. Refs
// holds the storage of by-reference arguments (nil elsewhere); ArgTypes
// holds the static type of every argument.
type Call struct {
	Pos      source.LineInfo
	Args     []runtime.Value
	Refs     []runtime.Reference
	ArgTypes []types.DeclaredType
	Env      *Env
}

// Function is one statically registered builtin overload.
type Function struct {
	Name     string
	Params   []ast.Parameter
	Result   types.DeclaredType
	Variadic bool
	// ResultOf derives the result type from the argument types when it is
	// not fixed, e.g. abs or succ.
	ResultOf func(args []types.DeclaredType) types.DeclaredType
	Invoke   func(call *Call) (runtime.Value, error)
}

func (f *Function) CallableName() string           { return f.Name }
func (f *Function) Parameters() []ast.Parameter    { return f.Params }
func (f *Function) ResultType() types.DeclaredType { return f.Result }

func (f *Function) ResolveResult(args []types.DeclaredType) types.DeclaredType {
	if f.ResultOf != nil {
		return f.ResultOf(args)
	}
	return f.Result
}

// Const is a library-provided constant.
type Const struct {
	Name  string
	Type  types.DeclaredType
	Value runtime.Value
}

// TypeDef is a library-provided type.
type TypeDef struct {
	Name string
	Type types.DeclaredType
}

// Library groups the functions, constants and types a `uses` clause makes
// visible.
type Library struct {
	Name      string
	Consts    []Const
	Types     []TypeDef
	functions map[string][]*Function
	order     []string
}

// NewLibrary creates an empty library.
func NewLibrary(name string) *Library {
	return &Library{Name: name, functions: make(map[string][]*Function)}
}

// Add registers overloads under their names.
func (l *Library) Add(fns ...*Function) *Library {
	for _, fn := range fns {
		key := ast.Fold(fn.Name)
		if _, ok := l.functions[key]; !ok {
			l.order = append(l.order, key)
		}
		l.functions[key] = append(l.functions[key], fn)
	}
	return l
}

// Functions returns the overload set registered for name.
func (l *Library) Functions(name string) []*Function {
	return l.functions[ast.Fold(name)]
}

// Method returns the overload set of a host-type method, registered as
// "Type.Method".
func (l *Library) Method(typeName, method string) []*Function {
	return l.functions[ast.Fold(typeName+"."+method)]
}

// FunctionNames lists registered names in registration order.
func (l *Library) FunctionNames() []string {
	out := make([]string, 0, len(l.order))
	for _, key := range l.order {
		if strings.Contains(key, ".") {
			continue
		}
		out = append(out, l.functions[key][0].Name)
	}
	return out
}

// SystemLibrary is always active.
const SystemLibrary = "system"

// Registry holds the libraries available to one interpreter instance.
type Registry struct {
	libs map[string]*Library
}

// NewRegistry builds a registry with every bundled library registered.
func NewRegistry() *Registry {
	r := &Registry{libs: make(map[string]*Library)}
	r.Register(systemLibrary())
	r.Register(mathLibrary())
	r.Register(strutilsLibrary())
	r.Register(sysutilsLibrary())
	r.Register(crtLibrary())
	r.Register(classesLibrary())
	return r
}

// Register adds or replaces a library.
func (r *Registry) Register(lib *Library) {
	r.libs[ast.Fold(lib.Name)] = lib
}

// Library resolves a library by case-insensitive name.
func (r *Registry) Library(name string) (*Library, bool) {
	lib, ok := r.libs[ast.Fold(name)]
	return lib, ok
}

// System returns the always-active library.
func (r *Registry) System() *Library {
	return r.libs[SystemLibrary]
}

// Names lists the registered libraries.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.libs))
	for _, lib := range r.libs {
		out = append(out, lib.Name)
	}
	sort.Strings(out)
	return out
}

// Lookup searches the active libraries, in order, for name.
func Lookup(active []*Library, name string) []*Function {
	var out []*Function
	for _, lib := range active {
		out = append(out, lib.Functions(name)...)
	}
	return out
}

// LookupMethod searches the active libraries for a host-type method.
func LookupMethod(active []*Library, typeName, method string) []*Function {
	var out []*Function
	for _, lib := range active {
		out = append(out, lib.Method(typeName, method)...)
	}
	return out
}

// helpers shared by library definitions

func param(name string, t types.DeclaredType) ast.Parameter {
	return ast.Parameter{Name: ast.NewName(name), Type: t}
}

func varParam(name string, t types.DeclaredType) ast.Parameter {
	return ast.Parameter{Name: ast.NewName(name), Type: t, ByRef: true}
}

func params(ps ...ast.Parameter) []ast.Parameter { return ps }

func firstArgType(args []types.DeclaredType) types.DeclaredType {
	if len(args) == 0 {
		return types.Any
	}
	return types.Underlying(args[0])
}
