package ast

import (
	"pascal/interpreter-go/pkg/runtime"
	"pascal/interpreter-go/pkg/source"
	"pascal/interpreter-go/pkg/types"
)

// Declarations

// VarDecl declares a variable, parameter or function result. Key is the
// runtime storage key; unit-level variables are qualified by their unit so
// they can share the global activation.
type VarDecl struct {
	nodeImpl

	Name  Name
	T     types.DeclaredType
	Key   string
	Init  Expression
	ByRef bool
}

func NewVarDecl(pos source.LineInfo, name Name, t types.DeclaredType, key string) *VarDecl {
	if key == "" {
		key = name.Key()
	}
	return &VarDecl{nodeImpl: newNodeImpl(NodeVarDecl, pos), Name: name, T: t, Key: key}
}

// ConstDecl binds a name to a value computed at parse time.
type ConstDecl struct {
	nodeImpl

	Name  Name
	T     types.DeclaredType
	Value runtime.Value
}

func NewConstDecl(pos source.LineInfo, name Name, t types.DeclaredType, value runtime.Value) *ConstDecl {
	return &ConstDecl{nodeImpl: newNodeImpl(NodeConstDecl, pos), Name: name, T: t, Value: value}
}

// TypeDecl aliases a name to a declared type.
type TypeDecl struct {
	nodeImpl

	Name Name
	T    types.DeclaredType
}

func NewTypeDecl(pos source.LineInfo, name Name, t types.DeclaredType) *TypeDecl {
	return &TypeDecl{nodeImpl: newNodeImpl(NodeTypeDecl, pos), Name: name, T: t}
}

// Callables

type Parameter struct {
	Name  Name
	Type  types.DeclaredType
	ByRef bool
}

// Callable is anything a call site can bind to: user routines and builtins.
type Callable interface {
	CallableName() string
	Parameters() []Parameter
	ResultType() types.DeclaredType
}

// ResultResolver is implemented by callables whose result type depends on
// the argument types, such as abs or succ.
type ResultResolver interface {
	ResolveResult(args []types.DeclaredType) types.DeclaredType
}

// FunctionDecl is a user-declared procedure (Result nil) or function.
// Enclosing is the frame id whose activation becomes the static link.
type FunctionDecl struct {
	nodeImpl

	Name      Name
	Params    []*VarDecl
	Result    types.DeclaredType
	ResultVar *VarDecl
	Locals    []*VarDecl
	Body      *Block
	Scope     int
	Enclosing int
	Forward   bool
}

func NewFunctionDecl(pos source.LineInfo, name Name, params []*VarDecl, result types.DeclaredType) *FunctionDecl {
	return &FunctionDecl{nodeImpl: newNodeImpl(NodeFunctionDecl, pos), Name: name, Params: params, Result: result}
}

func (f *FunctionDecl) CallableName() string { return f.Name.Spelling }

func (f *FunctionDecl) Parameters() []Parameter {
	out := make([]Parameter, len(f.Params))
	for i, p := range f.Params {
		out[i] = Parameter{Name: p.Name, Type: p.T, ByRef: p.ByRef}
	}
	return out
}

func (f *FunctionDecl) ResultType() types.DeclaredType { return f.Result }

// Defined reports whether the routine has a body, i.e. is not a pending
// forward or interface declaration.
func (f *FunctionDecl) Defined() bool { return f.Body != nil }

// CodeUnit is a parsed program or unit: its declarations and entry
// statements. Units is the transitive list of units it uses, in
// initialization order.
type CodeUnit struct {
	nodeImpl

	Name      Name
	IsUnit    bool
	Libraries []string
	Units     []*CodeUnit
	Consts    []*ConstDecl
	Types     []*TypeDecl
	Vars      []*VarDecl
	Routines  []*FunctionDecl
	Body      *Block
	Scope     int
}

func NewCodeUnit(pos source.LineInfo, name Name, isUnit bool) *CodeUnit {
	return &CodeUnit{nodeImpl: newNodeImpl(NodeCodeUnit, pos), Name: name, IsUnit: isUnit}
}
