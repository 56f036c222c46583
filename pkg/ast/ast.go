package ast

import (
	"pascal/interpreter-go/pkg/operators"
	"pascal/interpreter-go/pkg/runtime"
	"pascal/interpreter-go/pkg/source"
	"pascal/interpreter-go/pkg/types"
)

type NodeType string

const (
	NodeConstant       NodeType = "Constant"
	NodeVariableAccess NodeType = "VariableAccess"
	NodeIndexAccess    NodeType = "IndexAccess"
	NodeFieldAccess    NodeType = "FieldAccess"
	NodeBinary         NodeType = "BinaryExpression"
	NodeUnary          NodeType = "UnaryExpression"
	NodeConversion     NodeType = "Conversion"
	NodeCall           NodeType = "FunctionCall"
	NodeFormatted      NodeType = "FormattedArgument"

	NodeAssign         NodeType = "Assignment"
	NodeCompoundAssign NodeType = "CompoundAssignment"
	NodeBlock          NodeType = "Block"
	NodeIf             NodeType = "IfStatement"
	NodeWhile          NodeType = "WhileLoop"
	NodeRepeat         NodeType = "RepeatLoop"
	NodeFor            NodeType = "ForLoop"
	NodeCase           NodeType = "CaseStatement"
	NodeBreak          NodeType = "BreakStatement"
	NodeContinue       NodeType = "ContinueStatement"
	NodeExit           NodeType = "ExitStatement"
	NodeCallStatement  NodeType = "CallStatement"

	NodeVarDecl      NodeType = "VariableDeclaration"
	NodeConstDecl    NodeType = "ConstantDeclaration"
	NodeTypeDecl     NodeType = "TypeDeclaration"
	NodeFunctionDecl NodeType = "FunctionDeclaration"
	NodeCodeUnit     NodeType = "CodeUnit"
)

type Node interface {
	NodeType() NodeType
	Position() source.LineInfo
	isNode()
}

type nodeImpl struct {
	Type NodeType
	Pos  source.LineInfo
}

func newNodeImpl(kind NodeType, pos source.LineInfo) nodeImpl {
	return nodeImpl{Type: kind, Pos: pos}
}

func (n nodeImpl) NodeType() NodeType        { return n.Type }
func (n nodeImpl) Position() source.LineInfo { return n.Pos }
func (nodeImpl) isNode()                     {}

// Marker interfaces.

// Expression is a RuntimeValue: it knows its static type without consulting
// any context.
type Expression interface {
	Node
	StaticType() types.DeclaredType
	expressionNode()
}

type typed struct {
	T types.DeclaredType
}

func (t typed) StaticType() types.DeclaredType { return t.T }
func (typed) expressionNode()                  {}

// Assignable is an expression that also resolves to a storage Reference.
type Assignable interface {
	Expression
	assignableNode()
}

type assignableMarker struct{}

func (assignableMarker) assignableNode() {}

type Statement interface {
	Node
	statementNode()
}

type statementMarker struct{}

func (statementMarker) statementNode() {}

//-----------------------------------------------------------------------------
// Expressions
//-----------------------------------------------------------------------------

// Constant is a literal or a folded constant expression.
type Constant struct {
	nodeImpl
	typed

	Value runtime.Value
}

func NewConstant(pos source.LineInfo, t types.DeclaredType, value runtime.Value) *Constant {
	return &Constant{nodeImpl: newNodeImpl(NodeConstant, pos), typed: typed{t}, Value: value}
}

// VariableAccess reads a declared variable through its storage key.
type VariableAccess struct {
	nodeImpl
	typed
	assignableMarker

	Decl *VarDecl
}

func NewVariableAccess(pos source.LineInfo, decl *VarDecl) *VariableAccess {
	return &VariableAccess{nodeImpl: newNodeImpl(NodeVariableAccess, pos), typed: typed{decl.T}, Decl: decl}
}

// IndexAccess reads one element of an array or one character of a string.
type IndexAccess struct {
	nodeImpl
	typed
	assignableMarker

	Target Expression
	Index  Expression
}

func NewIndexAccess(pos source.LineInfo, elem types.DeclaredType, target, index Expression) *IndexAccess {
	return &IndexAccess{nodeImpl: newNodeImpl(NodeIndexAccess, pos), typed: typed{elem}, Target: target, Index: index}
}

// FieldAccess reads one field of a record.
type FieldAccess struct {
	nodeImpl
	typed
	assignableMarker

	Target Expression
	Field  Name
	Index  int
}

func NewFieldAccess(pos source.LineInfo, fieldType types.DeclaredType, target Expression, field Name, index int) *FieldAccess {
	return &FieldAccess{nodeImpl: newNodeImpl(NodeFieldAccess, pos), typed: typed{fieldType}, Target: target, Field: field, Index: index}
}

// Binary applies an operator to two operands already converted to a
// common type of class Class.
type Binary struct {
	nodeImpl
	typed

	Op    operators.Op
	Class operators.Class
	Left  Expression
	Right Expression
}

func NewBinary(pos source.LineInfo, result types.DeclaredType, op operators.Op, class operators.Class, left, right Expression) *Binary {
	return &Binary{nodeImpl: newNodeImpl(NodeBinary, pos), typed: typed{result}, Op: op, Class: class, Left: left, Right: right}
}

type Unary struct {
	nodeImpl
	typed

	Op      operators.Op
	Class   operators.Class
	Operand Expression
}

func NewUnary(pos source.LineInfo, result types.DeclaredType, op operators.Op, class operators.Class, operand Expression) *Unary {
	return &Unary{nodeImpl: newNodeImpl(NodeUnary, pos), typed: typed{result}, Op: op, Class: class, Operand: operand}
}

// Conversion materializes an implicit or explicit type conversion.
type Conversion struct {
	nodeImpl
	typed

	Operand  Expression
	Convert  types.Converter
	Explicit bool
}

func NewConversion(pos source.LineInfo, to types.DeclaredType, operand Expression, convert types.Converter, explicit bool) *Conversion {
	return &Conversion{nodeImpl: newNodeImpl(NodeConversion, pos), typed: typed{to}, Operand: operand, Convert: convert, Explicit: explicit}
}

// Call invokes a user routine or a builtin. Arguments bound to by-reference
// parameters are Assignable. Procedure calls have a nil static type.
type Call struct {
	nodeImpl
	typed

	Callee Callable
	Args   []Expression
}

func NewCall(pos source.LineInfo, callee Callable, args []Expression, result types.DeclaredType) *Call {
	return &Call{nodeImpl: newNodeImpl(NodeCall, pos), typed: typed{result}, Callee: callee, Args: args}
}

// Formatted is a write argument with a field width and optional decimals,
// as in write(x:8:2). It evaluates to the padded string.
type Formatted struct {
	nodeImpl
	typed

	Value     Expression
	Width     Expression
	Precision Expression
}

func NewFormatted(pos source.LineInfo, value, width, precision Expression) *Formatted {
	return &Formatted{nodeImpl: newNodeImpl(NodeFormatted, pos), typed: typed{types.String}, Value: value, Width: width, Precision: precision}
}

//-----------------------------------------------------------------------------
// Statements
//-----------------------------------------------------------------------------

type Assign struct {
	nodeImpl
	statementMarker

	Target Assignable
	Value  Expression
}

func NewAssign(pos source.LineInfo, target Assignable, value Expression) *Assign {
	return &Assign{nodeImpl: newNodeImpl(NodeAssign, pos), Target: target, Value: value}
}

// CompoundAssign is x op= y, modeled as x := x op y with the operator
// expression already built against the target.
type CompoundAssign struct {
	nodeImpl
	statementMarker

	Target Assignable
	Op     operators.Op
	Value  Expression
}

func NewCompoundAssign(pos source.LineInfo, target Assignable, op operators.Op, value Expression) *CompoundAssign {
	return &CompoundAssign{nodeImpl: newNodeImpl(NodeCompoundAssign, pos), Target: target, Op: op, Value: value}
}

// Block is begin..end. Blocks declaring inline variables get their own
// runtime activation.
type Block struct {
	nodeImpl
	statementMarker

	Vars  []*VarDecl
	Body  []Statement
	Scope int
}

func NewBlock(pos source.LineInfo, vars []*VarDecl, body []Statement, scope int) *Block {
	return &Block{nodeImpl: newNodeImpl(NodeBlock, pos), Vars: vars, Body: body, Scope: scope}
}

type If struct {
	nodeImpl
	statementMarker

	Cond Expression
	Then Statement
	Else Statement
}

func NewIf(pos source.LineInfo, cond Expression, then, els Statement) *If {
	return &If{nodeImpl: newNodeImpl(NodeIf, pos), Cond: cond, Then: then, Else: els}
}

type While struct {
	nodeImpl
	statementMarker

	Cond Expression
	Body Statement
}

func NewWhile(pos source.LineInfo, cond Expression, body Statement) *While {
	return &While{nodeImpl: newNodeImpl(NodeWhile, pos), Cond: cond, Body: body}
}

type Repeat struct {
	nodeImpl
	statementMarker

	Body []Statement
	Cond Expression
}

func NewRepeat(pos source.LineInfo, body []Statement, cond Expression) *Repeat {
	return &Repeat{nodeImpl: newNodeImpl(NodeRepeat, pos), Body: body, Cond: cond}
}

// For is for v := Start to|downto Stop do Body. Start and Stop are
// converted to the control variable's type.
type For struct {
	nodeImpl
	statementMarker

	Var   Assignable
	Start Expression
	Stop  Expression
	Down  bool
	Body  Statement
}

func NewFor(pos source.LineInfo, v Assignable, start, stop Expression, down bool, body Statement) *For {
	return &For{nodeImpl: newNodeImpl(NodeFor, pos), Var: v, Start: start, Stop: stop, Down: down, Body: body}
}

// CaseLabel matches ordinals Low..High (Low == High for single values).
type CaseLabel struct {
	Low  int64
	High int64
}

type CaseBranch struct {
	Labels []CaseLabel
	Body   Statement
}

type Case struct {
	nodeImpl
	statementMarker

	Selector Expression
	Branches []CaseBranch
	Else     []Statement
}

func NewCase(pos source.LineInfo, selector Expression, branches []CaseBranch, els []Statement) *Case {
	return &Case{nodeImpl: newNodeImpl(NodeCase, pos), Selector: selector, Branches: branches, Else: els}
}

type Break struct {
	nodeImpl
	statementMarker
}

func NewBreak(pos source.LineInfo) *Break {
	return &Break{nodeImpl: newNodeImpl(NodeBreak, pos)}
}

type Continue struct {
	nodeImpl
	statementMarker
}

func NewContinue(pos source.LineInfo) *Continue {
	return &Continue{nodeImpl: newNodeImpl(NodeContinue, pos)}
}

// Exit leaves the enclosing routine. Value, when present, is assigned to
// Result first.
type Exit struct {
	nodeImpl
	statementMarker

	Value  Expression
	Result *VarDecl
}

func NewExit(pos source.LineInfo, value Expression, result *VarDecl) *Exit {
	return &Exit{nodeImpl: newNodeImpl(NodeExit, pos), Value: value, Result: result}
}

type CallStatement struct {
	nodeImpl
	statementMarker

	Call *Call
}

func NewCallStatement(call *Call) *CallStatement {
	return &CallStatement{nodeImpl: newNodeImpl(NodeCallStatement, call.Pos), Call: call}
}
