package operators

import (
	"pascal/interpreter-go/pkg/types"
)

// Op identifies a binary or unary operator.
type Op int

const (
	OpInvalid Op = iota
	OpPlus
	OpMinus
	OpMul
	OpDivide
	OpDiv
	OpMod
	OpAnd
	OpOr
	OpXor
	OpShl
	OpShr
	OpEqual
	OpNotEqual
	OpLess
	OpLessEq
	OpGreater
	OpGreaterEq
	OpNot
	OpNegate
	OpIdentity
)

var opNames = map[Op]string{
	OpPlus:      "+",
	OpMinus:     "-",
	OpMul:       "*",
	OpDivide:    "/",
	OpDiv:       "div",
	OpMod:       "mod",
	OpAnd:       "and",
	OpOr:        "or",
	OpXor:       "xor",
	OpShl:       "shl",
	OpShr:       "shr",
	OpEqual:     "=",
	OpNotEqual:  "<>",
	OpLess:      "<",
	OpLessEq:    "<=",
	OpGreater:   ">",
	OpGreaterEq: ">=",
	OpNot:       "not",
	OpNegate:    "-",
	OpIdentity:  "+",
}

func (op Op) String() string {
	if name, ok := opNames[op]; ok {
		return name
	}
	return "<invalid>"
}

// IsComparison reports whether op always yields a boolean.
func (op Op) IsComparison() bool {
	switch op {
	case OpEqual, OpNotEqual, OpLess, OpLessEq, OpGreater, OpGreaterEq:
		return true
	default:
		return false
	}
}

// Class is the operand category an operator specializes on.
type Class int

const (
	ClassInvalid Class = iota
	ClassInteger
	ClassReal
	ClassChar
	ClassBoolean
	ClassString
	ClassEnum
)

func (c Class) String() string {
	switch c {
	case ClassInteger:
		return "integer"
	case ClassReal:
		return "real"
	case ClassChar:
		return "char"
	case ClassBoolean:
		return "boolean"
	case ClassString:
		return "string"
	case ClassEnum:
		return "enum"
	default:
		return "invalid"
	}
}

// ClassOf maps a declared type onto its operator class.
func ClassOf(t types.DeclaredType) (Class, bool) {
	if t == nil {
		return ClassInvalid, false
	}
	switch types.Underlying(t).StorageClass() {
	case types.ClassInteger:
		return ClassInteger, true
	case types.ClassReal:
		return ClassReal, true
	case types.ClassChar:
		return ClassChar, true
	case types.ClassBoolean:
		return ClassBoolean, true
	case types.ClassString:
		return ClassString, true
	case types.ClassEnum:
		return ClassEnum, true
	default:
		return ClassInvalid, false
	}
}

type key struct {
	op    Op
	class Class
}

// resultRule derives the result type from the common operand type.
type resultRule func(operand types.DeclaredType) types.DeclaredType

func sameAs(operand types.DeclaredType) types.DeclaredType { return types.Underlying(operand) }
func boolResult(types.DeclaredType) types.DeclaredType     { return types.Boolean }
func realResult(types.DeclaredType) types.DeclaredType     { return types.Real }
func charResult(types.DeclaredType) types.DeclaredType     { return types.Char }

// widened promotes narrow integer kinds to Integer, as arithmetic is never
// carried out below the native word.
func widened(operand types.DeclaredType) types.DeclaredType {
	if types.Precedence(operand) < types.Precedence(types.Integer) {
		return types.Integer
	}
	return types.Underlying(operand)
}

var binaryRules = map[key]resultRule{}
var unaryRules = map[key]resultRule{}

func init() {
	comparisons := []Op{OpEqual, OpNotEqual, OpLess, OpLessEq, OpGreater, OpGreaterEq}
	for _, c := range []Class{ClassInteger, ClassReal, ClassChar, ClassBoolean, ClassString, ClassEnum} {
		for _, op := range comparisons {
			binaryRules[key{op, c}] = boolResult
		}
	}
	for _, op := range []Op{OpPlus, OpMinus, OpMul, OpDiv, OpMod, OpAnd, OpOr, OpXor, OpShl, OpShr} {
		binaryRules[key{op, ClassInteger}] = widened
	}
	binaryRules[key{OpDivide, ClassInteger}] = realResult

	for _, op := range []Op{OpPlus, OpMinus, OpMul} {
		binaryRules[key{op, ClassReal}] = realResult
	}
	binaryRules[key{OpDivide, ClassReal}] = realResult

	for _, op := range []Op{OpPlus, OpMinus, OpMul, OpDiv, OpMod, OpAnd, OpOr, OpXor} {
		binaryRules[key{op, ClassChar}] = charResult
	}
	binaryRules[key{OpDivide, ClassChar}] = realResult

	for _, op := range []Op{OpAnd, OpOr, OpXor} {
		binaryRules[key{op, ClassBoolean}] = boolResult
	}

	binaryRules[key{OpPlus, ClassString}] = sameAs

	unaryRules[key{OpNot, ClassInteger}] = widened
	unaryRules[key{OpNegate, ClassInteger}] = widened
	unaryRules[key{OpIdentity, ClassInteger}] = widened
	unaryRules[key{OpNegate, ClassReal}] = realResult
	unaryRules[key{OpIdentity, ClassReal}] = realResult
	unaryRules[key{OpNot, ClassBoolean}] = boolResult
}

// ResultType is the type phase of a binary operator: given the common type
// both operands were converted to, it reports the result type and the
// operand class without evaluating anything.
func ResultType(op Op, operand types.DeclaredType) (types.DeclaredType, Class, bool) {
	c, ok := ClassOf(operand)
	if !ok {
		return nil, ClassInvalid, false
	}
	rule, ok := binaryRules[key{op, c}]
	if !ok {
		return nil, c, false
	}
	return rule(operand), c, true
}

// UnaryResultType is the type phase of a unary operator.
func UnaryResultType(op Op, operand types.DeclaredType) (types.DeclaredType, Class, bool) {
	c, ok := ClassOf(operand)
	if !ok {
		return nil, ClassInvalid, false
	}
	rule, ok := unaryRules[key{op, c}]
	if !ok {
		return nil, c, false
	}
	return rule(operand), c, true
}
