package operators

import (
	"math"
	"strings"

	"pascal/interpreter-go/pkg/diag"
	"pascal/interpreter-go/pkg/runtime"
	"pascal/interpreter-go/pkg/source"
	"pascal/interpreter-go/pkg/types"
)

// Evaluate runs the value phase of op and narrows integer results to the
// width of result. Constant folding and runtime evaluation both go through
// here so they cannot disagree.
func Evaluate(op Op, c Class, result types.DeclaredType, a, b runtime.Value, pos source.LineInfo) (runtime.Value, error) {
	if op == OpShr && c == ClassInteger {
		// shr is a logical shift at the operand's width
		if x, ok := a.(runtime.IntegerValue); ok {
			if w, ok := types.Underlying(result).(*types.Basic); ok {
				a = runtime.IntegerValue{Val: w.Unsigned(x.Val)}
			}
		}
	}
	v, err := Operate(op, c, a, b, pos)
	if err != nil {
		return nil, err
	}
	return Narrow(v, result), nil
}

// EvaluateUnary is the unary counterpart of Evaluate.
func EvaluateUnary(op Op, c Class, result types.DeclaredType, v runtime.Value, pos source.LineInfo) (runtime.Value, error) {
	out, err := OperateUnary(op, c, v, pos)
	if err != nil {
		return nil, err
	}
	return Narrow(out, result), nil
}

// Narrow wraps integer values to the width of t.
func Narrow(v runtime.Value, t types.DeclaredType) runtime.Value {
	iv, ok := v.(runtime.IntegerValue)
	if !ok {
		return v
	}
	if b, ok := types.Underlying(t).(*types.Basic); ok {
		return runtime.IntegerValue{Val: b.Wrap(iv.Val)}
	}
	return v
}

// Operate is the value phase of a binary operator over unboxed operands of
// class c. A pairing the table does not implement is a defect and raises
// InternalInterpreterError.
func Operate(op Op, c Class, a, b runtime.Value, pos source.LineInfo) (runtime.Value, error) {
	if op.IsComparison() {
		cmp, ok := compare(c, a, b)
		if !ok {
			return nil, unknown(op, c, pos)
		}
		return runtime.BoolValue{Val: holds(op, cmp)}, nil
	}
	switch c {
	case ClassInteger:
		x, xok := a.(runtime.IntegerValue)
		y, yok := b.(runtime.IntegerValue)
		if !xok || !yok {
			return nil, unknown(op, c, pos)
		}
		return integerOp(op, x.Val, y.Val, pos)
	case ClassReal:
		x, xok := a.(runtime.RealValue)
		y, yok := b.(runtime.RealValue)
		if !xok || !yok {
			return nil, unknown(op, c, pos)
		}
		return realOp(op, x.Val, y.Val, pos)
	case ClassChar:
		x, xok := a.(runtime.CharValue)
		y, yok := b.(runtime.CharValue)
		if !xok || !yok {
			return nil, unknown(op, c, pos)
		}
		return charOp(op, x.Val, y.Val, pos)
	case ClassBoolean:
		x, xok := a.(runtime.BoolValue)
		y, yok := b.(runtime.BoolValue)
		if !xok || !yok {
			return nil, unknown(op, c, pos)
		}
		switch op {
		case OpAnd:
			return runtime.BoolValue{Val: x.Val && y.Val}, nil
		case OpOr:
			return runtime.BoolValue{Val: x.Val || y.Val}, nil
		case OpXor:
			return runtime.BoolValue{Val: x.Val != y.Val}, nil
		}
	case ClassString:
		x, xok := a.(runtime.StringValue)
		y, yok := b.(runtime.StringValue)
		if xok && yok && op == OpPlus {
			return runtime.StringValue{Val: x.Val + y.Val}, nil
		}
	}
	return nil, unknown(op, c, pos)
}

// OperateUnary is the value phase of a unary operator.
func OperateUnary(op Op, c Class, v runtime.Value, pos source.LineInfo) (runtime.Value, error) {
	switch val := v.(type) {
	case runtime.IntegerValue:
		if c != ClassInteger {
			break
		}
		switch op {
		case OpNegate:
			return runtime.IntegerValue{Val: -val.Val}, nil
		case OpIdentity:
			return val, nil
		case OpNot:
			return runtime.IntegerValue{Val: ^val.Val}, nil
		}
	case runtime.RealValue:
		if c != ClassReal {
			break
		}
		switch op {
		case OpNegate:
			return runtime.RealValue{Val: -val.Val}, nil
		case OpIdentity:
			return val, nil
		}
	case runtime.BoolValue:
		if c == ClassBoolean && op == OpNot {
			return runtime.BoolValue{Val: !val.Val}, nil
		}
	}
	return nil, unknown(op, c, pos)
}

func integerOp(op Op, x, y int64, pos source.LineInfo) (runtime.Value, error) {
	switch op {
	case OpPlus:
		return runtime.IntegerValue{Val: x + y}, nil
	case OpMinus:
		return runtime.IntegerValue{Val: x - y}, nil
	case OpMul:
		return runtime.IntegerValue{Val: x * y}, nil
	case OpDivide:
		if y == 0 {
			return nil, divisionByZero(pos)
		}
		return runtime.RealValue{Val: float64(x) / float64(y)}, nil
	case OpDiv:
		if y == 0 {
			return nil, divisionByZero(pos)
		}
		return runtime.IntegerValue{Val: x / y}, nil
	case OpMod:
		if y == 0 {
			return nil, divisionByZero(pos)
		}
		return runtime.IntegerValue{Val: x % y}, nil
	case OpAnd:
		return runtime.IntegerValue{Val: x & y}, nil
	case OpOr:
		return runtime.IntegerValue{Val: x | y}, nil
	case OpXor:
		return runtime.IntegerValue{Val: x ^ y}, nil
	case OpShl:
		return runtime.IntegerValue{Val: x << (uint64(y) & 63)}, nil
	case OpShr:
		return runtime.IntegerValue{Val: int64(uint64(x) >> (uint64(y) & 63))}, nil
	}
	return nil, unknown(op, ClassInteger, pos)
}

func realOp(op Op, x, y float64, pos source.LineInfo) (runtime.Value, error) {
	switch op {
	case OpPlus:
		return runtime.RealValue{Val: x + y}, nil
	case OpMinus:
		return runtime.RealValue{Val: x - y}, nil
	case OpMul:
		return runtime.RealValue{Val: x * y}, nil
	case OpDivide:
		if y == 0 {
			return nil, divisionByZero(pos)
		}
		return runtime.RealValue{Val: x / y}, nil
	}
	return nil, unknown(op, ClassReal, pos)
}

// charOp works on character codes; every arithmetic result is recombined
// into a character, only "/" leaves the character domain.
func charOp(op Op, x, y rune, pos source.LineInfo) (runtime.Value, error) {
	var code int64
	a, b := int64(x), int64(y)
	switch op {
	case OpPlus:
		code = a + b
	case OpMinus:
		code = a - b
	case OpMul:
		code = a * b
	case OpDivide:
		if b == 0 {
			return nil, divisionByZero(pos)
		}
		return runtime.RealValue{Val: float64(a) / float64(b)}, nil
	case OpDiv:
		if b == 0 {
			return nil, divisionByZero(pos)
		}
		code = a / b
	case OpMod:
		if b == 0 {
			return nil, divisionByZero(pos)
		}
		code = a % b
	case OpAnd:
		code = a & b
	case OpOr:
		code = a | b
	case OpXor:
		code = a ^ b
	default:
		return nil, unknown(op, ClassChar, pos)
	}
	return runtime.CharValue{Val: rune(uint16(code))}, nil
}

// compare orders two operands of class c: -1, 0 or 1.
func compare(c Class, a, b runtime.Value) (int, bool) {
	switch c {
	case ClassInteger, ClassChar, ClassBoolean, ClassEnum:
		x, xok := runtime.Ordinal(a)
		y, yok := runtime.Ordinal(b)
		if !xok || !yok {
			return 0, false
		}
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		}
		return 0, true
	case ClassReal:
		x, xok := a.(runtime.RealValue)
		y, yok := b.(runtime.RealValue)
		if !xok || !yok {
			return 0, false
		}
		switch {
		case x.Val < y.Val:
			return -1, true
		case x.Val > y.Val:
			return 1, true
		case math.IsNaN(x.Val) || math.IsNaN(y.Val):
			return 2, true
		}
		return 0, true
	case ClassString:
		x, xok := a.(runtime.StringValue)
		y, yok := b.(runtime.StringValue)
		if !xok || !yok {
			return 0, false
		}
		return strings.Compare(x.Val, y.Val), true
	}
	return 0, false
}

func holds(op Op, cmp int) bool {
	if cmp == 2 {
		// NaN is unordered: only "<>" holds.
		return op == OpNotEqual
	}
	switch op {
	case OpEqual:
		return cmp == 0
	case OpNotEqual:
		return cmp != 0
	case OpLess:
		return cmp < 0
	case OpLessEq:
		return cmp <= 0
	case OpGreater:
		return cmp > 0
	case OpGreaterEq:
		return cmp >= 0
	}
	return false
}

func divisionByZero(pos source.LineInfo) error {
	return diag.NewArithmetic(pos, "division by zero")
}

func unknown(op Op, c Class, pos source.LineInfo) error {
	return diag.NewInternal(pos, "operator %q is not implemented for %s operands", op.String(), c.String())
}
