package interpreter

import (
	"errors"

	"pascal/interpreter-go/pkg/ast"
	"pascal/interpreter-go/pkg/builtins"
	"pascal/interpreter-go/pkg/diag"
	"pascal/interpreter-go/pkg/operators"
	"pascal/interpreter-go/pkg/runtime"
	"pascal/interpreter-go/pkg/types"
)

func (p *Program) evaluate(expr ast.Expression, ctx *runtime.VariableContext) (runtime.Value, error) {
	switch n := expr.(type) {
	case *ast.Constant:
		return runtime.Copy(n.Value), nil
	case *ast.VariableAccess, *ast.IndexAccess, *ast.FieldAccess:
		ref, err := p.reference(n.(ast.Assignable), ctx)
		if err != nil {
			return nil, err
		}
		return ref.Get(), nil
	case *ast.Binary:
		return p.evaluateBinary(n, ctx)
	case *ast.Unary:
		v, err := p.evaluate(n.Operand, ctx)
		if err != nil {
			return nil, err
		}
		return operators.EvaluateUnary(n.Op, n.Class, n.StaticType(), v, n.Pos)
	case *ast.Conversion:
		return p.evaluateConversion(n, ctx)
	case *ast.Call:
		v, err := p.evaluateCall(n, ctx)
		if err != nil {
			return nil, err
		}
		if v == nil {
			return nil, diag.NewInternal(n.Pos, "%s returned no value", n.Callee.CallableName())
		}
		return v, nil
	case *ast.Formatted:
		return p.evaluateFormatted(n, ctx)
	default:
		return nil, diag.NewInternal(expr.Position(), "unsupported expression %s", expr.NodeType())
	}
}

// evaluateBinary short-circuits boolean and/or; every other operator
// evaluates both sides first.
func (p *Program) evaluateBinary(n *ast.Binary, ctx *runtime.VariableContext) (runtime.Value, error) {
	left, err := p.evaluate(n.Left, ctx)
	if err != nil {
		return nil, err
	}
	if n.Class == operators.ClassBoolean && (n.Op == operators.OpAnd || n.Op == operators.OpOr) {
		if b, ok := left.(runtime.BoolValue); ok && b.Val == (n.Op == operators.OpOr) {
			return b, nil
		}
	}
	right, err := p.evaluate(n.Right, ctx)
	if err != nil {
		return nil, err
	}
	return operators.Evaluate(n.Op, n.Class, n.StaticType(), left, right, n.Pos)
}

func (p *Program) evaluateConversion(n *ast.Conversion, ctx *runtime.VariableContext) (runtime.Value, error) {
	v, err := p.evaluate(n.Operand, ctx)
	if err != nil {
		return nil, err
	}
	out, err := n.Convert(v)
	if err != nil {
		return nil, conversionError(n, err)
	}
	return out, nil
}

func conversionError(n *ast.Conversion, err error) error {
	var rv *types.RangeViolation
	if errors.As(err, &rv) {
		return diag.NewRuntime(diag.KindRangeCheck, n.Pos, "%v", rv)
	}
	var d diag.Diagnostic
	if errors.As(err, &d) {
		return err
	}
	return diag.NewRuntime(diag.KindConversion, n.Pos, "cannot convert to %s: %v", n.StaticType().Name(), err)
}

func (p *Program) evaluateFormatted(n *ast.Formatted, ctx *runtime.VariableContext) (runtime.Value, error) {
	v, err := p.evaluate(n.Value, ctx)
	if err != nil {
		return nil, err
	}
	width, err := p.ordinal(n.Width, ctx)
	if err != nil {
		return nil, err
	}
	precision, hasPrecision := int64(0), n.Precision != nil
	if hasPrecision {
		if precision, err = p.ordinal(n.Precision, ctx); err != nil {
			return nil, err
		}
	}
	return runtime.StringValue{Val: builtins.FormatField(v, int(width), int(precision), hasPrecision)}, nil
}

// reference resolves an assignable expression to its storage.
func (p *Program) reference(target ast.Assignable, ctx *runtime.VariableContext) (runtime.Reference, error) {
	switch n := target.(type) {
	case *ast.VariableAccess:
		ref, err := ctx.Lookup(n.Decl.Key)
		if err != nil {
			return nil, diag.NewInternal(n.Pos, "%v", err)
		}
		return ref, nil
	case *ast.IndexAccess:
		return p.indexReference(n, ctx)
	case *ast.FieldAccess:
		holder, err := p.container(n.Target, ctx)
		if err != nil {
			return nil, err
		}
		rec, ok := holder.Get().(*runtime.RecordValue)
		if !ok {
			return nil, diag.NewInternal(n.Pos, "field access on %s", holder.Get().Kind())
		}
		return runtime.FieldRef{Record: rec, Index: n.Index}, nil
	default:
		return nil, diag.NewInternal(target.Position(), "%s is not assignable", target.NodeType())
	}
}

// container resolves the value an index or field selector applies to.
// Non-assignable targets such as call results are boxed so the selector
// can still read them.
func (p *Program) container(target ast.Expression, ctx *runtime.VariableContext) (runtime.Reference, error) {
	if a, ok := target.(ast.Assignable); ok {
		return p.reference(a, ctx)
	}
	v, err := p.evaluate(target, ctx)
	if err != nil {
		return nil, err
	}
	return runtime.NewBox(v), nil
}

func (p *Program) indexReference(n *ast.IndexAccess, ctx *runtime.VariableContext) (runtime.Reference, error) {
	holder, err := p.container(n.Target, ctx)
	if err != nil {
		return nil, err
	}
	idx, err := p.ordinal(n.Index, ctx)
	if err != nil {
		return nil, err
	}
	switch v := holder.Get().(type) {
	case *runtime.ArrayValue:
		offset := idx - v.Low
		if offset < 0 || offset >= int64(len(v.Elements)) {
			high := v.Low + int64(len(v.Elements)) - 1
			return nil, diag.NewRuntime(diag.KindIndexOutOfBounds, n.Pos, "index %d out of bounds %d..%d", idx, v.Low, high)
		}
		return runtime.ElementRef{Array: v, Index: int(offset)}, nil
	case runtime.StringValue:
		length := int64(len([]rune(v.Val)))
		if idx < 1 || idx > length {
			return nil, diag.NewRuntime(diag.KindIndexOutOfBounds, n.Pos, "string index %d out of bounds 1..%d", idx, length)
		}
		return runtime.CharRef{Target: holder, Index: int(idx - 1)}, nil
	default:
		return nil, diag.NewInternal(n.Pos, "cannot index a %s value", v.Kind())
	}
}
