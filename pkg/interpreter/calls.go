package interpreter

import (
	"errors"

	"pascal/interpreter-go/pkg/ast"
	"pascal/interpreter-go/pkg/builtins"
	"pascal/interpreter-go/pkg/diag"
	"pascal/interpreter-go/pkg/runtime"
	"pascal/interpreter-go/pkg/types"
)

func (p *Program) evaluateCall(call *ast.Call, ctx *runtime.VariableContext) (runtime.Value, error) {
	switch fn := call.Callee.(type) {
	case *ast.FunctionDecl:
		return p.callRoutine(call, fn, ctx)
	case *builtins.Function:
		return p.callBuiltin(call, fn, ctx)
	default:
		return nil, diag.NewInternal(call.Pos, "cannot call %T", call.Callee)
	}
}

// bindArguments evaluates call arguments: by-reference parameters get the
// argument's storage, by-value parameters a copy of its value.
func (p *Program) bindArguments(call *ast.Call, params []ast.Parameter, variadic bool, ctx *runtime.VariableContext) ([]runtime.Value, []runtime.Reference, error) {
	values := make([]runtime.Value, len(call.Args))
	refs := make([]runtime.Reference, len(call.Args))
	for i, arg := range call.Args {
		if len(params) == 0 || (!variadic && i >= len(params)) {
			return nil, nil, diag.NewInternal(call.Pos, "too many arguments for %s", call.Callee.CallableName())
		}
		param := params[min(i, len(params)-1)]
		if param.ByRef {
			target, ok := arg.(ast.Assignable)
			if !ok {
				return nil, nil, diag.NewInternal(arg.Position(), "argument %d of %s is not assignable", i+1, call.Callee.CallableName())
			}
			ref, err := p.reference(target, ctx)
			if err != nil {
				return nil, nil, err
			}
			refs[i] = ref
			values[i] = ref.Get()
			continue
		}
		v, err := p.evaluate(arg, ctx)
		if err != nil {
			return nil, nil, err
		}
		values[i] = runtime.Copy(v)
	}
	return values, refs, nil
}

// callRoutine runs a user procedure or function in a fresh activation
// whose static link is the activation of the routine's enclosing frame.
func (p *Program) callRoutine(call *ast.Call, fn *ast.FunctionDecl, ctx *runtime.VariableContext) (runtime.Value, error) {
	if fn.Body == nil {
		return nil, diag.NewInternal(call.Pos, "routine %s has no body", fn.Name.Spelling)
	}
	values, refs, err := p.bindArguments(call, fn.Parameters(), false, ctx)
	if err != nil {
		return nil, err
	}
	if p.stack.depth() >= p.interp.opts.MaxStackDepth {
		return nil, p.annotate(diag.NewRuntime(diag.KindStackOverflow, call.Pos, "stack overflow calling %s (depth %d)", fn.Name.Spelling, p.stack.depth()))
	}

	link := ctx.FindFrame(fn.Enclosing)
	if link == nil {
		link = p.global
	}
	activation := runtime.NewVariableContext(link, fn.Scope, fn.Name.Spelling)
	for i, param := range fn.Params {
		if param.ByRef {
			activation.Define(param.Key, param.Name.Spelling, refs[i])
		} else {
			activation.Define(param.Key, param.Name.Spelling, runtime.NewBox(values[i]))
		}
	}
	var result runtime.Reference
	if fn.ResultVar != nil {
		result = runtime.NewBox(fn.Result.Initialize())
		activation.Define(fn.ResultVar.Key, fn.ResultVar.Name.Spelling, result)
	}
	if err := p.declareAll(activation, fn.Locals); err != nil {
		return nil, err
	}

	p.stack.push(fn.Name.Spelling, activation, fn.Pos)
	stepOver := p.mode == DebugStepOver
	if stepOver {
		p.muted++
	}
	_, err = p.executeBlock(fn.Body, activation)
	if stepOver {
		p.muted--
	}
	if err != nil {
		err = p.annotate(err)
	}
	p.stack.pop()
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}
	return result.Get(), nil
}

func (p *Program) callBuiltin(call *ast.Call, fn *builtins.Function, ctx *runtime.VariableContext) (runtime.Value, error) {
	values, refs, err := p.bindArguments(call, fn.Params, fn.Variadic, ctx)
	if err != nil {
		return nil, err
	}
	argTypes := make([]types.DeclaredType, len(call.Args))
	for i, arg := range call.Args {
		argTypes[i] = arg.StaticType()
	}
	v, err := fn.Invoke(&builtins.Call{
		Pos:      call.Pos,
		Args:     values,
		Refs:     refs,
		ArgTypes: argTypes,
		Env:      p.env,
	})
	if err != nil {
		return nil, builtinError(call, err)
	}
	for _, ref := range refs {
		if ref != nil {
			p.variableChanged()
			break
		}
	}
	return v, nil
}

// builtinError keeps diagnostics as they are and wraps anything else the
// host raised so it carries the call's position.
func builtinError(call *ast.Call, err error) error {
	var rv *types.RangeViolation
	if errors.As(err, &rv) {
		return diag.NewRuntime(diag.KindRangeCheck, call.Pos, "%v", rv)
	}
	var d diag.Diagnostic
	if errors.As(err, &d) {
		return err
	}
	return &diag.UnhandledError{Pos: call.Pos, Cause: err}
}
