package interpreter

import (
	"pascal/interpreter-go/pkg/ast"
	"pascal/interpreter-go/pkg/diag"
	"pascal/interpreter-go/pkg/runtime"
	"pascal/interpreter-go/pkg/types"
)

// Signal tells the enclosing construct how a statement finished.
type Signal int

const (
	SignalNormal Signal = iota
	SignalBreak
	SignalContinue
	SignalExit
)

// ExecutionResult is the outcome of executing one statement. Loops consume
// break and continue; routine calls consume exit.
type ExecutionResult struct {
	Signal Signal
	Value  runtime.Value
}

var normal = ExecutionResult{}

func (p *Program) executeStatement(node ast.Statement, ctx *runtime.VariableContext) (ExecutionResult, error) {
	if node == nil {
		return normal, nil
	}
	if err := p.enter(node); err != nil {
		return normal, err
	}
	switch n := node.(type) {
	case *ast.Block:
		return p.executeBlock(n, ctx)
	case *ast.Assign:
		return normal, p.executeAssign(n.Target, n.Value, ctx)
	case *ast.CompoundAssign:
		return normal, p.executeAssign(n.Target, n.Value, ctx)
	case *ast.CallStatement:
		_, err := p.evaluateCall(n.Call, ctx)
		return normal, err
	case *ast.If:
		return p.executeIf(n, ctx)
	case *ast.While:
		return p.executeWhile(n, ctx)
	case *ast.Repeat:
		return p.executeRepeat(n, ctx)
	case *ast.For:
		return p.executeFor(n, ctx)
	case *ast.Case:
		return p.executeCase(n, ctx)
	case *ast.Break:
		return ExecutionResult{Signal: SignalBreak}, nil
	case *ast.Continue:
		return ExecutionResult{Signal: SignalContinue}, nil
	case *ast.Exit:
		return p.executeExit(n, ctx)
	default:
		return normal, diag.NewInternal(node.Position(), "unsupported statement %s", node.NodeType())
	}
}

// executeBlock runs statements in order and stops at the first non-normal
// signal. Inline variables get a child activation that lives until the
// block ends.
func (p *Program) executeBlock(block *ast.Block, ctx *runtime.VariableContext) (ExecutionResult, error) {
	if block == nil {
		return normal, nil
	}
	if len(block.Vars) > 0 {
		ctx = ctx.Extend()
		if err := p.declareAll(ctx, block.Vars); err != nil {
			return normal, err
		}
		top := p.stack.top()
		saved := top.ctx
		top.ctx = ctx
		defer func() { top.ctx = saved }()
	}
	return p.executeList(block.Body, ctx)
}

func (p *Program) executeList(stmts []ast.Statement, ctx *runtime.VariableContext) (ExecutionResult, error) {
	for _, stmt := range stmts {
		res, err := p.executeStatement(stmt, ctx)
		if err != nil || res.Signal != SignalNormal {
			return res, err
		}
	}
	return normal, nil
}

// declareAll allocates storage for decls in ctx, running initializers.
func (p *Program) declareAll(ctx *runtime.VariableContext, decls []*ast.VarDecl) error {
	for _, decl := range decls {
		var value runtime.Value
		if decl.Init != nil {
			v, err := p.evaluate(decl.Init, ctx)
			if err != nil {
				return err
			}
			value = runtime.Copy(v)
		} else {
			value = decl.T.Initialize()
		}
		ctx.Define(decl.Key, decl.Name.Spelling, runtime.NewBox(value))
	}
	return nil
}

func (p *Program) executeAssign(target ast.Assignable, value ast.Expression, ctx *runtime.VariableContext) error {
	v, err := p.evaluate(value, ctx)
	if err != nil {
		return err
	}
	ref, err := p.reference(target, ctx)
	if err != nil {
		return err
	}
	ref.Set(runtime.Copy(v))
	p.variableChanged()
	return nil
}

func (p *Program) truth(cond ast.Expression, ctx *runtime.VariableContext) (bool, error) {
	v, err := p.evaluate(cond, ctx)
	if err != nil {
		return false, err
	}
	b, ok := v.(runtime.BoolValue)
	if !ok {
		return false, diag.NewInternal(cond.Position(), "condition evaluated to %s", v.Kind())
	}
	return b.Val, nil
}

func (p *Program) executeIf(n *ast.If, ctx *runtime.VariableContext) (ExecutionResult, error) {
	ok, err := p.truth(n.Cond, ctx)
	if err != nil {
		return normal, err
	}
	if ok {
		return p.executeStatement(n.Then, ctx)
	}
	return p.executeStatement(n.Else, ctx)
}

// loopSignal folds a body result into the loop: stop reports whether the
// loop must end, and the returned result is what the loop itself yields.
func loopSignal(res ExecutionResult) (stop bool, out ExecutionResult) {
	switch res.Signal {
	case SignalBreak:
		return true, normal
	case SignalExit:
		return true, res
	}
	return false, normal
}

func (p *Program) executeWhile(n *ast.While, ctx *runtime.VariableContext) (ExecutionResult, error) {
	for {
		ok, err := p.truth(n.Cond, ctx)
		if err != nil || !ok {
			return normal, err
		}
		res, err := p.executeStatement(n.Body, ctx)
		if err != nil {
			return normal, err
		}
		if stop, out := loopSignal(res); stop {
			return out, nil
		}
		if p.cancelled.IsSet() {
			return normal, &diag.ScriptTerminated{Pos: n.Pos}
		}
	}
}

func (p *Program) executeRepeat(n *ast.Repeat, ctx *runtime.VariableContext) (ExecutionResult, error) {
	for {
		res, err := p.executeList(n.Body, ctx)
		if err != nil {
			return normal, err
		}
		if stop, out := loopSignal(res); stop {
			return out, nil
		}
		done, err := p.truth(n.Cond, ctx)
		if err != nil || done {
			return normal, err
		}
		if p.cancelled.IsSet() {
			return normal, &diag.ScriptTerminated{Pos: n.Pos}
		}
	}
}

// executeFor writes the control variable through its reference on every
// pass and re-reads it after the body, so the body observes and may
// change the same storage. The bound is re-evaluated each pass. On normal
// completion the variable keeps the last value it was given.
func (p *Program) executeFor(n *ast.For, ctx *runtime.VariableContext) (ExecutionResult, error) {
	ref, err := p.reference(n.Var, ctx)
	if err != nil {
		return normal, err
	}
	varType := n.Var.StaticType()
	start, err := p.ordinal(n.Start, ctx)
	if err != nil {
		return normal, err
	}
	step := int64(1)
	if n.Down {
		step = -1
	}
	stop, err := p.ordinal(n.Stop, ctx)
	if err != nil {
		return normal, err
	}
	if (!n.Down && start > stop) || (n.Down && start < stop) {
		return normal, nil
	}
	if err := p.setOrdinal(ref, varType, start, n.Start); err != nil {
		return normal, err
	}
	for {
		res, err := p.executeStatement(n.Body, ctx)
		if err != nil {
			return normal, err
		}
		if stop, out := loopSignal(res); stop {
			return out, nil
		}
		if p.cancelled.IsSet() {
			return normal, &diag.ScriptTerminated{Pos: n.Pos}
		}
		cur, _ := runtime.Ordinal(ref.Get())
		bound, err := p.ordinal(n.Stop, ctx)
		if err != nil {
			return normal, err
		}
		if (!n.Down && cur >= bound) || (n.Down && cur <= bound) {
			return normal, nil
		}
		if err := p.setOrdinal(ref, varType, cur+step, n.Var); err != nil {
			return normal, err
		}
	}
}

func (p *Program) ordinal(e ast.Expression, ctx *runtime.VariableContext) (int64, error) {
	v, err := p.evaluate(e, ctx)
	if err != nil {
		return 0, err
	}
	n, ok := runtime.Ordinal(v)
	if !ok {
		return 0, diag.NewInternal(e.Position(), "expected an ordinal value, got %s", v.Kind())
	}
	return n, nil
}

func (p *Program) setOrdinal(ref runtime.Reference, t types.DeclaredType, n int64, at ast.Node) error {
	if low, high, ok := types.OrdinalBounds(t); ok && (n < low || n > high) {
		return diag.NewRuntime(diag.KindRangeCheck, at.Position(), "value %d out of range for type %s", n, t.Name())
	}
	ref.Set(types.OrdinalValue(t, n))
	p.variableChanged()
	return nil
}

func (p *Program) executeCase(n *ast.Case, ctx *runtime.VariableContext) (ExecutionResult, error) {
	sel, err := p.ordinal(n.Selector, ctx)
	if err != nil {
		return normal, err
	}
	for _, branch := range n.Branches {
		for _, label := range branch.Labels {
			if sel >= label.Low && sel <= label.High {
				return p.executeStatement(branch.Body, ctx)
			}
		}
	}
	return p.executeList(n.Else, ctx)
}

func (p *Program) executeExit(n *ast.Exit, ctx *runtime.VariableContext) (ExecutionResult, error) {
	if n.Value == nil {
		return ExecutionResult{Signal: SignalExit}, nil
	}
	v, err := p.evaluate(n.Value, ctx)
	if err != nil {
		return normal, err
	}
	v = runtime.Copy(v)
	if n.Result != nil {
		ref, err := ctx.Lookup(n.Result.Key)
		if err != nil {
			return normal, diag.NewInternal(n.Pos, "%v", err)
		}
		ref.Set(v)
	}
	return ExecutionResult{Signal: SignalExit, Value: v}, nil
}
