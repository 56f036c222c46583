package interpreter

import (
	"errors"

	"github.com/edwingeng/deque"

	"pascal/interpreter-go/pkg/ast"
	"pascal/interpreter-go/pkg/diag"
	"pascal/interpreter-go/pkg/runtime"
	"pascal/interpreter-go/pkg/source"
)

// DebugMode selects how much a DebugListener hears about.
type DebugMode int

const (
	DebugOff DebugMode = iota
	// DebugStepInto reports every statement, including those of called
	// routines.
	DebugStepInto
	// DebugStepOver reports statements of the current routine only; calls
	// run silently and reporting resumes when they return.
	DebugStepOver
)

func (m DebugMode) String() string {
	switch m {
	case DebugStepInto:
		return "step-into"
	case DebugStepOver:
		return "step-over"
	default:
		return "off"
	}
}

// DebugListener observes a running program. Both callbacks run on the
// interpreter goroutine; the program waits for them to return.
type DebugListener interface {
	OnLine(node ast.Node, pos source.LineInfo)
	OnVariableChange(stack runtime.CallStack)
}

type frame struct {
	routine string
	ctx     *runtime.VariableContext
	line    source.LineInfo
}

// callStack holds one frame per active routine call, the program itself
// at the bottom.
type callStack struct {
	frames deque.Deque
}

func newCallStack() *callStack {
	return &callStack{frames: deque.NewDeque()}
}

func (s *callStack) push(routine string, ctx *runtime.VariableContext, line source.LineInfo) *frame {
	f := &frame{routine: routine, ctx: ctx, line: line}
	s.frames.PushBack(f)
	return f
}

func (s *callStack) pop() {
	s.frames.PopBack()
}

func (s *callStack) top() *frame {
	return s.frames.Back().(*frame)
}

func (s *callStack) depth() int {
	return s.frames.Len()
}

func (s *callStack) at(i int) *frame {
	return s.frames.Peek(i).(*frame)
}

// snapshot copies the stack for a debugger, outermost frame first.
func (s *callStack) snapshot() runtime.CallStack {
	out := runtime.CallStack{Frames: make([]runtime.FrameSnapshot, 0, s.depth())}
	for i := 0; i < s.depth(); i++ {
		f := s.at(i)
		out.Frames = append(out.Frames, runtime.FrameSnapshot{
			Routine: f.routine,
			Depth:   i,
			Line:    f.line,
			Vars:    f.ctx.FrameBindings(),
		})
	}
	return out
}

func (s *callStack) trace() []diag.Frame {
	out := make([]diag.Frame, 0, s.depth())
	for i := 0; i < s.depth(); i++ {
		f := s.at(i)
		out = append(out, diag.Frame{Routine: f.routine, Line: f.line})
	}
	return out
}

// CallStack returns a snapshot of the running program's stack.
func (p *Program) CallStack() runtime.CallStack {
	if p.stack == nil {
		return runtime.CallStack{}
	}
	return p.stack.snapshot()
}

// annotate attaches the current call stack to err unless an inner frame
// already did.
func (p *Program) annotate(err error) error {
	var holder diag.StackHolder
	if p.stack != nil && errors.As(err, &holder) && holder.StackTrace() == nil {
		holder.SetStackTrace(p.stack.trace())
	}
	return err
}

func (p *Program) debugging() bool {
	return p.listener != nil && p.mode != DebugOff && p.muted == 0
}

// enter runs before every statement: cancellation check, position
// tracking and line reporting.
func (p *Program) enter(node ast.Node) error {
	pos := node.Position()
	if p.cancelled.IsSet() {
		return &diag.ScriptTerminated{Pos: pos}
	}
	p.current = pos
	p.stack.top().line = pos
	if p.debugging() {
		p.listener.OnLine(node, pos)
		if p.cancelled.IsSet() {
			return &diag.ScriptTerminated{Pos: pos}
		}
	}
	return nil
}

func (p *Program) variableChanged() {
	if p.debugging() {
		p.listener.OnVariableChange(p.stack.snapshot())
	}
}
