package runtime

import "pascal/interpreter-go/pkg/source"

// Binding is one variable observed in a call-stack snapshot.
type Binding struct {
	Name  string
	Value Value
}

// FrameSnapshot is the debugger view of one activation.
type FrameSnapshot struct {
	Routine string
	Depth   int
	Line    source.LineInfo
	Vars    []Binding
}

// CallStack is an immutable snapshot of the active frames, outermost first.
type CallStack struct {
	Frames []FrameSnapshot
}

// Top returns the innermost frame.
func (s CallStack) Top() (FrameSnapshot, bool) {
	if len(s.Frames) == 0 {
		return FrameSnapshot{}, false
	}
	return s.Frames[len(s.Frames)-1], true
}

// FrameBindings collects the bindings of ctx and of the block-level
// activations enclosing it within the same routine frame, outermost first.
func (c *VariableContext) FrameBindings() []Binding {
	var out []Binding
	for ctx := c; ctx != nil && ctx.frame == c.frame; ctx = ctx.parent {
		out = append(ctx.Snapshot(), out...)
	}
	return out
}
