package runtime

import (
	"fmt"
)

// Reference is a resolved, settable storage location.
type Reference interface {
	Get() Value
	Set(Value)
}

// Box is the storage cell behind every declared variable.
type Box struct {
	value Value
}

// NewBox allocates storage holding v.
func NewBox(v Value) *Box {
	return &Box{value: v}
}

func (b *Box) Get() Value  { return b.value }
func (b *Box) Set(v Value) { b.value = v }

// ElementRef addresses one element of an array value.
type ElementRef struct {
	Array *ArrayValue
	Index int
}

func (r ElementRef) Get() Value  { return r.Array.Elements[r.Index] }
func (r ElementRef) Set(v Value) { r.Array.Elements[r.Index] = v }

// FieldRef addresses one field of a record value.
type FieldRef struct {
	Record *RecordValue
	Index  int
}

func (r FieldRef) Get() Value  { return r.Record.Fields[r.Index] }
func (r FieldRef) Set(v Value) { r.Record.Fields[r.Index] = v }

// CharRef addresses one character of a string held in another reference.
type CharRef struct {
	Target Reference
	Index  int // 0-based rune index
}

func (r CharRef) Get() Value {
	s := []rune(r.Target.Get().(StringValue).Val)
	return CharValue{Val: s[r.Index]}
}

func (r CharRef) Set(v Value) {
	s := []rune(r.Target.Get().(StringValue).Val)
	s[r.Index] = v.(CharValue).Val
	r.Target.Set(StringValue{Val: string(s)})
}

// VariableContext provides storage for one activation: the global scope,
// one routine call frame or one block with inline declarations.
type VariableContext struct {
	frame   int
	routine string
	parent  *VariableContext
	order   []string
	display map[string]string
	values  map[string]Reference
}

// NewVariableContext creates a new activation nested under parent. frame
// identifies the routine scope that owns the activation.
func NewVariableContext(parent *VariableContext, frame int, routine string) *VariableContext {
	return &VariableContext{
		frame:   frame,
		routine: routine,
		parent:  parent,
		display: make(map[string]string),
		values:  make(map[string]Reference),
	}
}

// Extend creates a block-level child sharing the owning frame.
func (c *VariableContext) Extend() *VariableContext {
	return NewVariableContext(c, c.frame, c.routine)
}

// Parent exposes the enclosing activation (nil when global).
func (c *VariableContext) Parent() *VariableContext {
	return c.parent
}

// Frame returns the scope id of the routine owning this activation.
func (c *VariableContext) Frame() int {
	return c.frame
}

// Routine returns the display name of the owning routine.
func (c *VariableContext) Routine() string {
	return c.routine
}

// Define binds key to ref in the current activation. display keeps the
// declared spelling for diagnostics.
func (c *VariableContext) Define(key, display string, ref Reference) {
	if _, exists := c.values[key]; !exists {
		c.order = append(c.order, key)
	}
	c.display[key] = display
	c.values[key] = ref
}

// Lookup resolves key, searching outward through enclosing activations.
func (c *VariableContext) Lookup(key string) (Reference, error) {
	for ctx := c; ctx != nil; ctx = ctx.parent {
		if ref, ok := ctx.values[key]; ok {
			return ref, nil
		}
	}
	return nil, fmt.Errorf("undefined variable '%s'", key)
}

// FindFrame walks outward to the base activation of the nearest frame
// owned by frame, skipping block-level children of that frame.
func (c *VariableContext) FindFrame(frame int) *VariableContext {
	var found *VariableContext
	for ctx := c; ctx != nil; ctx = ctx.parent {
		if ctx.frame == frame {
			found = ctx
		} else if found != nil {
			break
		}
	}
	return found
}

// Snapshot returns the bindings of this activation in declaration order.
func (c *VariableContext) Snapshot() []Binding {
	out := make([]Binding, 0, len(c.order))
	for _, key := range c.order {
		out = append(out, Binding{Name: c.display[key], Value: c.values[key].Get()})
	}
	return out
}
