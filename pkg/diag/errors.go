package diag

import (
	"errors"
	"fmt"
	"strings"

	"pascal/interpreter-go/pkg/source"
)

// Kind classifies a diagnostic so callers never need to parse messages.
type Kind string

const (
	KindLexical              Kind = "lexical"
	KindParsing              Kind = "parsing"
	KindUnconvertibleType    Kind = "unconvertible_type"
	KindNonArrayIndexed      Kind = "non_array_indexed"
	KindUndeclaredIdentifier Kind = "undeclared_identifier"
	KindDuplicateDeclaration Kind = "duplicate_declaration"
	KindUnknownField         Kind = "unknown_field"
	KindBadFunctionCall      Kind = "bad_function_call"
	KindBadOperation         Kind = "bad_operation"
	KindUnknownUnit          Kind = "unknown_unit"

	KindArithmetic       Kind = "arithmetic"
	KindRangeCheck       Kind = "range_check"
	KindConversion       Kind = "conversion"
	KindIO               Kind = "io"
	KindIndexOutOfBounds Kind = "index_out_of_bounds"
	KindStackOverflow    Kind = "stack_overflow"
	KindInternal         Kind = "internal"
	KindUnhandled        Kind = "unhandled"
	KindScriptTerminated Kind = "script_terminated"
	KindHalt             Kind = "halt"
)

// IsRuntime reports whether the kind belongs to the runtime family.
func (k Kind) IsRuntime() bool {
	switch k {
	case KindArithmetic, KindRangeCheck, KindConversion, KindIO, KindIndexOutOfBounds, KindStackOverflow,
		KindInternal, KindUnhandled, KindScriptTerminated, KindHalt:
		return true
	default:
		return false
	}
}

// Diagnostic is implemented by every error the interpreter reports.
// Position is nil only for defects raised without a known node.
type Diagnostic interface {
	error
	Kind() Kind
	Position() *source.LineInfo
}

// Frame is one entry of a call-stack snapshot attached to runtime errors.
type Frame struct {
	Routine string
	Line    source.LineInfo
}

// StackHolder is implemented by runtime errors that carry a call-stack snapshot.
type StackHolder interface {
	StackTrace() []Frame
	SetStackTrace([]Frame)
}

func position(pos source.LineInfo) *source.LineInfo {
	if pos.IsZero() {
		return nil
	}
	p := pos
	return &p
}

//-----------------------------------------------------------------------------
// Parse-time family
//-----------------------------------------------------------------------------

// LexicalError reports a malformed token.
type LexicalError struct {
	Pos source.LineInfo
	Msg string
}

func (e *LexicalError) Error() string {
	return fmt.Sprintf("%s: %s", e.Pos, e.Msg)
}

func (e *LexicalError) Kind() Kind                 { return KindLexical }
func (e *LexicalError) Position() *source.LineInfo { p := e.Pos; return &p }

// ParsingError covers malformed or ill-typed program structure.
type ParsingError struct {
	ErrKind Kind
	Pos     source.LineInfo
	Msg     string
}

func (e *ParsingError) Error() string {
	return fmt.Sprintf("%s: %s", e.Pos, e.Msg)
}

func (e *ParsingError) Kind() Kind {
	if e.ErrKind == "" {
		return KindParsing
	}
	return e.ErrKind
}

func (e *ParsingError) Position() *source.LineInfo { p := e.Pos; return &p }

// NewParsing builds a generic parsing error.
func NewParsing(pos source.LineInfo, format string, args ...any) *ParsingError {
	return &ParsingError{ErrKind: KindParsing, Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

// NewParsingKind builds a parsing error with a specific kind.
func NewParsingKind(kind Kind, pos source.LineInfo, format string, args ...any) *ParsingError {
	return &ParsingError{ErrKind: kind, Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

// UnconvertibleTypeError is raised when an implicit or explicit conversion
// between two declared types is not allowed.
type UnconvertibleTypeError struct {
	Pos      source.LineInfo
	Expr     string
	From     string
	To       string
	Implicit bool
}

func (e *UnconvertibleTypeError) Error() string {
	mode := ""
	if e.Implicit {
		mode = "implicitly "
	}
	return fmt.Sprintf("%s: the expression or variable %q is of type %q, which cannot be %sconverted to the type %q",
		e.Pos, e.Expr, e.From, mode, e.To)
}

func (e *UnconvertibleTypeError) Kind() Kind                 { return KindUnconvertibleType }
func (e *UnconvertibleTypeError) Position() *source.LineInfo { p := e.Pos; return &p }

// NonArrayIndexedError is raised when a non array-like value is indexed.
type NonArrayIndexedError struct {
	Pos  source.LineInfo
	Type string
}

func (e *NonArrayIndexedError) Error() string {
	return fmt.Sprintf("%s: type %q cannot be indexed", e.Pos, e.Type)
}

func (e *NonArrayIndexedError) Kind() Kind                 { return KindNonArrayIndexed }
func (e *NonArrayIndexedError) Position() *source.LineInfo { p := e.Pos; return &p }

//-----------------------------------------------------------------------------
// Runtime family
//-----------------------------------------------------------------------------

// RuntimeError is a failure during execution (arithmetic, range checks,
// stack overflow).
type RuntimeError struct {
	ErrKind Kind
	Pos     source.LineInfo
	Msg     string
	Stack   []Frame
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("%s: %s", e.Pos, e.Msg)
}

func (e *RuntimeError) Kind() Kind                   { return e.ErrKind }
func (e *RuntimeError) Position() *source.LineInfo   { return position(e.Pos) }
func (e *RuntimeError) StackTrace() []Frame          { return e.Stack }
func (e *RuntimeError) SetStackTrace(frames []Frame) { e.Stack = frames }

// NewArithmetic reports an arithmetic failure such as division by zero.
func NewArithmetic(pos source.LineInfo, msg string) *RuntimeError {
	return &RuntimeError{ErrKind: KindArithmetic, Pos: pos, Msg: msg}
}

// NewRuntime builds a runtime error of the given kind.
func NewRuntime(kind Kind, pos source.LineInfo, format string, args ...any) *RuntimeError {
	return &RuntimeError{ErrKind: kind, Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

// InternalInterpreterError signals a defect: an operator or node the
// implementation does not handle. It must never be swallowed.
type InternalInterpreterError struct {
	Pos   source.LineInfo
	Msg   string
	Stack []Frame
}

func (e *InternalInterpreterError) Error() string {
	return fmt.Sprintf("%s: internal interpreter error: %s", e.Pos, e.Msg)
}

func (e *InternalInterpreterError) Kind() Kind                   { return KindInternal }
func (e *InternalInterpreterError) Position() *source.LineInfo   { return position(e.Pos) }
func (e *InternalInterpreterError) StackTrace() []Frame          { return e.Stack }
func (e *InternalInterpreterError) SetStackTrace(frames []Frame) { e.Stack = frames }

// NewInternal builds an InternalInterpreterError.
func NewInternal(pos source.LineInfo, format string, args ...any) *InternalInterpreterError {
	return &InternalInterpreterError{Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

// UnhandledError wraps an unexpected host failure raised while evaluating a node.
type UnhandledError struct {
	Pos   source.LineInfo
	Cause error
	Stack []Frame
}

func (e *UnhandledError) Error() string {
	return fmt.Sprintf("%s: unhandled error: %v", e.Pos, e.Cause)
}

func (e *UnhandledError) Unwrap() error                { return e.Cause }
func (e *UnhandledError) Kind() Kind                   { return KindUnhandled }
func (e *UnhandledError) Position() *source.LineInfo   { return position(e.Pos) }
func (e *UnhandledError) StackTrace() []Frame          { return e.Stack }
func (e *UnhandledError) SetStackTrace(frames []Frame) { e.Stack = frames }

// ScriptTerminated unwinds execution after an external stop request.
type ScriptTerminated struct {
	Pos source.LineInfo
}

func (e *ScriptTerminated) Error() string {
	return fmt.Sprintf("%s: script terminated", e.Pos)
}

func (e *ScriptTerminated) Kind() Kind                 { return KindScriptTerminated }
func (e *ScriptTerminated) Position() *source.LineInfo { return position(e.Pos) }

// HaltSignal unwinds execution after a call to halt.
type HaltSignal struct {
	Pos  source.LineInfo
	Code int
}

func (e *HaltSignal) Error() string {
	return fmt.Sprintf("%s: halted with exit code %d", e.Pos, e.Code)
}

func (e *HaltSignal) Kind() Kind                 { return KindHalt }
func (e *HaltSignal) Position() *source.LineInfo { return position(e.Pos) }

//-----------------------------------------------------------------------------
// Helpers
//-----------------------------------------------------------------------------

// KindOf returns the diagnostic kind carried by err, or "" when err is not a Diagnostic.
func KindOf(err error) Kind {
	var d Diagnostic
	if errors.As(err, &d) {
		return d.Kind()
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsRuntime reports whether err belongs to the runtime family.
func IsRuntime(err error) bool {
	return KindOf(err).IsRuntime()
}

// PositionOf extracts the line information attached to err.
func PositionOf(err error) (source.LineInfo, bool) {
	var d Diagnostic
	if errors.As(err, &d) {
		if p := d.Position(); p != nil {
			return *p, true
		}
	}
	return source.LineInfo{}, false
}

// FormatStack renders a call-stack snapshot, innermost frame first.
func FormatStack(frames []Frame) string {
	var b strings.Builder
	for i := len(frames) - 1; i >= 0; i-- {
		fmt.Fprintf(&b, "  at %s (%s)\n", frames[i].Routine, frames[i].Line)
	}
	return b.String()
}
