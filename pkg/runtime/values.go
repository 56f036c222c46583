package runtime

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind identifies the runtime value category.
type Kind int

const (
	KindNil Kind = iota
	KindInteger
	KindReal
	KindChar
	KindBoolean
	KindString
	KindEnum
	KindArray
	KindRecord
	KindHost
)

func (k Kind) String() string {
	switch k {
	case KindNil:
		return "nil"
	case KindInteger:
		return "integer"
	case KindReal:
		return "real"
	case KindChar:
		return "char"
	case KindBoolean:
		return "boolean"
	case KindString:
		return "string"
	case KindEnum:
		return "enum"
	case KindArray:
		return "array"
	case KindRecord:
		return "record"
	case KindHost:
		return "host"
	default:
		return fmt.Sprintf("unknown_kind_%d", int(k))
	}
}

// Value is the shared behaviour for all runtime values.
type Value interface {
	Kind() Kind
}

//-----------------------------------------------------------------------------
// Scalars
//-----------------------------------------------------------------------------

type NilValue struct{}

func (NilValue) Kind() Kind { return KindNil }

type IntegerValue struct {
	Val int64
}

func (v IntegerValue) Kind() Kind { return KindInteger }

type RealValue struct {
	Val float64
}

func (v RealValue) Kind() Kind { return KindReal }

type CharValue struct {
	Val rune
}

func (v CharValue) Kind() Kind { return KindChar }

type BoolValue struct {
	Val bool
}

func (v BoolValue) Kind() Kind { return KindBoolean }

type StringValue struct {
	Val string
}

func (v StringValue) Kind() Kind { return KindString }

// EnumValue is a member of an enumerated type; Members is shared with the type.
type EnumValue struct {
	Ordinal int64
	Members []string
}

func (v EnumValue) Kind() Kind { return KindEnum }

// Name returns the declared spelling of the member.
func (v EnumValue) Name() string {
	if v.Ordinal >= 0 && int(v.Ordinal) < len(v.Members) {
		return v.Members[v.Ordinal]
	}
	return strconv.FormatInt(v.Ordinal, 10)
}

//-----------------------------------------------------------------------------
// Composites
//-----------------------------------------------------------------------------

// ArrayValue stores elements for indices Low..Low+len-1.
type ArrayValue struct {
	Low      int64
	Elements []Value
}

func (v *ArrayValue) Kind() Kind { return KindArray }

// RecordValue stores fields in declaration order.
type RecordValue struct {
	Names  []string
	Fields []Value
}

func (v *RecordValue) Kind() Kind { return KindRecord }

// HostValue carries an opaque host object exposed through a host-interop type.
type HostValue struct {
	TypeName string
	Ref      any
}

func (v *HostValue) Kind() Kind { return KindHost }

//-----------------------------------------------------------------------------
// Utility helpers
//-----------------------------------------------------------------------------

// Copy returns a value with Pascal value semantics: arrays and records are
// duplicated deeply, everything else is returned as is.
func Copy(v Value) Value {
	switch val := v.(type) {
	case *ArrayValue:
		out := &ArrayValue{Low: val.Low, Elements: make([]Value, len(val.Elements))}
		for i, el := range val.Elements {
			out.Elements[i] = Copy(el)
		}
		return out
	case *RecordValue:
		out := &RecordValue{Names: val.Names, Fields: make([]Value, len(val.Fields))}
		for i, f := range val.Fields {
			out.Fields[i] = Copy(f)
		}
		return out
	default:
		return v
	}
}

// Ordinal returns the ordinal position of an ordinal value.
func Ordinal(v Value) (int64, bool) {
	switch val := v.(type) {
	case IntegerValue:
		return val.Val, true
	case CharValue:
		return int64(val.Val), true
	case BoolValue:
		if val.Val {
			return 1, true
		}
		return 0, true
	case EnumValue:
		return val.Ordinal, true
	default:
		return 0, false
	}
}

// Equal compares two runtime values structurally.
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case *ArrayValue:
		bv, ok := b.(*ArrayValue)
		if !ok || len(av.Elements) != len(bv.Elements) {
			return false
		}
		for i := range av.Elements {
			if !Equal(av.Elements[i], bv.Elements[i]) {
				return false
			}
		}
		return true
	case *RecordValue:
		bv, ok := b.(*RecordValue)
		if !ok || len(av.Fields) != len(bv.Fields) {
			return false
		}
		for i := range av.Fields {
			if !Equal(av.Fields[i], bv.Fields[i]) {
				return false
			}
		}
		return true
	case *HostValue:
		bv, ok := b.(*HostValue)
		return ok && av.Ref == bv.Ref
	default:
		return a == b
	}
}

// Format renders a value the way write/writeln print it.
func Format(v Value) string {
	switch val := v.(type) {
	case nil, NilValue:
		return "nil"
	case IntegerValue:
		return strconv.FormatInt(val.Val, 10)
	case RealValue:
		return FormatReal(val.Val)
	case CharValue:
		return string(val.Val)
	case BoolValue:
		if val.Val {
			return "TRUE"
		}
		return "FALSE"
	case StringValue:
		return val.Val
	case EnumValue:
		return val.Name()
	case *ArrayValue:
		parts := make([]string, len(val.Elements))
		for i, el := range val.Elements {
			parts[i] = Format(el)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case *RecordValue:
		parts := make([]string, len(val.Fields))
		for i, f := range val.Fields {
			parts[i] = val.Names[i] + ": " + Format(f)
		}
		return "(" + strings.Join(parts, "; ") + ")"
	case *HostValue:
		return fmt.Sprintf("<%s>", val.TypeName)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// FormatReal prints a real with at least one fractional digit.
func FormatReal(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "+Inf"
	case math.IsInf(f, -1):
		return "-Inf"
	case math.IsNaN(f):
		return "Nan"
	}
	abs := math.Abs(f)
	if abs != 0 && (abs >= 1e16 || abs < 1e-4) {
		return strconv.FormatFloat(f, 'E', -1, 64)
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
