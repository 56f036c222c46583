package types

import (
	"fmt"
	"math"

	"pascal/interpreter-go/pkg/runtime"
)

// Converter transforms a runtime value of one declared type into another.
type Converter func(runtime.Value) (runtime.Value, error)

// RangeViolation reports an ordinal value outside its target type.
type RangeViolation struct {
	Value  int64
	Target DeclaredType
}

func (e *RangeViolation) Error() string {
	return fmt.Sprintf("value %d out of range for type %s", e.Value, e.Target.Name())
}

func identity(v runtime.Value) (runtime.Value, error) { return v, nil }

// ImplicitConversion returns the converter applied when a value of type
// from is used where to is expected, following the numeric precedence
// order (Byte < Integer < Int64 < Real) and Char < String.
func ImplicitConversion(from, to DeclaredType) (Converter, bool) {
	if from == nil || to == nil {
		return nil, false
	}
	if to == Any || from.Equals(to) {
		return identity, true
	}
	// Subranges share their base representation; narrowing is range checked.
	if sub, ok := to.(*Subrange); ok {
		if inner, ok := ImplicitConversion(from, sub.Base); ok {
			return func(v runtime.Value) (runtime.Value, error) {
				out, err := inner(v)
				if err != nil {
					return nil, err
				}
				return checkRange(out, sub)
			}, true
		}
		return nil, false
	}
	if sub, ok := from.(*Subrange); ok {
		return ImplicitConversion(sub.Base, to)
	}

	fb, fok := from.(*Basic)
	tb, tok := to.(*Basic)
	if fok && tok {
		switch {
		case fb.class == ClassInteger && tb.class == ClassInteger && fb.rank <= tb.rank:
			return wrapTo(tb), true
		case fb.class == ClassInteger && tb.class == ClassReal:
			return intToReal, true
		case fb.class == ClassChar && tb.class == ClassString:
			return charToString, true
		}
		return nil, false
	}
	if fa, ok := from.(*Array); ok {
		if ta, ok := to.(*Array); ok && ta.Dynamic && fa.Element.Equals(ta.Element) {
			return func(v runtime.Value) (runtime.Value, error) {
				arr := runtime.Copy(v).(*runtime.ArrayValue)
				arr.Low = 0
				return arr, nil
			}, true
		}
	}
	return nil, false
}

// ExplicitConversion returns the converter for a typecast T(expr). It
// accepts every implicit conversion plus the ordinal reinterpretations and
// real truncation.
func ExplicitConversion(from, to DeclaredType) (Converter, bool) {
	if conv, ok := ImplicitConversion(from, to); ok {
		return conv, true
	}
	if sub, ok := to.(*Subrange); ok {
		inner, ok := ExplicitConversion(from, sub.Base)
		if !ok {
			return nil, false
		}
		return func(v runtime.Value) (runtime.Value, error) {
			out, err := inner(v)
			if err != nil {
				return nil, err
			}
			return checkRange(out, sub)
		}, true
	}
	from = Underlying(from)
	if from.StorageClass() == ClassReal {
		if tb, ok := to.(*Basic); ok && tb.class == ClassInteger {
			return func(v runtime.Value) (runtime.Value, error) {
				f := v.(runtime.RealValue).Val
				if math.IsNaN(f) || math.IsInf(f, 0) {
					return nil, fmt.Errorf("cannot truncate %s to %s", runtime.FormatReal(f), tb.name)
				}
				return runtime.IntegerValue{Val: tb.Wrap(int64(f))}, nil
			}, true
		}
		return nil, false
	}
	if !IsOrdinal(from) || !IsOrdinal(to) {
		return nil, false
	}
	target := to
	return func(v runtime.Value) (runtime.Value, error) {
		n, ok := runtime.Ordinal(v)
		if !ok {
			return nil, fmt.Errorf("value of kind %s is not ordinal", v.Kind())
		}
		switch t := target.(type) {
		case *Basic:
			switch t.class {
			case ClassInteger:
				return runtime.IntegerValue{Val: t.Wrap(n)}, nil
			case ClassChar:
				return runtime.CharValue{Val: rune(uint16(n))}, nil
			case ClassBoolean:
				return runtime.BoolValue{Val: n != 0}, nil
			}
		case *Enum:
			if n < 0 || n >= int64(len(t.Members)) {
				return nil, &RangeViolation{Value: n, Target: t}
			}
			return runtime.EnumValue{Ordinal: n, Members: t.Members}, nil
		}
		return nil, fmt.Errorf("unsupported cast to %s", target.Name())
	}, true
}

// ConstantFits reports whether an integer constant can narrow into an
// integer type without loss, the one case where a wider value is accepted
// implicitly.
func ConstantFits(v int64, to DeclaredType) bool {
	low, high, ok := OrdinalBounds(to)
	if !ok || Underlying(to).StorageClass() != ClassInteger {
		return false
	}
	return v >= low && v <= high
}

// Common returns the type both operands of a binary operation widen to.
func Common(a, b DeclaredType) (DeclaredType, bool) {
	a, b = Underlying(a), Underlying(b)
	if a.Equals(b) {
		return a, true
	}
	ab, aok := a.(*Basic)
	bb, bok := b.(*Basic)
	if !aok || !bok {
		return nil, false
	}
	switch {
	case ab.class == ClassInteger && bb.class == ClassInteger:
		if ab.rank >= bb.rank {
			return ab, true
		}
		return bb, true
	case (ab.class == ClassInteger || ab.class == ClassReal) && (bb.class == ClassInteger || bb.class == ClassReal):
		return Real, true
	case (ab.class == ClassChar || ab.class == ClassString) && (bb.class == ClassChar || bb.class == ClassString):
		return String, true
	}
	return nil, false
}

func wrapTo(t *Basic) Converter {
	return func(v runtime.Value) (runtime.Value, error) {
		iv := v.(runtime.IntegerValue)
		return runtime.IntegerValue{Val: t.Wrap(iv.Val)}, nil
	}
}

func intToReal(v runtime.Value) (runtime.Value, error) {
	return runtime.RealValue{Val: float64(v.(runtime.IntegerValue).Val)}, nil
}

func charToString(v runtime.Value) (runtime.Value, error) {
	return runtime.StringValue{Val: string(v.(runtime.CharValue).Val)}, nil
}

func checkRange(v runtime.Value, sub *Subrange) (runtime.Value, error) {
	n, ok := runtime.Ordinal(v)
	if !ok {
		return v, nil
	}
	if !sub.Contains(n) {
		return nil, &RangeViolation{Value: n, Target: sub}
	}
	return v, nil
}
