package builtins

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"pascal/interpreter-go/pkg/diag"
	"pascal/interpreter-go/pkg/runtime"
	"pascal/interpreter-go/pkg/types"
)

func systemLibrary() *Library {
	lib := NewLibrary(SystemLibrary)
	lib.Consts = []Const{
		{Name: "pi", Type: types.Real, Value: runtime.RealValue{Val: math.Pi}},
		{Name: "maxint", Type: types.Integer, Value: runtime.IntegerValue{Val: math.MaxInt32}},
		{Name: "maxlongint", Type: types.Integer, Value: runtime.IntegerValue{Val: math.MaxInt32}},
	}
	lib.Add(
		&Function{Name: "write", Params: params(param("value", types.Any)), Variadic: true, Invoke: writeValues(false)},
		&Function{Name: "writeln", Params: params(param("value", types.Any)), Variadic: true, Invoke: writeValues(true)},
		&Function{Name: "read", Params: params(varParam("target", types.Any)), Variadic: true, Invoke: readValues(false)},
		&Function{Name: "readln", Params: params(varParam("target", types.Any)), Variadic: true, Invoke: readValues(true)},

		&Function{Name: "length", Params: params(param("value", types.Any)), Result: types.Integer, Invoke: length},
		&Function{Name: "setlength", Params: params(varParam("target", types.Any), param("length", types.Integer)), Invoke: setLength},
		&Function{Name: "low", Params: params(param("value", types.Any)), ResultOf: boundType, Result: types.Integer, Invoke: bound(false)},
		&Function{Name: "high", Params: params(param("value", types.Any)), ResultOf: boundType, Result: types.Integer, Invoke: bound(true)},

		&Function{Name: "inc", Params: params(varParam("target", types.Any)), Invoke: step(1, false)},
		&Function{Name: "inc", Params: params(varParam("target", types.Any), param("amount", types.Int64)), Invoke: step(1, true)},
		&Function{Name: "dec", Params: params(varParam("target", types.Any)), Invoke: step(-1, false)},
		&Function{Name: "dec", Params: params(varParam("target", types.Any), param("amount", types.Int64)), Invoke: step(-1, true)},
		&Function{Name: "ord", Params: params(param("value", types.Any)), Result: types.Integer, Invoke: ord},
		&Function{Name: "chr", Params: params(param("code", types.Integer)), Result: types.Char, Invoke: chr},
		&Function{Name: "succ", Params: params(param("value", types.Any)), Result: types.Any, ResultOf: firstArgType, Invoke: successor(1)},
		&Function{Name: "pred", Params: params(param("value", types.Any)), Result: types.Any, ResultOf: firstArgType, Invoke: successor(-1)},
		&Function{Name: "odd", Params: params(param("value", types.Int64)), Result: types.Boolean, Invoke: odd},

		&Function{Name: "abs", Params: params(param("value", types.Any)), Result: types.Any, ResultOf: firstArgType, Invoke: abs},
		&Function{Name: "sqr", Params: params(param("value", types.Any)), Result: types.Any, ResultOf: firstArgType, Invoke: sqr},
		&Function{Name: "sqrt", Params: params(param("value", types.Real)), Result: types.Real, Invoke: realFunc("sqrt", math.Sqrt, func(x float64) bool { return x >= 0 })},
		&Function{Name: "sin", Params: params(param("value", types.Real)), Result: types.Real, Invoke: realFunc("sin", math.Sin, nil)},
		&Function{Name: "cos", Params: params(param("value", types.Real)), Result: types.Real, Invoke: realFunc("cos", math.Cos, nil)},
		&Function{Name: "arctan", Params: params(param("value", types.Real)), Result: types.Real, Invoke: realFunc("arctan", math.Atan, nil)},
		&Function{Name: "exp", Params: params(param("value", types.Real)), Result: types.Real, Invoke: realFunc("exp", math.Exp, nil)},
		&Function{Name: "ln", Params: params(param("value", types.Real)), Result: types.Real, Invoke: realFunc("ln", math.Log, func(x float64) bool { return x > 0 })},
		&Function{Name: "int", Params: params(param("value", types.Real)), Result: types.Real, Invoke: realFunc("int", math.Trunc, nil)},
		&Function{Name: "frac", Params: params(param("value", types.Real)), Result: types.Real, Invoke: realFunc("frac", func(x float64) float64 { return x - math.Trunc(x) }, nil)},
		&Function{Name: "round", Params: params(param("value", types.Real)), Result: types.Integer, Invoke: toInteger("round", math.RoundToEven)},
		&Function{Name: "trunc", Params: params(param("value", types.Real)), Result: types.Integer, Invoke: toInteger("trunc", math.Trunc)},

		&Function{Name: "concat", Params: params(param("value", types.String)), Variadic: true, Result: types.String, Invoke: concat},
		&Function{Name: "copy", Params: params(param("s", types.String), param("index", types.Integer), param("count", types.Integer)), Result: types.String, Invoke: copyString},
		&Function{Name: "pos", Params: params(param("substr", types.String), param("s", types.String)), Result: types.Integer, Invoke: position},
		&Function{Name: "delete", Params: params(varParam("s", types.String), param("index", types.Integer), param("count", types.Integer)), Invoke: deleteString},
		&Function{Name: "insert", Params: params(param("source", types.String), varParam("s", types.String), param("index", types.Integer)), Invoke: insertString},
		&Function{Name: "upcase", Params: params(param("c", types.Char)), Result: types.Char, Invoke: mapChar(unicode.ToUpper)},
		&Function{Name: "upcase", Params: params(param("s", types.String)), Result: types.String, Invoke: mapString(strings.ToUpper)},
		&Function{Name: "lowercase", Params: params(param("c", types.Char)), Result: types.Char, Invoke: mapChar(unicode.ToLower)},
		&Function{Name: "lowercase", Params: params(param("s", types.String)), Result: types.String, Invoke: mapString(strings.ToLower)},
		&Function{Name: "inttostr", Params: params(param("value", types.Int64)), Result: types.String, Invoke: intToStr},
		&Function{Name: "strtoint", Params: params(param("s", types.String)), Result: types.Integer, Invoke: strToInt},
		&Function{Name: "floattostr", Params: params(param("value", types.Real)), Result: types.String, Invoke: floatToStr},

		&Function{Name: "halt", Invoke: halt},
		&Function{Name: "halt", Params: params(param("code", types.Integer)), Invoke: halt},
		&Function{Name: "random", Result: types.Real, Invoke: randomReal},
		&Function{Name: "random", Params: params(param("range", types.Int64)), Result: types.Integer, Invoke: randomInt},
		&Function{Name: "randomize", Invoke: randomize},
	)
	return lib
}

//-----------------------------------------------------------------------------
// I/O
//-----------------------------------------------------------------------------

func writeValues(newline bool) func(*Call) (runtime.Value, error) {
	return func(call *Call) (runtime.Value, error) {
		var b strings.Builder
		for _, v := range call.Args {
			b.WriteString(runtime.Format(v))
		}
		if newline {
			b.WriteByte('\n')
		}
		if _, err := io.WriteString(call.Env.Out, b.String()); err != nil {
			return nil, diag.NewRuntime(diag.KindIO, call.Pos, "write failed: %v", err)
		}
		return nil, nil
	}
}

// FormatField renders v right-aligned in width columns; reals with a
// precision are printed in fixed notation, as write(x:w:d) does.
func FormatField(v runtime.Value, width int, precision int, hasPrecision bool) string {
	var s string
	if r, ok := v.(runtime.RealValue); ok && hasPrecision {
		if precision < 0 {
			precision = 0
		}
		s = strconv.FormatFloat(r.Val, 'f', precision, 64)
	} else {
		s = runtime.Format(v)
	}
	if pad := width - utf8.RuneCountInString(s); pad > 0 {
		s = strings.Repeat(" ", pad) + s
	}
	return s
}

func readValues(line bool) func(*Call) (runtime.Value, error) {
	return func(call *Call) (runtime.Value, error) {
		in := call.Env.In
		for _, ref := range call.Refs {
			if ref == nil {
				continue
			}
			if err := readInto(call, ref); err != nil {
				return nil, err
			}
		}
		if line {
			for {
				r, _, err := in.ReadRune()
				if err != nil || r == '\n' {
					break
				}
			}
		}
		return nil, nil
	}
}

func readInto(call *Call, ref runtime.Reference) error {
	in := call.Env.In
	switch ref.Get().(type) {
	case runtime.CharValue:
		r, _, err := in.ReadRune()
		if err != nil {
			return diag.NewRuntime(diag.KindIO, call.Pos, "unexpected end of input")
		}
		ref.Set(runtime.CharValue{Val: r})
	case runtime.StringValue:
		var b strings.Builder
		for {
			r, _, err := in.ReadRune()
			if err != nil {
				break
			}
			if r == '\n' {
				_ = in.UnreadRune()
				break
			}
			b.WriteRune(r)
		}
		ref.Set(runtime.StringValue{Val: strings.TrimSuffix(b.String(), "\r")})
	case runtime.IntegerValue, runtime.RealValue:
		word, err := readWord(in)
		if err != nil {
			return diag.NewRuntime(diag.KindIO, call.Pos, "unexpected end of input")
		}
		if _, isReal := ref.Get().(runtime.RealValue); isReal {
			f, perr := strconv.ParseFloat(word, 64)
			if perr != nil {
				return diag.NewRuntime(diag.KindConversion, call.Pos, "%q is not a valid real value", word)
			}
			ref.Set(runtime.RealValue{Val: f})
			return nil
		}
		n, perr := strconv.ParseInt(word, 10, 64)
		if perr != nil {
			return diag.NewRuntime(diag.KindConversion, call.Pos, "%q is not a valid integer value", word)
		}
		ref.Set(runtime.IntegerValue{Val: n})
	default:
		return diag.NewRuntime(diag.KindIO, call.Pos, "cannot read a value of kind %s", ref.Get().Kind())
	}
	return nil
}

func readWord(in interface {
	ReadRune() (rune, int, error)
	UnreadRune() error
}) (string, error) {
	var b strings.Builder
	for {
		r, _, err := in.ReadRune()
		if err != nil {
			if b.Len() > 0 {
				return b.String(), nil
			}
			return "", err
		}
		if unicode.IsSpace(r) {
			if b.Len() == 0 {
				continue
			}
			_ = in.UnreadRune()
			return b.String(), nil
		}
		b.WriteRune(r)
	}
}

//-----------------------------------------------------------------------------
// Ordinals and arrays
//-----------------------------------------------------------------------------

func length(call *Call) (runtime.Value, error) {
	switch v := call.Args[0].(type) {
	case runtime.StringValue:
		return runtime.IntegerValue{Val: int64(utf8.RuneCountInString(v.Val))}, nil
	case runtime.CharValue:
		return runtime.IntegerValue{Val: 1}, nil
	case *runtime.ArrayValue:
		return runtime.IntegerValue{Val: int64(len(v.Elements))}, nil
	}
	return nil, diag.NewRuntime(diag.KindConversion, call.Pos, "length expects a string or an array, got %s", call.Args[0].Kind())
}

func setLength(call *Call) (runtime.Value, error) {
	n := call.Args[1].(runtime.IntegerValue).Val
	if n < 0 {
		return nil, diag.NewRuntime(diag.KindRangeCheck, call.Pos, "negative length %d", n)
	}
	ref := call.Refs[0]
	switch v := ref.Get().(type) {
	case runtime.StringValue:
		rs := []rune(v.Val)
		if int64(len(rs)) >= n {
			rs = rs[:n]
		} else {
			rs = append(rs, make([]rune, n-int64(len(rs)))...)
		}
		ref.Set(runtime.StringValue{Val: string(rs)})
		return nil, nil
	case *runtime.ArrayValue:
		arr, ok := types.Underlying(call.ArgTypes[0]).(*types.Array)
		if !ok || !arr.Dynamic {
			return nil, diag.NewRuntime(diag.KindConversion, call.Pos, "setlength expects a dynamic array")
		}
		elems := v.Elements
		if int64(len(elems)) >= n {
			elems = elems[:n]
		} else {
			for int64(len(elems)) < n {
				elems = append(elems, arr.Element.Initialize())
			}
		}
		ref.Set(&runtime.ArrayValue{Low: 0, Elements: elems})
		return nil, nil
	}
	return nil, diag.NewRuntime(diag.KindConversion, call.Pos, "setlength expects a string or a dynamic array")
}

func boundType(args []types.DeclaredType) types.DeclaredType {
	switch t := firstArgType(args).(type) {
	case *types.Array:
		if t.Dynamic || t.Index == nil {
			return types.Integer
		}
		return t.Index
	case *types.Basic:
		if t.StorageClass() == types.ClassString {
			return types.Integer
		}
	}
	if len(args) > 0 && types.IsOrdinal(args[0]) {
		return args[0]
	}
	return types.Integer
}

func bound(high bool) func(*Call) (runtime.Value, error) {
	return func(call *Call) (runtime.Value, error) {
		switch v := call.Args[0].(type) {
		case *runtime.ArrayValue:
			var n int64
			if high {
				n = v.Low + int64(len(v.Elements)) - 1
			} else {
				n = v.Low
			}
			if arr, ok := types.Underlying(call.ArgTypes[0]).(*types.Array); ok && !arr.Dynamic && arr.Index != nil {
				return types.OrdinalValue(arr.Index, n), nil
			}
			return runtime.IntegerValue{Val: n}, nil
		case runtime.StringValue:
			if high {
				return runtime.IntegerValue{Val: int64(utf8.RuneCountInString(v.Val))}, nil
			}
			return runtime.IntegerValue{Val: 1}, nil
		}
		low, hi, ok := types.OrdinalBounds(call.ArgTypes[0])
		if !ok {
			return nil, diag.NewRuntime(diag.KindConversion, call.Pos, "low/high expect an array, a string or an ordinal value")
		}
		if high {
			return types.OrdinalValue(call.ArgTypes[0], hi), nil
		}
		return types.OrdinalValue(call.ArgTypes[0], low), nil
	}
}

// shift moves an ordinal value by delta, keeping its type.
func shift(call *Call, v runtime.Value, t types.DeclaredType, delta int64) (runtime.Value, error) {
	n, ok := runtime.Ordinal(v)
	if !ok {
		return nil, diag.NewRuntime(diag.KindConversion, call.Pos, "expected an ordinal value, got %s", v.Kind())
	}
	n += delta
	if _, isInt := v.(runtime.IntegerValue); isInt {
		if b, ok := types.Underlying(t).(*types.Basic); ok {
			n = b.Wrap(n)
		}
		if sub, ok := t.(*types.Subrange); ok && !sub.Contains(n) {
			return nil, diag.NewRuntime(diag.KindRangeCheck, call.Pos, "value %d out of range for type %s", n, sub.Name())
		}
		return runtime.IntegerValue{Val: n}, nil
	}
	if low, high, ok := types.OrdinalBounds(t); ok && (n < low || n > high) {
		return nil, diag.NewRuntime(diag.KindRangeCheck, call.Pos, "value %d out of range for type %s", n, t.Name())
	}
	return types.OrdinalValue(t, n), nil
}

func step(sign int64, withAmount bool) func(*Call) (runtime.Value, error) {
	return func(call *Call) (runtime.Value, error) {
		delta := sign
		if withAmount {
			delta = sign * call.Args[1].(runtime.IntegerValue).Val
		}
		ref := call.Refs[0]
		out, err := shift(call, ref.Get(), call.ArgTypes[0], delta)
		if err != nil {
			return nil, err
		}
		ref.Set(out)
		return nil, nil
	}
}

func successor(delta int64) func(*Call) (runtime.Value, error) {
	return func(call *Call) (runtime.Value, error) {
		return shift(call, call.Args[0], call.ArgTypes[0], delta)
	}
}

func ord(call *Call) (runtime.Value, error) {
	n, ok := runtime.Ordinal(call.Args[0])
	if !ok {
		return nil, diag.NewRuntime(diag.KindConversion, call.Pos, "ord expects an ordinal value, got %s", call.Args[0].Kind())
	}
	return runtime.IntegerValue{Val: n}, nil
}

func chr(call *Call) (runtime.Value, error) {
	n := call.Args[0].(runtime.IntegerValue).Val
	return runtime.CharValue{Val: rune(uint16(n))}, nil
}

func odd(call *Call) (runtime.Value, error) {
	n := call.Args[0].(runtime.IntegerValue).Val
	return runtime.BoolValue{Val: n%2 != 0}, nil
}

//-----------------------------------------------------------------------------
// Numbers
//-----------------------------------------------------------------------------

func abs(call *Call) (runtime.Value, error) {
	switch v := call.Args[0].(type) {
	case runtime.IntegerValue:
		if v.Val < 0 {
			return runtime.IntegerValue{Val: -v.Val}, nil
		}
		return v, nil
	case runtime.RealValue:
		return runtime.RealValue{Val: math.Abs(v.Val)}, nil
	}
	return nil, diag.NewRuntime(diag.KindConversion, call.Pos, "abs expects a number, got %s", call.Args[0].Kind())
}

func sqr(call *Call) (runtime.Value, error) {
	switch v := call.Args[0].(type) {
	case runtime.IntegerValue:
		out := v.Val * v.Val
		if b, ok := firstArgType(call.ArgTypes).(*types.Basic); ok {
			out = b.Wrap(out)
		}
		return runtime.IntegerValue{Val: out}, nil
	case runtime.RealValue:
		return runtime.RealValue{Val: v.Val * v.Val}, nil
	}
	return nil, diag.NewRuntime(diag.KindConversion, call.Pos, "sqr expects a number, got %s", call.Args[0].Kind())
}

func realArg(v runtime.Value) float64 {
	switch n := v.(type) {
	case runtime.RealValue:
		return n.Val
	case runtime.IntegerValue:
		return float64(n.Val)
	}
	return math.NaN()
}

func realFunc(name string, fn func(float64) float64, domain func(float64) bool) func(*Call) (runtime.Value, error) {
	return func(call *Call) (runtime.Value, error) {
		x := realArg(call.Args[0])
		if domain != nil && !domain(x) {
			return nil, diag.NewArithmetic(call.Pos, fmt.Sprintf("invalid argument %s to %s", runtime.FormatReal(x), name))
		}
		return runtime.RealValue{Val: fn(x)}, nil
	}
}

func toInteger(name string, fn func(float64) float64) func(*Call) (runtime.Value, error) {
	return func(call *Call) (runtime.Value, error) {
		x := fn(realArg(call.Args[0]))
		if math.IsNaN(x) || math.IsInf(x, 0) || x > math.MaxInt64 || x < math.MinInt64 {
			return nil, diag.NewArithmetic(call.Pos, fmt.Sprintf("%s: value out of range", name))
		}
		return runtime.IntegerValue{Val: types.Integer.Wrap(int64(x))}, nil
	}
}

func randomReal(call *Call) (runtime.Value, error) {
	return runtime.RealValue{Val: call.Env.Rand.Float64()}, nil
}

func randomInt(call *Call) (runtime.Value, error) {
	n := call.Args[0].(runtime.IntegerValue).Val
	if n <= 0 {
		return runtime.IntegerValue{Val: 0}, nil
	}
	return runtime.IntegerValue{Val: call.Env.Rand.Int63n(n)}, nil
}

func randomize(call *Call) (runtime.Value, error) {
	call.Env.Rand.Seed(call.Env.Rand.Int63())
	return nil, nil
}

func halt(call *Call) (runtime.Value, error) {
	code := 0
	if len(call.Args) > 0 {
		code = int(call.Args[0].(runtime.IntegerValue).Val)
	}
	return nil, &diag.HaltSignal{Pos: call.Pos, Code: code}
}

//-----------------------------------------------------------------------------
// Strings
//-----------------------------------------------------------------------------

func strArg(v runtime.Value) string {
	switch s := v.(type) {
	case runtime.StringValue:
		return s.Val
	case runtime.CharValue:
		return string(s.Val)
	}
	return runtime.Format(v)
}

func concat(call *Call) (runtime.Value, error) {
	var b strings.Builder
	for _, v := range call.Args {
		b.WriteString(strArg(v))
	}
	return runtime.StringValue{Val: b.String()}, nil
}

// substring clamps a 1-based index/count pair to the runes of s.
func substring(rs []rune, index, count int64) (int64, int64) {
	if index < 1 {
		index = 1
	}
	start := index - 1
	if start > int64(len(rs)) {
		start = int64(len(rs))
	}
	if count < 0 {
		count = 0
	}
	end := start + count
	if end > int64(len(rs)) || end < start {
		end = int64(len(rs))
	}
	return start, end
}

func copyString(call *Call) (runtime.Value, error) {
	rs := []rune(strArg(call.Args[0]))
	start, end := substring(rs, call.Args[1].(runtime.IntegerValue).Val, call.Args[2].(runtime.IntegerValue).Val)
	return runtime.StringValue{Val: string(rs[start:end])}, nil
}

func position(call *Call) (runtime.Value, error) {
	sub, s := strArg(call.Args[0]), strArg(call.Args[1])
	idx := strings.Index(s, sub)
	if idx < 0 || sub == "" {
		return runtime.IntegerValue{Val: 0}, nil
	}
	return runtime.IntegerValue{Val: int64(utf8.RuneCountInString(s[:idx])) + 1}, nil
}

func deleteString(call *Call) (runtime.Value, error) {
	ref := call.Refs[0]
	rs := []rune(strArg(ref.Get()))
	start, end := substring(rs, call.Args[1].(runtime.IntegerValue).Val, call.Args[2].(runtime.IntegerValue).Val)
	out := append(append([]rune{}, rs[:start]...), rs[end:]...)
	ref.Set(runtime.StringValue{Val: string(out)})
	return nil, nil
}

func insertString(call *Call) (runtime.Value, error) {
	src := []rune(strArg(call.Args[0]))
	ref := call.Refs[1]
	rs := []rune(strArg(ref.Get()))
	start, _ := substring(rs, call.Args[2].(runtime.IntegerValue).Val, 0)
	out := make([]rune, 0, len(rs)+len(src))
	out = append(out, rs[:start]...)
	out = append(out, src...)
	out = append(out, rs[start:]...)
	ref.Set(runtime.StringValue{Val: string(out)})
	return nil, nil
}

func mapChar(fn func(rune) rune) func(*Call) (runtime.Value, error) {
	return func(call *Call) (runtime.Value, error) {
		return runtime.CharValue{Val: fn(call.Args[0].(runtime.CharValue).Val)}, nil
	}
}

func mapString(fn func(string) string) func(*Call) (runtime.Value, error) {
	return func(call *Call) (runtime.Value, error) {
		return runtime.StringValue{Val: fn(strArg(call.Args[0]))}, nil
	}
}

func intToStr(call *Call) (runtime.Value, error) {
	return runtime.StringValue{Val: strconv.FormatInt(call.Args[0].(runtime.IntegerValue).Val, 10)}, nil
}

func parseInteger(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "$") {
		n, err := strconv.ParseInt(s[1:], 16, 64)
		return n, err == nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	return n, err == nil
}

func strToInt(call *Call) (runtime.Value, error) {
	s := strArg(call.Args[0])
	n, ok := parseInteger(s)
	if !ok {
		return nil, diag.NewRuntime(diag.KindConversion, call.Pos, "%q is not a valid integer value", s)
	}
	return runtime.IntegerValue{Val: types.Integer.Wrap(n)}, nil
}

// FormatFloat prints a real the way floattostr does: no trailing ".0".
func FormatFloat(f float64) string {
	if mag := math.Abs(f); mag != 0 && (mag >= 1e15 || mag < 1e-4) {
		return strconv.FormatFloat(f, 'E', -1, 64)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func floatToStr(call *Call) (runtime.Value, error) {
	return runtime.StringValue{Val: FormatFloat(realArg(call.Args[0]))}, nil
}
