package builtins

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/fatih/color"

	"pascal/interpreter-go/pkg/diag"
	"pascal/interpreter-go/pkg/runtime"
	"pascal/interpreter-go/pkg/types"
)

func mathLibrary() *Library {
	lib := NewLibrary("math")
	lib.Add(
		&Function{Name: "power", Params: params(param("base", types.Real), param("exponent", types.Real)), Result: types.Real, Invoke: power},
		&Function{Name: "max", Params: params(param("a", types.Int64), param("b", types.Int64)), Result: types.Int64, ResultOf: commonResult, Invoke: pick(false)},
		&Function{Name: "max", Params: params(param("a", types.Real), param("b", types.Real)), Result: types.Real, Invoke: pick(false)},
		&Function{Name: "min", Params: params(param("a", types.Int64), param("b", types.Int64)), Result: types.Int64, ResultOf: commonResult, Invoke: pick(true)},
		&Function{Name: "min", Params: params(param("a", types.Real), param("b", types.Real)), Result: types.Real, Invoke: pick(true)},
		&Function{Name: "floor", Params: params(param("value", types.Real)), Result: types.Integer, Invoke: toInteger("floor", math.Floor)},
		&Function{Name: "ceil", Params: params(param("value", types.Real)), Result: types.Integer, Invoke: toInteger("ceil", math.Ceil)},
		&Function{Name: "tan", Params: params(param("value", types.Real)), Result: types.Real, Invoke: realFunc("tan", math.Tan, nil)},
		&Function{Name: "arcsin", Params: params(param("value", types.Real)), Result: types.Real, Invoke: realFunc("arcsin", math.Asin, unitInterval)},
		&Function{Name: "arccos", Params: params(param("value", types.Real)), Result: types.Real, Invoke: realFunc("arccos", math.Acos, unitInterval)},
		&Function{Name: "log10", Params: params(param("value", types.Real)), Result: types.Real, Invoke: realFunc("log10", math.Log10, positive)},
		&Function{Name: "log2", Params: params(param("value", types.Real)), Result: types.Real, Invoke: realFunc("log2", math.Log2, positive)},
		&Function{Name: "hypot", Params: params(param("x", types.Real), param("y", types.Real)), Result: types.Real, Invoke: hypot},
	)
	return lib
}

// commonResult keeps max/min on integers at the width of their operands.
func commonResult(args []types.DeclaredType) types.DeclaredType {
	if len(args) == 2 {
		if c, ok := types.Common(args[0], args[1]); ok {
			return c
		}
	}
	return types.Int64
}

func unitInterval(x float64) bool { return x >= -1 && x <= 1 }
func positive(x float64) bool     { return x > 0 }

func power(call *Call) (runtime.Value, error) {
	base, exp := realArg(call.Args[0]), realArg(call.Args[1])
	out := math.Pow(base, exp)
	if math.IsNaN(out) {
		return nil, diag.NewArithmetic(call.Pos, fmt.Sprintf("invalid operands to power: %s, %s", runtime.FormatReal(base), runtime.FormatReal(exp)))
	}
	return runtime.RealValue{Val: out}, nil
}

func hypot(call *Call) (runtime.Value, error) {
	return runtime.RealValue{Val: math.Hypot(realArg(call.Args[0]), realArg(call.Args[1]))}, nil
}

func pick(smaller bool) func(*Call) (runtime.Value, error) {
	return func(call *Call) (runtime.Value, error) {
		a, b := call.Args[0], call.Args[1]
		if x, ok := a.(runtime.IntegerValue); ok {
			y := b.(runtime.IntegerValue)
			if (x.Val < y.Val) == smaller {
				return x, nil
			}
			return y, nil
		}
		x, y := realArg(a), realArg(b)
		if (x < y) == smaller {
			return runtime.RealValue{Val: x}, nil
		}
		return runtime.RealValue{Val: y}, nil
	}
}

func strutilsLibrary() *Library {
	lib := NewLibrary("strutils")
	lib.Add(
		&Function{Name: "reversestring", Params: params(param("s", types.String)), Result: types.String, Invoke: reverseString},
		&Function{Name: "dupestring", Params: params(param("s", types.String), param("count", types.Integer)), Result: types.String, Invoke: dupeString},
		&Function{Name: "leftstr", Params: params(param("s", types.String), param("count", types.Integer)), Result: types.String, Invoke: sideString(true)},
		&Function{Name: "rightstr", Params: params(param("s", types.String), param("count", types.Integer)), Result: types.String, Invoke: sideString(false)},
		&Function{Name: "startsstr", Params: params(param("sub", types.String), param("s", types.String)), Result: types.Boolean, Invoke: affix(strings.HasPrefix)},
		&Function{Name: "endsstr", Params: params(param("sub", types.String), param("s", types.String)), Result: types.Boolean, Invoke: affix(strings.HasSuffix)},
	)
	return lib
}

func reverseString(call *Call) (runtime.Value, error) {
	rs := []rune(strArg(call.Args[0]))
	for i, j := 0, len(rs)-1; i < j; i, j = i+1, j-1 {
		rs[i], rs[j] = rs[j], rs[i]
	}
	return runtime.StringValue{Val: string(rs)}, nil
}

func dupeString(call *Call) (runtime.Value, error) {
	n := call.Args[1].(runtime.IntegerValue).Val
	if n <= 0 {
		return runtime.StringValue{}, nil
	}
	return runtime.StringValue{Val: strings.Repeat(strArg(call.Args[0]), int(n))}, nil
}

func sideString(left bool) func(*Call) (runtime.Value, error) {
	return func(call *Call) (runtime.Value, error) {
		rs := []rune(strArg(call.Args[0]))
		n := call.Args[1].(runtime.IntegerValue).Val
		if n < 0 {
			n = 0
		}
		if n > int64(len(rs)) {
			n = int64(len(rs))
		}
		if left {
			return runtime.StringValue{Val: string(rs[:n])}, nil
		}
		return runtime.StringValue{Val: string(rs[int64(len(rs))-n:])}, nil
	}
}

func affix(test func(s, affix string) bool) func(*Call) (runtime.Value, error) {
	return func(call *Call) (runtime.Value, error) {
		return runtime.BoolValue{Val: test(strArg(call.Args[1]), strArg(call.Args[0]))}, nil
	}
}

func sysutilsLibrary() *Library {
	lib := NewLibrary("sysutils")
	lib.Add(
		&Function{Name: "trim", Params: params(param("s", types.String)), Result: types.String, Invoke: mapString(strings.TrimSpace)},
		&Function{Name: "trimleft", Params: params(param("s", types.String)), Result: types.String, Invoke: mapString(func(s string) string { return strings.TrimLeftFunc(s, unicode.IsSpace) })},
		&Function{Name: "trimright", Params: params(param("s", types.String)), Result: types.String, Invoke: mapString(func(s string) string { return strings.TrimRightFunc(s, unicode.IsSpace) })},
		&Function{Name: "uppercase", Params: params(param("s", types.String)), Result: types.String, Invoke: mapString(strings.ToUpper)},
		&Function{Name: "strtointdef", Params: params(param("s", types.String), param("default", types.Integer)), Result: types.Integer, Invoke: strToIntDef},
		&Function{Name: "strtofloat", Params: params(param("s", types.String)), Result: types.Real, Invoke: strToFloat},
		&Function{Name: "booltostr", Params: params(param("value", types.Boolean)), Result: types.String, Invoke: boolToStr},
		&Function{Name: "sleep", Params: params(param("ms", types.Int64)), Invoke: sleep},
	)
	return lib
}

func strToIntDef(call *Call) (runtime.Value, error) {
	if n, ok := parseInteger(strArg(call.Args[0])); ok {
		return runtime.IntegerValue{Val: types.Integer.Wrap(n)}, nil
	}
	return call.Args[1], nil
}

func strToFloat(call *Call) (runtime.Value, error) {
	s := strArg(call.Args[0])
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil, diag.NewRuntime(diag.KindConversion, call.Pos, "%q is not a valid floating point value", s)
	}
	return runtime.RealValue{Val: f}, nil
}

func boolToStr(call *Call) (runtime.Value, error) {
	if call.Args[0].(runtime.BoolValue).Val {
		return runtime.StringValue{Val: "True"}, nil
	}
	return runtime.StringValue{Val: "False"}, nil
}

func sleep(call *Call) (runtime.Value, error) {
	ms := call.Args[0].(runtime.IntegerValue).Val
	if call.Env.Sleep == nil || ms <= 0 {
		return nil, nil
	}
	return nil, call.Env.Sleep(ms)
}

// crt

var crtColors = []string{
	"black", "blue", "green", "cyan", "red", "magenta", "brown", "lightgray",
	"darkgray", "lightblue", "lightgreen", "lightcyan", "lightred", "lightmagenta", "yellow", "white",
}

// ansiForeground maps the 16 crt colors onto terminal attributes.
var ansiForeground = []color.Attribute{
	color.FgBlack, color.FgBlue, color.FgGreen, color.FgCyan, color.FgRed, color.FgMagenta, color.FgYellow, color.FgWhite,
	color.FgHiBlack, color.FgHiBlue, color.FgHiGreen, color.FgHiCyan, color.FgHiRed, color.FgHiMagenta, color.FgHiYellow, color.FgHiWhite,
}

func crtLibrary() *Library {
	lib := NewLibrary("crt")
	for i, name := range crtColors {
		lib.Consts = append(lib.Consts, Const{Name: name, Type: types.Byte, Value: runtime.IntegerValue{Val: int64(i)}})
	}
	lib.Add(
		&Function{Name: "clrscr", Invoke: escape(func(*Call) string { return "\x1b[2J\x1b[H" })},
		&Function{Name: "clreol", Invoke: escape(func(*Call) string { return "\x1b[K" })},
		&Function{Name: "gotoxy", Params: params(param("x", types.Integer), param("y", types.Integer)), Invoke: escape(func(call *Call) string {
			return fmt.Sprintf("\x1b[%d;%dH", call.Args[1].(runtime.IntegerValue).Val, call.Args[0].(runtime.IntegerValue).Val)
		})},
		&Function{Name: "textcolor", Params: params(param("color", types.Integer)), Invoke: escape(func(call *Call) string {
			n := call.Args[0].(runtime.IntegerValue).Val
			if n < 0 || n >= int64(len(ansiForeground)) {
				return ""
			}
			return fmt.Sprintf("\x1b[%dm", ansiForeground[n])
		})},
		&Function{Name: "normvideo", Invoke: escape(func(*Call) string { return fmt.Sprintf("\x1b[%dm", color.Reset) })},
		&Function{Name: "delay", Params: params(param("ms", types.Int64)), Invoke: sleep},
		&Function{Name: "readkey", Result: types.Char, Invoke: readKey},
	)
	return lib
}

// escape writes a terminal control sequence unless colors are disabled.
func escape(seq func(*Call) string) func(*Call) (runtime.Value, error) {
	return func(call *Call) (runtime.Value, error) {
		if color.NoColor {
			return nil, nil
		}
		if _, err := io.WriteString(call.Env.Out, seq(call)); err != nil {
			return nil, diag.NewRuntime(diag.KindIO, call.Pos, "write failed: %v", err)
		}
		return nil, nil
	}
}

func readKey(call *Call) (runtime.Value, error) {
	r, _, err := call.Env.In.ReadRune()
	if err != nil {
		return nil, diag.NewRuntime(diag.KindIO, call.Pos, "unexpected end of input")
	}
	return runtime.CharValue{Val: r}, nil
}
