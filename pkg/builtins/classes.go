package builtins

import (
	"sort"
	"strings"

	"pascal/interpreter-go/pkg/diag"
	"pascal/interpreter-go/pkg/runtime"
	"pascal/interpreter-go/pkg/types"
)

// StringList backs the TStringList host type.
type StringList struct {
	Items []string
}

// StringListType is the host-interop type exposed by the classes library.
var StringListType = &types.Host{TypeName: "TStringList", New: func() any { return &StringList{} }}

func classesLibrary() *Library {
	lib := NewLibrary("classes")
	lib.Types = []TypeDef{{Name: "TStringList", Type: StringListType}}
	self := param("self", StringListType)
	lib.Add(
		&Function{Name: "TStringList.Create", Result: StringListType, Invoke: func(*Call) (runtime.Value, error) {
			return StringListType.Initialize(), nil
		}},
		&Function{Name: "TStringList.Free", Params: params(self), Invoke: func(*Call) (runtime.Value, error) { return nil, nil }},
		&Function{Name: "TStringList.Add", Params: params(self, param("s", types.String)), Result: types.Integer, Invoke: listMethod(func(l *StringList, call *Call) (runtime.Value, error) {
			l.Items = append(l.Items, strArg(call.Args[1]))
			return runtime.IntegerValue{Val: int64(len(l.Items) - 1)}, nil
		})},
		&Function{Name: "TStringList.Count", Params: params(self), Result: types.Integer, Invoke: listMethod(func(l *StringList, call *Call) (runtime.Value, error) {
			return runtime.IntegerValue{Val: int64(len(l.Items))}, nil
		})},
		&Function{Name: "TStringList.Get", Params: params(self, param("index", types.Integer)), Result: types.String, Invoke: listMethod(func(l *StringList, call *Call) (runtime.Value, error) {
			i, err := listIndex(l, call, 1)
			if err != nil {
				return nil, err
			}
			return runtime.StringValue{Val: l.Items[i]}, nil
		})},
		&Function{Name: "TStringList.Put", Params: params(self, param("index", types.Integer), param("s", types.String)), Invoke: listMethod(func(l *StringList, call *Call) (runtime.Value, error) {
			i, err := listIndex(l, call, 1)
			if err != nil {
				return nil, err
			}
			l.Items[i] = strArg(call.Args[2])
			return nil, nil
		})},
		&Function{Name: "TStringList.Delete", Params: params(self, param("index", types.Integer)), Invoke: listMethod(func(l *StringList, call *Call) (runtime.Value, error) {
			i, err := listIndex(l, call, 1)
			if err != nil {
				return nil, err
			}
			l.Items = append(l.Items[:i], l.Items[i+1:]...)
			return nil, nil
		})},
		&Function{Name: "TStringList.IndexOf", Params: params(self, param("s", types.String)), Result: types.Integer, Invoke: listMethod(func(l *StringList, call *Call) (runtime.Value, error) {
			want := strArg(call.Args[1])
			for i, item := range l.Items {
				if strings.EqualFold(item, want) {
					return runtime.IntegerValue{Val: int64(i)}, nil
				}
			}
			return runtime.IntegerValue{Val: -1}, nil
		})},
		&Function{Name: "TStringList.Clear", Params: params(self), Invoke: listMethod(func(l *StringList, call *Call) (runtime.Value, error) {
			l.Items = nil
			return nil, nil
		})},
		&Function{Name: "TStringList.Sort", Params: params(self), Invoke: listMethod(func(l *StringList, call *Call) (runtime.Value, error) {
			sort.SliceStable(l.Items, func(i, j int) bool { return strings.ToLower(l.Items[i]) < strings.ToLower(l.Items[j]) })
			return nil, nil
		})},
		&Function{Name: "TStringList.Text", Params: params(self), Result: types.String, Invoke: listMethod(func(l *StringList, call *Call) (runtime.Value, error) {
			if len(l.Items) == 0 {
				return runtime.StringValue{}, nil
			}
			return runtime.StringValue{Val: strings.Join(l.Items, "\n") + "\n"}, nil
		})},
	)
	return lib
}

func listMethod(fn func(l *StringList, call *Call) (runtime.Value, error)) func(*Call) (runtime.Value, error) {
	return func(call *Call) (runtime.Value, error) {
		host, ok := call.Args[0].(*runtime.HostValue)
		if !ok {
			return nil, diag.NewRuntime(diag.KindConversion, call.Pos, "TStringList instance is nil")
		}
		l, ok := host.Ref.(*StringList)
		if !ok {
			return nil, diag.NewRuntime(diag.KindConversion, call.Pos, "%s is not a TStringList", host.TypeName)
		}
		return fn(l, call)
	}
}

func listIndex(l *StringList, call *Call, arg int) (int, error) {
	i := call.Args[arg].(runtime.IntegerValue).Val
	if i < 0 || i >= int64(len(l.Items)) {
		return 0, diag.NewRuntime(diag.KindIndexOutOfBounds, call.Pos, "list index %d out of bounds (0..%d)", i, len(l.Items)-1)
	}
	return int(i), nil
}
