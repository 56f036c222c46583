package types

import (
	"fmt"
	"strings"

	"pascal/interpreter-go/pkg/runtime"
)

// StorageClass groups declared types by their runtime representation.
type StorageClass int

const (
	ClassNone StorageClass = iota
	ClassBoolean
	ClassChar
	ClassString
	ClassInteger
	ClassReal
	ClassEnum
	ClassArray
	ClassRecord
	ClassHost
	ClassAny
)

func (c StorageClass) String() string {
	switch c {
	case ClassBoolean:
		return "boolean"
	case ClassChar:
		return "char"
	case ClassString:
		return "string"
	case ClassInteger:
		return "integer"
	case ClassReal:
		return "real"
	case ClassEnum:
		return "enum"
	case ClassArray:
		return "array"
	case ClassRecord:
		return "record"
	case ClassHost:
		return "host"
	case ClassAny:
		return "any"
	default:
		return "none"
	}
}

// DeclaredType is an immutable type descriptor shared by every declaration
// of that type.
type DeclaredType interface {
	Name() string
	StorageClass() StorageClass
	Initialize() runtime.Value
	Equals(other DeclaredType) bool
}

//-----------------------------------------------------------------------------
// Primitives
//-----------------------------------------------------------------------------

// Basic is a primitive type. Integer kinds carry their width so arithmetic
// can wrap like the native type; rank orders implicit widening.
type Basic struct {
	name     string
	class    StorageClass
	rank     int
	bits     uint
	unsigned bool
}

func (b *Basic) Name() string               { return b.name }
func (b *Basic) StorageClass() StorageClass { return b.class }
func (b *Basic) String() string             { return b.name }

func (b *Basic) Equals(other DeclaredType) bool {
	o, ok := other.(*Basic)
	return ok && o == b
}

func (b *Basic) Initialize() runtime.Value {
	switch b.class {
	case ClassBoolean:
		return runtime.BoolValue{}
	case ClassChar:
		return runtime.CharValue{}
	case ClassString:
		return runtime.StringValue{}
	case ClassInteger:
		return runtime.IntegerValue{}
	case ClassReal:
		return runtime.RealValue{}
	default:
		return runtime.NilValue{}
	}
}

// Wrap truncates v to the width of an integer kind.
func (b *Basic) Wrap(v int64) int64 {
	if b.class != ClassInteger || b.bits == 0 || b.bits >= 64 {
		return v
	}
	shift := 64 - b.bits
	if b.unsigned {
		return int64(uint64(v) << shift >> shift)
	}
	return v << shift >> shift
}

// Unsigned reinterprets v as an unsigned number of the kind's width.
func (b *Basic) Unsigned(v int64) int64 {
	if b.class != ClassInteger || b.bits == 0 || b.bits >= 64 {
		return v
	}
	return int64(uint64(v) & (1<<b.bits - 1))
}

// Bounds returns the value range of an integer kind.
func (b *Basic) Bounds() (int64, int64) {
	if b.bits >= 64 || b.bits == 0 {
		return -1 << 63, 1<<63 - 1
	}
	if b.unsigned {
		return 0, int64(1)<<b.bits - 1
	}
	return -(int64(1) << (b.bits - 1)), int64(1)<<(b.bits-1) - 1
}

var (
	Boolean  = &Basic{name: "Boolean", class: ClassBoolean}
	Char     = &Basic{name: "Char", class: ClassChar, rank: 0}
	String   = &Basic{name: "String", class: ClassString, rank: 1}
	Byte     = &Basic{name: "Byte", class: ClassInteger, rank: 1, bits: 8, unsigned: true}
	ShortInt = &Basic{name: "ShortInt", class: ClassInteger, rank: 1, bits: 8}
	Word     = &Basic{name: "Word", class: ClassInteger, rank: 2, bits: 16, unsigned: true}
	SmallInt = &Basic{name: "SmallInt", class: ClassInteger, rank: 2, bits: 16}
	Integer  = &Basic{name: "Integer", class: ClassInteger, rank: 3, bits: 32}
	Cardinal = &Basic{name: "Cardinal", class: ClassInteger, rank: 3, bits: 32, unsigned: true}
	Int64    = &Basic{name: "Int64", class: ClassInteger, rank: 4, bits: 64}
	Real     = &Basic{name: "Real", class: ClassReal, rank: 5}
)

// Any is accepted by builtin parameters that check their arguments at runtime.
var Any DeclaredType = anyType{}

type anyType struct{}

func (anyType) Name() string                   { return "Any" }
func (anyType) StorageClass() StorageClass     { return ClassAny }
func (anyType) Initialize() runtime.Value      { return runtime.NilValue{} }
func (anyType) Equals(other DeclaredType) bool { return other == Any }

var builtinNames = map[string]DeclaredType{
	"boolean":    Boolean,
	"char":       Char,
	"widechar":   Char,
	"ansichar":   Char,
	"string":     String,
	"ansistring": String,
	"shortstring": String,
	"byte":       Byte,
	"shortint":   ShortInt,
	"word":       Word,
	"smallint":   SmallInt,
	"integer":    Integer,
	"longint":    Integer,
	"cardinal":   Cardinal,
	"longword":   Cardinal,
	"int64":      Int64,
	"real":       Real,
	"double":     Real,
	"single":     Real,
	"extended":   Real,
}

// ByName resolves a predeclared type identifier.
func ByName(name string) (DeclaredType, bool) {
	t, ok := builtinNames[strings.ToLower(name)]
	return t, ok
}

// BuiltinNames lists the predeclared type identifiers.
func BuiltinNames() []string {
	out := make([]string, 0, len(builtinNames))
	for name := range builtinNames {
		out = append(out, name)
	}
	return out
}

// Precedence returns the storage class precedence used for implicit
// numeric widening; -1 for types outside the numeric order.
func Precedence(t DeclaredType) int {
	if b, ok := Underlying(t).(*Basic); ok && (b.class == ClassInteger || b.class == ClassReal) {
		return b.rank
	}
	return -1
}

//-----------------------------------------------------------------------------
// Ordinal derived types
//-----------------------------------------------------------------------------

// Subrange restricts an ordinal base type to Low..High.
type Subrange struct {
	Base DeclaredType
	Low  int64
	High int64
}

func (s *Subrange) Name() string {
	return fmt.Sprintf("%s..%s", formatOrdinal(s.Base, s.Low), formatOrdinal(s.Base, s.High))
}

func (s *Subrange) StorageClass() StorageClass { return s.Base.StorageClass() }

func (s *Subrange) Initialize() runtime.Value {
	return ordinalValue(s.Base, s.Low)
}

func (s *Subrange) Equals(other DeclaredType) bool {
	o, ok := other.(*Subrange)
	return ok && o.Low == s.Low && o.High == s.High && o.Base.Equals(s.Base)
}

// Contains reports whether ordinal v lies inside the subrange.
func (s *Subrange) Contains(v int64) bool {
	return v >= s.Low && v <= s.High
}

// Enum is an enumerated type.
type Enum struct {
	TypeName string
	Members  []string
}

func (e *Enum) Name() string {
	if e.TypeName != "" {
		return e.TypeName
	}
	return "(" + strings.Join(e.Members, ", ") + ")"
}

func (e *Enum) StorageClass() StorageClass { return ClassEnum }

func (e *Enum) Initialize() runtime.Value {
	return runtime.EnumValue{Ordinal: 0, Members: e.Members}
}

func (e *Enum) Equals(other DeclaredType) bool {
	o, ok := other.(*Enum)
	return ok && o == e
}

// Index returns the ordinal of a member name.
func (e *Enum) Index(name string) (int, bool) {
	for i, m := range e.Members {
		if strings.EqualFold(m, name) {
			return i, true
		}
	}
	return 0, false
}

//-----------------------------------------------------------------------------
// Composites
//-----------------------------------------------------------------------------

// Array is either static (Low..High over an ordinal Index type) or dynamic.
type Array struct {
	Element DeclaredType
	Index   DeclaredType
	Low     int64
	High    int64
	Dynamic bool
}

func (a *Array) Name() string {
	if a.Dynamic {
		return "array of " + a.Element.Name()
	}
	return fmt.Sprintf("array[%s..%s] of %s", formatOrdinal(a.Index, a.Low), formatOrdinal(a.Index, a.High), a.Element.Name())
}

func (a *Array) StorageClass() StorageClass { return ClassArray }

func (a *Array) Initialize() runtime.Value {
	if a.Dynamic {
		return &runtime.ArrayValue{Low: 0}
	}
	n := a.High - a.Low + 1
	if n < 0 {
		n = 0
	}
	elems := make([]runtime.Value, n)
	for i := range elems {
		elems[i] = a.Element.Initialize()
	}
	return &runtime.ArrayValue{Low: a.Low, Elements: elems}
}

func (a *Array) Equals(other DeclaredType) bool {
	o, ok := other.(*Array)
	if !ok || o.Dynamic != a.Dynamic || !o.Element.Equals(a.Element) {
		return false
	}
	return a.Dynamic || (o.Low == a.Low && o.High == a.High)
}

// Field is a named record member.
type Field struct {
	Name string
	Type DeclaredType
}

// Record is a structured type with ordered fields.
type Record struct {
	TypeName string
	Fields   []Field
}

func (r *Record) Name() string {
	if r.TypeName != "" {
		return r.TypeName
	}
	parts := make([]string, len(r.Fields))
	for i, f := range r.Fields {
		parts[i] = f.Name + ": " + f.Type.Name()
	}
	return "record " + strings.Join(parts, "; ") + " end"
}

func (r *Record) StorageClass() StorageClass { return ClassRecord }

func (r *Record) Initialize() runtime.Value {
	names := make([]string, len(r.Fields))
	fields := make([]runtime.Value, len(r.Fields))
	for i, f := range r.Fields {
		names[i] = f.Name
		fields[i] = f.Type.Initialize()
	}
	return &runtime.RecordValue{Names: names, Fields: fields}
}

func (r *Record) Equals(other DeclaredType) bool {
	o, ok := other.(*Record)
	if !ok || len(o.Fields) != len(r.Fields) {
		return false
	}
	if o == r {
		return true
	}
	for i := range r.Fields {
		if !strings.EqualFold(r.Fields[i].Name, o.Fields[i].Name) || !r.Fields[i].Type.Equals(o.Fields[i].Type) {
			return false
		}
	}
	return true
}

// FieldIndex locates a field by case-insensitive name.
func (r *Record) FieldIndex(name string) (int, bool) {
	for i, f := range r.Fields {
		if strings.EqualFold(f.Name, name) {
			return i, true
		}
	}
	return 0, false
}

// Host is a host-interop type backed by an opaque Go object.
type Host struct {
	TypeName string
	New      func() any
}

func (h *Host) Name() string               { return h.TypeName }
func (h *Host) StorageClass() StorageClass { return ClassHost }

func (h *Host) Initialize() runtime.Value {
	if h.New == nil {
		return runtime.NilValue{}
	}
	return &runtime.HostValue{TypeName: h.TypeName, Ref: h.New()}
}

func (h *Host) Equals(other DeclaredType) bool {
	o, ok := other.(*Host)
	return ok && strings.EqualFold(o.TypeName, h.TypeName)
}

//-----------------------------------------------------------------------------
// Helpers
//-----------------------------------------------------------------------------

// Underlying strips subranges down to their ordinal base.
func Underlying(t DeclaredType) DeclaredType {
	for {
		s, ok := t.(*Subrange)
		if !ok {
			return t
		}
		t = s.Base
	}
}

// IsOrdinal reports whether t has ordinal values.
func IsOrdinal(t DeclaredType) bool {
	switch Underlying(t).StorageClass() {
	case ClassInteger, ClassChar, ClassBoolean, ClassEnum:
		return true
	default:
		return false
	}
}

// OrdinalBounds returns the smallest and largest ordinal of t.
func OrdinalBounds(t DeclaredType) (int64, int64, bool) {
	switch v := t.(type) {
	case *Subrange:
		return v.Low, v.High, true
	case *Enum:
		return 0, int64(len(v.Members)) - 1, true
	case *Basic:
		switch v.class {
		case ClassBoolean:
			return 0, 1, true
		case ClassChar:
			return 0, 0xFFFF, true
		case ClassInteger:
			low, high := v.Bounds()
			return low, high, true
		}
	}
	return 0, 0, false
}

// ElementType derives the type produced by indexing t. Strings index to Char.
func ElementType(t DeclaredType) (DeclaredType, bool) {
	switch v := Underlying(t).(type) {
	case *Array:
		return v.Element, true
	case *Basic:
		if v.class == ClassString {
			return Char, true
		}
	}
	return nil, false
}

// FieldType derives the type of a record field.
func FieldType(t DeclaredType, name string) (DeclaredType, int, bool) {
	r, ok := t.(*Record)
	if !ok {
		return nil, 0, false
	}
	idx, ok := r.FieldIndex(name)
	if !ok {
		return nil, 0, false
	}
	return r.Fields[idx].Type, idx, true
}

// OrdinalValue builds the runtime value of ordinal v in type t.
func OrdinalValue(t DeclaredType, v int64) runtime.Value {
	return ordinalValue(t, v)
}

func ordinalValue(t DeclaredType, v int64) runtime.Value {
	switch base := Underlying(t).(type) {
	case *Enum:
		return runtime.EnumValue{Ordinal: v, Members: base.Members}
	case *Basic:
		switch base.class {
		case ClassChar:
			return runtime.CharValue{Val: rune(v)}
		case ClassBoolean:
			return runtime.BoolValue{Val: v != 0}
		}
	}
	return runtime.IntegerValue{Val: v}
}

func formatOrdinal(t DeclaredType, v int64) string {
	switch base := Underlying(t).(type) {
	case *Enum:
		if v >= 0 && int(v) < len(base.Members) {
			return base.Members[v]
		}
	case *Basic:
		switch base.class {
		case ClassChar:
			return fmt.Sprintf("'%c'", rune(v))
		case ClassBoolean:
			if v != 0 {
				return "True"
			}
			return "False"
		}
	}
	return fmt.Sprintf("%d", v)
}
