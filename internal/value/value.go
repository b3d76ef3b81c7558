package value

import (
	"fmt"
	"strconv"
)

type ValueType int

const (
	VAL_NULL ValueType = iota
	VAL_BOOL
	VAL_INT
	VAL_DOUBLE
	VAL_STRING
	VAL_FUNCTION
)

func (t ValueType) String() string {
	switch t {
	case VAL_NULL:
		return "null"
	case VAL_BOOL:
		return "bool"
	case VAL_INT:
		return "int"
	case VAL_DOUBLE:
		return "double"
	case VAL_STRING:
		return "string"
	case VAL_FUNCTION:
		return "function"
	default:
		return "unknown"
	}
}

// FunctionRef is a handle to a compiled script function. ChunkIndex points
// into the owning program's chunk table; Locals is the slot high-water mark
// so the VM can size the frame's local window up front.
type FunctionRef struct {
	Arity      int    `json:"arity"`
	ChunkIndex int    `json:"chunk"`
	Locals     int    `json:"locals"`
	Name       string `json:"name"`
}

// Value is the tagged runtime value. Strings are held by value: storing a
// Value copies the string header, which gives the copy-on-store semantics
// the script language promises.
type Value struct {
	Type     ValueType
	AsBool   bool
	AsInt    int64
	AsDouble float64
	Str      string
	Fn       *FunctionRef
}

func NewNull() Value {
	return Value{Type: VAL_NULL}
}

func NewBool(v bool) Value {
	return Value{Type: VAL_BOOL, AsBool: v}
}

func NewInt(v int64) Value {
	return Value{Type: VAL_INT, AsInt: v}
}

func NewDouble(v float64) Value {
	return Value{Type: VAL_DOUBLE, AsDouble: v}
}

func NewString(v string) Value {
	return Value{Type: VAL_STRING, Str: v}
}

func NewFunction(fn *FunctionRef) Value {
	return Value{Type: VAL_FUNCTION, Fn: fn}
}

// String is the canonical stringification used by string concatenation and
// by embedder utilities. Doubles render in their shortest round-trippable
// form.
func (v Value) String() string {
	switch v.Type {
	case VAL_NULL:
		return "null"
	case VAL_BOOL:
		return strconv.FormatBool(v.AsBool)
	case VAL_INT:
		return strconv.FormatInt(v.AsInt, 10)
	case VAL_DOUBLE:
		return strconv.FormatFloat(v.AsDouble, 'g', -1, 64)
	case VAL_STRING:
		return v.Str
	case VAL_FUNCTION:
		return fmt.Sprintf("<fn %s>", v.Fn.Name)
	default:
		return "unknown"
	}
}

// Equal reports value equality: equal tags with equal payloads.
// Cross-type comparison is false, never an error. Doubles compare with
// Go's ==, so NaN != NaN and -0.0 == 0.0.
func Equal(a, b Value) bool {
	if a.Type != b.Type {
		return false
	}
	switch a.Type {
	case VAL_NULL:
		return true
	case VAL_BOOL:
		return a.AsBool == b.AsBool
	case VAL_INT:
		return a.AsInt == b.AsInt
	case VAL_DOUBLE:
		return a.AsDouble == b.AsDouble
	case VAL_STRING:
		return a.Str == b.Str
	case VAL_FUNCTION:
		return *a.Fn == *b.Fn
	default:
		return false
	}
}

// IsFalsy reports whether a value is false in a condition position:
// null, false, 0, 0.0 and "". Function references are always truthy.
func IsFalsy(v Value) bool {
	switch v.Type {
	case VAL_NULL:
		return true
	case VAL_BOOL:
		return !v.AsBool
	case VAL_INT:
		return v.AsInt == 0
	case VAL_DOUBLE:
		return v.AsDouble == 0
	case VAL_STRING:
		return v.Str == ""
	default:
		return false
	}
}
