package chunk

import (
	"encoding/json"
	"fmt"
	"strconv"

	"swiftlet-vm/internal/value"
)

type ConstKind int

const (
	CONST_INT ConstKind = iota
	CONST_DOUBLE
	CONST_BOOL
	CONST_STRING
	CONST_NULL
	CONST_NAME
)

func (k ConstKind) String() string {
	switch k {
	case CONST_INT:
		return "int"
	case CONST_DOUBLE:
		return "double"
	case CONST_BOOL:
		return "bool"
	case CONST_STRING:
		return "string"
	case CONST_NULL:
		return "null"
	case CONST_NAME:
		return "name"
	default:
		return fmt.Sprintf("const(%d)", int(k))
	}
}

// Constant is a compile-time literal in a chunk's constant pool. Name is
// kept distinct from String so the VM can assert the constant kind at
// native-call dispatch.
type Constant struct {
	Kind   ConstKind
	Int    int64
	Double float64
	Bool   bool
	Str    string // payload for CONST_STRING and CONST_NAME
}

func IntConst(v int64) Constant {
	return Constant{Kind: CONST_INT, Int: v}
}

func DoubleConst(v float64) Constant {
	return Constant{Kind: CONST_DOUBLE, Double: v}
}

func BoolConst(v bool) Constant {
	return Constant{Kind: CONST_BOOL, Bool: v}
}

func StringConst(v string) Constant {
	return Constant{Kind: CONST_STRING, Str: v}
}

func NullConst() Constant {
	return Constant{Kind: CONST_NULL}
}

func NameConst(v string) Constant {
	return Constant{Kind: CONST_NAME, Str: v}
}

// ToValue converts a constant to its runtime value. Name constants coerce
// to plain strings.
func (c Constant) ToValue() value.Value {
	switch c.Kind {
	case CONST_INT:
		return value.NewInt(c.Int)
	case CONST_DOUBLE:
		return value.NewDouble(c.Double)
	case CONST_BOOL:
		return value.NewBool(c.Bool)
	case CONST_STRING, CONST_NAME:
		return value.NewString(c.Str)
	default:
		return value.NewNull()
	}
}

func (c Constant) String() string {
	switch c.Kind {
	case CONST_INT:
		return strconv.FormatInt(c.Int, 10)
	case CONST_DOUBLE:
		return strconv.FormatFloat(c.Double, 'g', -1, 64)
	case CONST_BOOL:
		return strconv.FormatBool(c.Bool)
	case CONST_STRING:
		return strconv.Quote(c.Str)
	case CONST_NULL:
		return "null"
	case CONST_NAME:
		return "@" + c.Str
	default:
		return "?"
	}
}

// constWire is the serialized form: {"kind": ..., "value": ...} with keys
// already in canonical (lexicographic) order.
type constWire struct {
	Kind  string          `json:"kind"`
	Value json.RawMessage `json:"value"`
}

func (c Constant) MarshalJSON() ([]byte, error) {
	var raw json.RawMessage
	switch c.Kind {
	case CONST_INT:
		raw = json.RawMessage(strconv.AppendInt(nil, c.Int, 10))
	case CONST_DOUBLE:
		b, err := json.Marshal(c.Double)
		if err != nil {
			return nil, err
		}
		raw = b
	case CONST_BOOL:
		raw = json.RawMessage(strconv.AppendBool(nil, c.Bool))
	case CONST_STRING, CONST_NAME:
		b, err := json.Marshal(c.Str)
		if err != nil {
			return nil, err
		}
		raw = b
	case CONST_NULL:
		raw = json.RawMessage("null")
	default:
		return nil, fmt.Errorf("chunk: cannot marshal constant kind %d", c.Kind)
	}
	return json.Marshal(constWire{Kind: c.Kind.String(), Value: raw})
}

func (c *Constant) UnmarshalJSON(data []byte) error {
	var w constWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch w.Kind {
	case "int":
		n, err := strconv.ParseInt(string(w.Value), 10, 64)
		if err != nil {
			return fmt.Errorf("chunk: bad int constant %q: %w", w.Value, err)
		}
		*c = IntConst(n)
	case "double":
		f, err := strconv.ParseFloat(string(w.Value), 64)
		if err != nil {
			return fmt.Errorf("chunk: bad double constant %q: %w", w.Value, err)
		}
		*c = DoubleConst(f)
	case "bool":
		var b bool
		if err := json.Unmarshal(w.Value, &b); err != nil {
			return fmt.Errorf("chunk: bad bool constant: %w", err)
		}
		*c = BoolConst(b)
	case "string", "name":
		var s string
		if err := json.Unmarshal(w.Value, &s); err != nil {
			return fmt.Errorf("chunk: bad %s constant: %w", w.Kind, err)
		}
		if w.Kind == "name" {
			*c = NameConst(s)
		} else {
			*c = StringConst(s)
		}
	case "null":
		*c = NullConst()
	default:
		return fmt.Errorf("chunk: unknown constant kind %q", w.Kind)
	}
	return nil
}
