package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ValueKind enumerates the shapes a Value can take.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindString
	KindNumber
	KindBool
	KindList
	KindMap
)

// Value is a typed variant used for step parameters, test data and free-form
// metadata. It replaces open-ended `any` maps so that serialization stays
// well-defined while still allowing arbitrary shapes.
type Value struct {
	kind ValueKind
	str  string
	num  float64
	b    bool
	list []Value
	m    map[string]Value
}

func String(s string) Value {
	return Value{kind: KindString, str: s}
}

func Number(n float64) Value {
	return Value{kind: KindNumber, num: n}
}

func Int(n int) Value {
	return Value{kind: KindNumber, num: float64(n)}
}

func Bool(b bool) Value {
	return Value{kind: KindBool, b: b}
}

func List(vs ...Value) Value {
	return Value{kind: KindList, list: vs}
}

func Map(m map[string]Value) Value {
	return Value{kind: KindMap, m: m}
}

func (v Value) Kind() ValueKind {
	return v.kind
}

func (v Value) IsNull() bool {
	return v.kind == KindNull
}

// Str returns the string content. Only meaningful for KindString.
func (v Value) Str() string {
	return v.str
}

func (v Value) Float64() float64 {
	return v.num
}

func (v Value) Boolean() bool {
	return v.b
}

func (v Value) Items() []Value {
	return v.list
}

func (v Value) Fields() map[string]Value {
	return v.m
}

// Text renders any scalar value as a string. Lists and maps are rendered
// as JSON.
func (v Value) Text() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindNull:
		return ""
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}

func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}

	switch v.kind {
	case KindNull:
		return true
	case KindString:
		return v.str == other.str
	case KindNumber:
		return v.num == other.num
	case KindBool:
		return v.b == other.b
	case KindList:
		if len(v.list) != len(other.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(other.list[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.m) != len(other.m) {
			return false
		}
		for k, val := range v.m {
			o, ok := other.m[k]
			if !ok || !val.Equal(o) {
				return false
			}
		}
		return true
	}

	return false
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		return json.Marshal(v.num)
	case KindBool:
		return json.Marshal(v.b)
	case KindList:
		if v.list == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.list)
	case KindMap:
		if v.m == nil {
			return []byte("{}"), nil
		}
		return json.Marshal(v.m)
	}

	return nil, fmt.Errorf("unknown value kind %d", v.kind)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any

	d := json.NewDecoder(bytes.NewReader(data))
	d.UseNumber()

	if err := d.Decode(&raw); err != nil {
		return err
	}

	val, err := FromAny(raw)
	if err != nil {
		return err
	}

	*v = val

	return nil
}

// FromAny converts a decoded JSON value into a Value.
func FromAny(raw any) (Value, error) {
	switch t := raw.(type) {
	case nil:
		return Value{}, nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case float64:
		return Number(t), nil
	case int:
		return Int(t), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("parsing number %q: %w", t.String(), err)
		}
		return Number(f), nil
	case []any:
		list := make([]Value, 0, len(t))
		for _, item := range t {
			v, err := FromAny(item)
			if err != nil {
				return Value{}, err
			}
			list = append(list, v)
		}
		return List(list...), nil
	case map[string]any:
		m := make(map[string]Value, len(t))
		for k, item := range t {
			v, err := FromAny(item)
			if err != nil {
				return Value{}, err
			}
			m[k] = v
		}
		return Map(m), nil
	}

	return Value{}, fmt.Errorf("unsupported value type %T", raw)
}
