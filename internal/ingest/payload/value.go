// Package payload holds fetched source payloads and resolves field locations in them.
//
// JSON payloads are decoded into Value, a tagged union. HTML payloads are wrapped
// in Document. Both implement Resolvable so extraction code can walk either one.
package payload

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// Kind is the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindList
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return "unknown"
	}
}

// Value is a decoded JSON value. The zero Value is null.
type Value struct {
	kind Kind
	b    bool
	s    string // string contents or the literal number text
	list []Value
	m    map[string]Value
}

// Null returns the null value.
func Null() Value { return Value{} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number wraps a number given as its literal text.
func Number(text string) Value { return Value{kind: KindNumber, s: text} }

// Int wraps an integer.
func Int(n int64) Value { return Number(strconv.FormatInt(n, 10)) }

// String wraps a string.
func String(s string) Value { return Value{kind: KindString, s: s} }

// List wraps a list of values.
func List(items ...Value) Value { return Value{kind: KindList, list: items} }

// Map wraps an object.
func Map(m map[string]Value) Value {
	if m == nil {
		m = map[string]Value{}
	}

	return Value{kind: KindMap, m: m}
}

// Kind returns the variant of v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Len returns the number of list elements or map entries.
func (v Value) Len() int {
	switch v.kind {
	case KindList:
		return len(v.list)
	case KindMap:
		return len(v.m)
	default:
		return 0
	}
}

// Get returns the map entry for key.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != KindMap {
		return Value{}, false
	}

	child, ok := v.m[key]

	return child, ok
}

// At returns the list element at i.
func (v Value) At(i int) (Value, bool) {
	if v.kind != KindList || i < 0 || i >= len(v.list) {
		return Value{}, false
	}

	return v.list[i], true
}

// Items returns the list elements.
func (v Value) Items() []Value {
	if v.kind != KindList {
		return nil
	}

	return v.list
}

// Keys returns the sorted map keys.
func (v Value) Keys() []string {
	if v.kind != KindMap {
		return nil
	}

	keys := make([]string, 0, len(v.m))
	for k := range v.m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

// Scalar renders a bool, number or string as text. Empty strings count as absent.
func (v Value) Scalar() (string, bool) {
	switch v.kind {
	case KindString:
		s := strings.TrimSpace(v.s)

		return s, s != ""
	case KindNumber:
		return v.s, true
	case KindBool:
		return strconv.FormatBool(v.b), true
	default:
		return "", false
	}
}

// Int64 returns the value as an integer when it is a whole number or numeric string.
func (v Value) Int64() (int64, bool) {
	s, ok := v.Scalar()
	if !ok || v.kind == KindBool {
		return 0, false
	}

	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, true
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int64(f)) {
		return 0, false
	}

	return int64(f), true
}

// MarshalJSON encodes v back to JSON.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

// Interface converts v into plain Go values.
func (v Value) Interface() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return json.Number(v.s)
	case KindString:
		return v.s
	case KindList:
		out := make([]any, len(v.list))
		for i, item := range v.list {
			out[i] = item.Interface()
		}

		return out
	case KindMap:
		out := make(map[string]any, len(v.m))
		for k, item := range v.m {
			out[k] = item.Interface()
		}

		return out
	default:
		return nil
	}
}

// ParseJSON decodes a JSON document into a Value.
func ParseJSON(data []byte) (Value, error) {
	return DecodeJSON(bytes.NewReader(data))
}

// DecodeJSON decodes a single JSON document from r.
func DecodeJSON(r io.Reader) (Value, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return Value{}, fmt.Errorf("decode json: %w", err)
	}

	return FromAny(raw), nil
}

// FromAny converts decoded Go values into a Value. Unknown types become strings.
func FromAny(raw any) Value {
	switch x := raw.(type) {
	case nil:
		return Null()
	case Value:
		return x
	case bool:
		return Bool(x)
	case json.Number:
		return Number(x.String())
	case float64:
		return Number(strconv.FormatFloat(x, 'f', -1, 64))
	case float32:
		return Number(strconv.FormatFloat(float64(x), 'f', -1, 32))
	case int:
		return Int(int64(x))
	case int64:
		return Int(x)
	case uint64:
		return Number(strconv.FormatUint(x, 10))
	case string:
		return String(x)
	case []string:
		items := make([]Value, len(x))
		for i, s := range x {
			items[i] = String(s)
		}

		return List(items...)
	case []any:
		items := make([]Value, len(x))
		for i, item := range x {
			items[i] = FromAny(item)
		}

		return List(items...)
	case map[string]any:
		m := make(map[string]Value, len(x))
		for k, item := range x {
			m[k] = FromAny(item)
		}

		return Map(m)
	case map[string]string:
		m := make(map[string]Value, len(x))
		for k, s := range x {
			m[k] = String(s)
		}

		return Map(m)
	default:
		return String(fmt.Sprint(x))
	}
}

// Resolvable implementation.

// Key returns the map entry for name.
func (v Value) Key(name string) (Resolvable, bool) {
	child, ok := v.Get(name)
	if !ok {
		return nil, false
	}

	return child, true
}

// Index returns the list element at i.
func (v Value) Index(i int) (Resolvable, bool) {
	child, ok := v.At(i)
	if !ok {
		return nil, false
	}

	return child, true
}

// List returns the list elements as resolvables.
func (v Value) List() ([]Resolvable, bool) {
	if v.kind != KindList {
		return nil, false
	}

	out := make([]Resolvable, len(v.list))
	for i, item := range v.list {
		out[i] = item
	}

	return out, true
}

// Text returns the scalar text of v.
func (v Value) Text() (string, bool) {
	return v.Scalar()
}

// Link returns the scalar text of v; JSON carries URLs as plain strings.
func (v Value) Link() (string, bool) {
	return v.Scalar()
}

// Locate resolves a dotted path below v.
func (v Value) Locate(path string) (Resolvable, bool) {
	return Walk(v, path)
}
