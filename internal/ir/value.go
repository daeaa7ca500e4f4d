package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"iter"
	"slices"
	"strconv"
	"strings"
)

// Kind names the scalar kind of a Value. The string form is what the
// document codec writes into data-kind attributes.
type Kind string

const (
	KindString Kind = "string"
	KindInt    Kind = "int"
	KindBool   Kind = "bool"
)

// Value is a sealed interface over property values.
// Only String, Int and Bool implement it.
type Value interface {
	Kind() Kind
	// Literal is the textual form written into documents.
	Literal() string
	irValue()
}

// String is a string property value.
type String string

func (String) irValue()          {}
func (String) Kind() Kind        { return KindString }
func (s String) Literal() string { return string(s) }

// Int is an integer property value. Always int64.
type Int int64

func (Int) irValue()          {}
func (Int) Kind() Kind        { return KindInt }
func (i Int) Literal() string { return strconv.FormatInt(int64(i), 10) }

// Bool is a boolean property value.
type Bool bool

func (Bool) irValue()   {}
func (Bool) Kind() Kind { return KindBool }
func (b Bool) Literal() string {
	if b {
		return "true"
	}
	return "false"
}

// ParseValue rebuilds a Value from its kind and literal text.
// An empty kind is treated as KindString. Strings holding U+0000 are
// rejected; no document form can carry them.
func ParseValue(kind Kind, literal string) (Value, error) {
	switch kind {
	case KindString, "":
		if strings.ContainsRune(literal, 0) {
			return nil, fmt.Errorf("string value %q contains a NUL character", literal)
		}
		return String(literal), nil
	case KindInt:
		n, err := strconv.ParseInt(literal, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse int value %q: %w", literal, err)
		}
		return Int(n), nil
	case KindBool:
		b, err := strconv.ParseBool(literal)
		if err != nil {
			return nil, fmt.Errorf("parse bool value %q: %w", literal, err)
		}
		return Bool(b), nil
	default:
		return nil, fmt.Errorf("unknown value kind %q", kind)
	}
}

// Equal reports whether a and b have the same kind and the same value.
// No coercion happens: Int(3) never equals String("3").
func Equal(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Kind() != b.Kind() {
		return false
	}
	return a == b
}

// FromAny converts a Go scalar into a Value.
// Floats are rejected so that canonical encodings stay exact.
func FromAny(v any) (Value, error) {
	switch val := v.(type) {
	case Value:
		return val, nil
	case string:
		return String(val), nil
	case int:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case bool:
		return Bool(val), nil
	case float32, float64:
		return nil, fmt.Errorf("floats are not allowed as property values: %v", val)
	default:
		return nil, fmt.Errorf("unsupported property value type %T", v)
	}
}

// Pair is a key/value pair used to build Properties in order.
type Pair struct {
	Key   string
	Value Value
}

// P is a shorthand for Pair.
//
//	props := ir.NewProperties(ir.P("effort", ir.Int(3)), ir.P("area", ir.String("auth")))
func P(key string, value Value) Pair {
	return Pair{Key: key, Value: value}
}

// Properties is an insertion-ordered map of property values.
// The zero value is an empty, usable map.
type Properties struct {
	keys []string
	vals map[string]Value
}

// NewProperties builds Properties from pairs; later duplicates overwrite
// the value but keep the first position.
func NewProperties(pairs ...Pair) Properties {
	var p Properties
	for _, pair := range pairs {
		p.Set(pair.Key, pair.Value)
	}
	return p
}

// Set stores v under key. New keys are appended to the order.
func (p *Properties) Set(key string, v Value) {
	if p.vals == nil {
		p.vals = make(map[string]Value)
	}
	if _, ok := p.vals[key]; !ok {
		p.keys = append(p.keys, key)
	}
	p.vals[key] = v
}

// Get returns the value for key.
func (p Properties) Get(key string) (Value, bool) {
	v, ok := p.vals[key]
	return v, ok
}

// Delete removes key, keeping the order of the remaining keys.
func (p *Properties) Delete(key string) {
	if _, ok := p.vals[key]; !ok {
		return
	}
	delete(p.vals, key)
	p.keys = slices.DeleteFunc(p.keys, func(k string) bool { return k == key })
}

// Len returns the number of keys.
func (p Properties) Len() int {
	return len(p.keys)
}

// Keys returns a copy of the keys in insertion order.
func (p Properties) Keys() []string {
	return slices.Clone(p.keys)
}

// All iterates over key/value pairs in insertion order.
func (p Properties) All() iter.Seq2[string, Value] {
	return func(yield func(string, Value) bool) {
		for _, k := range p.keys {
			if !yield(k, p.vals[k]) {
				return
			}
		}
	}
}

// Clone returns an independent copy. Values are immutable scalars, so a
// shallow copy of the map is a deep copy.
func (p Properties) Clone() Properties {
	if len(p.keys) == 0 {
		return Properties{}
	}
	out := Properties{
		keys: slices.Clone(p.keys),
		vals: make(map[string]Value, len(p.vals)),
	}
	for k, v := range p.vals {
		out.vals[k] = v
	}
	return out
}

// Equal reports whether both maps hold the same keys in the same order with
// equal values.
func (p Properties) Equal(o Properties) bool {
	if !slices.Equal(p.keys, o.keys) {
		return false
	}
	for _, k := range p.keys {
		if !Equal(p.vals[k], o.vals[k]) {
			return false
		}
	}
	return true
}

// MarshalJSON writes the properties as a JSON object in insertion order.
func (p Properties) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range p.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, fmt.Errorf("marshal key %q: %w", k, err)
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')
		valBytes, err := marshalValue(p.vals[k])
		if err != nil {
			return nil, fmt.Errorf("marshal value for key %q: %w", k, err)
		}
		buf.Write(valBytes)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func marshalValue(v Value) ([]byte, error) {
	switch val := v.(type) {
	case String:
		return json.Marshal(string(val))
	case Int:
		return json.Marshal(int64(val))
	case Bool:
		return json.Marshal(bool(val))
	default:
		return nil, fmt.Errorf("unknown Value type: %T", v)
	}
}
