package prov

import (
	"sort"
	"strconv"
)

// ValueKind discriminates attribute value variants.
type ValueKind string

// Attribute value kinds.
const (
	ValueString ValueKind = "string"
	ValueName   ValueKind = "name"
	ValueInt    ValueKind = "int"
	ValueFloat  ValueKind = "float"
)

// Value is a single attribute value: a literal string, a qualified name,
// an integer, or a float. Attributes are multi-valued, so records hold
// []Value per key.
type Value struct {
	Kind  ValueKind
	Str   string
	Name  QualifiedName
	Int   int64
	Float float64
}

// StringValue wraps a literal string.
func StringValue(s string) Value { return Value{Kind: ValueString, Str: s} }

// NameValue wraps a qualified name.
func NameValue(q QualifiedName) Value { return Value{Kind: ValueName, Name: q} }

// IntValue wraps an integer.
func IntValue(i int64) Value { return Value{Kind: ValueInt, Int: i} }

// FloatValue wraps a floating-point number.
func FloatValue(f float64) Value { return Value{Kind: ValueFloat, Float: f} }

// Equal compares two values. Name values compare by expanded URI.
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case ValueName:
		return v.Name.Equal(other.Name)
	case ValueInt:
		return v.Int == other.Int
	case ValueFloat:
		return v.Float == other.Float
	default:
		return v.Str == other.Str
	}
}

// canonical returns a stable string form used for multiset comparison.
func (v Value) canonical() string {
	switch v.Kind {
	case ValueName:
		if v.Name.Namespace.URI != "" {
			return "n\x00" + v.Name.URI()
		}
		return "n\x00" + v.Name.String()
	case ValueInt:
		return "i\x00" + strconv.FormatInt(v.Int, 10)
	case ValueFloat:
		return "f\x00" + strconv.FormatFloat(v.Float, 'g', -1, 64)
	default:
		return "s\x00" + v.Str
	}
}

// Attributes maps an attribute key (prefixed form, e.g. "prov:type") to its
// value set. Multi-valued keys such as prov:type are the norm in PROV.
type Attributes map[string][]Value

// Add appends a value under key.
func (a Attributes) Add(key string, v Value) {
	a[key] = append(a[key], v)
}

// First returns the first value under key, if any.
func (a Attributes) First(key string) (Value, bool) {
	vs := a[key]
	if len(vs) == 0 {
		return Value{}, false
	}
	return vs[0], true
}

// Has reports whether key has at least one value.
func (a Attributes) Has(key string) bool {
	return len(a[key]) > 0
}

// HasName reports whether key contains the qualified name q among its values.
func (a Attributes) HasName(key string, q QualifiedName) bool {
	for _, v := range a[key] {
		if v.Kind == ValueName && v.Name.Equal(q) {
			return true
		}
	}
	return false
}

// Equal compares two attribute maps as multisets per key.
func (a Attributes) Equal(other Attributes) bool {
	if len(a) != len(other) {
		return false
	}
	for key, vs := range a {
		ws, ok := other[key]
		if !ok || len(vs) != len(ws) {
			return false
		}
		if !sameMultiset(vs, ws) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy.
func (a Attributes) Clone() Attributes {
	out := make(Attributes, len(a))
	for key, vs := range a {
		out[key] = append([]Value(nil), vs...)
	}
	return out
}

func sameMultiset(a, b []Value) bool {
	ca := make([]string, len(a))
	cb := make([]string, len(b))
	for i, v := range a {
		ca[i] = v.canonical()
	}
	for i, v := range b {
		cb[i] = v.canonical()
	}
	sort.Strings(ca)
	sort.Strings(cb)
	for i := range ca {
		if ca[i] != cb[i] {
			return false
		}
	}
	return true
}
