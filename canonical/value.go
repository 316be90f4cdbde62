// Package canonical implements the deterministic JSON encoding that every
// content identifier in this module is derived from.
//
// Values are a closed tagged union (null, bool, number, string, array, object).
// Encode is the single choke point: anything it accepts has exactly one byte
// representation, and anything it cannot represent is rejected with a
// verr.KindCanonical error.
package canonical

import (
	"sort"

	"signet.dev/verify/verr"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
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
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Value is an immutable JSON value. The zero Value is null.
type Value struct {
	kind    Kind
	b       bool
	n       float64
	s       string
	items   []Value
	members []Member
}

// Member is one key/value pair of an object.
type Member struct {
	Key   string
	Value Value
}

func Null() Value            { return Value{} }
func Bool(b bool) Value      { return Value{kind: KindBool, b: b} }
func Number(f float64) Value { return Value{kind: KindNumber, n: f} }
func String(s string) Value  { return Value{kind: KindString, s: s} }

func (v Value) Kind() Kind        { return v.kind }
func (v Value) IsNull() bool      { return v.kind == KindNull }
func (v Value) AsBool() bool      { return v.b }
func (v Value) AsNumber() float64 { return v.n }
func (v Value) AsString() string  { return v.s }

// Array returns an array holding a copy of items.
func Array(items ...Value) Value {
	return Value{kind: KindArray, items: append([]Value{}, items...)}
}

// Object returns an object with the given members. Member order is irrelevant
// to the encoding; duplicate keys are rejected.
func Object(members ...Member) (Value, error) {
	seen := make(map[string]struct{}, len(members))
	for _, m := range members {
		if _, dup := seen[m.Key]; dup {
			return Value{}, verr.New(verr.KindCanonical, "SIG-CANON-005", "duplicate object key "+quoteForMessage(m.Key))
		}
		seen[m.Key] = struct{}{}
	}
	return Value{kind: KindObject, members: append([]Member{}, members...)}, nil
}

// ObjectFromMap returns an object built from m. Maps cannot hold duplicate keys,
// so this never fails.
func ObjectFromMap(m map[string]Value) Value {
	members := make([]Member, 0, len(m))
	for k, v := range m {
		members = append(members, Member{Key: k, Value: v})
	}
	sort.Slice(members, func(i, j int) bool { return members[i].Key < members[j].Key })
	return Value{kind: KindObject, members: members}
}

// Len returns the number of array items or object members.
func (v Value) Len() int {
	switch v.kind {
	case KindArray:
		return len(v.items)
	case KindObject:
		return len(v.members)
	default:
		return 0
	}
}

// Items returns a copy of the array items (nil for non-arrays).
func (v Value) Items() []Value {
	if v.kind != KindArray {
		return nil
	}
	return append([]Value{}, v.items...)
}

// Members returns a copy of the object members in insertion order.
func (v Value) Members() []Member {
	if v.kind != KindObject {
		return nil
	}
	return append([]Member{}, v.members...)
}

// Get returns the member named key.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != KindObject {
		return Value{}, false
	}
	for _, m := range v.members {
		if m.Key == key {
			return m.Value, true
		}
	}
	return Value{}, false
}

// With returns a copy of the object with key set to val, replacing any
// existing member of that name. Non-objects are returned unchanged.
func (v Value) With(key string, val Value) Value {
	if v.kind != KindObject {
		return v
	}
	out := make([]Member, 0, len(v.members)+1)
	replaced := false
	for _, m := range v.members {
		if m.Key == key {
			out = append(out, Member{Key: key, Value: val})
			replaced = true
			continue
		}
		out = append(out, m)
	}
	if !replaced {
		out = append(out, Member{Key: key, Value: val})
	}
	return Value{kind: KindObject, members: out}
}

// MarshalJSON emits the canonical encoding.
func (v Value) MarshalJSON() ([]byte, error) {
	return Encode(v)
}

// UnmarshalJSON parses strict JSON into v.
func (v *Value) UnmarshalJSON(b []byte) error {
	parsed, err := Parse(b)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func quoteForMessage(s string) string {
	if len(s) > 64 {
		s = s[:64] + "..."
	}
	return `"` + s + `"`
}
