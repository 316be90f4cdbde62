package canonical

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"

	"signet.dev/verify/verr"
)

// FromGo converts a Go value shaped like decoded JSON into a Value.
//
// Accepted: nil, bool, string, every integer and float kind, json.Number,
// json.RawMessage, Value and *Value, maps keyed by strings, slices and arrays,
// pointers and interfaces to any of these, and structs (through their
// encoding/json representation). Functions, channels, complex numbers, unsafe
// pointers, maps with non-string keys and reference cycles are rejected with a
// verr.KindCanonical error.
func FromGo(x any) (Value, error) {
	c := converter{visiting: map[visitKey]struct{}{}}
	return c.convert(reflect.ValueOf(x), 0)
}

type visitKey struct {
	ptr uintptr
	typ reflect.Type
	n   int
}

type converter struct {
	visiting map[visitKey]struct{}
}

var (
	valueType   = reflect.TypeOf(Value{})
	numberType  = reflect.TypeOf(json.Number(""))
	rawJSONType = reflect.TypeOf(json.RawMessage(nil))
)

func (c converter) convert(rv reflect.Value, depth int) (Value, error) {
	if depth > maxDepth {
		return Value{}, verr.New(verr.KindCanonical, "SIG-CANON-008", "value nesting too deep")
	}
	if !rv.IsValid() {
		return Null(), nil
	}
	switch rv.Type() {
	case valueType:
		return rv.Interface().(Value), nil
	case numberType:
		return parseNumber(rv.Interface().(json.Number))
	case rawJSONType:
		if rv.IsNil() {
			return Null(), nil
		}
		return Parse(rv.Bytes())
	}

	switch rv.Kind() {
	case reflect.Interface:
		if rv.IsNil() {
			return Null(), nil
		}
		return c.convert(rv.Elem(), depth+1)
	case reflect.Pointer:
		if rv.IsNil() {
			return Null(), nil
		}
		leave, err := c.enter(rv, 0)
		if err != nil {
			return Value{}, err
		}
		defer leave()
		return c.convert(rv.Elem(), depth+1)
	case reflect.Bool:
		return Bool(rv.Bool()), nil
	case reflect.String:
		return String(rv.String()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Number(float64(rv.Int())), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return Number(float64(rv.Uint())), nil
	case reflect.Float32, reflect.Float64:
		return Number(rv.Float()), nil
	case reflect.Slice:
		if rv.IsNil() {
			return Null(), nil
		}
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			// Same mapping encoding/json uses for []byte.
			return String(base64.StdEncoding.EncodeToString(rv.Bytes())), nil
		}
		leave, err := c.enter(rv, rv.Len())
		if err != nil {
			return Value{}, err
		}
		defer leave()
		return c.convertList(rv, depth)
	case reflect.Array:
		return c.convertList(rv, depth)
	case reflect.Map:
		if rv.IsNil() {
			return Null(), nil
		}
		if rv.Type().Key().Kind() != reflect.String {
			return Value{}, verr.New(verr.KindCanonical, "SIG-CANON-003", fmt.Sprintf("map key type %s has no JSON mapping", rv.Type().Key()))
		}
		leave, err := c.enter(rv, 0)
		if err != nil {
			return Value{}, err
		}
		defer leave()
		return c.convertMap(rv, depth)
	case reflect.Struct:
		return c.convertViaJSON(rv)
	default:
		return Value{}, verr.New(verr.KindCanonical, "SIG-CANON-003", fmt.Sprintf("%s has no JSON mapping", rv.Type()))
	}
}

func (c converter) enter(rv reflect.Value, n int) (func(), error) {
	key := visitKey{ptr: rv.Pointer(), typ: rv.Type(), n: n}
	if _, ok := c.visiting[key]; ok {
		return nil, verr.New(verr.KindCanonical, "SIG-CANON-002", "cyclic structure")
	}
	c.visiting[key] = struct{}{}
	return func() { delete(c.visiting, key) }, nil
}

func (c converter) convertList(rv reflect.Value, depth int) (Value, error) {
	items := make([]Value, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		item, err := c.convert(rv.Index(i), depth+1)
		if err != nil {
			return Value{}, err
		}
		items = append(items, item)
	}
	return Value{kind: KindArray, items: items}, nil
}

func (c converter) convertMap(rv reflect.Value, depth int) (Value, error) {
	members := make([]Member, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		val, err := c.convert(iter.Value(), depth+1)
		if err != nil {
			return Value{}, err
		}
		members = append(members, Member{Key: iter.Key().String(), Value: val})
	}
	sort.Slice(members, func(i, j int) bool { return members[i].Key < members[j].Key })
	return Value{kind: KindObject, members: members}, nil
}

// convertViaJSON lets structs (and their tags or custom marshalers) decide
// their own JSON shape, then parses that shape strictly.
func (c converter) convertViaJSON(rv reflect.Value) (Value, error) {
	if !rv.CanInterface() {
		return Value{}, verr.New(verr.KindCanonical, "SIG-CANON-003", fmt.Sprintf("%s is not accessible", rv.Type()))
	}
	b, err := json.Marshal(rv.Interface())
	if err != nil {
		return Value{}, verr.Wrap(verr.KindCanonical, "SIG-CANON-003", fmt.Sprintf("%s has no JSON mapping", rv.Type()), err)
	}
	return Parse(b)
}
