package verifysvc

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"signet.dev/verify/canonical"
)

// ToCanonical converts a protobuf JSON value into a canonical Value.
// A nil or kindless value is JSON null.
func ToCanonical(v *structpb.Value) (canonical.Value, error) {
	switch k := v.GetKind().(type) {
	case nil, *structpb.Value_NullValue:
		return canonical.Null(), nil
	case *structpb.Value_BoolValue:
		return canonical.Bool(k.BoolValue), nil
	case *structpb.Value_NumberValue:
		return canonical.Number(k.NumberValue), nil
	case *structpb.Value_StringValue:
		return canonical.String(k.StringValue), nil
	case *structpb.Value_ListValue:
		items := make([]canonical.Value, 0, len(k.ListValue.GetValues()))
		for _, item := range k.ListValue.GetValues() {
			cv, err := ToCanonical(item)
			if err != nil {
				return canonical.Value{}, err
			}
			items = append(items, cv)
		}
		return canonical.Array(items...), nil
	case *structpb.Value_StructValue:
		fields := make(map[string]canonical.Value, len(k.StructValue.GetFields()))
		for key, item := range k.StructValue.GetFields() {
			cv, err := ToCanonical(item)
			if err != nil {
				return canonical.Value{}, err
			}
			fields[key] = cv
		}
		return canonical.ObjectFromMap(fields), nil
	default:
		return canonical.Value{}, fmt.Errorf("unsupported structpb kind %T", k)
	}
}

// FromCanonical is the inverse of ToCanonical.
func FromCanonical(v canonical.Value) (*structpb.Value, error) {
	switch v.Kind() {
	case canonical.KindNull:
		return structpb.NewNullValue(), nil
	case canonical.KindBool:
		return structpb.NewBoolValue(v.AsBool()), nil
	case canonical.KindNumber:
		return structpb.NewNumberValue(v.AsNumber()), nil
	case canonical.KindString:
		return structpb.NewStringValue(v.AsString()), nil
	case canonical.KindArray:
		list := &structpb.ListValue{Values: make([]*structpb.Value, 0, v.Len())}
		for _, item := range v.Items() {
			pv, err := FromCanonical(item)
			if err != nil {
				return nil, err
			}
			list.Values = append(list.Values, pv)
		}
		return structpb.NewListValue(list), nil
	case canonical.KindObject:
		s := &structpb.Struct{Fields: make(map[string]*structpb.Value, v.Len())}
		for _, m := range v.Members() {
			pv, err := FromCanonical(m.Value)
			if err != nil {
				return nil, err
			}
			s.Fields[m.Key] = pv
		}
		return structpb.NewStructValue(s), nil
	default:
		return nil, fmt.Errorf("unsupported canonical kind %s", v.Kind())
	}
}

// toJSON renders a well-known message as JSON text for the model layer.
func toJSON(m proto.Message) ([]byte, error) {
	return protojson.Marshal(m)
}

// toStruct converts any JSON-encodable value into a Struct.
func toStruct(x any) (*structpb.Struct, error) {
	b, err := json.Marshal(x)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, err
	}
	return out, nil
}
