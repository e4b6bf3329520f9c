// Package valuetype implements the heterogeneous, runtime-typed
// property value used throughout the component model. Rather than the
// source's reflection-driven generic PropertyMetadata<T>, values carry
// an explicit Kind tag alongside the payload so getters can check
// compatibility without reflection.
package valuetype

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind tags the runtime type carried by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindTimestamp
	KindID
	KindEnum
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "Null"
	case KindBool:
		return "Bool"
	case KindInt:
		return "Int"
	case KindFloat:
		return "Float"
	case KindString:
		return "String"
	case KindTimestamp:
		return "Timestamp"
	case KindID:
		return "Id"
	case KindEnum:
		return "Enum"
	case KindMap:
		return "Map"
	default:
		return "Unknown"
	}
}

// Value is a tagged, heterogeneous property value. The zero Value is
// KindNull.
type Value struct {
	Kind Kind
	raw  interface{}
}

// Null returns a Value of KindNull.
func Null() Value { return Value{Kind: KindNull} }

func FromBool(v bool) Value           { return Value{Kind: KindBool, raw: v} }
func FromInt(v int64) Value           { return Value{Kind: KindInt, raw: v} }
func FromFloat(v float64) Value       { return Value{Kind: KindFloat, raw: v} }
func FromString(v string) Value       { return Value{Kind: KindString, raw: v} }
func FromTimestamp(v time.Time) Value { return Value{Kind: KindTimestamp, raw: v} }
func FromID(v uuid.UUID) Value        { return Value{Kind: KindID, raw: v} }
func FromEnum(v string) Value         { return Value{Kind: KindEnum, raw: v} }
func FromMap(v map[string]Value) Value {
	return Value{Kind: KindMap, raw: v}
}

// FromAny infers a Kind for common native Go types, falling back to
// KindString via fmt-free best effort. Intended for bridging untyped
// data coming from JSON decode or caller convenience constructors.
func FromAny(v interface{}) Value {
	switch t := v.(type) {
	case nil:
		return Null()
	case bool:
		return FromBool(t)
	case int:
		return FromInt(int64(t))
	case int64:
		return FromInt(t)
	case float64:
		return FromFloat(t)
	case float32:
		return FromFloat(float64(t))
	case string:
		return FromString(t)
	case time.Time:
		return FromTimestamp(t)
	case uuid.UUID:
		return FromID(t)
	case map[string]Value:
		return FromMap(t)
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return FromInt(i)
		}
		if f, err := t.Float64(); err == nil {
			return FromFloat(f)
		}
		return FromString(t.String())
	default:
		return Value{Kind: KindString, raw: v}
	}
}

// IsNull reports whether the value is KindNull.
func (v Value) IsNull() bool { return v.Kind == KindNull }

// Bool returns the boolean payload and whether the Kind matched.
func (v Value) Bool() (bool, bool) {
	b, ok := v.raw.(bool)
	return b, ok && v.Kind == KindBool
}

// Int returns the integer payload and whether the Kind matched.
func (v Value) Int() (int64, bool) {
	i, ok := v.raw.(int64)
	return i, ok && v.Kind == KindInt
}

// Float returns the float payload and whether the Kind matched.
func (v Value) Float() (float64, bool) {
	f, ok := v.raw.(float64)
	return f, ok && v.Kind == KindFloat
}

// String returns the string payload and whether the Kind matched
// (KindString or KindEnum).
func (v Value) String() (string, bool) {
	s, ok := v.raw.(string)
	return s, ok && (v.Kind == KindString || v.Kind == KindEnum)
}

// Timestamp returns the time payload and whether the Kind matched.
func (v Value) Timestamp() (time.Time, bool) {
	t, ok := v.raw.(time.Time)
	return t, ok && v.Kind == KindTimestamp
}

// ID returns the uuid payload and whether the Kind matched.
func (v Value) ID() (uuid.UUID, bool) {
	id, ok := v.raw.(uuid.UUID)
	return id, ok && v.Kind == KindID
}

// Map returns the nested map payload and whether the Kind matched.
func (v Value) Map() (map[string]Value, bool) {
	m, ok := v.raw.(map[string]Value)
	return m, ok && v.Kind == KindMap
}

// Raw returns the untyped payload as stored, for callers doing their
// own type switch.
func (v Value) Raw() interface{} { return v.raw }

// Equal reports whether two values carry the same Kind and payload.
// Maps compare by recursively comparing their entries.
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}
	if v.Kind == KindMap {
		am, _ := v.Map()
		bm, _ := other.Map()
		if len(am) != len(bm) {
			return false
		}
		for k, av := range am {
			bv, ok := bm[k]
			if !ok || !av.Equal(bv) {
				return false
			}
		}
		return true
	}
	return v.raw == other.raw
}

// wireValue is the JSON-serializable shape of a Value, following the
// section 6 wire rules: booleans/numbers/null directly, strings
// trimmed, timestamps as ISO-8601, ids as canonical 36-char strings.
type wireValue struct {
	Kind int             `json:"kind"`
	Data json.RawMessage `json:"data,omitempty"`
}

// MarshalJSON encodes the value per the documented wire rules.
func (v Value) MarshalJSON() ([]byte, error) {
	var data []byte
	var err error
	switch v.Kind {
	case KindNull:
		data = []byte("null")
	case KindBool:
		b, _ := v.Bool()
		data, err = json.Marshal(b)
	case KindInt:
		i, _ := v.Int()
		data, err = json.Marshal(i)
	case KindFloat:
		f, _ := v.Float()
		data, err = json.Marshal(f)
	case KindString, KindEnum:
		s, _ := v.String()
		data, err = json.Marshal(strings.TrimSpace(s))
	case KindTimestamp:
		t, _ := v.Timestamp()
		data, err = json.Marshal(t.Format(time.RFC3339Nano))
	case KindID:
		id, _ := v.ID()
		data, err = json.Marshal(id.String())
	case KindMap:
		m, _ := v.Map()
		data, err = json.Marshal(m)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireValue{Kind: int(v.Kind), Data: data})
}

// UnmarshalJSON decodes the wire shape produced by MarshalJSON,
// applying the inverse mapping from section 6.
func (v *Value) UnmarshalJSON(b []byte) error {
	var w wireValue
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	k := Kind(w.Kind)
	switch k {
	case KindNull:
		*v = Null()
	case KindBool:
		var b bool
		if err := json.Unmarshal(w.Data, &b); err != nil {
			return err
		}
		*v = FromBool(b)
	case KindInt:
		var i int64
		if err := json.Unmarshal(w.Data, &i); err != nil {
			return err
		}
		*v = FromInt(i)
	case KindFloat:
		var f float64
		if err := json.Unmarshal(w.Data, &f); err != nil {
			return err
		}
		*v = FromFloat(f)
	case KindString:
		var s string
		if err := json.Unmarshal(w.Data, &s); err != nil {
			return err
		}
		*v = FromString(s)
	case KindEnum:
		var s string
		if err := json.Unmarshal(w.Data, &s); err != nil {
			return err
		}
		*v = FromEnum(s)
	case KindTimestamp:
		var s string
		if err := json.Unmarshal(w.Data, &s); err != nil {
			return err
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return err
		}
		*v = FromTimestamp(t)
	case KindID:
		var s string
		if err := json.Unmarshal(w.Data, &s); err != nil {
			return err
		}
		id, err := uuid.Parse(s)
		if err != nil {
			return err
		}
		*v = FromID(id)
	case KindMap:
		m := make(map[string]Value)
		if err := json.Unmarshal(w.Data, &m); err != nil {
			return err
		}
		*v = FromMap(m)
	}
	return nil
}
