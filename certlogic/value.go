package certlogic

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-errors/errors"
)

type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindDate
	KindSequence
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindDate:
		return "date"
	case KindSequence:
		return "sequence"
	case KindMap:
		return "map"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Value is an immutable logic value. The zero Value is null, which also represents
// absent data.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	t    time.Time
	seq  []Value
	m    map[string]Value
}

var Null = Value{}

func Bool(b bool) Value {
	return Value{kind: KindBool, b: b}
}

func Number(n float64) Value {
	return Value{kind: KindNumber, n: n}
}

func String(s string) Value {
	return Value{kind: KindString, s: s}
}

func Date(t time.Time) Value {
	return Value{kind: KindDate, t: t}
}

func Sequence(elements ...Value) Value {
	return Value{kind: KindSequence, seq: elements}
}

func Map(m map[string]Value) Value {
	return Value{kind: KindMap, m: m}
}

// ValueOf converts decoded JSON, YAML or CBOR data into a Value
func ValueOf(v interface{}) (Value, error) {
	switch tv := v.(type) {
	case nil:
		return Null, nil
	case Value:
		return tv, nil
	case bool:
		return Bool(tv), nil
	case string:
		return String(tv), nil
	case float64:
		return Number(tv), nil
	case float32:
		return Number(float64(tv)), nil
	case int:
		return Number(float64(tv)), nil
	case int8:
		return Number(float64(tv)), nil
	case int16:
		return Number(float64(tv)), nil
	case int32:
		return Number(float64(tv)), nil
	case int64:
		return Number(float64(tv)), nil
	case uint:
		return Number(float64(tv)), nil
	case uint8:
		return Number(float64(tv)), nil
	case uint16:
		return Number(float64(tv)), nil
	case uint32:
		return Number(float64(tv)), nil
	case uint64:
		return Number(float64(tv)), nil
	case json.Number:
		f, err := tv.Float64()
		if err != nil {
			return Null, errors.WrapPrefix(err, "Could not convert JSON number", 0)
		}
		return Number(f), nil
	case time.Time:
		return Date(tv), nil
	case []interface{}:
		seq := make([]Value, 0, len(tv))
		for _, elem := range tv {
			ev, err := ValueOf(elem)
			if err != nil {
				return Null, err
			}
			seq = append(seq, ev)
		}
		return Sequence(seq...), nil
	case map[string]interface{}:
		m := make(map[string]Value, len(tv))
		for k, elem := range tv {
			ev, err := ValueOf(elem)
			if err != nil {
				return Null, err
			}
			m[k] = ev
		}
		return Map(m), nil
	case map[interface{}]interface{}:
		m := make(map[string]Value, len(tv))
		for k, elem := range tv {
			ev, err := ValueOf(elem)
			if err != nil {
				return Null, err
			}
			m[fmt.Sprint(k)] = ev
		}
		return Map(m), nil
	}

	return valueOfReflected(reflect.ValueOf(v))
}

func valueOfReflected(rv reflect.Value) (Value, error) {
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return Null, nil
		}
		return ValueOf(rv.Elem().Interface())

	case reflect.Slice, reflect.Array:
		seq := make([]Value, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			ev, err := ValueOf(rv.Index(i).Interface())
			if err != nil {
				return Null, err
			}
			seq = append(seq, ev)
		}
		return Sequence(seq...), nil

	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}

		m := make(map[string]Value, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			ev, err := ValueOf(iter.Value().Interface())
			if err != nil {
				return Null, err
			}
			m[iter.Key().String()] = ev
		}
		return Map(m), nil
	}

	return Null, errors.Errorf("Could not convert value of type %T", rv.Interface())
}

func (v Value) Kind() Kind {
	return v.kind
}

func (v Value) IsNull() bool {
	return v.kind == KindNull
}

func (v Value) Bool() (bool, bool) {
	return v.b, v.kind == KindBool
}

func (v Value) Number() (float64, bool) {
	return v.n, v.kind == KindNumber
}

func (v Value) Str() (string, bool) {
	return v.s, v.kind == KindString
}

func (v Value) Time() (time.Time, bool) {
	return v.t, v.kind == KindDate
}

// Elements returns the elements of a sequence. The returned slice must not be modified.
func (v Value) Elements() ([]Value, bool) {
	return v.seq, v.kind == KindSequence
}

// Field returns the value at key of a map, or null
func (v Value) Field(key string) Value {
	if v.kind != KindMap {
		return Null
	}

	return v.m[key]
}

// HasField reports whether key is present in a map, including keys holding null
func (v Value) HasField(key string) bool {
	if v.kind != KindMap {
		return false
	}

	_, ok := v.m[key]
	return ok
}

// Truthy reports whether the value counts as true. False, null, the empty string and
// zero are falsy; everything else, including empty sequences, is truthy.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindNull:
		return false
	case KindBool:
		return v.b
	case KindNumber:
		return v.n != 0 && !math.IsNaN(v.n)
	case KindString:
		return v.s != ""
	default:
		return true
	}
}

// Equal compares without any coercion between kinds
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}

	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindNumber:
		return v.n == o.n
	case KindString:
		return v.s == o.s
	case KindDate:
		return v.t.Equal(o.t)
	case KindSequence:
		if len(v.seq) != len(o.seq) {
			return false
		}
		for i := range v.seq {
			if !v.seq[i].Equal(o.seq[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.m) != len(o.m) {
			return false
		}
		for k, ev := range v.m {
			ov, ok := o.m[k]
			if !ok || !ev.Equal(ov) {
				return false
			}
		}
		return true
	}

	return false
}

// Interface converts the value back into plain Go data
func (v Value) Interface() interface{} {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return v.n
	case KindString:
		return v.s
	case KindDate:
		return v.t
	case KindSequence:
		res := make([]interface{}, 0, len(v.seq))
		for _, elem := range v.seq {
			res = append(res, elem.Interface())
		}
		return res
	case KindMap:
		res := make(map[string]interface{}, len(v.m))
		for k, elem := range v.m {
			res[k] = elem.Interface()
		}
		return res
	}

	return nil
}

func (v Value) MarshalJSON() ([]byte, error) {
	if v.kind == KindDate {
		return json.Marshal(v.t.Format(time.RFC3339))
	}

	return json.Marshal(v.Interface())
}

func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindString:
		return fmt.Sprintf("%q", v.s)
	case KindDate:
		return v.t.Format(time.RFC3339)
	case KindSequence:
		parts := make([]string, 0, len(v.seq))
		for _, elem := range v.seq {
			parts = append(parts, elem.String())
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case KindMap:
		keys := make([]string, 0, len(v.m))
		for k := range v.m {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%q: %s", k, v.m[k].String()))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return fmt.Sprint(v.Interface())
	}
}
