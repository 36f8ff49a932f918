// Package jsonval provides the small JSON document model used by the pbjson
// codec: null, bool, number, string, array, and object values, with object
// members kept in insertion order. Numbers carry their literal form so that
// 64-bit integers survive a parse/serialize round trip without going through
// float64.
package jsonval

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// Value is a JSON value. The concrete types are Null, Bool, Number, String,
// Array, and *Object.
type Value interface {
	isValue()
}

// Null is the JSON null value.
type Null struct{}

// Bool is a JSON boolean.
type Bool bool

// Number is a JSON number held as its literal text.
type Number string

// String is a JSON string.
type String string

// Array is a JSON array.
type Array []Value

// Member is a single key/value pair of an Object.
type Member struct {
	Key   string
	Value Value
}

// Object is a JSON object. Members keep their insertion order; lookups by key
// are constant time.
type Object struct {
	members []Member
	index   map[string]int
}

func (Null) isValue()    {}
func (Bool) isValue()    {}
func (Number) isValue()  {}
func (String) isValue()  {}
func (Array) isValue()   {}
func (*Object) isValue() {}

// NewObject returns an empty object with capacity for n members.
func NewObject(n int) *Object {
	return &Object{
		members: make([]Member, 0, n),
		index:   make(map[string]int, n),
	}
}

// Set appends a member, or replaces the value if the key is already present.
func (o *Object) Set(key string, v Value) {
	if i, ok := o.index[key]; ok {
		o.members[i].Value = v
		return
	}
	o.index[key] = len(o.members)
	o.members = append(o.members, Member{Key: key, Value: v})
}

// Get returns the value for key and whether it is present.
func (o *Object) Get(key string) (Value, bool) {
	if o == nil {
		return nil, false
	}
	i, ok := o.index[key]
	if !ok {
		return nil, false
	}
	return o.members[i].Value, true
}

// Len returns the number of members.
func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.members)
}

// Members returns the members in insertion order. The slice must not be
// mutated.
func (o *Object) Members() []Member {
	if o == nil {
		return nil
	}
	return o.members
}

// Marshal serializes v as compact JSON.
func Marshal(v Value) []byte {
	var buf bytes.Buffer
	write(&buf, v)
	return buf.Bytes()
}

// MarshalIndent serializes v with the given indent applied to arrays and
// objects.
func MarshalIndent(v Value, indent string) []byte {
	compact := Marshal(v)
	var buf bytes.Buffer
	if err := json.Indent(&buf, compact, "", indent); err != nil {
		return compact
	}
	return buf.Bytes()
}

func write(buf *bytes.Buffer, v Value) {
	switch v := v.(type) {
	case Null:
		buf.WriteString("null")
	case Bool:
		if v {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case Number:
		buf.WriteString(string(v))
	case String:
		writeString(buf, string(v))
	case Array:
		buf.WriteByte('[')
		for i, elem := range v {
			if i > 0 {
				buf.WriteByte(',')
			}
			write(buf, elem)
		}
		buf.WriteByte(']')
	case *Object:
		buf.WriteByte('{')
		for i, m := range v.Members() {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeString(buf, m.Key)
			buf.WriteByte(':')
			write(buf, m.Value)
		}
		buf.WriteByte('}')
	default:
		buf.WriteString("null")
	}
}

func writeString(buf *bytes.Buffer, s string) {
	b, err := json.Marshal(s)
	if err != nil {
		// json.Marshal of a string cannot fail.
		buf.WriteString(`""`)
		return
	}
	buf.Write(b)
}

// Parse reads a single JSON document from data. Trailing non-whitespace input
// is an error.
func Parse(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := parseValue(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("unexpected data after JSON document")
	}
	return v, nil
}

func parseValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	return fromToken(dec, tok)
}

func fromToken(dec *json.Decoder, tok json.Token) (Value, error) {
	switch t := tok.(type) {
	case nil:
		return Null{}, nil
	case bool:
		return Bool(t), nil
	case json.Number:
		return Number(t.String()), nil
	case string:
		return String(t), nil
	case json.Delim:
		switch t {
		case '[':
			var arr Array
			for dec.More() {
				elem, err := parseValue(dec)
				if err != nil {
					return nil, err
				}
				arr = append(arr, elem)
			}
			if _, err := dec.Token(); err != nil { // consume ']'
				return nil, err
			}
			if arr == nil {
				arr = Array{}
			}
			return arr, nil
		case '{':
			obj := NewObject(4)
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("expected object key, got %v", keyTok)
				}
				val, err := parseValue(dec)
				if err != nil {
					return nil, err
				}
				obj.Set(key, val)
			}
			if _, err := dec.Token(); err != nil { // consume '}'
				return nil, err
			}
			return obj, nil
		}
	}
	return nil, fmt.Errorf("unexpected JSON token %v", tok)
}
