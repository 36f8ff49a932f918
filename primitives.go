package pbjson

import (
	"encoding/base64"
	"fmt"
	"math"
	"strconv"

	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/datahopper/pbjson/jsonval"
)

// encodeScalar converts a non-message, non-enum field value to its JSON form.
// longAsNumber controls whether 64-bit and unsigned 32-bit integers emit as
// JSON numbers instead of strings.
func encodeScalar(kind protoreflect.Kind, v protoreflect.Value, longAsNumber bool) jsonval.Value {
	switch kind {
	case protoreflect.BoolKind:
		return jsonval.Bool(v.Bool())
	case protoreflect.StringKind:
		return jsonval.String(v.String())
	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind:
		return jsonval.Number(strconv.FormatInt(v.Int(), 10))
	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind:
		s := strconv.FormatUint(v.Uint(), 10)
		if longAsNumber {
			return jsonval.Number(s)
		}
		return jsonval.String(s)
	case protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		s := strconv.FormatInt(v.Int(), 10)
		if longAsNumber {
			return jsonval.Number(s)
		}
		return jsonval.String(s)
	case protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		s := strconv.FormatUint(v.Uint(), 10)
		if longAsNumber {
			return jsonval.Number(s)
		}
		return jsonval.String(s)
	case protoreflect.FloatKind:
		return encodeFloat(v.Float(), 32)
	case protoreflect.DoubleKind:
		return encodeFloat(v.Float(), 64)
	case protoreflect.BytesKind:
		return jsonval.String(base64.StdEncoding.EncodeToString(v.Bytes()))
	}
	return jsonval.Null{}
}

// encodeFloat emits finite values as numbers with enough digits for a lossless
// round trip, and the three non-finite values as their reserved strings.
func encodeFloat(f float64, bits int) jsonval.Value {
	switch {
	case math.IsNaN(f):
		return jsonval.String("NaN")
	case math.IsInf(f, 1):
		return jsonval.String("Infinity")
	case math.IsInf(f, -1):
		return jsonval.String("-Infinity")
	}
	return jsonval.Number(strconv.FormatFloat(f, 'g', -1, bits))
}

// decodeScalar converts a JSON value to a non-message, non-enum field value,
// accepting the permissive numeric spellings of the proto3 JSON mapping.
func decodeScalar(kind protoreflect.Kind, v jsonval.Value) (protoreflect.Value, error) {
	switch kind {
	case protoreflect.BoolKind:
		b, ok := v.(jsonval.Bool)
		if !ok {
			return protoreflect.Value{}, formatErrorf("expected JSON bool, got %s", describe(v))
		}
		return protoreflect.ValueOfBool(bool(b)), nil

	case protoreflect.StringKind:
		s, ok := v.(jsonval.String)
		if !ok {
			return protoreflect.Value{}, formatErrorf("expected JSON string, got %s", describe(v))
		}
		return protoreflect.ValueOfString(string(s)), nil

	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind:
		n, err := decodeInt(v, 32)
		if err != nil {
			return protoreflect.Value{}, err
		}
		return protoreflect.ValueOfInt32(int32(n)), nil

	case protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		n, err := decodeInt(v, 64)
		if err != nil {
			return protoreflect.Value{}, err
		}
		return protoreflect.ValueOfInt64(n), nil

	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind:
		n, err := decodeUint(v, 32)
		if err != nil {
			return protoreflect.Value{}, err
		}
		return protoreflect.ValueOfUint32(uint32(n)), nil

	case protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		n, err := decodeUint(v, 64)
		if err != nil {
			return protoreflect.Value{}, err
		}
		return protoreflect.ValueOfUint64(n), nil

	case protoreflect.FloatKind:
		f, err := decodeFloat(v, 32)
		if err != nil {
			return protoreflect.Value{}, err
		}
		return protoreflect.ValueOfFloat32(float32(f)), nil

	case protoreflect.DoubleKind:
		f, err := decodeFloat(v, 64)
		if err != nil {
			return protoreflect.Value{}, err
		}
		return protoreflect.ValueOfFloat64(f), nil

	case protoreflect.BytesKind:
		s, ok := v.(jsonval.String)
		if !ok {
			return protoreflect.Value{}, formatErrorf("expected base64 string, got %s", describe(v))
		}
		b, err := decodeBase64(string(s))
		if err != nil {
			return protoreflect.Value{}, formatErrorf("invalid base64: %v", err)
		}
		return protoreflect.ValueOfBytes(b), nil
	}
	return protoreflect.Value{}, formatErrorf("unsupported field kind %v", kind)
}

func decodeBase64(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(s)
}

// numericLiteral extracts the literal text of a JSON number, or of a string
// holding a number.
func numericLiteral(v jsonval.Value) (string, bool) {
	switch v := v.(type) {
	case jsonval.Number:
		return string(v), true
	case jsonval.String:
		return string(v), true
	}
	return "", false
}

func decodeInt(v jsonval.Value, bits int) (int64, error) {
	lit, ok := numericLiteral(v)
	if !ok {
		return 0, formatErrorf("expected integer, got %s", describe(v))
	}
	if n, err := strconv.ParseInt(lit, 10, bits); err == nil {
		return n, nil
	}
	// Fractional and exponent spellings are accepted and truncated.
	f, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		return 0, formatErrorf("invalid integer %q", lit)
	}
	f = math.Trunc(f)
	min, max := math.MinInt32, math.MaxInt32
	if bits == 64 {
		if f < -9.223372036854776e18 || f >= 9.223372036854776e18 {
			return 0, formatErrorf("integer %q out of range", lit)
		}
		return int64(f), nil
	}
	if f < float64(min) || f > float64(max) {
		return 0, formatErrorf("integer %q out of range", lit)
	}
	return int64(f), nil
}

func decodeUint(v jsonval.Value, bits int) (uint64, error) {
	lit, ok := numericLiteral(v)
	if !ok {
		return 0, formatErrorf("expected unsigned integer, got %s", describe(v))
	}
	if n, err := strconv.ParseUint(lit, 10, bits); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(lit, 64)
	if err != nil {
		return 0, formatErrorf("invalid unsigned integer %q", lit)
	}
	f = math.Trunc(f)
	if f < 0 {
		return 0, formatErrorf("unsigned integer %q out of range", lit)
	}
	if bits == 64 {
		if f >= 1.8446744073709552e19 {
			return 0, formatErrorf("unsigned integer %q out of range", lit)
		}
		return uint64(f), nil
	}
	if f > float64(math.MaxUint32) {
		return 0, formatErrorf("unsigned integer %q out of range", lit)
	}
	return uint64(f), nil
}

func decodeFloat(v jsonval.Value, bits int) (float64, error) {
	switch v := v.(type) {
	case jsonval.Number:
		f, err := strconv.ParseFloat(string(v), 64)
		if err != nil {
			return 0, formatErrorf("invalid number %q", string(v))
		}
		return checkFloatRange(f, bits, string(v))
	case jsonval.String:
		switch string(v) {
		case "NaN":
			return math.NaN(), nil
		case "Infinity":
			return math.Inf(1), nil
		case "-Infinity":
			return math.Inf(-1), nil
		}
		f, err := strconv.ParseFloat(string(v), 64)
		if err != nil {
			return 0, formatErrorf("invalid number %q", string(v))
		}
		return checkFloatRange(f, bits, string(v))
	}
	return 0, formatErrorf("expected number, got %s", describe(v))
}

func checkFloatRange(f float64, bits int, lit string) (float64, error) {
	if bits == 32 && !math.IsInf(f, 0) && math.Abs(f) > math.MaxFloat32 {
		return 0, formatErrorf("number %q out of float range", lit)
	}
	return f, nil
}

// encodeEnum emits an enum value by name, or by number when numeric enum
// output is selected or the number has no registered name.
func encodeEnum(p *Printer, ed protoreflect.EnumDescriptor, num protoreflect.EnumNumber) (jsonval.Value, error) {
	if f, ok := p.formats.enumFormat(ed.FullName()); ok && f.Write != nil {
		return f.Write(p, ed, num)
	}
	if p.enumsAsNumber {
		return jsonval.Number(strconv.FormatInt(int64(num), 10)), nil
	}
	if desc := ed.Values().ByNumber(num); desc != nil {
		return jsonval.String(desc.Name()), nil
	}
	return jsonval.Number(strconv.FormatInt(int64(num), 10)), nil
}

// decodeEnum resolves an enum value from a JSON number (by number) or string
// (by name); unknown names and numbers are errors.
func decodeEnum(pa *Parser, ed protoreflect.EnumDescriptor, v jsonval.Value) (protoreflect.EnumNumber, error) {
	if f, ok := pa.formats.enumFormat(ed.FullName()); ok && f.Read != nil {
		return f.Read(v, ed)
	}
	switch v := v.(type) {
	case jsonval.Number:
		n, err := decodeInt(v, 32)
		if err != nil {
			return 0, err
		}
		num := protoreflect.EnumNumber(n)
		if ed.Values().ByNumber(num) == nil {
			return 0, formatErrorf("unknown value %d for enum %s", n, ed.FullName())
		}
		return num, nil
	case jsonval.String:
		desc := ed.Values().ByName(protoreflect.Name(v))
		if desc == nil {
			return 0, formatErrorf("unknown value %q for enum %s", string(v), ed.FullName())
		}
		return desc.Number(), nil
	}
	return 0, formatErrorf("expected enum name or number, got %s", describe(v))
}

// describe names a JSON value's type for error messages.
func describe(v jsonval.Value) string {
	switch v.(type) {
	case jsonval.Null:
		return "null"
	case jsonval.Bool:
		return "bool"
	case jsonval.Number:
		return "number"
	case jsonval.String:
		return "string"
	case jsonval.Array:
		return "array"
	case *jsonval.Object:
		return "object"
	}
	return fmt.Sprintf("%T", v)
}
