package pbjson

import (
	"strconv"
	"strings"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/datahopper/pbjson/jsonval"
)

// Well-known types carry bespoke JSON forms instead of the generic
// field-by-field object. The formats below are registered in the default
// registry under their google.protobuf full names.

const (
	anyTypeURLFieldNumber = 1
	anyValueFieldNumber   = 2

	secondsFieldNumber = 1
	nanosFieldNumber   = 2

	wrapperValueFieldNumber = 1
	fieldMaskPathsNumber    = 1
	structFieldsNumber      = 1
	listValueValuesNumber   = 1

	maxNanos            = 999999999
	maxDurationSeconds  = 315576000000
	maxTimestampSeconds = 253402300799
	minTimestampSeconds = -62135596800
)

var wellKnownFormats = buildWellKnownFormats()

func buildWellKnownFormats() FormatRegistry {
	r := NewFormatRegistry()
	for _, name := range []protoreflect.FullName{
		"google.protobuf.DoubleValue",
		"google.protobuf.FloatValue",
		"google.protobuf.Int64Value",
		"google.protobuf.UInt64Value",
		"google.protobuf.Int32Value",
		"google.protobuf.UInt32Value",
		"google.protobuf.BoolValue",
		"google.protobuf.StringValue",
		"google.protobuf.BytesValue",
	} {
		r = r.RegisterMessage(name, MessageFormat{Write: writeWrapper, Read: readWrapper})
	}
	r = r.RegisterMessage("google.protobuf.Duration", MessageFormat{Write: writeDuration, Read: readDuration})
	r = r.RegisterMessage("google.protobuf.Timestamp", MessageFormat{Write: writeTimestamp, Read: readTimestamp})
	r = r.RegisterMessage("google.protobuf.FieldMask", MessageFormat{Write: writeFieldMask, Read: readFieldMask})
	r = r.RegisterMessage("google.protobuf.Struct", MessageFormat{Write: writeStruct, Read: readStruct})
	r = r.RegisterMessage("google.protobuf.ListValue", MessageFormat{Write: writeListValue, Read: readListValue})
	r = r.RegisterMessage("google.protobuf.Value", MessageFormat{Write: writeValue, Read: readValue, AcceptsNull: true})
	r = r.RegisterMessage("google.protobuf.Empty", MessageFormat{Write: writeEmpty, Read: readEmpty})
	r = r.RegisterMessage("google.protobuf.Any", MessageFormat{Write: writeAny, Read: readAny})
	r = r.RegisterEnum("google.protobuf.NullValue", EnumFormat{Write: writeNullValue, Read: readNullValue, AcceptsNull: true})
	return r
}

func fieldByNumber(m protoreflect.Message, n protoreflect.FieldNumber) protoreflect.FieldDescriptor {
	return m.Descriptor().Fields().ByNumber(n)
}

// Wrappers serialize as the bare wrapped scalar, not an object.

func writeWrapper(p *Printer, m protoreflect.Message) (jsonval.Value, error) {
	fd := fieldByNumber(m, wrapperValueFieldNumber)
	return encodeScalar(fd.Kind(), m.Get(fd), p.longAsNumber), nil
}

func readWrapper(pa *Parser, v jsonval.Value, m protoreflect.Message) error {
	fd := fieldByNumber(m, wrapperValueFieldNumber)
	val, err := decodeScalar(fd.Kind(), v)
	if err != nil {
		return err
	}
	m.Set(fd, val)
	return nil
}

// Duration serializes as "{seconds}.{nanos}s" with the fraction trimmed to
// 3, 6, or 9 digits.

func writeDuration(p *Printer, m protoreflect.Message) (jsonval.Value, error) {
	secs := m.Get(fieldByNumber(m, secondsFieldNumber)).Int()
	nanos := m.Get(fieldByNumber(m, nanosFieldNumber)).Int()
	if secs < -maxDurationSeconds || secs > maxDurationSeconds {
		return nil, formatErrorf("duration seconds %d out of range", secs)
	}
	if nanos < -maxNanos || nanos > maxNanos {
		return nil, formatErrorf("duration nanos %d out of range", nanos)
	}
	if (secs > 0 && nanos < 0) || (secs < 0 && nanos > 0) {
		return nil, formatErrorf("duration seconds and nanos have different signs")
	}

	var b strings.Builder
	if secs < 0 || nanos < 0 {
		b.WriteByte('-')
		secs, nanos = -secs, -nanos
	}
	b.WriteString(strconv.FormatInt(secs, 10))
	b.WriteString(fracSeconds(int32(nanos)))
	b.WriteByte('s')
	return jsonval.String(b.String()), nil
}

// fracSeconds renders nanos as ".ddd", ".dddddd", ".ddddddddd", or "" for 0.
func fracSeconds(nanos int32) string {
	if nanos == 0 {
		return ""
	}
	s := strconv.FormatInt(int64(nanos)+1e9, 10)[1:] // zero-padded to 9 digits
	switch {
	case strings.HasSuffix(s, "000000"):
		return "." + s[:3]
	case strings.HasSuffix(s, "000"):
		return "." + s[:6]
	default:
		return "." + s
	}
}

func readDuration(pa *Parser, v jsonval.Value, m protoreflect.Message) error {
	s, ok := v.(jsonval.String)
	if !ok {
		return formatErrorf("expected duration string, got %s", describe(v))
	}
	secs, nanos, err := parseDuration(string(s))
	if err != nil {
		return err
	}
	m.Set(fieldByNumber(m, secondsFieldNumber), protoreflect.ValueOfInt64(secs))
	m.Set(fieldByNumber(m, nanosFieldNumber), protoreflect.ValueOfInt32(nanos))
	return nil
}

func parseDuration(input string) (int64, int32, error) {
	s := input
	if !strings.HasSuffix(s, "s") {
		return 0, 0, formatErrorf("invalid duration %q", input)
	}
	s = s[:len(s)-1]
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	intPart := s
	fracPart := ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, fracPart = s[:i], s[i+1:]
	}
	if intPart == "" || !isDigits(intPart) {
		return 0, 0, formatErrorf("invalid duration %q", input)
	}
	secs, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil || secs > maxDurationSeconds {
		return 0, 0, formatErrorf("duration %q out of range", input)
	}
	var nanos int64
	if fracPart != "" {
		if len(fracPart) > 9 || !isDigits(fracPart) {
			return 0, 0, formatErrorf("invalid duration %q", input)
		}
		nanos, _ = strconv.ParseInt(fracPart+strings.Repeat("0", 9-len(fracPart)), 10, 64)
	}
	if neg {
		secs, nanos = -secs, -nanos
	}
	return secs, int32(nanos), nil
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return len(s) > 0
}

// Timestamp serializes as an RFC 3339 UTC string with a Z suffix.

func writeTimestamp(p *Printer, m protoreflect.Message) (jsonval.Value, error) {
	secs := m.Get(fieldByNumber(m, secondsFieldNumber)).Int()
	nanos := m.Get(fieldByNumber(m, nanosFieldNumber)).Int()
	if secs < minTimestampSeconds || secs > maxTimestampSeconds {
		return nil, formatErrorf("timestamp seconds %d out of range", secs)
	}
	if nanos < 0 || nanos > maxNanos {
		return nil, formatErrorf("timestamp nanos %d out of range", nanos)
	}
	t := time.Unix(secs, 0).UTC()
	return jsonval.String(t.Format("2006-01-02T15:04:05") + fracSeconds(int32(nanos)) + "Z"), nil
}

func readTimestamp(pa *Parser, v jsonval.Value, m protoreflect.Message) error {
	s, ok := v.(jsonval.String)
	if !ok {
		return formatErrorf("expected timestamp string, got %s", describe(v))
	}
	t, err := time.Parse(time.RFC3339Nano, string(s))
	if err != nil {
		return formatErrorf("invalid timestamp %q: %v", string(s), err)
	}
	t = t.UTC()
	secs := t.Unix()
	if secs < minTimestampSeconds || secs > maxTimestampSeconds {
		return formatErrorf("timestamp %q out of range", string(s))
	}
	m.Set(fieldByNumber(m, secondsFieldNumber), protoreflect.ValueOfInt64(secs))
	m.Set(fieldByNumber(m, nanosFieldNumber), protoreflect.ValueOfInt32(int32(t.Nanosecond())))
	return nil
}

// FieldMask serializes as a comma-joined list of lowerCamelCase paths.

func writeFieldMask(p *Printer, m protoreflect.Message) (jsonval.Value, error) {
	fd := fieldByNumber(m, fieldMaskPathsNumber)
	paths := m.Get(fd).List()
	parts := make([]string, 0, paths.Len())
	for i := 0; i < paths.Len(); i++ {
		path := paths.Get(i).String()
		if strings.ContainsAny(path, "ABCDEFGHIJKLMNOPQRSTUVWXYZ") {
			return nil, formatErrorf("field mask path %q cannot be converted to camelCase", path)
		}
		parts = append(parts, jsonCamelCase(path))
	}
	return jsonval.String(strings.Join(parts, ",")), nil
}

func readFieldMask(pa *Parser, v jsonval.Value, m protoreflect.Message) error {
	s, ok := v.(jsonval.String)
	if !ok {
		return formatErrorf("expected field mask string, got %s", describe(v))
	}
	fd := fieldByNumber(m, fieldMaskPathsNumber)
	val := m.NewField(fd)
	list := val.List()
	if string(s) != "" {
		for _, part := range strings.Split(string(s), ",") {
			if strings.Contains(part, "_") {
				return formatErrorf("invalid field mask path %q", part)
			}
			list.Append(protoreflect.ValueOfString(jsonSnakeCase(part)))
		}
	}
	m.Set(fd, val)
	return nil
}

// jsonCamelCase converts snake_case to lowerCamelCase the way JSON field
// names are derived from proto names.
func jsonCamelCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	up := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '_' {
			up = true
			continue
		}
		if up && 'a' <= c && c <= 'z' {
			c -= 'a' - 'A'
		}
		up = false
		b.WriteByte(c)
	}
	return b.String()
}

// jsonSnakeCase converts lowerCamelCase back to snake_case.
func jsonSnakeCase(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 4)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if 'A' <= c && c <= 'Z' {
			b.WriteByte('_')
			c += 'a' - 'A'
		}
		b.WriteByte(c)
	}
	return b.String()
}

// Struct, Value, and ListValue map directly onto JSON objects, values, and
// arrays.

func writeStruct(p *Printer, m protoreflect.Message) (jsonval.Value, error) {
	fd := fieldByNumber(m, structFieldsNumber)
	mmap := m.Get(fd).Map()
	entries := make([]mapEntry, 0, mmap.Len())
	mmap.Range(func(k protoreflect.MapKey, v protoreflect.Value) bool {
		entries = append(entries, mapEntry{key: k, value: v})
		return true
	})
	sortMapEntries(protoreflect.StringKind, entries)

	obj := jsonval.NewObject(len(entries))
	for _, e := range entries {
		v, err := p.marshalMessage(e.value.Message())
		if err != nil {
			return nil, fieldError("["+e.key.String()+"]", err)
		}
		obj.Set(e.key.String(), v)
	}
	return obj, nil
}

func readStruct(pa *Parser, v jsonval.Value, m protoreflect.Message) error {
	obj, ok := v.(*jsonval.Object)
	if !ok {
		return formatErrorf("expected JSON object for Struct, got %s", describe(v))
	}
	fd := fieldByNumber(m, structFieldsNumber)
	val := m.NewField(fd)
	mmap := val.Map()
	for _, member := range obj.Members() {
		mv := mmap.NewValue()
		if err := pa.unmarshalMessage(member.Value, mv.Message()); err != nil {
			return fieldError("["+member.Key+"]", err)
		}
		mmap.Set(protoreflect.ValueOfString(member.Key).MapKey(), mv)
	}
	m.Set(fd, val)
	return nil
}

func writeListValue(p *Printer, m protoreflect.Message) (jsonval.Value, error) {
	fd := fieldByNumber(m, listValueValuesNumber)
	list := m.Get(fd).List()
	arr := make(jsonval.Array, 0, list.Len())
	for i := 0; i < list.Len(); i++ {
		v, err := p.marshalMessage(list.Get(i).Message())
		if err != nil {
			return nil, fieldError("["+strconv.Itoa(i)+"]", err)
		}
		arr = append(arr, v)
	}
	return arr, nil
}

func readListValue(pa *Parser, v jsonval.Value, m protoreflect.Message) error {
	arr, ok := v.(jsonval.Array)
	if !ok {
		return formatErrorf("expected JSON array for ListValue, got %s", describe(v))
	}
	fd := fieldByNumber(m, listValueValuesNumber)
	val := m.NewField(fd)
	list := val.List()
	for i, elem := range arr {
		ev := list.NewElement()
		if err := pa.unmarshalMessage(elem, ev.Message()); err != nil {
			return fieldError("["+strconv.Itoa(i)+"]", err)
		}
		list.Append(ev)
	}
	m.Set(fd, val)
	return nil
}

func writeValue(p *Printer, m protoreflect.Message) (jsonval.Value, error) {
	od := m.Descriptor().Oneofs().Get(0)
	fd := m.WhichOneof(od)
	if fd == nil {
		return jsonval.Null{}, nil
	}
	switch fd.Number() {
	case 1: // null_value
		return jsonval.Null{}, nil
	case 2: // number_value
		return encodeFloat(m.Get(fd).Float(), 64), nil
	case 3: // string_value
		return jsonval.String(m.Get(fd).String()), nil
	case 4: // bool_value
		return jsonval.Bool(m.Get(fd).Bool()), nil
	case 5: // struct_value
		return p.marshalMessage(m.Get(fd).Message())
	case 6: // list_value
		return p.marshalMessage(m.Get(fd).Message())
	}
	return nil, formatErrorf("malformed google.protobuf.Value")
}

func readValue(pa *Parser, v jsonval.Value, m protoreflect.Message) error {
	fields := m.Descriptor().Fields()
	switch v := v.(type) {
	case jsonval.Null:
		m.Set(fields.ByNumber(1), protoreflect.ValueOfEnum(0))
	case jsonval.Number:
		f, err := decodeFloat(v, 64)
		if err != nil {
			return err
		}
		m.Set(fields.ByNumber(2), protoreflect.ValueOfFloat64(f))
	case jsonval.String:
		m.Set(fields.ByNumber(3), protoreflect.ValueOfString(string(v)))
	case jsonval.Bool:
		m.Set(fields.ByNumber(4), protoreflect.ValueOfBool(bool(v)))
	case *jsonval.Object:
		fd := fields.ByNumber(5)
		sv := m.NewField(fd)
		if err := pa.unmarshalMessage(v, sv.Message()); err != nil {
			return err
		}
		m.Set(fd, sv)
	case jsonval.Array:
		fd := fields.ByNumber(6)
		lv := m.NewField(fd)
		if err := pa.unmarshalMessage(v, lv.Message()); err != nil {
			return err
		}
		m.Set(fd, lv)
	default:
		return formatErrorf("unsupported JSON value for google.protobuf.Value")
	}
	return nil
}

// NullValue encodes as JSON null.

func writeNullValue(p *Printer, ed protoreflect.EnumDescriptor, num protoreflect.EnumNumber) (jsonval.Value, error) {
	return jsonval.Null{}, nil
}

func readNullValue(v jsonval.Value, ed protoreflect.EnumDescriptor) (protoreflect.EnumNumber, error) {
	switch v := v.(type) {
	case jsonval.Null:
		return 0, nil
	case jsonval.String:
		if string(v) == "NULL_VALUE" {
			return 0, nil
		}
	case jsonval.Number:
		if string(v) == "0" {
			return 0, nil
		}
	}
	return 0, formatErrorf("expected null for %s, got %s", ed.FullName(), describe(v))
}

// Empty encodes as an empty object.

func writeEmpty(p *Printer, m protoreflect.Message) (jsonval.Value, error) {
	return jsonval.NewObject(0), nil
}

func readEmpty(pa *Parser, v jsonval.Value, m protoreflect.Message) error {
	if _, ok := v.(*jsonval.Object); !ok {
		return formatErrorf("expected JSON object for Empty, got %s", describe(v))
	}
	return nil
}

// Any encodes as an object carrying a @type key; inner types with their own
// registered format nest under a "value" key, all others spread their fields
// at the top level.

func writeAny(p *Printer, m protoreflect.Message) (jsonval.Value, error) {
	urlFd := fieldByNumber(m, anyTypeURLFieldNumber)
	valueFd := fieldByNumber(m, anyValueFieldNumber)
	url := m.Get(urlFd).String()
	data := m.Get(valueFd).Bytes()
	if url == "" && len(data) == 0 {
		return jsonval.NewObject(0), nil
	}

	md, ok := p.types.FindByURL(url)
	if !ok {
		return nil, formatErrorf("type URL %q not found in type registry", url)
	}
	inner := dynamicpb.NewMessage(md)
	if err := proto.Unmarshal(data, inner); err != nil {
		return nil, formatErrorf("cannot decode Any payload for %q: %v", url, err)
	}

	if f, ok := p.formats.messageFormat(md.FullName()); ok && f.Write != nil {
		v, err := f.Write(p, inner)
		if err != nil {
			return nil, err
		}
		obj := jsonval.NewObject(2)
		obj.Set("@type", jsonval.String(url))
		obj.Set("value", v)
		return obj, nil
	}

	v, err := p.marshalMessage(inner)
	if err != nil {
		return nil, err
	}
	fieldsObj := v.(*jsonval.Object)
	obj := jsonval.NewObject(fieldsObj.Len() + 1)
	obj.Set("@type", jsonval.String(url))
	for _, member := range fieldsObj.Members() {
		obj.Set(member.Key, member.Value)
	}
	return obj, nil
}

func readAny(pa *Parser, v jsonval.Value, m protoreflect.Message) error {
	obj, ok := v.(*jsonval.Object)
	if !ok {
		return formatErrorf("expected JSON object for Any, got %s", describe(v))
	}
	if obj.Len() == 0 {
		return nil
	}
	rawURL, ok := obj.Get("@type")
	if !ok {
		return formatErrorf("missing @type field in Any")
	}
	url, ok := rawURL.(jsonval.String)
	if !ok {
		return formatErrorf("expected string @type field in Any, got %s", describe(rawURL))
	}
	md, ok := pa.types.FindByURL(string(url))
	if !ok {
		return formatErrorf("type URL %q not found in type registry", string(url))
	}

	inner := dynamicpb.NewMessage(md)
	if f, ok := pa.formats.messageFormat(md.FullName()); ok && f.Read != nil {
		raw, ok := obj.Get("value")
		if !ok {
			return formatErrorf("missing value field for Any of type %q", string(url))
		}
		if err := f.Read(pa, raw, inner); err != nil {
			return err
		}
	} else {
		spread := jsonval.NewObject(obj.Len())
		for _, member := range obj.Members() {
			if member.Key == "@type" {
				continue
			}
			spread.Set(member.Key, member.Value)
		}
		if err := pa.unmarshalMessage(spread, inner); err != nil {
			return err
		}
	}

	data, err := proto.Marshal(inner)
	if err != nil {
		return formatErrorf("cannot encode Any payload for %q: %v", string(url), err)
	}
	m.Set(fieldByNumber(m, anyTypeURLFieldNumber), protoreflect.ValueOfString(string(url)))
	m.Set(fieldByNumber(m, anyValueFieldNumber), protoreflect.ValueOfBytes(data))
	return nil
}
