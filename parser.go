package pbjson

import (
	"strconv"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/datahopper/pbjson/jsonval"
)

// Parser materializes proto messages from their proto3 JSON form. A Parser is
// immutable after construction and safe for concurrent use.
type Parser struct {
	protoNames bool
	formats    FormatRegistry
	types      TypeRegistry
}

// NewParser returns a Parser with the default well-known-type formats and an
// empty type registry.
func NewParser() *Parser {
	return &Parser{formats: DefaultFormatRegistry()}
}

// PreservingProtoFieldNames returns a copy that looks up fields by proto name
// instead of lowerCamelCase JSON name.
func (pa *Parser) PreservingProtoFieldNames() *Parser {
	c := *pa
	c.protoNames = true
	return &c
}

// WithFormatRegistry returns a copy using the given format registry.
func (pa *Parser) WithFormatRegistry(r FormatRegistry) *Parser {
	c := *pa
	c.formats = r
	return &c
}

// WithTypeRegistry returns a copy using the given type registry for Any
// resolution.
func (pa *Parser) WithTypeRegistry(t TypeRegistry) *Parser {
	c := *pa
	c.types = t
	return &c
}

// FromJSONString parses a JSON document into m, replacing its contents.
func (pa *Parser) FromJSONString(s string, m proto.Message) error {
	v, err := jsonval.Parse([]byte(s))
	if err != nil {
		return formatErrorf("invalid JSON: %v", err)
	}
	return pa.FromJSON(v, m)
}

// FromJSON populates m from a JSON value tree, replacing its contents.
func (pa *Parser) FromJSON(v jsonval.Value, m proto.Message) error {
	proto.Reset(m)
	return pa.unmarshalMessage(v, m.ProtoReflect())
}

// ParseString parses a JSON document into a new dynamic message described by
// md.
func (pa *Parser) ParseString(s string, md protoreflect.MessageDescriptor) (proto.Message, error) {
	v, err := jsonval.Parse([]byte(s))
	if err != nil {
		return nil, formatErrorf("invalid JSON: %v", err)
	}
	return pa.Parse(v, md)
}

// Parse materializes a new dynamic message described by md from a JSON value
// tree.
func (pa *Parser) Parse(v jsonval.Value, md protoreflect.MessageDescriptor) (proto.Message, error) {
	m := dynamicpb.NewMessage(md)
	if err := pa.unmarshalMessage(v, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (pa *Parser) unmarshalMessage(v jsonval.Value, m protoreflect.Message) error {
	md := m.Descriptor()
	if f, ok := pa.formats.messageFormat(md.FullName()); ok && f.Read != nil {
		return f.Read(pa, v, m)
	}

	obj, ok := v.(*jsonval.Object)
	if !ok {
		return formatErrorf("expected JSON object for message %s, got %s", md.FullName(), describe(v))
	}

	// Unknown object keys are ignored for forward compatibility; only names
	// the descriptor knows are consulted.
	fields := md.Fields()
	for i := 0; i < fields.Len(); i++ {
		fd := fields.Get(i)
		raw, present := obj.Get(pa.fieldName(fd))
		if !present {
			continue
		}
		if _, isNull := raw.(jsonval.Null); isNull && !pa.readsNull(fd) {
			// null means the field is absent.
			continue
		}
		if err := pa.unmarshalField(raw, fd, m); err != nil {
			return fieldError(pa.fieldName(fd), err)
		}
	}
	return nil
}

func (pa *Parser) fieldName(fd protoreflect.FieldDescriptor) string {
	if pa.protoNames {
		return string(fd.Name())
	}
	return fd.JSONName()
}

// readsNull reports whether a registered format for the field's type consumes
// JSON null itself (NullValue, Value).
func (pa *Parser) readsNull(fd protoreflect.FieldDescriptor) bool {
	if fd.IsMap() || fd.IsList() {
		return false
	}
	switch fd.Kind() {
	case protoreflect.MessageKind, protoreflect.GroupKind:
		f, ok := pa.formats.messageFormat(fd.Message().FullName())
		return ok && f.AcceptsNull
	case protoreflect.EnumKind:
		f, ok := pa.formats.enumFormat(fd.Enum().FullName())
		return ok && f.AcceptsNull
	}
	return false
}

func (pa *Parser) unmarshalField(v jsonval.Value, fd protoreflect.FieldDescriptor, m protoreflect.Message) error {
	switch {
	case fd.IsMap():
		return pa.unmarshalMap(v, fd, m)
	case fd.IsList():
		return pa.unmarshalList(v, fd, m)
	default:
		val, err := pa.unmarshalSingular(v, fd, m)
		if err != nil {
			return err
		}
		m.Set(fd, val)
		return nil
	}
}

// unmarshalSingular decodes one value for fd. Message-typed values are built
// through m.NewField so dynamic and generated messages both work.
func (pa *Parser) unmarshalSingular(v jsonval.Value, fd protoreflect.FieldDescriptor, m protoreflect.Message) (protoreflect.Value, error) {
	switch fd.Kind() {
	case protoreflect.EnumKind:
		num, err := decodeEnum(pa, fd.Enum(), v)
		if err != nil {
			return protoreflect.Value{}, err
		}
		return protoreflect.ValueOfEnum(num), nil
	case protoreflect.MessageKind, protoreflect.GroupKind:
		val := m.NewField(fd)
		if err := pa.unmarshalMessage(v, val.Message()); err != nil {
			return protoreflect.Value{}, err
		}
		return val, nil
	default:
		return decodeScalar(fd.Kind(), v)
	}
}

func (pa *Parser) unmarshalList(v jsonval.Value, fd protoreflect.FieldDescriptor, m protoreflect.Message) error {
	arr, ok := v.(jsonval.Array)
	if !ok {
		return formatErrorf("expected JSON array, got %s", describe(v))
	}
	val := m.NewField(fd)
	list := val.List()
	for i, elem := range arr {
		var ev protoreflect.Value
		var err error
		switch fd.Kind() {
		case protoreflect.MessageKind, protoreflect.GroupKind:
			ev = list.NewElement()
			err = pa.unmarshalMessage(elem, ev.Message())
		case protoreflect.EnumKind:
			var num protoreflect.EnumNumber
			num, err = decodeEnum(pa, fd.Enum(), elem)
			ev = protoreflect.ValueOfEnum(num)
		default:
			ev, err = decodeScalar(fd.Kind(), elem)
		}
		if err != nil {
			return fieldError("["+strconv.Itoa(i)+"]", err)
		}
		list.Append(ev)
	}
	m.Set(fd, val)
	return nil
}

func (pa *Parser) unmarshalMap(v jsonval.Value, fd protoreflect.FieldDescriptor, m protoreflect.Message) error {
	obj, ok := v.(*jsonval.Object)
	if !ok {
		return formatErrorf("expected JSON object for map, got %s", describe(v))
	}
	val := m.NewField(fd)
	mmap := val.Map()
	keyFd, valFd := fd.MapKey(), fd.MapValue()
	for _, member := range obj.Members() {
		key, err := pa.unmarshalMapKey(member.Key, keyFd)
		if err != nil {
			return fieldError("["+member.Key+"]", err)
		}
		var mv protoreflect.Value
		switch valFd.Kind() {
		case protoreflect.MessageKind, protoreflect.GroupKind:
			mv = mmap.NewValue()
			err = pa.unmarshalMessage(member.Value, mv.Message())
		case protoreflect.EnumKind:
			var num protoreflect.EnumNumber
			num, err = decodeEnum(pa, valFd.Enum(), member.Value)
			mv = protoreflect.ValueOfEnum(num)
		default:
			mv, err = decodeScalar(valFd.Kind(), member.Value)
		}
		if err != nil {
			return fieldError("["+member.Key+"]", err)
		}
		mmap.Set(key, mv)
	}
	m.Set(fd, val)
	return nil
}

// unmarshalMapKey converts a JSON object key back to the key field's proto
// type.
func (pa *Parser) unmarshalMapKey(key string, fd protoreflect.FieldDescriptor) (protoreflect.MapKey, error) {
	switch fd.Kind() {
	case protoreflect.StringKind:
		return protoreflect.ValueOfString(key).MapKey(), nil
	case protoreflect.BoolKind:
		switch key {
		case "true":
			return protoreflect.ValueOfBool(true).MapKey(), nil
		case "false":
			return protoreflect.ValueOfBool(false).MapKey(), nil
		}
		return protoreflect.MapKey{}, formatErrorf("invalid bool map key %q", key)
	default:
		v, err := decodeScalar(fd.Kind(), jsonval.String(key))
		if err != nil {
			return protoreflect.MapKey{}, err
		}
		return v.MapKey(), nil
	}
}
