package pbjson

import (
	"sort"
	"strconv"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/datahopper/pbjson/jsonval"
)

// Printer serializes proto messages to their proto3 JSON form. A Printer is
// immutable after construction; the With/Including methods return modified
// copies, so one Printer may be shared across goroutines.
type Printer struct {
	includeDefaults bool
	protoNames      bool
	longAsNumber    bool
	enumsAsNumber   bool
	formats         FormatRegistry
	types           TypeRegistry
}

// NewPrinter returns a Printer with the default well-known-type formats and
// an empty type registry.
func NewPrinter() *Printer {
	return &Printer{formats: DefaultFormatRegistry()}
}

// IncludingDefaultValueFields returns a copy that also emits proto3
// default-valued singular scalars and empty repeated/map fields.
func (p *Printer) IncludingDefaultValueFields() *Printer {
	c := *p
	c.includeDefaults = true
	return &c
}

// PreservingProtoFieldNames returns a copy that emits proto field names
// instead of lowerCamelCase JSON names.
func (p *Printer) PreservingProtoFieldNames() *Printer {
	c := *p
	c.protoNames = true
	return &c
}

// FormattingLongAsNumber returns a copy that emits 64-bit and unsigned 32-bit
// integers as JSON numbers instead of strings.
func (p *Printer) FormattingLongAsNumber() *Printer {
	c := *p
	c.longAsNumber = true
	return &c
}

// FormattingEnumsAsNumber returns a copy that emits enum values as numbers
// instead of names.
func (p *Printer) FormattingEnumsAsNumber() *Printer {
	c := *p
	c.enumsAsNumber = true
	return &c
}

// WithFormatRegistry returns a copy using the given format registry.
func (p *Printer) WithFormatRegistry(r FormatRegistry) *Printer {
	c := *p
	c.formats = r
	return &c
}

// WithTypeRegistry returns a copy using the given type registry for Any
// resolution.
func (p *Printer) WithTypeRegistry(t TypeRegistry) *Printer {
	c := *p
	c.types = t
	return &c
}

// Print serializes m as a compact JSON document.
func (p *Printer) Print(m proto.Message) (string, error) {
	v, err := p.ToJSON(m)
	if err != nil {
		return "", err
	}
	return string(jsonval.Marshal(v)), nil
}

// ToJSON converts m to a JSON value tree.
func (p *Printer) ToJSON(m proto.Message) (jsonval.Value, error) {
	return p.marshalMessage(m.ProtoReflect())
}

func (p *Printer) marshalMessage(m protoreflect.Message) (jsonval.Value, error) {
	md := m.Descriptor()
	if f, ok := p.formats.messageFormat(md.FullName()); ok && f.Write != nil {
		return f.Write(p, m)
	}

	fields := md.Fields()
	obj := jsonval.NewObject(fields.Len())
	for i := 0; i < fields.Len(); i++ {
		fd := fields.Get(i)
		if !m.Has(fd) {
			// Fields with presence stay absent: an unset message is never
			// emitted (a sentinel could recurse forever on self-referential
			// schemas) and an unset oneof arm means the arm is not selected.
			if !p.includeDefaults || fd.HasPresence() {
				continue
			}
		}
		v, err := p.marshalField(fd, m.Get(fd))
		if err != nil {
			return nil, fieldError(p.fieldName(fd), err)
		}
		obj.Set(p.fieldName(fd), v)
	}
	return obj, nil
}

func (p *Printer) fieldName(fd protoreflect.FieldDescriptor) string {
	if p.protoNames {
		return string(fd.Name())
	}
	return fd.JSONName()
}

func (p *Printer) marshalField(fd protoreflect.FieldDescriptor, v protoreflect.Value) (jsonval.Value, error) {
	switch {
	case fd.IsMap():
		return p.marshalMap(fd, v.Map())
	case fd.IsList():
		return p.marshalList(fd, v.List())
	default:
		return p.marshalSingular(fd, v)
	}
}

func (p *Printer) marshalSingular(fd protoreflect.FieldDescriptor, v protoreflect.Value) (jsonval.Value, error) {
	switch fd.Kind() {
	case protoreflect.EnumKind:
		return encodeEnum(p, fd.Enum(), v.Enum())
	case protoreflect.MessageKind, protoreflect.GroupKind:
		return p.marshalMessage(v.Message())
	default:
		return encodeScalar(fd.Kind(), v, p.longAsNumber), nil
	}
}

func (p *Printer) marshalList(fd protoreflect.FieldDescriptor, list protoreflect.List) (jsonval.Value, error) {
	arr := make(jsonval.Array, 0, list.Len())
	for i := 0; i < list.Len(); i++ {
		v, err := p.marshalSingular(fd, list.Get(i))
		if err != nil {
			return nil, fieldError("["+strconv.Itoa(i)+"]", err)
		}
		arr = append(arr, v)
	}
	return arr, nil
}

type mapEntry struct {
	key   protoreflect.MapKey
	value protoreflect.Value
}

func (p *Printer) marshalMap(fd protoreflect.FieldDescriptor, mmap protoreflect.Map) (jsonval.Value, error) {
	entries := make([]mapEntry, 0, mmap.Len())
	mmap.Range(func(k protoreflect.MapKey, v protoreflect.Value) bool {
		entries = append(entries, mapEntry{key: k, value: v})
		return true
	})
	sortMapEntries(fd.MapKey().Kind(), entries)

	obj := jsonval.NewObject(len(entries))
	for _, e := range entries {
		key := mapKeyString(fd.MapKey().Kind(), e.key)
		v, err := p.marshalSingular(fd.MapValue(), e.value)
		if err != nil {
			return nil, fieldError("["+key+"]", err)
		}
		obj.Set(key, v)
	}
	return obj, nil
}

// mapKeyString stringifies a map key; keys of every proto type become JSON
// object keys.
func mapKeyString(kind protoreflect.Kind, k protoreflect.MapKey) string {
	switch kind {
	case protoreflect.BoolKind:
		return strconv.FormatBool(k.Bool())
	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind,
		protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		return strconv.FormatInt(k.Int(), 10)
	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind,
		protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		return strconv.FormatUint(k.Uint(), 10)
	default:
		return k.String()
	}
}

// sortMapEntries orders entries by key for deterministic output.
func sortMapEntries(kind protoreflect.Kind, entries []mapEntry) {
	sort.Slice(entries, func(i, j int) bool {
		switch kind {
		case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind,
			protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
			return entries[i].key.Int() < entries[j].key.Int()
		case protoreflect.Uint32Kind, protoreflect.Fixed32Kind,
			protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
			return entries[i].key.Uint() < entries[j].key.Uint()
		}
		return entries[i].key.String() < entries[j].key.String()
	})
}
