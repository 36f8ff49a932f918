package pbjson

import (
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"

	"github.com/datahopper/pbjson/jsonval"
)

// MessageWriter produces the custom JSON form of a message.
type MessageWriter func(p *Printer, m protoreflect.Message) (jsonval.Value, error)

// MessageReader populates a message from its custom JSON form.
type MessageReader func(pa *Parser, v jsonval.Value, m protoreflect.Message) error

// EnumWriter produces the custom JSON form of an enum value.
type EnumWriter func(p *Printer, ed protoreflect.EnumDescriptor, num protoreflect.EnumNumber) (jsonval.Value, error)

// EnumReader resolves an enum number from a custom JSON form.
type EnumReader func(v jsonval.Value, ed protoreflect.EnumDescriptor) (protoreflect.EnumNumber, error)

// MessageFormat is a registered (write, read) pair for one message type.
// AcceptsNull marks readers that consume JSON null themselves instead of
// treating it as field absence.
type MessageFormat struct {
	Write       MessageWriter
	Read        MessageReader
	AcceptsNull bool
}

// EnumFormat is a registered (write, read) pair for one enum type.
type EnumFormat struct {
	Write       EnumWriter
	Read        EnumReader
	AcceptsNull bool
}

// FormatRegistry maps message and enum full names to custom formats. It is a
// value type: registration returns a new registry and never mutates the
// receiver, so a shared baseline registry is safe to extend concurrently.
type FormatRegistry struct {
	messages map[protoreflect.FullName]MessageFormat
	enums    map[protoreflect.FullName]EnumFormat
}

// NewFormatRegistry returns an empty registry.
func NewFormatRegistry() FormatRegistry {
	return FormatRegistry{}
}

// DefaultFormatRegistry returns a registry pre-populated with the well-known
// type formats (Duration, Timestamp, FieldMask, wrappers, Struct family,
// NullValue, Any, Empty).
func DefaultFormatRegistry() FormatRegistry {
	return wellKnownFormats
}

// RegisterMessage returns a copy of the registry with a format bound to the
// given message full name.
func (r FormatRegistry) RegisterMessage(name protoreflect.FullName, f MessageFormat) FormatRegistry {
	messages := make(map[protoreflect.FullName]MessageFormat, len(r.messages)+1)
	for k, v := range r.messages {
		messages[k] = v
	}
	messages[name] = f
	return FormatRegistry{messages: messages, enums: r.enums}
}

// RegisterEnum returns a copy of the registry with a format bound to the
// given enum full name.
func (r FormatRegistry) RegisterEnum(name protoreflect.FullName, f EnumFormat) FormatRegistry {
	enums := make(map[protoreflect.FullName]EnumFormat, len(r.enums)+1)
	for k, v := range r.enums {
		enums[k] = v
	}
	enums[name] = f
	return FormatRegistry{messages: r.messages, enums: enums}
}

func (r FormatRegistry) messageFormat(name protoreflect.FullName) (MessageFormat, bool) {
	f, ok := r.messages[name]
	return f, ok
}

func (r FormatRegistry) enumFormat(name protoreflect.FullName) (EnumFormat, bool) {
	f, ok := r.enums[name]
	return f, ok
}

// TypeRegistry maps fully-qualified proto type names to message descriptors.
// It resolves google.protobuf.Any type URLs during both encoding and decoding.
// Like FormatRegistry it is a persistent value type.
type TypeRegistry struct {
	types map[protoreflect.FullName]protoreflect.MessageDescriptor
}

// NewTypeRegistry returns an empty type registry.
func NewTypeRegistry() TypeRegistry {
	return TypeRegistry{}
}

// Register returns a copy of the registry with the given message descriptors
// added, keyed by full name.
func (t TypeRegistry) Register(mds ...protoreflect.MessageDescriptor) TypeRegistry {
	types := make(map[protoreflect.FullName]protoreflect.MessageDescriptor, len(t.types)+len(mds))
	for k, v := range t.types {
		types[k] = v
	}
	for _, md := range mds {
		types[md.FullName()] = md
	}
	return TypeRegistry{types: types}
}

// RegisterFiles returns a copy of the registry with every message type (and
// nested message type) of every file in files added.
func (t TypeRegistry) RegisterFiles(files *protoregistry.Files) TypeRegistry {
	types := make(map[protoreflect.FullName]protoreflect.MessageDescriptor, len(t.types))
	for k, v := range t.types {
		types[k] = v
	}
	files.RangeFiles(func(fd protoreflect.FileDescriptor) bool {
		registerMessages(types, fd.Messages())
		return true
	})
	return TypeRegistry{types: types}
}

func registerMessages(types map[protoreflect.FullName]protoreflect.MessageDescriptor, mds protoreflect.MessageDescriptors) {
	for i := 0; i < mds.Len(); i++ {
		md := mds.Get(i)
		types[md.FullName()] = md
		registerMessages(types, md.Messages())
	}
}

// FindByName returns the descriptor registered for a full type name.
func (t TypeRegistry) FindByName(name protoreflect.FullName) (protoreflect.MessageDescriptor, bool) {
	md, ok := t.types[name]
	return md, ok
}

// FindByURL resolves a type URL of the form "prefix/full.Name"; the prefix up
// to and including the last slash is ignored.
func (t TypeRegistry) FindByURL(url string) (protoreflect.MessageDescriptor, bool) {
	name := url
	for i := len(url) - 1; i >= 0; i-- {
		if url[i] == '/' {
			name = url[i+1:]
			break
		}
	}
	return t.FindByName(protoreflect.FullName(name))
}
