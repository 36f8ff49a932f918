package pbjson_test

import (
	"fmt"
	"math"
	"testing"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/datahopper/pbjson"
)

// buildRichMessage populates every scalar field of a Scalars message with a
// non-default value.
func buildRichMessage(t *testing.T) proto.Message {
	t.Helper()

	scalars := newMessage(t, "pbjsontest.Scalars")
	scalars.Set(field(t, scalars, "i32"), protoreflect.ValueOfInt32(-42))
	scalars.Set(field(t, scalars, "i64"), protoreflect.ValueOfInt64(math.MaxInt64))
	scalars.Set(field(t, scalars, "u32"), protoreflect.ValueOfUint32(math.MaxUint32))
	scalars.Set(field(t, scalars, "u64"), protoreflect.ValueOfUint64(math.MaxUint64))
	scalars.Set(field(t, scalars, "s32"), protoreflect.ValueOfInt32(7))
	scalars.Set(field(t, scalars, "s64"), protoreflect.ValueOfInt64(-7))
	scalars.Set(field(t, scalars, "f32"), protoreflect.ValueOfUint32(1))
	scalars.Set(field(t, scalars, "f64"), protoreflect.ValueOfUint64(2))
	scalars.Set(field(t, scalars, "sf32"), protoreflect.ValueOfInt32(-1))
	scalars.Set(field(t, scalars, "sf64"), protoreflect.ValueOfInt64(-2))
	scalars.Set(field(t, scalars, "fl"), protoreflect.ValueOfFloat32(1.5))
	scalars.Set(field(t, scalars, "db"), protoreflect.ValueOfFloat64(-2.25))
	scalars.Set(field(t, scalars, "b"), protoreflect.ValueOfBool(true))
	scalars.Set(field(t, scalars, "str"), protoreflect.ValueOfString("héllo \"world\""))
	scalars.Set(field(t, scalars, "by"), protoreflect.ValueOfBytes([]byte{0, 1, 2, 0xff}))
	scalars.Set(field(t, scalars, "mood"), protoreflect.ValueOfEnum(1))
	return scalars
}

func buildRichCollections(t *testing.T) proto.Message {
	t.Helper()

	m := newMessage(t, "pbjsontest.Collections")
	nums := m.Mutable(field(t, m, "nums")).List()
	nums.Append(protoreflect.ValueOfInt32(1))
	nums.Append(protoreflect.ValueOfInt32(0))
	labels := m.Mutable(field(t, m, "labels")).Map()
	labels.Set(protoreflect.ValueOfInt32(1).MapKey(), protoreflect.ValueOfString("a"))
	labels.Set(protoreflect.ValueOfInt32(-2).MapKey(), protoreflect.ValueOfString("b"))
	children := m.Mutable(field(t, m, "children")).Map()
	child := newMessage(t, "pbjsontest.Nested")
	child.Set(field(t, child, "name"), protoreflect.ValueOfString("n"))
	children.Set(protoreflect.ValueOfString("k").MapKey(), protoreflect.ValueOfMessage(child))
	moods := m.Mutable(field(t, m, "moods")).List()
	moods.Append(protoreflect.ValueOfEnum(2))
	return m
}

// The printer option combinations must all round trip back to an equal
// message through a parser with the matching name policy.
func TestRoundTripAcrossOptions(t *testing.T) {
	messages := map[string]proto.Message{
		"scalars":     buildRichMessage(t),
		"collections": buildRichCollections(t),
	}

	for name, msg := range messages {
		for mask := 0; mask < 16; mask++ {
			includeDefaults := mask&1 != 0
			protoNames := mask&2 != 0
			longAsNumber := mask&4 != 0
			enumsAsNumber := mask&8 != 0

			label := fmt.Sprintf("%s/defaults=%t,protoNames=%t,longs=%t,enums=%t",
				name, includeDefaults, protoNames, longAsNumber, enumsAsNumber)
			t.Run(label, func(t *testing.T) {
				printer := pbjson.NewPrinter()
				if includeDefaults {
					printer = printer.IncludingDefaultValueFields()
				}
				if protoNames {
					printer = printer.PreservingProtoFieldNames()
				}
				if longAsNumber {
					printer = printer.FormattingLongAsNumber()
				}
				if enumsAsNumber {
					printer = printer.FormattingEnumsAsNumber()
				}

				out, err := printer.Print(msg)
				if err != nil {
					t.Fatalf("print failed: %v", err)
				}

				parser := pbjson.NewParser()
				if protoNames {
					parser = parser.PreservingProtoFieldNames()
				}
				back, err := parser.ParseString(out, msg.ProtoReflect().Descriptor())
				if err != nil {
					t.Fatalf("parse of %s failed: %v", out, err)
				}
				if !proto.Equal(msg, back) {
					t.Fatalf("round trip mismatch through %s", out)
				}
			})
		}
	}
}

func TestRoundTripOneof(t *testing.T) {
	m := newMessage(t, "pbjsontest.OneofMessage")
	m.Set(field(t, m, "num"), protoreflect.ValueOfInt32(0))

	out := mustPrint(t, pbjson.NewPrinter(), m)
	back, err := pbjson.NewParser().ParseString(out, m.Descriptor())
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	od := back.ProtoReflect().Descriptor().Oneofs().ByName("choice")
	if fd := back.ProtoReflect().WhichOneof(od); fd == nil || fd.Name() != "num" {
		t.Fatalf("oneof arm lost through %s", out)
	}
}
