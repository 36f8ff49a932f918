package pbjson_test

import (
	"sync"
	"testing"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/datahopper/pbjson"
	"github.com/datahopper/pbjson/internal/protoload"
)

var (
	loadOnce sync.Once
	testSet  *protoload.Set
	loadErr  error
)

// testSchema compiles testdata/codec.proto once for the whole test binary.
func testSchema(t *testing.T) *protoload.Set {
	t.Helper()
	loadOnce.Do(func() {
		testSet, loadErr = protoload.CompileFiles([]string{"testdata/codec.proto"}, nil)
	})
	if loadErr != nil {
		t.Fatalf("failed to compile test schema: %v", loadErr)
	}
	return testSet
}

// newMessage creates an empty dynamic message for a test schema type.
func newMessage(t *testing.T, fqmn string) *dynamicpb.Message {
	t.Helper()
	md, err := testSchema(t).FindMessage(fqmn)
	if err != nil {
		t.Fatalf("message %s not found: %v", fqmn, err)
	}
	return dynamicpb.NewMessage(md)
}

// field resolves a field descriptor by proto name.
func field(t *testing.T, m *dynamicpb.Message, name string) protoreflect.FieldDescriptor {
	t.Helper()
	fd := m.Descriptor().Fields().ByName(protoreflect.Name(name))
	if fd == nil {
		t.Fatalf("field %s not found on %s", name, m.Descriptor().FullName())
	}
	return fd
}

// testTypes returns a type registry holding every message of the test schema.
func testTypes(t *testing.T) pbjson.TypeRegistry {
	t.Helper()
	return testSchema(t).TypeRegistry()
}

// mustPrint serializes m or fails the test.
func mustPrint(t *testing.T, p *pbjson.Printer, m proto.Message) string {
	t.Helper()
	out, err := p.Print(m)
	if err != nil {
		t.Fatalf("Print failed: %v", err)
	}
	return out
}
