package protoload

import (
	"testing"
)

const userProto = `syntax = "proto3";

package user.v1;

import "google/protobuf/timestamp.proto";

message User {
  string id = 1;
  string email = 2;
  repeated string tags = 3;
  google.protobuf.Timestamp created_at = 4;

  message Address {
    string city = 1;
  }
}

message CreateUserRequest {
  User user = 1;
}
`

func compileTestSet(t *testing.T) *Set {
	t.Helper()
	set, err := CompileSources(map[string]string{"user.proto": userProto})
	if err != nil {
		t.Fatalf("CompileSources failed: %v", err)
	}
	return set
}

func TestCompileSources(t *testing.T) {
	set := compileTestSet(t)

	md, err := set.FindMessage("user.v1.User")
	if err != nil {
		t.Fatalf("FindMessage failed: %v", err)
	}
	if md.Fields().Len() != 4 {
		t.Fatalf("expected 4 fields, got %d", md.Fields().Len())
	}

	if _, err := set.FindMessage("user.v1.DoesNotExist"); err == nil {
		t.Fatalf("unknown message must not resolve")
	}
	if _, err := set.FindMessage("user.v1"); err == nil {
		t.Fatalf("a package name is not a message type")
	}
}

func TestListMessageTypesIncludesNested(t *testing.T) {
	set := compileTestSet(t)

	found := make(map[string]bool)
	for _, name := range set.ListMessageTypes() {
		found[name] = true
	}
	for _, want := range []string{
		"user.v1.User",
		"user.v1.User.Address",
		"user.v1.CreateUserRequest",
		"google.protobuf.Timestamp",
	} {
		if !found[want] {
			t.Fatalf("ListMessageTypes missing %s (got %v)", want, set.ListMessageTypes())
		}
	}
}

func TestTypeRegistryResolvesURLs(t *testing.T) {
	set := compileTestSet(t)
	reg := set.TypeRegistry()

	if _, ok := reg.FindByURL("type.googleapis.com/user.v1.User"); !ok {
		t.Fatalf("compiled type must resolve by URL")
	}
	if _, ok := reg.FindByURL("type.googleapis.com/user.v1.Missing"); ok {
		t.Fatalf("unknown type must not resolve")
	}
}

func TestImageRoundTrip(t *testing.T) {
	set := compileTestSet(t)

	image, err := set.Image()
	if err != nil {
		t.Fatalf("Image failed: %v", err)
	}
	loaded, err := LoadDescriptorSet(image)
	if err != nil {
		t.Fatalf("LoadDescriptorSet failed: %v", err)
	}
	if _, err := loaded.FindMessage("user.v1.User"); err != nil {
		t.Fatalf("reloaded set lost user.v1.User: %v", err)
	}
}

func TestCompileSourcesReportsSyntaxErrors(t *testing.T) {
	_, err := CompileSources(map[string]string{"bad.proto": "syntax = \"proto3\";\nmessage {"})
	if err == nil {
		t.Fatalf("expected a parse error")
	}
}
