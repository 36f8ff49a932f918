package store

import (
	"testing"
	"time"

	"github.com/datahopper/pbjson/internal/protoload"
	"github.com/datahopper/pbjson/internal/types"
)

func testEntry(t *testing.T, id string) (*types.SchemaSet, *protoload.Set) {
	t.Helper()
	set, err := protoload.CompileSources(map[string]string{
		"ping.proto": "syntax = \"proto3\";\npackage ping;\nmessage Ping { string id = 1; }\n",
	})
	if err != nil {
		t.Fatalf("CompileSources failed: %v", err)
	}
	meta := &types.SchemaSet{ID: id, Name: "ping", CreatedAt: time.Now()}
	return meta, set
}

func TestInMemoryStoreCRUD(t *testing.T) {
	s := NewInMemoryStore()
	meta, set := testEntry(t, "id-1")

	if err := s.CreateSchemaSet(meta, set); err != nil {
		t.Fatalf("CreateSchemaSet failed: %v", err)
	}

	gotMeta, gotSet, err := s.GetSchemaSet("id-1")
	if err != nil {
		t.Fatalf("GetSchemaSet failed: %v", err)
	}
	if gotMeta.Name != "ping" {
		t.Fatalf("unexpected meta: %+v", gotMeta)
	}
	if _, err := gotSet.FindMessage("ping.Ping"); err != nil {
		t.Fatalf("stored set lost its types: %v", err)
	}

	sets, err := s.ListSchemaSets()
	if err != nil || len(sets) != 1 {
		t.Fatalf("unexpected listing: %v %v", sets, err)
	}

	if err := s.DeleteSchemaSet("id-1"); err != nil {
		t.Fatalf("DeleteSchemaSet failed: %v", err)
	}
	if _, _, err := s.GetSchemaSet("id-1"); err == nil {
		t.Fatalf("deleted set must not resolve")
	}
}

func TestCreateRequiresID(t *testing.T) {
	s := NewInMemoryStore()
	meta, set := testEntry(t, "")
	if err := s.CreateSchemaSet(meta, set); err == nil {
		t.Fatalf("empty ID must be rejected")
	}
}
