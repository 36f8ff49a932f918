package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/datahopper/pbjson/internal/store"
	"github.com/datahopper/pbjson/internal/types"
)

const orderProto = `syntax = "proto3";

package shop.v1;

message Order {
  string id = 1;
  int64 total_cents = 2;
  repeated string items = 3;
}
`

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	api := NewAPI(store.NewInMemoryStore(), nil, zerolog.Nop())
	api.SetupRoutes(router)
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}, out interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if out != nil && w.Code < 300 {
		if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
			t.Fatalf("decode response %s: %v", w.Body.String(), err)
		}
	}
	return w
}

func registerOrderSchema(t *testing.T, router *gin.Engine) string {
	t.Helper()
	var meta types.SchemaSet
	w := doJSON(t, router, http.MethodPost, "/v1/schemas", types.RegisterSchemaRequest{
		Name:    "shop",
		Sources: map[string]string{"order.proto": orderProto},
	}, &meta)
	if w.Code != http.StatusCreated {
		t.Fatalf("register failed: %d %s", w.Code, w.Body.String())
	}
	if meta.ID == "" {
		t.Fatalf("expected a schema set ID")
	}
	return meta.ID
}

func TestRegisterAndListSchemas(t *testing.T) {
	router := newTestRouter()
	id := registerOrderSchema(t, router)

	var listing struct {
		Schemas []types.SchemaSet `json:"schemas"`
	}
	w := doJSON(t, router, http.MethodGet, "/v1/schemas", nil, &listing)
	if w.Code != http.StatusOK || len(listing.Schemas) != 1 {
		t.Fatalf("unexpected listing: %d %s", w.Code, w.Body.String())
	}
	if listing.Schemas[0].ID != id {
		t.Fatalf("listing ID mismatch")
	}
	found := false
	for _, name := range listing.Schemas[0].MessageTypes {
		if name == "shop.v1.Order" {
			found = true
		}
	}
	if !found {
		t.Fatalf("message types missing shop.v1.Order: %v", listing.Schemas[0].MessageTypes)
	}
}

func TestRegisterRejectsBadSources(t *testing.T) {
	router := newTestRouter()
	w := doJSON(t, router, http.MethodPost, "/v1/schemas", types.RegisterSchemaRequest{
		Name:    "broken",
		Sources: map[string]string{"bad.proto": "message {"},
	}, nil)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", w.Code)
	}
}

func TestTranscodeRoundTrip(t *testing.T) {
	router := newTestRouter()
	id := registerOrderSchema(t, router)

	doc := `{"id":"o-1","totalCents":"12599","items":["a","b"]}`
	var encoded types.EncodeResponse
	w := doJSON(t, router, http.MethodPost, "/v1/transcode/encode", types.EncodeRequest{
		SchemaID:    id,
		MessageType: "shop.v1.Order",
		JSON:        json.RawMessage(doc),
	}, &encoded)
	if w.Code != http.StatusOK {
		t.Fatalf("encode failed: %d %s", w.Code, w.Body.String())
	}
	if len(encoded.Data) == 0 {
		t.Fatalf("encode returned no bytes")
	}

	var decoded types.DecodeResponse
	w = doJSON(t, router, http.MethodPost, "/v1/transcode/decode", types.DecodeRequest{
		SchemaID:    id,
		MessageType: "shop.v1.Order",
		Data:        encoded.Data,
	}, &decoded)
	if w.Code != http.StatusOK {
		t.Fatalf("decode failed: %d %s", w.Code, w.Body.String())
	}
	if string(decoded.JSON) != doc {
		t.Fatalf("transcode mismatch:\n got %s\nwant %s", decoded.JSON, doc)
	}
}

func TestTranscodeUnknownSchema(t *testing.T) {
	router := newTestRouter()
	w := doJSON(t, router, http.MethodPost, "/v1/transcode/encode", types.EncodeRequest{
		SchemaID:    "missing",
		MessageType: "shop.v1.Order",
		JSON:        json.RawMessage(`{}`),
	}, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestTranscodeBadDocument(t *testing.T) {
	router := newTestRouter()
	id := registerOrderSchema(t, router)

	w := doJSON(t, router, http.MethodPost, "/v1/transcode/encode", types.EncodeRequest{
		SchemaID:    id,
		MessageType: "shop.v1.Order",
		JSON:        json.RawMessage(`{"totalCents":[1]}`),
	}, nil)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d %s", w.Code, w.Body.String())
	}
}
