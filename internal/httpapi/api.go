// Package httpapi exposes schema registration and JSON ↔ proto transcoding
// over HTTP.
package httpapi

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/datahopper/pbjson"
	"github.com/datahopper/pbjson/internal/obs"
	"github.com/datahopper/pbjson/internal/protoload"
	"github.com/datahopper/pbjson/internal/store"
	"github.com/datahopper/pbjson/internal/types"
	"github.com/datahopper/pbjson/jsonval"
)

// API wires the transcoding endpoints to a schema store.
type API struct {
	store  store.Store
	repo   *protoload.Repository
	logger zerolog.Logger
}

// NewAPI creates a new API handler set. repo may be nil to disable
// persistence.
func NewAPI(st store.Store, repo *protoload.Repository, logger zerolog.Logger) *API {
	return &API{store: st, repo: repo, logger: logger}
}

// SetupRoutes registers all routes on the router.
func (a *API) SetupRoutes(router *gin.Engine) {
	router.Use(a.requestLogging())
	v1 := router.Group("/v1")
	{
		v1.POST("/schemas", a.registerSchema)
		v1.GET("/schemas", a.listSchemas)
		v1.GET("/schemas/:id", a.getSchema)
		v1.DELETE("/schemas/:id", a.deleteSchema)
		v1.POST("/transcode/encode", a.encode)
		v1.POST("/transcode/decode", a.decode)
	}
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

// registerSchema compiles the submitted .proto sources and stores the set
// under a fresh ID.
func (a *API) registerSchema(c *gin.Context) {
	var req types.RegisterSchemaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Sources) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sources must not be empty"})
		return
	}

	set, err := protoload.CompileSources(req.Sources)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	image, err := set.Image()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	sum := sha256.Sum256(image)

	meta := &types.SchemaSet{
		ID:            uuid.NewString(),
		Name:          req.Name,
		Sources:       req.Sources,
		MessageTypes:  set.ListMessageTypes(),
		DescriptorSHA: hex.EncodeToString(sum[:]),
		CreatedAt:     time.Now().UTC(),
	}
	if err := a.store.CreateSchemaSet(meta, set); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if a.repo != nil {
		name := meta.Name
		if name == "" {
			name = meta.ID
		}
		version, err := a.repo.SaveVersion(context.Background(), name, image, meta.DescriptorSHA)
		if err != nil {
			a.logger.Error().Err(err).Str("schema", name).Msg("failed to persist schema set")
		} else {
			a.logger.Debug().Str("schema", name).Int32("version", version).Msg("persisted schema set")
		}
	}

	a.logger.Info().
		Str("id", meta.ID).
		Str("name", meta.Name).
		Int("messageTypes", len(meta.MessageTypes)).
		Msg("Registered schema set")
	c.JSON(http.StatusCreated, meta)
}

func (a *API) listSchemas(c *gin.Context) {
	sets, err := a.store.ListSchemaSets()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"schemas": sets})
}

func (a *API) getSchema(c *gin.Context) {
	meta, _, err := a.store.GetSchemaSet(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, meta)
}

func (a *API) deleteSchema(c *gin.Context) {
	if err := a.store.DeleteSchemaSet(c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// encode converts a JSON document into binary proto bytes.
func (a *API) encode(c *gin.Context) {
	var req types.EncodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	_, set, err := a.store.GetSchemaSet(req.SchemaID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	md, err := set.FindMessage(req.MessageType)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	parser := pbjson.NewParser().WithTypeRegistry(set.TypeRegistry())
	if req.ProtoFieldNames {
		parser = parser.PreservingProtoFieldNames()
	}
	msg, err := parser.ParseString(string(req.JSON), md)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	data, err := proto.Marshal(msg)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	obs.TranscodeEvent(a.logger, req.SchemaID, req.MessageType).
		Int("bytes", len(data)).
		Msg("encoded document")
	c.JSON(http.StatusOK, types.EncodeResponse{Data: data})
}

// decode converts binary proto bytes into a JSON document.
func (a *API) decode(c *gin.Context) {
	var req types.DecodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	_, set, err := a.store.GetSchemaSet(req.SchemaID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	md, err := set.FindMessage(req.MessageType)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	msg := dynamicpb.NewMessage(md)
	if err := proto.Unmarshal(req.Data, msg); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	printer := buildPrinter(req.Options).WithTypeRegistry(set.TypeRegistry())
	v, err := printer.ToJSON(msg)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	out := jsonval.Marshal(v)
	if req.Options.Indent {
		out = jsonval.MarshalIndent(v, "  ")
	}
	obs.TranscodeEvent(a.logger, req.SchemaID, req.MessageType).
		Int("bytes", len(req.Data)).
		Msg("decoded document")
	c.JSON(http.StatusOK, types.DecodeResponse{JSON: out})
}

// requestLogging emits one log line per handled request.
func (a *API) requestLogging() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		a.logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("handled request")
	}
}

func buildPrinter(opts types.PrinterOptions) *pbjson.Printer {
	printer := pbjson.NewPrinter()
	if opts.IncludeDefaults {
		printer = printer.IncludingDefaultValueFields()
	}
	if opts.ProtoFieldNames {
		printer = printer.PreservingProtoFieldNames()
	}
	if opts.LongsAsNumbers {
		printer = printer.FormattingLongAsNumber()
	}
	if opts.EnumsAsNumbers {
		printer = printer.FormattingEnumsAsNumber()
	}
	return printer
}
