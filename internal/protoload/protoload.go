// Package protoload compiles .proto sources and descriptor set images into
// protoreflect descriptors for the pbjson codec, CLI, and transcoding server.
package protoload

import (
	"fmt"

	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/desc/protoparse"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"

	"github.com/datahopper/pbjson"
)

// Set is a compiled schema set: a file registry plus the descriptor set image
// it was built from.
type Set struct {
	files *protoregistry.Files
	image *descriptorpb.FileDescriptorSet
}

// CompileFiles parses the given .proto files from disk. importPaths are the
// -I style search roots; standard google.protobuf imports resolve without
// being present on disk.
func CompileFiles(filenames []string, importPaths []string) (*Set, error) {
	parser := protoparse.Parser{
		ImportPaths:           importPaths,
		IncludeSourceCodeInfo: false,
		LookupImport:          desc.LoadFileDescriptor,
	}
	names := filenames
	if len(importPaths) > 0 {
		resolved, err := protoparse.ResolveFilenames(importPaths, filenames...)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve proto filenames: %w", err)
		}
		names = resolved
	}
	fds, err := parser.ParseFiles(names...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse proto files: %w", err)
	}
	return newSet(fds)
}

// CompileSources parses in-memory .proto sources keyed by filename, the way
// schema registration over HTTP supplies them.
func CompileSources(sources map[string]string) (*Set, error) {
	parser := protoparse.Parser{
		Accessor:     protoparse.FileContentsFromMap(sources),
		LookupImport: desc.LoadFileDescriptor,
	}
	names := make([]string, 0, len(sources))
	for name := range sources {
		names = append(names, name)
	}
	fds, err := parser.ParseFiles(names...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse proto sources: %w", err)
	}
	return newSet(fds)
}

// LoadDescriptorSet builds a Set from a serialized FileDescriptorSet, e.g. a
// protoc --descriptor_set_out image or a persisted registration.
func LoadDescriptorSet(data []byte) (*Set, error) {
	var image descriptorpb.FileDescriptorSet
	if err := proto.Unmarshal(data, &image); err != nil {
		return nil, fmt.Errorf("failed to unmarshal descriptor set: %w", err)
	}
	files, err := protodesc.NewFiles(&image)
	if err != nil {
		return nil, fmt.Errorf("failed to build files registry: %w", err)
	}
	return &Set{files: files, image: &image}, nil
}

// newSet converts parsed file descriptors into a registry, pulling in
// transitive imports so the image is self-contained.
func newSet(fds []*desc.FileDescriptor) (*Set, error) {
	image := &descriptorpb.FileDescriptorSet{}
	seen := make(map[string]bool)
	var add func(fd *desc.FileDescriptor)
	add = func(fd *desc.FileDescriptor) {
		if seen[fd.GetName()] {
			return
		}
		seen[fd.GetName()] = true
		for _, dep := range fd.GetDependencies() {
			add(dep)
		}
		image.File = append(image.File, fd.AsFileDescriptorProto())
	}
	for _, fd := range fds {
		add(fd)
	}

	files, err := protodesc.NewFiles(image)
	if err != nil {
		return nil, fmt.Errorf("failed to build files registry: %w", err)
	}
	return &Set{files: files, image: image}, nil
}

// Files returns the underlying registry.
func (s *Set) Files() *protoregistry.Files {
	return s.files
}

// Image returns the serialized descriptor set for persistence.
func (s *Set) Image() ([]byte, error) {
	return proto.Marshal(s.image)
}

// TypeRegistry returns a pbjson type registry holding every message type in
// the set, for google.protobuf.Any resolution.
func (s *Set) TypeRegistry() pbjson.TypeRegistry {
	return pbjson.NewTypeRegistry().RegisterFiles(s.files)
}

// FindMessage looks up a message descriptor by fully-qualified name.
func (s *Set) FindMessage(fqmn string) (protoreflect.MessageDescriptor, error) {
	d, err := s.files.FindDescriptorByName(protoreflect.FullName(fqmn))
	if err != nil {
		return nil, fmt.Errorf("message not found: %s", fqmn)
	}
	md, ok := d.(protoreflect.MessageDescriptor)
	if !ok {
		return nil, fmt.Errorf("%s is not a message type", fqmn)
	}
	return md, nil
}

// ListMessageTypes returns the FQNs of all message types in the set, for
// discovery endpoints.
func (s *Set) ListMessageTypes() []string {
	var out []string
	s.files.RangeFiles(func(fd protoreflect.FileDescriptor) bool {
		out = append(out, collectMessageNames(fd.Messages())...)
		return true
	})
	return out
}

func collectMessageNames(mds protoreflect.MessageDescriptors) []string {
	var out []string
	for i := 0; i < mds.Len(); i++ {
		md := mds.Get(i)
		out = append(out, string(md.FullName()))
		out = append(out, collectMessageNames(md.Messages())...)
	}
	return out
}
