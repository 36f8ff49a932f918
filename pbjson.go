// Package pbjson is a bidirectional codec between proto3 messages and JSON
// implementing the canonical proto3 JSON mapping. It walks messages through
// protoreflect, so it works uniformly with generated and dynamicpb messages.
//
// The two entry types are Printer and Parser. Both are immutable after
// construction; option methods return copies:
//
//	printer := pbjson.NewPrinter().IncludingDefaultValueFields()
//	out, err := printer.Print(msg)
//
//	parser := pbjson.NewParser().WithTypeRegistry(types)
//	err = parser.FromJSONString(out, target)
//
// Well-known types (Duration, Timestamp, FieldMask, the primitive wrappers,
// Struct/Value/ListValue, NullValue, Empty, Any) use their bespoke JSON forms
// via a FormatRegistry keyed by full type name; custom formats can be layered
// on top of the default registry. google.protobuf.Any resolution goes through
// a TypeRegistry mapping full names to message descriptors.
package pbjson
