// Command pbjson transcodes between the proto3 JSON and binary wire forms of
// a message whose schema is compiled from .proto sources.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/datahopper/pbjson"
	"github.com/datahopper/pbjson/internal/obs"
	"github.com/datahopper/pbjson/internal/protoload"
	"github.com/datahopper/pbjson/jsonval"
)

var (
	protoFiles   []string
	importPaths  []string
	messageType  string
	outPath      string
	emitDefaults bool
	protoNames   bool
	longsAsNums  bool
	enumsAsNums  bool
	indent       bool
)

func main() {
	logger := obs.NewLogger()

	root := &cobra.Command{
		Use:           "pbjson",
		Short:         "Transcode between proto3 JSON and binary proto",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringSliceVar(&protoFiles, "proto", nil, "proto source file (repeatable)")
	root.PersistentFlags().StringSliceVarP(&importPaths, "include", "I", nil, "proto import path (repeatable)")
	root.PersistentFlags().StringVar(&messageType, "type", "", "fully-qualified message type")
	root.PersistentFlags().StringVarP(&outPath, "out", "o", "", "output file (default stdout)")

	decodeCmd := &cobra.Command{
		Use:   "decode [file]",
		Short: "Read binary proto, write canonical JSON",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runDecode,
	}
	decodeCmd.Flags().BoolVar(&emitDefaults, "emit-defaults", false, "emit default-valued fields")
	decodeCmd.Flags().BoolVar(&protoNames, "proto-names", false, "use proto field names")
	decodeCmd.Flags().BoolVar(&longsAsNums, "longs-as-numbers", false, "emit 64-bit integers as numbers")
	decodeCmd.Flags().BoolVar(&enumsAsNums, "enums-as-numbers", false, "emit enums as numbers")
	decodeCmd.Flags().BoolVar(&indent, "indent", false, "indent the JSON output")

	encodeCmd := &cobra.Command{
		Use:   "encode [file]",
		Short: "Read canonical JSON, write binary proto",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runEncode,
	}
	encodeCmd.Flags().BoolVar(&protoNames, "proto-names", false, "look up proto field names")

	root.AddCommand(decodeCmd, encodeCmd)
	if err := root.Execute(); err != nil {
		logger.Fatal().Err(err).Msg("pbjson failed")
	}
}

func loadSchema() (*protoload.Set, error) {
	if len(protoFiles) == 0 {
		return nil, fmt.Errorf("at least one --proto file is required")
	}
	if messageType == "" {
		return nil, fmt.Errorf("--type is required")
	}
	return protoload.CompileFiles(protoFiles, importPaths)
}

func readInput(args []string) ([]byte, error) {
	if len(args) == 1 && args[0] != "-" {
		return os.ReadFile(args[0])
	}
	return io.ReadAll(os.Stdin)
}

func writeOutput(data []byte) error {
	if outPath == "" || outPath == "-" {
		_, err := os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(outPath, data, 0o644)
}

func runDecode(cmd *cobra.Command, args []string) error {
	set, err := loadSchema()
	if err != nil {
		return err
	}
	md, err := set.FindMessage(messageType)
	if err != nil {
		return err
	}
	data, err := readInput(args)
	if err != nil {
		return err
	}

	msg := dynamicpb.NewMessage(md)
	if err := proto.Unmarshal(data, msg); err != nil {
		return fmt.Errorf("failed to unmarshal binary proto: %w", err)
	}

	printer := pbjson.NewPrinter().WithTypeRegistry(set.TypeRegistry())
	if emitDefaults {
		printer = printer.IncludingDefaultValueFields()
	}
	if protoNames {
		printer = printer.PreservingProtoFieldNames()
	}
	if longsAsNums {
		printer = printer.FormattingLongAsNumber()
	}
	if enumsAsNums {
		printer = printer.FormattingEnumsAsNumber()
	}

	v, err := printer.ToJSON(msg)
	if err != nil {
		return err
	}
	out := jsonval.Marshal(v)
	if indent {
		out = jsonval.MarshalIndent(v, "  ")
	}
	return writeOutput(append(out, '\n'))
}

func runEncode(cmd *cobra.Command, args []string) error {
	set, err := loadSchema()
	if err != nil {
		return err
	}
	md, err := set.FindMessage(messageType)
	if err != nil {
		return err
	}
	data, err := readInput(args)
	if err != nil {
		return err
	}

	parser := pbjson.NewParser().WithTypeRegistry(set.TypeRegistry())
	if protoNames {
		parser = parser.PreservingProtoFieldNames()
	}
	msg, err := parser.ParseString(string(data), md)
	if err != nil {
		return err
	}
	wire, err := proto.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal proto: %w", err)
	}
	return writeOutput(wire)
}
