package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/invopop/jsonschema"

	"gridspace/server/internal/net/proto"
)

// protoschema emits a JSON Schema document for the websocket wire payloads,
// so client implementations can validate their frames against the server's
// contract.
func main() {
	var outPath string
	flag.StringVar(&outPath, "out", "", "path to write the JSON schema")
	flag.Parse()

	if outPath == "" {
		fmt.Fprintln(os.Stderr, "--out is required")
		os.Exit(1)
	}

	if err := writeSchema(outPath, buildSchema()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write schema: %v\n", err)
		os.Exit(1)
	}
}

// wireCatalog groups every payload type under its wire identifier so the
// reflected schema carries one definition per message.
type wireCatalog struct {
	Join             proto.Join             `json:"join"`
	Movement         proto.Movement         `json:"movement"`
	SpaceJoined      proto.SpaceJoined      `json:"space-joined"`
	UserJoin         proto.UserJoin         `json:"user-join"`
	MovementAccepted proto.MovementAccepted `json:"movement-accepted"`
	MovementRejected proto.MovementRejected `json:"movement-rejected"`
	UserLeft         proto.UserLeft         `json:"user-left"`
	Error            proto.Error            `json:"error"`
}

func buildSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: true,
	}
	schema := reflector.Reflect(new(wireCatalog))
	schema.Title = "Gridspace Wire Protocol"
	schema.Description = "Payload layouts carried by the {type, payload} envelope on /ws"
	return schema
}

func writeSchema(outPath string, schema *jsonschema.Schema) error {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create schema directory: %w", err)
	}

	tmpPath := outPath + ".tmp"
	if err := os.WriteFile(tmpPath, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write temp schema: %w", err)
	}
	if err := os.Rename(tmpPath, outPath); err != nil {
		return fmt.Errorf("replace schema: %w", err)
	}
	return nil
}
