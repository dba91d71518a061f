// Package schemagen emits a JSON Schema for the table wire protocol.
//
// The generated document covers every frame payload the gateway reads or
// writes, so client authors can validate traffic without reading Go source.
package schemagen

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/invopop/jsonschema"

	"github.com/hearthvtt/hearth/internal/table/protocol"
)

const modulePath = "github.com/hearthvtt/hearth"

// payloadTypes lists every wire structure the schema documents. The envelope
// comes first; payloads follow the order of the protocol package. Nested
// structures such as rejections and roll groups are pulled in by reference.
func payloadTypes() []any {
	return []any{
		protocol.Frame{},
		protocol.JoinPayload{},
		protocol.JoinedPayload{},
		protocol.ErrorPayload{},
		protocol.ActionRequestPayload{},
		protocol.ActionAckPayload{},
		protocol.ActionResultPayload{},
		protocol.ApprovalRequestPayload{},
		protocol.ApprovalDecisionPayload{},
		protocol.RollPromptPayload{},
		protocol.RollReplyPayload{},
		protocol.RollResultPayload{},
		protocol.ChatSendPayload{},
		protocol.ChatMessagePayload{},
		protocol.ChatAckPayload{},
		protocol.EncounterStartPayload{},
		protocol.EncounterStartedPayload{},
		protocol.TurnChangedPayload{},
		protocol.SessionEndedPayload{},
		protocol.StateUpdatePayload{},
	}
}

// Schema reflects the protocol types into a single schema document.
// sourceDir, when set, points at the protocol package directory so Go doc
// comments become schema descriptions.
func Schema(sourceDir string) (*jsonschema.Schema, error) {
	reflector := &jsonschema.Reflector{
		AllowAdditionalProperties: true,
	}
	if sourceDir != "" {
		if err := reflector.AddGoComments(modulePath, sourceDir); err != nil {
			return nil, fmt.Errorf("read protocol comments: %w", err)
		}
	}

	root := &jsonschema.Schema{
		Version:     jsonschema.Version,
		Title:       "Hearth Table Protocol",
		Description: "Frames exchanged between table clients and the gateway websocket.",
		Definitions: jsonschema.Definitions{},
	}
	for _, payload := range payloadTypes() {
		schema := reflector.Reflect(payload)
		for name, def := range schema.Definitions {
			root.Definitions[name] = def
		}
	}
	return root, nil
}

// Run writes the protocol schema to outPath, replacing any previous file.
func Run(outPath, sourceDir string) error {
	if outPath == "" {
		return errors.New("output path is required")
	}
	schema, err := Schema(sourceDir)
	if err != nil {
		return err
	}

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
