package tools

import (
	"encoding/json"
	"fmt"
	"sync"

	invopop "github.com/invopop/jsonschema"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// DeriveSchema builds a JSON Schema for a typed parameter struct. Tools with
// a pre-baked raw schema (MCP imports) bypass this.
func DeriveSchema(params any) (json.RawMessage, error) {
	reflector := invopop.Reflector{
		Anonymous:      true,
		DoNotReference: true,
	}
	schema := reflector.Reflect(params)
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("derive schema: %w", err)
	}
	return data, nil
}

// MustDeriveSchema panics on derivation failure; for static tool
// definitions whose schemas are fixed at compile time.
func MustDeriveSchema(params any) json.RawMessage {
	schema, err := DeriveSchema(params)
	if err != nil {
		panic(err)
	}
	return schema
}

var compiledSchemas sync.Map

// validateArgs checks args against the tool's JSON Schema. Compiled schemas
// are cached by their source text.
func validateArgs(schema json.RawMessage, args json.RawMessage) error {
	if len(schema) == 0 {
		return nil
	}
	compiled, err := compileSchema(schema)
	if err != nil {
		return fmt.Errorf("compile tool schema: %w", err)
	}

	var decoded any
	if len(args) == 0 {
		decoded = map[string]any{}
	} else if err := json.Unmarshal(args, &decoded); err != nil {
		return fmt.Errorf("arguments are not valid JSON: %w", err)
	}
	return compiled.Validate(decoded)
}

func compileSchema(schema json.RawMessage) (*jsonschema.Schema, error) {
	key := string(schema)
	if cached, ok := compiledSchemas.Load(key); ok {
		if compiled, ok := cached.(*jsonschema.Schema); ok {
			return compiled, nil
		}
	}
	compiled, err := jsonschema.CompileString("tool.schema.json", key)
	if err != nil {
		return nil, err
	}
	compiledSchemas.Store(key, compiled)
	return compiled, nil
}
