package protocol

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed step.schema.json
var stepSchemaSrc string

var (
	stepSchemaOnce sync.Once
	stepSchema     *jsonschema.Schema
	stepSchemaErr  error
)

func schema() (*jsonschema.Schema, error) {
	stepSchemaOnce.Do(func() {
		stepSchema, stepSchemaErr = jsonschema.CompileString("step.schema.json", stepSchemaSrc)
	})
	return stepSchema, stepSchemaErr
}

// Decode validates a /step response body against the embedded schema and
// decodes it.
func Decode(raw []byte) (*Batch, error) {
	s, err := schema()
	if err != nil {
		return nil, fmt.Errorf("compile step schema: %w", err)
	}
	var doc any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode step response: %w", err)
	}
	if err := s.Validate(doc); err != nil {
		return nil, fmt.Errorf("validate step response: %w", err)
	}
	var b Batch
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("decode step response: %w", err)
	}
	return &b, nil
}
