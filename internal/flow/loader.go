package flow

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed flow.schema.json
var schemaJSON []byte

const schemaURL = "https://github.com/MrWong99/callscript/flow.schema.json"

var compiledSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
		return nil, fmt.Errorf("flow: add schema resource: %w", err)
	}
	schema, err := compiler.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("flow: compile schema: %w", err)
	}
	return schema, nil
})

// Load reads the YAML graph document at path and returns the validated
// [Graph].
func Load(path string) (*Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("flow: open %q: %w", path, err)
	}
	defer f.Close()

	g, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("flow: load %q: %w", path, err)
	}
	return g, nil
}

// LoadFromReader decodes a YAML graph document from r and builds it.
func LoadFromReader(r io.Reader) (*Graph, error) {
	doc, err := DecodeDocument(r)
	if err != nil {
		return nil, err
	}
	return Build(doc)
}

// DecodeDocument decodes and schema-checks a YAML graph document without
// building it.
func DecodeDocument(r io.Reader) (Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Document{}, fmt.Errorf("flow: read document: %w", err)
	}
	if err := ValidateSchema(data); err != nil {
		return Document{}, err
	}

	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return Document{}, fmt.Errorf("flow: decode yaml: %w", err)
	}
	return doc, nil
}

// ValidateSchema checks a YAML (or JSON) graph document against the
// embedded JSON Schema.
func ValidateSchema(data []byte) error {
	schema, err := compiledSchema()
	if err != nil {
		return err
	}

	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("flow: decode yaml: %w", err)
	}
	if raw == nil {
		return fmt.Errorf("flow: document is empty")
	}
	// The validator expects the value shapes encoding/json produces.
	js, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("flow: document is not representable as JSON: %w", err)
	}
	var payload any
	if err := json.Unmarshal(js, &payload); err != nil {
		return fmt.Errorf("flow: re-decode document: %w", err)
	}
	if err := schema.Validate(payload); err != nil {
		return fmt.Errorf("flow: schema: %w", err)
	}
	return nil
}

// Encode writes doc as YAML.
func Encode(w io.Writer, doc Document) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("flow: encode yaml: %w", err)
	}
	return enc.Close()
}
