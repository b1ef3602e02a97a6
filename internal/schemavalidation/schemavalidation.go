// Package schemavalidation validates profile documents against the JSON
// schemas embedded in the binary.
package schemavalidation

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"path"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema/*.json
var schemaFS embed.FS

// Schema names.
const (
	// Profile is a single exported profile.
	Profile = "profile-v1.schema.json"
	// Profiles is the legacy profiles.json document.
	Profiles = "profiles-v1.schema.json"
)

const baseURL = "https://binder.local/schema/"

var (
	compileOnce sync.Once
	compiled    map[string]*jsonschema.Schema
	compileErr  error
)

func compileAll() {
	entries, err := schemaFS.ReadDir("schema")
	if err != nil {
		compileErr = fmt.Errorf("read embedded schemas: %w", err)
		return
	}

	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft7
	for _, entry := range entries {
		data, err := schemaFS.ReadFile(path.Join("schema", entry.Name()))
		if err != nil {
			compileErr = fmt.Errorf("read schema %s: %w", entry.Name(), err)
			return
		}
		if err := compiler.AddResource(baseURL+entry.Name(), bytes.NewReader(data)); err != nil {
			compileErr = fmt.Errorf("add schema resource %s: %w", entry.Name(), err)
			return
		}
	}

	out := make(map[string]*jsonschema.Schema, len(entries))
	for _, entry := range entries {
		schema, err := compiler.Compile(baseURL + entry.Name())
		if err != nil {
			compileErr = fmt.Errorf("compile schema %s: %w", entry.Name(), err)
			return
		}
		out[entry.Name()] = schema
	}
	compiled = out
}

func schemaFor(name string) (*jsonschema.Schema, error) {
	compileOnce.Do(compileAll)
	if compileErr != nil {
		return nil, compileErr
	}
	schema, ok := compiled[name]
	if !ok {
		return nil, fmt.Errorf("unknown schema %q", name)
	}
	return schema, nil
}

// Validate checks an instance decoded by encoding/json against the named
// schema.
func Validate(name string, instance any) error {
	schema, err := schemaFor(name)
	if err != nil {
		return err
	}
	if err := schema.Validate(instance); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// ValidateJSON decodes data and validates it. The decoded document is
// returned so callers can map it onto their own types.
func ValidateJSON(name string, data []byte) (map[string]any, error) {
	var instance any
	if err := json.Unmarshal(data, &instance); err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	if err := Validate(name, instance); err != nil {
		return nil, err
	}
	doc, ok := instance.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s: document is not an object", name)
	}
	return doc, nil
}

// ValidateValue round-trips v through JSON and validates the result.
func ValidateValue(name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	_, err = ValidateJSON(name, data)
	return err
}
