// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Biogate Contributors

package simulator

import (
	"encoding/json"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/samber/oops"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

// SchemaID is the $id of the profile schema.
const SchemaID = "https://biogate.dev/schemas/profile.schema.json"

var compiledSchema = sync.OnceValues(compileSchema)

// GenerateSchema generates the JSON Schema of device profiles.
func GenerateSchema() ([]byte, error) {
	r := jsonschema.Reflector{
		DoNotReference: true,
	}
	schema := r.Reflect(&Profile{})
	schema.ID = jsonschema.ID(SchemaID)
	schema.Title = "Biogate Device Profile"
	schema.Description = "Schema for simulated device profile files"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, oops.Wrapf(err, "marshal schema")
	}
	return data, nil
}

// ValidateSchema validates YAML data against the profile schema.
func ValidateSchema(data []byte) error {
	if len(data) == 0 {
		return invalid("").Errorf("profile data is empty")
	}
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return invalid("").Wrapf(err, "invalid YAML")
	}
	sch, err := compiledSchema()
	if err != nil {
		return oops.Wrapf(err, "compile schema")
	}
	if err := sch.Validate(toJSON(doc)); err != nil {
		return invalid("").Wrapf(err, "schema validation failed")
	}
	return nil
}

func compileSchema() (*jschema.Schema, error) {
	raw, err := GenerateSchema()
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, oops.Wrapf(err, "parse schema")
	}
	c := jschema.NewCompiler()
	if err := c.AddResource("profile.schema.json", doc); err != nil {
		return nil, oops.Wrapf(err, "add schema resource")
	}
	return c.Compile("profile.schema.json")
}

// toJSON converts YAML-decoded values into the types the validator expects.
func toJSON(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, v := range val {
			out[k] = toJSON(v)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, v := range val {
			out[i] = toJSON(v)
		}
		return out
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case uint64:
		return float64(val)
	default:
		return val
	}
}
