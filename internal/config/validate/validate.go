package validate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/megaguards/mg-setup/internal/config/schema"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"sigs.k8s.io/yaml"
)

const (
	configSchemaName   = "mg-setup-config.schema.json"
	registrySchemaName = "artifact-registry.schema.json"
)

var (
	compiledMu sync.Mutex
	compiled   = map[string]*jsonschema.Schema{}
)

func compile(name string, schemaBytes []byte, ref string) (*jsonschema.Schema, error) {
	target := name
	if ref != "" {
		if !strings.HasPrefix(ref, "#") {
			ref = "#" + ref
		}
		target = name + ref
	}

	compiledMu.Lock()
	defer compiledMu.Unlock()
	if sch, ok := compiled[target]; ok {
		return sch, nil
	}

	comp := jsonschema.NewCompiler()
	if err := comp.AddResource(name, bytes.NewReader(schemaBytes)); err != nil {
		return nil, fmt.Errorf("loading schema %q: %w", name, err)
	}
	sch, err := comp.Compile(target)
	if err != nil {
		return nil, fmt.Errorf("compiling schema %q: %w", name, err)
	}
	compiled[target] = sch
	return sch, nil
}

// ValidateAgainstSchema compiles the given schema bytes and runs it against
// the JSON in data. name identifies the schema in errors and in the compile
// cache; ref optionally selects a subschema.
func ValidateAgainstSchema(name string, schemaBytes, data []byte, ref string) error {
	sch, err := compile(name, schemaBytes, ref)
	if err != nil {
		return err
	}

	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("invalid JSON for %q: %w", name, err)
	}
	return validateDoc(sch, name, doc)
}

func validateDoc(sch *jsonschema.Schema, name string, doc interface{}) error {
	if err := sch.Validate(doc); err != nil {
		return fmt.Errorf("schema validation against %q failed: %w", name, err)
	}
	return nil
}

// ValidateConfigJSON runs the global config schema against data.
func ValidateConfigJSON(data []byte) error {
	return ValidateAgainstSchema(configSchemaName, schema.ConfigSchema, data, "")
}

// ValidateConfigYAML validates a config file as written, so unknown keys
// are reported instead of being dropped by decoding. An empty document and
// top-level sections left empty (only commented entries) count as absent.
func ValidateConfigYAML(data []byte) error {
	jsonData, err := yaml.YAMLToJSON(data)
	if err != nil {
		return fmt.Errorf("converting config YAML to JSON: %w", err)
	}
	var doc interface{}
	if err := json.Unmarshal(jsonData, &doc); err != nil {
		return fmt.Errorf("invalid JSON for %q: %w", configSchemaName, err)
	}
	if doc == nil {
		doc = map[string]interface{}{}
	}
	if m, ok := doc.(map[string]interface{}); ok {
		for k, v := range m {
			if v == nil {
				delete(m, k)
			}
		}
	}

	sch, err := compile(configSchemaName, schema.ConfigSchema, "")
	if err != nil {
		return err
	}
	return validateDoc(sch, configSchemaName, doc)
}

// ValidateRegistryJSON runs the artifact registry schema against data.
func ValidateRegistryJSON(data []byte) error {
	return ValidateAgainstSchema(registrySchemaName, schema.RegistrySchema, data, "")
}

// ValidateRegistryYAML converts a YAML registry document to JSON and
// validates it.
func ValidateRegistryYAML(data []byte) error {
	jsonData, err := yaml.YAMLToJSON(data)
	if err != nil {
		return fmt.Errorf("converting registry YAML to JSON: %w", err)
	}
	return ValidateRegistryJSON(jsonData)
}
