package schema

import _ "embed"

//go:embed mg-setup-config.schema.json
var ConfigSchema []byte

//go:embed artifact-registry.schema.json
var RegistrySchema []byte
