package ir

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// Schema reflects the JSON schema for Description.
func Schema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: true,
		DoNotReference:            true,
	}
	s := reflector.Reflect(&Description{})
	s.Title = "schsync schematic description"
	return s
}

func SchemaJSON() ([]byte, error) {
	s := Schema()
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
