package llm

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// SchemaFor reflects T into a self-contained JSON schema map suitable for
// both the Gemini responseJsonSchema field and OpenAI json_schema formats.
func SchemaFor[T any]() (map[string]any, error) {
	r := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	raw, err := json.Marshal(r.Reflect(v))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode schema: %w", err)
	}
	delete(out, "$schema")
	delete(out, "$id")
	return out, nil
}

// SetNumberBounds sets minimum and maximum on the node reached by following
// path through nested schema maps. It reports whether the node was found.
func SetNumberBounds(schema map[string]any, min, max int, path ...string) bool {
	node := schema
	for _, key := range path {
		next, ok := node[key].(map[string]any)
		if !ok {
			return false
		}
		node = next
	}
	node["minimum"] = min
	node["maximum"] = max
	return true
}
