package format

// SanitizeSchema strips the JSON-Schema keywords Upstream's tool-parameter
// validator rejects ($schema, $id, $ref, definitions, $defs, examples,
// default), recursing into properties/items/additionalProperties, and
// defaults a missing "type" to "object" so every declaration Upstream sees
// is schema-shaped.
func SanitizeSchema(schema map[string]interface{}) map[string]interface{} {
	if schema == nil {
		return map[string]interface{}{"type": "object"}
	}

	result := make(map[string]interface{}, len(schema))
	for key, value := range schema {
		switch key {
		case "$schema", "$id", "$ref", "definitions", "$defs", "examples", "default":
			continue
		case "properties":
			if props, ok := value.(map[string]interface{}); ok {
				sanitizedProps := make(map[string]interface{}, len(props))
				for k, v := range props {
					if sub, ok := v.(map[string]interface{}); ok {
						sanitizedProps[k] = SanitizeSchema(sub)
					} else {
						sanitizedProps[k] = v
					}
				}
				result[key] = sanitizedProps
				continue
			}
			result[key] = value
		case "items":
			if sub, ok := value.(map[string]interface{}); ok {
				result[key] = SanitizeSchema(sub)
				continue
			}
			result[key] = value
		case "additionalProperties":
			switch v := value.(type) {
			case map[string]interface{}:
				result[key] = SanitizeSchema(v)
			case bool:
				if !v {
					result[key] = false
				}
			}
		default:
			if sub, ok := value.(map[string]interface{}); ok {
				result[key] = SanitizeSchema(sub)
			} else {
				result[key] = value
			}
		}
	}

	if _, ok := result["type"]; !ok {
		result["type"] = "object"
	}

	return result
}
