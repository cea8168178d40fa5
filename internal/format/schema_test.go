package format

import "testing"

func TestSanitizeSchema_DropsUnsupportedKeywords(t *testing.T) {
	input := map[string]interface{}{
		"$schema":     "http://json-schema.org/draft-07/schema#",
		"$id":         "https://example.com/schema",
		"definitions": map[string]interface{}{"foo": "bar"},
		"default":     "x",
		"type":        "object",
		"properties": map[string]interface{}{
			"name": map[string]interface{}{"type": "string", "examples": []interface{}{"a"}},
		},
	}

	got := SanitizeSchema(input)

	for _, dropped := range []string{"$schema", "$id", "definitions", "default"} {
		if _, ok := got[dropped]; ok {
			t.Errorf("expected %q to be dropped, got %v", dropped, got)
		}
	}

	props, ok := got["properties"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected properties to survive sanitization")
	}
	name, ok := props["name"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected name property to survive sanitization")
	}
	if _, ok := name["examples"]; ok {
		t.Errorf("expected nested examples to be dropped")
	}
}

func TestSanitizeSchema_DefaultsMissingType(t *testing.T) {
	got := SanitizeSchema(map[string]interface{}{"properties": map[string]interface{}{}})
	if got["type"] != "object" {
		t.Errorf("expected missing type to default to object, got %v", got["type"])
	}
}

func TestSanitizeSchema_NilSchema(t *testing.T) {
	got := SanitizeSchema(nil)
	if got["type"] != "object" {
		t.Errorf("expected nil schema to become {type: object}, got %v", got)
	}
}

func TestSanitizeSchema_AdditionalPropertiesFalse(t *testing.T) {
	got := SanitizeSchema(map[string]interface{}{"additionalProperties": false})
	if v, ok := got["additionalProperties"].(bool); !ok || v != false {
		t.Errorf("expected additionalProperties: false to survive, got %v", got["additionalProperties"])
	}
}

func TestSanitizeSchema_AdditionalPropertiesTrueDropped(t *testing.T) {
	got := SanitizeSchema(map[string]interface{}{"additionalProperties": true})
	if _, ok := got["additionalProperties"]; ok {
		t.Errorf("expected additionalProperties: true to be dropped, got %v", got["additionalProperties"])
	}
}

func TestSanitizeSchema_NestedItems(t *testing.T) {
	input := map[string]interface{}{
		"type": "array",
		"items": map[string]interface{}{
			"$ref": "#/definitions/Foo",
			"type": "string",
		},
	}
	got := SanitizeSchema(input)
	items, ok := got["items"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected items to survive sanitization")
	}
	if _, ok := items["$ref"]; ok {
		t.Errorf("expected nested $ref to be dropped")
	}
}
