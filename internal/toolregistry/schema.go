package toolregistry

import (
	"encoding/json"
	"fmt"
)

// validateAgainstSchema performs a structural check of raw arguments
// against an OpenAI-style JSON schema map (the {"parameters": {...}} half
// of a Tool's JSONSchema()), covering the keywords the registry's own
// tools and the mcpTool.sanitizeSchema actually emit: object
// required/properties, and per-property type/enum. This is deliberately
// a narrow structural validator rather than a full JSON Schema
// implementation only asks for "sanitize and validate",
// not draft-07 conformance).
func validateAgainstSchema(toolSchema map[string]any, raw json.RawMessage) error {
	params, _ := toolSchema["parameters"].(map[string]any)
	if params == nil {
		return nil
	}
	var args map[string]any
	if len(raw) == 0 {
		args = map[string]any{}
	} else if err := json.Unmarshal(raw, &args); err != nil {
		return fmt.Errorf("arguments are not a JSON object: %w", err)
	}

	if required, ok := params["required"].([]any); ok {
		for _, r := range required {
			name, _ := r.(string)
			if name == "" {
				continue
			}
			if _, present := args[name]; !present {
				return fmt.Errorf("missing required argument %q", name)
			}
		}
	}

	props, _ := params["properties"].(map[string]any)
	for name, value := range args {
		propSchema, ok := props[name].(map[string]any)
		if !ok {
			continue
		}
		if err := validateValue(name, propSchema, value); err != nil {
			return err
		}
	}
	return nil
}

func validateValue(name string, schema map[string]any, value any) error {
	if enum, ok := schema["enum"].([]any); ok && len(enum) > 0 {
		match := false
		for _, e := range enum {
			if fmt.Sprint(e) == fmt.Sprint(value) {
				match = true
				break
			}
		}
		if !match {
			return fmt.Errorf("argument %q is not one of the allowed values", name)
		}
	}
	wantType, _ := schema["type"].(string)
	if wantType == "" || value == nil {
		return nil
	}
	if !typeMatches(wantType, value) {
		return fmt.Errorf("argument %q must be of type %s", name, wantType)
	}
	return nil
}

func typeMatches(wantType string, value any) bool {
	switch wantType {
	case "string":
		_, ok := value.(string)
		return ok
	case "number", "integer":
		_, ok := value.(float64)
		return ok
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	default:
		return true
	}
}
