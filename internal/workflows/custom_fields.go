package workflows

import (
	"encoding/json"
	"strings"

	"stackdocs-backend/internal/extractions"
)

// ParseCustomFields reads the custom_fields form value. A JSON array of
// {name, description?} objects is used as is. Any other JSON array, or text
// that is not JSON, falls back to a comma-separated list of names. A JSON
// value that is not an array, or an empty array, yields no fields.
func ParseCustomFields(raw string) []extractions.CustomField {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	var decoded any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return splitNames(raw)
	}
	items, ok := decoded.([]any)
	if !ok || len(items) == 0 {
		return nil
	}

	out := make([]extractions.CustomField, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return splitNames(raw)
		}
		name, ok := obj["name"].(string)
		if !ok || strings.TrimSpace(name) == "" {
			return splitNames(raw)
		}
		field := extractions.CustomField{Name: name}
		if desc, present := obj["description"]; present && desc != nil {
			s, ok := desc.(string)
			if !ok {
				return splitNames(raw)
			}
			field.Description = s
		}
		out = append(out, field)
	}
	return out
}

func splitNames(raw string) []extractions.CustomField {
	var out []extractions.CustomField
	for _, part := range strings.Split(raw, ",") {
		if name := strings.TrimSpace(part); name != "" {
			out = append(out, extractions.CustomField{Name: name})
		}
	}
	return out
}
