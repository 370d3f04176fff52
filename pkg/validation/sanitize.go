// Package validation implements the confirmation workflow: quality
// dry runs, metadata sanitization, archive promotion, integrity
// sealing and the final locked update.
package validation

import (
	"strings"

	"github.com/uleam-dti/dms/pkg/models"
)

// SanitizeMetadata strips the OCR wrapper shapes out of a metadata map
// and keeps only schema-allowed keys. Invalid wrappers become explicit
// nulls; entity and user objects are reduced to their domain fields
// plus a representative "value" scalar.
func SanitizeMetadata(raw map[string]any, allowedKeys map[string]bool) map[string]any {
	clean := make(map[string]any, len(raw))

	for key, item := range raw {
		if allowedKeys != nil && !allowedKeys[key] {
			continue
		}

		m, isMap := item.(map[string]any)
		if !isMap {
			clean[key] = map[string]any{"value": item}
			continue
		}

		if _, hasValue := m["value"]; hasValue {
			if valid, ok := m["is_valid"].(bool); ok && !valid {
				clean[key] = nil
				continue
			}

			switch val := m["value"].(type) {
			case map[string]any:
				normalized := cleanEntityFields(val)
				normalized["value"] = models.RepresentativeValue(normalized)
				clean[key] = normalized

			case nil:
				minimal := map[string]any{}
				for _, k := range []string{"id", "display_name", "email"} {
					if v, ok := m[k]; ok && v != nil && v != "" {
						minimal[k] = v
					}
				}
				if len(minimal) == 0 {
					clean[key] = nil
					continue
				}
				minimal["value"] = models.RepresentativeValue(minimal)
				clean[key] = minimal

			default:
				clean[key] = map[string]any{"value": val}
			}
			continue
		}

		// Already-clean object: recompute its representative value.
		normalized := make(map[string]any, len(m)+1)
		for k, v := range m {
			normalized[k] = v
		}
		normalized["value"] = models.RepresentativeValue(normalized)
		clean[key] = normalized
	}

	return clean
}

// cleanEntityFields keeps only the domain fields of an entity or user
// object, dropping wrapper noise.
func cleanEntityFields(val map[string]any) map[string]any {
	out := map[string]any{}

	if models.LooksLikeUserPayload(val) {
		display, _ := val["display_name"].(string)
		if display == "" {
			fn, _ := val["first_name"].(string)
			ln, _ := val["last_name"].(string)
			display = strings.TrimSpace(strings.TrimSpace(fn) + " " + strings.TrimSpace(ln))
		}
		if v := val["id"]; v != nil && v != "" {
			out["id"] = v
		}
		if display != "" {
			out["display_name"] = display
		}
		if v := val["email"]; v != nil && v != "" {
			out["email"] = v
		}
		return out
	}

	for _, k := range []string{"id", "name", "code", "type"} {
		if v := val[k]; v != nil && v != "" {
			out[k] = v
		}
	}
	return out
}
