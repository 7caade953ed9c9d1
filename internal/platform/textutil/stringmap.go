package textutil

import "strings"

// NormalizeStringMap trims keys and values, dropping entries whose key or
// value ends up empty. Useful for message attributes where blank values are
// noise.
func NormalizeStringMap(values map[string]string) map[string]string {
	if len(values) == 0 {
		return nil
	}
	result := make(map[string]string, len(values))
	for key, value := range values {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			continue
		}
		trimmedValue := strings.TrimSpace(value)
		if trimmedValue == "" {
			continue
		}
		result[trimmedKey] = trimmedValue
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

// SplitList expands comma separated values into a flat list, trimming each
// element and dropping empties. Accepts multiple raw values so repeated query
// parameters combine with comma syntax.
func SplitList(values ...string) []string {
	var result []string
	for _, raw := range values {
		for _, part := range strings.Split(raw, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				result = append(result, trimmed)
			}
		}
	}
	return result
}
