package ingest

import "strings"

// SanitizeMap escapes reserved characters in string keys of an arbitrarily
// nested metadata block before persistence: "." anywhere in a key and "$"
// at its start are replaced with their HTML entity equivalents. Values and
// non-string keys pass through; nested maps and slices are walked
// recursively. The input is not modified.
func SanitizeMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[sanitizeKey(k)] = sanitizeValue(v)
	}
	return out
}

func sanitizeValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return SanitizeMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = sanitizeValue(item)
		}
		return out
	default:
		return v
	}
}

func sanitizeKey(k string) string {
	k = strings.ReplaceAll(k, ".", "&#46;")
	if strings.HasPrefix(k, "$") {
		k = "&#36;" + k[1:]
	}
	return k
}
